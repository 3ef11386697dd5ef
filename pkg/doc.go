// Package pkg provides shared utilities for the OTG host and device engines.
//
// This package contains common functionality used across the register model,
// the host stack and the device stack, including:
//
//   - Structured logging via Go's standard [log/slog] package
//   - A bridge from [log/slog] to github.com/apex/log for command-line tools
//   - Sentinel errors for bus, protocol and resource failures
//   - Component identifiers for log filtering
//
// # Logging
//
// The logging subsystem wraps [log/slog] with engine-specific context:
//
//	pkg.SetLogLevel(slog.LevelDebug)
//	pkg.LogDebug(pkg.ComponentChannel, "halt", "ch", 2)
//
// Tools that log through apex/log install the bridge:
//
//	pkg.SetLogger(slog.New(pkg.NewApexHandler(apexlog.Log, nil)))
//
// # Errors
//
// Errors are sentinel values wrapped with context by github.com/pkg/errors:
//
//	if errors.Is(err, pkg.ErrNoChannel) {
//	    // every host channel is in use
//	}
package pkg

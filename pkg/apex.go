package pkg

import (
	"context"
	"log/slog"

	apexlog "github.com/apex/log"
)

// ApexHandler is a [slog.Handler] that forwards records to an apex/log
// logger, so command-line tools that already configured apex handlers see
// engine records in the same stream.
type ApexHandler struct {
	logger apexlog.Interface
	level  slog.Leveler
	attrs  []slog.Attr
	prefix string
}

// NewApexHandler returns a handler writing to logger. A nil level follows
// the engine level set with SetLogLevel.
func NewApexHandler(logger apexlog.Interface, level slog.Leveler) *ApexHandler {
	if level == nil {
		level = logLevel
	}
	return &ApexHandler{logger: logger, level: level}
}

// Enabled reports whether records at l are forwarded.
func (h *ApexHandler) Enabled(_ context.Context, l slog.Level) bool {
	return l >= h.level.Level()
}

// Handle converts the record attributes to apex fields and logs the message.
func (h *ApexHandler) Handle(_ context.Context, r slog.Record) error {
	fields := make(apexlog.Fields, len(h.attrs)+r.NumAttrs())
	for _, a := range h.attrs {
		fields[a.Key] = a.Value.Resolve().Any()
	}
	r.Attrs(func(a slog.Attr) bool {
		fields[h.prefix+a.Key] = a.Value.Resolve().Any()
		return true
	})

	entry := h.logger.WithFields(fields)
	switch {
	case r.Level >= slog.LevelError:
		entry.Error(r.Message)
	case r.Level >= slog.LevelWarn:
		entry.Warn(r.Message)
	case r.Level >= slog.LevelInfo:
		entry.Info(r.Message)
	default:
		entry.Debug(r.Message)
	}
	return nil
}

// WithAttrs returns a handler that always adds attrs.
func (h *ApexHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	n := *h
	n.attrs = make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	n.attrs = append(n.attrs, h.attrs...)
	for _, a := range attrs {
		a.Key = h.prefix + a.Key
		n.attrs = append(n.attrs, a)
	}
	return &n
}

// WithGroup returns a handler that qualifies later keys with name.
func (h *ApexHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	n := *h
	n.prefix = h.prefix + name + "."
	return &n
}

// Package sim wires a host session and a device session through two
// simulated cores so the whole stack can run without hardware.
//
// Bus owns a host-mode and a device-mode otg.Core with the device core
// attached to the host port. Each Step polls the host session, advances
// both cores by one frame and services whichever interrupt line is
// asserted. Every transaction on the port is recorded in a Trace, which
// encodes to canonical CBOR:
//
//	fn := msc.New(msc.NewMemoryStorage(2048, 512))
//	bus := sim.New(hostmsc.New(), nil, fn.Descriptors(0x314B, 0x5720, "Geehy", "Disk", ""), fn, nil)
//	if err := bus.Enumerate(ctx); err != nil {
//		return err
//	}
//
// TokenHost drives a device core one token at a time and is what the device
// class tests use. Script is a host class that replays a fixed list of
// control requests, for devices the host has no class driver for.
package sim

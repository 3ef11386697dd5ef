// Package host implements the USB host side of the APM32F10x OTG core.
//
// The package drives the core's host channels through the [hal.Controller]
// interface defined in the github.com/apm32sdk/usbotg/host/hal package. The
// same code runs against the register model in package otg and against a
// memory-mapped core on hardware.
//
// # Architecture
//
// The host is organized in layers, lowest first:
//
//   - The channel driver programs channels, writes the transmit FIFOs and
//     resets the port.
//   - HandleInterrupt is the interrupt vector. It turns channel events into
//     a URB status per channel.
//   - The control machine runs SETUP, data and status phases of one request
//     on the two endpoint 0 channels.
//   - Enumeration walks the standard requests that address and configure a
//     newly attached device.
//   - Poll is the session machine: attach, enumerate, class setup, class
//     processing, suspend and detach.
//
// # Polling
//
// Nothing in the package blocks. Poll and ControlRequest advance their
// machines by one step and return; transfers complete in HandleInterrupt.
// An application calls Poll from its main loop and HandleInterrupt from
// the OTG interrupt:
//
//	h := host.New(core, msc.New(), callbacks)
//	for {
//		if err := h.Poll(ctx); err != nil {
//			log.WithError(err).Warn("host")
//		}
//	}
//
// # Classes
//
// A [Class] is bound at construction. Once the device is configured the
// session calls Init, then Request until it reports done, then Process on
// every poll. Mass storage and HID drivers live under host/class.
//
// # Allocation
//
// Descriptors, channel state and the control pipe are fixed-size fields of
// Host. Transfers use caller-provided buffers.
package host

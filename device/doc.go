// Package device implements the USB device side of the APM32F10x OTG core.
//
// The package drives the core's endpoints through the [hal.Controller]
// interface defined in the github.com/apm32sdk/usbotg/device/hal package.
// Everything happens in [Device.HandleInterrupt], which the application
// calls from the OTG interrupt:
//
//	desc := &device.Descriptors{Device: dev, Configuration: cfg}
//	d := device.New(core, desc, msc.New(disk), device.NopCallbacks{})
//	for core.Pending() {
//		d.HandleInterrupt()
//	}
//
// # Control endpoint
//
// SETUP packets are decoded and dispatched by request type. Standard
// requests are served by the device itself: it answers from the
// [Descriptors] set, tracks the address and configuration, and runs the
// data and status stages with a trailing zero-length packet where the
// host asked for more than the device had. [StandardHooks] see every
// standard request once it is done and serve the descriptors the device
// does not know, such as HID report descriptors.
//
// Class requests go to the [Class]. It answers them with CtrlInData,
// CtrlOutData or CtrlTxStatus, or stalls EP0 with SetStall(0).
//
// # States
//
// The device follows the USB 2.0 device states:
//
//	Default → Address → Configured ⇄ Suspended
//
// A bus reset returns to Default from any state.
//
// # Other endpoints
//
// Classes open endpoints with OpenInEP and OpenOutEP, usually from the
// SetConfiguration hook, and move data with TxData and RxData. Each IN
// endpoint has its own transmit FIFO.
package device

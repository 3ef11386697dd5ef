// Package hal defines the hardware boundary of the device stack.
//
// The device stack implements the USB protocol rules itself and reaches
// the hardware only through [Controller]: the register file of a
// DWC-style OTG core in device mode plus its FIFO access paths.
// [github.com/apm32sdk/usbotg/otg.Core] implements it, so the same driver
// code runs against the behavioural model in tests and simulations.
//
// # Example
//
//	core := otg.New(otg.WithMode(otg.ModeDevice))
//	var ctl hal.Controller = core
//	st := hal.ReadDeviceStatus(ctl.Registers())
//	fmt.Println(st.Speed, st.Frame)
package hal

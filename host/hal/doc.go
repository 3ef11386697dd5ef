// Package hal defines the hardware boundary of the host stack.
//
// The host stack implements every protocol rule itself and reaches the
// hardware only through [Controller]: a register file plus the FIFO access
// paths of a DWC-style OTG core. The behavioural model in
// [github.com/apm32sdk/usbotg/otg] satisfies it, so the same driver code
// runs against the model in tests and simulations.
//
// # Example
//
//	core := otg.New(otg.WithMode(otg.ModeHost))
//	var ctl hal.Controller = core
//	st := hal.ReadPortStatus(ctl.Registers())
//	fmt.Println(st.Connected, st.Speed)
package hal

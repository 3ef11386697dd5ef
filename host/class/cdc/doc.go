// Package cdc implements the host side of the CDC Abstract Control Model,
// a virtual serial port.
//
// The class binds the first interface with class 0x02 as the control
// interface and the first class 0x0A interface with a bulk endpoint pair
// as the data interface. Its class requests send SET_LINE_CODING, read
// the coding back with GET_LINE_CODING and set DTR and RTS with
// SET_CONTROL_LINE_STATE. Process then moves queued data to the bulk OUT
// endpoint, keeps a read pending on the bulk IN endpoint and polls the
// notification endpoint for SERIAL_STATE.
//
// Send and Read never block; the session moves the data while it is
// polled:
//
//	class.Send([]byte("AT\r"))
//	for class.Pending() > 0 {
//		if err := bus.Step(ctx); err != nil {
//			return err
//		}
//	}
package cdc

// Package cdc implements a CDC Abstract Control Model function, the
// virtual serial port of the device session.
//
// The function has two interfaces grouped by an interface association:
//
//   - a control interface with the header, call management, ACM and union
//     functional descriptors and an interrupt IN notification endpoint
//   - a data interface with a bulk IN and a bulk OUT endpoint
//
// SET_LINE_CODING takes its seven bytes in the OUT data stage of the
// control transfer and is applied before the status stage. GET_LINE_CODING,
// SET_CONTROL_LINE_STATE and SEND_BREAK are answered directly.
//
// Received data is buffered for Read, handed to a ReceiveHandler, or echoed
// back:
//
//	acm := cdc.NewACM(cdc.WithEcho())
//	dev := device.New(core, acm.Descriptors(0x314B, 0x5740, "Geehy", "Serial", ""), acm, nil)
//
// Write queues data for the bulk IN endpoint. A transfer that ends on a
// packet boundary is closed with a zero-length packet.
package cdc

// Package hid implements a Human Interface Device function for the device
// session.
//
// A function has one interface with a HID descriptor and an interrupt IN
// endpoint. The HID and report descriptors are served through the
// GetDescriptor hook of the standard request engine; GET_REPORT,
// SET_REPORT, GET_IDLE, SET_IDLE, GET_PROTOCOL and SET_PROTOCOL are
// answered on EP0. The idle rate is recorded but reports are only sent
// when the application calls SendReport.
//
// Boot keyboard and mouse report descriptors are included:
//
//	kbd := hid.NewKeyboard(hid.WithOutputReportHandler(func(typ, id uint8, data []byte) {
//		// LED state
//	}))
//	dev := device.New(core, kbd.Descriptors(0x314B, 0x5721, "Geehy", "Keyboard", ""), kbd, nil)
//
//	var r hid.KeyboardReport
//	r.Press(hid.KeyA)
//	kbd.SendKeyboard(dev, &r)
//
// Reports sent while the endpoint is busy wait in a small queue and go out
// from InComplete.
package hid

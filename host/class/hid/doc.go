// Package hid implements the host side of the USB Human Interface Device
// class.
//
// The class binds the first HID interface that has an interrupt IN
// endpoint. Its class requests read the HID and report descriptors and
// send SET_IDLE and SET_PROTOCOL. Process then polls the endpoint every
// bInterval frames, starting on an even frame, and passes each input
// report to the handler:
//
//	class := hid.New(hid.WithReportHandler(func(r []byte) {
//		fmt.Printf("% x\n", r)
//	}))
//	h := host.New(core, class, callbacks)
//
// Reports of boot mice and of interfaces without a boot protocol are also
// decoded into a Mouse, which Track renders as a one-line cursor.
package hid

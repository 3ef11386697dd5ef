// Package msc implements the host side of the USB Mass Storage Class over
// Bulk-Only Transport.
//
// The class binds the first interface with class 0x08 and protocol 0x50.
// Its class requests reset the transport and read the maximum LUN; only
// single-unit devices are supported. Process then brings the unit up with
// TEST UNIT READY, READ CAPACITY(10) and MODE SENSE(6), asking for sense
// data after each failure, before it hands the unit to the application
// callback.
//
// Every operation is polled. Read and Write return StatusBusy until the
// command has passed through its CBW, data and CSW stages:
//
//	buf := make([]byte, 512)
//	for {
//		st := class.Read(h, 0, buf)
//		if st != msc.StatusBusy {
//			break
//		}
//		bus.Step()
//	}
package msc

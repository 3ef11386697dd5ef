// Package msc implements a USB mass storage function over the Bulk-Only
// Transport with the SCSI transparent command set.
//
// The function has a single logical unit backed by a [Storage]. Each
// command runs through three phases on the bulk endpoints:
//
//  1. the host sends a Command Block Wrapper on the OUT endpoint
//  2. data moves in the direction the CBW names, in chunks of at most
//     [MediaPacket] bytes
//  3. the device returns a Command Status Wrapper on the IN endpoint
//
// A command that fails while data is still expected stalls the data
// endpoint; the CSW follows once the host clears the halt. A CBW that is
// not valid stalls both endpoints until the host issues a Bulk-Only
// reset.
//
// Supported commands are TEST UNIT READY, REQUEST SENSE, INQUIRY, MODE
// SENSE(6), START STOP UNIT, PREVENT ALLOW MEDIUM REMOVAL, READ FORMAT
// CAPACITIES, READ CAPACITY(10) and (16), READ(10), WRITE(10), VERIFY(10)
// and SYNCHRONIZE CACHE(10).
//
// # Usage
//
//	disk := msc.NewMemoryStorage(2048, msc.DefaultBlockSize)
//	fn := msc.New(disk)
//	desc := fn.Descriptors(0x314B, 0x5720, "Geehy", "APM32 Disk", "0001")
//	dev := device.New(core, desc, fn, nil)
package msc

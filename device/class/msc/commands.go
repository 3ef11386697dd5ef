package msc

import (
	"encoding/binary"

	"github.com/pkg/errors"

	"github.com/apm32sdk/usbotg/device"
	"github.com/apm32sdk/usbotg/otg"
	"github.com/apm32sdk/usbotg/pkg"
)

// execute dispatches the SCSI command of the current CBW.
func (c *Class) execute(d *device.Device) {
	cb := c.cbw.CB[:]
	switch cb[0] {
	case SCSITestUnitReady:
		if c.ready(d) {
			c.sendCSW(d, CSWStatusGood)
		}

	case SCSIRequestSense:
		b := c.sense.AppendTo(c.resp[:0])
		c.sense = Sense{}
		c.sendData(d, b[:min(len(b), int(cb[4]))])

	case SCSIInquiry:
		if cb[1]&0x01 != 0 {
			// no vital product data pages
			c.fail(d, SenseIllegalRequest, ASCInvalidFieldInCDB)
			return
		}
		b := c.inquiry.AppendTo(c.resp[:0])
		c.sendData(d, b[:min(len(b), int(binary.BigEndian.Uint16(cb[3:5])))])

	case SCSIModeSense6:
		b := appendModeSense6(c.resp[:0], c.storage.ReadOnly())
		c.sendData(d, b[:min(len(b), int(cb[4]))])

	case SCSIStartStopUnit:
		c.startStop(d, cb[4])

	case SCSIPreventAllowRemoval:
		c.sendCSW(d, CSWStatusGood)

	case SCSIReadFormatCapacities:
		if c.ready(d) {
			b := appendFormatCapacities(c.resp[:0], c.storage.BlockCount(), c.storage.BlockSize())
			c.sendData(d, b[:min(len(b), int(binary.BigEndian.Uint16(cb[7:9])))])
		}

	case SCSIReadCapacity10:
		if c.ready(d) {
			c.sendData(d, appendCapacity10(c.resp[:0], c.storage.BlockCount(), c.storage.BlockSize()))
		}

	case SCSIServiceActionIn16:
		if cb[1]&0x1F != ServiceActionReadCapacity16 {
			c.fail(d, SenseIllegalRequest, ASCInvalidCommand)
			return
		}
		if c.ready(d) {
			b := appendCapacity16(c.resp[:0], c.storage.BlockCount(), c.storage.BlockSize())
			c.sendData(d, b[:min(len(b), int(binary.BigEndian.Uint32(cb[10:14])))])
		}

	case SCSIRead10:
		c.read10(d)

	case SCSIWrite10:
		c.write10(d)

	case SCSIVerify10:
		if c.ready(d) {
			c.sendCSW(d, CSWStatusGood)
		}

	case SCSISynchronizeCache10:
		if err := c.storage.Sync(); err != nil {
			c.fail(d, SenseMediumError, ASCWriteFault)
			return
		}
		c.sendCSW(d, CSWStatusGood)

	default:
		c.fail(d, SenseIllegalRequest, ASCInvalidCommand)
	}
}

// ready fails the command when no medium is loaded.
func (c *Class) ready(d *device.Device) bool {
	if !c.storage.Present() {
		c.fail(d, SenseNotReady, ASCMediumNotPresent)
		return false
	}
	return true
}

// startStop ejects the medium on a LOEJ stop. Other power conditions are
// accepted without effect.
func (c *Class) startStop(d *device.Device, flags uint8) {
	const (
		start = 0x01
		loej  = 0x02
	)
	if flags&loej != 0 && flags&start == 0 && c.storage.Removable() {
		if err := c.storage.Eject(); err != nil {
			c.fail(d, SenseIllegalRequest, ASCInvalidFieldInCDB)
			return
		}
	}
	c.sendCSW(d, CSWStatusGood)
}

// transfer validates the LBA and block count of READ(10) or WRITE(10)
// against the CBW and the medium.
func (c *Class) transfer(d *device.Device, dataIn bool) bool {
	cb := c.cbw.CB[:]
	lba := uint64(binary.BigEndian.Uint32(cb[2:6]))
	blocks := uint32(binary.BigEndian.Uint16(cb[7:9]))
	if !c.ready(d) {
		return false
	}
	bs := c.storage.BlockSize()
	if (c.cbw.IsDataIn() != dataIn && c.cbw.DataTransferLength > 0) ||
		uint64(c.cbw.DataTransferLength) != uint64(blocks)*uint64(bs) {
		c.fail(d, SenseIllegalRequest, ASCInvalidFieldInCDB)
		return false
	}
	if lba+uint64(blocks) > c.storage.BlockCount() {
		c.fail(d, SenseIllegalRequest, ASCLBAOutOfRange)
		return false
	}
	c.lba = lba
	c.remaining = blocks
	return true
}

// chunkBlocks returns the blocks of the next storage access. A chunk is
// also bounded by the packet count of a single endpoint transfer.
func (c *Class) chunkBlocks() uint32 {
	limit := min(MediaPacket, otg.MaxPacketCount*int(c.mps))
	return min(c.remaining, uint32(limit)/c.storage.BlockSize())
}

func (c *Class) read10(d *device.Device) {
	if !c.transfer(d, true) {
		return
	}
	if c.remaining == 0 {
		c.sendCSW(d, CSWStatusGood)
		return
	}
	c.readChunk(d)
}

// readChunk reads the next chunk from storage and sends it.
func (c *Class) readChunk(d *device.Device) {
	blocks := c.chunkBlocks()
	b := c.buf[:blocks*c.storage.BlockSize()]
	if err := c.storage.ReadBlocks(c.lba, b); err != nil {
		c.mediumError(d, err, SenseMediumError, ASCUnrecoveredRead)
		return
	}
	c.lba += uint64(blocks)
	c.remaining -= blocks
	c.csw.DataResidue -= uint32(len(b))
	c.sent = len(b)
	c.state = StateDataIn
	if c.remaining == 0 {
		c.state = StateLastData
	}
	if err := d.TxData(c.in, b); err != nil {
		c.mediumError(d, err, SenseHardwareError, ASCNoAdditionalInfo)
	}
}

func (c *Class) write10(d *device.Device) {
	if !c.transfer(d, false) {
		return
	}
	if c.storage.ReadOnly() {
		c.fail(d, SenseDataProtect, ASCWriteProtected)
		return
	}
	if c.remaining == 0 {
		c.sendCSW(d, CSWStatusGood)
		return
	}
	c.receiveChunk(d)
}

// receiveChunk arms the OUT endpoint for the next chunk of WRITE data.
func (c *Class) receiveChunk(d *device.Device) {
	c.chunk = int(c.chunkBlocks() * c.storage.BlockSize())
	c.state = StateDataOut
	if err := d.RxData(c.out, c.buf[:c.chunk]); err != nil {
		c.mediumError(d, err, SenseHardwareError, ASCNoAdditionalInfo)
	}
}

// writeChunk stores n bytes of WRITE data. A chunk cut short by the host
// ends the command with a phase error.
func (c *Class) writeChunk(d *device.Device, n int) {
	if n != c.chunk {
		c.csw.DataResidue -= uint32(n)
		c.sendCSW(d, CSWStatusPhaseError)
		return
	}
	if err := c.storage.WriteBlocks(c.lba, c.buf[:n]); err != nil {
		c.csw.DataResidue -= uint32(n)
		switch {
		case errors.Is(err, ErrWriteProtected):
			c.mediumError(d, err, SenseDataProtect, ASCWriteProtected)
		case errors.Is(err, ErrNoMedium):
			c.mediumError(d, err, SenseNotReady, ASCMediumNotPresent)
		default:
			c.mediumError(d, err, SenseMediumError, ASCWriteFault)
		}
		return
	}
	blocks := uint32(n) / c.storage.BlockSize()
	c.lba += uint64(blocks)
	c.remaining -= blocks
	c.csw.DataResidue -= uint32(n)
	if c.remaining == 0 {
		c.sendCSW(d, CSWStatusGood)
		return
	}
	c.receiveChunk(d)
}

// mediumError aborts READ or WRITE after a storage or endpoint error.
func (c *Class) mediumError(d *device.Device, err error, key, asc uint8) {
	pkg.LogWarn(pkg.ComponentClass, "msc transfer aborted", "lba", c.lba, "error", err)
	c.remaining = 0
	c.fail(d, key, asc)
}

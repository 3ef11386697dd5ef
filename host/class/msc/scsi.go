package msc

import (
	"encoding/binary"

	"github.com/apm32sdk/usbotg/host"
)

// scsiState tracks whether a polled SCSI command has been issued.
type scsiState uint8

const (
	scsiSend scsiState = iota
	scsiWait
)

// Sense is the fixed-format REQUEST SENSE data the class keeps.
type Sense struct {
	Key  uint8
	ASC  uint8
	ASCQ uint8
}

// command runs one SCSI command over the transport. The first call loads
// it; later calls advance it until a status other than StatusBusy is
// returned.
func (c *Class) command(h *host.Host, cdb []byte, length int, in bool, data []byte) Status {
	switch c.scsi {
	case scsiSend:
		c.bot.start(cdb, length, in, data)
		c.scsi = scsiWait
		return StatusBusy
	default:
		st := c.bot.step(h)
		if st != StatusBusy {
			c.scsi = scsiSend
		}
		return st
	}
}

func (c *Class) testUnitReady(h *host.Host) Status {
	cdb := [6]byte{SCSITestUnitReady}
	return c.command(h, cdb[:], 0, true, nil)
}

func (c *Class) readCapacity10(h *host.Host) Status {
	cdb := [10]byte{SCSIReadCapacity10}
	st := c.command(h, cdb[:], readCapacity10Length, true, c.buf[:readCapacity10Length])
	if st == StatusOK {
		c.info.BlockCount = binary.BigEndian.Uint32(c.buf[0:4]) + 1
		c.info.BlockSize = binary.BigEndian.Uint32(c.buf[4:8])
	}
	return st
}

func (c *Class) modeSense6(h *host.Host) Status {
	cdb := [6]byte{SCSIModeSense6, 0, 0x3F, 0, modeSense6Length}
	st := c.command(h, cdb[:], modeSense6Length, true, c.buf[:modeSense6Length])
	if st == StatusOK {
		c.info.WriteProtected = c.buf[2]&0x80 != 0
	}
	return st
}

func (c *Class) requestSense(h *host.Host) Status {
	cdb := [6]byte{SCSIRequestSense, 0, 0, 0, requestSenseLength}
	st := c.command(h, cdb[:], requestSenseLength, true, c.buf[:requestSenseLength])
	if st == StatusOK {
		c.info.Sense = Sense{Key: c.buf[2] & 0x0F, ASC: c.buf[12], ASCQ: c.buf[13]}
	}
	return st
}

// rw10 builds a READ(10) or WRITE(10) command block.
func rw10(op uint8, lba uint32, blocks uint16) [10]byte {
	cdb := [10]byte{op}
	binary.BigEndian.PutUint32(cdb[2:6], lba)
	binary.BigEndian.PutUint16(cdb[7:9], blocks)
	return cdb
}

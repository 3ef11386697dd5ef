package msc

import "encoding/binary"

// Inquiry is the identification returned by INQUIRY.
type Inquiry struct {
	Removable bool
	Vendor    string // 8 characters
	Product   string // 16 characters
	Revision  string // 4 characters
}

// AppendTo appends the 36-byte standard INQUIRY data for a direct access
// block device to b.
func (q *Inquiry) AppendTo(b []byte) []byte {
	var rmb byte
	if q.Removable {
		rmb = 0x80
	}
	b = append(b,
		0x00,             // direct access block device
		rmb,              // removable medium
		0x06,             // SPC-4
		0x02,             // response data format
		InquiryLength-5,  // additional length
		0x00, 0x00, 0x00, // flags
	)
	b = appendPadded(b, q.Vendor, 8)
	b = appendPadded(b, q.Product, 16)
	return appendPadded(b, q.Revision, 4)
}

// appendPadded appends s cut or space-padded to n bytes.
func appendPadded(b []byte, s string, n int) []byte {
	for i := 0; i < n; i++ {
		if i < len(s) {
			b = append(b, s[i])
		} else {
			b = append(b, ' ')
		}
	}
	return b
}

// Sense is the sense data reported by REQUEST SENSE.
type Sense struct {
	Key  uint8
	ASC  uint8
	ASCQ uint8
}

// AppendTo appends fixed-format sense data to b.
func (s Sense) AppendTo(b []byte) []byte {
	var d [RequestSenseLength]byte
	d[0] = 0x70 // current error, fixed format
	d[2] = s.Key & 0x0F
	d[7] = RequestSenseLength - 8
	d[12] = s.ASC
	d[13] = s.ASCQ
	return append(b, d[:]...)
}

// appendCapacity10 appends READ CAPACITY(10) data. The last LBA saturates
// at 0xFFFFFFFF, which tells the host to use READ CAPACITY(16).
func appendCapacity10(b []byte, blocks uint64, blockSize uint32) []byte {
	last := uint32(0xFFFFFFFF)
	if blocks > 0 && blocks-1 < 0xFFFFFFFF {
		last = uint32(blocks - 1)
	}
	b = binary.BigEndian.AppendUint32(b, last)
	return binary.BigEndian.AppendUint32(b, blockSize)
}

// appendCapacity16 appends READ CAPACITY(16) parameter data.
func appendCapacity16(b []byte, blocks uint64, blockSize uint32) []byte {
	var d [ReadCapacity16Length]byte
	if blocks > 0 {
		binary.BigEndian.PutUint64(d[0:8], blocks-1)
	}
	binary.BigEndian.PutUint32(d[8:12], blockSize)
	return append(b, d[:]...)
}

// appendModeSense6 appends a MODE SENSE(6) header without block
// descriptors or pages.
func appendModeSense6(b []byte, writeProtected bool) []byte {
	var param byte
	if writeProtected {
		param = modeSenseWriteProtect
	}
	return append(b, ModeSense6Length-1, 0x00, param, 0x00)
}

// appendFormatCapacities appends a capacity list with the current
// formatted capacity.
func appendFormatCapacities(b []byte, blocks uint64, blockSize uint32) []byte {
	b = append(b, 0, 0, 0, 8)
	b = binary.BigEndian.AppendUint32(b, uint32(min(blocks, 0xFFFFFFFF)))
	b = append(b, 0x02) // formatted media
	return append(b, byte(blockSize>>16), byte(blockSize>>8), byte(blockSize))
}

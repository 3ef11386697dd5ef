package otg

import (
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/pkg/errors"
)

// RxRecord is one receive FIFO entry in a snapshot.
type RxRecord struct {
	Status uint32   `cbor:"1,keyasint"`
	Data   []uint32 `cbor:"2,keyasint,omitempty"`
}

// Snapshot is the complete state of a core: registers, FIFO contents and
// virtual time. The port attachment is not part of it.
type Snapshot struct {
	Mode       Mode                      `cbor:"1,keyasint"`
	Frame      uint16                    `cbor:"2,keyasint"`
	Time       time.Duration             `cbor:"3,keyasint"`
	Regs       Registers                 `cbor:"4,keyasint"`
	RxQueue    []RxRecord                `cbor:"5,keyasint,omitempty"`
	ChannelTx  [HostChannels][]uint32    `cbor:"6,keyasint"`
	EndpointTx [DeviceEndpoints][]uint32 `cbor:"7,keyasint"`
}

// Snapshot captures the current state of the core.
func (c *Core) Snapshot() Snapshot {
	c.Sync()
	s := Snapshot{
		Mode:  ModeDevice,
		Frame: c.frame,
		Time:  c.now,
		Regs:  c.Regs,
	}
	if c.HostMode() {
		s.Mode = ModeHost
	}
	for _, e := range c.rx {
		s.RxQueue = append(s.RxQueue, RxRecord{Status: e.status, Data: append([]uint32(nil), e.data...)})
	}
	for i := range c.chTx {
		s.ChannelTx[i] = append([]uint32(nil), c.chTx[i]...)
	}
	for i := range c.epTx {
		s.EndpointTx[i] = append([]uint32(nil), c.epTx[i]...)
	}
	return s
}

// Restore loads a snapshot taken with Snapshot.
func (c *Core) Restore(s Snapshot) {
	c.Regs = s.Regs
	c.frame = s.Frame
	c.now = s.Time
	c.rx = nil
	c.cur = nil
	for _, r := range s.RxQueue {
		c.rx = append(c.rx, rxEntry{status: r.Status, data: append([]uint32(nil), r.Data...)})
	}
	for i := range c.chTx {
		c.chTx[i] = append([]uint32(nil), s.ChannelTx[i]...)
	}
	for i := range c.epTx {
		c.epTx[i] = append([]uint32(nil), s.EndpointTx[i]...)
	}
	c.Sync()
}

// EncodeSnapshot encodes s as canonical CBOR.
func EncodeSnapshot(s Snapshot) ([]byte, error) {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		return nil, errors.Wrap(err, "cbor encode mode")
	}
	b, err := em.Marshal(s)
	if err != nil {
		return nil, errors.Wrap(err, "encode snapshot")
	}
	return b, nil
}

// DecodeSnapshot decodes a snapshot produced by EncodeSnapshot.
func DecodeSnapshot(b []byte) (Snapshot, error) {
	var s Snapshot
	if err := cbor.Unmarshal(b, &s); err != nil {
		return Snapshot{}, errors.Wrap(err, "decode snapshot")
	}
	return s, nil
}

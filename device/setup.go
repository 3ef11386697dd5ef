package device

import (
	"encoding/binary"
	"fmt"
)

// Standard request codes (USB 2.0 table 9-4).
const (
	RequestGetStatus        = 0x00
	RequestClearFeature     = 0x01
	RequestSetFeature       = 0x03
	RequestSetAddress       = 0x05
	RequestGetDescriptor    = 0x06
	RequestSetDescriptor    = 0x07
	RequestGetConfiguration = 0x08
	RequestSetConfiguration = 0x09
	RequestGetInterface     = 0x0A
	RequestSetInterface     = 0x0B
	RequestSynchFrame       = 0x0C
)

// Feature selectors (USB 2.0 table 9-6).
const (
	FeatureEndpointHalt = 0x00
	FeatureRemoteWakeup = 0x01
	FeatureTestMode     = 0x02
)

// bmRequestType fields.
const (
	RequestDirIn = 0x80

	RequestTypeMask     = 0x60
	RequestTypeStandard = 0x00
	RequestTypeClass    = 0x20
	RequestTypeVendor   = 0x40

	RecipientMask      = 0x1F
	RecipientDevice    = 0x00
	RecipientInterface = 0x01
	RecipientEndpoint  = 0x02
	RecipientOther     = 0x03
)

// SetupPacketSize is the size of a SETUP packet.
const SetupPacketSize = 8

// SetupPacket is the request carried by a SETUP transaction.
type SetupPacket struct {
	RequestType uint8
	Request     uint8
	Value       uint16
	Index       uint16
	Length      uint16
}

// ParseSetup decodes a SETUP packet.
func ParseSetup(b [SetupPacketSize]byte) SetupPacket {
	return SetupPacket{
		RequestType: b[0],
		Request:     b[1],
		Value:       binary.LittleEndian.Uint16(b[2:4]),
		Index:       binary.LittleEndian.Uint16(b[4:6]),
		Length:      binary.LittleEndian.Uint16(b[6:8]),
	}
}

// Bytes encodes the packet as sent on the wire.
func (s SetupPacket) Bytes() [SetupPacketSize]byte {
	var b [SetupPacketSize]byte
	b[0] = s.RequestType
	b[1] = s.Request
	binary.LittleEndian.PutUint16(b[2:4], s.Value)
	binary.LittleEndian.PutUint16(b[4:6], s.Index)
	binary.LittleEndian.PutUint16(b[6:8], s.Length)
	return b
}

// In reports whether the data stage runs device to host.
func (s SetupPacket) In() bool { return s.RequestType&RequestDirIn != 0 }

// Type returns the request type bits (standard, class or vendor).
func (s SetupPacket) Type() uint8 { return s.RequestType & RequestTypeMask }

// Recipient returns the recipient bits.
func (s SetupPacket) Recipient() uint8 { return s.RequestType & RecipientMask }

// DescriptorType returns the high byte of wValue of GET_DESCRIPTOR.
func (s SetupPacket) DescriptorType() uint8 { return uint8(s.Value >> 8) }

// DescriptorIndex returns the low byte of wValue of GET_DESCRIPTOR.
func (s SetupPacket) DescriptorIndex() uint8 { return uint8(s.Value) }

// EndpointAddress returns the endpoint addressed by wIndex.
func (s SetupPacket) EndpointAddress() uint8 { return uint8(s.Index) }

func (s SetupPacket) String() string {
	return fmt.Sprintf("{type=%#02x req=%#02x value=%#04x index=%#04x len=%d}",
		s.RequestType, s.Request, s.Value, s.Index, s.Length)
}

package hid

import "encoding/binary"

// Interface codes.
const (
	ClassHID = 0x03

	SubclassNone = 0x00
	SubclassBoot = 0x01

	ProtocolNone     = 0x00
	ProtocolKeyboard = 0x01
	ProtocolMouse    = 0x02
)

// Class descriptor types.
const (
	DescriptorTypeHID    = 0x21
	DescriptorTypeReport = 0x22
)

// Class requests.
const (
	RequestGetReport   = 0x01
	RequestGetIdle     = 0x02
	RequestGetProtocol = 0x03
	RequestSetReport   = 0x09
	RequestSetIdle     = 0x0A
	RequestSetProtocol = 0x0B
)

// Report types in the high byte of wValue of GET_REPORT and SET_REPORT.
const (
	ReportTypeInput   = 0x01
	ReportTypeOutput  = 0x02
	ReportTypeFeature = 0x03
)

// Protocols of GET_PROTOCOL and SET_PROTOCOL.
const (
	ProtocolBoot   = 0x00
	ProtocolReport = 0x01
)

// Endpoint defaults.
const (
	DefaultInEndpoint    = 0x81
	DefaultMaxPacketSize = 8
	DefaultInterval      = 10 // frames

	// MaxReportSize bounds input and output reports.
	MaxReportSize = 64

	// DefaultQueueDepth is the number of input reports held while the
	// endpoint is busy.
	DefaultQueueDepth = 8
)

// DescriptorSize is the size of a HID descriptor with one report
// descriptor.
const DescriptorSize = 9

// Descriptor is the HID class descriptor that follows the interface
// descriptor.
type Descriptor struct {
	Version      uint16 // BCD
	CountryCode  uint8
	ReportLength uint16
}

// AppendTo appends the descriptor to b.
func (d *Descriptor) AppendTo(b []byte) []byte {
	b = append(b, DescriptorSize, DescriptorTypeHID)
	b = binary.LittleEndian.AppendUint16(b, d.Version)
	b = append(b, d.CountryCode, 1, DescriptorTypeReport)
	return binary.LittleEndian.AppendUint16(b, d.ReportLength)
}

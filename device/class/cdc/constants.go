package cdc

import (
	"encoding/binary"

	"github.com/apm32sdk/usbotg/device"
)

// Interface codes.
const (
	ClassCDC     = device.ClassCDC
	ClassCDCData = device.ClassCDCData

	SubclassACM = 0x02

	ProtocolNone = 0x00
	ProtocolAT   = 0x01 // V.250
)

// Functional descriptor subtypes.
const (
	SubtypeHeader         = 0x00
	SubtypeCallManagement = 0x01
	SubtypeACM            = 0x02
	SubtypeUnion          = 0x06
)

// Class requests.
const (
	RequestSendEncapsulatedCommand = 0x00
	RequestGetEncapsulatedResponse = 0x01
	RequestSetLineCoding           = 0x20
	RequestGetLineCoding           = 0x21
	RequestSetControlLineState     = 0x22
	RequestSendBreak               = 0x23
)

// NotificationSerialState reports the UART state bits on the notification
// endpoint.
const NotificationSerialState = 0x20

// CDCVersion is the class release of the header functional descriptor.
const CDCVersion = 0x0110

// ACM capabilities of the ACM functional descriptor.
const (
	ACMCapCommFeature = 1 << 0
	ACMCapLineCoding  = 1 << 1
	ACMCapSendBreak   = 1 << 2
)

// Control line bits of SET_CONTROL_LINE_STATE.
const (
	ControlLineDTR = 1 << 0
	ControlLineRTS = 1 << 1
)

// Serial state bits of the SERIAL_STATE notification.
const (
	SerialStateDCD     = 1 << 0
	SerialStateDSR     = 1 << 1
	SerialStateBreak   = 1 << 2
	SerialStateRing    = 1 << 3
	SerialStateFraming = 1 << 4
	SerialStateParity  = 1 << 5
	SerialStateOverrun = 1 << 6
)

// Stop bits.
const (
	StopBits1   = 0
	StopBits1_5 = 1
	StopBits2   = 2
)

// Parity.
const (
	ParityNone  = 0
	ParityOdd   = 1
	ParityEven  = 2
	ParityMark  = 3
	ParitySpace = 4
)

// Endpoint defaults.
const (
	DefaultNotifyEndpoint = 0x82
	DefaultInEndpoint     = 0x81
	DefaultOutEndpoint    = 0x01
	DefaultMaxPacketSize  = 64
	NotifyMaxPacketSize   = 16
	NotifyInterval        = 16 // frames
)

// Buffer sizes.
const (
	// RxBufferSize bounds received data not yet taken by Read.
	RxBufferSize = 1024
	// TxBufferSize bounds data waiting for the bulk IN endpoint.
	TxBufferSize = 1024
	// TxChunk is the most data handed to the endpoint in one transfer.
	TxChunk = 512
)

// LineCodingSize is the size of the line coding structure.
const LineCodingSize = 7

// SerialStateSize is the size of a SERIAL_STATE notification.
const SerialStateSize = 10

// LineCoding is the UART framing set by the host.
type LineCoding struct {
	BaudRate uint32
	StopBits uint8
	Parity   uint8
	DataBits uint8
}

// DefaultLineCoding is 115200 8N1.
var DefaultLineCoding = LineCoding{BaudRate: 115200, StopBits: StopBits1, Parity: ParityNone, DataBits: 8}

// AppendTo appends the 7 wire bytes to b.
func (lc LineCoding) AppendTo(b []byte) []byte {
	b = binary.LittleEndian.AppendUint32(b, lc.BaudRate)
	return append(b, lc.StopBits, lc.Parity, lc.DataBits)
}

// ParseLineCoding decodes the wire form. It reports false when b is short.
func ParseLineCoding(b []byte, lc *LineCoding) bool {
	if len(b) < LineCodingSize {
		return false
	}
	lc.BaudRate = binary.LittleEndian.Uint32(b[0:4])
	lc.StopBits = b[4]
	lc.Parity = b[5]
	lc.DataBits = b[6]
	return true
}

// Valid reports whether the coding names a framing a UART can produce.
func (lc LineCoding) Valid() bool {
	switch lc.DataBits {
	case 5, 6, 7, 8, 16:
	default:
		return false
	}
	return lc.BaudRate != 0 && lc.StopBits <= StopBits2 && lc.Parity <= ParitySpace
}

func appendHeader(b []byte) []byte {
	b = append(b, 5, device.DescriptorTypeCSInterface, SubtypeHeader)
	return binary.LittleEndian.AppendUint16(b, CDCVersion)
}

func appendCallManagement(b []byte, caps, dataItf uint8) []byte {
	return append(b, 5, device.DescriptorTypeCSInterface, SubtypeCallManagement, caps, dataItf)
}

func appendACM(b []byte, caps uint8) []byte {
	return append(b, 4, device.DescriptorTypeCSInterface, SubtypeACM, caps)
}

func appendUnion(b []byte, control, data uint8) []byte {
	return append(b, 5, device.DescriptorTypeCSInterface, SubtypeUnion, control, data)
}

package hid

import (
	"encoding/binary"
	"fmt"
)

// HID interface codes.
const (
	ClassHID = 0x03 // Human Interface Device Class

	SubclassNone = 0x00
	SubclassBoot = 0x01

	ProtocolNone     = 0x00
	ProtocolKeyboard = 0x01
	ProtocolMouse    = 0x02
)

// HID descriptor types.
const (
	DescriptorTypeHID    = 0x21
	DescriptorTypeReport = 0x22
)

// HID class requests.
const (
	RequestGetReport   = 0x01
	RequestGetIdle     = 0x02
	RequestGetProtocol = 0x03
	RequestSetReport   = 0x09
	RequestSetIdle     = 0x0A
	RequestSetProtocol = 0x0B
)

// Protocol values for SET_PROTOCOL.
const (
	ProtocolBoot   = 0x00
	ProtocolReport = 0x01
)

// PollInterval is the report polling period in frames used when the
// endpoint reports a bInterval of 0.
const PollInterval = 10

// MaxReportDescriptor bounds the report descriptor the class fetches.
const MaxReportDescriptor = 256

// HIDDescriptor is the HID class descriptor following the interface
// descriptor.
type HIDDescriptor struct {
	Length         uint8
	DescriptorType uint8
	HIDVersion     uint16
	CountryCode    uint8
	NumDescriptors uint8
	ReportDescType uint8
	ReportDescLen  uint16
}

// HIDDescriptorSize is the size of the HID descriptor.
const HIDDescriptorSize = 9

// ParseHIDDescriptor parses a HID descriptor from data.
// Returns false if data is too short or is not a HID descriptor.
func ParseHIDDescriptor(data []byte, out *HIDDescriptor) bool {
	if len(data) < HIDDescriptorSize || data[1] != DescriptorTypeHID {
		return false
	}
	out.Length = data[0]
	out.DescriptorType = data[1]
	out.HIDVersion = binary.LittleEndian.Uint16(data[2:4])
	out.CountryCode = data[4]
	out.NumDescriptors = data[5]
	out.ReportDescType = data[6]
	out.ReportDescLen = binary.LittleEndian.Uint16(data[7:9])
	return true
}

// ReqState is a step of the class request machine.
type ReqState uint8

// Class request states.
const (
	ReqGetHIDDescriptor ReqState = iota
	ReqGetReportDescriptor
	ReqSetIdle
	ReqSetProtocol
	ReqDone
)

func (s ReqState) String() string {
	switch s {
	case ReqGetHIDDescriptor:
		return "get-hid-descriptor"
	case ReqGetReportDescriptor:
		return "get-report-descriptor"
	case ReqSetIdle:
		return "set-idle"
	case ReqSetProtocol:
		return "set-protocol"
	case ReqDone:
		return "done"
	default:
		return fmt.Sprintf("req(%d)", s)
	}
}

// State is a step of the report polling machine.
type State uint8

// Polling states.
const (
	StateIdle State = iota
	StateSync
	StateGetData
	StatePoll
	StateClearStall
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSync:
		return "sync"
	case StateGetData:
		return "get-data"
	case StatePoll:
		return "poll"
	case StateClearStall:
		return "clear-stall"
	default:
		return fmt.Sprintf("state(%d)", s)
	}
}

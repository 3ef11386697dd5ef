package cdc

import (
	"encoding/binary"
	"fmt"
)

// Interface codes matched by the class.
const (
	ClassCDC     = 0x02 // Communications
	ClassCDCData = 0x0A // CDC Data
	SubclassACM  = 0x02
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

// Control line bits of SET_CONTROL_LINE_STATE.
const (
	ControlLineDTR = 1 << 0
	ControlLineRTS = 1 << 1
)

// NotificationSerialState carries the UART state bits on the notification
// endpoint.
const NotificationSerialState = 0x20

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

// Sizes.
const (
	LineCodingSize  = 7
	SerialStateSize = 10

	// MaxPacketSize bounds the packet buffers of the bulk and notification
	// channels.
	MaxPacketSize = 64

	// RxBufferSize bounds received data not yet taken by Read.
	RxBufferSize = 1024

	// TxBufferSize bounds data queued by Send.
	TxBufferSize = 1024
)

// RetryLimit bounds the stalled or failed attempts of one class request.
const RetryLimit = 3

// LineCoding is the UART framing sent with SET_LINE_CODING.
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

func (lc LineCoding) String() string {
	parity := "NOEMS"[min(int(lc.Parity), 4)]
	stop := "1"
	switch lc.StopBits {
	case StopBits1_5:
		stop = "1.5"
	case StopBits2:
		stop = "2"
	}
	return fmt.Sprintf("%d %d%c%s", lc.BaudRate, lc.DataBits, parity, stop)
}

// ReqState is a step of the class request machine.
type ReqState uint8

// Class request states.
const (
	ReqSetLineCoding ReqState = iota
	ReqGetLineCoding
	ReqSetControlLineState
	ReqDone
)

func (s ReqState) String() string {
	switch s {
	case ReqSetLineCoding:
		return "set-line-coding"
	case ReqGetLineCoding:
		return "get-line-coding"
	case ReqSetControlLineState:
		return "set-control-line-state"
	case ReqDone:
		return "done"
	default:
		return fmt.Sprintf("req(%d)", s)
	}
}

// XferState is the position of the send or the receive machine.
type XferState uint8

// Transfer states.
const (
	XferIdle XferState = iota
	XferSend
	XferSendWait
	XferGet
	XferGetWait
	XferStalled
)

func (s XferState) String() string {
	switch s {
	case XferIdle:
		return "idle"
	case XferSend:
		return "send"
	case XferSendWait:
		return "send-wait"
	case XferGet:
		return "get"
	case XferGetWait:
		return "get-wait"
	case XferStalled:
		return "stalled"
	default:
		return fmt.Sprintf("xfer(%d)", s)
	}
}

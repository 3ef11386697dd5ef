package msc

import "fmt"

// Interface codes matched by the class.
const (
	ClassMSC         = 0x08 // Mass Storage Class
	SubclassSCSI     = 0x06 // SCSI transparent command set
	ProtocolBulkOnly = 0x50 // Bulk-Only Transport
)

// Class-specific requests.
const (
	RequestBulkOnlyReset = 0xFF
	RequestGetMaxLUN     = 0xFE
)

// Command Block Wrapper constants.
const (
	CBWSignature   = 0x43425355 // "USBC"
	CBWSize        = 31
	CBWFlagDataOut = 0x00
	CBWFlagDataIn  = 0x80
)

// Command Status Wrapper constants.
const (
	CSWSignature        = 0x53425355 // "USBS"
	CSWSize             = 13
	CSWStatusGood       = 0x00
	CSWStatusFailed     = 0x01
	CSWStatusPhaseError = 0x02
)

// SCSI operation codes issued by the class.
const (
	SCSITestUnitReady  = 0x00
	SCSIRequestSense   = 0x03
	SCSIInquiry        = 0x12
	SCSIModeSense6     = 0x1A
	SCSIReadCapacity10 = 0x25
	SCSIRead10         = 0x28
	SCSIWrite10        = 0x2A
)

// Data-stage lengths of the fixed-size commands.
const (
	requestSenseLength   = 18
	modeSense6Length     = 8
	readCapacity10Length = 8
)

// Retry budgets.
const (
	// StallRetryLimit bounds the control-error recoveries of one class request.
	StallRetryLimit = 3

	// ErrorRetryLimit bounds the failed SCSI commands before the session is
	// given up.
	ErrorRetryLimit = 10
)

// DefaultBlockSize is assumed until READ CAPACITY reports the real one.
const DefaultBlockSize = 512

// State is a step of the class machine run by Process.
type State uint8

// Class states.
const (
	StateTestUnitReady State = iota
	StateReadCapacity10
	StateModeSense6
	StateRequestSense
	StateApp
	StateUnrecovered
)

func (s State) String() string {
	switch s {
	case StateTestUnitReady:
		return "test-unit-ready"
	case StateReadCapacity10:
		return "read-capacity10"
	case StateModeSense6:
		return "mode-sense6"
	case StateRequestSense:
		return "request-sense"
	case StateApp:
		return "app"
	case StateUnrecovered:
		return "unrecovered"
	default:
		return fmt.Sprintf("msc(%d)", s)
	}
}

// ReqState is a step of the class request machine run by Request.
type ReqState uint8

// Class request states.
const (
	ReqBOTReset ReqState = iota
	ReqGetMaxLUN
	ReqCtrlError
	ReqDone
)

func (s ReqState) String() string {
	switch s {
	case ReqBOTReset:
		return "bot-reset"
	case ReqGetMaxLUN:
		return "get-max-lun"
	case ReqCtrlError:
		return "ctrl-error"
	case ReqDone:
		return "done"
	default:
		return fmt.Sprintf("req(%d)", s)
	}
}

// Status is the outcome of a polled BOT command.
type Status uint8

// BOT command outcomes.
const (
	StatusBusy Status = iota
	StatusOK
	StatusFail
	StatusPhaseError
)

func (s Status) String() string {
	switch s {
	case StatusBusy:
		return "busy"
	case StatusOK:
		return "ok"
	case StatusFail:
		return "fail"
	case StatusPhaseError:
		return "phase-error"
	default:
		return fmt.Sprintf("status(%d)", s)
	}
}

// botState is the position of the BOT transport within one command.
type botState uint8

const (
	botSendCBW botState = iota
	botSendCBWWait
	botDataIn
	botDataInWait
	botDataOut
	botDataOutWait
	botReceiveCSW
	botReceiveCSWWait
	botClearStall
)

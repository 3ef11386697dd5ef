package msc

import "fmt"

// Interface codes.
const (
	ClassMSC         = 0x08 // Mass Storage Class
	SubclassSCSI     = 0x06 // SCSI transparent command set
	ProtocolBulkOnly = 0x50 // Bulk-Only Transport
)

// Bulk-Only Transport class requests.
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

// SCSI operation codes.
const (
	SCSITestUnitReady        = 0x00
	SCSIRequestSense         = 0x03
	SCSIInquiry              = 0x12
	SCSIModeSense6           = 0x1A
	SCSIStartStopUnit        = 0x1B
	SCSIPreventAllowRemoval  = 0x1E
	SCSIReadFormatCapacities = 0x23
	SCSIReadCapacity10       = 0x25
	SCSIRead10               = 0x28
	SCSIWrite10              = 0x2A
	SCSIVerify10             = 0x2F
	SCSISynchronizeCache10   = 0x35
	SCSIServiceActionIn16    = 0x9E

	// ServiceActionReadCapacity16 selects READ CAPACITY(16) under
	// SERVICE ACTION IN(16).
	ServiceActionReadCapacity16 = 0x10
)

// Sense keys.
const (
	SenseNoSense        = 0x00
	SenseNotReady       = 0x02
	SenseMediumError    = 0x03
	SenseHardwareError  = 0x04
	SenseIllegalRequest = 0x05
	SenseUnitAttention  = 0x06
	SenseDataProtect    = 0x07
)

// Additional sense codes.
const (
	ASCNoAdditionalInfo  = 0x00
	ASCWriteFault        = 0x03
	ASCUnrecoveredRead   = 0x11
	ASCInvalidCommand    = 0x20
	ASCLBAOutOfRange     = 0x21
	ASCInvalidFieldInCDB = 0x24
	ASCWriteProtected    = 0x27
	ASCMediumNotPresent  = 0x3A
)

// Response sizes.
const (
	InquiryLength         = 36
	RequestSenseLength    = 18
	ReadCapacity10Length  = 8
	ReadCapacity16Length  = 32
	ModeSense6Length      = 4
	FormatCapacityLength  = 12
	modeSenseWriteProtect = 0x80
)

// DefaultBlockSize is the block size of the storage backends unless set.
const DefaultBlockSize = 512

// MediaPacket is the size of one storage access during READ and WRITE.
// Transfers longer than this are split.
const MediaPacket = 4096

// Default interface layout.
const (
	DefaultInEndpoint    = 0x81
	DefaultOutEndpoint   = 0x01
	DefaultMaxPacketSize = 64
)

// State is the phase of the Bulk-Only transport.
type State uint8

// Transport phases.
const (
	StateIdle     State = iota // waiting for a CBW
	StateDataOut               // receiving WRITE data
	StateDataIn                // sending READ data, more to come
	StateLastData              // sending the last data of the command
	StateStatus                // CSW in flight or pending a cleared stall
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateDataOut:
		return "data-out"
	case StateDataIn:
		return "data-in"
	case StateLastData:
		return "last-data"
	case StateStatus:
		return "status"
	default:
		return fmt.Sprintf("bot(%d)", s)
	}
}

package host

import "fmt"

// State is the state of the host session machine.
type State uint8

// Host session states.
const (
	StateIdle State = iota
	StateDeviceAttached
	StateDeviceDetached
	StateEnum
	StateUserInput
	StateClassRequest
	StateClass
	StateSuspend
	StateWakeup
	StateError
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateDeviceAttached:
		return "device-attached"
	case StateDeviceDetached:
		return "device-detached"
	case StateEnum:
		return "enum"
	case StateUserInput:
		return "user-input"
	case StateClassRequest:
		return "class-request"
	case StateClass:
		return "class"
	case StateSuspend:
		return "suspend"
	case StateWakeup:
		return "wakeup"
	case StateError:
		return "error"
	default:
		return fmt.Sprintf("state(%d)", s)
	}
}

// EnumState is a step of the enumeration sequence.
type EnumState uint8

// Enumeration steps, in the order they run.
const (
	EnumIdle EnumState = iota
	EnumGetDeviceDescriptor
	EnumSetAddress
	EnumGetFullDeviceDescriptor
	EnumGetConfigurationDescriptor
	EnumGetFullConfigurationDescriptor
	EnumGetManufacturerString
	EnumGetProductString
	EnumGetSerialNumberString
	EnumSetConfiguration
	EnumConfigured
)

// String returns the step name.
func (s EnumState) String() string {
	switch s {
	case EnumIdle:
		return "idle"
	case EnumGetDeviceDescriptor:
		return "get-device-descriptor"
	case EnumSetAddress:
		return "set-address"
	case EnumGetFullDeviceDescriptor:
		return "get-full-device-descriptor"
	case EnumGetConfigurationDescriptor:
		return "get-configuration-descriptor"
	case EnumGetFullConfigurationDescriptor:
		return "get-full-configuration-descriptor"
	case EnumGetManufacturerString:
		return "get-manufacturer-string"
	case EnumGetProductString:
		return "get-product-string"
	case EnumGetSerialNumberString:
		return "get-serial-number-string"
	case EnumSetConfiguration:
		return "set-configuration"
	case EnumConfigured:
		return "configured"
	default:
		return fmt.Sprintf("enum(%d)", s)
	}
}

// XferState tracks whether a polled control request has been issued.
type XferState uint8

// Request issue states.
const (
	XferStart   XferState = iota // next poll builds and issues the request
	XferWaiting                  // request in flight, polls drive the control machine
)

// CtrlState is the state reported by the control-transfer machine.
type CtrlState uint8

// Control-transfer states. The phase states report the phase in flight;
// Complete, Stall and Error are terminal for one request.
const (
	CtrlSetup CtrlState = iota
	CtrlDataOut
	CtrlDataIn
	CtrlStatusOut
	CtrlStatusIn
	CtrlComplete
	CtrlStall
	CtrlError
)

// String returns the state name.
func (s CtrlState) String() string {
	switch s {
	case CtrlSetup:
		return "SETUP"
	case CtrlDataOut:
		return "DATA_OUT"
	case CtrlDataIn:
		return "DATA_IN"
	case CtrlStatusOut:
		return "STATUS_OUT"
	case CtrlStatusIn:
		return "STATUS_IN"
	case CtrlComplete:
		return "COMPLETE"
	case CtrlStall:
		return "STALL"
	case CtrlError:
		return "ERROR"
	default:
		return fmt.Sprintf("ctrl(%d)", s)
	}
}

// Done reports whether s ends a control request.
func (s CtrlState) Done() bool {
	return s == CtrlComplete || s == CtrlStall || s == CtrlError
}

// ctrlPhase is the internal position of the control machine.
type ctrlPhase uint8

const (
	phaseSetup ctrlPhase = iota
	phaseDataOut
	phaseDataIn
	phaseStatusOut
	phaseStatusIn
	phaseWaitURB
)

// URBStatus is the completion status of one hardware transfer.
type URBStatus uint8

// URB states.
const (
	URBIdle URBStatus = iota
	URBNotReady
	URBStall
	URBError
	URBPing
	URBOK
)

// String returns the status name.
func (s URBStatus) String() string {
	switch s {
	case URBIdle:
		return "idle"
	case URBNotReady:
		return "not-ready"
	case URBStall:
		return "stall"
	case URBError:
		return "error"
	case URBPing:
		return "ping"
	case URBOK:
		return "ok"
	default:
		return fmt.Sprintf("urb(%d)", s)
	}
}

// PipeState is the raw channel condition recorded before a halt.
type PipeState uint8

// Pipe states.
const (
	PipeOK PipeState = iota
	PipeHalted
	PipeNAK
	PipeNYET
	PipeStall
	PipeTransactionError
	PipeBabbleError
	PipeToggleError
)

// String returns the state name.
func (s PipeState) String() string {
	switch s {
	case PipeOK:
		return "ok"
	case PipeHalted:
		return "halted"
	case PipeNAK:
		return "nak"
	case PipeNYET:
		return "nyet"
	case PipeStall:
		return "stall"
	case PipeTransactionError:
		return "transaction-error"
	case PipeBabbleError:
		return "babble"
	case PipeToggleError:
		return "toggle-error"
	default:
		return fmt.Sprintf("pipe(%d)", s)
	}
}

// Limits and fixed parameters of the host session.
const (
	// MaxInterfaces is the number of interface slots parsed from a configuration.
	MaxInterfaces = 10

	// MaxEndpoints is the number of endpoint slots per interface.
	MaxEndpoints = 5

	// ConfigBufferSize bounds the configuration descriptor read.
	ConfigBufferSize = 512

	// StringBufferSize bounds a string descriptor read.
	StringBufferSize = 255

	// DefaultAddress is the address of a device after bus reset.
	DefaultAddress = 0

	// ConfiguredAddress is the address assigned during enumeration.
	ConfiguredAddress = 1

	// DefaultMaxPacketSize0 is the EP0 packet size used before the device
	// descriptor is known.
	DefaultMaxPacketSize0 = 64

	// CtrlErrorRetries is how often a control request is restarted after a
	// transaction error before CtrlError is reported.
	CtrlErrorRetries = 2

	// NoChannel is returned by AllocChannel when the pool is exhausted and
	// by ChannelForEndpoint when no channel is bound to the endpoint.
	NoChannel = -1
)

// Endpoint transfer types.
const (
	EndpointTypeControl     = 0x00 // Control transfer
	EndpointTypeIsochronous = 0x01 // Isochronous transfer
	EndpointTypeBulk        = 0x02 // Bulk transfer
	EndpointTypeInterrupt   = 0x03 // Interrupt transfer
)

// Endpoint directions.
const (
	EndpointDirectionOut = 0x00 // Host to device
	EndpointDirectionIn  = 0x80 // Device to host
)

// Descriptor types.
const (
	DescriptorTypeDevice               = 0x01
	DescriptorTypeConfiguration        = 0x02
	DescriptorTypeString               = 0x03
	DescriptorTypeInterface            = 0x04
	DescriptorTypeEndpoint             = 0x05
	DescriptorTypeDeviceQualifier      = 0x06
	DescriptorTypeOtherSpeedConfig     = 0x07
	DescriptorTypeInterfacePower       = 0x08
	DescriptorTypeInterfaceAssociation = 0x0B
)

// Standard request codes.
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

// Request types (bmRequestType).
const (
	RequestTypeOut       = 0x00 // Host to device
	RequestTypeIn        = 0x80 // Device to host
	RequestTypeStandard  = 0x00 // Standard request
	RequestTypeClass     = 0x20 // Class-specific request
	RequestTypeVendor    = 0x40 // Vendor-specific request
	RequestTypeDevice    = 0x00 // Recipient: device
	RequestTypeInterface = 0x01 // Recipient: interface
	RequestTypeEndpoint  = 0x02 // Recipient: endpoint
	RequestTypeOther     = 0x03 // Recipient: other
)

// Feature selectors.
const (
	FeatureEndpointHalt       = 0x00
	FeatureDeviceRemoteWakeup = 0x01
	FeatureTestMode           = 0x02
)

// LangIDUSEnglish is the language ID used for string requests.
const LangIDUSEnglish = 0x0409

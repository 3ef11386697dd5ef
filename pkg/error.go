package pkg

import "github.com/pkg/errors"

// Bus and protocol errors.
var (
	// ErrStall indicates the function answered with a STALL handshake.
	ErrStall = errors.New("endpoint stalled")

	// ErrNAK indicates the function is not ready (NAK or NYET).
	ErrNAK = errors.New("NAK received")

	// ErrTransaction indicates a bus-level transaction error (timeout, CRC, bit stuffing).
	ErrTransaction = errors.New("transaction error")

	// ErrBabble indicates the function transmitted past the packet boundary.
	ErrBabble = errors.New("babble detected")

	// ErrDataToggle indicates a DATA0/DATA1 sequence mismatch.
	ErrDataToggle = errors.New("data toggle error")

	// ErrFrameOverrun indicates a periodic transfer missed its frame.
	ErrFrameOverrun = errors.New("frame overrun")

	// ErrTimeout indicates a polled operation exceeded its step budget.
	ErrTimeout = errors.New("operation timed out")
)

// Resource and state errors.
var (
	// ErrNoChannel indicates every host channel is allocated.
	ErrNoChannel = errors.New("no free host channel")

	// ErrInvalidChannel indicates a channel number outside the pool.
	ErrInvalidChannel = errors.New("invalid channel")

	// ErrInvalidEndpoint indicates an endpoint number outside the core's range.
	ErrInvalidEndpoint = errors.New("invalid endpoint")

	// ErrNotConfigured indicates the device has not been configured.
	ErrNotConfigured = errors.New("device not configured")

	// ErrDetached indicates the device left the bus during an operation.
	ErrDetached = errors.New("device detached")

	// ErrNotSupported indicates the attached device cannot be driven by the class.
	ErrNotSupported = errors.New("device not supported")

	// ErrUnrecovered indicates a class exhausted its retry budget.
	ErrUnrecovered = errors.New("unrecovered error")

	// ErrInvalidDescriptor indicates a malformed descriptor.
	ErrInvalidDescriptor = errors.New("invalid descriptor")

	// ErrSetupPacketTooShort indicates fewer than 8 setup bytes.
	ErrSetupPacketTooShort = errors.New("setup packet too short")

	// ErrBufferTooSmall indicates the provided buffer is too small.
	ErrBufferTooSmall = errors.New("buffer too small")

	// ErrFIFOFull indicates a transmit FIFO without room for the packet.
	ErrFIFOFull = errors.New("FIFO full")

	// ErrInvalidParameter indicates an invalid parameter was provided.
	ErrInvalidParameter = errors.New("invalid parameter")
)

// TransferStatus is the outcome of one transfer as reported to class code.
type TransferStatus int

// Transfer status values.
const (
	TransferStatusSuccess    TransferStatus = iota // Transfer completed successfully
	TransferStatusNotReady                         // NAK/NYET, retry later
	TransferStatusStall                            // Endpoint stalled
	TransferStatusError                            // Transaction, babble or toggle error
	TransferStatusTimeout                          // Step budget exhausted
	TransferStatusDetached                         // Device left the bus
)

// String returns a string representation of the transfer status.
func (s TransferStatus) String() string {
	switch s {
	case TransferStatusSuccess:
		return "success"
	case TransferStatusNotReady:
		return "not-ready"
	case TransferStatusStall:
		return "stall"
	case TransferStatusError:
		return "error"
	case TransferStatusTimeout:
		return "timeout"
	case TransferStatusDetached:
		return "detached"
	default:
		return "unknown"
	}
}

// Err returns the sentinel error for the status, or nil on success.
func (s TransferStatus) Err() error {
	switch s {
	case TransferStatusSuccess:
		return nil
	case TransferStatusNotReady:
		return ErrNAK
	case TransferStatusStall:
		return ErrStall
	case TransferStatusTimeout:
		return ErrTimeout
	case TransferStatusDetached:
		return ErrDetached
	default:
		return ErrTransaction
	}
}

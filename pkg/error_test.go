package pkg

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestTransferStatus_String(t *testing.T) {
	tests := []struct {
		status TransferStatus
		want   string
	}{
		{TransferStatusSuccess, "success"},
		{TransferStatusNotReady, "not-ready"},
		{TransferStatusStall, "stall"},
		{TransferStatusError, "error"},
		{TransferStatusTimeout, "timeout"},
		{TransferStatusDetached, "detached"},
		{TransferStatus(99), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.status.String())
		})
	}
}

func TestTransferStatus_Err(t *testing.T) {
	tests := []struct {
		status  TransferStatus
		wantErr error
	}{
		{TransferStatusSuccess, nil},
		{TransferStatusNotReady, ErrNAK},
		{TransferStatusStall, ErrStall},
		{TransferStatusError, ErrTransaction},
		{TransferStatusTimeout, ErrTimeout},
		{TransferStatusDetached, ErrDetached},
	}

	for _, tt := range tests {
		t.Run(tt.status.String(), func(t *testing.T) {
			err := tt.status.Err()
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestSentinelErrorsDistinct(t *testing.T) {
	errs := []error{
		ErrStall, ErrNAK, ErrTransaction, ErrBabble, ErrDataToggle,
		ErrFrameOverrun, ErrTimeout, ErrNoChannel, ErrInvalidChannel,
		ErrInvalidEndpoint, ErrNotConfigured, ErrDetached, ErrNotSupported,
		ErrUnrecovered, ErrInvalidDescriptor, ErrSetupPacketTooShort,
		ErrBufferTooSmall, ErrFIFOFull, ErrInvalidParameter,
	}

	for i, err1 := range errs {
		for j, err2 := range errs {
			if i != j {
				assert.NotErrorIs(t, err1, err2, "errors %d and %d", i, j)
			}
		}
	}
}

func TestWrappedSentinel(t *testing.T) {
	err := errors.Wrapf(ErrNoChannel, "alloc endpoint 0x%02x", 0x81)

	assert.ErrorIs(t, err, ErrNoChannel)
	assert.Equal(t, ErrNoChannel, errors.Cause(err))
	assert.Equal(t, "alloc endpoint 0x81: no free host channel", err.Error())
}

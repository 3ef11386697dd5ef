package hal

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/apm32sdk/usbotg/otg"
)

// =============================================================================
// Controller Tests
// =============================================================================

var _ Controller = (*otg.Core)(nil)

// =============================================================================
// DeviceStatus Tests
// =============================================================================

func TestReadDeviceStatus(t *testing.T) {
	tests := []struct {
		name string
		dsts uint32
		want DeviceStatus
		full bool
	}{
		{
			name: "power on",
			dsts: 0,
			want: DeviceStatus{Speed: otg.EnumSpeedHigh},
		},
		{
			name: "full speed frame 5",
			dsts: otg.EnumSpeedFull48<<1 | 5<<8,
			want: DeviceStatus{Speed: otg.EnumSpeedFull48, Frame: 5},
			full: true,
		},
		{
			name: "suspended low speed",
			dsts: otg.DstsSUSSTS | otg.EnumSpeedLow<<1,
			want: DeviceStatus{Suspended: true, Speed: otg.EnumSpeedLow},
		},
		{
			name: "full speed on 30 MHz clock",
			dsts: otg.EnumSpeedFull30 << 1,
			want: DeviceStatus{Speed: otg.EnumSpeedFull30},
			full: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var r otg.Registers
			r.D.DSTS = tt.dsts
			got := ReadDeviceStatus(&r)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.full, got.FullSpeed())
		})
	}
}

func TestReadDeviceStatusAfterBusReset(t *testing.T) {
	core := otg.New(otg.WithMode(otg.ModeDevice))
	core.BusReset(otg.SpeedFull)
	st := ReadDeviceStatus(core.Registers())
	assert.True(t, st.FullSpeed())
	assert.False(t, st.Suspended)
}

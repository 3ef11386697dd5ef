package device

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apm32sdk/usbotg/otg"
)

// =============================================================================
// Enumeration
// =============================================================================

func TestDevice_Enumeration(t *testing.T) {
	b := newBench(t, nil)
	b.reset()

	r := b.control(getDescriptor(DescriptorTypeDevice, 0, 64), nil)
	require.Equal(t, otg.HandshakeACK, r.hs)
	assert.Equal(t, testDeviceDescriptor(), r.data)

	r = b.control(standardOut(RecipientDevice, RequestSetAddress, 5, 0), nil)
	require.Equal(t, otg.HandshakeACK, r.hs)
	b.addr = 5
	assert.Equal(t, StateAddress, b.dev.State())
	assert.Equal(t, uint8(5), b.dev.Address())

	cfg := b.dev.Descriptors().Configuration
	r = b.control(getDescriptor(DescriptorTypeConfiguration, 0, ConfigurationDescriptorSize), nil)
	require.Equal(t, otg.HandshakeACK, r.hs)
	assert.Equal(t, cfg[:ConfigurationDescriptorSize], r.data)

	r = b.control(getDescriptor(DescriptorTypeConfiguration, 0, uint16(len(cfg))), nil)
	require.Equal(t, otg.HandshakeACK, r.hs)
	assert.Equal(t, cfg, r.data)

	r = b.control(getDescriptor(DescriptorTypeString, 2, 255), nil)
	require.Equal(t, otg.HandshakeACK, r.hs)
	assert.Equal(t, StringDescriptor("APM32 Test"), r.data)

	r = b.control(standardIn(RecipientDevice, RequestGetConfiguration, 0, 1), nil)
	require.Equal(t, otg.HandshakeACK, r.hs)
	assert.Equal(t, []byte{0}, r.data, "address state reports configuration 0")

	r = b.control(standardOut(RecipientDevice, RequestSetConfiguration, 1, 0), nil)
	require.Equal(t, otg.HandshakeACK, r.hs)
	assert.Equal(t, StateConfigured, b.dev.State())
	assert.Equal(t, 1, b.cls.configured)
	assert.True(t, b.dev.Endpoint(0x81).Active())
	assert.True(t, b.dev.Endpoint(0x01).Active())

	r = b.control(standardIn(RecipientDevice, RequestGetConfiguration, 0, 1), nil)
	require.Equal(t, otg.HandshakeACK, r.hs)
	assert.Equal(t, []byte{1}, r.data)
	assert.Equal(t, CtrlSetup, b.dev.CtrlState())

	r = b.control(standardOut(RecipientDevice, RequestSetConfiguration, 0, 0), nil)
	require.Equal(t, otg.HandshakeACK, r.hs)
	assert.Equal(t, StateAddress, b.dev.State())
	assert.Empty(t, b.cls.exceptions)
}

// =============================================================================
// GET_DESCRIPTOR
// =============================================================================

func TestDevice_GetDescriptor(t *testing.T) {
	cfgLen := len(testConfig(ConfigAttrSelfPowered|ConfigAttrRemoteWakeup, 0))
	tests := []struct {
		name    string
		req     SetupPacket
		wantLen int
		wantHS  otg.Handshake
	}{
		{"device, short request", getDescriptor(DescriptorTypeDevice, 0, 8), 8, otg.HandshakeACK},
		{"device, long request", getDescriptor(DescriptorTypeDevice, 0, 255), DeviceDescriptorSize, otg.HandshakeACK},
		{"configuration header", getDescriptor(DescriptorTypeConfiguration, 0, 9), 9, otg.HandshakeACK},
		{"configuration, long request", getDescriptor(DescriptorTypeConfiguration, 0, 255), cfgLen, otg.HandshakeACK},
		{"language IDs", getDescriptor(DescriptorTypeString, 0, 255), 4, otg.HandshakeACK},
		{"missing string", getDescriptor(DescriptorTypeString, 9, 255), 0, otg.HandshakeSTALL},
		{"string out of range", getDescriptor(DescriptorTypeString, 200, 255), 0, otg.HandshakeSTALL},
		{"qualifier at full speed", getDescriptor(DescriptorTypeDeviceQualifier, 0, 10), 0, otg.HandshakeSTALL},
		{"other speed", getDescriptor(DescriptorTypeOtherSpeedConfig, 0, 9), 0, otg.HandshakeSTALL},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newBench(t, nil)
			b.reset()
			r := b.control(tt.req, nil)
			assert.Equal(t, tt.wantHS, r.hs)
			assert.Len(t, r.data, tt.wantLen)
		})
	}
}

// reportHooks serves a HID report descriptor through the GetDescriptor
// hook.
type reportHooks struct {
	NopHooks
	report []byte
}

func (h *reportHooks) GetDescriptor(d *Device, req SetupPacket) bool {
	if req.DescriptorType() != DescriptorTypeHIDReport {
		return false
	}
	d.CtrlInData(h.report[:min(len(h.report), int(req.Length))])
	return true
}

func TestDevice_GetDescriptorHook(t *testing.T) {
	hooks := &reportHooks{report: []byte{0x05, 0x01, 0x09, 0x02, 0xA1, 0x01, 0xC0}}
	b := newBench(t, nil, WithStandardHooks(hooks))
	b.reset()

	req := getDescriptor(DescriptorTypeHIDReport, 0, 64)
	req.RequestType = RequestDirIn | RequestTypeStandard | RecipientInterface
	r := b.control(req, nil)
	require.Equal(t, otg.HandshakeACK, r.hs)
	assert.Equal(t, hooks.report, r.data)

	r = b.control(getDescriptor(DescriptorTypeOtherSpeedConfig, 0, 9), nil)
	assert.Equal(t, otg.HandshakeSTALL, r.hs)
}

func TestDevice_ZeroLengthPacket(t *testing.T) {
	tests := []struct {
		name        string
		pad         int
		length      uint16
		wantLen     int
		wantPackets int
	}{
		{"short of a packet", 0, 255, 32, 1},
		{"exact packet, host wants more", 32, 255, 64, 2},
		{"exact packet, host wants exactly that", 32, 64, 64, 1},
		{"two packets, host wants more", 96, 255, 128, 3},
		{"packet and a half", 64, 255, 96, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			desc := testDescriptors()
			desc.Configuration = testConfig(ConfigAttrSelfPowered, tt.pad)
			b := newBench(t, desc)
			b.reset()

			r := b.control(getDescriptor(DescriptorTypeConfiguration, 0, tt.length), nil)
			require.Equal(t, otg.HandshakeACK, r.hs)
			assert.Len(t, r.data, tt.wantLen)
			assert.Equal(t, tt.wantPackets, r.packets)
			assert.Equal(t, CtrlSetup, b.dev.CtrlState())
		})
	}
}

// =============================================================================
// Address and configuration
// =============================================================================

func TestDevice_SetAddress(t *testing.T) {
	tests := []struct {
		name      string
		req       SetupPacket
		wantHS    otg.Handshake
		wantState State
	}{
		{"address 5", standardOut(RecipientDevice, RequestSetAddress, 5, 0), otg.HandshakeACK, StateAddress},
		{"address 127", standardOut(RecipientDevice, RequestSetAddress, 127, 0), otg.HandshakeACK, StateAddress},
		{"address 0", standardOut(RecipientDevice, RequestSetAddress, 0, 0), otg.HandshakeACK, StateDefault},
		{"address 128", standardOut(RecipientDevice, RequestSetAddress, 128, 0), otg.HandshakeSTALL, StateDefault},
		{"interface recipient", standardOut(RecipientInterface, RequestSetAddress, 5, 0), otg.HandshakeSTALL, StateDefault},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newBench(t, nil)
			b.reset()
			r := b.control(tt.req, nil)
			assert.Equal(t, tt.wantHS, r.hs)
			assert.Equal(t, tt.wantState, b.dev.State())
			if tt.wantHS == otg.HandshakeSTALL {
				assert.Len(t, b.cls.exceptions, 1)
			}
		})
	}
}

func TestDevice_SetAddressWhileConfigured(t *testing.T) {
	b := newBench(t, nil)
	b.enumerate(t)

	r := b.control(standardOut(RecipientDevice, RequestSetAddress, 9, 0), nil)
	assert.Equal(t, otg.HandshakeSTALL, r.hs)
	assert.Equal(t, StateConfigured, b.dev.State())
	assert.Equal(t, uint8(5), b.dev.Address())
	require.Len(t, b.cls.exceptions, 1)
	assert.Equal(t, uint8(RequestSetAddress), b.cls.exceptions[0].Request)

	// the stall ends with the next SETUP
	r = b.control(standardIn(RecipientDevice, RequestGetConfiguration, 0, 1), nil)
	require.Equal(t, otg.HandshakeACK, r.hs)
	assert.Equal(t, []byte{1}, r.data)
}

func TestDevice_SetConfiguration(t *testing.T) {
	t.Run("in default state", func(t *testing.T) {
		b := newBench(t, nil)
		b.reset()
		r := b.control(standardOut(RecipientDevice, RequestSetConfiguration, 1, 0), nil)
		assert.Equal(t, otg.HandshakeSTALL, r.hs)
		assert.Equal(t, StateDefault, b.dev.State())
	})

	t.Run("value above the configuration count", func(t *testing.T) {
		b := newBench(t, nil)
		b.enumerate(t)
		r := b.control(standardOut(RecipientDevice, RequestSetConfiguration, 2, 0), nil)
		assert.Equal(t, otg.HandshakeSTALL, r.hs)
		assert.Equal(t, uint8(1), b.dev.Configuration())
	})

	t.Run("second configuration allowed", func(t *testing.T) {
		b := newBench(t, nil, WithConfigurationCount(2))
		b.enumerate(t)
		r := b.control(standardOut(RecipientDevice, RequestSetConfiguration, 2, 0), nil)
		assert.Equal(t, otg.HandshakeACK, r.hs)
		assert.Equal(t, uint8(2), b.dev.Configuration())
	})
}

// =============================================================================
// Status, features and interfaces
// =============================================================================

func TestDevice_GetStatus(t *testing.T) {
	tests := []struct {
		name  string
		attrs uint8
		setup func(b *bench)
		req   SetupPacket
		want  []byte
	}{
		{
			name:  "self-powered with remote wakeup",
			attrs: ConfigAttrSelfPowered | ConfigAttrRemoteWakeup,
			req:   standardIn(RecipientDevice, RequestGetStatus, 0, 2),
			want:  []byte{0x03, 0x00},
		},
		{
			name: "bus-powered",
			req:  standardIn(RecipientDevice, RequestGetStatus, 0, 2),
			want: []byte{0x00, 0x00},
		},
		{
			name:  "remote wakeup enabled by the host",
			setup: func(b *bench) { b.control(standardOut(RecipientDevice, RequestSetFeature, FeatureRemoteWakeup, 0), nil) },
			req:   standardIn(RecipientDevice, RequestGetStatus, 0, 2),
			want:  []byte{0x02, 0x00},
		},
		{
			name: "interface",
			req:  standardIn(RecipientInterface, RequestGetStatus, 0, 2),
			want: []byte{0x00, 0x00},
		},
		{
			name:  "halted endpoint",
			setup: func(b *bench) { b.dev.SetStall(0x81) },
			req:   standardIn(RecipientEndpoint, RequestGetStatus, 0x81, 2),
			want:  []byte{0x01, 0x00},
		},
		{
			name: "running endpoint",
			req:  standardIn(RecipientEndpoint, RequestGetStatus, 0x01, 2),
			want: []byte{0x00, 0x00},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			desc := testDescriptors()
			desc.Configuration = testConfig(tt.attrs, 0)
			b := newBench(t, desc)
			b.enumerate(t)
			if tt.setup != nil {
				tt.setup(b)
			}
			r := b.control(tt.req, nil)
			require.Equal(t, otg.HandshakeACK, r.hs)
			assert.Equal(t, tt.want, r.data)
		})
	}

	t.Run("other recipient", func(t *testing.T) {
		b := newBench(t, nil)
		b.enumerate(t)
		r := b.control(standardIn(RecipientOther, RequestGetStatus, 0, 2), nil)
		assert.Equal(t, otg.HandshakeSTALL, r.hs)
	})
}

func TestDevice_EndpointHalt(t *testing.T) {
	t.Run("applied while unconfigured", func(t *testing.T) {
		b := newBench(t, nil)
		b.reset()
		r := b.control(standardOut(RecipientEndpoint, RequestSetFeature, FeatureEndpointHalt, 0x81), nil)
		require.Equal(t, otg.HandshakeACK, r.hs)
		assert.True(t, b.dev.EndpointStalled(0x81))
		assert.Equal(t, 1, b.cls.sets)

		r = b.control(standardOut(RecipientEndpoint, RequestClearFeature, FeatureEndpointHalt, 0x81), nil)
		require.Equal(t, otg.HandshakeACK, r.hs)
		assert.False(t, b.dev.EndpointStalled(0x81))
		assert.Equal(t, 1, b.cls.clears)
	})

	t.Run("left to the hooks while configured", func(t *testing.T) {
		b := newBench(t, nil)
		b.enumerate(t)
		r := b.control(standardOut(RecipientEndpoint, RequestSetFeature, FeatureEndpointHalt, 0x81), nil)
		require.Equal(t, otg.HandshakeACK, r.hs)
		assert.False(t, b.dev.EndpointStalled(0x81))
		assert.Equal(t, 1, b.cls.sets)

		b.dev.SetStall(0x01)
		r = b.control(standardOut(RecipientEndpoint, RequestClearFeature, FeatureEndpointHalt, 0x01), nil)
		require.Equal(t, otg.HandshakeACK, r.hs)
		assert.True(t, b.dev.EndpointStalled(0x01))
		assert.Equal(t, 1, b.cls.clears)
	})

	t.Run("endpoint out of range", func(t *testing.T) {
		b := newBench(t, nil)
		b.reset()
		r := b.control(standardOut(RecipientEndpoint, RequestSetFeature, FeatureEndpointHalt, 0x8F), nil)
		assert.Equal(t, otg.HandshakeSTALL, r.hs)
		assert.Len(t, b.cls.exceptions, 1)
	})
}

func TestDevice_TestMode(t *testing.T) {
	b := newBench(t, nil)
	b.enumerate(t)

	r := b.control(standardOut(RecipientDevice, RequestSetFeature, FeatureTestMode, TestModePacket<<8), nil)
	require.Equal(t, otg.HandshakeACK, r.hs)
	assert.Equal(t, uint8(TestModePacket), b.dev.TestMode())

	r = b.control(standardOut(RecipientDevice, RequestSetFeature, FeatureTestMode, 7<<8), nil)
	assert.Equal(t, otg.HandshakeSTALL, r.hs)
}

func TestDevice_Interface(t *testing.T) {
	b := newBench(t, nil)
	b.reset()

	r := b.control(standardIn(RecipientInterface, RequestGetInterface, 0, 1), nil)
	assert.Equal(t, otg.HandshakeSTALL, r.hs, "not configured")

	b.enumerate(t)
	r = b.control(standardOut(RecipientInterface, RequestSetInterface, 1, 0), nil)
	require.Equal(t, otg.HandshakeACK, r.hs)
	assert.Equal(t, uint8(0), b.dev.Interface())
	assert.Equal(t, uint8(1), b.dev.AlternateSetting())

	r = b.control(standardIn(RecipientInterface, RequestGetInterface, 0, 1), nil)
	require.Equal(t, otg.HandshakeACK, r.hs)
	assert.Equal(t, []byte{1}, r.data)

	r = b.control(standardOut(RecipientDevice, RequestSetInterface, 1, 0), nil)
	assert.Equal(t, otg.HandshakeSTALL, r.hs)
}

func TestDevice_RejectedRequests(t *testing.T) {
	tests := []struct {
		name          string
		req           SetupPacket
		wantException bool
	}{
		{"unknown standard request", standardOut(RecipientDevice, 0x02, 0, 0), false},
		{"synch frame", standardIn(RecipientEndpoint, RequestSynchFrame, 0x81, 2), false},
		{"set descriptor without hook", standardOut(RecipientDevice, RequestSetDescriptor, 0x0100, 0), true},
		{"vendor request", SetupPacket{RequestType: RequestTypeVendor, Request: 0x01}, false},
		{"reserved type", SetupPacket{RequestType: RequestTypeMask, Request: 0x01}, false},
		{"unknown class request", SetupPacket{RequestType: RequestTypeClass | RecipientInterface, Request: 0x7F}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newBench(t, nil)
			b.enumerate(t)
			r := b.control(tt.req, nil)
			assert.Equal(t, otg.HandshakeSTALL, r.hs)
			assert.Equal(t, tt.wantException, len(b.cls.exceptions) > 0)
			assert.Equal(t, StateConfigured, b.dev.State())
		})
	}
}

// =============================================================================
// Class requests
// =============================================================================

func TestDevice_ClassControlWrite(t *testing.T) {
	b := newBench(t, nil)
	b.enumerate(t)

	payload := make([]byte, 70)
	for i := range payload {
		payload[i] = byte(i + 1)
	}
	req := SetupPacket{
		RequestType: RequestTypeClass | RecipientInterface,
		Request:     testRequestWrite,
		Length:      uint16(len(payload)),
	}
	r := b.control(req, payload)
	require.Equal(t, otg.HandshakeACK, r.hs)
	assert.Equal(t, 2, r.packets)
	assert.Equal(t, payload, b.cls.data[:len(payload)])
	assert.Equal(t, len(payload), b.cls.received)
	require.Len(t, b.cls.setups, 1)
	assert.Equal(t, req, b.cls.setups[0])
	assert.Equal(t, CtrlSetup, b.dev.CtrlState())
}

func TestDevice_ClassControlRead(t *testing.T) {
	b := newBench(t, nil)
	b.enumerate(t)
	for i := range b.cls.data {
		b.cls.data[i] = byte(0xA0 + i)
	}

	req := SetupPacket{
		RequestType: RequestDirIn | RequestTypeClass | RecipientInterface,
		Request:     testRequestRead,
		Length:      80,
	}
	r := b.control(req, nil)
	require.Equal(t, otg.HandshakeACK, r.hs)
	assert.Equal(t, b.cls.data[:80], r.data)
	assert.Equal(t, 1, b.cls.rxStatus)
}

func TestDevice_ClassControlReadEmpty(t *testing.T) {
	b := newBench(t, nil)
	b.enumerate(t)
	txStatus := b.cls.txStatus

	req := SetupPacket{
		RequestType: RequestDirIn | RequestTypeClass | RecipientInterface,
		Request:     testRequestEmpty,
		Length:      8,
	}
	require.Equal(t, otg.HandshakeACK, b.core.Setup(b.addr, req.Bytes()))
	b.service()
	assert.Equal(t, CtrlInData, b.dev.CtrlState())

	data, hs := b.in(0)
	require.Equal(t, otg.HandshakeACK, hs)
	assert.Empty(t, data)
	assert.Equal(t, CtrlOutStatus, b.dev.CtrlState(), "zero-length data stage moves to the OUT status stage")
	assert.Equal(t, 1, b.cls.rxStatus)

	require.Equal(t, otg.HandshakeACK, b.out(0, nil))
	assert.Equal(t, CtrlSetup, b.dev.CtrlState())
	assert.Equal(t, txStatus, b.cls.txStatus)
}

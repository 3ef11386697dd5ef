package hid

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apm32sdk/usbotg/device"
	"github.com/apm32sdk/usbotg/internal/sim"
	"github.com/apm32sdk/usbotg/otg"
	"github.com/apm32sdk/usbotg/pkg"
)

// =============================================================================
// Test function
// =============================================================================

type function struct {
	t  *testing.T
	p  *sim.TokenHost
	fn *Class
}

func newFunction(t *testing.T, fn *Class) *function {
	t.Helper()
	core := otg.New(otg.WithMode(otg.ModeDevice))
	dev := device.New(core, fn.Descriptors(0x314B, 0x5721, "Geehy", "HID", ""), fn, nil)
	f := &function{t: t, p: sim.NewTokenHost(core, dev), fn: fn}
	require.NoError(t, f.p.Enumerate(1))
	return f
}

func (f *function) dev() *device.Device { return f.p.Device() }

func classRequest(in bool, request uint8, value, length uint16) device.SetupPacket {
	req := device.SetupPacket{
		RequestType: device.RequestTypeClass | device.RecipientInterface,
		Request:     request,
		Value:       value,
		Length:      length,
	}
	if in {
		req.RequestType |= device.RequestDirIn
	}
	return req
}

func descriptorRequest(typ uint8, index, length uint16) device.SetupPacket {
	return device.SetupPacket{
		RequestType: device.RequestDirIn | device.RequestTypeStandard | device.RecipientInterface,
		Request:     device.RequestGetDescriptor,
		Value:       uint16(typ) << 8,
		Index:       index,
		Length:      length,
	}
}

// =============================================================================
// Reports
// =============================================================================

func TestKeyboardReport(t *testing.T) {
	var r KeyboardReport
	for k := uint8(KeyA); k < KeyA+6; k++ {
		require.True(t, r.Press(k))
	}
	assert.True(t, r.Press(KeyA), "a held key is already down")
	assert.False(t, r.Press(KeyEnter), "seventh key")

	r.Release(KeyA + 1)
	assert.Equal(t, [6]uint8{KeyA, KeyA + 2, KeyA + 3, KeyA + 4, KeyA + 5, KeyNone}, r.Keys)

	r.Modifiers = ModLeftShift
	assert.Equal(t, []byte{ModLeftShift, 0, KeyA, KeyA + 2, KeyA + 3, KeyA + 4, KeyA + 5, 0}, r.AppendTo(nil))
}

func TestMouseReport_AppendTo(t *testing.T) {
	r := MouseReport{Buttons: ButtonLeft | ButtonMiddle, X: -1, Y: 5, Wheel: -128}
	assert.Equal(t, []byte{0x05, 0xFF, 0x05, 0x80}, r.AppendTo(nil))
}

func TestKeycode(t *testing.T) {
	tests := []struct {
		r    rune
		code uint8
		mods uint8
	}{
		{r: 'a', code: KeyA},
		{r: 'z', code: KeyA + 25},
		{r: 'Q', code: KeyA + 16, mods: ModLeftShift},
		{r: '1', code: Key1},
		{r: '0', code: Key0},
		{r: '\n', code: KeyEnter},
		{r: ' ', code: KeySpace},
		{r: '~'},
	}
	for _, tt := range tests {
		t.Run(string(tt.r), func(t *testing.T) {
			code, mods, ok := Keycode(tt.r)
			if tt.code == 0 {
				assert.False(t, ok)
				return
			}
			assert.True(t, ok)
			assert.Equal(t, tt.code, code)
			assert.Equal(t, tt.mods, mods)
		})
	}
}

func TestDescriptor_AppendTo(t *testing.T) {
	d := Descriptor{Version: HIDVersion, CountryCode: 0, ReportLength: 63}
	b := d.AppendTo(nil)
	require.Len(t, b, DescriptorSize)
	assert.Equal(t, []byte{DescriptorSize, DescriptorTypeHID, 0x11, 0x01, 0, 1, DescriptorTypeReport}, b[:7])
	assert.Equal(t, uint16(63), binary.LittleEndian.Uint16(b[7:9]))
}

// =============================================================================
// Descriptors
// =============================================================================

func TestClass_ConfigurationDescriptor(t *testing.T) {
	fn := NewKeyboard(WithEndpoint(2, 16, 4), WithInterface(1))
	cfg := fn.Descriptors(1, 2, "", "", "").Configuration

	require.Len(t, cfg, device.ConfigurationDescriptorSize+device.InterfaceDescriptorSize+DescriptorSize+device.EndpointDescriptorSize)
	itf := cfg[device.ConfigurationDescriptorSize:]
	assert.Equal(t, []byte{1, 0, 1, ClassHID, SubclassBoot, ProtocolKeyboard}, itf[2:8])
	hd := itf[device.InterfaceDescriptorSize:]
	assert.Equal(t, uint8(DescriptorTypeHID), hd[1])
	assert.Equal(t, uint16(len(KeyboardReportDescriptor)), binary.LittleEndian.Uint16(hd[7:9]))
	ep := hd[DescriptorSize:]
	assert.Equal(t, []byte{0x82, device.EndpointTypeInterrupt, 16, 0, 4}, ep[2:7])
}

func TestClass_GetDescriptor(t *testing.T) {
	tests := []struct {
		name  string
		req   device.SetupPacket
		want  []byte
		stall bool
	}{
		{
			name: "hid",
			req:  descriptorRequest(DescriptorTypeHID, 0, DescriptorSize),
			want: (&Descriptor{Version: HIDVersion, ReportLength: uint16(len(MouseReportDescriptor))}).AppendTo(nil),
		},
		{
			name: "report",
			req:  descriptorRequest(DescriptorTypeReport, 0, 256),
			want: MouseReportDescriptor,
		},
		{
			name: "report cut to length",
			req:  descriptorRequest(DescriptorTypeReport, 0, 10),
			want: MouseReportDescriptor[:10],
		},
		{name: "other interface", req: descriptorRequest(DescriptorTypeReport, 1, 64), stall: true},
		{name: "physical", req: descriptorRequest(0x23, 0, 64), stall: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFunction(t, NewMouse())
			r := f.p.Control(tt.req, nil)
			if tt.stall {
				assert.ErrorIs(t, r.Err(), pkg.ErrStall)
				return
			}
			require.NoError(t, r.Err())
			assert.Equal(t, tt.want, r.Data)
		})
	}
}

// =============================================================================
// Class requests
// =============================================================================

func TestClass_IdleAndProtocol(t *testing.T) {
	f := newFunction(t, NewKeyboard())

	r := f.p.Control(classRequest(true, RequestGetProtocol, 0, 1), nil)
	require.NoError(t, r.Err())
	assert.Equal(t, []byte{ProtocolReport}, r.Data)

	require.NoError(t, f.p.Control(classRequest(false, RequestSetProtocol, ProtocolBoot, 0), nil).Err())
	assert.Equal(t, uint8(ProtocolBoot), f.fn.Protocol())
	r = f.p.Control(classRequest(true, RequestGetProtocol, 0, 1), nil)
	require.NoError(t, r.Err())
	assert.Equal(t, []byte{ProtocolBoot}, r.Data)

	require.NoError(t, f.p.Control(classRequest(false, RequestSetIdle, 125<<8, 0), nil).Err())
	assert.Equal(t, uint8(125), f.fn.IdleRate())
	r = f.p.Control(classRequest(true, RequestGetIdle, 0, 1), nil)
	require.NoError(t, r.Err())
	assert.Equal(t, []byte{125}, r.Data)

	// a bus reset returns to the report protocol
	require.NoError(t, f.p.Enumerate(2))
	assert.Equal(t, uint8(ProtocolReport), f.fn.Protocol())
	assert.Zero(t, f.fn.IdleRate())
}

func TestClass_RejectedRequests(t *testing.T) {
	tests := []struct {
		name string
		req  device.SetupPacket
	}{
		{name: "bad protocol", req: classRequest(false, RequestSetProtocol, 2, 0)},
		{name: "get feature report", req: classRequest(true, RequestGetReport, ReportTypeFeature<<8, 8)},
		{name: "set idle in", req: classRequest(true, RequestSetIdle, 0, 1)},
		{name: "unknown", req: classRequest(true, 0x07, 0, 1)},
		{name: "other interface", req: func() device.SetupPacket {
			req := classRequest(true, RequestGetIdle, 0, 1)
			req.Index = 3
			return req
		}()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFunction(t, NewKeyboard())
			assert.ErrorIs(t, f.p.Control(tt.req, nil).Err(), pkg.ErrStall)
		})
	}
}

func TestClass_GetReport(t *testing.T) {
	f := newFunction(t, NewMouse())

	r := f.p.Control(classRequest(true, RequestGetReport, ReportTypeInput<<8, MouseReportSize), nil)
	require.NoError(t, r.Err())
	assert.Equal(t, make([]byte, MouseReportSize), r.Data, "no report sent yet")

	require.NoError(t, f.fn.SendMouse(f.dev(), &MouseReport{X: 3, Y: -3}))
	r = f.p.Control(classRequest(true, RequestGetReport, ReportTypeInput<<8, MouseReportSize), nil)
	require.NoError(t, r.Err())
	assert.Equal(t, []byte{0, 3, 0xFD, 0}, r.Data)
}

func TestClass_SetReport(t *testing.T) {
	var got []byte
	var typ uint8
	fn := NewKeyboard(WithOutputReportHandler(func(reportType, _ uint8, data []byte) {
		typ = reportType
		got = append([]byte(nil), data...)
	}))
	f := newFunction(t, fn)

	r := f.p.Control(classRequest(false, RequestSetReport, ReportTypeOutput<<8, 1), []byte{LEDCapsLock})
	require.NoError(t, r.Err())
	assert.Equal(t, uint8(ReportTypeOutput), typ)
	assert.Equal(t, []byte{LEDCapsLock}, got)

	r = f.p.Control(classRequest(false, RequestSetReport, ReportTypeOutput<<8, MaxReportSize+1), nil)
	assert.ErrorIs(t, r.Err(), pkg.ErrStall)
}

// =============================================================================
// Input reports
// =============================================================================

func TestClass_SendReport(t *testing.T) {
	f := newFunction(t, NewKeyboard(WithQueueDepth(2)))

	var r KeyboardReport
	r.Press(KeyA)
	require.NoError(t, f.fn.SendKeyboard(f.dev(), &r))
	r.Press(KeyA + 1)
	require.NoError(t, f.fn.SendKeyboard(f.dev(), &r))
	r = KeyboardReport{}
	require.NoError(t, f.fn.SendKeyboard(f.dev(), &r))
	assert.True(t, f.fn.Busy())
	assert.Equal(t, 2, f.fn.Queued())
	assert.ErrorIs(t, f.fn.SendReport(f.dev(), []byte{1}), pkg.ErrFIFOFull)

	want := [][]byte{
		{0, 0, KeyA, 0, 0, 0, 0, 0},
		{0, 0, KeyA, KeyA + 1, 0, 0, 0, 0},
		make([]byte, KeyboardReportSize),
	}
	for i, w := range want {
		data, hs := f.p.In(1)
		require.Equal(t, otg.HandshakeACK, hs, "report %d", i)
		assert.Equal(t, w, data, "report %d", i)
	}
	_, hs := f.p.In(1)
	assert.Equal(t, otg.HandshakeNAK, hs)
	assert.False(t, f.fn.Busy())
	assert.Equal(t, 3, f.fn.Sent())
}

func TestClass_SendReportErrors(t *testing.T) {
	f := newFunction(t, NewMouse())
	assert.ErrorIs(t, f.fn.SendReport(f.dev(), nil), pkg.ErrInvalidParameter)
	assert.ErrorIs(t, f.fn.SendReport(f.dev(), make([]byte, MaxReportSize+1)), pkg.ErrInvalidParameter)

	unconfigure := device.SetupPacket{
		RequestType: device.RequestTypeStandard | device.RecipientDevice,
		Request:     device.RequestSetConfiguration,
	}
	require.NoError(t, f.p.Control(unconfigure, nil).Err())
	assert.ErrorIs(t, f.fn.SendMouse(f.dev(), &MouseReport{}), pkg.ErrNotConfigured)
}

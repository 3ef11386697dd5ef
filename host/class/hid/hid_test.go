package hid

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apm32sdk/usbotg/host"
	"github.com/apm32sdk/usbotg/otg"
)

// =============================================================================
// Scripted HID mouse
// =============================================================================

var mouseReportDescriptor = []byte{
	0x05, 0x01, 0x09, 0x02, 0xA1, 0x01, 0x09, 0x01, 0xA1, 0x00,
	0x05, 0x09, 0x19, 0x01, 0x29, 0x03, 0x15, 0x00, 0x25, 0x01,
	0x95, 0x03, 0x75, 0x01, 0x81, 0x02, 0x95, 0x01, 0x75, 0x05,
	0x81, 0x01, 0x05, 0x01, 0x09, 0x30, 0x09, 0x31, 0x15, 0x81,
	0x25, 0x7F, 0x75, 0x08, 0x95, 0x02, 0x81, 0x06, 0xC0, 0xC0,
}

type mouseFunc struct {
	addr   uint8
	config []byte

	setup host.Request
	resp  []byte
	sent  int

	reports    [][]byte
	inFrames   []uint16
	frame      uint16
	stallIntr  int
	halted     bool
	stallIdle  bool
	classReqs  []host.Request
	descReqs   []host.Request
	clearHalts []uint16
}

func newMouseFunc() *mouseFunc {
	rl := len(mouseReportDescriptor)
	return &mouseFunc{
		config: []byte{
			9, host.DescriptorTypeConfiguration, 34, 0, 1, 1, 0, 0xA0, 50,
			9, host.DescriptorTypeInterface, 0, 0, 1, ClassHID, SubclassBoot, ProtocolMouse, 0,
			9, DescriptorTypeHID, 0x11, 0x01, 0, 1, DescriptorTypeReport, byte(rl), byte(rl >> 8),
			7, host.DescriptorTypeEndpoint, 0x81, host.EndpointTypeInterrupt, 4, 0, 10,
		},
	}
}

var deviceDescriptor = []byte{
	18, host.DescriptorTypeDevice, 0x00, 0x02, 0, 0, 0, 64,
	0x83, 0x04, 0x10, 0x57, 0x00, 0x01, 0, 0, 0, 1,
}

func (f *mouseFunc) Connected() bool               { return true }
func (f *mouseFunc) BusReset(otg.Speed)            { f.addr = 0 }
func (f *mouseFunc) Suspend()                      {}
func (f *mouseFunc) Resume()                       {}
func (f *mouseFunc) StartOfFrame(n uint16)         { f.frame = n }
func (f *mouseFunc) Ping(_, _ uint8) otg.Handshake { return otg.HandshakeACK }

func (f *mouseFunc) Setup(addr uint8, pkt [8]byte) otg.Handshake {
	if addr != f.addr {
		return otg.HandshakeTimeout
	}
	host.ParseRequest(pkt[:], &f.setup)
	f.resp = nil
	f.sent = 0
	r := f.setup
	switch {
	case r.Type() == host.RequestTypeClass:
		f.classReqs = append(f.classReqs, r)
	case r.Request == host.RequestGetDescriptor:
		switch uint8(r.Value >> 8) {
		case host.DescriptorTypeDevice:
			f.resp = deviceDescriptor
		case host.DescriptorTypeConfiguration:
			f.resp = f.config
		case DescriptorTypeHID:
			f.descReqs = append(f.descReqs, r)
			f.resp = f.config[18:27]
		case DescriptorTypeReport:
			f.descReqs = append(f.descReqs, r)
			f.resp = mouseReportDescriptor
		}
	case r.Request == host.RequestClearFeature:
		f.clearHalts = append(f.clearHalts, r.Index)
		if r.Index == 0x81 {
			f.halted = false
		}
	}
	if len(f.resp) > int(r.Length) {
		f.resp = f.resp[:r.Length]
	}
	return otg.HandshakeACK
}

func (f *mouseFunc) Out(addr, ep, _ uint8, _ []byte) otg.Handshake {
	if addr != f.addr {
		return otg.HandshakeTimeout
	}
	if ep == 0 {
		return otg.HandshakeACK
	}
	return otg.HandshakeSTALL
}

func (f *mouseFunc) In(addr, ep, _ uint8, maxLen int) ([]byte, otg.Handshake) {
	if addr != f.addr {
		return nil, otg.HandshakeTimeout
	}
	switch ep {
	case 0:
		if f.setup.IsIn() {
			n := min(maxLen, len(f.resp)-f.sent)
			d := f.resp[f.sent : f.sent+n]
			f.sent += n
			return d, otg.HandshakeACK
		}
		if f.setup.Request == RequestSetIdle && f.setup.Type() == host.RequestTypeClass && f.stallIdle {
			return nil, otg.HandshakeSTALL
		}
		if f.setup.Request == host.RequestSetAddress {
			f.addr = uint8(f.setup.Value)
		}
		return nil, otg.HandshakeACK
	case 1:
		f.inFrames = append(f.inFrames, f.frame)
		if f.stallIntr > 0 {
			f.stallIntr--
			f.halted = true
		}
		if f.halted {
			return nil, otg.HandshakeSTALL
		}
		if len(f.reports) == 0 {
			return nil, otg.HandshakeNAK
		}
		d := f.reports[0]
		f.reports = f.reports[1:]
		return d, otg.HandshakeACK
	}
	return nil, otg.HandshakeSTALL
}

// =============================================================================
// Harness
// =============================================================================

type appCallbacks struct {
	host.NopCallbacks
	app          int
	notSupported int
}

func (c *appCallbacks) Application()  { c.app++ }
func (c *appCallbacks) NotSupported() { c.notSupported++ }

type rig struct {
	t    *testing.T
	core *otg.Core
	fn   *mouseFunc
	c    *Class
	cb   *appCallbacks
	h    *host.Host
}

func newRig(t *testing.T, fn *mouseFunc, opts ...Option) *rig {
	t.Helper()
	core := otg.New(otg.WithMode(otg.ModeHost))
	c := New(opts...)
	cb := &appCallbacks{}
	h := host.New(core, c, cb)
	core.Attach(fn, otg.SpeedFull)
	return &rig{t: t, core: core, fn: fn, c: c, cb: cb, h: h}
}

func (r *rig) service() {
	for i := 0; i < 64 && r.core.Pending(); i++ {
		r.h.HandleInterrupt()
	}
}

func (r *rig) step() {
	r.h.Poll(context.Background())
	r.service()
	r.core.Step()
	r.service()
}

func (r *rig) runUntil(cond func() bool, limit int) {
	r.t.Helper()
	for i := 0; i < limit && !cond(); i++ {
		r.step()
	}
	require.True(r.t, cond(), "not reached (host %s, req %s, state %s)",
		r.h.State(), r.c.RequestState(), r.c.State())
}

func (r *rig) polling() bool { return r.h.State() == host.StateClass }

// =============================================================================
// Tests
// =============================================================================

func TestClass_Requests(t *testing.T) {
	r := newRig(t, newMouseFunc())
	r.runUntil(r.polling, 3000)

	assert.Equal(t, uint16(len(mouseReportDescriptor)), r.c.Descriptor().ReportDescLen)
	assert.Equal(t, uint16(0x0111), r.c.Descriptor().HIDVersion)
	assert.Equal(t, mouseReportDescriptor, r.c.ReportDescriptor())
	assert.Equal(t, uint16(10), r.c.Interval())

	require.Len(t, r.fn.descReqs, 2)
	for _, req := range r.fn.descReqs {
		assert.Equal(t, uint8(0x81), req.RequestType, "standard request to the interface")
		assert.Equal(t, uint16(0), req.Index)
	}

	require.Len(t, r.fn.classReqs, 2)
	assert.Equal(t, uint8(RequestSetIdle), r.fn.classReqs[0].Request)
	assert.Equal(t, uint16(0), r.fn.classReqs[0].Value)
	assert.Equal(t, uint8(RequestSetProtocol), r.fn.classReqs[1].Request)
	assert.Equal(t, uint16(ProtocolReport), r.fn.classReqs[1].Value)
	assert.Equal(t, uint8(0x21), r.fn.classReqs[1].RequestType)
}

func TestClass_BootProtocol(t *testing.T) {
	r := newRig(t, newMouseFunc(), WithProtocol(ProtocolBoot))
	r.runUntil(r.polling, 3000)
	require.Len(t, r.fn.classReqs, 2)
	assert.Equal(t, uint16(ProtocolBoot), r.fn.classReqs[1].Value)
}

func TestClass_SetIdleStall(t *testing.T) {
	fn := newMouseFunc()
	fn.stallIdle = true
	r := newRig(t, fn)
	r.runUntil(r.polling, 3000)
	assert.Equal(t, ReqDone, r.c.RequestState())
	require.Len(t, fn.classReqs, 2)
	assert.Equal(t, uint8(RequestSetProtocol), fn.classReqs[1].Request)
}

func TestClass_PollsReports(t *testing.T) {
	var got [][]byte
	fn := newMouseFunc()
	fn.reports = [][]byte{{ButtonLeft, 0x05, 0xFE}, {0, 0xFB, 0x01}}
	r := newRig(t, fn, WithReportHandler(func(rep []byte) {
		got = append(got, append([]byte(nil), rep...))
	}))
	r.runUntil(func() bool { return r.c.Reports() == 2 }, 3000)

	assert.Equal(t, [][]byte{{ButtonLeft, 0x05, 0xFE}, {0, 0xFB, 0x01}}, got)
	assert.Equal(t, Mouse{X: -5, Y: 1}, r.c.Mouse())
	assert.Positive(t, r.cb.app)

	// with nothing to report the endpoint is asked once per interval
	start := len(fn.inFrames)
	for i := 0; i < 100; i++ {
		r.step()
	}
	assert.InDelta(t, 10, len(fn.inFrames)-start, 2)
	assert.Equal(t, 2, r.c.Reports())
}

func TestClass_StalledEndpoint(t *testing.T) {
	fn := newMouseFunc()
	fn.stallIntr = 1
	fn.reports = [][]byte{{ButtonRight, 1, 1}}
	r := newRig(t, fn)
	r.runUntil(func() bool { return r.c.Reports() == 1 }, 3000)

	assert.Equal(t, []uint16{0x81}, fn.clearHalts)
	assert.True(t, r.c.Mouse().Pressed(ButtonRight))
}

func TestClass_NoHIDInterface(t *testing.T) {
	fn := newMouseFunc()
	fn.config[14] = 0x08
	r := newRig(t, fn)
	r.runUntil(func() bool { return r.h.State() == host.StateError }, 3000)
	assert.Equal(t, 1, r.cb.notSupported)
}

// =============================================================================
// Descriptors and reports
// =============================================================================

func TestParseHIDDescriptor(t *testing.T) {
	var d HIDDescriptor
	require.True(t, ParseHIDDescriptor([]byte{9, 0x21, 0x11, 0x01, 0, 1, 0x22, 0x34, 0x01}, &d))
	assert.Equal(t, HIDDescriptor{
		Length: 9, DescriptorType: 0x21, HIDVersion: 0x0111,
		NumDescriptors: 1, ReportDescType: 0x22, ReportDescLen: 0x134,
	}, d)

	assert.False(t, ParseHIDDescriptor([]byte{9, 0x21, 0x11}, &d))
	assert.False(t, ParseHIDDescriptor([]byte{9, 0x04, 0, 0, 0, 0, 0, 0, 0}, &d))
}

func TestParseMouse(t *testing.T) {
	tests := []struct {
		name   string
		report []byte
		want   Mouse
		ok     bool
	}{
		{"buttons", []byte{ButtonLeft | ButtonMiddle, 0, 0}, Mouse{Buttons: 5}, true},
		{"negative", []byte{0, 0x80, 0xFF}, Mouse{X: -128, Y: -1}, true},
		{"wheel", []byte{0, 1, 2, 0xFE}, Mouse{X: 1, Y: 2, Wheel: -2}, true},
		{"short", []byte{1, 2}, Mouse{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var m Mouse
			assert.Equal(t, tt.ok, ParseMouse(tt.report, &m))
			assert.Equal(t, tt.want, m)
		})
	}
}

func TestTrack_Render(t *testing.T) {
	var tr Track
	assert.Equal(t, ".|..................", tr.Render(Mouse{}))

	tr.Move(Mouse{X: -3})
	assert.Equal(t, 0, tr.Pos, "clamped at the left edge")

	for i := 0; i < 30; i++ {
		tr.Move(Mouse{X: 1})
	}
	assert.Equal(t, TrackWidth-1, tr.Pos)
	assert.Equal(t, "o.................|o", tr.Render(Mouse{Buttons: ButtonLeft | ButtonRight}))
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "clear-stall", StateClearStall.String())
	assert.Equal(t, "set-protocol", ReqSetProtocol.String())
	assert.Equal(t, "state(9)", State(9).String())
}

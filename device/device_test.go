package device

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apm32sdk/usbotg/otg"
	"github.com/apm32sdk/usbotg/pkg"
	"github.com/apm32sdk/usbotg/pkg/reg"
)

// =============================================================================
// Test class and bench
// =============================================================================

// Class requests the test class answers.
const (
	testRequestWrite = 0x20 // control write into data
	testRequestRead  = 0x21 // control read from data
	testRequestEmpty = 0x22 // control read answered with no data
)

// testClass records what the device passes to its class and serves two
// class requests. A nonzero configuration opens bulk endpoints 0x01/0x81.
type testClass struct {
	NopHooks

	resets     int
	setups     []SetupPacket
	inDone     []uint8
	outDone    []uint8
	configured int
	clears     int
	sets       int
	exceptions []SetupPacket
	txStatus   int
	rxStatus   int
	received   int

	data [100]byte
}

func (c *testClass) Reset(*Device) { c.resets++ }

func (c *testClass) Setup(d *Device, req SetupPacket) {
	c.setups = append(c.setups, req)
	n := min(int(req.Length), len(c.data))
	switch req.Request {
	case testRequestWrite:
		d.CtrlOutData(c.data[:n])
	case testRequestRead:
		d.CtrlInData(c.data[:n])
	case testRequestEmpty:
		d.CtrlInData(nil)
	default:
		d.SetStall(0)
	}
}

func (c *testClass) InComplete(_ *Device, ep uint8)  { c.inDone = append(c.inDone, ep) }
func (c *testClass) OutComplete(_ *Device, ep uint8) { c.outDone = append(c.outDone, ep) }

func (c *testClass) TxStatus(d *Device) {
	c.txStatus++
	if d.CtrlState() == CtrlOutData {
		c.received = d.Endpoint(0).Count()
	}
}

func (c *testClass) RxStatus(*Device) { c.rxStatus++ }

func (c *testClass) SetConfiguration(d *Device) {
	c.configured++
	if d.Configuration() != 0 {
		d.OpenInEP(1, EndpointTypeBulk, 64)
		d.OpenOutEP(1, EndpointTypeBulk, 64)
	}
}

func (c *testClass) SetFeature(*Device)   { c.sets++ }
func (c *testClass) ClearFeature(*Device) { c.clears++ }

func (c *testClass) Exception(_ *Device, req SetupPacket) {
	c.exceptions = append(c.exceptions, req)
}

type testCallbacks struct {
	resets, suspends, resumes int
}

func (c *testCallbacks) Reset()   { c.resets++ }
func (c *testCallbacks) Suspend() { c.suspends++ }
func (c *testCallbacks) Resume()  { c.resumes++ }

func testDeviceDescriptor() []byte {
	d := DeviceDescriptor{
		USBVersion:        0x0200,
		MaxPacketSize0:    Ep0MaxPacketSize,
		VendorID:          0x314B,
		ProductID:         0x5720,
		DeviceVersion:     0x0100,
		ManufacturerIndex: 1,
		ProductIndex:      2,
		SerialNumberIndex: 3,
		NumConfigurations: 1,
	}
	return d.AppendTo(nil)
}

func testConfig(attrs uint8, pad int) []byte {
	b := NewConfigBuilder(1, attrs, 50).
		Interface(InterfaceDescriptor{NumEndpoints: 2, InterfaceClass: ClassVendor}).
		Endpoint(EndpointDescriptor{EndpointAddress: 0x81, Attributes: EndpointTypeBulk, MaxPacketSize: 64}).
		Endpoint(EndpointDescriptor{EndpointAddress: 0x01, Attributes: EndpointTypeBulk, MaxPacketSize: 64})
	if pad > 0 {
		raw := make([]byte, pad)
		raw[0] = byte(pad)
		raw[1] = 0x41
		b.Raw(raw)
	}
	return b.Bytes()
}

func testDescriptors() *Descriptors {
	d := &Descriptors{
		Device:        testDeviceDescriptor(),
		Configuration: testConfig(ConfigAttrSelfPowered|ConfigAttrRemoteWakeup, 0),
	}
	d.Strings[0] = LanguageDescriptor(LangIDUSEnglish)
	d.SetString(1, "Geehy")
	d.SetString(2, "APM32 Test")
	d.SetString(3, "0000")
	return d
}

const busRetries = 16

// bench is a device on a device-mode core with the test acting as host.
type bench struct {
	core *otg.Core
	dev  *Device
	cls  *testClass
	cb   *testCallbacks
	addr uint8
}

func newBench(t *testing.T, desc *Descriptors, opts ...Option) *bench {
	t.Helper()
	if desc == nil {
		desc = testDescriptors()
	}
	b := &bench{
		core: otg.New(otg.WithMode(otg.ModeDevice)),
		cls:  &testClass{},
		cb:   &testCallbacks{},
	}
	b.dev = New(b.core, desc, b.cls, b.cb, opts...)
	return b
}

// service runs one frame and the interrupt until it is quiet.
func (b *bench) service() {
	b.core.Step()
	for i := 0; i < 64 && b.core.Pending(); i++ {
		b.dev.HandleInterrupt()
	}
}

func (b *bench) reset() {
	b.core.BusReset(otg.SpeedFull)
	b.service()
	b.addr = 0
}

// in sends IN tokens until the device stops NAKing.
func (b *bench) in(ep uint8) ([]byte, otg.Handshake) {
	for i := 0; i < busRetries; i++ {
		data, hs := b.core.In(b.addr, ep, otg.PidData1, 64)
		b.service()
		if hs != otg.HandshakeNAK {
			return data, hs
		}
	}
	return nil, otg.HandshakeNAK
}

// out sends an OUT packet until the device stops NAKing.
func (b *bench) out(ep uint8, data []byte) otg.Handshake {
	for i := 0; i < busRetries; i++ {
		hs := b.core.Out(b.addr, ep, otg.PidData1, data)
		b.service()
		if hs != otg.HandshakeNAK {
			return hs
		}
	}
	return otg.HandshakeNAK
}

type ctrlResult struct {
	data    []byte
	packets int
	hs      otg.Handshake
}

// control runs one control transfer: SETUP, data stage and status stage.
// A read ends on a short packet or once wLength bytes arrived.
func (b *bench) control(req SetupPacket, data []byte) ctrlResult {
	var r ctrlResult
	if r.hs = b.core.Setup(b.addr, req.Bytes()); r.hs != otg.HandshakeACK {
		return r
	}
	b.service()
	if req.In() {
		for req.Length > 0 {
			pkt, hs := b.in(0)
			if hs != otg.HandshakeACK {
				r.hs = hs
				return r
			}
			r.packets++
			r.data = append(r.data, pkt...)
			if len(pkt) < Ep0MaxPacketSize || len(r.data) >= int(req.Length) {
				break
			}
		}
		r.hs = b.out(0, nil)
		return r
	}
	for off := 0; off < len(data); off += Ep0MaxPacketSize {
		if r.hs = b.out(0, data[off:min(off+Ep0MaxPacketSize, len(data))]); r.hs != otg.HandshakeACK {
			return r
		}
		r.packets++
	}
	_, r.hs = b.in(0)
	return r
}

func getDescriptor(typ, index uint8, length uint16) SetupPacket {
	return SetupPacket{
		RequestType: RequestDirIn | RequestTypeStandard | RecipientDevice,
		Request:     RequestGetDescriptor,
		Value:       uint16(typ)<<8 | uint16(index),
		Length:      length,
	}
}

func standardOut(recipient, request uint8, value, index uint16) SetupPacket {
	return SetupPacket{
		RequestType: RequestTypeStandard | recipient,
		Request:     request,
		Value:       value,
		Index:       index,
	}
}

func standardIn(recipient, request uint8, index, length uint16) SetupPacket {
	return SetupPacket{
		RequestType: RequestDirIn | RequestTypeStandard | recipient,
		Request:     request,
		Index:       index,
		Length:      length,
	}
}

// enumerate resets the device, gives it address 5 and selects
// configuration 1.
func (b *bench) enumerate(t *testing.T) {
	t.Helper()
	b.reset()
	r := b.control(standardOut(RecipientDevice, RequestSetAddress, 5, 0), nil)
	require.Equal(t, otg.HandshakeACK, r.hs)
	b.addr = 5
	r = b.control(standardOut(RecipientDevice, RequestSetConfiguration, 1, 0), nil)
	require.Equal(t, otg.HandshakeACK, r.hs)
	require.Equal(t, StateConfigured, b.dev.State())
}

// =============================================================================
// Initialisation and bus events
// =============================================================================

func TestNew(t *testing.T) {
	b := newBench(t, nil)
	r := b.core.Registers()

	assert.NotZero(t, r.G.GAHBCFG&otg.AhbcfgGINTMASK)
	assert.Zero(t, r.D.DCTRL&otg.DctrlSDCNNT, "soft-connected")
	assert.True(t, b.core.Connected())
	assert.Equal(t, uint32(globalInterrupts), r.G.GINTMASK)
	assert.NotZero(t, r.G.GUSBCFG&otg.UsbcfgFDMODE)
	assert.Equal(t, uint32(otg.DeviceSpeedFull), reg.Get(&r.D.DCFG, otg.DcfgDSPDSEL))

	cfg := b.core.Config()
	rx := uint32(cfg.RxFIFODepth)
	assert.Equal(t, rx, reg.Get(&r.G.GRXFIFO, otg.RxfifoRXFDEP))
	assert.Equal(t, rx, reg.Get(&r.G.GTXFCFG, otg.TxfcfgStart))
	assert.Equal(t, uint32(cfg.DeviceTxFIFODepths[0]), reg.Get(&r.G.GTXFCFG, otg.TxfcfgDepth))
	assert.Equal(t, rx+uint32(cfg.DeviceTxFIFODepths[0]), reg.Get(&r.G.DTXFIFO[0], otg.TxfcfgStart))
	assert.Equal(t, uint32(cfg.DeviceTxFIFODepths[1]), reg.Get(&r.G.DTXFIFO[0], otg.TxfcfgDepth))

	assert.Equal(t, StateDefault, b.dev.State())
	assert.Equal(t, CtrlSetup, b.dev.CtrlState())
}

func TestNew_SerialNumber(t *testing.T) {
	b := newBench(t, nil, WithSerialNumber("AB12"))
	assert.Equal(t, StringDescriptor("AB12"), b.dev.Descriptors().StringAt(3))
}

func TestDevice_BusReset(t *testing.T) {
	b := newBench(t, nil)
	b.reset()
	r := b.core.Registers()

	assert.Equal(t, 1, b.cls.resets)
	assert.Equal(t, 1, b.cb.resets)
	assert.Equal(t, StateDefault, b.dev.State())
	assert.Equal(t, uint8(0), b.dev.Address())
	assert.True(t, b.dev.Endpoint(0).Active())
	assert.True(t, b.dev.Endpoint(0x80).Active())
	assert.Equal(t, uint32(1|1<<16), r.D.DAEPIMASK&(1|1<<16))
	assert.Equal(t, uint32(setupPackets), reg.Get(&r.D.Out[0].DOEPTRS, otg.EptrsPIDSPCNT))
	assert.Equal(t, uint32(otg.Ep0MPS64), reg.Get(&r.D.In[0].DIEPCTRL, otg.EpctlMAXPS))
	assert.Equal(t, uint32(5), reg.Get(&r.G.GUSBCFG, otg.UsbcfgTRTIM), "72 MHz AHB")
	assert.True(t, b.dev.RemoteWakeupEnabled(), "feature bits start from bmAttributes")
}

func TestDevice_SuspendResume(t *testing.T) {
	b := newBench(t, nil)
	b.enumerate(t)

	b.core.Suspend()
	b.service()
	assert.Equal(t, StateSuspended, b.dev.State())
	assert.Equal(t, 1, b.cb.suspends)

	b.core.Resume()
	b.service()
	assert.Equal(t, StateConfigured, b.dev.State(), "resume restores the state before suspend")
	assert.Equal(t, 1, b.cb.resumes)
}

func TestDevice_RemoteWakeup(t *testing.T) {
	b := newBench(t, nil)
	b.enumerate(t)

	r := b.control(standardOut(RecipientDevice, RequestClearFeature, FeatureRemoteWakeup, 0), nil)
	require.Equal(t, otg.HandshakeACK, r.hs)
	assert.ErrorIs(t, b.dev.RemoteWakeup(), pkg.ErrNotSupported)

	r = b.control(standardOut(RecipientDevice, RequestSetFeature, FeatureRemoteWakeup, 0), nil)
	require.Equal(t, otg.HandshakeACK, r.hs)
	b.core.Suspend()
	b.service()

	start := b.core.Now()
	require.NoError(t, b.dev.RemoteWakeup())
	assert.GreaterOrEqual(t, b.core.Now()-start, wakeupSignal)
	assert.Zero(t, b.core.Registers().D.DCTRL&otg.DctrlRWKUPS)
}

func TestDevice_Disconnect(t *testing.T) {
	b := newBench(t, nil)
	b.dev.Disconnect()
	assert.False(t, b.core.Connected())
	b.dev.Connect()
	assert.True(t, b.core.Connected())
}

func TestTurnaround(t *testing.T) {
	tests := []struct {
		hclk uint32
		want uint32
	}{
		{72000000, 5},
		{48000000, 5},
		{30000000, 8},
		{24000000, 9},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, turnaround(tt.hclk), "hclk %d", tt.hclk)
	}
}

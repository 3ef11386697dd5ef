package otg

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apm32sdk/usbotg/pkg/reg"
)

// =============================================================================
// Host port
// =============================================================================

func TestPortConnectAndReset(t *testing.T) {
	fn := newScriptFunc()
	c := New(WithMode(ModeHost))

	c.Attach(fn, SpeedLow)
	assert.False(t, c.Attached(), "unpowered port must not report a connection")

	c.Regs.H.HPORTCSTS = PortPP
	c.Delay(0)
	p := c.Regs.H.HPORTCSTS
	assert.NotZero(t, p&PortPCNNTFLG)
	assert.NotZero(t, p&PortPCINTFLG)
	assert.Equal(t, uint32(PortSpeedLow), PortPSPDSEL.Get(p))

	reg.SetMask(&c.Regs.H.HPORTCSTS, PortPRST)
	c.Delay(10)
	assert.Zero(t, fn.resets)
	reg.ClearMask(&c.Regs.H.HPORTCSTS, PortPRST)
	c.Delay(10)
	assert.Equal(t, 1, fn.resets)
	assert.NotZero(t, c.Regs.H.HPORTCSTS&PortPEN)
	assert.NotZero(t, c.Regs.H.HPORTCSTS&PortPENCHG)

	c.Regs.G.GINTMASK = GintHPORT
	assert.NotZero(t, c.IntStatus()&GintHPORT)
	reg.ClearMask(&c.Regs.H.HPORTCSTS, PortChangeFlags)
	assert.Zero(t, c.IntStatus()&GintHPORT)
}

func TestPortDisconnect(t *testing.T) {
	fn := newScriptFunc()
	c := newHostCore(t, fn)

	fn.connected = false
	c.Step()
	assert.False(t, c.Attached())
	assert.Zero(t, c.Regs.H.HPORTCSTS&(PortPCNNTFLG|PortPEN))
	assert.NotZero(t, c.Regs.G.GCINT&GintDEDIS)

	fn.connected = true
	c.Step()
	assert.True(t, c.Attached())
	assert.Zero(t, c.Regs.H.HPORTCSTS&PortPEN, "port stays disabled until reset")

	c.Detach()
	assert.False(t, c.Attached())
}

func TestPortSuspendResume(t *testing.T) {
	fn := newScriptFunc()
	c := newHostCore(t, fn)

	c.Step()
	assert.Equal(t, 1, fn.sofs)
	reg.SetMask(&c.Regs.H.HPORTCSTS, PortPSUS)
	c.Step()
	assert.Equal(t, 1, fn.suspends)
	assert.Equal(t, 1, fn.sofs, "no SOF while suspended")

	reg.SetMask(&c.Regs.H.HPORTCSTS, PortPRS)
	c.Step()
	assert.Equal(t, 1, fn.resumes)
	assert.Zero(t, c.Regs.H.HPORTCSTS&PortPSUS)
}

func TestFrameCounter(t *testing.T) {
	c := newHostCore(t, newScriptFunc())
	for i := 0; i < 5; i++ {
		c.Step()
	}
	assert.Equal(t, uint32(5), reg.Get(&c.Regs.H.HFIFM, HfifmFNUM))
	assert.NotZero(t, c.Regs.G.GCINT&GintSOF)
}

// =============================================================================
// Host channels
// =============================================================================

func TestChannelSetup(t *testing.T) {
	fn := newScriptFunc()
	c := newHostCore(t, fn)
	pkt := []byte{0x80, 0x06, 0x00, 0x01, 0x00, 0x00, 0x40, 0x00}

	openChannel(c, 0, EpTypeControl, false, 64, 8, 1, PidSetup)
	c.WritePacket(0, pkt)
	c.Step()

	require.Len(t, fn.setups, 1)
	assert.Equal(t, pkt, fn.setups[0][:])
	h := c.Regs.H.Ch[0]
	assert.NotZero(t, h.HCHINT&ChintTSFCMPN)
	assert.NotZero(t, h.HCHINT&ChintRXTXACK)
	assert.Zero(t, h.HCH&HchCHEN)
	assert.Equal(t, uint32(PidData1), TsizeDATAPID.Get(h.HCHTSIZE))
}

func TestChannelOutMultiPacket(t *testing.T) {
	fn := newScriptFunc()
	c := newHostCore(t, fn)
	data := make([]byte, 100)
	for i := range data {
		data[i] = byte(i)
	}

	openChannel(c, 1, EpTypeBulk, false, 64, 100, 2, PidData0)
	c.WritePacket(1, data)
	c.Step()
	assert.Len(t, fn.outs, 1)
	assert.NotZero(t, c.Regs.H.Ch[1].HCH&HchCHEN)
	c.Step()

	require.Len(t, fn.outs, 2)
	assert.Equal(t, data, append(fn.outs[0], fn.outs[1]...))
	h := c.Regs.H.Ch[1]
	assert.NotZero(t, h.HCHINT&ChintTSFCMPN)
	assert.Equal(t, uint32(PidData0), TsizeDATAPID.Get(h.HCHTSIZE))
	assert.Zero(t, TsizePCKTCNT.Get(h.HCHTSIZE))
}

func TestChannelOutWaitsForData(t *testing.T) {
	fn := newScriptFunc()
	c := newHostCore(t, fn)

	openChannel(c, 2, EpTypeBulk, false, 64, 64, 1, PidData0)
	c.Sync()
	q := c.Regs.G.GNPTXFQSTS
	assert.Equal(t, uint32(2), RequestChannel.Get(NptxqNPTXRQ.Get(q)))
	assert.Equal(t, uint32(RequestQueueDepth-1), NptxqNPTXRSA.Get(q))
	assert.Equal(t, uint32(96), NptxqNPTXFSA.Get(q))

	c.Step()
	assert.Empty(t, fn.outs)

	c.WritePacket(2, make([]byte, 64))
	c.Sync()
	assert.Equal(t, uint32(96-16), NptxqNPTXFSA.Get(c.Regs.G.GNPTXFQSTS))
	c.Step()
	assert.Len(t, fn.outs, 1)
}

func TestChannelOutNAKKeepsPacket(t *testing.T) {
	fn := newScriptFunc()
	fn.hs = HandshakeNAK
	c := newHostCore(t, fn)

	openChannel(c, 0, EpTypeBulk, false, 64, 5, 1, PidData0)
	c.WritePacket(0, []byte{1, 2, 3, 4, 5})
	c.Step()

	h := c.Regs.H.Ch[0]
	assert.NotZero(t, h.HCHINT&ChintRXNAK)
	assert.NotZero(t, h.HCH&HchCHEN)
	assert.Len(t, c.chTx[0], 2)

	fn.hs = HandshakeACK
	c.Step()
	require.Len(t, fn.outs, 1)
	assert.Equal(t, []byte{1, 2, 3, 4, 5}, fn.outs[0])
}

func TestChannelInPausesBetweenPackets(t *testing.T) {
	fn := newScriptFunc()
	full := make([]byte, 8)
	fn.ins = [][]byte{full, {1, 2, 3}}
	c := newHostCore(t, fn)

	openChannel(c, 4, EpTypeBulk, true, 8, 16, 2, PidData0)
	c.Step()

	h := &c.Regs.H.Ch[4]
	assert.Zero(t, h.HCH&HchCHEN, "channel pauses after a full packet")
	require.Len(t, c.rx, 1)
	status := c.PopRxStatus()
	assert.Equal(t, uint32(PktStatusIn), RxstsPSTS.Get(status))
	assert.Equal(t, uint32(4), RxstsCHNUM.Get(status))
	assert.Equal(t, uint32(8), RxstsBCNT.Get(status))
	dst := make([]byte, 8)
	c.ReadPacket(dst)
	assert.Equal(t, uint32(1), TsizePCKTCNT.Get(h.HCHTSIZE))

	reg.SetMask(&h.HCH, HchCHEN)
	c.Step()
	require.Len(t, c.rx, 2)
	status = c.PopRxStatus()
	assert.Equal(t, uint32(3), RxstsBCNT.Get(status))
	c.ReadPacket(make([]byte, 3))
	assert.Zero(t, h.HCHINT&ChintTSFCMPN)

	status = c.PopRxStatus()
	assert.Equal(t, uint32(PktStatusInComplete), RxstsPSTS.Get(status))
	assert.NotZero(t, h.HCHINT&ChintTSFCMPN)
}

func TestChannelInBabble(t *testing.T) {
	fn := newScriptFunc()
	fn.ins = [][]byte{make([]byte, 9)}
	c := newHostCore(t, fn)

	openChannel(c, 0, EpTypeBulk, true, 8, 8, 1, PidData0)
	c.Step()
	assert.NotZero(t, c.Regs.H.Ch[0].HCHINT&ChintBABBLE)
	assert.Empty(t, c.rx)
}

func TestChannelHandshakeErrors(t *testing.T) {
	tests := []struct {
		name     string
		hs       Handshake
		flag     uint32
		disabled bool
	}{
		{"stall", HandshakeSTALL, ChintRXSTALL, true},
		{"timeout", HandshakeTimeout, ChintTERR, true},
		{"babble", HandshakeBabble, ChintBABBLE, true},
		{"toggle", HandshakeToggleError, ChintDTOG, true},
		{"overrun", HandshakeOverrun, ChintFOVR, true},
		{"nak", HandshakeNAK, ChintRXNAK, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fn := newScriptFunc()
			fn.hs = tt.hs
			c := newHostCore(t, fn)

			openChannel(c, 5, EpTypeBulk, true, 64, 64, 1, PidData0)
			c.Step()

			h := c.Regs.H.Ch[5]
			assert.NotZero(t, h.HCHINT&tt.flag)
			assert.Equal(t, tt.disabled, h.HCH&HchCHEN == 0)
		})
	}
}

func TestChannelHalt(t *testing.T) {
	c := newHostCore(t, newScriptFunc())
	openChannel(c, 3, EpTypeBulk, false, 64, 64, 1, PidData0)
	c.WritePacket(3, make([]byte, 64))

	reg.SetMask(&c.Regs.H.Ch[3].HCH, HchCHEN|HchCHINT)
	c.Service()

	h := c.Regs.H.Ch[3]
	assert.NotZero(t, h.HCHINT&ChintTSFCMPAN)
	assert.Zero(t, h.HCH&(HchCHEN|HchCHINT))
	assert.Empty(t, c.chTx[3])

	c.Regs.H.HACHIMASK = 1 << 3
	c.Regs.G.GINTMASK = GintHCHAN
	assert.NotZero(t, c.IntStatus()&GintHCHAN)
	assert.Equal(t, uint32(1<<3), c.Regs.H.HACHINT)
	assert.Equal(t, ChintTSFCMPAN, c.ChannelIntStatus(3)&ChintTSFCMPAN)
}

func TestChannelWithoutPort(t *testing.T) {
	c := newHostCore(t, nil)
	openChannel(c, 0, EpTypeControl, true, 64, 64, 1, PidData1)
	c.Step()
	assert.NotZero(t, c.Regs.H.Ch[0].HCHINT&ChintTERR)
}

func TestPeriodicChannelParity(t *testing.T) {
	fn := newScriptFunc()
	fn.ins = [][]byte{{0x01}}
	c := newHostCore(t, fn)

	openChannel(c, 6, EpTypeInterrupt, true, 8, 8, 1, PidData0)
	// schedule for the frame after next
	c.Regs.H.Ch[6].HCH ^= HchODDF
	c.Step()
	assert.Len(t, fn.ins, 1, "wrong parity frame skipped")
	c.Step()
	assert.Empty(t, fn.ins)

	c.Sync()
	assert.Equal(t, uint32(RequestQueueDepth), HptxstsQSPACE.Get(c.Regs.H.HPTXSTS))
}

func TestPing(t *testing.T) {
	fn := newScriptFunc()
	c := newHostCore(t, fn)

	openChannel(c, 0, EpTypeBulk, false, 64, 0, 1, PidData0)
	reg.SetMask(&c.Regs.H.Ch[0].HCHTSIZE, TsizeDOPING)
	c.Step()

	h := c.Regs.H.Ch[0]
	assert.Zero(t, h.HCHTSIZE&TsizeDOPING)
	assert.NotZero(t, h.HCHINT&ChintTSFCMPN)
}

func TestTracer(t *testing.T) {
	var trace []Transaction
	fn := newScriptFunc()
	c := New(WithMode(ModeHost), WithTracer(func(tr Transaction) { trace = append(trace, tr) }))
	c.Regs.G.GRXFIFO = 128
	c.Regs.G.GTXFCFG = TxfcfgDepth.Put(128, 96)
	c.Regs.H.HPORTCSTS = PortPP
	c.Attach(fn, SpeedFull)
	reg.SetMask(&c.Regs.H.HPORTCSTS, PortPRST)
	c.Delay(0)
	reg.ClearMask(&c.Regs.H.HPORTCSTS, PortPRST)
	c.Delay(0)

	openChannel(c, 0, EpTypeControl, false, 8, 8, 1, PidSetup)
	c.WritePacket(0, make([]byte, 8))
	c.Step()

	require.Len(t, trace, 1)
	assert.Equal(t, TokenSetup, trace[0].Token)
	assert.Equal(t, HandshakeACK, trace[0].Handshake)
	assert.Equal(t, "SETUP", trace[0].Token.String())
	assert.Equal(t, "ACK", trace[0].Handshake.String())
}

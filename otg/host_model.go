package otg

import (
	"github.com/apm32sdk/usbotg/pkg"
	"github.com/apm32sdk/usbotg/pkg/reg"
)

// Handshake is the answer of a function to one transaction.
type Handshake uint8

// Handshakes. The error values stand for conditions the host side detects
// on the wire rather than a packet the function sends.
const (
	HandshakeACK Handshake = iota
	HandshakeNAK
	HandshakeSTALL
	HandshakeNYET
	HandshakeTimeout     // no answer, transaction error
	HandshakeBabble      // function talked past the packet end
	HandshakeToggleError // DATA0/DATA1 mismatch
	HandshakeOverrun     // periodic transaction missed its frame
)

// String returns the handshake name.
func (h Handshake) String() string {
	switch h {
	case HandshakeACK:
		return "ACK"
	case HandshakeNAK:
		return "NAK"
	case HandshakeSTALL:
		return "STALL"
	case HandshakeNYET:
		return "NYET"
	case HandshakeTimeout:
		return "timeout"
	case HandshakeBabble:
		return "babble"
	case HandshakeToggleError:
		return "toggle-error"
	case HandshakeOverrun:
		return "overrun"
	default:
		return "unknown"
	}
}

// Token is the token that opened a transaction.
type Token uint8

// Tokens.
const (
	TokenSetup Token = iota
	TokenOut
	TokenIn
	TokenPing
)

// String returns the token name.
func (t Token) String() string {
	switch t {
	case TokenSetup:
		return "SETUP"
	case TokenOut:
		return "OUT"
	case TokenIn:
		return "IN"
	case TokenPing:
		return "PING"
	default:
		return "unknown"
	}
}

// Transaction is one token/data/handshake exchange seen on the host port.
type Transaction struct {
	Frame     uint16    `cbor:"1,keyasint"`
	Channel   uint8     `cbor:"2,keyasint"`
	Token     Token     `cbor:"3,keyasint"`
	Address   uint8     `cbor:"4,keyasint"`
	Endpoint  uint8     `cbor:"5,keyasint"`
	PID       uint8     `cbor:"6,keyasint"`
	Handshake Handshake `cbor:"7,keyasint"`
	Data      []byte    `cbor:"8,keyasint,omitempty"`
}

// Function is a USB function attached to the host port. A device-mode Core
// implements it; tests attach scripted functions.
type Function interface {
	// Connected reports whether the function pulls up its data line.
	Connected() bool
	BusReset(speed Speed)
	Suspend()
	Resume()
	StartOfFrame(frame uint16)
	Setup(addr uint8, pkt [8]byte) Handshake
	Out(addr, ep, pid uint8, data []byte) Handshake
	In(addr, ep, pid uint8, maxLen int) ([]byte, Handshake)
	Ping(addr, ep uint8) Handshake
}

// Attach plugs fn into the host port at the given speed. The connection is
// reported once the port is powered and fn pulls up.
func (c *Core) Attach(fn Function, speed Speed) {
	c.fn = fn
	c.fnSpeed = speed
	c.Service()
}

// Detach unplugs the function from the host port.
func (c *Core) Detach() {
	c.fn = nil
	c.Service()
}

// Attached reports whether the port currently sees a connected function.
func (c *Core) Attached() bool {
	return c.attached
}

func (c *Core) portEnabled() bool {
	return c.attached && c.Regs.H.HPORTCSTS&PortPEN != 0
}

func (c *Core) servicePort() {
	p := &c.Regs.H.HPORTCSTS
	present := c.fn != nil && c.fn.Connected() && *p&PortPP != 0

	switch {
	case present && !c.attached:
		c.attached = true
		reg.SetMask(p, PortPCNNTFLG|PortPCINTFLG)
		reg.SetN(p, PortPSPDSEL, uint32(c.fnSpeed))
		pkg.LogDebug(pkg.ComponentPort, "connect", "speed", c.fnSpeed)
	case !present && c.attached:
		c.attached = false
		c.inReset = false
		c.suspend = false
		wasEnabled := *p&PortPEN != 0
		reg.ClearMask(p, PortPCNNTFLG|PortPEN)
		if wasEnabled {
			reg.SetMask(p, PortPENCHG)
		}
		reg.SetMask(&c.Regs.G.GCINT, GintDEDIS)
		pkg.LogDebug(pkg.ComponentPort, "disconnect")
	}

	switch {
	case *p&PortPRST != 0 && !c.inReset:
		c.inReset = true
		reg.ClearMask(p, PortPEN)
	case *p&PortPRST == 0 && c.inReset:
		c.inReset = false
		if c.attached {
			c.suspend = false
			reg.SetMask(p, PortPEN|PortPENCHG)
			reg.SetN(p, PortPSPDSEL, uint32(c.fnSpeed))
			c.fn.BusReset(c.fnSpeed)
			pkg.LogDebug(pkg.ComponentPort, "reset done", "speed", c.fnSpeed)
		}
	}

	if !c.portEnabled() {
		return
	}
	switch {
	case *p&PortPSUS != 0 && !c.suspend:
		c.suspend = true
		c.fn.Suspend()
	case *p&PortPRS != 0 && c.suspend:
		c.suspend = false
		reg.ClearMask(p, PortPSUS)
		c.fn.Resume()
	}
}

// serviceChannels applies halt requests. A channel with both CHEN and
// CHINT set stops, drops its queued transmit data and reports TSFCMPAN.
// CHINT alone flushes the request queue entry of the channel.
func (c *Core) serviceChannels() {
	for ch := range c.Regs.H.Ch {
		h := &c.Regs.H.Ch[ch]
		if h.HCH&HchCHINT == 0 {
			continue
		}
		if h.HCH&HchCHEN != 0 {
			reg.SetMask(&h.HCHINT, ChintTSFCMPAN)
			c.chTx[ch] = nil
			pkg.LogDebug(pkg.ComponentChannel, "halted", "ch", ch)
		}
		reg.ClearMask(&h.HCH, HchCHEN|HchCHINT)
	}
}

// requests returns the number of queued requests and the channel at the
// top of the periodic or non-periodic request queue. An OUT channel still
// waiting for FIFO data is preferred for the top slot.
func (c *Core) requests(periodic bool) (n int, top int) {
	top = -1
	waiting := -1
	for ch := range c.Regs.H.Ch {
		h := &c.Regs.H.Ch[ch]
		if h.HCH&HchCHEN == 0 || c.periodic(ch) != periodic {
			continue
		}
		n++
		if top < 0 {
			top = ch
		}
		if waiting < 0 && h.HCH&HchEDPDRT == 0 && !c.outReady(ch) {
			waiting = ch
		}
	}
	if waiting >= 0 {
		top = waiting
	}
	if top < 0 {
		top = 0
	}
	return n, top
}

// outReady reports whether the transmit FIFO holds the next packet of OUT
// channel ch.
func (c *Core) outReady(ch int) bool {
	h := &c.Regs.H.Ch[ch]
	n := c.nextOutLen(ch)
	return len(c.chTx[ch]) >= (n+3)/4 && h.HCHTSIZE&TsizeDOPING == 0
}

func (c *Core) nextOutLen(ch int) int {
	h := &c.Regs.H.Ch[ch]
	if reg.Get(&h.HCHTSIZE, TsizeDATAPID) == PidSetup {
		return 8
	}
	n := int(reg.Get(&h.HCHTSIZE, TsizeTSFSIZE))
	if mps := int(reg.Get(&h.HCH, HchMAXPSIZE)); n > mps {
		n = mps
	}
	return n
}

func (c *Core) syncHost() {
	g := &c.Regs.G
	hr := &c.Regs.H

	hr.HACHINT = 0
	for ch := range hr.Ch {
		if hr.Ch[ch].HCHINT&hr.Ch[ch].HCHIMASK != 0 {
			hr.HACHINT |= 1 << ch
		}
	}
	if hr.HACHINT&hr.HACHIMASK != 0 {
		g.GCINT |= GintHCHAN
	}
	if hr.HPORTCSTS&PortChangeFlags != 0 {
		g.GCINT |= GintHPORT
	}

	n, top := c.requests(false)
	free := c.npDepth() - c.txUsed(false)
	var q uint32
	q = NptxqNPTXFSA.Put(q, uint32(max(free, 0)))
	q = NptxqNPTXRSA.Put(q, uint32(max(RequestQueueDepth-n, 0)))
	q = NptxqNPTXRQ.Put(q, RequestChannel.Put(0, uint32(top)))
	g.GNPTXFQSTS = q
	if fifoEmpty(c.txUsed(false), c.npDepth(), g.GAHBCFG&AhbcfgTXFELVL != 0) {
		g.GCINT |= GintNPTXFEM
	}

	n, top = c.requests(true)
	free = c.pDepth() - c.txUsed(true)
	q = 0
	q = HptxstsFSPACE.Put(q, uint32(max(free, 0)))
	q = HptxstsQSPACE.Put(q, uint32(max(RequestQueueDepth-n, 0)))
	q = HptxstsQTOP.Put(q, RequestChannel.Put(0, uint32(top)))
	hr.HPTXSTS = q
	if fifoEmpty(c.txUsed(true), c.pDepth(), g.GAHBCFG&AhbcfgPTXFELVL != 0) {
		g.GCINT |= GintPTXFE
	}
}

// fifoEmpty evaluates a TxFIFO empty level: completely empty, or at least
// half empty.
func fifoEmpty(used, depth int, completely bool) bool {
	if completely {
		return used == 0
	}
	return used*2 <= depth
}

// stepChannel performs at most one transaction on host channel ch.
func (c *Core) stepChannel(ch int) {
	h := &c.Regs.H.Ch[ch]
	if h.HCH&HchCHEN == 0 {
		return
	}
	if c.periodic(ch) && (h.HCH&HchODDF != 0) != (c.frame&1 == 1) {
		return
	}
	if !c.portEnabled() || c.suspend {
		c.channelError(ch, HandshakeTimeout)
		return
	}
	if h.HCH&HchEDPDRT != 0 {
		c.stepIn(ch)
	} else {
		c.stepOut(ch)
	}
}

func (c *Core) trace(t Transaction) {
	pkg.LogDebug(pkg.ComponentChannel, "transaction",
		"ch", t.Channel, "token", t.Token, "addr", t.Address, "ep", t.Endpoint,
		"pid", t.PID, "handshake", t.Handshake, "len", len(t.Data))
	if c.cfg.Tracer != nil {
		c.cfg.Tracer(t)
	}
}

func (c *Core) stepOut(ch int) {
	h := &c.Regs.H.Ch[ch]
	addr := uint8(reg.Get(&h.HCH, HchDVADDR))
	ep := uint8(reg.Get(&h.HCH, HchEDPNUM))
	pid := uint8(reg.Get(&h.HCHTSIZE, TsizeDATAPID))
	t := Transaction{Frame: c.frame, Channel: uint8(ch), Address: addr, Endpoint: ep, PID: pid}

	if h.HCHTSIZE&TsizeDOPING != 0 {
		t.Token = TokenPing
		t.Handshake = c.fn.Ping(addr, ep)
		c.trace(t)
		switch t.Handshake {
		case HandshakeACK:
			reg.ClearMask(&h.HCHTSIZE, TsizeDOPING)
			reg.SetMask(&h.HCHINT, ChintRXTXACK)
			if reg.Get(&h.HCHTSIZE, TsizeTSFSIZE) == 0 {
				c.channelDone(ch)
			}
		case HandshakeNAK:
			reg.SetMask(&h.HCHINT, ChintRXNAK)
		default:
			c.channelError(ch, t.Handshake)
		}
		return
	}

	n := c.nextOutLen(ch)
	data, ok := popTx(&c.chTx[ch], n)
	if !ok {
		return
	}
	t.Data = data
	if pid == PidSetup {
		var pkt [8]byte
		copy(pkt[:], data)
		t.Token = TokenSetup
		t.Handshake = c.fn.Setup(addr, pkt)
	} else {
		t.Token = TokenOut
		t.Handshake = c.fn.Out(addr, ep, pid, data)
	}
	c.trace(t)

	switch t.Handshake {
	case HandshakeACK, HandshakeNYET:
		if t.Handshake == HandshakeNYET {
			reg.SetMask(&h.HCHINT, ChintRXNYET)
		} else {
			reg.SetMask(&h.HCHINT, ChintRXTXACK)
		}
		c.advance(ch, len(data))
		if reg.Get(&h.HCHTSIZE, TsizePCKTCNT) == 0 {
			c.channelDone(ch)
		} else if t.Handshake == HandshakeNYET {
			reg.ClearMask(&h.HCH, HchCHEN)
		}
	case HandshakeNAK:
		// the packet stays queued for the retry
		c.chTx[ch] = append(packWords(data), c.chTx[ch]...)
		reg.SetMask(&h.HCHINT, ChintRXNAK)
	default:
		c.channelError(ch, t.Handshake)
	}
}

func (c *Core) stepIn(ch int) {
	h := &c.Regs.H.Ch[ch]
	addr := uint8(reg.Get(&h.HCH, HchDVADDR))
	ep := uint8(reg.Get(&h.HCH, HchEDPNUM))
	pid := uint8(reg.Get(&h.HCHTSIZE, TsizeDATAPID))
	mps := int(reg.Get(&h.HCH, HchMAXPSIZE))

	// status word, data, completion status
	if c.rxFree() < (mps+3)/4+2 {
		return
	}
	t := Transaction{Frame: c.frame, Channel: uint8(ch), Token: TokenIn, Address: addr, Endpoint: ep, PID: pid}
	t.Data, t.Handshake = c.fn.In(addr, ep, pid, mps)
	if t.Handshake == HandshakeACK && len(t.Data) > mps {
		t.Handshake = HandshakeBabble
	}
	c.trace(t)

	switch t.Handshake {
	case HandshakeACK:
		c.pushRx(RxStatus(uint32(ch), uint32(len(t.Data)), uint32(pid), PktStatusIn), t.Data)
		reg.SetMask(&h.HCHINT, ChintRXTXACK)
		c.advance(ch, len(t.Data))
		if len(t.Data) < mps || reg.Get(&h.HCHTSIZE, TsizePCKTCNT) == 0 {
			c.pushRx(RxStatus(uint32(ch), 0, 0, PktStatusInComplete), nil)
		}
		// the channel pauses until firmware drains the data and re-arms it
		reg.ClearMask(&h.HCH, HchCHEN)
	case HandshakeNAK, HandshakeNYET:
		reg.SetMask(&h.HCHINT, ChintRXNAK)
	default:
		c.channelError(ch, t.Handshake)
	}
}

// advance accounts one acknowledged packet of n bytes: counters drop and
// the data PID toggles.
func (c *Core) advance(ch int, n int) {
	h := &c.Regs.H.Ch[ch]
	if cnt := reg.Get(&h.HCHTSIZE, TsizePCKTCNT); cnt > 0 {
		reg.SetN(&h.HCHTSIZE, TsizePCKTCNT, cnt-1)
	}
	size := int(reg.Get(&h.HCHTSIZE, TsizeTSFSIZE)) - n
	reg.SetN(&h.HCHTSIZE, TsizeTSFSIZE, uint32(max(size, 0)))
	switch reg.Get(&h.HCHTSIZE, TsizeDATAPID) {
	case PidData0, PidSetup:
		reg.SetN(&h.HCHTSIZE, TsizeDATAPID, PidData1)
	case PidData1:
		reg.SetN(&h.HCHTSIZE, TsizeDATAPID, PidData0)
	}
}

func (c *Core) channelDone(ch int) {
	h := &c.Regs.H.Ch[ch]
	reg.ClearMask(&h.HCH, HchCHEN)
	reg.SetMask(&h.HCHINT, ChintTSFCMPN)
}

func (c *Core) channelError(ch int, hs Handshake) {
	h := &c.Regs.H.Ch[ch]
	var flag uint32
	switch hs {
	case HandshakeSTALL:
		flag = ChintRXSTALL
	case HandshakeBabble:
		flag = ChintBABBLE
	case HandshakeToggleError:
		flag = ChintDTOG
	case HandshakeOverrun:
		flag = ChintFOVR
	default:
		flag = ChintTERR
	}
	reg.SetMask(&h.HCHINT, flag)
	reg.ClearMask(&h.HCH, HchCHEN)
}

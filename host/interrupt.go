package host

import (
	"github.com/apm32sdk/usbotg/otg"
	"github.com/apm32sdk/usbotg/pkg"
	"github.com/apm32sdk/usbotg/pkg/reg"
)

// HandleInterrupt is the OTG interrupt vector of the host. Each source is
// checked against the live status, so one call may service several of
// them. It must not be re-entered.
func (h *Host) HandleInterrupt() {
	if h.regs.G.GAHBCFG&otg.AhbcfgGINTMASK == 0 {
		return
	}
	if h.pending(otg.GintRXFNONE) {
		h.rxFIFONonEmpty()
	}
	if h.pending(otg.GintNPTXFEM) {
		h.txFIFOEmpty(false)
	}
	if h.pending(otg.GintPTXFE) {
		h.txFIFOEmpty(true)
	}
	if h.pending(otg.GintSOF) {
		reg.ClearMask(&h.regs.G.GCINT, otg.GintSOF)
	}
	if h.pending(otg.GintHCHAN) {
		h.channelInterrupts()
	}
	if h.pending(otg.GintIPOUTTX) {
		h.HaltChannel(0)
		reg.ClearMask(&h.regs.G.GCINT, otg.GintIPOUTTX)
	}
	if h.pending(otg.GintHPORT) {
		h.portInterrupt()
	}
	if h.pending(otg.GintDEDIS) {
		h.disconnectInterrupt()
	}
	if h.opts.intHook != nil {
		h.opts.intHook(h)
	}
}

func (h *Host) pending(flag uint32) bool {
	return h.hw.IntStatus()&flag != 0
}

// rxFIFONonEmpty pops one receive status and copies IN data into the pipe
// buffer. A channel that received a full packet and expects more is
// re-armed.
func (h *Host) rxFIFONonEmpty() {
	g := &h.regs.G
	reg.ClearMask(&g.GINTMASK, otg.GintRXFNONE)
	defer reg.SetMask(&g.GINTMASK, otg.GintRXFNONE)

	st := h.hw.PopRxStatus()
	ch := int(otg.RxstsCHNUM.Get(st))
	bcnt := int(otg.RxstsBCNT.Get(st))
	if otg.RxstsPSTS.Get(st) != otg.PktStatusIn || bcnt == 0 {
		return
	}
	p := &h.pipes[ch]
	if p.buf == nil {
		// drain into nothing
		h.hw.ReadPacket(make([]byte, bcnt))
		return
	}
	n := min(bcnt, len(p.buf)-p.count)
	if n < 0 {
		n = 0
	}
	h.hw.ReadPacket(p.buf[p.count : p.count+n])
	if n < bcnt {
		h.hw.ReadPacket(make([]byte, bcnt-n))
		pkg.LogWarn(pkg.ComponentFIFO, "rx data beyond buffer", "ch", ch, "dropped", bcnt-n)
	}
	p.count += n

	r := &h.regs.H.Ch[ch]
	if p.state == channelActive && reg.Get(&r.HCHTSIZE, otg.TsizePCKTCNT) > 0 &&
		bcnt == int(reg.Get(&r.HCH, otg.HchMAXPSIZE)) {
		if p.EndpointType == EndpointTypeInterrupt || p.EndpointType == EndpointTypeIsochronous {
			h.selectFrame(ch)
		}
		h.enableChannel(ch)
	}
}

// txFIFOEmpty writes deferred OUT data into the periodic or non-periodic
// FIFO, starting with the channel at the top of the request queue. The
// interrupt is masked once no channel has data left to write.
func (h *Host) txFIFOEmpty(periodic bool) {
	var top int
	if periodic {
		top = int(otg.RequestChannel.Get(reg.Get(&h.regs.H.HPTXSTS, otg.HptxstsQTOP)))
	} else {
		top = int(otg.RequestChannel.Get(reg.Get(&h.regs.G.GNPTXFQSTS, otg.NptxqNPTXRQ)))
	}
	order := make([]int, 0, otg.HostChannels)
	order = append(order, top)
	for ch := range h.pipes {
		if ch != top {
			order = append(order, ch)
		}
	}

	left := false
	for _, ch := range order {
		p := &h.pipes[ch]
		if len(p.pending) == 0 || isPeriodic(p.EndpointType) != periodic {
			continue
		}
		if !h.fillTxFIFO(ch) {
			left = true
		}
	}
	if !left {
		if periodic {
			reg.ClearMask(&h.regs.G.GINTMASK, otg.GintPTXFE)
		} else {
			reg.ClearMask(&h.regs.G.GINTMASK, otg.GintNPTXFEM)
		}
	}
}

func (h *Host) txFree(periodic bool) int {
	h.hw.IntStatus()
	if periodic {
		return int(reg.Get(&h.regs.H.HPTXSTS, otg.HptxstsFSPACE))
	}
	return int(reg.Get(&h.regs.G.GNPTXFQSTS, otg.NptxqNPTXFSA))
}

func isPeriodic(epType uint8) bool {
	return epType == EndpointTypeIsochronous || epType == EndpointTypeInterrupt
}

// channelInterrupts dispatches every channel with a pending interrupt.
func (h *Host) channelInterrupts() {
	hr := &h.regs.H
	for ch := 0; ch < otg.HostChannels; ch++ {
		if hr.HACHINT&hr.HACHIMASK&(1<<ch) == 0 {
			continue
		}
		if hr.Ch[ch].HCH&otg.HchEDPDRT != 0 {
			h.inChannelInterrupt(ch)
		} else {
			h.outChannelInterrupt(ch)
		}
	}
}

// haltWith records the condition that stops channel ch and requests the
// halt whose acknowledgement, TSFCMPAN, publishes the URB status.
func (h *Host) haltWith(ch int, state PipeState) {
	reg.SetMask(&h.regs.H.Ch[ch].HCHIMASK, otg.ChintTSFCMPAN)
	h.pipes[ch].State = state
	h.HaltChannel(ch)
}

// commitToggle stores the data toggle the channel will use next.
func (h *Host) commitToggle(ch int) {
	pid := reg.Get(&h.regs.H.Ch[ch].HCHTSIZE, otg.TsizeDATAPID)
	if pid == otg.PidData1 {
		h.pipes[ch].Toggle = 1
	} else {
		h.pipes[ch].Toggle = 0
	}
}

func (h *Host) inChannelInterrupt(ch int) {
	r := &h.regs.H.Ch[ch]
	p := &h.pipes[ch]
	st := r.HCHINT & r.HCHIMASK
	clear := func(m uint32) { reg.ClearMask(&r.HCHINT, m) }

	switch {
	case st&otg.ChintAHBERR != 0:
		clear(otg.ChintAHBERR)
		reg.SetMask(&r.HCHIMASK, otg.ChintTSFCMPAN)
	case st&otg.ChintRXTXACK != 0:
		clear(otg.ChintRXTXACK)
	case st&otg.ChintRXSTALL != 0:
		clear(otg.ChintRXNAK | otg.ChintRXSTALL)
		h.haltWith(ch, PipeStall)
	case st&otg.ChintDTOG != 0:
		clear(otg.ChintRXNAK | otg.ChintDTOG)
		h.haltWith(ch, PipeToggleError)
	}

	switch {
	case st&otg.ChintFOVR != 0:
		clear(otg.ChintFOVR)
		h.haltWith(ch, PipeTransactionError)
	case st&otg.ChintBABBLE != 0:
		clear(otg.ChintBABBLE)
		h.haltWith(ch, PipeBabbleError)
	case st&otg.ChintTSFCMPN != 0:
		clear(otg.ChintTSFCMPN)
		p.State = PipeOK
		switch p.EndpointType {
		case EndpointTypeControl, EndpointTypeBulk:
			clear(otg.ChintRXNAK)
			h.haltWith(ch, PipeOK)
		case EndpointTypeInterrupt, EndpointTypeIsochronous:
			reg.SetMask(&r.HCH, otg.HchODDF)
			h.commitToggle(ch)
			p.state = channelHalted
			p.URB = URBOK
		}
	case st&otg.ChintTSFCMPAN != 0:
		clear(otg.ChintTSFCMPAN)
		reg.ClearMask(&r.HCHIMASK, otg.ChintTSFCMPAN)
		p.state = channelHalted
		switch p.State {
		case PipeOK:
			p.URB = URBOK
		case PipeStall:
			p.URB = URBStall
		case PipeNAK:
			p.URB = URBNotReady
		case PipeTransactionError, PipeToggleError, PipeBabbleError:
			p.URB = URBError
		}
		if p.EndpointType != EndpointTypeControl {
			h.commitToggle(ch)
		}
		pkg.LogDebug(pkg.ComponentChannel, "in complete", "ch", ch, "state", p.State, "urb", p.URB)
	case st&otg.ChintTERR != 0:
		clear(otg.ChintTERR)
		h.haltWith(ch, PipeTransactionError)
	case st&otg.ChintRXNAK != 0:
		clear(otg.ChintRXNAK)
		switch p.EndpointType {
		case EndpointTypeInterrupt:
			h.haltWith(ch, PipeNAK)
		case EndpointTypeControl, EndpointTypeBulk:
			p.State = PipeNAK
			h.enableChannel(ch)
		}
	}
}

func (h *Host) outChannelInterrupt(ch int) {
	r := &h.regs.H.Ch[ch]
	p := &h.pipes[ch]
	st := r.HCHINT & r.HCHIMASK
	clear := func(m uint32) { reg.ClearMask(&r.HCHINT, m) }

	switch {
	case st&otg.ChintAHBERR != 0:
		clear(otg.ChintAHBERR)
		reg.SetMask(&r.HCHIMASK, otg.ChintTSFCMPAN)
	case st&otg.ChintFOVR != 0:
		clear(otg.ChintFOVR)
		h.haltWith(ch, PipeTransactionError)
	case st&otg.ChintTSFCMPN != 0:
		clear(otg.ChintTSFCMPN)
		h.haltWith(ch, PipeOK)
	case st&otg.ChintRXTXACK != 0:
		clear(otg.ChintRXTXACK)
		if p.URB == URBPing {
			p.URB = URBOK
		}
	case st&otg.ChintRXSTALL != 0:
		clear(otg.ChintRXSTALL)
		h.haltWith(ch, PipeStall)
	case st&otg.ChintRXNAK != 0:
		clear(otg.ChintRXNAK)
		h.haltWith(ch, PipeNAK)
	case st&otg.ChintTERR != 0:
		clear(otg.ChintTERR)
		h.haltWith(ch, PipeTransactionError)
	case st&otg.ChintRXNYET != 0:
		clear(otg.ChintRXNYET)
		h.haltWith(ch, PipeNYET)
	case st&otg.ChintDTOG != 0:
		clear(otg.ChintRXNAK | otg.ChintDTOG)
		h.haltWith(ch, PipeToggleError)
	case st&otg.ChintTSFCMPAN != 0:
		clear(otg.ChintTSFCMPAN)
		reg.ClearMask(&r.HCHIMASK, otg.ChintTSFCMPAN)
		p.state = channelHalted
		switch p.State {
		case PipeOK:
			p.URB = URBOK
		case PipeNAK:
			p.URB = URBNotReady
		case PipeNYET:
			if p.Ping {
				h.PingChannel(ch)
			}
			p.URB = URBNotReady
		case PipeStall:
			p.URB = URBStall
		case PipeTransactionError, PipeToggleError:
			p.URB = URBError
		}
		if p.EndpointType != EndpointTypeControl {
			h.commitToggle(ch)
		}
		pkg.LogDebug(pkg.ComponentChannel, "out complete", "ch", ch, "state", p.State, "urb", p.URB)
	}
}

// portInterrupt tracks connection and port enable. When the port comes up
// the frame interval and PHY clock follow the negotiated speed; a clock
// change needs another port reset.
func (h *Host) portInterrupt() {
	p := &h.regs.H.HPORTCSTS
	if *p&otg.PortPCINTFLG != 0 {
		reg.ClearMask(p, otg.PortPCINTFLG)
		h.connected = true
		pkg.LogDebug(pkg.ComponentPort, "connected")
	}
	if *p&otg.PortPENCHG != 0 {
		reg.ClearMask(p, otg.PortPENCHG)
		if *p&otg.PortPEN != 0 {
			clk := reg.Get(&h.regs.H.HCFG, otg.HcfgPHYCLKSEL)
			switch h.PortSpeed() {
			case otg.SpeedLow:
				reg.SetN(&h.regs.H.HFIVL, otg.HfivlFIVL, 6000)
				if clk != otg.PhyClk6MHz {
					reg.SetN(&h.regs.H.HCFG, otg.HcfgPHYCLKSEL, otg.PhyClk6MHz)
					h.PortReset()
				}
			case otg.SpeedFull:
				reg.SetN(&h.regs.H.HFIVL, otg.HfivlFIVL, 48000)
				if clk != otg.PhyClk48MHz {
					reg.SetN(&h.regs.H.HCFG, otg.HcfgPHYCLKSEL, otg.PhyClk48MHz)
					h.PortReset()
				}
			default:
				h.PortReset()
			}
			h.portEnabled = true
			reg.SetMask(&h.regs.G.GINTMASK, otg.GintDEDIS)
			pkg.LogDebug(pkg.ComponentPort, "enabled", "speed", h.PortSpeed())
		} else {
			h.portEnabled = false
			pkg.LogDebug(pkg.ComponentPort, "disabled")
		}
	}
	reg.ClearMask(p, otg.PortChangeFlags)
}

// disconnectInterrupt masks and clears every interrupt; the session
// machine re-initialises the core on its next poll.
func (h *Host) disconnectInterrupt() {
	g := &h.regs.G
	g.GCINT = 0
	g.GINTMASK = 0
	h.disableGlobalInterrupt()
	h.connected = false
	pkg.LogDebug(pkg.ComponentPort, "disconnect")
}

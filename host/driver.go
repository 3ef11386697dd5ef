package host

import (
	"time"

	"github.com/apm32sdk/usbotg/otg"
	"github.com/apm32sdk/usbotg/pkg"
	"github.com/apm32sdk/usbotg/pkg/reg"
)

// Busy-wait budgets of the core driver.
const (
	resetPollLimit = 0x30000
	portResetTime  = 100 * time.Millisecond
	portRecovery   = 70 * time.Millisecond
)

// channelMask returns the interrupt enable set for a channel of the given
// type and direction.
func channelMask(epType uint8, in, ping bool) uint32 {
	var m uint32
	switch epType {
	case EndpointTypeControl, EndpointTypeBulk:
		m = otg.ChintTSFCMPN | otg.ChintRXSTALL | otg.ChintTERR | otg.ChintDTOG | otg.ChintRXNAK
		switch {
		case in && epType == EndpointTypeBulk:
			m |= otg.ChintBABBLE
		case !in:
			m |= otg.ChintRXNYET
			if ping {
				m |= otg.ChintRXTXACK
			}
		}
	case EndpointTypeIsochronous:
		m = otg.ChintTSFCMPN | otg.ChintFOVR | otg.ChintRXTXACK
		if in {
			m |= otg.ChintTERR | otg.ChintBABBLE
		}
	case EndpointTypeInterrupt:
		m = otg.ChintTSFCMPN | otg.ChintRXNAK | otg.ChintRXSTALL | otg.ChintTERR | otg.ChintDTOG | otg.ChintFOVR
		if in {
			m |= otg.ChintBABBLE
		}
	}
	return m
}

// OpenChannel programs channel ch for the endpoint it was allocated to:
// device address, type, packet size and the interrupt set for the type.
func (h *Host) OpenChannel(ch int, devAddr uint8, epType uint8, maxPacketSize uint16) error {
	if !validChannel(ch) {
		return pkg.ErrInvalidChannel
	}
	p := &h.pipes[ch]
	p.EndpointType = epType
	p.MaxPacketSize = maxPacketSize
	p.Ping = h.speed == otg.SpeedHigh
	p.state = channelIdle

	r := &h.regs.H.Ch[ch]
	r.HCHINT = 0
	r.HCHIMASK = channelMask(epType, p.In(), p.Ping)
	reg.SetMask(&h.regs.H.HACHIMASK, 1<<ch)
	reg.SetMask(&h.regs.G.GINTMASK, otg.GintHCHAN)

	var v uint32
	v = otg.HchDVADDR.Put(v, uint32(devAddr))
	v = otg.HchEDPNUM.Put(v, uint32(p.EndpointAddr&0x0F))
	v = otg.HchEDPTYP.Put(v, uint32(epType))
	v = otg.HchMAXPSIZE.Put(v, uint32(maxPacketSize))
	if p.In() {
		v |= otg.HchEDPDRT
	}
	if h.speed == otg.SpeedLow {
		v |= otg.HchLSDV
	}
	if epType == EndpointTypeInterrupt {
		v |= otg.HchODDF
	}
	r.HCH = v
	pkg.LogDebug(pkg.ComponentChannel, "open", "ch", ch, "addr", devAddr,
		"ep", p.EndpointAddr, "type", epType, "mps", maxPacketSize)
	return nil
}

// setChannelAddress reprograms the device address of channel ch.
func (h *Host) setChannelAddress(ch int, devAddr uint8) {
	reg.SetN(&h.regs.H.Ch[ch].HCH, otg.HchDVADDR, uint32(devAddr))
}

// packetCount returns the packets a transfer of n bytes needs and the
// length the channel is programmed with: at least one packet, at most
// MaxPacketCount, with the length cut to whole packets when clamped.
func packetCount(n int, mps uint16) (pkts int, length int) {
	if mps == 0 {
		mps = 1
	}
	m := int(mps)
	if n <= 0 {
		return 1, 0
	}
	pkts = (n + m - 1) / m
	if pkts > otg.MaxPacketCount {
		pkts = otg.MaxPacketCount
		n = pkts * m
	}
	return pkts, n
}

// programChannel loads the transfer size registers, selects the frame
// parity and enables the channel.
func (h *Host) programChannel(ch int, size, pkts int, pid uint8) {
	r := &h.regs.H.Ch[ch]
	var t uint32
	t = otg.TsizeTSFSIZE.Put(t, uint32(size))
	t = otg.TsizePCKTCNT.Put(t, uint32(pkts))
	t = otg.TsizeDATAPID.Put(t, uint32(pid))
	r.HCHTSIZE = t &^ otg.TsizeDOPING
	h.selectFrame(ch)
	h.pipes[ch].state = channelActive
	h.enableChannel(ch)
}

// selectFrame schedules channel ch for the frame after the current one.
func (h *Host) selectFrame(ch int) {
	r := &h.regs.H.Ch[ch]
	if reg.Get(&h.regs.H.HFIFM, otg.HfifmFNUM)%2 == 1 {
		reg.ClearMask(&r.HCH, otg.HchODDF)
	} else {
		reg.SetMask(&r.HCH, otg.HchODDF)
	}
}

func (h *Host) enableChannel(ch int) {
	r := &h.regs.H.Ch[ch]
	r.HCH = (r.HCH | otg.HchCHEN) &^ otg.HchCHINT
}

// enableOutTransfer starts an OUT transfer of buf. Packets that fit go to
// the FIFO at once; the rest is left pending and the TxFIFO empty
// interrupt of the channel's FIFO is enabled so the handler writes it as
// space frees up.
func (h *Host) enableOutTransfer(ch int, buf []byte, pid uint8) {
	p := &h.pipes[ch]
	pkts, n := packetCount(len(buf), p.MaxPacketSize)
	buf = buf[:n]
	p.buf = buf
	p.pending = buf
	p.count = 0
	p.DataPID = pid
	h.programChannel(ch, n, pkts, pid)
	if n == 0 {
		p.pending = nil
		return
	}
	if h.fillTxFIFO(ch) {
		return
	}
	irq := otg.GintNPTXFEM
	if isPeriodic(p.EndpointType) {
		irq = otg.GintPTXFE
	}
	reg.SetMask(&h.regs.G.GINTMASK, irq)
	pkg.LogDebug(pkg.ComponentFIFO, "deferred write", "ch", ch, "len", n, "left", len(p.pending))
}

// fillTxFIFO writes whole pending packets of channel ch while the FIFO has
// room for them. It reports whether nothing is left pending.
func (h *Host) fillTxFIFO(ch int) bool {
	p := &h.pipes[ch]
	mps := max(int(p.MaxPacketSize), 1)
	for len(p.pending) > 0 {
		n := min(mps, len(p.pending))
		if (n+3)/4 > h.txFree(isPeriodic(p.EndpointType)) {
			return false
		}
		h.hw.WritePacket(ch, p.pending[:n])
		p.pending = p.pending[n:]
		p.count += n
	}
	p.pending = nil
	return true
}

// enableInTransfer starts an IN transfer of up to n bytes into buf. The
// channel is programmed with whole packets.
func (h *Host) enableInTransfer(ch int, buf []byte, n int, pid uint8) {
	p := &h.pipes[ch]
	pkts, _ := packetCount(n, p.MaxPacketSize)
	p.buf = buf
	p.pending = nil
	p.count = 0
	p.DataPID = pid
	h.programChannel(ch, pkts*int(p.MaxPacketSize), pkts, pid)
}

// HaltChannel disables channel ch. When the request queue the channel
// feeds is full its entry is flushed first. Halting a channel that is not
// active is a no-op.
func (h *Host) HaltChannel(ch int) {
	if !validChannel(ch) {
		return
	}
	p := &h.pipes[ch]
	if p.state != channelActive {
		return
	}
	r := &h.regs.H.Ch[ch]
	h.hw.IntStatus()
	var space uint32
	switch reg.Get(&r.HCH, otg.HchEDPTYP) {
	case EndpointTypeControl, EndpointTypeBulk:
		space = reg.Get(&h.regs.G.GNPTXFQSTS, otg.NptxqNPTXRSA)
	default:
		space = reg.Get(&h.regs.H.HPTXSTS, otg.HptxstsQSPACE)
	}
	if space == 0 {
		r.HCH = (r.HCH | otg.HchCHINT) &^ otg.HchCHEN
		p.flushes++
		pkg.LogDebug(pkg.ComponentChannel, "flush request queue", "ch", ch)
	}
	r.HCH |= otg.HchCHEN | otg.HchCHINT
	p.state = channelHalting
	pkg.LogDebug(pkg.ComponentChannel, "halt", "ch", ch)
}

// PingChannel starts a PING on OUT channel ch.
func (h *Host) PingChannel(ch int) {
	if !validChannel(ch) {
		return
	}
	r := &h.regs.H.Ch[ch]
	r.HCHTSIZE = otg.TsizePCKTCNT.Put(0, 1) | otg.TsizeDOPING
	h.pipes[ch].state = channelActive
	h.enableChannel(ch)
}

// PortReset drives reset on the root port for the required time and waits
// for the device to recover.
func (h *Host) PortReset() {
	p := &h.regs.H.HPORTCSTS
	reg.ClearMask(p, otg.PortPEN|otg.PortPENCHG|otg.PortPOVCCHG)
	reg.SetMask(p, otg.PortPRST)
	h.hw.Delay(portResetTime)
	reg.ClearMask(p, otg.PortPRST)
	h.hw.Delay(portRecovery)
	pkg.LogDebug(pkg.ComponentPort, "reset")
}

// PortSpeed returns the speed the port negotiated.
func (h *Host) PortSpeed() otg.Speed {
	return otg.Speed(reg.Get(&h.regs.H.HPORTCSTS, otg.PortPSPDSEL))
}

// stopHost disables every channel interrupt, flushes each channel's
// request queue entry and both FIFOs.
func (h *Host) stopHost() {
	h.regs.H.HACHIMASK = 0
	for ch := range h.regs.H.Ch {
		r := &h.regs.H.Ch[ch]
		r.HCH = (r.HCH | otg.HchCHINT) &^ (otg.HchCHEN | otg.HchEDPDRT)
	}
	h.flushRxFIFO()
	h.flushTxFIFO(otg.TxFIFOAll)
}

// waitClear polls until bit of GRSTCTRL reads zero.
func (h *Host) waitClear(bit uint32) bool {
	g := &h.regs.G
	for i := 0; i < resetPollLimit; i++ {
		if g.GRSTCTRL&bit == 0 {
			return true
		}
		h.hw.Delay(time.Microsecond)
	}
	return false
}

func (h *Host) flushTxFIFO(n uint32) {
	g := &h.regs.G
	g.GRSTCTRL = otg.RstTXFNUM.Put(g.GRSTCTRL, n) | otg.RstTXFFLU
	if !h.waitClear(otg.RstTXFFLU) {
		pkg.LogWarn(pkg.ComponentFIFO, "tx flush timeout", "fifo", n)
	}
	h.hw.Delay(3 * time.Microsecond)
}

func (h *Host) flushRxFIFO() {
	reg.SetMask(&h.regs.G.GRSTCTRL, otg.RstRXFFLU)
	if !h.waitClear(otg.RstRXFFLU) {
		pkg.LogWarn(pkg.ComponentFIFO, "rx flush timeout")
	}
	h.hw.Delay(3 * time.Microsecond)
}

// coreSoftReset resets the core once the AHB master is idle.
func (h *Host) coreSoftReset() {
	g := &h.regs.G
	if !reg.WaitFor(resetPollLimit, &g.GRSTCTRL, reg.Bit(31), 1, func() { h.hw.Delay(time.Microsecond) }) {
		pkg.LogWarn(pkg.ComponentCore, "AHB master busy")
		return
	}
	reg.SetMask(&g.GRSTCTRL, otg.RstCSRST)
	if !h.waitClear(otg.RstCSRST) {
		pkg.LogWarn(pkg.ComponentCore, "soft reset timeout")
	}
	h.hw.Delay(3 * time.Microsecond)
}

// globalInit selects the PHY, resets the core and powers the transceiver.
func (h *Host) globalInit() {
	g := &h.regs.G
	reg.SetMask(&g.GUSBCFG, otg.UsbcfgPHYSEL)
	h.coreSoftReset()
	reg.SetMask(&g.GGCCFG, otg.GgccfgPWEN|otg.GgccfgVBSDIS)
	if h.opts.sofOutput {
		reg.SetMask(&g.GGCCFG, otg.GgccfgSOFPOUT)
	}
	h.hw.Delay(20 * time.Millisecond)
}

// hostInit forces host mode, sizes the FIFOs, powers the port and enables
// the host interrupts.
func (h *Host) hostInit() {
	g := &h.regs.G
	cfg := h.hw.Config()

	g.GUSBCFG = (g.GUSBCFG | otg.UsbcfgFHMODE) &^ otg.UsbcfgFDMODE
	h.hw.Delay(50 * time.Millisecond)
	h.regs.PCGCTRL = 0
	reg.SetN(&h.regs.H.HCFG, otg.HcfgPHYCLKSEL, otg.PhyClk48MHz)
	h.PortReset()
	h.hw.Delay(200 * time.Millisecond)

	rx := uint32(cfg.RxFIFODepth)
	np := uint32(cfg.NonPeriodicTxFIFODepth)
	g.GRXFIFO = otg.RxfifoRXFDEP.Put(0, rx)
	g.GTXFCFG = otg.TxfcfgDepth.Put(otg.TxfcfgStart.Put(0, rx), np)
	g.GHPTXFSIZE = otg.TxfcfgDepth.Put(otg.TxfcfgStart.Put(0, rx+np), uint32(cfg.PeriodicTxFIFODepth))

	h.flushTxFIFO(otg.TxFIFOAll)
	h.flushRxFIFO()
	for ch := range h.regs.H.Ch {
		h.regs.H.Ch[ch].HCHINT = 0
		h.regs.H.Ch[ch].HCHIMASK = 0
	}
	reg.SetMask(&h.regs.H.HPORTCSTS, otg.PortPP)

	g.GINTMASK = 0
	g.GCINT = 0
	g.GINTMASK = otg.GintUSBSUS | otg.GintRWAKE | otg.GintRXFNONE |
		otg.GintHPORT | otg.GintHCHAN | otg.GintIPOUTTX
	pkg.LogDebug(pkg.ComponentHost, "core initialised",
		"rx", rx, "np", np, "p", cfg.PeriodicTxFIFODepth)
}

func (h *Host) enableGlobalInterrupt() {
	reg.SetMask(&h.regs.G.GAHBCFG, otg.AhbcfgGINTMASK)
}

func (h *Host) disableGlobalInterrupt() {
	reg.ClearMask(&h.regs.G.GAHBCFG, otg.AhbcfgGINTMASK)
}

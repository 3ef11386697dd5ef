package otg

import (
	"github.com/apm32sdk/usbotg/pkg"
	"github.com/apm32sdk/usbotg/pkg/reg"
)

// The methods below let a device-mode Core act as the Function on the port
// of a host-mode Core.

// Connected reports whether the device-mode core is soft-connected.
func (c *Core) Connected() bool {
	return !c.HostMode() && c.Regs.D.DCTRL&DctrlSDCNNT == 0
}

// BusReset signals the end of a bus reset: USBRST and ENUMD are raised and
// the enumerated speed is reported in DSTS.
func (c *Core) BusReset(speed Speed) {
	if c.HostMode() {
		return
	}
	c.addr = 0
	d := &c.Regs.D
	reg.ClearMask(&d.DSTS, DstsSUSSTS)
	enum := uint32(EnumSpeedFull48)
	switch speed {
	case SpeedHigh:
		enum = EnumSpeedHigh
	case SpeedLow:
		enum = EnumSpeedLow
	}
	reg.SetN(&d.DSTS, DstsENUMSPD, enum)
	reg.SetMask(&c.Regs.G.GCINT, GintUSBRST|GintENUMD)
	pkg.LogDebug(pkg.ComponentDevice, "bus reset", "speed", speed)
	c.Sync()
}

// Suspend signals bus idle.
func (c *Core) Suspend() {
	if c.HostMode() {
		return
	}
	reg.SetMask(&c.Regs.D.DSTS, DstsSUSSTS)
	reg.SetMask(&c.Regs.G.GCINT, GintUSBSUS)
	c.Sync()
}

// Resume signals resume signalling from the host.
func (c *Core) Resume() {
	if c.HostMode() {
		return
	}
	reg.ClearMask(&c.Regs.D.DSTS, DstsSUSSTS)
	reg.SetMask(&c.Regs.G.GCINT, GintRWAKE)
	c.Sync()
}

// StartOfFrame latches the frame number and raises SOF.
func (c *Core) StartOfFrame(frame uint16) {
	if !c.Connected() {
		return
	}
	reg.SetN(&c.Regs.D.DSTS, DstsSOFNUM, uint32(frame))
	reg.SetMask(&c.Regs.G.GCINT, GintSOF)
}

// match reports whether a token for addr is meant for this device. The
// device keeps answering on its old address until the host first uses the
// one programmed in DCFG, which lets a SET_ADDRESS status stage complete.
func (c *Core) match(addr uint8) bool {
	if !c.Connected() {
		return false
	}
	if addr == c.addr {
		return true
	}
	if daddr := uint8(reg.Get(&c.Regs.D.DCFG, DcfgDADDR)); addr == daddr {
		c.addr = daddr
		return true
	}
	return false
}

// epMaxPacket decodes the maximum packet size of an endpoint control
// register. EP0 uses a two-bit code.
func epMaxPacket(ep uint8, ctl uint32) int {
	v := int(EpctlMAXPS.Get(ctl))
	if ep != 0 {
		return v
	}
	switch v & 3 {
	case Ep0MPS32:
		return 32
	case Ep0MPS16:
		return 16
	case Ep0MPS8:
		return 8
	default:
		return 64
	}
}

// Setup accepts a SETUP packet on EP0. SETUP is never NAKed; it clears any
// EP0 stall.
func (c *Core) Setup(addr uint8, pkt [8]byte) Handshake {
	if !c.match(addr) {
		return HandshakeTimeout
	}
	if c.rxFree() < 4 {
		pkg.LogWarn(pkg.ComponentFIFO, "rx fifo full, SETUP dropped")
		return HandshakeTimeout
	}
	d := &c.Regs.D
	reg.ClearMask(&d.In[0].DIEPCTRL, EpctlSTALLH)
	reg.ClearMask(&d.Out[0].DOEPCTRL, EpctlSTALLH)
	if cnt := reg.Get(&d.Out[0].DOEPTRS, EptrsPIDSPCNT); cnt > 0 {
		reg.SetN(&d.Out[0].DOEPTRS, EptrsPIDSPCNT, cnt-1)
	}
	c.pushRx(RxStatus(0, 8, PidData0, PktStatusSetupData), pkt[:])
	c.pushRx(RxStatus(0, 0, 0, PktStatusSetupComplete), nil)
	c.Sync()
	return HandshakeACK
}

// Out accepts an OUT data packet.
func (c *Core) Out(addr, ep, pid uint8, data []byte) Handshake {
	if !c.match(addr) || ep >= DeviceEndpoints {
		return HandshakeTimeout
	}
	o := &c.Regs.D.Out[ep]
	switch {
	case o.DOEPCTRL&EpctlSTALLH != 0:
		return HandshakeSTALL
	case o.DOEPCTRL&EpctlEPEN == 0:
		reg.SetMask(&o.DOEPINT, DoepintRXOTDIS)
		return HandshakeNAK
	case o.DOEPCTRL&EpctlNAKSTS != 0:
		return HandshakeNAK
	case c.rxFree() < (len(data)+3)/4+2:
		return HandshakeNAK
	}
	mps := epMaxPacket(ep, o.DOEPCTRL)
	c.pushRx(RxStatus(uint32(ep), uint32(len(data)), uint32(pid), PktStatusOutData), data)
	cnt := reg.Get(&o.DOEPTRS, EptrsEPPCNT)
	if cnt > 0 {
		cnt--
		reg.SetN(&o.DOEPTRS, EptrsEPPCNT, cnt)
	}
	size := int(reg.Get(&o.DOEPTRS, EptrsEPTRS)) - len(data)
	reg.SetN(&o.DOEPTRS, EptrsEPTRS, uint32(max(size, 0)))
	if cnt == 0 || len(data) < mps {
		reg.ClearMask(&o.DOEPCTRL, EpctlEPEN)
		reg.SetMask(&o.DOEPCTRL, EpctlNAKSTS)
		c.pushRx(RxStatus(uint32(ep), 0, 0, PktStatusOutComplete), nil)
	}
	c.Sync()
	return HandshakeACK
}

// In answers an IN token from the endpoint's transmit FIFO.
func (c *Core) In(addr, ep, pid uint8, maxLen int) ([]byte, Handshake) {
	if !c.match(addr) || ep >= DeviceEndpoints {
		return nil, HandshakeTimeout
	}
	in := &c.Regs.D.In[ep]
	switch {
	case in.DIEPCTRL&EpctlSTALLH != 0:
		return nil, HandshakeSTALL
	case in.DIEPCTRL&EpctlEPEN == 0, in.DIEPCTRL&EpctlNAKSTS != 0:
		return nil, HandshakeNAK
	}
	cnt := reg.Get(&in.DIEPTRS, EptrsEPPCNT)
	if cnt == 0 {
		return nil, HandshakeNAK
	}
	n := epMaxPacket(ep, in.DIEPCTRL)
	if size := int(reg.Get(&in.DIEPTRS, EptrsEPTRS)); size < n {
		n = size
	}
	data, ok := popTx(&c.epTx[ep], n)
	if !ok {
		reg.SetMask(&in.DIEPINT, DiepintITXEMP)
		c.Sync()
		return nil, HandshakeNAK
	}
	cnt--
	reg.SetN(&in.DIEPTRS, EptrsEPPCNT, cnt)
	reg.SetN(&in.DIEPTRS, EptrsEPTRS, reg.Get(&in.DIEPTRS, EptrsEPTRS)-uint32(n))
	if cnt == 0 {
		reg.ClearMask(&in.DIEPCTRL, EpctlEPEN)
		reg.SetMask(&in.DIEPINT, DiepintTSFCMP)
	}
	c.Sync()
	return data, HandshakeACK
}

// Ping reports whether an OUT endpoint can take a packet.
func (c *Core) Ping(addr, ep uint8) Handshake {
	if !c.match(addr) || ep >= DeviceEndpoints {
		return HandshakeTimeout
	}
	o := &c.Regs.D.Out[ep]
	switch {
	case o.DOEPCTRL&EpctlSTALLH != 0:
		return HandshakeSTALL
	case o.DOEPCTRL&EpctlEPEN == 0, o.DOEPCTRL&EpctlNAKSTS != 0:
		return HandshakeNAK
	}
	return HandshakeACK
}

// serviceEndpoints applies the write-only endpoint control bits.
func (c *Core) serviceEndpoints() {
	d := &c.Regs.D
	for ep := 0; ep < DeviceEndpoints; ep++ {
		serviceEpctl(&d.In[ep].DIEPCTRL, &d.In[ep].DIEPINT, DiepintEPDIS)
		serviceEpctl(&d.Out[ep].DOEPCTRL, &d.Out[ep].DOEPINT, DoepintEPDIS)
	}
}

func serviceEpctl(ctl, intr *uint32, disabled uint32) {
	if *ctl&EpctlNAKCLR != 0 {
		reg.ClearMask(ctl, EpctlNAKCLR|EpctlNAKSTS)
	}
	if *ctl&EpctlNAKSET != 0 {
		reg.ClearMask(ctl, EpctlNAKSET)
		reg.SetMask(ctl, EpctlNAKSTS)
	}
	if *ctl&EpctlDPIDSET != 0 {
		reg.ClearMask(ctl, EpctlDPIDSET)
	}
	if *ctl&EpctlEPDIS != 0 {
		if *ctl&EpctlEPEN != 0 {
			reg.SetMask(intr, disabled)
		}
		reg.ClearMask(ctl, EpctlEPDIS|EpctlEPEN)
	}
}

func (c *Core) syncDevice() {
	g := &c.Regs.G
	d := &c.Regs.D
	d.DAEPINT = 0
	for ep := 0; ep < DeviceEndpoints; ep++ {
		in := &d.In[ep]
		if len(c.epTx[ep]) == 0 {
			in.DIEPINT |= DiepintTXFE
		} else {
			in.DIEPINT &^= DiepintTXFE
		}
		reg.SetN(&in.DITXFSTS, DitxfstsINEPTXFSA, uint32(max(c.epTxFree(ep), 0)))
		mask := d.DINIMASK
		if d.DIEIMASK&(1<<ep) != 0 {
			mask |= DiepintTXFE
		}
		if in.DIEPINT&mask != 0 {
			d.DAEPINT |= 1 << ep
		}
		if d.Out[ep].DOEPINT&d.DOUTIMASK != 0 {
			d.DAEPINT |= 1 << (16 + ep)
		}
	}
	if DaepintIN.Get(d.DAEPINT&d.DAEPIMASK) != 0 {
		g.GCINT |= GintINEP
	}
	if DaepintOUT.Get(d.DAEPINT&d.DAEPIMASK) != 0 {
		g.GCINT |= GintONEP
	}
}

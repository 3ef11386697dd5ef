package otg

import (
	"time"

	"github.com/apm32sdk/usbotg/pkg"
	"github.com/apm32sdk/usbotg/pkg/reg"
)

// Core is a behavioural model of one OTG core.
//
// Drivers program Regs directly. The model reacts to what they stored at
// three points: Step runs one bus frame, Delay advances virtual time during
// a driver busy-wait, and Service applies pending control bits (soft reset,
// FIFO flushes, channel halts, port reset edges). Summary registers are
// recomputed by Sync, which IntStatus calls before returning.
//
// A Core is not safe for concurrent use; like the hardware it models, it has
// one foreground context and one interrupt context that never overlap.
type Core struct {
	Regs Registers

	cfg   Config
	now   time.Duration
	frame uint16

	rx  []rxEntry
	cur []uint32 // unread data words of the last popped status

	chTx [HostChannels][]uint32
	epTx [DeviceEndpoints][]uint32

	// host port
	fn       Function
	fnSpeed  Speed
	attached bool
	inReset  bool
	suspend  bool

	// device side
	addr uint8 // address the device answers on
}

// New creates a core in its power-on state.
func New(opts ...Option) *Core {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	c := &Core{cfg: cfg}
	c.powerOn()
	return c
}

func (c *Core) powerOn() {
	c.Regs = Registers{}
	c.Regs.G.GRSTCTRL = RstAHBMIDL
	c.Regs.G.GCID = 0x00001200
	c.Regs.G.GRXFIFO = uint32(c.cfg.FIFOWords)
	c.Regs.G.GTXFCFG = TxfcfgDepth.Put(uint32(c.cfg.FIFOWords), uint32(c.cfg.FIFOWords))
	c.Regs.H.HFIVL = 48000
	c.Regs.D.DCTRL = DctrlSDCNNT
	c.resetFIFOs()
	c.frame = 0
	c.Sync()
}

// Registers returns the register file drivers program.
func (c *Core) Registers() *Registers {
	return &c.Regs
}

// Config returns the configuration the core was built with.
func (c *Core) Config() Config {
	return c.cfg
}

// Now returns the virtual time elapsed since the core was created.
func (c *Core) Now() time.Duration {
	return c.now
}

// Frame returns the current frame number.
func (c *Core) Frame() uint16 {
	return c.frame
}

// HostMode reports whether the core currently operates as a host.
func (c *Core) HostMode() bool {
	u := c.Regs.G.GUSBCFG
	switch {
	case u&UsbcfgFHMODE != 0:
		return true
	case u&UsbcfgFDMODE != 0:
		return false
	}
	return c.cfg.Mode == ModeHost
}

// Delay advances virtual time by d and services pending control bits.
// Drivers call it wherever the firmware busy-waits.
func (c *Core) Delay(d time.Duration) {
	c.now += d
	c.Service()
}

// Service applies control bits written since the last call: core soft
// reset, FIFO flushes, channel halts and the end of a port reset.
func (c *Core) Service() {
	g := &c.Regs.G
	if g.GRSTCTRL&RstCSRST != 0 {
		c.softReset()
		reg.ClearMask(&g.GRSTCTRL, RstCSRST)
	}
	if g.GRSTCTRL&RstTXFFLU != 0 {
		c.flushTx(reg.Get(&g.GRSTCTRL, RstTXFNUM))
		reg.ClearMask(&g.GRSTCTRL, RstTXFFLU)
	}
	if g.GRSTCTRL&RstRXFFLU != 0 {
		c.rx = nil
		c.cur = nil
		reg.ClearMask(&g.GRSTCTRL, RstRXFFLU)
	}
	reg.SetMask(&g.GRSTCTRL, RstAHBMIDL)
	if c.HostMode() {
		c.serviceChannels()
		c.servicePort()
	} else {
		c.serviceEndpoints()
	}
	c.Sync()
}

func (c *Core) softReset() {
	pkg.LogDebug(pkg.ComponentCore, "soft reset", "mode", c.modeName())
	c.resetFIFOs()
	c.Regs.G.GCINT = 0
	for i := range c.Regs.H.Ch {
		ch := &c.Regs.H.Ch[i]
		ch.HCHINT = 0
		ch.HCH &^= HchCHEN | HchCHINT
	}
	for i := range c.Regs.D.In {
		c.Regs.D.In[i].DIEPINT = 0
		c.Regs.D.In[i].DIEPCTRL &^= EpctlEPEN
		c.Regs.D.Out[i].DOEPINT = 0
		c.Regs.D.Out[i].DOEPCTRL &^= EpctlEPEN
	}
	c.Regs.H.HFIFM = 0
	c.frame = 0
}

func (c *Core) resetFIFOs() {
	c.rx = nil
	c.cur = nil
	for i := range c.chTx {
		c.chTx[i] = nil
	}
	for i := range c.epTx {
		c.epTx[i] = nil
	}
}

// flushTx empties transmit FIFO n, or every FIFO for TxFIFOAll. In host
// mode FIFO 0 is the non-periodic FIFO and FIFO 1 the periodic one.
func (c *Core) flushTx(n uint32) {
	pkg.LogDebug(pkg.ComponentFIFO, "flush tx", "fifo", n)
	if !c.HostMode() {
		for i := range c.epTx {
			if n == TxFIFOAll || uint32(i) == n {
				c.epTx[i] = nil
			}
		}
		return
	}
	for i := range c.chTx {
		periodic := c.periodic(i)
		if n == TxFIFOAll || (n == 0 && !periodic) || (n == 1 && periodic) {
			c.chTx[i] = nil
		}
	}
}

func (c *Core) modeName() string {
	if c.HostMode() {
		return ModeHost.String()
	}
	return ModeDevice.String()
}

// Sync recomputes the derived summary registers from the stored state.
func (c *Core) Sync() {
	g := &c.Regs.G
	g.GCINT &^= GintDerived
	if c.HostMode() {
		g.GCINT |= GintCURMOSEL
	}
	if len(c.rx) > 0 {
		g.GCINT |= GintRXFNONE
		g.GRXSTS = c.rx[0].status
	}
	if c.HostMode() {
		c.syncHost()
	} else {
		c.syncDevice()
	}
}

// IntStatus returns the pending core interrupts, GCINT & GINTMASK.
func (c *Core) IntStatus() uint32 {
	c.Sync()
	return c.Regs.G.GCINT & c.Regs.G.GINTMASK
}

// Pending reports whether the interrupt line is asserted: the global
// interrupt enable is set and at least one unmasked interrupt is pending.
func (c *Core) Pending() bool {
	return c.Regs.G.GAHBCFG&AhbcfgGINTMASK != 0 && c.IntStatus() != 0
}

// ChannelIntStatus returns the pending interrupts of host channel ch.
func (c *Core) ChannelIntStatus(ch int) uint32 {
	return c.Regs.H.Ch[ch].HCHINT & c.Regs.H.Ch[ch].HCHIMASK
}

// InEndpointIntStatus returns the pending interrupts of device IN endpoint
// ep, including the TxFIFO-empty level when DIEIMASK enables it.
func (c *Core) InEndpointIntStatus(ep int) uint32 {
	c.Sync()
	d := &c.Regs.D
	mask := d.DINIMASK
	if d.DIEIMASK&(1<<ep) != 0 {
		mask |= DiepintTXFE
	}
	return d.In[ep].DIEPINT & mask
}

// OutEndpointIntStatus returns the pending interrupts of device OUT
// endpoint ep.
func (c *Core) OutEndpointIntStatus(ep int) uint32 {
	return c.Regs.D.Out[ep].DOEPINT & c.Regs.D.DOUTIMASK
}

// Step runs one bus frame. In host mode the frame number advances, a start
// of frame is signalled, the port is serviced and every enabled channel
// gets at most one transaction. A device-mode core is driven by the host
// side and Step only services control bits.
func (c *Core) Step() {
	c.now += c.cfg.FrameDuration
	c.Service()
	if !c.HostMode() {
		return
	}
	c.frame = uint16((uint32(c.frame) + 1) & HfifmFNUM.Max())
	reg.SetN(&c.Regs.H.HFIFM, HfifmFNUM, uint32(c.frame))
	if c.portEnabled() && !c.suspend {
		reg.SetMask(&c.Regs.G.GCINT, GintSOF)
		c.fn.StartOfFrame(c.frame)
	}
	for ch := 0; ch < HostChannels; ch++ {
		c.stepChannel(ch)
	}
	c.Sync()
}

package device

import (
	"time"

	"github.com/apm32sdk/usbotg/otg"
	"github.com/apm32sdk/usbotg/pkg"
	"github.com/apm32sdk/usbotg/pkg/reg"
)

// Busy-wait budgets of the core driver.
const (
	resetPollLimit = 0x30000
	connectDelay   = 3 * time.Millisecond
	wakeupSignal   = 10 * time.Millisecond
)

// waitClear polls until bit of GRSTCTRL reads zero.
func (d *Device) waitClear(bit uint32) bool {
	g := &d.regs.G
	for i := 0; i < resetPollLimit; i++ {
		if g.GRSTCTRL&bit == 0 {
			return true
		}
		d.hw.Delay(time.Microsecond)
	}
	return false
}

func (d *Device) flushTxFIFO(n uint32) {
	g := &d.regs.G
	g.GRSTCTRL = otg.RstTXFNUM.Put(g.GRSTCTRL, n) | otg.RstTXFFLU
	if !d.waitClear(otg.RstTXFFLU) {
		pkg.LogWarn(pkg.ComponentFIFO, "tx flush timeout", "fifo", n)
	}
	d.hw.Delay(3 * time.Microsecond)
}

func (d *Device) flushRxFIFO() {
	reg.SetMask(&d.regs.G.GRSTCTRL, otg.RstRXFFLU)
	if !d.waitClear(otg.RstRXFFLU) {
		pkg.LogWarn(pkg.ComponentFIFO, "rx flush timeout")
	}
	d.hw.Delay(3 * time.Microsecond)
}

// coreSoftReset resets the core once the AHB master is idle.
func (d *Device) coreSoftReset() {
	g := &d.regs.G
	if !reg.WaitFor(resetPollLimit, &g.GRSTCTRL, reg.Bit(31), 1, func() { d.hw.Delay(time.Microsecond) }) {
		pkg.LogWarn(pkg.ComponentCore, "AHB master busy")
		return
	}
	reg.SetMask(&g.GRSTCTRL, otg.RstCSRST)
	if !d.waitClear(otg.RstCSRST) {
		pkg.LogWarn(pkg.ComponentCore, "soft reset timeout")
	}
	d.hw.Delay(3 * time.Microsecond)
}

// globalInit selects the PHY, resets the core, powers the transceiver and
// enables the device interrupt sources.
func (d *Device) globalInit() {
	g := &d.regs.G
	reg.SetMask(&g.GUSBCFG, otg.UsbcfgPHYSEL)
	d.coreSoftReset()
	reg.SetMask(&g.GGCCFG, otg.GgccfgPWEN|otg.GgccfgVBSDIS)
	if d.opts.sofOutput {
		reg.SetMask(&g.GGCCFG, otg.GgccfgSOFPOUT)
	}
	d.hw.Delay(20 * time.Millisecond)

	g.GINTMASK = 0
	g.GINT = 0
	g.GCINT = 0
	g.GINTMASK = globalInterrupts
}

// deviceInit forces device mode, sizes the receive FIFO and one transmit
// FIFO per IN endpoint, and resets every endpoint.
func (d *Device) deviceInit() {
	g := &d.regs.G
	cfg := d.hw.Config()

	g.GUSBCFG = (g.GUSBCFG | otg.UsbcfgFDMODE) &^ otg.UsbcfgFHMODE
	d.hw.Delay(50 * time.Millisecond)
	d.regs.PCGCTRL = 0
	reg.SetN(&d.regs.D.DCFG, otg.DcfgPFITV, 0) // 80% of the frame
	reg.SetN(&d.regs.D.DCFG, otg.DcfgDSPDSEL, otg.DeviceSpeedFull)

	rx := uint32(cfg.RxFIFODepth)
	g.GRXFIFO = otg.RxfifoRXFDEP.Put(0, rx)
	start := rx
	for ep, depth := range cfg.DeviceTxFIFODepths {
		v := otg.TxfcfgDepth.Put(otg.TxfcfgStart.Put(0, start), uint32(depth))
		if ep == 0 {
			g.GTXFCFG = v
		} else {
			g.DTXFIFO[ep-1] = v
		}
		start += uint32(depth)
	}

	d.flushTxFIFO(otg.TxFIFOAll)
	d.flushRxFIFO()

	dr := &d.regs.D
	dr.DINIMASK = 0
	dr.DOUTIMASK = 0
	dr.DAEPIMASK = 0
	dr.DIEIMASK = 0
	for ep := range dr.In {
		in := &dr.In[ep]
		if in.DIEPCTRL&otg.EpctlEPEN != 0 {
			in.DIEPCTRL = otg.EpctlEPDIS | otg.EpctlNAKSET
		} else {
			in.DIEPCTRL = 0
		}
		in.DIEPTRS = 0
		in.DIEPINT = 0
		out := &dr.Out[ep]
		if out.DOEPCTRL&otg.EpctlEPEN != 0 {
			out.DOEPCTRL = otg.EpctlEPDIS | otg.EpctlNAKSET
		} else {
			out.DOEPCTRL = 0
		}
		out.DOEPTRS = 0
		out.DOEPINT = 0
	}
	d.hw.Delay(time.Microsecond)
	pkg.LogDebug(pkg.ComponentDevice, "core initialised",
		"rx", rx, "tx", cfg.DeviceTxFIFODepths)
}

func (d *Device) enableGlobalInterrupt() {
	reg.SetMask(&d.regs.G.GAHBCFG, otg.AhbcfgGINTMASK)
}

func (d *Device) disableGlobalInterrupt() {
	reg.ClearMask(&d.regs.G.GAHBCFG, otg.AhbcfgGINTMASK)
}

// turnaround returns the USB turnaround time in PHY clocks for an AHB clock
// of hclk Hz.
func turnaround(hclk uint32) uint32 {
	const phy = 48000000
	if hclk == 0 || hclk >= phy {
		return 5
	}
	return (((phy<<2)+(hclk-1))/hclk + 1) & otg.UsbcfgTRTIM.Max()
}

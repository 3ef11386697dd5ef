package device

import (
	"github.com/apm32sdk/usbotg/otg"
	"github.com/apm32sdk/usbotg/pkg"
	"github.com/apm32sdk/usbotg/pkg/reg"
)

// HandleInterrupt is the OTG interrupt vector of the device. Each source
// is checked against the live status, so one call may service several of
// them. It must not be re-entered.
func (d *Device) HandleInterrupt() {
	if d.regs.G.GAHBCFG&otg.AhbcfgGINTMASK == 0 {
		return
	}
	if d.pending(otg.GintONEP) {
		d.outEndpointInterrupts()
	}
	if d.pending(otg.GintINEP) {
		d.inEndpointInterrupts()
	}
	if d.pending(otg.GintRXFNONE) {
		d.rxFIFONonEmpty()
	}
	if d.pending(otg.GintUSBRST) {
		d.busReset()
	}
	if d.pending(otg.GintRWAKE) {
		d.resume()
	}
	if d.pending(otg.GintUSBSUS) {
		d.suspend()
	}
	if d.pending(otg.GintENUMD) {
		d.enumerationDone()
	}
	for _, flag := range []uint32{otg.GintMMIS, otg.GintSOF, otg.GintSREQ, otg.GintOTG} {
		if d.pending(flag) {
			reg.ClearMask(&d.regs.G.GCINT, flag)
		}
	}
	if d.opts.intHook != nil {
		d.opts.intHook(d)
	}
}

func (d *Device) pending(flag uint32) bool {
	return d.hw.IntStatus()&flag != 0
}

// outEndpointInterrupts services every OUT endpoint with a pending
// interrupt. A completed transfer is reported before a SETUP on the same
// endpoint.
func (d *Device) outEndpointInterrupts() {
	bits := otg.DaepintOUT.Get(d.regs.D.DAEPINT & d.regs.D.DAEPIMASK)
	for ep := uint8(0); bits != 0; ep, bits = ep+1, bits>>1 {
		if bits&1 == 0 {
			continue
		}
		r := &d.regs.D.Out[ep]
		st := d.hw.OutEndpointIntStatus(int(ep))
		if st&otg.DoepintTSFCMP != 0 {
			reg.ClearMask(&r.DOEPINT, otg.DoepintTSFCMP)
			if ep == 0 {
				d.ctrlOutProcess()
			} else {
				d.class.OutComplete(d, ep)
			}
		}
		if st&otg.DoepintSETPCMP != 0 {
			reg.ClearMask(&r.DOEPINT, otg.DoepintSETPCMP)
			d.setupProcess()
		}
		reg.ClearMask(&r.DOEPINT, otg.DoepintEPDIS|otg.DoepintRXOTDIS|otg.DoepintRXBSP)
	}
}

// inEndpointInterrupts services every IN endpoint with a pending
// interrupt.
func (d *Device) inEndpointInterrupts() {
	bits := otg.DaepintIN.Get(d.regs.D.DAEPINT & d.regs.D.DAEPIMASK)
	for ep := uint8(0); bits != 0; ep, bits = ep+1, bits>>1 {
		if bits&1 == 0 {
			continue
		}
		r := &d.regs.D.In[ep]
		st := d.hw.InEndpointIntStatus(int(ep))
		if st&otg.DiepintTSFCMP != 0 {
			reg.ClearMask(&r.DIEPINT, otg.DiepintTSFCMP)
			reg.ClearMask(&d.regs.D.DIEIMASK, 1<<uint32(ep))
			if ep == 0 {
				d.ctrlInProcess()
			} else {
				d.class.InComplete(d, ep)
			}
		}
		if st&otg.DiepintTXFE != 0 {
			d.pushTxFIFO(ep)
		}
		reg.ClearMask(&r.DIEPINT, otg.DiepintEPDIS|otg.DiepintTO|otg.DiepintIEPNAKE|otg.DiepintITXEMP)
	}
}

// rxFIFONonEmpty pops one receive status. OUT data goes into the receive
// window of its endpoint and a SETUP packet into the setup buffer.
func (d *Device) rxFIFONonEmpty() {
	g := &d.regs.G
	reg.ClearMask(&g.GINTMASK, otg.GintRXFNONE)
	defer reg.SetMask(&g.GINTMASK, otg.GintRXFNONE)

	st := d.hw.PopRxStatus()
	ep := uint8(otg.RxstsCHNUM.Get(st))
	bcnt := int(otg.RxstsBCNT.Get(st))
	switch otg.RxstsPSTS.Get(st) {
	case otg.PktStatusOutData:
		if bcnt == 0 || ep >= MaxEndpoints {
			return
		}
		e := &d.out[ep]
		n := max(min(bcnt, len(e.buf)-e.count), 0)
		if n < bcnt {
			// the FIFO is read a word at a time, so drain the whole packet
			tmp := make([]byte, bcnt)
			d.hw.ReadPacket(tmp)
			copy(e.buf[e.count:], tmp[:n])
			pkg.LogWarn(pkg.ComponentFIFO, "rx data beyond buffer", "ep", ep, "dropped", bcnt-n)
		} else {
			d.hw.ReadPacket(e.buf[e.count : e.count+n])
		}
		e.count += n
		if e.packets > 0 {
			e.packets--
		}

	case otg.PktStatusSetupData:
		d.hw.ReadPacket(d.setup[:])
	}
}

// busReset returns the device to the default state: EP0 is reopened and
// armed for SETUP, the address is cleared and the class is reset.
func (d *Device) busReset() {
	dr := &d.regs.D
	reg.ClearMask(&dr.DCTRL, otg.DctrlRWKUPS)
	d.flushTxFIFO(0)
	for ep := range dr.In {
		dr.In[ep].DIEPINT = 0
		dr.Out[ep].DOEPINT = 0
	}
	dr.DAEPINT = 0
	reg.SetMask(&dr.DAEPIMASK, 1|1<<16)
	dr.DOUTIMASK = outEndpointInterrupts
	dr.DINIMASK = inEndpointInterrupts
	reg.SetN(&dr.DCFG, otg.DcfgDADDR, 0)
	d.receiveSetup(setupPackets)

	d.OpenOutEP(0, EndpointTypeControl, Ep0MaxPacketSize)
	d.OpenInEP(0, EndpointTypeControl, Ep0MaxPacketSize)
	d.ctrl = CtrlSetup
	d.configuration = 0
	d.feature = d.desc.configAttributes()
	d.setState(StateDefault)
	reg.ClearMask(&d.regs.G.GCINT, otg.GintUSBRST)
	pkg.LogDebug(pkg.ComponentDevice, "bus reset")

	d.class.Reset(d)
	d.cb.Reset()
}

func (d *Device) resume() {
	reg.ClearMask(&d.regs.D.DCTRL, otg.DctrlRWKUPS)
	d.cb.Resume()
	if d.state == StateSuspended {
		d.setState(d.prevState)
	}
	reg.ClearMask(&d.regs.G.GCINT, otg.GintRWAKE)
}

func (d *Device) suspend() {
	d.cb.Suspend()
	if d.state != StateSuspended {
		d.prevState = d.state
	}
	d.setState(StateSuspended)
	reg.ClearMask(&d.regs.G.GCINT, otg.GintUSBSUS)
}

// enumerationDone programs the turnaround time for the AHB clock once the
// speed is known.
func (d *Device) enumerationDone() {
	trtim := turnaround(d.hw.Config().Clock)
	reg.SetN(&d.regs.G.GUSBCFG, otg.UsbcfgTRTIM, trtim)
	reg.ClearMask(&d.regs.G.GCINT, otg.GintENUMD)
	pkg.LogDebug(pkg.ComponentDevice, "enumeration done",
		"speed", reg.Get(&d.regs.D.DSTS, otg.DstsENUMSPD), "trtim", trtim)
}

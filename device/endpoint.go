package device

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/apm32sdk/usbotg/otg"
	"github.com/apm32sdk/usbotg/pkg"
	"github.com/apm32sdk/usbotg/pkg/reg"
)

// Endpoint is the driver state of one endpoint direction.
type Endpoint struct {
	Address       uint8  // Endpoint address including direction
	Type          uint8  // Transfer type
	MaxPacketSize uint16 // Maximum packet size

	active bool

	// Runtime state of the current transfer. For IN, buf holds the bytes
	// not yet written to the FIFO; for OUT it is the receive window.
	buf     []byte
	count   int // bytes moved so far
	packets int // IN: packets still to write; OUT: packets still expected
	queued  int // IN packets programmed but not yet written
	zlp     bool
}

// Number returns the endpoint number without the direction bit.
func (e *Endpoint) Number() uint8 { return e.Address & EndpointNumber }

// IsIn returns true for an IN (device-to-host) endpoint.
func (e *Endpoint) IsIn() bool { return e.Address&EndpointDirIn != 0 }

// Active reports whether the endpoint is open.
func (e *Endpoint) Active() bool { return e.active }

// Count returns the bytes moved by the current or last transfer.
func (e *Endpoint) Count() int { return e.count }

func (e *Endpoint) String() string {
	return fmt.Sprintf("ep%d %s %s mps=%d", e.Number(), DirectionName(e.Address&EndpointDirIn),
		TransferTypeName(e.Type), e.MaxPacketSize)
}

// TransferTypeName returns a human-readable transfer type name.
func TransferTypeName(t uint8) string {
	switch t & 0x03 {
	case EndpointTypeControl:
		return "Control"
	case EndpointTypeIsochronous:
		return "Isochronous"
	case EndpointTypeBulk:
		return "Bulk"
	default:
		return "Interrupt"
	}
}

// DirectionName returns a human-readable direction name.
func DirectionName(dir uint8) string {
	if dir&EndpointDirIn != 0 {
		return "IN"
	}
	return "OUT"
}

// Endpoint returns the driver state of the endpoint at addr, or nil.
func (d *Device) Endpoint(addr uint8) *Endpoint {
	ep := addr & EndpointNumber
	if ep >= MaxEndpoints {
		return nil
	}
	if addr&EndpointDirIn != 0 {
		return &d.in[ep]
	}
	return &d.out[ep]
}

// maxPacketField returns the MAXPS value of an endpoint: EP0 takes a
// two-bit code, the others the size itself.
func maxPacketField(ep uint8, mps uint16) uint32 {
	if ep != 0 {
		return uint32(mps)
	}
	switch {
	case mps >= 64:
		return otg.Ep0MPS64
	case mps >= 32:
		return otg.Ep0MPS32
	case mps >= 16:
		return otg.Ep0MPS16
	default:
		return otg.Ep0MPS8
	}
}

// packetCount returns the packets a transfer of n bytes needs and the
// length it is programmed with: at least one packet, at most
// MaxPacketCount, with the length cut to whole packets when clamped.
func packetCount(n int, mps uint16) (pkts int, length int) {
	m := max(int(mps), 1)
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

// OpenOutEP activates OUT endpoint ep and enables its interrupt.
func (d *Device) OpenOutEP(ep uint8, epType uint8, mps uint16) error {
	ep &= EndpointNumber
	if ep >= MaxEndpoints {
		return errors.Wrapf(pkg.ErrInvalidEndpoint, "out %d", ep)
	}
	d.out[ep] = Endpoint{Address: ep, Type: epType, MaxPacketSize: mps, active: true}

	r := &d.regs.D.Out[ep]
	ctl := otg.EpctlMAXPS.Put(r.DOEPCTRL, maxPacketField(ep, mps))
	ctl = otg.EpctlEPTYPE.Put(ctl, uint32(epType))
	ctl |= otg.EpctlUSBAEP
	if ep != 0 {
		ctl |= otg.EpctlDPIDSET
	}
	r.DOEPCTRL = ctl
	reg.SetMask(&d.regs.D.DAEPIMASK, 1<<(16+uint32(ep)))
	pkg.LogDebug(pkg.ComponentEndpoint, "open", "ep", d.out[ep].String())
	return nil
}

// OpenInEP activates IN endpoint ep on its own transmit FIFO and enables
// its interrupt.
func (d *Device) OpenInEP(ep uint8, epType uint8, mps uint16) error {
	ep &= EndpointNumber
	if ep >= MaxEndpoints {
		return errors.Wrapf(pkg.ErrInvalidEndpoint, "in %d", ep)
	}
	d.in[ep] = Endpoint{Address: ep | EndpointDirIn, Type: epType, MaxPacketSize: mps, active: true}

	r := &d.regs.D.In[ep]
	ctl := otg.EpctlMAXPS.Put(r.DIEPCTRL, maxPacketField(ep, mps))
	ctl = otg.EpctlEPTYPE.Put(ctl, uint32(epType))
	ctl = otg.EpctlTXFNUM.Put(ctl, uint32(ep))
	ctl |= otg.EpctlUSBAEP
	if ep != 0 {
		ctl |= otg.EpctlDPIDSET
	}
	r.DIEPCTRL = ctl
	reg.SetMask(&d.regs.D.DAEPIMASK, 1<<uint32(ep))
	pkg.LogDebug(pkg.ComponentEndpoint, "open", "ep", d.in[ep].String())
	return nil
}

// deactivate disables an endpoint that is enabled and drops its active
// flag.
func deactivate(ctl *uint32) {
	if *ctl&otg.EpctlEPEN != 0 {
		reg.SetMask(ctl, otg.EpctlEPDIS|otg.EpctlNAKSET)
	}
	reg.ClearMask(ctl, otg.EpctlUSBAEP)
}

// CloseOutEP deactivates OUT endpoint ep.
func (d *Device) CloseOutEP(ep uint8) {
	ep &= EndpointNumber
	if ep >= MaxEndpoints {
		return
	}
	reg.ClearMask(&d.regs.D.DAEPIMASK, 1<<(16+uint32(ep)))
	deactivate(&d.regs.D.Out[ep].DOEPCTRL)
	d.out[ep].active = false
	d.out[ep].buf = nil
	pkg.LogDebug(pkg.ComponentEndpoint, "close", "ep", ep, "dir", "out")
}

// CloseInEP deactivates IN endpoint ep and flushes its transmit FIFO.
func (d *Device) CloseInEP(ep uint8) {
	ep &= EndpointNumber
	if ep >= MaxEndpoints {
		return
	}
	reg.ClearMask(&d.regs.D.DAEPIMASK, 1<<uint32(ep))
	reg.ClearMask(&d.regs.D.DIEIMASK, 1<<uint32(ep))
	deactivate(&d.regs.D.In[ep].DIEPCTRL)
	d.flushTxFIFO(uint32(ep))
	d.in[ep].active = false
	d.in[ep].buf = nil
	pkg.LogDebug(pkg.ComponentEndpoint, "close", "ep", ep, "dir", "in")
}

func (d *Device) enableOutTransfer(ep uint8, pkts, size int) {
	r := &d.regs.D.Out[ep]
	reg.SetN(&r.DOEPTRS, otg.EptrsEPPCNT, uint32(pkts))
	reg.SetN(&r.DOEPTRS, otg.EptrsEPTRS, uint32(size))
	reg.SetMask(&r.DOEPCTRL, otg.EpctlNAKCLR|otg.EpctlEPEN)
}

func (d *Device) enableInTransfer(ep uint8, pkts, size int) {
	r := &d.regs.D.In[ep]
	reg.SetN(&r.DIEPTRS, otg.EptrsEPPCNT, uint32(pkts))
	reg.SetN(&r.DIEPTRS, otg.EptrsEPTRS, uint32(size))
	reg.SetMask(&r.DIEPCTRL, otg.EpctlNAKCLR|otg.EpctlEPEN)
}

// receiveSetup arms EP0 OUT for n back-to-back SETUP packets.
func (d *Device) receiveSetup(n int) {
	r := &d.regs.D.Out[0]
	var v uint32
	v = otg.EptrsPIDSPCNT.Put(v, uint32(n))
	v = otg.EptrsEPPCNT.Put(v, 1)
	v = otg.EptrsEPTRS.Put(v, uint32(n*SetupPacketSize))
	r.DOEPTRS = v
}

// RxData starts an OUT transfer of up to len(buf) bytes on endpoint ep.
// OutComplete reports its end; XferCount then returns the bytes received.
func (d *Device) RxData(ep uint8, buf []byte) error {
	ep &= EndpointNumber
	if ep >= MaxEndpoints || !d.out[ep].active {
		return errors.Wrapf(pkg.ErrInvalidEndpoint, "out %d", ep)
	}
	e := &d.out[ep]
	pkts, _ := packetCount(len(buf), e.MaxPacketSize)
	e.buf = buf
	e.count = 0
	e.packets = pkts
	d.enableOutTransfer(ep, pkts, pkts*int(e.MaxPacketSize))
	return nil
}

// TxData starts an IN transfer of buf on endpoint ep. An empty buf sends a
// zero-length packet. The data is written to the FIFO from the TxFIFO
// empty interrupt; InComplete reports the end of the transfer. A buf
// longer than MaxPacketCount packets is cut to that many.
func (d *Device) TxData(ep uint8, buf []byte) error {
	ep &= EndpointNumber
	if ep >= MaxEndpoints || !d.in[ep].active {
		return errors.Wrapf(pkg.ErrInvalidEndpoint, "in %d", ep)
	}
	e := &d.in[ep]
	pkts, n := packetCount(len(buf), e.MaxPacketSize)
	e.buf = buf[:n]
	e.count = 0
	e.packets = pkts
	e.queued = pkts
	d.enableInTransfer(ep, pkts, n)
	if n > 0 {
		reg.SetMask(&d.regs.D.DIEIMASK, 1<<uint32(ep))
	}
	return nil
}

// XferCount returns the bytes received by the last OUT transfer on ep.
func (d *Device) XferCount(ep uint8) int {
	ep &= EndpointNumber
	if ep >= MaxEndpoints {
		return 0
	}
	return d.out[ep].count
}

// pushTxFIFO writes whole pending packets of IN endpoint ep while its FIFO
// has room and the endpoint is programmed for them. Once nothing is left
// the TxFIFO empty interrupt of the endpoint is disabled.
func (d *Device) pushTxFIFO(ep uint8) {
	e := &d.in[ep]
	r := &d.regs.D.In[ep]
	mps := max(int(e.MaxPacketSize), 1)
	for e.queued > 0 && len(e.buf) > 0 {
		n := min(mps, len(e.buf))
		if (n+3)/4 > int(reg.Get(&r.DITXFSTS, otg.DitxfstsINEPTXFSA)) {
			return
		}
		d.hw.WritePacket(int(ep), e.buf[:n])
		e.buf = e.buf[n:]
		e.count += n
		e.packets--
		e.queued--
	}
	reg.ClearMask(&d.regs.D.DIEIMASK, 1<<uint32(ep))
}

// SetStall stalls the endpoint at addr. Stalling EP0 stalls both
// directions and re-arms it for the next SETUP.
func (d *Device) SetStall(addr uint8) {
	ep := addr & EndpointNumber
	if ep >= MaxEndpoints {
		return
	}
	if ep == 0 {
		d.stallIn(0)
		reg.SetMask(&d.regs.D.Out[0].DOEPCTRL, otg.EpctlSTALLH)
		d.receiveSetup(setupPackets)
		d.ctrl = CtrlStall
		pkg.LogDebug(pkg.ComponentControl, "stall", "request", d.req)
		return
	}
	if addr&EndpointDirIn != 0 {
		d.stallIn(ep)
	} else {
		reg.SetMask(&d.regs.D.Out[ep].DOEPCTRL, otg.EpctlSTALLH)
	}
	pkg.LogDebug(pkg.ComponentEndpoint, "stall", "addr", addr)
}

func (d *Device) stallIn(ep uint8) {
	ctl := &d.regs.D.In[ep].DIEPCTRL
	if *ctl&otg.EpctlEPEN != 0 {
		reg.SetMask(ctl, otg.EpctlEPDIS)
	}
	reg.SetMask(ctl, otg.EpctlSTALLH)
}

// ClearStall clears the stall of the endpoint at addr. Bulk and interrupt
// endpoints restart at DATA0.
func (d *Device) ClearStall(addr uint8) {
	ep := addr & EndpointNumber
	if ep >= MaxEndpoints {
		return
	}
	ctl := &d.regs.D.Out[ep].DOEPCTRL
	e := &d.out[ep]
	if addr&EndpointDirIn != 0 {
		ctl = &d.regs.D.In[ep].DIEPCTRL
		e = &d.in[ep]
	}
	reg.ClearMask(ctl, otg.EpctlSTALLH)
	if e.Type == EndpointTypeBulk || e.Type == EndpointTypeInterrupt {
		reg.SetMask(ctl, otg.EpctlDPIDSET)
	}
	if ep == 0 {
		d.receiveSetup(setupPackets)
	}
	pkg.LogDebug(pkg.ComponentEndpoint, "clear stall", "addr", addr)
}

// EndpointStalled reports whether the endpoint at addr answers with STALL.
func (d *Device) EndpointStalled(addr uint8) bool {
	ep := addr & EndpointNumber
	if ep >= MaxEndpoints {
		return false
	}
	if addr&EndpointDirIn != 0 {
		return d.regs.D.In[ep].DIEPCTRL&otg.EpctlSTALLH != 0
	}
	return d.regs.D.Out[ep].DOEPCTRL&otg.EpctlSTALLH != 0
}

package device

import (
	"github.com/apm32sdk/usbotg/pkg"
	"github.com/apm32sdk/usbotg/pkg/reg"
)

// setupProcess decodes the SETUP packet latched by the receive handler and
// dispatches it by request type.
func (d *Device) setupProcess() {
	d.req = ParseSetup(d.setup)
	d.ctrl = CtrlSetup
	pkg.LogDebug(pkg.ComponentControl, "setup", "request", d.req)

	switch d.req.Type() {
	case RequestTypeStandard:
		d.standardRequest()
	case RequestTypeClass:
		d.class.Setup(d, d.req)
	case RequestTypeVendor:
		if v, ok := d.class.(VendorHandler); ok {
			v.Vendor(d, d.req)
		} else {
			d.SetStall(0)
		}
	default:
		d.SetStall(0)
	}
}

// CtrlInData starts the IN data stage of the current control request with
// buf, which the caller has already cut to wLength. A data stage shorter
// than wLength that ends on a packet boundary is closed by a zero-length
// packet. An OUT request without data goes straight to the status stage.
func (d *Device) CtrlInData(buf []byte) {
	if !d.req.In() && len(buf) == 0 {
		d.CtrlTxStatus()
		return
	}
	e := &d.in[0]
	mps := int(e.MaxPacketSize)
	n := len(buf)
	e.buf = buf
	e.count = 0
	e.packets = max((n+mps-1)/mps, 0)
	e.zlp = n > 0 && n < int(d.req.Length) && n%mps == 0
	d.ctrl = CtrlInData
	d.ctrlInPacket()
}

// ctrlInPacket programs EP0 IN for the next packet of the data stage.
func (d *Device) ctrlInPacket() {
	e := &d.in[0]
	n := min(len(e.buf), int(e.MaxPacketSize))
	e.queued = 1
	d.enableInTransfer(0, 1, n)
	if n > 0 {
		reg.SetMask(&d.regs.D.DIEIMASK, 1)
	}
}

// CtrlOutData starts the OUT data stage of the current control request
// into buf. The class sees the data in its TxStatus hook, before the
// status stage.
func (d *Device) CtrlOutData(buf []byte) {
	e := &d.out[0]
	mps := int(e.MaxPacketSize)
	e.buf = buf
	e.count = 0
	e.packets = max((len(buf)+mps-1)/mps, 1)
	d.ctrl = CtrlOutData
	d.enableOutTransfer(0, 1, mps)
}

// CtrlTxStatus sends the zero-length IN status stage and re-arms EP0 for
// SETUP.
func (d *Device) CtrlTxStatus() {
	if h, ok := d.class.(StatusHandler); ok {
		h.TxStatus(d)
	}
	e := &d.in[0]
	e.buf = nil
	e.queued = 0
	d.ctrl = CtrlInStatus
	d.enableInTransfer(0, 1, 0)
	d.receiveSetup(setupPackets)
}

// CtrlRxStatus arms EP0 OUT for the zero-length status stage and for
// SETUP.
func (d *Device) CtrlRxStatus() {
	if h, ok := d.class.(StatusHandler); ok {
		h.RxStatus(d)
	}
	e := &d.out[0]
	e.buf = nil
	d.ctrl = CtrlOutStatus
	d.enableOutTransfer(0, 1, int(e.MaxPacketSize))
	d.receiveSetup(setupPackets)
}

// ctrlInProcess runs when an EP0 IN transfer completed.
func (d *Device) ctrlInProcess() {
	e := &d.in[0]
	switch d.ctrl {
	case CtrlInData:
		switch {
		case e.packets > 0:
			d.ctrlInPacket()
		case e.zlp:
			e.zlp = false
			e.queued = 0
			d.enableInTransfer(0, 1, 0)
		default:
			d.CtrlRxStatus()
		}

	case CtrlInStatus:
		d.ctrl = CtrlSetup
		if d.testMode != TestModeOff {
			d.SetTestMode(d.testMode)
			d.testMode = TestModeOff
		}
	}
}

// ctrlOutProcess runs when an EP0 OUT transfer completed.
func (d *Device) ctrlOutProcess() {
	e := &d.out[0]
	switch d.ctrl {
	case CtrlOutData:
		mps := int(e.MaxPacketSize)
		// a short packet ends the data stage early
		if e.packets > 0 && e.count < len(e.buf) && e.count%mps == 0 {
			d.enableOutTransfer(0, 1, mps)
			return
		}
		d.CtrlTxStatus()

	case CtrlOutStatus:
		d.ctrl = CtrlSetup
	}
}

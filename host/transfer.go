package host

import "github.com/apm32sdk/usbotg/otg"

// dataPID maps a data toggle to the channel PID.
func dataPID(toggle uint8) uint8 {
	if toggle != 0 {
		return otg.PidData1
	}
	return otg.PidData0
}

// issue resets the URB of channel ch before a new transfer.
func (h *Host) issue(ch int) *Pipe {
	p := &h.pipes[ch]
	p.URB = URBIdle
	p.State = PipeOK
	return p
}

// CtrlSetup sends the SETUP packet req on the control OUT channel ch. The
// data stage that follows starts with DATA1.
func (h *Host) CtrlSetup(ch int, req Request) {
	if !validChannel(ch) {
		return
	}
	p := h.issue(ch)
	b := req.Bytes()
	p.Toggle = 1
	h.enableOutTransfer(ch, b[:], otg.PidSetup)
}

// CtrlOutData sends buf as the data or status stage of a control write.
// A zero-length stage always uses DATA1.
func (h *Host) CtrlOutData(ch int, buf []byte) {
	if !validChannel(ch) {
		return
	}
	p := h.issue(ch)
	if len(buf) == 0 {
		p.Toggle = 1
	}
	h.enableOutTransfer(ch, buf, dataPID(p.Toggle))
}

// CtrlInData receives up to len(buf) bytes as the data or status stage of
// a control read. Both stages start with DATA1.
func (h *Host) CtrlInData(ch int, buf []byte) {
	if !validChannel(ch) {
		return
	}
	p := h.issue(ch)
	p.Toggle = 1
	h.enableInTransfer(ch, buf, len(buf), otg.PidData1)
}

// BulkOut sends buf on bulk channel ch with the channel's data toggle.
func (h *Host) BulkOut(ch int, buf []byte) {
	if !validChannel(ch) {
		return
	}
	p := h.issue(ch)
	h.enableOutTransfer(ch, buf, dataPID(p.Toggle))
}

// BulkIn receives up to len(buf) bytes on bulk channel ch.
func (h *Host) BulkIn(ch int, buf []byte) {
	if !validChannel(ch) {
		return
	}
	p := h.issue(ch)
	h.enableInTransfer(ch, buf, len(buf), dataPID(p.Toggle))
}

// InterruptOut sends buf on interrupt channel ch.
func (h *Host) InterruptOut(ch int, buf []byte) {
	if !validChannel(ch) {
		return
	}
	p := h.issue(ch)
	h.enableOutTransfer(ch, buf, dataPID(p.Toggle))
}

// InterruptIn receives up to len(buf) bytes on interrupt channel ch.
func (h *Host) InterruptIn(ch int, buf []byte) {
	if !validChannel(ch) {
		return
	}
	p := h.issue(ch)
	h.enableInTransfer(ch, buf, len(buf), dataPID(p.Toggle))
}

// IsocOut sends buf on isochronous channel ch. Full-speed isochronous
// transfers always use DATA0.
func (h *Host) IsocOut(ch int, buf []byte) {
	if !validChannel(ch) {
		return
	}
	h.issue(ch)
	h.enableOutTransfer(ch, buf, otg.PidData0)
}

// IsocIn receives up to len(buf) bytes on isochronous channel ch.
func (h *Host) IsocIn(ch int, buf []byte) {
	if !validChannel(ch) {
		return
	}
	h.issue(ch)
	h.enableInTransfer(ch, buf, len(buf), otg.PidData0)
}

// URBStatus returns the completion status of the last transfer on ch.
func (h *Host) URBStatus(ch int) URBStatus {
	if !validChannel(ch) {
		return URBIdle
	}
	return h.pipes[ch].URB
}

// TransferredBytes returns the bytes moved by the last transfer on ch.
func (h *Host) TransferredBytes(ch int) int {
	if !validChannel(ch) {
		return 0
	}
	return h.pipes[ch].count
}

// Toggle returns the data toggle the next transfer on ch uses.
func (h *Host) Toggle(ch int) uint8 {
	if !validChannel(ch) {
		return 0
	}
	return h.pipes[ch].Toggle
}

// SetToggle sets the data toggle of channel ch, as after a clear halt.
func (h *Host) SetToggle(ch int, toggle uint8) {
	if !validChannel(ch) {
		return
	}
	h.pipes[ch].Toggle = toggle & 1
}

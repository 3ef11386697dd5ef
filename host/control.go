package host

import (
	"github.com/apm32sdk/usbotg/pkg"
)

// Control is the control pipe of the session: the two channels bound to
// endpoint 0 and the request in flight.
type Control struct {
	OutChannel    int
	InChannel     int
	MaxPacketSize uint16

	Request Request
	buf     []byte

	phase    ctrlPhase
	prev     ctrlPhase // phase waiting for its URB
	state    CtrlState
	errCount int
}

// reset returns the machine to SETUP with no request and no channels.
func (c *Control) reset() {
	*c = Control{OutChannel: NoChannel, InChannel: NoChannel}
}

// State returns the phase in flight or the outcome of the last request.
func (c *Control) State() CtrlState {
	return c.state
}

// ErrorCount returns the transaction errors seen by the request in flight.
func (c *Control) ErrorCount() int {
	return c.errCount
}

// ControlRequest issues req on the control pipe and advances it by one
// phase per call. buf holds the data stage; it must stay valid until a
// terminal state is returned. The returned state is one of CtrlComplete,
// CtrlStall and CtrlError once the request is over; every other value
// means the request is still in flight.
func (h *Host) ControlRequest(req Request, buf []byte) CtrlState {
	if h.xfer == XferStart {
		h.SubmitControl(req, buf)
		h.xfer = XferWaiting
		return h.ctrl.state
	}
	st := h.ControlXfer()
	if st.Done() {
		h.xfer = XferStart
	}
	return st
}

// SubmitControl loads req into the control pipe. The request starts on
// the next ControlXfer.
func (h *Host) SubmitControl(req Request, buf []byte) {
	c := &h.ctrl
	c.Request = req
	if int(req.Length) < len(buf) {
		buf = buf[:req.Length]
	}
	c.buf = buf
	c.phase = phaseSetup
	c.state = CtrlSetup
	pkg.LogDebug(pkg.ComponentControl, "submit",
		"type", req.RequestType, "request", req.Request, "value", req.Value,
		"index", req.Index, "length", req.Length)
}

// ControlXfer performs at most one phase transition of the control
// machine and returns the resulting state.
func (h *Host) ControlXfer() CtrlState {
	c := &h.ctrl
	switch c.phase {
	case phaseSetup:
		h.CtrlSetup(c.OutChannel, c.Request)
		h.waitURB(phaseSetup, CtrlSetup)
	case phaseDataOut:
		h.pipes[c.OutChannel].Toggle = 1
		h.CtrlOutData(c.OutChannel, c.buf)
		h.waitURB(phaseDataOut, CtrlDataOut)
	case phaseDataIn:
		h.CtrlInData(c.InChannel, c.buf)
		h.waitURB(phaseDataIn, CtrlDataIn)
	case phaseStatusOut:
		h.CtrlOutData(c.OutChannel, nil)
		h.waitURB(phaseStatusOut, CtrlStatusOut)
	case phaseStatusIn:
		h.CtrlInData(c.InChannel, nil)
		h.waitURB(phaseStatusIn, CtrlStatusIn)
	case phaseWaitURB:
		h.checkURB()
	}
	return c.state
}

func (h *Host) waitURB(from ctrlPhase, st CtrlState) {
	c := &h.ctrl
	c.prev = from
	c.phase = phaseWaitURB
	c.state = st
	pkg.LogDebug(pkg.ComponentControl, "phase", "state", st)
}

// checkURB applies the URB of the phase in flight.
func (h *Host) checkURB() {
	c := &h.ctrl
	ch := c.OutChannel
	if c.prev == phaseDataIn || c.prev == phaseStatusIn {
		ch = c.InChannel
	}

	switch h.URBStatus(ch) {
	case URBOK:
		switch c.prev {
		case phaseSetup:
			switch {
			case c.Request.Length > 0 && c.Request.IsIn():
				c.phase = phaseDataIn
			case c.Request.Length > 0:
				c.phase = phaseDataOut
			case c.Request.IsIn():
				c.phase = phaseStatusOut
			default:
				c.phase = phaseStatusIn
			}
		case phaseDataOut:
			c.phase = phaseStatusIn
		case phaseDataIn:
			c.phase = phaseStatusOut
		case phaseStatusOut, phaseStatusIn:
			c.phase = phaseSetup
			c.state = CtrlComplete
			c.errCount = 0
			pkg.LogDebug(pkg.ComponentControl, "complete", "request", c.Request.Request,
				"bytes", h.TransferredBytes(c.InChannel))
		}
	case URBError:
		c.phase = phaseSetup
		c.errCount++
		if c.errCount > CtrlErrorRetries {
			c.errCount = 0
			c.state = CtrlError
			pkg.LogWarn(pkg.ComponentControl, "request failed", "request", c.Request.Request)
			return
		}
		pkg.LogDebug(pkg.ComponentControl, "retry", "request", c.Request.Request, "errors", c.errCount)
	case URBStall:
		c.phase = phaseSetup
		c.errCount = 0
		c.state = CtrlStall
		pkg.LogDebug(pkg.ComponentControl, "stall", "request", c.Request.Request)
	case URBNotReady:
		switch c.prev {
		case phaseDataOut, phaseStatusOut:
			c.phase = c.prev
		case phaseSetup:
			// SETUP is never NAKed by a compliant function
			c.phase = phaseSetup
		}
	}
}

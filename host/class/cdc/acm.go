package cdc

import (
	"encoding/binary"

	"github.com/pkg/errors"

	"github.com/apm32sdk/usbotg/host"
	"github.com/apm32sdk/usbotg/pkg"
)

// ReceiveHandler receives data read from the bulk IN endpoint. The slice
// is only valid for the duration of the call.
type ReceiveHandler func(data []byte)

// Option configures a Class.
type Option func(*Class)

// WithLineCoding sets the coding sent with SET_LINE_CODING. The default is
// DefaultLineCoding.
func WithLineCoding(lc LineCoding) Option {
	return func(c *Class) { c.coding = lc }
}

// WithControlLines sets the DTR and RTS state sent with
// SET_CONTROL_LINE_STATE.
func WithControlLines(dtr, rts bool) Option {
	return func(c *Class) { c.lines = controlLines(dtr, rts) }
}

// WithReceiveHandler passes received data to fn instead of buffering it
// for Read.
func WithReceiveHandler(fn ReceiveHandler) Option {
	return func(c *Class) { c.onReceive = fn }
}

// WithSerialStateHandler sets the handler of SERIAL_STATE notifications.
func WithSerialStateHandler(fn func(state uint16)) Option {
	return func(c *Class) { c.onSerialState = fn }
}

func controlLines(dtr, rts bool) uint16 {
	var v uint16
	if dtr {
		v |= ControlLineDTR
	}
	if rts {
		v |= ControlLineRTS
	}
	return v
}

// pipe is one bulk or interrupt channel of the class.
type pipe struct {
	ep  uint8
	mps uint16
	ch  int
}

// Class is the host CDC-ACM class driver.
type Class struct {
	coding        LineCoding
	lines         uint16
	onReceive     ReceiveHandler
	onSerialState func(state uint16)

	ctrlItf, dataItf uint8
	notify, in, out  pipe
	interval         uint16

	req      ReqState
	pending  ReqState
	retries  int
	clearing *pipe
	readBack LineCoding

	tx      []byte
	txLen   int
	txState XferState
	sent    int

	rx        []byte
	rxState   XferState
	rxEnabled bool
	received  int
	dropped   int

	ntfyPending bool
	timer       uint16
	serialState uint16

	setBuf  [LineCodingSize]byte
	getBuf  [LineCodingSize]byte
	txPkt   [MaxPacketSize]byte
	rxPkt   [MaxPacketSize]byte
	ntfyPkt [MaxPacketSize]byte
}

var _ host.Class = (*Class)(nil)

// New returns a CDC-ACM class driver.
func New(opts ...Option) *Class {
	c := &Class{coding: DefaultLineCoding, pending: ReqDone}
	c.release()
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// LineCoding returns the coding the class sends to the device.
func (c *Class) LineCoding() LineCoding { return c.coding }

// DeviceLineCoding returns the coding read back with GET_LINE_CODING.
func (c *Class) DeviceLineCoding() LineCoding { return c.readBack }

// DTR reports the DTR state sent to the device.
func (c *Class) DTR() bool { return c.lines&ControlLineDTR != 0 }

// RTS reports the RTS state sent to the device.
func (c *Class) RTS() bool { return c.lines&ControlLineRTS != 0 }

// SerialState returns the state bits of the last SERIAL_STATE
// notification.
func (c *Class) SerialState() uint16 { return c.serialState }

// RequestState returns the class request state.
func (c *Class) RequestState() ReqState { return c.req }

// TxState returns the state of the send machine.
func (c *Class) TxState() XferState { return c.txState }

// RxState returns the state of the receive machine.
func (c *Class) RxState() XferState { return c.rxState }

// Interfaces returns the control and data interface numbers.
func (c *Class) Interfaces() (control, data uint8) { return c.ctrlItf, c.dataItf }

// Channels returns the notification, bulk IN and bulk OUT channels. The
// notification channel is host.NoChannel when the device has no
// notification endpoint.
func (c *Class) Channels() (notify, in, out int) { return c.notify.ch, c.in.ch, c.out.ch }

// Pending returns the queued bytes not yet acknowledged by the device.
func (c *Class) Pending() int { return len(c.tx) }

// Sent returns the bytes the device acknowledged since Init.
func (c *Class) Sent() int { return c.sent }

// Received returns the bytes read from the device since Init.
func (c *Class) Received() int { return c.received }

// Buffered returns the received bytes waiting for Read.
func (c *Class) Buffered() int { return len(c.rx) }

// Dropped returns the received bytes lost to a full receive buffer.
func (c *Class) Dropped() int { return c.dropped }

// Init binds the control and data interfaces and opens the notification
// and bulk channels.
func (c *Class) Init(h *host.Host) error {
	c.reset()

	d := h.Descriptors()
	var ctrl, data *host.Interface
	for i := 0; i < d.NumInterfaces; i++ {
		itf := d.Interface(i)
		switch itf.Descriptor.InterfaceClass {
		case ClassCDC:
			if ctrl == nil {
				ctrl = itf
			}
		case ClassCDCData:
			if data == nil && itf.Endpoint(host.EndpointTypeBulk, true) != nil &&
				itf.Endpoint(host.EndpointTypeBulk, false) != nil {
				data = itf
			}
		}
	}
	if ctrl == nil || data == nil {
		return errors.Wrap(pkg.ErrNotSupported, "no CDC control and data interface pair")
	}
	c.ctrlItf = ctrl.Descriptor.InterfaceNumber
	c.dataItf = data.Descriptor.InterfaceNumber

	if ep := ctrl.Endpoint(host.EndpointTypeInterrupt, true); ep != nil {
		if err := c.open(h, &c.notify, ep, host.EndpointTypeInterrupt); err != nil {
			c.DeInit(h)
			return err
		}
		c.interval = max(uint16(ep.Interval), 1)
	}
	if err := c.open(h, &c.in, data.Endpoint(host.EndpointTypeBulk, true), host.EndpointTypeBulk); err != nil {
		c.DeInit(h)
		return err
	}
	if err := c.open(h, &c.out, data.Endpoint(host.EndpointTypeBulk, false), host.EndpointTypeBulk); err != nil {
		c.DeInit(h)
		return err
	}
	c.rxEnabled = true
	c.rxState = XferGet
	pkg.LogInfo(pkg.ComponentClass, "cdc bound", "control", c.ctrlItf, "data", c.dataItf,
		"in", c.in.ep, "out", c.out.ep, "notify", c.notify.ep)
	return nil
}

func (c *Class) open(h *host.Host, p *pipe, ep *host.EndpointDescriptor, typ uint8) error {
	p.ep = ep.EndpointAddress
	p.mps = min(ep.MaxPacketSize, MaxPacketSize)
	p.ch = h.AllocChannel(p.ep)
	if p.ch == host.NoChannel {
		return errors.Wrapf(pkg.ErrNoChannel, "cdc endpoint %#02x", p.ep)
	}
	return errors.Wrapf(h.OpenChannel(p.ch, h.Address(), typ, p.mps), "cdc endpoint %#02x", p.ep)
}

// DeInit releases the channels and drops queued data.
func (c *Class) DeInit(h *host.Host) {
	for _, p := range []*pipe{&c.notify, &c.in, &c.out} {
		if p.ch != host.NoChannel {
			h.FreeChannel(p.ch)
		}
	}
	c.release()
	c.tx = c.tx[:0]
	c.txState = XferIdle
	c.rx = c.rx[:0]
	c.rxState = XferIdle
}

func (c *Class) release() {
	c.notify = pipe{ch: host.NoChannel}
	c.in = pipe{ch: host.NoChannel}
	c.out = pipe{ch: host.NoChannel}
}

// reset clears the session state kept between Init calls.
func (c *Class) reset() {
	c.req = ReqSetLineCoding
	c.pending = ReqDone
	c.retries = 0
	c.clearing = nil
	c.readBack = LineCoding{}
	c.tx = c.tx[:0]
	c.txState = XferIdle
	c.sent = 0
	c.rx = c.rx[:0]
	c.rxState = XferIdle
	c.received = 0
	c.dropped = 0
	c.ntfyPending = false
	c.serialState = 0
}

// lineRequest returns a class request addressed to the control
// interface.
func (c *Class) lineRequest(dir, request uint8, value, length uint16) host.Request {
	return host.Request{
		RequestType: dir | host.RequestTypeClass | host.RequestTypeInterface,
		Request:     request,
		Value:       value,
		Index:       uint16(c.ctrlItf),
		Length:      length,
	}
}

// Request sends the line coding, reads it back and sets the control
// lines. A stalled or failed request is repeated up to RetryLimit times.
func (c *Class) Request(h *host.Host) (bool, error) {
	var err error
	switch c.req {
	case ReqSetLineCoding:
		req := c.lineRequest(host.RequestTypeOut, RequestSetLineCoding, 0, LineCodingSize)
		err = c.control(h, req, c.coding.AppendTo(c.setBuf[:0]), ReqGetLineCoding)

	case ReqGetLineCoding:
		req := c.lineRequest(host.RequestTypeIn, RequestGetLineCoding, 0, LineCodingSize)
		err = c.control(h, req, c.getBuf[:], ReqSetControlLineState)
		if c.req == ReqSetControlLineState {
			n := h.TransferredBytes(h.Control().InChannel)
			if !ParseLineCoding(c.getBuf[:n], &c.readBack) {
				pkg.LogWarn(pkg.ComponentClass, "cdc short line coding", "bytes", n)
			} else if c.readBack != c.coding {
				pkg.LogWarn(pkg.ComponentClass, "cdc device kept its line coding",
					"want", c.coding, "got", c.readBack)
			}
		}

	case ReqSetControlLineState:
		req := c.lineRequest(host.RequestTypeOut, RequestSetControlLineState, c.lines, 0)
		err = c.control(h, req, nil, ReqDone)
	}
	return c.req == ReqDone, err
}

// control runs one step of a class request and moves to next once it
// completed.
func (c *Class) control(h *host.Host, req host.Request, buf []byte, next ReqState) error {
	switch st := h.ControlRequest(req, buf); st {
	case host.CtrlComplete:
		c.retries = 0
		c.setReq(next)
	case host.CtrlStall, host.CtrlError:
		c.retries++
		pkg.LogWarn(pkg.ComponentClass, "cdc request failed", "request", c.req, "result", st, "retry", c.retries)
		if c.retries > RetryLimit {
			c.retries = 0
			c.setReq(ReqDone)
			return errors.Wrapf(pkg.ErrUnrecovered, "cdc %s", c.req)
		}
	}
	return nil
}

func (c *Class) setReq(s ReqState) {
	pkg.LogDebug(pkg.ComponentClass, "request state", "from", c.req, "to", s)
	c.req = s
}

// SetLineCoding sends lc to the device once the control pipe is free.
func (c *Class) SetLineCoding(lc LineCoding) error {
	if !lc.Valid() {
		return errors.Wrapf(pkg.ErrInvalidParameter, "line coding %s", lc)
	}
	c.coding = lc
	c.pending = ReqSetLineCoding
	return nil
}

// SetControlLines sends DTR and RTS to the device once the control pipe
// is free.
func (c *Class) SetControlLines(dtr, rts bool) {
	c.lines = controlLines(dtr, rts)
	if c.pending == ReqDone {
		c.pending = ReqSetControlLineState
	}
}

// Send queues p for the bulk OUT endpoint. It returns the bytes queued and
// wraps pkg.ErrFIFOFull when the buffer could not take all of p.
func (c *Class) Send(p []byte) (int, error) {
	if c.out.ch == host.NoChannel {
		return 0, pkg.ErrNotConfigured
	}
	n := min(len(p), TxBufferSize-len(c.tx))
	c.tx = append(c.tx, p[:n]...)
	if n < len(p) {
		return n, errors.Wrapf(pkg.ErrFIFOFull, "cdc queued %d of %d bytes", n, len(p))
	}
	return n, nil
}

// Read moves received data into p and returns its length.
func (c *Class) Read(p []byte) int {
	n := copy(p, c.rx)
	c.rx = append(c.rx[:0], c.rx[n:]...)
	return n
}

// EnableReceive keeps a read pending on the bulk IN endpoint.
func (c *Class) EnableReceive() {
	c.rxEnabled = true
	if c.rxState == XferIdle {
		c.rxState = XferGet
	}
}

// DisableReceive stops reading and halts a read in flight.
func (c *Class) DisableReceive(h *host.Host) {
	c.rxEnabled = false
	if c.rxState == XferGetWait {
		h.HaltChannel(c.in.ch)
	}
	if c.rxState != XferStalled {
		c.rxState = XferIdle
	}
}

// Process runs one step of the control, send, receive and notification
// machines and calls the application callback.
func (c *Class) Process(h *host.Host) error {
	if err := c.controlStep(h); err != nil {
		return err
	}
	c.sendStep(h)
	c.receiveStep(h)
	c.notifyStep(h)
	h.Callbacks().Application()
	return nil
}

// controlStep owns the control pipe: a line request or a clear halt runs
// to its end before the next one starts.
func (c *Class) controlStep(h *host.Host) error {
	switch {
	case c.req != ReqDone:
		_, err := c.Request(h)
		return err
	case c.clearing != nil:
		c.clearStep(h)
	case c.pending != ReqDone:
		c.setReq(c.pending)
		c.pending = ReqDone
	case c.txState == XferStalled:
		c.clearing = &c.out
	case c.rxState == XferStalled:
		c.clearing = &c.in
	}
	return nil
}

// clearStep clears the halt of a stalled bulk endpoint and restarts its
// machine.
func (c *Class) clearStep(h *host.Host) {
	p := c.clearing
	st := h.ControlRequest(host.ClearEndpointHaltRequest(p.ep), nil)
	if !st.Done() {
		return
	}
	if st == host.CtrlComplete {
		h.SetToggle(p.ch, 0)
	} else {
		pkg.LogWarn(pkg.ComponentClass, "cdc clear halt failed", "endpoint", p.ep, "result", st)
	}
	c.clearing = nil
	if p == &c.out {
		c.txState = XferIdle
		return
	}
	c.rxState = XferIdle
	if c.rxEnabled {
		c.rxState = XferGet
	}
}

func (c *Class) sendStep(h *host.Host) {
	switch c.txState {
	case XferIdle:
		if len(c.tx) > 0 {
			c.txState = XferSend
		}

	case XferSend:
		c.txLen = copy(c.txPkt[:c.out.mps], c.tx)
		h.BulkOut(c.out.ch, c.txPkt[:c.txLen])
		c.txState = XferSendWait

	case XferSendWait:
		switch h.URBStatus(c.out.ch) {
		case host.URBOK:
			c.tx = append(c.tx[:0], c.tx[c.txLen:]...)
			c.sent += c.txLen
			c.txState = XferIdle
		case host.URBNotReady, host.URBError:
			c.txState = XferSend
		case host.URBStall:
			pkg.LogWarn(pkg.ComponentClass, "cdc bulk out stalled", "endpoint", c.out.ep)
			c.txState = XferStalled
		}
	}
}

func (c *Class) receiveStep(h *host.Host) {
	switch c.rxState {
	case XferGet:
		// wait for Read to make room for a full packet
		if c.onReceive == nil && len(c.rx)+int(c.in.mps) > RxBufferSize {
			return
		}
		h.BulkIn(c.in.ch, c.rxPkt[:c.in.mps])
		c.rxState = XferGetWait

	case XferGetWait:
		switch h.URBStatus(c.in.ch) {
		case host.URBOK:
			c.deliver(c.rxPkt[:h.TransferredBytes(c.in.ch)])
			c.rxState = XferGet
		case host.URBNotReady, host.URBError:
			c.rxState = XferGet
		case host.URBStall:
			pkg.LogWarn(pkg.ComponentClass, "cdc bulk in stalled", "endpoint", c.in.ep)
			c.rxState = XferStalled
		}
		if c.rxState == XferGet && !c.rxEnabled {
			c.rxState = XferIdle
		}
	}
}

func (c *Class) deliver(data []byte) {
	if len(data) == 0 {
		return
	}
	c.received += len(data)
	if c.onReceive != nil {
		c.onReceive(data)
		return
	}
	n := min(len(data), RxBufferSize-len(c.rx))
	c.rx = append(c.rx, data[:n]...)
	if n < len(data) {
		c.dropped += len(data) - n
		pkg.LogWarn(pkg.ComponentClass, "cdc receive overflow", "dropped", len(data)-n)
	}
}

// notifyStep polls the notification endpoint once per interval.
func (c *Class) notifyStep(h *host.Host) {
	if c.notify.ch == host.NoChannel {
		return
	}
	if !c.ntfyPending {
		if h.FrameNumber()-c.timer < c.interval {
			return
		}
		h.InterruptIn(c.notify.ch, c.ntfyPkt[:c.notify.mps])
		c.ntfyPending = true
		c.timer = h.FrameNumber()
		return
	}
	switch h.URBStatus(c.notify.ch) {
	case host.URBOK:
		c.ntfyPending = false
		c.notification(c.ntfyPkt[:h.TransferredBytes(c.notify.ch)])
	case host.URBNotReady, host.URBError, host.URBStall:
		c.ntfyPending = false
	}
}

// notification decodes a SERIAL_STATE notification. Other notifications
// are ignored.
func (c *Class) notification(b []byte) {
	if len(b) < SerialStateSize || b[1] != NotificationSerialState {
		pkg.LogDebug(pkg.ComponentClass, "cdc notification ignored", "bytes", len(b))
		return
	}
	c.serialState = binary.LittleEndian.Uint16(b[8:10])
	pkg.LogDebug(pkg.ComponentClass, "cdc serial state", "state", c.serialState)
	if c.onSerialState != nil {
		c.onSerialState(c.serialState)
	}
}

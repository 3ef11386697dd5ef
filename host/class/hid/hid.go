package hid

import (
	"github.com/pkg/errors"

	"github.com/apm32sdk/usbotg/host"
	"github.com/apm32sdk/usbotg/pkg"
)

// ReportHandler receives every input report. The slice is only valid for
// the duration of the call.
type ReportHandler func(report []byte)

// Option configures a Class.
type Option func(*Class)

// WithReportHandler sets the input report handler.
func WithReportHandler(fn ReportHandler) Option {
	return func(c *Class) { c.handler = fn }
}

// WithProtocol selects the protocol sent with SET_PROTOCOL. The default is
// ProtocolReport.
func WithProtocol(p uint8) Option {
	return func(c *Class) { c.protocol = p }
}

// Class is the host HID class driver. It binds the first HID interface
// with an interrupt IN endpoint and polls it for input reports.
type Class struct {
	handler  ReportHandler
	protocol uint8

	itf      uint8
	itfProto uint8
	ep       uint8
	mps      uint16
	interval uint16
	ch       int

	req     ReqState
	state   State
	timer   uint16
	pending bool

	desc      HIDDescriptor
	reportLen int
	reportDsc [MaxReportDescriptor]byte
	buf       [64]byte

	mouse   Mouse
	reports int
}

var _ host.Class = (*Class)(nil)

// New returns a HID class driver.
func New(opts ...Option) *Class {
	c := &Class{protocol: ProtocolReport, ch: host.NoChannel}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RequestState returns the class request state.
func (c *Class) RequestState() ReqState { return c.req }

// State returns the polling state.
func (c *Class) State() State { return c.state }

// Descriptor returns the HID descriptor read from the device.
func (c *Class) Descriptor() HIDDescriptor { return c.desc }

// ReportDescriptor returns the report descriptor read from the device.
func (c *Class) ReportDescriptor() []byte { return c.reportDsc[:c.reportLen] }

// Mouse returns the last decoded boot mouse report.
func (c *Class) Mouse() Mouse { return c.mouse }

// Reports returns the number of input reports received.
func (c *Class) Reports() int { return c.reports }

// Interval returns the polling period in frames.
func (c *Class) Interval() uint16 { return c.interval }

// Init binds the HID interface and opens its interrupt IN channel.
func (c *Class) Init(h *host.Host) error {
	c.req = ReqGetHIDDescriptor
	c.state = StateIdle
	c.reportLen = 0
	c.reports = 0
	c.pending = false

	d := h.Descriptors()
	var itf *host.Interface
	var ep *host.EndpointDescriptor
	for i := 0; i < d.NumInterfaces && ep == nil; i++ {
		itf = d.Interface(i)
		if itf.Descriptor.InterfaceClass == ClassHID {
			ep = itf.Endpoint(host.EndpointTypeInterrupt, true)
		}
	}
	if ep == nil {
		return errors.Wrap(pkg.ErrNotSupported, "no HID interface with an interrupt IN endpoint")
	}
	c.itf = itf.Descriptor.InterfaceNumber
	c.itfProto = itf.Descriptor.InterfaceProtocol
	c.ep = ep.EndpointAddress
	c.mps = min(ep.MaxPacketSize, uint16(len(c.buf)))
	c.interval = uint16(ep.Interval)
	if c.interval == 0 {
		c.interval = PollInterval
	}

	c.ch = h.AllocChannel(c.ep)
	if c.ch == host.NoChannel {
		return errors.Wrap(pkg.ErrNoChannel, "interrupt pipe")
	}
	if err := h.OpenChannel(c.ch, h.Address(), host.EndpointTypeInterrupt, c.mps); err != nil {
		return errors.Wrap(err, "interrupt in")
	}
	pkg.LogInfo(pkg.ComponentClass, "hid bound", "interface", c.itf,
		"endpoint", c.ep, "mps", c.mps, "interval", c.interval)
	return nil
}

// DeInit releases the interrupt channel.
func (c *Class) DeInit(h *host.Host) {
	if c.ch != host.NoChannel {
		h.FreeChannel(c.ch)
		c.ch = host.NoChannel
	}
	c.req = ReqGetHIDDescriptor
	c.state = StateIdle
}

// interfaceRequest returns a class request addressed to the bound
// interface.
func (c *Class) interfaceRequest(request uint8, value uint16) host.Request {
	return host.Request{
		RequestType: host.RequestTypeOut | host.RequestTypeClass | host.RequestTypeInterface,
		Request:     request,
		Value:       value,
		Index:       uint16(c.itf),
	}
}

// descriptorRequest returns a GET_DESCRIPTOR for a HID class descriptor
// of the bound interface.
func (c *Class) descriptorRequest(typ uint8, length uint16) host.Request {
	req := host.GetDescriptorRequest(typ, 0, length)
	req.RequestType = host.RequestTypeIn | host.RequestTypeStandard | host.RequestTypeInterface
	req.Index = uint16(c.itf)
	return req
}

// Request reads the HID and report descriptors, then sends SET_IDLE and
// SET_PROTOCOL. A failed descriptor read is retried. SET_IDLE and
// SET_PROTOCOL are optional and a stall moves on to the next request.
func (c *Class) Request(h *host.Host) (bool, error) {
	switch c.req {
	case ReqGetHIDDescriptor:
		req := c.descriptorRequest(DescriptorTypeHID, HIDDescriptorSize)
		if h.ControlRequest(req, c.buf[:HIDDescriptorSize]) == host.CtrlComplete {
			if !ParseHIDDescriptor(c.buf[:HIDDescriptorSize], &c.desc) {
				return false, errors.Wrap(pkg.ErrInvalidDescriptor, "hid descriptor")
			}
			c.setReq(ReqGetReportDescriptor)
		}

	case ReqGetReportDescriptor:
		n := min(int(c.desc.ReportDescLen), len(c.reportDsc))
		req := c.descriptorRequest(DescriptorTypeReport, uint16(n))
		if h.ControlRequest(req, c.reportDsc[:n]) == host.CtrlComplete {
			c.reportLen = n
			pkg.LogDebug(pkg.ComponentClass, "report descriptor", "length", n)
			c.setReq(ReqSetIdle)
		}

	case ReqSetIdle:
		switch h.ControlRequest(c.interfaceRequest(RequestSetIdle, 0), nil) {
		case host.CtrlComplete:
			c.setReq(ReqSetProtocol)
		case host.CtrlStall:
			pkg.LogDebug(pkg.ComponentClass, "SET_IDLE not supported")
			c.setReq(ReqSetProtocol)
		}

	case ReqSetProtocol:
		switch h.ControlRequest(c.interfaceRequest(RequestSetProtocol, uint16(c.protocol)), nil) {
		case host.CtrlComplete:
			c.setReq(ReqDone)
		case host.CtrlStall:
			pkg.LogDebug(pkg.ComponentClass, "SET_PROTOCOL not supported")
			c.setReq(ReqDone)
		}
	}
	return c.req == ReqDone, nil
}

func (c *Class) setReq(s ReqState) {
	pkg.LogDebug(pkg.ComponentClass, "request state", "from", c.req, "to", s)
	c.req = s
}

// Process runs one step of report polling and calls the application
// callback.
func (c *Class) Process(h *host.Host) error {
	switch c.state {
	case StateIdle:
		c.state = StateSync

	case StateSync:
		// interrupt transfers start on an even frame
		if h.FrameNumber()&1 == 0 {
			c.state = StateGetData
		}

	case StateGetData:
		h.InterruptIn(c.ch, c.buf[:c.mps])
		c.pending = true
		c.timer = h.FrameNumber()
		c.state = StatePoll

	case StatePoll:
		if h.FrameNumber()-c.timer >= c.interval {
			c.state = StateGetData
			break
		}
		switch h.URBStatus(c.ch) {
		case host.URBOK:
			if c.pending {
				c.pending = false
				c.report(c.buf[:h.TransferredBytes(c.ch)])
			}
		case host.URBStall:
			pkg.LogDebug(pkg.ComponentClass, "interrupt endpoint stalled", "endpoint", c.ep)
			c.state = StateClearStall
		}

	case StateClearStall:
		switch h.ControlRequest(host.ClearEndpointHaltRequest(c.ep), nil) {
		case host.CtrlComplete:
			h.SetToggle(c.ch, 0)
			c.state = StateGetData
		}
	}
	h.Callbacks().Application()
	return nil
}

func (c *Class) report(data []byte) {
	c.reports++
	if c.itfProto == ProtocolMouse || c.itfProto == ProtocolNone {
		ParseMouse(data, &c.mouse)
	}
	if c.handler != nil {
		c.handler(data)
	}
}

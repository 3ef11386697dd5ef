package hid

import (
	"github.com/pkg/errors"

	"github.com/apm32sdk/usbotg/device"
	"github.com/apm32sdk/usbotg/pkg"
)

// HIDVersion is the class release the HID descriptor reports.
const HIDVersion = 0x0111

// OutputReportHandler receives a report the host sent with SET_REPORT.
// The slice is only valid during the call.
type OutputReportHandler func(reportType, reportID uint8, data []byte)

// Option configures a Class.
type Option func(*Class)

// WithEndpoint sets the interrupt IN endpoint, its packet size and its
// polling interval in frames.
func WithEndpoint(in uint8, mps uint16, interval uint8) Option {
	return func(c *Class) {
		c.in = in | device.EndpointDirIn
		c.mps = mps
		c.interval = interval
	}
}

// WithInterface sets the interface number.
func WithInterface(n uint8) Option {
	return func(c *Class) { c.itf = n }
}

// WithBoot marks the interface as a boot device speaking protocol, one of
// ProtocolKeyboard and ProtocolMouse.
func WithBoot(protocol uint8) Option {
	return func(c *Class) {
		c.subclass = SubclassBoot
		c.itfProto = protocol
	}
}

// WithQueueDepth sets how many input reports are held while the endpoint
// is busy.
func WithQueueDepth(n int) Option {
	return func(c *Class) { c.depth = max(n, 0) }
}

// WithOutputReportHandler sets the handler of SET_REPORT data.
func WithOutputReportHandler(fn OutputReportHandler) Option {
	return func(c *Class) { c.onOutput = fn }
}

// Class is a HID function with one interrupt IN endpoint. Like every
// device class it runs in the device interrupt, so SendReport must not
// race with Device.HandleInterrupt.
type Class struct {
	device.NopHooks

	report   []byte
	size     int
	in       uint8
	mps      uint16
	interval uint8
	itf      uint8
	subclass uint8
	itfProto uint8
	depth    int
	onOutput OutputReportHandler

	protocol uint8
	idle     uint8
	busy     bool
	queue    [][]byte
	last     [MaxReportSize]byte
	lastLen  int
	sent     int

	setType uint8
	setID   uint8
	desc    [DescriptorSize]byte
	ctl     [1]byte
	out     [MaxReportSize]byte
}

// New returns a HID function serving the report descriptor report, whose
// input reports are size bytes long.
func New(report []byte, size int, opts ...Option) *Class {
	c := &Class{
		report:   report,
		size:     min(size, MaxReportSize),
		in:       DefaultInEndpoint,
		mps:      DefaultMaxPacketSize,
		interval: DefaultInterval,
		depth:    DefaultQueueDepth,
		protocol: ProtocolReport,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewKeyboard returns a boot keyboard.
func NewKeyboard(opts ...Option) *Class {
	opts = append([]Option{WithBoot(ProtocolKeyboard)}, opts...)
	return New(KeyboardReportDescriptor, KeyboardReportSize, opts...)
}

// NewMouse returns a boot mouse.
func NewMouse(opts ...Option) *Class {
	opts = append([]Option{WithBoot(ProtocolMouse)}, opts...)
	return New(MouseReportDescriptor, MouseReportSize, opts...)
}

// ReportDescriptor returns the report descriptor.
func (c *Class) ReportDescriptor() []byte { return c.report }

// Protocol returns the protocol last selected by the host.
func (c *Class) Protocol() uint8 { return c.protocol }

// IdleRate returns the idle rate last set by the host, in 4 ms units.
func (c *Class) IdleRate() uint8 { return c.idle }

// Busy reports whether an input report is in flight.
func (c *Class) Busy() bool { return c.busy }

// Queued returns the number of input reports waiting for the endpoint.
func (c *Class) Queued() int { return len(c.queue) }

// Descriptor returns the HID descriptor of the interface.
func (c *Class) Descriptor() Descriptor {
	return Descriptor{Version: HIDVersion, ReportLength: uint16(len(c.report))}
}

// AppendInterface adds the HID interface, its HID descriptor and its
// interrupt endpoint to b.
func (c *Class) AppendInterface(b *device.ConfigBuilder) *device.ConfigBuilder {
	hd := c.Descriptor()
	return b.
		Interface(device.InterfaceDescriptor{
			InterfaceNumber:   c.itf,
			NumEndpoints:      1,
			InterfaceClass:    ClassHID,
			InterfaceSubClass: c.subclass,
			InterfaceProtocol: c.itfProto,
		}).
		Raw(hd.AppendTo(nil)).
		Endpoint(device.EndpointDescriptor{
			EndpointAddress: c.in,
			Attributes:      device.EndpointTypeInterrupt,
			MaxPacketSize:   c.mps,
			Interval:        c.interval,
		})
}

// Descriptors returns a descriptor set with one bus-powered configuration
// holding only the HID interface.
func (c *Class) Descriptors(vid, pid uint16, manufacturer, product, serial string) *device.Descriptors {
	cfg := c.AppendInterface(device.NewConfigBuilder(1, device.ConfigAttrRemoteWakeup, 50)).Bytes()
	return device.NewDescriptors(device.DeviceDescriptor{
		VendorID:      vid,
		ProductID:     pid,
		DeviceVersion: 0x0100,
	}, cfg, manufacturer, product, serial)
}

// Reset drops pending reports and returns to the report protocol.
func (c *Class) Reset(*device.Device) {
	c.clear()
	c.protocol = ProtocolReport
	c.idle = 0
}

func (c *Class) clear() {
	c.busy = false
	c.queue = c.queue[:0]
}

// SetConfiguration opens the interrupt endpoint, or closes it when the
// configuration is dropped.
func (c *Class) SetConfiguration(d *device.Device) {
	c.clear()
	if d.Configuration() == 0 {
		d.CloseInEP(c.in)
		return
	}
	if err := d.OpenInEP(c.in, device.EndpointTypeInterrupt, c.mps); err != nil {
		pkg.LogError(pkg.ComponentClass, "hid open", "ep", c.in, "error", err)
	}
}

// GetDescriptor serves the HID and report descriptors of the interface.
func (c *Class) GetDescriptor(d *device.Device, req device.SetupPacket) bool {
	if req.Recipient() != device.RecipientInterface || uint8(req.Index) != c.itf {
		return false
	}
	var b []byte
	switch req.DescriptorType() {
	case DescriptorTypeHID:
		hd := c.Descriptor()
		b = hd.AppendTo(c.desc[:0])
	case DescriptorTypeReport:
		b = c.report
	default:
		return false
	}
	d.CtrlInData(b[:min(len(b), int(req.Length))])
	return true
}

// Setup answers the HID class requests addressed to the interface.
func (c *Class) Setup(d *device.Device, req device.SetupPacket) {
	if req.Recipient() != device.RecipientInterface || uint8(req.Index) != c.itf {
		d.SetStall(0)
		return
	}
	switch req.Request {
	case RequestGetReport:
		if !req.In() || uint8(req.Value>>8) != ReportTypeInput {
			d.SetStall(0)
			return
		}
		if c.lastLen == 0 {
			clear(c.last[:c.size])
			c.lastLen = c.size
		}
		d.CtrlInData(c.last[:min(c.lastLen, int(req.Length))])

	case RequestSetReport:
		if req.In() || int(req.Length) > len(c.out) {
			d.SetStall(0)
			return
		}
		c.setType, c.setID = uint8(req.Value>>8), uint8(req.Value)
		if req.Length == 0 {
			c.output(nil)
			d.CtrlTxStatus()
			return
		}
		d.CtrlOutData(c.out[:req.Length])

	case RequestGetIdle:
		if !req.In() || req.Length == 0 {
			d.SetStall(0)
			return
		}
		c.ctl[0] = c.idle
		d.CtrlInData(c.ctl[:])

	case RequestSetIdle:
		if req.In() {
			d.SetStall(0)
			return
		}
		c.idle = uint8(req.Value >> 8)
		pkg.LogDebug(pkg.ComponentClass, "hid set idle", "rate", c.idle, "id", uint8(req.Value))
		d.CtrlTxStatus()

	case RequestGetProtocol:
		if !req.In() || req.Length == 0 {
			d.SetStall(0)
			return
		}
		c.ctl[0] = c.protocol
		d.CtrlInData(c.ctl[:])

	case RequestSetProtocol:
		if req.In() || req.Value > ProtocolReport {
			d.SetStall(0)
			return
		}
		c.protocol = uint8(req.Value)
		pkg.LogDebug(pkg.ComponentClass, "hid set protocol", "protocol", c.protocol)
		d.CtrlTxStatus()

	default:
		d.SetStall(0)
	}
}

// TxStatus hands SET_REPORT data to the output handler before the status
// stage.
func (c *Class) TxStatus(d *device.Device) {
	if d.CtrlState() != device.CtrlOutData || d.Request().Request != RequestSetReport {
		return
	}
	c.output(c.out[:d.Endpoint(0).Count()])
}

// RxStatus is a no-op.
func (c *Class) RxStatus(*device.Device) {}

func (c *Class) output(data []byte) {
	pkg.LogDebug(pkg.ComponentClass, "hid set report", "type", c.setType, "id", c.setID, "len", len(data))
	if c.onOutput != nil {
		c.onOutput(c.setType, c.setID, data)
	}
}

// SendReport sends an input report on the interrupt endpoint. A report
// sent while another is in flight is queued. It fails with
// pkg.ErrFIFOFull when the queue is full.
func (c *Class) SendReport(d *device.Device, report []byte) error {
	if d.Configuration() == 0 {
		return pkg.ErrNotConfigured
	}
	if len(report) == 0 || len(report) > MaxReportSize {
		return errors.Wrapf(pkg.ErrInvalidParameter, "report of %d bytes", len(report))
	}
	if c.busy {
		if len(c.queue) >= c.depth {
			return errors.Wrapf(pkg.ErrFIFOFull, "hid queue of %d", c.depth)
		}
		c.queue = append(c.queue, append([]byte(nil), report...))
		return nil
	}
	return c.transmit(d, report)
}

// SendKeyboard sends a keyboard report.
func (c *Class) SendKeyboard(d *device.Device, r *KeyboardReport) error {
	var b [KeyboardReportSize]byte
	return c.SendReport(d, r.AppendTo(b[:0]))
}

// SendMouse sends a mouse report.
func (c *Class) SendMouse(d *device.Device, r *MouseReport) error {
	var b [MouseReportSize]byte
	return c.SendReport(d, r.AppendTo(b[:0]))
}

func (c *Class) transmit(d *device.Device, report []byte) error {
	c.lastLen = copy(c.last[:], report)
	c.busy = true
	if err := d.TxData(c.in, c.last[:c.lastLen]); err != nil {
		c.busy = false
		return errors.Wrap(err, "hid report")
	}
	c.sent++
	return nil
}

// InComplete sends the next queued report.
func (c *Class) InComplete(d *device.Device, ep uint8) {
	if ep != c.in&device.EndpointNumber {
		return
	}
	c.busy = false
	if len(c.queue) == 0 {
		return
	}
	next := c.queue[0]
	c.queue = append(c.queue[:0], c.queue[1:]...)
	if err := c.transmit(d, next); err != nil {
		pkg.LogError(pkg.ComponentClass, "hid queued report", "error", err)
	}
}

// OutComplete is a no-op; the function has no OUT endpoint.
func (c *Class) OutComplete(*device.Device, uint8) {}

// Sent returns the number of input reports handed to the endpoint.
func (c *Class) Sent() int { return c.sent }

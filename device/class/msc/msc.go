package msc

import (
	"github.com/apm32sdk/usbotg/device"
	"github.com/apm32sdk/usbotg/pkg"
)

// Option configures a Class.
type Option func(*Class)

// WithEndpoints sets the bulk endpoint addresses and their packet size.
func WithEndpoints(in, out uint8, mps uint16) Option {
	return func(c *Class) {
		c.in = in | device.EndpointDirIn
		c.out = out &^ device.EndpointDirIn
		c.mps = mps
	}
}

// WithInterface sets the interface number.
func WithInterface(n uint8) Option {
	return func(c *Class) { c.itf = n }
}

// WithInquiry sets the identification returned by INQUIRY.
func WithInquiry(q Inquiry) Option {
	return func(c *Class) { c.inquiry = q }
}

// Class is a mass storage function with a single logical unit, speaking
// the Bulk-Only Transport and the SCSI transparent command set. It runs
// entirely in the device interrupt.
type Class struct {
	device.NopHooks

	storage Storage
	inquiry Inquiry
	in, out uint8
	mps     uint16
	itf     uint8

	state State
	// halted is set by an invalid CBW. The bulk endpoints stay stalled
	// until a Bulk-Only reset.
	halted     bool
	cswPending bool

	cbw   CommandBlockWrapper
	csw   CommandStatusWrapper
	sense Sense

	lba       uint64
	remaining uint32 // blocks left in READ or WRITE
	chunk     int    // bytes expected by the current OUT transfer
	sent      int    // bytes of the last IN transfer

	cbwBuf [64]byte // room for an oversized CBW, which is rejected
	cswBuf [CSWSize]byte
	resp   [InquiryLength]byte
	buf    [MediaPacket]byte
	lun    [1]byte
}

// New returns a mass storage function for storage. The block size of
// storage must not exceed MediaPacket.
func New(storage Storage, opts ...Option) *Class {
	c := &Class{
		storage: storage,
		in:      DefaultInEndpoint,
		out:     DefaultOutEndpoint,
		mps:     DefaultMaxPacketSize,
		inquiry: Inquiry{
			Removable: storage.Removable(),
			Vendor:    "APM32",
			Product:   "Mass Storage",
			Revision:  "1.00",
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Storage returns the backing storage.
func (c *Class) Storage() Storage { return c.storage }

// State returns the transport phase.
func (c *Class) State() State { return c.state }

// Sense returns the sense data the next REQUEST SENSE reports.
func (c *Class) Sense() Sense { return c.sense }

// Halted reports whether an invalid CBW has halted the transport.
func (c *Class) Halted() bool { return c.halted }

// AppendInterface adds the mass storage interface and its bulk endpoints
// to b.
func (c *Class) AppendInterface(b *device.ConfigBuilder) *device.ConfigBuilder {
	return b.
		Interface(device.InterfaceDescriptor{
			InterfaceNumber:   c.itf,
			NumEndpoints:      2,
			InterfaceClass:    ClassMSC,
			InterfaceSubClass: SubclassSCSI,
			InterfaceProtocol: ProtocolBulkOnly,
		}).
		Endpoint(device.EndpointDescriptor{EndpointAddress: c.in, Attributes: device.EndpointTypeBulk, MaxPacketSize: c.mps}).
		Endpoint(device.EndpointDescriptor{EndpointAddress: c.out, Attributes: device.EndpointTypeBulk, MaxPacketSize: c.mps})
}

// Descriptors returns a descriptor set with one bus-powered configuration
// holding only the mass storage interface.
func (c *Class) Descriptors(vid, pid uint16, manufacturer, product, serial string) *device.Descriptors {
	cfg := c.AppendInterface(device.NewConfigBuilder(1, 0, 50)).Bytes()
	return device.NewDescriptors(device.DeviceDescriptor{
		VendorID:      vid,
		ProductID:     pid,
		DeviceVersion: 0x0100,
	}, cfg, manufacturer, product, serial)
}

// Reset drops any command in progress after a bus reset.
func (c *Class) Reset(*device.Device) {
	c.resetTransport()
	c.sense = Sense{}
}

func (c *Class) resetTransport() {
	c.state = StateIdle
	c.halted = false
	c.cswPending = false
	c.remaining = 0
}

// SetConfiguration opens the bulk endpoints and waits for the first CBW,
// or closes them when the configuration is dropped.
func (c *Class) SetConfiguration(d *device.Device) {
	if d.Configuration() == 0 {
		d.CloseInEP(c.in)
		d.CloseOutEP(c.out)
		c.resetTransport()
		return
	}
	if err := d.OpenInEP(c.in, device.EndpointTypeBulk, c.mps); err != nil {
		pkg.LogError(pkg.ComponentClass, "msc open", "ep", c.in, "error", err)
		return
	}
	if err := d.OpenOutEP(c.out, device.EndpointTypeBulk, c.mps); err != nil {
		pkg.LogError(pkg.ComponentClass, "msc open", "ep", c.out, "error", err)
		return
	}
	c.resetTransport()
	c.receiveCBW(d)
}

// ClearFeature resumes the transport after the host clears a halt on one
// of the bulk endpoints. A CSW held back by a stalled IN endpoint goes
// out once that stall is cleared.
func (c *Class) ClearFeature(d *device.Device) {
	req := d.Request()
	if req.Recipient() != device.RecipientEndpoint || req.Value != device.FeatureEndpointHalt {
		return
	}
	addr := req.EndpointAddress()
	if addr != c.in && addr != c.out {
		return
	}
	if c.halted {
		pkg.LogDebug(pkg.ComponentClass, "msc halted, stall kept", "ep", addr)
		return
	}
	d.ClearStall(addr)
	if addr == c.in && c.cswPending {
		c.cswPending = false
		c.sendCSW(d, c.csw.Status)
	}
}

// Setup answers the Bulk-Only class requests. Anything else stalls.
func (c *Class) Setup(d *device.Device, req device.SetupPacket) {
	if req.Recipient() != device.RecipientInterface || uint8(req.Index) != c.itf {
		d.SetStall(0)
		return
	}
	switch req.Request {
	case RequestGetMaxLUN:
		if req.Value != 0 || req.Length != 1 || !req.In() {
			d.SetStall(0)
			return
		}
		c.lun[0] = 0
		d.CtrlInData(c.lun[:])

	case RequestBulkOnlyReset:
		if req.Value != 0 || req.Length != 0 || req.In() {
			d.SetStall(0)
			return
		}
		d.CtrlInData(nil)
		pkg.LogDebug(pkg.ComponentClass, "msc bulk-only reset")
		c.resetTransport()
		if d.Configuration() != 0 {
			c.receiveCBW(d)
		}

	default:
		d.SetStall(0)
	}
}

// OutComplete takes a CBW or a chunk of WRITE data.
func (c *Class) OutComplete(d *device.Device, ep uint8) {
	if ep != c.out&device.EndpointNumber {
		return
	}
	n := d.XferCount(ep)
	switch c.state {
	case StateIdle:
		c.command(d, n)
	case StateDataOut:
		c.writeChunk(d, n)
	}
}

// InComplete moves on after READ data, the last data of a command or the
// CSW went out.
func (c *Class) InComplete(d *device.Device, ep uint8) {
	if ep != c.in&device.EndpointNumber {
		return
	}
	switch c.state {
	case StateDataIn:
		c.readChunk(d)

	case StateLastData:
		// a short data stage ending on a packet boundary ends with a stall
		if c.csw.DataResidue > 0 && c.sent > 0 && c.sent%int(c.mps) == 0 {
			c.csw.Status = CSWStatusGood
			c.stallIn(d)
			return
		}
		c.sendCSW(d, CSWStatusGood)

	case StateStatus:
		c.receiveCBW(d)
	}
}

func (c *Class) receiveCBW(d *device.Device) {
	c.state = StateIdle
	if err := d.RxData(c.out, c.cbwBuf[:]); err != nil {
		pkg.LogError(pkg.ComponentClass, "msc receive CBW", "error", err)
	}
}

// command validates a CBW of n bytes and runs its command. An invalid CBW
// halts both bulk endpoints.
func (c *Class) command(d *device.Device, n int) {
	if !ParseCBW(c.cbwBuf[:n], &c.cbw) || c.cbw.LUN != 0 || c.cbw.CBLength < 1 || c.cbw.CBLength > 16 {
		pkg.LogWarn(pkg.ComponentClass, "msc invalid CBW", "len", n)
		c.sense = Sense{Key: SenseIllegalRequest, ASC: ASCInvalidCommand}
		c.halted = true
		d.SetStall(c.in)
		d.SetStall(c.out)
		return
	}
	c.csw = CommandStatusWrapper{Tag: c.cbw.Tag, DataResidue: c.cbw.DataTransferLength}
	pkg.LogDebug(pkg.ComponentClass, "msc command",
		"op", c.cbw.CB[0], "tag", c.cbw.Tag, "len", c.cbw.DataTransferLength)
	c.execute(d)
}

// sendData sends a command response cut to the host's data length.
func (c *Class) sendData(d *device.Device, b []byte) {
	if c.cbw.DataTransferLength == 0 || !c.cbw.IsDataIn() {
		c.fail(d, SenseIllegalRequest, ASCInvalidFieldInCDB)
		return
	}
	n := min(len(b), int(c.cbw.DataTransferLength))
	c.csw.DataResidue -= uint32(n)
	c.sent = n
	c.state = StateLastData
	if err := d.TxData(c.in, b[:n]); err != nil {
		pkg.LogError(pkg.ComponentClass, "msc send", "error", err)
	}
}

func (c *Class) sendCSW(d *device.Device, status uint8) {
	c.csw.Status = status
	c.csw.MarshalTo(c.cswBuf[:])
	c.state = StateStatus
	if err := d.TxData(c.in, c.cswBuf[:]); err != nil {
		pkg.LogError(pkg.ComponentClass, "msc send CSW", "error", err)
	}
}

// stallIn ends the data stage with a stall. The CSW follows once the
// host clears it.
func (c *Class) stallIn(d *device.Device) {
	d.SetStall(c.in)
	c.cswPending = true
	c.state = StateStatus
}

// fail records the sense data and reports a failed command. A data stage
// that is still open is ended with a stall first.
func (c *Class) fail(d *device.Device, key, asc uint8) {
	pkg.LogDebug(pkg.ComponentClass, "msc command failed",
		"op", c.cbw.CB[0], "key", key, "asc", asc)
	c.sense = Sense{Key: key, ASC: asc}
	if c.csw.DataResidue == 0 {
		c.sendCSW(d, CSWStatusFailed)
		return
	}
	if !c.cbw.IsDataIn() {
		d.SetStall(c.out)
	}
	c.csw.Status = CSWStatusFailed
	c.stallIn(d)
}

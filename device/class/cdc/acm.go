package cdc

import (
	"encoding/binary"

	"github.com/pkg/errors"

	"github.com/apm32sdk/usbotg/device"
	"github.com/apm32sdk/usbotg/pkg"
)

// ReceiveHandler takes data from the bulk OUT endpoint. The slice is only
// valid during the call.
type ReceiveHandler func(d *device.Device, data []byte)

// Option configures an ACM.
type Option func(*ACM)

// WithEndpoints sets the notification, bulk IN and bulk OUT endpoint
// addresses and the bulk packet size.
func WithEndpoints(notify, in, out uint8, mps uint16) Option {
	return func(a *ACM) {
		a.notify = notify | device.EndpointDirIn
		a.in = in | device.EndpointDirIn
		a.out = out &^ device.EndpointDirIn
		a.mps = mps
	}
}

// WithInterfaces sets the control and data interface numbers.
func WithInterfaces(control, data uint8) Option {
	return func(a *ACM) { a.ctrlItf, a.dataItf = control, data }
}

// WithReceiveHandler passes received data to fn instead of buffering it
// for Read.
func WithReceiveHandler(fn ReceiveHandler) Option {
	return func(a *ACM) { a.onReceive = fn }
}

// WithEcho writes every received byte back to the host.
func WithEcho() Option {
	return func(a *ACM) { a.echo = true }
}

// WithLineCodingHandler sets the handler called after SET_LINE_CODING.
func WithLineCodingHandler(fn func(LineCoding)) Option {
	return func(a *ACM) { a.onLineCoding = fn }
}

// WithControlLineHandler sets the handler called after
// SET_CONTROL_LINE_STATE.
func WithControlLineHandler(fn func(dtr, rts bool)) Option {
	return func(a *ACM) { a.onControlLine = fn }
}

// WithBreakHandler sets the handler called for SEND_BREAK with the break
// length in milliseconds.
func WithBreakHandler(fn func(ms uint16)) Option {
	return func(a *ACM) { a.onBreak = fn }
}

// ACM is a CDC Abstract Control Model function: a virtual serial port with
// a control interface and a data interface. It runs in the device
// interrupt, so Write and Read must not race with Device.HandleInterrupt.
type ACM struct {
	device.NopHooks

	notify, in, out  uint8
	mps              uint16
	ctrlItf, dataItf uint8

	onReceive     ReceiveHandler
	echo          bool
	onLineCoding  func(LineCoding)
	onControlLine func(dtr, rts bool)
	onBreak       func(ms uint16)

	coding   LineCoding
	lines    uint16
	rx       []byte
	dropped  int
	tx       []byte
	txBusy   bool
	txLen    int
	zlp      bool
	ntfyBusy bool

	rxPkt [TxChunk]byte
	txPkt [TxChunk]byte
	ntfy  [SerialStateSize]byte
	ctl   [LineCodingSize]byte
	lcBuf [LineCodingSize]byte
}

// NewACM returns a CDC-ACM function.
func NewACM(opts ...Option) *ACM {
	a := &ACM{
		notify:  DefaultNotifyEndpoint,
		in:      DefaultInEndpoint,
		out:     DefaultOutEndpoint,
		mps:     DefaultMaxPacketSize,
		dataItf: 1,
		coding:  DefaultLineCoding,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// LineCoding returns the framing last set by the host.
func (a *ACM) LineCoding() LineCoding { return a.coding }

// DTR reports whether the host asserts Data Terminal Ready.
func (a *ACM) DTR() bool { return a.lines&ControlLineDTR != 0 }

// RTS reports whether the host asserts Request To Send.
func (a *ACM) RTS() bool { return a.lines&ControlLineRTS != 0 }

// Buffered returns the received bytes waiting for Read.
func (a *ACM) Buffered() int { return len(a.rx) }

// Dropped returns the received bytes lost to a full receive buffer.
func (a *ACM) Dropped() int { return a.dropped }

// Pending returns the bytes not yet handed to the bulk IN endpoint.
func (a *ACM) Pending() int { return len(a.tx) }

// AppendFunction adds the interface association, the control interface
// with its functional descriptors and notification endpoint, and the data
// interface with its bulk endpoints to b.
func (a *ACM) AppendFunction(b *device.ConfigBuilder) *device.ConfigBuilder {
	var fd []byte
	fd = appendHeader(fd)
	fd = appendCallManagement(fd, 0, a.dataItf)
	fd = appendACM(fd, ACMCapLineCoding|ACMCapSendBreak)
	fd = appendUnion(fd, a.ctrlItf, a.dataItf)
	return b.
		Association(device.InterfaceAssociationDescriptor{
			FirstInterface:   a.ctrlItf,
			InterfaceCount:   2,
			FunctionClass:    ClassCDC,
			FunctionSubClass: SubclassACM,
			FunctionProtocol: ProtocolAT,
		}).
		Interface(device.InterfaceDescriptor{
			InterfaceNumber:   a.ctrlItf,
			NumEndpoints:      1,
			InterfaceClass:    ClassCDC,
			InterfaceSubClass: SubclassACM,
			InterfaceProtocol: ProtocolAT,
		}).
		Raw(fd).
		Endpoint(device.EndpointDescriptor{
			EndpointAddress: a.notify,
			Attributes:      device.EndpointTypeInterrupt,
			MaxPacketSize:   NotifyMaxPacketSize,
			Interval:        NotifyInterval,
		}).
		Interface(device.InterfaceDescriptor{
			InterfaceNumber: a.dataItf,
			NumEndpoints:    2,
			InterfaceClass:  ClassCDCData,
		}).
		Endpoint(device.EndpointDescriptor{EndpointAddress: a.out, Attributes: device.EndpointTypeBulk, MaxPacketSize: a.mps}).
		Endpoint(device.EndpointDescriptor{EndpointAddress: a.in, Attributes: device.EndpointTypeBulk, MaxPacketSize: a.mps})
}

// Descriptors returns a descriptor set with one bus-powered configuration
// holding only the serial port. The device class announces the interface
// association.
func (a *ACM) Descriptors(vid, pid uint16, manufacturer, product, serial string) *device.Descriptors {
	cfg := a.AppendFunction(device.NewConfigBuilder(1, 0, 50)).Bytes()
	return device.NewDescriptors(device.DeviceDescriptor{
		DeviceClass:    device.ClassMisc,
		DeviceSubClass: 0x02,
		DeviceProtocol: 0x01,
		VendorID:       vid,
		ProductID:      pid,
		DeviceVersion:  0x0100,
	}, cfg, manufacturer, product, serial)
}

// Reset drops buffered data and returns the port to its defaults.
func (a *ACM) Reset(*device.Device) {
	a.clear()
	a.coding = DefaultLineCoding
	a.lines = 0
}

func (a *ACM) clear() {
	a.rx = a.rx[:0]
	a.tx = a.tx[:0]
	a.txBusy = false
	a.zlp = false
	a.ntfyBusy = false
}

// SetConfiguration opens the three endpoints and starts receiving, or
// closes them when the configuration is dropped.
func (a *ACM) SetConfiguration(d *device.Device) {
	a.clear()
	if d.Configuration() == 0 {
		d.CloseInEP(a.notify)
		d.CloseInEP(a.in)
		d.CloseOutEP(a.out)
		return
	}
	for _, ep := range []struct {
		addr uint8
		typ  uint8
		mps  uint16
	}{
		{a.notify, device.EndpointTypeInterrupt, NotifyMaxPacketSize},
		{a.in, device.EndpointTypeBulk, a.mps},
	} {
		if err := d.OpenInEP(ep.addr, ep.typ, ep.mps); err != nil {
			pkg.LogError(pkg.ComponentClass, "cdc open", "ep", ep.addr, "error", err)
			return
		}
	}
	if err := d.OpenOutEP(a.out, device.EndpointTypeBulk, a.mps); err != nil {
		pkg.LogError(pkg.ComponentClass, "cdc open", "ep", a.out, "error", err)
		return
	}
	a.receive(d)
}

// Setup answers the ACM class requests addressed to the control
// interface.
func (a *ACM) Setup(d *device.Device, req device.SetupPacket) {
	if req.Recipient() != device.RecipientInterface || uint8(req.Index) != a.ctrlItf {
		d.SetStall(0)
		return
	}
	switch req.Request {
	case RequestSetLineCoding:
		if req.In() || req.Length != LineCodingSize {
			d.SetStall(0)
			return
		}
		d.CtrlOutData(a.lcBuf[:])

	case RequestGetLineCoding:
		if !req.In() || req.Length == 0 {
			d.SetStall(0)
			return
		}
		b := a.coding.AppendTo(a.ctl[:0])
		d.CtrlInData(b[:min(len(b), int(req.Length))])

	case RequestSetControlLineState:
		if req.In() {
			d.SetStall(0)
			return
		}
		a.lines = req.Value & (ControlLineDTR | ControlLineRTS)
		pkg.LogDebug(pkg.ComponentClass, "cdc control lines", "dtr", a.DTR(), "rts", a.RTS())
		if a.onControlLine != nil {
			a.onControlLine(a.DTR(), a.RTS())
		}
		d.CtrlTxStatus()

	case RequestSendBreak:
		if req.In() {
			d.SetStall(0)
			return
		}
		pkg.LogDebug(pkg.ComponentClass, "cdc break", "ms", req.Value)
		if a.onBreak != nil {
			a.onBreak(req.Value)
		}
		d.CtrlTxStatus()

	default:
		d.SetStall(0)
	}
}

// TxStatus applies the line coding received in the data stage of
// SET_LINE_CODING. A coding no UART can produce is ignored.
func (a *ACM) TxStatus(d *device.Device) {
	if d.CtrlState() != device.CtrlOutData || d.Request().Request != RequestSetLineCoding {
		return
	}
	var lc LineCoding
	if !ParseLineCoding(a.lcBuf[:d.Endpoint(0).Count()], &lc) || !lc.Valid() {
		pkg.LogWarn(pkg.ComponentClass, "cdc line coding rejected", "coding", a.lcBuf)
		return
	}
	a.coding = lc
	pkg.LogDebug(pkg.ComponentClass, "cdc line coding",
		"baud", lc.BaudRate, "bits", lc.DataBits, "parity", lc.Parity, "stop", lc.StopBits)
	if a.onLineCoding != nil {
		a.onLineCoding(lc)
	}
}

// RxStatus is a no-op.
func (a *ACM) RxStatus(*device.Device) {}

// receive arms the bulk OUT endpoint for one packet.
func (a *ACM) receive(d *device.Device) {
	if err := d.RxData(a.out, a.rxPkt[:a.mps]); err != nil {
		pkg.LogError(pkg.ComponentClass, "cdc receive", "error", err)
	}
}

// OutComplete takes data from the bulk OUT endpoint and re-arms it.
func (a *ACM) OutComplete(d *device.Device, ep uint8) {
	if ep != a.out {
		return
	}
	data := a.rxPkt[:d.XferCount(ep)]
	switch {
	case a.onReceive != nil:
		a.onReceive(d, data)
	case a.echo:
		if _, err := a.Write(d, data); err != nil {
			pkg.LogWarn(pkg.ComponentClass, "cdc echo", "error", err)
		}
	default:
		n := min(len(data), RxBufferSize-len(a.rx))
		a.rx = append(a.rx, data[:n]...)
		if n < len(data) {
			a.dropped += len(data) - n
			pkg.LogWarn(pkg.ComponentClass, "cdc receive overflow", "dropped", len(data)-n)
		}
	}
	a.receive(d)
}

// Read moves received data into p and returns its length.
func (a *ACM) Read(p []byte) int {
	n := copy(p, a.rx)
	a.rx = append(a.rx[:0], a.rx[n:]...)
	return n
}

// Write queues p for the bulk IN endpoint. It returns the bytes queued and
// wraps pkg.ErrFIFOFull when the transmit buffer could not take all of p.
func (a *ACM) Write(d *device.Device, p []byte) (int, error) {
	if d.Configuration() == 0 {
		return 0, pkg.ErrNotConfigured
	}
	n := min(len(p), TxBufferSize-len(a.tx))
	a.tx = append(a.tx, p[:n]...)
	a.kick(d)
	if n < len(p) {
		return n, errors.Wrapf(pkg.ErrFIFOFull, "cdc queued %d of %d bytes", n, len(p))
	}
	return n, nil
}

// kick starts the next bulk IN transfer. A transfer that ended on a packet
// boundary with nothing behind it is closed by a zero-length packet.
func (a *ACM) kick(d *device.Device) {
	if a.txBusy {
		return
	}
	if len(a.tx) == 0 {
		if !a.zlp {
			return
		}
		a.zlp = false
		a.txLen = 0
	} else {
		a.txLen = copy(a.txPkt[:], a.tx)
		a.tx = append(a.tx[:0], a.tx[a.txLen:]...)
	}
	a.txBusy = true
	if err := d.TxData(a.in, a.txPkt[:a.txLen]); err != nil {
		a.txBusy = false
		pkg.LogError(pkg.ComponentClass, "cdc transmit", "error", err)
	}
}

// SendSerialState sends a SERIAL_STATE notification with the given state
// bits. It wraps pkg.ErrFIFOFull while the previous one is in flight.
func (a *ACM) SendSerialState(d *device.Device, state uint16) error {
	if d.Configuration() == 0 {
		return pkg.ErrNotConfigured
	}
	if a.ntfyBusy {
		return errors.Wrap(pkg.ErrFIFOFull, "cdc notification")
	}
	b := append(a.ntfy[:0],
		device.RequestDirIn|device.RequestTypeClass|device.RecipientInterface,
		NotificationSerialState, 0, 0)
	b = binary.LittleEndian.AppendUint16(b, uint16(a.ctrlItf))
	b = binary.LittleEndian.AppendUint16(b, 2)
	b = binary.LittleEndian.AppendUint16(b, state)
	a.ntfyBusy = true
	if err := d.TxData(a.notify, b); err != nil {
		a.ntfyBusy = false
		return errors.Wrap(err, "cdc notification")
	}
	return nil
}

// InComplete continues transmission after a bulk IN transfer and frees
// the notification endpoint.
func (a *ACM) InComplete(d *device.Device, ep uint8) {
	switch ep {
	case a.notify & device.EndpointNumber:
		a.ntfyBusy = false
	case a.in & device.EndpointNumber:
		a.txBusy = false
		a.zlp = a.txLen > 0 && a.txLen%int(a.mps) == 0 && len(a.tx) == 0
		a.kick(d)
	}
}

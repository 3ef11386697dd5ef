package msc

import (
	"github.com/pkg/errors"

	"github.com/apm32sdk/usbotg/host"
	"github.com/apm32sdk/usbotg/pkg"
)

// Info describes the attached logical unit.
type Info struct {
	MaxLUN         uint8
	BlockCount     uint32
	BlockSize      uint32
	WriteProtected bool
	Sense          Sense // last REQUEST SENSE result
}

// Capacity returns the size of the unit in bytes.
func (i Info) Capacity() uint64 {
	return uint64(i.BlockCount) * uint64(i.BlockSize)
}

// Class is the host Mass Storage class driver for Bulk-Only Transport
// devices with the SCSI transparent command set.
type Class struct {
	itf uint8
	bot transport

	state   State
	req     ReqState
	prevReq ReqState
	scsi    scsiState

	errCount   int
	stallCount int

	info   Info
	maxLUN [1]byte
	buf    [64]byte
}

var _ host.Class = (*Class)(nil)

// New returns an MSC class driver.
func New() *Class {
	c := &Class{}
	c.reset()
	return c
}

func (c *Class) reset() {
	c.state = StateTestUnitReady
	c.req = ReqBOTReset
	c.prevReq = ReqBOTReset
	c.scsi = scsiSend
	c.errCount = 0
	c.stallCount = 0
	c.info = Info{BlockSize: DefaultBlockSize}
	c.bot.outCh = host.NoChannel
	c.bot.inCh = host.NoChannel
}

// State returns the class state.
func (c *Class) State() State { return c.state }

// RequestState returns the class request state.
func (c *Class) RequestState() ReqState { return c.req }

// Info returns what the class learned about the unit.
func (c *Class) Info() Info { return c.info }

// Ready reports whether the unit accepts Read and Write.
func (c *Class) Ready() bool { return c.state == StateApp }

// Init binds the first Bulk-Only interface of the device and opens its
// bulk channels.
func (c *Class) Init(h *host.Host) error {
	c.reset()
	d := h.Descriptors()
	var itf *host.Interface
	for i := 0; i < d.NumInterfaces; i++ {
		cand := d.Interface(i)
		if cand.Descriptor.InterfaceClass == ClassMSC &&
			cand.Descriptor.InterfaceProtocol == ProtocolBulkOnly {
			itf = cand
			break
		}
		pkg.LogDebug(pkg.ComponentClass, "skipping interface",
			"number", cand.Descriptor.InterfaceNumber, "class", cand.Descriptor.InterfaceClass)
	}
	if itf == nil {
		return errors.Wrap(pkg.ErrNotSupported, "no bulk-only mass storage interface")
	}
	in := itf.Endpoint(host.EndpointTypeBulk, true)
	out := itf.Endpoint(host.EndpointTypeBulk, false)
	if in == nil || out == nil {
		return errors.Wrap(pkg.ErrInvalidDescriptor, "mass storage interface lacks bulk endpoints")
	}
	c.itf = itf.Descriptor.InterfaceNumber

	t := &c.bot
	t.outEP, t.outMPS = out.EndpointAddress, out.MaxPacketSize
	t.inEP, t.inMPS = in.EndpointAddress, in.MaxPacketSize
	t.outCh = h.AllocChannel(t.outEP)
	t.inCh = h.AllocChannel(t.inEP)
	if t.outCh == host.NoChannel || t.inCh == host.NoChannel {
		return errors.Wrap(pkg.ErrNoChannel, "bulk pipes")
	}
	if err := h.OpenChannel(t.outCh, h.Address(), host.EndpointTypeBulk, t.outMPS); err != nil {
		return errors.Wrap(err, "bulk out")
	}
	if err := h.OpenChannel(t.inCh, h.Address(), host.EndpointTypeBulk, t.inMPS); err != nil {
		return errors.Wrap(err, "bulk in")
	}
	pkg.LogInfo(pkg.ComponentClass, "mass storage bound", "interface", c.itf,
		"out", t.outEP, "in", t.inEP, "mps", t.inMPS)
	return nil
}

// DeInit releases the bulk channels.
func (c *Class) DeInit(h *host.Host) {
	if c.bot.outCh != host.NoChannel {
		h.FreeChannel(c.bot.outCh)
	}
	if c.bot.inCh != host.NoChannel {
		h.FreeChannel(c.bot.inCh)
	}
	c.reset()
}

// Request runs the class requests: Bulk-Only reset, then GET MAX LUN.
// A stalled request is recovered through a clear-halt on endpoint 0 up to
// StallRetryLimit times; after that the requests are skipped.
func (c *Class) Request(h *host.Host) (bool, error) {
	switch c.req {
	case ReqBOTReset:
		req := host.Request{
			RequestType: host.RequestTypeOut | host.RequestTypeClass | host.RequestTypeInterface,
			Request:     RequestBulkOnlyReset,
			Index:       uint16(c.itf),
		}
		switch h.ControlRequest(req, nil) {
		case host.CtrlComplete:
			c.stallCount = 0
			c.setReq(ReqGetMaxLUN)
		case host.CtrlStall:
			c.ctrlStall(ReqBOTReset)
		}

	case ReqGetMaxLUN:
		req := host.Request{
			RequestType: host.RequestTypeIn | host.RequestTypeClass | host.RequestTypeInterface,
			Request:     RequestGetMaxLUN,
			Index:       uint16(c.itf),
			Length:      1,
		}
		switch h.ControlRequest(req, c.maxLUN[:]) {
		case host.CtrlComplete:
			c.stallCount = 0
			c.info.MaxLUN = c.maxLUN[0]
			if c.info.MaxLUN != 0 {
				return false, errors.Wrapf(pkg.ErrNotSupported, "%d logical units", int(c.info.MaxLUN)+1)
			}
			c.setReq(ReqDone)
		case host.CtrlStall:
			c.maxLUN[0] = 0
			c.ctrlStall(ReqGetMaxLUN)
		}

	case ReqCtrlError:
		req := host.ClearFeatureRequest(host.RequestTypeEndpoint, host.FeatureEndpointHalt, 0)
		if h.ControlRequest(req, nil) == host.CtrlComplete {
			c.maxLUN[0] = 0
			c.setReq(c.prevReq)
		}
	}
	return c.req == ReqDone, nil
}

// ctrlStall enters the control-error recovery for the stalled request, or
// skips the remaining requests once the stall budget is spent.
func (c *Class) ctrlStall(from ReqState) {
	c.stallCount++
	if c.stallCount <= StallRetryLimit {
		c.prevReq = from
		c.setReq(ReqCtrlError)
		return
	}
	pkg.LogWarn(pkg.ComponentClass, "class request keeps stalling", "request", from)
	c.stallCount = 0
	c.setReq(ReqDone)
}

func (c *Class) setReq(s ReqState) {
	pkg.LogDebug(pkg.ComponentClass, "request state", "from", c.req, "to", s)
	c.req = s
}

// Process runs one step of the unit bring-up and then hands the unit to
// the application callback.
func (c *Class) Process(h *host.Host) error {
	switch c.state {
	case StateTestUnitReady:
		c.check(c.testUnitReady(h), StateReadCapacity10)
	case StateReadCapacity10:
		c.check(c.readCapacity10(h), StateModeSense6)
	case StateModeSense6:
		if c.check(c.modeSense6(h), StateApp) {
			pkg.LogInfo(pkg.ComponentClass, "unit ready", "blocks", c.info.BlockCount,
				"block_size", c.info.BlockSize, "write_protected", c.info.WriteProtected)
		}
	case StateRequestSense:
		switch c.requestSense(h) {
		case StatusOK:
			pkg.LogDebug(pkg.ComponentClass, "sense", "key", c.info.Sense.Key, "asc", c.info.Sense.ASC)
			c.setState(StateTestUnitReady)
		case StatusFail:
			c.fail()
		case StatusPhaseError:
			c.setState(StateUnrecovered)
		}
	case StateApp:
		h.Callbacks().Application()
	case StateUnrecovered:
		return errors.Wrap(pkg.ErrUnrecovered, "mass storage")
	}
	return nil
}

// check applies the outcome of a bring-up command and reports whether it
// succeeded.
func (c *Class) check(st Status, next State) bool {
	switch st {
	case StatusOK:
		c.errCount = 0
		c.setState(next)
		return true
	case StatusFail:
		c.fail()
	case StatusPhaseError:
		c.setState(StateUnrecovered)
	}
	return false
}

// fail asks for sense data after a failed command, or gives up once
// ErrorRetryLimit commands failed in a row.
func (c *Class) fail() {
	c.errCount++
	if c.errCount < ErrorRetryLimit {
		c.scsi = scsiSend
		c.setState(StateRequestSense)
		return
	}
	c.errCount = 0
	pkg.LogError(pkg.ComponentClass, "command retries exhausted", "state", c.state)
	c.setState(StateUnrecovered)
}

func (c *Class) setState(s State) {
	if s == c.state {
		return
	}
	pkg.LogDebug(pkg.ComponentClass, "state", "from", c.state, "to", s)
	c.state = s
}

// Read reads len(buf)/BlockSize blocks starting at lba into buf. Like every
// polled operation it must be called until it returns a status other than
// StatusBusy, with the bus running in between. len(buf) must be a
// multiple of the block size.
func (c *Class) Read(h *host.Host, lba uint32, buf []byte) Status {
	blocks, ok := c.blocks(buf)
	if !ok {
		return StatusFail
	}
	cdb := rw10(SCSIRead10, lba, blocks)
	return c.command(h, cdb[:], len(buf), true, buf)
}

// Write writes buf to the unit starting at lba. It is polled like Read.
func (c *Class) Write(h *host.Host, lba uint32, buf []byte) Status {
	if c.info.WriteProtected {
		pkg.LogWarn(pkg.ComponentClass, "write to protected unit", "lba", lba)
		return StatusFail
	}
	blocks, ok := c.blocks(buf)
	if !ok {
		return StatusFail
	}
	cdb := rw10(SCSIWrite10, lba, blocks)
	return c.command(h, cdb[:], len(buf), false, buf)
}

func (c *Class) blocks(buf []byte) (uint16, bool) {
	if !c.Ready() || c.info.BlockSize == 0 {
		return 0, false
	}
	n := len(buf) / int(c.info.BlockSize)
	if n == 0 || n > 0xFFFF || len(buf)%int(c.info.BlockSize) != 0 {
		return 0, false
	}
	return uint16(n), true
}

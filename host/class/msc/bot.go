package msc

import (
	"encoding/binary"

	"github.com/apm32sdk/usbotg/host"
	"github.com/apm32sdk/usbotg/pkg"
)

// maxTransferPackets is the packet limit of one channel transfer.
const maxTransferPackets = 256

// CommandBlockWrapper is the command sent on the bulk OUT endpoint.
type CommandBlockWrapper struct {
	Tag                uint32
	DataTransferLength uint32
	Flags              uint8
	LUN                uint8
	CBLength           uint8
	CB                 [16]byte
}

// MarshalTo writes the wrapper to buf.
// Returns the number of bytes written, or 0 if buf is too small.
func (cbw *CommandBlockWrapper) MarshalTo(buf []byte) int {
	if len(buf) < CBWSize {
		return 0
	}
	binary.LittleEndian.PutUint32(buf[0:4], CBWSignature)
	binary.LittleEndian.PutUint32(buf[4:8], cbw.Tag)
	binary.LittleEndian.PutUint32(buf[8:12], cbw.DataTransferLength)
	buf[12] = cbw.Flags
	buf[13] = cbw.LUN & 0x0F
	buf[14] = cbw.CBLength & 0x1F
	copy(buf[15:31], cbw.CB[:])
	return CBWSize
}

// IsDataIn reports whether the data stage runs device to host.
func (cbw *CommandBlockWrapper) IsDataIn() bool {
	return cbw.Flags&CBWFlagDataIn != 0
}

// CommandStatusWrapper is the status returned on the bulk IN endpoint.
type CommandStatusWrapper struct {
	Signature   uint32
	Tag         uint32
	DataResidue uint32
	Status      uint8
}

// ParseCSW parses a status wrapper. It returns false if data is not
// exactly CSWSize bytes.
func ParseCSW(data []byte, out *CommandStatusWrapper) bool {
	if len(data) != CSWSize {
		return false
	}
	out.Signature = binary.LittleEndian.Uint32(data[0:4])
	out.Tag = binary.LittleEndian.Uint32(data[4:8])
	out.DataResidue = binary.LittleEndian.Uint32(data[8:12])
	out.Status = data[12]
	return true
}

// transport is the Bulk-Only Transport of one interface: the channel pair
// and the command in flight.
type transport struct {
	outEP, inEP   uint8
	outMPS, inMPS uint16
	outCh, inCh   int

	state      botState
	next       botState // state after a cleared stall
	clear      uint8    // endpoint whose halt is being cleared
	cswRetried bool

	tag    uint32
	cbw    CommandBlockWrapper
	cbwBuf [CBWSize]byte
	cswBuf [CSWSize]byte
	csw    CommandStatusWrapper
	data   []byte
	done   int
	chunk  int
}

// start loads a command. The transfer begins on the next step.
func (t *transport) start(cdb []byte, length int, in bool, data []byte) {
	t.tag++
	t.cbw = CommandBlockWrapper{
		Tag:                t.tag,
		DataTransferLength: uint32(length),
		CBLength:           uint8(len(cdb)),
	}
	if in {
		t.cbw.Flags = CBWFlagDataIn
	}
	copy(t.cbw.CB[:], cdb)
	t.cbw.MarshalTo(t.cbwBuf[:])
	t.data = data[:min(len(data), length)]
	t.done = 0
	t.cswRetried = false
	t.state = botSendCBW
}

// step advances the command by one transport state.
func (t *transport) step(h *host.Host) Status {
	switch t.state {
	case botSendCBW:
		h.BulkOut(t.outCh, t.cbwBuf[:])
		t.state = botSendCBWWait

	case botSendCBWWait:
		switch h.URBStatus(t.outCh) {
		case host.URBOK:
			switch {
			case t.cbw.DataTransferLength == 0:
				t.state = botReceiveCSW
			case t.cbw.IsDataIn():
				t.state = botDataIn
			default:
				t.state = botDataOut
			}
		case host.URBNotReady:
			t.state = botSendCBW
		case host.URBStall:
			// the device wants a reset recovery
			pkg.LogWarn(pkg.ComponentClass, "CBW stalled", "tag", t.tag)
			return StatusPhaseError
		case host.URBError:
			return StatusFail
		}

	case botDataIn:
		t.chunk = min(len(t.data)-t.done, int(t.inMPS)*maxTransferPackets)
		h.BulkIn(t.inCh, t.data[t.done:t.done+t.chunk])
		t.state = botDataInWait

	case botDataInWait:
		switch h.URBStatus(t.inCh) {
		case host.URBOK:
			n := h.TransferredBytes(t.inCh)
			t.done += n
			if n < t.chunk || t.done >= len(t.data) {
				t.state = botReceiveCSW
			} else {
				t.state = botDataIn
			}
		case host.URBNotReady:
			t.state = botDataIn
		case host.URBStall:
			t.clearStall(t.inEP, botReceiveCSW)
		case host.URBError:
			return StatusFail
		}

	case botDataOut:
		t.chunk = min(len(t.data)-t.done, int(t.outMPS)*maxTransferPackets)
		h.BulkOut(t.outCh, t.data[t.done:t.done+t.chunk])
		t.state = botDataOutWait

	case botDataOutWait:
		switch h.URBStatus(t.outCh) {
		case host.URBOK:
			t.done += t.chunk
			if t.done >= len(t.data) {
				t.state = botReceiveCSW
			} else {
				t.state = botDataOut
			}
		case host.URBNotReady:
			t.state = botDataOut
		case host.URBStall:
			t.clearStall(t.outEP, botReceiveCSW)
		case host.URBError:
			return StatusFail
		}

	case botReceiveCSW:
		h.BulkIn(t.inCh, t.cswBuf[:])
		t.state = botReceiveCSWWait

	case botReceiveCSWWait:
		switch h.URBStatus(t.inCh) {
		case host.URBOK:
			t.state = botSendCBW
			return t.checkCSW(h.TransferredBytes(t.inCh))
		case host.URBNotReady:
			t.state = botReceiveCSW
		case host.URBStall:
			if t.cswRetried {
				t.state = botSendCBW
				return StatusPhaseError
			}
			t.cswRetried = true
			t.clearStall(t.inEP, botReceiveCSW)
		case host.URBError:
			t.state = botSendCBW
			return StatusFail
		}

	case botClearStall:
		switch h.ControlRequest(host.ClearEndpointHaltRequest(t.clear), nil) {
		case host.CtrlComplete:
			ch := t.inCh
			if t.clear == t.outEP {
				ch = t.outCh
			}
			h.SetToggle(ch, 0)
			t.state = t.next
		case host.CtrlStall, host.CtrlError:
			t.state = botSendCBW
			return StatusPhaseError
		}
	}
	return StatusBusy
}

func (t *transport) clearStall(ep uint8, next botState) {
	pkg.LogDebug(pkg.ComponentClass, "clear halt", "endpoint", ep, "tag", t.tag)
	t.clear = ep
	t.next = next
	t.state = botClearStall
}

// checkCSW validates the status wrapper of n bytes against the command.
func (t *transport) checkCSW(n int) Status {
	if !ParseCSW(t.cswBuf[:min(n, CSWSize)], &t.csw) ||
		t.csw.Signature != CSWSignature || t.csw.Tag != t.tag {
		pkg.LogWarn(pkg.ComponentClass, "invalid CSW", "tag", t.tag, "bytes", n)
		return StatusPhaseError
	}
	switch t.csw.Status {
	case CSWStatusGood:
		return StatusOK
	case CSWStatusFailed:
		return StatusFail
	default:
		return StatusPhaseError
	}
}

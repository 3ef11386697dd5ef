package host

import (
	"github.com/apm32sdk/usbotg/otg"
	"github.com/apm32sdk/usbotg/pkg"
)

// channelState tracks the halt sequence of one channel.
type channelState uint8

const (
	channelIdle    channelState = iota // never enabled since open or free
	channelActive                      // transfer programmed
	channelHalting                     // halt requested, waiting for TSFCMPAN
	channelHalted                      // halt acknowledged
)

// Pipe is the bookkeeping of one host channel. The interrupt handler
// writes URB, State and the buffer cursors; the foreground reads them.
type Pipe struct {
	Used          bool
	EndpointAddr  uint8
	EndpointType  uint8
	MaxPacketSize uint16
	Ping          bool // high-speed OUT ping protocol

	URB     URBStatus
	State   PipeState
	Toggle  uint8 // next data toggle, 0 or 1
	DataPID uint8 // PID of the transfer in flight

	buf     []byte // IN destination or OUT source
	pending []byte // OUT bytes not yet written to the FIFO
	count   int    // bytes moved through the FIFO

	state   channelState
	flushes int // request queue flushes issued by halts
}

// In reports whether the pipe carries device-to-host traffic.
func (p *Pipe) In() bool {
	return p.EndpointAddr&EndpointDirectionIn != 0
}

// Count returns the bytes transferred by the current transfer.
func (p *Pipe) Count() int {
	return p.count
}

// Flushes returns the number of request queue flushes issued by halts.
func (p *Pipe) Flushes() int {
	return p.flushes
}

// AllocChannel binds the first free channel to endpoint epAddr. It returns
// NoChannel when every channel is in use.
func (h *Host) AllocChannel(epAddr uint8) int {
	for ch := range h.pipes {
		if !h.pipes[ch].Used {
			h.pipes[ch].Used = true
			h.pipes[ch].EndpointAddr = epAddr
			pkg.LogDebug(pkg.ComponentChannel, "alloc", "ch", ch, "ep", epAddr)
			return ch
		}
	}
	pkg.LogWarn(pkg.ComponentChannel, "no free channel", "ep", epAddr)
	return NoChannel
}

// FreeChannel returns channel ch to the pool with its bookkeeping reset.
func (h *Host) FreeChannel(ch int) {
	if !validChannel(ch) {
		return
	}
	h.pipes[ch] = Pipe{}
}

// FreeAllChannels returns every channel to the pool.
func (h *Host) FreeAllChannels() {
	for ch := range h.pipes {
		h.FreeChannel(ch)
	}
}

// ChannelForEndpoint returns the channel bound to epAddr, or NoChannel.
func (h *Host) ChannelForEndpoint(epAddr uint8) int {
	for ch := range h.pipes {
		if h.pipes[ch].Used && h.pipes[ch].EndpointAddr == epAddr {
			return ch
		}
	}
	return NoChannel
}

// Pipe returns the bookkeeping of channel ch, or nil for an invalid number.
func (h *Host) Pipe(ch int) *Pipe {
	if !validChannel(ch) {
		return nil
	}
	return &h.pipes[ch]
}

func validChannel(ch int) bool {
	return ch >= 0 && ch < otg.HostChannels
}

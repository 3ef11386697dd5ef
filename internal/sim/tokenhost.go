package sim

import (
	"github.com/pkg/errors"

	"github.com/apm32sdk/usbotg/device"
	"github.com/apm32sdk/usbotg/otg"
	"github.com/apm32sdk/usbotg/pkg"
)

// NAKRetries bounds the tokens a TokenHost sends while an endpoint NAKs.
const NAKRetries = 16

// TokenHost plays the host for a device-mode core one token at a time. It is
// meant for class tests that want to see every packet; Bus runs a real
// host session instead.
type TokenHost struct {
	core *otg.Core
	dev  *device.Device
	addr uint8
	mps0 int
}

// NewTokenHost wraps a device-mode core and the session running on it.
func NewTokenHost(core *otg.Core, dev *device.Device) *TokenHost {
	return &TokenHost{core: core, dev: dev, mps0: device.Ep0MaxPacketSize}
}

// Core returns the device-mode core.
func (p *TokenHost) Core() *otg.Core { return p.core }

// Device returns the device session.
func (p *TokenHost) Device() *device.Device { return p.dev }

// Address returns the address the token host sends tokens to.
func (p *TokenHost) Address() uint8 { return p.addr }

// Service runs one frame of the core and then the device interrupt until
// the core is quiet.
func (p *TokenHost) Service() {
	p.core.Step()
	for i := 0; i < quiesceLimit && p.core.Pending(); i++ {
		p.dev.HandleInterrupt()
	}
}

// Reset signals a full-speed bus reset. The device answers on address 0
// afterwards.
func (p *TokenHost) Reset() {
	p.core.BusReset(otg.SpeedFull)
	p.Service()
	p.addr = 0
}

// In sends IN tokens to ep until the endpoint stops NAKing.
func (p *TokenHost) In(ep uint8) ([]byte, otg.Handshake) {
	for i := 0; i < NAKRetries; i++ {
		data, hs := p.core.In(p.addr, ep, otg.PidData1, p.mps0)
		p.Service()
		if hs != otg.HandshakeNAK {
			return data, hs
		}
	}
	return nil, otg.HandshakeNAK
}

// Out sends one OUT packet to ep until the endpoint stops NAKing.
func (p *TokenHost) Out(ep uint8, data []byte) otg.Handshake {
	for i := 0; i < NAKRetries; i++ {
		hs := p.core.Out(p.addr, ep, otg.PidData1, data)
		p.Service()
		if hs != otg.HandshakeNAK {
			return hs
		}
	}
	return otg.HandshakeNAK
}

// Read collects IN packets from ep until a short packet or n bytes.
func (p *TokenHost) Read(ep uint8, n, mps int) ([]byte, otg.Handshake) {
	var out []byte
	for {
		pkt, hs := p.In(ep)
		if hs != otg.HandshakeACK {
			return out, hs
		}
		out = append(out, pkt...)
		if len(pkt) < mps || len(out) >= n {
			return out, hs
		}
	}
}

// Write sends data to ep in packets of mps bytes. An empty data sends a
// zero-length packet.
func (p *TokenHost) Write(ep uint8, data []byte, mps int) otg.Handshake {
	if len(data) == 0 {
		return p.Out(ep, nil)
	}
	for off := 0; off < len(data); off += mps {
		if hs := p.Out(ep, data[off:min(off+mps, len(data))]); hs != otg.HandshakeACK {
			return hs
		}
	}
	return otg.HandshakeACK
}

// ControlResult is the outcome of one control transfer.
type ControlResult struct {
	Data      []byte
	Handshake otg.Handshake
}

// Err maps a failed handshake to an error.
func (r ControlResult) Err() error {
	switch r.Handshake {
	case otg.HandshakeACK:
		return nil
	case otg.HandshakeSTALL:
		return pkg.ErrStall
	case otg.HandshakeNAK:
		return pkg.ErrNAK
	default:
		return errors.Wrapf(pkg.ErrTransaction, "handshake %s", r.Handshake)
	}
}

// Control runs one control transfer: SETUP, data stage and status stage.
// The result handshake is that of the last stage reached.
func (p *TokenHost) Control(req device.SetupPacket, data []byte) ControlResult {
	var r ControlResult
	if r.Handshake = p.core.Setup(p.addr, req.Bytes()); r.Handshake != otg.HandshakeACK {
		return r
	}
	p.Service()
	if req.In() {
		if req.Length > 0 {
			if r.Data, r.Handshake = p.Read(0, int(req.Length), p.mps0); r.Handshake != otg.HandshakeACK {
				return r
			}
		}
		r.Handshake = p.Out(0, nil)
		return r
	}
	if len(data) > 0 {
		if r.Handshake = p.Write(0, data, p.mps0); r.Handshake != otg.HandshakeACK {
			return r
		}
	}
	_, r.Handshake = p.In(0)
	return r
}

// Enumerate resets the device, assigns addr and selects configuration 1.
func (p *TokenHost) Enumerate(addr uint8) error {
	p.Reset()
	set := device.SetupPacket{
		RequestType: device.RequestTypeStandard | device.RecipientDevice,
		Request:     device.RequestSetAddress,
		Value:       uint16(addr),
	}
	if err := p.Control(set, nil).Err(); err != nil {
		return errors.Wrap(err, "set address")
	}
	p.addr = addr
	set.Request = device.RequestSetConfiguration
	set.Value = 1
	if err := p.Control(set, nil).Err(); err != nil {
		return errors.Wrap(err, "set configuration")
	}
	return nil
}

// ClearHalt sends CLEAR_FEATURE(ENDPOINT_HALT) for the endpoint at addr.
func (p *TokenHost) ClearHalt(addr uint8) error {
	req := device.SetupPacket{
		RequestType: device.RequestTypeStandard | device.RecipientEndpoint,
		Request:     device.RequestClearFeature,
		Value:       device.FeatureEndpointHalt,
		Index:       uint16(addr),
	}
	return errors.Wrapf(p.Control(req, nil).Err(), "clear halt %#02x", addr)
}

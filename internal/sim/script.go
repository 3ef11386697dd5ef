package sim

import (
	"github.com/apm32sdk/usbotg/host"
	"github.com/apm32sdk/usbotg/pkg"
)

// Exchange is one control request of a Script. Data is sent by an OUT
// request and filled by an IN request. Result holds the outcome once the
// exchange finished.
type Exchange struct {
	Request host.Request
	Data    []byte
	Result  host.CtrlState
}

// Script is a host class that runs a fixed list of control requests as
// its class requests and then idles. With no exchanges it binds to any
// device, which is all a descriptor dump needs.
type Script struct {
	Exchanges []Exchange

	next    int
	inits   int
	deinits int
}

// NewScript returns a script running reqs in order.
func NewScript(reqs ...Exchange) *Script {
	return &Script{Exchanges: reqs}
}

// Init restarts the script.
func (s *Script) Init(*host.Host) error {
	s.inits++
	s.next = 0
	for i := range s.Exchanges {
		s.Exchanges[i].Result = host.CtrlSetup
	}
	return nil
}

// DeInit counts the teardown.
func (s *Script) DeInit(*host.Host) { s.deinits++ }

// Request advances the current exchange. A stalled or failed exchange is
// recorded and the script moves on.
func (s *Script) Request(h *host.Host) (bool, error) {
	if s.next >= len(s.Exchanges) {
		return true, nil
	}
	e := &s.Exchanges[s.next]
	if st := h.ControlRequest(e.Request, e.Data); st.Done() {
		e.Result = st
		pkg.LogDebug(pkg.ComponentSim, "exchange done", "request", e.Request.Request, "result", st)
		s.next++
	}
	return s.next >= len(s.Exchanges), nil
}

// Process does nothing.
func (s *Script) Process(*host.Host) error { return nil }

// Done reports whether every exchange finished.
func (s *Script) Done() bool { return s.next >= len(s.Exchanges) }

// Inits returns how often the session started the script.
func (s *Script) Inits() int { return s.inits }

// DeInits returns how often the session tore the script down.
func (s *Script) DeInits() int { return s.deinits }

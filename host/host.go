package host

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/apm32sdk/usbotg/host/hal"
	"github.com/apm32sdk/usbotg/otg"
	"github.com/apm32sdk/usbotg/pkg"
	"github.com/apm32sdk/usbotg/pkg/reg"
)

// Class is a host class driver. The session calls Init once the user
// accepted the device, Request until it reports done, then Process on
// every poll. An error wrapping pkg.ErrNotSupported or pkg.ErrUnrecovered
// ends the session until the device is re-attached.
type Class interface {
	Init(h *Host) error
	DeInit(h *Host)
	Request(h *Host) (done bool, err error)
	Process(h *Host) error
}

// Callbacks receives the events of the host session.
type Callbacks interface {
	Init()
	DeInit()
	DeviceAttached()
	DeviceDetached()
	ResetDevice()
	SpeedDetected(speed otg.Speed)
	DeviceDescriptor(desc *DeviceDescriptor)
	ConfigurationDescriptor(cfg *ConfigurationDescriptor, itfs []Interface)
	Manufacturer(s string)
	Product(s string)
	SerialNumber(s string)
	EnumerationDone()
	// UserInput reports whether the class may start.
	UserInput() bool
	NotSupported()
	Unrecovered()
	// Application is called by class drivers once the device is ready.
	Application()
}

// NopCallbacks implements Callbacks with no-ops. UserInput accepts every
// device. Embed it to override selected events.
type NopCallbacks struct{}

func (NopCallbacks) Init()                                                         {}
func (NopCallbacks) DeInit()                                                       {}
func (NopCallbacks) DeviceAttached()                                               {}
func (NopCallbacks) DeviceDetached()                                               {}
func (NopCallbacks) ResetDevice()                                                  {}
func (NopCallbacks) SpeedDetected(otg.Speed)                                       {}
func (NopCallbacks) DeviceDescriptor(*DeviceDescriptor)                            {}
func (NopCallbacks) ConfigurationDescriptor(*ConfigurationDescriptor, []Interface) {}
func (NopCallbacks) Manufacturer(string)                                           {}
func (NopCallbacks) Product(string)                                                {}
func (NopCallbacks) SerialNumber(string)                                           {}
func (NopCallbacks) EnumerationDone()                                              {}
func (NopCallbacks) UserInput() bool                                               { return true }
func (NopCallbacks) NotSupported()                                                 {}
func (NopCallbacks) Unrecovered()                                                  {}
func (NopCallbacks) Application()                                                  {}

// Descriptors holds what enumeration learned about the attached device.
type Descriptors struct {
	Device        DeviceDescriptor
	Configuration ConfigurationDescriptor
	Interfaces    [MaxInterfaces]Interface
	NumInterfaces int

	Manufacturer string
	Product      string
	SerialNumber string

	devBuf [DeviceDescriptorSize]byte
	cfgBuf [ConfigBufferSize]byte
	strBuf [StringBufferSize]byte
}

// Interface returns parsed interface i, or nil.
func (d *Descriptors) Interface(i int) *Interface {
	if i < 0 || i >= d.NumInterfaces {
		return nil
	}
	return &d.Interfaces[i]
}

// Host is one host session on an OTG core. It is driven by two contexts:
// HandleInterrupt, called from the core's interrupt, and Poll, called from
// the foreground loop. Neither may run concurrently with the other.
type Host struct {
	hw    hal.Controller
	regs  *otg.Registers
	class Class
	cb    Callbacks
	opts  options

	state       State
	prevState   State
	connected   bool
	portEnabled bool
	errHandled  bool
	speed       otg.Speed
	address     uint8

	pipes [otg.HostChannels]Pipe
	ctrl  Control
	xfer  XferState
	enum  EnumState
	desc  Descriptors
}

// New initialises the core as a host and returns the session in the idle
// state. cb may be nil.
func New(hw hal.Controller, class Class, cb Callbacks, opts ...Option) *Host {
	if cb == nil {
		cb = NopCallbacks{}
	}
	h := &Host{
		hw:    hw,
		regs:  hw.Registers(),
		class: class,
		cb:    cb,
		opts:  defaultOptions(),
	}
	for _, opt := range opts {
		opt(&h.opts)
	}
	h.resetSession()

	h.cb.Init()
	h.disableGlobalInterrupt()
	h.globalInit()
	h.hostInit()
	h.enableGlobalInterrupt()
	pkg.LogInfo(pkg.ComponentHost, "host initialised")
	return h
}

// resetSession returns the session bookkeeping to its power-on values.
func (h *Host) resetSession() {
	h.state = StateIdle
	h.address = DefaultAddress
	h.ctrl.reset()
	h.ctrl.MaxPacketSize = DefaultMaxPacketSize0
	h.enum = EnumIdle
	h.xfer = XferStart
	h.errHandled = false
}

// State returns the session state.
func (h *Host) State() State { return h.state }

// PreviousState returns the state the session left for suspend.
func (h *Host) PreviousState() State { return h.prevState }

// EnumState returns the enumeration step.
func (h *Host) EnumState() EnumState { return h.enum }

// Address returns the device address.
func (h *Host) Address() uint8 { return h.address }

// Speed returns the speed detected at attach.
func (h *Host) Speed() otg.Speed { return h.speed }

// Connected reports whether a device is connected.
func (h *Host) Connected() bool { return h.connected }

// PortEnabled reports whether the root port is enabled.
func (h *Host) PortEnabled() bool { return h.portEnabled }

// Descriptors returns what enumeration learned about the device.
func (h *Host) Descriptors() *Descriptors { return &h.desc }

// Control returns the control pipe state.
func (h *Host) Control() *Control { return &h.ctrl }

// Callbacks returns the session callbacks.
func (h *Host) Callbacks() Callbacks { return h.cb }

// Controller returns the core the session drives.
func (h *Host) Controller() hal.Controller { return h.hw }

// Delay busy-waits for d.
func (h *Host) Delay(d time.Duration) { h.hw.Delay(d) }

// FrameNumber returns the frame number of the root port.
func (h *Host) FrameNumber() uint16 {
	return uint16(reg.Get(&h.regs.H.HFIFM, otg.HfifmFNUM))
}

func (h *Host) setState(s State) {
	if s == h.state {
		return
	}
	pkg.LogDebug(pkg.ComponentHost, "state", "from", h.state, "to", s)
	h.state = s
}

// Poll runs one step of the session machine. It returns ctx.Err() once ctx
// is done and the class error that moved the session to StateError.
func (h *Host) Poll(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !h.connected && h.state != StateIdle && h.state != StateDeviceDetached {
		h.setState(StateDeviceDetached)
	}

	switch h.state {
	case StateIdle:
		if h.connected {
			h.setState(StateDeviceAttached)
			h.cb.DeviceAttached()
			h.hw.Delay(100 * time.Millisecond)
		}
	case StateDeviceAttached:
		return h.attach()
	case StateDeviceDetached:
		h.detach()
	case StateEnum:
		if h.enumerate() {
			h.setState(StateUserInput)
		}
	case StateUserInput:
		if h.cb.UserInput() {
			if err := h.class.Init(h); err != nil {
				return h.errorManage(err)
			}
			h.setState(StateClassRequest)
		}
	case StateClassRequest:
		done, err := h.class.Request(h)
		if err != nil {
			return h.errorManage(err)
		}
		if done {
			h.setState(StateClass)
		}
	case StateClass:
		if err := h.class.Process(h); err != nil {
			return h.errorManage(err)
		}
	case StateSuspend:
		if h.opts.suspend != nil {
			h.opts.suspend(h)
		}
	case StateWakeup:
		h.resume()
	case StateError:
		if !h.errHandled {
			h.deInit()
			h.errHandled = true
		}
	}
	return nil
}

// Run polls the session until ctx is done. step runs after every poll; a
// simulation advances the bus there. Run gives up with pkg.ErrTimeout
// after the budget set by WithMaxPollSteps.
func (h *Host) Run(ctx context.Context, step func()) error {
	for n := 0; h.opts.maxPollSteps == 0 || n < h.opts.maxPollSteps; n++ {
		if err := h.Poll(ctx); err != nil {
			return err
		}
		if step != nil {
			step()
		}
	}
	return errors.Wrapf(pkg.ErrTimeout, "host session after %d polls", h.opts.maxPollSteps)
}

// attach claims the control channels, resets the port and starts
// enumeration.
func (h *Host) attach() error {
	out := h.AllocChannel(EndpointDirectionOut)
	in := h.AllocChannel(EndpointDirectionIn)
	if out == NoChannel || in == NoChannel {
		h.FreeChannel(out)
		h.FreeChannel(in)
		h.setState(StateError)
		return errors.Wrap(pkg.ErrNoChannel, "control pipe")
	}
	h.ctrl.OutChannel = out
	h.ctrl.InChannel = in

	h.PortReset()
	h.cb.ResetDevice()
	h.speed = h.PortSpeed()
	h.cb.SpeedDetected(h.speed)
	pkg.LogDebug(pkg.ComponentHost, "attached", "speed", h.speed)

	if err := h.openControlChannels(); err != nil {
		return err
	}
	h.enum = EnumIdle
	h.xfer = XferStart
	h.setState(StateEnum)
	return nil
}

// openControlChannels programs both control channels for the current
// address and EP0 packet size.
func (h *Host) openControlChannels() error {
	mps := h.ctrl.MaxPacketSize
	if err := h.OpenChannel(h.ctrl.OutChannel, h.address, EndpointTypeControl, mps); err != nil {
		return err
	}
	return h.OpenChannel(h.ctrl.InChannel, h.address, EndpointTypeControl, mps)
}

// detach tears the session down and re-initialises the core for the
// next attach.
func (h *Host) detach() {
	h.cb.DeviceDetached()
	h.regs.G.GINTMASK = 0
	h.regs.G.GCINT = 0
	h.FreeAllChannels()
	h.stopHost()
	h.deInit()
	h.resetSession()
	h.portEnabled = false

	h.disableGlobalInterrupt()
	h.globalInit()
	h.hostInit()
	h.enableGlobalInterrupt()
	pkg.LogInfo(pkg.ComponentHost, "device detached")
}

// deInit drops the device state and releases the control channels.
func (h *Host) deInit() {
	h.FreeChannel(h.ctrl.OutChannel)
	h.FreeChannel(h.ctrl.InChannel)
	h.address = DefaultAddress
	h.ctrl.reset()
	h.ctrl.MaxPacketSize = DefaultMaxPacketSize0
	h.enum = EnumIdle
	h.xfer = XferStart
	h.class.DeInit(h)
	h.cb.DeInit()
}

// errorManage reports a class error to the user and parks the session in
// StateError until the device is detached.
func (h *Host) errorManage(err error) error {
	switch {
	case errors.Is(err, pkg.ErrNotSupported):
		h.cb.NotSupported()
	case errors.Is(err, pkg.ErrUnrecovered):
		h.cb.Unrecovered()
	}
	pkg.LogError(pkg.ComponentHost, "class error", "state", h.state, "error", err)
	h.setState(StateError)
	return err
}

// Suspend puts the bus into suspend. The session stays in StateSuspend
// until Wakeup.
func (h *Host) Suspend() {
	if h.state == StateSuspend {
		return
	}
	h.prevState = h.state
	reg.SetMask(&h.regs.H.HPORTCSTS, otg.PortPSUS)
	h.setState(StateSuspend)
}

// Wakeup schedules resume signalling on the next poll.
func (h *Host) Wakeup() {
	if h.state == StateSuspend {
		h.setState(StateWakeup)
	}
}

// resume drives resume signalling and returns to the state the session
// was suspended in.
func (h *Host) resume() {
	p := &h.regs.H.HPORTCSTS
	reg.SetMask(p, otg.PortPRS)
	h.hw.Delay(20 * time.Millisecond)
	reg.ClearMask(p, otg.PortPRS|otg.PortPSUS)
	if h.opts.wakeup != nil {
		h.opts.wakeup(h)
	}
	h.setState(h.prevState)
}

package sim

import (
	"context"

	"github.com/pkg/errors"

	"github.com/apm32sdk/usbotg/device"
	"github.com/apm32sdk/usbotg/host"
	"github.com/apm32sdk/usbotg/otg"
	"github.com/apm32sdk/usbotg/pkg"
)

// quiesceLimit bounds the interrupt calls that service one core per step.
const quiesceLimit = 64

// DefaultMaxSteps is the step budget of RunUntil unless set.
const DefaultMaxSteps = 200000

type options struct {
	maxSteps    int
	speed       otg.Speed
	hostOpts    []host.Option
	deviceOpts  []device.Option
	coreOpts    []otg.Option
	trace       *Trace
	noAutoStart bool
}

// Option configures a Bus.
type Option func(*options)

// WithMaxSteps sets the step budget of RunUntil.
func WithMaxSteps(n int) Option {
	return func(o *options) { o.maxSteps = n }
}

// WithSpeed sets the speed the device attaches at.
func WithSpeed(s otg.Speed) Option {
	return func(o *options) { o.speed = s }
}

// WithHostOptions passes options to the host session.
func WithHostOptions(opts ...host.Option) Option {
	return func(o *options) { o.hostOpts = append(o.hostOpts, opts...) }
}

// WithDeviceOptions passes options to the device session.
func WithDeviceOptions(opts ...device.Option) Option {
	return func(o *options) { o.deviceOpts = append(o.deviceOpts, opts...) }
}

// WithCoreOptions passes options to both cores. The mode is always set by
// the bus.
func WithCoreOptions(opts ...otg.Option) Option {
	return func(o *options) { o.coreOpts = append(o.coreOpts, opts...) }
}

// WithTrace records the transactions of the host port into t.
func WithTrace(t *Trace) Option {
	return func(o *options) { o.trace = t }
}

// WithDetached builds the bus with the device unplugged. Attach plugs it
// in.
func WithDetached() Option {
	return func(o *options) { o.noAutoStart = true }
}

// Bus connects a host session and a device session through two cores, one
// in each mode, with the device core plugged into the host port.
type Bus struct {
	opts options

	hostCore *otg.Core
	devCore  *otg.Core
	host     *host.Host
	dev      *device.Device
	trace    *Trace
	steps    int
}

// New builds both sessions. The host runs hc with callbacks hcb; the device
// serves desc and runs dc with callbacks dcb.
func New(hc host.Class, hcb host.Callbacks, desc *device.Descriptors, dc device.Class, dcb device.Callbacks, opts ...Option) *Bus {
	o := options{maxSteps: DefaultMaxSteps, speed: otg.SpeedFull}
	for _, opt := range opts {
		opt(&o)
	}
	b := &Bus{opts: o, trace: o.trace}
	if b.trace == nil {
		b.trace = &Trace{}
	}

	hostOpts := append([]otg.Option{}, o.coreOpts...)
	hostOpts = append(hostOpts, otg.WithMode(otg.ModeHost), otg.WithTracer(b.trace.Record))
	devOpts := append([]otg.Option{}, o.coreOpts...)
	devOpts = append(devOpts, otg.WithMode(otg.ModeDevice))

	b.hostCore = otg.New(hostOpts...)
	b.devCore = otg.New(devOpts...)
	b.host = host.New(b.hostCore, hc, hcb, o.hostOpts...)
	b.dev = device.New(b.devCore, desc, dc, dcb, o.deviceOpts...)
	if !o.noAutoStart {
		b.Attach()
	}
	pkg.LogDebug(pkg.ComponentSim, "bus ready", "speed", o.speed)
	return b
}

// Host returns the host session.
func (b *Bus) Host() *host.Host { return b.host }

// Device returns the device session.
func (b *Bus) Device() *device.Device { return b.dev }

// HostCore returns the host-mode core.
func (b *Bus) HostCore() *otg.Core { return b.hostCore }

// DeviceCore returns the device-mode core.
func (b *Bus) DeviceCore() *otg.Core { return b.devCore }

// Trace returns the transaction record of the host port.
func (b *Bus) Trace() *Trace { return b.trace }

// Steps returns the number of steps run so far.
func (b *Bus) Steps() int { return b.steps }

// Attach plugs the device into the host port.
func (b *Bus) Attach() {
	b.hostCore.Attach(b.devCore, b.opts.speed)
	b.quiesce()
	pkg.LogDebug(pkg.ComponentSim, "device attached")
}

// Detach unplugs the device.
func (b *Bus) Detach() {
	b.hostCore.Detach()
	b.quiesce()
	pkg.LogDebug(pkg.ComponentSim, "device detached")
}

// quiesce runs both interrupt handlers until neither core asserts its
// line.
func (b *Bus) quiesce() {
	for i := 0; i < quiesceLimit; i++ {
		hp, dp := b.hostCore.Pending(), b.devCore.Pending()
		if !hp && !dp {
			return
		}
		if hp {
			b.host.HandleInterrupt()
		}
		if dp {
			b.dev.HandleInterrupt()
		}
	}
}

// Step polls the host session once and advances both cores by one frame.
func (b *Bus) Step(ctx context.Context) error {
	b.steps++
	if err := b.host.Poll(ctx); err != nil {
		return err
	}
	b.quiesce()
	b.devCore.Step()
	b.quiesce()
	b.hostCore.Step()
	b.quiesce()
	return nil
}

// Advance runs the cores and interrupts for one frame without polling the
// host session. It is the step function for host.Run.
func (b *Bus) Advance() {
	b.steps++
	b.quiesce()
	b.devCore.Step()
	b.quiesce()
	b.hostCore.Step()
	b.quiesce()
}

// RunUntil steps the bus until cond holds. It fails with pkg.ErrTimeout
// once the step budget is spent.
func (b *Bus) RunUntil(ctx context.Context, cond func() bool) error {
	for i := 0; i < b.opts.maxSteps; i++ {
		if cond() {
			return nil
		}
		if err := b.Step(ctx); err != nil {
			return err
		}
	}
	if cond() {
		return nil
	}
	return errors.Wrapf(pkg.ErrTimeout, "bus after %d steps", b.opts.maxSteps)
}

// Run steps the bus n times.
func (b *Bus) Run(ctx context.Context, n int) error {
	for i := 0; i < n; i++ {
		if err := b.Step(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Ready reports whether the host session has reached its class stage.
func (b *Bus) Ready() bool {
	return b.host.State() == host.StateClass
}

// Enumerate runs the bus until the host session reaches its class stage.
func (b *Bus) Enumerate(ctx context.Context) error {
	return errors.Wrap(b.RunUntil(ctx, b.Ready), "enumerate")
}

package host

// options holds the host session configuration.
type options struct {
	// maxPollSteps bounds Run; zero means no bound
	maxPollSteps int

	sofOutput bool

	suspend func(*Host)
	wakeup  func(*Host)
	intHook func(*Host)
}

func defaultOptions() options {
	return options{}
}

// Option is a functional option for configuring a Host.
type Option func(*options)

// WithMaxPollSteps bounds the number of polls Run performs before it gives
// up with pkg.ErrTimeout. Zero disables the bound.
//
// Example:
//
//	h := host.New(core, class, cb, host.WithMaxPollSteps(20000))
//	err := h.Run(ctx, bus.Step)
func WithMaxPollSteps(n int) Option {
	return func(o *options) {
		o.maxPollSteps = n
	}
}

// WithSOFOutput routes the start-of-frame pulse to the SOF pin.
func WithSOFOutput() Option {
	return func(o *options) {
		o.sofOutput = true
	}
}

// WithSuspendHandler sets the function polled while the host is suspended.
func WithSuspendHandler(fn func(*Host)) Option {
	return func(o *options) {
		o.suspend = fn
	}
}

// WithWakeupHandler sets the function called once the bus has resumed.
func WithWakeupHandler(fn func(*Host)) Option {
	return func(o *options) {
		o.wakeup = fn
	}
}

// WithInterruptHandler sets a function called at the end of every
// interrupt, after the host sources have been serviced.
func WithInterruptHandler(fn func(*Host)) Option {
	return func(o *options) {
		o.intHook = fn
	}
}

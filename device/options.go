package device

// options holds the device session configuration.
type options struct {
	serial         string
	configurations int
	sofOutput      bool

	hooks   StandardHooks
	intHook func(*Device)
}

func defaultOptions() options {
	return options{configurations: 1}
}

// Option is a functional option for configuring a Device.
type Option func(*options)

// WithSerialNumber replaces the serial number string the device descriptor
// points at.
//
// Example:
//
//	d := device.New(core, desc, class, cb, device.WithSerialNumber("0001A0000000"))
func WithSerialNumber(s string) Option {
	return func(o *options) {
		o.serial = s
	}
}

// WithConfigurationCount sets the highest configuration value
// SET_CONFIGURATION accepts. The default is 1.
func WithConfigurationCount(n int) Option {
	return func(o *options) {
		o.configurations = n
	}
}

// WithSOFOutput routes the start-of-frame pulse to the SOF pin.
func WithSOFOutput() Option {
	return func(o *options) {
		o.sofOutput = true
	}
}

// WithStandardHooks sets the standard request hooks, overriding the ones
// the class implements.
func WithStandardHooks(h StandardHooks) Option {
	return func(o *options) {
		o.hooks = h
	}
}

// WithInterruptHandler sets a function called at the end of every
// interrupt, after the device sources have been serviced.
func WithInterruptHandler(fn func(*Device)) Option {
	return func(o *options) {
		o.intHook = fn
	}
}

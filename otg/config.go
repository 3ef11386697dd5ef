package otg

import "time"

// Mode is the operating mode of a core.
type Mode uint8

// Core operating modes.
const (
	ModeDevice Mode = iota
	ModeHost
)

// String returns the mode name.
func (m Mode) String() string {
	if m == ModeHost {
		return "host"
	}
	return "device"
}

// Speed is a bus speed as reported in HPORTCSTS.PSPDSEL.
type Speed uint8

// Bus speeds.
const (
	SpeedHigh Speed = PortSpeedHigh
	SpeedFull Speed = PortSpeedFull
	SpeedLow  Speed = PortSpeedLow
)

// String returns the speed name.
func (s Speed) String() string {
	switch s {
	case SpeedHigh:
		return "high"
	case SpeedFull:
		return "full"
	case SpeedLow:
		return "low"
	default:
		return "unknown"
	}
}

// Config holds the core configuration. FIFO depths are in 32-bit words and
// are the values the drivers program into the FIFO size registers.
type Config struct {
	// Mode is the mode reported when neither FHMODE nor FDMODE is forced.
	Mode Mode

	// Speed is the fastest speed the PHY supports.
	Speed Speed

	// Clock is the AHB clock in Hz. The device driver derives the
	// turnaround time from it.
	Clock uint32

	// FIFOWords is the size of the shared FIFO RAM.
	FIFOWords int

	RxFIFODepth            int
	NonPeriodicTxFIFODepth int
	PeriodicTxFIFODepth    int
	DeviceTxFIFODepths     [DeviceEndpoints]int

	// FrameDuration is the virtual time covered by one Step.
	FrameDuration time.Duration

	// Tracer receives every bus transaction the host side performs (optional).
	Tracer func(Transaction)
}

// defaultConfig returns the default configuration of the full-speed core.
func defaultConfig() Config {
	return Config{
		Mode:                   ModeDevice,
		Speed:                  SpeedFull,
		Clock:                  72000000,
		FIFOWords:              320, // 1.25 KB
		RxFIFODepth:            128,
		NonPeriodicTxFIFODepth: 96,
		PeriodicTxFIFODepth:    96,
		DeviceTxFIFODepths:     [DeviceEndpoints]int{32, 64, 32, 64},
		FrameDuration:          time.Millisecond,
	}
}

// Option is a functional option for configuring a Core.
type Option func(*Config)

// WithMode sets the mode the core reports when no mode is forced.
func WithMode(m Mode) Option {
	return func(c *Config) {
		c.Mode = m
	}
}

// WithSpeed sets the fastest speed of the PHY.
func WithSpeed(s Speed) Option {
	return func(c *Config) {
		c.Speed = s
	}
}

// WithClock sets the AHB clock frequency in Hz.
func WithClock(hz uint32) Option {
	return func(c *Config) {
		c.Clock = hz
	}
}

// WithFIFOWords sets the size of the FIFO RAM in words.
func WithFIFOWords(n int) Option {
	return func(c *Config) {
		c.FIFOWords = n
	}
}

// WithRxFIFODepth sets the receive FIFO depth in words.
func WithRxFIFODepth(n int) Option {
	return func(c *Config) {
		c.RxFIFODepth = n
	}
}

// WithNonPeriodicTxFIFODepth sets the host non-periodic transmit FIFO depth
// in words.
func WithNonPeriodicTxFIFODepth(n int) Option {
	return func(c *Config) {
		c.NonPeriodicTxFIFODepth = n
	}
}

// WithPeriodicTxFIFODepth sets the host periodic transmit FIFO depth in words.
func WithPeriodicTxFIFODepth(n int) Option {
	return func(c *Config) {
		c.PeriodicTxFIFODepth = n
	}
}

// WithDeviceTxFIFODepths sets the transmit FIFO depth of each device IN
// endpoint in words. Endpoints beyond the slice get no FIFO.
//
// Example:
//
//	core := otg.New(otg.WithDeviceTxFIFODepths(16, 64, 64))
func WithDeviceTxFIFODepths(depths ...int) Option {
	return func(c *Config) {
		c.DeviceTxFIFODepths = [DeviceEndpoints]int{}
		copy(c.DeviceTxFIFODepths[:], depths)
	}
}

// WithFrameDuration sets the virtual time covered by one Step.
func WithFrameDuration(d time.Duration) Option {
	return func(c *Config) {
		c.FrameDuration = d
	}
}

// WithTracer installs a callback receiving every host bus transaction.
func WithTracer(fn func(Transaction)) Option {
	return func(c *Config) {
		c.Tracer = fn
	}
}

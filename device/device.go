package device

import (
	"github.com/apm32sdk/usbotg/device/hal"
	"github.com/apm32sdk/usbotg/otg"
	"github.com/apm32sdk/usbotg/pkg"
	"github.com/apm32sdk/usbotg/pkg/reg"
)

// Class is a device class driver. Setup receives every class request on
// EP0 and must answer it with CtrlInData, CtrlOutData, CtrlTxStatus or a
// stall. InComplete and OutComplete report finished transfers on the
// other endpoints.
type Class interface {
	// Reset is called after a bus reset, once EP0 is open again.
	Reset(d *Device)
	Setup(d *Device, req SetupPacket)
	InComplete(d *Device, ep uint8)
	OutComplete(d *Device, ep uint8)
}

// VendorHandler is implemented by classes that accept vendor requests.
// Vendor requests of other classes stall.
type VendorHandler interface {
	Vendor(d *Device, req SetupPacket)
}

// StatusHandler is implemented by classes that need to know when a
// control status stage starts. TxStatus runs before the IN status stage,
// which follows the OUT data of a control write.
type StatusHandler interface {
	TxStatus(d *Device)
	RxStatus(d *Device)
}

// StandardHooks are called by the standard request engine once it has
// handled a request. GetDescriptor and SetDescriptor serve what the engine
// does not know and report whether they did; the request stalls
// otherwise. Exception is called for every rejected request.
//
// A class that implements StandardHooks gets them installed unless
// WithStandardHooks overrides them.
type StandardHooks interface {
	GetConfiguration(d *Device)
	GetDescriptor(d *Device, req SetupPacket) bool
	GetInterface(d *Device)
	GetStatus(d *Device)
	SetAddress(d *Device)
	SetConfiguration(d *Device)
	SetDescriptor(d *Device, req SetupPacket) bool
	SetFeature(d *Device)
	SetInterface(d *Device)
	ClearFeature(d *Device)
	Exception(d *Device, req SetupPacket)
}

// NopHooks implements StandardHooks with no-ops. Embed it to override
// selected hooks.
type NopHooks struct{}

func (NopHooks) GetConfiguration(*Device)                {}
func (NopHooks) GetDescriptor(*Device, SetupPacket) bool { return false }
func (NopHooks) GetInterface(*Device)                    {}
func (NopHooks) GetStatus(*Device)                       {}
func (NopHooks) SetAddress(*Device)                      {}
func (NopHooks) SetConfiguration(*Device)                {}
func (NopHooks) SetDescriptor(*Device, SetupPacket) bool { return false }
func (NopHooks) SetFeature(*Device)                      {}
func (NopHooks) SetInterface(*Device)                    {}
func (NopHooks) ClearFeature(*Device)                    {}
func (NopHooks) Exception(*Device, SetupPacket)          {}

// Callbacks receives the bus events of the device.
type Callbacks interface {
	Reset()
	Suspend()
	Resume()
}

// NopCallbacks implements Callbacks with no-ops.
type NopCallbacks struct{}

func (NopCallbacks) Reset()   {}
func (NopCallbacks) Suspend() {}
func (NopCallbacks) Resume()  {}

// Device is one device session on an OTG core. All of its work happens in
// HandleInterrupt, called from the core's interrupt; the endpoint methods
// may also be called from the foreground while the interrupt is idle.
type Device struct {
	hw    hal.Controller
	regs  *otg.Registers
	desc  *Descriptors
	class Class
	cb    Callbacks
	hooks StandardHooks
	opts  options

	state     State
	prevState State
	ctrl      CtrlState

	setup [SetupPacketSize]byte
	req   SetupPacket

	configuration uint8
	feature       uint8 // configuration bmAttributes, remote wakeup bit live
	itf           uint8
	alt           uint8
	testMode      uint8
	status        [2]byte

	in  [MaxEndpoints]Endpoint
	out [MaxEndpoints]Endpoint
}

// New initialises the core as a device, loads the descriptor set and
// connects to the bus. class and cb may be nil.
func New(hw hal.Controller, desc *Descriptors, class Class, cb Callbacks, opts ...Option) *Device {
	if cb == nil {
		cb = NopCallbacks{}
	}
	if class == nil {
		class = NopClass{}
	}
	d := &Device{
		hw:    hw,
		regs:  hw.Registers(),
		desc:  desc,
		class: class,
		cb:    cb,
		opts:  defaultOptions(),
	}
	for _, opt := range opts {
		opt(&d.opts)
	}
	d.hooks = d.opts.hooks
	if d.hooks == nil {
		if h, ok := class.(StandardHooks); ok {
			d.hooks = h
		} else {
			d.hooks = NopHooks{}
		}
	}
	if idx := desc.serialIndex(); idx != 0 && d.opts.serial != "" {
		desc.SetString(idx, d.opts.serial)
	}

	d.disableGlobalInterrupt()
	d.globalInit()
	d.deviceInit()
	d.enableGlobalInterrupt()
	d.Connect()
	pkg.LogInfo(pkg.ComponentDevice, "device initialised")
	return d
}

// State returns the device state.
func (d *Device) State() State { return d.state }

// CtrlState returns the phase of the control endpoint.
func (d *Device) CtrlState() CtrlState { return d.ctrl }

// Request returns the last SETUP request.
func (d *Device) Request() SetupPacket { return d.req }

// Address returns the programmed device address.
func (d *Device) Address() uint8 {
	return uint8(reg.Get(&d.regs.D.DCFG, otg.DcfgDADDR))
}

// Configuration returns the selected configuration value.
func (d *Device) Configuration() uint8 { return d.configuration }

// Interface returns the interface of the last SET_INTERFACE.
func (d *Device) Interface() uint8 { return d.itf }

// AlternateSetting returns the alternate setting of the last
// SET_INTERFACE.
func (d *Device) AlternateSetting() uint8 { return d.alt }

// RemoteWakeupEnabled reports whether the host enabled remote wakeup.
func (d *Device) RemoteWakeupEnabled() bool {
	return d.feature&ConfigAttrRemoteWakeup != 0
}

// SelfPowered reports whether the configuration is self-powered.
func (d *Device) SelfPowered() bool {
	return d.feature&ConfigAttrSelfPowered != 0
}

// Descriptors returns the descriptor set.
func (d *Device) Descriptors() *Descriptors { return d.desc }

// Controller returns the core the session drives.
func (d *Device) Controller() hal.Controller { return d.hw }

// TestMode returns the test selector in DCTRL.
func (d *Device) TestMode() uint8 {
	return uint8(reg.Get(&d.regs.D.DCTRL, otg.DctrlTESTSEL))
}

func (d *Device) setState(s State) {
	if s == d.state {
		return
	}
	pkg.LogDebug(pkg.ComponentDevice, "state", "from", d.state, "to", s)
	d.state = s
}

// Connect removes the soft disconnect so the host sees the device.
func (d *Device) Connect() {
	reg.ClearMask(&d.regs.D.DCTRL, otg.DctrlSDCNNT)
	d.hw.Delay(connectDelay)
	pkg.LogDebug(pkg.ComponentDevice, "connect")
}

// Disconnect soft-disconnects the device from the bus.
func (d *Device) Disconnect() {
	reg.SetMask(&d.regs.D.DCTRL, otg.DctrlSDCNNT)
	d.hw.Delay(connectDelay)
	pkg.LogDebug(pkg.ComponentDevice, "disconnect")
}

// RemoteWakeup signals resume on a suspended bus. The host must have
// enabled remote wakeup with SET_FEATURE.
func (d *Device) RemoteWakeup() error {
	if !d.RemoteWakeupEnabled() {
		return pkg.ErrNotSupported
	}
	if d.state != StateSuspended {
		return nil
	}
	reg.SetMask(&d.regs.D.DCTRL, otg.DctrlRWKUPS)
	d.hw.Delay(wakeupSignal)
	reg.ClearMask(&d.regs.D.DCTRL, otg.DctrlRWKUPS)
	pkg.LogDebug(pkg.ComponentDevice, "remote wakeup")
	return nil
}

// SetTestMode writes the test selector into DCTRL.
func (d *Device) SetTestMode(sel uint8) {
	reg.SetN(&d.regs.D.DCTRL, otg.DctrlTESTSEL, uint32(sel))
	pkg.LogDebug(pkg.ComponentDevice, "test mode", "selector", sel)
}

// NopClass is a Class that stalls every class request.
type NopClass struct{}

func (NopClass) Reset(*Device)                  {}
func (NopClass) Setup(d *Device, _ SetupPacket) { d.SetStall(0) }
func (NopClass) InComplete(*Device, uint8)      {}
func (NopClass) OutComplete(*Device, uint8)     {}

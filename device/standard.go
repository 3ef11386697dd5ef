package device

import (
	"github.com/apm32sdk/usbotg/otg"
	"github.com/apm32sdk/usbotg/pkg"
	"github.com/apm32sdk/usbotg/pkg/reg"
)

// GET_STATUS bits of the device recipient.
const (
	statusSelfPowered  = 0x01
	statusRemoteWakeup = 0x02
	statusHalt         = 0x01
)

// standardRequest serves a standard request. A rejected request stalls
// EP0 and is passed to the Exception hook; an unknown request only
// stalls.
func (d *Device) standardRequest() {
	var ok bool
	switch d.req.Request {
	case RequestGetConfiguration:
		ok = d.getConfiguration()
	case RequestGetDescriptor:
		ok = d.getDescriptor()
	case RequestGetInterface:
		ok = d.getInterface()
	case RequestGetStatus:
		ok = d.getStatus()
	case RequestSetAddress:
		ok = d.setAddress()
	case RequestSetConfiguration:
		ok = d.setConfiguration()
	case RequestSetDescriptor:
		ok = d.setDescriptor()
	case RequestSetFeature:
		ok = d.setFeature()
	case RequestClearFeature:
		ok = d.clearFeature()
	case RequestSetInterface:
		ok = d.setInterface()
	default:
		d.SetStall(0)
		return
	}
	if !ok {
		pkg.LogDebug(pkg.ComponentControl, "request rejected", "request", d.req, "state", d.state)
		d.hooks.Exception(d, d.req)
	}
}

// reject stalls EP0 and reports the request as failed.
func (d *Device) reject() bool {
	d.SetStall(0)
	return false
}

func (d *Device) getConfiguration() bool {
	if d.req.Recipient() != RecipientDevice {
		return d.reject()
	}
	switch d.state {
	case StateConfigured:
		d.status[0] = d.configuration
	case StateAddress:
		d.status[0] = 0
	default:
		return d.reject()
	}
	d.CtrlInData(d.status[:1])
	d.hooks.GetConfiguration(d)
	return true
}

// getDescriptor serves the device, configuration, string and qualifier
// descriptors, cut to wLength. Anything else goes to the GetDescriptor
// hook.
func (d *Device) getDescriptor() bool {
	var desc []byte
	switch d.req.DescriptorType() {
	case DescriptorTypeDevice:
		desc = d.desc.Device
	case DescriptorTypeConfiguration:
		desc = d.desc.Configuration
	case DescriptorTypeString:
		desc = d.desc.StringAt(d.req.DescriptorIndex())
	case DescriptorTypeDeviceQualifier:
		// full-speed devices have none
		desc = d.desc.Qualifier
	}
	if desc == nil {
		if d.hooks.GetDescriptor(d, d.req) {
			return true
		}
		return d.reject()
	}
	n := min(len(desc), int(d.req.Length))
	d.CtrlInData(desc[:n])
	return true
}

func (d *Device) getInterface() bool {
	if d.req.Recipient() != RecipientInterface || d.state != StateConfigured {
		return d.reject()
	}
	d.status[0] = d.alt
	d.CtrlInData(d.status[:1])
	d.hooks.GetInterface(d)
	return true
}

func (d *Device) getStatus() bool {
	var v uint8
	switch d.req.Recipient() {
	case RecipientDevice:
		if d.RemoteWakeupEnabled() {
			v |= statusRemoteWakeup
		}
		if d.SelfPowered() {
			v |= statusSelfPowered
		}
	case RecipientInterface:
	case RecipientEndpoint:
		if d.EndpointStalled(d.req.EndpointAddress()) {
			v |= statusHalt
		}
	default:
		return d.reject()
	}
	d.status[0] = v
	d.status[1] = 0
	d.CtrlInData(d.status[:min(2, int(d.req.Length))])
	d.hooks.GetStatus(d)
	return true
}

// setAddress acknowledges the request before the new address is
// programmed; the core keeps answering on the old address until the host
// uses the new one.
func (d *Device) setAddress() bool {
	addr := d.req.Value
	if d.req.Recipient() != RecipientDevice || addr > 127 {
		return d.reject()
	}
	if d.state == StateConfigured {
		return d.reject()
	}
	d.CtrlTxStatus()
	reg.SetN(&d.regs.D.DCFG, otg.DcfgDADDR, uint32(addr))
	if addr != 0 {
		d.setState(StateAddress)
	} else {
		d.setState(StateDefault)
	}
	pkg.LogDebug(pkg.ComponentDevice, "address", "addr", addr)
	d.hooks.SetAddress(d)
	return true
}

func (d *Device) setConfiguration() bool {
	cfg := uint8(d.req.Value)
	if d.req.Recipient() != RecipientDevice || int(d.req.Value) > d.opts.configurations {
		return d.reject()
	}
	switch d.state {
	case StateAddress, StateConfigured:
	default:
		return d.reject()
	}
	d.configuration = cfg
	if cfg != 0 {
		d.setState(StateConfigured)
	} else {
		d.setState(StateAddress)
	}
	d.hooks.SetConfiguration(d)
	d.CtrlTxStatus()
	return true
}

func (d *Device) setDescriptor() bool {
	if d.hooks.SetDescriptor(d, d.req) {
		return true
	}
	return d.reject()
}

// setFeature sets remote wakeup, a test mode or an endpoint halt. The
// halt is only applied while no configuration is selected.
func (d *Device) setFeature() bool {
	ok := false
	switch {
	case d.req.Recipient() == RecipientDevice && d.req.Value == FeatureRemoteWakeup:
		d.feature |= ConfigAttrRemoteWakeup
		ok = true
	case d.req.Recipient() == RecipientDevice && d.req.Value == FeatureTestMode:
		sel := uint8(d.req.Index >> 8)
		if sel >= TestModeJ && sel <= TestModeForceEnable && d.req.Index&0xFF == 0 {
			// applied once the status stage is through
			d.testMode = sel
			ok = true
		}
	case d.req.Recipient() == RecipientEndpoint && d.req.Value == FeatureEndpointHalt:
		addr := d.req.EndpointAddress()
		if addr&EndpointNumber < MaxEndpoints {
			if d.configuration == 0 && addr&EndpointNumber != 0 {
				d.SetStall(addr)
			}
			ok = true
		}
	}
	d.hooks.SetFeature(d)
	if !ok {
		return d.reject()
	}
	d.CtrlTxStatus()
	return true
}

// clearFeature is the reverse of setFeature, with the same halt guard.
func (d *Device) clearFeature() bool {
	ok := false
	switch {
	case d.req.Recipient() == RecipientDevice && d.req.Value == FeatureRemoteWakeup:
		d.feature &^= ConfigAttrRemoteWakeup
		ok = true
	case d.req.Recipient() == RecipientEndpoint && d.req.Value == FeatureEndpointHalt:
		addr := d.req.EndpointAddress()
		if addr&EndpointNumber < MaxEndpoints {
			if d.configuration == 0 && addr&EndpointNumber != 0 {
				d.ClearStall(addr)
			}
			ok = true
		}
	}
	d.hooks.ClearFeature(d)
	if !ok {
		return d.reject()
	}
	d.CtrlTxStatus()
	return true
}

func (d *Device) setInterface() bool {
	if d.req.Recipient() != RecipientInterface {
		return d.reject()
	}
	d.itf = uint8(d.req.Index)
	d.alt = uint8(d.req.Value)
	d.hooks.SetInterface(d)
	d.CtrlTxStatus()
	return true
}

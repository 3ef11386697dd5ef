package host

import (
	"time"

	"github.com/apm32sdk/usbotg/pkg"
)

// enumerate runs one poll of the enumeration sequence and reports whether
// the device is configured. A step whose request stalls or fails is
// issued again on the next poll.
func (h *Host) enumerate() bool {
	d := &h.desc
	switch h.enum {
	case EnumIdle:
		h.nextEnum(EnumGetDeviceDescriptor)

	case EnumGetDeviceDescriptor:
		req := GetDescriptorRequest(DescriptorTypeDevice, 0, DeviceDescriptorPrefix)
		if h.enumRequest(req, d.devBuf[:DeviceDescriptorPrefix]) {
			ParseDeviceDescriptor(d.devBuf[:], &d.Device)
			mps := uint16(d.Device.MaxPacketSize0)
			if mps == 0 {
				mps = 8
			}
			h.ctrl.MaxPacketSize = mps
			if err := h.openControlChannels(); err != nil {
				pkg.LogError(pkg.ComponentEnum, "reopen control pipe", "error", err)
			}
			h.nextEnum(EnumSetAddress)
		}

	case EnumSetAddress:
		if h.enumRequest(SetAddressRequest(ConfiguredAddress), nil) {
			h.hw.Delay(2 * time.Millisecond)
			h.address = ConfiguredAddress
			h.setChannelAddress(h.ctrl.OutChannel, h.address)
			h.setChannelAddress(h.ctrl.InChannel, h.address)
			h.nextEnum(EnumGetFullDeviceDescriptor)
		}

	case EnumGetFullDeviceDescriptor:
		req := GetDescriptorRequest(DescriptorTypeDevice, 0, DeviceDescriptorSize)
		if h.enumRequest(req, d.devBuf[:]) {
			ParseDeviceDescriptor(d.devBuf[:], &d.Device)
			h.cb.DeviceDescriptor(&d.Device)
			pkg.LogInfo(pkg.ComponentEnum, "device",
				"vid", d.Device.VendorID, "pid", d.Device.ProductID, "class", d.Device.DeviceClass)
			h.nextEnum(EnumGetConfigurationDescriptor)
		}

	case EnumGetConfigurationDescriptor:
		req := GetDescriptorRequest(DescriptorTypeConfiguration, 0, ConfigurationDescriptorSize)
		if h.enumRequest(req, d.cfgBuf[:ConfigurationDescriptorSize]) {
			ParseConfigurationDescriptor(d.cfgBuf[:], &d.Configuration)
			h.nextEnum(EnumGetFullConfigurationDescriptor)
		}

	case EnumGetFullConfigurationDescriptor:
		n := min(int(d.Configuration.TotalLength), ConfigBufferSize)
		req := GetDescriptorRequest(DescriptorTypeConfiguration, 0, uint16(n))
		if h.enumRequest(req, d.cfgBuf[:n]) {
			d.NumInterfaces = ParseConfiguration(d.cfgBuf[:n], &d.Configuration, &d.Interfaces)
			h.cb.ConfigurationDescriptor(&d.Configuration, d.Interfaces[:d.NumInterfaces])
			pkg.LogDebug(pkg.ComponentEnum, "configuration",
				"value", d.Configuration.ConfigurationValue, "interfaces", d.NumInterfaces)
			h.nextEnum(EnumGetManufacturerString)
		}

	case EnumGetManufacturerString:
		if s, ok := h.enumString(d.Device.ManufacturerIndex); ok {
			d.Manufacturer = s
			h.cb.Manufacturer(s)
			h.nextEnum(EnumGetProductString)
		}

	case EnumGetProductString:
		if s, ok := h.enumString(d.Device.ProductIndex); ok {
			d.Product = s
			h.cb.Product(s)
			h.nextEnum(EnumGetSerialNumberString)
		}

	case EnumGetSerialNumberString:
		if s, ok := h.enumString(d.Device.SerialNumberIndex); ok {
			d.SerialNumber = s
			h.cb.SerialNumber(s)
			h.nextEnum(EnumSetConfiguration)
		}

	case EnumSetConfiguration:
		if h.enumRequest(SetConfigurationRequest(d.Configuration.ConfigurationValue), nil) {
			h.nextEnum(EnumConfigured)
		}

	case EnumConfigured:
		h.cb.EnumerationDone()
		pkg.LogInfo(pkg.ComponentEnum, "configured", "address", h.address,
			"manufacturer", d.Manufacturer, "product", d.Product)
		return true
	}
	return false
}

func (h *Host) nextEnum(s EnumState) {
	pkg.LogDebug(pkg.ComponentEnum, "step", "from", h.enum, "to", s)
	h.enum = s
}

// enumRequest advances the request of the current step and reports
// whether it completed.
func (h *Host) enumRequest(req Request, buf []byte) bool {
	switch st := h.ControlRequest(req, buf); st {
	case CtrlComplete:
		return true
	case CtrlStall, CtrlError:
		pkg.LogDebug(pkg.ComponentEnum, "request failed, retrying", "step", h.enum, "state", st)
	}
	return false
}

// enumString reads string descriptor index. Index zero means the device
// has no such string and yields "" at once.
func (h *Host) enumString(index uint8) (string, bool) {
	if index == 0 {
		return "", true
	}
	buf := h.desc.strBuf[:]
	req := GetDescriptorRequest(DescriptorTypeString, index, StringBufferSize)
	if !h.enumRequest(req, buf) {
		return "", false
	}
	n := min(h.TransferredBytes(h.ctrl.InChannel), len(buf))
	return ParseString(buf[:n]), true
}

package host

import (
	"strings"
	"unicode/utf16"
)

// DeviceDescriptor represents a USB device descriptor.
type DeviceDescriptor struct {
	Length            uint8
	DescriptorType    uint8
	USBVersion        uint16
	DeviceClass       uint8
	DeviceSubClass    uint8
	DeviceProtocol    uint8
	MaxPacketSize0    uint8
	VendorID          uint16
	ProductID         uint16
	DeviceVersion     uint16
	ManufacturerIndex uint8
	ProductIndex      uint8
	SerialNumberIndex uint8
	NumConfigurations uint8
}

// DeviceDescriptorSize is the size of a device descriptor.
const DeviceDescriptorSize = 18

// DeviceDescriptorPrefix is the part of the device descriptor read before
// the device has an address; it ends with bMaxPacketSize0.
const DeviceDescriptorPrefix = 8

// ParseDeviceDescriptor parses a device descriptor from data. Only the
// first DeviceDescriptorPrefix bytes are required; missing fields stay zero.
func ParseDeviceDescriptor(data []byte, out *DeviceDescriptor) bool {
	if len(data) < DeviceDescriptorPrefix {
		return false
	}
	var b [DeviceDescriptorSize]byte
	copy(b[:], data)
	out.Length = b[0]
	out.DescriptorType = b[1]
	out.USBVersion = uint16(b[2]) | uint16(b[3])<<8
	out.DeviceClass = b[4]
	out.DeviceSubClass = b[5]
	out.DeviceProtocol = b[6]
	out.MaxPacketSize0 = b[7]
	out.VendorID = uint16(b[8]) | uint16(b[9])<<8
	out.ProductID = uint16(b[10]) | uint16(b[11])<<8
	out.DeviceVersion = uint16(b[12]) | uint16(b[13])<<8
	out.ManufacturerIndex = b[14]
	out.ProductIndex = b[15]
	out.SerialNumberIndex = b[16]
	out.NumConfigurations = b[17]
	return true
}

// ConfigurationDescriptor represents a USB configuration descriptor.
type ConfigurationDescriptor struct {
	Length             uint8
	DescriptorType     uint8
	TotalLength        uint16
	NumInterfaces      uint8
	ConfigurationValue uint8
	ConfigurationIndex uint8
	Attributes         uint8
	MaxPower           uint8
}

// ConfigurationDescriptorSize is the size of a configuration descriptor header.
const ConfigurationDescriptorSize = 9

// ParseConfigurationDescriptor parses configuration descriptor from data.
func ParseConfigurationDescriptor(data []byte, out *ConfigurationDescriptor) bool {
	if len(data) < ConfigurationDescriptorSize {
		return false
	}
	out.Length = data[0]
	out.DescriptorType = data[1]
	out.TotalLength = uint16(data[2]) | uint16(data[3])<<8
	out.NumInterfaces = data[4]
	out.ConfigurationValue = data[5]
	out.ConfigurationIndex = data[6]
	out.Attributes = data[7]
	out.MaxPower = data[8]
	return true
}

// InterfaceDescriptor represents a USB interface descriptor.
type InterfaceDescriptor struct {
	Length            uint8
	DescriptorType    uint8
	InterfaceNumber   uint8
	AlternateSetting  uint8
	NumEndpoints      uint8
	InterfaceClass    uint8
	InterfaceSubClass uint8
	InterfaceProtocol uint8
	InterfaceIndex    uint8
}

// InterfaceDescriptorSize is the size of an interface descriptor.
const InterfaceDescriptorSize = 9

// ParseInterfaceDescriptor parses interface descriptor from data.
func ParseInterfaceDescriptor(data []byte, out *InterfaceDescriptor) bool {
	if len(data) < InterfaceDescriptorSize {
		return false
	}
	out.Length = data[0]
	out.DescriptorType = data[1]
	out.InterfaceNumber = data[2]
	out.AlternateSetting = data[3]
	out.NumEndpoints = data[4]
	out.InterfaceClass = data[5]
	out.InterfaceSubClass = data[6]
	out.InterfaceProtocol = data[7]
	out.InterfaceIndex = data[8]
	return true
}

// EndpointDescriptor represents a USB endpoint descriptor.
type EndpointDescriptor struct {
	Length          uint8
	DescriptorType  uint8
	EndpointAddress uint8
	Attributes      uint8
	MaxPacketSize   uint16
	Interval        uint8
}

// EndpointDescriptorSize is the size of an endpoint descriptor.
const EndpointDescriptorSize = 7

// ParseEndpointDescriptor parses endpoint descriptor from data.
func ParseEndpointDescriptor(data []byte, out *EndpointDescriptor) bool {
	if len(data) < EndpointDescriptorSize {
		return false
	}
	out.Length = data[0]
	out.DescriptorType = data[1]
	out.EndpointAddress = data[2]
	out.Attributes = data[3]
	out.MaxPacketSize = uint16(data[4]) | uint16(data[5])<<8
	out.Interval = data[6]
	return true
}

// Number returns the endpoint number (0-15).
func (e *EndpointDescriptor) Number() uint8 {
	return e.EndpointAddress & 0x0F
}

// IsIn returns true if this is an IN endpoint.
func (e *EndpointDescriptor) IsIn() bool {
	return e.EndpointAddress&EndpointDirectionIn != 0
}

// TransferType returns the transfer type.
func (e *EndpointDescriptor) TransferType() uint8 {
	return e.Attributes & 0x03
}

// Interface is one parsed interface with its endpoints.
type Interface struct {
	Descriptor   InterfaceDescriptor
	Endpoints    [MaxEndpoints]EndpointDescriptor
	NumEndpoints int
}

// Endpoint returns the first endpoint of the given transfer type and
// direction, or nil.
func (itf *Interface) Endpoint(transferType uint8, in bool) *EndpointDescriptor {
	for i := 0; i < itf.NumEndpoints; i++ {
		ep := &itf.Endpoints[i]
		if ep.TransferType() == transferType && ep.IsIn() == in {
			return ep
		}
	}
	return nil
}

// ParseConfiguration walks a full configuration descriptor. Each
// sub-descriptor is located by its own length byte; interface descriptors
// open a new slot and endpoint descriptors attach to the latest interface.
// Interfaces beyond MaxInterfaces, together with their endpoints, and
// endpoints beyond MaxEndpoints are dropped. It returns the number of interfaces stored.
func ParseConfiguration(data []byte, cfg *ConfigurationDescriptor, itfs *[MaxInterfaces]Interface) int {
	if !ParseConfigurationDescriptor(data, cfg) {
		return 0
	}
	total := int(cfg.TotalLength)
	if total > len(data) {
		total = len(data)
	}
	n := 0
	// set while the endpoints of a dropped interface are being skipped
	dropping := false
	for i := ConfigurationDescriptorSize; i+1 < total; {
		length := int(data[i])
		if length < 2 {
			break
		}
		sub := data[i:min(i+length, total)]
		switch data[i+1] {
		case DescriptorTypeInterface:
			dropping = true
			if n < MaxInterfaces && ParseInterfaceDescriptor(sub, &itfs[n].Descriptor) {
				itfs[n].NumEndpoints = 0
				n++
				dropping = false
			}
		case DescriptorTypeEndpoint:
			if n > 0 && !dropping {
				itf := &itfs[n-1]
				if itf.NumEndpoints < MaxEndpoints && ParseEndpointDescriptor(sub, &itf.Endpoints[itf.NumEndpoints]) {
					itf.NumEndpoints++
				}
			}
		}
		i += length
		// trailing bytes too short to hold an endpoint are padding
		if total-i < EndpointDescriptorSize {
			break
		}
	}
	return n
}

// ParseString decodes a string descriptor. It returns "" for any other
// descriptor type.
func ParseString(data []byte) string {
	if len(data) < 2 || data[1] != DescriptorTypeString {
		return ""
	}
	n := min(int(data[0]), len(data))
	units := make([]uint16, 0, n/2)
	for i := 2; i+1 < n; i += 2 {
		units = append(units, uint16(data[i])|uint16(data[i+1])<<8)
	}
	return strings.TrimRight(string(utf16.Decode(units)), "\x00")
}

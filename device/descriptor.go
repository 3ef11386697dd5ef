package device

import (
	"encoding/binary"
	"unicode/utf16"
)

// Descriptor types (USB 2.0 table 9-5 and class specifications).
const (
	DescriptorTypeDevice               = 0x01
	DescriptorTypeConfiguration        = 0x02
	DescriptorTypeString               = 0x03
	DescriptorTypeInterface            = 0x04
	DescriptorTypeEndpoint             = 0x05
	DescriptorTypeDeviceQualifier      = 0x06
	DescriptorTypeOtherSpeedConfig     = 0x07
	DescriptorTypeInterfacePower       = 0x08
	DescriptorTypeInterfaceAssociation = 0x0B
	DescriptorTypeHID                  = 0x21
	DescriptorTypeHIDReport            = 0x22
	DescriptorTypeCSInterface          = 0x24 // class-specific interface
	DescriptorTypeCSEndpoint           = 0x25 // class-specific endpoint
)

// Class codes.
const (
	ClassPerInterface = 0x00
	ClassCDC          = 0x02
	ClassHID          = 0x03
	ClassMassStorage  = 0x08
	ClassCDCData      = 0x0A
	ClassMisc         = 0xEF
	ClassVendor       = 0xFF
)

// Configuration attribute bits.
const (
	ConfigAttrBusPowered   = 0x80
	ConfigAttrSelfPowered  = 0x40
	ConfigAttrRemoteWakeup = 0x20
)

// Descriptor sizes.
const (
	DeviceDescriptorSize        = 18
	ConfigurationDescriptorSize = 9
	InterfaceDescriptorSize     = 9
	EndpointDescriptorSize      = 7
	IADSize                     = 8
	QualifierDescriptorSize     = 10
)

// LangIDUSEnglish is the language ID for US English.
const LangIDUSEnglish = 0x0409

// DeviceDescriptor is the standard device descriptor.
type DeviceDescriptor struct {
	USBVersion        uint16 // BCD
	DeviceClass       uint8
	DeviceSubClass    uint8
	DeviceProtocol    uint8
	MaxPacketSize0    uint8
	VendorID          uint16
	ProductID         uint16
	DeviceVersion     uint16 // BCD
	ManufacturerIndex uint8
	ProductIndex      uint8
	SerialNumberIndex uint8
	NumConfigurations uint8
}

// AppendTo appends the 18 descriptor bytes to b.
func (d *DeviceDescriptor) AppendTo(b []byte) []byte {
	b = append(b, DeviceDescriptorSize, DescriptorTypeDevice)
	b = binary.LittleEndian.AppendUint16(b, d.USBVersion)
	b = append(b, d.DeviceClass, d.DeviceSubClass, d.DeviceProtocol, d.MaxPacketSize0)
	b = binary.LittleEndian.AppendUint16(b, d.VendorID)
	b = binary.LittleEndian.AppendUint16(b, d.ProductID)
	b = binary.LittleEndian.AppendUint16(b, d.DeviceVersion)
	return append(b, d.ManufacturerIndex, d.ProductIndex, d.SerialNumberIndex, d.NumConfigurations)
}

// QualifierTo appends the device qualifier derived from d to b.
func (d *DeviceDescriptor) QualifierTo(b []byte) []byte {
	b = append(b, QualifierDescriptorSize, DescriptorTypeDeviceQualifier)
	b = binary.LittleEndian.AppendUint16(b, d.USBVersion)
	return append(b, d.DeviceClass, d.DeviceSubClass, d.DeviceProtocol, d.MaxPacketSize0,
		d.NumConfigurations, 0)
}

// ConfigurationDescriptor is the header of a configuration.
type ConfigurationDescriptor struct {
	TotalLength        uint16
	NumInterfaces      uint8
	ConfigurationValue uint8
	ConfigurationIndex uint8
	Attributes         uint8
	MaxPower           uint8 // 2 mA units
}

// AppendTo appends the 9 descriptor bytes to b.
func (c *ConfigurationDescriptor) AppendTo(b []byte) []byte {
	b = append(b, ConfigurationDescriptorSize, DescriptorTypeConfiguration)
	b = binary.LittleEndian.AppendUint16(b, c.TotalLength)
	return append(b, c.NumInterfaces, c.ConfigurationValue, c.ConfigurationIndex,
		c.Attributes, c.MaxPower)
}

// InterfaceDescriptor is the standard interface descriptor.
type InterfaceDescriptor struct {
	InterfaceNumber   uint8
	AlternateSetting  uint8
	NumEndpoints      uint8
	InterfaceClass    uint8
	InterfaceSubClass uint8
	InterfaceProtocol uint8
	InterfaceIndex    uint8
}

// AppendTo appends the 9 descriptor bytes to b.
func (i *InterfaceDescriptor) AppendTo(b []byte) []byte {
	return append(b, InterfaceDescriptorSize, DescriptorTypeInterface,
		i.InterfaceNumber, i.AlternateSetting, i.NumEndpoints,
		i.InterfaceClass, i.InterfaceSubClass, i.InterfaceProtocol, i.InterfaceIndex)
}

// EndpointDescriptor is the standard endpoint descriptor.
type EndpointDescriptor struct {
	EndpointAddress uint8
	Attributes      uint8 // transfer type in bits 1:0
	MaxPacketSize   uint16
	Interval        uint8
}

// AppendTo appends the 7 descriptor bytes to b.
func (e *EndpointDescriptor) AppendTo(b []byte) []byte {
	b = append(b, EndpointDescriptorSize, DescriptorTypeEndpoint, e.EndpointAddress, e.Attributes)
	b = binary.LittleEndian.AppendUint16(b, e.MaxPacketSize)
	return append(b, e.Interval)
}

// InterfaceAssociationDescriptor groups the interfaces of one function.
type InterfaceAssociationDescriptor struct {
	FirstInterface   uint8
	InterfaceCount   uint8
	FunctionClass    uint8
	FunctionSubClass uint8
	FunctionProtocol uint8
	FunctionIndex    uint8
}

// AppendTo appends the 8 descriptor bytes to b.
func (a *InterfaceAssociationDescriptor) AppendTo(b []byte) []byte {
	return append(b, IADSize, DescriptorTypeInterfaceAssociation,
		a.FirstInterface, a.InterfaceCount,
		a.FunctionClass, a.FunctionSubClass, a.FunctionProtocol, a.FunctionIndex)
}

// StringDescriptor encodes s as a UTF-16LE string descriptor, truncated to
// the 255 byte descriptor limit.
func StringDescriptor(s string) []byte {
	units := utf16.Encode([]rune(s))
	if n := (255 - 2) / 2; len(units) > n {
		units = units[:n]
	}
	b := make([]byte, 2, 2+2*len(units))
	b[0] = byte(2 + 2*len(units))
	b[1] = DescriptorTypeString
	for _, u := range units {
		b = binary.LittleEndian.AppendUint16(b, u)
	}
	return b
}

// LanguageDescriptor encodes string descriptor 0, the supported language
// IDs.
func LanguageDescriptor(langIDs ...uint16) []byte {
	b := make([]byte, 2, 2+2*len(langIDs))
	b[0] = byte(2 + 2*len(langIDs))
	b[1] = DescriptorTypeString
	for _, id := range langIDs {
		b = binary.LittleEndian.AppendUint16(b, id)
	}
	return b
}

// Descriptors is the descriptor set a device serves to GET_DESCRIPTOR.
// A nil entry stalls the request.
type Descriptors struct {
	Device        []byte
	Configuration []byte
	Qualifier     []byte
	Strings       [MaxStrings][]byte
}

// SetString stores s as string descriptor i.
func (d *Descriptors) SetString(i uint8, s string) {
	if int(i) < len(d.Strings) {
		d.Strings[i] = StringDescriptor(s)
	}
}

// StringAt returns string descriptor i, or nil.
func (d *Descriptors) StringAt(i uint8) []byte {
	if int(i) >= len(d.Strings) {
		return nil
	}
	return d.Strings[i]
}

// serialIndex returns the serial number string index of the device
// descriptor.
func (d *Descriptors) serialIndex() uint8 {
	if len(d.Device) < DeviceDescriptorSize {
		return 0
	}
	return d.Device[16]
}

// configAttributes returns bmAttributes of the configuration.
func (d *Descriptors) configAttributes() uint8 {
	if len(d.Configuration) < ConfigurationDescriptorSize {
		return 0
	}
	return d.Configuration[7]
}

// ConfigBuilder assembles a configuration descriptor with its interface,
// endpoint and class descriptors. Bytes fills in wTotalLength and
// bNumInterfaces.
type ConfigBuilder struct {
	b    []byte
	itfs int
}

// NewConfigBuilder starts configuration value with the given attributes
// and power draw in 2 mA units.
func NewConfigBuilder(value, attributes, maxPower uint8) *ConfigBuilder {
	h := ConfigurationDescriptor{
		ConfigurationValue: value,
		Attributes:         attributes | ConfigAttrBusPowered,
		MaxPower:           maxPower,
	}
	return &ConfigBuilder{b: h.AppendTo(make([]byte, 0, 64))}
}

// Association appends an interface association descriptor.
func (c *ConfigBuilder) Association(a InterfaceAssociationDescriptor) *ConfigBuilder {
	c.b = a.AppendTo(c.b)
	return c
}

// Interface appends an interface descriptor. Alternate settings do not
// count as interfaces.
func (c *ConfigBuilder) Interface(i InterfaceDescriptor) *ConfigBuilder {
	if i.AlternateSetting == 0 {
		c.itfs++
	}
	c.b = i.AppendTo(c.b)
	return c
}

// Endpoint appends an endpoint descriptor.
func (c *ConfigBuilder) Endpoint(e EndpointDescriptor) *ConfigBuilder {
	c.b = e.AppendTo(c.b)
	return c
}

// Raw appends a class-specific descriptor as is.
func (c *ConfigBuilder) Raw(desc []byte) *ConfigBuilder {
	c.b = append(c.b, desc...)
	return c
}

// Bytes returns the complete configuration.
func (c *ConfigBuilder) Bytes() []byte {
	out := append([]byte(nil), c.b...)
	binary.LittleEndian.PutUint16(out[2:4], uint16(len(out)))
	out[4] = uint8(c.itfs)
	return out
}

// NewDescriptors assembles a descriptor set around config. The
// manufacturer, product and serial strings get indexes 1 to 3 and US
// English as their language; an empty string leaves its index at zero.
// Zero USB version, EP0 packet size and configuration count take the
// full-speed defaults.
func NewDescriptors(dev DeviceDescriptor, config []byte, manufacturer, product, serial string) *Descriptors {
	if dev.USBVersion == 0 {
		dev.USBVersion = 0x0200
	}
	if dev.MaxPacketSize0 == 0 {
		dev.MaxPacketSize0 = Ep0MaxPacketSize
	}
	if dev.NumConfigurations == 0 {
		dev.NumConfigurations = 1
	}
	d := &Descriptors{Configuration: config}
	d.Strings[0] = LanguageDescriptor(LangIDUSEnglish)
	if manufacturer != "" {
		dev.ManufacturerIndex = 1
		d.SetString(1, manufacturer)
	}
	if product != "" {
		dev.ProductIndex = 2
		d.SetString(2, product)
	}
	if serial != "" {
		dev.SerialNumberIndex = 3
		d.SetString(3, serial)
	}
	d.Device = dev.AppendTo(nil)
	return d
}

package device

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeviceDescriptor_AppendTo(t *testing.T) {
	b := testDeviceDescriptor()
	require.Len(t, b, DeviceDescriptorSize)
	assert.Equal(t, byte(DeviceDescriptorSize), b[0])
	assert.Equal(t, byte(DescriptorTypeDevice), b[1])
	assert.Equal(t, uint16(0x0200), binary.LittleEndian.Uint16(b[2:]))
	assert.Equal(t, byte(Ep0MaxPacketSize), b[7])
	assert.Equal(t, uint16(0x314B), binary.LittleEndian.Uint16(b[8:]))
	assert.Equal(t, uint16(0x5720), binary.LittleEndian.Uint16(b[10:]))
	assert.Equal(t, []byte{1, 2, 3, 1}, b[14:18])
}

func TestDeviceDescriptor_QualifierTo(t *testing.T) {
	d := DeviceDescriptor{USBVersion: 0x0200, DeviceClass: ClassMisc, MaxPacketSize0: 64, NumConfigurations: 1}
	q := d.QualifierTo(nil)
	assert.Equal(t, []byte{10, DescriptorTypeDeviceQualifier, 0x00, 0x02, ClassMisc, 0, 0, 64, 1, 0}, q)
}

func TestConfigBuilder(t *testing.T) {
	tests := []struct {
		name      string
		build     func() *ConfigBuilder
		wantLen   int
		wantItfs  uint8
		wantAttrs uint8
	}{
		{
			name:      "empty",
			build:     func() *ConfigBuilder { return NewConfigBuilder(1, 0, 50) },
			wantLen:   ConfigurationDescriptorSize,
			wantAttrs: ConfigAttrBusPowered,
		},
		{
			name: "one interface, two endpoints",
			build: func() *ConfigBuilder {
				return NewConfigBuilder(1, ConfigAttrSelfPowered, 50).
					Interface(InterfaceDescriptor{NumEndpoints: 2}).
					Endpoint(EndpointDescriptor{EndpointAddress: 0x81, Attributes: EndpointTypeBulk, MaxPacketSize: 64}).
					Endpoint(EndpointDescriptor{EndpointAddress: 0x01, Attributes: EndpointTypeBulk, MaxPacketSize: 64})
			},
			wantLen:   32,
			wantItfs:  1,
			wantAttrs: ConfigAttrBusPowered | ConfigAttrSelfPowered,
		},
		{
			name: "alternate settings count once",
			build: func() *ConfigBuilder {
				return NewConfigBuilder(1, 0, 50).
					Interface(InterfaceDescriptor{InterfaceNumber: 0}).
					Interface(InterfaceDescriptor{InterfaceNumber: 0, AlternateSetting: 1}).
					Interface(InterfaceDescriptor{InterfaceNumber: 1})
			},
			wantLen:   36,
			wantItfs:  2,
			wantAttrs: ConfigAttrBusPowered,
		},
		{
			name: "association and class descriptors",
			build: func() *ConfigBuilder {
				return NewConfigBuilder(1, 0, 50).
					Association(InterfaceAssociationDescriptor{InterfaceCount: 2, FunctionClass: ClassCDC}).
					Interface(InterfaceDescriptor{InterfaceClass: ClassCDC}).
					Raw([]byte{5, DescriptorTypeCSInterface, 0x00, 0x10, 0x01}).
					Interface(InterfaceDescriptor{InterfaceNumber: 1, InterfaceClass: ClassCDCData})
			},
			wantLen:   9 + 8 + 9 + 5 + 9,
			wantItfs:  2,
			wantAttrs: ConfigAttrBusPowered,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := tt.build().Bytes()
			require.Len(t, b, tt.wantLen)
			assert.Equal(t, uint16(tt.wantLen), binary.LittleEndian.Uint16(b[2:4]))
			assert.Equal(t, tt.wantItfs, b[4])
			assert.Equal(t, uint8(1), b[5])
			assert.Equal(t, tt.wantAttrs, b[7])
		})
	}
}

func TestStringDescriptor(t *testing.T) {
	assert.Equal(t, []byte{6, DescriptorTypeString, 'A', 0, 'B', 0}, StringDescriptor("AB"))
	assert.Equal(t, []byte{2, DescriptorTypeString}, StringDescriptor(""))
	assert.Equal(t, []byte{4, DescriptorTypeString, 0xAC, 0x20}, StringDescriptor("€"))

	long := StringDescriptor(string(make([]rune, 300)))
	assert.Len(t, long, 254)
	assert.Equal(t, byte(254), long[0])
}

func TestLanguageDescriptor(t *testing.T) {
	assert.Equal(t, []byte{4, DescriptorTypeString, 0x09, 0x04}, LanguageDescriptor(LangIDUSEnglish))
}

func TestDescriptors_Strings(t *testing.T) {
	var d Descriptors
	d.SetString(1, "x")
	d.SetString(MaxStrings, "ignored")
	assert.Equal(t, StringDescriptor("x"), d.StringAt(1))
	assert.Nil(t, d.StringAt(2))
	assert.Nil(t, d.StringAt(MaxStrings))
	assert.Equal(t, uint8(0), d.serialIndex())
	assert.Equal(t, uint8(0), d.configAttributes())

	d.Device = testDeviceDescriptor()
	d.Configuration = testConfig(ConfigAttrRemoteWakeup, 0)
	assert.Equal(t, uint8(3), d.serialIndex())
	assert.Equal(t, uint8(ConfigAttrBusPowered|ConfigAttrRemoteWakeup), d.configAttributes())
}

func TestNewDescriptors(t *testing.T) {
	tests := []struct {
		name                      string
		manufacturer, product, sn string
		want                      [3]uint8
	}{
		{"all strings", "Geehy", "Disk", "0001", [3]uint8{1, 2, 3}},
		{"no serial", "Geehy", "Disk", "", [3]uint8{1, 2, 0}},
		{"none", "", "", "", [3]uint8{0, 0, 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewDescriptors(DeviceDescriptor{VendorID: 0x314B}, []byte{9, 2}, tt.manufacturer, tt.product, tt.sn)
			require.Len(t, d.Device, DeviceDescriptorSize)
			assert.Equal(t, []byte{0x00, 0x02}, d.Device[2:4])
			assert.Equal(t, uint8(Ep0MaxPacketSize), d.Device[7])
			assert.Equal(t, uint8(1), d.Device[17])
			assert.Equal(t, tt.want[:], d.Device[14:17])
			assert.Equal(t, LanguageDescriptor(LangIDUSEnglish), d.StringAt(0))
			if tt.product != "" {
				assert.Equal(t, StringDescriptor(tt.product), d.StringAt(2))
			} else {
				assert.Nil(t, d.StringAt(2))
			}
		})
	}
}

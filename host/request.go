package host

// Request is a USB SETUP packet as sent by the host.
type Request struct {
	RequestType uint8  // Request characteristics
	Request     uint8  // Specific request
	Value       uint16 // Request-specific value
	Index       uint16 // Request-specific index
	Length      uint16 // Number of bytes in the data stage
}

// RequestSize is the size of a SETUP packet in bytes.
const RequestSize = 8

// ParseRequest parses raw bytes into a Request.
// Returns false if data is too short.
func ParseRequest(data []byte, out *Request) bool {
	if len(data) < RequestSize {
		return false
	}
	out.RequestType = data[0]
	out.Request = data[1]
	out.Value = uint16(data[2]) | uint16(data[3])<<8
	out.Index = uint16(data[4]) | uint16(data[5])<<8
	out.Length = uint16(data[6]) | uint16(data[7])<<8
	return true
}

// MarshalTo writes the request to buf.
// Returns the number of bytes written (8), or 0 if buf is too small.
func (r *Request) MarshalTo(buf []byte) int {
	if len(buf) < RequestSize {
		return 0
	}
	buf[0] = r.RequestType
	buf[1] = r.Request
	buf[2] = byte(r.Value)
	buf[3] = byte(r.Value >> 8)
	buf[4] = byte(r.Index)
	buf[5] = byte(r.Index >> 8)
	buf[6] = byte(r.Length)
	buf[7] = byte(r.Length >> 8)
	return RequestSize
}

// Bytes returns the wire form of the request.
func (r Request) Bytes() [RequestSize]byte {
	var b [RequestSize]byte
	r.MarshalTo(b[:])
	return b
}

// IsIn reports whether the data stage runs device to host.
func (r Request) IsIn() bool {
	return r.RequestType&RequestTypeIn != 0
}

// Type returns the request type bits (standard, class, vendor).
func (r Request) Type() uint8 {
	return r.RequestType & 0x60
}

// Recipient returns the recipient bits.
func (r Request) Recipient() uint8 {
	return r.RequestType & 0x1F
}

// GetConfigurationRequest reads the active configuration value.
func GetConfigurationRequest() Request {
	return Request{
		RequestType: RequestTypeIn | RequestTypeStandard | RequestTypeDevice,
		Request:     RequestGetConfiguration,
		Length:      1,
	}
}

// GetDescriptorRequest reads length bytes of descriptor typ at index.
// String descriptors are requested in US English.
func GetDescriptorRequest(typ, index uint8, length uint16) Request {
	r := Request{
		RequestType: RequestTypeIn | RequestTypeStandard | RequestTypeDevice,
		Request:     RequestGetDescriptor,
		Value:       uint16(typ)<<8 | uint16(index),
		Length:      length,
	}
	if typ == DescriptorTypeString {
		r.Index = LangIDUSEnglish
	}
	return r
}

// GetInterfaceRequest reads the alternate setting of interface itf.
func GetInterfaceRequest(itf uint8) Request {
	return Request{
		RequestType: RequestTypeIn | RequestTypeStandard | RequestTypeInterface,
		Request:     RequestGetInterface,
		Index:       uint16(itf),
		Length:      1,
	}
}

// GetStatusRequest reads the two status bytes of a device, interface or
// endpoint. The index is ignored for the device recipient.
func GetStatusRequest(recipient uint8, index uint16) Request {
	r := Request{
		RequestType: RequestTypeIn | RequestTypeStandard | recipient&0x1F,
		Request:     RequestGetStatus,
		Index:       index,
		Length:      2,
	}
	if recipient == RequestTypeDevice {
		r.Index = 0
	}
	return r
}

// SetAddressRequest assigns addr to the device at the default address.
func SetAddressRequest(addr uint8) Request {
	return Request{
		RequestType: RequestTypeOut | RequestTypeStandard | RequestTypeDevice,
		Request:     RequestSetAddress,
		Value:       uint16(addr),
	}
}

// SetConfigurationRequest selects configuration value.
func SetConfigurationRequest(value uint8) Request {
	return Request{
		RequestType: RequestTypeOut | RequestTypeStandard | RequestTypeDevice,
		Request:     RequestSetConfiguration,
		Value:       uint16(value),
	}
}

// SetDescriptorRequest writes length bytes of descriptor typ at index.
func SetDescriptorRequest(typ, index uint8, length uint16) Request {
	return Request{
		RequestType: RequestTypeOut | RequestTypeStandard | RequestTypeDevice,
		Request:     RequestSetDescriptor,
		Value:       uint16(typ)<<8 | uint16(index),
		Length:      length,
	}
}

// SetInterfaceRequest selects alternate setting alt of interface itf.
func SetInterfaceRequest(itf, alt uint8) Request {
	return Request{
		RequestType: RequestTypeOut | RequestTypeStandard | RequestTypeInterface,
		Request:     RequestSetInterface,
		Value:       uint16(alt),
		Index:       uint16(itf),
	}
}

// SetFeatureRequest sets feature on the recipient at index.
func SetFeatureRequest(recipient uint8, feature, index uint16) Request {
	return Request{
		RequestType: RequestTypeOut | RequestTypeStandard | recipient&0x1F,
		Request:     RequestSetFeature,
		Value:       feature,
		Index:       index,
	}
}

// ClearFeatureRequest clears feature on the recipient at index.
func ClearFeatureRequest(recipient uint8, feature, index uint16) Request {
	return Request{
		RequestType: RequestTypeOut | RequestTypeStandard | recipient&0x1F,
		Request:     RequestClearFeature,
		Value:       feature,
		Index:       index,
	}
}

// ClearEndpointHaltRequest clears the halt feature of endpoint epAddr.
func ClearEndpointHaltRequest(epAddr uint8) Request {
	return ClearFeatureRequest(RequestTypeEndpoint, FeatureEndpointHalt, uint16(epAddr))
}

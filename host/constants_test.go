package host

import (
	"testing"
)

// =============================================================================
// State Tests
// =============================================================================

func TestState_String(t *testing.T) {
	tests := []struct {
		state    State
		expected string
	}{
		{StateIdle, "idle"},
		{StateDeviceAttached, "device-attached"},
		{StateDeviceDetached, "device-detached"},
		{StateEnum, "enum"},
		{StateUserInput, "user-input"},
		{StateClassRequest, "class-request"},
		{StateClass, "class"},
		{StateSuspend, "suspend"},
		{StateWakeup, "wakeup"},
		{StateError, "error"},
		{State(200), "state(200)"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			if got := tt.state.String(); got != tt.expected {
				t.Errorf("State.String() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestCtrlState_Done(t *testing.T) {
	tests := []struct {
		state CtrlState
		done  bool
	}{
		{CtrlSetup, false},
		{CtrlDataOut, false},
		{CtrlDataIn, false},
		{CtrlStatusOut, false},
		{CtrlStatusIn, false},
		{CtrlComplete, true},
		{CtrlStall, true},
		{CtrlError, true},
	}

	for _, tt := range tests {
		t.Run(tt.state.String(), func(t *testing.T) {
			if got := tt.state.Done(); got != tt.done {
				t.Errorf("CtrlState.Done() = %v, want %v", got, tt.done)
			}
		})
	}
}

func TestStatus_String(t *testing.T) {
	tests := []struct {
		got      string
		expected string
	}{
		{URBNotReady.String(), "not-ready"},
		{URBOK.String(), "ok"},
		{URBStatus(99).String(), "urb(99)"},
		{PipeBabbleError.String(), "babble"},
		{PipeState(99).String(), "pipe(99)"},
		{CtrlStatusOut.String(), "STATUS_OUT"},
		{CtrlState(99).String(), "ctrl(99)"},
		{EnumGetSerialNumberString.String(), "get-serial-number-string"},
	}

	for _, tt := range tests {
		if tt.got != tt.expected {
			t.Errorf("String() = %q, want %q", tt.got, tt.expected)
		}
	}
}

// =============================================================================
// Descriptor Tests
// =============================================================================

func TestParseDeviceDescriptor(t *testing.T) {
	data := []byte{
		18, DescriptorTypeDevice, 0x10, 0x01, 0x08, 0x06, 0x50, 8,
		0x34, 0x12, 0x78, 0x56, 0x00, 0x02, 1, 2, 0, 1,
	}
	var d DeviceDescriptor
	if !ParseDeviceDescriptor(data, &d) {
		t.Fatal("ParseDeviceDescriptor() = false")
	}
	if d.USBVersion != 0x0110 || d.VendorID != 0x1234 || d.ProductID != 0x5678 {
		t.Errorf("bcdUSB/VID/PID = %#04x/%#04x/%#04x", d.USBVersion, d.VendorID, d.ProductID)
	}
	if d.DeviceClass != 0x08 || d.MaxPacketSize0 != 8 || d.SerialNumberIndex != 0 {
		t.Errorf("class %d mps %d serial %d", d.DeviceClass, d.MaxPacketSize0, d.SerialNumberIndex)
	}

	var p DeviceDescriptor
	if !ParseDeviceDescriptor(data[:DeviceDescriptorPrefix], &p) {
		t.Fatal("prefix parse failed")
	}
	if p.MaxPacketSize0 != 8 || p.VendorID != 0 {
		t.Errorf("prefix: mps %d vid %#04x", p.MaxPacketSize0, p.VendorID)
	}
	if ParseDeviceDescriptor(data[:7], &p) {
		t.Error("7 bytes accepted")
	}
}

// msc25 is a minimal mass-storage configuration: one interface and one
// bulk endpoint.
var msc25 = []byte{
	9, DescriptorTypeConfiguration, 25, 0, 1, 1, 0, 0xC0, 50,
	9, DescriptorTypeInterface, 0, 0, 1, 0x08, 0x06, 0x50, 0,
	7, DescriptorTypeEndpoint, 0x81, EndpointTypeBulk, 0x40, 0x00, 0,
}

func TestParseConfiguration(t *testing.T) {
	var cfg ConfigurationDescriptor
	var itfs [MaxInterfaces]Interface
	n := ParseConfiguration(msc25, &cfg, &itfs)

	if n != 1 {
		t.Fatalf("interfaces = %d, want 1", n)
	}
	if cfg.TotalLength != 25 || cfg.ConfigurationValue != 1 {
		t.Errorf("total %d value %d", cfg.TotalLength, cfg.ConfigurationValue)
	}
	itf := &itfs[0]
	if itf.Descriptor.InterfaceClass != 0x08 || itf.NumEndpoints != 1 {
		t.Errorf("class %#x endpoints %d", itf.Descriptor.InterfaceClass, itf.NumEndpoints)
	}
	ep := itf.Endpoint(EndpointTypeBulk, true)
	if ep == nil {
		t.Fatal("bulk IN endpoint missing")
	}
	if ep.EndpointAddress != 0x81 || ep.MaxPacketSize != 64 || ep.Number() != 1 {
		t.Errorf("endpoint %#x mps %d", ep.EndpointAddress, ep.MaxPacketSize)
	}
	if itf.Endpoint(EndpointTypeBulk, false) != nil {
		t.Error("found a bulk OUT endpoint")
	}
}

func TestParseConfiguration_Limits(t *testing.T) {
	data := []byte{9, DescriptorTypeConfiguration, 0, 0, 11, 1, 0, 0x80, 50}
	for i := 0; i < MaxInterfaces; i++ {
		data = append(data, 9, DescriptorTypeInterface, byte(i), 0, 1, 3, 0, 0, 0)
		data = append(data, 7, DescriptorTypeEndpoint, 0x81+byte(i), EndpointTypeInterrupt, 8, 0, 10)
	}
	// the last stored interface overflows its endpoint table
	for i := 0; i < MaxEndpoints; i++ {
		data = append(data, 7, DescriptorTypeEndpoint, 0x01+byte(i), EndpointTypeBulk, 64, 0, 0)
	}
	// an interface past the table, with an endpoint of its own
	data = append(data, 9, DescriptorTypeInterface, MaxInterfaces, 0, 1, 3, 0, 0, 0)
	data = append(data, 7, DescriptorTypeEndpoint, 0x8F, EndpointTypeInterrupt, 8, 0, 10)
	data[2] = byte(len(data))
	data[3] = byte(len(data) >> 8)

	var cfg ConfigurationDescriptor
	var itfs [MaxInterfaces]Interface
	if n := ParseConfiguration(data, &cfg, &itfs); n != MaxInterfaces {
		t.Errorf("interfaces = %d, want %d", n, MaxInterfaces)
	}
	for i := 0; i < MaxInterfaces-1; i++ {
		itf := &itfs[i]
		if itf.NumEndpoints != 1 || itf.Endpoints[0].EndpointAddress != 0x81+byte(i) {
			t.Errorf("interface %d: endpoints = %d, first = %#x", i, itf.NumEndpoints, itf.Endpoints[0].EndpointAddress)
		}
	}
	last := &itfs[MaxInterfaces-1]
	if last.NumEndpoints != MaxEndpoints {
		t.Errorf("last interface endpoints = %d, want %d", last.NumEndpoints, MaxEndpoints)
	}
	for i := 0; i < last.NumEndpoints; i++ {
		if last.Endpoints[i].EndpointAddress == 0x8F {
			t.Errorf("endpoint 0x8f of the dropped interface attached to interface %d", MaxInterfaces-1)
		}
	}
}

func TestParseConfiguration_Truncated(t *testing.T) {
	var cfg ConfigurationDescriptor
	var itfs [MaxInterfaces]Interface

	// wTotalLength larger than what was read
	if n := ParseConfiguration(msc25[:18], &cfg, &itfs); n != 1 {
		t.Errorf("interfaces = %d, want 1", n)
	}
	if itfs[0].NumEndpoints != 0 {
		t.Errorf("endpoints = %d, want 0", itfs[0].NumEndpoints)
	}
	// zero length byte stops the walk
	bad := append([]byte(nil), msc25...)
	bad[9] = 0
	if n := ParseConfiguration(bad, &cfg, &itfs); n != 0 {
		t.Errorf("interfaces = %d, want 0", n)
	}
	if n := ParseConfiguration(msc25[:5], &cfg, &itfs); n != 0 {
		t.Errorf("short header: interfaces = %d", n)
	}
}

func TestParseString(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		expected string
	}{
		{"ascii", []byte{10, DescriptorTypeString, 'G', 0, 'e', 0, 'e', 0, 'h', 0}, "Geeh"},
		{"unicode", []byte{4, DescriptorTypeString, 0xAC, 0x20}, "€"},
		{"length byte bounds", []byte{4, DescriptorTypeString, 'a', 0, 'b', 0}, "a"},
		{"wrong type", []byte{4, DescriptorTypeDevice, 'a', 0}, ""},
		{"empty", []byte{2, DescriptorTypeString}, ""},
		{"too short", []byte{2}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ParseString(tt.data); got != tt.expected {
				t.Errorf("ParseString() = %q, want %q", got, tt.expected)
			}
		})
	}
}

// =============================================================================
// Request Tests
// =============================================================================

func TestRequest_Bytes(t *testing.T) {
	r := GetDescriptorRequest(DescriptorTypeString, 2, 255)
	want := [RequestSize]byte{0x80, 0x06, 0x02, 0x03, 0x09, 0x04, 0xFF, 0x00}
	if got := r.Bytes(); got != want {
		t.Errorf("Bytes() = % x, want % x", got, want)
	}

	var back Request
	if !ParseRequest(want[:], &back) || back != r {
		t.Errorf("ParseRequest() = %+v, want %+v", back, r)
	}
	if ParseRequest(want[:7], &back) {
		t.Error("7 bytes accepted")
	}
	if n := r.MarshalTo(make([]byte, 4)); n != 0 {
		t.Errorf("MarshalTo(short) = %d", n)
	}
}

func TestRequestBuilders(t *testing.T) {
	tests := []struct {
		name     string
		req      Request
		expected Request
	}{
		{
			"set address", SetAddressRequest(1),
			Request{RequestType: 0x00, Request: RequestSetAddress, Value: 1},
		},
		{
			"device descriptor", GetDescriptorRequest(DescriptorTypeDevice, 0, 8),
			Request{RequestType: 0x80, Request: RequestGetDescriptor, Value: 0x0100, Length: 8},
		},
		{
			"set configuration", SetConfigurationRequest(2),
			Request{RequestType: 0x00, Request: RequestSetConfiguration, Value: 2},
		},
		{
			"get configuration", GetConfigurationRequest(),
			Request{RequestType: 0x80, Request: RequestGetConfiguration, Length: 1},
		},
		{
			"get interface", GetInterfaceRequest(3),
			Request{RequestType: 0x81, Request: RequestGetInterface, Index: 3, Length: 1},
		},
		{
			"set interface", SetInterfaceRequest(1, 2),
			Request{RequestType: 0x01, Request: RequestSetInterface, Value: 2, Index: 1},
		},
		{
			"device status", GetStatusRequest(RequestTypeDevice, 7),
			Request{RequestType: 0x80, Request: RequestGetStatus, Length: 2},
		},
		{
			"endpoint status", GetStatusRequest(RequestTypeEndpoint, 0x81),
			Request{RequestType: 0x82, Request: RequestGetStatus, Index: 0x81, Length: 2},
		},
		{
			"set descriptor", SetDescriptorRequest(DescriptorTypeString, 1, 12),
			Request{RequestType: 0x00, Request: RequestSetDescriptor, Value: 0x0301, Length: 12},
		},
		{
			"remote wakeup", SetFeatureRequest(RequestTypeDevice, FeatureDeviceRemoteWakeup, 0),
			Request{RequestType: 0x00, Request: RequestSetFeature, Value: 1},
		},
		{
			"clear halt", ClearEndpointHaltRequest(0x02),
			Request{RequestType: 0x02, Request: RequestClearFeature, Index: 0x02},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.req != tt.expected {
				t.Errorf("got %+v, want %+v", tt.req, tt.expected)
			}
		})
	}
}

func TestRequest_Fields(t *testing.T) {
	r := Request{RequestType: RequestTypeIn | RequestTypeClass | RequestTypeInterface}
	if !r.IsIn() || r.Type() != RequestTypeClass || r.Recipient() != RequestTypeInterface {
		t.Errorf("in %v type %#x recipient %#x", r.IsIn(), r.Type(), r.Recipient())
	}
}

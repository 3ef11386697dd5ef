package host

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apm32sdk/usbotg/otg"
)

// runControl drives req to a terminal state and returns the distinct
// states it passed through.
func (x *harness) runControl(req Request, buf []byte) []CtrlState {
	x.t.Helper()
	var seen []CtrlState
	for i := 0; i < 500; i++ {
		st := x.h.ControlRequest(req, buf)
		if len(seen) == 0 || seen[len(seen)-1] != st {
			seen = append(seen, st)
		}
		if st.Done() {
			return seen
		}
		x.frame()
	}
	require.Fail(x.t, "control request did not finish", "states %v", seen)
	return seen
}

func TestHost_ControlPhases(t *testing.T) {
	tests := []struct {
		name string
		req  Request
		want []CtrlState
	}{
		{
			name: "read with data",
			req:  GetDescriptorRequest(DescriptorTypeDevice, 0, 18),
			want: []CtrlState{CtrlSetup, CtrlDataIn, CtrlStatusOut, CtrlComplete},
		},
		{
			name: "read without data",
			req:  Request{RequestType: RequestTypeIn | RequestTypeVendor, Request: 0x42},
			want: []CtrlState{CtrlSetup, CtrlStatusOut, CtrlComplete},
		},
		{
			name: "write with data",
			req: Request{
				RequestType: RequestTypeOut | RequestTypeClass | RequestTypeInterface,
				Request:     0x20,
				Length:      7,
			},
			want: []CtrlState{CtrlSetup, CtrlDataOut, CtrlStatusIn, CtrlComplete},
		},
		{
			name: "write without data",
			req:  SetConfigurationRequest(1),
			want: []CtrlState{CtrlSetup, CtrlStatusIn, CtrlComplete},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			x := newHarness(t)
			x.enumerate()
			buf := make([]byte, 64)
			got := x.runControl(tt.req, buf)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.req, x.fn.requests[len(x.fn.requests)-1])
			assert.Equal(t, XferStart, x.h.xfer)
		})
	}
}

func TestHost_ControlReadData(t *testing.T) {
	x := newHarness(t)
	x.enumerate()

	buf := make([]byte, 64)
	x.runControl(GetDescriptorRequest(DescriptorTypeConfiguration, 0, 39), buf)
	assert.Equal(t, x.fn.cfgDesc, buf[:39])
	assert.Equal(t, 39, x.h.TransferredBytes(x.h.Control().InChannel))
}

func TestHost_ControlShortBuffer(t *testing.T) {
	x := newHarness(t)
	x.enumerate()

	buf := make([]byte, 4)
	got := x.runControl(GetDescriptorRequest(DescriptorTypeDevice, 0, 18), buf)
	assert.Equal(t, CtrlComplete, got[len(got)-1])
	assert.Equal(t, x.fn.devDesc[:4], buf)
}

func TestHost_ControlStall(t *testing.T) {
	x := newHarness(t)
	x.enumerate()

	x.fn.stallGet[DescriptorTypeString] = 1
	got := x.runControl(GetDescriptorRequest(DescriptorTypeString, 1, 255), make([]byte, 255))
	assert.Equal(t, CtrlStall, got[len(got)-1])
	assert.Equal(t, 0, x.h.Control().ErrorCount())

	got = x.runControl(GetDescriptorRequest(DescriptorTypeString, 1, 255), make([]byte, 255))
	assert.Equal(t, CtrlComplete, got[len(got)-1])
}

func TestHost_ControlErrorRetries(t *testing.T) {
	tests := []struct {
		name   string
		fail   int
		want   CtrlState
		setups int
	}{
		{"one error", 1, CtrlComplete, 2},
		{"retry limit", CtrlErrorRetries, CtrlComplete, CtrlErrorRetries + 1},
		{"exhausted", CtrlErrorRetries + 1, CtrlError, CtrlErrorRetries + 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			x := newHarness(t)
			x.enumerate()

			before := len(x.fn.requests)
			x.fn.failIn = tt.fail
			got := x.runControl(GetDescriptorRequest(DescriptorTypeDevice, 0, 18), make([]byte, 18))
			assert.Equal(t, tt.want, got[len(got)-1])
			assert.Equal(t, tt.setups, len(x.fn.requests)-before)
			assert.Equal(t, 0, x.h.Control().ErrorCount())
		})
	}
}

func TestHost_ControlWriteData(t *testing.T) {
	x := newHarness(t)
	x.enumerate()

	req := Request{RequestType: RequestTypeOut | RequestTypeVendor, Request: 0x01, Length: 4}
	x.runControl(req, []byte{1, 2, 3, 4, 5, 6})
	assert.Equal(t, []byte{1, 2, 3, 4}, x.fn.ctrlOut, "data stage is cut to wLength")
	assert.Equal(t, uint8(otg.PidData1), x.fn.ctrlPID)
}

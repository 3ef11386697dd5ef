package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apm32sdk/usbotg/internal/sim"
	"github.com/apm32sdk/usbotg/otg"
)

const usbIDs = `314b  Geehy Semiconductor Co., Ltd.
	5720  APM32 Mass Storage
C 08  Mass Storage
	06  SCSI
`

// run executes the root command with args and returns what it printed.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	ids := filepath.Join(t.TempDir(), "usb.ids")
	require.NoError(t, os.WriteFile(ids, []byte(usbIDs), 0o644))

	cmd := newRootCommand()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(append([]string{"--usb-ids", ids}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func newImage(t *testing.T) string {
	t.Helper()
	img := make([]byte, 64*512)
	copy(img[512:], "APM32 disk image")
	path := filepath.Join(t.TempDir(), "disk.img")
	require.NoError(t, os.WriteFile(path, img, 0o644))
	return path
}

// =============================================================================
// enum
// =============================================================================

func TestEnum(t *testing.T) {
	tests := []struct {
		device string
		want   []string
	}{
		{kindMSC, []string{
			"ID 314b:5720 Geehy Semiconductor Co., Ltd. APM32 Mass Storage",
			"bInterfaceClass        8 Mass Storage",
			"bInterfaceSubClass     6 SCSI",
			"0x81  EP 1 IN",
			"iSerial                3 APM32F107",
		}},
		{kindCDC, []string{
			"iProduct               2 APM32 Virtual COM Port",
			"bInterfaceClass        2 Communications",
			"bInterfaceClass       10 CDC Data",
			"3 Interrupt",
		}},
		{kindKeyboard, []string{"Human Interface Device", "APM32 Keyboard"}},
		{kindMouse, []string{"Human Interface Device", "APM32 Mouse"}},
	}
	for _, tt := range tests {
		t.Run(tt.device, func(t *testing.T) {
			out, err := run(t, "enum", "--device", tt.device)
			require.NoError(t, err)
			assert.True(t, strings.HasPrefix(out, "Device 001: ID 314b:"), out)
			for _, w := range tt.want {
				assert.Contains(t, out, w)
			}
		})
	}
}

func TestEnum_UnknownDevice(t *testing.T) {
	_, err := run(t, "enum", "--device", "printer")
	assert.ErrorContains(t, err, `unknown device "printer"`)
}

// =============================================================================
// msc
// =============================================================================

func TestMSC_Info(t *testing.T) {
	out, err := run(t, "msc", "info", "--image", newImage(t))
	require.NoError(t, err)
	assert.Contains(t, out, "blocks 64\n")
	assert.Contains(t, out, "block size 512\n")
	assert.Contains(t, out, "write protected false\n")
}

func TestMSC_ReadWrite(t *testing.T) {
	img := newImage(t)

	out, err := run(t, "msc", "read", "1", "--image", img)
	require.NoError(t, err)
	assert.Contains(t, out, "|APM32 disk image|")
	assert.Equal(t, 512/16, strings.Count(out, "\n"))

	in := filepath.Join(t.TempDir(), "in")
	require.NoError(t, os.WriteFile(in, []byte("hello"), 0o644))
	out, err = run(t, "msc", "write", "3", in, "--image", img)
	require.NoError(t, err)
	assert.Equal(t, "wrote 1 blocks at lba 3\n", out)

	raw, err := os.ReadFile(img)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), raw[3*512:3*512+5])

	out, err = run(t, "msc", "read", "2", "2", "--image", img)
	require.NoError(t, err)
	assert.Contains(t, out, "|hello...........|")
}

func TestMSC_Errors(t *testing.T) {
	img := newImage(t)
	in := filepath.Join(t.TempDir(), "in")
	require.NoError(t, os.WriteFile(in, []byte("x"), 0o644))

	_, err := run(t, "msc", "read", "64", "--image", img)
	assert.ErrorContains(t, err, "past end of disk")

	_, err = run(t, "msc", "read", "zero")
	assert.ErrorContains(t, err, "invalid lba")

	_, err = run(t, "msc", "write", "0", in, "--read-only")
	assert.ErrorContains(t, err, "command fail")
}

// =============================================================================
// hid
// =============================================================================

func TestHID_Keyboard(t *testing.T) {
	out, err := run(t, "hid", "--device", "keyboard", "--text", "aB")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"   1  0000040000000000",
		"   2  0000000000000000",
		"   3  0200050000000000",
		"   4  0000000000000000",
	}, strings.Split(strings.TrimSpace(out), "\n"))
}

func TestHID_Mouse(t *testing.T) {
	out, err := run(t, "hid", "--reports", "4")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 4)
	assert.True(t, strings.HasPrefix(lines[0], "   1  00040000  "), lines[0])
	assert.True(t, strings.HasPrefix(lines[2], "   3  01fc0000  "), lines[2])
}

func TestHID_WrongDevice(t *testing.T) {
	_, err := run(t, "hid", "--device", "msc")
	assert.Error(t, err)
}

// =============================================================================
// cdc
// =============================================================================

func TestCDC_Echo(t *testing.T) {
	out, err := run(t, "cdc", "--baud", "9600", "--text", "AT+GMR")
	require.NoError(t, err)
	assert.Equal(t, "line coding 9600 8N1\necho \"AT+GMR\"\n", out)
}

func TestCDC_InvalidBaud(t *testing.T) {
	_, err := run(t, "cdc", "--baud", "0")
	assert.ErrorContains(t, err, "invalid baud rate 0")
}

// =============================================================================
// trace and snapshot
// =============================================================================

func TestTrace(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trace.cbor")
	_, err := run(t, "trace", "--device", "msc", "-o", path)
	require.NoError(t, err)

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	tr, err := sim.DecodeTrace(b)
	require.NoError(t, err)
	assert.Positive(t, tr.Len())
	assert.Equal(t, otg.TokenSetup, tr.Records[0].Token)

	out, err := run(t, "trace", "show", path)
	require.NoError(t, err)
	assert.Equal(t, tr.Len(), strings.Count(out, "\n"))
	assert.Contains(t, out, "SETUP")
}

func TestTrace_Text(t *testing.T) {
	out, err := run(t, "trace", "--device", "cdc", "--text", "--frames", "0")
	require.NoError(t, err)
	assert.Contains(t, out, "SETUP")
	assert.Contains(t, out, "ACK")
}

func TestSnapshot(t *testing.T) {
	for _, core := range []string{"host", "device"} {
		t.Run(core, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "snap.cbor")
			_, err := run(t, "snapshot", "--core", core, "-o", path)
			require.NoError(t, err)

			b, err := os.ReadFile(path)
			require.NoError(t, err)
			s, err := otg.DecodeSnapshot(b)
			require.NoError(t, err)
			assert.Equal(t, core, s.Mode.String())

			out, err := run(t, "snapshot", "show", path)
			require.NoError(t, err)
			assert.True(t, strings.HasPrefix(out, "mode "+core), out)
			assert.Contains(t, out, "GINTMASK")
		})
	}

	_, err := run(t, "snapshot", "--core", "hub")
	assert.ErrorContains(t, err, "core must be host or device")
}

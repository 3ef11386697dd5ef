package main

import (
	"strings"

	"github.com/pkg/errors"

	"github.com/apm32sdk/usbotg/device"
	"github.com/apm32sdk/usbotg/device/class/cdc"
	"github.com/apm32sdk/usbotg/device/class/hid"
	"github.com/apm32sdk/usbotg/device/class/msc"
)

// Simulated device kinds.
const (
	kindMSC      = "msc"
	kindKeyboard = "keyboard"
	kindMouse    = "mouse"
	kindCDC      = "cdc"
)

var kinds = []string{kindMSC, kindKeyboard, kindMouse, kindCDC}

// Identity of the simulated devices.
const (
	vendorID     = 0x314B
	manufacturer = "Geehy"
	serial       = "APM32F107"
)

// defaultBlocks is the size of the RAM disk used when no image is given.
const defaultBlocks = 256

// function is one simulated device: its descriptors and the class driver
// serving them.
type function struct {
	kind  string
	desc  *device.Descriptors
	class device.Class

	msc *msc.Class
	hid *hid.Class
	acm *cdc.ACM
}

// newFunction builds a device of the given kind. disk backs the mass
// storage function and is ignored by the others.
func newFunction(kind string, disk msc.Storage) (*function, error) {
	fn := &function{kind: kind}
	switch kind {
	case kindMSC:
		fn.msc = msc.New(disk)
		fn.desc = fn.msc.Descriptors(vendorID, 0x5720, manufacturer, "APM32 Mass Storage", serial)
		fn.class = fn.msc
	case kindKeyboard:
		fn.hid = hid.NewKeyboard()
		fn.desc = fn.hid.Descriptors(vendorID, 0x5722, manufacturer, "APM32 Keyboard", serial)
		fn.class = fn.hid
	case kindMouse:
		fn.hid = hid.NewMouse()
		fn.desc = fn.hid.Descriptors(vendorID, 0x5721, manufacturer, "APM32 Mouse", serial)
		fn.class = fn.hid
	case kindCDC:
		fn.acm = cdc.NewACM(cdc.WithEcho())
		fn.desc = fn.acm.Descriptors(vendorID, 0x5740, manufacturer, "APM32 Virtual COM Port", serial)
		fn.class = fn.acm
	default:
		return nil, errors.Errorf("unknown device %q, want one of %s", kind, strings.Join(kinds, ", "))
	}
	return fn, nil
}

// ramFunction builds a device of the given kind with a RAM disk.
func ramFunction(kind string) (*function, error) {
	return newFunction(kind, msc.NewMemoryStorage(defaultBlocks, msc.DefaultBlockSize))
}

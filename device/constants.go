package device

import (
	"fmt"

	"github.com/apm32sdk/usbotg/otg"
)

// Limits of the device stack.
const (
	// MaxEndpoints is the number of endpoints per direction, EP0 included.
	MaxEndpoints = otg.DeviceEndpoints

	// MaxStrings is the number of string descriptor slots.
	MaxStrings = 16

	// Ep0MaxPacketSize is the packet size of the control endpoint.
	Ep0MaxPacketSize = 64

	// setupPackets is the number of back-to-back SETUP packets EP0 accepts.
	setupPackets = 3
)

// State is the USB device state (USB 2.0 section 9.1).
type State uint8

// Device states.
const (
	StateDefault    State = iota // Reset, answering on address 0
	StateAddress                 // Address assigned
	StateConfigured              // Configuration selected
	StateSuspended               // Bus suspended
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateDefault:
		return "default"
	case StateAddress:
		return "address"
	case StateConfigured:
		return "configured"
	case StateSuspended:
		return "suspended"
	default:
		return fmt.Sprintf("state(%d)", s)
	}
}

// CtrlState is the phase of the control endpoint.
type CtrlState uint8

// Control endpoint phases.
const (
	CtrlSetup CtrlState = iota
	CtrlInData
	CtrlOutData
	CtrlInStatus
	CtrlOutStatus
	CtrlStall
)

// String returns the phase name.
func (s CtrlState) String() string {
	switch s {
	case CtrlSetup:
		return "setup"
	case CtrlInData:
		return "in-data"
	case CtrlOutData:
		return "out-data"
	case CtrlInStatus:
		return "in-status"
	case CtrlOutStatus:
		return "out-status"
	case CtrlStall:
		return "stall"
	default:
		return fmt.Sprintf("ctrl(%d)", s)
	}
}

// Endpoint transfer types.
const (
	EndpointTypeControl     = otg.EpTypeControl
	EndpointTypeIsochronous = otg.EpTypeIso
	EndpointTypeBulk        = otg.EpTypeBulk
	EndpointTypeInterrupt   = otg.EpTypeInterrupt
)

// Endpoint address helpers.
const (
	EndpointDirIn  = 0x80
	EndpointNumber = 0x0F
)

// globalInterrupts are the core interrupts the device services.
const globalInterrupts = otg.GintUSBRST | otg.GintENUMD | otg.GintUSBSUS |
	otg.GintRWAKE | otg.GintSOF | otg.GintRXFNONE | otg.GintINEP |
	otg.GintONEP | otg.GintMMIS | otg.GintOTG | otg.GintSREQ

// Endpoint interrupt enables.
const (
	outEndpointInterrupts = otg.DoepintTSFCMP | otg.DoepintSETPCMP | otg.DoepintEPDIS
	inEndpointInterrupts  = otg.DiepintTSFCMP | otg.DiepintEPDIS | otg.DiepintTO
)

// Test mode selectors for DCTRL.TESTSEL (SET_FEATURE TEST_MODE).
const (
	TestModeOff         = 0
	TestModeJ           = 1
	TestModeK           = 2
	TestModeSE0NAK      = 3
	TestModePacket      = 4
	TestModeForceEnable = 5
)

package hal

import (
	"time"

	"github.com/apm32sdk/usbotg/otg"
	"github.com/apm32sdk/usbotg/pkg/reg"
)

// Controller is the register-level view of an OTG core in device mode.
//
// Drivers program the register file returned by Registers and move packet
// data through the FIFO methods. Summary registers (GCINT, DAEPINT,
// DITXFSTS) are current after IntStatus, PopRxStatus and WritePacket.
// [otg.Core] implements Controller.
type Controller interface {
	// Registers returns the register file.
	Registers() *otg.Registers

	// Config returns the FIFO and clock configuration of the core.
	Config() otg.Config

	// IntStatus returns GCINT & GINTMASK.
	IntStatus() uint32

	// InEndpointIntStatus returns the unmasked interrupts of IN endpoint
	// ep, including TXFE when DIEIMASK enables it.
	InEndpointIntStatus(ep int) uint32

	// OutEndpointIntStatus returns the unmasked interrupts of OUT
	// endpoint ep.
	OutEndpointIntStatus(ep int) uint32

	// PopRxStatus pops the next receive FIFO status word.
	PopRxStatus() uint32

	// ReadPacket drains len(dst) bytes announced by the last status word.
	ReadPacket(dst []byte)

	// WritePacket pushes src into the transmit FIFO of IN endpoint ep.
	WritePacket(ep int, src []byte)

	// Delay busy-waits for d.
	Delay(d time.Duration)
}

// DeviceStatus is the decoded state of DSTS.
type DeviceStatus struct {
	Suspended bool   // Bus is suspended
	Speed     uint8  // Enumerated speed (otg.EnumSpeed*)
	Frame     uint16 // Frame number of the last SOF
}

// ReadDeviceStatus decodes DSTS.
func ReadDeviceStatus(r *otg.Registers) DeviceStatus {
	s := r.D.DSTS
	return DeviceStatus{
		Suspended: s&otg.DstsSUSSTS != 0,
		Speed:     uint8(reg.Get(&s, otg.DstsENUMSPD)),
		Frame:     uint16(reg.Get(&s, otg.DstsSOFNUM)),
	}
}

// FullSpeed reports whether the enumerated speed is full speed on either
// PHY clock.
func (s DeviceStatus) FullSpeed() bool {
	return s.Speed == otg.EnumSpeedFull30 || s.Speed == otg.EnumSpeedFull48
}

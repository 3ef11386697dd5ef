package hal

import (
	"time"

	"github.com/apm32sdk/usbotg/otg"
	"github.com/apm32sdk/usbotg/pkg/reg"
)

// Controller is the register-level view of an OTG core in host mode.
//
// Drivers program the register file returned by Registers and move packet
// data through the FIFO methods. Summary registers (GCINT, HACHINT,
// GNPTXFQSTS, HPTXSTS) are current after IntStatus, PopRxStatus and
// WritePacket. [otg.Core] implements Controller.
type Controller interface {
	// Registers returns the register file.
	Registers() *otg.Registers

	// Config returns the FIFO and clock configuration of the core.
	Config() otg.Config

	// IntStatus returns GCINT & GINTMASK.
	IntStatus() uint32

	// PopRxStatus pops the next receive FIFO status word.
	PopRxStatus() uint32

	// ReadPacket drains len(dst) bytes announced by the last status word.
	ReadPacket(dst []byte)

	// WritePacket pushes src into the transmit FIFO of channel ch.
	WritePacket(ch int, src []byte)

	// Delay busy-waits for d.
	Delay(d time.Duration)
}

// PortStatus is the decoded state of the root port.
type PortStatus struct {
	Connected     bool      // Device is connected
	Enabled       bool      // Port is enabled
	Suspended     bool      // Port is suspended
	OverCurrent   bool      // Over-current condition detected
	Reset         bool      // Port is being reset
	PowerOn       bool      // Port has power applied
	Speed         otg.Speed // Connected device speed
	ConnectChange bool      // Connection detected since last acknowledge
	EnableChange  bool      // Enable status has changed
}

// ReadPortStatus decodes HPORTCSTS.
func ReadPortStatus(r *otg.Registers) PortStatus {
	p := r.H.HPORTCSTS
	return PortStatus{
		Connected:     p&otg.PortPCNNTFLG != 0,
		Enabled:       p&otg.PortPEN != 0,
		Suspended:     p&otg.PortPSUS != 0,
		OverCurrent:   p&otg.PortPOVC != 0,
		Reset:         p&otg.PortPRST != 0,
		PowerOn:       p&otg.PortPP != 0,
		Speed:         otg.Speed(reg.Get(&p, otg.PortPSPDSEL)),
		ConnectChange: p&otg.PortPCINTFLG != 0,
		EnableChange:  p&otg.PortPENCHG != 0,
	}
}

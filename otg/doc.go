// Package otg models the register interface of a DWC-style USB OTG core
// as found on APM32F10x parts.
//
// The [Registers] file is plain storage programmed by the host and device
// drivers through package reg. A [Core] brings it to life: it owns the
// receive FIFO status queue, the per-channel and per-endpoint transmit
// FIFOs, the host port and the frame counter. Drivers move packets with
// [Core.ReadPacket] and [Core.WritePacket], pop receive status with
// [Core.PopRxStatus], and read pending interrupts with [Core.IntStatus].
//
// A host-mode core transacts with the [Function] attached to its port.
// A device-mode core is itself a Function, so two cores can be wired back
// to back:
//
//	h := otg.New(otg.WithMode(otg.ModeHost))
//	d := otg.New(otg.WithMode(otg.ModeDevice))
//	h.Attach(d, otg.SpeedFull)
//	for i := 0; i < 100; i++ {
//	    h.Step()
//	}
//
// Time is virtual. [Core.Step] covers one frame and [Core.Delay] covers a
// driver busy-wait, so simulations are deterministic.
package otg

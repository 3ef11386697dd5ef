// Package reg provides bit-field accessors for 32-bit hardware registers.
//
// Registers are plain uint32 values. A [Field] names a contiguous run of
// bits by position and width; single-bit flags are ordinary masks used with
// [SetMask] and [ClearMask]. Every accessor reads and writes through a
// pointer so the same helpers serve memory-mapped registers and the
// in-memory register file of the OTG core model.
package reg

// Field is a contiguous bit field inside a 32-bit register.
type Field struct {
	Pos   uint8 // least significant bit
	Width uint8 // number of bits, 1-32
}

// Bit returns the single-bit field at pos.
func Bit(pos uint8) Field {
	return Field{Pos: pos, Width: 1}
}

// Mask returns the field mask shifted into register position.
func (f Field) Mask() uint32 {
	if f.Width >= 32 {
		return ^uint32(0)
	}
	return ((uint32(1) << f.Width) - 1) << f.Pos
}

// Max returns the largest value the field can hold.
func (f Field) Max() uint32 {
	return f.Mask() >> f.Pos
}

// Get extracts the field from v.
func (f Field) Get(v uint32) uint32 {
	return (v & f.Mask()) >> f.Pos
}

// Put returns v with the field replaced by x. Bits of x beyond the field
// width are discarded.
func (f Field) Put(v, x uint32) uint32 {
	return (v &^ f.Mask()) | ((x << f.Pos) & f.Mask())
}

// Get reads field f of the register at r.
func Get(r *uint32, f Field) uint32 {
	return f.Get(*r)
}

// SetN writes x into field f of the register at r.
func SetN(r *uint32, f Field, x uint32) {
	*r = f.Put(*r, x)
}

// Set sets bit pos of the register at r.
func Set(r *uint32, pos uint8) {
	*r |= 1 << pos
}

// Clear clears bit pos of the register at r.
func Clear(r *uint32, pos uint8) {
	*r &^= 1 << pos
}

// IsSet reports whether bit pos of the register at r is set.
func IsSet(r *uint32, pos uint8) bool {
	return *r&(1<<pos) != 0
}

// SetMask sets every bit of mask in the register at r.
func SetMask(r *uint32, mask uint32) {
	*r |= mask
}

// ClearMask clears every bit of mask in the register at r. Write-one-to-clear
// interrupt registers of the model use this for acknowledgement.
func ClearMask(r *uint32, mask uint32) {
	*r &^= mask
}

// Any reports whether any bit of mask is set in the register at r.
func Any(r *uint32, mask uint32) bool {
	return *r&mask != 0
}

// WaitFor polls field f of r until it equals x, calling poll between reads,
// for at most tries iterations. It reports whether the value was observed.
func WaitFor(tries int, r *uint32, f Field, x uint32, poll func()) bool {
	for i := 0; i < tries; i++ {
		if Get(r, f) == x {
			return true
		}
		if poll != nil {
			poll()
		}
	}
	return Get(r, f) == x
}

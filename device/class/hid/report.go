package hid

// KeyboardReportDescriptor describes the boot keyboard report: a modifier
// byte, a reserved byte and six key codes, with a five-LED output report.
var KeyboardReportDescriptor = []byte{
	0x05, 0x01, // usage page: generic desktop
	0x09, 0x06, // usage: keyboard
	0xA1, 0x01, // collection: application
	0x05, 0x07, // usage page: key codes
	0x19, 0xE0, 0x29, 0xE7, // usages 224..231
	0x15, 0x00, 0x25, 0x01, // logical 0..1
	0x75, 0x01, 0x95, 0x08, // 8 x 1 bit
	0x81, 0x02, // input: modifiers
	0x75, 0x08, 0x95, 0x01, // 1 x 8 bits
	0x81, 0x01, // input: reserved
	0x05, 0x08, // usage page: LEDs
	0x19, 0x01, 0x29, 0x05, // usages 1..5
	0x75, 0x01, 0x95, 0x05, // 5 x 1 bit
	0x91, 0x02, // output: LEDs
	0x75, 0x03, 0x95, 0x01, // 1 x 3 bits
	0x91, 0x01, // output: padding
	0x05, 0x07, // usage page: key codes
	0x19, 0x00, 0x29, 0x65, // usages 0..101
	0x15, 0x00, 0x25, 0x65, // logical 0..101
	0x75, 0x08, 0x95, 0x06, // 6 x 8 bits
	0x81, 0x00, // input: key array
	0xC0, // end collection
}

// MouseReportDescriptor describes a three-button mouse report with X, Y
// and wheel deltas. The first three bytes match the boot mouse report.
var MouseReportDescriptor = []byte{
	0x05, 0x01, // usage page: generic desktop
	0x09, 0x02, // usage: mouse
	0xA1, 0x01, // collection: application
	0x09, 0x01, // usage: pointer
	0xA1, 0x00, // collection: physical
	0x05, 0x09, // usage page: buttons
	0x19, 0x01, 0x29, 0x03, // buttons 1..3
	0x15, 0x00, 0x25, 0x01, // logical 0..1
	0x75, 0x01, 0x95, 0x03, // 3 x 1 bit
	0x81, 0x02, // input: buttons
	0x75, 0x05, 0x95, 0x01, // 1 x 5 bits
	0x81, 0x01, // input: padding
	0x05, 0x01, // usage page: generic desktop
	0x09, 0x30, 0x09, 0x31, 0x09, 0x38, // X, Y, wheel
	0x15, 0x81, 0x25, 0x7F, // logical -127..127
	0x75, 0x08, 0x95, 0x03, // 3 x 8 bits
	0x81, 0x06, // input: relative
	0xC0, // end collection
	0xC0, // end collection
}

// Report sizes.
const (
	KeyboardReportSize = 8
	MouseReportSize    = 4
)

// Keyboard modifier bits.
const (
	ModLeftCtrl   = 1 << 0
	ModLeftShift  = 1 << 1
	ModLeftAlt    = 1 << 2
	ModLeftGUI    = 1 << 3
	ModRightCtrl  = 1 << 4
	ModRightShift = 1 << 5
	ModRightAlt   = 1 << 6
	ModRightGUI   = 1 << 7
)

// Keyboard LED bits of the output report.
const (
	LEDNumLock    = 1 << 0
	LEDCapsLock   = 1 << 1
	LEDScrollLock = 1 << 2
)

// Key codes from the keyboard usage page.
const (
	KeyNone      = 0x00
	KeyA         = 0x04
	Key1         = 0x1E
	Key0         = 0x27
	KeyEnter     = 0x28
	KeyEscape    = 0x29
	KeyBackspace = 0x2A
	KeyTab       = 0x2B
	KeySpace     = 0x2C
	KeyMinus     = 0x2D
	KeyDot       = 0x37
)

// Mouse buttons.
const (
	ButtonLeft   = 1 << 0
	ButtonRight  = 1 << 1
	ButtonMiddle = 1 << 2
)

// Keycode maps a printable ASCII character to its key code and the
// modifiers that produce it on a US layout.
func Keycode(r rune) (code, mods uint8, ok bool) {
	switch {
	case r >= 'a' && r <= 'z':
		return KeyA + uint8(r-'a'), 0, true
	case r >= 'A' && r <= 'Z':
		return KeyA + uint8(r-'A'), ModLeftShift, true
	case r >= '1' && r <= '9':
		return Key1 + uint8(r-'1'), 0, true
	case r == '0':
		return Key0, 0, true
	case r == ' ':
		return KeySpace, 0, true
	case r == '\n':
		return KeyEnter, 0, true
	case r == '\t':
		return KeyTab, 0, true
	case r == '-':
		return KeyMinus, 0, true
	case r == '.':
		return KeyDot, 0, true
	}
	return KeyNone, 0, false
}

// KeyboardReport is a boot keyboard input report.
type KeyboardReport struct {
	Modifiers uint8
	Keys      [6]uint8
}

// AppendTo appends the 8 report bytes to b.
func (r *KeyboardReport) AppendTo(b []byte) []byte {
	b = append(b, r.Modifiers, 0)
	return append(b, r.Keys[:]...)
}

// Press adds key to the report. It returns false when six keys are
// already down.
func (r *KeyboardReport) Press(key uint8) bool {
	for i, k := range r.Keys {
		switch k {
		case key:
			return true
		case KeyNone:
			r.Keys[i] = key
			return true
		}
	}
	return false
}

// Release removes key from the report.
func (r *KeyboardReport) Release(key uint8) {
	for i, k := range r.Keys {
		if k == key {
			copy(r.Keys[i:], r.Keys[i+1:])
			r.Keys[len(r.Keys)-1] = KeyNone
			return
		}
	}
}

// MouseReport is a mouse input report.
type MouseReport struct {
	Buttons uint8
	X, Y    int8
	Wheel   int8
}

// AppendTo appends the 4 report bytes to b.
func (r *MouseReport) AppendTo(b []byte) []byte {
	return append(b, r.Buttons, byte(r.X), byte(r.Y), byte(r.Wheel))
}

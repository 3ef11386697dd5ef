package hid

import "strings"

// Mouse button bits of a boot mouse report.
const (
	ButtonLeft   = 0x01
	ButtonRight  = 0x02
	ButtonMiddle = 0x04
)

// Mouse is a decoded boot protocol mouse report.
type Mouse struct {
	Buttons uint8
	X       int8
	Y       int8
	Wheel   int8
}

// ParseMouse decodes a boot mouse report. It returns false if the report
// is shorter than three bytes.
func ParseMouse(report []byte, out *Mouse) bool {
	if len(report) < 3 {
		return false
	}
	out.Buttons = report[0]
	out.X = int8(report[1])
	out.Y = int8(report[2])
	out.Wheel = 0
	if len(report) > 3 {
		out.Wheel = int8(report[3])
	}
	return true
}

// Pressed reports whether every button in mask is down.
func (m Mouse) Pressed(mask uint8) bool { return m.Buttons&mask == mask }

// TrackWidth is the number of positions of a Track.
const TrackWidth = 18

// Track follows the horizontal movement of a mouse one position per
// report, clamped to TrackWidth positions.
type Track struct {
	Pos int
}

// Move applies the horizontal direction of m.
func (t *Track) Move(m Mouse) {
	switch {
	case m.X < 0 && t.Pos > 0:
		t.Pos--
	case m.X > 0 && t.Pos < TrackWidth-1:
		t.Pos++
	}
}

// Render draws the track for m: the left and right button at either end
// and the cursor at its position.
func (t *Track) Render(m Mouse) string {
	var b strings.Builder
	b.Grow(TrackWidth + 2)
	b.WriteByte(buttonGlyph(m.Pressed(ButtonLeft)))
	for i := 0; i < TrackWidth; i++ {
		if i == t.Pos {
			b.WriteByte('|')
		} else {
			b.WriteByte('.')
		}
	}
	b.WriteByte(buttonGlyph(m.Pressed(ButtonRight)))
	return b.String()
}

func buttonGlyph(down bool) byte {
	if down {
		return 'o'
	}
	return '.'
}

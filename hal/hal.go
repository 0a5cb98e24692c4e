package hal

import "picovga/vga"

// Logger writes newline-delimited log lines.
type Logger interface {
	WriteLineString(s string)
	WriteLineBytes(b []byte)
}

// LED is a minimal output pin abstraction.
type LED interface {
	High()
	Low()
}

// KeyCode is a minimal key identifier.
type KeyCode uint16

const (
	KeyUnknown KeyCode = iota
	KeyLeft
	KeyRight
	KeyEnter
	KeyEscape
)

// KeyEvent is a keyboard event.
type KeyEvent struct {
	Code  KeyCode
	Press bool
	Rune  rune
}

// Keyboard provides key events (best-effort on each platform).
type Keyboard interface {
	Events() <-chan KeyEvent
}

// Input provides access to input devices (if available).
type Input interface {
	Keyboard() Keyboard
}

// Time provides the vertical blank tick stream: one tick per scanned frame.
type Time interface {
	Ticks() <-chan uint64
}

// HAL provides the only contact point between the app and the outside world.
type HAL interface {
	Logger() Logger
	LED() LED
	Display() *vga.Display
	Pins() vga.Pins
	Order() vga.BitOrder
	Input() Input
	Time() Time
}

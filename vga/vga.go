// Package vga drives a 320x240, 3-bit color VGA signal from PIO timing
// generators fed by a pair of self-rearming DMA channels.
//
// Three PIO state machines share one block: hsync produces line timing and
// raises IRQ 0 per line, vsync counts lines and raises IRQ 1 at the start of
// each active line, and rgb shifts one framebuffer byte per pixel onto the
// color pins while toggling the pixel clock. DMA channel A streams the
// framebuffer into the rgb TX FIFO; when it completes it chains to channel B,
// which rewrites A's read address from the origin cell and chains back,
// restarting A. Once armed the loop runs with no CPU involvement.
//
// A third DMA channel is kept for bulk fills and copies into the framebuffer.
package vga

import (
	"errors"
	"image/color"
	"math/bits"
)

// Frame geometry.
const (
	Width    = 320
	Height   = 240
	FrameLen = Width * Height
)

// Timing seeds pushed into the generators' TX FIFOs before they start.
const (
	// ClockPulse is the sync pulse width in pixel clocks.
	ClockPulse = 10
	// HActive is active plus front porch minus one, less one cycle for the mov.
	HActive = 339
	// VActivePlusFront is the vertical counterpart of HActive.
	VActivePlusFront = 243
	// VActiveSeed is the vertical seed actually loaded: active lines minus one.
	VActiveSeed = 239
	// RGBActive is the number of pixels per line minus one.
	RGBActive = 319
)

// Derived timing for the default seeds, in system clock cycles.
const (
	CyclesPerPixel = 3
	CyclesPerLine  = 1 + (HActive+1)*CyclesPerPixel + 3*ClockPulse + 3*ClockPulse + 1
	LinesPerFrame  = (VActiveSeed + 1) + vsyncFrontPorch + vsyncPulse + vsyncBackPorch
	CyclesPerFrame = CyclesPerLine * LinesPerFrame

	// SystemClockHz is clk_sys at reset; the generators run undivided.
	SystemClockHz = 125_000_000

	vsyncFrontPorch = 4
	vsyncPulse      = 2
	vsyncBackPorch  = 14
)

// Color is a 3-bit color index as it appears on the color pins.
type Color uint8

// Named colors for the BGR wiring, where the red pin carries bit 2 and blue
// bit 0. Use BitOrder.Encode for other wirings.
const (
	Black   Color = 0b000
	Red     Color = 0b100
	Green   Color = 0b010
	Yellow  Color = 0b110
	Blue    Color = 0b001
	Magenta Color = 0b101
	Cyan    Color = 0b011
	White   Color = 0b111
)

// Pack replicates c into both 3-bit halves of a framebuffer byte.
func Pack(c Color) byte {
	c &= 7
	return byte(c) | byte(c)<<3
}

// BitOrder describes which color pin carries which channel.
type BitOrder uint8

const (
	// BGR puts red on bit 2 and blue on bit 0.
	BGR BitOrder = iota
	// RGB puts red on bit 0 and blue on bit 2.
	RGB
)

func (o BitOrder) String() string {
	if o == RGB {
		return "rgb"
	}
	return "bgr"
}

// Encode returns the color index for the given channel states.
func (o BitOrder) Encode(r, g, b bool) Color {
	var c Color
	if g {
		c |= 0b010
	}
	lo, hi := r, b
	if o == BGR {
		lo, hi = b, r
	}
	if lo {
		c |= 0b001
	}
	if hi {
		c |= 0b100
	}
	return c
}

// Decode splits a color index into its channels.
func (o BitOrder) Decode(c Color) (r, g, b bool) {
	lo, hi := c&0b001 != 0, c&0b100 != 0
	g = c&0b010 != 0
	if o == BGR {
		return hi, g, lo
	}
	return lo, g, hi
}

// Nearest thresholds each channel of c at half intensity.
func (o BitOrder) Nearest(c color.Color) Color {
	r, g, b, _ := c.RGBA()
	return o.Encode(r >= 0x8000, g >= 0x8000, b >= 0x8000)
}

// Palette returns the display color of every index under order.
func Palette(order BitOrder) [8]color.RGBA {
	var p [8]color.RGBA
	for i := range p {
		r, g, b := order.Decode(Color(i))
		p[i] = color.RGBA{R: level(r), G: level(g), B: level(b), A: 0xFF}
	}
	return p
}

func level(on bool) uint8 {
	if on {
		return 0xFF
	}
	return 0
}

// Pins assigns GPIOs to the VGA signals. Color is the first of three
// consecutive pins.
type Pins struct {
	VSync      uint8
	HSync      uint8
	Color      uint8
	PixelClock uint8
}

// DefaultPins is vsync GP16, hsync GP17, color GP18-GP20, pixel clock GP21.
var DefaultPins = Pins{VSync: 16, HSync: 17, Color: 18, PixelClock: 21}

const numGPIO = 30

func (p Pins) validate() error {
	if p.VSync >= numGPIO || p.HSync >= numGPIO || p.PixelClock >= numGPIO || int(p.Color)+3 > numGPIO {
		return ErrInvalidPins
	}
	used := uint32(1)<<p.VSync | uint32(1)<<p.HSync | uint32(1)<<p.PixelClock | uint32(7)<<p.Color
	if bits.OnesCount32(used) != 6 {
		return ErrInvalidPins
	}
	return nil
}

// Logger receives one line per initialization step.
type Logger interface {
	WriteLineString(s string)
}

// Config selects pins, bit order and timing seeds. Zero fields take the
// defaults.
type Config struct {
	Pins      Pins
	Order     BitOrder
	HSyncSeed uint32
	VSyncSeed uint32
	RGBSeed   uint32
	Logger    Logger
}

func (c Config) withDefaults() Config {
	if c.Pins == (Pins{}) {
		c.Pins = DefaultPins
	}
	if c.HSyncSeed == 0 {
		c.HSyncSeed = HActive
	}
	if c.VSyncSeed == 0 {
		c.VSyncSeed = VActiveSeed
	}
	if c.RGBSeed == 0 {
		c.RGBSeed = RGBActive
	}
	return c
}

// State is the initialization progress of a Display.
type State uint8

const (
	Uninitialized State = iota
	ProgramsLoaded
	ChannelsAllocated
	ParametersSeeded
	GeneratorsRunning
	ChainArmed
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case ProgramsLoaded:
		return "programs-loaded"
	case ChannelsAllocated:
		return "channels-allocated"
	case ParametersSeeded:
		return "parameters-seeded"
	case GeneratorsRunning:
		return "generators-running"
	case ChainArmed:
		return "chain-armed"
	}
	return "unknown"
}

var (
	ErrAlreadyInitialized  = errors.New("vga: already initialized")
	ErrNotInitialized      = errors.New("vga: not initialized")
	ErrFrameSize           = errors.New("vga: source shorter than a frame")
	ErrInvalidPins         = errors.New("vga: invalid pin assignment")
	ErrStateMachineClaimed = errors.New("vga: state machine already claimed")
)

// State machine indices on the PIO block.
const (
	hsyncSM = 0
	vsyncSM = 1
	rgbSM   = 3

	smMask = 1<<hsyncSM | 1<<vsyncSM | 1<<rgbSM
)

// Framebuffer is the pixel store scanned out by channel A: one byte per
// pixel, row major, with the color index in the low three bits.
type Framebuffer struct {
	buf []byte
}

// Bytes returns the backing store. Writes show up on the next scanout pass.
func (f *Framebuffer) Bytes() []byte { return f.buf }

func (f *Framebuffer) Width() int  { return Width }
func (f *Framebuffer) Height() int { return Height }

// SetPixel writes c at (x, y); out of range coordinates are ignored.
func (f *Framebuffer) SetPixel(x, y int, c Color) {
	if x < 0 || y < 0 || x >= Width || y >= Height {
		return
	}
	f.buf[y*Width+x] = Pack(c)
}

// Pixel returns the color at (x, y).
func (f *Framebuffer) Pixel(x, y int) Color {
	if x < 0 || y < 0 || x >= Width || y >= Height {
		return Black
	}
	return Color(f.buf[y*Width+x] & 7)
}

func logLine(l Logger, s string) {
	if l != nil {
		l.WriteLineString(s)
	}
}

//go:build !tinygo

package vga

import "sync"

// Monitor is a VGA sink for the host model. Attached as a machine probe, it
// decodes sync and pixel clock edges from the GPIO levels into a raster of
// color indices, the way a display would sample the cable.
type Monitor struct {
	mu     sync.Mutex
	pins   Pins
	raster [FrameLen]byte

	x, y      int
	lineUsed  bool
	prev      uint32
	frames    uint64
	lastVSync uint64
	period    uint64
	pixels    uint64
}

// NewMonitor returns a monitor listening on pins.
func NewMonitor(pins Pins) *Monitor {
	return &Monitor{pins: pins, prev: 1<<pins.HSync | 1<<pins.VSync}
}

func bit(levels uint32, pin uint8) uint32 { return levels >> pin & 1 }

// Probe is an rp2.Probe. A vsync falling edge starts a frame, an hsync
// falling edge ends a line that carried pixels, and each pixel clock rising
// edge latches the color pins.
func (mon *Monitor) Probe(cycle uint64, levels uint32) {
	mon.mu.Lock()
	defer mon.mu.Unlock()
	p := mon.pins
	if bit(mon.prev, p.VSync) == 1 && bit(levels, p.VSync) == 0 {
		if mon.lastVSync != 0 {
			mon.period = cycle - mon.lastVSync
		}
		mon.lastVSync = cycle
		mon.frames++
		mon.x, mon.y = 0, 0
		mon.lineUsed = false
	}
	if bit(mon.prev, p.HSync) == 1 && bit(levels, p.HSync) == 0 {
		if mon.lineUsed {
			mon.y++
			mon.lineUsed = false
		}
		mon.x = 0
	}
	if bit(mon.prev, p.PixelClock) == 0 && bit(levels, p.PixelClock) == 1 {
		if mon.x < Width && mon.y < Height {
			mon.raster[mon.y*Width+mon.x] = byte(levels >> p.Color & 7)
		}
		mon.x++
		mon.pixels++
		mon.lineUsed = true
	}
	mon.prev = levels
}

// Frames returns the number of vsync pulses seen.
func (mon *Monitor) Frames() uint64 {
	mon.mu.Lock()
	defer mon.mu.Unlock()
	return mon.frames
}

// FramePeriod returns the cycles between the last two vsync pulses, or zero
// before the second one.
func (mon *Monitor) FramePeriod() uint64 {
	mon.mu.Lock()
	defer mon.mu.Unlock()
	return mon.period
}

// Pixels returns the number of pixel clocks seen.
func (mon *Monitor) Pixels() uint64 {
	mon.mu.Lock()
	defer mon.mu.Unlock()
	return mon.pixels
}

// Snapshot copies the raster of color indices into dst.
func (mon *Monitor) Snapshot(dst []byte) {
	mon.mu.Lock()
	copy(dst, mon.raster[:])
	mon.mu.Unlock()
}

// SnapshotRGBA renders the raster into dst as packed RGBA, four bytes per
// pixel, using the palette for order.
func (mon *Monitor) SnapshotRGBA(dst []byte, order BitOrder) {
	pal := Palette(order)
	mon.mu.Lock()
	defer mon.mu.Unlock()
	for i, c := range mon.raster[:] {
		if 4*i+3 >= len(dst) {
			return
		}
		rgba := pal[c&7]
		dst[4*i] = rgba.R
		dst[4*i+1] = rgba.G
		dst[4*i+2] = rgba.B
		dst[4*i+3] = rgba.A
	}
}

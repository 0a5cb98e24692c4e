package app

import (
	"image/color"

	"tinygo.org/x/drivers"

	"picovga/vga"
)

// canvas is a drivers.Displayer over the VGA framebuffer, so tinyfont and
// other TinyGo drawing code can render into it. Colors are thresholded to
// the nearest 3-bit index.
type canvas struct {
	fb    *vga.Framebuffer
	order vga.BitOrder
	rot   drivers.Rotation
}

var _ drivers.Displayer = (*canvas)(nil)

func newCanvas(fb *vga.Framebuffer, order vga.BitOrder) *canvas {
	return &canvas{fb: fb, order: order}
}

func (c *canvas) Size() (x, y int16) {
	switch c.rot {
	case drivers.Rotation90, drivers.Rotation270:
		return vga.Height, vga.Width
	}
	return vga.Width, vga.Height
}

// physical maps a rotated coordinate onto the framebuffer. Rotations are
// clockwise.
func (c *canvas) physical(x, y int) (int, int) {
	switch c.rot {
	case drivers.Rotation90:
		return vga.Width - 1 - y, x
	case drivers.Rotation180:
		return vga.Width - 1 - x, vga.Height - 1 - y
	case drivers.Rotation270:
		return y, vga.Height - 1 - x
	}
	return x, y
}

func (c *canvas) SetPixel(x, y int16, col color.RGBA) {
	px, py := c.physical(int(x), int(y))
	c.fb.SetPixel(px, py, c.order.Nearest(col))
}

// Display is a no-op: the scanout chain picks up writes on its next pass.
func (c *canvas) Display() error { return nil }

func (c *canvas) FillRectangle(x, y, width, height int16, col color.RGBA) error {
	w, h := c.Size()
	x0 := clampInt(int(x), 0, int(w))
	y0 := clampInt(int(y), 0, int(h))
	x1 := clampInt(int(x)+int(width), 0, int(w))
	y1 := clampInt(int(y)+int(height), 0, int(h))
	if x0 >= x1 || y0 >= y1 {
		return nil
	}
	v := c.order.Nearest(col)
	for py := y0; py < y1; py++ {
		for px := x0; px < x1; px++ {
			fx, fy := c.physical(px, py)
			c.fb.SetPixel(fx, fy, v)
		}
	}
	return nil
}

func (c *canvas) SetRotation(rotation drivers.Rotation) error {
	c.rot = rotation
	return nil
}

func (c *canvas) Rotation() drivers.Rotation { return c.rot }

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

//go:build !tinygo

package hal

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"golang.org/x/term"

	"picovga/vga"
)

const (
	defaultPreviewCols = 80
	defaultPreviewRows = 25
)

// preview draws the monitor raster as ANSI half blocks, two raster rows per
// text row, sized to the terminal when out is one.
type preview struct {
	out    io.Writer
	raster []byte
	buf    bytes.Buffer
}

func newPreview(out io.Writer) *preview {
	return &preview{out: out, raster: make([]byte, vga.FrameLen)}
}

func (p *preview) size() (cols, rows int) {
	if f, ok := p.out.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		if w, h, err := term.GetSize(int(f.Fd())); err == nil && w > 0 && h > 1 {
			return w, h - 1
		}
	}
	return defaultPreviewCols, defaultPreviewRows
}

func (p *preview) draw(mon *vga.Monitor, order vga.BitOrder) {
	mon.Snapshot(p.raster)
	cols, rows := p.size()
	p.buf.Reset()
	p.buf.WriteString("\x1b[H")
	renderANSI(&p.buf, p.raster, order, cols, rows)
	p.out.Write(p.buf.Bytes())
}

// ansiIndex maps a color index to the ANSI palette, where red is bit 0,
// green bit 1 and blue bit 2.
func ansiIndex(c vga.Color, order vga.BitOrder) int {
	r, g, b := order.Decode(c)
	i := 0
	if r {
		i |= 1
	}
	if g {
		i |= 2
	}
	if b {
		i |= 4
	}
	return i
}

// renderANSI scales a Width x Height raster of color indices to cols x rows
// text cells. Each cell is an upper half block: foreground is the upper
// sample, background the lower one.
func renderANSI(w *bytes.Buffer, raster []byte, order vga.BitOrder, cols, rows int) {
	if cols <= 0 || rows <= 0 || len(raster) < vga.FrameLen {
		return
	}
	sample := func(x, y int) vga.Color {
		return vga.Color(raster[y*vga.Width+x] & 7)
	}
	for r := 0; r < rows; r++ {
		yTop := (2 * r) * vga.Height / (2 * rows)
		yBot := (2*r + 1) * vga.Height / (2 * rows)
		for c := 0; c < cols; c++ {
			x := c * vga.Width / cols
			fg := ansiIndex(sample(x, yTop), order)
			bg := ansiIndex(sample(x, yBot), order)
			fmt.Fprintf(w, "\x1b[%d;%dm▀", 30+fg, 40+bg)
		}
		w.WriteString("\x1b[0m\n")
	}
}

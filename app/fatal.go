package app

import (
	"image/color"
	"strings"
	"unicode/utf8"

	"tinygo.org/x/tinyfont"

	"picovga/vga"
)

// fatal logs err, replaces the picture with a white screen listing it and
// halts the demo. The scanout chain keeps running so the screen stays up.
func (s *system) fatal(err error) error {
	s.halted = err
	s.log("picovga halted: " + err.Error())

	if ferr := s.disp.FillScreen(s.h.Order().Encode(true, true, true)); ferr != nil {
		s.canvas.FillRectangle(0, 0, vga.Width, vga.Height, white)
	}

	font := smallFont
	fontHeight := int16(font.GetYAdvance()) + 1
	_, outboxWidth := tinyfont.LineWidth(font, "0")
	fontWidth := int16(outboxWidth)
	if fontWidth <= 0 || fontHeight <= 0 {
		return nil
	}

	fg := color.RGBA{A: 0xFF}
	w, h := s.canvas.Size()
	cols := (w - 8) / fontWidth
	if cols <= 0 {
		cols = 1
	}
	y := fontHeight + 4
	for _, line := range []string{"picovga halted:", err.Error()} {
		for len(line) > 0 {
			if y > h {
				return nil
			}
			chunk, rest := takeRunes(line, cols)
			tinyfont.WriteLine(s.canvas, font, 4, y, chunk, fg)
			y += fontHeight
			line = strings.TrimLeft(rest, " ")
		}
	}
	return nil
}

func takeRunes(s string, n int16) (prefix, rest string) {
	if n <= 0 || s == "" {
		return "", s
	}
	if int64(len(s)) <= int64(n) {
		return s, ""
	}
	var i int
	var count int16
	for i < len(s) && count < n {
		_, size := utf8.DecodeRuneInString(s[i:])
		if size <= 0 {
			break
		}
		i += size
		count++
	}
	if i >= len(s) {
		return s, ""
	}
	return s[:i], s[i:]
}

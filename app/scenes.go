package app

import (
	"fmt"
	"image/color"

	"tinygo.org/x/tinyfont"
	"tinygo.org/x/tinyfont/proggy"

	"picovga/internal/buildinfo"
	"picovga/vga"
)

type scene struct {
	name  string
	enter func(s *system) error
	// tick runs on every frame the scene stays up. Optional.
	tick func(s *system) error
}

var (
	white = color.RGBA{R: 0xFF, G: 0xFF, B: 0xFF, A: 0xFF}
	cyan  = color.RGBA{G: 0xFF, B: 0xFF, A: 0xFF}
	blue  = color.RGBA{B: 0xFF, A: 0xFF}
)

var (
	bannerFont tinyfont.Fonter = &proggy.TinySZ8pt7b
	smallFont  tinyfont.Fonter = &tinyfont.TomThumb
)

func (s *system) buildScenes() []scene {
	o := s.h.Order()
	scenes := []scene{
		{name: "boot", enter: (*system).drawBoot},
		fillScene("red", o.Encode(true, false, false)),
		fillScene("green", o.Encode(false, true, false)),
		fillScene("blue", o.Encode(false, false, true)),
		{name: "bars", enter: func(s *system) error { return s.disp.DrawFrame(s.bars) }},
	}
	if s.cfg.Frame != nil {
		scenes = append(scenes, scene{name: "frame", enter: func(s *system) error {
			return s.disp.DrawFrame(s.cfg.Frame)
		}})
	}
	return append(scenes, scene{name: "status", enter: (*system).drawStatus, tick: (*system).tickStatus})
}

func fillScene(name string, c vga.Color) scene {
	return scene{name: name, enter: func(s *system) error { return s.disp.FillScreen(c) }}
}

// colorBars returns a frame of eight vertical bars, brightest first.
func colorBars(order vga.BitOrder) []byte {
	bars := [8]vga.Color{
		order.Encode(true, true, true),
		order.Encode(true, true, false),
		order.Encode(false, true, true),
		order.Encode(false, true, false),
		order.Encode(true, false, true),
		order.Encode(true, false, false),
		order.Encode(false, false, true),
		order.Encode(false, false, false),
	}
	frame := make([]byte, vga.FrameLen)
	const barWidth = vga.Width / len(bars)
	for x := 0; x < vga.Width; x++ {
		v := vga.Pack(bars[x/barWidth])
		for y := 0; y < vga.Height; y++ {
			frame[y*vga.Width+x] = v
		}
	}
	return frame
}

func (s *system) drawBoot() error {
	if err := s.disp.FillScreen(vga.Black); err != nil {
		return err
	}
	p := s.h.Pins()
	y := int16(bannerFont.GetYAdvance()) + 8
	tinyfont.WriteLine(s.canvas, bannerFont, 8, y, "picovga", white)
	y += 6
	for _, line := range []string{
		fmt.Sprintf("%dx%d, 3-bit %s", vga.Width, vga.Height, s.h.Order()),
		fmt.Sprintf("vsync GP%d  hsync GP%d", p.VSync, p.HSync),
		fmt.Sprintf("color GP%d-GP%d  pclk GP%d", p.Color, p.Color+2, p.PixelClock),
		fmt.Sprintf("%d cycles/line, %d lines/frame", vga.CyclesPerLine, vga.LinesPerFrame),
		"build " + buildinfo.Short(),
	} {
		y += int16(smallFont.GetYAdvance()) + 2
		tinyfont.WriteLine(s.canvas, smallFont, 8, y, line, cyan)
	}
	return nil
}

const statusUptimeY = 48

func (s *system) drawStatus() error {
	if err := s.disp.FillScreen(s.h.Order().Encode(false, false, true)); err != nil {
		return err
	}
	tinyfont.WriteLine(s.canvas, bannerFont, 8, int16(bannerFont.GetYAdvance())+8, "status", white)
	y := int16(statusUptimeY)
	lines := []string{
		"display: " + s.disp.State().String(),
		fmt.Sprintf("scenes: %d", len(s.scenes)),
	}
	if a := s.disp.Accelerator(); a != nil {
		lines = append(lines, fmt.Sprintf("accel channel: %d", a.Channel()))
	}
	for _, line := range lines {
		y += int16(smallFont.GetYAdvance()) + 2
		tinyfont.WriteLine(s.canvas, smallFont, 8, y, line, white)
	}
	return s.tickStatus()
}

// tickStatus rewrites the uptime line once a second of frames.
func (s *system) tickStatus() error {
	if s.ticks%60 != 0 {
		return nil
	}
	h := int16(smallFont.GetYAdvance()) + 2
	s.canvas.FillRectangle(0, statusUptimeY-h+2, vga.Width, h, blue)
	tinyfont.WriteLine(s.canvas, smallFont, 8, statusUptimeY, fmt.Sprintf("uptime: %d frames", s.uptime), white)
	return nil
}

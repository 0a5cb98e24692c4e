//go:build !tinygo

package hal

import (
	"context"
	"fmt"
	"io"
	"os"

	"picovga/vga"
)

// HeadlessConfig controls the no-window host runner.
type HeadlessConfig struct {
	Enabled bool
	// Hz is the number of frames scanned per second; 0 runs the clock flat out.
	Hz int
	// Ticks stops the runner after that many frames (0 = run forever).
	Ticks uint64
	// Preview prints the monitor raster to Out every PreviewEvery frames.
	Preview      bool
	PreviewEvery uint64
	Pins         vga.Pins
	Order        vga.BitOrder
	Out          io.Writer
}

// RunHeadless runs the app against the modelled board without opening a
// window. The app's step function is called once per scanned frame.
func RunHeadless(ctx context.Context, newApp func(HAL) func() error, cfg HeadlessConfig) error {
	if cfg.Hz < 0 {
		return fmt.Errorf("invalid headless hz: %d", cfg.Hz)
	}
	if cfg.PreviewEvery == 0 {
		cfg.PreviewEvery = 30
	}
	if cfg.Out == nil {
		cfg.Out = os.Stdout
	}

	h, err := newHost(HostConfig{Pins: cfg.Pins, Order: cfg.Order, Log: cfg.Out})
	if err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	clock := h.start(ctx, cfg.Hz)

	step := newApp(h)
	var p *preview
	if cfg.Preview {
		p = newPreview(cfg.Out)
	}

	var tick uint64
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-clock:
			return err
		case <-h.t.Ticks():
			if step != nil {
				if err := step(); err != nil {
					return err
				}
			}
			tick++
			if p != nil && tick%cfg.PreviewEvery == 0 {
				p.draw(h.mon, h.order)
			}
			if cfg.Ticks > 0 && tick >= cfg.Ticks {
				return nil
			}
		}
	}
}

//go:build !tinygo

package hal

import (
	"context"

	"picovga/rp2"
	"picovga/vga"
)

type hostTime struct {
	ch  chan uint64
	seq uint64
}

func newHostTime() *hostTime {
	return &hostTime{ch: make(chan uint64, 16)}
}

func (t *hostTime) Ticks() <-chan uint64 { return t.ch }

// vblank is the machine's per-frame hook. Ticks the app is too slow to take
// are dropped.
func (t *hostTime) vblank(uint64) {
	t.seq++
	select {
	case t.ch <- t.seq:
	default:
	}
}

// start runs the machine clock in the background, one video frame per tick
// at hz frames per second (unthrottled when hz is 0). The returned channel
// yields the clock's exit error once ctx is done.
func (h *hostHAL) start(ctx context.Context, hz int) <-chan error {
	done := make(chan error, 1)
	go func() {
		done <- h.m.Run(ctx, rp2.RunConfig{
			Hz:            hz,
			CyclesPerTick: vga.CyclesPerFrame,
			OnTick:        h.t.vblank,
		})
	}()
	return done
}

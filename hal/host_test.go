//go:build !tinygo

package hal

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"picovga/vga"
)

// syncBuffer lets the logger and the test share one buffer.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestRunHeadlessStepsOncePerFrame(t *testing.T) {
	var out syncBuffer
	steps := 0
	err := RunHeadless(context.Background(), func(h HAL) func() error {
		return func() error {
			steps++
			return nil
		}
	}, HeadlessConfig{Ticks: 3, Out: &out})
	if err != nil {
		t.Fatalf("RunHeadless() = %v", err)
	}
	if steps != 3 {
		t.Fatalf("steps = %d, want 3", steps)
	}
}

func TestRunHeadlessStepError(t *testing.T) {
	errStop := errors.New("stop")
	err := RunHeadless(context.Background(), func(h HAL) func() error {
		return func() error { return errStop }
	}, HeadlessConfig{Ticks: 10, Out: &syncBuffer{}})
	if !errors.Is(err, errStop) {
		t.Fatalf("RunHeadless() = %v, want %v", err, errStop)
	}
}

func TestRunHeadlessCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := RunHeadless(ctx, func(h HAL) func() error { return nil }, HeadlessConfig{Out: &syncBuffer{}})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("RunHeadless() = %v, want context.Canceled", err)
	}
}

func TestHeadlessMonitorSeesFill(t *testing.T) {
	var out syncBuffer
	var host *hostHAL
	err := RunHeadless(context.Background(), func(h HAL) func() error {
		host = h.(*hostHAL)
		started := false
		return func() error {
			if started {
				return nil
			}
			started = true
			d := h.Display()
			if err := d.Init(vga.Config{Pins: h.Pins(), Logger: h.Logger()}); err != nil {
				return err
			}
			return d.FillScreen(vga.Red)
		}
	}, HeadlessConfig{Ticks: 5, Out: &out})
	if err != nil {
		t.Fatalf("RunHeadless() = %v", err)
	}
	if !strings.Contains(out.String(), "vga: chain-armed") {
		t.Fatalf("log = %q, want a chain-armed line", out.String())
	}
	raster := make([]byte, vga.FrameLen)
	host.mon.Snapshot(raster)
	for i, c := range raster {
		if vga.Color(c) != vga.Red {
			t.Fatalf("raster[%d] = %d, want %d", i, c, vga.Red)
		}
	}
}

func TestRunHeadlessPreview(t *testing.T) {
	var out syncBuffer
	err := RunHeadless(context.Background(), func(h HAL) func() error { return nil },
		HeadlessConfig{Ticks: 2, Preview: true, PreviewEvery: 1, Out: &out})
	if err != nil {
		t.Fatalf("RunHeadless() = %v", err)
	}
	if got := strings.Count(out.String(), "\x1b[H"); got != 2 {
		t.Fatalf("preview frames = %d, want 2", got)
	}
}

func TestRenderANSI(t *testing.T) {
	raster := bytes.Repeat([]byte{byte(vga.Red)}, vga.FrameLen)
	for i := 180 * vga.Width; i < vga.FrameLen; i++ {
		raster[i] = byte(vga.Blue)
	}

	var buf bytes.Buffer
	renderANSI(&buf, raster, vga.BGR, 4, 2)
	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("lines = %d, want 2", len(lines))
	}
	if got := strings.Count(lines[0], "\x1b[31;41m▀"); got != 4 {
		t.Fatalf("red cells in row 0 = %d, want 4", got)
	}
	// Row 1 samples raster rows 120 and 180.
	if got := strings.Count(lines[1], "\x1b[31;44m▀"); got != 4 {
		t.Fatalf("red over blue cells in row 1 = %d, want 4", got)
	}
}

func TestANSIIndexFollowsBitOrder(t *testing.T) {
	for _, tc := range []struct {
		c     vga.Color
		order vga.BitOrder
		want  int
	}{
		{vga.Red, vga.BGR, 1},
		{vga.Blue, vga.BGR, 4},
		{vga.White, vga.BGR, 7},
		{1, vga.RGB, 1},
		{4, vga.RGB, 4},
	} {
		if got := ansiIndex(tc.c, tc.order); got != tc.want {
			t.Fatalf("ansiIndex(%d, %v) = %d, want %d", tc.c, tc.order, got, tc.want)
		}
	}
}

func TestHostLoggerWritesLines(t *testing.T) {
	var buf bytes.Buffer
	l := &hostLogger{w: &buf}
	l.WriteLineString("vga: ready")
	l.WriteLineBytes([]byte("led: HIGH"))
	if got, want := buf.String(), "vga: ready\nled: HIGH\n"; got != want {
		t.Fatalf("log = %q, want %q", got, want)
	}
}

//go:build !tinygo

package vga

import (
	"bytes"
	"testing"
)

func TestMemsetTouchesOnlyTheRange(t *testing.T) {
	m, d := newDisplay(t)
	if err := d.Init(Config{}); err != nil {
		t.Fatalf("Init: %v", err)
	}
	startClock(t, m)

	buf := make([]byte, 64)
	for i := range buf {
		buf[i] = 0xEE
	}
	d.Accelerator().Memset(buf[10:], 0x05, 20)
	for i, b := range buf {
		want := byte(0xEE)
		if i >= 10 && i < 30 {
			want = 0x05
		}
		if b != want {
			t.Fatalf("buf[%d] = %#x, want %#x", i, b, want)
		}
	}
}

func TestMemcpyCopiesPrefix(t *testing.T) {
	m, d := newDisplay(t)
	if err := d.Init(Config{}); err != nil {
		t.Fatalf("Init: %v", err)
	}
	startClock(t, m)

	src := []byte("scanout chain fed by dma")
	dst := bytes.Repeat([]byte{'.'}, len(src))
	d.Accelerator().Memcpy(dst, src, 7)
	if got, want := string(dst), "scanout................."; got != want {
		t.Fatalf("dst = %q, want %q", got, want)
	}
}

func TestMemcpyLongBuffers(t *testing.T) {
	if testing.Short() {
		t.Skip("copies 17 MiB one byte per cycle")
	}
	m, d := newDisplay(t)
	if err := d.Init(Config{}); err != nil {
		t.Fatalf("Init: %v", err)
	}
	startClock(t, m)

	const n = 17 << 20
	src := bytes.Repeat([]byte{0xAB}, n)
	dst := make([]byte, n)
	d.Accelerator().Memcpy(dst, src, n)
	for i, b := range dst {
		if b != 0xAB {
			t.Fatalf("dst[%d] = %#x, want 0xab", i, b)
		}
	}
}

func TestZeroCountIsNoop(t *testing.T) {
	_, d := newDisplay(t)
	if err := d.Init(Config{}); err != nil {
		t.Fatalf("Init: %v", err)
	}
	// The clock is stopped, so a transfer that reached the channel would hang.
	a := d.Accelerator()
	a.Memset(nil, 0xFF, 0)
	a.Memcpy(nil, nil, 0)
}

func TestPackAndBitOrder(t *testing.T) {
	if got := Pack(White); got != 0x3F {
		t.Fatalf("Pack(White) = %#x, want 0x3f", got)
	}
	if got := Pack(Red); got != 0x24 {
		t.Fatalf("Pack(Red) = %#x, want 0x24", got)
	}
	for _, tc := range []struct {
		order   BitOrder
		r, g, b bool
		want    Color
	}{
		{BGR, true, false, false, Red},
		{BGR, false, false, true, Blue},
		{BGR, true, true, false, Yellow},
		{RGB, true, false, false, 1},
		{RGB, false, false, true, 4},
		{RGB, false, true, true, 6},
	} {
		if got := tc.order.Encode(tc.r, tc.g, tc.b); got != tc.want {
			t.Fatalf("%v.Encode(%v, %v, %v) = %d, want %d", tc.order, tc.r, tc.g, tc.b, got, tc.want)
		}
		r, g, b := tc.order.Decode(tc.want)
		if r != tc.r || g != tc.g || b != tc.b {
			t.Fatalf("%v.Decode(%d) = %v %v %v", tc.order, tc.want, r, g, b)
		}
	}
	pal := Palette(BGR)
	if c := pal[Red]; c.R != 0xFF || c.G != 0 || c.B != 0 {
		t.Fatalf("Palette(BGR)[Red] = %v, want pure red", c)
	}
}

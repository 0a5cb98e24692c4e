//go:build !tinygo

package app

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"tinygo.org/x/drivers"

	"picovga/hal"
	"picovga/rp2"
	"picovga/vga"
)

type fakeHAL struct {
	disp *vga.Display
	pins vga.Pins

	mu   sync.Mutex
	log  bytes.Buffer
	led  bool
	keys chan hal.KeyEvent
}

func (f *fakeHAL) WriteLineString(s string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.log.WriteString(s + "\n")
}

func (f *fakeHAL) WriteLineBytes(b []byte) { f.WriteLineString(string(b)) }

func (f *fakeHAL) logged() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.log.String()
}

func (f *fakeHAL) High() { f.led = true }
func (f *fakeHAL) Low()  { f.led = false }

func (f *fakeHAL) Events() <-chan hal.KeyEvent { return f.keys }
func (f *fakeHAL) Keyboard() hal.Keyboard      { return f }

func (f *fakeHAL) Logger() hal.Logger    { return f }
func (f *fakeHAL) LED() hal.LED          { return f }
func (f *fakeHAL) Display() *vga.Display { return f.disp }
func (f *fakeHAL) Pins() vga.Pins        { return f.pins }
func (f *fakeHAL) Order() vga.BitOrder   { return vga.BGR }
func (f *fakeHAL) Input() hal.Input      { return f }
func (f *fakeHAL) Time() hal.Time        { return nil }

// newFakeHAL returns a HAL over a freshly modelled board whose clock runs
// unthrottled until the test ends.
func newFakeHAL(t *testing.T) *fakeHAL {
	t.Helper()
	m := rp2.NewMachine()
	disp, err := vga.New(m)
	if err != nil {
		t.Fatalf("vga.New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		m.Run(ctx, rp2.RunConfig{})
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return &fakeHAL{disp: disp, pins: vga.DefaultPins, keys: make(chan hal.KeyEvent, 8)}
}

func sceneIndex(t *testing.T, s *system, name string) int {
	t.Helper()
	for i, sc := range s.scenes {
		if sc.name == name {
			return i
		}
	}
	t.Fatalf("no scene %q", name)
	return -1
}

func TestBootArmsDisplayAndDrawsBanner(t *testing.T) {
	h := newFakeHAL(t)
	s := newSystem(h, Config{})
	if err := s.step(); err != nil {
		t.Fatalf("step() = %v", err)
	}
	if got := h.disp.State(); got != vga.ChainArmed {
		t.Fatalf("State() = %v, want %v", got, vga.ChainArmed)
	}
	fb := h.disp.Framebuffer()
	lit := 0
	for _, b := range fb.Bytes() {
		if b != 0 {
			lit++
		}
	}
	if lit == 0 {
		t.Fatalf("boot screen has no text")
	}
	if got := fb.Pixel(vga.Width-1, vga.Height-1); got != vga.Black {
		t.Fatalf("corner pixel = %d, want black", got)
	}
	log := h.logged()
	for _, want := range []string{"vga: chain-armed", "app: scene boot"} {
		if !strings.Contains(log, want) {
			t.Fatalf("log = %q, want %q", log, want)
		}
	}
	if !h.led {
		t.Fatalf("LED not toggled on scene change")
	}
}

func TestScenesRotateEverySceneTicks(t *testing.T) {
	h := newFakeHAL(t)
	s := newSystem(h, Config{SceneTicks: 2})
	for i := 0; i < 3; i++ {
		if err := s.step(); err != nil {
			t.Fatalf("step() = %v", err)
		}
	}
	if got := s.scenes[s.cur].name; got != "red" {
		t.Fatalf("scene = %q, want red", got)
	}
	want := vga.Pack(vga.Red)
	for i, b := range h.disp.Framebuffer().Bytes() {
		if b != want {
			t.Fatalf("fb[%d] = %#x, want %#x", i, b, want)
		}
	}
	if h.led {
		t.Fatalf("LED = on after second scene change, want off")
	}
}

func TestKeysMoveBetweenScenes(t *testing.T) {
	h := newFakeHAL(t)
	s := newSystem(h, Config{})
	if err := s.step(); err != nil {
		t.Fatalf("step() = %v", err)
	}

	h.keys <- hal.KeyEvent{Code: hal.KeyLeft, Press: true}
	h.keys <- hal.KeyEvent{Code: hal.KeyLeft, Press: false}
	if err := s.step(); err != nil {
		t.Fatalf("step() = %v", err)
	}
	if got := s.scenes[s.cur].name; got != "status" {
		t.Fatalf("scene = %q, want status", got)
	}
	if got := h.disp.Framebuffer().Pixel(vga.Width-1, vga.Height-1); got != vga.Blue {
		t.Fatalf("status background = %d, want blue", got)
	}

	h.keys <- hal.KeyEvent{Code: hal.KeyEscape, Press: true}
	if err := s.step(); err != nil {
		t.Fatalf("step() = %v", err)
	}
	if s.cur != 0 {
		t.Fatalf("scene = %d after escape, want 0", s.cur)
	}
}

func TestFrameSceneCopiesUserFrame(t *testing.T) {
	h := newFakeHAL(t)
	frame := make([]byte, vga.FrameLen)
	for i := range frame {
		frame[i] = vga.Pack(vga.Color(i % 8))
	}
	s := newSystem(h, Config{Frame: frame})
	if err := s.step(); err != nil {
		t.Fatalf("step() = %v", err)
	}
	if err := s.show(sceneIndex(t, s, "frame")); err != nil {
		t.Fatalf("show() = %v", err)
	}
	if !bytes.Equal(h.disp.Framebuffer().Bytes(), frame) {
		t.Fatalf("framebuffer does not match the user frame")
	}
}

func TestShortFrameHaltsOnFatalScreen(t *testing.T) {
	h := newFakeHAL(t)
	s := newSystem(h, Config{Frame: make([]byte, 10)})
	if err := s.step(); err != nil {
		t.Fatalf("step() = %v", err)
	}
	if err := s.show(sceneIndex(t, s, "frame")); err != nil {
		t.Fatalf("show() = %v", err)
	}
	if !errors.Is(s.halted, vga.ErrFrameSize) {
		t.Fatalf("halted = %v, want %v", s.halted, vga.ErrFrameSize)
	}
	fb := h.disp.Framebuffer()
	if got := fb.Pixel(vga.Width-1, vga.Height-1); got != vga.White {
		t.Fatalf("fatal background = %d, want white", got)
	}
	snapshot := append([]byte(nil), fb.Bytes()...)
	if !bytes.Contains(snapshot, []byte{vga.Pack(vga.Black)}) {
		t.Fatalf("fatal screen has no text")
	}
	if !strings.Contains(h.logged(), "picovga halted") {
		t.Fatalf("log = %q, want the halt line", h.logged())
	}

	for i := 0; i < 3; i++ {
		if err := s.step(); err != nil {
			t.Fatalf("step() after halt = %v", err)
		}
	}
	if !bytes.Equal(fb.Bytes(), snapshot) {
		t.Fatalf("screen changed after halt")
	}
}

func TestInitFailureIsReturned(t *testing.T) {
	h := newFakeHAL(t)
	h.pins = vga.Pins{VSync: 18, HSync: 17, Color: 18, PixelClock: 21}
	step := New(h)
	if err := step(); !errors.Is(err, vga.ErrInvalidPins) {
		t.Fatalf("step() = %v, want %v", err, vga.ErrInvalidPins)
	}
	if !strings.Contains(h.logged(), "display init failed") {
		t.Fatalf("log = %q, want the init failure", h.logged())
	}
}

func TestCanvasRotation(t *testing.T) {
	h := newFakeHAL(t)
	fb := h.disp.Framebuffer()
	c := newCanvas(fb, vga.BGR)

	for _, tc := range []struct {
		rot    drivers.Rotation
		w, h   int16
		px, py int
	}{
		{drivers.Rotation0, vga.Width, vga.Height, 0, 0},
		{drivers.Rotation90, vga.Height, vga.Width, vga.Width - 1, 0},
		{drivers.Rotation180, vga.Width, vga.Height, vga.Width - 1, vga.Height - 1},
		{drivers.Rotation270, vga.Height, vga.Width, 0, vga.Height - 1},
	} {
		for i := range fb.Bytes() {
			fb.Bytes()[i] = 0
		}
		c.SetRotation(tc.rot)
		if w, h := c.Size(); w != tc.w || h != tc.h {
			t.Fatalf("rotation %d: Size() = %d, %d, want %d, %d", tc.rot, w, h, tc.w, tc.h)
		}
		c.SetPixel(0, 0, white)
		if got := fb.Pixel(tc.px, tc.py); got != vga.White {
			t.Fatalf("rotation %d: pixel (%d, %d) = %d, want white", tc.rot, tc.px, tc.py, got)
		}
	}
}

func TestCanvasFillRectangleClips(t *testing.T) {
	h := newFakeHAL(t)
	fb := h.disp.Framebuffer()
	c := newCanvas(fb, vga.BGR)
	c.FillRectangle(-5, -5, 10, 10, cyan)
	if got := fb.Pixel(4, 4); got != vga.Cyan {
		t.Fatalf("Pixel(4, 4) = %d, want cyan", got)
	}
	if got := fb.Pixel(5, 5); got != vga.Black {
		t.Fatalf("Pixel(5, 5) = %d, want black", got)
	}
}

func TestColorBars(t *testing.T) {
	frame := colorBars(vga.BGR)
	for _, tc := range []struct {
		x    int
		want vga.Color
	}{
		{0, vga.White},
		{40, vga.Yellow},
		{80, vga.Cyan},
		{200, vga.Red},
		{vga.Width - 1, vga.Black},
	} {
		if got := frame[(vga.Height-1)*vga.Width+tc.x]; got != vga.Pack(tc.want) {
			t.Fatalf("bar at x=%d = %#x, want %#x", tc.x, got, vga.Pack(tc.want))
		}
	}
}

func TestTakeRunes(t *testing.T) {
	prefix, rest := takeRunes("héllo", 2)
	if prefix != "hé" || rest != "llo" {
		t.Fatalf("takeRunes() = %q, %q, want %q, %q", prefix, rest, "hé", "llo")
	}
}

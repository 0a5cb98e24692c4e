package app

import (
	"fmt"

	"picovga/hal"
	"picovga/internal/buildinfo"
	"picovga/vga"
)

// Config tunes the demo.
type Config struct {
	// Frame is an optional raw frame shown as its own scene.
	Frame []byte
	// SceneTicks is how many frames each scene stays up. Zero means 120.
	SceneTicks int
}

const defaultSceneTicks = 120

type system struct {
	h      hal.HAL
	cfg    Config
	disp   *vga.Display
	canvas *canvas
	scenes []scene
	bars   []byte

	cur    int
	ticks  int
	uptime uint64
	booted bool
	halted error
	led    bool
}

// New initializes the demo with default config. The returned function
// advances it by one frame.
func New(h hal.HAL) func() error {
	return NewWithConfig(h, Config{})
}

// Run starts the demo and blocks forever, stepping once per vertical blank
// (TinyGo/native entrypoint).
func Run(h hal.HAL) {
	RunWithConfig(h, Config{})
}

func NewWithConfig(h hal.HAL, cfg Config) func() error {
	s := newSystem(h, cfg)
	return s.step
}

func RunWithConfig(h hal.HAL, cfg Config) {
	step := NewWithConfig(h, cfg)
	if ht := h.Time(); ht != nil {
		if ch := ht.Ticks(); ch != nil {
			for range ch {
				if err := step(); err != nil {
					break
				}
			}
		}
	}
	select {}
}

func newSystem(h hal.HAL, cfg Config) *system {
	if cfg.SceneTicks <= 0 {
		cfg.SceneTicks = defaultSceneTicks
	}
	s := &system{
		h:      h,
		cfg:    cfg,
		disp:   h.Display(),
		canvas: newCanvas(h.Display().Framebuffer(), h.Order()),
		bars:   colorBars(h.Order()),
	}
	s.scenes = s.buildScenes()
	return s
}

// step boots the display on the first call and afterwards rotates scenes.
// An init failure is returned; a failure after the chain is armed puts up
// the fatal screen and halts the demo.
func (s *system) step() error {
	if s.halted != nil {
		return nil
	}
	if !s.booted {
		s.booted = true
		return s.boot()
	}

	s.uptime++
	s.ticks++
	next := s.cur
	for _, ev := range s.pollKeys() {
		if !ev.Press {
			continue
		}
		switch ev.Code {
		case hal.KeyRight:
			next++
		case hal.KeyLeft:
			next--
		case hal.KeyEscape:
			next = 0
		case hal.KeyEnter:
			s.ticks = 0
			return s.show(s.cur)
		}
	}
	if next == s.cur && s.ticks >= s.cfg.SceneTicks {
		next++
	}
	if next != s.cur {
		return s.show(next)
	}
	if t := s.scenes[s.cur].tick; t != nil {
		if err := t(s); err != nil {
			return s.fatal(err)
		}
	}
	return nil
}

func (s *system) boot() error {
	s.log("picovga " + buildinfo.Long())
	cfg := vga.Config{Pins: s.h.Pins(), Order: s.h.Order(), Logger: s.h.Logger()}
	if err := s.disp.Init(cfg); err != nil {
		s.log(fmt.Sprintf("picovga: display init failed: %v", err))
		return fmt.Errorf("app: %w", err)
	}
	return s.show(0)
}

// show switches to scene i, wrapping in both directions.
func (s *system) show(i int) error {
	n := len(s.scenes)
	s.cur = ((i % n) + n) % n
	s.ticks = 0
	s.toggleLED()
	sc := s.scenes[s.cur]
	s.log("app: scene " + sc.name)
	if err := sc.enter(s); err != nil {
		return s.fatal(err)
	}
	return nil
}

func (s *system) pollKeys() []hal.KeyEvent {
	in := s.h.Input()
	if in == nil {
		return nil
	}
	kbd := in.Keyboard()
	if kbd == nil {
		return nil
	}
	ch := kbd.Events()
	var evs []hal.KeyEvent
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return evs
			}
			evs = append(evs, ev)
		default:
			return evs
		}
	}
}

func (s *system) toggleLED() {
	led := s.h.LED()
	if led == nil {
		return
	}
	s.led = !s.led
	if s.led {
		led.High()
	} else {
		led.Low()
	}
}

func (s *system) log(line string) {
	if l := s.h.Logger(); l != nil {
		l.WriteLineString(line)
	}
}

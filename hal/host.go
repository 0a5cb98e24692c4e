//go:build !tinygo

package hal

import (
	"fmt"
	"io"
	"os"
	"sync"

	"picovga/rp2"
	"picovga/vga"
)

// HostConfig selects the wiring of the modelled board.
type HostConfig struct {
	Pins  vga.Pins
	Order vga.BitOrder
	// Log receives log lines. Nil means stdout.
	Log io.Writer
}

type hostHAL struct {
	logger *hostLogger
	led    *hostLED
	m      *rp2.Machine
	disp   *vga.Display
	mon    *vga.Monitor
	pins   vga.Pins
	order  vga.BitOrder
	kbd    *hostKeyboard
	t      *hostTime
}

// New returns a host HAL implementation with the default wiring.
func New() HAL {
	h, err := newHost(HostConfig{})
	if err != nil {
		panic(err)
	}
	return h
}

// newHost builds the RP2040 model, attaches a monitor to the VGA pins and
// allocates the display. The machine clock is not started.
func newHost(cfg HostConfig) (*hostHAL, error) {
	if cfg.Pins == (vga.Pins{}) {
		cfg.Pins = vga.DefaultPins
	}
	if cfg.Log == nil {
		cfg.Log = os.Stdout
	}
	m := rp2.NewMachine()
	disp, err := vga.New(m)
	if err != nil {
		return nil, fmt.Errorf("hal: %w", err)
	}
	mon := vga.NewMonitor(cfg.Pins)
	m.AddProbe(mon.Probe)

	logger := &hostLogger{w: cfg.Log}
	return &hostHAL{
		logger: logger,
		led:    &hostLED{logger: logger},
		m:      m,
		disp:   disp,
		mon:    mon,
		pins:   cfg.Pins,
		order:  cfg.Order,
		kbd:    newHostKeyboard(),
		t:      newHostTime(),
	}, nil
}

func (h *hostHAL) Logger() Logger        { return h.logger }
func (h *hostHAL) LED() LED              { return h.led }
func (h *hostHAL) Display() *vga.Display { return h.disp }
func (h *hostHAL) Pins() vga.Pins        { return h.pins }
func (h *hostHAL) Order() vga.BitOrder   { return h.order }
func (h *hostHAL) Input() Input          { return hostInput{kbd: h.kbd} }
func (h *hostHAL) Time() Time            { return h.t }

type hostInput struct {
	kbd *hostKeyboard
}

func (in hostInput) Keyboard() Keyboard { return in.kbd }

type hostLogger struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *hostLogger) WriteLineString(s string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintln(l.w, s)
}

func (l *hostLogger) WriteLineBytes(b []byte) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.w.Write(b)
	l.w.Write([]byte{'\n'})
}

type hostLED struct {
	mu     sync.Mutex
	on     bool
	logger *hostLogger
}

func (l *hostLED) High() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.on = true
	l.logger.WriteLineString("led: HIGH")
}

func (l *hostLED) Low() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.on = false
	l.logger.WriteLineString("led: LOW")
}

//go:build !tinygo

package vga

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"picovga/rp2"
)

type lineLog struct {
	mu    sync.Mutex
	lines []string
}

func (l *lineLog) WriteLineString(s string) {
	l.mu.Lock()
	l.lines = append(l.lines, s)
	l.mu.Unlock()
}

func newDisplay(t *testing.T) (*rp2.Machine, *Display) {
	t.Helper()
	m := rp2.NewMachine()
	d, err := New(m)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return m, d
}

func startClock(t *testing.T, m *rp2.Machine) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = m.Run(ctx, rp2.RunConfig{})
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func TestTimingConstants(t *testing.T) {
	if CyclesPerLine != 1082 {
		t.Fatalf("CyclesPerLine = %d, want 1082", CyclesPerLine)
	}
	if LinesPerFrame != 260 {
		t.Fatalf("LinesPerFrame = %d, want 260", LinesPerFrame)
	}
	if CyclesPerFrame != 281320 {
		t.Fatalf("CyclesPerFrame = %d, want 281320", CyclesPerFrame)
	}
}

func TestProgramsShareOneBlock(t *testing.T) {
	n := len(hsyncInstructions) + len(vsyncInstructions) + len(rgbInstructions)
	if n != 29 {
		t.Fatalf("program words = %d, want 29", n)
	}
	m, d := newDisplay(t)
	if err := d.Init(Config{}); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if got := m.PIO(1).UsedInstructions(); got != 29 {
		t.Fatalf("UsedInstructions = %d, want 29", got)
	}
}

func TestInitLogsEachStepAndRejectsReinit(t *testing.T) {
	_, d := newDisplay(t)
	log := &lineLog{}
	if err := d.Init(Config{Logger: log}); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if d.State() != ChainArmed {
		t.Fatalf("State() = %v, want %v", d.State(), ChainArmed)
	}
	want := []State{ProgramsLoaded, ChannelsAllocated, ParametersSeeded, GeneratorsRunning, ChainArmed}
	if len(log.lines) != len(want) {
		t.Fatalf("log = %q, want %d lines", log.lines, len(want))
	}
	for i, s := range want {
		if !strings.HasPrefix(log.lines[i], "vga: "+s.String()) {
			t.Fatalf("log[%d] = %q, want prefix %q", i, log.lines[i], "vga: "+s.String())
		}
	}

	if err := d.Init(Config{}); !errors.Is(err, ErrAlreadyInitialized) {
		t.Fatalf("second Init() = %v, want %v", err, ErrAlreadyInitialized)
	}
	if err := d.InitDisplay(16, 17, 18, 21); !errors.Is(err, ErrAlreadyInitialized) {
		t.Fatalf("InitDisplay() after Init = %v, want %v", err, ErrAlreadyInitialized)
	}
	if d.State() != ChainArmed {
		t.Fatalf("State() after re-init = %v, want %v", d.State(), ChainArmed)
	}
}

func TestInitFailsWhenProgramSpaceIsTaken(t *testing.T) {
	m, d := newDisplay(t)
	if _, err := m.PIO(1).AddProgram([]uint16{0xe000, 0xe000, 0xe000, 0xe000}, -1); err != nil {
		t.Fatalf("AddProgram: %v", err)
	}
	err := d.Init(Config{})
	if !errors.Is(err, rp2.ErrOutOfProgramSpace) {
		t.Fatalf("Init() = %v, want %v", err, rp2.ErrOutOfProgramSpace)
	}
	if d.State() != Uninitialized {
		t.Fatalf("State() = %v, want %v", d.State(), Uninitialized)
	}
	if got := m.PIO(1).UsedInstructions(); got != 4 {
		t.Fatalf("UsedInstructions after failure = %d, want 4", got)
	}
	if again := d.Init(Config{}); again != err {
		t.Fatalf("Init() after failure = %v, want sticky %v", again, err)
	}
	if err := d.FillScreen(Red); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("FillScreen() = %v, want %v", err, ErrNotInitialized)
	}
}

func TestInitFailsOnChannelExhaustion(t *testing.T) {
	m, d := newDisplay(t)
	dma := m.DMA()
	for i := 0; i < rp2.NumDMAChannels-2; i++ {
		if _, err := dma.ClaimUnused(); err != nil {
			t.Fatalf("ClaimUnused: %v", err)
		}
	}
	err := d.Init(Config{})
	if !errors.Is(err, rp2.ErrNoChannel) {
		t.Fatalf("Init() = %v, want %v", err, rp2.ErrNoChannel)
	}
	if d.State() != ProgramsLoaded {
		t.Fatalf("State() = %v, want %v", d.State(), ProgramsLoaded)
	}
	if dma.IsClaimed(rp2.NumDMAChannels - 1) {
		t.Fatalf("partially claimed channels were not released")
	}
	pio := m.PIO(1)
	if n := pio.UsedInstructions(); n != 0 {
		t.Fatalf("UsedInstructions() = %d after failed init, want 0", n)
	}
	if pio.StateMachine(rgbSM).IsClaimed() {
		t.Fatalf("state machines were not released")
	}
}

func TestInitFailsWhenStateMachineIsTaken(t *testing.T) {
	m, d := newDisplay(t)
	pio := m.PIO(1)
	if !pio.StateMachine(vsyncSM).TryClaim() {
		t.Fatalf("TryClaim() = false on a fresh block")
	}
	err := d.Init(Config{})
	if !errors.Is(err, ErrStateMachineClaimed) {
		t.Fatalf("Init() = %v, want %v", err, ErrStateMachineClaimed)
	}
	if pio.StateMachine(hsyncSM).IsClaimed() {
		t.Fatalf("hsync state machine was not released")
	}
	if n := pio.UsedInstructions(); n != 0 {
		t.Fatalf("UsedInstructions() = %d after failed init, want 0", n)
	}
}

func TestInitRejectsOverlappingPins(t *testing.T) {
	for _, p := range []Pins{
		{VSync: 16, HSync: 16, Color: 18, PixelClock: 21},
		{VSync: 16, HSync: 17, Color: 18, PixelClock: 19},
		{VSync: 16, HSync: 17, Color: 28, PixelClock: 21},
		{VSync: 30, HSync: 17, Color: 18, PixelClock: 21},
	} {
		_, d := newDisplay(t)
		if err := d.Init(Config{Pins: p}); !errors.Is(err, ErrInvalidPins) {
			t.Fatalf("Init(%+v) = %v, want %v", p, err, ErrInvalidPins)
		}
	}
}

func TestFrameOpsRequireArmedChain(t *testing.T) {
	_, d := newDisplay(t)
	if err := d.FillScreen(White); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("FillScreen() = %v, want %v", err, ErrNotInitialized)
	}
	if err := d.DrawFrame(make([]byte, FrameLen)); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("DrawFrame() = %v, want %v", err, ErrNotInitialized)
	}
	if err := d.DrawFrame(make([]byte, FrameLen-1)); !errors.Is(err, ErrFrameSize) {
		t.Fatalf("DrawFrame(short) = %v, want %v", err, ErrFrameSize)
	}
}

func TestChainAlternatesAndRearms(t *testing.T) {
	m, d := newDisplay(t)
	if err := d.Init(Config{}); err != nil {
		t.Fatalf("Init: %v", err)
	}
	dma := m.DMA()
	chain := d.Chain()
	a, b := chain.Channels()

	if chain.State() != ChainStreaming || !dma.Busy(a) || dma.Busy(b) {
		t.Fatalf("after arm: state %v busyA %v busyB %v", chain.State(), dma.Busy(a), dma.Busy(b))
	}
	for dma.Completions(a) == 0 {
		m.Step(1)
		if dma.Busy(a) && dma.Busy(b) {
			t.Fatalf("both scanout channels busy at cycle %d", m.Cycles())
		}
	}
	if chain.State() != ChainRearming || dma.Busy(a) || !dma.Busy(b) {
		t.Fatalf("after A: state %v busyA %v busyB %v", chain.State(), dma.Busy(a), dma.Busy(b))
	}
	m.Step(1)
	if chain.State() != ChainStreaming || !dma.Busy(a) || dma.Busy(b) {
		t.Fatalf("after B: state %v busyA %v busyB %v", chain.State(), dma.Busy(a), dma.Busy(b))
	}
	if got := dma.ReadAddr(a); got != d.fbAddr {
		t.Fatalf("A READ_ADDR = %#x, want framebuffer %#x", got, d.fbAddr)
	}
	if got := dma.TransCount(a); got != FrameLen {
		t.Fatalf("A TRANS_COUNT = %d, want %d", got, FrameLen)
	}

	m.Step(2 * CyclesPerFrame)
	if chain.Frames() != 3 || chain.Rearms() != 3 {
		t.Fatalf("frames %d rearms %d, want 3 and 3", chain.Frames(), chain.Rearms())
	}
	if chain.Faults() != 0 {
		t.Fatalf("Faults() = %d, want 0", chain.Faults())
	}
}

func TestGeneratorsRunInLockStep(t *testing.T) {
	m, d := newDisplay(t)
	if err := d.Init(Config{}); err != nil {
		t.Fatalf("Init: %v", err)
	}
	m.Step(CyclesPerFrame)
	p := m.PIO(1)
	h, v, rgb := p.StateMachine(hsyncSM).Cycles(), p.StateMachine(vsyncSM).Cycles(), p.StateMachine(rgbSM).Cycles()
	if h != CyclesPerFrame || v != h || rgb != h {
		t.Fatalf("cycles hsync %d vsync %d rgb %d, want %d each", h, v, rgb, CyclesPerFrame)
	}
	if got := p.StateMachine(2).Cycles(); got != 0 {
		t.Fatalf("unused sm2 ran %d cycles", got)
	}
}

func TestMonitorSeesFramebuffer(t *testing.T) {
	m, d := newDisplay(t)
	mon := NewMonitor(DefaultPins)
	m.AddProbe(mon.Probe)

	buf := d.Framebuffer().Bytes()
	for y := 0; y < Height; y++ {
		for x := 0; x < Width; x++ {
			buf[y*Width+x] = Pack(Color((x/40 + y/30) & 7))
		}
	}
	if err := d.Init(Config{}); err != nil {
		t.Fatalf("Init: %v", err)
	}
	m.Step(3 * CyclesPerFrame)

	if mon.Frames() != 3 {
		t.Fatalf("Frames() = %d, want 3", mon.Frames())
	}
	if mon.FramePeriod() != CyclesPerFrame {
		t.Fatalf("FramePeriod() = %d, want %d", mon.FramePeriod(), CyclesPerFrame)
	}
	if mon.Pixels() < 2*FrameLen {
		t.Fatalf("Pixels() = %d, want at least %d", mon.Pixels(), 2*FrameLen)
	}
	got := make([]byte, FrameLen)
	mon.Snapshot(got)
	for i := range got {
		if got[i] != buf[i]&7 {
			t.Fatalf("raster[%d,%d] = %d, want %d", i%Width, i/Width, got[i], buf[i]&7)
		}
	}
}

func TestFillScreenThenDrawFrame(t *testing.T) {
	m, d := newDisplay(t)
	if err := d.Init(Config{}); err != nil {
		t.Fatalf("Init: %v", err)
	}
	startClock(t, m)

	if err := d.FillScreen(Red); err != nil {
		t.Fatalf("FillScreen: %v", err)
	}
	buf := d.Framebuffer().Bytes()
	for i, b := range buf {
		if b != 0x24 {
			t.Fatalf("after FillScreen(Red) byte %d = %#x, want 0x24", i, b)
		}
	}

	white := make([]byte, FrameLen)
	for i := range white {
		white[i] = Pack(White)
	}
	if err := d.DrawFrame(white); err != nil {
		t.Fatalf("DrawFrame: %v", err)
	}
	for i, b := range buf {
		if b != 0x3F {
			t.Fatalf("after DrawFrame(white) byte %d = %#x, want 0x3f", i, b)
		}
	}
}

func TestFillScreenIsIdempotent(t *testing.T) {
	m, d := newDisplay(t)
	if err := d.Init(Config{}); err != nil {
		t.Fatalf("Init: %v", err)
	}
	startClock(t, m)

	for i := 0; i < 2; i++ {
		if err := d.FillScreen(Cyan); err != nil {
			t.Fatalf("FillScreen: %v", err)
		}
	}
	want := Pack(Cyan)
	for i, b := range d.Framebuffer().Bytes() {
		if b != want {
			t.Fatalf("byte %d = %#x, want %#x", i, b, want)
		}
	}
}

func TestConcurrentFillsSerialize(t *testing.T) {
	m, d := newDisplay(t)
	if err := d.Init(Config{}); err != nil {
		t.Fatalf("Init: %v", err)
	}
	startClock(t, m)

	var wg sync.WaitGroup
	for _, c := range []Color{Red, Green, Blue, White} {
		wg.Add(1)
		go func(c Color) {
			defer wg.Done()
			if err := d.FillScreen(c); err != nil {
				t.Errorf("FillScreen(%d): %v", c, err)
			}
		}(c)
	}
	wg.Wait()

	buf := d.Framebuffer().Bytes()
	for i, b := range buf {
		if b != buf[0] {
			t.Fatalf("byte %d = %#x, byte 0 = %#x: fills interleaved", i, b, buf[0])
		}
	}
}

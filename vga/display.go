//go:build !tinygo

package vga

import (
	"fmt"
	"runtime"
	"sync"

	"picovga/rp2"
)

// Display is the scanout engine on the host model. The framebuffer and the
// origin cell channel B reads from both live in the machine's SRAM.
type Display struct {
	mu    sync.Mutex
	m     *rp2.Machine
	pio   *rp2.PIO
	fb    Framebuffer
	state State
	err   error
	cfg   Config

	fbAddr     rp2.Addr
	origin     []byte
	originAddr rp2.Addr

	chanA, chanB int
	chain        *Chain
	accel        *Accelerator
}

// New reserves the framebuffer and origin cell on m. Nothing runs until Init.
func New(m *rp2.Machine) (*Display, error) {
	fbAddr, buf, err := m.Alloc(FrameLen, 4)
	if err != nil {
		return nil, fmt.Errorf("vga: framebuffer: %w", err)
	}
	originAddr, origin, err := m.Alloc(4, 4)
	if err != nil {
		return nil, fmt.Errorf("vga: origin cell: %w", err)
	}
	return &Display{
		m:          m,
		pio:        m.PIO(1),
		fb:         Framebuffer{buf: buf},
		fbAddr:     fbAddr,
		origin:     origin,
		originAddr: originAddr,
		chanA:      -1,
		chanB:      -1,
	}, nil
}

// InitDisplay initializes with the given pins and default timing.
func (d *Display) InitDisplay(vsync, hsync, color, pclk uint8) error {
	return d.Init(Config{Pins: Pins{VSync: vsync, HSync: hsync, Color: color, PixelClock: pclk}})
}

// Init loads the timing programs, claims three DMA channels, seeds the
// generators, starts them in lock-step and arms the scanout chain. It runs
// once; a failure is sticky and later calls return the same error.
func (d *Display) Init(cfg Config) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	if d.state != Uninitialized {
		return ErrAlreadyInitialized
	}
	d.cfg = cfg.withDefaults()
	if err := d.init(); err != nil {
		d.err = fmt.Errorf("vga: init stopped at %s: %w", d.state, err)
		logLine(d.cfg.Logger, d.err.Error())
		return d.err
	}
	return nil
}

func (d *Display) advance(s State, detail string) {
	d.state = s
	if detail != "" {
		logLine(d.cfg.Logger, "vga: "+s.String()+" "+detail)
	} else {
		logLine(d.cfg.Logger, "vga: "+s.String())
	}
}

func (d *Display) init() error {
	pins := d.cfg.Pins
	if err := pins.validate(); err != nil {
		return err
	}

	offsets, err := d.loadPrograms()
	if err != nil {
		return err
	}
	sms := [3]*rp2.StateMachine{
		d.pio.StateMachine(hsyncSM),
		d.pio.StateMachine(vsyncSM),
		d.pio.StateMachine(rgbSM),
	}
	claimed := 0
	release := func() {
		for _, sm := range sms[:claimed] {
			sm.Unclaim()
		}
		d.unloadPrograms(offsets)
	}
	for _, sm := range sms {
		if !sm.TryClaim() {
			release()
			return fmt.Errorf("sm%d: %w", sm.StateMachineIndex(), ErrStateMachineClaimed)
		}
		claimed++
	}
	// Sync outputs idle high so the first falling edges mark real pulses.
	sms[0].SetPinsConsecutive(pins.HSync, 1, true)
	sms[1].SetPinsConsecutive(pins.VSync, 1, true)
	hsyncProgramInit(sms[0], offsets[0], pins.HSync)
	vsyncProgramInit(sms[1], offsets[1], pins.VSync)
	rgbProgramInit(sms[2], offsets[2], pins.Color, pins.PixelClock)
	d.advance(ProgramsLoaded, fmt.Sprintf("hsync@%d vsync@%d rgb@%d", offsets[0], offsets[1], offsets[2]))

	if err := d.claimChannels(); err != nil {
		release()
		return err
	}
	d.configureChain(sms[2])
	d.advance(ChannelsAllocated, fmt.Sprintf("a=%d b=%d bulk=%d", d.chanA, d.chanB, d.accel.Channel()))

	putBlocking(sms[0], d.cfg.HSyncSeed)
	putBlocking(sms[1], d.cfg.VSyncSeed)
	putBlocking(sms[2], d.cfg.RGBSeed)
	d.advance(ParametersSeeded, "")

	// Generators and channel A start between the same two clock cycles.
	d.m.Atomic(func(b *rp2.Bus) {
		ctrl := d.pio.Base() + rp2.PIOCtrl
		b.Write(ctrl+rp2.AliasSet, 4, smMask<<rp2.PIOCtrlSMEnablePos|smMask<<rp2.PIOCtrlClkDivRestartPos)
		d.chain.arm()
		b.Write(rp2.DMABase+rp2.MultiChanTrigger, 4, 1<<d.chanA)
	})
	d.advance(GeneratorsRunning, "")
	d.advance(ChainArmed, "")
	return nil
}

func (d *Display) loadPrograms() ([3]uint8, error) {
	var offsets [3]uint8
	progs := [3][]uint16{hsyncInstructions, vsyncInstructions, rgbInstructions}
	origins := [3]int8{hsyncOrigin, vsyncOrigin, rgbOrigin}
	for i, prog := range progs {
		off, err := d.pio.AddProgram(prog, origins[i])
		if err != nil {
			for j := 0; j < i; j++ {
				d.pio.ClearProgramSection(offsets[j], uint8(len(progs[j])))
			}
			return offsets, err
		}
		offsets[i] = off
	}
	return offsets, nil
}

func (d *Display) unloadPrograms(offsets [3]uint8) {
	progs := [3][]uint16{hsyncInstructions, vsyncInstructions, rgbInstructions}
	for i, prog := range progs {
		d.pio.ClearProgramSection(offsets[i], uint8(len(prog)))
	}
}

func (d *Display) claimChannels() error {
	dma := d.m.DMA()
	var chans [3]int
	for i := range chans {
		ch, err := dma.ClaimUnused()
		if err != nil {
			for j := 0; j < i; j++ {
				dma.Unclaim(chans[j])
			}
			return err
		}
		chans[i] = ch
	}
	accel, err := newAccelerator(d.m, chans[2])
	if err != nil {
		for _, ch := range chans {
			dma.Unclaim(ch)
		}
		return err
	}
	d.chanA, d.chanB = chans[0], chans[1]
	d.accel = accel
	d.chain = newChain(d.chanA, d.chanB)
	return nil
}

// configureChain wires A to stream the framebuffer into the rgb FIFO and B
// to reload A's read address from the origin cell. Neither is started.
func (d *Display) configureChain(rgb *rp2.StateMachine) {
	dma := d.m.DMA()
	dma.SetCompletionHandler(d.chain.complete)

	d.origin[0] = byte(d.fbAddr)
	d.origin[1] = byte(d.fbAddr >> 8)
	d.origin[2] = byte(d.fbAddr >> 16)
	d.origin[3] = byte(d.fbAddr >> 24)

	a := dma.DefaultChannelConfig(d.chanA)
	a.SetTransferDataSize(rp2.Size8)
	a.SetReadIncrement(true)
	a.SetWriteIncrement(false)
	a.SetDREQ(rgb.TxDREQ())
	a.SetChainTo(uint8(d.chanB))
	dma.Configure(d.chanA, a, rgb.TxAddr(), d.fbAddr, FrameLen, false)

	b := dma.DefaultChannelConfig(d.chanB)
	b.SetTransferDataSize(rp2.Size32)
	b.SetReadIncrement(false)
	b.SetWriteIncrement(false)
	b.SetChainTo(uint8(d.chanA))
	dma.Configure(d.chanB, b, dma.RegisterAddr(d.chanA, rp2.RegReadAddr), d.originAddr, 1, false)
}

func putBlocking(sm *rp2.StateMachine, v uint32) {
	for sm.IsTxFIFOFull() {
		runtime.Gosched()
	}
	sm.TxPut(v)
}

func hsyncProgramInit(sm *rp2.StateMachine, offset, pin uint8) {
	cfg := rp2.DefaultStateMachineConfig()
	cfg.SetWrap(offset+hsyncWrapTarget, offset+hsyncWrap)
	cfg.SetSetPins(pin, 1)
	sm.Init(offset, cfg)
}

func vsyncProgramInit(sm *rp2.StateMachine, offset, pin uint8) {
	cfg := rp2.DefaultStateMachineConfig()
	cfg.SetWrap(offset+vsyncWrapTarget, offset+vsyncWrap)
	cfg.SetSetPins(pin, 1)
	sm.Init(offset, cfg)
}

func rgbProgramInit(sm *rp2.StateMachine, offset, pin, pclk uint8) {
	cfg := rp2.DefaultStateMachineConfig()
	cfg.SetWrap(offset+rgbWrapTarget, offset+rgbWrap)
	cfg.SetSidesetParams(1, false, false)
	cfg.SetSidesetPins(pclk)
	cfg.SetSetPins(pin, 3)
	cfg.SetOutPins(pin, 3)
	cfg.SetFIFOJoin(rp2.FifoJoinTx)
	sm.Init(offset, cfg)
}

// State returns how far initialization got.
func (d *Display) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Err returns the sticky initialization error, if any.
func (d *Display) Err() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.err
}

// Framebuffer returns the scanned-out pixel store.
func (d *Display) Framebuffer() *Framebuffer { return &d.fb }

// Config returns the configuration Init ran with.
func (d *Display) Config() Config {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cfg
}

// Chain returns the scanout chain tracker, or nil before channels are claimed.
func (d *Display) Chain() *Chain {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.chain
}

// Accelerator returns the bulk transfer engine, or nil before channels are
// claimed.
func (d *Display) Accelerator() *Accelerator {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.accel
}

func (d *Display) armed() (*Accelerator, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state != ChainArmed {
		return nil, ErrNotInitialized
	}
	return d.accel, nil
}

// FillScreen sets every pixel to c.
func (d *Display) FillScreen(c Color) error {
	accel, err := d.armed()
	if err != nil {
		return err
	}
	accel.Memset(d.fb.buf, Pack(c), FrameLen)
	return nil
}

// DrawFrame copies one frame from src into the framebuffer.
func (d *Display) DrawFrame(src []byte) error {
	if len(src) < FrameLen {
		return fmt.Errorf("%w: %d bytes", ErrFrameSize, len(src))
	}
	accel, err := d.armed()
	if err != nil {
		return err
	}
	accel.Memcpy(d.fb.buf, src, FrameLen)
	return nil
}

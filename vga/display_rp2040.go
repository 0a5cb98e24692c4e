//go:build tinygo && rp2040

package vga

import (
	"device/rp"
	"errors"
	"fmt"
	"machine"
	"runtime"
	"runtime/volatile"
	"sync"
	"unsafe"

	pio "github.com/tinygo-org/pio/rp2-pio"
)

// Static storage: channel B reads the address in origin and writes it into
// channel A's READ_ADDR once per frame.
var (
	frame  [FrameLen]byte
	origin uint32
)

var ErrNoChannel = errors.New("vga: no dma channel available")

const numDMAChannels = 12

type dmaChannelHW struct {
	READ_ADDR   volatile.Register32
	WRITE_ADDR  volatile.Register32
	TRANS_COUNT volatile.Register32
	CTRL_TRIG   volatile.Register32
	AL1_CTRL    volatile.Register32
	_           [11]volatile.Register32
}

func dmaChannel(ch uint8) *dmaChannelHW {
	return (*dmaChannelHW)(unsafe.Add(unsafe.Pointer(&rp.DMA.CH0_READ_ADDR), uintptr(ch)*unsafe.Sizeof(dmaChannelHW{})))
}

var (
	dmaMu      sync.Mutex
	dmaClaimed uint16
)

func claimUnusedChannel() (uint8, error) {
	dmaMu.Lock()
	defer dmaMu.Unlock()
	for ch := uint8(0); ch < numDMAChannels; ch++ {
		if dmaClaimed&(1<<ch) == 0 {
			dmaClaimed |= 1 << ch
			return ch, nil
		}
	}
	return 0, ErrNoChannel
}

func unclaimChannel(ch uint8) {
	dmaMu.Lock()
	dmaClaimed &^= 1 << ch
	dmaMu.Unlock()
}

const (
	dmaSizeByte = rp.DMA_CH0_CTRL_TRIG_DATA_SIZE_SIZE_BYTE
	dmaSizeWord = rp.DMA_CH0_CTRL_TRIG_DATA_SIZE_SIZE_WORD
)

// dmaCtrl assembles a CTRL word with the channel enabled.
func dmaCtrl(size uint32, incrRead, incrWrite bool, treq uint32, chainTo uint8) uint32 {
	ctrl := size<<rp.DMA_CH0_CTRL_TRIG_DATA_SIZE_Pos |
		treq<<rp.DMA_CH0_CTRL_TRIG_TREQ_SEL_Pos |
		uint32(chainTo)<<rp.DMA_CH0_CTRL_TRIG_CHAIN_TO_Pos |
		rp.DMA_CH0_CTRL_TRIG_IRQ_QUIET |
		rp.DMA_CH0_CTRL_TRIG_EN
	if incrRead {
		ctrl |= rp.DMA_CH0_CTRL_TRIG_INCR_READ
	}
	if incrWrite {
		ctrl |= rp.DMA_CH0_CTRL_TRIG_INCR_WRITE
	}
	return ctrl
}

func waitForFinish(ch *dmaChannelHW) {
	for ch.CTRL_TRIG.Get()&rp.DMA_CH0_CTRL_TRIG_BUSY_Msk != 0 {
		runtime.Gosched()
	}
}

func addrOf(p unsafe.Pointer) uint32 { return uint32(uintptr(p)) }

// Accelerator runs bulk fills and copies on one dedicated DMA channel.
// Calls block until the transfer completes and are serialized.
type Accelerator struct {
	mu   sync.Mutex
	ch   uint8
	cell byte
}

// Channel returns the DMA channel used for bulk transfers.
func (a *Accelerator) Channel() int { return int(a.ch) }

// Memset writes val to the first n bytes of dst.
func (a *Accelerator) Memset(dst []byte, val byte, n int) {
	if n == 0 {
		return
	}
	dst = dst[:n]
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cell = val
	hw := dmaChannel(a.ch)
	hw.READ_ADDR.Set(addrOf(unsafe.Pointer(&a.cell)))
	hw.WRITE_ADDR.Set(addrOf(unsafe.Pointer(unsafe.SliceData(dst))))
	hw.TRANS_COUNT.Set(uint32(n))
	hw.CTRL_TRIG.Set(dmaCtrl(dmaSizeByte, false, true, rp.DMA_CH0_CTRL_TRIG_TREQ_SEL_PERMANENT, a.ch))
	waitForFinish(hw)
}

// Memcpy copies the first n bytes of src into dst.
func (a *Accelerator) Memcpy(dst, src []byte, n int) {
	if n == 0 {
		return
	}
	dst, src = dst[:n], src[:n]
	a.mu.Lock()
	defer a.mu.Unlock()
	hw := dmaChannel(a.ch)
	hw.READ_ADDR.Set(addrOf(unsafe.Pointer(unsafe.SliceData(src))))
	hw.WRITE_ADDR.Set(addrOf(unsafe.Pointer(unsafe.SliceData(dst))))
	hw.TRANS_COUNT.Set(uint32(n))
	hw.CTRL_TRIG.Set(dmaCtrl(dmaSizeByte, true, true, rp.DMA_CH0_CTRL_TRIG_TREQ_SEL_PERMANENT, a.ch))
	waitForFinish(hw)
}

// Display is the scanout engine on PIO1 and three DMA channels. There is a
// single framebuffer per program; every Display returned by New shares it.
type Display struct {
	mu    sync.Mutex
	pio   *pio.PIO
	fb    Framebuffer
	state State
	err   error
	cfg   Config

	chanA, chanB uint8
	accel        *Accelerator
}

// New returns the display backed by the static framebuffer.
func New() *Display {
	return &Display{pio: pio.PIO1, fb: Framebuffer{buf: frame[:]}}
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

	hsyncOffset, err := d.pio.AddProgram(hsyncInstructions, hsyncOrigin)
	if err != nil {
		return err
	}
	vsyncOffset, err := d.pio.AddProgram(vsyncInstructions, vsyncOrigin)
	if err != nil {
		d.pio.ClearProgramSection(hsyncOffset, uint8(len(hsyncInstructions)))
		return err
	}
	rgbOffset, err := d.pio.AddProgram(rgbInstructions, rgbOrigin)
	if err != nil {
		d.pio.ClearProgramSection(hsyncOffset, uint8(len(hsyncInstructions)))
		d.pio.ClearProgramSection(vsyncOffset, uint8(len(vsyncInstructions)))
		return err
	}
	hsync := d.pio.StateMachine(hsyncSM)
	vsync := d.pio.StateMachine(vsyncSM)
	rgb := d.pio.StateMachine(rgbSM)
	sms := []pio.StateMachine{hsync, vsync, rgb}
	claimed := 0
	release := func() {
		for _, sm := range sms[:claimed] {
			sm.Unclaim()
		}
		d.pio.ClearProgramSection(hsyncOffset, uint8(len(hsyncInstructions)))
		d.pio.ClearProgramSection(vsyncOffset, uint8(len(vsyncInstructions)))
		d.pio.ClearProgramSection(rgbOffset, uint8(len(rgbInstructions)))
	}
	for _, sm := range sms {
		if !sm.TryClaim() {
			release()
			return fmt.Errorf("sm%d: %w", sm.StateMachineIndex(), ErrStateMachineClaimed)
		}
		claimed++
	}
	hsyncProgramInit(hsync, hsyncOffset, machine.Pin(pins.HSync))
	vsyncProgramInit(vsync, vsyncOffset, machine.Pin(pins.VSync))
	rgbProgramInit(rgb, rgbOffset, machine.Pin(pins.Color), machine.Pin(pins.PixelClock))
	d.advance(ProgramsLoaded, fmt.Sprintf("hsync@%d vsync@%d rgb@%d", hsyncOffset, vsyncOffset, rgbOffset))

	var chans [3]uint8
	for i := range chans {
		ch, err := claimUnusedChannel()
		if err != nil {
			for j := 0; j < i; j++ {
				unclaimChannel(chans[j])
			}
			release()
			return err
		}
		chans[i] = ch
	}
	d.chanA, d.chanB = chans[0], chans[1]
	d.accel = &Accelerator{ch: chans[2]}
	d.configureChain(rgb)
	d.advance(ChannelsAllocated, fmt.Sprintf("a=%d b=%d bulk=%d", d.chanA, d.chanB, chans[2]))

	putBlocking(hsync, d.cfg.HSyncSeed)
	putBlocking(vsync, d.cfg.VSyncSeed)
	putBlocking(rgb, d.cfg.RGBSeed)
	d.advance(ParametersSeeded, "")

	d.pio.HW().CTRL.SetBits(smMask<<rp.PIO0_CTRL_SM_ENABLE_Pos | smMask<<rp.PIO0_CTRL_CLKDIV_RESTART_Pos)
	d.advance(GeneratorsRunning, "")

	rp.DMA.MULTI_CHAN_TRIGGER.Set(1 << d.chanA)
	d.advance(ChainArmed, "")
	return nil
}

func (d *Display) configureChain(rgb pio.StateMachine) {
	origin = addrOf(unsafe.Pointer(&frame[0]))
	dreq := uint32(d.pio.BlockIndex())*8 + uint32(rgb.StateMachineIndex())

	a := dmaChannel(d.chanA)
	a.READ_ADDR.Set(origin)
	a.WRITE_ADDR.Set(addrOf(unsafe.Pointer(rgb.TxReg())))
	a.TRANS_COUNT.Set(FrameLen)
	a.AL1_CTRL.Set(dmaCtrl(dmaSizeByte, true, false, dreq, d.chanB))

	b := dmaChannel(d.chanB)
	b.READ_ADDR.Set(addrOf(unsafe.Pointer(&origin)))
	b.WRITE_ADDR.Set(addrOf(unsafe.Pointer(&a.READ_ADDR)))
	b.TRANS_COUNT.Set(1)
	b.AL1_CTRL.Set(dmaCtrl(dmaSizeWord, false, false, rp.DMA_CH0_CTRL_TRIG_TREQ_SEL_PERMANENT, d.chanA))
}

func putBlocking(sm pio.StateMachine, v uint32) {
	for sm.IsTxFIFOFull() {
		runtime.Gosched()
	}
	sm.TxPut(v)
}

func hsyncProgramInit(sm pio.StateMachine, offset uint8, pin machine.Pin) {
	pin.Configure(machine.PinConfig{Mode: sm.PIO().PinMode()})
	sm.SetPinsConsecutive(pin, 1, true)
	sm.SetPindirsConsecutive(pin, 1, true)
	cfg := pio.DefaultStateMachineConfig()
	cfg.SetWrap(offset+hsyncWrapTarget, offset+hsyncWrap)
	cfg.SetSetPins(pin, 1)
	sm.Init(offset, cfg)
}

func vsyncProgramInit(sm pio.StateMachine, offset uint8, pin machine.Pin) {
	pin.Configure(machine.PinConfig{Mode: sm.PIO().PinMode()})
	sm.SetPinsConsecutive(pin, 1, true)
	sm.SetPindirsConsecutive(pin, 1, true)
	cfg := pio.DefaultStateMachineConfig()
	cfg.SetWrap(offset+vsyncWrapTarget, offset+vsyncWrap)
	cfg.SetSetPins(pin, 1)
	sm.Init(offset, cfg)
}

func rgbProgramInit(sm pio.StateMachine, offset uint8, pin, pclk machine.Pin) {
	for i := machine.Pin(0); i < 3; i++ {
		(pin + i).Configure(machine.PinConfig{Mode: sm.PIO().PinMode()})
	}
	pclk.Configure(machine.PinConfig{Mode: sm.PIO().PinMode()})
	sm.SetPindirsConsecutive(pin, 3, true)
	sm.SetPindirsConsecutive(pclk, 1, true)
	cfg := pio.DefaultStateMachineConfig()
	cfg.SetWrap(offset+rgbWrapTarget, offset+rgbWrap)
	cfg.SetSidesetParams(1, false, false)
	cfg.SetSidesetPins(pclk)
	cfg.SetSetPins(pin, 3)
	cfg.SetOutPins(pin, 3)
	cfg.SetFIFOJoin(pio.FifoJoinTx)
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

package rp2

import (
	"errors"
	"fmt"
)

// NumDMAChannels is the number of DMA channels on the RP2040.
const NumDMAChannels = 12

// Per-channel register offsets. Channels are spaced dmaChannelStride apart.
const (
	RegReadAddr   uint32 = 0x0
	RegWriteAddr  uint32 = 0x4
	RegTransCount uint32 = 0x8
	RegCtrlTrig   uint32 = 0xC
	RegAl1Ctrl    uint32 = 0x10

	// MultiChanTrigger starts every channel whose bit is written.
	MultiChanTrigger uint32 = 0x430

	dmaChannelStride = 0x40
)

// CTRL_TRIG bit layout.
const (
	ctrlEN           = 1 << 0
	ctrlHighPriority = 1 << 1
	ctrlDataSizePos  = 2
	ctrlDataSizeMsk  = 0x3 << ctrlDataSizePos
	ctrlIncrRead     = 1 << 4
	ctrlIncrWrite    = 1 << 5
	ctrlRingPos      = 6
	ctrlChainToPos   = 11
	ctrlChainToMsk   = 0xF << ctrlChainToPos
	ctrlTreqSelPos   = 15
	ctrlTreqSelMsk   = 0x3F << ctrlTreqSelPos
	ctrlIRQQuiet     = 1 << 21
	ctrlBSwap        = 1 << 22
	ctrlSniffEn      = 1 << 23
	ctrlBusy         = 1 << 24
)

// DREQ numbers. PIO TX requests are PIOn*8 + sm, RX requests add 4.
const (
	DREQPIO0TX0      uint8 = 0x00
	DREQPIO0RX0      uint8 = 0x04
	DREQPIO1TX0      uint8 = 0x08
	DREQPIO1RX0      uint8 = 0x0C
	DREQPermanent    uint8 = 0x3F
	dreqPIOSelectMax uint8 = 0x0F
)

// TransferSize is the width of a single DMA transfer.
type TransferSize uint8

const (
	Size8  TransferSize = 0
	Size16 TransferSize = 1
	Size32 TransferSize = 2
)

func (s TransferSize) bytes() uint32 { return 1 << s }

var (
	ErrNoChannel      = errors.New("rp2: no dma channel available")
	ErrChannelClaimed = errors.New("rp2: dma channel already claimed")
)

// ChannelConfig is the CTRL word of a channel before it is written.
type ChannelConfig struct {
	CTRL uint32
}

// SetTransferDataSize sets the width of each transfer.
func (c *ChannelConfig) SetTransferDataSize(size TransferSize) {
	c.CTRL = c.CTRL&^ctrlDataSizeMsk | uint32(size)<<ctrlDataSizePos
}

// SetReadIncrement selects whether the read address advances after each transfer.
func (c *ChannelConfig) SetReadIncrement(incr bool) { c.setBit(ctrlIncrRead, incr) }

// SetWriteIncrement selects whether the write address advances after each transfer.
func (c *ChannelConfig) SetWriteIncrement(incr bool) { c.setBit(ctrlIncrWrite, incr) }

// SetDREQ selects the transfer request signal that paces the channel.
func (c *ChannelConfig) SetDREQ(dreq uint8) {
	c.CTRL = c.CTRL&^ctrlTreqSelMsk | uint32(dreq&0x3F)<<ctrlTreqSelPos
}

// SetChainTo names the channel triggered when this one completes. A channel
// chained to itself does not chain.
func (c *ChannelConfig) SetChainTo(ch uint8) {
	c.CTRL = c.CTRL&^ctrlChainToMsk | uint32(ch&0xF)<<ctrlChainToPos
}

// SetIRQQuiet suppresses the completion interrupt.
func (c *ChannelConfig) SetIRQQuiet(quiet bool) { c.setBit(ctrlIRQQuiet, quiet) }

// SetEnable sets the EN bit. A disabled channel ignores triggers.
func (c *ChannelConfig) SetEnable(enable bool) { c.setBit(ctrlEN, enable) }

func (c *ChannelConfig) setBit(bit uint32, on bool) {
	if on {
		c.CTRL |= bit
	} else {
		c.CTRL &^= bit
	}
}

type dmaChannel struct {
	readAddr  Addr
	writeAddr Addr
	count     uint32
	reload    uint32
	ctrl      uint32
	busy      bool
	claimed   bool

	transfers   uint64
	completions uint64
}

func (c *dmaChannel) size() TransferSize {
	return TransferSize((c.ctrl & ctrlDataSizeMsk) >> ctrlDataSizePos)
}

func (c *dmaChannel) chainTo() int {
	return int((c.ctrl & ctrlChainToMsk) >> ctrlChainToPos)
}

func (c *dmaChannel) treq() uint8 {
	return uint8((c.ctrl & ctrlTreqSelMsk) >> ctrlTreqSelPos)
}

// DMA models the RP2040 DMA controller: twelve channels moving one unit per
// cycle each, paced by DREQ and chained through CHAIN_TO.
type DMA struct {
	m          *Machine
	ch         [NumDMAChannels]dmaChannel
	onComplete func(ch int)
}

func newDMA(m *Machine) *DMA {
	return &DMA{m: m}
}

// ClaimUnused claims the lowest free channel.
func (d *DMA) ClaimUnused() (int, error) {
	d.m.mu.Lock()
	defer d.m.mu.Unlock()
	for i := range d.ch {
		if !d.ch[i].claimed {
			d.ch[i].claimed = true
			return i, nil
		}
	}
	return -1, ErrNoChannel
}

// Claim claims a specific channel.
func (d *DMA) Claim(ch int) error {
	d.m.mu.Lock()
	defer d.m.mu.Unlock()
	if d.ch[ch].claimed {
		return fmt.Errorf("channel %d: %w", ch, ErrChannelClaimed)
	}
	d.ch[ch].claimed = true
	return nil
}

// Unclaim releases a channel.
func (d *DMA) Unclaim(ch int) {
	d.m.mu.Lock()
	d.ch[ch].claimed = false
	d.m.mu.Unlock()
}

// IsClaimed reports whether ch is claimed.
func (d *DMA) IsClaimed(ch int) bool {
	d.m.mu.Lock()
	defer d.m.mu.Unlock()
	return d.ch[ch].claimed
}

// DefaultChannelConfig returns the reset configuration used by the pico-sdk:
// enabled, 32-bit transfers, read increment, unpaced, chained to itself.
func (d *DMA) DefaultChannelConfig(ch int) ChannelConfig {
	var cfg ChannelConfig
	cfg.SetEnable(true)
	cfg.SetTransferDataSize(Size32)
	cfg.SetReadIncrement(true)
	cfg.SetWriteIncrement(false)
	cfg.SetDREQ(DREQPermanent)
	cfg.SetChainTo(uint8(ch))
	return cfg
}

// Configure loads all four channel registers. With trigger set the control
// word is written through CTRL_TRIG and the channel starts.
func (d *DMA) Configure(ch int, cfg ChannelConfig, write, read Addr, count uint32, trigger bool) {
	d.m.mu.Lock()
	defer d.m.mu.Unlock()
	base := Addr(ch) * dmaChannelStride
	d.Write32(base+RegReadAddr, read)
	d.Write32(base+RegWriteAddr, write)
	d.Write32(base+RegTransCount, count)
	if trigger {
		d.Write32(base+RegCtrlTrig, cfg.CTRL)
	} else {
		d.Write32(base+RegAl1Ctrl, cfg.CTRL)
	}
	d.m.cond.Broadcast()
}

// StartMask triggers every channel in mask at once.
func (d *DMA) StartMask(mask uint32) {
	d.m.mu.Lock()
	d.Write32(MultiChanTrigger, mask)
	d.m.cond.Broadcast()
	d.m.mu.Unlock()
}

// Busy reports whether ch has transfers outstanding.
func (d *DMA) Busy(ch int) bool {
	d.m.mu.Lock()
	defer d.m.mu.Unlock()
	return d.ch[ch].busy
}

// WaitForFinish blocks until ch is idle. The machine clock must be running
// in another goroutine for a busy channel to make progress.
func (d *DMA) WaitForFinish(ch int) {
	d.m.mu.Lock()
	for d.ch[ch].busy {
		d.m.cond.Wait()
	}
	d.m.mu.Unlock()
}

// ReadAddr returns the live read address of ch.
func (d *DMA) ReadAddr(ch int) Addr {
	d.m.mu.Lock()
	defer d.m.mu.Unlock()
	return d.ch[ch].readAddr
}

// TransCount returns the live transfer count of ch.
func (d *DMA) TransCount(ch int) uint32 {
	d.m.mu.Lock()
	defer d.m.mu.Unlock()
	return d.ch[ch].count
}

// Completions returns how many times ch has finished a block.
func (d *DMA) Completions(ch int) uint64 {
	d.m.mu.Lock()
	defer d.m.mu.Unlock()
	return d.ch[ch].completions
}

// Transfers returns how many units ch has moved.
func (d *DMA) Transfers(ch int) uint64 {
	d.m.mu.Lock()
	defer d.m.mu.Unlock()
	return d.ch[ch].transfers
}

// RegisterAddr returns the bus address of a channel register, for use as
// another channel's write address.
func (d *DMA) RegisterAddr(ch int, reg uint32) Addr {
	return DMABase + Addr(ch)*dmaChannelStride + reg
}

// SetCompletionHandler installs fn as the DMA interrupt. It runs on the
// clock goroutine with the machine lock held and must not call back into
// locking methods.
func (d *DMA) SetCompletionHandler(fn func(ch int)) {
	d.m.mu.Lock()
	d.onComplete = fn
	d.m.mu.Unlock()
}

// Read32 implements Device.
func (d *DMA) Read32(off uint32) uint32 {
	if off >= NumDMAChannels*dmaChannelStride {
		return 0
	}
	c := &d.ch[off/dmaChannelStride]
	switch off % dmaChannelStride {
	case RegReadAddr:
		return c.readAddr
	case RegWriteAddr:
		return c.writeAddr
	case RegTransCount:
		return c.count
	case RegCtrlTrig, RegAl1Ctrl:
		v := c.ctrl
		if c.busy {
			v |= ctrlBusy
		}
		return v
	}
	return 0
}

// Write32 implements Device.
func (d *DMA) Write32(off uint32, v uint32) {
	if off == MultiChanTrigger {
		for i := range d.ch {
			if v&(1<<i) != 0 {
				d.trigger(i)
			}
		}
		return
	}
	if off >= NumDMAChannels*dmaChannelStride {
		return
	}
	i := int(off / dmaChannelStride)
	c := &d.ch[i]
	switch off % dmaChannelStride {
	case RegReadAddr:
		c.readAddr = v
	case RegWriteAddr:
		c.writeAddr = v
	case RegTransCount:
		c.reload = v
	case RegAl1Ctrl:
		c.ctrl = v &^ ctrlBusy
	case RegCtrlTrig:
		c.ctrl = v &^ ctrlBusy
		d.trigger(i)
	}
}

func (d *DMA) trigger(i int) {
	c := &d.ch[i]
	if c.ctrl&ctrlEN == 0 || c.busy {
		return
	}
	c.count = c.reload
	if c.count == 0 {
		d.finish(i)
		return
	}
	c.busy = true
}

func (d *DMA) finish(i int) {
	c := &d.ch[i]
	c.busy = false
	c.completions++
	if next := c.chainTo(); next != i {
		d.trigger(next)
	}
	if c.ctrl&ctrlIRQQuiet == 0 && d.onComplete != nil {
		d.onComplete(i)
	}
}

// step advances every channel that was busy at the start of the cycle by
// one transfer. Channels triggered during the cycle start on the next one.
func (d *DMA) step() {
	var active uint32
	for i := range d.ch {
		if d.ch[i].busy {
			active |= 1 << i
		}
	}
	for i := range d.ch {
		if active&(1<<i) == 0 {
			continue
		}
		c := &d.ch[i]
		if !c.busy || !d.m.dreq(c.treq()) {
			continue
		}
		n := c.size().bytes()
		d.m.bus.Write(c.writeAddr, n, d.m.bus.Read(c.readAddr, n))
		if c.ctrl&ctrlIncrRead != 0 {
			c.readAddr += n
		}
		if c.ctrl&ctrlIncrWrite != 0 {
			c.writeAddr += n
		}
		c.transfers++
		c.count--
		if c.count == 0 {
			d.finish(i)
		}
	}
}

package rp2

import (
	"context"
	"runtime"
	"sync"
	"time"
)

// Probe observes pin levels once per cycle, after PIO and DMA have stepped.
// It runs with the machine lock held.
type Probe func(cycle uint64, levels uint32)

// Machine is the modelled chip: bus, DMA, two PIO blocks and GPIO, advanced
// one system clock cycle at a time. A single lock guards all of it; exported
// methods of every component take that lock.
type Machine struct {
	mu   sync.Mutex
	cond *sync.Cond

	bus    *Bus
	dma    *DMA
	pio    [2]*PIO
	gpio   gpioBank
	probes []Probe
	cycles uint64
}

// NewMachine returns a machine with all devices mapped and nothing running.
func NewMachine() *Machine {
	m := &Machine{bus: newBus()}
	m.cond = sync.NewCond(&m.mu)
	m.dma = newDMA(m)
	m.pio[0] = newPIO(m, 0)
	m.pio[1] = newPIO(m, 1)
	m.bus.mapDevice(DMABase, m.dma)
	m.bus.mapDevice(PIO0Base, m.pio[0])
	m.bus.mapDevice(PIO1Base, m.pio[1])
	return m
}

func (m *Machine) DMA() *DMA { return m.dma }

// PIO returns block 0 or 1.
func (m *Machine) PIO(index int) *PIO { return m.pio[index] }

// Alloc reserves zeroed SRAM. The returned slice aliases the memory the DMA
// reads and writes.
func (m *Machine) Alloc(n, align int) (Addr, []byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.bus.alloc(n, align)
}

// Resolve returns a bus address for p, mapping it into a temporary window
// when it does not live in SRAM. Call release once no channel targets it.
func (m *Machine) Resolve(p []byte) (addr Addr, release func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	addr, unmap := m.bus.resolve(p)
	return addr, func() {
		m.mu.Lock()
		unmap()
		m.mu.Unlock()
	}
}

// Read performs a bus read.
func (m *Machine) Read(addr Addr, size uint32) uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.bus.Read(addr, size)
}

// Write performs a bus write.
func (m *Machine) Write(addr Addr, size uint32, v uint32) {
	m.mu.Lock()
	m.bus.Write(addr, size, v)
	m.cond.Broadcast()
	m.mu.Unlock()
}

// Atomic runs fn with the machine lock held, so that a sequence of register
// writes lands between two clock cycles. fn must not call locking methods.
func (m *Machine) Atomic(fn func(b *Bus)) {
	m.mu.Lock()
	fn(m.bus)
	m.cond.Broadcast()
	m.mu.Unlock()
}

// LastFault returns the last bus address that decoded to nothing.
func (m *Machine) LastFault() Addr {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.bus.LastFault()
}

// Pins returns the current GPIO output levels.
func (m *Machine) Pins() uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.gpio.levels
}

// AddProbe registers p to run every cycle.
func (m *Machine) AddProbe(p Probe) {
	m.mu.Lock()
	m.probes = append(m.probes, p)
	m.mu.Unlock()
}

// Cycles returns the number of cycles stepped so far.
func (m *Machine) Cycles() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cycles
}

// Step advances the machine n cycles.
func (m *Machine) Step(n uint64) {
	m.mu.Lock()
	for i := uint64(0); i < n; i++ {
		m.tick()
	}
	m.cond.Broadcast()
	m.mu.Unlock()
}

func (m *Machine) tick() {
	m.pio[0].step()
	m.pio[1].step()
	m.dma.step()
	m.cycles++
	for _, p := range m.probes {
		p(m.cycles, m.gpio.levels)
	}
}

// dreq reports whether transfer request sel is asserted.
func (m *Machine) dreq(sel uint8) bool {
	if sel == DREQPermanent {
		return true
	}
	if sel > dreqPIOSelectMax {
		return false
	}
	sm := &m.pio[sel>>3].sm[sel&3]
	if sel&4 != 0 {
		// RX FIFOs are not modelled and never hold data.
		return false
	}
	return !sm.txFull()
}

// RunConfig paces Run.
type RunConfig struct {
	// Hz is the number of ticks per second. Zero runs unthrottled.
	Hz int
	// CyclesPerTick is the number of cycles stepped per tick.
	CyclesPerTick uint64
	// Chunk bounds how many cycles run under one lock hold.
	Chunk uint64
	// OnTick is called after each tick, without the lock held.
	OnTick func(tick uint64)
}

const defaultChunk = 4096

// Run steps the machine until ctx is done. Each tick runs CyclesPerTick
// cycles in chunks so that other goroutines can reach the lock in between.
func (m *Machine) Run(ctx context.Context, cfg RunConfig) error {
	if cfg.Chunk == 0 {
		cfg.Chunk = defaultChunk
	}
	if cfg.CyclesPerTick == 0 {
		cfg.CyclesPerTick = cfg.Chunk
	}

	var ticker *time.Ticker
	if cfg.Hz > 0 {
		ticker = time.NewTicker(time.Second / time.Duration(cfg.Hz))
		defer ticker.Stop()
	}

	for tick := uint64(1); ; tick++ {
		if ticker != nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
			}
		}
		for left := cfg.CyclesPerTick; left > 0; {
			if err := ctx.Err(); err != nil {
				return err
			}
			n := min(cfg.Chunk, left)
			m.Step(n)
			left -= n
			runtime.Gosched()
		}
		if cfg.OnTick != nil {
			cfg.OnTick(tick)
		}
	}
}

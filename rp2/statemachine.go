package rp2

import "math/bits"

// Major opcodes, bits 15:13 of an instruction.
const (
	opJmp = iota
	opWait
	opIn
	opOut
	opPushPull
	opMov
	opIRQ
	opSet
)

// StateMachine is one PIO state machine. Methods take the machine lock;
// step and the helpers below it assume it is held.
type StateMachine struct {
	pio   *PIO
	index uint8
	cfg   StateMachineConfig

	enabled bool
	pc      uint8
	x, y    uint32
	osr     uint32
	osrUsed uint8
	isr     uint32
	isrUsed uint8
	delay   uint8

	irqWaiting bool

	tx      []uint32
	txOver  bool
	txStall bool

	cycles   uint64
	stalls   uint64
	executed uint64
}

// StateMachineIndex returns the index within the block.
func (sm *StateMachine) StateMachineIndex() uint8 { return sm.index }

// PIO returns the owning block.
func (sm *StateMachine) PIO() *PIO { return sm.pio }

// TryClaim claims the state machine, reporting false if already taken.
func (sm *StateMachine) TryClaim() bool {
	sm.pio.m.mu.Lock()
	defer sm.pio.m.mu.Unlock()
	if sm.pio.claimed&(1<<sm.index) != 0 {
		return false
	}
	sm.pio.claimed |= 1 << sm.index
	return true
}

// Unclaim releases the state machine.
func (sm *StateMachine) Unclaim() {
	sm.pio.m.mu.Lock()
	sm.pio.claimed &^= 1 << sm.index
	sm.pio.m.mu.Unlock()
}

// IsClaimed reports whether the state machine is claimed.
func (sm *StateMachine) IsClaimed() bool {
	sm.pio.m.mu.Lock()
	defer sm.pio.m.mu.Unlock()
	return sm.pio.claimed&(1<<sm.index) != 0
}

// Init loads cfg, clears FIFOs and registers, and jumps to initialPC. The
// state machine is left disabled.
func (sm *StateMachine) Init(initialPC uint8, cfg StateMachineConfig) {
	sm.pio.m.mu.Lock()
	defer sm.pio.m.mu.Unlock()
	*sm = StateMachine{
		pio:     sm.pio,
		index:   sm.index,
		cfg:     cfg,
		pc:      initialPC & (pioInstructionCount - 1),
		osrUsed: 32,
		tx:      make([]uint32, 0, sm.depthFor(cfg)),
	}
}

func (sm *StateMachine) depthFor(cfg StateMachineConfig) int {
	if cfg.Join == FifoJoinTx {
		return 2 * txFIFODepth
	}
	return txFIFODepth
}

// SetEnabled starts or stops the state machine.
func (sm *StateMachine) SetEnabled(enabled bool) {
	sm.pio.m.mu.Lock()
	sm.enabled = enabled
	sm.pio.m.mu.Unlock()
}

// IsEnabled reports whether the state machine is running.
func (sm *StateMachine) IsEnabled() bool {
	sm.pio.m.mu.Lock()
	defer sm.pio.m.mu.Unlock()
	return sm.enabled
}

// TxPut pushes a word into the TX FIFO. A full FIFO drops the word and
// latches TXOVER.
func (sm *StateMachine) TxPut(data uint32) {
	sm.pio.m.mu.Lock()
	sm.push(data)
	sm.pio.m.mu.Unlock()
}

// IsTxFIFOFull reports whether the TX FIFO is full.
func (sm *StateMachine) IsTxFIFOFull() bool {
	sm.pio.m.mu.Lock()
	defer sm.pio.m.mu.Unlock()
	return sm.txFull()
}

// IsTxFIFOEmpty reports whether the TX FIFO is empty.
func (sm *StateMachine) IsTxFIFOEmpty() bool {
	sm.pio.m.mu.Lock()
	defer sm.pio.m.mu.Unlock()
	return len(sm.tx) == 0
}

// TxFIFOLevel returns the number of words in the TX FIFO.
func (sm *StateMachine) TxFIFOLevel() uint32 {
	sm.pio.m.mu.Lock()
	defer sm.pio.m.mu.Unlock()
	return uint32(len(sm.tx))
}

// TxAddr returns the bus address of the TXF register, the DMA write target.
func (sm *StateMachine) TxAddr() Addr {
	return sm.pio.Base() + pioRegTXF0 + 4*Addr(sm.index)
}

// TxDREQ returns the DREQ number raised while the TX FIFO has room.
func (sm *StateMachine) TxDREQ() uint8 {
	return sm.pio.index*8 + sm.index
}

// SetPinsConsecutive drives count pins from pin to level.
func (sm *StateMachine) SetPinsConsecutive(pin uint8, count uint8, level bool) {
	sm.pio.m.mu.Lock()
	var v uint32
	if level {
		v = ^uint32(0)
	}
	sm.pio.m.gpio.write(pin, count, v)
	sm.pio.m.mu.Unlock()
}

// PC returns the program counter.
func (sm *StateMachine) PC() uint8 {
	sm.pio.m.mu.Lock()
	defer sm.pio.m.mu.Unlock()
	return sm.pc
}

// Cycles returns the number of cycles the state machine has been enabled.
func (sm *StateMachine) Cycles() uint64 {
	sm.pio.m.mu.Lock()
	defer sm.pio.m.mu.Unlock()
	return sm.cycles
}

// Stalls returns the number of cycles spent stalled on a FIFO or WAIT.
func (sm *StateMachine) Stalls() uint64 {
	sm.pio.m.mu.Lock()
	defer sm.pio.m.mu.Unlock()
	return sm.stalls
}

// TxStalled reports the sticky TXSTALL flag: a blocking PULL found the FIFO empty.
func (sm *StateMachine) TxStalled() bool {
	sm.pio.m.mu.Lock()
	defer sm.pio.m.mu.Unlock()
	return sm.txStall
}

func (sm *StateMachine) txFull() bool { return len(sm.tx) == cap(sm.tx) }

func (sm *StateMachine) push(v uint32) {
	if sm.tx == nil {
		sm.tx = make([]uint32, 0, sm.depthFor(sm.cfg))
	}
	if sm.txFull() {
		sm.txOver = true
		return
	}
	sm.tx = append(sm.tx, v)
}

func (sm *StateMachine) pop() (uint32, bool) {
	if len(sm.tx) == 0 {
		return 0, false
	}
	v := sm.tx[0]
	copy(sm.tx, sm.tx[1:])
	sm.tx = sm.tx[:len(sm.tx)-1]
	return v, true
}

func (sm *StateMachine) next() uint8 {
	if sm.pc == sm.cfg.Wrap {
		return sm.cfg.WrapTarget
	}
	return (sm.pc + 1) & (pioInstructionCount - 1)
}

// decode splits the delay/side-set field of instr.
func (sm *StateMachine) decode(instr uint16) (delay uint8, side uint32, sideCount uint8, hasSide bool) {
	field := uint8(instr>>8) & 0x1F
	n := sm.cfg.SideSetBits
	if n == 0 {
		return field, 0, 0, false
	}
	delayBits := 5 - n
	delay = field & (1<<delayBits - 1)
	s := field >> delayBits
	if sm.cfg.SideSetOpt {
		if s&(1<<(n-1)) == 0 {
			return delay, 0, 0, false
		}
		return delay, uint32(s & (1<<(n-1) - 1)), n - 1, true
	}
	return delay, uint32(s), n, true
}

func (sm *StateMachine) step() {
	if !sm.enabled {
		return
	}
	sm.cycles++
	if sm.delay > 0 {
		sm.delay--
		return
	}
	instr := sm.pio.instr[sm.pc]
	delay, side, sideCount, hasSide := sm.decode(instr)
	if hasSide {
		sm.pio.m.gpio.write(sm.cfg.SideSetBase, sideCount, side)
	}
	pc, ok := sm.execute(instr)
	if !ok {
		sm.stalls++
		return
	}
	sm.executed++
	sm.pc = pc
	sm.delay = delay
}

// execute runs instr and returns the next program counter. ok is false when
// the instruction stalls and must be retried next cycle.
func (sm *StateMachine) execute(instr uint16) (pc uint8, ok bool) {
	gpio := &sm.pio.m.gpio
	switch instr >> 13 {
	case opJmp:
		target := uint8(instr & 0x1F)
		var take bool
		switch (instr >> 5) & 7 {
		case 0:
			take = true
		case 1:
			take = sm.x == 0
		case 2:
			take = sm.x != 0
			sm.x--
		case 3:
			take = sm.y == 0
		case 4:
			take = sm.y != 0
			sm.y--
		case 5:
			take = sm.x != sm.y
		case 6:
			take = false
		case 7:
			take = sm.osrUsed < sm.cfg.PullThreshold
		}
		if take {
			return target, true
		}
		return sm.next(), true

	case opWait:
		pol := instr>>7&1 == 1
		idx := instr & 0x1F
		switch (instr >> 5) & 3 {
		case 0:
			if gpio.level(uint8(idx)) != pol {
				return 0, false
			}
		case 1:
			if gpio.level(sm.cfg.InBase+uint8(idx)) != pol {
				return 0, false
			}
		case 2:
			flag := uint8(1) << irqIndex(idx, sm.index)
			set := sm.pio.irq&flag != 0
			if set != pol {
				return 0, false
			}
			if pol {
				sm.pio.irq &^= flag
			}
		}
		return sm.next(), true

	case opIn:
		n := uint8(instr & 0x1F)
		if n == 0 {
			n = 32
		}
		var v uint32
		switch (instr >> 5) & 7 {
		case 0:
			v = gpio.levels >> sm.cfg.InBase
		case 1:
			v = sm.x
		case 2:
			v = sm.y
		case 6:
			v = sm.isr
		case 7:
			v = sm.osr
		}
		if n < 32 {
			v &= 1<<n - 1
			sm.isr = sm.isr<<n | v
		} else {
			sm.isr = v
		}
		sm.isrUsed += n
		return sm.next(), true

	case opOut:
		if sm.cfg.AutoPull && sm.osrUsed >= sm.cfg.PullThreshold {
			v, ok := sm.pop()
			if !ok {
				sm.txStall = true
				return 0, false
			}
			sm.osr, sm.osrUsed = v, 0
		}
		n := uint8(instr & 0x1F)
		if n == 0 {
			n = 32
		}
		v := sm.shiftOut(n)
		switch (instr >> 5) & 7 {
		case 0:
			gpio.write(sm.cfg.OutBase, sm.cfg.OutCount, v)
		case 1:
			sm.x = v
		case 2:
			sm.y = v
		case 5:
			return uint8(v & 0x1F), true
		case 6:
			sm.isr, sm.isrUsed = v, n
		}
		return sm.next(), true

	case opPushPull:
		if instr&0x80 == 0 {
			// PUSH: no RX FIFO consumer is modelled, the ISR is discarded.
			sm.isr, sm.isrUsed = 0, 0
			return sm.next(), true
		}
		ifEmpty := instr&0x40 != 0
		block := instr&0x20 != 0
		if ifEmpty && sm.osrUsed < sm.cfg.PullThreshold {
			return sm.next(), true
		}
		v, ok := sm.pop()
		if !ok {
			if block {
				sm.txStall = true
				return 0, false
			}
			v = sm.x
		}
		sm.osr, sm.osrUsed = v, 0
		return sm.next(), true

	case opMov:
		var v uint32
		switch instr & 7 {
		case 0:
			v = gpio.levels >> sm.cfg.InBase
		case 1:
			v = sm.x
		case 2:
			v = sm.y
		case 6:
			v = sm.isr
		case 7:
			v = sm.osr
		}
		switch (instr >> 3) & 3 {
		case 1:
			v = ^v
		case 2:
			v = bits.Reverse32(v)
		}
		switch (instr >> 5) & 7 {
		case 0:
			gpio.write(sm.cfg.OutBase, sm.cfg.OutCount, v)
		case 1:
			sm.x = v
		case 2:
			sm.y = v
		case 5:
			return uint8(v & 0x1F), true
		case 6:
			sm.isr, sm.isrUsed = v, 0
		case 7:
			sm.osr, sm.osrUsed = v, 0
		}
		return sm.next(), true

	case opIRQ:
		flag := uint8(1) << irqIndex(instr&0x1F, sm.index)
		if instr&0x40 != 0 {
			sm.pio.irq &^= flag
			return sm.next(), true
		}
		if instr&0x20 == 0 {
			sm.pio.irq |= flag
			return sm.next(), true
		}
		// IRQ WAIT: raise once, then stall until another machine clears it.
		if !sm.irqWaiting {
			sm.pio.irq |= flag
			sm.irqWaiting = true
			return 0, false
		}
		if sm.pio.irq&flag != 0 {
			return 0, false
		}
		sm.irqWaiting = false
		return sm.next(), true

	case opSet:
		data := uint32(instr & 0x1F)
		switch (instr >> 5) & 7 {
		case 0:
			gpio.write(sm.cfg.SetBase, sm.cfg.SetCount, data)
		case 1:
			sm.x = data
		case 2:
			sm.y = data
		}
		return sm.next(), true
	}
	return sm.next(), true
}

func (sm *StateMachine) shiftOut(n uint8) uint32 {
	var v uint32
	if n >= 32 {
		v = sm.osr
		sm.osr = 0
	} else if sm.cfg.OutShiftRight {
		v = sm.osr & (1<<n - 1)
		sm.osr >>= n
	} else {
		v = sm.osr >> (32 - n)
		sm.osr <<= n
	}
	if sm.osrUsed+n > 32 {
		sm.osrUsed = 32
	} else {
		sm.osrUsed += n
	}
	return v
}

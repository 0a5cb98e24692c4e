package rp2

import (
	"errors"
	"math/bits"
)

const (
	pioInstructionCount = 32
	pioStateMachines    = 4
	pioIRQFlags         = 8
	txFIFODepth         = 4
)

// PIO register offsets.
const (
	PIOCtrl                 = 0x000
	PIOCtrlSMEnablePos      = 0
	PIOCtrlClkDivRestartPos = 8

	pioRegFStat  = 0x004
	pioRegFDebug = 0x008
	pioRegTXF0   = 0x010
	pioRegIRQ    = 0x030
	pioRegInstr0 = 0x048
)

var (
	ErrOutOfProgramSpace = errors.New("pio: out of program space")
	ErrNoSpaceAtOffset   = errors.New("pio: program space unavailable at offset")
	ErrNoStateMachine    = errors.New("pio: no state machine available")
)

// FifoJoin selects how a state machine's FIFOs are arranged.
type FifoJoin uint8

const (
	FifoJoinNone FifoJoin = iota
	FifoJoinTx
	FifoJoinRx
)

// StateMachineConfig holds the settings loaded by StateMachine.Init. Field
// setters follow the rp2-pio API so generated program helpers port directly.
type StateMachineConfig struct {
	WrapTarget    uint8
	Wrap          uint8
	SetBase       uint8
	SetCount      uint8
	OutBase       uint8
	OutCount      uint8
	InBase        uint8
	SideSetBase   uint8
	SideSetBits   uint8
	SideSetOpt    bool
	OutShiftRight bool
	AutoPull      bool
	PullThreshold uint8
	Join          FifoJoin
}

// DefaultStateMachineConfig mirrors pio_get_default_sm_config.
func DefaultStateMachineConfig() StateMachineConfig {
	cfg := StateMachineConfig{}
	cfg.SetWrap(0, pioInstructionCount-1)
	cfg.SetOutShift(true, false, 32)
	return cfg
}

func (cfg *StateMachineConfig) SetWrap(wrapTarget, wrap uint8) {
	cfg.WrapTarget = wrapTarget
	cfg.Wrap = wrap
}

func (cfg *StateMachineConfig) SetSetPins(base uint8, count uint8) {
	cfg.SetBase = base
	cfg.SetCount = count
}

func (cfg *StateMachineConfig) SetOutPins(base uint8, count uint8) {
	cfg.OutBase = base
	cfg.OutCount = count
}

func (cfg *StateMachineConfig) SetInPins(base uint8) { cfg.InBase = base }

func (cfg *StateMachineConfig) SetSidesetPins(firstPin uint8) { cfg.SideSetBase = firstPin }

// SetSidesetParams sets the number of side-set bits, including the enable
// bit when optional is true. pindirs is accepted for API parity and ignored.
func (cfg *StateMachineConfig) SetSidesetParams(bitCount uint8, optional bool, pindirs bool) {
	if bitCount > 5 {
		panic("SetSideSet: bitCount")
	}
	cfg.SideSetBits = bitCount
	cfg.SideSetOpt = optional
}

func (cfg *StateMachineConfig) SetOutShift(shiftRight bool, autoPull bool, pullThreshold uint16) {
	cfg.OutShiftRight = shiftRight
	cfg.AutoPull = autoPull
	cfg.PullThreshold = uint8(pullThreshold & 0x1F)
	if pullThreshold == 0 || pullThreshold >= 32 {
		cfg.PullThreshold = 32
	}
}

func (cfg *StateMachineConfig) SetFIFOJoin(join FifoJoin) {
	if join > FifoJoinRx {
		panic("SetFIFOJoin: join")
	}
	cfg.Join = join
}

// PIO is one programmable IO block: 32 words of shared instruction memory,
// four state machines and eight IRQ flags.
type PIO struct {
	m       *Machine
	index   uint8
	instr   [pioInstructionCount]uint16
	used    uint32
	claimed uint8
	irq     uint8
	sm      [pioStateMachines]StateMachine
}

func newPIO(m *Machine, index uint8) *PIO {
	p := &PIO{m: m, index: index}
	for i := range p.sm {
		p.sm[i] = StateMachine{pio: p, index: uint8(i)}
	}
	return p
}

// BlockIndex returns 0 for PIO0 and 1 for PIO1.
func (p *PIO) BlockIndex() uint8 { return p.index }

// StateMachine returns state machine index of the block.
func (p *PIO) StateMachine(index uint8) *StateMachine {
	if index >= pioStateMachines {
		panic("invalid state machine index")
	}
	return &p.sm[index]
}

// ClaimStateMachine claims the lowest unclaimed state machine.
func (p *PIO) ClaimStateMachine() (*StateMachine, error) {
	p.m.mu.Lock()
	defer p.m.mu.Unlock()
	for i := range p.sm {
		if p.claimed&(1<<i) == 0 {
			p.claimed |= 1 << i
			return &p.sm[i], nil
		}
	}
	return nil, ErrNoStateMachine
}

// AddProgram loads instructions into free instruction memory and returns
// the offset. origin pins the program to an address; -1 places it anywhere,
// searching from the top of memory down.
func (p *PIO) AddProgram(instructions []uint16, origin int8) (offset uint8, _ error) {
	p.m.mu.Lock()
	defer p.m.mu.Unlock()
	off := p.findOffsetForProgram(instructions, origin)
	if off < 0 {
		return 0, ErrOutOfProgramSpace
	}
	p.load(instructions, uint8(off))
	return uint8(off), nil
}

// AddProgramAtOffset loads instructions at a caller-chosen offset.
func (p *PIO) AddProgramAtOffset(instructions []uint16, origin int8, offset uint8) error {
	p.m.mu.Lock()
	defer p.m.mu.Unlock()
	if !p.canAddProgramAtOffset(instructions, origin, offset) {
		return ErrNoSpaceAtOffset
	}
	p.load(instructions, offset)
	return nil
}

func (p *PIO) load(instructions []uint16, offset uint8) {
	for i, instr := range instructions {
		// Patch jump targets, which are program relative.
		if instr&0xE000 == 0 {
			instr += uint16(offset)
		}
		p.instr[int(offset)+i] = instr
	}
	p.used |= (uint32(1)<<len(instructions) - 1) << offset
}

func (p *PIO) canAddProgramAtOffset(instructions []uint16, origin int8, offset uint8) bool {
	if origin >= 0 && uint8(origin) != offset {
		return false
	}
	n := len(instructions)
	if n > pioInstructionCount || int(offset)+n > pioInstructionCount {
		return false
	}
	mask := uint32(1)<<n - 1
	return p.used&(mask<<offset) == 0
}

func (p *PIO) findOffsetForProgram(instructions []uint16, origin int8) int8 {
	n := len(instructions)
	if n == 0 || n > pioInstructionCount {
		return -1
	}
	mask := uint32(1)<<n - 1
	if origin >= 0 {
		if int(origin) > pioInstructionCount-n {
			return -1
		}
		if p.used&(mask<<origin) != 0 {
			return -1
		}
		return origin
	}
	for i := pioInstructionCount - n; i >= 0; i-- {
		if p.used&(mask<<i) == 0 {
			return int8(i)
		}
	}
	return -1
}

// ClearProgramSection frees len instructions starting at offset.
func (p *PIO) ClearProgramSection(offset, len uint8) {
	p.m.mu.Lock()
	defer p.m.mu.Unlock()
	for i := offset; i < offset+len && i < pioInstructionCount; i++ {
		p.instr[i] = 0
		p.used &^= 1 << i
	}
}

// UsedInstructions returns how many instruction slots are loaded.
func (p *PIO) UsedInstructions() int {
	p.m.mu.Lock()
	defer p.m.mu.Unlock()
	return bits.OnesCount32(p.used)
}

// EnableMaskInSync enables the state machines in mask on the same cycle.
func (p *PIO) EnableMaskInSync(mask uint8) {
	p.m.mu.Lock()
	for i := range p.sm {
		if mask&(1<<i) != 0 {
			p.sm[i].delay = 0
			p.sm[i].enabled = true
		}
	}
	p.m.mu.Unlock()
}

// GetIRQ returns the eight IRQ flags.
func (p *PIO) GetIRQ() uint8 {
	p.m.mu.Lock()
	defer p.m.mu.Unlock()
	return p.irq
}

// ClearIRQ clears the flags in mask.
func (p *PIO) ClearIRQ(mask uint8) {
	p.m.mu.Lock()
	p.irq &^= mask
	p.m.mu.Unlock()
}

// Base returns the bus address of the block's registers.
func (p *PIO) Base() Addr {
	if p.index == 0 {
		return PIO0Base
	}
	return PIO1Base
}

// Read32 implements Device.
func (p *PIO) Read32(off uint32) uint32 {
	switch {
	case off == PIOCtrl:
		var v uint32
		for i := range p.sm {
			if p.sm[i].enabled {
				v |= 1 << i
			}
		}
		return v
	case off == pioRegFStat:
		var v uint32
		for i := range p.sm {
			if p.sm[i].txFull() {
				v |= 1 << (16 + i)
			}
			if len(p.sm[i].tx) == 0 {
				v |= 1 << (24 + i)
			}
		}
		return v
	case off == pioRegFDebug:
		var v uint32
		for i := range p.sm {
			if p.sm[i].txOver {
				v |= 1 << (16 + i)
			}
			if p.sm[i].txStall {
				v |= 1 << (24 + i)
			}
		}
		return v
	case off == pioRegIRQ:
		return uint32(p.irq)
	case off >= pioRegInstr0 && off < pioRegInstr0+4*pioInstructionCount:
		return uint32(p.instr[(off-pioRegInstr0)/4])
	}
	return 0
}

// Write32 implements Device. Writes to TXFn push into the TX FIFO.
func (p *PIO) Write32(off uint32, v uint32) {
	switch {
	case off == PIOCtrl:
		for i := range p.sm {
			p.sm[i].enabled = v&(1<<i) != 0
		}
	case off == pioRegFDebug:
		for i := range p.sm {
			if v&(1<<(16+i)) != 0 {
				p.sm[i].txOver = false
			}
			if v&(1<<(24+i)) != 0 {
				p.sm[i].txStall = false
			}
		}
	case off >= pioRegTXF0 && off < pioRegTXF0+16:
		p.sm[(off-pioRegTXF0)/4].push(v)
	case off == pioRegIRQ:
		p.irq &^= uint8(v)
	case off >= pioRegInstr0 && off < pioRegInstr0+4*pioInstructionCount:
		p.instr[(off-pioRegInstr0)/4] = uint16(v)
	}
}

func (p *PIO) step() {
	for i := range p.sm {
		p.sm[i].step()
	}
}

// irqIndex resolves a WAIT/IRQ index, applying the REL bit.
func irqIndex(idx uint16, sm uint8) uint8 {
	n := uint8(idx & 7)
	if idx&0x10 != 0 {
		n = n&4 | (n+sm)&3
	}
	return n
}

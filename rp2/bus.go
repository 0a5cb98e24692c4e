package rp2

import (
	"errors"
	"fmt"
	"unsafe"
)

// Addr is a 32-bit bus address.
type Addr = uint32

// Memory map of the modelled RP2040 subset.
const (
	ExternalBase Addr = 0x1000_0000
	SRAMBase     Addr = 0x2000_0000
	SRAMSize          = 264 * 1024
	DMABase      Addr = 0x5000_0000
	PIO0Base     Addr = 0x5020_0000
	PIO1Base     Addr = 0x5030_0000

	deviceSpan   = 0x4000
	aliasMask    = 0x3000
	externalSpan = 0x0100_0000
)

// Register alias offsets. A write through an alias XORs, sets or clears the
// written bits instead of replacing the register.
const (
	AliasXOR Addr = 0x1000
	AliasSet Addr = 0x2000
	AliasClr Addr = 0x3000
)

var ErrOutOfMemory = errors.New("rp2: out of sram")

// Device is a word-addressed register block mapped on the bus.
type Device interface {
	Read32(off uint32) uint32
	Write32(off uint32, v uint32)
}

type window struct {
	base Addr
	buf  []byte
}

// Bus routes byte and word accesses to SRAM, register devices and
// transient external windows.
type Bus struct {
	sram      []byte
	next      uint32
	devices   map[Addr]Device
	windows   []window
	nextWin   Addr
	lastFault Addr
}

func newBus() *Bus {
	return &Bus{
		sram:    make([]byte, SRAMSize),
		devices: make(map[Addr]Device),
		nextWin: ExternalBase,
	}
}

func (b *Bus) mapDevice(base Addr, d Device) {
	b.devices[base] = d
}

// alloc reserves n bytes of zeroed SRAM aligned to align bytes.
func (b *Bus) alloc(n, align int) (Addr, []byte, error) {
	if align <= 0 {
		align = 1
	}
	start := (int(b.next) + align - 1) &^ (align - 1)
	if n < 0 || start+n > len(b.sram) {
		return 0, nil, fmt.Errorf("alloc %d bytes: %w", n, ErrOutOfMemory)
	}
	b.next = uint32(start + n)
	return SRAMBase + Addr(start), b.sram[start : start+n : start+n], nil
}

// resolve returns the bus address of p. Slices inside SRAM map to their SRAM
// address; anything else is mapped into a fresh external window until release.
// A slice that finds no room maps to address 0, which faults on access.
func (b *Bus) resolve(p []byte) (Addr, func()) {
	if len(p) == 0 {
		return 0, func() {}
	}
	base := uintptr(unsafe.Pointer(unsafe.SliceData(b.sram)))
	ptr := uintptr(unsafe.Pointer(unsafe.SliceData(p)))
	if ptr >= base && ptr+uintptr(len(p)) <= base+uintptr(len(b.sram)) {
		return SRAMBase + Addr(ptr-base), func() {}
	}

	addr, ok := b.place(uint64(len(p)))
	if !ok {
		return 0, func() {}
	}
	w := window{base: addr, buf: p}
	b.windows = append(b.windows, w)
	return w.base, func() { b.unmap(w.base) }
}

// place finds room for an n byte window in the external region, rounded up
// to whole spans so that no two live windows overlap. It reports false when
// n does not fit beside the windows already mapped.
func (b *Bus) place(n uint64) (Addr, bool) {
	const top = uint64(SRAMBase)
	span := (n + externalSpan - 1) &^ (externalSpan - 1)
	if span > top-uint64(ExternalBase) {
		return 0, false
	}
	base := uint64(b.nextWin)
	wrapped := false
	for {
		if base+span > top {
			if wrapped {
				return 0, false
			}
			base, wrapped = uint64(ExternalBase), true
			continue
		}
		end, clash := b.overlap(base, base+span)
		if !clash {
			break
		}
		base = (end + externalSpan - 1) &^ (externalSpan - 1)
	}
	b.nextWin = Addr(base + span)
	if uint64(b.nextWin) >= top {
		b.nextWin = ExternalBase
	}
	return Addr(base), true
}

// overlap reports whether [lo, hi) intersects a live window and, if so, where
// that window ends.
func (b *Bus) overlap(lo, hi uint64) (uint64, bool) {
	for _, w := range b.windows {
		wlo := uint64(w.base)
		whi := wlo + uint64(len(w.buf))
		if lo < whi && wlo < hi {
			return whi, true
		}
	}
	return 0, false
}

func (b *Bus) unmap(base Addr) {
	for i, w := range b.windows {
		if w.base == base {
			b.windows = append(b.windows[:i], b.windows[i+1:]...)
			return
		}
	}
}

func (b *Bus) memory(addr Addr, n uint32) []byte {
	if addr >= SRAMBase && addr+n <= SRAMBase+SRAMSize {
		off := addr - SRAMBase
		return b.sram[off : off+n]
	}
	for _, w := range b.windows {
		if addr >= w.base && addr+n <= w.base+Addr(len(w.buf)) {
			off := addr - w.base
			return w.buf[off : off+n]
		}
	}
	return nil
}

func (b *Bus) device(addr Addr) (Device, uint32) {
	base := addr &^ (deviceSpan - 1)
	if d, ok := b.devices[base]; ok {
		return d, addr - base
	}
	return nil, 0
}

func (b *Bus) fault(addr Addr) {
	b.lastFault = addr
}

// Read reads size bytes (1, 2 or 4) at addr, little-endian.
func (b *Bus) Read(addr Addr, size uint32) uint32 {
	if m := b.memory(addr, size); m != nil {
		var v uint32
		for i := int(size) - 1; i >= 0; i-- {
			v = v<<8 | uint32(m[i])
		}
		return v
	}
	if d, off := b.device(addr); d != nil {
		word := d.Read32(off &^ 3)
		shift := (off & 3) * 8
		switch size {
		case 1:
			return (word >> shift) & 0xFF
		case 2:
			return (word >> shift) & 0xFFFF
		}
		return word
	}
	b.fault(addr)
	return 0
}

// Write writes the low size bytes (1, 2 or 4) of v at addr. Narrow writes to
// register devices are replicated across the 32-bit data bus.
func (b *Bus) Write(addr Addr, size uint32, v uint32) {
	if m := b.memory(addr, size); m != nil {
		for i := uint32(0); i < size; i++ {
			m[i] = byte(v >> (8 * i))
		}
		return
	}
	if d, off := b.device(addr); d != nil {
		switch size {
		case 1:
			v &= 0xFF
			v |= v<<8 | v<<16 | v<<24
		case 2:
			v &= 0xFFFF
			v |= v << 16
		}
		reg := off &^ (aliasMask | 3)
		switch off & aliasMask {
		case AliasXOR:
			v ^= d.Read32(reg)
		case AliasSet:
			v |= d.Read32(reg)
		case AliasClr:
			v = d.Read32(reg) &^ v
		}
		d.Write32(reg, v)
		return
	}
	b.fault(addr)
}

// LastFault returns the most recent address that decoded to nothing.
func (b *Bus) LastFault() Addr { return b.lastFault }

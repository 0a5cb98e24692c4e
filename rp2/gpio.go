package rp2

// NumPins is the number of user GPIOs.
const NumPins = 30

// gpioBank holds output levels as driven by PIO. Pins above NumPins wrap
// the way PIO pin mapping wraps at 32.
type gpioBank struct {
	levels uint32
}

func (g *gpioBank) level(pin uint8) bool {
	return g.levels&(1<<(pin&31)) != 0
}

// write drives count pins from base with the low bits of v.
func (g *gpioBank) write(base, count uint8, v uint32) {
	for i := uint8(0); i < count; i++ {
		bit := uint32(1) << ((base + i) & 31)
		if v&(1<<i) != 0 {
			g.levels |= bit
		} else {
			g.levels &^= bit
		}
	}
}

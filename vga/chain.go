//go:build !tinygo

package vga

import "sync"

// ChainState tells which scanout channel currently owns the DMA.
type ChainState uint8

const (
	ChainIdle ChainState = iota
	// ChainStreaming: channel A is moving pixels.
	ChainStreaming
	// ChainRearming: channel B is rewriting A's read address.
	ChainRearming
)

func (s ChainState) String() string {
	switch s {
	case ChainStreaming:
		return "streaming"
	case ChainRearming:
		return "rearming"
	}
	return "idle"
}

// Chain tracks the A/B alternation from the DMA completion interrupt. It is
// only advanced by that interrupt; everything else reads it.
type Chain struct {
	mu     sync.Mutex
	a, b   int
	state  ChainState
	frames uint64
	rearms uint64
	faults uint64
}

func newChain(a, b int) *Chain {
	return &Chain{a: a, b: b}
}

// arm records that A has been triggered for the first time.
func (c *Chain) arm() {
	c.mu.Lock()
	c.state = ChainStreaming
	c.mu.Unlock()
}

// complete is the DMA completion handler.
func (c *Chain) complete(ch int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case ch == c.a && c.state == ChainStreaming:
		c.state = ChainRearming
		c.frames++
	case ch == c.b && c.state == ChainRearming:
		c.state = ChainStreaming
		c.rearms++
	case ch == c.a || ch == c.b:
		c.faults++
	}
}

// State returns the current phase.
func (c *Chain) State() ChainState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Frames returns the number of full frames channel A has streamed.
func (c *Chain) Frames() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.frames
}

// Rearms returns the number of times channel B has restarted A.
func (c *Chain) Rearms() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rearms
}

// Faults counts completions that arrived out of order.
func (c *Chain) Faults() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.faults
}

// Channels returns the A and B channel numbers.
func (c *Chain) Channels() (a, b int) { return c.a, c.b }

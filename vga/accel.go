//go:build !tinygo

package vga

import (
	"sync"

	"picovga/rp2"
)

// Accelerator runs bulk fills and copies on one dedicated DMA channel.
// Calls block until the transfer completes and are serialized.
type Accelerator struct {
	mu       sync.Mutex
	m        *rp2.Machine
	ch       int
	cell     []byte
	cellAddr rp2.Addr
}

func newAccelerator(m *rp2.Machine, ch int) (*Accelerator, error) {
	addr, cell, err := m.Alloc(1, 1)
	if err != nil {
		return nil, err
	}
	return &Accelerator{m: m, ch: ch, cell: cell, cellAddr: addr}, nil
}

// Channel returns the DMA channel used for bulk transfers.
func (a *Accelerator) Channel() int { return a.ch }

// Memset writes val to the first n bytes of dst.
func (a *Accelerator) Memset(dst []byte, val byte, n int) {
	if n == 0 {
		return
	}
	dst = dst[:n]

	a.mu.Lock()
	defer a.mu.Unlock()
	a.cell[0] = val
	dstAddr, release := a.m.Resolve(dst)
	defer release()

	dma := a.m.DMA()
	cfg := dma.DefaultChannelConfig(a.ch)
	cfg.SetTransferDataSize(rp2.Size8)
	cfg.SetReadIncrement(false)
	cfg.SetWriteIncrement(true)
	dma.Configure(a.ch, cfg, dstAddr, a.cellAddr, uint32(n), true)
	dma.WaitForFinish(a.ch)
}

// Memcpy copies the first n bytes of src into dst.
func (a *Accelerator) Memcpy(dst, src []byte, n int) {
	if n == 0 {
		return
	}
	dst, src = dst[:n], src[:n]

	a.mu.Lock()
	defer a.mu.Unlock()
	dstAddr, releaseDst := a.m.Resolve(dst)
	defer releaseDst()
	srcAddr, releaseSrc := a.m.Resolve(src)
	defer releaseSrc()

	dma := a.m.DMA()
	cfg := dma.DefaultChannelConfig(a.ch)
	cfg.SetTransferDataSize(rp2.Size8)
	cfg.SetReadIncrement(true)
	cfg.SetWriteIncrement(true)
	dma.Configure(a.ch, cfg, dstAddr, srcAddr, uint32(n), true)
	dma.WaitForFinish(a.ch)
}

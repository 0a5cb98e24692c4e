//go:build !tinygo && cgo

package hal

import (
	"context"
	"fmt"

	"github.com/hajimehoshi/ebiten/v2"

	"picovga/internal/buildinfo"
	"picovga/vga"
)

// WindowConfig controls the desktop viewer.
type WindowConfig struct {
	// Hz is the number of frames scanned per second.
	Hz    int
	Pins  vga.Pins
	Order vga.BitOrder
}

// RunWindow starts a desktop window that shows what a monitor on the VGA
// pins would display and forwards keyboard input. The machine clock runs in
// the background; the app steps once per scanned frame. It blocks until the
// window closes.
func RunWindow(newApp func(HAL) func() error, cfg WindowConfig) error {
	if cfg.Hz <= 0 {
		cfg.Hz = 60
	}
	h, err := newHost(HostConfig{Pins: cfg.Pins, Order: cfg.Order})
	if err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.start(ctx, cfg.Hz)

	g := &hostGame{h: h, step: newApp(h)}
	ebiten.SetWindowTitle(fmt.Sprintf("picovga %dx%d (%s)", vga.Width, vga.Height, buildinfo.Short()))
	ebiten.SetWindowSize(vga.Width*2, vga.Height*2)
	ebiten.SetTPS(60)
	return ebiten.RunGame(g)
}

type hostGame struct {
	h     *hostHAL
	pix   []byte
	fbImg *ebiten.Image
	step  func() error
}

func (g *hostGame) Update() error {
	g.h.kbd.poll()
	frames := 0
	for drained := false; !drained; {
		select {
		case <-g.h.t.Ticks():
			frames++
		default:
			drained = true
		}
	}
	if frames == 0 || g.step == nil {
		return nil
	}
	return g.step()
}

func (g *hostGame) Draw(screen *ebiten.Image) {
	if g.fbImg == nil {
		g.fbImg = ebiten.NewImage(vga.Width, vga.Height)
		g.pix = make([]byte, 4*vga.FrameLen)
	}
	g.h.mon.SnapshotRGBA(g.pix, g.h.order)
	g.fbImg.WritePixels(g.pix)
	screen.DrawImage(g.fbImg, nil)
}

func (g *hostGame) Layout(outsideWidth, outsideHeight int) (int, int) {
	return vga.Width, vga.Height
}

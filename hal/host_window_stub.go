//go:build !tinygo && !cgo

package hal

import (
	"errors"

	"picovga/vga"
)

// WindowConfig controls the desktop viewer.
type WindowConfig struct {
	Hz    int
	Pins  vga.Pins
	Order vga.BitOrder
}

func RunWindow(_ func(h HAL) func() error, _ WindowConfig) error {
	return errors.New("window mode requires cgo (build/run with CGO_ENABLED=1)")
}

//go:build tinygo && rp2040

package hal

import (
	"machine"

	"picovga/vga"
)

type tinyGoHAL struct {
	logger *uartLogger
	led    *pinLED
	disp   *vga.Display
	kbd    Keyboard
	t      *tinyGoTime
}

// New returns a Raspberry Pi Pico (RP2040) HAL implementation.
//
// UART: UART0 on GP0 (TX) / GP1 (RX), 115200 8N1.
// VGA: vsync GP16, hsync GP17, color GP18..GP20, pixel clock GP21.
func New() HAL {
	uart := machine.UART0
	uart.Configure(machine.UARTConfig{
		BaudRate: 115200,
		TX:       machine.GP0,
		RX:       machine.GP1,
	})

	ledPin := machine.LED
	ledPin.Configure(machine.PinConfig{Mode: machine.PinOutput})

	return &tinyGoHAL{
		logger: &uartLogger{uart: uart},
		led:    &pinLED{pin: ledPin},
		disp:   vga.New(),
		kbd:    &stubKeyboard{},
		t:      newTinyGoTime(framePeriod),
	}
}

func (h *tinyGoHAL) Logger() Logger        { return h.logger }
func (h *tinyGoHAL) LED() LED              { return h.led }
func (h *tinyGoHAL) Display() *vga.Display { return h.disp }
func (h *tinyGoHAL) Pins() vga.Pins        { return vga.DefaultPins }
func (h *tinyGoHAL) Order() vga.BitOrder   { return vga.BGR }
func (h *tinyGoHAL) Input() Input          { return tinyGoInput{kbd: h.kbd} }
func (h *tinyGoHAL) Time() Time            { return h.t }

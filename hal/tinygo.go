//go:build tinygo && baremetal && (rp2040 || rp2350)

package hal

import (
	"machine"
)

type tinyGoHAL struct {
	logger *uartLogger
	led    *pinLED
	board  FlashTable
}

// New returns a Pico (RP2040/RP2350) HAL implementation.
//
// UART: UART0 on GP0 (TX) / GP1 (RX), 115200 8N1.
// Flash: device 0 is the internal data partition; device 1 is an external
// SPI NOR chip when built with the spinor tag.
func New() HAL {
	uart := machine.UART0
	uart.Configure(machine.UARTConfig{
		BaudRate: 115200,
		TX:       machine.GP0,
		RX:       machine.GP1,
	})

	ledPin := machine.LED
	ledPin.Configure(machine.PinConfig{Mode: machine.PinOutput})

	board := FlashTable{newRP2Flash()}
	board = append(board, externalFlashDevices()...)

	return &tinyGoHAL{
		logger: &uartLogger{out: uart},
		led:    &pinLED{pin: ledPin},
		board:  board,
	}
}

func (h *tinyGoHAL) Logger() Logger { return h.logger }
func (h *tinyGoHAL) LED() LED       { return h.led }
func (h *tinyGoHAL) Board() Board   { return h.board }

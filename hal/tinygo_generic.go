//go:build tinygo && baremetal && !(rp2040 || rp2350)

package hal

import "machine"

type genericHAL struct {
	logger *uartLogger
	board  FlashTable
}

// New returns a HAL for boards without a flash driver. Logging goes to the
// board's default serial port and device 0 is a stub, so every flash
// operation reports ErrNotImplemented.
func New() HAL {
	machine.Serial.Configure(machine.UARTConfig{BaudRate: 115200})

	return &genericHAL{
		logger: &uartLogger{out: machine.Serial},
		board:  FlashTable{{Name: "stub", Flash: StubFlash{}}},
	}
}

func (h *genericHAL) Logger() Logger { return h.logger }
func (h *genericHAL) LED() LED       { return nil }
func (h *genericHAL) Board() Board   { return h.board }

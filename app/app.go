package app

import (
	"fmt"
	"math"

	"github.com/dustin/go-humanize"

	"sparkflash/hal"
	"sparkflash/hal/flash"
	"sparkflash/internal/buildinfo"
)

// System is a brought-up flash stack.
type System struct {
	h     hal.HAL
	Flash *flash.Layer
}

type Config struct {
	Flash flash.Config
	// SelfTest erases and reprograms the last sector of every device after
	// bring-up. It destroys whatever that sector held.
	SelfTest bool
}

// New brings up every flash device with the default config.
func New(h hal.HAL) (*System, error) {
	return NewWithConfig(h, Config{Flash: flash.DefaultConfig()})
}

// Run brings the system up and blocks forever (TinyGo entrypoint).
func Run(h hal.HAL) {
	_, _ = New(h)
	select {}
}

// NewWithConfig brings up every flash device. The returned System is usable
// even when some devices failed to initialize; the error lists them.
func NewWithConfig(h hal.HAL, cfg Config) (*System, error) {
	logger := h.Logger()
	logger.WriteLineString("spark flash " + buildinfo.Short())

	if cfg.Flash.Logger == nil {
		cfg.Flash.Logger = logger
	}
	if cfg.Flash.OnIntegrityViolation == nil {
		cfg.Flash.OnIntegrityViolation = integrityHandler(h)
	}

	s := &System{h: h, Flash: flash.New(h.Board(), cfg.Flash)}

	led := h.LED()
	if led != nil {
		led.High()
	}
	err := s.Flash.Init()
	if led != nil {
		led.Low()
	}
	if err != nil {
		logger.WriteLineString(fmt.Sprintf("flash: init: %v", err))
	}

	s.logDevices()

	if cfg.SelfTest {
		if terr := s.SelfTest(); terr != nil {
			logger.WriteLineString(fmt.Sprintf("selftest: %v", terr))
			if err == nil {
				err = terr
			}
		}
	}
	return s, err
}

func (s *System) devices(fn func(id uint8, dev *hal.FlashDevice)) {
	board := s.h.Board()
	for i := 0; i <= math.MaxUint8; i++ {
		dev := board.FlashDevice(uint8(i))
		if dev == nil {
			return
		}
		fn(uint8(i), dev)
	}
}

func (s *System) logDevices() {
	logger := s.h.Logger()
	s.devices(func(id uint8, dev *hal.FlashDevice) {
		logger.WriteLineString(fmt.Sprintf(
			"flash %d %s: base=%#x size=%s sectors=%d align=%d",
			id, dev.Name, dev.BaseAddr, humanize.IBytes(uint64(dev.Size)), dev.SectorCount, s.Flash.Align(id),
		))
	})
}

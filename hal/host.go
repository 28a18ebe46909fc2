//go:build !tinygo

package hal

import (
	"fmt"
	"os"
	"sync"

	"github.com/dustin/go-humanize"
)

// Host RAM flash geometry: an STM32F4-style bank with mixed sector sizes.
const hostRAMFlashBase = 0x08000000

var hostRAMFlashSectors = []uint32{
	16 * 1024, 16 * 1024, 16 * 1024, 16 * 1024,
	64 * 1024,
	128 * 1024,
}

// HostConfig selects the host flash image.
type HostConfig struct {
	FlashPath       string
	FlashSize       uint32
	FlashSectorSize uint32
}

// HostConfigFromEnv reads SPARK_FLASH_PATH and SPARK_FLASH_SIZE (e.g. "4MiB").
func HostConfigFromEnv() (HostConfig, error) {
	cfg := HostConfig{FlashPath: os.Getenv("SPARK_FLASH_PATH")}
	if s := os.Getenv("SPARK_FLASH_SIZE"); s != "" {
		n, err := humanize.ParseBytes(s)
		if err != nil {
			return cfg, fmt.Errorf("SPARK_FLASH_SIZE=%q: %w", s, err)
		}
		if n > uint64(^uint32(0)) {
			return cfg, fmt.Errorf("SPARK_FLASH_SIZE=%q: too large", s)
		}
		cfg.FlashSize = uint32(n)
	}
	return cfg, nil
}

type hostHAL struct {
	logger *hostLogger
	led    *hostLED
	board  FlashTable
	file   *HostFlash
}

// New returns a host HAL implementation configured from the environment.
func New() HAL {
	cfg, err := HostConfigFromEnv()
	h := NewWithConfig(cfg)
	if err != nil {
		h.Logger().WriteLineString("hal: " + err.Error())
	}
	return h
}

// NewWithConfig returns a host HAL with two flash devices: device 0 is the
// file-backed image, device 1 a RAM flash with mixed sector sizes.
func NewWithConfig(cfg HostConfig) HAL {
	if cfg.FlashSize == 0 {
		cfg.FlashSize = hostFlashDefaultSizeBytes
	}
	if cfg.FlashSectorSize == 0 {
		cfg.FlashSectorSize = hostFlashDefaultSectorSize
	}
	logger := &hostLogger{w: os.Stdout}
	file := NewHostFlash(cfg.FlashPath, 0, cfg.FlashSize, cfg.FlashSectorSize)
	ram := NewMemFlash(hostRAMFlashBase, hostRAMFlashSectors)
	return &hostHAL{
		logger: logger,
		led:    &hostLED{logger: logger},
		board:  FlashTable{file.Device("image"), ram.Device("ram", 4)},
		file:   file,
	}
}

func (h *hostHAL) Logger() Logger { return h.logger }
func (h *hostHAL) LED() LED       { return h.led }
func (h *hostHAL) Board() Board   { return h.board }

// Close releases the flash image file.
func (h *hostHAL) Close() error { return h.file.Close() }

type hostLogger struct {
	mu sync.Mutex
	w  *os.File
}

func (l *hostLogger) WriteLineString(s string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintln(l.w, s)
}

func (l *hostLogger) WriteLineBytes(b []byte) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.w.Write(b)
	l.w.Write([]byte{'\n'})
}

type hostLED struct {
	mu     sync.Mutex
	on     bool
	logger *hostLogger
}

func (l *hostLED) High() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.on = true
	l.logger.WriteLineString("led: HIGH")
}

func (l *hostLED) Low() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.on = false
	l.logger.WriteLineString("led: LOW")
}

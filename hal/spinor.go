//go:build !tinygo

package hal

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"periph.io/x/conn/v3/spi"
)

// JEDEC SPI NOR command set. See the W25Q128JV datasheet, section 8.1.2.
const (
	spiNORCmdReleasePowerDown = 0xAB
	spiNORCmdReadID           = 0x9F
	spiNORCmdRead             = 0x03
	spiNORCmdWriteEnable      = 0x06
	spiNORCmdPageProgram      = 0x02
	spiNORCmdReadStatus       = 0x05
	spiNORCmdSectorErase      = 0x20

	spiNORStatusBusy = 0x01

	spiNORPageSize   = 256
	spiNORSectorSize = 4096
	spiNORMaxSize    = 1 << 24 // 3-byte addressing

	// Keep each transaction well below typical spidev buffer limits.
	spiNORMaxChunk = 4096
)

// ErrFlashBusy is returned when the chip never clears its busy bit.
var ErrFlashBusy = errors.New("flash busy")

// SPINORFlash drives a JEDEC SPI NOR chip through a periph SPI connection.
// Chip select is expected to be handled by the SPI port.
type SPINORFlash struct {
	mu   sync.Mutex
	conn spi.Conn
	base uint32
	size uint32
	id   [3]byte

	// PollInterval and MaxPolls bound the wait for program/erase completion.
	PollInterval time.Duration
	MaxPolls     int
}

// NewSPINORFlash returns a driver for a size-byte chip mapped at base.
func NewSPINORFlash(conn spi.Conn, base, size uint32) *SPINORFlash {
	return &SPINORFlash{
		conn:         conn,
		base:         base,
		size:         size,
		PollInterval: 100 * time.Microsecond,
		MaxPolls:     100000,
	}
}

// Device returns a descriptor for the chip.
func (f *SPINORFlash) Device(name string) *FlashDevice {
	return &FlashDevice{
		Name:        name,
		BaseAddr:    f.base,
		Size:        f.size,
		Align:       1,
		SectorCount: int(f.size / spiNORSectorSize),
		Flash:       f,
	}
}

// JEDECID returns the manufacturer and device id read by Init.
func (f *SPINORFlash) JEDECID() [3]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.id
}

func (f *SPINORFlash) Init() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.size == 0 || f.size > spiNORMaxSize || f.size%spiNORSectorSize != 0 {
		return fmt.Errorf("spi nor: unsupported size %d", f.size)
	}
	if err := f.tx([]byte{spiNORCmdReleasePowerDown}); err != nil {
		return fmt.Errorf("spi nor: release power-down: %w", err)
	}

	buf := []byte{spiNORCmdReadID, 0, 0, 0}
	if err := f.conn.Tx(buf, buf); err != nil {
		return fmt.Errorf("spi nor: read id: %w", err)
	}
	id := [3]byte{buf[1], buf[2], buf[3]}
	if id == [3]byte{} || id == [3]byte{0xFF, 0xFF, 0xFF} {
		return fmt.Errorf("spi nor: no chip responding (id %02x%02x%02x)", id[0], id[1], id[2])
	}
	f.id = id
	return nil
}

func (f *SPINORFlash) tx(w []byte) error {
	r := make([]byte, len(w))
	return f.conn.Tx(w, r)
}

func (f *SPINORFlash) offset(addr uint32, n int) (uint32, error) {
	if addr < f.base || uint64(addr-f.base)+uint64(n) > uint64(f.size) {
		return 0, fmt.Errorf("spi nor: access %#x+%d out of range", addr, n)
	}
	return addr - f.base, nil
}

func putAddr24(buf []byte, cmd byte, off uint32) {
	buf[0] = cmd
	buf[1] = byte(off >> 16)
	buf[2] = byte(off >> 8)
	buf[3] = byte(off)
}

func (f *SPINORFlash) Read(addr uint32, p []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	off, err := f.offset(addr, len(p))
	if err != nil {
		return err
	}

	const cmdBytes = 4
	buf := make([]byte, cmdBytes+spiNORMaxChunk)
	for len(p) > 0 {
		chunk := len(p)
		if chunk > spiNORMaxChunk {
			chunk = spiNORMaxChunk
		}
		b := buf[:cmdBytes+chunk]
		for i := range b {
			b[i] = 0
		}
		putAddr24(b, spiNORCmdRead, off)
		if err := f.conn.Tx(b, b); err != nil {
			return fmt.Errorf("spi nor: read at %#x: %w", f.base+off, err)
		}
		copy(p, b[cmdBytes:])
		p = p[chunk:]
		off += uint32(chunk)
	}
	return nil
}

func (f *SPINORFlash) Write(addr uint32, p []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	off, err := f.offset(addr, len(p))
	if err != nil {
		return err
	}

	buf := make([]byte, 4+spiNORPageSize)
	for len(p) > 0 {
		// A page program wraps within its page, so never cross a boundary.
		chunk := spiNORPageSize - int(off%spiNORPageSize)
		if chunk > len(p) {
			chunk = len(p)
		}
		if err := f.tx([]byte{spiNORCmdWriteEnable}); err != nil {
			return fmt.Errorf("spi nor: write enable: %w", err)
		}
		b := buf[:4+chunk]
		putAddr24(b, spiNORCmdPageProgram, off)
		copy(b[4:], p[:chunk])
		if err := f.tx(b); err != nil {
			return fmt.Errorf("spi nor: program at %#x: %w", f.base+off, err)
		}
		if err := f.waitReady(); err != nil {
			return fmt.Errorf("spi nor: program at %#x: %w", f.base+off, err)
		}
		p = p[chunk:]
		off += uint32(chunk)
	}
	return nil
}

func (f *SPINORFlash) EraseSector(addr uint32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	off, err := f.offset(addr, spiNORSectorSize)
	if err != nil {
		return err
	}
	if off%spiNORSectorSize != 0 {
		return fmt.Errorf("spi nor: erase at %#x: %w", addr, ErrFlashUnaligned)
	}
	if err := f.tx([]byte{spiNORCmdWriteEnable}); err != nil {
		return fmt.Errorf("spi nor: write enable: %w", err)
	}
	var b [4]byte
	putAddr24(b[:], spiNORCmdSectorErase, off)
	if err := f.tx(b[:]); err != nil {
		return fmt.Errorf("spi nor: erase at %#x: %w", addr, err)
	}
	if err := f.waitReady(); err != nil {
		return fmt.Errorf("spi nor: erase at %#x: %w", addr, err)
	}
	return nil
}

func (f *SPINORFlash) SectorInfo(idx int) (uint32, uint32, error) {
	if idx < 0 || idx >= int(f.size/spiNORSectorSize) {
		return 0, 0, fmt.Errorf("spi nor: sector %d out of range", idx)
	}
	return f.base + uint32(idx)*spiNORSectorSize, spiNORSectorSize, nil
}

func (f *SPINORFlash) waitReady() error {
	buf := make([]byte, 2)
	for i := 0; i < f.MaxPolls; i++ {
		buf[0], buf[1] = spiNORCmdReadStatus, 0
		if err := f.conn.Tx(buf, buf); err != nil {
			return err
		}
		if buf[1]&spiNORStatusBusy == 0 {
			return nil
		}
		if f.PollInterval > 0 {
			time.Sleep(f.PollInterval)
		}
	}
	return ErrFlashBusy
}

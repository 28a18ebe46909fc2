package hal

import "errors"

// Logger writes newline-delimited log lines.
type Logger interface {
	WriteLineString(s string)
	WriteLineBytes(b []byte)
}

// LED is a minimal output pin abstraction.
type LED interface {
	High()
	Low()
}

var ErrNotImplemented = errors.New("not implemented")

// Flash is the capability set of one flash device.
//
// Addresses are absolute (they include the device base address). The access
// layer in hal/flash validates every range before calling into a driver, so
// drivers only need to enforce their own alignment rules.
type Flash interface {
	Init() error
	Read(addr uint32, p []byte) error
	Write(addr uint32, p []byte) error
	// EraseSector erases the sector starting at addr.
	EraseSector(addr uint32) error
	// SectorInfo reports the geometry of sector idx.
	SectorInfo(idx int) (start, size uint32, err error)
}

// FlashEmptyChecker is an optional Flash capability for devices that can
// answer "is this range erased" faster than reading it back.
type FlashEmptyChecker interface {
	IsEmpty(addr, n uint32) (bool, error)
}

// FlashDevice describes one flash device: its addressable window, write
// alignment, sector count and driver.
//
// Descriptors are created once by the board and never modified afterwards.
type FlashDevice struct {
	Name        string
	BaseAddr    uint32
	Size        uint32
	Align       uint8
	SectorCount int
	Flash       Flash
}

// Board enumerates the flash devices wired to the system.
type Board interface {
	// FlashDevice returns device id, or nil past the last device.
	FlashDevice(id uint8) *FlashDevice
}

// FlashTable is a Board backed by a fixed list of devices; the device id is
// the index.
type FlashTable []*FlashDevice

func (t FlashTable) FlashDevice(id uint8) *FlashDevice {
	if int(id) >= len(t) {
		return nil
	}
	return t[id]
}

// HAL provides the only contact point between the OS and the outside world.
type HAL interface {
	Logger() Logger
	LED() LED
	Board() Board
}

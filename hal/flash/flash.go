// Package flash is the hardware-independent flash access layer.
//
// A Layer resolves logical device ids through a hal.Board, checks every
// address range against the device window and dispatches to the device's
// hal.Flash driver. Range erases are decomposed into whole-sector erases.
// Optional verification re-reads written and erased ranges; a mismatch is an
// integrity violation, which halts instead of returning an error.
package flash

import (
	"fmt"
	"math"

	"go.uber.org/multierr"

	"sparkflash/hal"
)

const (
	defaultVerifyBufSize = 64
	maxVerifyBufSize     = 256
)

// Config configures a Layer.
type Config struct {
	// VerifyWrites re-reads every write and compares it with the source.
	VerifyWrites bool
	// VerifyErases checks that every erased sector reads back as 0xFF.
	VerifyErases bool
	// VerifyBufSize is the read-back chunk size in bytes, at most 256.
	VerifyBufSize int

	// Logger receives init failures and integrity violations. May be nil.
	Logger hal.Logger
	// OnIntegrityViolation runs before the layer panics with the
	// *IntegrityError. It should not return if the system must halt.
	OnIntegrityViolation func(IntegrityInfo)
}

// IntegrityInfo is passed to Config.OnIntegrityViolation.
type IntegrityInfo struct {
	Err   *IntegrityError
	Stack []byte
}

// DefaultConfig enables verification when built with the flashverify tag.
func DefaultConfig() Config {
	return Config{
		VerifyWrites:  verifyByDefault,
		VerifyErases:  verifyByDefault,
		VerifyBufSize: defaultVerifyBufSize,
	}
}

// Sector is the geometry of one sector.
type Sector struct {
	Start uint32
	Size  uint32
}

// End returns the first address past the sector.
func (s Sector) End() uint64 { return uint64(s.Start) + uint64(s.Size) }

// Layer is safe for concurrent use when the underlying drivers are.
type Layer struct {
	board hal.Board
	cfg   Config
}

// New returns a layer over the devices of board.
func New(board hal.Board, cfg Config) *Layer {
	switch {
	case cfg.VerifyBufSize <= 0:
		cfg.VerifyBufSize = defaultVerifyBufSize
	case cfg.VerifyBufSize > maxVerifyBufSize:
		cfg.VerifyBufSize = maxVerifyBufSize
	}
	return &Layer{board: board, cfg: cfg}
}

func (l *Layer) logf(format string, args ...any) {
	if l.cfg.Logger == nil {
		return
	}
	l.cfg.Logger.WriteLineString(fmt.Sprintf(format, args...))
}

// Init runs every device's Init, in id order, until the board runs out of
// devices. A failing device does not stop the others; all failures are
// returned together.
func (l *Layer) Init() error {
	var errs error
	for i := 0; i <= math.MaxUint8; i++ {
		dev := l.board.FlashDevice(uint8(i))
		if dev == nil {
			break
		}
		if dev.Flash == nil {
			l.logf("flash %d (%s): no driver", i, dev.Name)
			errs = multierr.Append(errs, fmt.Errorf("flash %d (%s): no driver", i, dev.Name))
			continue
		}
		if err := dev.Flash.Init(); err != nil {
			l.logf("flash %d (%s): init: %v", i, dev.Name, err)
			errs = multierr.Append(errs, fmt.Errorf("flash %d (%s): %w", i, dev.Name, err))
		}
	}
	return errs
}

// Device resolves id to its descriptor.
func (l *Layer) Device(id uint8) (*hal.FlashDevice, error) {
	dev := l.board.FlashDevice(id)
	if dev == nil || dev.Flash == nil {
		return nil, fmt.Errorf("flash %d: %w", id, ErrNoDevice)
	}
	return dev, nil
}

// checkRange accepts [addr, addr+n] when both ends lie in the closed
// interval [BaseAddr, BaseAddr+Size].
func checkRange(dev *hal.FlashDevice, addr uint32, n uint64) error {
	lo := uint64(dev.BaseAddr)
	hi := lo + uint64(dev.Size)
	end := uint64(addr) + n
	if end > math.MaxUint32 {
		return fmt.Errorf("%#x+%d: %w", addr, n, ErrRangeWrap)
	}
	if uint64(addr) < lo || uint64(addr) > hi || end < lo || end > hi {
		return fmt.Errorf("%#x+%d not in [%#x, %#x]: %w", addr, n, lo, hi, ErrOutOfRange)
	}
	return nil
}

func (l *Layer) lookup(id uint8, addr uint32, n uint64) (*hal.FlashDevice, error) {
	dev, err := l.Device(id)
	if err != nil {
		return nil, err
	}
	if err := checkRange(dev, addr, n); err != nil {
		return nil, fmt.Errorf("flash %d: %w", id, err)
	}
	return dev, nil
}

// Read fills p from addr. Driver errors are returned unchanged.
func (l *Layer) Read(id uint8, addr uint32, p []byte) error {
	dev, err := l.lookup(id, addr, uint64(len(p)))
	if err != nil {
		return err
	}
	return dev.Flash.Read(addr, p)
}

// Write programs p at addr. The target range is expected to be erased.
func (l *Layer) Write(id uint8, addr uint32, p []byte) error {
	dev, err := l.lookup(id, addr, uint64(len(p)))
	if err != nil {
		return err
	}
	if err := dev.Flash.Write(addr, p); err != nil {
		return err
	}
	if l.cfg.VerifyWrites {
		l.verifyWritten(id, dev, addr, p)
	}
	return nil
}

// EraseSector erases the sector starting at addr. Whether addr really is a
// sector start is up to the driver.
func (l *Layer) EraseSector(id uint8, addr uint32) error {
	dev, err := l.lookup(id, addr, 0)
	if err != nil {
		return err
	}
	if err := dev.Flash.EraseSector(addr); err != nil {
		return err
	}
	if l.cfg.VerifyErases {
		l.verifySector(id, dev, addr)
	}
	return nil
}

// Erase erases every sector overlapping [addr, addr+n), in ascending sector
// order. Sectors are always erased whole, so bytes outside the range but
// inside a touched sector are erased too. The first failure aborts the
// erase; sectors erased before it stay erased.
func (l *Layer) Erase(id uint8, addr, n uint32) error {
	dev, err := l.lookup(id, addr, uint64(n))
	if err != nil {
		return err
	}
	end := uint64(addr) + uint64(n)
	if end <= uint64(addr) {
		return fmt.Errorf("flash %d: erase %#x+%d: %w", id, addr, n, ErrRangeWrap)
	}

	erased := 0
	for i := 0; i < dev.SectorCount; i++ {
		start, size, err := dev.Flash.SectorInfo(i)
		if err != nil {
			return err
		}
		if uint64(addr) >= uint64(start)+uint64(size) || end <= uint64(start) {
			continue
		}
		if err := dev.Flash.EraseSector(start); err != nil {
			l.logf("flash %d: erase aborted at sector %d (%#x) after %d sectors: %v", id, i, start, erased, err)
			return err
		}
		erased++
		if l.cfg.VerifyErases {
			l.verifyErased(id, dev, start, size)
		}
	}
	return nil
}

// Align returns the device's write alignment, or 1 for an unknown device.
func (l *Layer) Align(id uint8) uint8 {
	dev, err := l.Device(id)
	if err != nil || dev.Align == 0 {
		return 1
	}
	return dev.Align
}

// Sector returns the geometry of sector idx.
func (l *Layer) Sector(id uint8, idx int) (Sector, error) {
	dev, err := l.Device(id)
	if err != nil {
		return Sector{}, err
	}
	if idx < 0 || idx >= dev.SectorCount {
		return Sector{}, fmt.Errorf("flash %d: sector %d of %d: %w", id, idx, dev.SectorCount, ErrNoSector)
	}
	start, size, err := dev.Flash.SectorInfo(idx)
	if err != nil {
		return Sector{}, err
	}
	return Sector{Start: start, Size: size}, nil
}

// SectorSize returns the size of sector idx.
func (l *Layer) SectorSize(id uint8, idx int) (uint32, error) {
	s, err := l.Sector(id, idx)
	if err != nil {
		return 0, err
	}
	return s.Size, nil
}

// Sectors returns the geometry of every sector of the device.
func (l *Layer) Sectors(id uint8) ([]Sector, error) {
	dev, err := l.Device(id)
	if err != nil {
		return nil, err
	}
	sectors := make([]Sector, 0, dev.SectorCount)
	for i := 0; i < dev.SectorCount; i++ {
		start, size, err := dev.Flash.SectorInfo(i)
		if err != nil {
			return nil, err
		}
		sectors = append(sectors, Sector{Start: start, Size: size})
	}
	return sectors, nil
}

// Ioctl is reserved for device control and currently does nothing.
func (l *Layer) Ioctl(id uint8, cmd uint32, arg any) error {
	_ = id
	_ = cmd
	_ = arg
	return nil
}

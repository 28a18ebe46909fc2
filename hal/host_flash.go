//go:build !tinygo

package hal

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
)

const (
	hostFlashDefaultPath       = "spark.flash"
	hostFlashDefaultSizeBytes  = 2 * 1024 * 1024
	hostFlashDefaultSectorSize = 4096
)

// HostFlash emulates a uniform-sector NOR device in a host file.
//
// Programming can only clear bits; writing a 1 over a 0 fails with
// ErrFlashWriteRequiresErase.
type HostFlash struct {
	mu         sync.Mutex
	path       string
	base       uint32
	size       uint32
	sectorSize uint32

	f      *os.File
	erased []byte
}

// NewHostFlash returns a device backed by path. The file is opened by Init.
func NewHostFlash(path string, base, size, sectorSize uint32) *HostFlash {
	if path == "" {
		path = hostFlashDefaultPath
	}
	return &HostFlash{path: path, base: base, size: size, sectorSize: sectorSize}
}

// Device returns a descriptor for the flash.
func (f *HostFlash) Device(name string) *FlashDevice {
	count := 0
	if f.sectorSize != 0 {
		count = int(f.size / f.sectorSize)
	}
	return &FlashDevice{
		Name:        name,
		BaseAddr:    f.base,
		Size:        f.size,
		Align:       1,
		SectorCount: count,
		Flash:       f,
	}
}

func (f *HostFlash) Init() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.f != nil {
		return nil
	}
	if f.sectorSize == 0 || f.size == 0 || f.size%f.sectorSize != 0 {
		return fmt.Errorf("flash %q: size %d not multiple of sector size %d: %w", f.path, f.size, f.sectorSize, os.ErrInvalid)
	}

	file, err := os.OpenFile(f.path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return fmt.Errorf("open flash file %q: %w", f.path, err)
	}

	erased := make([]byte, f.sectorSize)
	for i := range erased {
		erased[i] = 0xFF
	}

	st, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return fmt.Errorf("stat flash file %q: %w", f.path, err)
	}
	switch {
	case st.Size() == 0:
		// Fresh image: flash leaves the factory erased.
		for off := int64(0); off < int64(f.size); off += int64(f.sectorSize) {
			if _, err := file.WriteAt(erased, off); err != nil {
				_ = file.Close()
				return fmt.Errorf("erase flash file %q at %d: %w", f.path, off, err)
			}
		}
	case st.Size() != int64(f.size):
		_ = file.Close()
		return fmt.Errorf("flash file %q is %d bytes, want %d: %w", f.path, st.Size(), f.size, os.ErrInvalid)
	}

	f.f = file
	f.erased = erased
	return nil
}

// Close releases the backing file.
func (f *HostFlash) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.f == nil {
		return nil
	}
	err := f.f.Close()
	f.f = nil
	return err
}

func (f *HostFlash) offset(addr uint32, n int) (int64, error) {
	if addr < f.base || uint64(addr-f.base)+uint64(n) > uint64(f.size) {
		return 0, fmt.Errorf("flash access %#x+%d: %w", addr, n, os.ErrInvalid)
	}
	return int64(addr - f.base), nil
}

func (f *HostFlash) Read(addr uint32, p []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.f == nil {
		return ErrFlashNotReady
	}
	off, err := f.offset(addr, len(p))
	if err != nil {
		return err
	}
	if _, err := f.f.ReadAt(p, off); err != nil {
		return fmt.Errorf("flash read at %#x: %w", addr, err)
	}
	return nil
}

func (f *HostFlash) Write(addr uint32, p []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.f == nil {
		return ErrFlashNotReady
	}
	off, err := f.offset(addr, len(p))
	if err != nil {
		return err
	}

	prev := make([]byte, len(p))
	if _, err := f.f.ReadAt(prev, off); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("flash read before write at %#x: %w", addr, err)
	}
	for i := range p {
		if prev[i]&p[i] != p[i] {
			return ErrFlashWriteRequiresErase
		}
	}
	if _, err := f.f.WriteAt(p, off); err != nil {
		return fmt.Errorf("flash write at %#x: %w", addr, err)
	}
	return nil
}

func (f *HostFlash) EraseSector(addr uint32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.f == nil {
		return ErrFlashNotReady
	}
	off, err := f.offset(addr, int(f.sectorSize))
	if err != nil {
		return err
	}
	if off%int64(f.sectorSize) != 0 {
		return fmt.Errorf("flash erase at %#x: %w", addr, ErrFlashUnaligned)
	}
	if _, err := f.f.WriteAt(f.erased, off); err != nil {
		return fmt.Errorf("flash erase sector at %#x: %w", addr, err)
	}
	return nil
}

func (f *HostFlash) SectorInfo(idx int) (uint32, uint32, error) {
	if f.sectorSize == 0 || idx < 0 || idx >= int(f.size/f.sectorSize) {
		return 0, 0, fmt.Errorf("flash sector %d: %w", idx, os.ErrInvalid)
	}
	return f.base + uint32(idx)*f.sectorSize, f.sectorSize, nil
}

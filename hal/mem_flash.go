package hal

import (
	"fmt"
	"sync"
)

// MemFlash is a RAM-backed NOR emulation with an arbitrary sector layout.
//
// Like real NOR, a write ANDs the new data into the cell contents, so
// programming over unerased bytes silently yields the wrong value.
type MemFlash struct {
	mu     sync.Mutex
	base   uint32
	starts []uint32
	sizes  []uint32
	mem    []byte
}

// NewMemFlash returns an erased device at base whose sectors have the given
// sizes, laid out back to back.
func NewMemFlash(base uint32, sectorSizes []uint32) *MemFlash {
	f := &MemFlash{
		base:   base,
		starts: make([]uint32, len(sectorSizes)),
		sizes:  append([]uint32(nil), sectorSizes...),
	}
	var total uint32
	for i, sz := range sectorSizes {
		f.starts[i] = base + total
		total += sz
	}
	f.mem = make([]byte, total)
	for i := range f.mem {
		f.mem[i] = 0xFF
	}
	return f
}

// Device returns a descriptor for the flash.
func (f *MemFlash) Device(name string, align uint8) *FlashDevice {
	return &FlashDevice{
		Name:        name,
		BaseAddr:    f.base,
		Size:        uint32(len(f.mem)),
		Align:       align,
		SectorCount: len(f.sizes),
		Flash:       f,
	}
}

func (f *MemFlash) Init() error { return nil }

func (f *MemFlash) span(addr uint32, n int) (int, error) {
	if addr < f.base || uint64(addr-f.base)+uint64(n) > uint64(len(f.mem)) {
		return 0, fmt.Errorf("flash access %#x+%d: out of range", addr, n)
	}
	return int(addr - f.base), nil
}

func (f *MemFlash) Read(addr uint32, p []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	off, err := f.span(addr, len(p))
	if err != nil {
		return err
	}
	copy(p, f.mem[off:])
	return nil
}

func (f *MemFlash) Write(addr uint32, p []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	off, err := f.span(addr, len(p))
	if err != nil {
		return err
	}
	for i, b := range p {
		f.mem[off+i] &= b
	}
	return nil
}

func (f *MemFlash) EraseSector(addr uint32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, start := range f.starts {
		if start != addr {
			continue
		}
		off := int(start - f.base)
		cell := f.mem[off : off+int(f.sizes[i])]
		for j := range cell {
			cell[j] = 0xFF
		}
		return nil
	}
	return fmt.Errorf("flash erase at %#x: %w", addr, ErrFlashUnaligned)
}

func (f *MemFlash) SectorInfo(idx int) (uint32, uint32, error) {
	if idx < 0 || idx >= len(f.sizes) {
		return 0, 0, fmt.Errorf("flash sector %d: out of range", idx)
	}
	return f.starts[idx], f.sizes[idx], nil
}

// IsEmpty scans the backing memory directly.
func (f *MemFlash) IsEmpty(addr, n uint32) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	off, err := f.span(addr, int(n))
	if err != nil {
		return false, err
	}
	for _, b := range f.mem[off : off+int(n)] {
		if b != 0xFF {
			return false, nil
		}
	}
	return true, nil
}

func uniformSectors(count int, size uint32) []uint32 {
	sizes := make([]uint32, count)
	for i := range sizes {
		sizes[i] = size
	}
	return sizes
}

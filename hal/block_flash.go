package hal

import (
	"fmt"
	"io"
	"sync"

	"tinygo.org/x/tinyfs"
)

// BlockFlash exposes a tinyfs.BlockDevice as a flash device with one sector
// per erase block.
type BlockFlash struct {
	mu   sync.Mutex
	dev  tinyfs.BlockDevice
	base uint32
}

// NewBlockFlash maps dev at base.
func NewBlockFlash(dev tinyfs.BlockDevice, base uint32) *BlockFlash {
	return &BlockFlash{dev: dev, base: base}
}

// Device returns a descriptor for the flash. The write alignment is the
// device's write block size, capped at 255.
func (f *BlockFlash) Device(name string) *FlashDevice {
	align := f.dev.WriteBlockSize()
	if align <= 0 {
		align = 1
	}
	if align > 255 {
		align = 255
	}
	count := 0
	if bs := f.dev.EraseBlockSize(); bs > 0 {
		count = int(f.dev.Size() / bs)
	}
	return &FlashDevice{
		Name:        name,
		BaseAddr:    f.base,
		Size:        uint32(f.dev.Size()),
		Align:       uint8(align),
		SectorCount: count,
		Flash:       f,
	}
}

func (f *BlockFlash) Init() error {
	if f.dev.EraseBlockSize() <= 0 {
		return fmt.Errorf("block flash: erase block size %d: %w", f.dev.EraseBlockSize(), ErrNotImplemented)
	}
	return nil
}

func (f *BlockFlash) Read(addr uint32, p []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, err := f.dev.ReadAt(p, int64(addr-f.base))
	if err != nil {
		return fmt.Errorf("block flash read at %#x: %w", addr, err)
	}
	if n != len(p) {
		return fmt.Errorf("block flash read at %#x: %w", addr, io.ErrUnexpectedEOF)
	}
	return nil
}

func (f *BlockFlash) Write(addr uint32, p []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, err := f.dev.WriteAt(p, int64(addr-f.base))
	if err != nil {
		return fmt.Errorf("block flash write at %#x: %w", addr, err)
	}
	if n != len(p) {
		return fmt.Errorf("block flash write at %#x: %w", addr, io.ErrShortWrite)
	}
	return nil
}

func (f *BlockFlash) EraseSector(addr uint32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	bs := f.dev.EraseBlockSize()
	if bs <= 0 {
		return fmt.Errorf("block flash erase at %#x: erase block size %d: %w", addr, bs, ErrNotImplemented)
	}
	off := int64(addr - f.base)
	if off%bs != 0 {
		return fmt.Errorf("block flash erase at %#x: %w", addr, ErrFlashUnaligned)
	}
	return f.dev.EraseBlocks(off/bs, 1)
}

func (f *BlockFlash) SectorInfo(idx int) (uint32, uint32, error) {
	bs := f.dev.EraseBlockSize()
	if bs <= 0 || idx < 0 || int64(idx) >= f.dev.Size()/bs {
		return 0, 0, fmt.Errorf("block flash sector %d: out of range", idx)
	}
	return f.base + uint32(int64(idx)*bs), uint32(bs), nil
}

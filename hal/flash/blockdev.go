package flash

import (
	"fmt"
	"io"

	"tinygo.org/x/tinyfs"
)

var _ tinyfs.BlockDevice = (*BlockDevice)(nil)

// BlockDevice presents a sector-aligned window of one device as a
// tinyfs.BlockDevice, so tinyfs filesystems can live in a flash partition.
// All access goes through the Layer and is validated and verified like any
// other caller's.
type BlockDevice struct {
	l         *Layer
	id        uint8
	base      uint32
	size      uint32
	eraseSize uint32
	align     uint8
}

// BlockDevice returns a block device for [addr, addr+n) of device id. The
// window must start and end on sector boundaries and its sectors must all
// have the same size.
func (l *Layer) BlockDevice(id uint8, addr, n uint32) (*BlockDevice, error) {
	dev, err := l.lookup(id, addr, uint64(n))
	if err != nil {
		return nil, err
	}
	sectors, err := l.Sectors(id)
	if err != nil {
		return nil, err
	}

	end := uint64(addr) + uint64(n)
	var eraseSize uint32
	startOK, endOK := false, false
	for _, s := range sectors {
		if s.End() <= uint64(addr) || uint64(s.Start) >= end {
			continue
		}
		if eraseSize == 0 {
			eraseSize = s.Size
		} else if s.Size != eraseSize {
			return nil, fmt.Errorf("flash %d: partition %#x+%d mixes sector sizes %d and %d: %w", id, addr, n, eraseSize, s.Size, ErrInvalid)
		}
		if s.Start == addr {
			startOK = true
		}
		if s.End() == end {
			endOK = true
		}
	}
	if eraseSize == 0 || !startOK || !endOK {
		return nil, fmt.Errorf("flash %d: partition %#x+%d not sector aligned: %w", id, addr, n, ErrInvalid)
	}

	align := dev.Align
	if align == 0 {
		align = 1
	}
	return &BlockDevice{l: l, id: id, base: addr, size: n, eraseSize: eraseSize, align: align}, nil
}

func (b *BlockDevice) span(off int64, n int) error {
	if off < 0 || off+int64(n) > int64(b.size) {
		return fmt.Errorf("flash %d: partition offset %d+%d: %w", b.id, off, n, ErrOutOfRange)
	}
	return nil
}

func (b *BlockDevice) ReadAt(p []byte, off int64) (int, error) {
	if off >= int64(b.size) {
		return 0, io.EOF
	}
	if err := b.span(off, len(p)); err != nil {
		return 0, err
	}
	if err := b.l.Read(b.id, b.base+uint32(off), p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (b *BlockDevice) WriteAt(p []byte, off int64) (int, error) {
	if err := b.span(off, len(p)); err != nil {
		return 0, err
	}
	if err := b.l.Write(b.id, b.base+uint32(off), p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (b *BlockDevice) Size() int64 { return int64(b.size) }

func (b *BlockDevice) WriteBlockSize() int64 { return int64(b.align) }

func (b *BlockDevice) EraseBlockSize() int64 { return int64(b.eraseSize) }

// EraseBlocks erases n blocks starting at block start.
func (b *BlockDevice) EraseBlocks(start, n int64) error {
	bs := int64(b.eraseSize)
	if start < 0 || n <= 0 || (start+n)*bs > int64(b.size) {
		return fmt.Errorf("flash %d: erase blocks %d+%d: %w", b.id, start, n, ErrOutOfRange)
	}
	return b.l.Erase(b.id, b.base+uint32(start*bs), uint32(n*bs))
}

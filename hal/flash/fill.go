package flash

import "sparkflash/hal"

const fillChunk = 32

// IsFilledWith reports whether every byte of [addr, addr+n) equals value.
// It stops reading at the first mismatch.
func (l *Layer) IsFilledWith(id uint8, addr, n uint32, value byte) (bool, error) {
	dev, err := l.lookup(id, addr, uint64(n))
	if err != nil {
		return false, err
	}
	return isFilledWith(dev, addr, n, value)
}

// IsOnes reports whether the range reads back as 0xFF.
func (l *Layer) IsOnes(id uint8, addr, n uint32) (bool, error) {
	return l.IsFilledWith(id, addr, n, 0xFF)
}

// IsZeroes reports whether the range reads back as 0x00.
func (l *Layer) IsZeroes(id uint8, addr, n uint32) (bool, error) {
	return l.IsFilledWith(id, addr, n, 0x00)
}

// IsEmpty reports whether the range is erased. Drivers implementing
// hal.FlashEmptyChecker answer directly; otherwise the range is checked for
// 0xFF.
func (l *Layer) IsEmpty(id uint8, addr, n uint32) (bool, error) {
	dev, err := l.lookup(id, addr, uint64(n))
	if err != nil {
		return false, err
	}
	if ec, ok := dev.Flash.(hal.FlashEmptyChecker); ok {
		return ec.IsEmpty(addr, n)
	}
	return isFilledWith(dev, addr, n, 0xFF)
}

func isFilledWith(dev *hal.FlashDevice, addr, n uint32, value byte) (bool, error) {
	var buf [fillChunk]byte
	for n > 0 {
		chunk := uint32(len(buf))
		if chunk > n {
			chunk = n
		}
		if err := dev.Flash.Read(addr, buf[:chunk]); err != nil {
			return false, err
		}
		for _, b := range buf[:chunk] {
			if b != value {
				return false, nil
			}
		}
		addr += chunk
		n -= chunk
	}
	return true, nil
}

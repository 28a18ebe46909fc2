package flash

import "sparkflash/hal"

func (l *Layer) violate(e *IntegrityError) {
	l.logf("%v", e)
	if fn := l.cfg.OnIntegrityViolation; fn != nil {
		fn(IntegrityInfo{Err: e, Stack: captureStack()})
	}
	panic(e)
}

// verifyWritten reads [addr, addr+len(p)) back in VerifyBufSize chunks and
// compares it with p.
func (l *Layer) verifyWritten(id uint8, dev *hal.FlashDevice, addr uint32, p []byte) {
	buf := make([]byte, l.cfg.VerifyBufSize)
	for off := 0; off < len(p); off += len(buf) {
		chunk := len(p) - off
		if chunk > len(buf) {
			chunk = len(buf)
		}
		if err := dev.Flash.Read(addr+uint32(off), buf[:chunk]); err != nil {
			l.violate(&IntegrityError{Op: "write", Device: id, Addr: addr, Offset: uint32(off), Err: err})
		}
		for i, got := range buf[:chunk] {
			if want := p[off+i]; got != want {
				l.violate(&IntegrityError{Op: "write", Device: id, Addr: addr, Offset: uint32(off + i), Want: want, Got: got})
			}
		}
	}
}

// verifyErased checks that [addr, addr+n) reads back as 0xFF.
func (l *Layer) verifyErased(id uint8, dev *hal.FlashDevice, addr, n uint32) {
	buf := make([]byte, l.cfg.VerifyBufSize)
	for off := uint32(0); off < n; off += uint32(len(buf)) {
		chunk := n - off
		if chunk > uint32(len(buf)) {
			chunk = uint32(len(buf))
		}
		if err := dev.Flash.Read(addr+off, buf[:chunk]); err != nil {
			l.violate(&IntegrityError{Op: "erase", Device: id, Addr: addr, Offset: off, Want: 0xFF, Err: err})
		}
		for i, got := range buf[:chunk] {
			if got != 0xFF {
				l.violate(&IntegrityError{Op: "erase", Device: id, Addr: addr, Offset: off + uint32(i), Want: 0xFF, Got: got})
			}
		}
	}
}

// verifySector finds the sector starting at addr and checks that it is
// erased. An addr that starts no sector is not checked.
func (l *Layer) verifySector(id uint8, dev *hal.FlashDevice, addr uint32) {
	for i := 0; i < dev.SectorCount; i++ {
		start, size, err := dev.Flash.SectorInfo(i)
		if err != nil {
			l.violate(&IntegrityError{Op: "erase", Device: id, Addr: addr, Err: err})
		}
		if start == addr {
			l.verifyErased(id, dev, start, size)
			return
		}
	}
}

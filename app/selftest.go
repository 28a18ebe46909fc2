package app

import (
	"bytes"
	"fmt"

	"go.uber.org/multierr"

	"sparkflash/hal"
)

// SelfTest erases the last sector of every device, checks that it reads
// blank, programs a pattern and reads it back. Devices that cannot be
// reached are skipped.
func (s *System) SelfTest() error {
	var errs error
	logger := s.h.Logger()
	s.devices(func(id uint8, dev *hal.FlashDevice) {
		if dev.Flash == nil || dev.SectorCount == 0 {
			return
		}
		if err := s.selfTestDevice(id, dev); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("flash %d (%s): %w", id, dev.Name, err))
			return
		}
		logger.WriteLineString(fmt.Sprintf("selftest: flash %d ok", id))
	})
	return errs
}

func (s *System) selfTestDevice(id uint8, dev *hal.FlashDevice) error {
	sec, err := s.Flash.Sector(id, dev.SectorCount-1)
	if err != nil {
		return err
	}
	bd, err := s.Flash.BlockDevice(id, sec.Start, sec.Size)
	if err != nil {
		return err
	}
	if err := bd.EraseBlocks(0, 1); err != nil {
		return fmt.Errorf("erase: %w", err)
	}
	blank, err := s.Flash.IsEmpty(id, sec.Start, sec.Size)
	if err != nil {
		return err
	}
	if !blank {
		return fmt.Errorf("sector %#x not blank after erase", sec.Start)
	}

	n := int(sec.Size)
	if n > 256 {
		n = 256
	}
	// Write in whole alignment units.
	if a := int(bd.WriteBlockSize()); a > 1 {
		n -= n % a
	}
	want := make([]byte, n)
	for i := range want {
		want[i] = byte(i) ^ 0x5A
	}
	if _, err := bd.WriteAt(want, 0); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	got := make([]byte, n)
	if _, err := bd.ReadAt(got, 0); err != nil {
		return fmt.Errorf("read: %w", err)
	}
	if !bytes.Equal(got, want) {
		return fmt.Errorf("sector %#x: read back differs from pattern", sec.Start)
	}
	return bd.EraseBlocks(0, 1)
}

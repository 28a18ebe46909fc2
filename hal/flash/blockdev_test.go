package flash

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"sparkflash/hal"
)

func TestBlockDevicePartition(t *testing.T) {
	l, f := newExample(t, Config{VerifyWrites: true, VerifyErases: true})

	bd, err := l.BlockDevice(0, 0x1800, 0x1000)
	if err != nil {
		t.Fatalf("BlockDevice() = %v, want nil", err)
	}
	if bd.Size() != 0x1000 || bd.EraseBlockSize() != 0x800 || bd.WriteBlockSize() != 1 {
		t.Fatalf("geometry = %d/%d/%d, want 4096/2048/1", bd.Size(), bd.EraseBlockSize(), bd.WriteBlockSize())
	}

	if err := bd.EraseBlocks(1, 1); err != nil {
		t.Fatalf("EraseBlocks(1, 1) = %v", err)
	}
	if len(f.erased) != 1 || f.erased[0] != 0x2000 {
		t.Fatalf("erased = %#x, want [0x2000]", f.erased)
	}

	want := pattern(300, 9)
	if n, err := bd.WriteAt(want, 0x810); err != nil || n != len(want) {
		t.Fatalf("WriteAt() = %d, %v", n, err)
	}
	got := make([]byte, len(want))
	if n, err := bd.ReadAt(got, 0x810); err != nil || n != len(got) {
		t.Fatalf("ReadAt() = %d, %v", n, err)
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("ReadAt() returned different bytes than written")
	}

	// Partition offsets map onto the device window.
	direct := make([]byte, len(want))
	if err := l.Read(0, 0x2010, direct); err != nil || !bytes.Equal(direct, want) {
		t.Fatalf("Read(0x2010) = %v, contents match = %v", err, bytes.Equal(direct, want))
	}
}

func TestBlockDeviceBounds(t *testing.T) {
	l, _ := newExample(t, Config{})
	bd, err := l.BlockDevice(0, 0x1000, 0x800)
	if err != nil {
		t.Fatalf("BlockDevice() = %v", err)
	}

	if _, err := bd.ReadAt(make([]byte, 1), 0x800); err != io.EOF {
		t.Fatalf("ReadAt(end) = %v, want io.EOF", err)
	}
	if _, err := bd.ReadAt(make([]byte, 2), 0x7FF); !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("ReadAt(past end) = %v, want ErrOutOfRange", err)
	}
	if _, err := bd.WriteAt(make([]byte, 1), -1); !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("WriteAt(-1) = %v, want ErrOutOfRange", err)
	}
	if err := bd.EraseBlocks(1, 1); !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("EraseBlocks(1, 1) = %v, want ErrOutOfRange", err)
	}
}

func TestBlockDeviceRejectsBadPartitions(t *testing.T) {
	l, _ := newExample(t, Config{})

	tcs := []struct {
		addr, n uint32
	}{
		{0x1100, 0x800},
		{0x1000, 0x900},
		{0x1000, 0},
		{0x2800, 0x1000},
	}
	for _, tc := range tcs {
		if _, err := l.BlockDevice(0, tc.addr, tc.n); !errors.Is(err, ErrInvalid) {
			t.Fatalf("BlockDevice(%#x, %#x) = %v, want ErrInvalid", tc.addr, tc.n, err)
		}
	}

	mixed := hal.NewMemFlash(0, []uint32{0x400, 0x800})
	lm := New(hal.FlashTable{mixed.Device("mixed", 1)}, Config{})
	if _, err := lm.BlockDevice(0, 0, 0xC00); !errors.Is(err, ErrInvalid) {
		t.Fatalf("BlockDevice(mixed sizes) = %v, want ErrInvalid", err)
	}
	if _, err := lm.BlockDevice(0, 0x400, 0x800); err != nil {
		t.Fatalf("BlockDevice(one sector) = %v, want nil", err)
	}
}

//go:build !tinygo

package hal

import (
	"bytes"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/spi"
)

// fakeNOR answers the SPI NOR command subset used by SPINORFlash.
type fakeNOR struct {
	id        [3]byte
	mem       []byte
	wel       bool
	busy      int
	busyAfter int
	stuck     bool
	cmds      []byte
}

func newFakeNOR(size int) *fakeNOR {
	c := &fakeNOR{id: [3]byte{0xEF, 0x40, 0x18}, mem: bytes.Repeat([]byte{0xFF}, size), busyAfter: 2}
	return c
}

func (c *fakeNOR) String() string      { return "fakeNOR" }
func (c *fakeNOR) Duplex() conn.Duplex { return conn.Full }

func (c *fakeNOR) TxPackets(p []spi.Packet) error {
	for _, pkt := range p {
		if err := c.Tx(pkt.W, pkt.R); err != nil {
			return err
		}
	}
	return nil
}

func (c *fakeNOR) Tx(w, r []byte) error {
	if len(w) == 0 {
		return errors.New("empty transaction")
	}
	c.cmds = append(c.cmds, w[0])
	off := 0
	if len(w) >= 4 {
		off = int(w[1])<<16 | int(w[2])<<8 | int(w[3])
	}
	switch w[0] {
	case spiNORCmdReleasePowerDown:
	case spiNORCmdReadID:
		copy(r[1:], c.id[:])
	case spiNORCmdRead:
		copy(r[4:], c.mem[off:])
	case spiNORCmdWriteEnable:
		c.wel = true
	case spiNORCmdPageProgram:
		if !c.wel {
			return nil
		}
		page := off &^ (spiNORPageSize - 1)
		for i, b := range w[4:] {
			c.mem[page+(off+i)%spiNORPageSize] &= b
		}
		c.wel = false
		c.busy = c.busyAfter
	case spiNORCmdSectorErase:
		if !c.wel {
			return nil
		}
		s := off &^ (spiNORSectorSize - 1)
		for i := s; i < s+spiNORSectorSize; i++ {
			c.mem[i] = 0xFF
		}
		c.wel = false
		c.busy = c.busyAfter
	case spiNORCmdReadStatus:
		r[1] = 0
		if c.busy > 0 || c.stuck {
			r[1] = spiNORStatusBusy
			c.busy--
		}
	default:
		return errors.New("unknown command")
	}
	return nil
}

var _ spi.Conn = (*fakeNOR)(nil)

func newTestSPINOR(t *testing.T, chip *fakeNOR) *SPINORFlash {
	t.Helper()
	f := NewSPINORFlash(chip, 0x30000000, uint32(len(chip.mem)))
	f.PollInterval = 0
	if err := f.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
	return f
}

func TestSPINORInitReadsID(t *testing.T) {
	chip := newFakeNOR(4 * spiNORSectorSize)
	f := newTestSPINOR(t, chip)
	if got := f.JEDECID(); got != chip.id {
		t.Fatalf("JEDECID=% x; want % x", got, chip.id)
	}
	if diff := cmp.Diff([]byte{spiNORCmdReleasePowerDown, spiNORCmdReadID}, chip.cmds); diff != "" {
		t.Fatalf("commands mismatch (-want +got):\n%s", diff)
	}

	absent := newFakeNOR(spiNORSectorSize)
	absent.id = [3]byte{0xFF, 0xFF, 0xFF}
	if err := NewSPINORFlash(absent, 0, spiNORSectorSize).Init(); err == nil {
		t.Fatal("expected Init to fail without a chip")
	}
	if err := NewSPINORFlash(chip, 0, 1000).Init(); err == nil {
		t.Fatal("expected Init to reject a partial sector size")
	}
}

func TestSPINORProgramSplitsPages(t *testing.T) {
	chip := newFakeNOR(4 * spiNORSectorSize)
	f := newTestSPINOR(t, chip)
	chip.cmds = nil

	want := make([]byte, 300)
	for i := range want {
		want[i] = byte(i)
	}
	// 0xF0 into the first page: 16 + 256 + 28 bytes.
	if err := f.Write(0x300000F0, want); err != nil {
		t.Fatalf("Write: %v", err)
	}
	programs := 0
	for _, c := range chip.cmds {
		if c == spiNORCmdPageProgram {
			programs++
		}
	}
	if programs != 3 {
		t.Fatalf("page programs=%d; want 3", programs)
	}

	got := make([]byte, len(want))
	if err := f.Read(0x300000F0, got); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Fatal("expected read back to match written data")
	}
}

func TestSPINORLargeReadIsChunked(t *testing.T) {
	chip := newFakeNOR(4 * spiNORSectorSize)
	f := newTestSPINOR(t, chip)
	for i := range chip.mem {
		chip.mem[i] = byte(i >> 4)
	}
	chip.cmds = nil

	got := make([]byte, 3*spiNORSectorSize)
	if err := f.Read(0x30000010, got); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !bytes.Equal(got, chip.mem[0x10:0x10+len(got)]) {
		t.Fatal("expected chunked read to match chip contents")
	}
	if len(chip.cmds) != 3 {
		t.Fatalf("transactions=%d; want 3", len(chip.cmds))
	}
}

func TestSPINOREraseSector(t *testing.T) {
	chip := newFakeNOR(4 * spiNORSectorSize)
	f := newTestSPINOR(t, chip)
	for i := range chip.mem {
		chip.mem[i] = 0
	}

	if err := f.EraseSector(0x30001000); err != nil {
		t.Fatalf("EraseSector: %v", err)
	}
	if !bytes.Equal(chip.mem[0x1000:0x2000], bytes.Repeat([]byte{0xFF}, 0x1000)) {
		t.Fatal("expected sector 1 erased")
	}
	if chip.mem[0xFFF] != 0 || chip.mem[0x2000] != 0 {
		t.Fatal("expected neighbouring sectors untouched")
	}
	if err := f.EraseSector(0x30001100); !errors.Is(err, ErrFlashUnaligned) {
		t.Fatalf("EraseSector(unaligned) err=%v; want %v", err, ErrFlashUnaligned)
	}

	start, size, err := f.SectorInfo(3)
	if err != nil || start != 0x30003000 || size != spiNORSectorSize {
		t.Fatalf("SectorInfo(3)=%#x,%d,%v", start, size, err)
	}
}

func TestSPINORBusyTimeout(t *testing.T) {
	chip := newFakeNOR(spiNORSectorSize)
	f := newTestSPINOR(t, chip)
	f.MaxPolls = 5
	chip.stuck = true

	if err := f.EraseSector(0x30000000); !errors.Is(err, ErrFlashBusy) {
		t.Fatalf("EraseSector err=%v; want %v", err, ErrFlashBusy)
	}
}

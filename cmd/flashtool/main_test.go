//go:build !tinygo

package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"sparkflash/hal"
	"sparkflash/hal/flash"
	"sparkflash/internal/flashcrc"
)

type tool struct {
	t      *testing.T
	image  string
	dir    string
	stderr string
}

func newTool(t *testing.T) *tool {
	dir := t.TempDir()
	return &tool{t: t, image: filepath.Join(dir, "flash.img"), dir: dir}
}

func (tl *tool) run(args ...string) (string, error) {
	tl.t.Helper()
	var out, errOut bytes.Buffer
	full := append([]string{"--no-color", "--image", tl.image, "--image-size", "64KiB", "--sector-size", "0x1000"}, args...)
	exit := func(code int) { panic(fmt.Sprintf("exit %d", code)) }
	err := run(full, &out, &errOut, exit)
	tl.stderr = errOut.String()
	return out.String(), err
}

func (tl *tool) mustRun(args ...string) string {
	tl.t.Helper()
	out, err := tl.run(args...)
	if err != nil {
		tl.t.Fatalf("flashtool %s: %v", strings.Join(args, " "), err)
	}
	return out
}

func (tl *tool) file(name string, data []byte) string {
	tl.t.Helper()
	p := filepath.Join(tl.dir, name)
	if err := os.WriteFile(p, data, 0o644); err != nil {
		tl.t.Fatalf("WriteFile: %v", err)
	}
	return p
}

func TestWriteReadRoundTrip(t *testing.T) {
	tl := newTool(t)
	data := []byte("hello flash")
	in := tl.file("in.bin", data)

	out := tl.mustRun("write", "0x1000", in)
	if want := fmt.Sprintf("crc=%#04x", flashcrc.Sum(data)); !strings.Contains(out, want) {
		t.Fatalf("write output=%q; want it to contain %q", out, want)
	}

	outPath := filepath.Join(tl.dir, "out.bin")
	tl.mustRun("read", "0x1000", fmt.Sprint(len(data)), "-o", outPath)
	got, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Fatalf("read back %q; want %q", got, data)
	}

	dump := tl.mustRun("read", "0x1000", "11")
	if !strings.Contains(dump, "|hello flash|") {
		t.Fatalf("hex dump=%q", dump)
	}

	crc := tl.mustRun("crc", "0x1000", "11")
	if strings.TrimSpace(crc) != fmt.Sprintf("%#04x", flashcrc.Sum(data)) {
		t.Fatalf("crc=%q; want %#04x", crc, flashcrc.Sum(data))
	}
}

func TestEraseAndEmpty(t *testing.T) {
	tl := newTool(t)
	in := tl.file("zero.bin", make([]byte, 16))
	tl.mustRun("write", "0x2010", in)

	if out := tl.mustRun("empty", "0x2000", "0x1000"); strings.TrimSpace(out) != "not empty" {
		t.Fatalf("empty=%q; want not empty", out)
	}
	if out := tl.mustRun("empty", "0x2010", "16", "--value", "0x00"); strings.TrimSpace(out) != "filled with 0x00" {
		t.Fatalf("empty --value=%q", out)
	}

	// Programming 1s over 0s needs an erase first.
	ones := tl.file("ones.bin", bytes.Repeat([]byte{0xFF}, 16))
	if _, err := tl.run("write", "0x2010", tl.file("a5.bin", []byte{0xA5})); !errors.Is(err, hal.ErrFlashWriteRequiresErase) {
		t.Fatalf("write over programmed bytes err=%v; want %v", err, hal.ErrFlashWriteRequiresErase)
	}
	tl.mustRun("write", "--erase", "0x2010", ones)

	tl.mustRun("erase", "0x2100", "1")
	if out := tl.mustRun("empty", "0x2000", "0x1000"); strings.TrimSpace(out) != "empty" {
		t.Fatalf("empty after erase=%q; want empty", out)
	}

	tl.mustRun("write", "0x3000", in)
	tl.mustRun("erase-sector", "0x3000")
	if out := tl.mustRun("empty", "0x3000", "0x1000"); strings.TrimSpace(out) != "empty" {
		t.Fatalf("empty after erase-sector=%q; want empty", out)
	}
}

func TestRangeErrors(t *testing.T) {
	tl := newTool(t)
	if _, err := tl.run("read", "0x10000", "1"); !errors.Is(err, flash.ErrOutOfRange) {
		t.Fatalf("read past end err=%v; want %v", err, flash.ErrOutOfRange)
	}
	if _, err := tl.run("erase", "0x1000", "0"); !errors.Is(err, flash.ErrRangeWrap) {
		t.Fatalf("empty erase err=%v; want %v", err, flash.ErrRangeWrap)
	}
	if _, err := tl.run("-d", "3", "crc", "0", "1"); !errors.Is(err, flash.ErrNoDevice) {
		t.Fatalf("unknown device err=%v; want %v", err, flash.ErrNoDevice)
	}
}

func TestInfo(t *testing.T) {
	tl := newTool(t)
	out := tl.mustRun("info", "--sectors")
	if !strings.HasPrefix(out, "0 image: base=0x0 size=64 KiB sectors=16 align=1\n") {
		t.Fatalf("info=%q", out)
	}
	if !strings.Contains(out, "    15 0x0000f000 4.0 KiB\n") {
		t.Fatalf("info sectors=%q", out)
	}
}

func TestScript(t *testing.T) {
	tl := newTool(t)
	data := tl.file("data.bin", []byte{1, 2, 3, 4})
	script := tl.file("prog.txt", []byte(strings.Join([]string{
		"# program and check",
		"erase 0x4000 0x1000",
		"write 0x4000 '" + data + "'",
		"",
		"crc 0x4000 4",
	}, "\n")))

	out := tl.mustRun("script", script)
	if want := fmt.Sprintf("%#04x", flashcrc.Sum([]byte{1, 2, 3, 4})); !strings.Contains(out, want) {
		t.Fatalf("script output=%q; want crc %s", out, want)
	}
	if strings.Count(out, "> ") != 3 {
		t.Fatalf("script echoed %d commands; want 3:\n%s", strings.Count(out, "> "), out)
	}

	bad := tl.file("bad.txt", []byte("erase 0x4000 0x1000\nread 0xFFFFF 4\n"))
	if _, err := tl.run("script", bad); err == nil || !strings.Contains(err.Error(), "bad.txt:2:") {
		t.Fatalf("bad script err=%v; want error on line 2", err)
	}
}

func TestValues(t *testing.T) {
	var s Size
	for in, want := range map[string]Size{"4096": 4096, "0x100": 256, "4KiB": 4096, "2MiB": 2 << 20} {
		if err := s.UnmarshalText([]byte(in)); err != nil || s != want {
			t.Fatalf("Size(%q)=%d,%v; want %d", in, s, err, want)
		}
	}
	if err := s.UnmarshalText([]byte("8GiB")); err == nil {
		t.Fatal("expected sizes past 4GiB to be rejected")
	}

	var a Addr
	if err := a.UnmarshalText([]byte("0x08000000")); err != nil || a != 0x08000000 {
		t.Fatalf("Addr=%#x,%v", a, err)
	}
	if err := a.UnmarshalText([]byte("0x100000000")); err == nil {
		t.Fatal("expected addresses past 32 bits to be rejected")
	}
}

func TestVersion(t *testing.T) {
	tl := newTool(t)
	if out := tl.mustRun("version"); !strings.HasPrefix(out, "flashtool dev") {
		t.Fatalf("version=%q", out)
	}
	if _, err := os.Stat(tl.image); !os.IsNotExist(err) {
		t.Fatalf("version created the image (stat err=%v)", err)
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func TestBrokenSPIChipLeavesImageUsable(t *testing.T) {
	defer func(orig func(string, int64, uint32) (*hal.FlashDevice, io.Closer, error)) { openSPI = orig }(openSPI)

	tl := newTool(t)
	in := tl.file("in.bin", []byte{0xA5, 0x5A})

	openSPI = func(name string, mhz int64, size uint32) (*hal.FlashDevice, io.Closer, error) {
		return &hal.FlashDevice{Name: "spi", Size: size, SectorCount: 1, Flash: hal.StubFlash{}}, nopCloser{}, nil
	}
	tl.mustRun("--spi", "fake", "write", "0x1000", in)
	if !strings.Contains(tl.stderr, "flash 1 (spi): init:") {
		t.Fatalf("stderr=%q; want the spi init failure", tl.stderr)
	}
	if out := tl.mustRun("--spi", "fake", "crc", "0x1000", "2"); strings.TrimSpace(out) != fmt.Sprintf("%#04x", flashcrc.Sum([]byte{0xA5, 0x5A})) {
		t.Fatalf("crc=%q", out)
	}
	if _, err := tl.run("--spi", "fake", "-d", "1", "read", "0", "4"); !errors.Is(err, hal.ErrNotImplemented) {
		t.Fatalf("read on broken chip err=%v; want %v", err, hal.ErrNotImplemented)
	}

	openSPI = func(name string, mhz int64, size uint32) (*hal.FlashDevice, io.Closer, error) {
		return nil, nil, errors.New("no such port")
	}
	if out := tl.mustRun("--spi", "missing", "info"); strings.Contains(out, "1 spi") {
		t.Fatalf("info=%q; want the missing chip left out", out)
	}
	if !strings.Contains(tl.stderr, "spi: no such port") {
		t.Fatalf("stderr=%q; want the open failure", tl.stderr)
	}
}

//go:build !tinygo

// Command mkflash builds a host flash image from ADDR=FILE entries.
//
// The image is created erased, every entry is programmed through the flash
// access layer with verification on, and a CRC-16 is printed per entry.
package main

import (
	"flag"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"

	"sparkflash/hal"
	"sparkflash/hal/flash"
	"sparkflash/internal/flashcrc"
)

const (
	defaultFlashPath = "spark.flash"
	defaultFlashSize = "2MiB"
	defaultEraseSize = "4KiB"
)

type entry struct {
	addr uint32
	path string
	data []byte
}

func parseEntry(s string) (entry, error) {
	addrStr, path, ok := strings.Cut(s, "=")
	if !ok || path == "" {
		return entry{}, fmt.Errorf("entry %q: want ADDR=FILE", s)
	}
	addr, err := strconv.ParseUint(addrStr, 0, 32)
	if err != nil {
		return entry{}, fmt.Errorf("entry %q: address: %w", s, err)
	}
	return entry{addr: uint32(addr), path: path}, nil
}

func parseSize(name, s string) (uint32, error) {
	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, fmt.Errorf("-%s %q: %w", name, s, err)
	}
	if n == 0 || n > math.MaxUint32 {
		return 0, fmt.Errorf("-%s %q: out of range", name, s)
	}
	return uint32(n), nil
}

type options struct {
	out       string
	base      uint32
	size      uint32
	eraseSize uint32
	verify    bool
}

func main() {
	var opts options
	var sizeStr, eraseStr, baseStr string
	flag.StringVar(&opts.out, "out", defaultFlashPath, "Output flash image path.")
	flag.StringVar(&sizeStr, "size", defaultFlashSize, "Flash image size (e.g. 2MiB).")
	flag.StringVar(&eraseStr, "erase", defaultEraseSize, "Sector size (e.g. 4KiB).")
	flag.StringVar(&baseStr, "base", "0", "Device base address.")
	flag.BoolVar(&opts.verify, "verify", true, "Read back every write and erase.")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: mkflash [flags] ADDR=FILE...\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	var err error
	if opts.size, err = parseSize("size", sizeStr); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(2)
	}
	if opts.eraseSize, err = parseSize("erase", eraseStr); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(2)
	}
	base, err := strconv.ParseUint(baseStr, 0, 32)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error: -base:", err)
		os.Exit(2)
	}
	opts.base = uint32(base)

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}
	var entries []entry
	for _, arg := range flag.Args() {
		e, err := parseEntry(arg)
		if err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			os.Exit(2)
		}
		entries = append(entries, e)
	}

	if err := run(opts, entries, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

type stdoutLogger struct{ w io.Writer }

func (l stdoutLogger) WriteLineString(s string) { fmt.Fprintln(l.w, s) }
func (l stdoutLogger) WriteLineBytes(b []byte)  { fmt.Fprintln(l.w, string(b)) }

func run(opts options, entries []entry, w io.Writer) error {
	for i := range entries {
		data, err := os.ReadFile(entries[i].path)
		if err != nil {
			return err
		}
		entries[i].data = data
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].addr < entries[j].addr })
	for i := 1; i < len(entries); i++ {
		prev := entries[i-1]
		if uint64(prev.addr)+uint64(len(prev.data)) > uint64(entries[i].addr) {
			return fmt.Errorf("%s at %#x overlaps %s at %#x", entries[i].path, entries[i].addr, prev.path, prev.addr)
		}
	}

	// Start from a fresh, fully erased image.
	if err := os.Remove(opts.out); err != nil && !os.IsNotExist(err) {
		return err
	}
	img := hal.NewHostFlash(opts.out, opts.base, opts.size, opts.eraseSize)
	defer img.Close()

	l := flash.New(hal.FlashTable{img.Device("image")}, flash.Config{
		VerifyWrites: opts.verify,
		VerifyErases: opts.verify,
		Logger:       stdoutLogger{w: w},
		OnIntegrityViolation: func(info flash.IntegrityInfo) {
			fmt.Fprintln(os.Stderr, "error: integrity violation:", info.Err)
			os.Exit(3)
		},
	})
	return build(l, entries, w)
}

// build erases every sector the entries touch, then programs them. Erasing
// first keeps entries that share a sector from wiping each other.
func build(l *flash.Layer, entries []entry, w io.Writer) error {
	if err := l.Init(); err != nil {
		return err
	}
	for _, e := range entries {
		if len(e.data) == 0 {
			continue
		}
		if err := l.Erase(0, e.addr, uint32(len(e.data))); err != nil {
			return fmt.Errorf("erase for %s: %w", e.path, err)
		}
	}
	for _, e := range entries {
		if err := l.Write(0, e.addr, e.data); err != nil {
			return fmt.Errorf("write %s: %w", e.path, err)
		}
		crc, err := flashcrc.SumRange(l, 0, e.addr, uint32(len(e.data)))
		if err != nil {
			return err
		}
		if want := flashcrc.Sum(e.data); crc != want {
			return fmt.Errorf("%s: image crc %#04x, file crc %#04x", e.path, crc, want)
		}
		fmt.Fprintf(w, "0x%08x %8s crc=%#04x %s\n", e.addr, humanize.IBytes(uint64(len(e.data))), crc, e.path)
	}
	return nil
}

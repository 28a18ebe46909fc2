//go:build !tinygo

package main

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/google/shlex"

	"sparkflash/internal/buildinfo"
	"sparkflash/internal/flashcrc"
)

// Commands are the device commands, available both on the command line and
// in scripts.
type Commands struct {
	Info        infoCmd        `cmd:"" help:"Show device geometry."`
	Read        readCmd        `cmd:"" help:"Read a range to a file or as a hex dump."`
	Write       writeCmd       `cmd:"" help:"Program a file at an address."`
	Erase       eraseCmd       `cmd:"" help:"Erase every sector overlapping a range."`
	EraseSector eraseSectorCmd `cmd:"" name:"erase-sector" help:"Erase the sector starting at an address."`
	Empty       emptyCmd       `cmd:"" help:"Check whether a range is erased (or filled with --value)."`
	CRC         crcCmd         `cmd:"" name:"crc" help:"Print the CRC-16/CCITT-FALSE of a range."`
}

type infoCmd struct {
	Sectors bool `help:"List every sector."`
}

func (c *infoCmd) Run(s *session) error {
	l, err := s.open()
	if err != nil {
		return err
	}
	for i, dev := range s.board {
		id := uint8(i)
		fmt.Fprintf(s.out, "%d %s: base=%#x size=%s sectors=%d align=%d\n",
			id, dev.Name, dev.BaseAddr, humanize.IBytes(uint64(dev.Size)), dev.SectorCount, l.Align(id))
		if !c.Sectors {
			continue
		}
		sectors, err := l.Sectors(id)
		if err != nil {
			return fail(s, "info", err)
		}
		for j, sec := range sectors {
			fmt.Fprintf(s.out, "  %4d 0x%08x %s\n", j, sec.Start, humanize.IBytes(uint64(sec.Size)))
		}
	}
	return nil
}

type readCmd struct {
	Addr Addr   `arg:"" help:"Start address."`
	Len  Size   `arg:"" help:"Byte count."`
	Out  string `short:"o" type:"path" help:"Write the bytes to this file instead of dumping them."`
}

func (c *readCmd) Run(s *session) error {
	l, err := s.open()
	if err != nil {
		return err
	}
	buf := make([]byte, c.Len)
	if err := l.Read(s.g.Device, uint32(c.Addr), buf); err != nil {
		return fail(s, "read", err)
	}
	if c.Out != "" {
		return os.WriteFile(c.Out, buf, 0o644)
	}
	d := hex.Dumper(s.out)
	if _, err := d.Write(buf); err != nil {
		return err
	}
	return d.Close()
}

type writeCmd struct {
	Addr  Addr   `arg:"" help:"Start address."`
	File  string `arg:"" type:"existingfile" help:"File to program."`
	Erase bool   `help:"Erase the covered sectors first."`
}

func (c *writeCmd) Run(s *session) error {
	l, err := s.open()
	if err != nil {
		return err
	}
	data, err := os.ReadFile(c.File)
	if err != nil {
		return err
	}
	addr := uint32(c.Addr)
	if a := uint32(l.Align(s.g.Device)); addr%a != 0 || uint32(len(data))%a != 0 {
		warnColor.Fprintf(s.errOut, "write %#x+%d is not %d-byte aligned\n", addr, len(data), a)
	}
	if c.Erase && len(data) > 0 {
		if err := l.Erase(s.g.Device, addr, uint32(len(data))); err != nil {
			return fail(s, "erase", err)
		}
	}
	if err := l.Write(s.g.Device, addr, data); err != nil {
		return fail(s, "write", err)
	}
	fmt.Fprintf(s.out, "wrote %s at %#x crc=%#04x\n", humanize.IBytes(uint64(len(data))), addr, flashcrc.Sum(data))
	return nil
}

type eraseCmd struct {
	Addr Addr `arg:"" help:"Start address."`
	Len  Size `arg:"" help:"Byte count."`
}

func (c *eraseCmd) Run(s *session) error {
	l, err := s.open()
	if err != nil {
		return err
	}
	if err := l.Erase(s.g.Device, uint32(c.Addr), uint32(c.Len)); err != nil {
		return fail(s, "erase", err)
	}
	fmt.Fprintf(s.out, "erased %#x+%s\n", uint32(c.Addr), humanize.IBytes(uint64(c.Len)))
	return nil
}

type eraseSectorCmd struct {
	Addr Addr `arg:"" help:"Sector start address."`
}

func (c *eraseSectorCmd) Run(s *session) error {
	l, err := s.open()
	if err != nil {
		return err
	}
	if err := l.EraseSector(s.g.Device, uint32(c.Addr)); err != nil {
		return fail(s, "erase-sector", err)
	}
	fmt.Fprintf(s.out, "erased sector %#x\n", uint32(c.Addr))
	return nil
}

type emptyCmd struct {
	Addr  Addr   `arg:"" help:"Start address."`
	Len   Size   `arg:"" help:"Byte count."`
	Value string `help:"Check for this byte value instead, e.g. 0x00."`
}

func (c *emptyCmd) Run(s *session) error {
	l, err := s.open()
	if err != nil {
		return err
	}

	var ok bool
	what := "empty"
	if c.Value != "" {
		var v Addr
		if err := v.UnmarshalText([]byte(c.Value)); err != nil || v > 0xFF {
			return fmt.Errorf("--value %q: want a byte", c.Value)
		}
		what = fmt.Sprintf("filled with %#02x", byte(v))
		ok, err = l.IsFilledWith(s.g.Device, uint32(c.Addr), uint32(c.Len), byte(v))
	} else {
		ok, err = l.IsEmpty(s.g.Device, uint32(c.Addr), uint32(c.Len))
	}
	if err != nil {
		return fail(s, "empty", err)
	}

	if ok {
		okColor.Fprintln(s.out, what)
	} else {
		errColor.Fprintln(s.out, "not "+what)
	}
	return nil
}

type crcCmd struct {
	Addr Addr `arg:"" help:"Start address."`
	Len  Size `arg:"" help:"Byte count."`
}

func (c *crcCmd) Run(s *session) error {
	l, err := s.open()
	if err != nil {
		return err
	}
	crc, err := flashcrc.SumRange(l, s.g.Device, uint32(c.Addr), uint32(c.Len))
	if err != nil {
		return fail(s, "crc", err)
	}
	fmt.Fprintf(s.out, "%#04x\n", crc)
	return nil
}

type scriptCmd struct {
	File string `arg:"" type:"existingfile" help:"Script file; # starts a comment."`
}

type scriptLine struct {
	Cmds Commands `embed:""`
}

func (c *scriptCmd) Run(s *session) error {
	f, err := os.Open(c.File)
	if err != nil {
		return err
	}
	defer f.Close()
	return runScript(s, f, c.File)
}

func runScript(s *session, r io.Reader, name string) error {
	sc := bufio.NewScanner(r)
	for n := 1; sc.Scan(); n++ {
		args, err := shlex.Split(sc.Text())
		if err != nil {
			return fmt.Errorf("%s:%d: %w", name, n, err)
		}
		if len(args) == 0 {
			continue
		}

		var line scriptLine
		parser, err := newParser(&line, "script", s.out, s.errOut, s.exit)
		if err != nil {
			return err
		}
		kctx, err := parser.Parse(args)
		if err != nil {
			return fmt.Errorf("%s:%d: %w", name, n, err)
		}
		fmt.Fprintf(s.out, "> %s\n", strings.Join(args, " "))
		if err := kctx.Run(s); err != nil {
			return fmt.Errorf("%s:%d: %w", name, n, err)
		}
	}
	return sc.Err()
}

type versionCmd struct{}

func (versionCmd) Run(s *session) error {
	fmt.Fprintf(s.out, "flashtool %s\n", buildinfo.Long())
	return nil
}

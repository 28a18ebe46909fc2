//go:build !tinygo

package main

import (
	"fmt"
	"io"

	"github.com/fatih/color"
	"go.uber.org/multierr"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"

	"sparkflash/hal"
	"sparkflash/hal/flash"
)

var (
	warnColor = color.New(color.FgYellow)
	errColor  = color.New(color.FgRed, color.Bold)
	okColor   = color.New(color.FgGreen)
)

// stderrLogger is the hal.Logger the layer reports through.
type stderrLogger struct{ w io.Writer }

func (l stderrLogger) WriteLineString(s string) { warnColor.Fprintln(l.w, s) }
func (l stderrLogger) WriteLineBytes(b []byte)  { warnColor.Fprintln(l.w, string(b)) }

// session opens the devices on first use and shares them between the
// commands of one invocation or script.
type session struct {
	g      *Globals
	out    io.Writer
	errOut io.Writer
	exit   func(int)

	layer   *flash.Layer
	board   hal.FlashTable
	closers []io.Closer
}

func newSession(g *Globals, out, errOut io.Writer, exit func(int)) *session {
	return &session{g: g, out: out, errOut: errOut, exit: exit}
}

// openSPI attaches the SPI NOR chip named by --spi.
var openSPI = openSPINOR

// open initializes the image, which every session needs, then the optional
// SPI chip. A chip that cannot be opened or initialized is reported and left
// out of service; commands on the image still run.
func (s *session) open() (*flash.Layer, error) {
	if s.layer != nil {
		return s.layer, nil
	}

	img := hal.NewHostFlash(s.g.Image, uint32(s.g.Base), uint32(s.g.ImageSize), uint32(s.g.SectorSize))
	s.closers = append(s.closers, img)
	if err := img.Init(); err != nil {
		return nil, err
	}
	board := hal.FlashTable{img.Device("image")}

	if s.g.SPI != "" {
		dev, port, err := openSPI(s.g.SPI, s.g.SPIMHz, uint32(s.g.SPISize))
		if err != nil {
			warnColor.Fprintf(s.errOut, "spi: %v\n", err)
		} else {
			s.closers = append(s.closers, port)
			board = append(board, dev)
		}
	}

	l := flash.New(board, flash.Config{
		VerifyWrites:         s.g.Verify,
		VerifyErases:         s.g.Verify,
		Logger:               stderrLogger{w: s.errOut},
		OnIntegrityViolation: s.integrityViolation,
	})
	// The image is already up, so only the SPI chip can fail here; the
	// layer logs it.
	_ = l.Init()
	s.layer, s.board = l, board
	return l, nil
}

func (s *session) integrityViolation(info flash.IntegrityInfo) {
	errColor.Fprintf(s.errOut, "integrity violation: %v\n", info.Err)
	s.exit(3)
}

// Close releases the image file and SPI port.
func (s *session) Close() error {
	var errs error
	for _, c := range s.closers {
		errs = multierr.Append(errs, c.Close())
	}
	s.closers = nil
	return errs
}

func openSPINOR(name string, mhz int64, size uint32) (*hal.FlashDevice, io.Closer, error) {
	if _, err := host.Init(); err != nil {
		return nil, nil, fmt.Errorf("periph init: %w", err)
	}
	port, err := spireg.Open(name)
	if err != nil {
		return nil, nil, fmt.Errorf("open spi port %q: %w", name, err)
	}
	conn, err := port.Connect(physic.Frequency(mhz)*physic.MegaHertz, spi.Mode0, 8)
	if err != nil {
		_ = port.Close()
		return nil, nil, fmt.Errorf("connect spi port %q: %w", name, err)
	}
	return hal.NewSPINORFlash(conn, 0, size).Device("spi"), port, nil
}

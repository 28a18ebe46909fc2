//go:build !tinygo

// Command flashtool inspects and programs flash devices through the access
// layer: a host image file and, optionally, a SPI NOR chip on a periph SPI
// port.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/alecthomas/kong"
	"github.com/fatih/color"
)

// Globals are the flags shared by every command.
type Globals struct {
	Image      string `help:"Flash image file (device 0)." default:"spark.flash" env:"SPARK_FLASH_PATH" type:"path"`
	ImageSize  Size   `name:"image-size" help:"Image size, e.g. 2MiB." default:"2MiB" env:"SPARK_FLASH_SIZE"`
	SectorSize Size   `name:"sector-size" help:"Image sector size." default:"4KiB"`
	Base       Addr   `help:"Image base address." default:"0"`

	SPI     string `name:"spi" help:"periph SPI port with a NOR chip, added as device 1 (e.g. /dev/spidev0.0)."`
	SPISize Size   `name:"spi-size" help:"SPI NOR chip size." default:"16MiB"`
	SPIMHz  int64  `name:"spi-mhz" help:"SPI clock in MHz." default:"10"`

	Device  uint8 `short:"d" help:"Device id to operate on." default:"0"`
	Verify  bool  `help:"Read back and compare every write and erase."`
	NoColor bool  `name:"no-color" help:"Disable colored output."`
}

type cli struct {
	Globals

	Cmds    Commands   `embed:""`
	Script  scriptCmd  `cmd:"" help:"Run commands from a file, one per line."`
	Version versionCmd `cmd:"" help:"Print the build version."`
}

func newParser(grammar any, name string, stdout, stderr io.Writer, exit func(int)) (*kong.Kong, error) {
	return kong.New(grammar,
		kong.Name(name),
		kong.Description("Inspect and program flash devices."),
		kong.UsageOnError(),
		kong.Writers(stdout, stderr),
		kong.Exit(exit),
	)
}

func run(args []string, stdout, stderr io.Writer, exit func(int)) error {
	var c cli
	parser, err := newParser(&c, "flashtool", stdout, stderr, exit)
	if err != nil {
		return err
	}
	kctx, err := parser.Parse(args)
	if err != nil {
		return err
	}
	if c.NoColor {
		color.NoColor = true
	}

	s := newSession(&c.Globals, stdout, stderr, exit)
	defer s.Close()
	return kctx.Run(s)
}

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr, os.Exit); err != nil {
		color.New(color.FgRed).Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// fail formats a command error with the device it was aimed at.
func fail(s *session, op string, err error) error {
	return fmt.Errorf("%s on device %d: %w", op, s.g.Device, err)
}

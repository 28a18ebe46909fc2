//go:build !tinygo

package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"sparkflash/app"
	"sparkflash/hal"
	"sparkflash/hal/flash"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := hal.HostConfigFromEnv()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}

	flashCfg := flash.DefaultConfig()
	var selfTest bool
	flag.StringVar(&cfg.FlashPath, "image", cfg.FlashPath, "Flash image file for device 0 (default $SPARK_FLASH_PATH or spark.flash).")
	flag.BoolVar(&flashCfg.VerifyWrites, "verify", flashCfg.VerifyWrites, "Read back and compare every write and erase.")
	flag.BoolVar(&selfTest, "self-test", false, "Erase and reprogram the last sector of every device.")
	flag.Parse()
	flashCfg.VerifyErases = flashCfg.VerifyWrites

	h := hal.NewWithConfig(cfg)
	if c, ok := h.(io.Closer); ok {
		defer c.Close()
	}

	if _, err := app.NewWithConfig(h, app.Config{Flash: flashCfg, SelfTest: selfTest}); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}

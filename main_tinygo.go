//go:build tinygo

package main

import (
	"sparkflash/app"
	"sparkflash/hal"
)

func main() {
	app.Run(hal.New())
}

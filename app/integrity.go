package app

import (
	"fmt"
	"strings"
	"sync"

	"sparkflash/hal"
	"sparkflash/hal/flash"
)

// halt stops the system after an integrity violation.
var halt = func() { select {} }

// integrityHandler reports the first integrity violation on the logger and
// leaves the LED on, then halts. Later violations are ignored.
func integrityHandler(h hal.HAL) func(flash.IntegrityInfo) {
	var once sync.Once
	return func(info flash.IntegrityInfo) {
		once.Do(func() {
			if l := h.Logger(); l != nil {
				l.WriteLineString(fmt.Sprintf("Spark Flash Integrity: %v", info.Err))
				if len(info.Stack) > 0 {
					for _, line := range strings.Split(string(info.Stack), "\n") {
						if line == "" {
							continue
						}
						l.WriteLineString(line)
					}
				} else {
					l.WriteLineString("stack: unavailable")
				}
			}
			if led := h.LED(); led != nil {
				led.High()
			}
		})
		halt()
	}
}

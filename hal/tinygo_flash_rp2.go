//go:build tinygo && baremetal && (rp2040 || rp2350)

package hal

import "machine"

// The RP2 data partition starts after the program image; machine.Flash
// offsets are relative to it.
func newRP2Flash() *FlashDevice {
	if machine.Flash.EraseBlockSize() <= 0 || machine.Flash.Size() <= 0 {
		return &FlashDevice{Name: "rp2", Flash: StubFlash{}}
	}
	return NewBlockFlash(machine.Flash, 0).Device("rp2")
}

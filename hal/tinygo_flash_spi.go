//go:build tinygo && baremetal && (rp2040 || rp2350) && spinor

package hal

import (
	"machine"

	"tinygo.org/x/drivers/flash"
)

// spiNORBase keeps the external chip clear of the internal flash window.
const spiNORBase = 0x20000000

// externalFlashDevices returns the SPI NOR chip on SPI0 (CS on GP5).
func externalFlashDevices() []*FlashDevice {
	dev := flash.NewSPI(machine.SPI0, machine.SPI0_SDO_PIN, machine.SPI0_SDI_PIN, machine.SPI0_SCK_PIN, machine.GP5)
	if err := dev.Configure(&flash.DeviceConfig{Identifier: flash.DefaultDeviceIdentifier}); err != nil {
		return []*FlashDevice{{Name: "spinor", Flash: StubFlash{}}}
	}
	return []*FlashDevice{NewBlockFlash(dev, spiNORBase).Device("spinor")}
}

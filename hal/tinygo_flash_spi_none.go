//go:build tinygo && baremetal && (rp2040 || rp2350) && !spinor

package hal

func externalFlashDevices() []*FlashDevice { return nil }

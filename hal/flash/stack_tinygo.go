//go:build tinygo

package flash

func captureStack() []byte { return nil }

//go:build !tinygo

package flash

import "runtime/debug"

func captureStack() []byte {
	return debug.Stack()
}

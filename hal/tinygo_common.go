//go:build tinygo && baremetal

package hal

import (
	"machine"
	"sync"
)

var crlf = []byte{'\r', '\n'}

// uartLogger writes CRLF-terminated lines. Lines from concurrent callers
// are not interleaved.
type uartLogger struct {
	mu  sync.Mutex
	out machine.Serialer
}

func (l *uartLogger) WriteLineString(s string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := 0; i < len(s); i++ {
		l.out.WriteByte(s[i])
	}
	l.out.Write(crlf)
}

func (l *uartLogger) WriteLineBytes(b []byte) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.out.Write(b)
	l.out.Write(crlf)
}

type pinLED struct {
	pin machine.Pin
}

func (l *pinLED) High() { l.pin.High() }
func (l *pinLED) Low()  { l.pin.Low() }

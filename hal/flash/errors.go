package flash

import (
	"errors"
	"fmt"
)

// ErrInvalid is the coarse "bad argument" failure. Every validation error
// returned by the layer matches it with errors.Is.
var ErrInvalid = errors.New("flash: invalid argument")

var (
	// ErrNoDevice is returned for an id the board does not know.
	ErrNoDevice = fmt.Errorf("%w: no such device", ErrInvalid)
	// ErrOutOfRange is returned when a range leaves the device window.
	ErrOutOfRange = fmt.Errorf("%w: address out of range", ErrInvalid)
	// ErrRangeWrap is returned for an erase range that is empty or wraps
	// past the end of the address space.
	ErrRangeWrap = fmt.Errorf("%w: range wraps", ErrInvalid)
	// ErrNoSector is returned for a sector index past the device's last sector.
	ErrNoSector = fmt.Errorf("%w: no such sector", ErrInvalid)
)

// IntegrityError describes flash contents that did not match what the layer
// just wrote or erased. It is never returned; see Config.OnIntegrityViolation.
type IntegrityError struct {
	Op     string
	Device uint8
	Addr   uint32
	Offset uint32
	Want   byte
	Got    byte
	// Err is set when reading the contents back failed.
	Err error
}

func (e *IntegrityError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("flash %d: %s verify at %#x: read back: %v", e.Device, e.Op, e.Addr+e.Offset, e.Err)
	}
	return fmt.Sprintf("flash %d: %s verify at %#x: got %#02x, want %#02x", e.Device, e.Op, e.Addr+e.Offset, e.Got, e.Want)
}

func (e *IntegrityError) Unwrap() error { return e.Err }

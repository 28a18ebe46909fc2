//go:build !tinygo

package main

import (
	"fmt"
	"math"
	"strconv"

	"github.com/dustin/go-humanize"
)

// Addr is a flash address given in any Go integer syntax (0x1000, 4096).
type Addr uint32

func (a *Addr) UnmarshalText(b []byte) error {
	v, err := strconv.ParseUint(string(b), 0, 32)
	if err != nil {
		return fmt.Errorf("address %q: %w", b, err)
	}
	*a = Addr(v)
	return nil
}

// Size is a byte count: a plain integer (0x100, 256) or a humanized size
// (4KiB, 2MB).
type Size uint32

func (s *Size) UnmarshalText(b []byte) error {
	v, err := strconv.ParseUint(string(b), 0, 64)
	if err != nil {
		v, err = humanize.ParseBytes(string(b))
		if err != nil {
			return fmt.Errorf("size %q: %w", b, err)
		}
	}
	if v > math.MaxUint32 {
		return fmt.Errorf("size %q: larger than 4GiB", b)
	}
	*s = Size(v)
	return nil
}

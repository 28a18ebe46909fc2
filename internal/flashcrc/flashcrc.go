// Package flashcrc computes the CRC-16/CCITT-FALSE checksums the host tools
// print for flash contents.
package flashcrc

import (
	"github.com/sigurn/crc16"

	"sparkflash/hal/flash"
)

const chunkSize = 4096

var table = crc16.MakeTable(crc16.CRC16_CCITT_FALSE)

// Sum returns the checksum of p.
func Sum(p []byte) uint16 {
	return crc16.Checksum(p, table)
}

// SumRange returns the checksum of [addr, addr+n) of device id.
func SumRange(l *flash.Layer, id uint8, addr, n uint32) (uint16, error) {
	crc := crc16.Init(table)
	buf := make([]byte, chunkSize)
	for n > 0 {
		chunk := uint32(len(buf))
		if chunk > n {
			chunk = n
		}
		if err := l.Read(id, addr, buf[:chunk]); err != nil {
			return 0, err
		}
		crc = crc16.Update(crc, buf[:chunk], table)
		addr += chunk
		n -= chunk
	}
	return crc16.Complete(crc, table), nil
}

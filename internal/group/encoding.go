package group

import (
	"encoding/binary"
)

// Uint64 decodes a big-endian unsigned integer of up to 8 bytes, mirroring
// how application arguments carry numbers on the wire. Longer slices use the
// trailing 8 bytes; nil decodes to 0.
func Uint64(b []byte) uint64 {
	if len(b) > 8 {
		b = b[len(b)-8:]
	}
	var out uint64
	for _, c := range b {
		out = out<<8 | uint64(c)
	}
	return out
}

// PutUint64 encodes v as the canonical 8-byte big-endian argument.
func PutUint64(v uint64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], v)
	return buf[:]
}

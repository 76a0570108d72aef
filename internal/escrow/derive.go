package escrow

import (
	"crypto/sha512"
	"encoding/binary"

	"GardLedger/internal/group"
)

// Escrow addresses are never stored: both the escrow and reserve sides
// recompute them from (owner, position id) and compare byte-for-byte. The
// address is the SHA-512/256 digest of the escrow program bytecode with the
// owner address and the uvarint-encoded position id spliced into fixed
// template slots, domain-separated by the "Program" prefix.

var (
	programPrefix = []byte{
		0x06, 0x20, 0x05, 0x00, 0x01, 0x04, 0x05, 0x06,
		0x26, 0x03, 0x08, 0x41, 0x70, 0x70, 0x43, 0x68,
		0x65, 0x63, 0x6b, 0x20,
	}
	programMiddle = []byte{
		0x28, 0x12, 0x40, 0x00, 0x3a, 0x31, 0x00, 0x29,
		0x12, 0x44, 0x31, 0x10, 0x81, 0x01, 0x12, 0x44,
		0x31, 0x08, 0x23, 0x12, 0x44, 0x32, 0x04, 0x81,
		0x02, 0x12, 0x40, 0x00, 0x18, 0x36, 0x1a, 0x00,
		0x17, 0x22, 0x12, 0x41, 0x00, 0x10, 0x21,
	}
	programSuffix = []byte{
		0x33, 0x02, 0x18, 0x12, 0x44, 0x33, 0x02, 0x19,
		0x22, 0x12, 0x44, 0x33, 0x02, 0x1a, 0x00, 0x29,
		0x12, 0x44, 0x23, 0x43,
	}
)

const addressDomainPrefix = "Program"

// Program splices owner and position id into the escrow bytecode template.
func Program(owner group.Address, positionID uint64) []byte {
	var varint [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(varint[:], positionID)

	buf := make([]byte, 0, len(programPrefix)+len(owner)+len(programMiddle)+n+len(programSuffix))
	buf = append(buf, programPrefix...)
	buf = append(buf, owner[:]...)
	buf = append(buf, programMiddle...)
	buf = append(buf, varint[:n]...)
	buf = append(buf, programSuffix...)
	return buf
}

// Derive computes the deterministic escrow address for (owner, positionID).
func Derive(owner group.Address, positionID uint64) group.Address {
	program := Program(owner, positionID)

	h := sha512.New512_256()
	h.Write([]byte(addressDomainPrefix))
	h.Write(program)

	var addr group.Address
	copy(addr[:], h.Sum(nil))
	return addr
}

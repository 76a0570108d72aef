package cdp

import (
	"GardLedger/internal/group"
)

// StatusKind is the explicit auction flag. The durable layout keeps the flag
// and the timestamp as separate fields instead of folding the flag into the
// timestamp's low bit.
type StatusKind uint8

const (
	StatusNormal StatusKind = iota
	StatusAuction
)

func (k StatusKind) String() string {
	switch k {
	case StatusNormal:
		return "Normal"
	case StatusAuction:
		return "Auction"
	default:
		return "Unknown"
	}
}

// Status pairs the auction flag with its timestamp: the position open time
// while Normal, the auction start time while Auction.
type Status struct {
	Kind StatusKind
	Time int64 // Unix seconds, ledger-supplied
}

// Position is one holder's collateral-backed liability. Keyed by the escrow
// address that custodies the collateral; a record exists only while Debt > 0,
// and all fields are deleted together on close or liquidation.
type Position struct {
	Escrow       group.Address
	Owner        group.Address
	PositionID   uint64
	Debt         uint64
	Status       Status
	ExtAppOptIns uint8
	Version      int64 // Optimistic concurrency control
}

// MaxExtAppOptIns caps auxiliary application opt-ins per position.
const MaxExtAppOptIns = 3

// InAuction reports whether a liquidation auction is running.
func (p *Position) InAuction() bool {
	return p.Status.Kind == StatusAuction
}

// CanonicalBytes returns deterministic serialization for state hashing.
func (p *Position) CanonicalBytes() []byte {
	buf := make([]byte, 0, 96)

	buf = append(buf, p.Escrow[:]...)
	buf = append(buf, p.Owner[:]...)
	buf = appendUint64LE(buf, p.PositionID)
	buf = appendUint64LE(buf, p.Debt)
	buf = append(buf, byte(p.Status.Kind))
	buf = appendUint64LE(buf, uint64(p.Status.Time))
	buf = append(buf, p.ExtAppOptIns)

	return buf
}

func appendUint64LE(buf []byte, v uint64) []byte {
	return append(buf,
		byte(v),
		byte(v>>8),
		byte(v>>16),
		byte(v>>24),
		byte(v>>32),
		byte(v>>40),
		byte(v>>48),
		byte(v>>56),
	)
}

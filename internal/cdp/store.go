package cdp

import (
	"GardLedger/internal/group"
)

// Store holds durable per-position state. Not thread-safe — only accessed
// from the single-threaded deterministic core.
type Store struct {
	positions map[group.Address]*Position
}

func NewStore() *Store {
	return &Store{
		positions: make(map[group.Address]*Position),
	}
}

// Get returns the position custodied by escrow, or nil when no position is
// open there (the Empty state).
func (s *Store) Get(escrow group.Address) *Position {
	return s.positions[escrow]
}

// Open records a freshly opened position. The caller has already verified the
// slot is empty.
func (s *Store) Open(pos *Position) {
	s.positions[pos.Escrow] = pos
}

// Delete removes every durable field of a position in one step. Close and
// liquidation both route through here so debt, status, and the opt-in counter
// can never survive independently.
func (s *Store) Delete(escrow group.Address) {
	delete(s.positions, escrow)
}

// All returns every open position (for snapshots and projections).
func (s *Store) All() []*Position {
	result := make([]*Position, 0, len(s.positions))
	for _, pos := range s.positions {
		result = append(result, pos)
	}
	return result
}

// ByOwner returns all open positions for one owner.
func (s *Store) ByOwner(owner group.Address) []*Position {
	result := make([]*Position, 0, 2)
	for _, pos := range s.positions {
		if pos.Owner == owner {
			result = append(result, pos)
		}
	}
	return result
}

// Restore directly sets a position (used for snapshot restore).
func (s *Store) Restore(pos *Position) {
	s.positions[pos.Escrow] = pos
}

// Len returns the number of open positions.
func (s *Store) Len() int {
	return len(s.positions)
}

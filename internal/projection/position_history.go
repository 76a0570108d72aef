package projection

// PositionHistoryEntry records one accepted group's effect on a position.
type PositionHistoryEntry struct {
	Escrow     string
	Owner      string
	Operation  string
	DebtBefore uint64
	DebtAfter  uint64
	Closed     bool
	Sequence   int64
	Timestamp  int64
}

// PositionHistoryProjection maintains queryable position lifecycle history.
type PositionHistoryProjection struct {
	entries []PositionHistoryEntry
}

func NewPositionHistoryProjection() *PositionHistoryProjection {
	return &PositionHistoryProjection{
		entries: make([]PositionHistoryEntry, 0),
	}
}

// AddEntry records a position transition.
func (p *PositionHistoryProjection) AddEntry(entry PositionHistoryEntry) {
	p.entries = append(p.entries, entry)
}

// QueryByEscrow returns the most recent transitions for an escrow, newest first.
func (p *PositionHistoryProjection) QueryByEscrow(escrow string, limit int) []PositionHistoryEntry {
	result := make([]PositionHistoryEntry, 0)

	for i := len(p.entries) - 1; i >= 0 && len(result) < limit; i-- {
		if p.entries[i].Escrow == escrow {
			result = append(result, p.entries[i])
		}
	}

	return result
}

// QueryByOwner returns the most recent transitions across an owner's
// positions, newest first.
func (p *PositionHistoryProjection) QueryByOwner(owner string, limit int) []PositionHistoryEntry {
	result := make([]PositionHistoryEntry, 0)

	for i := len(p.entries) - 1; i >= 0 && len(result) < limit; i-- {
		if p.entries[i].Owner == owner {
			result = append(result, p.entries[i])
		}
	}

	return result
}

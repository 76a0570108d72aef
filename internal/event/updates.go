package event

import (
	"fmt"

	"GardLedger/internal/escrow"
	"GardLedger/internal/group"
)

// PriceUpdate mirrors the oracle module's elected price observation.
type PriceUpdate struct {
	OracleAppID    uint64
	Price          uint64 // USD per native unit, scaled by Decimals
	Decimals       uint64
	PriceSequence  int64 // Monotonic per oracle app
	PriceTimestamp int64 // Epoch seconds (versioned input)
}

func (p *PriceUpdate) IdempotencyKey() string {
	return fmt.Sprintf("oracle:%d:price:%d", p.OracleAppID, p.PriceSequence)
}

func (p *PriceUpdate) EventType() EventType {
	return EventTypePriceUpdate
}

func (p *PriceUpdate) EscrowID() *string {
	return nil
}

func (p *PriceUpdate) SourceSequence() int64 {
	return p.PriceSequence
}

// FeeUpdate mirrors a fee module's elected percentage (two implied decimals,
// applied over 1000).
type FeeUpdate struct {
	FeeAppID  uint64
	FeePct    uint64
	Sequence  int64
	Timestamp int64
}

func (f *FeeUpdate) IdempotencyKey() string {
	return fmt.Sprintf("fee:%d:%d", f.FeeAppID, f.Sequence)
}

func (f *FeeUpdate) EventType() EventType {
	return EventTypeFeeUpdate
}

func (f *FeeUpdate) EscrowID() *string {
	return nil
}

func (f *FeeUpdate) SourceSequence() int64 {
	return f.Sequence
}

// ManagerUpdate mirrors the governance module's elected manager account.
type ManagerUpdate struct {
	ManagerAppID uint64
	Manager      group.Address
	Sequence     int64
	Timestamp    int64
}

func (m *ManagerUpdate) IdempotencyKey() string {
	return fmt.Sprintf("manager:%d:%d", m.ManagerAppID, m.Sequence)
}

func (m *ManagerUpdate) EventType() EventType {
	return EventTypeManagerUpdate
}

func (m *ManagerUpdate) EscrowID() *string {
	return nil
}

func (m *ManagerUpdate) SourceSequence() int64 {
	return m.Sequence
}

func escrowString(owner group.Address, positionID uint64) string {
	return escrow.Derive(owner, positionID).String()
}

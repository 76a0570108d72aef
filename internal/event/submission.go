package event

import (
	"time"

	"github.com/google/uuid"

	"GardLedger/internal/group"
)

// EscrowAuth names the group leg co-signed by a position's escrow and carries
// the authorization arguments its program was invoked with. The escrow address
// is never trusted from the wire; validators re-derive it from Owner and
// PositionID.
type EscrowAuth struct {
	LegIndex   int
	Owner      group.Address
	PositionID uint64
	Args       [][]byte
}

// ReserveAuth names the group leg co-signed by the reserve pool.
type ReserveAuth struct {
	LegIndex int
	Args     [][]byte
}

// GroupSubmission is one atomic operation group submitted for validation.
// Idempotency key: submission_id (UUID from the submitting gateway).
type GroupSubmission struct {
	SubmissionID uuid.UUID // Idempotency key
	Group        group.Group
	CallIndex    int // Index of the validator-call leg
	Escrow       *EscrowAuth
	Reserve      *ReserveAuth
	LedgerTime   int64     // Unix seconds, clock of the admitting ledger
	Sequence     int64     // Source sequence from the gateway
	Timestamp    time.Time // Versioned input timestamp (NOT wall-clock)
}

func (s *GroupSubmission) IdempotencyKey() string {
	return s.SubmissionID.String()
}

func (s *GroupSubmission) EventType() EventType {
	return EventTypeGroupSubmission
}

func (s *GroupSubmission) EscrowID() *string {
	if s.Escrow == nil {
		return nil
	}
	e := escrowString(s.Escrow.Owner, s.Escrow.PositionID)
	return &e
}

func (s *GroupSubmission) SourceSequence() int64 {
	return s.Sequence
}

package core_test

import (
	"testing"

	"GardLedger/internal/core"
)

func TestValidateSequence_StrictOrdering(t *testing.T) {
	sv := core.NewSequenceValidator()

	// In-order events advance the partition.
	for seq := int64(0); seq < 3; seq++ {
		if err := sv.ValidateSequence("submissions", seq, "key", false); err != nil {
			t.Fatalf("sequence %d rejected: %v", seq, err)
		}
	}
	if got := sv.GetExpectedSequence("submissions"); got != 3 {
		t.Errorf("expected next: got %d, want 3", got)
	}

	// A gap is an error and does not advance.
	if err := sv.ValidateSequence("submissions", 5, "key", false); err == nil {
		t.Error("gap accepted")
	}
	if got := sv.GetExpectedSequence("submissions"); got != 3 {
		t.Errorf("gap advanced the partition to %d", got)
	}

	// A stale sequence for a NEW event is out-of-order delivery.
	if err := sv.ValidateSequence("submissions", 1, "other-key", false); err == nil {
		t.Error("out-of-order new event accepted")
	}

	// The same stale sequence for a known duplicate is a no-op.
	if err := sv.ValidateSequence("submissions", 1, "key", true); err != nil {
		t.Errorf("stale duplicate rejected: %v", err)
	}
}

func TestValidateFeedSequence_GapsTolerated(t *testing.T) {
	sv := core.NewSequenceValidator()

	if err := sv.ValidateFeedSequence("oracle:600", 1); err != nil {
		t.Fatalf("first feed update rejected: %v", err)
	}

	// Gaps advance the cursor without error.
	if err := sv.ValidateFeedSequence("oracle:600", 50); err != nil {
		t.Fatalf("gapped feed update rejected: %v", err)
	}
	if got := sv.GetExpectedSequence("oracle:600"); got != 51 {
		t.Errorf("expected next: got %d, want 51", got)
	}

	// Stale updates are silently ignored and don't move the cursor back.
	if err := sv.ValidateFeedSequence("oracle:600", 10); err != nil {
		t.Fatalf("stale feed update errored: %v", err)
	}
	if got := sv.GetExpectedSequence("oracle:600"); got != 51 {
		t.Errorf("stale update moved the cursor to %d", got)
	}
}

func TestSequenceValidator_IndependentPartitions(t *testing.T) {
	sv := core.NewSequenceValidator()

	if err := sv.ValidateSequence("submissions", 0, "k", false); err != nil {
		t.Fatalf("submissions: %v", err)
	}
	if err := sv.ValidateFeedSequence("fee:700", 9); err != nil {
		t.Fatalf("fee feed: %v", err)
	}

	if got := sv.GetExpectedSequence("submissions"); got != 1 {
		t.Errorf("submissions cursor: %d", got)
	}
	if got := sv.GetExpectedSequence("fee:700"); got != 10 {
		t.Errorf("fee cursor: %d", got)
	}
}

func TestSequenceValidator_Restore(t *testing.T) {
	sv := core.NewSequenceValidator()
	sv.SetExpectedSequence("submissions", 42)

	if err := sv.ValidateSequence("submissions", 41, "k", false); err == nil {
		t.Error("pre-restore sequence accepted")
	}
	if err := sv.ValidateSequence("submissions", 42, "k", false); err != nil {
		t.Errorf("restored cursor rejected its own next sequence: %v", err)
	}

	partitions := sv.GetAllPartitions()
	if partitions["submissions"] != 43 {
		t.Errorf("partition snapshot: %+v", partitions)
	}
}

package core_test

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"GardLedger/internal/cdp"
	"GardLedger/internal/core"
	"GardLedger/internal/escrow"
	"GardLedger/internal/event"
	"GardLedger/internal/group"
	"GardLedger/internal/reserve"
)

const baseTime = int64(1_700_000_000)

func addr(b byte) group.Address {
	var a group.Address
	for i := range a {
		a[i] = b
	}
	return a
}

func testConfig() core.ProtocolConfig {
	return core.ProtocolConfig{
		OracleAppID:    600,
		OpenFeeAppID:   700,
		CloseFeeAppID:  701,
		ManagerAppID:   800,
		StableAssetID:  2,
		ValidatorAppID: 500,
		Reserve:        addr(0xcc),
		FeeSink:        addr(0xfe),
	}
}

func newTestCore(t *testing.T) (*core.DeterministicCore, chan core.CoreOutput) {
	t.Helper()
	persist := make(chan core.CoreOutput, 64)
	projection := make(chan core.CoreOutput, 64)
	c := core.NewDeterministicCore(0, testConfig(), persist, projection, nil, nil)
	if err := c.SeedReserve(1_000_000_000_000, baseTime); err != nil {
		t.Fatalf("seed reserve: %v", err)
	}
	return c, persist
}

func priceEvent(seq int64) *event.PriceUpdate {
	return &event.PriceUpdate{
		OracleAppID:    600,
		Price:          1_595_100,
		Decimals:       6,
		PriceSequence:  seq,
		PriceTimestamp: baseTime,
	}
}

func feeEvent(seq int64) *event.FeeUpdate {
	return &event.FeeUpdate{FeeAppID: 700, FeePct: 20, Sequence: seq, Timestamp: baseTime}
}

// openSubmission builds an accepted four-leg opening group for (owner,
// positionID), co-signed by the reserve.
func openSubmission(sourceSeq int64, owner group.Address, positionID uint64, fee uint64) *event.GroupSubmission {
	cfg := testConfig()
	esc := escrow.Derive(owner, positionID)
	return &event.GroupSubmission{
		SubmissionID: uuid.New(),
		CallIndex:    0,
		Group: group.Group{Ops: []group.Operation{
			{
				Kind:          group.KindAppCall,
				Sender:        owner,
				AppID:         cfg.ValidatorAppID,
				OnCompletion:  group.OnCompletionNoOp,
				AppArgs:       [][]byte{[]byte(group.TagNewPosition), group.PutUint64(uint64(baseTime))},
				Accounts:      []group.Address{esc},
				ForeignApps:   []uint64{cfg.OracleAppID, cfg.OpenFeeAppID},
				ForeignAssets: []uint64{cfg.StableAssetID, positionID},
			},
			{Kind: group.KindPayment, Sender: owner, Receiver: esc, Amount: 4_333_316},
			{Kind: group.KindPayment, Sender: owner, Receiver: cfg.FeeSink, Amount: fee},
			{Kind: group.KindAssetTransfer, Sender: cfg.Reserve, XferAsset: cfg.StableAssetID, AssetAmount: 1_625_671, AssetReceiver: owner},
		}},
		Reserve:    &event.ReserveAuth{LegIndex: 3, Args: [][]byte{group.PutUint64(reserve.ArgCore)}},
		LedgerTime: baseTime,
		Sequence:   sourceSeq,
		Timestamp:  time.Unix(baseTime, 0).UTC(),
	}
}

func takeOutput(t *testing.T, persist chan core.CoreOutput) core.CoreOutput {
	t.Helper()
	select {
	case out := <-persist:
		return out
	default:
		t.Fatal("expected a core output")
		return core.CoreOutput{}
	}
}

func assertNoOutput(t *testing.T, persist chan core.CoreOutput) {
	t.Helper()
	select {
	case out := <-persist:
		t.Fatalf("unexpected output: %+v", out.Envelope)
	default:
	}
}

// liquidateSubmission builds the five-leg close-out group settling the auction
// of (owner, positionID), ten minutes past the auction start.
func liquidateSubmission(sourceSeq int64, owner group.Address, positionID uint64, buyer group.Address, auth *event.EscrowAuth) *event.GroupSubmission {
	cfg := testConfig()
	esc := escrow.Derive(owner, positionID)
	return &event.GroupSubmission{
		SubmissionID: uuid.New(),
		CallIndex:    0,
		Group: group.Group{Ops: []group.Operation{
			{
				Kind:          group.KindAppCall,
				Sender:        esc,
				AppID:         cfg.ValidatorAppID,
				OnCompletion:  group.OnCompletionCloseOut,
				ForeignAssets: []uint64{cfg.StableAssetID},
			},
			{Kind: group.KindPayment, Sender: esc, CloseRemainderTo: buyer},
			{Kind: group.KindAssetTransfer, Sender: buyer, XferAsset: cfg.StableAssetID, AssetAmount: 1_625_671, AssetReceiver: cfg.Reserve},
			{Kind: group.KindAssetTransfer, Sender: buyer, XferAsset: cfg.StableAssetID, AssetAmount: 40_000, AssetReceiver: cfg.FeeSink},
			{Kind: group.KindAssetTransfer, Sender: buyer, XferAsset: cfg.StableAssetID, AssetAmount: 160_000, AssetReceiver: owner},
		}},
		Escrow:     auth,
		LedgerTime: baseTime + 600,
		Sequence:   sourceSeq,
		Timestamp:  time.Unix(baseTime+600, 0).UTC(),
	}
}

// restoreAuctionedPosition seeds a position already flipped into auction at
// baseTime, bypassing the opening flow.
func restoreAuctionedPosition(c *core.DeterministicCore, owner group.Address, positionID uint64) {
	c.Positions().Restore(&cdp.Position{
		Escrow:     escrow.Derive(owner, positionID),
		Owner:      owner,
		PositionID: positionID,
		Debt:       1_625_671,
		Status:     cdp.Status{Kind: cdp.StatusAuction, Time: baseTime},
	})
}

func TestProcessEvent_Pipeline(t *testing.T) {
	c, persist := newTestCore(t)

	if err := c.ProcessEvent(priceEvent(1)); err != nil {
		t.Fatalf("price update: %v", err)
	}
	priceOut := takeOutput(t, persist)
	if priceOut.Envelope.Sequence != 0 || priceOut.Envelope.EventType != event.EventTypePriceUpdate {
		t.Errorf("price envelope: %+v", priceOut.Envelope)
	}
	if priceOut.Batch != nil {
		t.Error("feed update produced journals")
	}

	if err := c.ProcessEvent(feeEvent(1)); err != nil {
		t.Fatalf("fee update: %v", err)
	}
	feeOut := takeOutput(t, persist)

	sub := openSubmission(0, addr(0xaa), 7, 20_383)
	if err := c.ProcessEvent(sub); err != nil {
		t.Fatalf("open submission: %v", err)
	}
	openOut := takeOutput(t, persist)

	// The hash chain links every envelope to its predecessor.
	if feeOut.Envelope.PrevHash != priceOut.Envelope.StateHash {
		t.Error("fee envelope does not chain to the price envelope")
	}
	if openOut.Envelope.PrevHash != feeOut.Envelope.StateHash {
		t.Error("open envelope does not chain to the fee envelope")
	}
	if openOut.Envelope.Sequence != 2 {
		t.Errorf("open sequence: got %d, want 2", openOut.Envelope.Sequence)
	}

	if openOut.Outcome == nil || openOut.Outcome.Tag != group.TagNewPosition {
		t.Fatalf("open outcome: %+v", openOut.Outcome)
	}
	if openOut.Batch == nil || len(openOut.Batch.Journals) == 0 {
		t.Fatal("open submission produced no journals")
	}
	if c.Positions().Len() != 1 {
		t.Errorf("open positions: %d", c.Positions().Len())
	}

	// The stored payload replays into the same typed event.
	replayed, err := event.UnmarshalPayload(openOut.Envelope.EventType, openOut.Envelope.Payload)
	if err != nil {
		t.Fatalf("replay payload: %v", err)
	}
	replayedSub, ok := replayed.(*event.GroupSubmission)
	if !ok {
		t.Fatalf("replayed type: %T", replayed)
	}
	if replayedSub.SubmissionID != sub.SubmissionID || replayedSub.Group.Size() != 4 {
		t.Errorf("replayed submission: %+v", replayedSub)
	}
}

func TestProcessEvent_DuplicateSkipped(t *testing.T) {
	c, persist := newTestCore(t)

	if err := c.ProcessEvent(priceEvent(1)); err != nil {
		t.Fatal(err)
	}
	if err := c.ProcessEvent(feeEvent(1)); err != nil {
		t.Fatal(err)
	}
	sub := openSubmission(0, addr(0xaa), 7, 20_383)
	if err := c.ProcessEvent(sub); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		takeOutput(t, persist)
	}

	seqBefore := c.GetSequence()
	if err := c.ProcessEvent(sub); err != nil {
		t.Fatalf("duplicate errored: %v", err)
	}
	assertNoOutput(t, persist)
	if c.GetSequence() != seqBefore {
		t.Error("duplicate advanced the global sequence")
	}
	if c.Positions().Len() != 1 {
		t.Error("duplicate mutated state")
	}
}

func TestProcessEvent_RejectionIsTerminal(t *testing.T) {
	c, persist := newTestCore(t)

	if err := c.ProcessEvent(priceEvent(1)); err != nil {
		t.Fatal(err)
	}
	if err := c.ProcessEvent(feeEvent(1)); err != nil {
		t.Fatal(err)
	}
	takeOutput(t, persist)
	takeOutput(t, persist)

	// The fee is one unit short of the required 20,383.
	bad := openSubmission(0, addr(0xaa), 7, 20_382)
	err := c.ProcessEvent(bad)
	if !errors.Is(err, group.ErrGuardViolation) {
		t.Fatalf("got %v, want guard violation", err)
	}
	assertNoOutput(t, persist)
	if c.Positions().Len() != 0 {
		t.Error("rejected group mutated state")
	}

	// Resubmitting the identical group dedups instead of re-evaluating.
	if err := c.ProcessEvent(bad); err != nil {
		t.Fatalf("replayed rejection errored: %v", err)
	}
	assertNoOutput(t, persist)

	// A corrected submission at the next source sequence goes through.
	good := openSubmission(1, addr(0xaa), 7, 20_383)
	if err := c.ProcessEvent(good); err != nil {
		t.Fatalf("corrected submission rejected: %v", err)
	}
	out := takeOutput(t, persist)
	if out.Outcome == nil || out.Outcome.Tag != group.TagNewPosition {
		t.Errorf("corrected outcome: %+v", out.Outcome)
	}
}

func TestProcessEvent_SequenceGap(t *testing.T) {
	c, persist := newTestCore(t)

	if err := c.ProcessEvent(priceEvent(1)); err != nil {
		t.Fatal(err)
	}
	if err := c.ProcessEvent(feeEvent(1)); err != nil {
		t.Fatal(err)
	}
	takeOutput(t, persist)
	takeOutput(t, persist)

	// Source sequence 5 arrives before 0..4: hold the line.
	sub := openSubmission(5, addr(0xaa), 7, 20_383)
	if err := c.ProcessEvent(sub); err == nil {
		t.Fatal("gapped submission accepted")
	}
	assertNoOutput(t, persist)

	// Once the gap fills the same submission is accepted, so gap rejection
	// must not have poisoned the idempotency state.
	for seq := int64(0); seq < 5; seq++ {
		filler := openSubmission(seq, addr(byte(0x10+seq)), uint64(seq), 20_383)
		if err := c.ProcessEvent(filler); err != nil {
			t.Fatalf("filler %d rejected: %v", seq, err)
		}
		takeOutput(t, persist)
	}
	if err := c.ProcessEvent(sub); err != nil {
		t.Fatalf("replayed submission rejected after gap filled: %v", err)
	}
	takeOutput(t, persist)
}

func TestProcessEvent_EscrowSectionRequired(t *testing.T) {
	c, persist := newTestCore(t)
	owner, buyer := addr(0xaa), addr(0xbb)
	restoreAuctionedPosition(c, owner, 7)

	// The group spends from the escrow but carries no escrow authorization,
	// so none of the payout-routing checks would run.
	bare := liquidateSubmission(0, owner, 7, buyer, nil)
	if err := c.ProcessEvent(bare); !errors.Is(err, group.ErrIdentityMismatch) {
		t.Fatalf("got %v, want identity mismatch", err)
	}
	assertNoOutput(t, persist)
	if c.Positions().Len() != 1 {
		t.Error("unauthorized liquidation deleted the position")
	}

	// The same group under the genuine escrow section settles the auction.
	authed := liquidateSubmission(1, owner, 7, buyer, &event.EscrowAuth{
		LegIndex:   0,
		Owner:      owner,
		PositionID: 7,
		Args:       [][]byte{group.PutUint64(escrow.ArgLiquidate)},
	})
	if err := c.ProcessEvent(authed); err != nil {
		t.Fatalf("authorized liquidation rejected: %v", err)
	}
	out := takeOutput(t, persist)
	if out.Outcome == nil || !out.Outcome.Deleted {
		t.Errorf("outcome: %+v", out.Outcome)
	}
	if c.Positions().Len() != 0 {
		t.Error("position survived the authorized liquidation")
	}
}

func TestProcessEvent_EscrowSectionForged(t *testing.T) {
	c, persist := newTestCore(t)
	owner, buyer := addr(0xaa), addr(0xbb)
	restoreAuctionedPosition(c, owner, 7)

	// The section claims the buyer owns some other position; its derived
	// address matches none of the escrow-signed legs.
	forged := liquidateSubmission(0, owner, 7, buyer, &event.EscrowAuth{
		LegIndex:   0,
		Owner:      buyer,
		PositionID: 99,
		Args:       [][]byte{group.PutUint64(escrow.ArgLiquidate)},
	})
	if err := c.ProcessEvent(forged); !errors.Is(err, group.ErrIdentityMismatch) {
		t.Fatalf("got %v, want identity mismatch", err)
	}
	assertNoOutput(t, persist)
	if c.Positions().Len() != 1 {
		t.Error("forged authorization deleted the position")
	}
}

func TestProcessEvent_ReserveSectionRequired(t *testing.T) {
	c, persist := newTestCore(t)
	if err := c.ProcessEvent(priceEvent(1)); err != nil {
		t.Fatal(err)
	}
	if err := c.ProcessEvent(feeEvent(1)); err != nil {
		t.Fatal(err)
	}
	takeOutput(t, persist)
	takeOutput(t, persist)

	// The disbursement leg spends from the reserve without its authorization.
	sub := openSubmission(0, addr(0xaa), 7, 20_383)
	sub.Reserve = nil
	if err := c.ProcessEvent(sub); !errors.Is(err, group.ErrIdentityMismatch) {
		t.Fatalf("got %v, want identity mismatch", err)
	}
	assertNoOutput(t, persist)
	if c.Positions().Len() != 0 {
		t.Error("unauthorized disbursement opened a position")
	}

	if err := c.ProcessEvent(openSubmission(1, addr(0xaa), 7, 20_383)); err != nil {
		t.Fatalf("co-signed submission rejected: %v", err)
	}
	takeOutput(t, persist)
}

func TestProcessEvent_Deterministic(t *testing.T) {
	c1, p1 := newTestCore(t)
	c2, p2 := newTestCore(t)
	sub := openSubmission(0, addr(0xaa), 7, 20_383)

	for _, c := range []*core.DeterministicCore{c1, c2} {
		if err := c.ProcessEvent(priceEvent(1)); err != nil {
			t.Fatal(err)
		}
		if err := c.ProcessEvent(feeEvent(1)); err != nil {
			t.Fatal(err)
		}
		if err := c.ProcessEvent(sub); err != nil {
			t.Fatal(err)
		}
	}

	for i := 0; i < 3; i++ {
		o1, o2 := takeOutput(t, p1), takeOutput(t, p2)
		if o1.Envelope.StateHash != o2.Envelope.StateHash {
			t.Fatalf("state hashes diverged at sequence %d", o1.Envelope.Sequence)
		}
	}
	if c1.GetStateHash() != c2.GetStateHash() {
		t.Error("final chain tips differ")
	}
}

func TestSnapshotRestore_ContinuesChain(t *testing.T) {
	c1, p1 := newTestCore(t)
	sub := openSubmission(0, addr(0xaa), 7, 20_383)

	if err := c1.ProcessEvent(priceEvent(1)); err != nil {
		t.Fatal(err)
	}
	if err := c1.ProcessEvent(feeEvent(1)); err != nil {
		t.Fatal(err)
	}
	if err := c1.ProcessEvent(sub); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		takeOutput(t, p1)
	}

	snap := c1.CreateSnapshotState()
	if snap.Sequence != 2 {
		t.Fatalf("snapshot sequence: got %d, want 2", snap.Sequence)
	}

	// A fresh core restored from the snapshot processes the next event
	// identically to the original.
	p2 := make(chan core.CoreOutput, 64)
	c2 := core.NewDeterministicCore(0, testConfig(), p2, make(chan core.CoreOutput, 64), nil, nil)
	c2.RestoreFromSnapshot(snap)
	c2.WarmLRU(snap.IdempotencyKeys)

	if c2.GetSequence() != c1.GetSequence() {
		t.Fatalf("restored sequence %d vs %d", c2.GetSequence(), c1.GetSequence())
	}
	if c2.Positions().Len() != 1 {
		t.Error("positions not restored")
	}

	// The duplicate check survives the restore.
	if err := c2.ProcessEvent(sub); err != nil {
		t.Fatalf("replayed submission errored: %v", err)
	}
	assertNoOutput(t, p2)

	next := priceEvent(2)
	if err := c1.ProcessEvent(next); err != nil {
		t.Fatal(err)
	}
	if err := c2.ProcessEvent(next); err != nil {
		t.Fatal(err)
	}
	o1, o2 := takeOutput(t, p1), takeOutput(t, p2)
	if o1.Envelope.StateHash != o2.Envelope.StateHash {
		t.Error("restored core's chain diverged")
	}
}

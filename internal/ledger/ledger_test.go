package ledger_test

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"GardLedger/internal/escrow"
	"GardLedger/internal/event"
	"GardLedger/internal/group"
	"GardLedger/internal/ledger"
)

func addr(b byte) group.Address {
	var a group.Address
	for i := range a {
		a[i] = b
	}
	return a
}

func TestAccountPath_RoundTrip(t *testing.T) {
	wallet := ledger.NewAddressAccountKey(addr(0xaa), ledger.AssetNative)
	funding := ledger.NewExternalAccountKey(ledger.SubTypeExternalFunding, ledger.AssetNative)
	mint := ledger.NewExternalAccountKey(ledger.SubTypeExternalMint, ledger.AssetStable)

	for _, key := range []ledger.AccountKey{wallet, funding, mint} {
		path := key.AccountPath()
		if got := ledger.ParseAccountPath(path); got != key {
			t.Errorf("round trip %s: got %+v", path, got)
		}
	}

	if wallet.AccountPath() != "acct:"+addr(0xaa).String()+":NATIVE" {
		t.Errorf("wallet path: %s", wallet.AccountPath())
	}
	if funding.AccountPath() != "external:funding:NATIVE" {
		t.Errorf("funding path: %s", funding.AccountPath())
	}
	if mint.AccountPath() != "external:mint:GARD" {
		t.Errorf("mint path: %s", mint.AccountPath())
	}
}

func TestParseAccountPath_Malformed(t *testing.T) {
	var zero ledger.AccountKey
	for _, path := range []string{
		"",
		"acct",
		"acct:short:NATIVE",
		"acct:" + addr(0xaa).String() + ":DOGE",
		"external:unknown:GARD",
		"bogus:funding:NATIVE",
	} {
		if got := ledger.ParseAccountPath(path); got != zero {
			t.Errorf("ParseAccountPath(%q): got %+v, want zero key", path, got)
		}
	}
}

func balancedJournal(batchID uuid.UUID, debit, credit ledger.AccountKey, asset ledger.AssetID, amount int64) ledger.Journal {
	return ledger.Journal{
		JournalID:     uuid.New(),
		BatchID:       batchID,
		EventRef:      "test",
		DebitAccount:  debit,
		CreditAccount: credit,
		AssetID:       asset,
		Amount:        amount,
		JournalType:   ledger.JournalTypeAdjustment,
	}
}

func TestBatchValidate(t *testing.T) {
	batchID := uuid.New()
	a := ledger.NewAddressAccountKey(addr(0x01), ledger.AssetNative)
	b := ledger.NewAddressAccountKey(addr(0x02), ledger.AssetNative)
	stable := ledger.NewAddressAccountKey(addr(0x01), ledger.AssetStable)

	good := &ledger.Batch{BatchID: batchID, Journals: []ledger.Journal{
		balancedJournal(batchID, a, b, ledger.AssetNative, 100),
	}}
	if err := good.Validate(); err != nil {
		t.Fatalf("valid batch rejected: %v", err)
	}

	empty := &ledger.Batch{BatchID: batchID}
	if err := empty.Validate(); err == nil {
		t.Error("empty batch accepted")
	}

	negative := &ledger.Batch{BatchID: batchID, Journals: []ledger.Journal{
		balancedJournal(batchID, a, b, ledger.AssetNative, -5),
	}}
	if err := negative.Validate(); err == nil {
		t.Error("non-positive amount accepted")
	}

	foreign := &ledger.Batch{BatchID: batchID, Journals: []ledger.Journal{
		balancedJournal(uuid.New(), a, b, ledger.AssetNative, 100),
	}}
	if err := foreign.Validate(); err == nil {
		t.Error("mismatched batch id accepted")
	}

	selfMove := &ledger.Batch{BatchID: batchID, Journals: []ledger.Journal{
		balancedJournal(batchID, a, a, ledger.AssetNative, 100),
	}}
	if err := selfMove.Validate(); err == nil {
		t.Error("self-transfer accepted")
	}

	crossAsset := &ledger.Batch{BatchID: batchID, Journals: []ledger.Journal{
		balancedJournal(batchID, a, stable, ledger.AssetNative, 100),
	}}
	if err := crossAsset.Validate(); err == nil {
		t.Error("cross-asset transfer accepted")
	}
}

func TestBalanceTracker(t *testing.T) {
	bt := ledger.NewBalanceTracker()
	a := ledger.NewAddressAccountKey(addr(0x01), ledger.AssetNative)
	b := ledger.NewAddressAccountKey(addr(0x02), ledger.AssetNative)

	batchID := uuid.New()
	batch := &ledger.Batch{BatchID: batchID, Journals: []ledger.Journal{
		balancedJournal(batchID, a, b, ledger.AssetNative, 300),
	}}
	if err := bt.ApplyBatch(batch); err != nil {
		t.Fatalf("apply: %v", err)
	}

	// Debits increase and credits decrease the account balance.
	if got := bt.GetBalance(a); got != 300 {
		t.Errorf("debited account: got %d, want 300", got)
	}
	if got := bt.GetBalance(b); got != -300 {
		t.Errorf("credited account: got %d, want -300", got)
	}

	// The ledger is zero-sum per asset.
	totals := bt.ComputeGlobalBalance()
	if totals[ledger.AssetNative] != 0 {
		t.Errorf("global native balance: got %d, want 0", totals[ledger.AssetNative])
	}

	// Unsigned readers clamp negative balances to zero.
	if got := bt.NativeBalance(addr(0x01)); got != 300 {
		t.Errorf("NativeBalance(0x01): got %d", got)
	}
	if got := bt.NativeBalance(addr(0x02)); got != 0 {
		t.Errorf("NativeBalance(0x02): got %d, want 0", got)
	}

	if err := bt.ValidateSufficient(a, 300); err != nil {
		t.Errorf("sufficient check failed: %v", err)
	}
	if err := bt.ValidateSufficient(a, 301); err == nil {
		t.Error("insufficient balance passed")
	}
	if err := bt.ValidateNonNegative(b); err == nil {
		t.Error("negative balance passed non-negative check")
	}
}

func TestBalanceTracker_SnapshotRestore(t *testing.T) {
	bt := ledger.NewBalanceTracker()
	key := ledger.NewAddressAccountKey(addr(0x01), ledger.AssetStable)
	bt.Restore(key, 12345)

	restored := ledger.NewBalanceTracker()
	for k, v := range bt.Snapshot() {
		restored.Restore(k, v)
	}
	if got := restored.GetBalance(key); got != 12345 {
		t.Errorf("restored balance: got %d", got)
	}
}

func newPositionSubmission(owner, reserveAddr, feeSink group.Address, positionID uint64) *event.GroupSubmission {
	esc := escrow.Derive(owner, positionID)
	return &event.GroupSubmission{
		SubmissionID: uuid.New(),
		CallIndex:    0,
		Group: group.Group{Ops: []group.Operation{
			{
				Kind:          group.KindAppCall,
				Sender:        owner,
				AppID:         500,
				AppArgs:       [][]byte{[]byte(group.TagNewPosition)},
				Accounts:      []group.Address{esc},
				ForeignAssets: []uint64{2, positionID},
			},
			{Kind: group.KindPayment, Sender: owner, Receiver: esc, Amount: 4_333_316},
			{Kind: group.KindPayment, Sender: owner, Receiver: feeSink, Amount: 20_383},
			{Kind: group.KindAssetTransfer, Sender: reserveAddr, XferAsset: 2, AssetAmount: 1_625_671, AssetReceiver: owner},
		}},
		Escrow:    &event.EscrowAuth{LegIndex: 1, Owner: owner, PositionID: positionID},
		Reserve:   &event.ReserveAuth{LegIndex: 3},
		Timestamp: time.Unix(1_700_000_000, 0),
	}
}

func TestGenerateGroupBatch_NewPosition(t *testing.T) {
	owner, reserveAddr, feeSink := addr(0xaa), addr(0xcc), addr(0xfe)
	bt := ledger.NewBalanceTracker()

	// Seed the reserve so the disbursement is covered without a mint top-up.
	bt.Restore(ledger.NewAddressAccountKey(reserveAddr, ledger.AssetStable), 10_000_000)

	jg := ledger.NewJournalGenerator(1, bt, reserveAddr, feeSink)
	sub := newPositionSubmission(owner, reserveAddr, feeSink, 7)

	batch, err := jg.GenerateGroupBatch(sub)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if err := batch.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if err := bt.ApplyBatch(batch); err != nil {
		t.Fatalf("apply: %v", err)
	}

	// The owner's wallet is topped up from the external funding boundary, so
	// the batch carries funding entries alongside the mirrored legs.
	types := make(map[ledger.JournalType]int)
	for _, j := range batch.Journals {
		types[j.JournalType]++
	}
	if types[ledger.JournalTypeCollateralLock] != 1 {
		t.Errorf("collateral locks: got %d, want 1", types[ledger.JournalTypeCollateralLock])
	}
	if types[ledger.JournalTypeFeePayment] != 1 {
		t.Errorf("fee payments: got %d, want 1", types[ledger.JournalTypeFeePayment])
	}
	if types[ledger.JournalTypeMintDisbursement] != 1 {
		t.Errorf("mint disbursements: got %d, want 1", types[ledger.JournalTypeMintDisbursement])
	}
	if types[ledger.JournalTypeExternalFunding] == 0 {
		t.Error("expected external funding entries for the owner's wallet")
	}

	// Escrow now holds the locked collateral; the ledger stays zero-sum.
	esc := escrow.Derive(owner, 7)
	if got := bt.NativeBalance(esc); got != 4_333_316 {
		t.Errorf("escrow balance: got %d, want 4_333_316", got)
	}
	if got := bt.StableBalance(owner); got != 1_625_671 {
		t.Errorf("owner stable balance: got %d, want 1_625_671", got)
	}
	for asset, total := range bt.ComputeGlobalBalance() {
		if total != 0 {
			t.Errorf("asset %d global balance: got %d, want 0", asset, total)
		}
	}
}

func TestGenerateGroupBatch_EscrowCannotBeToppedUp(t *testing.T) {
	owner, reserveAddr, feeSink := addr(0xaa), addr(0xcc), addr(0xfe)
	bt := ledger.NewBalanceTracker()
	jg := ledger.NewJournalGenerator(1, bt, reserveAddr, feeSink)

	esc := escrow.Derive(owner, 7)
	sub := &event.GroupSubmission{
		SubmissionID: uuid.New(),
		Group: group.Group{Ops: []group.Operation{
			// The escrow pays out collateral it never received.
			{Kind: group.KindPayment, Sender: esc, Receiver: owner, Amount: 1_000_000},
		}},
		Escrow:    &event.EscrowAuth{Owner: owner, PositionID: 7},
		Timestamp: time.Unix(1_700_000_000, 0),
	}

	if _, err := jg.GenerateGroupBatch(sub); err == nil {
		t.Fatal("expected error for escrow overdraft")
	}
}

func TestGenerateGroupBatch_ReserveCannotBeToppedUp(t *testing.T) {
	owner, reserveAddr, feeSink := addr(0xaa), addr(0xcc), addr(0xfe)
	bt := ledger.NewBalanceTracker()
	jg := ledger.NewJournalGenerator(1, bt, reserveAddr, feeSink)

	// The disbursement exceeds the pool's tracked supply; a silent top-up from
	// the mint boundary would hide the gap instead of surfacing it.
	sub := newPositionSubmission(owner, reserveAddr, feeSink, 7)
	if _, err := jg.GenerateGroupBatch(sub); err == nil {
		t.Fatal("expected error for reserve shortfall")
	}
}

func TestGenerateGroupBatch_CloseReleasesRemainder(t *testing.T) {
	owner, reserveAddr, feeSink := addr(0xaa), addr(0xcc), addr(0xfe)
	bt := ledger.NewBalanceTracker()
	esc := escrow.Derive(owner, 7)

	// Locked collateral from a prior accepted group.
	bt.Restore(ledger.NewAddressAccountKey(esc, ledger.AssetNative), 4_333_316)
	bt.Restore(ledger.NewAddressAccountKey(owner, ledger.AssetStable), 1_625_671)

	jg := ledger.NewJournalGenerator(5, bt, reserveAddr, feeSink)
	sub := &event.GroupSubmission{
		SubmissionID: uuid.New(),
		Group: group.Group{Ops: []group.Operation{
			{Kind: group.KindAssetTransfer, Sender: owner, XferAsset: 2, AssetAmount: 1_625_671, AssetReceiver: reserveAddr},
			{Kind: group.KindPayment, Sender: esc, Receiver: feeSink, Amount: 20_383, CloseRemainderTo: owner},
		}},
		Escrow:    &event.EscrowAuth{Owner: owner, PositionID: 7},
		Timestamp: time.Unix(1_700_000_400, 0),
	}

	batch, err := jg.GenerateGroupBatch(sub)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if err := bt.ApplyBatch(batch); err != nil {
		t.Fatalf("apply: %v", err)
	}

	// Repayment goes to the reserve; the escrow pays the fee and closes the
	// rest back to the owner, draining to exactly zero.
	if got := bt.NativeBalance(esc); got != 0 {
		t.Errorf("escrow after close: got %d, want 0", got)
	}
	if got := bt.NativeBalance(owner); got != 4_333_316-20_383 {
		t.Errorf("owner refund: got %d, want %d", got, 4_333_316-20_383)
	}
	if got := bt.StableBalance(reserveAddr); got != 1_625_671 {
		t.Errorf("reserve repayment: got %d, want 1_625_671", got)
	}

	var sawRepayment, sawRelease bool
	for _, j := range batch.Journals {
		switch j.JournalType {
		case ledger.JournalTypeRepayment:
			sawRepayment = true
		case ledger.JournalTypeCollateralRelease:
			sawRelease = true
		}
	}
	if !sawRepayment || !sawRelease {
		t.Errorf("journal types: repayment=%v release=%v", sawRepayment, sawRelease)
	}
}

func TestGenerateGroupBatch_NoValueMoved(t *testing.T) {
	bt := ledger.NewBalanceTracker()
	jg := ledger.NewJournalGenerator(1, bt, addr(0xcc), addr(0xfe))

	sub := &event.GroupSubmission{
		SubmissionID: uuid.New(),
		Group: group.Group{Ops: []group.Operation{
			{Kind: group.KindAppCall, Sender: addr(0xaa), AppID: 500},
		}},
		Timestamp: time.Unix(1_700_000_000, 0),
	}

	if _, err := jg.GenerateGroupBatch(sub); err == nil {
		t.Fatal("expected error for a batch that moves no value")
	}
}

func TestGenerateGenesisMint(t *testing.T) {
	bt := ledger.NewBalanceTracker()
	reserveAddr := addr(0xcc)
	jg := ledger.NewJournalGenerator(0, bt, reserveAddr, addr(0xfe))

	batch, err := jg.GenerateGenesisMint(600_000_000_000_000_000, 1_700_000_000)
	if err != nil {
		t.Fatalf("genesis: %v", err)
	}
	if err := bt.ApplyBatch(batch); err != nil {
		t.Fatalf("apply: %v", err)
	}

	if got := bt.StableBalance(reserveAddr); got != 600_000_000_000_000_000 {
		t.Errorf("reserve supply: got %d", got)
	}
	if jg.Sequence() != 1 {
		t.Errorf("sequence after genesis: got %d, want 1", jg.Sequence())
	}

	if _, err := jg.GenerateGenesisMint(0, 1_700_000_000); err == nil {
		t.Error("expected error for non-positive supply")
	}
}

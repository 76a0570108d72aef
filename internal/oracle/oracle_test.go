package oracle_test

import (
	"testing"

	"GardLedger/internal/group"
	"GardLedger/internal/oracle"
)

func TestPriceFeed_UpdateAndLookup(t *testing.T) {
	pf := oracle.NewPriceFeed()

	if _, _, err := pf.Lookup(600); err == nil {
		t.Fatal("expected error for missing oracle state")
	}

	pf.Update(600, 1_595_100, 6, 100, 1_700_000_000)
	price, decimals, err := pf.Lookup(600)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if price != 1_595_100 || decimals != 6 {
		t.Errorf("got price=%d decimals=%d", price, decimals)
	}
}

func TestPriceFeed_StaleSequenceIgnored(t *testing.T) {
	pf := oracle.NewPriceFeed()
	pf.Update(600, 1_595_100, 6, 100, 1_700_000_000)

	// A replayed or out-of-date observation must not roll the price back.
	pf.Update(600, 1_400_000, 6, 100, 1_700_000_100)
	pf.Update(600, 1_300_000, 6, 99, 1_700_000_200)

	price, _, err := pf.Lookup(600)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if price != 1_595_100 {
		t.Errorf("stale update applied: price %d", price)
	}
}

func TestPriceFeed_GapsTolerated(t *testing.T) {
	pf := oracle.NewPriceFeed()
	pf.Update(600, 1_595_100, 6, 100, 1_700_000_000)
	pf.Update(600, 1_600_000, 6, 250, 1_700_000_500)

	price, _, err := pf.Lookup(600)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if price != 1_600_000 {
		t.Errorf("gapped update not applied: price %d", price)
	}
}

func TestPriceFeed_IndependentApps(t *testing.T) {
	pf := oracle.NewPriceFeed()
	pf.Update(600, 1_595_100, 6, 100, 0)
	pf.Update(601, 42_000, 4, 1, 0)

	p0, d0, _ := pf.Lookup(600)
	p1, d1, _ := pf.Lookup(601)
	if p0 != 1_595_100 || d0 != 6 || p1 != 42_000 || d1 != 4 {
		t.Error("per-app state leaked across oracle ids")
	}
}

func TestFeeSchedule(t *testing.T) {
	fs := oracle.NewFeeSchedule()

	if _, err := fs.Lookup(700); err == nil {
		t.Fatal("expected error for missing fee state")
	}

	fs.Update(700, 20)
	fee, err := fs.Lookup(700)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if fee != 20 {
		t.Errorf("got %d, want 20", fee)
	}

	// Fee updates have no sequence guard; latest wins.
	fs.Update(700, 15)
	fee, _ = fs.Lookup(700)
	if fee != 15 {
		t.Errorf("got %d, want 15", fee)
	}
}

func TestManagerRegistry(t *testing.T) {
	mr := oracle.NewManagerRegistry()

	if _, err := mr.Lookup(800); err == nil {
		t.Fatal("expected error for missing manager state")
	}

	var mgr group.Address
	mgr[0] = 0xdd
	mr.Update(800, mgr)

	got, err := mr.Lookup(800)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if got != mgr {
		t.Errorf("got %s, want %s", got, mgr)
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	pf := oracle.NewPriceFeed()
	pf.Update(600, 1_595_100, 6, 100, 1_700_000_000)

	restored := oracle.NewPriceFeed()
	for appID, st := range pf.All() {
		restored.Restore(appID, st)
	}

	price, decimals, err := restored.Lookup(600)
	if err != nil {
		t.Fatalf("lookup after restore: %v", err)
	}
	if price != 1_595_100 || decimals != 6 {
		t.Errorf("restored state mismatch: price=%d decimals=%d", price, decimals)
	}
}

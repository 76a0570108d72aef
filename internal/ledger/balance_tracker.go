package ledger

import (
	"fmt"

	"GardLedger/internal/group"
)

// BalanceTracker maintains in-memory account balances. It doubles as the
// balance snapshot the guard evaluation reads: escrow balances here reflect
// every previously accepted group, nothing more.
type BalanceTracker struct {
	balances map[AccountKey]int64
}

func NewBalanceTracker() *BalanceTracker {
	return &BalanceTracker{
		balances: make(map[AccountKey]int64),
	}
}

// ApplyJournal applies a single journal entry to balances
func (bt *BalanceTracker) ApplyJournal(j Journal) {
	bt.balances[j.DebitAccount] += j.Amount
	bt.balances[j.CreditAccount] -= j.Amount
}

// ApplyBatch applies all journals in a batch
func (bt *BalanceTracker) ApplyBatch(batch *Batch) error {
	if err := batch.Validate(); err != nil {
		return fmt.Errorf("invalid batch: %w", err)
	}

	for _, j := range batch.Journals {
		bt.ApplyJournal(j)
	}

	return nil
}

// GetBalance returns the current balance for an account
func (bt *BalanceTracker) GetBalance(key AccountKey) int64 {
	return bt.balances[key]
}

// NativeBalance returns an address's native-unit holdings as an unsigned
// amount. Satisfies the guard evaluation's balance reader.
func (bt *BalanceTracker) NativeBalance(addr group.Address) uint64 {
	b := bt.GetBalance(NewAddressAccountKey(addr, AssetNative))
	if b < 0 {
		return 0
	}
	return uint64(b)
}

// StableBalance returns an address's synthetic-asset holdings.
func (bt *BalanceTracker) StableBalance(addr group.Address) uint64 {
	b := bt.GetBalance(NewAddressAccountKey(addr, AssetStable))
	if b < 0 {
		return 0
	}
	return uint64(b)
}

// ValidateSufficient checks an account can cover a debit
func (bt *BalanceTracker) ValidateSufficient(key AccountKey, required int64) error {
	balance := bt.GetBalance(key)
	if balance < required {
		return fmt.Errorf("insufficient balance on %s: have=%d, need=%d", key.AccountPath(), balance, required)
	}
	return nil
}

// ValidateNonNegative checks that a specific account balance is >= 0
func (bt *BalanceTracker) ValidateNonNegative(key AccountKey) error {
	balance := bt.GetBalance(key)
	if balance < 0 {
		return fmt.Errorf("account %s has negative balance: %d", key.AccountPath(), balance)
	}
	return nil
}

// ComputeGlobalBalance sums all account balances (should be 0 for zero-sum ledger)
func (bt *BalanceTracker) ComputeGlobalBalance() map[AssetID]int64 {
	totals := make(map[AssetID]int64)

	for key, balance := range bt.balances {
		totals[key.AssetID] += balance
	}

	return totals
}

// Snapshot returns a copy of all balances (for state hashing)
func (bt *BalanceTracker) Snapshot() map[AccountKey]int64 {
	snapshot := make(map[AccountKey]int64, len(bt.balances))
	for k, v := range bt.balances {
		snapshot[k] = v
	}
	return snapshot
}

// Restore directly sets an account balance (used for snapshot restore)
func (bt *BalanceTracker) Restore(key AccountKey, balance int64) {
	bt.balances[key] = balance
}

package ledger

import (
	"fmt"

	"GardLedger/internal/group"
)

// InvariantValidator checks ledger invariants
type InvariantValidator struct {
	tracker *BalanceTracker
}

func NewInvariantValidator(tracker *BalanceTracker) *InvariantValidator {
	return &InvariantValidator{
		tracker: tracker,
	}
}

// ValidateBatchBalance verifies batch is balanced
func (v *InvariantValidator) ValidateBatchBalance(batch *Batch) error {
	return batch.Validate()
}

// ValidateGlobalBalance verifies system is zero-sum per asset
func (v *InvariantValidator) ValidateGlobalBalance() error {
	totals := v.tracker.ComputeGlobalBalance()

	for assetID, total := range totals {
		if total != 0 {
			assetName, _ := GetAssetName(assetID)
			return fmt.Errorf("global balance for %s is non-zero: %d", assetName, total)
		}
	}

	return nil
}

// ValidateAddressesNonNegative verifies no on-ledger account went negative.
// External boundary accounts are exempt: they absorb the mirror's net flow.
func (v *InvariantValidator) ValidateAddressesNonNegative() error {
	for key, balance := range v.tracker.balances {
		if key.Scope != AccountScopeAddress {
			continue
		}
		if balance < 0 {
			return fmt.Errorf("account %s has negative balance: %d", key.AccountPath(), balance)
		}
	}
	return nil
}

// ValidateEscrowCovered verifies one escrow's native holdings are non-negative
// after a batch touching it.
func (v *InvariantValidator) ValidateEscrowCovered(escrowAddr group.Address) error {
	return v.tracker.ValidateNonNegative(NewAddressAccountKey(escrowAddr, AssetNative))
}

package ledger_test

import (
	"testing"

	"GardLedger/internal/ledger"
)

func TestInvariantValidator(t *testing.T) {
	bt := ledger.NewBalanceTracker()
	iv := ledger.NewInvariantValidator(bt)

	// An empty ledger satisfies everything.
	if err := iv.ValidateGlobalBalance(); err != nil {
		t.Errorf("empty ledger: %v", err)
	}
	if err := iv.ValidateAddressesNonNegative(); err != nil {
		t.Errorf("empty ledger: %v", err)
	}

	// External boundary accounts may go negative without tripping the
	// address check, but an unbalanced restore breaks the zero-sum check.
	funding := ledger.NewExternalAccountKey(ledger.SubTypeExternalFunding, ledger.AssetNative)
	wallet := ledger.NewAddressAccountKey(addr(0x01), ledger.AssetNative)
	bt.Restore(funding, -500)
	bt.Restore(wallet, 500)

	if err := iv.ValidateGlobalBalance(); err != nil {
		t.Errorf("balanced ledger: %v", err)
	}
	if err := iv.ValidateAddressesNonNegative(); err != nil {
		t.Errorf("negative boundary account flagged: %v", err)
	}
	if err := iv.ValidateEscrowCovered(addr(0x01)); err != nil {
		t.Errorf("covered escrow flagged: %v", err)
	}

	bt.Restore(wallet, -1)
	if err := iv.ValidateGlobalBalance(); err == nil {
		t.Error("non-zero-sum ledger passed")
	}
	if err := iv.ValidateAddressesNonNegative(); err == nil {
		t.Error("negative on-ledger account passed")
	}
	if err := iv.ValidateEscrowCovered(addr(0x01)); err == nil {
		t.Error("overdrawn escrow passed")
	}
}

package cdp

import (
	"fmt"
)

// MaxOracleMigrations caps how many times governance may re-point the price
// oracle over the protocol's lifetime.
const MaxOracleMigrations = 3

// Params are the protocol globals owned by the position validator. The fee
// and manager app ids identify external modules consulted by key lookup; only
// the oracle reference is mutable, and only through a manager-gated migration.
type Params struct {
	PriceOracleAppID uint64
	OracleMigrations uint64

	OpenFeeAppID  uint64
	CloseFeeAppID uint64

	ManagerAppID uint64

	StableAssetID  uint64
	ValidatorAppID uint64
}

func NewParams(oracleAppID, openFeeAppID, closeFeeAppID, managerAppID, stableAssetID, validatorAppID uint64) *Params {
	return &Params{
		PriceOracleAppID: oracleAppID,
		OpenFeeAppID:     openFeeAppID,
		CloseFeeAppID:    closeFeeAppID,
		ManagerAppID:     managerAppID,
		StableAssetID:    stableAssetID,
		ValidatorAppID:   validatorAppID,
	}
}

// MigrateOracle replaces the oracle reference. Caller authentication (the
// elected manager identity) happens in the validator; this only enforces the
// migration budget.
func (p *Params) MigrateOracle(newAppID uint64) error {
	if p.OracleMigrations > MaxOracleMigrations {
		return fmt.Errorf("oracle migration budget exhausted (%d used)", p.OracleMigrations)
	}
	p.PriceOracleAppID = newAppID
	p.OracleMigrations++
	return nil
}

// CanonicalBytes returns deterministic serialization for state hashing.
func (p *Params) CanonicalBytes() []byte {
	buf := make([]byte, 0, 56)
	buf = appendUint64LE(buf, p.PriceOracleAppID)
	buf = appendUint64LE(buf, p.OracleMigrations)
	buf = appendUint64LE(buf, p.OpenFeeAppID)
	buf = appendUint64LE(buf, p.CloseFeeAppID)
	buf = appendUint64LE(buf, p.ManagerAppID)
	buf = appendUint64LE(buf, p.StableAssetID)
	buf = appendUint64LE(buf, p.ValidatorAppID)
	return buf
}

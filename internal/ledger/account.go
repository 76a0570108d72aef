package ledger

import (
	"fmt"
	"strings"

	"GardLedger/internal/group"
)

// AccountScope represents the top-level account namespace
type AccountScope uint8

const (
	// AccountScopeAddress covers every on-ledger account: owners, escrows,
	// keepers, the reserve pool, the fee sink. They all carry 32-byte
	// addresses; role is a property of the protocol, not of the key.
	AccountScopeAddress AccountScope = iota

	// AccountScopeExternal covers the boundary accounts that balance value
	// entering or leaving the mirrored ledger.
	AccountScopeExternal
)

// AccountSubType represents the account purpose
type AccountSubType uint8

const (
	SubTypeWallet AccountSubType = iota

	// External sub-types
	SubTypeExternalFunding
	SubTypeExternalMint
)

// AssetID maps asset strings to numeric IDs for performance
type AssetID uint16

const (
	AssetNative AssetID = 1 // chain-native collateral unit
	AssetStable AssetID = 2 // the synthetic asset
)

var (
	assetToID = map[string]AssetID{
		"NATIVE": AssetNative,
		"GARD":   AssetStable,
	}
	idToAsset = map[AssetID]string{
		AssetNative: "NATIVE",
		AssetStable: "GARD",
	}
)

func GetAssetID(asset string) (AssetID, bool) {
	id, ok := assetToID[asset]
	return id, ok
}

func GetAssetName(id AssetID) (string, bool) {
	name, ok := idToAsset[id]
	return name, ok
}

// AccountKey is the in-memory key for balance tracking
type AccountKey struct {
	Scope   AccountScope
	Address group.Address // zero for external accounts
	SubType AccountSubType
	AssetID AssetID
}

// NewAddressAccountKey creates a key for an on-ledger account's holdings
func NewAddressAccountKey(addr group.Address, assetID AssetID) AccountKey {
	return AccountKey{
		Scope:   AccountScopeAddress,
		Address: addr,
		SubType: SubTypeWallet,
		AssetID: assetID,
	}
}

// NewExternalAccountKey creates a key for external boundary accounts
func NewExternalAccountKey(subType AccountSubType, assetID AssetID) AccountKey {
	return AccountKey{
		Scope:   AccountScopeExternal,
		SubType: subType,
		AssetID: assetID,
	}
}

// AccountPath returns the string representation for storage/logging
func (k AccountKey) AccountPath() string {
	assetName, _ := GetAssetName(k.AssetID)

	switch k.Scope {
	case AccountScopeAddress:
		return fmt.Sprintf("acct:%s:%s", k.Address, assetName)
	case AccountScopeExternal:
		return fmt.Sprintf("external:%s:%s", k.subTypeName(), assetName)
	}
	return "unknown"
}

// ParseAccountPath inverts AccountPath (used when loading snapshots).
// Malformed input yields the zero key.
func ParseAccountPath(path string) AccountKey {
	parts := strings.SplitN(path, ":", 3)
	if len(parts) != 3 {
		return AccountKey{}
	}

	assetID, ok := GetAssetID(parts[2])
	if !ok {
		return AccountKey{}
	}

	switch parts[0] {
	case "acct":
		addr, err := group.ParseAddress(parts[1])
		if err != nil {
			return AccountKey{}
		}
		return NewAddressAccountKey(addr, assetID)

	case "external":
		switch parts[1] {
		case "funding":
			return NewExternalAccountKey(SubTypeExternalFunding, assetID)
		case "mint":
			return NewExternalAccountKey(SubTypeExternalMint, assetID)
		}
	}

	return AccountKey{}
}

func (k AccountKey) subTypeName() string {
	switch k.SubType {
	case SubTypeWallet:
		return "wallet"
	case SubTypeExternalFunding:
		return "funding"
	case SubTypeExternalMint:
		return "mint"
	default:
		return "unknown"
	}
}

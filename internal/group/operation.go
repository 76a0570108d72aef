package group

import (
	"encoding/hex"
)

// Kind discriminates the ledger operation types that can appear in a group.
type Kind uint8

const (
	KindPayment Kind = iota
	KindAssetTransfer
	KindAppCall
	KindKeyRegistration
)

// OnCompletion is the application-call completion code.
type OnCompletion uint8

const (
	OnCompletionNoOp OnCompletion = iota
	OnCompletionOptIn
	OnCompletionCloseOut
	OnCompletionClearState
)

// Address is a 32-byte account identity.
type Address [32]byte

// ZeroAddress is the absent-address sentinel (no rekey, no close-to).
var ZeroAddress Address

func (a Address) IsZero() bool {
	return a == ZeroAddress
}

func (a Address) String() string {
	return hex.EncodeToString(a[:])
}

// ParseAddress decodes a hex-encoded 32-byte address.
func ParseAddress(s string) (Address, error) {
	var a Address
	raw, err := hex.DecodeString(s)
	if err != nil {
		return a, err
	}
	if len(raw) != len(a) {
		return a, errAddressLength(len(raw))
	}
	copy(a[:], raw)
	return a, nil
}

// Operation is one leg of an atomic group. The populated fields depend on Kind;
// unset fields are zero. Field names follow the wire format of the surrounding
// ledger, not any particular consumer.
type Operation struct {
	Kind    Kind
	Sender  Address
	Fee     uint64
	RekeyTo Address

	// Payment fields
	Receiver         Address
	Amount           uint64
	CloseRemainderTo Address

	// Asset transfer fields
	XferAsset     uint64
	AssetAmount   uint64
	AssetReceiver Address
	AssetCloseTo  Address

	// Application call fields
	AppID         uint64
	OnCompletion  OnCompletion
	AppArgs       [][]byte
	Accounts      []Address
	ForeignApps   []uint64
	ForeignAssets []uint64
}

// Arg returns the i-th application argument, or nil when absent.
func (op *Operation) Arg(i int) []byte {
	if i < 0 || i >= len(op.AppArgs) {
		return nil
	}
	return op.AppArgs[i]
}

// Account returns the i-th referenced account. Index 0 is the sender, matching
// the ledger's account-array addressing.
func (op *Operation) Account(i int) Address {
	if i == 0 {
		return op.Sender
	}
	i--
	if i < 0 || i >= len(op.Accounts) {
		return ZeroAddress
	}
	return op.Accounts[i]
}

// ForeignApp returns the i-th entry of the application array. Index 0 is the
// called application itself, matching the ledger's app-array addressing.
func (op *Operation) ForeignApp(i int) uint64 {
	if i == 0 {
		return op.AppID
	}
	i--
	if i < 0 || i >= len(op.ForeignApps) {
		return 0
	}
	return op.ForeignApps[i]
}

// ForeignAsset returns the i-th referenced asset id, or 0 when absent.
func (op *Operation) ForeignAsset(i int) uint64 {
	if i < 0 || i >= len(op.ForeignAssets) {
		return 0
	}
	return op.ForeignAssets[i]
}

// Group is an ordered, all-or-nothing batch of operations. Validators evaluate
// the whole group; there is no partial acceptance.
type Group struct {
	Ops []Operation
}

func (g *Group) Size() int {
	return len(g.Ops)
}

// At returns the i-th operation. Out-of-range access returns a zeroed
// operation so shape checks fail on field mismatch instead of panicking.
func (g *Group) At(i int) *Operation {
	if i < 0 || i >= len(g.Ops) {
		return &Operation{}
	}
	return &g.Ops[i]
}

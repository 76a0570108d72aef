package reserve

import (
	"bytes"

	"GardLedger/internal/escrow"
	"GardLedger/internal/group"
)

// Authorization argument tags for the reserve pool's co-signer.
const (
	ArgOptIn uint64 = iota
	ArgCore
	ArgMoreGARD
)

// Authorization guards the singleton pool that disburses and receives the
// synthetic asset. Stateless: three canonical shapes, and for Core the escrow
// account named in the group is never trusted by identity — it is recomputed
// from the group's own fields and compared byte-for-byte, so an unrelated
// account that merely resembles a legitimate escrow can never be substituted.
type Authorization struct {
	StableAssetID  uint64
	ValidatorAppID uint64
	FeeSink        group.Address
}

// Approve evaluates the group against the shape selected by args[0]. signed
// is the index of the leg the reserve co-signs.
func (a *Authorization) Approve(g *group.Group, signed int, args [][]byte) error {
	if len(args) == 0 {
		return group.ShapeErrf("reserve: missing authorization tag")
	}

	switch group.Uint64(args[0]) {
	case ArgOptIn:
		return a.approveOptIn(g, signed)
	case ArgCore:
		return a.approveCore(g)
	case ArgMoreGARD:
		return a.approveMoreGARD(g)
	default:
		return group.ShapeErrf("reserve: unknown authorization tag %d", group.Uint64(args[0]))
	}
}

// approveOptIn admits the pool's zero-amount acceptance of the synthetic
// asset and nothing else.
func (a *Authorization) approveOptIn(g *group.Group, signed int) error {
	op := g.At(signed)
	if op.Kind != group.KindAssetTransfer {
		return group.ShapeErrf("opt-in: signed leg must be an asset transfer")
	}
	if op.XferAsset != a.StableAssetID {
		return group.ShapeErrf("opt-in: wrong asset")
	}
	if op.AssetAmount != 0 {
		return group.ShapeErrf("opt-in: amount must be zero")
	}
	if !op.RekeyTo.IsZero() || !op.AssetCloseTo.IsZero() {
		return group.ShapeErrf("opt-in: rekey and close-to must be unset")
	}
	if op.Fee != 0 {
		return group.ShapeErrf("opt-in: fee must be zero")
	}
	return nil
}

// approveCore admits the four-leg position-opening group: validator call,
// collateral payment to the escrow, fee payment, synthetic disbursement.
func (a *Authorization) approveCore(g *group.Group) error {
	if g.Size() != 4 {
		return group.ShapeErrf("core: group size must be 4, got %d", g.Size())
	}
	op0, op1, op2, op3 := g.At(0), g.At(1), g.At(2), g.At(3)

	if op0.OnCompletion != group.OnCompletionNoOp {
		return group.ShapeErrf("core: leg 0 must be a no-op call")
	}
	if op0.AppID != a.ValidatorAppID {
		return group.IdentityErrf("core: leg 0 must target the validator")
	}
	if !bytes.Equal(op0.Arg(0), []byte(group.TagNewPosition)) {
		return group.ShapeErrf("core: leg 0 tag mismatch")
	}
	if op0.Account(1) != op1.Receiver {
		return group.ShapeErrf("core: leg 0 account reference must match the collateral receiver")
	}
	if op0.ForeignAsset(0) != a.StableAssetID {
		return group.ShapeErrf("core: leg 0 must reference the synthetic asset")
	}

	if op1.Kind != group.KindPayment {
		return group.ShapeErrf("core: leg 1 must be a payment")
	}
	if op1.Sender != op0.Sender {
		return group.ShapeErrf("core: leg 1 sender must match the applicant")
	}

	// The escrow identity check: recompute the custodial address from the
	// applicant and the position id carried in the validator call's second
	// foreign asset slot.
	expected := escrow.Derive(op0.Sender, op0.ForeignAsset(1))
	if op1.Receiver != expected {
		return group.IdentityErrf("core: collateral receiver is not the derived escrow for this position")
	}

	if op2.Kind != group.KindPayment {
		return group.ShapeErrf("core: leg 2 must be a payment")
	}
	if op2.Sender != op1.Sender {
		return group.ShapeErrf("core: leg 2 sender must match the applicant")
	}
	if op2.Receiver != a.FeeSink {
		return group.IdentityErrf("core: leg 2 must pay the fee sink")
	}

	if op3.Kind != group.KindAssetTransfer {
		return group.ShapeErrf("core: leg 3 must be an asset transfer")
	}
	if op3.XferAsset != a.StableAssetID {
		return group.ShapeErrf("core: leg 3 must move the synthetic asset")
	}
	if op3.Fee != 0 {
		return group.ShapeErrf("core: leg 3 fee must be zero")
	}
	if !op3.AssetCloseTo.IsZero() || !op3.RekeyTo.IsZero() {
		return group.ShapeErrf("core: leg 3 close-to and rekey must be unset")
	}
	return nil
}

// approveMoreGARD admits the three-leg top-up group.
func (a *Authorization) approveMoreGARD(g *group.Group) error {
	if g.Size() != 3 {
		return group.ShapeErrf("more-gard: group size must be 3, got %d", g.Size())
	}
	op0, op2 := g.At(0), g.At(2)

	if op0.OnCompletion != group.OnCompletionNoOp {
		return group.ShapeErrf("more-gard: leg 0 must be a no-op call")
	}
	if op0.AppID != a.ValidatorAppID {
		return group.IdentityErrf("more-gard: leg 0 must target the validator")
	}
	if !bytes.Equal(op0.Arg(0), []byte(group.TagMoreGARD)) {
		return group.ShapeErrf("more-gard: leg 0 tag mismatch")
	}
	if op0.ForeignAsset(0) != a.StableAssetID {
		return group.ShapeErrf("more-gard: leg 0 must reference the synthetic asset")
	}

	if op2.Kind != group.KindAssetTransfer {
		return group.ShapeErrf("more-gard: leg 2 must be an asset transfer")
	}
	if op2.Fee != 0 {
		return group.ShapeErrf("more-gard: leg 2 fee must be zero")
	}
	if !op2.AssetCloseTo.IsZero() || !op2.RekeyTo.IsZero() {
		return group.ShapeErrf("more-gard: leg 2 close-to and rekey must be unset")
	}
	return nil
}

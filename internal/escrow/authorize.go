package escrow

import (
	"bytes"

	"GardLedger/internal/group"
)

// Authorization argument tags. The co-signer's first argument selects one of
// the seven canonical group shapes; a group must unambiguously match the
// selected shape, and nothing else is ever approved.
const (
	ArgVote uint64 = iota
	ArgLiquidate
	ArgRedeemFee
	ArgRedeemNoFee
	ArgValidatorOptIn
	ArgMoreGARD
	ArgStartAuction
)

// Authorization co-signs on behalf of one position's locked collateral. It is
// stateless and parameterized entirely by the position's identity: every call
// re-checks the submitted group's shape against the tag and approves or
// rejects, never reading or writing durable state.
type Authorization struct {
	Owner          group.Address
	PositionID     uint64
	StableAssetID  uint64
	ValidatorAppID uint64
	FeeSink        group.Address
}

// Address returns the escrow account this authorization speaks for.
func (a *Authorization) Address() group.Address {
	return Derive(a.Owner, a.PositionID)
}

// Approve evaluates the group against the shape selected by args[0]. signed
// is the index of the leg this escrow co-signs; shapes that constrain "the
// signed operation" check that leg.
func (a *Authorization) Approve(g *group.Group, signed int, args [][]byte) error {
	if len(args) == 0 {
		return group.ShapeErrf("escrow: missing authorization tag")
	}

	switch group.Uint64(args[0]) {
	case ArgVote:
		return a.approveVote(g)
	case ArgLiquidate:
		return a.approveLiquidate(g)
	case ArgRedeemFee:
		return a.approveRedeem(g, true)
	case ArgRedeemNoFee:
		return a.approveRedeem(g, false)
	case ArgValidatorOptIn:
		return a.approveValidatorOptIn(g, signed)
	case ArgMoreGARD:
		return a.approveMoreGARD(g)
	case ArgStartAuction:
		return a.approveStartAuction(g, signed)
	default:
		return group.ShapeErrf("escrow: unknown authorization tag %d", group.Uint64(args[0]))
	}
}

// approveVote lets the locked collateral participate in external governance
// without being unlocked. Two forms: a bare key-registration or zero payment
// pair, or a three-leg form whose tail is an AppCheck call to the validator.
func (a *Authorization) approveVote(g *group.Group) error {
	op0, op1 := g.At(0), g.At(1)

	if op0.Amount != a.PositionID {
		return group.ShapeErrf("vote: leg 0 amount must encode position id")
	}
	if op0.Sender != a.Owner {
		return group.IdentityErrf("vote: leg 0 sender is not the position owner")
	}
	if !op1.RekeyTo.IsZero() {
		return group.ShapeErrf("vote: leg 1 must not rekey")
	}
	if op1.Fee != 0 {
		return group.ShapeErrf("vote: leg 1 fee must be zero")
	}

	switch g.Size() {
	case 2:
		zeroPayment := op1.Kind == group.KindPayment &&
			op1.Amount == 0 &&
			op1.CloseRemainderTo.IsZero()
		keyReg := op1.Kind == group.KindKeyRegistration
		if !zeroPayment && !keyReg {
			return group.ShapeErrf("vote: leg 1 must be a zero payment or key registration")
		}
		return nil
	case 3:
		op2 := g.At(2)
		if op1.Kind != group.KindAppCall {
			return group.ShapeErrf("vote: leg 1 must be an application call")
		}
		if op1.AppID == a.ValidatorAppID {
			return group.ShapeErrf("vote: leg 1 must target an external application")
		}
		if op2.AppID != a.ValidatorAppID {
			return group.IdentityErrf("vote: leg 2 must target the validator")
		}
		if op2.OnCompletion != group.OnCompletionNoOp {
			return group.ShapeErrf("vote: leg 2 must be a no-op call")
		}
		if !bytes.Equal(op2.Arg(0), []byte(group.TagAppCheck)) {
			return group.ShapeErrf("vote: leg 2 must carry the AppCheck tag")
		}
		return nil
	default:
		return group.ShapeErrf("vote: group size must be 2 or 3, got %d", g.Size())
	}
}

// approveLiquidate releases the collateral to a keeper. The numeric floor is
// the validator's concern; the escrow only pins the payout routing.
func (a *Authorization) approveLiquidate(g *group.Group) error {
	if g.Size() != 5 {
		return group.ShapeErrf("liquidate: group size must be 5, got %d", g.Size())
	}
	op0 := g.At(0)
	if op0.OnCompletion != group.OnCompletionCloseOut {
		return group.ShapeErrf("liquidate: leg 0 must close out validator state")
	}
	if op0.AppID != a.ValidatorAppID {
		return group.IdentityErrf("liquidate: leg 0 must target the validator")
	}
	if op0.ForeignAsset(0) != a.StableAssetID {
		return group.ShapeErrf("liquidate: leg 0 must reference the synthetic asset")
	}
	if g.At(3).AssetReceiver != a.FeeSink {
		return group.IdentityErrf("liquidate: leg 3 must pay the fee sink")
	}
	if g.At(4).AssetReceiver != a.Owner {
		return group.IdentityErrf("liquidate: leg 4 must refund the owner")
	}
	return nil
}

// approveRedeem releases collateral back to the owner against full repayment,
// with or without the time-gated fee leg.
func (a *Authorization) approveRedeem(g *group.Group, withFee bool) error {
	if g.Size() != 4 {
		return group.ShapeErrf("redeem: group size must be 4, got %d", g.Size())
	}
	op0 := g.At(0)
	if op0.OnCompletion != group.OnCompletionNoOp {
		return group.ShapeErrf("redeem: leg 0 must be a no-op call")
	}
	if op0.AppID != a.ValidatorAppID {
		return group.IdentityErrf("redeem: leg 0 must target the validator")
	}
	wantTag := group.TagCloseNoFee
	if withFee {
		wantTag = group.TagCloseFee
	}
	if !bytes.Equal(op0.Arg(0), []byte(wantTag)) {
		return group.ShapeErrf("redeem: leg 0 tag mismatch")
	}
	if op0.ForeignAsset(0) != a.StableAssetID {
		return group.ShapeErrf("redeem: leg 0 must reference the synthetic asset")
	}
	if g.At(1).Sender != a.Owner {
		return group.IdentityErrf("redeem: leg 1 repayment must come from the owner")
	}
	if g.At(2).OnCompletion != group.OnCompletionClearState {
		return group.ShapeErrf("redeem: leg 2 must clear validator state")
	}
	if withFee {
		op3 := g.At(3)
		if op3.Receiver != a.FeeSink {
			return group.IdentityErrf("redeem: leg 3 must pay the fee sink")
		}
		if op3.CloseRemainderTo != a.Owner {
			return group.IdentityErrf("redeem: leg 3 remainder must close to the owner")
		}
	}
	return nil
}

// approveValidatorOptIn admits the position's one-time opt-in call to the
// validator, free of fee and rekey.
func (a *Authorization) approveValidatorOptIn(g *group.Group, signed int) error {
	op := g.At(signed)
	if op.Kind != group.KindAppCall || op.OnCompletion != group.OnCompletionOptIn {
		return group.ShapeErrf("opt-in: signed leg must be a validator opt-in call")
	}
	if op.AppID != a.ValidatorAppID {
		return group.IdentityErrf("opt-in: signed leg must target the validator")
	}
	if !op.RekeyTo.IsZero() {
		return group.ShapeErrf("opt-in: signed leg must not rekey")
	}
	if op.Fee != 0 {
		return group.ShapeErrf("opt-in: signed leg fee must be zero")
	}
	return nil
}

// approveMoreGARD lets the owner mint further synthetic units against the
// escrow's existing collateral balance.
func (a *Authorization) approveMoreGARD(g *group.Group) error {
	if g.Size() != 3 {
		return group.ShapeErrf("more-gard: group size must be 3, got %d", g.Size())
	}
	op0 := g.At(0)
	if op0.OnCompletion != group.OnCompletionNoOp {
		return group.ShapeErrf("more-gard: leg 0 must be a no-op call")
	}
	if op0.AppID != a.ValidatorAppID {
		return group.IdentityErrf("more-gard: leg 0 must target the validator")
	}
	if !bytes.Equal(op0.Arg(0), []byte(group.TagMoreGARD)) {
		return group.ShapeErrf("more-gard: leg 0 tag mismatch")
	}
	if g.At(1).Sender != a.Owner {
		return group.IdentityErrf("more-gard: leg 1 fee must come from the owner")
	}
	if g.At(1).Receiver != a.FeeSink {
		return group.IdentityErrf("more-gard: leg 1 must pay the fee sink")
	}
	return nil
}

// approveStartAuction admits either the auction-start call itself or the
// ClearApp form that detaches an external application during an auction.
func (a *Authorization) approveStartAuction(g *group.Group, signed int) error {
	op := g.At(signed)
	auctionCall := op.AppID == a.ValidatorAppID &&
		op.OnCompletion == group.OnCompletionNoOp &&
		bytes.Equal(op.Arg(0), []byte(group.TagAuction))
	if auctionCall {
		return nil
	}

	if g.Size() != 3 {
		return group.ShapeErrf("start-auction: group size must be 3, got %d", g.Size())
	}
	op0 := g.At(0)
	clearForm := op0.AppID == a.ValidatorAppID &&
		op0.OnCompletion == group.OnCompletionNoOp &&
		bytes.Equal(op0.Arg(0), []byte(group.TagClearApp)) &&
		g.At(1).OnCompletion == group.OnCompletionClearState
	if !clearForm {
		return group.ShapeErrf("start-auction: group matches neither auction nor clear-app form")
	}
	return nil
}

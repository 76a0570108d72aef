// Package validator implements the stateful position validator: the single
// authority over per-position durable state (debt, auction status, opt-in
// counter) and the protocol globals. Each tagged application call selects one
// canonical group shape; the validator checks the shape's guards against the
// current state snapshot and either applies the transition or rejects the
// whole group.
package validator

import (
	"bytes"

	"GardLedger/internal/cdp"
	"GardLedger/internal/group"
	"GardLedger/internal/math"
	"GardLedger/internal/oracle"
)

const (
	// ReplayWindow bounds the skew between the ledger clock and the
	// caller-supplied open timestamp, in seconds either way.
	ReplayWindow = 30

	// CloseGraceWindow is how long after the status timestamp a position can
	// be closed without the redemption fee, in seconds.
	CloseGraceWindow = 300
)

// BalanceReader exposes native-unit account balances to guard evaluation. The
// balance of an escrow is read as of the group's admission, before any of the
// group's own legs settle.
type BalanceReader interface {
	NativeBalance(addr group.Address) uint64
}

// PositionValidator evaluates tagged application calls against durable state.
// Not thread-safe — only invoked from the single-threaded deterministic core.
type PositionValidator struct {
	store    *cdp.Store
	params   *cdp.Params
	prices   *oracle.PriceFeed
	fees     *oracle.FeeSchedule
	managers *oracle.ManagerRegistry
	balances BalanceReader
	reserve  group.Address
}

func NewPositionValidator(
	store *cdp.Store,
	params *cdp.Params,
	prices *oracle.PriceFeed,
	fees *oracle.FeeSchedule,
	managers *oracle.ManagerRegistry,
	balances BalanceReader,
	reserve group.Address,
) *PositionValidator {
	return &PositionValidator{
		store:    store,
		params:   params,
		prices:   prices,
		fees:     fees,
		managers: managers,
		balances: balances,
		reserve:  reserve,
	}
}

// Outcome describes an applied transition for journaling and projection.
// Status and OptIns reflect the position's post-transition state; both are
// zero when Deleted.
type Outcome struct {
	Tag        string
	Escrow     group.Address
	Owner      group.Address
	PositionID uint64
	DebtBefore uint64
	DebtAfter  uint64
	Deleted    bool
	Status     cdp.Status
	OptIns     uint8
}

// Evaluate checks the validator-call leg at callIndex against the group and
// the durable state, applying the transition on success. now is the ledger
// clock at admission. Any returned error rejects the whole group; state is
// only mutated after every guard of the selected shape has passed.
func (v *PositionValidator) Evaluate(now int64, g *group.Group, callIndex int) (*Outcome, error) {
	call := g.At(callIndex)
	if call.Kind != group.KindAppCall {
		return nil, group.ShapeErrf("validator: leg %d is not an application call", callIndex)
	}
	if call.AppID != v.params.ValidatorAppID {
		return nil, group.IdentityErrf("validator: call targets app %d", call.AppID)
	}

	switch call.OnCompletion {
	case group.OnCompletionOptIn:
		// Opt-in creates the Empty slot; no durable fields are written until
		// NewPosition.
		return &Outcome{Tag: "OptIn", Escrow: call.Sender}, nil
	case group.OnCompletionCloseOut:
		if callIndex != 0 {
			return nil, group.ShapeErrf("validator: close-out call must be leg 0, got %d", callIndex)
		}
		return v.liquidate(now, g)
	case group.OnCompletionClearState:
		return nil, group.ShapeErrf("validator: bare clear-state is not a transition")
	}

	// The multi-leg transitions canonically place the validator call at leg 0;
	// the handlers read the group from that anchor.
	leg0 := func(tag string) error {
		if callIndex != 0 {
			return group.ShapeErrf("validator: %s call must be leg 0, got %d", tag, callIndex)
		}
		return nil
	}

	switch {
	case bytes.Equal(call.Arg(0), []byte(group.TagNewPosition)):
		if err := leg0(group.TagNewPosition); err != nil {
			return nil, err
		}
		return v.newPosition(now, g)
	case bytes.Equal(call.Arg(0), []byte(group.TagMoreGARD)):
		if err := leg0(group.TagMoreGARD); err != nil {
			return nil, err
		}
		return v.moreGARD(g)
	case bytes.Equal(call.Arg(0), []byte(group.TagCloseNoFee)):
		if err := leg0(group.TagCloseNoFee); err != nil {
			return nil, err
		}
		return v.close(now, g, false)
	case bytes.Equal(call.Arg(0), []byte(group.TagCloseFee)):
		if err := leg0(group.TagCloseFee); err != nil {
			return nil, err
		}
		return v.close(now, g, true)
	case bytes.Equal(call.Arg(0), []byte(group.TagAuction)):
		return v.startAuction(now, g, callIndex)
	case bytes.Equal(call.Arg(0), []byte(group.TagAppCheck)):
		return v.appCheck(g, callIndex)
	case bytes.Equal(call.Arg(0), []byte(group.TagClearApp)):
		return v.clearApp(g)
	case bytes.Equal(call.Arg(0), []byte(group.TagChangePricing)):
		return v.changePricing(g, callIndex)
	default:
		return nil, group.ShapeErrf("validator: unknown operation tag %q", call.Arg(0))
	}
}

// newPosition admits the four-leg opening group:
//
//	0: applicant's NewPosition call naming the escrow in accounts[1]
//	1: collateral payment, applicant -> escrow
//	2: opening fee payment, applicant -> fee sink
//	3: synthetic disbursement, reserve -> applicant
func (v *PositionValidator) newPosition(now int64, g *group.Group) (*Outcome, error) {
	if g.Size() != 4 {
		return nil, group.ShapeErrf("new-position: group size must be 4, got %d", g.Size())
	}
	op0, op1, op2, op3 := g.At(0), g.At(1), g.At(2), g.At(3)

	if err := v.checkRefs(op0, v.params.OpenFeeAppID); err != nil {
		return nil, err
	}
	if !op0.RekeyTo.IsZero() {
		return nil, group.ShapeErrf("new-position: call must not rekey")
	}

	ts := int64(group.Uint64(op0.Arg(1)))
	if ts > now+ReplayWindow || ts < now-ReplayWindow {
		return nil, group.GuardErrf("new-position: open timestamp %d outside ±%ds of ledger time %d", ts, ReplayWindow, now)
	}

	escrow := op0.Account(1)
	if v.store.Get(escrow) != nil {
		return nil, group.StateErrf("new-position: escrow %s already carries debt", escrow)
	}
	if op3.Sender != v.reserve {
		return nil, group.IdentityErrf("new-position: disbursement must come from the reserve")
	}

	mint := op3.AssetAmount
	if mint < math.MinMintAmount || mint > math.MaxMintAmount {
		return nil, group.GuardErrf("new-position: mint %d outside [%d, %d]", mint, math.MinMintAmount, uint64(math.MaxMintAmount))
	}

	price, decimals, err := v.prices.Lookup(v.params.PriceOracleAppID)
	if err != nil {
		return nil, group.StateErrf("new-position: %v", err)
	}
	openFee, err := v.fees.Lookup(v.params.OpenFeeAppID)
	if err != nil {
		return nil, group.StateErrf("new-position: %v", err)
	}

	feeOwed, err := math.FeeAmount(mint, openFee, price, decimals)
	if err != nil {
		return nil, group.GuardErrf("new-position: %v", err)
	}
	if op2.Amount < feeOwed {
		return nil, group.GuardErrf("new-position: fee %d below required %d", op2.Amount, feeOwed)
	}

	if err := v.checkCollateralized(mint, v.balances.NativeBalance(escrow)+op1.Amount, price, decimals); err != nil {
		return nil, err
	}

	pos := &cdp.Position{
		Escrow:     escrow,
		Owner:      op0.Sender,
		PositionID: op0.ForeignAsset(1),
		Debt:       mint,
		Status:     cdp.Status{Kind: cdp.StatusNormal, Time: ts},
	}
	v.store.Open(pos)

	return &Outcome{
		Tag:        group.TagNewPosition,
		Escrow:     escrow,
		Owner:      pos.Owner,
		PositionID: pos.PositionID,
		DebtAfter:  mint,
	}, nil
}

// moreGARD admits the three-leg top-up group:
//
//	0: escrow's MoreGARD call
//	1: fee payment, owner -> fee sink
//	2: synthetic disbursement, reserve -> owner
func (v *PositionValidator) moreGARD(g *group.Group) (*Outcome, error) {
	if g.Size() != 3 {
		return nil, group.ShapeErrf("more-gard: group size must be 3, got %d", g.Size())
	}
	op0, op1, op2 := g.At(0), g.At(1), g.At(2)

	if err := v.checkRefs(op0, v.params.OpenFeeAppID); err != nil {
		return nil, err
	}
	if !op0.RekeyTo.IsZero() {
		return nil, group.ShapeErrf("more-gard: call must not rekey")
	}
	if op0.Fee != 0 {
		return nil, group.ShapeErrf("more-gard: call fee must be zero")
	}

	pos := v.store.Get(op0.Sender)
	if pos == nil {
		return nil, group.StateErrf("more-gard: no open position at %s", op0.Sender)
	}
	if op1.Sender == v.reserve {
		return nil, group.IdentityErrf("more-gard: fee must not come from the reserve")
	}
	if op2.Sender != v.reserve || op2.Sender == op0.Sender {
		return nil, group.IdentityErrf("more-gard: disbursement must come from the reserve")
	}

	inc := op2.AssetAmount
	if inc < math.MinMintAmount {
		return nil, group.GuardErrf("more-gard: increment %d below minimum %d", inc, uint64(math.MinMintAmount))
	}
	if inc > math.MaxDebt-pos.Debt {
		return nil, group.GuardErrf("more-gard: debt %d + %d exceeds ceiling", pos.Debt, inc)
	}

	price, decimals, err := v.prices.Lookup(v.params.PriceOracleAppID)
	if err != nil {
		return nil, group.StateErrf("more-gard: %v", err)
	}
	openFee, err := v.fees.Lookup(v.params.OpenFeeAppID)
	if err != nil {
		return nil, group.StateErrf("more-gard: %v", err)
	}

	feeOwed, err := math.FeeAmount(inc, openFee, price, decimals)
	if err != nil {
		return nil, group.GuardErrf("more-gard: %v", err)
	}
	if op1.Amount < feeOwed {
		return nil, group.GuardErrf("more-gard: fee %d below required %d", op1.Amount, feeOwed)
	}

	if err := v.checkCollateralized(pos.Debt+inc, v.balances.NativeBalance(pos.Escrow), price, decimals); err != nil {
		return nil, err
	}

	before := pos.Debt
	pos.Debt += inc
	pos.Version++

	return &Outcome{
		Tag:        group.TagMoreGARD,
		Escrow:     pos.Escrow,
		Owner:      pos.Owner,
		PositionID: pos.PositionID,
		DebtBefore: before,
		DebtAfter:  pos.Debt,
	}, nil
}

// close admits the four-leg redemption group, with or without the fee leg:
//
//	0: escrow's CloseFee/CloseNoFee call
//	1: full repayment, owner -> reserve
//	2: clear-state call detaching the escrow
//	3: fee (or zero) payment closing the escrow's remainder to the owner
func (v *PositionValidator) close(now int64, g *group.Group, withFee bool) (*Outcome, error) {
	if g.Size() != 4 {
		return nil, group.ShapeErrf("close: group size must be 4, got %d", g.Size())
	}
	op0, op1, op2, op3 := g.At(0), g.At(1), g.At(2), g.At(3)

	if !op0.RekeyTo.IsZero() || !op2.RekeyTo.IsZero() || !op3.RekeyTo.IsZero() {
		return nil, group.ShapeErrf("close: no leg may rekey")
	}
	if op0.Fee+op2.Fee+op3.Fee != 0 {
		return nil, group.ShapeErrf("close: call and release fees must be zero")
	}
	if op1.Kind != group.KindAssetTransfer || op1.XferAsset != op0.ForeignAsset(0) {
		return nil, group.ShapeErrf("close: leg 1 must repay the referenced asset")
	}
	if op0.ForeignAsset(0) != v.params.StableAssetID {
		return nil, group.ShapeErrf("close: call must reference the synthetic asset")
	}
	if op2.Kind != group.KindAppCall || op2.AppID != op0.AppID || op2.OnCompletion != group.OnCompletionClearState {
		return nil, group.ShapeErrf("close: leg 2 must clear state on the same app")
	}
	if op2.Sender != op0.Sender || op3.Sender != op2.Sender {
		return nil, group.ShapeErrf("close: legs 0, 2, 3 must share the escrow sender")
	}
	if op3.Kind != group.KindPayment || op3.CloseRemainderTo.IsZero() {
		return nil, group.ShapeErrf("close: leg 3 must close the escrow remainder out")
	}

	pos := v.store.Get(op0.Sender)
	if pos == nil {
		return nil, group.StateErrf("close: no open position at %s", op0.Sender)
	}
	if op1.AssetReceiver != v.reserve {
		return nil, group.IdentityErrf("close: repayment must reach the reserve")
	}
	if op1.AssetAmount != pos.Debt {
		return nil, group.GuardErrf("close: repayment %d does not equal debt %d", op1.AssetAmount, pos.Debt)
	}

	if withFee {
		if err := v.checkRefs(op0, v.params.CloseFeeAppID); err != nil {
			return nil, err
		}
		price, decimals, err := v.prices.Lookup(v.params.PriceOracleAppID)
		if err != nil {
			return nil, group.StateErrf("close: %v", err)
		}
		closeFee, err := v.fees.Lookup(v.params.CloseFeeAppID)
		if err != nil {
			return nil, group.StateErrf("close: %v", err)
		}
		feeOwed, err := math.FeeAmount(pos.Debt, closeFee, price, decimals)
		if err != nil {
			return nil, group.GuardErrf("close: %v", err)
		}
		if op3.Amount < feeOwed {
			return nil, group.GuardErrf("close: fee %d below required %d", op3.Amount, feeOwed)
		}
	} else {
		if now > pos.Status.Time+CloseGraceWindow {
			return nil, group.GuardErrf("close: free window expired at %d, ledger time %d", pos.Status.Time+CloseGraceWindow, now)
		}
	}

	out := &Outcome{
		Tag:        group.TagCloseFee,
		Escrow:     pos.Escrow,
		Owner:      pos.Owner,
		PositionID: pos.PositionID,
		DebtBefore: pos.Debt,
		Deleted:    true,
	}
	if !withFee {
		out.Tag = group.TagCloseNoFee
	}
	v.store.Delete(pos.Escrow)
	return out, nil
}

// startAuction flips an undercollateralized position into the auction state.
// Single tagged call; anyone may submit it, the guards decide.
func (v *PositionValidator) startAuction(now int64, g *group.Group, callIndex int) (*Outcome, error) {
	op := g.At(callIndex)
	if op.ForeignApp(1) != v.params.PriceOracleAppID {
		return nil, group.IdentityErrf("auction: call must reference the elected oracle")
	}
	if op.Fee != 0 {
		return nil, group.ShapeErrf("auction: call fee must be zero")
	}
	if !op.RekeyTo.IsZero() {
		return nil, group.ShapeErrf("auction: call must not rekey")
	}

	pos := v.store.Get(op.Sender)
	if pos == nil {
		return nil, group.StateErrf("auction: no open position at %s", op.Sender)
	}
	if pos.InAuction() {
		return nil, group.StateErrf("auction: position already in auction since %d", pos.Status.Time)
	}

	price, decimals, err := v.prices.Lookup(v.params.PriceOracleAppID)
	if err != nil {
		return nil, group.StateErrf("auction: %v", err)
	}
	value, err := math.CollateralValue(v.balances.NativeBalance(pos.Escrow), price, decimals)
	if err != nil {
		return nil, group.GuardErrf("auction: %v", err)
	}
	trigger, err := math.MulDiv(pos.Debt, 23, 20)
	if err != nil {
		return nil, group.GuardErrf("auction: %v", err)
	}
	if trigger <= value {
		return nil, group.GuardErrf("auction: collateral %d still covers 115%% of debt %d", value, pos.Debt)
	}

	pos.Status = cdp.Status{Kind: cdp.StatusAuction, Time: now}
	pos.Version++

	return &Outcome{
		Tag:        group.TagAuction,
		Escrow:     pos.Escrow,
		Owner:      pos.Owner,
		PositionID: pos.PositionID,
		DebtBefore: pos.Debt,
		DebtAfter:  pos.Debt,
	}, nil
}

// liquidate settles an auctioned position through the five-leg close-out:
//
//	0: escrow's close-out call
//	1: collateral payment closing the escrow remainder to the buyer
//	2: debt repayment, buyer -> reserve
//	3: premium share, buyer -> fee sink
//	4: premium share, buyer -> owner
func (v *PositionValidator) liquidate(now int64, g *group.Group) (*Outcome, error) {
	if g.Size() != 5 {
		return nil, group.ShapeErrf("liquidate: group size must be 5, got %d", g.Size())
	}
	op0, op1, op2, op3, op4 := g.At(0), g.At(1), g.At(2), g.At(3), g.At(4)

	if op0.ForeignAsset(0) != v.params.StableAssetID {
		return nil, group.ShapeErrf("liquidate: call must reference the synthetic asset")
	}
	if !op0.RekeyTo.IsZero() || !op1.RekeyTo.IsZero() {
		return nil, group.ShapeErrf("liquidate: legs 0 and 1 must not rekey")
	}
	if op0.Fee+op1.Fee != 0 {
		return nil, group.ShapeErrf("liquidate: escrow-signed fees must be zero")
	}
	if op1.Kind != group.KindPayment || op1.CloseRemainderTo.IsZero() {
		return nil, group.ShapeErrf("liquidate: leg 1 must close the collateral out")
	}
	if op0.Sender != op1.Sender {
		return nil, group.ShapeErrf("liquidate: legs 0 and 1 must share the escrow sender")
	}
	if op1.Sender == op2.Sender {
		return nil, group.ShapeErrf("liquidate: buyer must differ from the escrow")
	}
	if op2.Sender != op3.Sender || op3.Sender != op4.Sender {
		return nil, group.ShapeErrf("liquidate: legs 2-4 must share the buyer sender")
	}
	if op3.XferAsset != v.params.StableAssetID || op4.XferAsset != v.params.StableAssetID {
		return nil, group.ShapeErrf("liquidate: premium legs must move the synthetic asset")
	}

	pos := v.store.Get(op0.Sender)
	if pos == nil {
		return nil, group.StateErrf("liquidate: no open position at %s", op0.Sender)
	}
	if !pos.InAuction() {
		return nil, group.StateErrf("liquidate: position is not in auction")
	}
	if op2.AssetReceiver != v.reserve {
		return nil, group.IdentityErrf("liquidate: repayment must reach the reserve")
	}
	if op2.AssetAmount != pos.Debt {
		return nil, group.GuardErrf("liquidate: repayment %d does not equal debt %d", op2.AssetAmount, pos.Debt)
	}
	if op3.AssetAmount != op4.AssetAmount/4 {
		return nil, group.GuardErrf("liquidate: premium split %d/%d violates the 1:4 ratio", op3.AssetAmount, op4.AssetAmount)
	}

	floor := math.LiquidationFloor(pos.Debt, pos.Status.Time, now)
	total := op2.AssetAmount + op3.AssetAmount + op4.AssetAmount
	if total < floor {
		return nil, group.GuardErrf("liquidate: total %d below auction floor %d", total, floor)
	}

	out := &Outcome{
		Tag:        "Liquidate",
		Escrow:     pos.Escrow,
		Owner:      pos.Owner,
		PositionID: pos.PositionID,
		DebtBefore: pos.Debt,
		Deleted:    true,
	}
	v.store.Delete(pos.Escrow)
	return out, nil
}

// appCheck is the validator tail of the three-leg governance group: it counts
// the external opt-in without touching debt.
func (v *PositionValidator) appCheck(g *group.Group, callIndex int) (*Outcome, error) {
	if g.Size() != 3 || callIndex != 2 {
		return nil, group.ShapeErrf("app-check: call must be leg 2 of a 3-leg group")
	}
	op1, op2 := g.At(1), g.At(2)

	if !op2.RekeyTo.IsZero() {
		return nil, group.ShapeErrf("app-check: call must not rekey")
	}
	if op2.Sender != op1.Sender {
		return nil, group.ShapeErrf("app-check: legs 1 and 2 must share the escrow sender")
	}
	if op1.Fee+op2.Fee != 0 {
		return nil, group.ShapeErrf("app-check: escrow-signed fees must be zero")
	}

	pos := v.store.Get(op2.Sender)
	if pos == nil {
		return nil, group.StateErrf("app-check: no open position at %s", op2.Sender)
	}
	if pos.InAuction() {
		return nil, group.StateErrf("app-check: position is in auction")
	}
	if pos.ExtAppOptIns >= cdp.MaxExtAppOptIns {
		return nil, group.GuardErrf("app-check: opt-in budget exhausted (%d used)", pos.ExtAppOptIns)
	}

	pos.ExtAppOptIns++
	pos.Version++

	return &Outcome{
		Tag:        group.TagAppCheck,
		Escrow:     pos.Escrow,
		Owner:      pos.Owner,
		PositionID: pos.PositionID,
		DebtBefore: pos.Debt,
		DebtAfter:  pos.Debt,
	}, nil
}

// clearApp authorizes detaching an external application from an auctioned
// escrow so its slot cannot block the close-out. Read-only transition.
func (v *PositionValidator) clearApp(g *group.Group) (*Outcome, error) {
	if g.Size() != 3 {
		return nil, group.ShapeErrf("clear-app: group size must be 3, got %d", g.Size())
	}
	op0, op1, op2 := g.At(0), g.At(1), g.At(2)

	if !op0.RekeyTo.IsZero() || !op1.RekeyTo.IsZero() {
		return nil, group.ShapeErrf("clear-app: legs 0 and 1 must not rekey")
	}
	if op0.Fee+op1.Fee != 0 {
		return nil, group.ShapeErrf("clear-app: escrow-signed fees must be zero")
	}
	if op1.Kind != group.KindAppCall || op1.AppID == v.params.ValidatorAppID {
		return nil, group.ShapeErrf("clear-app: leg 1 must clear an external application")
	}
	if op1.Sender != op0.Sender {
		return nil, group.ShapeErrf("clear-app: legs 0 and 1 must share the escrow sender")
	}
	if op2.Sender == op0.Sender {
		return nil, group.ShapeErrf("clear-app: leg 2 must come from a different account")
	}
	if op0.Account(1) != op2.Sender {
		return nil, group.ShapeErrf("clear-app: call must reference the leg 2 sender")
	}
	if v.store.Get(op2.Sender) != nil {
		return nil, group.StateErrf("clear-app: referenced account %s has an open position", op2.Sender)
	}

	pos := v.store.Get(op0.Sender)
	if pos == nil {
		return nil, group.StateErrf("clear-app: no open position at %s", op0.Sender)
	}
	if !pos.InAuction() {
		return nil, group.StateErrf("clear-app: position is not in auction")
	}

	return &Outcome{
		Tag:        group.TagClearApp,
		Escrow:     pos.Escrow,
		Owner:      pos.Owner,
		PositionID: pos.PositionID,
		DebtBefore: pos.Debt,
		DebtAfter:  pos.Debt,
	}, nil
}

// changePricing migrates the oracle reference. Gated on the elected manager
// identity and the lifetime migration budget.
func (v *PositionValidator) changePricing(g *group.Group, callIndex int) (*Outcome, error) {
	op := g.At(callIndex)
	if !op.RekeyTo.IsZero() {
		return nil, group.ShapeErrf("change-pricing: call must not rekey")
	}
	if op.ForeignApp(1) != v.params.ManagerAppID {
		return nil, group.IdentityErrf("change-pricing: call must reference the manager module")
	}

	manager, err := v.managers.Lookup(v.params.ManagerAppID)
	if err != nil {
		return nil, group.StateErrf("change-pricing: %v", err)
	}
	if op.Sender != manager {
		return nil, group.IdentityErrf("change-pricing: sender is not the elected manager")
	}
	if v.params.OracleMigrations > cdp.MaxOracleMigrations {
		return nil, group.GuardErrf("change-pricing: migration budget exhausted (%d used)", v.params.OracleMigrations)
	}

	if err := v.params.MigrateOracle(group.Uint64(op.Arg(1))); err != nil {
		return nil, group.GuardErrf("change-pricing: %v", err)
	}

	return &Outcome{Tag: group.TagChangePricing}, nil
}

// checkRefs verifies the oracle and fee module references a tagged call must
// carry alongside the synthetic asset reference.
func (v *PositionValidator) checkRefs(op *group.Operation, feeAppID uint64) error {
	if op.ForeignApp(1) != v.params.PriceOracleAppID {
		return group.IdentityErrf("call must reference the elected oracle, got app %d", op.ForeignApp(1))
	}
	if op.ForeignApp(2) != feeAppID {
		return group.IdentityErrf("call must reference fee module %d, got app %d", feeAppID, op.ForeignApp(2))
	}
	if op.ForeignAsset(0) != v.params.StableAssetID {
		return group.ShapeErrf("call must reference the synthetic asset")
	}
	return nil
}

// checkCollateralized enforces the 140% floor: debt*7/5 <= collateral value.
func (v *PositionValidator) checkCollateralized(debt, balance, price, decimals uint64) error {
	value, err := math.CollateralValue(balance, price, decimals)
	if err != nil {
		return group.GuardErrf("%v", err)
	}
	required, err := math.MulDiv(debt, 7, 5)
	if err != nil {
		return group.GuardErrf("%v", err)
	}
	if required > value {
		return group.GuardErrf("collateral value %d below 140%% of debt %d", value, debt)
	}
	return nil
}

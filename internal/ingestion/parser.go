package ingestion

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"GardLedger/internal/event"
	"GardLedger/internal/group"
)

// ParseRawEvent converts a RawEvent (JSON bytes + event type string) into a
// typed event.Event. The ingestion shell validates, parses, and converts raw
// messages before sending anything to the deterministic core.
func ParseRawEvent(raw RawEvent, eventType string) (event.Event, error) {
	switch eventType {
	case "GroupSubmission":
		return parseGroupSubmission(raw.Data)
	case "PriceUpdate":
		return parsePriceUpdate(raw.Data)
	case "FeeUpdate":
		return parseFeeUpdate(raw.Data)
	case "ManagerUpdate":
		return parseManagerUpdate(raw.Data)
	default:
		return nil, fmt.Errorf("unknown event type: %s", eventType)
	}
}

// --- JSON wire formats ---
// These structs represent the JSON payloads received from NATS.
// Field names use snake_case to match upstream producers. Addresses are
// hex-encoded 32-byte strings; program arguments are base64.

type operationJSON struct {
	Kind             string   `json:"kind"` // "pay", "axfer", "appl", "keyreg"
	Sender           string   `json:"sender"`
	Fee              uint64   `json:"fee"`
	RekeyTo          string   `json:"rekey_to,omitempty"`
	Receiver         string   `json:"receiver,omitempty"`
	Amount           uint64   `json:"amount,omitempty"`
	CloseRemainderTo string   `json:"close_remainder_to,omitempty"`
	XferAsset        uint64   `json:"xfer_asset,omitempty"`
	AssetAmount      uint64   `json:"asset_amount,omitempty"`
	AssetReceiver    string   `json:"asset_receiver,omitempty"`
	AssetCloseTo     string   `json:"asset_close_to,omitempty"`
	AppID            uint64   `json:"app_id,omitempty"`
	OnCompletion     string   `json:"on_completion,omitempty"` // "noop", "optin", "closeout", "clearstate"
	AppArgs          []string `json:"app_args,omitempty"`
	Accounts         []string `json:"accounts,omitempty"`
	ForeignApps      []uint64 `json:"foreign_apps,omitempty"`
	ForeignAssets    []uint64 `json:"foreign_assets,omitempty"`
}

type escrowAuthJSON struct {
	LegIndex   int      `json:"leg_index"`
	Owner      string   `json:"owner"`
	PositionID uint64   `json:"position_id"`
	Args       []string `json:"args,omitempty"`
}

type reserveAuthJSON struct {
	LegIndex int      `json:"leg_index"`
	Args     []string `json:"args,omitempty"`
}

type groupSubmissionJSON struct {
	SubmissionID string           `json:"submission_id"`
	Operations   []operationJSON  `json:"operations"`
	CallIndex    int              `json:"call_index"`
	Escrow       *escrowAuthJSON  `json:"escrow,omitempty"`
	Reserve      *reserveAuthJSON `json:"reserve,omitempty"`
	LedgerTime   int64            `json:"ledger_time"`
	Sequence     int64            `json:"sequence"`
	TimestampUs  int64            `json:"timestamp_us"`
}

func parseGroupSubmission(data []byte) (*event.GroupSubmission, error) {
	var j groupSubmissionJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse GroupSubmission: %w", err)
	}

	submissionID, err := uuid.Parse(j.SubmissionID)
	if err != nil {
		return nil, fmt.Errorf("parse submission_id: %w", err)
	}
	if len(j.Operations) == 0 {
		return nil, fmt.Errorf("parse GroupSubmission: empty operation group")
	}
	if j.CallIndex < 0 || j.CallIndex >= len(j.Operations) {
		return nil, fmt.Errorf("parse GroupSubmission: call_index %d out of range for %d operations",
			j.CallIndex, len(j.Operations))
	}

	ops := make([]group.Operation, 0, len(j.Operations))
	for i, oj := range j.Operations {
		op, err := parseOperation(oj)
		if err != nil {
			return nil, fmt.Errorf("parse operation %d: %w", i, err)
		}
		ops = append(ops, op)
	}

	sub := &event.GroupSubmission{
		SubmissionID: submissionID,
		Group:        group.Group{Ops: ops},
		CallIndex:    j.CallIndex,
		LedgerTime:   j.LedgerTime,
		Sequence:     j.Sequence,
		Timestamp:    time.UnixMicro(j.TimestampUs),
	}

	if j.Escrow != nil {
		owner, err := group.ParseAddress(j.Escrow.Owner)
		if err != nil {
			return nil, fmt.Errorf("parse escrow owner: %w", err)
		}
		args, err := parseArgs(j.Escrow.Args)
		if err != nil {
			return nil, fmt.Errorf("parse escrow args: %w", err)
		}
		if j.Escrow.LegIndex < 0 || j.Escrow.LegIndex >= len(ops) {
			return nil, fmt.Errorf("parse GroupSubmission: escrow leg_index %d out of range", j.Escrow.LegIndex)
		}
		sub.Escrow = &event.EscrowAuth{
			LegIndex:   j.Escrow.LegIndex,
			Owner:      owner,
			PositionID: j.Escrow.PositionID,
			Args:       args,
		}
	}

	if j.Reserve != nil {
		args, err := parseArgs(j.Reserve.Args)
		if err != nil {
			return nil, fmt.Errorf("parse reserve args: %w", err)
		}
		if j.Reserve.LegIndex < 0 || j.Reserve.LegIndex >= len(ops) {
			return nil, fmt.Errorf("parse GroupSubmission: reserve leg_index %d out of range", j.Reserve.LegIndex)
		}
		sub.Reserve = &event.ReserveAuth{
			LegIndex: j.Reserve.LegIndex,
			Args:     args,
		}
	}

	return sub, nil
}

func parseOperation(j operationJSON) (group.Operation, error) {
	var op group.Operation

	kind, err := parseKind(j.Kind)
	if err != nil {
		return op, err
	}
	sender, err := group.ParseAddress(j.Sender)
	if err != nil {
		return op, fmt.Errorf("parse sender: %w", err)
	}

	op.Kind = kind
	op.Sender = sender
	op.Fee = j.Fee

	if op.RekeyTo, err = parseOptionalAddress(j.RekeyTo); err != nil {
		return op, fmt.Errorf("parse rekey_to: %w", err)
	}
	if op.Receiver, err = parseOptionalAddress(j.Receiver); err != nil {
		return op, fmt.Errorf("parse receiver: %w", err)
	}
	if op.CloseRemainderTo, err = parseOptionalAddress(j.CloseRemainderTo); err != nil {
		return op, fmt.Errorf("parse close_remainder_to: %w", err)
	}
	if op.AssetReceiver, err = parseOptionalAddress(j.AssetReceiver); err != nil {
		return op, fmt.Errorf("parse asset_receiver: %w", err)
	}
	if op.AssetCloseTo, err = parseOptionalAddress(j.AssetCloseTo); err != nil {
		return op, fmt.Errorf("parse asset_close_to: %w", err)
	}

	op.Amount = j.Amount
	op.XferAsset = j.XferAsset
	op.AssetAmount = j.AssetAmount
	op.AppID = j.AppID
	op.ForeignApps = j.ForeignApps
	op.ForeignAssets = j.ForeignAssets

	if op.OnCompletion, err = parseOnCompletion(j.OnCompletion); err != nil {
		return op, err
	}
	if op.AppArgs, err = parseArgs(j.AppArgs); err != nil {
		return op, fmt.Errorf("parse app_args: %w", err)
	}
	for i, acct := range j.Accounts {
		addr, err := group.ParseAddress(acct)
		if err != nil {
			return op, fmt.Errorf("parse account %d: %w", i, err)
		}
		op.Accounts = append(op.Accounts, addr)
	}

	return op, nil
}

func parseKind(s string) (group.Kind, error) {
	switch s {
	case "pay":
		return group.KindPayment, nil
	case "axfer":
		return group.KindAssetTransfer, nil
	case "appl":
		return group.KindAppCall, nil
	case "keyreg":
		return group.KindKeyRegistration, nil
	default:
		return 0, fmt.Errorf("unknown operation kind: %q", s)
	}
}

func parseOnCompletion(s string) (group.OnCompletion, error) {
	switch s {
	case "", "noop":
		return group.OnCompletionNoOp, nil
	case "optin":
		return group.OnCompletionOptIn, nil
	case "closeout":
		return group.OnCompletionCloseOut, nil
	case "clearstate":
		return group.OnCompletionClearState, nil
	default:
		return 0, fmt.Errorf("unknown on_completion: %q", s)
	}
}

func parseOptionalAddress(s string) (group.Address, error) {
	if s == "" {
		return group.ZeroAddress, nil
	}
	return group.ParseAddress(s)
}

func parseArgs(encoded []string) ([][]byte, error) {
	if len(encoded) == 0 {
		return nil, nil
	}
	args := make([][]byte, 0, len(encoded))
	for i, s := range encoded {
		raw, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return nil, fmt.Errorf("arg %d: %w", i, err)
		}
		args = append(args, raw)
	}
	return args, nil
}

type priceUpdateJSON struct {
	OracleAppID    uint64 `json:"oracle_app_id"`
	Price          uint64 `json:"price"`
	Decimals       uint64 `json:"decimals"`
	PriceSequence  int64  `json:"price_sequence"`
	PriceTimestamp int64  `json:"price_timestamp"`
}

func parsePriceUpdate(data []byte) (*event.PriceUpdate, error) {
	var j priceUpdateJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse PriceUpdate: %w", err)
	}
	if j.OracleAppID == 0 {
		return nil, fmt.Errorf("parse PriceUpdate: missing oracle_app_id")
	}
	if j.Price == 0 {
		return nil, fmt.Errorf("parse PriceUpdate: zero price")
	}
	return &event.PriceUpdate{
		OracleAppID:    j.OracleAppID,
		Price:          j.Price,
		Decimals:       j.Decimals,
		PriceSequence:  j.PriceSequence,
		PriceTimestamp: j.PriceTimestamp,
	}, nil
}

type feeUpdateJSON struct {
	FeeAppID    uint64 `json:"fee_app_id"`
	FeePct      uint64 `json:"fee_pct"`
	Sequence    int64  `json:"sequence"`
	TimestampUs int64  `json:"timestamp_us"`
}

func parseFeeUpdate(data []byte) (*event.FeeUpdate, error) {
	var j feeUpdateJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse FeeUpdate: %w", err)
	}
	if j.FeeAppID == 0 {
		return nil, fmt.Errorf("parse FeeUpdate: missing fee_app_id")
	}
	return &event.FeeUpdate{
		FeeAppID:  j.FeeAppID,
		FeePct:    j.FeePct,
		Sequence:  j.Sequence,
		Timestamp: j.TimestampUs,
	}, nil
}

type managerUpdateJSON struct {
	ManagerAppID uint64 `json:"manager_app_id"`
	Manager      string `json:"manager"`
	Sequence     int64  `json:"sequence"`
	TimestampUs  int64  `json:"timestamp_us"`
}

func parseManagerUpdate(data []byte) (*event.ManagerUpdate, error) {
	var j managerUpdateJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse ManagerUpdate: %w", err)
	}
	if j.ManagerAppID == 0 {
		return nil, fmt.Errorf("parse ManagerUpdate: missing manager_app_id")
	}
	manager, err := group.ParseAddress(j.Manager)
	if err != nil {
		return nil, fmt.Errorf("parse manager address: %w", err)
	}
	return &event.ManagerUpdate{
		ManagerAppID: j.ManagerAppID,
		Manager:      manager,
		Sequence:     j.Sequence,
		Timestamp:    j.TimestampUs,
	}, nil
}

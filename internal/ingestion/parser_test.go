package ingestion_test

import (
	"encoding/base64"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"GardLedger/internal/event"
	"GardLedger/internal/ingestion"
)

func rawFromJSON(t *testing.T, v interface{}) ingestion.RawEvent {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return ingestion.RawEvent{
		Subject:   "test",
		Data:      data,
		Timestamp: time.Now(),
		AckFunc:   func() {},
		NakFunc:   func() {},
	}
}

// hexAddr builds a 32-byte hex address from a repeated byte pattern.
func hexAddr(b string) string {
	return strings.Repeat(b, 32)
}

func b64(s string) string {
	return base64.StdEncoding.EncodeToString([]byte(s))
}

func TestParseGroupSubmission(t *testing.T) {
	owner := hexAddr("aa")
	escrow := hexAddr("bb")
	reserve := hexAddr("cc")

	payload := map[string]interface{}{
		"submission_id": "550e8400-e29b-41d4-a716-446655440000",
		"call_index":    1,
		"ledger_time":   int64(1700000000),
		"sequence":      int64(42),
		"timestamp_us":  int64(1700000000000000),
		"operations": []map[string]interface{}{
			{
				"kind":     "pay",
				"sender":   owner,
				"receiver": escrow,
				"amount":   uint64(4_333_316),
				"fee":      uint64(1000),
			},
			{
				"kind":          "appl",
				"sender":        owner,
				"app_id":        uint64(500),
				"on_completion": "noop",
				"app_args":      []string{b64("NewPosition")},
				"accounts":      []string{escrow},
				"foreign_apps":  []uint64{600, 700},
			},
			{
				"kind":          "axfer",
				"sender":        reserve,
				"xfer_asset":    uint64(2),
				"asset_amount":  uint64(1_625_671),
				"asset_receiver": owner,
			},
		},
		"escrow": map[string]interface{}{
			"leg_index":   1,
			"owner":       owner,
			"position_id": uint64(7),
			"args":        []string{b64("NewPosition")},
		},
		"reserve": map[string]interface{}{
			"leg_index": 2,
			"args":      []string{b64("NewPosition")},
		},
	}

	raw := rawFromJSON(t, payload)
	evt, err := ingestion.ParseRawEvent(raw, "GroupSubmission")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	sub, ok := evt.(*event.GroupSubmission)
	if !ok {
		t.Fatalf("expected *event.GroupSubmission, got %T", evt)
	}

	if sub.Group.Size() != 3 {
		t.Fatalf("group size: got %d, want 3", sub.Group.Size())
	}
	if sub.CallIndex != 1 {
		t.Errorf("call_index: got %d, want 1", sub.CallIndex)
	}
	if sub.LedgerTime != 1700000000 {
		t.Errorf("ledger_time: got %d, want 1700000000", sub.LedgerTime)
	}
	if sub.Sequence != 42 {
		t.Errorf("sequence: got %d, want 42", sub.Sequence)
	}

	pay := sub.Group.At(0)
	if pay.Amount != 4_333_316 {
		t.Errorf("payment amount: got %d, want 4_333_316", pay.Amount)
	}
	if pay.Receiver.String() != escrow {
		t.Errorf("payment receiver: got %s, want %s", pay.Receiver, escrow)
	}

	call := sub.Group.At(1)
	if call.AppID != 500 {
		t.Errorf("app_id: got %d, want 500", call.AppID)
	}
	if string(call.Arg(0)) != "NewPosition" {
		t.Errorf("arg 0: got %q, want NewPosition", call.Arg(0))
	}
	// Index 0 of the app array is the called app itself.
	if call.ForeignApp(0) != 500 {
		t.Errorf("foreign app 0: got %d, want 500", call.ForeignApp(0))
	}
	if call.ForeignApp(1) != 600 {
		t.Errorf("foreign app 1: got %d, want 600", call.ForeignApp(1))
	}
	// Account 0 is the sender.
	if call.Account(0).String() != owner {
		t.Errorf("account 0: got %s, want %s", call.Account(0), owner)
	}
	if call.Account(1).String() != escrow {
		t.Errorf("account 1: got %s, want %s", call.Account(1), escrow)
	}

	xfer := sub.Group.At(2)
	if xfer.AssetAmount != 1_625_671 {
		t.Errorf("asset amount: got %d, want 1_625_671", xfer.AssetAmount)
	}

	if sub.Escrow == nil {
		t.Fatal("escrow auth missing")
	}
	if sub.Escrow.Owner.String() != owner {
		t.Errorf("escrow owner: got %s, want %s", sub.Escrow.Owner, owner)
	}
	if sub.Escrow.PositionID != 7 {
		t.Errorf("position id: got %d, want 7", sub.Escrow.PositionID)
	}
	if sub.Reserve == nil || sub.Reserve.LegIndex != 2 {
		t.Errorf("reserve auth: got %+v, want leg 2", sub.Reserve)
	}
	if sub.EventType() != event.EventTypeGroupSubmission {
		t.Errorf("event type: got %v, want GroupSubmission", sub.EventType())
	}
}

func TestParseGroupSubmission_CallIndexOutOfRange(t *testing.T) {
	payload := map[string]interface{}{
		"submission_id": "550e8400-e29b-41d4-a716-446655440000",
		"call_index":    3,
		"operations": []map[string]interface{}{
			{"kind": "pay", "sender": hexAddr("aa")},
		},
	}

	raw := rawFromJSON(t, payload)
	if _, err := ingestion.ParseRawEvent(raw, "GroupSubmission"); err == nil {
		t.Fatal("expected error for out-of-range call_index")
	}
}

func TestParseGroupSubmission_BadAddress(t *testing.T) {
	payload := map[string]interface{}{
		"submission_id": "550e8400-e29b-41d4-a716-446655440000",
		"call_index":    0,
		"operations": []map[string]interface{}{
			{"kind": "appl", "sender": "not-hex"},
		},
	}

	raw := rawFromJSON(t, payload)
	if _, err := ingestion.ParseRawEvent(raw, "GroupSubmission"); err == nil {
		t.Fatal("expected error for malformed sender address")
	}
}

func TestParseGroupSubmission_UnknownKind(t *testing.T) {
	payload := map[string]interface{}{
		"submission_id": "550e8400-e29b-41d4-a716-446655440000",
		"call_index":    0,
		"operations": []map[string]interface{}{
			{"kind": "stake", "sender": hexAddr("aa")},
		},
	}

	raw := rawFromJSON(t, payload)
	if _, err := ingestion.ParseRawEvent(raw, "GroupSubmission"); err == nil {
		t.Fatal("expected error for unknown operation kind")
	}
}

func TestParsePriceUpdate(t *testing.T) {
	payload := map[string]interface{}{
		"oracle_app_id":   uint64(600),
		"price":           uint64(1_595_100),
		"decimals":        uint64(6),
		"price_sequence":  int64(100),
		"price_timestamp": int64(1700000000),
	}

	raw := rawFromJSON(t, payload)
	evt, err := ingestion.ParseRawEvent(raw, "PriceUpdate")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	pu, ok := evt.(*event.PriceUpdate)
	if !ok {
		t.Fatalf("expected *event.PriceUpdate, got %T", evt)
	}

	if pu.Price != 1_595_100 {
		t.Errorf("price: got %d, want 1_595_100", pu.Price)
	}
	if pu.Decimals != 6 {
		t.Errorf("decimals: got %d, want 6", pu.Decimals)
	}
	if pu.PriceSequence != 100 {
		t.Errorf("price_sequence: got %d, want 100", pu.PriceSequence)
	}
	if pu.IdempotencyKey() != "oracle:600:price:100" {
		t.Errorf("idempotency key: got %s", pu.IdempotencyKey())
	}
}

func TestParsePriceUpdate_ZeroPrice_Fails(t *testing.T) {
	payload := map[string]interface{}{
		"oracle_app_id":  uint64(600),
		"price":          uint64(0),
		"price_sequence": int64(1),
	}

	raw := rawFromJSON(t, payload)
	if _, err := ingestion.ParseRawEvent(raw, "PriceUpdate"); err == nil {
		t.Fatal("expected error for zero price")
	}
}

func TestParseFeeUpdate(t *testing.T) {
	payload := map[string]interface{}{
		"fee_app_id":   uint64(700),
		"fee_pct":      uint64(200), // 2.00%
		"sequence":     int64(5),
		"timestamp_us": int64(1700000000),
	}

	raw := rawFromJSON(t, payload)
	evt, err := ingestion.ParseRawEvent(raw, "FeeUpdate")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	fu, ok := evt.(*event.FeeUpdate)
	if !ok {
		t.Fatalf("expected *event.FeeUpdate, got %T", evt)
	}

	if fu.FeePct != 200 {
		t.Errorf("fee_pct: got %d, want 200", fu.FeePct)
	}
	if fu.SourceSequence() != 5 {
		t.Errorf("sequence: got %d, want 5", fu.SourceSequence())
	}
}

func TestParseManagerUpdate(t *testing.T) {
	manager := hexAddr("dd")
	payload := map[string]interface{}{
		"manager_app_id": uint64(800),
		"manager":        manager,
		"sequence":       int64(3),
		"timestamp_us":   int64(1700000000),
	}

	raw := rawFromJSON(t, payload)
	evt, err := ingestion.ParseRawEvent(raw, "ManagerUpdate")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	mu, ok := evt.(*event.ManagerUpdate)
	if !ok {
		t.Fatalf("expected *event.ManagerUpdate, got %T", evt)
	}

	if mu.Manager.String() != manager {
		t.Errorf("manager: got %s, want %s", mu.Manager, manager)
	}
	if mu.ManagerAppID != 800 {
		t.Errorf("manager_app_id: got %d, want 800", mu.ManagerAppID)
	}
}

func TestParseUnknownEventType_Fails(t *testing.T) {
	raw := ingestion.RawEvent{Data: []byte(`{}`)}
	_, err := ingestion.ParseRawEvent(raw, "NonExistentType")
	if err == nil {
		t.Fatal("expected error for unknown event type")
	}
}

func TestParseInvalidJSON_Fails(t *testing.T) {
	raw := ingestion.RawEvent{Data: []byte(`{invalid json`)}
	_, err := ingestion.ParseRawEvent(raw, "GroupSubmission")
	if err == nil {
		t.Fatal("expected error for invalid JSON")
	}
}

func TestParseInvalidUUID_Fails(t *testing.T) {
	payload := map[string]interface{}{
		"submission_id": "not-a-uuid",
		"call_index":    0,
		"operations": []map[string]interface{}{
			{"kind": "pay", "sender": hexAddr("aa")},
		},
	}

	raw := rawFromJSON(t, payload)
	_, err := ingestion.ParseRawEvent(raw, "GroupSubmission")
	if err == nil {
		t.Fatal("expected error for invalid UUID")
	}
}

package event_test

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"GardLedger/internal/event"
	"GardLedger/internal/group"
)

func TestPayloadRoundTrip_GroupSubmission(t *testing.T) {
	var owner group.Address
	owner[0] = 0xaa

	sub := &event.GroupSubmission{
		SubmissionID: uuid.New(),
		CallIndex:    1,
		Group: group.Group{Ops: []group.Operation{
			{Kind: group.KindPayment, Sender: owner, Amount: 4_333_316},
			{
				Kind:    group.KindAppCall,
				Sender:  owner,
				AppID:   500,
				AppArgs: [][]byte{[]byte(group.TagNewPosition), group.PutUint64(7)},
			},
		}},
		Escrow:     &event.EscrowAuth{LegIndex: 1, Owner: owner, PositionID: 7},
		Reserve:    &event.ReserveAuth{LegIndex: 2, Args: [][]byte{group.PutUint64(1)}},
		LedgerTime: 1_700_000_000,
		Sequence:   42,
		Timestamp:  time.Unix(1_700_000_000, 0).UTC(),
	}

	data, err := event.MarshalPayload(sub)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	got, err := event.UnmarshalPayload(event.EventTypeGroupSubmission, data)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	decoded, ok := got.(*event.GroupSubmission)
	if !ok {
		t.Fatalf("decoded type: %T", got)
	}
	if decoded.SubmissionID != sub.SubmissionID {
		t.Error("submission id lost")
	}
	if decoded.Group.Size() != 2 || decoded.Group.At(0).Amount != 4_333_316 {
		t.Errorf("group lost: %+v", decoded.Group)
	}
	if string(decoded.Group.At(1).Arg(0)) != group.TagNewPosition {
		t.Error("app args lost")
	}
	if decoded.Escrow == nil || decoded.Escrow.PositionID != 7 || decoded.Escrow.Owner != owner {
		t.Errorf("escrow auth lost: %+v", decoded.Escrow)
	}
	if decoded.Reserve == nil || decoded.Reserve.LegIndex != 2 {
		t.Errorf("reserve auth lost: %+v", decoded.Reserve)
	}
	if !decoded.Timestamp.Equal(sub.Timestamp) {
		t.Error("timestamp lost")
	}
	if decoded.IdempotencyKey() != sub.IdempotencyKey() {
		t.Error("idempotency key changed")
	}
}

func TestPayloadRoundTrip_FeedUpdates(t *testing.T) {
	events := []event.Event{
		&event.PriceUpdate{OracleAppID: 600, Price: 1_595_100, Decimals: 6, PriceSequence: 100, PriceTimestamp: 1_700_000_000},
		&event.FeeUpdate{FeeAppID: 700, FeePct: 20, Sequence: 5, Timestamp: 1_700_000_000},
		&event.ManagerUpdate{ManagerAppID: 800, Sequence: 3, Timestamp: 1_700_000_000},
	}

	for _, evt := range events {
		data, err := event.MarshalPayload(evt)
		if err != nil {
			t.Fatalf("%s marshal: %v", evt.EventType(), err)
		}
		got, err := event.UnmarshalPayload(evt.EventType(), data)
		if err != nil {
			t.Fatalf("%s unmarshal: %v", evt.EventType(), err)
		}
		if got.IdempotencyKey() != evt.IdempotencyKey() {
			t.Errorf("%s: idempotency key %q != %q", evt.EventType(), got.IdempotencyKey(), evt.IdempotencyKey())
		}
		if got.SourceSequence() != evt.SourceSequence() {
			t.Errorf("%s: source sequence changed", evt.EventType())
		}
	}
}

func TestUnmarshalPayload_UnknownType(t *testing.T) {
	if _, err := event.UnmarshalPayload(event.EventTypeUnknown, []byte(`{}`)); err == nil {
		t.Fatal("expected error for unknown event type")
	}
}

func TestEventTypeFromString(t *testing.T) {
	for _, et := range []event.EventType{
		event.EventTypeGroupSubmission,
		event.EventTypePriceUpdate,
		event.EventTypeFeeUpdate,
		event.EventTypeManagerUpdate,
	} {
		if got := event.EventTypeFromString(et.String()); got != et {
			t.Errorf("round trip %s: got %v", et, got)
		}
	}
	if event.EventTypeFromString("bogus") != event.EventTypeUnknown {
		t.Error("unknown name did not map to Unknown")
	}
}

package group_test

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"testing"

	"GardLedger/internal/group"
)

func TestUint64(t *testing.T) {
	cases := []struct {
		name string
		in   []byte
		want uint64
	}{
		{"nil", nil, 0},
		{"empty", []byte{}, 0},
		{"single byte", []byte{0x2a}, 42},
		{"two bytes", []byte{0x01, 0x00}, 256},
		{"full width", []byte{0, 0, 0, 0, 0, 0x18, 0x57, 0x1c}, 1_595_164},
		{"max", bytes.Repeat([]byte{0xff}, 8), ^uint64(0)},
		// Longer slices decode from the trailing 8 bytes.
		{"oversized", append([]byte{0xde, 0xad}, group.PutUint64(77)...), 77},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := group.Uint64(tc.in); got != tc.want {
				t.Errorf("Uint64(%x): got %d, want %d", tc.in, got, tc.want)
			}
		})
	}
}

func TestPutUint64_RoundTrip(t *testing.T) {
	for _, v := range []uint64{0, 1, 255, 256, 1_595_100, ^uint64(0)} {
		buf := group.PutUint64(v)
		if len(buf) != 8 {
			t.Fatalf("PutUint64(%d): got %d bytes, want 8", v, len(buf))
		}
		if got := group.Uint64(buf); got != v {
			t.Errorf("round trip %d: got %d", v, got)
		}
	}
}

func TestParseAddress(t *testing.T) {
	hexAddr := strings.Repeat("ab", 32)
	addr, err := group.ParseAddress(hexAddr)
	if err != nil {
		t.Fatalf("ParseAddress: %v", err)
	}
	if addr.String() != hexAddr {
		t.Errorf("round trip: got %s, want %s", addr, hexAddr)
	}
	if addr.IsZero() {
		t.Error("non-zero address reported as zero")
	}

	if !group.ZeroAddress.IsZero() {
		t.Error("zero address not reported as zero")
	}

	if _, err := group.ParseAddress("zzzz"); err == nil {
		t.Error("expected error for non-hex input")
	}
	if _, err := group.ParseAddress("abcd"); err == nil {
		t.Error("expected error for short input")
	}
	if _, err := group.ParseAddress(strings.Repeat("ab", 33)); err == nil {
		t.Error("expected error for long input")
	}
}

func TestOperationArrayAddressing(t *testing.T) {
	var sender, acct1 group.Address
	sender[0] = 0x01
	acct1[0] = 0x02

	op := group.Operation{
		Kind:          group.KindAppCall,
		Sender:        sender,
		AppID:         500,
		AppArgs:       [][]byte{[]byte("NewPosition"), group.PutUint64(9)},
		Accounts:      []group.Address{acct1},
		ForeignApps:   []uint64{600, 700},
		ForeignAssets: []uint64{2},
	}

	// Index 0 of the account array is the sender.
	if op.Account(0) != sender {
		t.Error("Account(0) is not the sender")
	}
	if op.Account(1) != acct1 {
		t.Error("Account(1) mismatch")
	}
	if !op.Account(2).IsZero() {
		t.Error("out-of-range account should be zero")
	}

	// Index 0 of the app array is the called app itself.
	if op.ForeignApp(0) != 500 {
		t.Errorf("ForeignApp(0): got %d, want 500", op.ForeignApp(0))
	}
	if op.ForeignApp(1) != 600 || op.ForeignApp(2) != 700 {
		t.Errorf("ForeignApp(1..2): got %d, %d", op.ForeignApp(1), op.ForeignApp(2))
	}
	if op.ForeignApp(3) != 0 {
		t.Error("out-of-range foreign app should be 0")
	}

	if op.ForeignAsset(0) != 2 {
		t.Errorf("ForeignAsset(0): got %d, want 2", op.ForeignAsset(0))
	}
	if op.ForeignAsset(1) != 0 {
		t.Error("out-of-range foreign asset should be 0")
	}

	if string(op.Arg(0)) != "NewPosition" {
		t.Errorf("Arg(0): got %q", op.Arg(0))
	}
	if group.Uint64(op.Arg(1)) != 9 {
		t.Errorf("Arg(1): got %d, want 9", group.Uint64(op.Arg(1)))
	}
	if op.Arg(2) != nil {
		t.Error("out-of-range arg should be nil")
	}
}

func TestGroupAt_OutOfRange(t *testing.T) {
	g := group.Group{Ops: []group.Operation{{Kind: group.KindPayment, Amount: 5}}}

	if g.Size() != 1 {
		t.Fatalf("size: got %d, want 1", g.Size())
	}
	if g.At(0).Amount != 5 {
		t.Error("At(0) did not return the stored operation")
	}

	// Out-of-range access yields a zeroed operation, never a panic.
	for _, i := range []int{-1, 1, 100} {
		op := g.At(i)
		if op.Amount != 0 || op.Kind != group.KindPayment && op.Kind != 0 {
			t.Errorf("At(%d): expected zeroed operation, got %+v", i, op)
		}
	}
}

func TestRejectKind(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{group.ShapeErrf("leg %d missing", 2), "shape_mismatch"},
		{group.GuardErrf("fee %d below %d", 10, 20), "guard_violation"},
		{group.StateErrf("position exists"), "state_inconsistency"},
		{group.IdentityErrf("escrow mismatch"), "identity_mismatch"},
		{errors.New("boom"), "internal"},
		{fmt.Errorf("wrapped: %w", group.ErrGuardViolation), "guard_violation"},
	}

	for _, tc := range cases {
		if got := group.RejectKind(tc.err); got != tc.want {
			t.Errorf("RejectKind(%v): got %s, want %s", tc.err, got, tc.want)
		}
	}
}

func TestErrfWrapping(t *testing.T) {
	err := group.ShapeErrf("group size %d", 7)
	if !errors.Is(err, group.ErrShapeMismatch) {
		t.Error("ShapeErrf does not wrap ErrShapeMismatch")
	}
	if !strings.Contains(err.Error(), "group size 7") {
		t.Errorf("formatted detail missing: %v", err)
	}
}

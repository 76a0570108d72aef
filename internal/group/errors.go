package group

import (
	"errors"
	"fmt"
)

// The four rejection kinds. Every failed evaluation wraps exactly one of these;
// the whole group is rejected atomically and the caller must correct and
// resubmit. No finer-grained diagnostic contract is offered.
var (
	// ErrShapeMismatch: group size, leg ordering, or field values do not match
	// the canonical template for the invoked tag.
	ErrShapeMismatch = errors.New("shape mismatch")

	// ErrGuardViolation: a numeric or timing guard failed (collateral, fee,
	// window, opt-in limit).
	ErrGuardViolation = errors.New("guard violation")

	// ErrStateInconsistency: durable fields are incompatible with the
	// requested transition.
	ErrStateInconsistency = errors.New("state inconsistency")

	// ErrIdentityMismatch: a referenced escrow/reserve/application identity
	// does not match the recomputed one.
	ErrIdentityMismatch = errors.New("identity mismatch")
)

func ShapeErrf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrShapeMismatch, fmt.Sprintf(format, args...))
}

func GuardErrf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrGuardViolation, fmt.Sprintf(format, args...))
}

func StateErrf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrStateInconsistency, fmt.Sprintf(format, args...))
}

func IdentityErrf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrIdentityMismatch, fmt.Sprintf(format, args...))
}

// RejectKind maps a rejection error to its metrics label.
func RejectKind(err error) string {
	switch {
	case errors.Is(err, ErrShapeMismatch):
		return "shape_mismatch"
	case errors.Is(err, ErrGuardViolation):
		return "guard_violation"
	case errors.Is(err, ErrStateInconsistency):
		return "state_inconsistency"
	case errors.Is(err, ErrIdentityMismatch):
		return "identity_mismatch"
	default:
		return "internal"
	}
}

func errAddressLength(n int) error {
	return fmt.Errorf("address must be 32 bytes, got %d", n)
}

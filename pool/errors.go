package pool

import (
	"errors"
	"fmt"
)

var (
	// ErrAllocationFailed is returned when storage could not be grown. The
	// pool is left exactly as it was before the call.
	ErrAllocationFailed = errors.New("pool: allocation failed")
	// ErrSlotOutOfRange is returned when releasing or addressing a slot
	// outside [0, Live()).
	ErrSlotOutOfRange = errors.New("pool: slot out of range")
	// ErrSchemaMismatch is returned when copying between pools whose slot
	// layouts differ.
	ErrSchemaMismatch = errors.New("pool: schema mismatch")
	// ErrInvariantDrift is returned by Verify when padding, contiguity or
	// occupant bookkeeping is inconsistent.
	ErrInvariantDrift = errors.New("pool: invariant drift")
	// ErrClosed is returned when using a closed pool.
	ErrClosed = errors.New("pool: closed")
)

// SlotError describes a contract violation on a specific slot.
type SlotError struct {
	Group int
	Slot  int
	Live  int
	cause error
}

// NewSlotError returns a SlotError wrapping ErrSlotOutOfRange.
func NewSlotError(group, slot, live int) *SlotError {
	return &SlotError{Group: group, Slot: slot, Live: live, cause: ErrSlotOutOfRange}
}

func (e *SlotError) Error() string {
	return fmt.Sprintf("group %d: slot %d outside live range [0, %d): %v", e.Group, e.Slot, e.Live, e.cause)
}

func (e *SlotError) Unwrap() error { return e.cause }

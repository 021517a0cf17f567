package soamem

import (
	"errors"
	"fmt"

	"github.com/hupe1980/soamem/pool"
	"github.com/hupe1980/soamem/slab"
)

// Errors shared with the pool and slab layers, re-exported so callers only
// need this package for errors.Is checks.
var (
	// ErrAllocationFailed is returned when slab storage could not be grown.
	// Nothing changed when it is returned.
	ErrAllocationFailed = pool.ErrAllocationFailed
	// ErrSlotOutOfRange is returned when a slot is outside a pool's live range.
	ErrSlotOutOfRange = pool.ErrSlotOutOfRange
	// ErrSchemaMismatch is returned when migrating between managers whose
	// slot layouts differ.
	ErrSchemaMismatch = pool.ErrSchemaMismatch
	// ErrInvariantDrift is returned by Verify (and panicked with when debug
	// checks are on) when bookkeeping is inconsistent.
	ErrInvariantDrift = pool.ErrInvariantDrift
	// ErrClosed is returned when using a closed manager.
	ErrClosed = pool.ErrClosed
	// ErrInvalidLaneWidth is returned by New when the lane width is not a
	// power of two.
	ErrInvalidLaneWidth = slab.ErrInvalidLaneWidth
)

var (
	// ErrInvalidGroup is returned for negative group keys.
	ErrInvalidGroup = errors.New("soamem: invalid group")
	// ErrInvalidHandle is returned for nil, destroyed or anchor handles.
	ErrInvalidHandle = errors.New("soamem: invalid handle")
	// ErrForeignHandle is returned when a handle belongs to another manager.
	ErrForeignHandle = errors.New("soamem: handle belongs to another manager")
	// ErrGroupMismatch is returned when the caller's idea of an object's
	// group disagrees with the handle.
	ErrGroupMismatch = errors.New("soamem: group mismatch")
	// ErrNoTwin is returned by MigrateToTwin when no twin is linked.
	ErrNoTwin = errors.New("soamem: no twin manager")
)

// SlotError describes a contract violation on a specific slot.
type SlotError = pool.SlotError

// GroupError reports a group argument that does not match the object.
//
// The sentinel (ErrInvalidGroup or ErrGroupMismatch) is available via
// errors.Is.
type GroupError struct {
	Group int
	Want  int
	cause error
}

func (e *GroupError) Error() string {
	if e.Want < 0 {
		return fmt.Sprintf("%v: %d", e.cause, e.Group)
	}
	return fmt.Sprintf("%v: object lives in group %d, not %d", e.cause, e.Want, e.Group)
}

func (e *GroupError) Unwrap() error { return e.cause }

package pool

import "unsafe"

// DiffList holds the byte offsets a listener computed in BuildDiffList. The
// pool hands the same list back in ApplyRebase; its layout is private to the
// listener.
type DiffList []uintptr

// Move records that the occupant of slot From now lives at slot To.
type Move struct {
	From int
	To   int
}

// RebaseListener is implemented by anything that caches pointers into slab
// memory across structural pool operations.
type RebaseListener interface {
	// BuildDiffList is called before a relocation with the current base
	// address of every slab (indexed like the pool schema). It returns the
	// offset of every cached pointer relative to the base of its slab.
	BuildDiffList(group int, bases []uintptr) DiffList

	// ApplyRebase is called after the new buffers are filled and padded, with
	// their base pointers and the list BuildDiffList returned. The old
	// buffers are still allocated during the call.
	ApplyRebase(group int, bases []unsafe.Pointer, diffs DiffList)

	// PerformCleanup is called after a slot was released. released is the
	// slot whose occupant left; moves lists slots relocated by swap-with-last
	// compaction (empty when the released slot was the last live one).
	PerformCleanup(group int, released int, moves []Move)
}

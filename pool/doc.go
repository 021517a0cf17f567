// Package pool implements the slab pool: a set of packed slabs sharing one
// slot index space, with lane-aligned growth and swap-with-last compaction.
//
// # Slots
//
// Live slots always occupy [0, Live()). RequestSlot hands out index Live();
// ReleaseSlot moves the last live slot into the released position (across
// every slab and the occupant column) and tells the moved occupant its new
// index. There is no free list and no separate defragmentation pass.
//
// # Growth
//
// When every slot is in use the pool grows all slabs together: each slab
// prepares a larger lane-aligned buffer, and only when every preparation
// succeeded are the new buffers committed. On failure nothing changes and
// the error wraps ErrAllocationFailed.
//
// # Rebase Listener Protocol
//
// Components that cache raw pointers into slab memory implement
// RebaseListener and register with AddListener. Around every relocation the
// pool runs:
//
//  1. BuildDiffList with the old slab base addresses (before anything moves)
//  2. ApplyRebase with the new base pointers and the listener's own diffs
//     (after the new buffers are filled and padded)
//  3. the old buffers are retired only after every listener returned
//
// After every release the pool calls PerformCleanup with the released slot
// and the swap-with-last moves, so listeners can drop or patch pointers.
//
// # Concurrency
//
// A pool is single-writer. Reads of slab data may run concurrently with each
// other but never with RequestSlot, ReleaseSlot, Trim or Close.
package pool

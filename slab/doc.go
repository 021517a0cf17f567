// Package slab implements packed, lane-interleaved float32 storage for one
// per-object attribute.
//
// # Layout
//
// A slab stores Components float32 values per slot. Slots are grouped into
// lane groups of LaneWidth slots, and inside a lane group the values are
// interleaved by component:
//
//	lane group 0                          lane group 1
//	+-------------+-------------+-----    +-------------+-----
//	| x0 x1 x2 x3 | y0 y1 y2 y3 | z...    | x4 x5 x6 x7 | ...
//	+-------------+-------------+-----    +-------------+-----
//
// One component of one lane group is LaneWidth contiguous floats, so a SIMD
// kernel loads it with a single vector instruction.
//
// # Padding
//
// Capacity is always a whole number of lane groups. Every slot at or beyond
// the live count holds the attribute's dummy record (identity orientation,
// unit scale, zero radius) so kernels can process full lanes without a
// validity branch.
//
// # Growth
//
// Grow and Shrink never resize in place. They allocate a fresh buffer, copy
// whole lane groups, restore the dummy tail and hand back the previous buffer.
// The caller retires that buffer once every cached pointer has been rebased.
package slab

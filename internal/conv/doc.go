// Package conv converts between int indexes (groups, slots) and the uint32
// keys of roaring bitmaps with bounds checking.
package conv

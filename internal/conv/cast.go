package conv

import (
	"errors"
	"fmt"
	"math"
)

// ErrOverflow is returned when a value does not fit the target type.
var ErrOverflow = errors.New("conv: integer overflow")

// Key converts a non-negative index (a group or a slot) to a bitmap key.
func Key(v int) (uint32, error) {
	if v < 0 {
		return 0, fmt.Errorf("%w: %d cannot be a key (negative)", ErrOverflow, v)
	}
	// On 64-bit systems, int can exceed uint32 max; on 32-bit, this is always false
	if uint64(v) > math.MaxUint32 {
		return 0, fmt.Errorf("%w: %d cannot be a key (too large)", ErrOverflow, v)
	}
	return uint32(v), nil
}

// Index converts a bitmap key back to an index.
func Index(k uint32) int {
	return int(k)
}

// Indices converts bitmap keys to indexes, preserving order.
func Indices(keys []uint32) []int {
	out := make([]int, len(keys))
	for i, k := range keys {
		out[i] = Index(k)
	}
	return out
}

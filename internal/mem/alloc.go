package mem

import (
	"errors"
	"unsafe"
)

// Alignment is the byte alignment required for AVX-512 (64 bytes).
const Alignment = 64

// ErrInvalidSize is returned when a non-positive buffer size is requested.
var ErrInvalidSize = errors.New("mem: invalid buffer size")

// AllocAligned allocates a byte slice of the given size with 64-byte alignment.
// The returned slice is guaranteed to start at a memory address divisible by 64.
//
// Note: This function allocates slightly more memory than requested to ensure alignment.
// The underlying array is kept alive by the returned slice.
func AllocAligned(size int) []byte {
	if size <= 0 {
		return nil
	}

	buf := make([]byte, size+Alignment)

	addr := uintptr(unsafe.Pointer(&buf[0])) //nolint:gosec // unsafe is required for memory alignment
	offset := (Alignment - (addr & (Alignment - 1))) & (Alignment - 1)

	return buf[offset : offset+uintptr(size) : offset+uintptr(size)]
}

// AllocAlignedFloat32 allocates a float32 slice of the given size with 64-byte alignment.
func AllocAlignedFloat32(size int) []float32 {
	if size <= 0 {
		return nil
	}

	byteSlice := AllocAligned(size * 4)
	ptr := unsafe.Pointer(&byteSlice[0])       //nolint:gosec // unsafe is required for memory alignment
	return unsafe.Slice((*float32)(ptr), size) //nolint:gosec // unsafe is required for memory alignment
}

// Heap allocates slab buffers on the Go heap.
//
// Free is a no-op: the collector reclaims a buffer once the slab and every
// pointer cached into it are gone.
type Heap struct{}

// Alloc returns a zeroed, 64-byte aligned buffer of n float32 values.
func (Heap) Alloc(n int) ([]float32, error) {
	if n <= 0 {
		return nil, ErrInvalidSize
	}
	return AllocAlignedFloat32(n), nil
}

// Free implements the slab allocator contract.
func (Heap) Free([]float32) error { return nil }

// Name returns "heap".
func (Heap) Name() string { return "heap" }

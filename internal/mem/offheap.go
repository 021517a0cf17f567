package mem

import (
	"errors"
	"fmt"
	"sync"
	"unsafe"
)

// ErrUnknownBuffer is returned when Free is called with a buffer that was not
// allocated by this OffHeap allocator (or was already freed).
var ErrUnknownBuffer = errors.New("mem: buffer not owned by allocator")

// OffHeap allocates slab buffers from anonymous memory mappings.
//
// It tracks every live mapping by base address so Free can unmap the whole
// region even when the caller only holds a resliced view.
type OffHeap struct {
	mu       sync.Mutex
	mappings map[uintptr][]byte
	mapped   int64
}

// NewOffHeap creates an off-heap allocator.
func NewOffHeap() *OffHeap {
	return &OffHeap{mappings: make(map[uintptr][]byte)}
}

// Alloc maps a zeroed region large enough for n float32 values.
func (o *OffHeap) Alloc(n int) ([]float32, error) {
	if n <= 0 {
		return nil, ErrInvalidSize
	}

	data, err := mapAnon(n * 4)
	if err != nil {
		return nil, fmt.Errorf("mem: map %d bytes: %w", n*4, err)
	}

	base := unsafe.Pointer(&data[0]) //nolint:gosec // off-heap memory is not managed by the GC

	o.mu.Lock()
	o.mappings[uintptr(base)] = data
	o.mapped += int64(len(data))
	o.mu.Unlock()

	return unsafe.Slice((*float32)(base), n), nil //nolint:gosec // mapping is page aligned
}

// Free unmaps a buffer previously returned by Alloc.
func (o *OffHeap) Free(buf []float32) error {
	if len(buf) == 0 {
		return nil
	}
	key := uintptr(unsafe.Pointer(&buf[0])) //nolint:gosec // lookup key only

	o.mu.Lock()
	data, ok := o.mappings[key]
	if ok {
		delete(o.mappings, key)
		o.mapped -= int64(len(data))
	}
	o.mu.Unlock()

	if !ok {
		return ErrUnknownBuffer
	}
	return unmap(data)
}

// Mapped returns the number of bytes currently mapped.
func (o *OffHeap) Mapped() int64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.mapped
}

// Name returns "offheap".
func (o *OffHeap) Name() string { return "offheap" }

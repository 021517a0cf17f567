package slab

import (
	"fmt"
	"math"
	"unsafe"

	"github.com/hupe1980/soamem/internal/simd"
)

// Allocator provides the backing buffers of a slab.
type Allocator interface {
	// Alloc returns a zeroed buffer of exactly n float32 values.
	Alloc(n int) ([]float32, error)
	// Free returns a buffer obtained from Alloc.
	Free(buf []float32) error
}

// Slab is a lane-aligned buffer holding one attribute for every slot of a pool.
//
// A Slab does not track which slots are live; the owning pool passes the live
// count to operations that depend on it.
type Slab struct {
	attr      Attribute
	laneWidth int
	laneMask  int
	capacity  int
	data      []float32
	alloc     Allocator
	released  bool
}

// New acquires a slab with room for at least capacityHint slots. The capacity
// is rounded up to whole lane groups (minimum one) and every slot is filled
// with the dummy record.
func New(attr Attribute, capacityHint, laneWidth int, alloc Allocator) (*Slab, error) {
	if err := attr.Validate(); err != nil {
		return nil, err
	}
	if !simd.IsPowerOfTwo(laneWidth) {
		return nil, fmt.Errorf("%w: %d", ErrInvalidLaneWidth, laneWidth)
	}

	capacity := max(simd.RoundUp(capacityHint, laneWidth), laneWidth)

	data, err := alloc.Alloc(capacity * attr.Components)
	if err != nil {
		return nil, err
	}

	s := &Slab{
		attr:      attr,
		laneWidth: laneWidth,
		laneMask:  laneWidth - 1,
		capacity:  capacity,
		data:      data,
		alloc:     alloc,
	}
	s.FillDummy(0, capacity)
	return s, nil
}

// Attribute returns the attribute stored in this slab.
func (s *Slab) Attribute() Attribute { return s.attr }

// LaneWidth returns the SIMD packing factor.
func (s *Slab) LaneWidth() int { return s.laneWidth }

// Capacity returns the number of slots (always a multiple of LaneWidth).
func (s *Slab) Capacity() int { return s.capacity }

// Bytes returns the size of the backing buffer in bytes.
func (s *Slab) Bytes() int64 { return int64(len(s.data)) * 4 }

// Released reports whether Release has been called.
func (s *Slab) Released() bool { return s.released }

// Data returns the whole padded buffer. The slice aliases slab memory and is
// invalidated by Grow, Shrink and Release.
func (s *Slab) Data() []float32 { return s.data }

// Base returns the address of the first element.
func (s *Slab) Base() unsafe.Pointer {
	if len(s.data) == 0 {
		return nil
	}
	return unsafe.Pointer(&s.data[0]) //nolint:gosec // base address for rebasing
}

// BaseAddr returns Base as an integer, for computing byte offsets.
func (s *Slab) BaseAddr() uintptr {
	return uintptr(s.Base())
}

// Index returns the element index of component comp of slot.
func (s *Slab) Index(slot, comp int) int {
	return (slot&^s.laneMask)*s.attr.Components + comp*s.laneWidth + slot&s.laneMask
}

// Get returns one component of one slot.
func (s *Slab) Get(slot, comp int) float32 {
	return s.data[s.Index(slot, comp)]
}

// Set writes one component of one slot.
func (s *Slab) Set(slot, comp int, v float32) {
	s.data[s.Index(slot, comp)] = v
}

// Ptr returns a pointer to one component of one slot. The pointer is
// invalidated when the slab relocates; holders must implement the pool's
// rebase listener protocol.
func (s *Slab) Ptr(slot, comp int) *float32 {
	return &s.data[s.Index(slot, comp)]
}

// Load copies all components of slot into dst (len(dst) >= Components).
func (s *Slab) Load(slot int, dst []float32) {
	i := s.Index(slot, 0)
	for c := 0; c < s.attr.Components; c++ {
		dst[c] = s.data[i]
		i += s.laneWidth
	}
}

// Store writes all components of slot from src (len(src) >= Components).
func (s *Slab) Store(slot int, src []float32) {
	s.storeInto(s.data, slot, src)
}

func (s *Slab) storeInto(data []float32, slot int, src []float32) {
	i := s.Index(slot, 0)
	for c := 0; c < s.attr.Components; c++ {
		data[i] = src[c]
		i += s.laneWidth
	}
}

// MoveSlot copies every component of src into dst.
func (s *Slab) MoveSlot(dst, src int) {
	di, si := s.Index(dst, 0), s.Index(src, 0)
	for c := 0; c < s.attr.Components; c++ {
		s.data[di] = s.data[si]
		di += s.laneWidth
		si += s.laneWidth
	}
}

// CopySlotTo copies every component of slot src into slot dst of another slab
// holding the same attribute layout.
func (s *Slab) CopySlotTo(dst *Slab, dstSlot, srcSlot int) {
	di, si := dst.Index(dstSlot, 0), s.Index(srcSlot, 0)
	for c := 0; c < s.attr.Components; c++ {
		dst.data[di] = s.data[si]
		di += dst.laneWidth
		si += s.laneWidth
	}
}

// ResetSlot writes the dummy record into slot.
func (s *Slab) ResetSlot(slot int) {
	s.Store(slot, s.attr.Dummy)
}

// FillDummy writes the dummy record into slots [from, to).
func (s *Slab) FillDummy(from, to int) {
	s.fillDummy(s.data, s.capacity, from, to)
}

// fillDummy fills whole lane groups component row by component row and the
// unaligned edges slot by slot.
func (s *Slab) fillDummy(data []float32, capacity, from, to int) {
	to = min(to, capacity)
	for from < to && from&s.laneMask != 0 {
		s.storeInto(data, from, s.attr.Dummy)
		from++
	}
	for from+s.laneWidth <= to {
		row := from * s.attr.Components
		for c, v := range s.attr.Dummy {
			lanes := data[row+c*s.laneWidth : row+(c+1)*s.laneWidth]
			for l := range lanes {
				lanes[l] = v
			}
		}
		from += s.laneWidth
	}
	for ; from < to; from++ {
		s.storeInto(data, from, s.attr.Dummy)
	}
}

// IsDummy reports whether slot holds the dummy record bit for bit.
func (s *Slab) IsDummy(slot int) bool {
	i := s.Index(slot, 0)
	for c := 0; c < s.attr.Components; c++ {
		if math.Float32bits(s.data[i]) != math.Float32bits(s.attr.Dummy[c]) {
			return false
		}
		i += s.laneWidth
	}
	return true
}

// Relocation is a prepared, not yet visible, replacement buffer for a slab.
//
// Preparing allocates and fills the new buffer without touching the slab, so
// a pool can prepare every slab first and either commit all of them or abort
// all of them.
type Relocation struct {
	slab      *Slab
	data      []float32
	capacity  int
	old       []float32
	committed bool
}

// Capacity returns the slot capacity the slab has after Commit.
func (r *Relocation) Capacity() int { return r.capacity }

// Commit makes the new buffer current. The previous buffer stays allocated
// until Retire.
func (r *Relocation) Commit() {
	if r.committed {
		return
	}
	r.committed = true
	r.old = r.slab.data
	r.slab.data = r.data
	r.slab.capacity = r.capacity
}

// Abort frees the prepared buffer of an uncommitted relocation.
func (r *Relocation) Abort() error {
	if r.committed || r.data == nil {
		return nil
	}
	data := r.data
	r.data = nil
	return r.slab.alloc.Free(data)
}

// Retire frees the buffer a committed relocation replaced.
func (r *Relocation) Retire() error {
	if !r.committed || r.old == nil {
		return nil
	}
	old := r.old
	r.old = nil
	return r.slab.alloc.Free(old)
}

// PrepareGrow prepares a relocation to newCapacity slots (rounded up to whole
// lane groups). Growth by less than one lane group is rejected.
func (s *Slab) PrepareGrow(newCapacity, live int) (*Relocation, error) {
	newCapacity = simd.RoundUp(newCapacity, s.laneWidth)
	if newCapacity < s.capacity+s.laneWidth {
		return nil, fmt.Errorf("%w: grow %d -> %d", ErrInvalidCapacity, s.capacity, newCapacity)
	}
	return s.prepare(newCapacity, live)
}

// PrepareShrink prepares a relocation to a smaller lane-aligned capacity that
// still holds live slots.
func (s *Slab) PrepareShrink(newCapacity, live int) (*Relocation, error) {
	newCapacity = max(simd.RoundUp(newCapacity, s.laneWidth), s.laneWidth)
	if newCapacity >= s.capacity || newCapacity < live {
		return nil, fmt.Errorf("%w: shrink %d -> %d with %d live", ErrInvalidCapacity, s.capacity, newCapacity, live)
	}
	return s.prepare(newCapacity, live)
}

func (s *Slab) prepare(newCapacity, live int) (*Relocation, error) {
	if s.released {
		return nil, ErrReleased
	}
	live = min(live, s.capacity)

	data, err := s.alloc.Alloc(newCapacity * s.attr.Components)
	if err != nil {
		return nil, err
	}

	// Whole lane groups: the partial group's padding lanes already hold dummies.
	used := simd.RoundUp(live, s.laneWidth)
	copy(data, s.data[:used*s.attr.Components])
	s.fillDummy(data, newCapacity, used, newCapacity)

	return &Relocation{slab: s, data: data, capacity: newCapacity}, nil
}

// Grow relocates the slab to newCapacity slots in one step: the first live
// slots are copied lane group by lane group, the new tail is filled with the
// dummy record, and the previous buffer is returned for Retire.
func (s *Slab) Grow(newCapacity, live int) ([]float32, error) {
	r, err := s.PrepareGrow(newCapacity, live)
	if err != nil {
		return nil, err
	}
	r.Commit()
	return r.old, nil
}

// Shrink is the one-step form of PrepareShrink and Commit.
func (s *Slab) Shrink(newCapacity, live int) ([]float32, error) {
	r, err := s.PrepareShrink(newCapacity, live)
	if err != nil {
		return nil, err
	}
	r.Commit()
	return r.old, nil
}

// Retire returns a buffer handed back by Grow or Shrink to the allocator.
func (s *Slab) Retire(old []float32) error {
	if old == nil {
		return nil
	}
	return s.alloc.Free(old)
}

// Release frees the backing buffer. Release is idempotent.
func (s *Slab) Release() error {
	if s.released {
		return nil
	}
	s.released = true
	data := s.data
	s.data = nil
	s.capacity = 0
	return s.alloc.Free(data)
}

// NextCapacity returns the capacity the next growth step should reach. A
// positive step grows by a fixed lane-rounded increment, otherwise capacity
// doubles. Either way the result is at least one lane group larger.
func NextCapacity(current, laneWidth, step int) int {
	if current <= 0 {
		return laneWidth
	}
	if step > 0 {
		return current + max(simd.RoundUp(step, laneWidth), laneWidth)
	}
	return max(simd.RoundUp(current*2, laneWidth), current+laneWidth)
}

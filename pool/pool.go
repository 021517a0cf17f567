package pool

import (
	"errors"
	"fmt"
	"slices"
	"time"
	"unsafe"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/hupe1980/soamem/internal/conv"
	"github.com/hupe1980/soamem/internal/mem"
	"github.com/hupe1980/soamem/internal/simd"
	"github.com/hupe1980/soamem/slab"
)

// Occupant is the back-reference stored for every slot. Padding slots hold
// the pool's dummy occupant. Implementations must be comparable (typically
// pointers).
type Occupant interface {
	// Slot returns the slot the occupant believes it owns.
	Slot() int
	// SetSlot is called when the occupant is assigned or moved to a slot.
	SetSlot(slot int)
}

// Budget charges slab memory against a limit. resource.Controller
// implements it.
type Budget interface {
	AcquireMemory(bytes int64) error
	ReleaseMemory(bytes int64)
}

// RelocationEvent describes one growth or trim.
type RelocationEvent struct {
	Group       int
	OldCapacity int
	NewCapacity int
	Live        int
	Bytes       int64
	Listeners   int
	Duration    time.Duration
}

// Config holds the pool tunables.
type Config struct {
	// LaneWidth is the SIMD packing factor. Defaults to simd.LaneWidth().
	LaneWidth int
	// InitialCapacity is the slot capacity of the first allocation. It is
	// rounded up to whole lane groups (minimum one).
	InitialCapacity int
	// GrowthStep grows by a fixed number of slots when positive; otherwise
	// capacity doubles.
	GrowthStep int
	// Allocator provides slab buffers. Defaults to mem.Heap.
	Allocator slab.Allocator
	// Budget, if set, is charged before every growth.
	Budget Budget
	// Dummy is the occupant of padding slots. Defaults to a private anchor.
	Dummy Occupant
	// OnRelocate, if set, is called after every committed growth or trim.
	OnRelocate func(RelocationEvent)
}

// Stats is a snapshot of pool bookkeeping.
type Stats struct {
	Group       int
	Live        int
	Capacity    int
	LaneWidth   int
	Bytes       int64
	Growths     uint64
	Trims       uint64
	Releases    uint64
	Compactions uint64 // releases that moved the last live slot
}

// Pool owns the slabs of one group.
type Pool struct {
	group     int
	schema    slab.Schema
	cfg       Config
	slabs     []*slab.Slab
	occupants []Occupant
	live      int
	listeners []RebaseListener
	closed    bool

	growths     uint64
	trims       uint64
	releases    uint64
	compactions uint64
}

// New creates an empty pool. Storage is allocated on the first RequestSlot.
func New(group int, schema slab.Schema, cfg Config) (*Pool, error) {
	if err := schema.Validate(); err != nil {
		return nil, err
	}
	if cfg.LaneWidth == 0 {
		cfg.LaneWidth = simd.LaneWidth()
	}
	if !simd.IsPowerOfTwo(cfg.LaneWidth) {
		return nil, fmt.Errorf("%w: %d", slab.ErrInvalidLaneWidth, cfg.LaneWidth)
	}
	if cfg.Allocator == nil {
		cfg.Allocator = mem.Heap{}
	}
	if cfg.Dummy == nil {
		cfg.Dummy = &Anchor{}
	}
	return &Pool{
		group:  group,
		schema: slices.Clone(schema),
		cfg:    cfg,
	}, nil
}

// Group returns the group key this pool serves.
func (p *Pool) Group() int { return p.group }

// Schema returns the attributes stored per slot.
func (p *Pool) Schema() slab.Schema { return p.schema }

// LaneWidth returns the SIMD packing factor.
func (p *Pool) LaneWidth() int { return p.cfg.LaneWidth }

// Live returns the number of live slots.
func (p *Pool) Live() int { return p.live }

// Capacity returns the slot capacity of every slab (0 before first use).
func (p *Pool) Capacity() int { return len(p.occupants) }

// Dummy returns the occupant of padding slots.
func (p *Pool) Dummy() Occupant { return p.cfg.Dummy }

// NumSlabs returns the number of attribute slabs.
func (p *Pool) NumSlabs() int { return len(p.schema) }

// Slab returns the slab of attribute i, or nil before first use.
func (p *Pool) Slab(i int) *slab.Slab {
	if p.slabs == nil {
		return nil
	}
	return p.slabs[i]
}

// SlabByName returns the slab of the named attribute.
func (p *Pool) SlabByName(name string) (*slab.Slab, bool) {
	i := p.schema.IndexOf(name)
	if i < 0 || p.slabs == nil {
		return nil, false
	}
	return p.slabs[i], true
}

// Occupant returns the back-reference of slot (live or padding).
func (p *Pool) Occupant(slot int) Occupant {
	return p.occupants[slot]
}

// Occupants returns the occupant column over the whole padded capacity.
func (p *Pool) Occupants() []Occupant { return p.occupants }

// Bytes returns the memory held by all slabs.
func (p *Pool) Bytes() int64 {
	var n int64
	for _, s := range p.slabs {
		n += s.Bytes()
	}
	return n
}

// AddListener registers a rebase listener. Registering the same listener
// twice is a no-op.
func (p *Pool) AddListener(l RebaseListener) {
	if slices.Contains(p.listeners, l) {
		return
	}
	p.listeners = append(p.listeners, l)
}

// RemoveListener unregisters a rebase listener.
func (p *Pool) RemoveListener(l RebaseListener) {
	if i := slices.Index(p.listeners, l); i >= 0 {
		p.listeners = slices.Delete(p.listeners, i, i+1)
	}
}

// RequestSlot assigns the next free slot to occ and returns it. When the pool
// is full every slab grows before the slot is handed out.
func (p *Pool) RequestSlot(occ Occupant) (int, error) {
	if p.closed {
		return 0, ErrClosed
	}

	switch {
	case p.slabs == nil:
		if err := p.allocate(); err != nil {
			return 0, err
		}
	case p.live == len(p.occupants):
		target := slab.NextCapacity(len(p.occupants), p.cfg.LaneWidth, p.cfg.GrowthStep)
		if err := p.relocate(target, true); err != nil {
			return 0, err
		}
	}

	slot := p.live
	p.occupants[slot] = occ
	p.live++
	occ.SetSlot(slot)
	return slot, nil
}

// ReleaseSlot frees slot. If slot is not the last live slot, the last live
// slot is moved into it; the moved occupant is told its new index and is
// returned. The vacated tail slot is reset to the dummy record.
func (p *Pool) ReleaseSlot(slot int) (Occupant, error) {
	if p.closed {
		return nil, ErrClosed
	}
	if slot < 0 || slot >= p.live {
		return nil, NewSlotError(p.group, slot, p.live)
	}

	last := p.live - 1
	var moved Occupant
	var moves []Move

	if slot != last {
		for _, s := range p.slabs {
			s.MoveSlot(slot, last)
		}
		moved = p.occupants[last]
		p.occupants[slot] = moved
		moved.SetSlot(slot)
		moves = []Move{{From: last, To: slot}}
		p.compactions++
	}

	for _, s := range p.slabs {
		s.ResetSlot(last)
	}
	p.occupants[last] = p.cfg.Dummy
	p.live--
	p.releases++

	for _, l := range p.listeners {
		l.PerformCleanup(p.group, slot, moves)
	}
	return moved, nil
}

// CopySlot copies every attribute of srcSlot into dstSlot of dst. Both pools
// must share the same schema; lane widths may differ.
func (p *Pool) CopySlot(dst *Pool, dstSlot, srcSlot int) error {
	if !p.schema.Equal(dst.schema) {
		return ErrSchemaMismatch
	}
	if srcSlot < 0 || srcSlot >= p.live {
		return NewSlotError(p.group, srcSlot, p.live)
	}
	if dstSlot < 0 || dstSlot >= dst.live {
		return NewSlotError(dst.group, dstSlot, dst.live)
	}
	for i, s := range p.slabs {
		s.CopySlotTo(dst.slabs[i], dstSlot, srcSlot)
	}
	return nil
}

// Trim shrinks every slab to the smallest lane-aligned capacity holding the
// live slots. It runs the full rebase protocol and is never called implicitly.
func (p *Pool) Trim() error {
	if p.closed {
		return ErrClosed
	}
	if p.slabs == nil {
		return nil
	}
	target := max(simd.RoundUp(p.live, p.cfg.LaneWidth), p.cfg.LaneWidth)
	if target >= len(p.occupants) {
		return nil
	}
	return p.relocate(target, false)
}

// Close releases all slabs and refunds the budget. Close is idempotent.
func (p *Pool) Close() error {
	if p.closed {
		return nil
	}
	p.closed = true

	bytes := p.Bytes()
	var errs []error
	for _, s := range p.slabs {
		errs = append(errs, s.Release())
	}
	if p.cfg.Budget != nil && bytes > 0 {
		p.cfg.Budget.ReleaseMemory(bytes)
	}

	p.slabs = nil
	p.occupants = nil
	p.live = 0
	p.listeners = nil
	return errors.Join(errs...)
}

// Stats returns a snapshot of the pool bookkeeping.
func (p *Pool) Stats() Stats {
	return Stats{
		Group:       p.group,
		Live:        p.live,
		Capacity:    len(p.occupants),
		LaneWidth:   p.cfg.LaneWidth,
		Bytes:       p.Bytes(),
		Growths:     p.growths,
		Trims:       p.trims,
		Releases:    p.releases,
		Compactions: p.compactions,
	}
}

func (p *Pool) slotBytes(capacity int) int64 {
	return int64(capacity) * int64(p.schema.SlotFloats()) * 4
}

func (p *Pool) allocate() error {
	capacity := max(simd.RoundUp(p.cfg.InitialCapacity, p.cfg.LaneWidth), p.cfg.LaneWidth)

	bytes := p.slotBytes(capacity)
	if p.cfg.Budget != nil {
		if err := p.cfg.Budget.AcquireMemory(bytes); err != nil {
			return fmt.Errorf("%w: group %d: %w", ErrAllocationFailed, p.group, err)
		}
	}

	slabs := make([]*slab.Slab, 0, len(p.schema))
	for _, attr := range p.schema {
		s, err := slab.New(attr, capacity, p.cfg.LaneWidth, p.cfg.Allocator)
		if err != nil {
			for _, done := range slabs {
				_ = done.Release()
			}
			if p.cfg.Budget != nil {
				p.cfg.Budget.ReleaseMemory(bytes)
			}
			return fmt.Errorf("%w: group %d: %w", ErrAllocationFailed, p.group, err)
		}
		slabs = append(slabs, s)
	}

	p.slabs = slabs
	p.occupants = make([]Occupant, capacity)
	for i := range p.occupants {
		p.occupants[i] = p.cfg.Dummy
	}
	return nil
}

// relocate moves every slab to target capacity. It either completes, with all
// listeners rebased and old buffers retired, or changes nothing.
func (p *Pool) relocate(target int, grow bool) error {
	start := time.Now()
	oldCapacity := len(p.occupants)
	delta := p.slotBytes(target) - p.slotBytes(oldCapacity)

	if delta > 0 && p.cfg.Budget != nil {
		if err := p.cfg.Budget.AcquireMemory(delta); err != nil {
			return fmt.Errorf("%w: group %d: %w", ErrAllocationFailed, p.group, err)
		}
	}

	relocations := make([]*slab.Relocation, 0, len(p.slabs))
	for _, s := range p.slabs {
		var (
			r   *slab.Relocation
			err error
		)
		if grow {
			r, err = s.PrepareGrow(target, p.live)
		} else {
			r, err = s.PrepareShrink(target, p.live)
		}
		if err != nil {
			for _, done := range relocations {
				_ = done.Abort()
			}
			if delta > 0 && p.cfg.Budget != nil {
				p.cfg.Budget.ReleaseMemory(delta)
			}
			return fmt.Errorf("%w: group %d: %w", ErrAllocationFailed, p.group, err)
		}
		relocations = append(relocations, r)
	}

	// Phase 1: listeners record offsets against the old bases.
	oldBases := make([]uintptr, len(p.slabs))
	for i, s := range p.slabs {
		oldBases[i] = s.BaseAddr()
	}
	diffs := make([]DiffList, len(p.listeners))
	for i, l := range p.listeners {
		diffs[i] = l.BuildDiffList(p.group, oldBases)
	}

	for _, r := range relocations {
		r.Commit()
	}
	capacity := relocations[0].Capacity()

	occupants := make([]Occupant, capacity)
	copy(occupants, p.occupants[:p.live])
	for i := p.live; i < capacity; i++ {
		occupants[i] = p.cfg.Dummy
	}
	p.occupants = occupants

	// Phase 2: listeners rebase onto the new buffers, then old ones go.
	newBases := make([]unsafe.Pointer, len(p.slabs))
	for i, s := range p.slabs {
		newBases[i] = s.Base()
	}
	for i, l := range p.listeners {
		l.ApplyRebase(p.group, newBases, diffs[i])
	}

	var errs []error
	for _, r := range relocations {
		errs = append(errs, r.Retire())
	}
	if delta < 0 && p.cfg.Budget != nil {
		p.cfg.Budget.ReleaseMemory(-delta)
	}

	if grow {
		p.growths++
	} else {
		p.trims++
	}

	if p.cfg.OnRelocate != nil {
		p.cfg.OnRelocate(RelocationEvent{
			Group:       p.group,
			OldCapacity: oldCapacity,
			NewCapacity: capacity,
			Live:        p.live,
			Bytes:       p.Bytes(),
			Listeners:   len(p.listeners),
			Duration:    time.Since(start),
		})
	}
	return errors.Join(errs...)
}

// Verify checks the padding, contiguity and occupant invariants. It is meant
// for tests and debug builds and walks every slot.
func (p *Pool) Verify() error {
	if p.slabs == nil {
		if p.live != 0 || len(p.occupants) != 0 {
			return fmt.Errorf("%w: group %d: %d live slots without storage", ErrInvariantDrift, p.group, p.live)
		}
		return nil
	}

	capacity := len(p.occupants)
	if capacity%p.cfg.LaneWidth != 0 {
		return fmt.Errorf("%w: group %d: capacity %d not a multiple of lane width %d", ErrInvariantDrift, p.group, capacity, p.cfg.LaneWidth)
	}
	if p.live > capacity {
		return fmt.Errorf("%w: group %d: live %d exceeds capacity %d", ErrInvariantDrift, p.group, p.live, capacity)
	}
	for i, s := range p.slabs {
		if s.Capacity() != capacity {
			return fmt.Errorf("%w: group %d: slab %q capacity %d, pool capacity %d", ErrInvariantDrift, p.group, p.schema[i].Name, s.Capacity(), capacity)
		}
	}

	drift := roaring.New()
	for slot := 0; slot < p.live; slot++ {
		occ := p.occupants[slot]
		if occ == nil || occ == p.cfg.Dummy {
			return fmt.Errorf("%w: group %d: live slot %d has no occupant", ErrInvariantDrift, p.group, slot)
		}
		if occ.Slot() == slot {
			continue
		}
		k, err := conv.Key(slot)
		if err != nil {
			return fmt.Errorf("%w: group %d: %w", ErrInvariantDrift, p.group, err)
		}
		drift.Add(k)
	}
	if !drift.IsEmpty() {
		slots := conv.Indices(drift.ToArray())
		return fmt.Errorf("%w: group %d: %d live slots held by occupants that believe they own another slot: %v",
			ErrInvariantDrift, p.group, len(slots), slots)
	}

	for slot := p.live; slot < capacity; slot++ {
		if p.occupants[slot] != p.cfg.Dummy {
			return fmt.Errorf("%w: group %d: padding slot %d has a live occupant", ErrInvariantDrift, p.group, slot)
		}
		for i, s := range p.slabs {
			if !s.IsDummy(slot) {
				return fmt.Errorf("%w: group %d: padding slot %d of %q is not the dummy record", ErrInvariantDrift, p.group, slot, p.schema[i].Name)
			}
		}
	}
	return nil
}

// Anchor is a placeholder occupant for padding slots. Its slot is always -1
// and it ignores SetSlot.
type Anchor struct {
	_ byte // distinct addresses for distinct anchors
}

// Slot returns -1.
func (*Anchor) Slot() int { return -1 }

// SetSlot is a no-op.
func (*Anchor) SetSlot(int) {}

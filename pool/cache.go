package pool

import (
	"unsafe"
)

type cachedPointer struct {
	slot int
	attr int
	comp int
	ptr  *float32
}

// PointerCache is a RebaseListener that keeps raw *float32 pointers into a
// pool valid across growth, trim and swap-with-last compaction.
//
// Pointers of a released slot are dropped; pointers of a slot moved by
// compaction follow the data to its new slot. Ids of dropped pointers are
// reused by later Track calls.
//
// The cache only reacts to events of its own pool's group, so it may be
// registered through a manager that fans listeners out to every group.
type PointerCache struct {
	pool    *Pool
	entries []cachedPointer
	index   map[int][]int // slot -> entry ids
	dropped []bool
	free    []int
	live    int
}

// NewPointerCache creates a cache and registers it with p.
func NewPointerCache(p *Pool) *PointerCache {
	c := &PointerCache{
		pool:  p,
		index: make(map[int][]int),
	}
	p.AddListener(c)
	return c
}

// Track caches a pointer to component comp of attribute attr of a live slot
// and returns its id.
func (c *PointerCache) Track(slot, attr, comp int) (int, error) {
	if slot < 0 || slot >= c.pool.Live() {
		return 0, NewSlotError(c.pool.Group(), slot, c.pool.Live())
	}
	e := cachedPointer{
		slot: slot,
		attr: attr,
		comp: comp,
		ptr:  c.pool.Slab(attr).Ptr(slot, comp),
	}

	var id int
	if n := len(c.free); n > 0 {
		id = c.free[n-1]
		c.free = c.free[:n-1]
		c.entries[id] = e
		c.dropped[id] = false
	} else {
		id = len(c.entries)
		c.entries = append(c.entries, e)
		c.dropped = append(c.dropped, false)
	}
	c.index[slot] = append(c.index[slot], id)
	c.live++
	return id, nil
}

// Pointer returns the cached pointer for id, or nil if its slot was released.
func (c *PointerCache) Pointer(id int) *float32 {
	if c.dropped[id] {
		return nil
	}
	return c.entries[id].ptr
}

// Slot returns the slot id currently points into, or -1 if dropped.
func (c *PointerCache) Slot(id int) int {
	if c.dropped[id] {
		return -1
	}
	return c.entries[id].slot
}

// Len returns the number of live cached pointers.
func (c *PointerCache) Len() int { return c.live }

// Close unregisters the cache from its pool.
func (c *PointerCache) Close() {
	c.pool.RemoveListener(c)
}

// BuildDiffList implements RebaseListener.
func (c *PointerCache) BuildDiffList(group int, bases []uintptr) DiffList {
	if group != c.pool.Group() {
		return nil
	}
	diffs := make(DiffList, len(c.entries))
	for i, e := range c.entries {
		if c.dropped[i] {
			continue
		}
		diffs[i] = uintptr(unsafe.Pointer(e.ptr)) - bases[e.attr] //nolint:gosec // offset arithmetic only
	}
	return diffs
}

// ApplyRebase implements RebaseListener.
func (c *PointerCache) ApplyRebase(group int, bases []unsafe.Pointer, diffs DiffList) {
	if group != c.pool.Group() {
		return
	}
	for i := range c.entries {
		if c.dropped[i] {
			continue
		}
		c.entries[i].ptr = (*float32)(unsafe.Add(bases[c.entries[i].attr], diffs[i])) //nolint:gosec // offset within the new slab
	}
}

// PerformCleanup implements RebaseListener.
func (c *PointerCache) PerformCleanup(group int, released int, moves []Move) {
	if group != c.pool.Group() {
		return
	}
	for _, id := range c.index[released] {
		c.dropped[id] = true
		c.entries[id].ptr = nil
		c.free = append(c.free, id)
		c.live--
	}
	delete(c.index, released)

	for _, m := range moves {
		ids := c.index[m.From]
		delete(c.index, m.From)
		for _, id := range ids {
			e := &c.entries[id]
			e.slot = m.To
			e.ptr = c.pool.Slab(e.attr).Ptr(m.To, e.comp)
		}
		c.index[m.To] = append(c.index[m.To], ids...)
	}
}

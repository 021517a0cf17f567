package soamem

import "github.com/hupe1980/soamem/slab"

// Relocatable is implemented by owners that want to hear when their object's
// storage moves: swap-with-last compaction, a move between groups, or a
// migration to another manager. The handle already holds the new location.
type Relocatable interface {
	Relocated(h *Handle, oldGroup, oldSlot int)
}

// Handle locates one object's attributes: a group, a slot and the manager
// owning the pool. The manager keeps handles current; callers must not cache
// the slot across structural operations.
//
// A Handle is also the occupant the pool stores for the slot, so padding
// slots point at the manager's dummy anchor and never at nil.
type Handle struct {
	owner  any
	mgr    *Manager
	group  int
	slot   int
	anchor bool
}

// Owner returns the value passed to ObjectCreated (nil for the anchor).
func (h *Handle) Owner() any { return h.owner }

// Manager returns the manager currently holding the object.
func (h *Handle) Manager() *Manager { return h.mgr }

// Group returns the object's group.
func (h *Handle) Group() int { return h.group }

// Slot returns the object's slot inside its group, or -1.
func (h *Handle) Slot() int { return h.slot }

// SetSlot is called by the pool when the object is assigned or compacted.
func (h *Handle) SetSlot(slot int) {
	if h.anchor {
		return
	}
	h.slot = slot
}

// Valid reports whether the handle refers to a live object.
func (h *Handle) Valid() bool {
	return h != nil && !h.anchor && h.mgr != nil && h.slot >= 0
}

// IsAnchor reports whether h is a manager's dummy anchor.
func (h *Handle) IsAnchor() bool { return h != nil && h.anchor }

// Get returns component comp of attribute attr. The anchor reads the
// attribute's dummy record.
//
// Get, Set, Load, Store and Ptr panic with ErrInvalidHandle when the object
// was destroyed or its manager closed.
func (h *Handle) Get(attr, comp int) float32 {
	if h.anchor {
		return h.mgr.opts.schema[attr].Dummy[comp]
	}
	return h.storage(attr).Get(h.slot, comp)
}

// Set writes component comp of attribute attr. Writes to the anchor are
// dropped.
func (h *Handle) Set(attr, comp int, v float32) {
	if h.anchor {
		return
	}
	h.storage(attr).Set(h.slot, comp, v)
}

// Load copies every component of attribute attr into dst.
func (h *Handle) Load(attr int, dst []float32) {
	if h.anchor {
		copy(dst, h.mgr.opts.schema[attr].Dummy)
		return
	}
	h.storage(attr).Load(h.slot, dst)
}

// Store writes every component of attribute attr from src.
func (h *Handle) Store(attr int, src []float32) {
	if h.anchor {
		return
	}
	h.storage(attr).Store(h.slot, src)
}

// Ptr returns a pointer to component comp of attribute attr, or nil for the
// anchor. The pointer goes stale on the next structural operation of the
// group unless its holder is a registered rebase listener.
func (h *Handle) Ptr(attr, comp int) *float32 {
	if h.anchor {
		return nil
	}
	return h.storage(attr).Ptr(h.slot, comp)
}

func (h *Handle) storage(attr int) *slab.Slab {
	if !h.Valid() {
		panic(ErrInvalidHandle)
	}
	return h.mgr.pools[h.group].Slab(attr)
}

func (h *Handle) invalidate() {
	h.mgr = nil
	h.slot = -1
}

func (h *Handle) notify(oldGroup, oldSlot int) {
	if r, ok := h.owner.(Relocatable); ok {
		r.Relocated(h, oldGroup, oldSlot)
	}
}

package soamem

import (
	"errors"
	"fmt"
	"runtime"
	"slices"
	"time"

	"github.com/RoaringBitmap/roaring/v2"
	"golang.org/x/time/rate"

	"github.com/hupe1980/soamem/internal/conv"
	"github.com/hupe1980/soamem/internal/simd"
	"github.com/hupe1980/soamem/pool"
	"github.com/hupe1980/soamem/resource"
	"github.com/hupe1980/soamem/slab"
)

// Partition labels a manager as holding rarely or frequently updated objects.
type Partition int

const (
	// Dynamic holds objects whose attributes change every frame.
	Dynamic Partition = iota
	// Static holds objects whose attributes rarely change.
	Static
)

func (p Partition) String() string {
	switch p {
	case Dynamic:
		return "dynamic"
	case Static:
		return "static"
	default:
		return fmt.Sprintf("partition(%d)", int(p))
	}
}

// Manager keeps one slab pool per group and the aggregate object count.
//
// Structural operations (ObjectCreated, ObjectMoved, ObjectDestroyed,
// MigrateTo, GrowToDepth, Trim, Close) are single-writer: the caller must
// serialize them and must not read slab data concurrently with them.
type Manager struct {
	opts      options
	pools     []*pool.Pool
	total     int
	anchor    *Handle
	twin      *Manager
	listeners []pool.RebaseListener
	dirty     *roaring.Bitmap
	rc        *resource.Controller
	logger    *Logger
	summary   rate.Sometimes
	closed    bool

	relocations    uint64
	relocatedBytes int64
}

// New creates a manager. No storage is allocated until the first object is
// created.
func New(optFns ...Option) (*Manager, error) {
	o := applyOptions(optFns)

	if err := o.schema.Validate(); err != nil {
		return nil, err
	}
	if o.laneWidth == 0 {
		o.laneWidth = simd.LaneWidth()
	}
	if !simd.IsPowerOfTwo(o.laneWidth) {
		return nil, fmt.Errorf("%w: %d", ErrInvalidLaneWidth, o.laneWidth)
	}

	rc := o.controller
	if rc == nil {
		workers := o.workers
		if workers <= 0 {
			workers = runtime.GOMAXPROCS(0)
		}
		rc = resource.NewController(resource.Config{
			MemoryLimitBytes: o.memoryLimit,
			MaxWorkers:       int64(workers),
		})
	}

	m := &Manager{
		opts:    o,
		dirty:   roaring.New(),
		rc:      rc,
		logger:  o.logger.WithPartition(o.partition),
		summary: rate.Sometimes{First: 1, Interval: time.Second},
	}
	m.anchor = &Handle{mgr: m, group: -1, slot: -1, anchor: true}
	return m, nil
}

// Partition returns the manager's partition label.
func (m *Manager) Partition() Partition { return m.opts.partition }

// Schema returns the attributes stored per object.
func (m *Manager) Schema() slab.Schema { return m.opts.schema }

// LaneWidth returns the SIMD packing factor of every pool.
func (m *Manager) LaneWidth() int { return m.opts.laneWidth }

// DummyAnchor returns the placeholder handle of every padding slot. It is
// created with the manager and never released.
func (m *Manager) DummyAnchor() *Handle { return m.anchor }

// Controller returns the resource controller charged for slab memory.
func (m *Manager) Controller() *resource.Controller { return m.rc }

// NumGroups returns the number of groups with a pool.
func (m *Manager) NumGroups() int { return len(m.pools) }

// TotalObjects returns the number of live objects across all groups in O(1).
func (m *Manager) TotalObjects() int { return m.total }

// GroupLive returns the number of live objects in group.
func (m *Manager) GroupLive(group int) int {
	if group < 0 || group >= len(m.pools) {
		return 0
	}
	return m.pools[group].Live()
}

// Pool returns the pool of group, or nil.
func (m *Manager) Pool(group int) *pool.Pool {
	if group < 0 || group >= len(m.pools) {
		return nil
	}
	return m.pools[group]
}

// SetTwin links m and other as each other's twin, unlinking previous twins.
// Passing nil unlinks m. The link does not imply ownership.
func (m *Manager) SetTwin(other *Manager) {
	if m.twin == other {
		return
	}
	if m.twin != nil {
		m.twin.twin = nil
	}
	m.twin = other
	if other != nil {
		if other.twin != nil {
			other.twin.twin = nil
		}
		other.twin = m
	}
}

// Twin returns the linked twin manager, or nil.
func (m *Manager) Twin() *Manager { return m.twin }

// AddListener registers l with every existing pool and every pool created
// later. Listeners receive the events of every group and must filter on the
// group argument when they only track one.
func (m *Manager) AddListener(l pool.RebaseListener) {
	if slices.Contains(m.listeners, l) {
		return
	}
	m.listeners = append(m.listeners, l)
	for _, p := range m.pools {
		p.AddListener(l)
	}
}

// RemoveListener unregisters l from every pool.
func (m *Manager) RemoveListener(l pool.RebaseListener) {
	for i, have := range m.listeners {
		if have == l {
			m.listeners = append(m.listeners[:i], m.listeners[i+1:]...)
			break
		}
	}
	for _, p := range m.pools {
		p.RemoveListener(l)
	}
}

// GrowToDepth makes sure a pool exists for every group up to and including
// group. Pools are never removed, so group keys stay stable.
func (m *Manager) GrowToDepth(group int) error {
	if m.closed {
		return ErrClosed
	}
	if group < 0 {
		return &GroupError{Group: group, Want: -1, cause: ErrInvalidGroup}
	}
	for len(m.pools) <= group {
		cfg := pool.Config{
			LaneWidth:       m.opts.laneWidth,
			InitialCapacity: m.opts.initialCapacity,
			GrowthStep:      m.opts.growthStep,
			Allocator:       m.opts.allocator,
			Dummy:           m.anchor,
			Budget:          m.rc,
			OnRelocate:      m.onRelocate,
		}
		p, err := pool.New(len(m.pools), m.opts.schema, cfg)
		if err != nil {
			return err
		}
		for _, l := range m.listeners {
			p.AddListener(l)
		}
		m.pools = append(m.pools, p)
	}
	return nil
}

// ObjectCreated assigns a slot in group to a new object. Every attribute
// starts at its dummy record. owner is reachable through Handle.Owner and,
// if it implements Relocatable, is told about later moves.
func (m *Manager) ObjectCreated(owner any, group int) (*Handle, error) {
	start := time.Now()
	h, err := m.create(owner, group)
	m.opts.metricsCollector.RecordCreate(group, time.Since(start), err)
	if err != nil {
		m.logger.LogCreate(group, -1, err)
		return nil, err
	}
	m.logger.LogCreate(group, h.slot, nil)
	m.check()
	return h, nil
}

func (m *Manager) create(owner any, group int) (*Handle, error) {
	if err := m.GrowToDepth(group); err != nil {
		return nil, err
	}
	h := &Handle{owner: owner, mgr: m, group: group, slot: -1}
	if _, err := m.pools[group].RequestSlot(h); err != nil {
		return nil, err
	}
	m.total++
	m.markDirty(group)
	return h, nil
}

// ObjectMoved moves an object to newGroup. The destination slot is filled
// before the source slot is released, and every attribute value is copied bit
// for bit. On error the object stays where it was.
func (m *Manager) ObjectMoved(h *Handle, newGroup int) error {
	if err := m.checkHandle(h); err != nil {
		return err
	}
	return m.ObjectMovedFrom(h, h.group, newGroup)
}

// ObjectMovedFrom is ObjectMoved with the caller's view of the old group,
// which must match the handle.
func (m *Manager) ObjectMovedFrom(h *Handle, oldGroup, newGroup int) error {
	start := time.Now()
	err := m.move(h, oldGroup, newGroup)
	m.opts.metricsCollector.RecordMove(oldGroup, newGroup, time.Since(start), err)
	if err != nil {
		m.logger.LogMove(oldGroup, newGroup, -1, err)
		return err
	}
	m.logger.LogMove(oldGroup, newGroup, h.slot, nil)
	m.check()
	return nil
}

func (m *Manager) move(h *Handle, oldGroup, newGroup int) error {
	if err := m.checkHandle(h); err != nil {
		return err
	}
	if oldGroup != h.group {
		return &GroupError{Group: oldGroup, Want: h.group, cause: ErrGroupMismatch}
	}
	if newGroup == oldGroup {
		return nil
	}
	if err := m.GrowToDepth(newGroup); err != nil {
		return err
	}

	src, dst := m.pools[oldGroup], m.pools[newGroup]
	oldSlot := h.slot
	newSlot, err := dst.RequestSlot(h)
	if err != nil {
		return err
	}
	if err := src.CopySlot(dst, newSlot, oldSlot); err != nil {
		return err
	}
	h.group = newGroup

	if err := m.release(src, oldSlot); err != nil {
		return err
	}
	m.markDirty(oldGroup)
	m.markDirty(newGroup)
	h.notify(oldGroup, oldSlot)
	return nil
}

// ObjectDestroyed releases the object's slot and invalidates h. If the slot
// was not the last live one, the last object of the group is moved into it
// and its owner is notified.
func (m *Manager) ObjectDestroyed(h *Handle) error {
	start := time.Now()
	group, slot := -1, -1
	if h != nil {
		group, slot = h.group, h.slot
	}
	compacted, err := m.destroy(h)
	m.opts.metricsCollector.RecordDestroy(group, compacted >= 0, time.Since(start), err)
	m.logger.LogDestroy(group, slot, compacted, err)
	if err != nil {
		return err
	}
	m.check()
	return nil
}

func (m *Manager) destroy(h *Handle) (int, error) {
	if err := m.checkHandle(h); err != nil {
		return -1, err
	}
	p := m.pools[h.group]
	last := p.Live() - 1
	compacted := -1
	if h.slot != last {
		compacted = last
	}

	if err := m.release(p, h.slot); err != nil {
		return -1, err
	}
	m.total--
	m.markDirty(h.group)

	h.invalidate()
	return compacted, nil
}

// release frees slot in p and notifies the owner of the object compaction
// moved into it.
func (m *Manager) release(p *pool.Pool, slot int) error {
	last := p.Live() - 1
	moved, err := p.ReleaseSlot(slot)
	if err != nil {
		return err
	}
	if moved != nil {
		mh := moved.(*Handle)
		mh.notify(mh.group, last)
	}
	return nil
}

// MigrateTo moves an object into group of other, e.g. from the dynamic to
// the static partition. The object is fully present in exactly one manager
// at every point: the destination slot is filled before the source slot is
// released. On return h belongs to other.
func (m *Manager) MigrateTo(h *Handle, group int, other *Manager) error {
	if other == m {
		return m.ObjectMoved(h, group)
	}
	start := time.Now()
	err := m.migrate(h, group, other)
	m.opts.metricsCollector.RecordMigrate(time.Since(start), err)
	var to Partition
	if other != nil {
		to = other.Partition()
	}
	m.logger.LogMigrate(m.Partition(), to, group, err)
	if err != nil {
		return err
	}
	m.check()
	other.check()
	return nil
}

// MigrateToTwin migrates h into group of the twin manager.
func (m *Manager) MigrateToTwin(h *Handle, group int) error {
	if m.twin == nil {
		return ErrNoTwin
	}
	return m.MigrateTo(h, group, m.twin)
}

func (m *Manager) migrate(h *Handle, group int, other *Manager) error {
	if err := m.checkHandle(h); err != nil {
		return err
	}
	if other == nil {
		return ErrNoTwin
	}
	if other.closed {
		return ErrClosed
	}
	if !m.opts.schema.Equal(other.opts.schema) {
		return ErrSchemaMismatch
	}
	if err := other.GrowToDepth(group); err != nil {
		return err
	}

	src, dst := m.pools[h.group], other.pools[group]
	oldGroup, oldSlot := h.group, h.slot
	newSlot, err := dst.RequestSlot(h)
	if err != nil {
		return err
	}
	if err := src.CopySlot(dst, newSlot, oldSlot); err != nil {
		return err
	}
	h.mgr = other
	h.group = group
	other.total++
	other.markDirty(group)

	if err := m.release(src, oldSlot); err != nil {
		return err
	}
	m.total--
	m.markDirty(oldGroup)
	h.notify(oldGroup, oldSlot)
	return nil
}

// FirstObjectData returns the batch view of group and its live count.
// Groups beyond NumGroups are empty.
func (m *Manager) FirstObjectData(group int) (Batch, int, error) {
	if m.closed {
		return Batch{}, 0, ErrClosed
	}
	if group < 0 {
		return Batch{}, 0, &GroupError{Group: group, Want: -1, cause: ErrInvalidGroup}
	}
	b := Batch{anchor: m.anchor}
	if group < len(m.pools) {
		b.pool = m.pools[group]
	}
	return b, b.Len(), nil
}

// DirtyGroups returns the groups changed structurally since the last
// ClearDirty, in ascending order.
func (m *Manager) DirtyGroups() []int {
	return conv.Indices(m.dirty.ToArray())
}

func (m *Manager) markDirty(group int) {
	if k, err := conv.Key(group); err == nil {
		m.dirty.Add(k)
	}
}

// ClearDirty resets the dirty group set.
func (m *Manager) ClearDirty() {
	m.dirty.Clear()
}

// Trim shrinks every pool to the smallest lane-aligned capacity holding its
// live objects. It is never called implicitly.
func (m *Manager) Trim() error {
	if m.closed {
		return ErrClosed
	}
	var errs []error
	for _, p := range m.pools {
		errs = append(errs, p.Trim())
	}
	m.check()
	return errors.Join(errs...)
}

// Stats is a snapshot of manager bookkeeping.
type Stats struct {
	Partition    Partition
	LaneWidth    int
	Groups       int
	TotalObjects int
	Capacity     int
	Bytes        int64
	MemoryUsage  int64
	MemoryLimit  int64
	Relocations  uint64
	Pools        []pool.Stats
}

// Stats returns a snapshot of the manager bookkeeping.
func (m *Manager) Stats() Stats {
	s := Stats{
		Partition:    m.opts.partition,
		LaneWidth:    m.opts.laneWidth,
		Groups:       len(m.pools),
		TotalObjects: m.total,
		MemoryUsage:  m.rc.MemoryUsage(),
		MemoryLimit:  m.rc.MemoryLimit(),
		Relocations:  m.relocations,
		Pools:        make([]pool.Stats, 0, len(m.pools)),
	}
	for _, p := range m.pools {
		ps := p.Stats()
		s.Capacity += ps.Capacity
		s.Bytes += ps.Bytes
		s.Pools = append(s.Pools, ps)
	}
	return s
}

// Verify checks every pool and the aggregate count. It walks every slot and
// is meant for tests.
func (m *Manager) Verify() error {
	sum := 0
	for g, p := range m.pools {
		if err := p.Verify(); err != nil {
			return err
		}
		if p.Dummy() != Occupant(m.anchor) {
			return fmt.Errorf("%w: group %d: padding occupant is not the anchor", ErrInvariantDrift, g)
		}
		for slot := 0; slot < p.Live(); slot++ {
			h, ok := p.Occupant(slot).(*Handle)
			if !ok || h.mgr != m || h.group != g {
				return fmt.Errorf("%w: group %d: slot %d is not owned by a handle of this group", ErrInvariantDrift, g, slot)
			}
		}
		sum += p.Live()
	}
	if sum != m.total {
		return fmt.Errorf("%w: total objects %d, pools hold %d", ErrInvariantDrift, m.total, sum)
	}
	return nil
}

// Close releases every pool and unlinks the twin. Handles of live objects
// become invalid. Close is idempotent.
func (m *Manager) Close() error {
	if m == nil || m.closed {
		return nil
	}
	m.closed = true
	m.SetTwin(nil)

	var errs []error
	for _, p := range m.pools {
		for _, occ := range p.Occupants()[:p.Live()] {
			if h, ok := occ.(*Handle); ok && h.mgr == m {
				h.invalidate()
			}
		}
		errs = append(errs, p.Close())
	}
	m.total = 0
	m.dirty.Clear()
	return errors.Join(errs...)
}

// Occupant is the pool-level view of a handle.
type Occupant = pool.Occupant

func (m *Manager) checkHandle(h *Handle) error {
	if m.closed {
		return ErrClosed
	}
	if !h.Valid() {
		return ErrInvalidHandle
	}
	if h.mgr != m {
		return ErrForeignHandle
	}
	if h.group < 0 || h.group >= len(m.pools) {
		return &GroupError{Group: h.group, Want: -1, cause: ErrInvalidGroup}
	}
	p := m.pools[h.group]
	if h.slot >= p.Live() || p.Occupant(h.slot) != Occupant(h) {
		return pool.NewSlotError(h.group, h.slot, p.Live())
	}
	return nil
}

func (m *Manager) onRelocate(e pool.RelocationEvent) {
	m.relocations++
	m.relocatedBytes += e.Bytes
	m.markDirty(e.Group)
	m.opts.metricsCollector.RecordRelocation(e.Group, e.OldCapacity, e.NewCapacity, e.Bytes, e.Duration)
	m.logger.LogRelocation(e)
	m.summary.Do(func() {
		m.logger.LogRelocationSummary(e, m.relocations, m.relocatedBytes)
	})
}

// check panics on invariant drift when debug checks are enabled.
func (m *Manager) check() {
	if !m.opts.debugChecks {
		return
	}
	if err := m.Verify(); err != nil {
		panic(err)
	}
}

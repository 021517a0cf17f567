package soamem

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/soamem/pool"
	"github.com/hupe1980/soamem/resource"
	"github.com/hupe1980/soamem/slab"
	"github.com/hupe1980/soamem/testutil"
)

const (
	attrPosition    = 0
	attrOrientation = 1
	attrScale       = 2
)

type relocation struct {
	group, slot int
}

type node struct {
	name  string
	moves []relocation
	group int
	slot  int
}

func (n *node) Relocated(h *Handle, oldGroup, oldSlot int) {
	n.moves = append(n.moves, relocation{oldGroup, oldSlot})
	n.group, n.slot = h.Group(), h.Slot()
}

func newTestManager(t *testing.T, optFns ...Option) *Manager {
	t.Helper()
	optFns = append([]Option{WithLaneWidth(4), WithDebugChecks(true)}, optFns...)
	m, err := New(optFns...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func position(h *Handle) []float32 {
	dst := make([]float32, 3)
	h.Load(attrPosition, dst)
	return dst
}

func TestLifecycleScenario(t *testing.T) {
	m := newTestManager(t)

	nodes := make([]*node, 5)
	handles := make([]*Handle, 5)
	for i := range handles {
		nodes[i] = &node{name: string(rune('a' + i))}
		h, err := m.ObjectCreated(nodes[i], 0)
		require.NoError(t, err)
		require.Equal(t, i, h.Slot())
		h.Store(attrPosition, []float32{float32(i), float32(i), float32(i)})
		handles[i] = h
	}

	p := m.Pool(0)
	assert.Equal(t, 8, p.Capacity())
	for slot := 5; slot < 8; slot++ {
		for a := 0; a < p.NumSlabs(); a++ {
			assert.True(t, p.Slab(a).IsDummy(slot), "slot %d attr %d", slot, a)
		}
		assert.Same(t, m.DummyAnchor(), p.Occupant(slot))
	}
	assert.Equal(t, 5, m.TotalObjects())

	// Destroy slot 1: slot 4 is compacted into it.
	require.NoError(t, m.ObjectDestroyed(handles[1]))
	assert.False(t, handles[1].Valid())
	assert.Equal(t, 4, m.GroupLive(0))
	assert.Equal(t, 4, m.TotalObjects())
	assert.Equal(t, 1, handles[4].Slot())
	assert.Equal(t, []float32{4, 4, 4}, position(handles[4]))
	assert.Equal(t, []relocation{{0, 4}}, nodes[4].moves)
	assert.Equal(t, 1, nodes[4].slot)

	// Move the object at slot 1 to group 1.
	require.NoError(t, m.ObjectMoved(handles[4], 1))
	assert.Equal(t, 3, m.GroupLive(0))
	assert.Equal(t, 1, m.GroupLive(1))
	assert.Equal(t, 4, m.TotalObjects())
	assert.Equal(t, 1, handles[4].Group())
	assert.Equal(t, 0, handles[4].Slot())
	assert.Equal(t, []float32{4, 4, 4}, position(handles[4]))
	assert.Equal(t, relocation{0, 1}, nodes[4].moves[1])

	// Slot 3 was compacted into the hole left by the move.
	assert.Equal(t, 1, handles[3].Slot())
	assert.Equal(t, []float32{3, 3, 3}, position(handles[3]))
	assert.True(t, p.Slab(attrPosition).IsDummy(3))

	require.NoError(t, m.Verify())
}

func TestCreateStartsWithDummyRecord(t *testing.T) {
	m := newTestManager(t)

	h, err := m.ObjectCreated(nil, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, m.NumGroups())

	q := make([]float32, 4)
	h.Load(attrOrientation, q)
	assert.Equal(t, []float32{0, 0, 0, 1}, q)
	assert.Equal(t, float32(1), h.Get(attrScale, 2))

	h.Set(attrScale, 0, 2)
	require.NoError(t, m.ObjectDestroyed(h))

	// Reused slot is reset.
	h, err = m.ObjectCreated(nil, 2)
	require.NoError(t, err)
	assert.Equal(t, float32(1), h.Get(attrScale, 0))
}

func TestMovePreservesBits(t *testing.T) {
	m := newTestManager(t)
	rng := testutil.NewRNG(42)

	h, err := m.ObjectCreated(nil, 0)
	require.NoError(t, err)

	want := make([][]float32, len(m.Schema()))
	for a, attr := range m.Schema() {
		want[a] = rng.Record(attr.Components)
		h.Store(a, want[a])
	}

	for _, g := range []int{3, 1, 0, 5} {
		require.NoError(t, m.ObjectMoved(h, g))
		assert.Equal(t, g, h.Group())
		for a, attr := range m.Schema() {
			got := make([]float32, attr.Components)
			h.Load(a, got)
			assert.Equal(t, want[a], got, "group %d attr %s", g, attr.Name)
		}
	}
	assert.Equal(t, 1, m.TotalObjects())

	// Moving into the same group is a no-op.
	slot := h.Slot()
	require.NoError(t, m.ObjectMoved(h, 5))
	assert.Equal(t, slot, h.Slot())
}

func TestMoveAllocationFailureLeavesObject(t *testing.T) {
	// One lane group of the transform schema: 4 slots * 10 floats * 4 bytes.
	m := newTestManager(t, WithMemoryLimit(160))

	h, err := m.ObjectCreated(nil, 0)
	require.NoError(t, err)
	h.Store(attrPosition, []float32{1, 2, 3})

	err = m.ObjectMoved(h, 1)
	require.ErrorIs(t, err, ErrAllocationFailed)
	require.ErrorIs(t, err, resource.ErrMemoryLimitExceeded)

	assert.Equal(t, 0, h.Group())
	assert.Equal(t, 0, h.Slot())
	assert.Equal(t, []float32{1, 2, 3}, position(h))
	assert.Equal(t, 1, m.GroupLive(0))
	assert.Equal(t, 0, m.GroupLive(1))
	assert.Equal(t, 1, m.TotalObjects())
	require.NoError(t, m.Verify())

	_, err = m.ObjectCreated(nil, 3)
	require.ErrorIs(t, err, ErrAllocationFailed)
	assert.Equal(t, 1, m.TotalObjects())
}

func TestContractViolations(t *testing.T) {
	m := newTestManager(t)
	other := newTestManager(t)

	_, err := m.ObjectCreated(nil, -1)
	assert.ErrorIs(t, err, ErrInvalidGroup)

	h, err := m.ObjectCreated(nil, 1)
	require.NoError(t, err)

	var ge *GroupError
	err = m.ObjectMovedFrom(h, 0, 2)
	require.ErrorIs(t, err, ErrGroupMismatch)
	require.ErrorAs(t, err, &ge)
	assert.Equal(t, 1, ge.Want)

	assert.ErrorIs(t, other.ObjectDestroyed(h), ErrForeignHandle)
	assert.ErrorIs(t, m.ObjectDestroyed(nil), ErrInvalidHandle)
	assert.ErrorIs(t, m.ObjectDestroyed(m.DummyAnchor()), ErrInvalidHandle)

	require.NoError(t, m.ObjectDestroyed(h))
	assert.ErrorIs(t, m.ObjectDestroyed(h), ErrInvalidHandle)
	assert.ErrorIs(t, m.ObjectMoved(h, 0), ErrInvalidHandle)

	_, _, err = m.FirstObjectData(-3)
	assert.ErrorIs(t, err, ErrInvalidGroup)
	assert.Equal(t, 0, m.TotalObjects())
}

func TestNewValidation(t *testing.T) {
	_, err := New(WithLaneWidth(3))
	assert.ErrorIs(t, err, ErrInvalidLaneWidth)

	_, err = New(WithSchema(slab.Schema{slab.Radius, slab.Radius}))
	assert.ErrorIs(t, err, slab.ErrInvalidAttribute)

	m, err := New()
	require.NoError(t, err)
	assert.Positive(t, m.LaneWidth())
	assert.Equal(t, Dynamic, m.Partition())
	assert.True(t, m.Schema().Equal(slab.Transform()))
	require.NoError(t, m.Close())
}

func TestDummyAnchor(t *testing.T) {
	m := newTestManager(t)
	a := m.DummyAnchor()

	assert.True(t, a.IsAnchor())
	assert.False(t, a.Valid())
	assert.Equal(t, -1, a.Slot())
	assert.Nil(t, a.Owner())

	// Reading through the anchor yields the dummy record.
	q := make([]float32, 4)
	a.Load(attrOrientation, q)
	assert.Equal(t, []float32{0, 0, 0, 1}, q)
	assert.Equal(t, float32(1), a.Get(attrScale, 1))
	a.Set(attrScale, 1, 7)
	a.SetSlot(3)
	assert.Equal(t, -1, a.Slot())
	assert.Nil(t, a.Ptr(attrScale, 0))

	b, n, err := m.FirstObjectData(9)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Same(t, a, b.First())
}

func TestMigrateToTwin(t *testing.T) {
	dynamic := newTestManager(t, WithLaneWidth(8))
	static := newTestManager(t, WithPartition(Static))

	_, err := dynamic.ObjectCreated(nil, 0)
	require.NoError(t, err)
	n := &node{}
	h, err := dynamic.ObjectCreated(n, 0)
	require.NoError(t, err)
	h.Store(attrPosition, []float32{7, 8, 9})

	assert.ErrorIs(t, dynamic.MigrateToTwin(h, 2), ErrNoTwin)

	dynamic.SetTwin(static)
	assert.Same(t, static, dynamic.Twin())
	assert.Same(t, dynamic, static.Twin())

	require.NoError(t, dynamic.MigrateToTwin(h, 2))
	assert.Same(t, static, h.Manager())
	assert.Equal(t, 2, h.Group())
	assert.Equal(t, []float32{7, 8, 9}, position(h))
	assert.Equal(t, 1, dynamic.TotalObjects())
	assert.Equal(t, 1, static.TotalObjects())
	assert.Equal(t, []relocation{{0, 1}}, n.moves)

	// And back again, via the other twin.
	require.NoError(t, static.MigrateTo(h, 0, dynamic))
	assert.Same(t, dynamic, h.Manager())
	assert.Equal(t, 1, h.Slot())
	assert.Equal(t, []float32{7, 8, 9}, position(h))
	assert.Equal(t, 2, dynamic.TotalObjects())
	assert.Equal(t, 0, static.TotalObjects())

	assert.ErrorIs(t, static.MigrateTo(h, 0, dynamic), ErrForeignHandle)
}

func TestMigrateSchemaMismatch(t *testing.T) {
	a := newTestManager(t)
	b := newTestManager(t, WithSchema(slab.Schema{slab.Position, slab.Radius}))

	h, err := a.ObjectCreated(nil, 0)
	require.NoError(t, err)

	assert.ErrorIs(t, a.MigrateTo(h, 0, b), ErrSchemaMismatch)
	assert.Same(t, a, h.Manager())
	assert.Equal(t, 1, a.TotalObjects())
	assert.Zero(t, b.TotalObjects())
}

func TestSetTwinRelinks(t *testing.T) {
	a := newTestManager(t)
	b := newTestManager(t)
	c := newTestManager(t)

	a.SetTwin(b)
	c.SetTwin(a)
	assert.Same(t, c, a.Twin())
	assert.Nil(t, b.Twin())

	a.SetTwin(nil)
	assert.Nil(t, a.Twin())
	assert.Nil(t, c.Twin())

	a.SetTwin(b)
	require.NoError(t, b.Close())
	assert.Nil(t, a.Twin())
}

type countingListener struct {
	groups   map[int]int
	cleanups int
}

func (c *countingListener) BuildDiffList(group int, _ []uintptr) pool.DiffList {
	c.groups[group]++
	return nil
}

func (c *countingListener) ApplyRebase(int, []unsafe.Pointer, pool.DiffList) {}

func (c *countingListener) PerformCleanup(int, int, []pool.Move) { c.cleanups++ }

func TestListenersReachEveryPool(t *testing.T) {
	m := newTestManager(t)
	require.NoError(t, m.GrowToDepth(0))

	l := &countingListener{groups: map[int]int{}}
	m.AddListener(l)

	for g := 0; g < 2; g++ {
		for i := 0; i < 5; i++ {
			_, err := m.ObjectCreated(nil, g)
			require.NoError(t, err)
		}
	}
	assert.Equal(t, map[int]int{0: 1, 1: 1}, l.groups)

	b, _, err := m.FirstObjectData(1)
	require.NoError(t, err)
	require.NoError(t, m.ObjectDestroyed(b.First()))
	assert.Equal(t, 1, l.cleanups)

	m.RemoveListener(l)
	for i := 0; i < 5; i++ {
		_, err := m.ObjectCreated(nil, 0)
		require.NoError(t, err)
	}
	assert.Equal(t, 1, l.groups[0])
}

func TestPointerCacheThroughManager(t *testing.T) {
	m := newTestManager(t)

	h, err := m.ObjectCreated(nil, 0)
	require.NoError(t, err)
	h.Store(attrPosition, []float32{1, 2, 3})

	cache := pool.NewPointerCache(m.Pool(0))
	id, err := cache.Track(h.Slot(), attrPosition, 2)
	require.NoError(t, err)

	for i := 0; i < 40; i++ {
		_, err := m.ObjectCreated(nil, 0)
		require.NoError(t, err)
	}
	assert.Equal(t, float32(3), *cache.Pointer(id))
	assert.Same(t, h.Ptr(attrPosition, 2), cache.Pointer(id))
}

func TestManagerWideListenerFiltersGroups(t *testing.T) {
	m := newTestManager(t)

	h, err := m.ObjectCreated(nil, 0)
	require.NoError(t, err)
	h.Store(attrPosition, []float32{4, 5, 6})

	cache := pool.NewPointerCache(m.Pool(0))
	m.AddListener(cache)
	id, err := cache.Track(h.Slot(), attrPosition, 1)
	require.NoError(t, err)

	// Growth and compaction in another group leave the cache alone.
	for i := 0; i < 9; i++ {
		_, err := m.ObjectCreated(nil, 1)
		require.NoError(t, err)
	}
	first := m.Pool(1).Occupant(0).(*Handle)
	require.NoError(t, m.ObjectDestroyed(first))

	require.NotNil(t, cache.Pointer(id))
	assert.Same(t, h.Ptr(attrPosition, 1), cache.Pointer(id))
	assert.Equal(t, float32(5), *cache.Pointer(id))

	// Growth of its own group still rebases it.
	for i := 0; i < 9; i++ {
		_, err := m.ObjectCreated(nil, 0)
		require.NoError(t, err)
	}
	assert.Same(t, h.Ptr(attrPosition, 1), cache.Pointer(id))
	assert.Equal(t, 1, cache.Len())
}

func TestDestroyedHandleAccessPanics(t *testing.T) {
	m := newTestManager(t)
	h, err := m.ObjectCreated(nil, 0)
	require.NoError(t, err)
	require.NoError(t, m.ObjectDestroyed(h))

	assert.PanicsWithValue(t, ErrInvalidHandle, func() { h.Get(attrPosition, 0) })
	assert.PanicsWithValue(t, ErrInvalidHandle, func() { h.Set(attrPosition, 0, 1) })
	assert.PanicsWithValue(t, ErrInvalidHandle, func() { h.Load(attrPosition, make([]float32, 3)) })
	assert.PanicsWithValue(t, ErrInvalidHandle, func() { h.Store(attrPosition, []float32{1, 2, 3}) })
	assert.PanicsWithValue(t, ErrInvalidHandle, func() { h.Ptr(attrPosition, 0) })
}

func TestDirtyGroups(t *testing.T) {
	m := newTestManager(t)

	h, err := m.ObjectCreated(nil, 0)
	require.NoError(t, err)
	_, err = m.ObjectCreated(nil, 4)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 4}, m.DirtyGroups())

	m.ClearDirty()
	assert.Empty(t, m.DirtyGroups())

	require.NoError(t, m.ObjectMoved(h, 2))
	assert.Equal(t, []int{0, 2}, m.DirtyGroups())
}

func TestTrimAndStats(t *testing.T) {
	metrics := &BasicMetricsCollector{}
	m := newTestManager(t, WithMetricsCollector(metrics))

	handles := make([]*Handle, 9)
	for i := range handles {
		h, err := m.ObjectCreated(nil, 0)
		require.NoError(t, err)
		handles[i] = h
	}
	stats := m.Stats()
	assert.Equal(t, 16, stats.Capacity)
	assert.Equal(t, int64(16*10*4), stats.Bytes)
	assert.Equal(t, stats.Bytes, stats.MemoryUsage)

	for _, h := range handles[:6] {
		require.NoError(t, m.ObjectDestroyed(h))
	}
	require.NoError(t, m.Trim())

	stats = m.Stats()
	assert.Equal(t, 1, stats.Groups)
	assert.Equal(t, 3, stats.TotalObjects)
	assert.Equal(t, 4, stats.Capacity)
	assert.Equal(t, int64(4*10*4), stats.MemoryUsage)
	assert.Equal(t, uint64(3), stats.Relocations)
	require.Len(t, stats.Pools, 1)
	assert.Equal(t, uint64(1), stats.Pools[0].Trims)

	ms := metrics.GetStats()
	assert.Equal(t, int64(9), ms.CreateCount)
	assert.Equal(t, int64(6), ms.DestroyCount)
	assert.Equal(t, int64(2), ms.GrowthCount)
	assert.Equal(t, int64(1), ms.TrimCount)
	assert.Equal(t, int64(16), ms.PeakSlotsPerGroup)
}

func TestSharedController(t *testing.T) {
	rc := resource.NewController(resource.Config{MemoryLimitBytes: 1 << 20, MaxWorkers: 2})
	a := newTestManager(t, WithResourceController(rc))
	b := newTestManager(t, WithResourceController(rc), WithPartition(Static))

	_, err := a.ObjectCreated(nil, 0)
	require.NoError(t, err)
	_, err = b.ObjectCreated(nil, 0)
	require.NoError(t, err)

	assert.Same(t, rc, a.Controller())
	assert.Equal(t, int64(2*160), rc.MemoryUsage())

	require.NoError(t, a.Close())
	assert.Equal(t, int64(160), rc.MemoryUsage())
}

func TestClose(t *testing.T) {
	m := newTestManager(t)
	h, err := m.ObjectCreated(nil, 0)
	require.NoError(t, err)

	other, err := m.ObjectCreated(nil, 2)
	require.NoError(t, err)

	require.NoError(t, m.Close())
	require.NoError(t, m.Close())
	assert.Zero(t, m.Controller().MemoryUsage())
	assert.Zero(t, m.TotalObjects())

	for _, h := range []*Handle{h, other} {
		assert.False(t, h.Valid())
		assert.Equal(t, -1, h.Slot())
		assert.Nil(t, h.Manager())
		assert.PanicsWithValue(t, ErrInvalidHandle, func() { h.Get(attrPosition, 0) })
	}
	assert.True(t, m.DummyAnchor().IsAnchor())

	_, err = m.ObjectCreated(nil, 0)
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, m.ObjectDestroyed(h), ErrClosed)
	_, _, err = m.FirstObjectData(0)
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, m.Trim(), ErrClosed)
}

func TestDebugChecksPanicOnDrift(t *testing.T) {
	m := newTestManager(t)
	for i := 0; i < 5; i++ {
		_, err := m.ObjectCreated(nil, 0)
		require.NoError(t, err)
	}

	m.Pool(0).Slab(attrScale).Set(7, 0, 42)
	assert.Panics(t, func() { _, _ = m.ObjectCreated(nil, 0) })
	assert.ErrorIs(t, m.Verify(), ErrInvariantDrift)
}

func TestRandomizedOperations(t *testing.T) {
	rng := testutil.NewRNG(4711)
	m := newTestManager(t)

	type object struct {
		h    *Handle
		n    *node
		want []float32
	}
	var live []*object

	for _, op := range rng.Script(2000, 4) {
		switch {
		case op.Kind == testutil.OpCreate || len(live) == 0:
			n := &node{}
			h, err := m.ObjectCreated(n, op.Group)
			require.NoError(t, err)
			n.group, n.slot = h.Group(), h.Slot()
			o := &object{h: h, n: n, want: rng.Record(3)}
			h.Store(attrPosition, o.want)
			live = append(live, o)
		case op.Kind == testutil.OpMove:
			o := live[op.Pick%len(live)]
			require.NoError(t, m.ObjectMoved(o.h, op.Group))
		default:
			i := op.Pick % len(live)
			require.NoError(t, m.ObjectDestroyed(live[i].h))
			live[i] = live[len(live)-1]
			live = live[:len(live)-1]
		}
	}

	require.NoError(t, m.Verify())
	assert.Equal(t, len(live), m.TotalObjects())

	sum := 0
	for g := 0; g < m.NumGroups(); g++ {
		sum += m.GroupLive(g)
	}
	assert.Equal(t, m.TotalObjects(), sum)

	for _, o := range live {
		require.True(t, o.h.Valid())
		assert.Equal(t, o.want, position(o.h))
		assert.Equal(t, o.h.Group(), o.n.group)
		assert.Equal(t, o.h.Slot(), o.n.slot)
	}
}

func TestGrowToDepth(t *testing.T) {
	m := newTestManager(t)

	require.NoError(t, m.GrowToDepth(3))
	assert.Equal(t, 4, m.NumGroups())
	for g := 0; g < 4; g++ {
		p := m.Pool(g)
		require.NotNil(t, p)
		assert.Equal(t, g, p.Group())
		assert.Zero(t, p.Live())
		assert.Zero(t, p.Capacity())
	}
	assert.Zero(t, m.TotalObjects())

	// Growing to a shallower depth is a no-op.
	require.NoError(t, m.GrowToDepth(1))
	assert.Equal(t, 4, m.NumGroups())

	err := m.GrowToDepth(-1)
	require.ErrorIs(t, err, ErrInvalidGroup)
	var ge *GroupError
	require.ErrorAs(t, err, &ge)
	assert.Equal(t, -1, ge.Group)

	require.NoError(t, m.Close())
	assert.ErrorIs(t, m.GrowToDepth(5), ErrClosed)
}

package soamem

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/soamem/internal/simd"
	"github.com/hupe1980/soamem/pool"
)

// Batch is the read view of one group for SIMD update loops.
//
// Processing Padded() slots is always safe: slots in [Len(), Padded()) hold
// the dummy record in every attribute and the anchor as their handle.
// A Batch is invalidated by any structural operation on its group.
type Batch struct {
	pool   *pool.Pool
	anchor *Handle
}

// Group returns the group key, or -1 for an empty batch.
func (b Batch) Group() int {
	if b.pool == nil {
		return -1
	}
	return b.pool.Group()
}

// Len returns the number of live objects.
func (b Batch) Len() int {
	if b.pool == nil {
		return 0
	}
	return b.pool.Live()
}

// LaneWidth returns the SIMD packing factor.
func (b Batch) LaneWidth() int {
	switch {
	case b.pool != nil:
		return b.pool.LaneWidth()
	case b.anchor != nil:
		return b.anchor.mgr.opts.laneWidth
	default:
		return 0
	}
}

// Padded returns Len rounded up to whole lane groups.
func (b Batch) Padded() int {
	return simd.RoundUp(b.Len(), b.LaneWidth())
}

// LaneGroups returns the number of lane groups to process.
func (b Batch) LaneGroups() int {
	if b.pool == nil {
		return 0
	}
	return simd.LaneGroups(b.Len(), b.LaneWidth())
}

// First returns the handle of slot 0, or the anchor when the group is empty.
func (b Batch) First() *Handle {
	return b.Handle(0)
}

// Handle returns the handle occupying slot, the anchor for padding slots.
func (b Batch) Handle(slot int) *Handle {
	if b.pool == nil || slot >= b.pool.Capacity() {
		return b.anchor
	}
	return b.pool.Occupant(slot).(*Handle)
}

// Attribute returns the lane-interleaved data of attribute attr covering
// Padded() slots. The slice aliases slab memory.
func (b Batch) Attribute(attr int) []float32 {
	if b.pool == nil || b.pool.Slab(attr) == nil {
		return nil
	}
	s := b.pool.Slab(attr)
	return s.Data()[:b.Padded()*s.Attribute().Components]
}

// AttributeByName is Attribute looked up by name.
func (b Batch) AttributeByName(name string) ([]float32, bool) {
	if b.pool == nil {
		return nil, false
	}
	i := b.pool.Schema().IndexOf(name)
	if i < 0 {
		return nil, false
	}
	return b.Attribute(i), true
}

// Lanes returns the LaneWidth contiguous values of component comp of
// attribute attr for lane group g, ready for one vector load. g must be
// below LaneGroups.
func (b Batch) Lanes(attr, g, comp int) []float32 {
	s := b.pool.Slab(attr)
	w := s.LaneWidth()
	i := s.Index(g*w, comp)
	return s.Data()[i : i+w]
}

// ForEachGroup calls fn for every non-empty group. Groups are disjoint pools,
// so callbacks run in parallel, bounded by the worker limit. fn must not
// perform structural operations. The first error cancels the remaining
// groups and is returned.
func (m *Manager) ForEachGroup(ctx context.Context, fn func(ctx context.Context, b Batch) error) error {
	if m.closed {
		return ErrClosed
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.rc.MaxWorkers())

	for _, p := range m.pools {
		if p.Live() == 0 {
			continue
		}
		if err := gctx.Err(); err != nil {
			break
		}
		b := Batch{pool: p, anchor: m.anchor}
		g.Go(func() error {
			if err := m.rc.AcquireWorker(gctx); err != nil {
				return err
			}
			defer m.rc.ReleaseWorker()
			return fn(gctx, b)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

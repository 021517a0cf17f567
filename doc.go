// Package soamem manages the memory of large homogeneous object collections
// in a lane-padded structure-of-arrays layout, so update loops can process
// LaneWidth objects per vector instruction without per-lane branching.
//
// # Layout
//
// Objects are partitioned into groups (a render queue, a hierarchy depth).
// Every group owns a pool of slabs, one slab per attribute of the schema.
// Slab capacity is always a whole number of lane groups and every slot past
// the last live object holds the attribute's dummy record:
//
//	position   |x0 x1 x2 x3|y0 y1 y2 y3|z0 z1 z2 z3|x4 -- -- --|y4 -- -- --|...
//	scale      |x0 x1 x2 x3|y0 y1 y2 y3|z0 z1 z2 z3|x4  1  1  1|y4  1  1  1|...
//	handles    | h0 h1 h2 h3 | h4 anchor anchor anchor |
//
// # Quick Start
//
//	m, _ := soamem.New(soamem.WithLaneWidth(8))
//	defer m.Close()
//
//	h, _ := m.ObjectCreated(node, depth)
//	h.Store(0, []float32{x, y, z}) // position
//
//	b, n, _ := m.FirstObjectData(depth)
//	for g := 0; g < b.LaneGroups(); g++ {
//	    xs := b.Lanes(0, g, 0) // LaneWidth contiguous x values
//	    _ = xs
//	}
//	_ = n
//
// # Structural Operations
//
// ObjectCreated, ObjectMoved, ObjectDestroyed and MigrateTo keep live slots
// contiguous from index 0. Destroying an object that is not last moves the
// group's last object into the freed slot (swap-with-last); its handle is
// updated in place and its owner is notified through Relocatable.
//
// Growth never happens in place. All slabs of a pool are reallocated
// together, or none are; callers that cache raw pointers into slab memory
// register a pool.RebaseListener to have them patched.
//
// # Twins
//
// Two managers can be linked with SetTwin, typically a Static and a Dynamic
// partition of the same scene. MigrateToTwin moves an object across without
// the caller tracking both managers.
//
// # Concurrency
//
// Structural operations are single-writer. ForEachGroup processes disjoint
// groups in parallel for read or in-place update passes.
package soamem

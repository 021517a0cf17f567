// Package resource budgets the memory held by slabs and bounds the
// concurrency of parallel group iteration.
//
//	┌───────────────────────────────────────────┐
//	│                Controller                 │
//	├─────────────────────┬─────────────────────┤
//	│  Memory Limit       │  Workers (sem)      │
//	│  (fail-fast)        │  (blocking)         │
//	├─────────────────────┼─────────────────────┤
//	│  AcquireMemory      │  AcquireWorker      │
//	│  ReleaseMemory      │  TryAcquireWorker   │
//	│  MemoryUsage        │  ReleaseWorker      │
//	└─────────────────────┴─────────────────────┘
//
// # Memory
//
// Pools charge every allocation and growth before touching their slabs and
// refund on trim and close. AcquireMemory never blocks: a growth that does
// not fit fails with ErrMemoryLimitExceeded and the pool stays unchanged.
//
//	rc := resource.NewController(resource.Config{
//	    MemoryLimitBytes: 64 << 20,
//	})
//	if err := rc.AcquireMemory(4096); err != nil {
//	    // ErrMemoryLimitExceeded
//	}
//	defer rc.ReleaseMemory(4096)
//
// # Workers
//
// Parallel iteration over groups holds one worker slot per running callback.
//
// # Nil Safety
//
// All methods handle a nil Controller: memory is unlimited and untracked and
// worker slots are always granted.
package resource

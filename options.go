package soamem

import (
	"log/slog"

	"github.com/hupe1980/soamem/resource"
	"github.com/hupe1980/soamem/slab"
)

type options struct {
	schema           slab.Schema
	laneWidth        int
	initialCapacity  int
	growthStep       int
	allocator        slab.Allocator
	memoryLimit      int64
	controller       *resource.Controller
	workers          int
	metricsCollector MetricsCollector
	logger           *Logger
	debugChecks      bool
	partition        Partition
}

// Option configures a Manager.
type Option func(*options)

// WithSchema sets the attributes stored per object. Defaults to
// slab.Transform() (position, orientation, scale).
func WithSchema(schema slab.Schema) Option {
	return func(o *options) {
		o.schema = schema
	}
}

// WithLaneWidth sets the SIMD packing factor. It must be a power of two.
//
// Defaults to the widest float32 vector of the running CPU (16 with
// AVX-512, 8 with AVX2, 4 otherwise). The SOAMEM_SIMD environment variable
// overrides detection.
func WithLaneWidth(n int) Option {
	return func(o *options) {
		o.laneWidth = n
	}
}

// WithInitialCapacity sets the slot capacity of a pool's first allocation.
// It is rounded up to whole lane groups; the default is one lane group.
func WithInitialCapacity(n int) Option {
	return func(o *options) {
		o.initialCapacity = n
	}
}

// WithGrowthStep makes pools grow by a fixed number of slots (rounded up to
// whole lane groups) instead of doubling.
func WithGrowthStep(n int) Option {
	return func(o *options) {
		o.growthStep = n
	}
}

// WithAllocator sets the allocator backing every slab.
//
// Example with off-heap slabs:
//
//	m, _ := soamem.New(soamem.WithAllocator(mem.NewOffHeap()))
func WithAllocator(a slab.Allocator) Option {
	return func(o *options) {
		o.allocator = a
	}
}

// WithMemoryLimit caps the bytes held by all slabs of the manager. Growth
// beyond the limit fails with ErrAllocationFailed. Ignored when a resource
// controller is supplied.
func WithMemoryLimit(bytes int64) Option {
	return func(o *options) {
		o.memoryLimit = bytes
	}
}

// WithResourceController shares a memory budget and worker limit between
// managers, typically a static and a dynamic twin.
func WithResourceController(c *resource.Controller) Option {
	return func(o *options) {
		o.controller = c
	}
}

// WithWorkers bounds the number of groups ForEachGroup processes at once.
// Defaults to GOMAXPROCS. Ignored when a resource controller is supplied.
func WithWorkers(n int) Option {
	return func(o *options) {
		o.workers = n
	}
}

// WithMetricsCollector configures a metrics collector for monitoring operations.
// Pass nil to disable metrics collection.
//
// Example with BasicMetricsCollector:
//
//	metrics := &soamem.BasicMetricsCollector{}
//	m, _ := soamem.New(soamem.WithMetricsCollector(metrics))
//	// ... use m ...
//	stats := metrics.GetStats()
//	fmt.Printf("Creates: %d, Growths: %d\n", stats.CreateCount, stats.GrowthCount)
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		if mc == nil {
			mc = NoopMetricsCollector{}
		}
		o.metricsCollector = mc
	}
}

// WithLogger configures structured logging for operations.
// Pass nil to disable logging.
//
// Example with JSON logging:
//
//	logger := soamem.NewJSONLogger(slog.LevelDebug)
//	m, _ := soamem.New(soamem.WithLogger(logger))
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		if logger == nil {
			logger = NoopLogger()
		}
		o.logger = logger
	}
}

// WithLogLevel creates a text logger with the specified level and sets it.
// Convenience wrapper for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

// WithDebugChecks verifies every invariant after each structural operation
// and panics on drift. Meant for tests; it walks every slot.
func WithDebugChecks(enabled bool) Option {
	return func(o *options) {
		o.debugChecks = enabled
	}
}

// WithPartition labels the manager as the static or dynamic partition.
func WithPartition(p Partition) Option {
	return func(o *options) {
		o.partition = p
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		schema:           slab.Transform(),
		metricsCollector: NoopMetricsCollector{},
		logger:           NoopLogger(),
		partition:        Dynamic,
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	return o
}

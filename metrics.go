package soamem

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems like Prometheus.
//
// Example Prometheus integration:
//
//	type PrometheusCollector struct {
//	    creates prometheus.Counter
//	    growth  prometheus.Histogram
//	}
//
//	func (p *PrometheusCollector) RecordCreate(group int, duration time.Duration, err error) {
//	    p.creates.Inc()
//	}
type MetricsCollector interface {
	// RecordCreate is called after each object creation.
	RecordCreate(group int, duration time.Duration, err error)

	// RecordMove is called after each move between groups of one manager.
	RecordMove(from, to int, duration time.Duration, err error)

	// RecordDestroy is called after each object destruction. compacted is
	// true when swap-with-last moved another object.
	RecordDestroy(group int, compacted bool, duration time.Duration, err error)

	// RecordMigrate is called after each migration to another manager.
	RecordMigrate(duration time.Duration, err error)

	// RecordRelocation is called after each pool growth or trim.
	RecordRelocation(group, oldCapacity, newCapacity int, bytes int64, duration time.Duration)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
// Use this when metrics collection is not needed.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordCreate(int, time.Duration, error)               {}
func (NoopMetricsCollector) RecordMove(int, int, time.Duration, error)            {}
func (NoopMetricsCollector) RecordDestroy(int, bool, time.Duration, error)        {}
func (NoopMetricsCollector) RecordMigrate(time.Duration, error)                   {}
func (NoopMetricsCollector) RecordRelocation(int, int, int, int64, time.Duration) {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	CreateCount       atomic.Int64
	CreateErrors      atomic.Int64
	CreateTotalNanos  atomic.Int64
	MoveCount         atomic.Int64
	MoveErrors        atomic.Int64
	DestroyCount      atomic.Int64
	DestroyErrors     atomic.Int64
	Compactions       atomic.Int64
	MigrateCount      atomic.Int64
	MigrateErrors     atomic.Int64
	GrowthCount       atomic.Int64
	TrimCount         atomic.Int64
	RelocatedBytes    atomic.Int64
	RelocationNanos   atomic.Int64
	PeakSlotsPerGroup atomic.Int64
}

// RecordCreate implements MetricsCollector.
func (b *BasicMetricsCollector) RecordCreate(_ int, duration time.Duration, err error) {
	b.CreateCount.Add(1)
	b.CreateTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.CreateErrors.Add(1)
	}
}

// RecordMove implements MetricsCollector.
func (b *BasicMetricsCollector) RecordMove(_, _ int, _ time.Duration, err error) {
	b.MoveCount.Add(1)
	if err != nil {
		b.MoveErrors.Add(1)
	}
}

// RecordDestroy implements MetricsCollector.
func (b *BasicMetricsCollector) RecordDestroy(_ int, compacted bool, _ time.Duration, err error) {
	b.DestroyCount.Add(1)
	if err != nil {
		b.DestroyErrors.Add(1)
		return
	}
	if compacted {
		b.Compactions.Add(1)
	}
}

// RecordMigrate implements MetricsCollector.
func (b *BasicMetricsCollector) RecordMigrate(_ time.Duration, err error) {
	b.MigrateCount.Add(1)
	if err != nil {
		b.MigrateErrors.Add(1)
	}
}

// RecordRelocation implements MetricsCollector.
func (b *BasicMetricsCollector) RecordRelocation(_, oldCapacity, newCapacity int, bytes int64, duration time.Duration) {
	if newCapacity > oldCapacity {
		b.GrowthCount.Add(1)
	} else {
		b.TrimCount.Add(1)
	}
	b.RelocatedBytes.Add(bytes)
	b.RelocationNanos.Add(duration.Nanoseconds())
	for {
		peak := b.PeakSlotsPerGroup.Load()
		if int64(newCapacity) <= peak || b.PeakSlotsPerGroup.CompareAndSwap(peak, int64(newCapacity)) {
			break
		}
	}
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		CreateCount:       b.CreateCount.Load(),
		CreateErrors:      b.CreateErrors.Load(),
		CreateAvgNanos:    b.getAvgCreateNanos(),
		MoveCount:         b.MoveCount.Load(),
		MoveErrors:        b.MoveErrors.Load(),
		DestroyCount:      b.DestroyCount.Load(),
		DestroyErrors:     b.DestroyErrors.Load(),
		Compactions:       b.Compactions.Load(),
		MigrateCount:      b.MigrateCount.Load(),
		MigrateErrors:     b.MigrateErrors.Load(),
		GrowthCount:       b.GrowthCount.Load(),
		TrimCount:         b.TrimCount.Load(),
		RelocatedBytes:    b.RelocatedBytes.Load(),
		RelocationNanos:   b.RelocationNanos.Load(),
		PeakSlotsPerGroup: b.PeakSlotsPerGroup.Load(),
	}
}

func (b *BasicMetricsCollector) getAvgCreateNanos() int64 {
	count := b.CreateCount.Load()
	if count == 0 {
		return 0
	}
	return b.CreateTotalNanos.Load() / count
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	CreateCount       int64
	CreateErrors      int64
	CreateAvgNanos    int64
	MoveCount         int64
	MoveErrors        int64
	DestroyCount      int64
	DestroyErrors     int64
	Compactions       int64
	MigrateCount      int64
	MigrateErrors     int64
	GrowthCount       int64
	TrimCount         int64
	RelocatedBytes    int64
	RelocationNanos   int64
	PeakSlotsPerGroup int64
}

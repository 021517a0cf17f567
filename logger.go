package soamem

import (
	"log/slog"
	"os"

	"github.com/hupe1980/soamem/pool"
)

// Logger wraps slog.Logger with soamem-specific context.
// This provides structured logging with consistent field names.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a new Logger with the given handler.
// If handler is nil, uses default text handler to stderr.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewJSONLogger creates a Logger that outputs JSON-formatted logs.
// level sets the minimum log level (e.g., slog.LevelDebug, slog.LevelInfo).
func NewJSONLogger(level slog.Level) *Logger {
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NoopLogger creates a Logger that discards all log output.
func NoopLogger() *Logger {
	return &Logger{
		Logger: slog.New(slog.DiscardHandler),
	}
}

// WithPartition adds a partition field to the logger.
func (l *Logger) WithPartition(p Partition) *Logger {
	return &Logger{
		Logger: l.Logger.With("partition", p.String()),
	}
}

// WithGroupKey adds a group field to the logger.
func (l *Logger) WithGroupKey(group int) *Logger {
	return &Logger{
		Logger: l.Logger.With("group", group),
	}
}

// WithCount adds a count field to the logger.
func (l *Logger) WithCount(count int) *Logger {
	return &Logger{
		Logger: l.Logger.With("count", count),
	}
}

// LogCreate logs an object creation.
func (l *Logger) LogCreate(group, slot int, err error) {
	if err != nil {
		l.Error("create failed",
			"group", group,
			"error", err,
		)
		return
	}
	l.Debug("object created",
		"group", group,
		"slot", slot,
	)
}

// LogMove logs a move between groups.
func (l *Logger) LogMove(from, to, slot int, err error) {
	if err != nil {
		l.Error("move failed",
			"from", from,
			"to", to,
			"error", err,
		)
		return
	}
	l.Debug("object moved",
		"from", from,
		"to", to,
		"slot", slot,
	)
}

// LogDestroy logs an object destruction. compacted is the slot moved into the
// freed position, or -1.
func (l *Logger) LogDestroy(group, slot, compacted int, err error) {
	if err != nil {
		l.Error("destroy failed",
			"group", group,
			"slot", slot,
			"error", err,
		)
		return
	}
	l.Debug("object destroyed",
		"group", group,
		"slot", slot,
		"compacted_from", compacted,
	)
}

// LogMigrate logs a migration to another manager.
func (l *Logger) LogMigrate(from, to Partition, group int, err error) {
	if err != nil {
		l.Error("migrate failed",
			"from", from.String(),
			"to", to.String(),
			"group", group,
			"error", err,
		)
		return
	}
	l.Debug("object migrated",
		"from", from.String(),
		"to", to.String(),
		"group", group,
	)
}

// LogRelocation logs a pool growth or trim.
func (l *Logger) LogRelocation(e pool.RelocationEvent) {
	l.Debug("pool relocated",
		"group", e.Group,
		"old_capacity", e.OldCapacity,
		"new_capacity", e.NewCapacity,
		"live", e.Live,
		"bytes", e.Bytes,
		"listeners", e.Listeners,
		"duration", e.Duration,
	)
}

// LogRelocationSummary logs an aggregate relocation line at Info.
func (l *Logger) LogRelocationSummary(e pool.RelocationEvent, relocations uint64, totalBytes int64) {
	l.Info("slab storage resized",
		"group", e.Group,
		"new_capacity", e.NewCapacity,
		"relocations", relocations,
		"total_bytes", totalBytes,
	)
}

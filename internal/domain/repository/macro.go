package repository

import (
	"context"

	"MacroPull/internal/domain/models"
)

// SnapshotSink receives every new snapshot. Implementations are best-effort:
// a failing sink never affects the snapshot served to callers.
type SnapshotSink interface {
	Name() string
	Publish(ctx context.Context, s *models.MacroSnapshot) error
}

// SnapshotStore persists snapshot history.
type SnapshotStore interface {
	SnapshotSink
	Init(ctx context.Context) error
	Health(ctx context.Context) error
	Close() error
}

// SnapshotHistory reads persisted observations, newest first.
type SnapshotHistory interface {
	History(ctx context.Context, indicator string, limit int) ([]models.ObservationRecord, error)
}

// Metrics is the observability surface of the aggregation layer.
type Metrics interface {
	RecordFetch(source, indicator, outcome string)
	RecordResolved(indicator, provenance string, value *float64)
	RecordCache(result string)
	RecordLatency(op string, seconds float64)
	RecordBreakerState(source string, state int)
	RecordSinkError(sink string)
}

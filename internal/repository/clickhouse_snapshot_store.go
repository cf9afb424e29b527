package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"MacroPull/internal/domain/models"
	domrepo "MacroPull/internal/domain/repository"
	pkgch "MacroPull/pkg/clickhouse"
	applogger "MacroPull/pkg/logger"
)

const observationsTable = "macro_observations"

var observationsDDL = []string{
	`CREATE TABLE IF NOT EXISTS macro_observations (
        snapshot_id  UUID,
        generated_at DateTime64(3, 'UTC'),
        indicator    LowCardinality(String),
        value        Nullable(Float64),
        source       LowCardinality(String),
        period       String
    )
    ENGINE = MergeTree
    ORDER BY (indicator, generated_at)`,
}

// CHSnapshotStore keeps snapshot history in ClickHouse, one row per indicator.
type CHSnapshotStore struct {
	ch *pkgch.Client
	db *sql.DB
	l  *applogger.Logger
}

var (
	_ domrepo.SnapshotStore   = (*CHSnapshotStore)(nil)
	_ domrepo.SnapshotHistory = (*CHSnapshotStore)(nil)
)

func NewCHSnapshotStore(ch *pkgch.Client, l *applogger.Logger) *CHSnapshotStore {
	if l == nil {
		l = applogger.Nop()
	}
	return &CHSnapshotStore{ch: ch, db: ch.DB(), l: l}
}

func (s *CHSnapshotStore) Name() string { return "clickhouse" }

// Init creates the observations table if needed.
func (s *CHSnapshotStore) Init(ctx context.Context) error {
	return s.ch.InitSchema(ctx, observationsDDL)
}

func (s *CHSnapshotStore) Health(ctx context.Context) error {
	return s.ch.Health(ctx)
}

func (s *CHSnapshotStore) Close() error {
	return s.ch.Close()
}

// Publish inserts every entry of snap in one batch.
func (s *CHSnapshotStore) Publish(ctx context.Context, snap *models.MacroSnapshot) error {
	if snap == nil {
		return errors.New("nil snapshot")
	}
	start := time.Now()
	rows := snap.Records()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin batch: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(
		"INSERT INTO %s (snapshot_id, generated_at, indicator, value, source, period)", observationsTable))
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("prepare batch: %w", err)
	}
	defer stmt.Close()

	for _, r := range rows {
		if _, err := stmt.ExecContext(ctx, r.SnapshotID, r.GeneratedAt.UTC(), r.Indicator, r.Value, string(r.Source), r.Period); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("append %s: %w", r.Indicator, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	s.l.Debug("clickhouse snapshot stored",
		applogger.String("snapshot_id", snap.ID.String()),
		applogger.Int("rows", len(rows)),
		applogger.Duration("duration_ms", time.Since(start)),
	)
	return nil
}

// History returns the latest observations of indicator, newest first.
// An empty indicator returns observations of every indicator.
func (s *CHSnapshotStore) History(ctx context.Context, indicator string, limit int) ([]models.ObservationRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	const qtpl = `
        SELECT snapshot_id, generated_at, indicator, value, source, period
        FROM %s
        WHERE (? = '' OR indicator = ?)
        ORDER BY generated_at DESC, indicator ASC
        LIMIT ?
    `
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(qtpl, observationsTable), indicator, indicator, limit)
	if err != nil {
		s.l.Error("clickhouse history query error",
			applogger.String("indicator", indicator),
			applogger.Error(err),
		)
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	out := make([]models.ObservationRecord, 0, limit)
	for rows.Next() {
		var (
			r      models.ObservationRecord
			value  sql.NullFloat64
			source string
		)
		if err := rows.Scan(&r.SnapshotID, &r.GeneratedAt, &r.Indicator, &value, &source, &r.Period); err != nil {
			return nil, fmt.Errorf("scan observation: %w", err)
		}
		if value.Valid {
			r.Value = models.Float(value.Float64)
		}
		r.Source = models.Provenance(source)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}

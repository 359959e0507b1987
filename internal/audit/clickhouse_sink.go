package audit

import (
	"context"
	"fmt"

	"zksteam-api/internal/models"
	"zksteam-api/internal/ratelimit"
)

type batchInserter interface {
	Exec(ctx context.Context, query string, args ...interface{}) error
	BatchInsert(ctx context.Context, query string, data [][]interface{}) error
}

const (
	createEventsTable = `CREATE TABLE IF NOT EXISTS %s (
    event_id String,
    event_type LowCardinality(String),
    session_id String,
    provider LowCardinality(String),
    proof_id String,
    verified Bool,
    reason LowCardinality(String),
    occurred_at DateTime64(3, 'UTC')
) ENGINE = MergeTree
ORDER BY (event_type, occurred_at)`

	createRateLimitTable = `CREATE TABLE IF NOT EXISTS %s (
    limiter LowCardinality(String),
    key String,
    allowed Bool,
    method LowCardinality(String),
    path String,
    at DateTime64(3, 'UTC')
) ENGINE = MergeTree
ORDER BY (limiter, at)
TTL toDateTime(at) + INTERVAL 30 DAY`
)

// ClickHouseSink appends proof events to an analytics table.
type ClickHouseSink struct {
	db    batchInserter
	table string
}

func NewClickHouseSink(db batchInserter, table string) *ClickHouseSink {
	return &ClickHouseSink{db: db, table: table}
}

func (s *ClickHouseSink) Name() string { return "clickhouse" }

func (s *ClickHouseSink) EnsureTable(ctx context.Context) error {
	if err := s.db.Exec(ctx, fmt.Sprintf(createEventsTable, s.table)); err != nil {
		return fmt.Errorf("failed to create %s: %w", s.table, err)
	}
	return nil
}

func (s *ClickHouseSink) Publish(ctx context.Context, ev models.ProofEvent) error {
	row := []interface{}{
		ev.EventID,
		string(ev.EventType),
		ev.SessionID,
		ev.Provider,
		ev.ProofID,
		ev.Verified,
		ev.Reason,
		ev.OccurredAt,
	}
	return s.db.BatchInsert(ctx, "INSERT INTO "+s.table, [][]interface{}{row})
}

// ClickHouseStats records rate-limit decisions for offline analysis.
type ClickHouseStats struct {
	db    batchInserter
	table string
}

func NewClickHouseStats(db batchInserter, table string) *ClickHouseStats {
	return &ClickHouseStats{db: db, table: table}
}

func (s *ClickHouseStats) EnsureTable(ctx context.Context) error {
	if err := s.db.Exec(ctx, fmt.Sprintf(createRateLimitTable, s.table)); err != nil {
		return fmt.Errorf("failed to create %s: %w", s.table, err)
	}
	return nil
}

func (s *ClickHouseStats) Record(ctx context.Context, ev ratelimit.StatsEvent) error {
	row := []interface{}{ev.Limiter, ev.Key, ev.Allowed, ev.Method, ev.Path, ev.At}
	return s.db.BatchInsert(ctx, "INSERT INTO "+s.table, [][]interface{}{row})
}

var _ ratelimit.StatsStore = (*ClickHouseStats)(nil)

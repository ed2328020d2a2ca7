package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// GateCounts aggregates per-event write-gate decision counters over a window.
// EventsWithCounts only counts events that carry structured counters; legacy
// events without them contribute nothing.
type GateCounts struct {
	EventsWithCounts int
	Allow            int
	Hold             int
	Discard          int
	Fallback         int
}

// PGStore answers windowed queries over the telemetry event stream.
type PGStore struct {
	logger *slog.Logger
	pool   *pgxpool.Pool
}

// NewPGStore creates a store over the given pool.
func NewPGStore(log *slog.Logger, pool *pgxpool.Pool) *PGStore {
	if log == nil {
		log = slog.Default()
	}
	return &PGStore{
		logger: log.With(slog.String("service", "telemetry_store")),
		pool:   pool,
	}
}

// CountEvents returns total and error event counts in [now-window, now].
func (s *PGStore) CountEvents(ctx context.Context, window time.Duration) (total, errors int, err error) {
	if s == nil || s.pool == nil {
		return 0, 0, fmt.Errorf("telemetry pool not configured")
	}
	since := time.Now().UTC().Add(-window)
	row := s.pool.QueryRow(ctx,
		`SELECT count(*),
		        count(*) FILTER (WHERE level = 'error' OR NOT success)
		 FROM telemetry_events
		 WHERE created_at >= $1`, since)
	if err := row.Scan(&total, &errors); err != nil {
		return 0, 0, fmt.Errorf("count events: %w", err)
	}
	return total, errors, nil
}

// GateCounts aggregates write-gate counters from event metadata over the
// window. Events lacking a gate block are excluded from EventsWithCounts.
func (s *PGStore) GateCounts(ctx context.Context, window time.Duration) (GateCounts, error) {
	if s == nil || s.pool == nil {
		return GateCounts{}, fmt.Errorf("telemetry pool not configured")
	}
	since := time.Now().UTC().Add(-window)
	row := s.pool.QueryRow(ctx,
		`SELECT count(*) FILTER (WHERE metadata ? 'gate'),
		        COALESCE(sum((metadata->'gate'->>'allow')::int), 0),
		        COALESCE(sum((metadata->'gate'->>'hold')::int), 0),
		        COALESCE(sum((metadata->'gate'->>'discard')::int), 0),
		        COALESCE(sum((metadata->'gate'->>'fallback')::int), 0)
		 FROM telemetry_events
		 WHERE created_at >= $1 AND metadata ? 'gate'`, since)
	var gc GateCounts
	if err := row.Scan(&gc.EventsWithCounts, &gc.Allow, &gc.Hold, &gc.Discard, &gc.Fallback); err != nil {
		return GateCounts{}, fmt.Errorf("aggregate gate counts: %w", err)
	}
	return gc, nil
}

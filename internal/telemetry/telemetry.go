package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Event is one structured telemetry record.
type Event struct {
	Level     string         `json:"level"`
	Component string         `json:"component"`
	Action    string         `json:"action"`
	Success   bool           `json:"success"`
	Error     string         `json:"error,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Emitter persists telemetry events. The stored flag lets callers detect a
// telemetry pipeline that silently stopped persisting.
type Emitter interface {
	Emit(ctx context.Context, event Event) (stored bool, err error)
}

// PGEmitter writes events to Postgres.
type PGEmitter struct {
	logger *slog.Logger
	pool   *pgxpool.Pool
}

// NewPGEmitter creates an emitter over the given pool.
func NewPGEmitter(log *slog.Logger, pool *pgxpool.Pool) *PGEmitter {
	if log == nil {
		log = slog.Default()
	}
	return &PGEmitter{
		logger: log.With(slog.String("service", "telemetry")),
		pool:   pool,
	}
}

// Emit inserts one event. stored=false with a nil error means the write was
// accepted but did not land, which the orchestrator treats as self-failure.
func (e *PGEmitter) Emit(ctx context.Context, event Event) (bool, error) {
	if e == nil || e.pool == nil {
		return false, fmt.Errorf("telemetry pool not configured")
	}
	meta := event.Metadata
	if meta == nil {
		meta = map[string]any{}
	}
	raw, err := json.Marshal(meta)
	if err != nil {
		return false, fmt.Errorf("marshal metadata: %w", err)
	}
	tag, err := e.pool.Exec(ctx,
		`INSERT INTO telemetry_events (id, created_at, level, component, action, success, error, metadata)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		uuid.NewString(), time.Now().UTC(), event.Level, event.Component, event.Action,
		event.Success, event.Error, raw)
	if err != nil {
		return false, fmt.Errorf("insert telemetry event: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

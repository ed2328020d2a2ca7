package cooldown

import (
	"context"
	"log/slog"
	"time"
)

// DownKey is the claim key for a component's "currently down" window.
// Released on recovery so the next failure re-alerts immediately.
func DownKey(component string) string {
	return "sentinel:down:" + component
}

// Store is the minimal atomic KV surface the gate needs. SetNX must be a
// single check-and-set, never a get-then-set, so two concurrent runs cannot
// both win the same window.
type Store interface {
	SetNX(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Del(ctx context.Context, key string) error
}

// Gate is an at-most-once-per-window claim primitive over a shared KV store.
type Gate struct {
	logger *slog.Logger
	store  Store
}

// NewGate creates a cooldown gate over the given store.
func NewGate(log *slog.Logger, store Store) *Gate {
	if log == nil {
		log = slog.Default()
	}
	return &Gate{
		logger: log.With(slog.String("service", "cooldown")),
		store:  store,
	}
}

// Claim attempts to own the window for key. True means the caller may
// proceed to notify. If the store is unreachable the gate fails open:
// over-notifying beats silently suppressing every future alert.
func (g *Gate) Claim(ctx context.Context, key string, window time.Duration) bool {
	if g == nil || g.store == nil {
		return true
	}
	ok, err := g.store.SetNX(ctx, key, window)
	if err != nil {
		g.logger.Warn("cooldown store unreachable, failing open",
			slog.String("key", key), slog.Any("error", err))
		return true
	}
	return ok
}

// Release clears a claim early, for transition-driven resets such as a
// component recovering: the next failure should re-alert immediately
// instead of waiting out a stale window.
func (g *Gate) Release(ctx context.Context, key string) {
	if g == nil || g.store == nil {
		return
	}
	if err := g.store.Del(ctx, key); err != nil {
		g.logger.Warn("cooldown release failed",
			slog.String("key", key), slog.Any("error", err))
	}
}

package notify

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// Digest wraps a Gateway and batches non-immediate notifications into a
// periodic roll-up. Immediate messages pass straight through, so a critical
// failure is never deferred behind the digest window.
type Digest struct {
	logger   *slog.Logger
	inner    Gateway
	interval time.Duration

	mu      sync.Mutex
	pending []Message
}

// NewDigest creates a digest over inner. A non-positive interval defaults
// to 15 minutes.
func NewDigest(log *slog.Logger, inner Gateway, interval time.Duration) *Digest {
	if log == nil {
		log = slog.Default()
	}
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	return &Digest{
		logger:   log.With(slog.String("service", "notify_digest")),
		inner:    inner,
		interval: interval,
	}
}

// Notify delivers immediate messages now and queues the rest for the next
// flush.
func (d *Digest) Notify(ctx context.Context, msg Message) error {
	if msg.Immediate {
		return d.inner.Notify(ctx, msg)
	}
	d.mu.Lock()
	d.pending = append(d.pending, msg)
	d.mu.Unlock()
	return nil
}

// Start flushes on the digest interval until ctx is cancelled, then drains
// one last time.
func (d *Digest) Start(ctx context.Context) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			d.Flush(ctx)
		case <-ctx.Done():
			d.Flush(context.Background())
			return
		}
	}
}

// Flush sends all queued messages as one roll-up notification.
func (d *Digest) Flush(ctx context.Context) {
	d.mu.Lock()
	batch := d.pending
	d.pending = nil
	d.mu.Unlock()
	if len(batch) == 0 {
		return
	}
	lines := make([]string, 0, len(batch))
	level := LevelInfo
	for _, msg := range batch {
		lines = append(lines, msg.Prompt)
		if msg.Level == LevelWarning && level == LevelInfo {
			level = LevelWarning
		}
		if msg.Level == LevelCritical {
			level = LevelCritical
		}
	}
	rollup := Message{
		Type:   "digest",
		Prompt: strings.Join(lines, "\n\n"),
		Level:  level,
	}
	if err := d.inner.Notify(ctx, rollup); err != nil {
		d.logger.Warn("digest flush failed",
			slog.Int("batched", len(batch)), slog.Any("error", err))
	}
}

package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sentinelhq/sentinel/internal/cooldown"
	"github.com/sentinelhq/sentinel/internal/dashboard"
	"github.com/sentinelhq/sentinel/internal/escalate"
	"github.com/sentinelhq/sentinel/internal/mode"
	"github.com/sentinelhq/sentinel/internal/notify"
	"github.com/sentinelhq/sentinel/internal/probe"
	"github.com/sentinelhq/sentinel/internal/signals"
	"github.com/sentinelhq/sentinel/internal/telemetry"
	"github.com/sentinelhq/sentinel/internal/tracker"
)

// Run statuses exposed to callers (CLI, HTTP, telemetry).
const (
	StatusNoop        = "noop"
	StatusEscalated   = "escalated"
	StatusSelfHealing = "self_healing"
	StatusSkipped     = "skipped"
)

const otelGapKey = "sentinel:alert:otel-gap"

// Trigger identifies what started a run.
type Trigger struct {
	Kind         string `json:"kind"`
	ModeOverride string `json:"mode_override,omitempty"`
	EventID      string `json:"event_id,omitempty"`
}

// RunResult is the complete record of one monitoring run.
type RunResult struct {
	RunID           string           `json:"run_id"`
	Status          string           `json:"status"`
	Reason          string           `json:"reason"`
	Mode            mode.Mode        `json:"mode"`
	Trigger         Trigger          `json:"trigger"`
	StartedAt       time.Time        `json:"started_at"`
	DurationMs      int64            `json:"duration_ms"`
	Services        []probe.Status   `json:"services,omitempty"`
	Signals         signals.Report   `json:"signals"`
	StepDurationsMs map[string]int64 `json:"step_durations_ms"`
	SelfHealing     []string         `json:"self_healing,omitempty"`
}

// Config collects orchestrator wiring. Every collaborator is optional except
// the dispatcher; missing pieces skip their step instead of failing the run.
type Config struct {
	Registry      *probe.Registry
	Analyzer      *signals.Analyzer
	Tasks         tracker.TaskSource
	Dispatcher    *escalate.Dispatcher
	Sink          dashboard.Sink
	Emitter       telemetry.Emitter
	Gate          *cooldown.Gate
	Gateway       notify.Gateway
	OtelGapWindow time.Duration
}

// Monitor orchestrates one end-to-end health run: probes, dashboard push,
// degradation filter, statistical signals, then escalation dispatch. At most
// one run executes at a time; an overlapping trigger is reported as skipped
// rather than queued.
type Monitor struct {
	logger        *slog.Logger
	registry      *probe.Registry
	analyzer      *signals.Analyzer
	tasks         tracker.TaskSource
	dispatcher    *escalate.Dispatcher
	sink          dashboard.Sink
	emitter       telemetry.Emitter
	gate          *cooldown.Gate
	gateway       notify.Gateway
	otelGapWindow time.Duration

	runMu sync.Mutex

	lastMu sync.RWMutex
	last   *RunResult
}

// NewMonitor creates the orchestrator.
func NewMonitor(log *slog.Logger, cfg Config) *Monitor {
	if log == nil {
		log = slog.Default()
	}
	if cfg.OtelGapWindow <= 0 {
		cfg.OtelGapWindow = 6 * time.Hour
	}
	return &Monitor{
		logger:        log.With(slog.String("service", "monitor")),
		registry:      cfg.Registry,
		analyzer:      cfg.Analyzer,
		tasks:         cfg.Tasks,
		dispatcher:    cfg.Dispatcher,
		sink:          cfg.Sink,
		emitter:       cfg.Emitter,
		gate:          cfg.Gate,
		gateway:       cfg.Gateway,
		otelGapWindow: cfg.OtelGapWindow,
	}
}

// Run executes one monitoring run for the given trigger and returns its
// result. Concurrent callers do not block: if a run is already in flight the
// second caller gets a skipped result immediately.
func (m *Monitor) Run(ctx context.Context, trigger Trigger) RunResult {
	if !m.runMu.TryLock() {
		m.logger.Info("run skipped, another run in flight",
			slog.String("trigger", trigger.Kind))
		return RunResult{
			RunID:     uuid.NewString(),
			Status:    StatusSkipped,
			Reason:    "another run in flight",
			Trigger:   trigger,
			StartedAt: time.Now().UTC(),
		}
	}
	defer m.runMu.Unlock()

	result := RunResult{
		RunID:           uuid.NewString(),
		Mode:            mode.Resolve(trigger.Kind, trigger.ModeOverride),
		Trigger:         trigger,
		StartedAt:       time.Now().UTC(),
		StepDurationsMs: make(map[string]int64),
	}
	m.logger.Info("run started",
		slog.String("run_id", result.RunID),
		slog.String("trigger", trigger.Kind),
		slog.String("mode", result.Mode.String()))

	var degraded, newlyDegraded []probe.Status
	alreadyTracked := 0

	if result.Mode.RunCoreChecks() && m.registry != nil {
		m.step(&result, "probes", func() {
			result.Services = m.registry.RunAll(ctx)
		})
		degraded = probe.Degraded(result.Services)

		m.step(&result, "dashboard", func() {
			if failed := dashboard.PushAll(ctx, m.logger, m.sink, result.Services); failed > 0 {
				m.logger.Warn("dashboard pushes failed", slog.Int("failed", failed))
			}
		})
		m.releaseRecovered(ctx, result.Services)

		if len(degraded) > 0 {
			m.step(&result, "tracker", func() {
				newlyDegraded, alreadyTracked = m.filterTracked(ctx, degraded)
			})
		}
	}

	if result.Mode.RunSignalChecks() && m.analyzer != nil {
		m.step(&result, "signals", func() {
			result.Signals = m.analyzer.Run(ctx)
		})
	}

	var outcome escalate.Outcome
	m.step(&result, "dispatch", func() {
		outcome = m.dispatcher.Dispatch(ctx, escalate.Finding{
			TriggerKind:     trigger.Kind,
			EventID:         trigger.EventID,
			Mode:            result.Mode,
			Services:        result.Services,
			NewlyDegraded:   newlyDegraded,
			AlreadyTracked:  alreadyTracked,
			Signals:         result.Signals,
			StepDurationsMs: result.StepDurationsMs,
			Trace:           []string{fmt.Sprintf("trigger/%s", trigger.Kind)},
		})
	})

	result.Status = statusFor(outcome.State)
	result.Reason = outcome.Reason
	result.SelfHealing = outcome.SelfHealing
	result.DurationMs = time.Since(result.StartedAt).Milliseconds()

	m.emitRunSummary(ctx, result)
	m.setLast(result)

	m.logger.Info("run completed",
		slog.String("run_id", result.RunID),
		slog.String("status", result.Status),
		slog.String("reason", result.Reason),
		slog.Int64("duration_ms", result.DurationMs))
	return result
}

// Latest returns the most recent completed run, if any. Skipped runs are
// never stored.
func (m *Monitor) Latest() (RunResult, bool) {
	m.lastMu.RLock()
	defer m.lastMu.RUnlock()
	if m.last == nil {
		return RunResult{}, false
	}
	return *m.last, true
}

func (m *Monitor) setLast(result RunResult) {
	m.lastMu.Lock()
	defer m.lastMu.Unlock()
	m.last = &result
}

func (m *Monitor) step(result *RunResult, name string, fn func()) {
	start := time.Now()
	fn()
	result.StepDurationsMs[name] = time.Since(start).Milliseconds()
}

// releaseRecovered clears the down claim of every healthy component so its
// next failure alerts immediately instead of waiting out a stale window.
func (m *Monitor) releaseRecovered(ctx context.Context, statuses []probe.Status) {
	if m.gate == nil {
		return
	}
	for _, st := range statuses {
		if st.OK {
			m.gate.Release(ctx, cooldown.DownKey(st.Name))
		}
	}
}

// filterTracked drops degraded components already covered by an open task.
// A tracker failure treats everything as newly degraded: over-alerting beats
// suppressing a real outage behind an unreachable task system.
func (m *Monitor) filterTracked(ctx context.Context, degraded []probe.Status) ([]probe.Status, int) {
	if m.tasks == nil {
		return degraded, 0
	}
	tasks, err := m.tasks.ListCurrentTasks(ctx)
	if err != nil {
		m.logger.Warn("task list unavailable, treating all degraded as new",
			slog.Any("error", err))
		return degraded, 0
	}
	newly := tracker.Filter(degraded, tasks)
	return newly, len(degraded) - len(newly)
}

func (m *Monitor) emitRunSummary(ctx context.Context, result RunResult) {
	if m.emitter == nil {
		return
	}
	policy := mode.PolicyFor(result.Mode)
	stored, err := m.emitter.Emit(ctx, telemetry.Event{
		Level:     "info",
		Component: "health-monitor",
		Action:    "run_completed",
		Success:   true,
		Metadata: map[string]any{
			"run_id":            result.RunID,
			"importance":        policy.Importance,
			"self_healing_mode": policy.SelfHealing,
			"trigger":           result.Trigger.Kind,
			"mode":              result.Mode.String(),
			"status":            result.Status,
			"reason":            result.Reason,
			"duration_ms":       result.DurationMs,
			"step_durations_ms": result.StepDurationsMs,
			"self_healing":      result.SelfHealing,
		},
	})
	if err == nil && stored {
		return
	}
	if err != nil {
		m.logger.Warn("run summary emit failed", slog.Any("error", err))
	} else {
		m.logger.Warn("run summary emitted but not stored")
	}
	m.alertTelemetryGap(ctx)
}

// alertTelemetryGap raises a low-volume warning when run summaries stop
// reaching the event store. Cooled down so a dead pipeline produces one
// message per window, not one per run.
func (m *Monitor) alertTelemetryGap(ctx context.Context) {
	if m.gateway == nil {
		return
	}
	if !m.gate.Claim(ctx, otelGapKey, m.otelGapWindow) {
		return
	}
	err := m.gateway.Notify(ctx, notify.Message{
		Type:   "telemetry_gap",
		Prompt: "⚠️ Telemetry pipeline gap: monitoring run summaries are not reaching the event store.",
		Level:  notify.LevelWarning,
	})
	if err != nil {
		m.logger.Warn("telemetry gap notify failed", slog.Any("error", err))
	}
}

func statusFor(state escalate.State) string {
	switch state {
	case escalate.StateSelfHealing:
		return StatusSelfHealing
	case escalate.StateEscalated:
		return StatusEscalated
	default:
		return StatusNoop
	}
}

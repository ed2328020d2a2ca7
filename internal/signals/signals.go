package signals

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/sentinelhq/sentinel/internal/telemetry"
)

// EventStore is the windowed query surface the analyzers need from the
// telemetry event stream.
type EventStore interface {
	CountEvents(ctx context.Context, window time.Duration) (total, errors int, err error)
	GateCounts(ctx context.Context, window time.Duration) (telemetry.GateCounts, error)
}

// ErrorRateSummary is the derived error-rate signal over a sliding window.
// The MinEvents floor keeps a 2-events-1-error window from ever firing.
type ErrorRateSummary struct {
	Total          int     `json:"total"`
	Errors         int     `json:"errors"`
	Rate           float64 `json:"rate"`
	WindowMinutes  int     `json:"window_minutes"`
	Threshold      float64 `json:"threshold"`
	MinEvents      int     `json:"min_events"`
	ShouldEscalate bool    `json:"should_escalate"`
	Unavailable    string  `json:"unavailable,omitempty"`
}

// GateDriftSummary aggregates write-gate decision counters over a window.
// The dual gate (event floor + verdict floor) keeps legacy events that lack
// structured counters from triggering an escalation.
type GateDriftSummary struct {
	EventsWithGateCounts int     `json:"events_with_gate_counts"`
	Allow                int     `json:"allow"`
	Hold                 int     `json:"hold"`
	Discard              int     `json:"discard"`
	Fallback             int     `json:"fallback"`
	TotalWithVerdict     int     `json:"total_with_verdict"`
	HoldRatio            float64 `json:"hold_ratio"`
	DiscardRatio         float64 `json:"discard_ratio"`
	FallbackRate         float64 `json:"fallback_rate"`
	WindowMinutes        int     `json:"window_minutes"`
	MinEvents            int     `json:"min_events"`
	MinVerdicts          int     `json:"min_verdicts"`
	ShouldEscalate       bool    `json:"should_escalate"`
	Unavailable          string  `json:"unavailable,omitempty"`
}

// Report bundles one run's analyzer output.
type Report struct {
	ErrorRate ErrorRateSummary `json:"error_rate"`
	GateDrift GateDriftSummary `json:"gate_drift"`
}

// AnyEscalating reports whether at least one signal crossed its gates.
func (r Report) AnyEscalating() bool {
	return r.ErrorRate.ShouldEscalate || r.GateDrift.ShouldEscalate
}

// Analyzer computes statistical health signals from the event store.
type Analyzer struct {
	logger *slog.Logger
	store  EventStore
	opts   Options
}

// NewAnalyzer creates an analyzer with knobs resolved from the environment.
func NewAnalyzer(log *slog.Logger, store EventStore) *Analyzer {
	return NewAnalyzerWithOptions(log, store, OptionsFromEnv())
}

// NewAnalyzerWithOptions creates an analyzer with explicit knobs.
func NewAnalyzerWithOptions(log *slog.Logger, store EventStore, opts Options) *Analyzer {
	if log == nil {
		log = slog.Default()
	}
	return &Analyzer{
		logger: log.With(slog.String("service", "signals")),
		store:  store,
		opts:   opts,
	}
}

// ErrorRate computes the error-rate signal. A store failure yields an
// unavailable summary with escalation suppressed: absence of signal is not
// evidence of a problem.
func (a *Analyzer) ErrorRate(ctx context.Context) ErrorRateSummary {
	window := time.Duration(a.opts.ErrorRateWindowMinutes) * time.Minute
	total, errs, err := a.store.CountEvents(ctx, window)
	if err != nil {
		a.logger.Warn("error rate query failed", slog.Any("error", err))
		return ErrorRateSummary{
			WindowMinutes: a.opts.ErrorRateWindowMinutes,
			Threshold:     a.opts.ErrorRateThreshold,
			MinEvents:     a.opts.ErrorRateMinEvents,
			Unavailable:   err.Error(),
		}
	}
	return evaluateErrorRate(total, errs, a.opts)
}

// GateDrift computes the write-gate drift signal, with the same
// fail-safe behavior on store errors.
func (a *Analyzer) GateDrift(ctx context.Context) GateDriftSummary {
	window := time.Duration(a.opts.GateDriftWindowMinutes) * time.Minute
	gc, err := a.store.GateCounts(ctx, window)
	if err != nil {
		a.logger.Warn("gate drift query failed", slog.Any("error", err))
		return GateDriftSummary{
			WindowMinutes: a.opts.GateDriftWindowMinutes,
			MinEvents:     a.opts.GateDriftMinEvents,
			MinVerdicts:   a.opts.GateDriftMinVerdicts,
			Unavailable:   err.Error(),
		}
	}
	return evaluateGateDrift(gc, a.opts)
}

// Run computes both signals concurrently; they depend on neither the probes
// nor each other.
func (a *Analyzer) Run(ctx context.Context) Report {
	var report Report
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		report.ErrorRate = a.ErrorRate(ctx)
	}()
	go func() {
		defer wg.Done()
		report.GateDrift = a.GateDrift(ctx)
	}()
	wg.Wait()
	return report
}

func evaluateErrorRate(total, errs int, opts Options) ErrorRateSummary {
	summary := ErrorRateSummary{
		Total:         total,
		Errors:        errs,
		WindowMinutes: opts.ErrorRateWindowMinutes,
		Threshold:     opts.ErrorRateThreshold,
		MinEvents:     opts.ErrorRateMinEvents,
	}
	if total > 0 {
		summary.Rate = float64(errs) / float64(total)
	}
	summary.ShouldEscalate = total >= opts.ErrorRateMinEvents && summary.Rate >= opts.ErrorRateThreshold
	return summary
}

func evaluateGateDrift(gc telemetry.GateCounts, opts Options) GateDriftSummary {
	summary := GateDriftSummary{
		EventsWithGateCounts: gc.EventsWithCounts,
		Allow:                gc.Allow,
		Hold:                 gc.Hold,
		Discard:              gc.Discard,
		Fallback:             gc.Fallback,
		TotalWithVerdict:     gc.Allow + gc.Hold + gc.Discard,
		WindowMinutes:        opts.GateDriftWindowMinutes,
		MinEvents:            opts.GateDriftMinEvents,
		MinVerdicts:          opts.GateDriftMinVerdicts,
	}
	if summary.TotalWithVerdict > 0 {
		summary.HoldRatio = float64(gc.Hold) / float64(summary.TotalWithVerdict)
		summary.DiscardRatio = float64(gc.Discard) / float64(summary.TotalWithVerdict)
		summary.FallbackRate = float64(gc.Fallback) / float64(summary.TotalWithVerdict)
	}
	if gc.EventsWithCounts < opts.GateDriftMinEvents || summary.TotalWithVerdict < opts.GateDriftMinVerdicts {
		return summary
	}
	summary.ShouldEscalate = summary.HoldRatio >= opts.GateHoldThreshold ||
		summary.DiscardRatio >= opts.GateDiscardThreshold ||
		summary.FallbackRate >= opts.GateFallbackThreshold
	return summary
}

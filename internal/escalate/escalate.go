package escalate

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sentinelhq/sentinel/internal/cooldown"
	"github.com/sentinelhq/sentinel/internal/mode"
	"github.com/sentinelhq/sentinel/internal/notify"
	"github.com/sentinelhq/sentinel/internal/probe"
	"github.com/sentinelhq/sentinel/internal/selfheal"
	"github.com/sentinelhq/sentinel/internal/signals"
	"github.com/sentinelhq/sentinel/internal/telemetry"
)

// State is the dispatcher's position in the per-run state machine:
// PROBED → FILTERED → (NOOP | ESCALATED) [→ SELF_HEALING_DISPATCHED].
type State string

const (
	StateProbed      State = "probed"
	StateFiltered    State = "filtered"
	StateNoop        State = "noop"
	StateEscalated   State = "escalated"
	StateSelfHealing State = "self_healing_dispatched"
)

const (
	sourceFunction = "health-monitor"

	signalAlertErrorRateKey = "sentinel:alert:signal:error-rate"
	signalAlertGateDriftKey = "sentinel:alert:signal:gate-drift"
)

// Finding is everything the dispatcher needs about one completed run.
type Finding struct {
	TriggerKind     string
	EventID         string
	Mode            mode.Mode
	Services        []probe.Status
	NewlyDegraded   []probe.Status
	AlreadyTracked  int
	Signals         signals.Report
	StepDurationsMs map[string]int64
	Trace           []string
}

// Outcome reports where the state machine landed and why. Path records the
// full traversal, terminal state included.
type Outcome struct {
	State       State    `json:"state"`
	Path        []State  `json:"path"`
	Reason      string   `json:"reason"`
	SelfHealing []string `json:"self_healing,omitempty"`
}

// Dispatcher fans an escalating finding out to the gateway notification
// channel, telemetry, and, for allowlisted critical domains, the self-healing
// handler. Channels are independent: one failing never stops the others.
type Dispatcher struct {
	logger       *slog.Logger
	gateway      notify.Gateway
	emitter      telemetry.Emitter
	healer       selfheal.Emitter
	gate         *cooldown.Gate
	domains      map[string]string
	signalWindow time.Duration
	downWindow   time.Duration
	owner        string
	requestedBy  string
	dryRun       bool
}

// Config collects dispatcher wiring.
type Config struct {
	Gateway      notify.Gateway
	Emitter      telemetry.Emitter
	Healer       selfheal.Emitter
	Gate         *cooldown.Gate
	Domains      map[string]string
	SignalWindow time.Duration
	DownWindow   time.Duration
	Owner        string
	RequestedBy  string
	DryRun       bool
}

// NewDispatcher creates a dispatcher. Domains is the critical-domain
// allowlist: component name → self-healing domain, carried as data.
func NewDispatcher(log *slog.Logger, cfg Config) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	if cfg.SignalWindow <= 0 {
		cfg.SignalWindow = time.Hour
	}
	if cfg.DownWindow <= 0 {
		cfg.DownWindow = 30 * time.Minute
	}
	if cfg.RequestedBy == "" {
		cfg.RequestedBy = "sentinel"
	}
	return &Dispatcher{
		logger:       log.With(slog.String("service", "escalate")),
		gateway:      cfg.Gateway,
		emitter:      cfg.Emitter,
		healer:       cfg.Healer,
		gate:         cfg.Gate,
		domains:      cfg.Domains,
		signalWindow: cfg.SignalWindow,
		downWindow:   cfg.DownWindow,
		owner:        cfg.Owner,
		requestedBy:  cfg.RequestedBy,
		dryRun:       cfg.DryRun,
	}
}

// Dispatch runs the state machine for one finding.
func (d *Dispatcher) Dispatch(ctx context.Context, finding Finding) Outcome {
	outcome := d.decide(ctx, finding)
	outcome.Path = []State{StateProbed, StateFiltered}
	if outcome.State == StateSelfHealing {
		outcome.Path = append(outcome.Path, StateEscalated)
	}
	outcome.Path = append(outcome.Path, outcome.State)
	d.logger.Debug("dispatch completed",
		slog.String("state", string(outcome.State)),
		slog.Any("path", outcome.Path),
		slog.String("reason", outcome.Reason))
	return outcome
}

func (d *Dispatcher) decide(ctx context.Context, finding Finding) Outcome {
	anySignal := finding.Signals.AnyEscalating()
	if len(finding.NewlyDegraded) == 0 && !anySignal {
		if finding.AlreadyTracked > 0 {
			return Outcome{State: StateNoop, Reason: "all degraded services already tracked"}
		}
		return Outcome{State: StateNoop, Reason: "all checks healthy"}
	}

	d.notifyDegraded(ctx, finding)
	d.emitTelemetry(ctx, finding)
	d.notifySignals(ctx, finding)

	healed := d.dispatchSelfHealing(ctx, finding)
	if len(healed) > 0 {
		return Outcome{
			State:       StateSelfHealing,
			Reason:      fmt.Sprintf("%d newly degraded, self-healing requested", len(finding.NewlyDegraded)),
			SelfHealing: healed,
		}
	}
	reason := fmt.Sprintf("%d newly degraded", len(finding.NewlyDegraded))
	if anySignal && len(finding.NewlyDegraded) == 0 {
		reason = "elevated statistical signal"
	}
	return Outcome{State: StateEscalated, Reason: reason}
}

func (d *Dispatcher) notifyDegraded(ctx context.Context, finding Finding) {
	if d.gateway == nil || len(finding.NewlyDegraded) == 0 {
		return
	}
	immediate := d.hasCriticalDomain(finding.NewlyDegraded)
	granted := false
	for _, st := range finding.NewlyDegraded {
		if d.gate.Claim(ctx, cooldown.DownKey(st.Name), d.downWindow) {
			granted = true
		}
	}
	// Critical-domain failures bypass the down-claim window; everything else
	// stays silent while a claim from a previous run is still active.
	if !granted && !immediate {
		d.logger.Info("degraded notification suppressed by cooldown",
			slog.Int("degraded", len(finding.NewlyDegraded)))
		return
	}
	msg := notify.Message{
		Type:      "health_alert",
		Prompt:    FormatStatusLines(finding.Services),
		Level:     notify.LevelWarning,
		Immediate: immediate,
	}
	if immediate {
		msg.Level = notify.LevelCritical
	}
	if err := d.gateway.Notify(ctx, msg); err != nil {
		d.logger.Warn("gateway notify failed", slog.Any("error", err))
	}
}

func (d *Dispatcher) emitTelemetry(ctx context.Context, finding Finding) {
	if d.emitter == nil {
		return
	}
	_, err := d.emitter.Emit(ctx, telemetry.Event{
		Level:     "warn",
		Component: sourceFunction,
		Action:    "escalation",
		Success:   true,
		Metadata: map[string]any{
			"mode":              finding.Mode.String(),
			"trigger":           finding.TriggerKind,
			"degraded_count":    len(finding.NewlyDegraded),
			"already_tracked":   finding.AlreadyTracked,
			"error_rate":        finding.Signals.ErrorRate,
			"gate_drift":        finding.Signals.GateDrift,
			"step_durations_ms": finding.StepDurationsMs,
		},
	})
	if err != nil {
		d.logger.Warn("escalation telemetry emit failed", slog.Any("error", err))
	}
}

// notifySignals sends the separate elevated-signal alert, cooled down so a
// persisting condition does not fire every run.
func (d *Dispatcher) notifySignals(ctx context.Context, finding Finding) {
	if d.gateway == nil {
		return
	}
	if er := finding.Signals.ErrorRate; er.ShouldEscalate {
		if d.gate.Claim(ctx, signalAlertErrorRateKey, d.signalWindow) {
			prompt := fmt.Sprintf("📈 Elevated error rate: %.1f%% over %dm (%d/%d events, threshold %.1f%%)",
				er.Rate*100, er.WindowMinutes, er.Errors, er.Total, er.Threshold*100)
			d.notifySignal(ctx, prompt)
		}
	}
	if gd := finding.Signals.GateDrift; gd.ShouldEscalate {
		if d.gate.Claim(ctx, signalAlertGateDriftKey, d.signalWindow) {
			prompt := fmt.Sprintf("📉 Write-gate drift: hold %.1f%%, discard %.1f%%, fallback %.1f%% over %dm (%d verdicts)",
				gd.HoldRatio*100, gd.DiscardRatio*100, gd.FallbackRate*100, gd.WindowMinutes, gd.TotalWithVerdict)
			d.notifySignal(ctx, prompt)
		}
	}
}

func (d *Dispatcher) notifySignal(ctx context.Context, prompt string) {
	err := d.gateway.Notify(ctx, notify.Message{
		Type:   "signal_alert",
		Prompt: prompt,
		Level:  notify.LevelWarning,
	})
	if err != nil {
		d.logger.Warn("signal alert notify failed", slog.Any("error", err))
	}
}

// dispatchSelfHealing emits one request per newly degraded component on the
// critical-domain allowlist. Fire-and-forget: dispatch errors are logged,
// never returned.
func (d *Dispatcher) dispatchSelfHealing(ctx context.Context, finding Finding) []string {
	if d.healer == nil {
		return nil
	}
	healed := make([]string, 0)
	for _, st := range finding.NewlyDegraded {
		domain, ok := d.domains[st.Name]
		if !ok {
			continue
		}
		req := selfheal.BuildRequest(selfheal.BuildParams{
			SourceFunction:  sourceFunction,
			TargetComponent: st.Name,
			TargetEventName: fmt.Sprintf("selfheal/%s.remediate", strings.ToLower(st.Name)),
			ProblemSummary:  fmt.Sprintf("%s probe failing: %s", st.Name, st.Detail),
			Domain:          domain,
			Reason:          "probe degraded and not previously tracked",
			Evidence:        evidenceFrom(st, finding.Signals),
			Playbook:        selfheal.PlaybookFor(domain),
			Owner:           d.owner,
			RequestedBy:     d.requestedBy,
			DryRun:          d.dryRun,
			SourceEventID:   finding.EventID,
			SourceEventName: "monitor/run.completed",
			Trace:           append(finding.Trace, "monitor/escalate"),
		})
		if err := d.healer.Dispatch(ctx, req); err != nil {
			d.logger.Warn("self-healing dispatch failed",
				slog.String("component", st.Name), slog.Any("error", err))
			continue
		}
		healed = append(healed, st.Name)
	}
	return healed
}

func (d *Dispatcher) hasCriticalDomain(degraded []probe.Status) bool {
	for _, st := range degraded {
		if _, ok := d.domains[st.Name]; ok {
			return true
		}
	}
	return false
}

func evidenceFrom(st probe.Status, report signals.Report) []selfheal.Evidence {
	evidence := []selfheal.Evidence{
		{Type: "probe", Detail: fmt.Sprintf("%s: %s (%dms)", st.Name, st.Detail, st.DurationMs)},
	}
	if report.ErrorRate.ShouldEscalate {
		evidence = append(evidence, selfheal.Evidence{
			Type:   "error_rate",
			Detail: fmt.Sprintf("rate %.3f over %dm window", report.ErrorRate.Rate, report.ErrorRate.WindowMinutes),
		})
	}
	if report.GateDrift.ShouldEscalate {
		evidence = append(evidence, selfheal.Evidence{
			Type:   "gate_drift",
			Detail: fmt.Sprintf("hold %.3f discard %.3f fallback %.3f", report.GateDrift.HoldRatio, report.GateDrift.DiscardRatio, report.GateDrift.FallbackRate),
		})
	}
	return evidence
}

// FormatStatusLines renders the per-service ✅/❌ list for the gateway
// notification.
func FormatStatusLines(statuses []probe.Status) string {
	lines := make([]string, 0, len(statuses)+1)
	lines = append(lines, "Service health check:")
	for _, st := range statuses {
		if st.OK {
			lines = append(lines, fmt.Sprintf("✅ %s", st.Name))
			continue
		}
		if st.Detail != "" {
			lines = append(lines, fmt.Sprintf("❌ %s: %s", st.Name, probe.Truncate(st.Detail)))
		} else {
			lines = append(lines, fmt.Sprintf("❌ %s", st.Name))
		}
	}
	return strings.Join(lines, "\n")
}

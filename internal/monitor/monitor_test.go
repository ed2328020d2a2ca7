package monitor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sentinelhq/sentinel/internal/cooldown"
	"github.com/sentinelhq/sentinel/internal/escalate"
	"github.com/sentinelhq/sentinel/internal/mode"
	"github.com/sentinelhq/sentinel/internal/notify"
	"github.com/sentinelhq/sentinel/internal/probe"
	"github.com/sentinelhq/sentinel/internal/selfheal"
	"github.com/sentinelhq/sentinel/internal/signals"
	"github.com/sentinelhq/sentinel/internal/telemetry"
	"github.com/sentinelhq/sentinel/internal/tracker"
)

type fakeGateway struct {
	mu   sync.Mutex
	sent []notify.Message
}

func (g *fakeGateway) Notify(_ context.Context, msg notify.Message) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sent = append(g.sent, msg)
	return nil
}

func (g *fakeGateway) ofType(kind string) []notify.Message {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]notify.Message, 0)
	for _, msg := range g.sent {
		if msg.Type == kind {
			out = append(out, msg)
		}
	}
	return out
}

type fakeEmitter struct {
	mu     sync.Mutex
	stored bool
	err    error
	events []telemetry.Event
}

func (e *fakeEmitter) Emit(_ context.Context, event telemetry.Event) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, event)
	return e.stored, e.err
}

func (e *fakeEmitter) actions() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, 0, len(e.events))
	for _, event := range e.events {
		out = append(out, event.Action)
	}
	return out
}

type fakeHealer struct {
	mu       sync.Mutex
	requests []selfheal.Request
}

func (h *fakeHealer) Dispatch(_ context.Context, req selfheal.Request) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.requests = append(h.requests, req)
	return nil
}

type fakeSink struct {
	mu     sync.Mutex
	pushes map[string]int
	status map[string]string
}

func (s *fakeSink) PushStatus(_ context.Context, component, status, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pushes == nil {
		s.pushes = make(map[string]int)
		s.status = make(map[string]string)
	}
	s.pushes[component]++
	s.status[component] = status
	return nil
}

type fakeTasks struct {
	tasks []tracker.Task
	err   error
}

func (t *fakeTasks) ListCurrentTasks(context.Context) ([]tracker.Task, error) {
	return t.tasks, t.err
}

type staticEvents struct {
	total, errors int
	gate          telemetry.GateCounts
	err           error
}

func (s *staticEvents) CountEvents(context.Context, time.Duration) (int, int, error) {
	return s.total, s.errors, s.err
}

func (s *staticEvents) GateCounts(context.Context, time.Duration) (telemetry.GateCounts, error) {
	return s.gate, s.err
}

type fixture struct {
	monitor *Monitor
	gateway *fakeGateway
	emitter *fakeEmitter
	healer  *fakeHealer
	sink    *fakeSink
}

func newFixture(t *testing.T, registry *probe.Registry, events signals.EventStore, tasks tracker.TaskSource) *fixture {
	t.Helper()

	gw, emitter, healer, sink := &fakeGateway{}, &fakeEmitter{stored: true}, &fakeHealer{}, &fakeSink{}
	gate := cooldown.NewGate(nil, cooldown.NewMemoryStore())
	dispatcher := escalate.NewDispatcher(nil, escalate.Config{
		Gateway: gw,
		Emitter: emitter,
		Healer:  healer,
		Gate:    gate,
		Domains: map[string]string{"Gateway": "gateway-bridge"},
		Owner:   "infra",
	})

	var analyzer *signals.Analyzer
	if events != nil {
		analyzer = signals.NewAnalyzerWithOptions(nil, events, signals.Options{
			ErrorRateWindowMinutes: 60,
			ErrorRateThreshold:     0.2,
			ErrorRateMinEvents:     20,
			GateDriftWindowMinutes: 60,
			GateDriftMinEvents:     20,
			GateDriftMinVerdicts:   10,
			GateHoldThreshold:      0.3,
			GateDiscardThreshold:   0.2,
			GateFallbackThreshold:  0.25,
		})
	}

	return &fixture{
		monitor: NewMonitor(nil, Config{
			Registry:   registry,
			Analyzer:   analyzer,
			Tasks:      tasks,
			Dispatcher: dispatcher,
			Sink:       sink,
			Emitter:    emitter,
			Gate:       gate,
			Gateway:    gw,
		}),
		gateway: gw,
		emitter: emitter,
		healer:  healer,
		sink:    sink,
	}
}

func okProbe(context.Context) error      { return nil }
func failingProbe(context.Context) error { return errors.New("connection refused") }

func TestRunAllHealthySignalsUnavailableIsNoop(t *testing.T) {
	t.Parallel()

	registry := probe.NewRegistry()
	registry.MustRegister("Gateway", time.Second, okProbe)
	registry.MustRegister("Worker", time.Second, okProbe)

	f := newFixture(t, registry, &staticEvents{err: errors.New("db down")}, &fakeTasks{})

	result := f.monitor.Run(context.Background(), Trigger{Kind: mode.TriggerCheck})

	require.Equal(t, StatusNoop, result.Status)
	require.Equal(t, mode.Full, result.Mode)
	require.Len(t, result.Services, 2)
	require.NotEmpty(t, result.Signals.ErrorRate.Unavailable)
	require.False(t, result.Signals.AnyEscalating())

	// No alerts of any kind, only the run summary event.
	require.Empty(t, f.gateway.sent)
	require.Equal(t, []string{"run_completed"}, f.emitter.actions())
	require.Empty(t, f.healer.requests)

	// Dashboard pushed exactly once per service.
	require.Equal(t, map[string]int{"Gateway": 1, "Worker": 1}, f.sink.pushes)
	require.Equal(t, "healthy", f.sink.status["Gateway"])

	require.Contains(t, result.StepDurationsMs, "probes")
	require.Contains(t, result.StepDurationsMs, "signals")
	require.Contains(t, result.StepDurationsMs, "dispatch")
}

func TestRunCriticalFailureFansOut(t *testing.T) {
	t.Parallel()

	registry := probe.NewRegistry()
	registry.MustRegister("Gateway", time.Second, failingProbe)
	registry.MustRegister("Worker", time.Second, okProbe)

	tasks := &fakeTasks{tasks: []tracker.Task{{ID: "1", Title: "Upgrade build agents"}}}
	f := newFixture(t, registry, &staticEvents{}, tasks)

	result := f.monitor.Run(context.Background(), Trigger{Kind: mode.TriggerHeartbeat, EventID: "evt-7"})

	require.Equal(t, StatusSelfHealing, result.Status)
	require.Equal(t, mode.Core, result.Mode)
	require.Equal(t, []string{"Gateway"}, result.SelfHealing)

	// Dashboard still pushed once per service, the failing one as down.
	require.Equal(t, map[string]int{"Gateway": 1, "Worker": 1}, f.sink.pushes)
	require.Equal(t, "down", f.sink.status["Gateway"])
	require.Equal(t, "healthy", f.sink.status["Worker"])

	alerts := f.gateway.ofType("health_alert")
	require.Len(t, alerts, 1)
	require.True(t, alerts[0].Immediate)

	require.Contains(t, f.emitter.actions(), "escalation")
	require.Contains(t, f.emitter.actions(), "run_completed")

	require.Len(t, f.healer.requests, 1)
	req := f.healer.requests[0]
	require.Equal(t, 0, req.Attempt)
	require.Equal(t, "gateway-bridge", req.Domain)
	require.Equal(t, "evt-7", req.RunContext.SourceEventID)
}

func TestRunTrackedFailureIsNoop(t *testing.T) {
	t.Parallel()

	registry := probe.NewRegistry()
	registry.MustRegister("Worker", time.Second, failingProbe)

	tasks := &fakeTasks{tasks: []tracker.Task{{ID: "2", Title: "Worker memory leak investigation"}}}
	f := newFixture(t, registry, &staticEvents{}, tasks)

	result := f.monitor.Run(context.Background(), Trigger{Kind: mode.TriggerHeartbeat})

	require.Equal(t, StatusNoop, result.Status)
	require.Contains(t, result.Reason, "already tracked")
	require.Empty(t, f.gateway.sent)
	require.Empty(t, f.healer.requests)

	// The degraded status still reaches the dashboard.
	require.Equal(t, "down", f.sink.status["Worker"])
}

func TestRunTrackerFailureTreatsAllAsNew(t *testing.T) {
	t.Parallel()

	registry := probe.NewRegistry()
	registry.MustRegister("Worker", time.Second, failingProbe)

	f := newFixture(t, registry, &staticEvents{}, &fakeTasks{err: errors.New("github unreachable")})

	result := f.monitor.Run(context.Background(), Trigger{Kind: mode.TriggerHeartbeat})
	require.Equal(t, StatusEscalated, result.Status)
	require.Len(t, f.gateway.ofType("health_alert"), 1)
}

func TestRunSignalsSweepSkipsProbes(t *testing.T) {
	t.Parallel()

	registry := probe.NewRegistry()
	registry.MustRegister("Gateway", time.Second, failingProbe)

	f := newFixture(t, registry, &staticEvents{total: 50, errors: 20}, &fakeTasks{})

	result := f.monitor.Run(context.Background(), Trigger{
		Kind:         mode.TriggerSignalsSweep,
		ModeOverride: "signals",
	})

	require.Equal(t, mode.Signals, result.Mode)
	require.Empty(t, result.Services)
	require.Empty(t, f.sink.pushes)
	require.True(t, result.Signals.ErrorRate.ShouldEscalate)
	require.Equal(t, StatusEscalated, result.Status)
	require.Len(t, f.gateway.ofType("signal_alert"), 1)
}

func TestRunOverlapIsSkipped(t *testing.T) {
	t.Parallel()

	started := make(chan struct{})
	release := make(chan struct{})
	registry := probe.NewRegistry()
	registry.MustRegister("Slow", 5*time.Second, func(ctx context.Context) error {
		close(started)
		select {
		case <-release:
		case <-ctx.Done():
		}
		return nil
	})

	f := newFixture(t, registry, nil, &fakeTasks{})

	done := make(chan RunResult, 1)
	go func() {
		done <- f.monitor.Run(context.Background(), Trigger{Kind: mode.TriggerHeartbeat})
	}()
	<-started

	skipped := f.monitor.Run(context.Background(), Trigger{Kind: mode.TriggerCheck})
	require.Equal(t, StatusSkipped, skipped.Status)
	require.Equal(t, "another run in flight", skipped.Reason)

	close(release)
	first := <-done
	require.Equal(t, StatusNoop, first.Status)

	// A skipped run never becomes the latest result.
	latest, ok := f.monitor.Latest()
	require.True(t, ok)
	require.Equal(t, first.RunID, latest.RunID)
}

func TestRunLatestEmptyBeforeFirstRun(t *testing.T) {
	t.Parallel()

	f := newFixture(t, probe.NewRegistry(), nil, nil)
	_, ok := f.monitor.Latest()
	require.False(t, ok)
}

func TestRunTelemetryGapAlertIsCooledDown(t *testing.T) {
	t.Parallel()

	registry := probe.NewRegistry()
	registry.MustRegister("Gateway", time.Second, okProbe)

	f := newFixture(t, registry, nil, &fakeTasks{})
	f.emitter.stored = false

	f.monitor.Run(context.Background(), Trigger{Kind: mode.TriggerHeartbeat})
	f.monitor.Run(context.Background(), Trigger{Kind: mode.TriggerHeartbeat})

	// One gap alert per cooldown window, not one per run.
	require.Len(t, f.gateway.ofType("telemetry_gap"), 1)
}

func TestRunReleasesDownClaimOnRecovery(t *testing.T) {
	t.Parallel()

	healthy := false
	registry := probe.NewRegistry()
	registry.MustRegister("Worker", time.Second, func(context.Context) error {
		if healthy {
			return nil
		}
		return errors.New("oom")
	})

	f := newFixture(t, registry, nil, &fakeTasks{})

	f.monitor.Run(context.Background(), Trigger{Kind: mode.TriggerHeartbeat})
	healthy = true
	f.monitor.Run(context.Background(), Trigger{Kind: mode.TriggerHeartbeat})
	healthy = false
	f.monitor.Run(context.Background(), Trigger{Kind: mode.TriggerHeartbeat})

	// Recovery released the claim, so the third run alerts again.
	require.Len(t, f.gateway.ofType("health_alert"), 2)
}

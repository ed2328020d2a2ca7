package signals

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sentinelhq/sentinel/internal/telemetry"
)

type stubStore struct {
	total, errs int
	gate        telemetry.GateCounts
	countErr    error
	gateErr     error
}

func (s *stubStore) CountEvents(context.Context, time.Duration) (int, int, error) {
	return s.total, s.errs, s.countErr
}

func (s *stubStore) GateCounts(context.Context, time.Duration) (telemetry.GateCounts, error) {
	return s.gate, s.gateErr
}

func testOptions() Options {
	return Options{
		ErrorRateWindowMinutes: 60,
		ErrorRateThreshold:     0.2,
		ErrorRateMinEvents:     20,
		GateDriftWindowMinutes: 60,
		GateDriftMinEvents:     20,
		GateDriftMinVerdicts:   10,
		GateHoldThreshold:      0.3,
		GateDiscardThreshold:   0.2,
		GateFallbackThreshold:  0.25,
	}
}

func TestErrorRateSampleSizeFloor(t *testing.T) {
	t.Parallel()

	// 5/10 = 50% error rate, but below the 20-event floor: must not fire.
	a := NewAnalyzerWithOptions(nil, &stubStore{total: 10, errs: 5}, testOptions())
	summary := a.ErrorRate(context.Background())
	require.Equal(t, 0.5, summary.Rate)
	require.False(t, summary.ShouldEscalate)
}

func TestErrorRateEscalatesAboveFloorAndThreshold(t *testing.T) {
	t.Parallel()

	a := NewAnalyzerWithOptions(nil, &stubStore{total: 50, errs: 15}, testOptions())
	summary := a.ErrorRate(context.Background())
	require.InDelta(t, 0.3, summary.Rate, 1e-9)
	require.True(t, summary.ShouldEscalate)
}

func TestErrorRateZeroTotal(t *testing.T) {
	t.Parallel()

	a := NewAnalyzerWithOptions(nil, &stubStore{}, testOptions())
	summary := a.ErrorRate(context.Background())
	require.Zero(t, summary.Rate)
	require.False(t, summary.ShouldEscalate)
}

func TestErrorRateUnavailableNeverEscalates(t *testing.T) {
	t.Parallel()

	a := NewAnalyzerWithOptions(nil, &stubStore{countErr: errors.New("store down")}, testOptions())
	summary := a.ErrorRate(context.Background())
	require.False(t, summary.ShouldEscalate)
	require.Equal(t, "store down", summary.Unavailable)
}

func TestGateDriftEventFloorBeatsPerfectHoldRatio(t *testing.T) {
	t.Parallel()

	a := NewAnalyzerWithOptions(nil, &stubStore{
		gate: telemetry.GateCounts{EventsWithCounts: 5, Hold: 50},
	}, testOptions())
	summary := a.GateDrift(context.Background())
	require.Equal(t, 1.0, summary.HoldRatio)
	require.False(t, summary.ShouldEscalate)
}

func TestGateDriftVerdictFloor(t *testing.T) {
	t.Parallel()

	// Enough events with counters, but too few actual verdicts.
	a := NewAnalyzerWithOptions(nil, &stubStore{
		gate: telemetry.GateCounts{EventsWithCounts: 30, Allow: 3, Hold: 4},
	}, testOptions())
	summary := a.GateDrift(context.Background())
	require.Equal(t, 7, summary.TotalWithVerdict)
	require.False(t, summary.ShouldEscalate)
}

func TestGateDriftEscalatesOnHoldRatio(t *testing.T) {
	t.Parallel()

	a := NewAnalyzerWithOptions(nil, &stubStore{
		gate: telemetry.GateCounts{EventsWithCounts: 30, Allow: 50, Hold: 40, Discard: 10},
	}, testOptions())
	summary := a.GateDrift(context.Background())
	require.Equal(t, 100, summary.TotalWithVerdict)
	require.InDelta(t, 0.4, summary.HoldRatio, 1e-9)
	require.True(t, summary.ShouldEscalate)
}

func TestGateDriftUnavailableNeverEscalates(t *testing.T) {
	t.Parallel()

	a := NewAnalyzerWithOptions(nil, &stubStore{gateErr: errors.New("query timeout")}, testOptions())
	summary := a.GateDrift(context.Background())
	require.False(t, summary.ShouldEscalate)
	require.Equal(t, "query timeout", summary.Unavailable)
}

func TestRunComputesBothSignals(t *testing.T) {
	t.Parallel()

	a := NewAnalyzerWithOptions(nil, &stubStore{
		total: 50, errs: 15,
		gate: telemetry.GateCounts{EventsWithCounts: 30, Allow: 90, Hold: 5, Discard: 5},
	}, testOptions())
	report := a.Run(context.Background())
	require.True(t, report.ErrorRate.ShouldEscalate)
	require.False(t, report.GateDrift.ShouldEscalate)
	require.True(t, report.AnyEscalating())
}

func TestOptionsFromEnvFallsBackOnBadOverrides(t *testing.T) {
	t.Setenv("SENTINEL_ERROR_RATE_THRESHOLD", "not-a-number")
	t.Setenv("SENTINEL_ERROR_RATE_MIN_EVENTS", "-3")
	t.Setenv("SENTINEL_GATE_DRIFT_WINDOW_MIN", "90")

	opts := OptionsFromEnv()
	require.Equal(t, DefaultErrorRateThreshold, opts.ErrorRateThreshold)
	require.Equal(t, DefaultErrorRateMinEvents, opts.ErrorRateMinEvents)
	require.Equal(t, 90, opts.GateDriftWindowMinutes)
}

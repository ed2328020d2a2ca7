package signals

import (
	"os"
	"strconv"
)

// Defaults for analyzer knobs. Every knob can be overridden via environment;
// a non-numeric or non-positive override falls back to the default.
const (
	DefaultErrorRateWindowMinutes = 60
	DefaultErrorRateThreshold     = 0.2
	DefaultErrorRateMinEvents     = 20
	DefaultGateDriftWindowMinutes = 60
	DefaultGateDriftMinEvents     = 20
	DefaultGateDriftMinVerdicts   = 10
	DefaultGateHoldThreshold      = 0.3
	DefaultGateDiscardThreshold   = 0.2
	DefaultGateFallbackThreshold  = 0.25
)

// Options are the analyzer thresholds and window sizes.
type Options struct {
	ErrorRateWindowMinutes int
	ErrorRateThreshold     float64
	ErrorRateMinEvents     int
	GateDriftWindowMinutes int
	GateDriftMinEvents     int
	GateDriftMinVerdicts   int
	GateHoldThreshold      float64
	GateDiscardThreshold   float64
	GateFallbackThreshold  float64
}

// OptionsFromEnv resolves knobs from SENTINEL_* environment variables.
func OptionsFromEnv() Options {
	return Options{
		ErrorRateWindowMinutes: envInt("SENTINEL_ERROR_RATE_WINDOW_MIN", DefaultErrorRateWindowMinutes),
		ErrorRateThreshold:     envFloat("SENTINEL_ERROR_RATE_THRESHOLD", DefaultErrorRateThreshold),
		ErrorRateMinEvents:     envInt("SENTINEL_ERROR_RATE_MIN_EVENTS", DefaultErrorRateMinEvents),
		GateDriftWindowMinutes: envInt("SENTINEL_GATE_DRIFT_WINDOW_MIN", DefaultGateDriftWindowMinutes),
		GateDriftMinEvents:     envInt("SENTINEL_GATE_DRIFT_MIN_EVENTS", DefaultGateDriftMinEvents),
		GateDriftMinVerdicts:   envInt("SENTINEL_GATE_DRIFT_MIN_VERDICTS", DefaultGateDriftMinVerdicts),
		GateHoldThreshold:      envFloat("SENTINEL_GATE_HOLD_THRESHOLD", DefaultGateHoldThreshold),
		GateDiscardThreshold:   envFloat("SENTINEL_GATE_DISCARD_THRESHOLD", DefaultGateDiscardThreshold),
		GateFallbackThreshold:  envFloat("SENTINEL_GATE_FALLBACK_THRESHOLD", DefaultGateFallbackThreshold),
	}
}

func envInt(key string, fallback int) int {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}

func envFloat(key string, fallback float64) float64 {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}

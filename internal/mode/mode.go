package mode

import "strings"

// Mode selects which half of a monitoring run executes.
type Mode string

const (
	// Core runs live service probes only.
	Core Mode = "core"
	// Signals runs statistical analyzers only.
	Signals Mode = "signals"
	// Full runs both halves.
	Full Mode = "full"
)

// Trigger kinds distinguishing heartbeat semantics from an explicit check.
const (
	TriggerHeartbeat    = "heartbeat"
	TriggerCheck        = "check"
	TriggerSignalsSweep = "signals-sweep"
)

// String implements fmt.Stringer.
func (m Mode) String() string { return string(m) }

// RunCoreChecks reports whether live probes execute in this mode.
func (m Mode) RunCoreChecks() bool { return m != Signals }

// RunSignalChecks reports whether statistical analyzers execute in this mode.
func (m Mode) RunSignalChecks() bool { return m != Core }

// Resolve maps a trigger kind and optional raw override to a mode.
// A recognised override (case-insensitive, trimmed) wins; anything else
// falls back to the trigger-implied default: full for an explicit check,
// core for everything else. Pure and never errors.
func Resolve(triggerKind, rawOverride string) Mode {
	switch Mode(strings.ToLower(strings.TrimSpace(rawOverride))) {
	case Core:
		return Core
	case Signals:
		return Signals
	case Full:
		return Full
	}
	if strings.ToLower(strings.TrimSpace(triggerKind)) == TriggerCheck {
		return Full
	}
	return Core
}

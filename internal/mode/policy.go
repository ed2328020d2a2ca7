package mode

// Importance ranks how urgently a slice's findings should be treated.
type Importance string

const (
	ImportanceCritical Importance = "critical"
	ImportanceHigh     Importance = "high"
	ImportanceMedium   Importance = "medium"
)

// Sensitivity tunes how eagerly a slice alerts.
type Sensitivity string

const (
	SensitivityHigh   Sensitivity = "high"
	SensitivityMedium Sensitivity = "medium"
	SensitivityLow    Sensitivity = "low"
)

// Healing selects manual vs automatic remediation for a slice.
type Healing string

const (
	HealingManual    Healing = "manual"
	HealingAutomatic Healing = "automatic"
)

// SlicePolicy is the static cadence/importance configuration attached to a
// mode. Never mutated at runtime.
type SlicePolicy struct {
	CadenceMinutes   int
	Importance       Importance
	AlertSensitivity Sensitivity
	SelfHealing      Healing
	Rank             int
}

var policies = map[Mode]SlicePolicy{
	Core: {
		CadenceMinutes:   5,
		Importance:       ImportanceCritical,
		AlertSensitivity: SensitivityHigh,
		SelfHealing:      HealingAutomatic,
		Rank:             1,
	},
	Signals: {
		CadenceMinutes:   30,
		Importance:       ImportanceHigh,
		AlertSensitivity: SensitivityMedium,
		SelfHealing:      HealingManual,
		Rank:             2,
	},
	Full: {
		CadenceMinutes:   60,
		Importance:       ImportanceHigh,
		AlertSensitivity: SensitivityMedium,
		SelfHealing:      HealingAutomatic,
		Rank:             3,
	},
}

// PolicyFor returns the slice policy for a mode. Unknown modes get the
// core policy, the most conservative cadence.
func PolicyFor(m Mode) SlicePolicy {
	if p, ok := policies[m]; ok {
		return p
	}
	return policies[Core]
}

package selfheal

import (
	"github.com/sentinelhq/sentinel/internal/flow"
)

// Evidence is one piece of supporting data attached to a request.
type Evidence struct {
	Type   string `json:"type"`
	Detail string `json:"detail"`
}

// Playbook is the human-executable fallback attached to every request.
type Playbook struct {
	Actions []string `json:"actions"`
	Restart bool     `json:"restart"`
	Kill    bool     `json:"kill"`
	Defer   bool     `json:"defer"`
	Notify  bool     `json:"notify"`
	Links   []string `json:"links,omitempty"`
}

// RetryPolicy carries the backoff numbers for the external handler. This
// engine only originates the values; the handler owns the retry loop.
type RetryPolicy struct {
	MaxRetries  int `json:"max_retries"`
	SleepMinMs  int `json:"sleep_min_ms"`
	SleepMaxMs  int `json:"sleep_max_ms"`
	SleepStepMs int `json:"sleep_step_ms"`
}

// DefaultRetryPolicy returns the stock backoff schedule.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:  3,
		SleepMinMs:  2000,
		SleepMaxMs:  30000,
		SleepStepMs: 5000,
	}
}

// Request is an evidence-bearing ask for automated remediation. Constructed
// fresh per dispatch with Attempt=0 and never mutated afterwards.
type Request struct {
	SourceFunction  string          `json:"source_function"`
	TargetComponent string          `json:"target_component"`
	TargetEventName string          `json:"target_event_name"`
	ProblemSummary  string          `json:"problem_summary"`
	Domain          string          `json:"domain"`
	Attempt         int             `json:"attempt"`
	Reason          string          `json:"reason"`
	Evidence        []Evidence      `json:"evidence"`
	Playbook        Playbook        `json:"playbook"`
	RetryPolicy     RetryPolicy     `json:"retry_policy"`
	RunContext      flow.RunContext `json:"context"`
	Owner           string          `json:"owner,omitempty"`
	FallbackAction  string          `json:"fallback_action,omitempty"`
	RequestedBy     string          `json:"requested_by,omitempty"`
	DryRun          bool            `json:"dry_run,omitempty"`
}

// BuildParams are the inputs for constructing a Request.
type BuildParams struct {
	SourceFunction  string
	TargetComponent string
	TargetEventName string
	ProblemSummary  string
	Domain          string
	Reason          string
	Evidence        []Evidence
	Playbook        Playbook
	Owner           string
	RequestedBy     string
	DryRun          bool
	SourceEventID   string
	SourceEventName string
	Trace           []string
}

// BuildRequest assembles a Request with Attempt=0 and a deterministic run
// context key, so redelivered dispatches dedupe downstream.
func BuildRequest(p BuildParams) Request {
	const attempt = 0
	runCtx := flow.Build(flow.KeyInputs{
		EventName:       p.SourceEventName,
		SourceFunction:  p.SourceFunction,
		TargetComponent: p.TargetComponent,
		Domain:          p.Domain,
		TargetEventName: p.TargetEventName,
		Attempt:         attempt,
		EvidenceCount:   len(p.Evidence),
	}, p.SourceEventID, p.Trace)
	return Request{
		SourceFunction:  p.SourceFunction,
		TargetComponent: p.TargetComponent,
		TargetEventName: p.TargetEventName,
		ProblemSummary:  p.ProblemSummary,
		Domain:          p.Domain,
		Attempt:         attempt,
		Reason:          p.Reason,
		Evidence:        append([]Evidence(nil), p.Evidence...),
		Playbook:        p.Playbook,
		RetryPolicy:     DefaultRetryPolicy(),
		RunContext:      runCtx,
		Owner:           p.Owner,
		FallbackAction:  "notify",
		RequestedBy:     p.RequestedBy,
		DryRun:          p.DryRun,
	}
}

// PlaybookFor returns a remediation playbook for a domain. Unknown domains
// get the conservative notify-only book.
func PlaybookFor(domain string) Playbook {
	switch domain {
	case "gateway-bridge":
		return Playbook{
			Actions: []string{
				"restart the gateway bridge process",
				"verify the coordination store is reachable",
				"replay the last undelivered outbound batch",
			},
			Restart: true,
			Notify:  true,
		}
	case "coordination-store":
		return Playbook{
			Actions: []string{
				"check store memory pressure and evictions",
				"restart the store only if unreachable",
			},
			Restart: true,
			Defer:   true,
			Notify:  true,
		}
	default:
		return Playbook{
			Actions: []string{"inspect service logs", "escalate to owner"},
			Notify:  true,
		}
	}
}

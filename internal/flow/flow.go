package flow

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// RunContext correlates a monitoring run with any downstream escalation or
// remediation event it spawns. Key is deterministic over its inputs so
// at-least-once redelivery dedupes cleanly; Trace is hop labels for humans.
type RunContext struct {
	Key             string   `json:"run_context_key"`
	Trace           []string `json:"flow_trace"`
	SourceEventID   string   `json:"source_event_id,omitempty"`
	SourceEventName string   `json:"source_event_name,omitempty"`
	Attempt         int      `json:"attempt"`
}

// KeyInputs are the fields the correlation key is derived from. Identical
// inputs always produce the identical key.
type KeyInputs struct {
	EventName       string
	SourceFunction  string
	TargetComponent string
	Domain          string
	TargetEventName string
	Attempt         int
	EvidenceCount   int
}

// BuildKey derives the deterministic correlation key. The readable tuple is
// kept for debugging; the short hash suffix keeps keys safe for KV use even
// when fields contain separators.
func BuildKey(in KeyInputs) string {
	tuple := strings.Join([]string{
		in.EventName,
		in.SourceFunction,
		in.TargetComponent,
		in.Domain,
		in.TargetEventName,
		fmt.Sprintf("a%d", in.Attempt),
		fmt.Sprintf("e%d", in.EvidenceCount),
	}, "|")
	sum := sha256.Sum256([]byte(tuple))
	return fmt.Sprintf("%s:%s:%s:a%d:%s",
		sanitize(in.EventName), sanitize(in.TargetComponent), sanitize(in.Domain),
		in.Attempt, hex.EncodeToString(sum[:])[:12])
}

// Build assembles a RunContext for a dispatch chain.
func Build(in KeyInputs, sourceEventID string, trace []string) RunContext {
	return RunContext{
		Key:             BuildKey(in),
		Trace:           append([]string(nil), trace...),
		SourceEventID:   sourceEventID,
		SourceEventName: in.EventName,
		Attempt:         in.Attempt,
	}
}

// Append returns a copy of ctx with one more hop label.
func (c RunContext) Append(hop string) RunContext {
	out := c
	out.Trace = append(append([]string(nil), c.Trace...), hop)
	return out
}

func sanitize(s string) string {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return "none"
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			return r
		default:
			return '-'
		}
	}, s)
}

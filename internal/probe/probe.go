package probe

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

const (
	// DefaultTimeout bounds a single probe unless the registration overrides it.
	DefaultTimeout = 3 * time.Second

	detailMaxLen = 300
)

// Status is the outcome of one probe for one run. Immutable once produced;
// identity is by Name.
type Status struct {
	Name       string `json:"name"`
	OK         bool   `json:"ok"`
	Cancelled  bool   `json:"cancelled,omitempty"`
	Detail     string `json:"detail,omitempty"`
	DurationMs int64  `json:"duration_ms"`
}

// Func performs one timeout-bounded check of a dependency.
type Func func(ctx context.Context) error

type entry struct {
	name    string
	timeout time.Duration
	fn      Func
}

// Registry holds named probe functions.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]entry
}

// NewRegistry creates an empty probe registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]entry)}
}

// Register adds a named probe. A non-positive timeout falls back to DefaultTimeout.
func (r *Registry) Register(name string, timeout time.Duration, fn Func) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("probe name is required")
	}
	if fn == nil {
		return fmt.Errorf("probe func is required: %s", name)
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[name]; ok {
		return fmt.Errorf("probe already registered: %s", name)
	}
	r.entries[name] = entry{name: name, timeout: timeout, fn: fn}
	return nil
}

// MustRegister is Register that panics on error, for static wiring.
func (r *Registry) MustRegister(name string, timeout time.Duration, fn Func) {
	if err := r.Register(name, timeout, fn); err != nil {
		panic(err)
	}
}

// Names returns registered probe names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) snapshot() []entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	items := make([]entry, 0, len(r.entries))
	for _, e := range r.entries {
		items = append(items, e)
	}
	return items
}

// RunAll executes every registered probe concurrently, each under its own
// timeout. A probe that panics, errors, or times out yields OK=false with a
// truncated detail; one probe never blocks the others. If ctx is cancelled,
// in-flight probes are abandoned and reported as cancelled partial results.
func (r *Registry) RunAll(ctx context.Context) []Status {
	items := r.snapshot()
	if len(items) == 0 {
		return nil
	}
	results := make(chan Status, len(items))
	for _, item := range items {
		go func(item entry) {
			results <- runOne(ctx, item)
		}(item)
	}
	statuses := make([]Status, 0, len(items))
	for range items {
		select {
		case st := <-results:
			statuses = append(statuses, st)
		case <-ctx.Done():
			// Abandon whatever has not reported yet.
			seen := make(map[string]struct{}, len(statuses))
			for _, st := range statuses {
				seen[st.Name] = struct{}{}
			}
			for _, item := range items {
				if _, ok := seen[item.name]; !ok {
					statuses = append(statuses, Status{Name: item.name, OK: false, Cancelled: true, Detail: "run cancelled"})
				}
			}
			return statuses
		}
	}
	return statuses
}

func runOne(ctx context.Context, item entry) (st Status) {
	start := time.Now()
	st = Status{Name: item.name}
	defer func() {
		if rec := recover(); rec != nil {
			st.OK = false
			st.Detail = Truncate(fmt.Sprintf("panic: %v", rec))
		}
		st.DurationMs = time.Since(start).Milliseconds()
	}()
	probeCtx, cancel := context.WithTimeout(ctx, item.timeout)
	defer cancel()
	if err := item.fn(probeCtx); err != nil {
		st.OK = false
		st.Detail = Truncate(err.Error())
		return st
	}
	st.OK = true
	return st
}

// Degraded returns the failing subset of statuses. Cancelled entries were
// never actually checked and do not count as degraded.
func Degraded(statuses []Status) []Status {
	out := make([]Status, 0)
	for _, st := range statuses {
		if !st.OK && !st.Cancelled {
			out = append(out, st)
		}
	}
	return out
}

// Truncate caps free-form detail text so alert payloads stay readable.
func Truncate(s string) string {
	s = strings.TrimSpace(s)
	runes := []rune(s)
	if len(runes) <= detailMaxLen {
		return s
	}
	return string(runes[:detailMaxLen]) + "…"
}

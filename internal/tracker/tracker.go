package tracker

import (
	"context"
	"strings"

	"github.com/sentinelhq/sentinel/internal/probe"
)

// Task is a read-only view of one currently tracked problem.
type Task struct {
	ID    string
	Title string
	URL   string
}

// TaskSource lists currently tracked problems from an external task system.
// This package never creates or closes tasks.
type TaskSource interface {
	ListCurrentTasks(ctx context.Context) ([]Task, error)
}

// MatchesAny reports whether any task title mentions the component name,
// by normalized containment ("Redis outage investigation" matches "Redis").
func MatchesAny(tasks []Task, name string) bool {
	needle := normalize(name)
	if needle == "" {
		return false
	}
	for _, task := range tasks {
		if strings.Contains(normalize(task.Title), needle) {
			return true
		}
	}
	return false
}

// Filter drops degraded entries already covered by a tracked task, so only
// newly degraded services raise alerts.
func Filter(degraded []probe.Status, tasks []Task) []probe.Status {
	out := make([]probe.Status, 0, len(degraded))
	for _, st := range degraded {
		if !MatchesAny(tasks, st.Name) {
			out = append(out, st)
		}
	}
	return out
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

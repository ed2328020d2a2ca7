package notify

import "context"

// Level tags the urgency of a notification.
const (
	LevelInfo     = "info"
	LevelWarning  = "warning"
	LevelCritical = "critical"
)

// Message is one human-facing notification. Immediate messages bypass
// digest batching and are delivered right away.
type Message struct {
	Type      string `json:"type"`
	Prompt    string `json:"prompt"`
	Level     string `json:"level,omitempty"`
	Immediate bool   `json:"immediate,omitempty"`
}

// Gateway delivers notifications through one channel.
type Gateway interface {
	Notify(ctx context.Context, msg Message) error
}

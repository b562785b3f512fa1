package history

import (
	"context"
	"time"
)

// Event represents one action outcome exported to external systems for
// offline analytics. It is a copy of what the scheduler observed, not a
// second source of truth for quota decisions.
type Event struct {
	Account    string    `json:"account"`
	ActionType string    `json:"action_type"`
	OK         bool      `json:"ok"`
	Detail     string    `json:"detail,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Sink is a destination for action events (analytics/statistics systems).
// Implementations must be safe for concurrent use.
type Sink interface {
	Send(ctx context.Context, e Event) error
}

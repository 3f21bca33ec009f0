package history

import (
	"context"
	"time"
)

// Event is the per-service outcome of one supervisory pass, exported to
// external systems for audit/statistics.
type Event struct {
	PassID     string    `json:"pass_id"`
	Service    string    `json:"service"`
	Outcome    string    `json:"outcome"`
	PID        int       `json:"pid,omitempty"`
	Error      string    `json:"error,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Sink is a destination for history events (analytics/statistics systems).
// Implementations must be safe for concurrent use.
type Sink interface {
	Send(ctx context.Context, e Event) error
}

package service

import "time"

// Outcome is the per-service result of one supervisory pass.
type Outcome string

const (
	OutcomeAlreadyRunning Outcome = "already-running"
	OutcomeStarted        Outcome = "started"
	OutcomeStartFailed    Outcome = "start-failed"
)

// State is the derived liveness state of a service, recomputed on every
// probe and never persisted. Probes are independent and may race with a
// process still finishing startup.
type State string

const (
	StateRunning     State = "running"
	StateStarting    State = "starting"
	StateUnreachable State = "unreachable"
)

// Result describes what happened to one service during a pass.
type Result struct {
	Name       string        `json:"name"`
	Port       int           `json:"port"`
	Outcome    Outcome       `json:"outcome"`
	Err        error         `json:"-"`
	Error      string        `json:"error,omitempty"`
	PID        int           `json:"pid,omitempty"`
	DetectedBy string        `json:"detected_by,omitempty"` // probe method, e.g. "http:/health" or "port:5115"
	ProbeTime  time.Duration `json:"probe_time"`
}

// Status is a point-in-time view of one service, produced by a probe-only pass.
type Status struct {
	Name       string        `json:"name"`
	Port       int           `json:"port"`
	State      State         `json:"state"`
	DetectedBy string        `json:"detected_by,omitempty"`
	PID        int           `json:"pid,omitempty"`
	ProbeTime  time.Duration `json:"probe_time"`
	CheckedAt  time.Time     `json:"checked_at"`
}

// Summary aggregates one supervisory pass in registry order.
type Summary struct {
	PassID    string        `json:"pass_id"`
	StartedAt time.Time     `json:"started_at"`
	Elapsed   time.Duration `json:"elapsed"`
	Results   []Result      `json:"results"`
}

// Failed reports whether any service ended the pass in OutcomeStartFailed.
func (s Summary) Failed() bool {
	for _, r := range s.Results {
		if r.Outcome == OutcomeStartFailed {
			return true
		}
	}
	return false
}

// Counts returns totals per outcome kind.
func (s Summary) Counts() (running, started, failed int) {
	for _, r := range s.Results {
		switch r.Outcome {
		case OutcomeAlreadyRunning:
			running++
		case OutcomeStarted:
			started++
		case OutcomeStartFailed:
			failed++
		}
	}
	return
}

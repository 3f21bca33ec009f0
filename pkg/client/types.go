package client

import "time"

// ServiceStatus mirrors the daemon's /status entries.
type ServiceStatus struct {
	Name       string        `json:"name"`
	Port       int           `json:"port"`
	State      string        `json:"state"`
	DetectedBy string        `json:"detected_by,omitempty"`
	PID        int           `json:"pid,omitempty"`
	ProbeTime  time.Duration `json:"probe_time"`
	CheckedAt  time.Time     `json:"checked_at"`
}

// EnsureResult mirrors one per-service result of a remote ensure pass.
type EnsureResult struct {
	Name       string        `json:"name"`
	Port       int           `json:"port"`
	Outcome    string        `json:"outcome"`
	Error      string        `json:"error,omitempty"`
	PID        int           `json:"pid,omitempty"`
	DetectedBy string        `json:"detected_by,omitempty"`
	ProbeTime  time.Duration `json:"probe_time"`
}

// EnsureSummary mirrors the daemon's /ensure response.
type EnsureSummary struct {
	PassID    string         `json:"pass_id"`
	StartedAt time.Time      `json:"started_at"`
	Elapsed   time.Duration  `json:"elapsed"`
	Results   []EnsureResult `json:"results"`
}

// Failed reports whether any service ended the pass in start-failed.
func (s EnsureSummary) Failed() bool {
	for _, r := range s.Results {
		if r.Outcome == "start-failed" {
			return true
		}
	}
	return false
}

// ErrorResponse is the daemon's error payload.
type ErrorResponse struct {
	Error string `json:"error"`
}

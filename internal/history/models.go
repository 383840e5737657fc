package history

import (
	"time"

	"autocheck/internal/checkin"
)

// Run is one persisted check-in run.
type Run struct {
	ID              string            `json:"run_id"`
	Trigger         string            `json:"trigger"`
	StartedAt       time.Time         `json:"started_at"`
	FinishedAt      time.Time         `json:"finished_at"`
	Succeeded       int               `json:"succeeded"`
	Failed          int               `json:"failed"`
	NotifyAttempted bool              `json:"notify_attempted"`
	NotifyDelivered bool              `json:"notify_delivered"`
	NotifyError     string            `json:"notify_error,omitempty"`
	Summary         string            `json:"summary,omitempty"`
	Outcomes        []checkin.Outcome `json:"outcomes,omitempty"`
}

// Duration reports how long the run took.
func (r Run) Duration() time.Duration {
	if r.FinishedAt.Before(r.StartedAt) {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

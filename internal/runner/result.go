package runner

import (
	"errors"
	"time"

	"autocheck/internal/checkin"
	"autocheck/internal/history"
)

var (
	// ErrRunInProgress is returned when a trigger arrives while a run holds the lock.
	ErrRunInProgress = errors.New("run already in progress")
	// ErrRunAborted is returned when a run stops on an unexpected panic.
	ErrRunAborted = errors.New("run aborted")
)

// Trigger identifies what started a run.
type Trigger string

const (
	TriggerScheduled Trigger = "scheduled"
	TriggerManual    Trigger = "manual"
	TriggerAPI       Trigger = "api"
)

// NotifyResult records the notification step of a run.
type NotifyResult struct {
	Attempted bool   `json:"attempted"`
	Delivered bool   `json:"delivered"`
	Error     string `json:"error,omitempty"`
}

// RunResult is the aggregate result of one run.
type RunResult struct {
	RunID        string            `json:"run_id"`
	Trigger      Trigger           `json:"trigger"`
	StartedAt    time.Time         `json:"started_at"`
	FinishedAt   time.Time         `json:"finished_at"`
	Outcomes     []checkin.Outcome `json:"outcomes"`
	Notification NotifyResult      `json:"notification"`
	Summary      string            `json:"summary"`
}

// Counts returns the number of succeeded and failed outcomes.
func (r RunResult) Counts() (succeeded, failed int) {
	for _, outcome := range r.Outcomes {
		if outcome.Succeeded() {
			succeeded++
		} else {
			failed++
		}
	}
	return succeeded, failed
}

// HistoryRun converts the result into its persisted form.
func (r RunResult) HistoryRun() history.Run {
	succeeded, failed := r.Counts()
	return history.Run{
		ID:              r.RunID,
		Trigger:         string(r.Trigger),
		StartedAt:       r.StartedAt,
		FinishedAt:      r.FinishedAt,
		Succeeded:       succeeded,
		Failed:          failed,
		NotifyAttempted: r.Notification.Attempted,
		NotifyDelivered: r.Notification.Delivered,
		NotifyError:     r.Notification.Error,
		Summary:         r.Summary,
		Outcomes:        r.Outcomes,
	}
}

package ipc

import (
	"autocheck/internal/daemon"
	"autocheck/internal/history"
	"autocheck/internal/logging"
	"autocheck/internal/runner"
	"autocheck/internal/scheduler"
)

// StartRequest arms the scheduler of a stopped daemon.
type StartRequest struct{}

// StartResponse indicates whether the daemon was started.
type StartResponse struct {
	Started bool   `json:"started"`
	Message string `json:"message"`
}

// StopRequest disarms the daemon without ending the process.
type StopRequest struct{}

// StopResponse indicates stop result.
type StopResponse struct {
	Stopped bool `json:"stopped"`
}

// StatusRequest fetches daemon status.
type StatusRequest struct{}

// StatusResponse mirrors daemon.Status.
type StatusResponse = daemon.Status

// RunRequest triggers an immediate run.
type RunRequest struct{}

// RunResponse reports a manual run. Skipped means another run held the lock.
type RunResponse struct {
	Skipped bool             `json:"skipped"`
	Result  runner.RunResult `json:"result"`
}

// ReloadRequest re-reads the profile document.
type ReloadRequest struct{}

// ReloadResponse carries the resulting schedule.
type ReloadResponse struct {
	Schedule scheduler.Status `json:"schedule"`
	Error    string           `json:"error,omitempty"`
}

// ActivityRequest fetches activity events after a sequence cursor.
type ActivityRequest struct {
	Since      uint64 `json:"since"`
	Limit      int    `json:"limit"`
	Follow     bool   `json:"follow"`
	Tail       bool   `json:"tail"`
	All        bool   `json:"all"`
	WaitMillis int    `json:"wait_millis"`
}

// ActivityResponse returns events and the cursor for the next request.
type ActivityResponse struct {
	Events []logging.LogEvent `json:"events"`
	Next   uint64             `json:"next"`
}

// LogTailRequest fetches log lines based on offset and follow semantics.
type LogTailRequest struct {
	Offset     int64 `json:"offset"`
	Limit      int   `json:"limit"`
	Follow     bool  `json:"follow"`
	WaitMillis int   `json:"wait_millis"`
}

// LogTailResponse returns log lines and the next offset.
type LogTailResponse struct {
	Lines  []string `json:"lines"`
	Offset int64    `json:"offset"`
}

// HistoryRequest lists recent runs.
type HistoryRequest struct {
	Limit int `json:"limit"`
}

// HistoryResponse contains runs, newest first, without outcomes.
type HistoryResponse struct {
	Runs []history.Run `json:"runs"`
}

// RunDetailRequest fetches one run by id.
type RunDetailRequest struct {
	ID string `json:"id"`
}

// RunDetailResponse contains the run and its outcomes.
type RunDetailResponse struct {
	Run history.Run `json:"run"`
}

// TestNotificationRequest triggers a notification test.
type TestNotificationRequest struct{}

// TestNotificationResponse reports notification test outcome.
type TestNotificationResponse struct {
	Sent    bool   `json:"sent"`
	Message string `json:"message"`
}

package daemonctl

import (
	"context"
	"errors"
	"fmt"
	"os"

	"autocheck/internal/config"
	"autocheck/internal/history"
	"autocheck/internal/ipc"
	"autocheck/internal/logging"
	"autocheck/internal/preflight"
	"autocheck/internal/profile"
	"autocheck/internal/scheduler"
)

// OfflineStatus is what can be learned from disk while the daemon is down.
type OfflineStatus struct {
	Schedule      scheduler.Status `json:"schedule"`
	EnabledTasks  int              `json:"enabled_tasks"`
	NotifyEnabled bool             `json:"notify_enabled"`
	LastRun       *history.Run     `json:"last_run,omitempty"`
	ProfileError  string           `json:"profile_error,omitempty"`
}

// StatusSnapshot aggregates daemon state and environment checks for display.
type StatusSnapshot struct {
	DaemonRunning bool                `json:"daemon_running"`
	Daemon        *ipc.StatusResponse `json:"daemon,omitempty"`
	Offline       *OfflineStatus      `json:"offline,omitempty"`
	Checks        []preflight.Result  `json:"checks"`
}

// BuildStatusSnapshot asks the daemon for its status and falls back to the
// profile and run history on disk when no daemon answers.
func BuildStatusSnapshot(ctx context.Context, cfg *config.Config) (StatusSnapshot, error) {
	if cfg == nil {
		return StatusSnapshot{}, fmt.Errorf("config unavailable")
	}
	snapshot := StatusSnapshot{Checks: preflight.RunAll(ctx, cfg)}

	client, err := ipc.Dial(cfg.SocketPath())
	if err == nil {
		defer client.Close()
		status, statusErr := client.Status()
		if statusErr == nil {
			snapshot.DaemonRunning = true
			snapshot.Daemon = status
			return snapshot, nil
		}
		err = statusErr
	}
	if !isDaemonUnavailable(err) {
		return snapshot, fmt.Errorf("query daemon status: %w", err)
	}

	offline, err := buildOffline(ctx, cfg)
	if err != nil {
		return snapshot, err
	}
	snapshot.Offline = offline
	return snapshot, nil
}

func buildOffline(ctx context.Context, cfg *config.Config) (*OfflineStatus, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	offline := &OfflineStatus{}

	store, err := profile.Open(cfg.Paths.ProfilePath, logging.NewNop())
	if err != nil {
		return nil, err
	}
	snap, snapErr := store.Snapshot()
	if snapErr != nil {
		offline.ProfileError = snapErr.Error()
	}
	sched := scheduler.New(nil, scheduler.Options{Location: loc, Logger: logging.NewNop()})
	offline.Schedule = sched.Reconfigure(snap.Settings.ScheduleTime)
	offline.EnabledTasks = snap.EnabledTasks()
	offline.NotifyEnabled = snap.Settings.WeCom.Configured()

	if _, statErr := os.Stat(cfg.Paths.HistoryDB); statErr != nil {
		if errors.Is(statErr, os.ErrNotExist) {
			return offline, nil
		}
		return nil, fmt.Errorf("stat history db: %w", statErr)
	}
	hist, err := history.Open(cfg)
	if err != nil {
		return nil, err
	}
	defer hist.Close()
	runs, err := hist.Recent(ctx, 1)
	if err != nil {
		return nil, err
	}
	if len(runs) > 0 {
		offline.LastRun = &runs[0]
	}
	return offline, nil
}

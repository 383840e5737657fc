package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"autocheck/internal/checkin"
	"autocheck/internal/config"
	"autocheck/internal/history"
	"autocheck/internal/logging"
	"autocheck/internal/notifications"
	"autocheck/internal/profile"
	"autocheck/internal/runner"
	"autocheck/internal/scheduler"
	"autocheck/internal/services"
)

// ErrNotRunning is returned by operations that need a started daemon.
var ErrNotRunning = errors.New("daemon not running")

// Options carries the optional collaborators of a Daemon.
type Options struct {
	// LogPath is the daemon log file served by LogTail.
	LogPath string
	Hub     *logging.StreamHub
	Archive *logging.EventArchive
	// LevelVar is raised to debug while the profile has debug enabled.
	LevelVar *slog.LevelVar
	// CheckInClient and NotifyClient replace the default HTTP clients.
	CheckInClient checkin.HTTPDoer
	NotifyClient  notifications.HTTPDoer
	Clock         scheduler.Clock
}

// Daemon coordinates the background services and enforces single-instance execution.
type Daemon struct {
	cfg       *config.Config
	logger    *slog.Logger
	profile   *profile.Store
	history   *history.Store
	provider  *notifications.Provider
	runner    *runner.Runner
	scheduler *scheduler.Scheduler
	feed      *logging.ActivityFeed
	hub       *logging.StreamHub
	archive   *logging.EventArchive
	levelVar  *slog.LevelVar
	baseLevel slog.Level
	logPath   string
	watchFn   func(path string, onChange func(), logger *slog.Logger) (*profile.Watcher, error)

	lockPath string
	lock     *flock.Flock

	running atomic.Bool

	// manual counts RunNow calls; it only grows while ctx is set.
	manual sync.WaitGroup

	mu         sync.Mutex
	ctx        context.Context
	cancel     context.CancelFunc
	watcher    *profile.Watcher
	api        *apiServer
	startedAt  time.Time
	debug      bool
	lastReload time.Time
	reloadErr  string
}

// Status represents daemon runtime information.
type Status struct {
	Running       bool              `json:"running"`
	PID           int               `json:"pid"`
	StartedAt     time.Time         `json:"started_at,omitzero"`
	Schedule      scheduler.Status  `json:"schedule"`
	RunInProgress bool              `json:"run_in_progress"`
	LastRun       *runner.RunResult `json:"last_run,omitempty"`
	EnabledTasks  int               `json:"enabled_tasks"`
	NotifyEnabled bool              `json:"notify_enabled"`
	Debug         bool              `json:"debug"`
	LastReload    time.Time         `json:"last_reload,omitzero"`
	ReloadError   string            `json:"reload_error,omitempty"`
	ProfilePath   string            `json:"profile_path"`
	HistoryDBPath string            `json:"history_db_path"`
	LockFilePath  string            `json:"lock_path"`
	APIAddress    string            `json:"api_address,omitempty"`
	Paths         map[string]string `json:"paths,omitempty"`
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, profileStore *profile.Store, historyStore *history.Store, logger *slog.Logger, opts Options) (*Daemon, error) {
	if cfg == nil || profileStore == nil || historyStore == nil {
		return nil, errors.New("daemon requires config, profile store, and history store")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	d := &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		profile:  profileStore,
		history:  historyStore,
		hub:      opts.Hub,
		archive:  opts.Archive,
		levelVar: opts.LevelVar,
		logPath:  opts.LogPath,
		watchFn:  profile.NewWatcher,
		lockPath: cfg.LockPath(),
		lock:     flock.New(cfg.LockPath()),
	}
	if d.levelVar != nil {
		d.baseLevel = d.levelVar.Level()
	}

	d.feed = logging.NewActivityFeed(logger, opts.Hub)
	d.provider = notifications.NewProvider(cfg, opts.NotifyClient)
	client := checkin.New(checkin.OptionsFromConfig(cfg), opts.CheckInClient, logger)
	d.runner = runner.New(profileStore, client, d.provider, historyStore, d.feed, logger, runner.Options{
		Concurrency: cfg.CheckIn.Concurrency,
		KeepRuns:    cfg.History.KeepRuns,
		Location:    loc,
	})
	d.scheduler = scheduler.New(d.fireScheduled, scheduler.Options{
		Clock:             opts.Clock,
		Location:          loc,
		CountdownInterval: cfg.CountdownInterval(),
		Logger:            logger,
	})
	return d, nil
}

// Start acquires the daemon lock, loads the profile and arms the scheduler.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another autocheck daemon instance is already running")
	}

	d.mu.Lock()
	d.ctx, d.cancel = context.WithCancel(ctx)
	runCtx := d.ctx
	d.startedAt = time.Now()
	d.mu.Unlock()

	if _, err := d.Reload(); err != nil {
		d.logger.Warn("initial profile load failed; scheduler idle",
			logging.String(logging.FieldEventType, "profile_load_failed"),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "fix the profile document and run `autocheck reload`"),
			logging.String(logging.FieldImpact, "no scheduled runs until the profile loads"),
		)
	}
	d.scheduler.Start(runCtx)
	d.startWatcher(runCtx)

	api, err := newAPIServer(d.cfg, d, d.logger)
	if err == nil && api != nil {
		err = api.start(runCtx)
	}
	if err != nil {
		d.logger.Warn("api server unavailable",
			logging.String(logging.FieldEventType, "api_start_failed"),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check paths.api_bind"),
			logging.String(logging.FieldImpact, "HTTP status API disabled"),
		)
		api = nil
	}
	d.mu.Lock()
	d.api = api
	d.mu.Unlock()

	d.running.Store(true)
	d.feed.Emit("daemon started")
	d.logger.Info("autocheck daemon started",
		logging.String(logging.FieldEventType, "daemon_start"),
		logging.String("lock", d.lockPath),
	)
	return nil
}

func (d *Daemon) startWatcher(ctx context.Context) {
	if !d.cfg.Schedule.WatchProfile {
		return
	}
	watcher, err := d.watchFn(d.profile.Path(), d.onProfileChanged, d.logger)
	if err != nil {
		d.logger.Warn("profile watcher unavailable",
			logging.String(logging.FieldEventType, "profile_watch_failed"),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "use `autocheck reload` after editing the profile"),
			logging.String(logging.FieldImpact, "profile edits will not reschedule automatically"),
		)
		return
	}
	watcher.Start(ctx)
	d.mu.Lock()
	d.watcher = watcher
	d.mu.Unlock()
}

func (d *Daemon) onProfileChanged() {
	if !d.running.Load() {
		return
	}
	if _, err := d.Reload(); err != nil {
		d.logger.Warn("profile reload failed; keeping previous schedule",
			logging.String(logging.FieldEventType, "profile_reload_failed"),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the profile document for invalid JSON"),
			logging.String(logging.FieldImpact, "schedule changes are not applied"),
		)
	}
}

// Stop disarms the scheduler, waits for an in-flight run and releases the lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	d.mu.Lock()
	cancel := d.cancel
	watcher := d.watcher
	api := d.api
	d.ctx = nil
	d.cancel = nil
	d.watcher = nil
	d.api = nil
	d.mu.Unlock()

	if watcher != nil {
		_ = watcher.Close()
	}
	// A started run finishes on its own timeouts; cancelling would turn
	// in-flight check-ins into failures.
	d.scheduler.Stop()
	d.manual.Wait()
	d.runner.Wait()
	if cancel != nil {
		cancel()
	}
	api.stop()

	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock",
			logging.String(logging.FieldEventType, "daemon_lock_release_failed"),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "remove the lock file if the next start fails"),
			logging.String(logging.FieldImpact, "next daemon start may report another instance"),
		)
	}
	d.running.Store(false)
	d.feed.Emit("daemon stopped")
	d.logger.Info("autocheck daemon stopped", logging.String(logging.FieldEventType, "daemon_stop"))
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.history != nil {
		return d.history.Close()
	}
	return nil
}

func (d *Daemon) fireScheduled(ctx context.Context) {
	d.execute(context.WithoutCancel(ctx), runner.TriggerScheduled)
}

func (d *Daemon) execute(ctx context.Context, trigger runner.Trigger) (runner.RunResult, error) {
	result, err := d.runner.Run(ctx, trigger)
	switch {
	case err == nil, errors.Is(err, runner.ErrRunInProgress):
	default:
		logging.ErrorWithContext(d.logger, "run failed", "run_failed",
			logging.String(logging.FieldTrigger, string(trigger)),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the profile document and daemon log"),
		)
	}
	return result, err
}

// RunNow performs a run immediately and waits for its result. It returns
// runner.ErrRunInProgress when another run holds the lock.
func (d *Daemon) RunNow(trigger runner.Trigger) (runner.RunResult, error) {
	d.mu.Lock()
	ctx := d.ctx
	if ctx == nil || !d.running.Load() {
		d.mu.Unlock()
		return runner.RunResult{}, ErrNotRunning
	}
	d.manual.Add(1)
	d.mu.Unlock()
	defer d.manual.Done()
	return d.execute(ctx, trigger)
}

// Reload re-reads the profile, reschedules and applies the debug flag.
func (d *Daemon) Reload() (scheduler.Status, error) {
	snap, err := d.profile.Snapshot()
	d.mu.Lock()
	d.lastReload = time.Now()
	if err != nil {
		d.reloadErr = err.Error()
		d.mu.Unlock()
		return d.scheduler.Status(), err
	}
	d.reloadErr = ""
	d.debug = snap.Settings.Debug
	d.mu.Unlock()

	d.applyDebug(snap.Settings.Debug)
	status := d.scheduler.Reconfigure(snap.Settings.ScheduleTime)
	d.feed.Emit(status.Message)
	d.logger.Debug("profile reloaded",
		logging.String(logging.FieldEventType, "profile_reloaded"),
		logging.Int("tasks", len(snap.Tasks)),
		logging.Int("enabled_tasks", snap.EnabledTasks()),
		logging.Bool("notify_enabled", notifications.Configured(snap.Settings.WeCom)),
	)
	return status, nil
}

func (d *Daemon) applyDebug(enabled bool) {
	if d.levelVar == nil {
		return
	}
	if enabled {
		d.levelVar.Set(slog.LevelDebug)
		return
	}
	d.levelVar.Set(d.baseLevel)
}

// TestNotification sends a test message with the profile's WeCom credentials.
func (d *Daemon) TestNotification(ctx context.Context) (bool, string, error) {
	snap, err := d.profile.Snapshot()
	if err != nil {
		return false, "profile unavailable", err
	}
	if !notifications.Configured(snap.Settings.WeCom) {
		return false, "wecom credentials not configured", nil
	}
	if err := d.provider.For(snap.Settings.WeCom).TestNotification(ctx); err != nil {
		return false, "failed to send notification", err
	}
	return true, "test notification sent", nil
}

// History returns the most recent runs, newest first.
func (d *Daemon) History(ctx context.Context, limit int) ([]history.Run, error) {
	return d.history.Recent(ctx, limit)
}

// RunDetail returns one run with its outcomes.
func (d *Daemon) RunDetail(ctx context.Context, id string) (history.Run, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return history.Run{}, services.Wrap(services.ErrValidation, "daemon", "run detail", "run id is required", nil)
	}
	run, found, err := d.history.Get(ctx, id)
	if err != nil {
		return history.Run{}, err
	}
	if !found {
		return history.Run{}, services.Wrap(services.ErrNotFound, "daemon", "run detail", fmt.Sprintf("run %q not found", id), nil)
	}
	return run, nil
}

// LogPath returns the path to the daemon log file.
func (d *Daemon) LogPath() string {
	return d.logPath
}

// LogStream returns the in-memory event hub.
func (d *Daemon) LogStream() *logging.StreamHub {
	return d.hub
}

// LogArchive returns the on-disk event journal.
func (d *Daemon) LogArchive() *logging.EventArchive {
	return d.archive
}

// Status returns the current daemon status.
func (d *Daemon) Status(context.Context) Status {
	d.mu.Lock()
	status := Status{
		Running:       d.running.Load(),
		PID:           os.Getpid(),
		StartedAt:     d.startedAt,
		Debug:         d.debug,
		LastReload:    d.lastReload,
		ReloadError:   d.reloadErr,
		ProfilePath:   d.profile.Path(),
		HistoryDBPath: d.history.Path(),
		LockFilePath:  d.lockPath,
	}
	if d.api != nil {
		status.APIAddress = d.api.address()
	}
	d.mu.Unlock()

	status.Schedule = d.scheduler.Status()
	status.RunInProgress = d.runner.Busy()
	if last, ok := d.runner.LastResult(); ok {
		status.LastRun = &last
	}
	if snap, err := d.profile.Snapshot(); err == nil {
		status.EnabledTasks = snap.EnabledTasks()
		status.NotifyEnabled = notifications.Configured(snap.Settings.WeCom)
	}
	status.Paths = map[string]string{
		"data_dir": d.cfg.Paths.DataDir,
		"log_dir":  d.cfg.Paths.LogDir,
		"log_file": d.logPath,
	}
	return status
}

package runner

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"autocheck/internal/checkin"
	"autocheck/internal/history"
	"autocheck/internal/logging"
	"autocheck/internal/notifications"
	"autocheck/internal/profile"
	"autocheck/internal/resolver"
	"autocheck/internal/services"
)

// SnapshotSource supplies the profile for each run.
type SnapshotSource interface {
	Snapshot() (profile.Snapshot, error)
}

// Attempter performs one check-in.
type Attempter interface {
	Attempt(ctx context.Context, account profile.Account, location profile.Location) checkin.Outcome
}

// NotifierSource returns a notification service for a set of credentials.
type NotifierSource interface {
	For(creds profile.WeCom) notifications.Service
}

// Recorder persists finished runs.
type Recorder interface {
	Record(ctx context.Context, run history.Run) error
	Prune(ctx context.Context, keep int) (int64, error)
}

// LogSink receives user-visible activity lines. Each call is one whole line.
type LogSink interface {
	Emit(line string)
}

// Options tunes a Runner.
type Options struct {
	Concurrency int
	KeepRuns    int
	Location    *time.Location
	Now         func() time.Time
}

// Runner executes runs. The zero value is not usable; call New.
type Runner struct {
	profile  SnapshotSource
	client   Attempter
	notifier NotifierSource
	recorder Recorder
	sink     LogSink
	logger   *slog.Logger
	opts     Options
	lock     RunLock
	active   sync.WaitGroup
	newID    func() string

	mu   sync.RWMutex
	last *RunResult
}

// New wires a Runner. notifier, recorder and sink may be nil.
func New(source SnapshotSource, client Attempter, notifier NotifierSource, recorder Recorder, sink LogSink, logger *slog.Logger, opts Options) *Runner {
	if logger == nil {
		logger = logging.NewNop()
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Runner{
		profile:  source,
		client:   client,
		notifier: notifier,
		recorder: recorder,
		sink:     sink,
		logger:   logging.NewComponentLogger(logger, "runner"),
		opts:     opts,
		newID:    uuid.NewString,
	}
}

// Busy reports whether a run is in progress.
func (r *Runner) Busy() bool {
	return r.lock.Held()
}

// Wait blocks until the active run, if any, has finished.
func (r *Runner) Wait() {
	r.active.Wait()
}

// LastResult returns the most recently completed run.
func (r *Runner) LastResult() (RunResult, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.last == nil {
		return RunResult{}, false
	}
	return *r.last, true
}

// Run executes one complete run. It returns ErrRunInProgress without touching
// the check-in service when another run holds the lock.
func (r *Runner) Run(ctx context.Context, trigger Trigger) (result RunResult, err error) {
	if !r.lock.TryAcquire() {
		r.emit("run already in progress, skipped")
		r.logger.Info("run trigger dropped",
			logging.String(logging.FieldEventType, "run_skipped"),
			logging.String(logging.FieldTrigger, string(trigger)),
		)
		return RunResult{}, ErrRunInProgress
	}
	r.active.Add(1)
	defer r.active.Done()
	defer r.lock.Release()

	result = RunResult{
		RunID:     r.newID(),
		Trigger:   trigger,
		StartedAt: r.opts.Now(),
	}
	ctx = services.WithRunID(ctx, result.RunID)
	ctx = services.WithTrigger(ctx, string(trigger))
	logger := logging.WithContext(ctx, r.logger)

	defer func() {
		if p := recover(); p != nil {
			logger.Error("run aborted",
				logging.String(logging.FieldEventType, "run_aborted"),
				logging.Any("panic", p),
				logging.String("stack", string(debug.Stack())),
				logging.String(logging.FieldErrorHint, "inspect the daemon log for the stack trace"),
				logging.String(logging.FieldImpact, "run results were not recorded"),
			)
			r.emit(fmt.Sprintf("run aborted: unexpected error: %v", p))
			err = fmt.Errorf("%w: %v", ErrRunAborted, p)
		}
	}()

	logger.Info("run started", logging.String(logging.FieldEventType, "run_started"))

	snap, err := r.profile.Snapshot()
	if err != nil {
		logging.ErrorWithContext(logger, "profile snapshot failed", "run_profile_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "fix the profile document and trigger a new run"),
			logging.String(logging.FieldImpact, "no check-ins were attempted"),
		)
		r.emit(fmt.Sprintf("run failed: cannot read profile: %v", err))
		return result, services.Wrap(services.ErrConfiguration, "runner", "snapshot", "read profile", err)
	}

	seq := resolver.FromSnapshot(snap)
	if seq.Len() == 0 {
		r.emit("nothing to do")
		result.Outcomes = []checkin.Outcome{}
	} else {
		result.Outcomes = r.execute(ctx, logger, seq)
	}
	result.FinishedAt = r.opts.Now()
	result.Summary = FormatSummary(result.StartedAt.In(r.opts.Location), result.Outcomes)

	if len(result.Outcomes) > 0 {
		r.emit(result.Summary)
		result.Notification = r.notify(ctx, logger, snap.Settings.WeCom, result.Summary)
	}

	succeeded, failed := result.Counts()
	logger.Info("run finished",
		logging.String(logging.FieldEventType, "run_finished"),
		logging.Int("succeeded", succeeded),
		logging.Int("failed", failed),
		logging.Duration("duration", result.FinishedAt.Sub(result.StartedAt)),
		logging.Bool("notified", result.Notification.Delivered),
	)

	r.record(ctx, logger, result)
	r.mu.Lock()
	stored := result
	r.last = &stored
	r.mu.Unlock()
	return result, nil
}

func (r *Runner) execute(ctx context.Context, logger *slog.Logger, seq resolver.Sequence) []checkin.Outcome {
	outcomes := make([]checkin.Outcome, seq.Len())
	var (
		g         errgroup.Group
		panicOnce sync.Once
		panicked  any
	)
	g.SetLimit(r.opts.Concurrency)
	for i, item := range seq.All() {
		g.Go(func() error {
			// Re-raised on the run goroutine after Wait.
			defer func() {
				if p := recover(); p != nil {
					logger.Error("task goroutine panicked",
						logging.String(logging.FieldEventType, "task_goroutine_panic"),
						logging.Any("panic", p),
						logging.String("stack", string(debug.Stack())),
					)
					panicOnce.Do(func() { panicked = p })
				}
			}()
			outcome := r.attempt(ctx, logger, item)
			outcomes[i] = outcome
			r.emit(FormatOutcome(outcome))
			logger.Debug("task outcome",
				logging.String(logging.FieldEventType, "task_outcome"),
				logging.String(logging.FieldAccount, outcome.AccountName),
				logging.String(logging.FieldLocation, outcome.LocationName),
				logging.String("status", string(outcome.Status)),
				logging.String("class", string(outcome.Class)),
				logging.Int("attempts", outcome.Attempts),
			)
			return nil
		})
	}
	_ = g.Wait()
	if panicked != nil {
		panic(panicked)
	}
	return outcomes
}

// attempt isolates one task: resolution errors and panics become failures.
func (r *Runner) attempt(ctx context.Context, logger *slog.Logger, item resolver.Resolved) (outcome checkin.Outcome) {
	if item.Err != nil {
		return checkin.Failed(item.Account.Name, item.Location.Name, item.Err)
	}
	defer func() {
		if p := recover(); p != nil {
			logger.Error("task panicked",
				logging.String(logging.FieldEventType, "task_panic"),
				logging.String(logging.FieldAccount, item.Account.Name),
				logging.String(logging.FieldLocation, item.Location.Name),
				logging.Any("panic", p),
				logging.String("stack", string(debug.Stack())),
			)
			outcome = checkin.Outcome{
				AccountName:  item.Account.Name,
				LocationName: item.Location.Name,
				Status:       checkin.StatusFailure,
				Detail:       fmt.Sprintf("unexpected error: %v", p),
				Class:        services.ClassUnexpected,
			}
		}
	}()
	return r.client.Attempt(ctx, item.Account, item.Location)
}

func (r *Runner) notify(ctx context.Context, logger *slog.Logger, creds profile.WeCom, summary string) NotifyResult {
	if r.notifier == nil || !notifications.Configured(creds) {
		logger.Debug("notification skipped", logging.String(logging.FieldEventType, "notify_skipped"))
		return NotifyResult{}
	}
	res := NotifyResult{Attempted: true}
	if err := r.notifier.For(creds).Send(ctx, summary); err != nil {
		res.Error = err.Error()
		logging.WarnWithContext(logger, "notification failed", "notify_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check wecom corpid, secret and agentid with `autocheck test-notify`"),
			logging.String(logging.FieldImpact, "run summary was not delivered"),
		)
		r.emit(fmt.Sprintf("notification failed: %v", err))
		return res
	}
	res.Delivered = true
	logger.Info("notification delivered", logging.String(logging.FieldEventType, "notify_delivered"))
	r.emit("notification sent")
	return res
}

func (r *Runner) record(ctx context.Context, logger *slog.Logger, result RunResult) {
	if r.recorder == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := r.recorder.Record(ctx, result.HistoryRun()); err != nil {
		logging.WarnWithContext(logger, "history write failed", "history_write_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check paths.history_db permissions and free space"),
			logging.String(logging.FieldImpact, "run is missing from `autocheck history`"),
		)
		return
	}
	if removed, err := r.recorder.Prune(ctx, r.opts.KeepRuns); err != nil {
		logger.Warn("history prune failed", logging.String(logging.FieldEventType, "history_prune_failed"), logging.Error(err))
	} else if removed > 0 {
		logger.Debug("history pruned", logging.Int64("removed", removed))
	}
}

func (r *Runner) emit(line string) {
	if r.sink != nil {
		r.sink.Emit(line)
	}
}

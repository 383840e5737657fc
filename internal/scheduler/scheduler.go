// Package scheduler arms a daily trigger at the profile's schedule time and
// keeps a countdown to the next fire for display.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"sync"
	"time"

	robcron "github.com/robfig/cron/v3"

	"autocheck/internal/logging"
)

// State is the scheduler's phase.
type State string

const (
	StateIdle   State = "idle"
	StateArmed  State = "armed"
	StateFiring State = "firing"
)

// MessageInvalidTime is the status shown for an unparseable schedule time.
const MessageInvalidTime = "Invalid time format (HH:MM)"

var timePattern = regexp.MustCompile(`^([01]?[0-9]|2[0-3]):([0-5][0-9])$`)

var cronParser = robcron.NewParser(robcron.Minute | robcron.Hour | robcron.Dom | robcron.Month | robcron.Dow | robcron.Descriptor)

// Status is a point-in-time view for display.
type Status struct {
	State        State         `json:"state"`
	Message      string        `json:"message"`
	ScheduleTime string        `json:"schedule_time,omitempty"`
	Next         time.Time     `json:"next,omitempty"`
	Remaining    time.Duration `json:"remaining"`
	Countdown    string        `json:"countdown"`
}

// Options configures a Scheduler.
type Options struct {
	Clock             Clock
	Location          *time.Location
	CountdownInterval time.Duration
	// OnCountdown, when set, receives every display refresh.
	OnCountdown func(Status)
	Logger      *slog.Logger
}

// Scheduler owns the trigger loop and the display loop.
type Scheduler struct {
	fire     func(context.Context)
	clock    Clock
	loc      *time.Location
	interval time.Duration
	onTick   func(Status)
	logger   *slog.Logger

	mu           sync.Mutex
	state        State
	message      string
	scheduleTime string
	schedule     robcron.Schedule
	next         time.Time
	countdown    string

	wake    chan struct{}
	cancel  context.CancelFunc
	loops   sync.WaitGroup
	firings sync.WaitGroup
}

// New builds an idle scheduler that calls fire at each trigger.
func New(fire func(context.Context), opts Options) *Scheduler {
	if opts.Clock == nil {
		opts.Clock = SystemClock{}
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.CountdownInterval <= 0 {
		opts.CountdownInterval = time.Second
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewNop()
	}
	return &Scheduler{
		fire:      fire,
		clock:     opts.Clock,
		loc:       opts.Location,
		interval:  opts.CountdownInterval,
		onTick:    opts.OnCountdown,
		logger:    logging.NewComponentLogger(opts.Logger, "scheduler"),
		state:     StateIdle,
		message:   MessageInvalidTime,
		countdown: idleCountdown,
		wake:      make(chan struct{}, 1),
	}
}

// ParseTime validates a 24h HH:MM string and returns its hour and minute.
func ParseTime(value string) (hour, minute int, ok bool) {
	m := timePattern.FindStringSubmatch(value)
	if m == nil {
		return 0, 0, false
	}
	hour, _ = strconv.Atoi(m[1])
	minute, _ = strconv.Atoi(m[2])
	return hour, minute, true
}

// Reconfigure replaces the schedule. Any pending fire is discarded; an
// invalid value leaves the scheduler idle.
func (s *Scheduler) Reconfigure(scheduleTime string) Status {
	hour, minute, ok := ParseTime(scheduleTime)

	s.mu.Lock()
	if !ok {
		s.state = StateIdle
		s.message = MessageInvalidTime
		s.scheduleTime = scheduleTime
		s.schedule = nil
		s.next = time.Time{}
	} else {
		schedule, err := cronParser.Parse(fmt.Sprintf("%d %d * * *", minute, hour))
		if err != nil {
			s.state = StateIdle
			s.message = MessageInvalidTime
			s.schedule = nil
			s.next = time.Time{}
		} else {
			s.scheduleTime = fmt.Sprintf("%02d:%02d", hour, minute)
			s.schedule = schedule
			s.state = StateArmed
			s.message = "Scheduled daily at " + s.scheduleTime
			s.next = schedule.Next(s.clock.Now().In(s.loc))
		}
	}
	status := s.statusLocked(s.clock.Now())
	s.countdown = status.Countdown
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}

	if status.State == StateIdle {
		s.logger.Warn("schedule disabled",
			logging.String(logging.FieldEventType, "schedule_invalid"),
			logging.String("schedule_time", scheduleTime),
			logging.String(logging.FieldErrorHint, "set scheduletime to HH:MM, for example `autocheck settings set scheduletime 08:00`"),
			logging.String(logging.FieldImpact, "no scheduled runs until fixed"),
		)
	} else {
		s.logger.Info("schedule armed",
			logging.String(logging.FieldEventType, "schedule_armed"),
			logging.String("schedule_time", status.ScheduleTime),
			logging.Time("next", status.Next),
		)
	}
	return status
}

// Start launches the trigger and display loops.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.loops.Add(2)
	go s.triggerLoop(ctx)
	go s.displayLoop(ctx)
}

// Stop ends both loops and waits for in-flight fire callbacks.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.loops.Wait()
	s.firings.Wait()
}

// Status returns the current state with a freshly computed countdown.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statusLocked(s.clock.Now())
}

// Countdown returns the last value produced by the display loop.
func (s *Scheduler) Countdown() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.countdown
}

func (s *Scheduler) triggerLoop(ctx context.Context) {
	defer s.loops.Done()
	for {
		s.mu.Lock()
		armed := s.state == StateArmed && s.schedule != nil
		next := s.next
		s.mu.Unlock()

		var timer Timer
		var fired <-chan time.Time
		if armed {
			delay := max(next.Sub(s.clock.Now()), 0)
			timer = s.clock.NewTimer(delay)
			fired = timer.C()
		}

		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return
		case <-s.wake:
			if timer != nil {
				timer.Stop()
			}
		case <-fired:
			s.onFire(ctx, next)
		}
	}
}

func (s *Scheduler) onFire(ctx context.Context, due time.Time) {
	s.mu.Lock()
	if s.state != StateArmed || !s.next.Equal(due) {
		// Reconfigured between timer expiry and this select.
		s.mu.Unlock()
		return
	}
	s.state = StateFiring
	s.mu.Unlock()

	s.logger.Info("schedule fired",
		logging.String(logging.FieldEventType, "schedule_fired"),
		logging.Time("due", due),
	)
	s.firings.Add(1)
	go func() {
		defer s.firings.Done()
		s.fire(ctx)
	}()

	s.mu.Lock()
	if s.state == StateFiring && s.schedule != nil {
		base := s.clock.Now()
		if base.Before(due) {
			base = due
		}
		s.next = s.schedule.Next(base.In(s.loc))
		s.state = StateArmed
	}
	s.mu.Unlock()
}

func (s *Scheduler) displayLoop(ctx context.Context) {
	defer s.loops.Done()
	for {
		s.mu.Lock()
		status := s.statusLocked(s.clock.Now())
		s.countdown = status.Countdown
		s.mu.Unlock()
		if s.onTick != nil {
			s.onTick(status)
		}

		timer := s.clock.NewTimer(s.interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C():
		}
	}
}

const idleCountdown = "--:--:--"

func (s *Scheduler) statusLocked(now time.Time) Status {
	status := Status{
		State:        s.state,
		Message:      s.message,
		ScheduleTime: s.scheduleTime,
		Countdown:    idleCountdown,
	}
	if s.state == StateIdle || s.next.IsZero() {
		return status
	}
	status.Next = s.next
	status.Remaining = max(s.next.Sub(now), 0)
	status.Countdown = FormatCountdown(status.Remaining)
	return status
}

// FormatCountdown renders d as HH:MM:SS, rounding partial seconds up.
func FormatCountdown(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int64((d + time.Second - 1) / time.Second)
	return fmt.Sprintf("%02d:%02d:%02d", total/3600, (total%3600)/60, total%60)
}

// At returns a copy of s with the countdown recomputed for now.
func (s Status) At(now time.Time) Status {
	if s.State == StateIdle || s.Next.IsZero() {
		return s
	}
	s.Remaining = max(s.Next.Sub(now), 0)
	s.Countdown = FormatCountdown(s.Remaining)
	return s
}

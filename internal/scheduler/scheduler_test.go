package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

type fakeTimer struct {
	clock    *fakeClock
	deadline time.Time
	ch       chan time.Time
	done     bool
}

func newFakeClock(now time.Time) *fakeClock {
	return &fakeClock{now: now}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) NewTimer(d time.Duration) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, deadline: c.now.Add(d), ch: make(chan time.Time, 1)}
	if d <= 0 {
		t.done = true
		t.ch <- c.now
	}
	c.timers = append(c.timers, t)
	return t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	for _, t := range c.timers {
		if !t.done && !t.deadline.After(c.now) {
			t.done = true
			t.ch <- c.now
		}
	}
}

// pending reports whether a live timer is due exactly at deadline.
func (c *fakeClock) pending(deadline time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, t := range c.timers {
		if !t.done && t.deadline.Equal(deadline) {
			return true
		}
	}
	return false
}

func (t *fakeTimer) C() <-chan time.Time { return t.ch }

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	was := !t.done
	t.done = true
	return was
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func at(hour, minute int) time.Time {
	return time.Date(2026, 10, 14, hour, minute, 0, 0, time.UTC)
}

func newTestScheduler(clock *fakeClock, fired *atomic.Int32) *Scheduler {
	return New(func(context.Context) { fired.Add(1) }, Options{
		Clock:             clock,
		Location:          time.UTC,
		CountdownInterval: time.Hour * 24 * 365,
	})
}

func TestReconfigureDiscardsPendingFire(t *testing.T) {
	clock := newFakeClock(at(7, 50))
	var fired atomic.Int32
	s := newTestScheduler(clock, &fired)
	s.Reconfigure("08:00")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)
	defer s.Stop()

	waitFor(t, "08:00 timer", func() bool { return clock.pending(at(8, 0)) })

	status := s.Reconfigure("08:05")
	if status.State != StateArmed || status.Message != "Scheduled daily at 08:05" {
		t.Fatalf("unexpected status %+v", status)
	}
	waitFor(t, "08:05 timer", func() bool { return clock.pending(at(8, 5)) })
	if clock.pending(at(8, 0)) {
		t.Fatal("stale 08:00 timer still pending")
	}

	clock.Advance(11 * time.Minute)
	time.Sleep(20 * time.Millisecond)
	if fired.Load() != 0 {
		t.Fatal("must not fire at the old time")
	}

	clock.Advance(4 * time.Minute)
	waitFor(t, "fire at 08:05", func() bool { return fired.Load() == 1 })

	tomorrow := at(8, 5).Add(24 * time.Hour)
	waitFor(t, "re-armed for tomorrow", func() bool { return clock.pending(tomorrow) })
	if got := s.Status(); got.State != StateArmed || !got.Next.Equal(tomorrow) {
		t.Fatalf("unexpected status after fire %+v", got)
	}
	time.Sleep(20 * time.Millisecond)
	if fired.Load() != 1 {
		t.Fatalf("expected exactly one fire, got %d", fired.Load())
	}
}

func TestInvalidTimeStaysIdle(t *testing.T) {
	clock := newFakeClock(at(7, 0))
	var fired atomic.Int32
	s := newTestScheduler(clock, &fired)

	for _, value := range []string{"25:00", "8:5", "08:60", "0800", "", "08:00 "} {
		status := s.Reconfigure(value)
		if status.State != StateIdle || status.Message != MessageInvalidTime {
			t.Fatalf("%q: expected idle, got %+v", value, status)
		}
		if status.Countdown != "--:--:--" {
			t.Fatalf("%q: unexpected countdown %q", value, status.Countdown)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)
	clock.Advance(48 * time.Hour)
	time.Sleep(20 * time.Millisecond)
	s.Stop()
	if fired.Load() != 0 {
		t.Fatal("idle scheduler must never fire")
	}
}

func TestNextFireTodayOrTomorrow(t *testing.T) {
	var fired atomic.Int32
	s := newTestScheduler(newFakeClock(at(7, 0)), &fired)
	if got := s.Reconfigure("8:00"); !got.Next.Equal(at(8, 0)) || got.ScheduleTime != "08:00" {
		t.Fatalf("expected today 08:00, got %+v", got)
	}

	s = newTestScheduler(newFakeClock(at(9, 0)), &fired)
	if got := s.Reconfigure("08:00"); !got.Next.Equal(at(8, 0).Add(24 * time.Hour)) {
		t.Fatalf("expected tomorrow 08:00, got %+v", got)
	}
}

func TestNextFireUsesLocation(t *testing.T) {
	cst := time.FixedZone("CST", 8*3600)
	clock := newFakeClock(time.Date(2026, 10, 14, 0, 30, 0, 0, time.UTC))
	s := New(func(context.Context) {}, Options{Clock: clock, Location: cst})
	got := s.Reconfigure("08:00")
	want := time.Date(2026, 10, 15, 8, 0, 0, 0, cst)
	if !got.Next.Equal(want) {
		t.Fatalf("expected %s, got %s", want, got.Next)
	}
}

func TestCountdown(t *testing.T) {
	clock := newFakeClock(time.Date(2026, 10, 14, 7, 59, 30, 0, time.UTC))
	ticks := make(chan Status, 8)
	s := New(func(context.Context) {}, Options{
		Clock:             clock,
		Location:          time.UTC,
		CountdownInterval: time.Second,
		OnCountdown:       func(st Status) { ticks <- st },
	})
	s.Reconfigure("08:00")
	if got := s.Status().Countdown; got != "00:00:30" {
		t.Fatalf("unexpected countdown %q", got)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)
	defer func() {
		cancel()
		s.Stop()
	}()

	first := <-ticks
	if first.Countdown != "00:00:30" {
		t.Fatalf("unexpected first tick %q", first.Countdown)
	}
	waitFor(t, "display timer", func() bool { return clock.pending(clock.Now().Add(time.Second)) })
	clock.Advance(time.Second)
	select {
	case second := <-ticks:
		if second.Countdown != "00:00:29" {
			t.Fatalf("unexpected second tick %q", second.Countdown)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("display loop did not refresh")
	}
	if s.Countdown() != "00:00:29" {
		t.Fatalf("stored countdown %q", s.Countdown())
	}
}

func TestFormatCountdown(t *testing.T) {
	cases := map[time.Duration]string{
		0:                                    "00:00:00",
		-time.Second:                         "00:00:00",
		1500 * time.Millisecond:              "00:00:02",
		23*time.Hour + 59*time.Minute + 59e9: "23:59:59",
	}
	for in, want := range cases {
		if got := FormatCountdown(in); got != want {
			t.Fatalf("FormatCountdown(%s) = %q, want %q", in, got, want)
		}
	}
}

func TestStatusAtRecomputesCountdown(t *testing.T) {
	now := time.Date(2026, 5, 1, 7, 0, 0, 0, time.UTC)
	status := Status{State: StateArmed, Next: now.Add(90 * time.Second), Countdown: "stale"}

	got := status.At(now.Add(30 * time.Second))
	if got.Countdown != "00:01:00" || got.Remaining != time.Minute {
		t.Fatalf("countdown = %q remaining = %s, want 00:01:00", got.Countdown, got.Remaining)
	}
	if got := status.At(now.Add(time.Hour)); got.Countdown != "00:00:00" {
		t.Fatalf("past due countdown = %q, want 00:00:00", got.Countdown)
	}
	idle := Status{State: StateIdle, Countdown: "--:--:--"}
	if got := idle.At(now); got.Countdown != "--:--:--" {
		t.Fatalf("idle countdown = %q", got.Countdown)
	}
}

package scheduler

import (
	"context"
	"io"
	"log"
	stdsync "sync"
	"testing"
	"time"

	"trading-coach/internal/domain"
)

type fakeRunner struct {
	mu    stdsync.Mutex
	kinds []string
	fired chan string
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{fired: make(chan string, 8)}
}

func (r *fakeRunner) RunReview(_ context.Context, kind string) (*domain.Report, error) {
	r.mu.Lock()
	r.kinds = append(r.kinds, kind)
	r.mu.Unlock()
	r.fired <- kind
	return &domain.Report{}, nil
}

func (r *fakeRunner) waitFired(t *testing.T) string {
	t.Helper()
	select {
	case kind := <-r.fired:
		return kind
	case <-time.After(2 * time.Second):
		t.Fatal("no review fired")
		return ""
	}
}

func (r *fakeRunner) assertSilent(t *testing.T) {
	t.Helper()
	select {
	case kind := <-r.fired:
		t.Fatalf("unexpected %s review fired", kind)
	case <-time.After(50 * time.Millisecond):
	}
}

func newTestScheduler(t *testing.T, runner ReviewRunner) *Scheduler {
	t.Helper()
	s, err := NewScheduler(SchedulerOptions{
		Runner:   runner,
		Logger:   log.New(io.Discard, "", 0),
		Location: time.UTC,
	})
	if err != nil {
		t.Fatalf("NewScheduler: %v", err)
	}
	return s
}

func TestSchedulerFiresDailyOncePerMinute(t *testing.T) {
	runner := newFakeRunner()
	s := newTestScheduler(t, runner)
	ctx := context.Background()
	fired := make(map[string]string)

	// Wednesday, mid-month: only the daily trigger matches.
	now := time.Date(2026, 8, 26, 23, 30, 0, 0, time.UTC)
	s.check(ctx, now, fired)
	if kind := runner.waitFired(t); kind != "daily" {
		t.Fatalf("fired %q, want daily", kind)
	}

	// A second tick inside the same minute must not fire again.
	s.check(ctx, now.Add(20*time.Second), fired)
	runner.assertSilent(t)

	// The next day's trigger fires again.
	s.check(ctx, now.Add(24*time.Hour), fired)
	if kind := runner.waitFired(t); kind != "daily" {
		t.Fatalf("fired %q, want daily", kind)
	}
}

func TestSchedulerOffMinuteIsQuiet(t *testing.T) {
	runner := newFakeRunner()
	s := newTestScheduler(t, runner)

	now := time.Date(2026, 8, 26, 14, 7, 0, 0, time.UTC)
	s.check(context.Background(), now, make(map[string]string))
	runner.assertSilent(t)
}

func TestSchedulerWeeklyFiresOnSunday(t *testing.T) {
	runner := newFakeRunner()
	s := newTestScheduler(t, runner)
	ctx := context.Background()
	fired := make(map[string]string)

	// 2026-08-30 is a Sunday.
	s.check(ctx, time.Date(2026, 8, 30, 23, 45, 0, 0, time.UTC), fired)
	if kind := runner.waitFired(t); kind != "weekly" {
		t.Fatalf("fired %q, want weekly", kind)
	}

	// Same wall time on a Saturday stays quiet.
	s.check(ctx, time.Date(2026, 8, 29, 23, 45, 0, 0, time.UTC), fired)
	runner.assertSilent(t)
}

func TestSchedulerMonthlyFiresOnLastDay(t *testing.T) {
	runner := newFakeRunner()
	s := newTestScheduler(t, runner)
	ctx := context.Background()
	fired := make(map[string]string)

	s.check(ctx, time.Date(2026, 8, 31, 23, 50, 0, 0, time.UTC), fired)
	if kind := runner.waitFired(t); kind != "monthly" {
		t.Fatalf("fired %q, want monthly", kind)
	}

	s.check(ctx, time.Date(2026, 8, 30, 23, 50, 0, 0, time.UTC), fired)
	runner.assertSilent(t)
}

func TestSchedulerRejectsBadTriggerTime(t *testing.T) {
	_, err := NewScheduler(SchedulerOptions{
		Runner:  newFakeRunner(),
		DailyAt: "25:99",
	})
	if err == nil {
		t.Fatal("expected error for malformed trigger time")
	}
}

func TestSchedulerRunStopsOnCancel(t *testing.T) {
	runner := newFakeRunner()
	s, err := NewScheduler(SchedulerOptions{
		Runner: runner,
		Logger: log.New(io.Discard, "", 0),
		Tick:   10 * time.Millisecond,
		Now:    func() time.Time { return time.Date(2026, 8, 26, 3, 0, 0, 0, time.UTC) },
	})
	if err != nil {
		t.Fatalf("NewScheduler: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		if err != context.Canceled {
			t.Fatalf("Run returned %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop on cancel")
	}
}

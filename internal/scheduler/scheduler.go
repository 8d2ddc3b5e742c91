package scheduler

import (
	"context"
	"errors"
	"log"
	"time"

	"trading-coach/internal/domain"
	"trading-coach/internal/reporting"
)

// Default wall-clock trigger times, local to the review timezone.
const (
	DefaultDailyAt   = "23:30"
	DefaultWeeklyAt  = "23:45"
	DefaultMonthlyAt = "23:50"
	DefaultTick      = time.Minute
)

// ReviewRunner runs one review pass of a period kind.
type ReviewRunner interface {
	RunReview(ctx context.Context, kind string) (*domain.Report, error)
}

// SchedulerOptions configures the Scheduler. Runner is required.
type SchedulerOptions struct {
	Runner ReviewRunner
	Logger *log.Logger

	// Trigger times in "HH:MM". Daily fires every day, weekly on Sunday,
	// monthly only on the last local day of the month.
	DailyAt   string
	WeeklyAt  string
	MonthlyAt string

	// Location is the timezone trigger times are interpreted in.
	Location *time.Location

	Tick time.Duration
	Now  func() time.Time
}

// Scheduler fires review runs at fixed wall-clock times. Overlap handling
// lives in the Runner; a trigger that lands while the same kind is still
// running is skipped.
type Scheduler struct {
	opts SchedulerOptions
}

// NewScheduler creates a Scheduler, applying defaults for unset options.
func NewScheduler(opts SchedulerOptions) (*Scheduler, error) {
	if opts.Runner == nil {
		return nil, errors.New("scheduler: runner is required")
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	if opts.DailyAt == "" {
		opts.DailyAt = DefaultDailyAt
	}
	if opts.WeeklyAt == "" {
		opts.WeeklyAt = DefaultWeeklyAt
	}
	if opts.MonthlyAt == "" {
		opts.MonthlyAt = DefaultMonthlyAt
	}
	for _, at := range []string{opts.DailyAt, opts.WeeklyAt, opts.MonthlyAt} {
		if _, err := time.Parse("15:04", at); err != nil {
			return nil, errors.New("scheduler: trigger time must be HH:MM, got " + at)
		}
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Tick <= 0 {
		opts.Tick = DefaultTick
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Scheduler{opts: opts}, nil
}

// Run blocks, checking triggers once per tick, until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	s.opts.Logger.Printf("[scheduler] daily %s, weekly %s (Sun), monthly %s (last day), tz %s",
		s.opts.DailyAt, s.opts.WeeklyAt, s.opts.MonthlyAt, s.opts.Location)

	ticker := time.NewTicker(s.opts.Tick)
	defer ticker.Stop()

	fired := make(map[string]string)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.check(ctx, s.opts.Now(), fired)
		}
	}
}

// check fires every kind whose trigger matches the current local minute.
// fired dedups triggers when the tick is shorter than a minute.
func (s *Scheduler) check(ctx context.Context, now time.Time, fired map[string]string) {
	local := now.In(s.opts.Location)
	hm := local.Format("15:04")

	if hm == s.opts.DailyAt {
		s.fire(ctx, reporting.KindDaily, local, fired)
	}
	if local.Weekday() == time.Sunday && hm == s.opts.WeeklyAt {
		s.fire(ctx, reporting.KindWeekly, local, fired)
	}
	if reporting.IsLastDayOfMonth(local, s.opts.Location) && hm == s.opts.MonthlyAt {
		s.fire(ctx, reporting.KindMonthly, local, fired)
	}
}

func (s *Scheduler) fire(ctx context.Context, kind string, local time.Time, fired map[string]string) {
	stamp := local.Format("2006-01-02 15:04")
	if fired[kind] == stamp {
		return
	}
	fired[kind] = stamp

	go func() {
		_, err := s.opts.Runner.RunReview(ctx, kind)
		switch {
		case errors.Is(err, ErrRunInFlight):
			s.opts.Logger.Printf("WARN: %s review at %s skipped, previous run still in flight", kind, stamp)
		case err != nil:
			s.opts.Logger.Printf("ERROR: %s review at %s: %v", kind, stamp, err)
		}
	}()
}

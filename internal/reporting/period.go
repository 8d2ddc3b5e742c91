package reporting

import (
	"fmt"
	"time"
)

// Review period kinds. Report ids embed the kind, e.g. "daily:2026-08-28".
const (
	KindDaily   = "daily"
	KindWeekly  = "weekly"
	KindMonthly = "monthly"
)

// Period is one review window. Bounds are inclusive unix ms, so adjacent
// periods never overlap.
type Period struct {
	Kind    string
	StartMs int64
	EndMs   int64
	ID      string
}

// PeriodFor computes the period of the given kind containing now, in the
// review timezone.
func PeriodFor(kind string, now time.Time, loc *time.Location) (Period, error) {
	switch kind {
	case KindDaily:
		return DailyPeriod(now, loc), nil
	case KindWeekly:
		return WeeklyPeriod(now, loc), nil
	case KindMonthly:
		return MonthlyPeriod(now, loc), nil
	}
	return Period{}, fmt.Errorf("unknown period kind %q", kind)
}

// DailyPeriod covers the local calendar day containing now.
func DailyPeriod(now time.Time, loc *time.Location) Period {
	local := now.In(loc)
	start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	end := start.AddDate(0, 0, 1)
	return Period{
		Kind:    KindDaily,
		StartMs: start.UnixMilli(),
		EndMs:   end.UnixMilli() - 1,
		ID:      KindDaily + ":" + start.Format("2006-01-02"),
	}
}

// WeeklyPeriod covers the local Monday-to-Sunday week containing now.
func WeeklyPeriod(now time.Time, loc *time.Location) Period {
	local := now.In(loc)
	day := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	offset := (int(day.Weekday()) + 6) % 7 // Monday = 0
	start := day.AddDate(0, 0, -offset)
	end := start.AddDate(0, 0, 7)
	return Period{
		Kind:    KindWeekly,
		StartMs: start.UnixMilli(),
		EndMs:   end.UnixMilli() - 1,
		ID:      KindWeekly + ":" + start.Format("2006-01-02"),
	}
}

// MonthlyPeriod covers the local calendar month containing now.
func MonthlyPeriod(now time.Time, loc *time.Location) Period {
	local := now.In(loc)
	start := time.Date(local.Year(), local.Month(), 1, 0, 0, 0, 0, loc)
	end := start.AddDate(0, 1, 0)
	return Period{
		Kind:    KindMonthly,
		StartMs: start.UnixMilli(),
		EndMs:   end.UnixMilli() - 1,
		ID:      KindMonthly + ":" + start.Format("2006-01"),
	}
}

// IsLastDayOfMonth reports whether now falls on the last local calendar
// day of its month. Month-end reviews run only on that day.
func IsLastDayOfMonth(now time.Time, loc *time.Location) bool {
	local := now.In(loc)
	return local.AddDate(0, 0, 1).Month() != local.Month()
}

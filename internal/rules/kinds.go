package rules

import (
	"fmt"
	"math"
	"time"

	"trading-coach/internal/domain"
)

// Metric extractor keys for threshold rules.
const (
	// MetricLossPctEquity is the absolute realized loss of a closed
	// lifecycle as a percentage of the equity snapshot at entry. Absent
	// when the lifecycle is open, profitable, or has no snapshot.
	MetricLossPctEquity = "loss_pct_equity"
	// MetricPeakLeverage is peak notional over equity at entry.
	MetricPeakLeverage = "peak_leverage"
	// MetricRealizedPnL is the signed realized price pnl of a closed
	// lifecycle.
	MetricRealizedPnL = "realized_pnl"
)

// Pattern predicate keys for pattern rules.
const (
	PatternNightWindow     = "night_window"
	PatternLifecycleOpened = "lifecycle_opened"
	PatternLifecycleClosed = "lifecycle_closed"
)

// Sequence predicate keys for account-scope sequence rules.
const (
	PredicateRealizedLoss = "realized_loss"
)

// metricSample is one extracted observation with the fill that anchors it.
type metricSample struct {
	observed float64
	trigger  domain.ConstituentFill
}

// extractMetric pulls a threshold metric from a lifecycle. ok is false
// when the metric is simply absent for this lifecycle; err means the
// metric key itself is not part of the closed set.
func extractMetric(metric string, lc *domain.Lifecycle) (metricSample, bool, error) {
	switch metric {
	case MetricLossPctEquity:
		if lc.Status != domain.LifecycleClosed || lc.RealizedPnL >= 0 {
			return metricSample{}, false, nil
		}
		if lc.EquityAtEntry == nil || *lc.EquityAtEntry <= 0 {
			return metricSample{}, false, nil
		}
		return metricSample{
			observed: math.Abs(lc.RealizedPnL) / *lc.EquityAtEntry * 100,
			trigger:  closingFill(lc),
		}, true, nil

	case MetricPeakLeverage:
		if lc.PeakLeverage == nil {
			return metricSample{}, false, nil
		}
		return metricSample{observed: *lc.PeakLeverage, trigger: openingFill(lc)}, true, nil

	case MetricRealizedPnL:
		if lc.Status != domain.LifecycleClosed {
			return metricSample{}, false, nil
		}
		return metricSample{observed: lc.RealizedPnL, trigger: closingFill(lc)}, true, nil
	}
	return metricSample{}, false, fmt.Errorf("unknown threshold metric %q", metric)
}

// matchPattern evaluates a pattern predicate against a lifecycle. fired is
// false when the predicate does not hold; err means the key or its
// parameters are invalid.
func matchPattern(p *domain.PatternParams, lc *domain.Lifecycle) (fired bool, sample metricSample, err error) {
	switch p.Pattern {
	case PatternNightWindow:
		loc, err := time.LoadLocation(p.Location)
		if err != nil {
			return false, metricSample{}, fmt.Errorf("load location %q: %w", p.Location, err)
		}
		local := time.UnixMilli(lc.OpenedAt).In(loc)
		minute := local.Hour()*60 + local.Minute()
		if !inMinuteWindow(minute, p.StartMinute, p.EndMinute) {
			return false, metricSample{}, nil
		}
		return true, metricSample{observed: float64(minute), trigger: openingFill(lc)}, nil

	case PatternLifecycleOpened:
		return true, metricSample{observed: 1, trigger: openingFill(lc)}, nil

	case PatternLifecycleClosed:
		if lc.Status != domain.LifecycleClosed {
			return false, metricSample{}, nil
		}
		return true, metricSample{observed: 1, trigger: closingFill(lc)}, nil
	}
	return false, metricSample{}, fmt.Errorf("unknown pattern %q", p.Pattern)
}

// matchSequence reports whether one lifecycle satisfies a sequence
// predicate. Run counting across lifecycles happens in the evaluator.
func matchSequence(predicate string, lc *domain.Lifecycle) (bool, error) {
	switch predicate {
	case PredicateRealizedLoss:
		return lc.RealizedPnL < 0, nil
	}
	return false, fmt.Errorf("unknown sequence predicate %q", predicate)
}

// inMinuteWindow checks a minutes-from-midnight window that may wrap past
// midnight. Both bounds are inclusive.
func inMinuteWindow(minute, start, end int) bool {
	if start <= end {
		return minute >= start && minute <= end
	}
	return minute >= start || minute <= end
}

func compare(operator string, observed, threshold float64) (bool, error) {
	switch operator {
	case ">=":
		return observed >= threshold, nil
	case ">":
		return observed > threshold, nil
	case "<=":
		return observed <= threshold, nil
	case "<":
		return observed < threshold, nil
	case "==":
		return observed == threshold, nil
	}
	return false, fmt.Errorf("unknown operator %q", operator)
}

func openingFill(lc *domain.Lifecycle) domain.ConstituentFill {
	if len(lc.Fills) == 0 {
		return domain.ConstituentFill{}
	}
	return lc.Fills[0]
}

func closingFill(lc *domain.Lifecycle) domain.ConstituentFill {
	if len(lc.Fills) == 0 {
		return domain.ConstituentFill{}
	}
	return lc.Fills[len(lc.Fills)-1]
}

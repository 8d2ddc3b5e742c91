package rules

import "trading-coach/internal/domain"

// Rule ids are stable: they participate in event ids, so renaming one
// changes dedup identity for future events.
const (
	RuleBigLossPctEquity  = "big-loss-pct-equity"
	RuleHighLeverage      = "high-leverage"
	RuleNightWindowEntry  = "night-window-entry"
	RuleConsecutiveLosses = "consecutive-losses"
	RuleOpenCompleted     = "open-completed"
	RuleCloseCompleted    = "close-completed"
)

// DefaultCatalog returns the built-in rule set. Callers may disable or
// re-threshold entries before handing the set to an Evaluator.
func DefaultCatalog() []domain.Rule {
	return []domain.Rule{
		{
			ID:       RuleBigLossPctEquity,
			Kind:     domain.KindThreshold,
			Scope:    domain.ScopeLifecycle,
			Severity: domain.SeverityP0,
			Message:  "single-trade loss exceeded equity threshold",
			Enabled:  true,
			Threshold: &domain.ThresholdParams{
				Metric:    MetricLossPctEquity,
				Operator:  ">=",
				Threshold: 5,
			},
		},
		{
			ID:       RuleHighLeverage,
			Kind:     domain.KindThreshold,
			Scope:    domain.ScopeLifecycle,
			Severity: domain.SeverityP1,
			Message:  "effective leverage exceeded threshold",
			Enabled:  true,
			Threshold: &domain.ThresholdParams{
				Metric:    MetricPeakLeverage,
				Operator:  ">=",
				Threshold: 10,
			},
		},
		{
			ID:       RuleNightWindowEntry,
			Kind:     domain.KindPattern,
			Scope:    domain.ScopeLifecycle,
			Severity: domain.SeverityP1,
			Message:  "position opened during the night window",
			Enabled:  true,
			Pattern: &domain.PatternParams{
				Pattern:     PatternNightWindow,
				StartMinute: 22 * 60,
				EndMinute:   6 * 60,
				Location:    "America/New_York",
			},
		},
		{
			ID:       RuleConsecutiveLosses,
			Kind:     domain.KindSequence,
			Scope:    domain.ScopeAccount,
			Severity: domain.SeverityP0,
			Message:  "consecutive losing trades",
			Enabled:  true,
			Sequence: &domain.SequenceParams{
				Predicate: PredicateRealizedLoss,
				RunLength: 3,
			},
		},
		{
			ID:       RuleOpenCompleted,
			Kind:     domain.KindPattern,
			Scope:    domain.ScopeLifecycle,
			Severity: domain.SeverityP2,
			Message:  "position opened",
			Enabled:  true,
			Pattern:  &domain.PatternParams{Pattern: PatternLifecycleOpened},
		},
		{
			ID:       RuleCloseCompleted,
			Kind:     domain.KindPattern,
			Scope:    domain.ScopeLifecycle,
			Severity: domain.SeverityP2,
			Message:  "position closed",
			Enabled:  true,
			Pattern:  &domain.PatternParams{Pattern: PatternLifecycleClosed},
		},
	}
}

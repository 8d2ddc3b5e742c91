package scoring

import (
	"sort"

	"trading-coach/internal/domain"
)

// Fixed penalty weights. P2 events are informational and never deduct.
const (
	BaseScore = 100
	P0Penalty = 20
	P1Penalty = 8
	MaxIssues = 3
)

// Score aggregates a period's events into a discipline score: BaseScore
// minus fixed per-tier penalties, clamped to [0, BaseScore]. Deterministic
// for any input order.
func Score(events []*domain.Event) domain.DisciplineScore {
	s := domain.DisciplineScore{Base: BaseScore}
	for _, ev := range events {
		switch ev.Severity {
		case domain.SeverityP0:
			s.P0Count++
		case domain.SeverityP1:
			s.P1Count++
		default:
			s.P2Count++
		}
	}

	score := BaseScore - s.P0Count*P0Penalty - s.P1Count*P1Penalty
	if score < 0 {
		score = 0
	}
	if score > BaseScore {
		score = BaseScore
	}
	s.Score = score
	s.TopIssues = topIssues(events)
	return s
}

// topIssues picks up to MaxIssues distinct rule ids, highest severity
// first, most recent occurrence first within a tier. P2 markers never make
// the list.
func topIssues(events []*domain.Event) []string {
	type issue struct {
		ruleID   string
		severity domain.Severity
		latest   int64
	}
	byRule := map[string]*issue{}
	for _, ev := range events {
		if ev.Severity == domain.SeverityP2 {
			continue
		}
		cur := byRule[ev.RuleID]
		if cur == nil {
			byRule[ev.RuleID] = &issue{ruleID: ev.RuleID, severity: ev.Severity, latest: ev.OccurredAt}
			continue
		}
		if ev.Severity.Rank() < cur.severity.Rank() {
			cur.severity = ev.Severity
		}
		if ev.OccurredAt > cur.latest {
			cur.latest = ev.OccurredAt
		}
	}

	issues := make([]*issue, 0, len(byRule))
	for _, it := range byRule {
		issues = append(issues, it)
	}
	sort.Slice(issues, func(i, j int) bool {
		if issues[i].severity.Rank() != issues[j].severity.Rank() {
			return issues[i].severity.Rank() < issues[j].severity.Rank()
		}
		if issues[i].latest != issues[j].latest {
			return issues[i].latest > issues[j].latest
		}
		return issues[i].ruleID < issues[j].ruleID
	})

	out := make([]string, 0, MaxIssues)
	for _, it := range issues {
		if len(out) == MaxIssues {
			break
		}
		out = append(out, it.ruleID)
	}
	return out
}

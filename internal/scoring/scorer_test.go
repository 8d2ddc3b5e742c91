package scoring

import (
	"reflect"
	"testing"

	"trading-coach/internal/domain"
)

func ev(ruleID string, sev domain.Severity, at int64) *domain.Event {
	return &domain.Event{
		EventID:    ruleID + "-" + string(sev),
		RuleID:     ruleID,
		Severity:   sev,
		OccurredAt: at,
	}
}

func TestScoreWeights(t *testing.T) {
	tests := []struct {
		name   string
		events []*domain.Event
		want   int
	}{
		{"no events", nil, 100},
		{"one P0", []*domain.Event{ev("a", domain.SeverityP0, 1)}, 80},
		{"one P1", []*domain.Event{ev("a", domain.SeverityP1, 1)}, 92},
		{"P2 is free", []*domain.Event{ev("a", domain.SeverityP2, 1), ev("b", domain.SeverityP2, 2)}, 100},
		{"mixed", []*domain.Event{
			ev("a", domain.SeverityP0, 1),
			ev("b", domain.SeverityP1, 2),
			ev("c", domain.SeverityP2, 3),
		}, 72},
		{"clamped at zero", []*domain.Event{
			ev("a", domain.SeverityP0, 1),
			ev("b", domain.SeverityP0, 2),
			ev("c", domain.SeverityP0, 3),
			ev("d", domain.SeverityP0, 4),
			ev("e", domain.SeverityP0, 5),
			ev("f", domain.SeverityP0, 6),
		}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Score(tt.events)
			if got.Score != tt.want {
				t.Errorf("score = %d, want %d", got.Score, tt.want)
			}
		})
	}
}

func TestScoreCounts(t *testing.T) {
	s := Score([]*domain.Event{
		ev("a", domain.SeverityP0, 1),
		ev("b", domain.SeverityP1, 2),
		ev("c", domain.SeverityP1, 3),
		ev("d", domain.SeverityP2, 4),
	})
	if s.P0Count != 1 || s.P1Count != 2 || s.P2Count != 1 {
		t.Errorf("counts = %d/%d/%d, want 1/2/1", s.P0Count, s.P1Count, s.P2Count)
	}
	if s.Base != 100 {
		t.Errorf("base = %d, want 100", s.Base)
	}
}

func TestTopIssuesOrdering(t *testing.T) {
	events := []*domain.Event{
		ev("night-window", domain.SeverityP1, 100),
		ev("big-loss", domain.SeverityP0, 50),
		ev("high-leverage", domain.SeverityP1, 200),
		ev("consecutive-losses", domain.SeverityP0, 150),
		ev("open-completed", domain.SeverityP2, 999),
	}

	s := Score(events)
	want := []string{"consecutive-losses", "big-loss", "high-leverage"}
	if !reflect.DeepEqual(s.TopIssues, want) {
		t.Errorf("top issues = %v, want %v", s.TopIssues, want)
	}
}

func TestTopIssuesDistinctAndCapped(t *testing.T) {
	// Repeated rule ids collapse to one issue at their latest occurrence.
	events := []*domain.Event{
		ev("a", domain.SeverityP0, 1),
		ev("a", domain.SeverityP0, 9),
		ev("b", domain.SeverityP0, 5),
		ev("c", domain.SeverityP1, 7),
		ev("d", domain.SeverityP1, 8),
	}

	s := Score(events)
	if len(s.TopIssues) != 3 {
		t.Fatalf("top issues = %v, want 3 entries", s.TopIssues)
	}
	want := []string{"a", "b", "d"}
	if !reflect.DeepEqual(s.TopIssues, want) {
		t.Errorf("top issues = %v, want %v", s.TopIssues, want)
	}
}

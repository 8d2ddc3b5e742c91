package rules

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"

	"trading-coach/internal/domain"
	"trading-coach/internal/idhash"
	"trading-coach/internal/storage"
)

// Evaluator runs a rule catalog over lifecycle snapshots. Evaluation is
// pure: the same lifecycles and catalog always yield the same events with
// the same ids. A rule that fails to evaluate is logged and skipped so the
// rest of the catalog still runs.
type Evaluator struct {
	rules  []domain.Rule
	logger *log.Logger
}

// New creates an Evaluator over a rule catalog.
func New(rules []domain.Rule, logger *log.Logger) *Evaluator {
	if logger == nil {
		logger = log.Default()
	}
	return &Evaluator{rules: rules, logger: logger}
}

// Evaluate runs lifecycle-scope rules against every lifecycle and
// account-scope rules against the closed subset in (closed_at, lifecycle
// id) order.
func (e *Evaluator) Evaluate(lifecycles []*domain.Lifecycle) []*domain.Event {
	var out []*domain.Event
	for _, lc := range lifecycles {
		out = append(out, e.EvaluateLifecycle(lc)...)
	}
	out = append(out, e.EvaluateAccount(lifecycles)...)
	return out
}

// EvaluateLifecycle runs every enabled lifecycle-scope rule against one
// lifecycle snapshot.
func (e *Evaluator) EvaluateLifecycle(lc *domain.Lifecycle) []*domain.Event {
	var out []*domain.Event
	for _, rule := range e.rules {
		if !rule.Enabled || rule.Scope != domain.ScopeLifecycle {
			continue
		}
		ev, err := e.evalOne(rule, lc)
		if err != nil {
			e.logger.Printf("ERROR: rule %s on lifecycle %s: %v", rule.ID, lc.LifecycleID, err)
			continue
		}
		if ev != nil {
			out = append(out, ev)
		}
	}
	return out
}

// EvaluateAccount runs enabled account-scope rules over the closed
// lifecycles in the batch.
func (e *Evaluator) EvaluateAccount(lifecycles []*domain.Lifecycle) []*domain.Event {
	var closed []*domain.Lifecycle
	for _, lc := range lifecycles {
		if lc.Status == domain.LifecycleClosed && lc.ClosedAt != nil {
			closed = append(closed, lc)
		}
	}
	sort.Slice(closed, func(i, j int) bool {
		if *closed[i].ClosedAt != *closed[j].ClosedAt {
			return *closed[i].ClosedAt < *closed[j].ClosedAt
		}
		return closed[i].LifecycleID < closed[j].LifecycleID
	})

	var out []*domain.Event
	for _, rule := range e.rules {
		if !rule.Enabled || rule.Scope != domain.ScopeAccount {
			continue
		}
		ev, err := e.evalSequence(rule, closed)
		if err != nil {
			e.logger.Printf("ERROR: rule %s at account scope: %v", rule.ID, err)
			continue
		}
		if ev != nil {
			out = append(out, ev)
		}
	}
	return out
}

// Record persists events, silently absorbing duplicates from earlier
// evaluation passes. Returns the number of newly inserted events.
func (e *Evaluator) Record(ctx context.Context, store storage.EventStore, events []*domain.Event) (int, error) {
	inserted := 0
	for _, ev := range events {
		err := store.Insert(ctx, ev)
		if errors.Is(err, storage.ErrDuplicateKey) {
			continue
		}
		if err != nil {
			return inserted, fmt.Errorf("insert event %s: %w", ev.EventID, err)
		}
		inserted++
	}
	return inserted, nil
}

func (e *Evaluator) evalOne(rule domain.Rule, lc *domain.Lifecycle) (*domain.Event, error) {
	switch rule.Kind {
	case domain.KindThreshold:
		return evalThreshold(rule, lc)
	case domain.KindPattern:
		return evalPattern(rule, lc)
	case domain.KindSequence:
		return nil, errors.New("sequence rules evaluate at account scope")
	}
	return nil, fmt.Errorf("unknown rule kind %q", rule.Kind)
}

func evalThreshold(rule domain.Rule, lc *domain.Lifecycle) (*domain.Event, error) {
	p := rule.Threshold
	if p == nil {
		return nil, errors.New("threshold rule without params")
	}
	sample, ok, err := extractMetric(p.Metric, lc)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	fired, err := compare(p.Operator, sample.observed, p.Threshold)
	if err != nil {
		return nil, err
	}
	if !fired {
		return nil, nil
	}
	cmp := domain.Comparison{
		Metric:    p.Metric,
		Operator:  p.Operator,
		Threshold: p.Threshold,
		Observed:  sample.observed,
	}
	msg := fmt.Sprintf("%s: %s=%.2f (threshold %s %.2f)",
		rule.Message, p.Metric, sample.observed, p.Operator, p.Threshold)
	return newEvent(rule, lc.LifecycleID, lc.Symbol, msg, cmp, sample.trigger,
		[]domain.TradeRef{tradeRef(sample.trigger)}, sample.trigger.ExecutedAt), nil
}

func evalPattern(rule domain.Rule, lc *domain.Lifecycle) (*domain.Event, error) {
	p := rule.Pattern
	if p == nil {
		return nil, errors.New("pattern rule without params")
	}
	fired, sample, err := matchPattern(p, lc)
	if err != nil {
		return nil, err
	}
	if !fired {
		return nil, nil
	}
	cmp := domain.Comparison{Metric: p.Pattern, Operator: "==", Threshold: 1, Observed: 1}
	return newEvent(rule, lc.LifecycleID, lc.Symbol, rule.Message, cmp, sample.trigger,
		[]domain.TradeRef{tradeRef(sample.trigger)}, sample.trigger.ExecutedAt), nil
}

// evalSequence counts the trailing run of closed lifecycles matching the
// predicate and fires once, anchored at the run's last lifecycle.
func (e *Evaluator) evalSequence(rule domain.Rule, closed []*domain.Lifecycle) (*domain.Event, error) {
	p := rule.Sequence
	if p == nil {
		return nil, errors.New("sequence rule without params")
	}
	if p.RunLength < 2 || len(closed) < p.RunLength {
		return nil, nil
	}

	run := 0
	for i := len(closed) - 1; i >= 0; i-- {
		match, err := matchSequence(p.Predicate, closed[i])
		if err != nil {
			return nil, err
		}
		if !match {
			break
		}
		run++
	}
	if run < p.RunLength {
		return nil, nil
	}

	window := closed[len(closed)-run:]
	last := window[len(window)-1]
	evidence := make([]domain.TradeRef, 0, len(window))
	for _, lc := range window {
		evidence = append(evidence, tradeRef(closingFill(lc)))
	}

	cmp := domain.Comparison{
		Metric:    p.Predicate,
		Operator:  ">=",
		Threshold: float64(p.RunLength),
		Observed:  float64(run),
	}
	msg := fmt.Sprintf("%s: %d in a row (threshold %d)", rule.Message, run, p.RunLength)
	trigger := closingFill(last)
	return newEvent(rule, last.LifecycleID, last.Symbol, msg, cmp, trigger, evidence, *last.ClosedAt), nil
}

func newEvent(rule domain.Rule, lifecycleID, symbol, msg string, cmp domain.Comparison, trigger domain.ConstituentFill, evidence []domain.TradeRef, occurredAt int64) *domain.Event {
	return &domain.Event{
		EventID:       idhash.ComputeEventID(rule.ID, lifecycleID, trigger.FillID),
		RuleID:        rule.ID,
		LifecycleID:   lifecycleID,
		Symbol:        symbol,
		Severity:      rule.Severity,
		Message:       msg,
		Comparison:    cmp,
		TriggerFillID: trigger.FillID,
		Evidence:      evidence,
		OccurredAt:    occurredAt,
	}
}

func tradeRef(cf domain.ConstituentFill) domain.TradeRef {
	return domain.TradeRef{
		FillID:     cf.FillID,
		OrderID:    cf.OrderID,
		ExecutedAt: cf.ExecutedAt,
		Price:      cf.Price,
		Quantity:   cf.Quantity,
	}
}

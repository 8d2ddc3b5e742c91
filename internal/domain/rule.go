package domain

// RuleKind is the closed set of evaluation strategies. Every rule in the
// catalog is parameterized over one of these kinds; adding behavior means
// adding a kind, not special-casing a rule id.
type RuleKind string

const (
	// KindThreshold compares one lifecycle metric against a numeric bound.
	KindThreshold RuleKind = "threshold_comparison"
	// KindPattern matches a lifecycle against a non-numeric predicate such
	// as a time-of-day window.
	KindPattern RuleKind = "pattern_match"
	// KindSequence inspects an ordered run of lifecycles at account scope.
	KindSequence RuleKind = "sequence_check"
)

func (k RuleKind) IsValid() bool {
	switch k {
	case KindThreshold, KindPattern, KindSequence:
		return true
	}
	return false
}

// RuleScope says whether a rule evaluates each lifecycle independently or
// the account-level sequence of closed lifecycles.
type RuleScope string

const (
	ScopeLifecycle RuleScope = "lifecycle"
	ScopeAccount   RuleScope = "account"
)

// ThresholdParams configures a KindThreshold rule.
type ThresholdParams struct {
	Metric    string  // metric extractor key, e.g. "loss_pct_equity"
	Operator  string  // ">=", ">", "<=", "<"
	Threshold float64
}

// PatternParams configures a KindPattern rule.
type PatternParams struct {
	Pattern string // predicate key, e.g. "night_window"
	// StartMinute/EndMinute bound a local-time window in minutes from
	// midnight; the window may wrap past midnight.
	StartMinute int
	EndMinute   int
	Location    string // IANA zone name, e.g. "America/New_York"
}

// SequenceParams configures a KindSequence rule.
type SequenceParams struct {
	Predicate string // per-lifecycle predicate key, e.g. "realized_loss"
	RunLength int    // minimum run of consecutive matches to fire
}

// Rule is one entry in the evaluation catalog. Exactly one of the params
// fields is set, matching Kind.
type Rule struct {
	ID       string
	Kind     RuleKind
	Scope    RuleScope
	Severity Severity
	Message  string
	Enabled  bool

	Threshold *ThresholdParams
	Pattern   *PatternParams
	Sequence  *SequenceParams
}

package domain

// Severity is the review-priority tier of an event.
// P0: must review, serious violation. P1: should review. P2: informational.
type Severity string

const (
	SeverityP0 Severity = "P0"
	SeverityP1 Severity = "P1"
	SeverityP2 Severity = "P2"
)

// IsValid checks if the severity is a valid value.
func (s Severity) IsValid() bool {
	return s == SeverityP0 || s == SeverityP1 || s == SeverityP2
}

// rank orders severities for sorting, P0 first.
func (s Severity) Rank() int {
	switch s {
	case SeverityP0:
		return 0
	case SeverityP1:
		return 1
	default:
		return 2
	}
}

// Comparison is the literal comparison an event was produced from. Every
// event must be reproducible from this triple alone.
type Comparison struct {
	Metric    string  `json:"metric"`
	Operator  string  `json:"operator"` // ">=", "<=", ">", "<", "=="
	Threshold float64 `json:"threshold"`
	Observed  float64 `json:"observed"`
}

// TradeRef points at the evidence fill that justifies an event. Events carry
// the minimal set of refs that caused the trigger, not the whole lifecycle.
type TradeRef struct {
	FillID     string  `json:"fill_id"`
	OrderID    string  `json:"order_id"`
	ExecutedAt int64   `json:"executed_at"`
	Price      float64 `json:"price"`
	Quantity   float64 `json:"quantity"`
}

// Event is a single rule trigger. Immutable once created. The dedup key is
// (RuleID, LifecycleID, TriggerFillID): re-evaluating the same lifecycle
// state reproduces the same event and inserts no duplicate row.
type Event struct {
	EventID     string
	RuleID      string
	LifecycleID string // empty for account-level events
	Symbol      string
	Severity    Severity
	Message     string
	Comparison  Comparison
	// TriggerFillID is the fill that caused the trigger; part of the dedup
	// key so new fills on the same lifecycle can re-trigger a rule.
	TriggerFillID string
	Evidence      []TradeRef
	OccurredAt    int64 // unix ms
}

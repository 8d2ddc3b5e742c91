package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// ComputeLifecycleID computes a deterministic lifecycle id using SHA256.
// Formula: SHA256(exchange|symbol|position_side|opening_fill_id)
// Returns hex-encoded hash (64 characters). The opening fill id makes the
// id stable across re-aggregation: folding the same ledger always yields
// the same lifecycles.
func ComputeLifecycleID(
	exchange string,
	symbol string,
	positionSide string,
	openingFillID string,
) string {
	data := fmt.Sprintf("%s|%s|%s|%s",
		exchange,
		symbol,
		positionSide,
		openingFillID,
	)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}

// ComputeFlipLifecycleID derives the id of the second leg when a single
// fill flips a position through zero. The flip fill opens the new leg, so
// its id is reused with a marker to keep the two legs distinct.
func ComputeFlipLifecycleID(
	exchange string,
	symbol string,
	positionSide string,
	flipFillID string,
) string {
	return ComputeLifecycleID(exchange, symbol, positionSide, flipFillID+"#flip")
}

// ComputeEventID computes a deterministic event id using SHA256.
// Formula: SHA256(rule_id|lifecycle_id|trigger_fill_id)
// Re-evaluating the same lifecycles produces the same event ids, which is
// what makes event persistence idempotent.
func ComputeEventID(
	ruleID string,
	lifecycleID string,
	triggerFillID string,
) string {
	data := fmt.Sprintf("%s|%s|%s",
		ruleID,
		lifecycleID,
		triggerFillID,
	)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}

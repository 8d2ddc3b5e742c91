package reporting

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"trading-coach/internal/domain"
	"trading-coach/internal/rules"
)

func periodTitle(sum *domain.Summary, loc *time.Location) string {
	start := time.UnixMilli(sum.PeriodStartMs).In(loc)
	switch sum.PeriodKind {
	case KindMonthly:
		return fmt.Sprintf("Monthly review %s", start.Format("2006-01"))
	case KindWeekly:
		return fmt.Sprintf("Weekly review of %s", start.Format("2006-01-02"))
	default:
		return fmt.Sprintf("Daily review %s", start.Format("2006-01-02"))
	}
}

// renderSummaryLine builds the short notification text: title, score, tier
// counts and top issues. No evidence ids; the full detail lives in the
// markdown body.
func renderSummaryLine(sum *domain.Summary, loc *time.Location) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: score %d/100 (P0 %d / P1 %d / P2 %d), %d closed trades, pnl %.2f USDT.",
		periodTitle(sum, loc), sum.Score.Score,
		sum.Score.P0Count, sum.Score.P1Count, sum.Score.P2Count,
		sum.LifecycleCount, sum.RealizedPnL)
	if len(sum.Score.TopIssues) > 0 {
		fmt.Fprintf(&b, " Top issues: %s.", strings.Join(sum.Score.TopIssues, ", "))
	}
	return b.String()
}

// renderMarkdown builds the full report body attached to notifications and
// stored alongside the summary.
func renderMarkdown(sum *domain.Summary, loc *time.Location) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# %s\n\n", periodTitle(sum, loc))

	b.WriteString("## Overview\n\n")
	fmt.Fprintf(&b, "- Closed trades: %d (%d wins / %d losses / %d flat)\n",
		sum.LifecycleCount, sum.WinCount, sum.LossCount, sum.FlatCount)
	fmt.Fprintf(&b, "- Realized pnl: %.2f USDT\n", sum.RealizedPnL)
	fmt.Fprintf(&b, "- Total fees: %.2f USDT\n", sum.TotalFees)
	if sum.WinCount > 0 {
		fmt.Fprintf(&b, "- Biggest win: %.2f USDT\n", sum.BiggestWin)
	}
	if sum.LossCount > 0 {
		fmt.Fprintf(&b, "- Biggest loss: %.2f USDT\n", sum.BiggestLoss)
	}
	if sum.LifecycleCount > 0 {
		fmt.Fprintf(&b, "- Average holding: %s\n", formatDuration(sum.AvgHoldingMs))
	}
	b.WriteString("\n")

	fmt.Fprintf(&b, "## Discipline score: %d/100\n\n", sum.Score.Score)
	fmt.Fprintf(&b, "- P0 events: %d (-20 each)\n", sum.Score.P0Count)
	fmt.Fprintf(&b, "- P1 events: %d (-8 each)\n", sum.Score.P1Count)
	fmt.Fprintf(&b, "- P2 events: %d (informational)\n", sum.Score.P2Count)
	b.WriteString("\n")

	if len(sum.SymbolPnL) > 0 {
		b.WriteString("## Pnl by symbol\n\n")
		symbols := make([]string, 0, len(sum.SymbolPnL))
		for s := range sum.SymbolPnL {
			symbols = append(symbols, s)
		}
		sort.Strings(symbols)
		for _, s := range symbols {
			fmt.Fprintf(&b, "- %s: %.2f USDT\n", s, sum.SymbolPnL[s])
		}
		b.WriteString("\n")
	}

	if len(sum.Events) > 0 {
		b.WriteString("## Events\n\n")
		events := make([]domain.Event, len(sum.Events))
		copy(events, sum.Events)
		sort.SliceStable(events, func(i, j int) bool {
			if events[i].Severity.Rank() != events[j].Severity.Rank() {
				return events[i].Severity.Rank() < events[j].Severity.Rank()
			}
			return events[i].OccurredAt < events[j].OccurredAt
		})
		for _, ev := range events {
			fmt.Fprintf(&b, "- [%s] %s (%s, %s)\n",
				ev.Severity, ev.Message, ev.RuleID,
				formatTime(ev.OccurredAt, loc))
			for _, ref := range ev.Evidence {
				fmt.Fprintf(&b, "  - fill %s: %.6g x %.6g at %s\n",
					ref.FillID, ref.Price, ref.Quantity, formatTime(ref.ExecutedAt, loc))
			}
		}
		b.WriteString("\n")
	}

	if constraints := hardConstraints(sum.Events); len(constraints) > 0 {
		b.WriteString("## Hard constraints\n\n")
		for _, c := range constraints {
			fmt.Fprintf(&b, "- %s\n", c)
		}
		b.WriteString("\n")
	}

	return b.String()
}

// hardConstraints derives deterministic behavioral constraints from the
// rules that fired. No price prediction, no trade advice.
func hardConstraints(events []domain.Event) []string {
	fired := map[string]bool{}
	for _, ev := range events {
		if ev.Severity == domain.SeverityP2 {
			continue
		}
		fired[ev.RuleID] = true
	}

	var out []string
	if fired[rules.RuleNightWindowEntry] {
		out = append(out, "No new positions between 22:00 and 06:00 US Eastern.")
	}
	if fired[rules.RuleHighLeverage] {
		out = append(out, "Effective leverage cap: 10x.")
	}
	if fired[rules.RuleBigLossPctEquity] {
		out = append(out, "Single-trade loss cap: 3% of available margin at entry.")
	}
	if fired[rules.RuleConsecutiveLosses] {
		out = append(out, "Cooling-off: no trading for 24 hours after three consecutive losses.")
	}
	return out
}

func formatTime(ms int64, loc *time.Location) string {
	return time.UnixMilli(ms).In(loc).Format("2006-01-02 15:04")
}

func formatDuration(ms int64) string {
	d := time.Duration(ms) * time.Millisecond
	if d < time.Minute {
		return d.Round(time.Second).String()
	}
	return d.Round(time.Minute).String()
}

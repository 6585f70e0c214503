package dilemma

import (
	"fmt"
	"strings"
)

// HistoryEntry is one prior round seen from a single agent's perspective.
// The round service flips choices and points per slot before building the
// context, so an agent only ever sees "you"/"opponent" labels consistent
// with its own record.
type HistoryEntry struct {
	Round          int
	MyChoice       Choice
	OpponentChoice Choice
	MyPoints       int
	OpponentPoints int
}

func describe(c Choice) string {
	if c == Defect {
		return "defected"
	}
	return "cooperated"
}

// BuildDecisionContext renders the per-agent prompt for one round: opponent,
// progress, the agent's own personality tags, and the full prior history in
// chronological order.
func BuildDecisionContext(opponentName string, roundNumber, totalRounds int, tags []string, history []HistoryEntry) string {
	var b strings.Builder

	fmt.Fprintf(&b, "You are playing an iterated prisoner's dilemma against \"%s\".\n", opponentName)
	fmt.Fprintf(&b, "This is round %d of %d.\n", roundNumber, totalRounds)

	if len(tags) > 0 {
		fmt.Fprintf(&b, "Your personality tags: %s.\n", strings.Join(tags, ", "))
	}

	if len(history) > 0 {
		b.WriteString("\nRounds so far:\n")
		for _, h := range history {
			fmt.Fprintf(&b, "Round %d: you %s, your opponent %s (you scored %d, opponent scored %d)\n",
				h.Round, describe(h.MyChoice), describe(h.OpponentChoice), h.MyPoints, h.OpponentPoints)
		}
	}

	b.WriteString("\nMake your decision for this round.")
	return b.String()
}

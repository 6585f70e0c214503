// Package dilemma holds the pure game rules: choices, the payoff matrix,
// round-target generation, and the decision prompt builder. No I/O here.
package dilemma

import "math/rand"

// Choice is one agent's play in a round.
type Choice string

const (
	Cooperate Choice = "cooperate"
	Defect    Choice = "defect"
)

// Normalize maps any raw agent output onto the two-value domain. Anything
// that is not exactly "defect" counts as cooperation, so unrecognized remote
// output never produces undefined scoring.
func Normalize(raw string) Choice {
	if raw == string(Defect) {
		return Defect
	}
	return Cooperate
}

// Payoff holds both sides' points for one round.
type Payoff struct {
	Agent1Points int `json:"agent1_points"`
	Agent2Points int `json:"agent2_points"`
}

// Score applies the fixed payoff matrix:
//
//	both cooperate        → 10 / 10
//	both defect           →  0 /  0
//	cooperate vs defect   → -5 / 20
func Score(agent1, agent2 Choice) Payoff {
	switch {
	case agent1 == Cooperate && agent2 == Cooperate:
		return Payoff{Agent1Points: 10, Agent2Points: 10}
	case agent1 == Defect && agent2 == Defect:
		return Payoff{Agent1Points: 0, Agent2Points: 0}
	case agent1 == Cooperate:
		return Payoff{Agent1Points: -5, Agent2Points: 20}
	default:
		return Payoff{Agent1Points: 20, Agent2Points: -5}
	}
}

const (
	MinTotalRounds = 3
	MaxTotalRounds = 50
)

// RandomTotalRounds draws a game's round target, uniform over [3, 50].
func RandomTotalRounds() int {
	return rand.Intn(MaxTotalRounds-MinTotalRounds+1) + MinTotalRounds
}

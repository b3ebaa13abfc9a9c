// Package arbitrator aggregates a symbol's per-cycle Decisions into a single
// Intent, per spec.md §4.E.
package arbitrator

import (
	"math"

	"perpctl/internal/models"
)

const (
	tieEpsilon       = 1e-9
	conflictFraction = 0.15
)

// Arbitrate scores LONG/SHORT/HOLD across decisions for one symbol and
// picks a winner with the tie-break and conflict rules of spec.md §4.E:
//
//	score(side) = Σ normalized_confidence(d) × final_weight(agent) for d.RawSignal == side
//
// Ties within tieEpsilon break LONG > SHORT > HOLD; otherwise a tie goes to
// HOLD. If both LONG and SHORT score non-zero and are within
// conflictFraction of the larger one, the result is forced to HOLD
// (conflict detected) regardless of which nominally scored higher.
func Arbitrate(symbol string, decisions []models.Decision, agents map[string]models.Agent) models.Intent {
	scores := map[models.Side]float64{models.SideLong: 0, models.SideShort: 0, models.SideHold: 0}
	contributors := map[models.Side][]string{}

	for _, d := range decisions {
		agent, ok := agents[d.AgentID]
		if !ok {
			continue
		}
		scores[d.RawSignal] += d.NormalizedConfidence * agent.FinalWeight()
		contributors[d.RawSignal] = append(contributors[d.RawSignal], d.AgentID)
	}

	winner := pickWinner(scores)
	maxScore := math.Max(scores[models.SideLong], math.Max(scores[models.SideShort], scores[models.SideHold]))
	if maxScore <= tieEpsilon {
		// Nothing scored (no decisions, or only unknown agents): hold.
		winner = models.SideHold
	}

	conflict := false
	if scores[models.SideLong] > 0 && scores[models.SideShort] > 0 {
		diff := math.Abs(scores[models.SideLong] - scores[models.SideShort])
		if maxScore > 0 && diff < conflictFraction*maxScore {
			conflict = true
			winner = models.SideHold
		}
	}

	return models.Intent{
		Symbol:             symbol,
		Side:               winner,
		AggregateScore:      scores[winner],
		ContributingAgents: contributors[winner],
		Conflict:           conflict,
	}
}

// pickWinner implements the tie-break order LONG > SHORT > HOLD, but only
// when the candidate scores are within tieEpsilon of the maximum; a wider
// spread always goes to whichever side has the strictly larger score.
func pickWinner(scores map[models.Side]float64) models.Side {
	order := []models.Side{models.SideLong, models.SideShort, models.SideHold}
	best := order[0]
	for _, s := range order[1:] {
		if scores[s] > scores[best]+tieEpsilon {
			best = s
		}
	}
	// best now holds the highest score (ties resolved by order above
	// already preferring the earlier side). If LONG and HOLD/SHORT are
	// genuinely tied beyond epsilon only when within epsilon does order
	// matter, which the loop condition already encodes.
	return best
}

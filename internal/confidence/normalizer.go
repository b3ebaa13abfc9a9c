// Package confidence maintains each agent's rolling accuracy and applies it
// to raw decision confidence, per spec.md §4.F.
package confidence

import "sync"

const rollingWindow = 20

// Normalizer tracks a rolling win/loss window per agent. Outcome Feedback
// (internal/feedback) is the only writer of Record; the Decision Provider
// path calls Normalize read-only on every cycle.
type Normalizer struct {
	mu      sync.Mutex
	history map[string][]bool // true = win, oldest first
}

func NewNormalizer() *Normalizer {
	return &Normalizer{history: make(map[string][]bool)}
}

// Record appends one outcome (win/loss) to an agent's rolling window,
// evicting the oldest entry once the window exceeds rollingWindow — this is
// the explicit outcome-feedback -> confidence-normalizer wiring supplemented
// per original_source/alpha-arena-backend/core/learning_bridge.py.
func (n *Normalizer) Record(agentID string, win bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	h := append(n.history[agentID], win)
	if len(h) > rollingWindow {
		h = h[len(h)-rollingWindow:]
	}
	n.history[agentID] = h
}

// Accuracy returns the agent's rolling win rate, or 1.0 if it has no history
// yet (spec.md §4.F: "An agent with zero history uses 1.0 multiplier").
func (n *Normalizer) Accuracy(agentID string) float64 {
	acc, _ := n.accuracyAndHistory(agentID)
	return acc
}

func (n *Normalizer) accuracyAndHistory(agentID string) (accuracy float64, hasHistory bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	h := n.history[agentID]
	if len(h) == 0 {
		return 1.0, false
	}
	wins := 0
	for _, w := range h {
		if w {
			wins++
		}
	}
	return float64(wins) / float64(len(h)), true
}

// Normalize computes raw * (0.5 + accuracy), adds the regime band's
// confidence_delta (additive, per spec.md §4.C/§4.F: regime adjusts the
// result, not the raw input), and clips the sum once to [0, 1]. A
// zero-history agent uses a flat 1.0 multiplier rather than (0.5+1.0).
func (n *Normalizer) Normalize(agentID string, raw float64, regimeConfidenceDelta float64) float64 {
	accuracy, hasHistory := n.accuracyAndHistory(agentID)
	if !hasHistory {
		return clip01(raw + regimeConfidenceDelta)
	}
	normalized := raw * (0.5 + accuracy)
	return clip01(normalized + regimeConfidenceDelta)
}

func clip01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

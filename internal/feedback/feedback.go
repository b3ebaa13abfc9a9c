// Package feedback implements Outcome Feedback, spec.md §4.O: when a
// position reaches CLOSED, resolve its originating Decision via
// decision_ref and push a win/loss bit into the Confidence Normalizer's
// rolling accuracy window. Grounded on original_source/alpha-arena-
// backend/core/learning_bridge.py's update_learning_from_csv_logs, but
// resolving the originating decision from an in-memory map keyed by
// decision ID rather than re-parsing a CSV log — the source falls back to
// CSV lookup only because it has no in-process decision store; this engine
// already does.
package feedback

import (
	"sync"

	"perpctl/internal/confidence"
	"perpctl/internal/models"

	"perpctl/pkg/logger"
)

// DecisionLog is the in-memory record of recently emitted decisions, keyed
// by their ID, so a closing position's decision_ref resolves without a
// disk round-trip. Entries are evicted once resolved.
type DecisionLog struct {
	mu   sync.Mutex
	byID map[string]models.Decision
}

func NewDecisionLog() *DecisionLog {
	return &DecisionLog{byID: make(map[string]models.Decision)}
}

// Record stores a decision the orchestrator just emitted.
func (l *DecisionLog) Record(d models.Decision) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.byID[d.ID] = d
}

// Resolve looks up and evicts a decision by ID.
func (l *DecisionLog) Resolve(id string) (models.Decision, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	d, ok := l.byID[id]
	if ok {
		delete(l.byID, id)
	}
	return d, ok
}

// Record binds a closed TradeOutcome back to the Decision that caused it,
// implementing spec.md §4.O. If the originating decision can't be found
// (process restart mid-trade, or an exit that was never tied to a
// decision — e.g. a forced Sentinel close), the win/loss bit is still fed
// to the normalizer under an "unknown" pseudo-agent so the accuracy window
// isn't silently starved, but no match is logged for operator visibility.
func Record(log *DecisionLog, normalizer *confidence.Normalizer, outcome models.TradeOutcome) {
	win := outcome.RealizedPnL > 0

	decision, ok := log.Resolve(outcome.DecisionRef)
	if !ok {
		logger.Error("feedback: no matching decision for decision_ref=%s (position=%s)", outcome.DecisionRef, outcome.PositionRef)
		normalizer.Record("unknown", win)
		return
	}

	normalizer.Record(decision.AgentID, win)
	logger.Info("feedback: %s agent=%s outcome=%s pnl=%.4f", outcome.PositionRef, decision.AgentID, outcomeStatus(outcome.RealizedPnL), outcome.RealizedPnL)
}

func outcomeStatus(pnl float64) string {
	switch {
	case pnl > 0:
		return "win"
	case pnl < 0:
		return "loss"
	default:
		return "breakeven"
	}
}

package feedback

import (
	"testing"

	"perpctl/internal/confidence"
	"perpctl/internal/models"
)

func TestRecord_ResolvesAndFeedsNormalizer(t *testing.T) {
	log := NewDecisionLog()
	log.Record(models.Decision{ID: "dec1", AgentID: "agent-a"})
	normalizer := confidence.NewNormalizer()

	Record(log, normalizer, models.TradeOutcome{DecisionRef: "dec1", PositionRef: "pos1", RealizedPnL: 5.0})

	if got := normalizer.Accuracy("agent-a"); got != 1.0 {
		t.Errorf("Accuracy = %v, want 1.0 after a single win", got)
	}
	if _, ok := log.Resolve("dec1"); ok {
		t.Error("expected decision evicted after resolution")
	}
}

func TestRecord_UnmatchedDecisionFallsBackToUnknownAgent(t *testing.T) {
	log := NewDecisionLog()
	normalizer := confidence.NewNormalizer()

	Record(log, normalizer, models.TradeOutcome{DecisionRef: "missing", PositionRef: "pos1", RealizedPnL: -3.0})

	if got := normalizer.Accuracy("unknown"); got != 0.0 {
		t.Errorf("Accuracy = %v, want 0.0 after a single loss", got)
	}
}

func TestRecord_LossIsRecordedAsLoss(t *testing.T) {
	log := NewDecisionLog()
	log.Record(models.Decision{ID: "dec1", AgentID: "agent-a"})
	normalizer := confidence.NewNormalizer()

	Record(log, normalizer, models.TradeOutcome{DecisionRef: "dec1", PositionRef: "pos1", RealizedPnL: -1.0})

	if got := normalizer.Accuracy("agent-a"); got != 0.0 {
		t.Errorf("Accuracy = %v, want 0.0 after a single loss", got)
	}
}

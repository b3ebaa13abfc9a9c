// Package decision wraps an opaque trading-signal oracle behind the caching,
// timeout, and HOLD-on-failure contract of spec.md §4.D.
package decision

import (
	"context"
	"errors"
	"time"

	"perpctl/internal/models"

	"github.com/google/uuid"
)

// ErrDecisionUnavailable is returned when the oracle does not answer within
// the timeout; the orchestrator treats this as HOLD (spec.md §4.D).
var ErrDecisionUnavailable = errors.New("decision: oracle unavailable")

// RecentPerformance is the rolling-accuracy context passed into decide(),
// mirroring get_recent_performance/format_recent_performance from
// original_source/alpha-arena-backend/core/learning_memory.py.
type RecentPerformance struct {
	WinRate     float64
	SampleCount int
}

// Oracle is the opaque decide() contract named in spec.md §4.D. Providers
// never mutate state; Provider below is the only thing allowed to cache.
type Oracle interface {
	Decide(ctx context.Context, agent models.Agent, snap models.MarketSnapshot, perf RecentPerformance) (models.Decision, error)
}

const (
	cacheMaxCycles    = 4
	cacheMinConfidence = 0.8
	decideTimeout     = 2 * time.Second
)

type cacheEntry struct {
	decision models.Decision
	cycle    int
}

// Provider is the caching wrapper described in spec.md §4.D: a decision
// with confidence >= 0.8 issued within the last 4 cycles is reused verbatim
// rather than re-invoking the oracle. Grounded on the LLM signal cache in
// original_source's core/ai_agent.py (_llm_signal_cache, cycles_remaining),
// generalized from a single implementation detail into the provider's own
// cross-oracle behaviour.
type Provider struct {
	oracle Oracle
	cache  map[string]cacheEntry
	cycle  int
}

func NewProvider(oracle Oracle) *Provider {
	return &Provider{oracle: oracle, cache: make(map[string]cacheEntry)}
}

// Advance increments the provider's cycle counter; the orchestrator calls
// this once per run_cycle so cache entries age out after cacheMaxCycles.
func (p *Provider) Advance() {
	p.cycle++
}

// Decide returns a cached decision if one is fresh and confident enough for
// (agent, symbol); otherwise it calls the oracle with a 2s timeout and
// caches the result. On any oracle error, the timeout included, it returns a
// HOLD decision together with ErrDecisionUnavailable, so the caller can fall
// back to HOLD (spec.md §4.D).
func (p *Provider) Decide(ctx context.Context, agent models.Agent, snap models.MarketSnapshot, perf RecentPerformance) (models.Decision, error) {
	key := agent.AgentID + "|" + snap.Symbol
	if entry, ok := p.cache[key]; ok {
		if entry.decision.RawConfidence >= cacheMinConfidence && p.cycle-entry.cycle < cacheMaxCycles {
			return entry.decision, nil
		}
	}

	cctx, cancel := context.WithTimeout(ctx, decideTimeout)
	defer cancel()

	decision, err := p.oracle.Decide(cctx, agent, snap, perf)
	if err != nil {
		return holdDecision(agent, snap), ErrDecisionUnavailable
	}
	if decision.ID == "" {
		decision.ID = uuid.NewString()
	}
	if decision.Timestamp.IsZero() {
		decision.Timestamp = time.Now().UTC()
	}
	p.cache[key] = cacheEntry{decision: decision, cycle: p.cycle}
	return decision, nil
}

func holdDecision(agent models.Agent, snap models.MarketSnapshot) models.Decision {
	return models.Decision{
		ID:             uuid.NewString(),
		Timestamp:      time.Now().UTC(),
		AgentID:        agent.AgentID,
		Symbol:         snap.Symbol,
		RawSignal:      models.SideHold,
		RawConfidence:  0,
		ReasoningText:  "oracle unavailable within timeout",
		MarketSnapshot: snap,
	}
}

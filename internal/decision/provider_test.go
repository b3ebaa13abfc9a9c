package decision

import (
	"context"
	"errors"
	"testing"
	"time"

	"perpctl/internal/models"
)

type stubOracle struct {
	decision models.Decision
	err      error
	delay    time.Duration
	calls    int
}

func (s *stubOracle) Decide(ctx context.Context, agent models.Agent, snap models.MarketSnapshot, perf RecentPerformance) (models.Decision, error) {
	s.calls++
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return models.Decision{}, ctx.Err()
		}
	}
	return s.decision, s.err
}

func TestProvider_CachesHighConfidenceDecisionWithinWindow(t *testing.T) {
	stub := &stubOracle{decision: models.Decision{RawSignal: models.SideLong, RawConfidence: 0.9}}
	p := NewProvider(stub)
	agent := models.Agent{AgentID: "a1"}
	snap := models.MarketSnapshot{Symbol: "BTC-USDT"}

	for i := 0; i < cacheMaxCycles; i++ {
		if _, err := p.Decide(context.Background(), agent, snap, RecentPerformance{}); err != nil {
			t.Fatalf("Decide returned error: %v", err)
		}
		p.Advance()
	}
	if stub.calls != 1 {
		t.Errorf("oracle called %d times, want 1 (cached for %d cycles)", stub.calls, cacheMaxCycles)
	}
}

func TestProvider_CacheExpiresAfterMaxCycles(t *testing.T) {
	stub := &stubOracle{decision: models.Decision{RawSignal: models.SideLong, RawConfidence: 0.9}}
	p := NewProvider(stub)
	agent := models.Agent{AgentID: "a1"}
	snap := models.MarketSnapshot{Symbol: "BTC-USDT"}

	p.Decide(context.Background(), agent, snap, RecentPerformance{})
	for i := 0; i < cacheMaxCycles+1; i++ {
		p.Advance()
	}
	p.Decide(context.Background(), agent, snap, RecentPerformance{})
	if stub.calls != 2 {
		t.Errorf("oracle called %d times, want 2 (cache expired)", stub.calls)
	}
}

func TestProvider_LowConfidenceIsNotCached(t *testing.T) {
	stub := &stubOracle{decision: models.Decision{RawSignal: models.SideLong, RawConfidence: 0.4}}
	p := NewProvider(stub)
	agent := models.Agent{AgentID: "a1"}
	snap := models.MarketSnapshot{Symbol: "BTC-USDT"}

	p.Decide(context.Background(), agent, snap, RecentPerformance{})
	p.Decide(context.Background(), agent, snap, RecentPerformance{})
	if stub.calls != 2 {
		t.Errorf("oracle called %d times, want 2 (confidence below cache threshold)", stub.calls)
	}
}

func TestProvider_OracleErrorReturnsHold(t *testing.T) {
	stub := &stubOracle{err: errors.New("upstream down")}
	p := NewProvider(stub)
	agent := models.Agent{AgentID: "a1"}
	snap := models.MarketSnapshot{Symbol: "BTC-USDT"}

	decision, err := p.Decide(context.Background(), agent, snap, RecentPerformance{})
	if !errors.Is(err, ErrDecisionUnavailable) {
		t.Errorf("err = %v, want ErrDecisionUnavailable", err)
	}
	if decision.RawSignal != models.SideHold {
		t.Errorf("RawSignal = %v, want HOLD", decision.RawSignal)
	}
}

func TestTrendFollowingSignal_BullishConditions(t *testing.T) {
	snap := models.MarketSnapshot{Price: 110, EMA20: 100, MACD: 1, MACDSig: 0.5, RSI: 55}
	side, conf, _ := trendFollowingSignal(snap)
	if side != models.SideLong {
		t.Errorf("side = %v, want LONG", side)
	}
	if conf <= 0 || conf > 0.9 {
		t.Errorf("confidence = %v, out of expected range", conf)
	}
}

func TestTrendFollowingSignal_NoTrendHolds(t *testing.T) {
	snap := models.MarketSnapshot{Price: 100, EMA20: 100, MACD: 0, MACDSig: 0, RSI: 50}
	side, _, _ := trendFollowingSignal(snap)
	if side != models.SideHold {
		t.Errorf("side = %v, want HOLD", side)
	}
}

package decision

import (
	"context"

	"perpctl/internal/models"
)

// TrendFollowingOracle implements the "trend_following" style from
// original_source/alpha-arena-backend/core/strategies.py: BUY when price is
// above EMA20 with a bullish MACD cross and RSI in the 40-70 band, SELL on
// the mirrored condition, HOLD otherwise. It is a deterministic stand-in for
// whatever upstream signal source a deployment wires in; other styles plug
// in behind the same Oracle interface.
type TrendFollowingOracle struct{}

func (TrendFollowingOracle) Decide(ctx context.Context, agent models.Agent, snap models.MarketSnapshot, perf RecentPerformance) (models.Decision, error) {
	signal, confidence, reason := trendFollowingSignal(snap)
	return models.Decision{
		AgentID:        agent.AgentID,
		Symbol:         snap.Symbol,
		RawSignal:      signal,
		RawConfidence:  confidence,
		StrategyTag:    "trend_following",
		ReasoningText:  reason,
		MarketSnapshot: snap,
	}, nil
}

func trendFollowingSignal(snap models.MarketSnapshot) (models.Side, float64, string) {
	bullishTrend := snap.Price > snap.EMA20 && snap.MACD > snap.MACDSig
	bearishTrend := snap.Price < snap.EMA20 && snap.MACD < snap.MACDSig

	switch {
	case bullishTrend && snap.RSI >= 40 && snap.RSI <= 70:
		return models.SideLong, confidenceFromRSI(snap.RSI, 40, 70), "price above EMA20, bullish MACD cross, RSI not overbought"
	case bearishTrend && snap.RSI >= 30 && snap.RSI <= 60:
		return models.SideShort, confidenceFromRSI(snap.RSI, 30, 60), "price below EMA20, bearish MACD cross, RSI not oversold"
	default:
		return models.SideHold, 0.3, "no trend-following condition met"
	}
}

// confidenceFromRSI scores how centered rsi is in [lo, hi]: the midpoint
// scores highest, the edges score lowest, matching the graduated confidence
// the Python strategy computes instead of a flat pass/fail.
func confidenceFromRSI(rsi, lo, hi float64) float64 {
	mid := (lo + hi) / 2
	half := (hi - lo) / 2
	if half <= 0 {
		return 0.5
	}
	dist := (mid - rsi) / half
	if dist < 0 {
		dist = -dist
	}
	conf := 0.9 - 0.3*dist
	if conf < 0.5 {
		conf = 0.5
	}
	if conf > 0.9 {
		conf = 0.9
	}
	return conf
}

// StrategyFactory mirrors the teacher's NewEngine factory (internal/modules/
// strategy/service/factory.go): one switch from a style tag to a concrete
// Oracle implementation.
func StrategyFactory(style string) Oracle {
	switch style {
	default:
		return TrendFollowingOracle{}
	}
}

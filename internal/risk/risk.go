// Package risk sizes entries and enforces the kill-switch/leverage-governor
// safety net of spec.md §4.G.
package risk

import (
	"perpctl/internal/models"
	"perpctl/internal/regime"
)

const (
	defaultRiskFraction  = 0.025
	maxRiskFraction      = 0.03
	maxMarginPerTrade    = 600.0
	minMarginPerTrade    = 600.0
	defaultMaxLeverage   = 2
	highRegimeMaxLeverage = 3
	lowRegimeLeverage    = 1
	correlationThreshold = 0.8
	correlationMultiplier = 0.5
	maxDrawdownDefault   = 0.25
	consecutiveLossLimit = 3
	latencyKillThresholdSeconds = 5.0
)

// Config is the operator-tunable side of the sizing/kill-switch formulas;
// defaults mirror spec.md §4.G.
type Config struct {
	RiskFraction     float64
	MaxDailyLossPct  float64
	MaxDrawdown      float64
	MaxLeverage      int
}

func DefaultConfig() Config {
	return Config{
		RiskFraction:    defaultRiskFraction,
		MaxDailyLossPct: 0.05,
		MaxDrawdown:     maxDrawdownDefault,
		MaxLeverage:     defaultMaxLeverage,
	}
}

// SizingInput bundles everything PositionSize needs; kept as a struct
// rather than a long parameter list because Risk Engine call sites
// (orchestrator) accumulate these fields from several other components.
type SizingInput struct {
	Equity              float64
	Price               float64
	StopDistanceFraction float64
	RegimeSizeMultiplier float64
	CorrelationAdjustment float64
	Symbol              models.Symbol
	Leverage            int
}

// PositionSize implements spec.md §4.G's sizing formula:
//
//	risk_amount = equity * risk_fraction * regime_size_multiplier * correlation_adjustment
//	notional    = risk_amount / stop_distance_fraction
//	quantity    = clamp(notional / price, step, min, max_notional = MAX_MARGIN * leverage)
func PositionSize(cfg Config, in SizingInput) float64 {
	if in.Price <= 0 || in.StopDistanceFraction <= 0 {
		return 0
	}
	riskFraction := cfg.RiskFraction
	if riskFraction > maxRiskFraction {
		riskFraction = maxRiskFraction
	}
	riskAmount := in.Equity * riskFraction * in.RegimeSizeMultiplier * in.CorrelationAdjustment
	notional := riskAmount / in.StopDistanceFraction

	// notional/leverage must land between MIN_MARGIN_PER_TRADE and
	// MAX_MARGIN_PER_TRADE before rounding to a tradable quantity
	// (spec.md §4.G, Open Questions).
	minNotional := minMarginPerTrade * float64(in.Leverage)
	maxNotional := maxMarginPerTrade * float64(in.Leverage)
	if notional < minNotional {
		notional = minNotional
	}
	if notional > maxNotional {
		notional = maxNotional
	}
	rawQty := notional / in.Price
	return in.Symbol.RoundQty(rawQty)
}

// CorrelationAdjustment applies the 0.8/0.5x rule of spec.md §4.G: when the
// given correlation exceeds the threshold in magnitude and the other symbol
// already holds a same-direction open position, size is halved.
func CorrelationAdjustment(correlation float64, otherSymbolSameDirectionOpen bool) float64 {
	if otherSymbolSameDirectionOpen && (correlation > correlationThreshold || correlation < -correlationThreshold) {
		return correlationMultiplier
	}
	return 1.0
}

// LeverageGovernor tracks the process-wide consecutive-loss count and
// derives the leverage to use this cycle. It starts at cfg.MaxLeverage,
// regime HIGH may raise it to 3, regime LOW forces it to 1, and every two
// consecutive losses (global, across symbols) reduces it by one until the
// next win restores it. Grounded on risk_engine.py's
// consecutive_losses/record_trade_outcome bookkeeping.
type LeverageGovernor struct {
	consecutiveLosses int
	reduction         int
}

func NewLeverageGovernor() *LeverageGovernor {
	return &LeverageGovernor{}
}

// RecordOutcome updates the consecutive-loss counter; a win resets both the
// counter and any accumulated leverage reduction.
func (g *LeverageGovernor) RecordOutcome(win bool) {
	if win {
		g.consecutiveLosses = 0
		g.reduction = 0
		return
	}
	g.consecutiveLosses++
	if g.consecutiveLosses%2 == 0 {
		g.reduction++
	}
}

// Leverage returns the leverage to use this cycle given the base config and
// the current regime band.
func (g *LeverageGovernor) Leverage(cfg Config, band regime.Band) int {
	base := cfg.MaxLeverage
	switch band {
	case regime.High:
		if highRegimeMaxLeverage > base {
			base = highRegimeMaxLeverage
		}
	case regime.Low:
		return lowRegimeLeverage
	}
	lev := base - g.reduction
	if lev < 1 {
		lev = 1
	}
	return lev
}

// ConsecutiveLosses exposes the raw counter for the kill-switch check.
func (g *LeverageGovernor) ConsecutiveLosses() int {
	return g.consecutiveLosses
}

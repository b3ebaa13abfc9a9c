package models

import "time"

// Side is the tagged-variant replacement for the source's free-string
// raw_signal (Design Notes §9: dynamic-typed decisions -> sum types).
type Side string

const (
	SideLong  Side = "LONG"
	SideShort Side = "SHORT"
	SideHold  Side = "HOLD"
)

// MarketSnapshot is the frozen indicator/price context a Decision was made
// against, carried through to the Trade Outcome for outcome-feedback joins
// and post-hoc analysis.
type MarketSnapshot struct {
	Symbol    string
	Price     float64
	ATRFast   float64
	ATRSlow   float64
	EMA20     float64
	RSI       float64
	MACD      float64
	MACDSig   float64
	BollUpper float64
	BollLower float64
	Regime    string
	AsOf      time.Time
}

// Decision is produced once per agent per cycle by the Decision Provider.
type Decision struct {
	ID                  string
	Timestamp           time.Time
	AgentID             string
	Symbol              string
	RawSignal           Side
	RawConfidence       float64
	NormalizedConfidence float64
	StrategyTag         string
	ReasoningText       string
	MarketSnapshot      MarketSnapshot
}

package models

import "time"

type ExitReason string

const (
	ExitTP      ExitReason = "TP"
	ExitSL      ExitReason = "SL"
	ExitManual  ExitReason = "MANUAL"
	ExitPartial ExitReason = "PARTIAL"
	ExitForced  ExitReason = "FORCED"
)

// TradeOutcome closes the loop on a Position: it is produced once the
// position reaches CLOSED and is what Outcome Feedback (component O) joins
// back to the originating Decision via PositionRef/DecisionRef.
type TradeOutcome struct {
	ID                 string
	PositionRef        string
	DecisionRef        string
	ExitReason         ExitReason
	ExitPrice          float64
	RealizedPnL        float64
	HoldDuration       time.Duration
	MarketSnapshotExit MarketSnapshot
	ClosedAt           time.Time
}

package models

import "time"

// EquitySnapshot is appended each cycle; Peak is tracked across the
// process lifetime and persisted (spec.md §3) so a restart doesn't reset the
// drawdown kill-switch's reference point.
type EquitySnapshot struct {
	Timestamp        time.Time
	Realized         float64
	Unrealized       float64
	Total            float64
	Peak             float64
	DrawdownFromPeak float64
}

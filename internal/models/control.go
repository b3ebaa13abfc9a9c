package models

import "time"

// SymbolMutexState is the per-symbol cooldown/loss bookkeeping of spec.md
// §3. It is owned by the orchestrator; the Order Manager reads a snapshot
// under the per-symbol lock held for the whole entry protocol (spec.md §5).
type SymbolMutexState struct {
	Symbol               string
	LastEntryTime        time.Time
	LastEntrySide        Side
	LastExitTime         time.Time
	ConsecutiveLosses    int
	ReattachLastAttempt  time.Time
	ReattachCycleCount   int
}

// BreakerState is one named circuit breaker's trip status (spec.md §4.H).
type BreakerState struct {
	Name         string
	ActiveUntil  time.Time
	TriggerReason string
}

// Active reports whether the breaker is currently pausing entries.
func (b BreakerState) Active(now time.Time) bool {
	return now.Before(b.ActiveUntil)
}

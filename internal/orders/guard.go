package orders

import (
	"fmt"
	"sync"
	"time"

	"perpctl/internal/models"
)

// SymbolGuard is the per-symbol cooldown/mutex bookkeeping of spec.md §4.I
// step 1 and §5's "per-symbol mutex held for the whole entry protocol".
// Grounded on the teacher's UserSession pending/cooldown map
// (internal/runner/sessions/user_session.go), generalized from one user's
// session state into process-wide per-symbol state.
type SymbolGuard struct {
	mu     sync.Mutex
	locks  map[string]*sync.Mutex
	states map[string]*models.SymbolMutexState
	lastConflictLog map[string]time.Time
}

func NewSymbolGuard() *SymbolGuard {
	return &SymbolGuard{
		locks:  make(map[string]*sync.Mutex),
		states: make(map[string]*models.SymbolMutexState),
		lastConflictLog: make(map[string]time.Time),
	}
}

// Acquire locks the symbol's mutex and returns an unlock func, so callers
// can `defer unlock()` immediately after acquiring.
func (g *SymbolGuard) Acquire(symbol string) func() {
	g.mu.Lock()
	l, ok := g.locks[symbol]
	if !ok {
		l = &sync.Mutex{}
		g.locks[symbol] = l
	}
	g.mu.Unlock()

	l.Lock()
	return l.Unlock
}

func (g *SymbolGuard) state(symbol string) *models.SymbolMutexState {
	g.mu.Lock()
	defer g.mu.Unlock()
	st, ok := g.states[symbol]
	if !ok {
		st = &models.SymbolMutexState{Symbol: symbol}
		g.states[symbol] = st
	}
	return st
}

// CheckCooldown implements spec.md §4.I step 1: reject same-direction
// entries within 15 minutes of the last entry, and reject opposite-side
// entries within the 10-minute reversal cooldown. Returns a non-empty
// reason string when the entry is blocked.
func (g *SymbolGuard) CheckCooldown(symbol string, side models.Side, now time.Time) string {
	st := g.state(symbol)
	if st.LastEntryTime.IsZero() {
		return ""
	}
	elapsed := now.Sub(st.LastEntryTime)
	if st.LastEntrySide == side && elapsed < sameDirectionCooldown {
		return fmt.Sprintf("same-direction cooldown: %s left", sameDirectionCooldown-elapsed)
	}
	if st.LastEntrySide != side && st.LastEntrySide != "" && elapsed < reversalCooldown {
		return fmt.Sprintf("reversal cooldown: %s left", reversalCooldown-elapsed)
	}
	return ""
}

// RecordEntry stamps the last-entry bookkeeping after a successful
// submit_entry call.
func (g *SymbolGuard) RecordEntry(symbol string, side models.Side, now time.Time) {
	st := g.state(symbol)
	g.mu.Lock()
	st.LastEntryTime = now
	st.LastEntrySide = side
	g.mu.Unlock()
}

// RecordExit stamps the last-exit time in the symbol's state. Both
// cooldowns in CheckCooldown are measured from the last entry, not from
// this exit time.
func (g *SymbolGuard) RecordExit(symbol string, now time.Time) {
	st := g.state(symbol)
	g.mu.Lock()
	st.LastExitTime = now
	g.mu.Unlock()
}

// ShouldLogDuplicateConflict implements the logging half of spec.md §4.I
// step 2: a same-direction entry against an already-open position is
// always rejected by the caller, but the conflict is only logged once per
// duplicate_guard_debounce (2.5s) window to avoid spamming the log on every
// cycle the conflict persists.
func (g *SymbolGuard) ShouldLogDuplicateConflict(symbol string, now time.Time) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	last, ok := g.lastConflictLog[symbol]
	if ok && now.Sub(last) < duplicateGuardDebounce {
		return false
	}
	g.lastConflictLog[symbol] = now
	return true
}

// RecordLoss/RecordWin update the per-symbol consecutive-loss counter
// (spec.md §3 DATA MODEL's SymbolMutexState.ConsecutiveLosses), readable
// via Snapshot. The Risk Engine's leverage governor keeps its own
// process-wide counter and does not read this one.
func (g *SymbolGuard) RecordLoss(symbol string) {
	st := g.state(symbol)
	g.mu.Lock()
	st.ConsecutiveLosses++
	g.mu.Unlock()
}

func (g *SymbolGuard) RecordWin(symbol string) {
	st := g.state(symbol)
	g.mu.Lock()
	st.ConsecutiveLosses = 0
	g.mu.Unlock()
}

// Snapshot returns a copy of the symbol's current state for reporting.
func (g *SymbolGuard) Snapshot(symbol string) models.SymbolMutexState {
	st := g.state(symbol)
	g.mu.Lock()
	defer g.mu.Unlock()
	return *st
}

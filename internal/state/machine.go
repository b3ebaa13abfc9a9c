// Package state implements the Trade State Machine of spec.md §4.J: the
// exit debounce and TP/SL hash dedup guards every Order Manager call routes
// through, plus a per-symbol lock table.
package state

import (
	"sync"
	"time"

	"perpctl/internal/models"
)

const exitDebounceWindow = 5 * time.Second

// Machine owns exit-attempt debouncing, TP/SL hash dedup, and a table of
// per-symbol mutexes (SymbolLock). The engine's entry protocol locks
// through orders.SymbolGuard instead; no engine code takes SymbolLock, so
// attach and exit are not serialized by it. Grounded on the teacher's UserSession split locks
// (internal/runner/sessions/user_session.go: PosMu for trail state,
// PosCacheMu for the venue-synced cache, plus a bare mutex for pending/
// cooldown) — generalized here into one mutex per symbol rather than one
// mutex per concern, since the spec requires total ordering within a
// symbol specifically, not per-concern isolation.
type Machine struct {
	mu sync.Mutex

	symbolLocks   map[string]*sync.Mutex
	lastExitAt    map[string]time.Time // keyed by position ID
	activeHashes  map[string]string    // keyed by position ID
}

func NewMachine() *Machine {
	return &Machine{
		symbolLocks:  make(map[string]*sync.Mutex),
		lastExitAt:   make(map[string]time.Time),
		activeHashes: make(map[string]string),
	}
}

// SymbolLock returns the mutex for a symbol, creating it on first use.
func (m *Machine) SymbolLock(symbol string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.symbolLocks[symbol]
	if !ok {
		l = &sync.Mutex{}
		m.symbolLocks[symbol] = l
	}
	return l
}

// RecordExitAttempt stamps now as the last exit attempt for a position.
func (m *Machine) RecordExitAttempt(positionID string, now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastExitAt[positionID] = now
}

// IsExitAllowed reports whether a new exit attempt for positionID is
// permitted: the position must be OPEN or MONITORING, and no attempt may
// have been recorded in the last 5s (spec.md §4.J).
func (m *Machine) IsExitAllowed(position models.Position, now time.Time) bool {
	if position.State != models.PositionOpen && position.State != models.PositionMonitoring {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	last, ok := m.lastExitAt[position.ID]
	if !ok {
		return true
	}
	return now.Sub(last) >= exitDebounceWindow
}

// IsTpslDuplicate reports whether hash is already the active TP/SL
// signature for positionID, suppressing a redundant attach (spec.md §4.I
// step 7, §4.J "hash dedup").
func (m *Machine) IsTpslDuplicate(positionID, hash string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.activeHashes[positionID] == hash
}

// SetActiveHash records hash as the current TP/SL signature for a
// position, called once attach succeeds.
func (m *Machine) SetActiveHash(positionID, hash string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.activeHashes[positionID] = hash
}

// Forget drops all debounce/hash bookkeeping for a closed position.
func (m *Machine) Forget(positionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.lastExitAt, positionID)
	delete(m.activeHashes, positionID)
}

package state

import (
	"testing"
	"time"

	"perpctl/internal/models"
)

func TestIsExitAllowed_RejectsWithinDebounceWindow(t *testing.T) {
	m := NewMachine()
	pos := models.Position{ID: "p1", State: models.PositionMonitoring}
	now := time.Now()

	if !m.IsExitAllowed(pos, now) {
		t.Fatal("first exit attempt should be allowed")
	}
	m.RecordExitAttempt(pos.ID, now)
	if m.IsExitAllowed(pos, now.Add(2*time.Second)) {
		t.Fatal("exit attempt within 5s window should be rejected")
	}
	if !m.IsExitAllowed(pos, now.Add(6*time.Second)) {
		t.Fatal("exit attempt after 5s window should be allowed")
	}
}

func TestIsExitAllowed_RejectsWrongState(t *testing.T) {
	m := NewMachine()
	pos := models.Position{ID: "p1", State: models.PositionClosed}
	if m.IsExitAllowed(pos, time.Now()) {
		t.Fatal("exit should not be allowed for a CLOSED position")
	}
}

func TestTpslHashDedup(t *testing.T) {
	m := NewMachine()
	if m.IsTpslDuplicate("p1", "hash-a") {
		t.Fatal("no hash recorded yet, should not be duplicate")
	}
	m.SetActiveHash("p1", "hash-a")
	if !m.IsTpslDuplicate("p1", "hash-a") {
		t.Fatal("same hash should be detected as duplicate")
	}
	if m.IsTpslDuplicate("p1", "hash-b") {
		t.Fatal("different hash should not be a duplicate")
	}
}

func TestSymbolLock_SameSymbolReturnsSameMutex(t *testing.T) {
	m := NewMachine()
	l1 := m.SymbolLock("BTC-USDT")
	l2 := m.SymbolLock("BTC-USDT")
	if l1 != l2 {
		t.Fatal("SymbolLock should return the same mutex for the same symbol")
	}
}

func TestForget_ClearsBookkeeping(t *testing.T) {
	m := NewMachine()
	m.RecordExitAttempt("p1", time.Now())
	m.SetActiveHash("p1", "hash-a")
	m.Forget("p1")
	if m.IsTpslDuplicate("p1", "hash-a") {
		t.Fatal("hash should be cleared after Forget")
	}
}

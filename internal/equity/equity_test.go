package equity

import (
	"testing"
	"time"
)

type stubPeakStore struct {
	peak float64
}

func (s *stubPeakStore) LoadPeak() (float64, error) { return s.peak, nil }
func (s *stubPeakStore) SavePeak(peak float64) error {
	s.peak = peak
	return nil
}

func TestReconcile_PeakOnlyMovesUp(t *testing.T) {
	store := &stubPeakStore{peak: 1000}
	r, err := NewReconciler(store)
	if err != nil {
		t.Fatalf("NewReconciler error: %v", err)
	}

	snap := r.Reconcile(time.Unix(0, 0), 500, 200, 700)
	if snap.Peak != 1000 {
		t.Errorf("Peak = %v, want 1000 (should not drop)", snap.Peak)
	}

	snap = r.Reconcile(time.Unix(0, 0), 900, 300, 1150)
	if snap.Peak != 1200 {
		t.Errorf("Peak = %v, want 1200 (new high)", snap.Peak)
	}
	if store.peak != 1200 {
		t.Errorf("store peak = %v, want 1200", store.peak)
	}
}

func TestReconcile_DrawdownFromPeak(t *testing.T) {
	store := &stubPeakStore{peak: 1000}
	r, _ := NewReconciler(store)

	snap := r.Reconcile(time.Unix(0, 0), 400, 100, 500)
	if got, want := snap.DrawdownFromPeak, 0.5; got != want {
		t.Errorf("DrawdownFromPeak = %v, want %v", got, want)
	}
}

func TestReconcile_ZeroPeakNoDivideByZero(t *testing.T) {
	store := &stubPeakStore{peak: 0}
	r, _ := NewReconciler(store)

	snap := r.Reconcile(time.Unix(0, 0), 0, 0, 0)
	if snap.DrawdownFromPeak != 0 {
		t.Errorf("DrawdownFromPeak = %v, want 0", snap.DrawdownFromPeak)
	}
}

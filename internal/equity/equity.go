// Package equity implements Equity Reconciliation, spec.md §4.N: a rollup
// of realized + unrealized PnL into a persisted EquitySnapshot, with drift
// detection against the venue's own balance figure. Grounded on
// original_source/alpha-arena-backend/core/equity_reconciliation.py's
// reconcile_equity/calculate_unrealized_pnl.
package equity

import (
	"time"

	"perpctl/internal/models"

	"perpctl/pkg/logger"
)

const driftThreshold = 0.01 // 1% of total equity, per spec.md §4.N

// PeakStore persists the peak-equity watermark across process restarts so
// the drawdown kill-switch's reference point survives a redeploy. Backed by
// internal/modules/postgres in production.
type PeakStore interface {
	LoadPeak() (float64, error)
	SavePeak(peak float64) error
}

// Reconciler tracks the running peak and produces one EquitySnapshot per
// call to Reconcile.
type Reconciler struct {
	store PeakStore
	peak  float64
}

// NewReconciler seeds the peak from the store (0 if nothing persisted yet
// — the first profitable cycle establishes the initial peak).
func NewReconciler(store PeakStore) (*Reconciler, error) {
	peak, err := store.LoadPeak()
	if err != nil {
		return nil, err
	}
	return &Reconciler{store: store, peak: peak}, nil
}

// Reconcile implements reconcile_equity's arithmetic: total = realized +
// unrealized, peak only ever moves up, drawdown is the fractional distance
// below peak. A discrepancy greater than 1% of total equity against the
// venue-reported account balance emits EquityDrift but never halts trading
// (spec.md §4.N: "does not itself stop trading").
func (r *Reconciler) Reconcile(now time.Time, realized, unrealized, accountBalance float64) models.EquitySnapshot {
	total := realized + unrealized
	if total > r.peak {
		r.peak = total
		if err := r.store.SavePeak(r.peak); err != nil {
			logger.Error("equity: failed to persist peak: %v", err)
		}
	}
	drawdown := 0.0
	if r.peak > 0 {
		drawdown = (r.peak - total) / r.peak
	}

	snap := models.EquitySnapshot{
		Timestamp:        now,
		Realized:         realized,
		Unrealized:       unrealized,
		Total:            total,
		Peak:             r.peak,
		DrawdownFromPeak: drawdown,
	}

	expected := accountBalance + unrealized
	if total > 0 {
		diff := total - expected
		if diff < 0 {
			diff = -diff
		}
		if diff/total > driftThreshold {
			logger.Error("EquityDrift: total=%.4f expected(balance+unrealized)=%.4f diff_pct=%.4f", total, expected, diff/total)
		}
	}

	return snap
}

// Peak returns the current watermark, used by the Risk Engine's drawdown
// kill-switch check without re-deriving it from a snapshot.
func (r *Reconciler) Peak() float64 {
	return r.peak
}

// Package sentinel implements the Sentinel, spec.md §4.L: the slow,
// authoritative TP/SL repair loop. It is the only component that
// re-attaches missing legs; the Live Monitor never does, though it does
// replace the SL with a breakeven one after a partial close. Grounded, like the
// Live Monitor, on the teacher's PositionCacheWorker ticker pattern
// (internal/runner/sessions/position_cache_worker.go), but at the slower
// 60s cadence and with the dual-layer debounce spec.md §4.L requires.
package sentinel

import (
	"context"
	"errors"
	"time"

	"perpctl/internal/exchange"
	"perpctl/internal/models"
	"perpctl/internal/orders"
	"perpctl/internal/positions"

	"perpctl/pkg/logger"
)

const (
	pollInterval       = 60 * time.Second
	minAttemptInterval = 60 * time.Second
	minCyclesBetween   = 3
)

// Sentinel periodically re-attaches missing TP/SL legs on MONITORING
// positions, reusing the position's original leverage and direction rule.
type Sentinel struct {
	gw      exchange.Gateway
	store   *positions.Store
	mgr     *orders.Manager
	symbols map[string]models.Symbol

	lastAttemptAt map[string]time.Time
	cyclesSince   map[string]int
	cycle         int

	// Heartbeat, if set, is called after every sweep.
	Heartbeat func(time.Time)
}

func NewSentinel(gw exchange.Gateway, store *positions.Store, mgr *orders.Manager, symbols map[string]models.Symbol) *Sentinel {
	return &Sentinel{
		gw:            gw,
		store:         store,
		mgr:           mgr,
		symbols:       symbols,
		lastAttemptAt: make(map[string]time.Time),
		cyclesSince:   make(map[string]int),
	}
}

// Run blocks, polling every 60s until ctx is cancelled.
func (s *Sentinel) Run(ctx context.Context) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sentinel) sweep(ctx context.Context) {
	s.cycle++
	for _, pos := range s.store.All() {
		if pos.State != models.PositionMonitoring {
			continue
		}
		s.checkAndRepair(ctx, pos)
	}
	if s.Heartbeat != nil {
		s.Heartbeat(time.Now())
	}
}

// checkAndRepair implements spec.md §4.L's four-step repair protocol for
// one position. Its trigger is Position.HasLegs, which checks only the
// order IDs stored on the position; a leg that disappears from the venue
// while its ID is still stored is not detected here, and nothing clears
// those IDs when the Live Monitor sees a leg missing.
func (s *Sentinel) checkAndRepair(ctx context.Context, pos models.Position) {
	if pos.HasLegs() {
		delete(s.lastAttemptAt, pos.ID)
		delete(s.cyclesSince, pos.ID)
		return
	}
	symbol, ok := s.symbols[pos.Symbol]
	if !ok {
		return
	}

	now := time.Now()
	if last, seen := s.lastAttemptAt[pos.ID]; seen {
		if now.Sub(last) < minAttemptInterval || s.cyclesSince[pos.ID] < minCyclesBetween {
			s.cyclesSince[pos.ID]++
			return
		}
	}
	s.lastAttemptAt[pos.ID] = now
	s.cyclesSince[pos.ID] = 0

	tpFrac, slFrac := tpslFractionsFor(pos)
	tpID, slID, err := s.mgr.AttachTPSL(ctx, symbol, pos, tpFrac, slFrac)
	if err != nil {
		var me *exchange.MappedError
		if errors.As(err, &me) {
			switch me.Code {
			case exchange.CodeMarginInsufficient:
				logger.Error("sentinel: ReattachSkipped-Margin for %s: %v", pos.Symbol, err)
				return
			case exchange.CodeUnknownOrder, exchange.CodeDuplicateReduceOnly:
				// treat as success per spec.md §4.L step 4
			default:
				logger.Error("sentinel: re-attach failed for %s: %v", pos.Symbol, err)
				return
			}
		} else {
			logger.Error("sentinel: re-attach failed for %s: %v", pos.Symbol, err)
			return
		}
	}

	pos.TPOrderID = tpID
	pos.SLOrderID = slID
	s.store.Upsert(pos)
	logger.Info("sentinel: re-attached TP/SL for %s tp=%s sl=%s", pos.Symbol, tpID, slID)
}

// tpslFractionsFor recomputes the TP/SL fractions implied by a position's
// already-stored target prices, so a re-attach respects the original
// direction rule and distances rather than substituting fresh defaults
// (spec.md §4.L step 3: "recomputed from stored entry; respects original
// direction rule").
func tpslFractionsFor(pos models.Position) (tpFrac, slFrac float64) {
	if pos.EntryPrice == 0 {
		return 0, 0
	}
	switch pos.Side {
	case models.SideShort:
		if pos.TPPrice > 0 {
			tpFrac = (pos.EntryPrice - pos.TPPrice) / pos.EntryPrice
		}
		if pos.SLPrice > 0 {
			slFrac = (pos.SLPrice - pos.EntryPrice) / pos.EntryPrice
		}
	default:
		if pos.TPPrice > 0 {
			tpFrac = (pos.TPPrice - pos.EntryPrice) / pos.EntryPrice
		}
		if pos.SLPrice > 0 {
			slFrac = (pos.EntryPrice - pos.SLPrice) / pos.EntryPrice
		}
	}
	return tpFrac, slFrac
}

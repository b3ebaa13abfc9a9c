// Package monitor implements the Live Monitor, spec.md §4.K: a fast,
// background loop that watches open positions for external closes and
// missing protective legs, and is the sole initiator of partial closes. It
// never re-attaches missing TP/SL legs — that is the Sentinel's job — but
// after a partial close it moves the SL to breakeven through the Order
// Manager and writes the new SL order ID and price back to the position
// store. Grounded on the teacher's
// PositionCacheWorker ticker loop (internal/runner/sessions/
// position_cache_worker.go).
package monitor

import (
	"context"
	"time"

	"perpctl/internal/exchange"
	"perpctl/internal/models"
	"perpctl/internal/orders"
	"perpctl/internal/positions"

	"perpctl/pkg/logger"
)

const (
	pollInterval   = 5 * time.Second
	logDebounce    = 60 * time.Second
)

// ClosedExternally is handed to the orchestrator when the Live Monitor
// observes a position has gone flat on the venue without the Order Manager
// having initiated the close (spec.md §4.K: "PositionClosedExternally").
type ClosedExternally struct {
	Position models.Position
}

// Monitor polls the venue every 5s for each known position's amount and
// open orders.
type Monitor struct {
	gw      exchange.Gateway
	store   *positions.Store
	mgr     *orders.Manager
	symbols map[string]models.Symbol

	lastLogAt map[string]time.Time
	missingTPSL map[string]bool

	Closed chan ClosedExternally

	// Heartbeat, if set, is called after every sweep so a liveness probe
	// can tell the loop is still running.
	Heartbeat func(time.Time)
}

func NewMonitor(gw exchange.Gateway, store *positions.Store, mgr *orders.Manager, symbols map[string]models.Symbol) *Monitor {
	return &Monitor{
		gw:          gw,
		store:       store,
		mgr:         mgr,
		symbols:     symbols,
		lastLogAt:   make(map[string]time.Time),
		missingTPSL: make(map[string]bool),
		Closed:      make(chan ClosedExternally, 16),
	}
}

// Run blocks, polling until ctx is cancelled. Intended to be started as a
// long-lived goroutine alongside the orchestrator's cycle loop (spec.md §5:
// "two long-lived background tasks run in parallel").
func (mon *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	mon.sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			mon.sweep(ctx)
		}
	}
}

func (mon *Monitor) sweep(ctx context.Context) {
	for _, pos := range mon.store.All() {
		mon.checkPosition(ctx, pos)
	}
	if mon.Heartbeat != nil {
		mon.Heartbeat(time.Now())
	}
}

// checkPosition implements spec.md §4.K's per-position checks: zero
// quantity means the position closed outside our control; a missing TP or
// SL is recorded in the Monitor's own missingTPSL map and logged, but never
// re-attached here (the Sentinel does not read that map); ROI above the
// partial-close threshold triggers exactly one partial close per position.
func (mon *Monitor) checkPosition(ctx context.Context, pos models.Position) {
	if pos.State == models.PositionClosed || pos.State == models.PositionClosing {
		return
	}
	symbol, ok := mon.symbols[pos.Symbol]
	if !ok {
		return
	}

	info, err := mon.gw.GetPositionInfo(ctx, pos.Symbol)
	if err != nil {
		mon.logDebounced(pos.Symbol, "live monitor: position info fetch failed for %s: %v", pos.Symbol, err)
		return
	}
	if info.PositionAmt == 0 {
		mon.store.Remove(pos.ID)
		select {
		case mon.Closed <- ClosedExternally{Position: pos}:
		default:
			logger.Error("live monitor: ClosedExternally channel full, dropping event for %s", pos.Symbol)
		}
		return
	}

	openOrders, err := mon.gw.GetOpenOrders(ctx, pos.Symbol)
	if err == nil {
		hasTP, hasSL := legsPresent(openOrders, pos)
		missing := !hasTP || !hasSL
		if missing != mon.missingTPSL[pos.ID] {
			mon.logDebounced(pos.Symbol, "live monitor: %s TP/SL presence changed: hasTP=%v hasSL=%v (observe-only, Sentinel handles re-attach)", pos.Symbol, hasTP, hasSL)
		}
		mon.missingTPSL[pos.ID] = missing
	}

	roi := orders.ROI(pos.Side, pos.EntryPrice, info.MarkPrice)
	if roi >= orders.PartialCloseROI && !pos.PartialCloseDone {
		res := mon.mgr.SchedulePartialClose(ctx, symbol, pos)
		if res.Err != nil {
			mon.logDebounced(pos.Symbol, "live monitor: partial close for %s failed: %v", pos.Symbol, res.Err)
			return
		}
		pos.PartialCloseDone = true
		slID, err := mon.mgr.MoveSLToBreakeven(ctx, symbol, pos)
		if err != nil {
			mon.logDebounced(pos.Symbol, "live monitor: breakeven SL move failed for %s: %v", pos.Symbol, err)
			mon.store.Upsert(pos)
			return
		}
		pos.SLOrderID = slID
		pos.SLPrice = orders.BreakevenSL(pos.Side, pos.EntryPrice)
		mon.store.Upsert(pos)
		mon.logDebounced(pos.Symbol, "live monitor: partial close executed for %s at roi=%.4f, SL moved to breakeven=%.8f", pos.Symbol, roi, pos.SLPrice)
	}
}

func legsPresent(openOrders []exchange.OpenOrder, pos models.Position) (hasTP, hasSL bool) {
	for _, o := range openOrders {
		if o.Symbol != pos.Symbol {
			continue
		}
		switch o.Type {
		case exchange.TypeTakeProfitMkt:
			hasTP = true
		case exchange.TypeStopMkt:
			hasSL = true
		}
	}
	return hasTP, hasSL
}

func (mon *Monitor) logDebounced(symbol, format string, args ...interface{}) {
	now := time.Now()
	if last, ok := mon.lastLogAt[symbol]; ok && now.Sub(last) < logDebounce {
		return
	}
	mon.lastLogAt[symbol] = now
	logger.Info(format, args...)
}

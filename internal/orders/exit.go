package orders

import (
	"context"
	"fmt"
	"time"

	"perpctl/internal/exchange"
	"perpctl/internal/models"

	"perpctl/pkg/logger"
)

// Close implements spec.md §4.I's exit protocol: accepted only if the
// position is OPEN/MONITORING and the 5s debounce has cleared, then
// submits a reduce-only market close for the rounded quantity, skipping
// with BelowMinimum if the rounded amount falls under the symbol's
// minimums. The debounce record is left in place on success, so a second
// attempt within the 5s window debounces instead of racing a duplicate
// close order. Nothing in the engine calls Machine.Forget, so the record
// is never dropped.
func (m *Manager) Close(ctx context.Context, symbol models.Symbol, pos models.Position, reason models.ExitReason) CloseResult {
	now := time.Now().UTC()
	if !m.machine.IsExitAllowed(pos, now) {
		return CloseResult{Err: ErrExitDebounced}
	}
	m.machine.RecordExitAttempt(pos.ID, now)

	qty := symbol.RoundQty(pos.Quantity)
	ticker, err := m.gw.GetTicker(ctx, symbol.Name)
	notional := qty * pos.EntryPrice
	if err == nil {
		notional = qty * ticker.LastPrice
	}
	minNotional := symbol.MinNotional
	if minNotional == 0 {
		minNotional = defaultMinNotional
	}
	if qty < symbol.MinQty || notional < minNotional {
		return CloseResult{Err: ErrBelowMinimum}
	}

	closeSide := exchange.Sell
	if pos.Side == models.SideShort {
		closeSide = exchange.Buy
	}
	res, err := m.gw.PlaceOrder(ctx, exchange.OrderParams{
		Symbol: symbol.Name, Side: closeSide, Type: exchange.TypeMarket,
		Quantity: qty, ReduceOnly: true,
	})
	if err != nil {
		logger.Error("close order failed for %s reason=%s: %v", symbol.Name, reason, err)
		return CloseResult{Err: err}
	}
	_ = res
	m.mutex.RecordExit(symbol.Name, now)

	exitPrice := pos.EntryPrice
	if err == nil {
		exitPrice = ticker.LastPrice
	}
	return CloseResult{ExitPrice: exitPrice, Quantity: qty, Reason: reason}
}

// SchedulePartialClose implements spec.md §4.I's partial-close rule:
// triggered by the Live Monitor at ROI >= +0.3%, closes half the current
// quantity. It does not move the SL; on success the Live Monitor calls
// MoveSLToBreakeven itself. Only one partial per position is allowed; a
// position with PartialCloseDone set is rejected.
func (m *Manager) SchedulePartialClose(ctx context.Context, symbol models.Symbol, pos models.Position) CloseResult {
	if pos.PartialCloseDone {
		return CloseResult{Err: ErrBelowMinimum}
	}
	fraction := partialCloseFraction
	partialQty := symbol.RoundQty(pos.Quantity * fraction)
	if partialQty <= 0 {
		return CloseResult{Err: ErrBelowMinimum}
	}

	closeSide := exchange.Sell
	if pos.Side == models.SideShort {
		closeSide = exchange.Buy
	}
	res, err := m.gw.PlaceOrder(ctx, exchange.OrderParams{
		Symbol: symbol.Name, Side: closeSide, Type: exchange.TypeMarket,
		Quantity: partialQty, ReduceOnly: true,
	})
	if err != nil {
		return CloseResult{Err: err}
	}
	_ = res
	return CloseResult{Quantity: partialQty, Reason: models.ExitPartial}
}

// MoveSLToBreakeven cancels the position's existing SL order and replaces
// it with one at breakeven (+ small buffer), the venue-side action the
// Live Monitor's partial-close path schedules (spec.md §4.I: "schedules a
// move of the SL to breakeven"). An already-gone SL order (CodeUnknownOrder)
// is treated as already cancelled rather than an error.
func (m *Manager) MoveSLToBreakeven(ctx context.Context, symbol models.Symbol, pos models.Position) (string, error) {
	breakeven := symbol.RoundPrice(BreakevenSL(pos.Side, pos.EntryPrice), pos.EntryPrice, slDirection(pos.Side))

	if pos.SLOrderID != "" {
		if err := m.gw.CancelOrder(ctx, symbol.Name, pos.SLOrderID); err != nil {
			if me, ok := err.(*exchange.MappedError); !ok || me.Code != exchange.CodeUnknownOrder {
				return "", fmt.Errorf("cancel sl: %w", err)
			}
		}
	}

	closeSide := exchange.Sell
	if pos.Side == models.SideShort {
		closeSide = exchange.Buy
	}
	slID, err := m.attachLeg(ctx, symbol, closeSide, exchange.TypeStopMkt, breakeven, pos.Quantity)
	if err != nil {
		return "", fmt.Errorf("attach breakeven sl: %w", err)
	}
	return slID, nil
}

// BreakevenSL computes the breakeven-plus-buffer stop used after a partial
// close succeeds (spec.md §4.I: "schedules a move of the SL to breakeven (+
// small buffer)").
func BreakevenSL(side models.Side, entry float64) float64 {
	if side == models.SideShort {
		return entry * (1 - breakevenBuffer)
	}
	return entry * (1 + breakevenBuffer)
}

// ROI returns the unrealized return on a position given the current mark
// price; used by the Live Monitor to decide when to trigger a partial
// close.
func ROI(side models.Side, entry, mark float64) float64 {
	if entry == 0 {
		return 0
	}
	if side == models.SideShort {
		return (entry - mark) / entry
	}
	return (mark - entry) / entry
}

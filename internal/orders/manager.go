// Package orders implements the Order Manager, spec.md §4.I's "hardest
// subsystem": the entry protocol, TP/SL attach with direction-rule safety,
// the exit protocol, and partial closes.
package orders

import (
	"context"
	"fmt"
	"time"

	"perpctl/internal/exchange"
	"perpctl/internal/models"
	"perpctl/internal/state"

	"perpctl/pkg/logger"
)

const (
	sameDirectionCooldown = 15 * time.Minute
	reversalCooldown      = 10 * time.Minute
	duplicateGuardDebounce = 2500 * time.Millisecond
	confirmationTimeout    = 2 * time.Second
	confirmationPoll       = 200 * time.Millisecond
	defaultMinNotional     = 10.0
	PartialCloseROI        = 0.003
	partialCloseFraction   = 0.5
	breakevenBuffer        = 0.0005
)

var (
	ErrEntryCooldown     = fmt.Errorf("orders: entry blocked by cooldown")
	ErrEntryUnconfirmed  = fmt.Errorf("orders: EntryUnconfirmed")
	ErrInvalidGeometry   = fmt.Errorf("orders: InvalidTpslGeometry")
	ErrBelowMinimum      = fmt.Errorf("orders: BelowMinimum")
	ErrExitDebounced     = fmt.Errorf("orders: exit attempt debounced")
	ErrTpslIncomplete    = fmt.Errorf("orders: TpslIncomplete")
)

// EntryResult is what submit_entry hands back (spec.md §4.I).
type EntryResult struct {
	Position models.Position
	Err      error
}

// CloseResult is what close/schedule_partial_close hand back.
type CloseResult struct {
	ExitPrice float64
	Quantity  float64
	Reason    models.ExitReason
	Err       error
}

// Manager is the Order Manager. It is the only component that places or
// cancels venue orders; the Live Monitor and Sentinel call into it for
// that and use the gateway directly only for reads.
type Manager struct {
	gw      exchange.Gateway
	machine *state.Machine
	mutex   *SymbolGuard
}

func NewManager(gw exchange.Gateway, machine *state.Machine, guard *SymbolGuard) *Manager {
	return &Manager{gw: gw, machine: machine, mutex: guard}
}

// SubmitEntry runs the entry protocol of spec.md §4.I steps 1-9. It
// acquires the per-symbol mutex through the Manager's SymbolGuard itself
// and holds it for the whole call; the caller does not lock.
func (m *Manager) SubmitEntry(ctx context.Context, symbol models.Symbol, side models.Side, quantity float64, leverage int, decisionRef string, hasOpenSameDirection bool) EntryResult {
	unlock := m.mutex.Acquire(symbol.Name)
	defer unlock()

	now := time.Now().UTC()
	if reason := m.mutex.CheckCooldown(symbol.Name, side, now); reason != "" {
		return EntryResult{Err: fmt.Errorf("%w: %s", ErrEntryCooldown, reason)}
	}
	if hasOpenSameDirection {
		if m.mutex.ShouldLogDuplicateConflict(symbol.Name, now) {
			logger.Error("duplicate entry conflict for %s side=%s: open position already exists", symbol.Name, side)
		}
		return EntryResult{Err: fmt.Errorf("orders: duplicate same-direction entry for %s", symbol.Name)}
	}

	if err := m.gw.SetLeverage(ctx, symbol.Name, leverage); err != nil {
		return EntryResult{Err: fmt.Errorf("set leverage: %w", err)}
	}

	orderSide := exchange.Buy
	if side == models.SideShort {
		orderSide = exchange.Sell
	}
	if _, err := m.gw.PlaceOrder(ctx, exchange.OrderParams{
		Symbol: symbol.Name, Side: orderSide, Type: exchange.TypeMarket, Quantity: quantity,
	}); err != nil {
		return EntryResult{Err: fmt.Errorf("market entry: %w", err)}
	}

	info, ok := m.waitForPositionConfirmation(ctx, symbol.Name, side)
	if !ok {
		return EntryResult{Err: ErrEntryUnconfirmed}
	}

	pos := models.Position{
		ID:          newPositionID(),
		Symbol:      symbol.Name,
		Side:        side,
		Quantity:    quantity,
		EntryPrice:  info.EntryPrice,
		Leverage:    leverage,
		OpenedAt:    now,
		State:       models.PositionOpen,
		DecisionRef: decisionRef,
	}
	m.mutex.RecordEntry(symbol.Name, side, now)
	return EntryResult{Position: pos}
}

// waitForPositionConfirmation polls get_position_info until the venue shows
// a non-zero position matching the expected side, per spec.md §4.I step 5.
func (m *Manager) waitForPositionConfirmation(ctx context.Context, symbol string, side models.Side) (exchange.PositionInfo, bool) {
	deadline := time.Now().Add(confirmationTimeout)
	for time.Now().Before(deadline) {
		info, err := m.gw.GetPositionInfo(ctx, symbol)
		if err == nil && matchesSide(info.PositionAmt, side) {
			return info, true
		}
		select {
		case <-ctx.Done():
			return exchange.PositionInfo{}, false
		case <-time.After(confirmationPoll):
		}
	}
	return exchange.PositionInfo{}, false
}

func matchesSide(positionAmt float64, side models.Side) bool {
	switch side {
	case models.SideLong:
		return positionAmt > 0
	case models.SideShort:
		return positionAmt < 0
	default:
		return false
	}
}

func newPositionID() string {
	return fmt.Sprintf("pos_%d", time.Now().UnixNano())
}

// AttachTPSL computes TP/SL prices, verifies the direction rule, dedups
// against the active hash, and attaches both legs (spec.md §4.I steps 6-9).
// On InvalidTpslGeometry the caller is responsible for closing the position
// immediately as a safety action (this function only reports the error).
func (m *Manager) AttachTPSL(ctx context.Context, symbol models.Symbol, pos models.Position, tpFrac, slFrac float64) (tpID, slID string, err error) {
	tp, sl := ComputeTPSL(pos.Side, pos.EntryPrice, tpFrac, slFrac)
	tp = symbol.RoundPrice(tp, pos.EntryPrice, tpDirection(pos.Side))
	sl = symbol.RoundPrice(sl, pos.EntryPrice, slDirection(pos.Side))

	if !ValidGeometry(pos.Side, pos.EntryPrice, tp, sl) {
		logger.Error("invalid tpsl geometry for %s side=%s entry=%.8f tp=%.8f sl=%.8f", symbol.Name, pos.Side, pos.EntryPrice, tp, sl)
		return "", "", ErrInvalidGeometry
	}

	hash := models.TPSLHash(symbol.Name, pos.Side, tp, sl)
	if m.machine.IsTpslDuplicate(pos.ID, hash) {
		return pos.TPOrderID, pos.SLOrderID, nil
	}

	closeSide := exchange.Sell
	if pos.Side == models.SideShort {
		closeSide = exchange.Buy
	}

	tpID, err = m.attachLeg(ctx, symbol, closeSide, exchange.TypeTakeProfitMkt, tp, pos.Quantity)
	if err != nil {
		return "", "", fmt.Errorf("attach tp: %w", err)
	}
	slID, err = m.attachLeg(ctx, symbol, closeSide, exchange.TypeStopMkt, sl, pos.Quantity)
	if err != nil {
		return tpID, "", fmt.Errorf("attach sl: %w", err)
	}

	haveTP, haveSL := m.checkLegs(ctx, symbol.Name, tpID, slID)
	if !haveTP || !haveSL {
		// retry the missing leg once before declaring TpslIncomplete
		// (spec.md §4.I step 9).
		if !haveTP {
			if retryID, retryErr := m.attachLeg(ctx, symbol, closeSide, exchange.TypeTakeProfitMkt, tp, pos.Quantity); retryErr == nil {
				tpID = retryID
			}
		}
		if !haveSL {
			if retryID, retryErr := m.attachLeg(ctx, symbol, closeSide, exchange.TypeStopMkt, sl, pos.Quantity); retryErr == nil {
				slID = retryID
			}
		}
		haveTP, haveSL = m.checkLegs(ctx, symbol.Name, tpID, slID)
		if !haveTP || !haveSL {
			return tpID, slID, ErrTpslIncomplete
		}
	}

	m.machine.SetActiveHash(pos.ID, hash)
	return tpID, slID, nil
}

// attachLeg places a protective order in closePosition mode first; on
// -1106 ("reduceOnly sent when not required") it retries once in the
// reduceOnly+quantity fallback mode (spec.md §4.I step 8).
func (m *Manager) attachLeg(ctx context.Context, symbol models.Symbol, side exchange.OrderSide, typ exchange.OrderType, stopPrice, qty float64) (string, error) {
	res, err := m.gw.PlaceOrder(ctx, exchange.OrderParams{
		Symbol: symbol.Name, Side: side, Type: typ, StopPrice: stopPrice,
		ClosePosition: true, WorkingType: "MARK_PRICE",
	})
	if err == nil {
		return res.OrderID, nil
	}
	if me, ok := err.(*exchange.MappedError); ok && me.Code == exchange.CodeReduceOnlyNotNeeded {
		res, err = m.gw.PlaceOrder(ctx, exchange.OrderParams{
			Symbol: symbol.Name, Side: side, Type: typ, StopPrice: stopPrice,
			ReduceOnly: true, Quantity: symbol.RoundQty(qty), WorkingType: "MARK_PRICE",
		})
		if err != nil {
			return "", err
		}
		return res.OrderID, nil
	}
	return "", err
}

func (m *Manager) checkLegs(ctx context.Context, symbol, tpID, slID string) (haveTP, haveSL bool) {
	orders, err := m.gw.GetOpenOrders(ctx, symbol)
	if err != nil {
		return false, false
	}
	for _, o := range orders {
		if o.OrderID == tpID {
			haveTP = true
		}
		if o.OrderID == slID {
			haveSL = true
		}
	}
	return haveTP, haveSL
}

func tpDirection(side models.Side) int {
	if side == models.SideLong {
		return +1
	}
	return -1
}

func slDirection(side models.Side) int {
	if side == models.SideLong {
		return -1
	}
	return +1
}

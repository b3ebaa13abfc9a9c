package sentinel

import (
	"context"
	"testing"

	"perpctl/internal/exchange"
	"perpctl/internal/models"
	"perpctl/internal/orders"
	"perpctl/internal/positions"
	"perpctl/internal/state"
)

type stubGateway struct {
	placeErr  error
	openOrders []exchange.OpenOrder
	orderSeq  int
}

func (g *stubGateway) GetKlines(ctx context.Context, symbol, interval string, limit int) ([]exchange.Kline, error) {
	return nil, nil
}
func (g *stubGateway) GetTicker(ctx context.Context, symbol string) (exchange.Ticker, error) {
	return exchange.Ticker{Symbol: symbol}, nil
}
func (g *stubGateway) GetOpenOrders(ctx context.Context, symbol string) ([]exchange.OpenOrder, error) {
	return g.openOrders, nil
}
func (g *stubGateway) GetPositionInfo(ctx context.Context, symbol string) (exchange.PositionInfo, error) {
	return exchange.PositionInfo{Symbol: symbol}, nil
}
func (g *stubGateway) GetBalance(ctx context.Context) ([]exchange.Balance, error) { return nil, nil }
func (g *stubGateway) PlaceOrder(ctx context.Context, params exchange.OrderParams) (exchange.OrderResult, error) {
	if g.placeErr != nil {
		return exchange.OrderResult{}, g.placeErr
	}
	g.orderSeq++
	id := "ord" + string(rune('0'+g.orderSeq))
	g.openOrders = append(g.openOrders, exchange.OpenOrder{OrderID: id, Symbol: params.Symbol, Type: params.Type})
	return exchange.OrderResult{OrderID: id, Status: "live"}, nil
}
func (g *stubGateway) CancelOrder(ctx context.Context, symbol, orderID string) error { return nil }
func (g *stubGateway) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	return nil
}
func (g *stubGateway) GetFilters(ctx context.Context, symbol string) (exchange.Filters, error) {
	return exchange.Filters{}, nil
}

var _ exchange.Gateway = (*stubGateway)(nil)

func testSymbolMap() map[string]models.Symbol {
	return map[string]models.Symbol{
		"BTC-USDT": {Name: "BTC-USDT", TickSize: 0.1, StepSize: 0.001, MinQty: 0.001, MinNotional: 10},
	}
}

func testPosition() models.Position {
	return models.Position{
		ID: "p1", Symbol: "BTC-USDT", Side: models.SideLong, Quantity: 1,
		EntryPrice: 100, TPPrice: 102, SLPrice: 99, State: models.PositionMonitoring,
	}
}

func TestCheckAndRepair_SkipsPositionsWithBothLegs(t *testing.T) {
	gw := &stubGateway{}
	store := positions.NewStore()
	mgr := orders.NewManager(gw, state.NewMachine(), orders.NewSymbolGuard())
	s := NewSentinel(gw, store, mgr, testSymbolMap())

	pos := testPosition()
	pos.TPOrderID = "tp1"
	pos.SLOrderID = "sl1"
	s.checkAndRepair(context.Background(), pos)

	if len(gw.openOrders) != 0 {
		t.Error("expected no repair attempt when both legs already present")
	}
}

func TestCheckAndRepair_ReattachesMissingLegs(t *testing.T) {
	gw := &stubGateway{}
	store := positions.NewStore()
	mgr := orders.NewManager(gw, state.NewMachine(), orders.NewSymbolGuard())
	s := NewSentinel(gw, store, mgr, testSymbolMap())

	pos := testPosition()
	s.checkAndRepair(context.Background(), pos)

	updated, ok := store.Get(pos.ID)
	if !ok {
		t.Fatal("expected position written back to the store")
	}
	if updated.TPOrderID == "" || updated.SLOrderID == "" {
		t.Error("expected both TP and SL order IDs populated after repair")
	}
}

func TestCheckAndRepair_DebouncesRepeatedAttempts(t *testing.T) {
	gw := &stubGateway{}
	store := positions.NewStore()
	mgr := orders.NewManager(gw, state.NewMachine(), orders.NewSymbolGuard())
	s := NewSentinel(gw, store, mgr, testSymbolMap())

	pos := testPosition()
	s.checkAndRepair(context.Background(), pos)
	ordersAfterFirst := len(gw.openOrders)

	// Immediately retrying the same still-legless position should be
	// debounced: neither the 60s time window nor the 3-cycle window has
	// elapsed.
	pos.TPOrderID, pos.SLOrderID = "", ""
	s.checkAndRepair(context.Background(), pos)
	if len(gw.openOrders) != ordersAfterFirst {
		t.Error("expected second immediate attempt to be debounced")
	}
}

func TestTpslFractionsFor_Long(t *testing.T) {
	pos := testPosition()
	tpFrac, slFrac := tpslFractionsFor(pos)
	if tpFrac <= 0 || slFrac <= 0 {
		t.Errorf("tpFrac=%v slFrac=%v, want both positive", tpFrac, slFrac)
	}
}

func TestTpslFractionsFor_Short(t *testing.T) {
	pos := testPosition()
	pos.Side = models.SideShort
	pos.TPPrice = 98
	pos.SLPrice = 101
	tpFrac, slFrac := tpslFractionsFor(pos)
	if tpFrac <= 0 || slFrac <= 0 {
		t.Errorf("tpFrac=%v slFrac=%v, want both positive", tpFrac, slFrac)
	}
}

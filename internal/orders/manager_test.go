package orders

import (
	"context"
	"testing"

	"perpctl/internal/exchange"
	"perpctl/internal/models"
	"perpctl/internal/state"
)

// fakeGateway is a minimal in-memory exchange.Gateway for Order Manager
// tests; it never talks to the network.
type fakeGateway struct {
	positionAmt float64
	entryPrice  float64
	orderSeq    int
	openOrders  []exchange.OpenOrder
	placeErr    error

	// hideSLFirstCall/hideSLAlways simulate a protective leg that hasn't
	// confirmed on the venue yet when GetOpenOrders is polled.
	hideSLFirstCall    bool
	hideSLAlways       bool
	getOpenOrdersCalls int

	lastCancelledOrderID string
}

func (f *fakeGateway) GetKlines(ctx context.Context, symbol, interval string, limit int) ([]exchange.Kline, error) {
	return nil, nil
}
func (f *fakeGateway) GetTicker(ctx context.Context, symbol string) (exchange.Ticker, error) {
	return exchange.Ticker{Symbol: symbol, LastPrice: f.entryPrice}, nil
}
func (f *fakeGateway) GetOpenOrders(ctx context.Context, symbol string) ([]exchange.OpenOrder, error) {
	f.getOpenOrdersCalls++
	if f.hideSLAlways || (f.hideSLFirstCall && f.getOpenOrdersCalls == 1) {
		var filtered []exchange.OpenOrder
		for _, o := range f.openOrders {
			if o.Type != exchange.TypeStopMkt {
				filtered = append(filtered, o)
			}
		}
		return filtered, nil
	}
	return f.openOrders, nil
}
func (f *fakeGateway) GetPositionInfo(ctx context.Context, symbol string) (exchange.PositionInfo, error) {
	return exchange.PositionInfo{Symbol: symbol, PositionAmt: f.positionAmt, EntryPrice: f.entryPrice}, nil
}
func (f *fakeGateway) GetBalance(ctx context.Context) ([]exchange.Balance, error) { return nil, nil }
func (f *fakeGateway) PlaceOrder(ctx context.Context, params exchange.OrderParams) (exchange.OrderResult, error) {
	if f.placeErr != nil {
		return exchange.OrderResult{}, f.placeErr
	}
	f.orderSeq++
	id := "ord" + string(rune('0'+f.orderSeq))
	f.openOrders = append(f.openOrders, exchange.OpenOrder{OrderID: id, Symbol: params.Symbol, Type: params.Type})
	return exchange.OrderResult{OrderID: id, Status: "live"}, nil
}
func (f *fakeGateway) CancelOrder(ctx context.Context, symbol, orderID string) error {
	f.lastCancelledOrderID = orderID
	return nil
}
func (f *fakeGateway) SetLeverage(ctx context.Context, symbol string, leverage int) error { return nil }
func (f *fakeGateway) GetFilters(ctx context.Context, symbol string) (exchange.Filters, error) {
	return exchange.Filters{}, nil
}

var _ exchange.Gateway = (*fakeGateway)(nil)

func testSymbol() models.Symbol {
	return models.Symbol{Name: "BTC-USDT", TickSize: 0.1, StepSize: 0.001, MinQty: 0.001, MinNotional: 10}
}

func TestSubmitEntry_ConfirmsPositionAndRecords(t *testing.T) {
	fg := &fakeGateway{positionAmt: 1.0, entryPrice: 100}
	mgr := NewManager(fg, state.NewMachine(), NewSymbolGuard())
	result := mgr.SubmitEntry(context.Background(), testSymbol(), models.SideLong, 1.0, 2, "dec1", false)
	if result.Err != nil {
		t.Fatalf("SubmitEntry error: %v", result.Err)
	}
	if result.Position.State != models.PositionOpen {
		t.Errorf("State = %v, want OPEN", result.Position.State)
	}
}

func TestSubmitEntry_UnconfirmedWhenPositionNeverAppears(t *testing.T) {
	fg := &fakeGateway{positionAmt: 0, entryPrice: 100}
	mgr := NewManager(fg, state.NewMachine(), NewSymbolGuard())
	result := mgr.SubmitEntry(context.Background(), testSymbol(), models.SideLong, 1.0, 2, "dec1", false)
	if result.Err != ErrEntryUnconfirmed {
		t.Errorf("err = %v, want ErrEntryUnconfirmed", result.Err)
	}
}

func TestSubmitEntry_RejectsDuplicateSameDirection(t *testing.T) {
	fg := &fakeGateway{positionAmt: 1.0, entryPrice: 100}
	mgr := NewManager(fg, state.NewMachine(), NewSymbolGuard())
	result := mgr.SubmitEntry(context.Background(), testSymbol(), models.SideLong, 1.0, 2, "dec1", true)
	if result.Err == nil {
		t.Fatal("expected duplicate-entry rejection")
	}
}

func TestAttachTPSL_AttachesBothLegs(t *testing.T) {
	fg := &fakeGateway{entryPrice: 100}
	machine := state.NewMachine()
	mgr := NewManager(fg, machine, NewSymbolGuard())
	pos := models.Position{ID: "p1", Symbol: "BTC-USDT", Side: models.SideLong, EntryPrice: 100, Quantity: 1}

	tpID, slID, err := mgr.AttachTPSL(context.Background(), testSymbol(), pos, 0.02, 0.01)
	if err != nil {
		t.Fatalf("AttachTPSL error: %v", err)
	}
	if tpID == "" || slID == "" {
		t.Fatal("expected both leg IDs populated")
	}
}

func TestAttachTPSL_DuplicateHashSkipsReattach(t *testing.T) {
	fg := &fakeGateway{entryPrice: 100}
	machine := state.NewMachine()
	mgr := NewManager(fg, machine, NewSymbolGuard())
	pos := models.Position{ID: "p1", Symbol: "BTC-USDT", Side: models.SideLong, EntryPrice: 100, Quantity: 1}

	_, _, err := mgr.AttachTPSL(context.Background(), testSymbol(), pos, 0.02, 0.01)
	if err != nil {
		t.Fatalf("first attach failed: %v", err)
	}
	ordersBefore := len(fg.openOrders)
	_, _, err = mgr.AttachTPSL(context.Background(), testSymbol(), pos, 0.02, 0.01)
	if err != nil {
		t.Fatalf("second attach failed: %v", err)
	}
	if len(fg.openOrders) != ordersBefore {
		t.Errorf("expected no new orders on duplicate hash, got %d new", len(fg.openOrders)-ordersBefore)
	}
}

func TestAttachTPSL_RetriesMissingLegOnce(t *testing.T) {
	fg := &fakeGateway{entryPrice: 100, hideSLFirstCall: true}
	machine := state.NewMachine()
	mgr := NewManager(fg, machine, NewSymbolGuard())
	pos := models.Position{ID: "p1", Symbol: "BTC-USDT", Side: models.SideLong, EntryPrice: 100, Quantity: 1}

	tpID, slID, err := mgr.AttachTPSL(context.Background(), testSymbol(), pos, 0.02, 0.01)
	if err != nil {
		t.Fatalf("AttachTPSL error: %v", err)
	}
	if tpID == "" || slID == "" {
		t.Fatal("expected both leg IDs populated after the one-time retry")
	}
	slCount := 0
	for _, o := range fg.openOrders {
		if o.Type == exchange.TypeStopMkt {
			slCount++
		}
	}
	if slCount != 2 {
		t.Errorf("expected the retry to place a second SL order, got %d SL orders", slCount)
	}
}

func TestAttachTPSL_IncompleteWhenRetryAlsoFails(t *testing.T) {
	fg := &fakeGateway{entryPrice: 100, hideSLAlways: true}
	machine := state.NewMachine()
	mgr := NewManager(fg, machine, NewSymbolGuard())
	pos := models.Position{ID: "p1", Symbol: "BTC-USDT", Side: models.SideLong, EntryPrice: 100, Quantity: 1}

	_, _, err := mgr.AttachTPSL(context.Background(), testSymbol(), pos, 0.02, 0.01)
	if err != ErrTpslIncomplete {
		t.Errorf("err = %v, want ErrTpslIncomplete", err)
	}
}

func TestMoveSLToBreakeven_CancelsAndReplacesSL(t *testing.T) {
	fg := &fakeGateway{entryPrice: 100}
	mgr := NewManager(fg, state.NewMachine(), NewSymbolGuard())
	pos := models.Position{ID: "p1", Symbol: "BTC-USDT", Side: models.SideLong, EntryPrice: 100, Quantity: 1, SLOrderID: "old-sl"}

	newID, err := mgr.MoveSLToBreakeven(context.Background(), testSymbol(), pos)
	if err != nil {
		t.Fatalf("MoveSLToBreakeven error: %v", err)
	}
	if newID == "" {
		t.Fatal("expected a new SL order id")
	}
	if fg.lastCancelledOrderID != "old-sl" {
		t.Errorf("lastCancelledOrderID = %q, want %q", fg.lastCancelledOrderID, "old-sl")
	}
}

func TestClose_SkipsBelowMinimum(t *testing.T) {
	fg := &fakeGateway{entryPrice: 100}
	mgr := NewManager(fg, state.NewMachine(), NewSymbolGuard())
	pos := models.Position{ID: "p1", Symbol: "BTC-USDT", Side: models.SideLong, EntryPrice: 100, Quantity: 0.0001, State: models.PositionMonitoring}

	res := mgr.Close(context.Background(), testSymbol(), pos, models.ExitManual)
	if res.Err != ErrBelowMinimum {
		t.Errorf("err = %v, want ErrBelowMinimum", res.Err)
	}
}

func TestClose_DebouncesRepeatedAttempts(t *testing.T) {
	fg := &fakeGateway{entryPrice: 100}
	mgr := NewManager(fg, state.NewMachine(), NewSymbolGuard())
	pos := models.Position{ID: "p1", Symbol: "BTC-USDT", Side: models.SideLong, EntryPrice: 100, Quantity: 1, State: models.PositionMonitoring}

	first := mgr.Close(context.Background(), testSymbol(), pos, models.ExitManual)
	if first.Err != nil {
		t.Fatalf("first close failed: %v", first.Err)
	}
	second := mgr.Close(context.Background(), testSymbol(), pos, models.ExitManual)
	if second.Err != ErrExitDebounced {
		t.Errorf("err = %v, want ErrExitDebounced", second.Err)
	}
}

func TestSchedulePartialClose_RejectsIfAlreadyDone(t *testing.T) {
	fg := &fakeGateway{entryPrice: 100}
	mgr := NewManager(fg, state.NewMachine(), NewSymbolGuard())
	pos := models.Position{ID: "p1", Symbol: "BTC-USDT", Side: models.SideLong, Quantity: 1, PartialCloseDone: true}

	res := mgr.SchedulePartialClose(context.Background(), testSymbol(), pos)
	if res.Err == nil {
		t.Fatal("expected error when partial close already done")
	}
}

func TestSchedulePartialClose_ClosesHalfQuantity(t *testing.T) {
	fg := &fakeGateway{entryPrice: 100}
	mgr := NewManager(fg, state.NewMachine(), NewSymbolGuard())
	pos := models.Position{ID: "p1", Symbol: "BTC-USDT", Side: models.SideLong, Quantity: 1}

	res := mgr.SchedulePartialClose(context.Background(), testSymbol(), pos)
	if res.Err != nil {
		t.Fatalf("SchedulePartialClose error: %v", res.Err)
	}
	if res.Quantity != 0.5 {
		t.Errorf("Quantity = %v, want 0.5", res.Quantity)
	}
}

package orchestrator

import (
	"context"
	"testing"
	"time"

	"perpctl/internal/breaker"
	"perpctl/internal/confidence"
	"perpctl/internal/csvlog"
	"perpctl/internal/decision"
	"perpctl/internal/equity"
	"perpctl/internal/exchange"
	"perpctl/internal/feedback"
	"perpctl/internal/marketdata"
	"perpctl/internal/models"
	"perpctl/internal/orders"
	"perpctl/internal/positions"
	"perpctl/internal/risk"
	"perpctl/internal/state"
)

type stubGateway struct {
	klines      []exchange.Kline
	ticker      exchange.Ticker
	positionAmt float64
}

func (g *stubGateway) GetKlines(ctx context.Context, symbol, interval string, limit int) ([]exchange.Kline, error) {
	return g.klines, nil
}
func (g *stubGateway) GetTicker(ctx context.Context, symbol string) (exchange.Ticker, error) {
	t := g.ticker
	t.Symbol = symbol
	return t, nil
}
func (g *stubGateway) GetOpenOrders(ctx context.Context, symbol string) ([]exchange.OpenOrder, error) {
	return nil, nil
}
func (g *stubGateway) GetPositionInfo(ctx context.Context, symbol string) (exchange.PositionInfo, error) {
	return exchange.PositionInfo{Symbol: symbol, PositionAmt: g.positionAmt}, nil
}
func (g *stubGateway) GetBalance(ctx context.Context) ([]exchange.Balance, error) {
	return []exchange.Balance{{Asset: "USDT", Total: 10000, AvailableBalance: 10000}}, nil
}
func (g *stubGateway) PlaceOrder(ctx context.Context, params exchange.OrderParams) (exchange.OrderResult, error) {
	return exchange.OrderResult{OrderID: "ord1", Status: "live"}, nil
}
func (g *stubGateway) CancelOrder(ctx context.Context, symbol, orderID string) error { return nil }
func (g *stubGateway) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	return nil
}
func (g *stubGateway) GetFilters(ctx context.Context, symbol string) (exchange.Filters, error) {
	return exchange.Filters{}, nil
}

var _ exchange.Gateway = (*stubGateway)(nil)

type memPeakStore struct{ peak float64 }

func (m *memPeakStore) LoadPeak() (float64, error)    { return m.peak, nil }
func (m *memPeakStore) SavePeak(peak float64) error { m.peak = peak; return nil }

type recordingNotifier struct{ sent []string }

func (n *recordingNotifier) Send(msg string) { n.sent = append(n.sent, msg) }
func (n *recordingNotifier) Sendf(format string, args ...any) {
	n.sent = append(n.sent, format)
}

func flatKlines(n int, price float64) []exchange.Kline {
	out := make([]exchange.Kline, 0, n)
	now := time.Now()
	for i := 0; i < n; i++ {
		out = append(out, exchange.Kline{
			OpenTime: now.Add(-time.Duration(n-i) * time.Minute),
			Open: price, High: price, Low: price, Close: price, Volume: 1,
			CloseTime: now.Add(-time.Duration(n-i-1) * time.Minute),
		})
	}
	return out
}

func newTestOrchestrator(t *testing.T, gw exchange.Gateway, notifier *recordingNotifier) *Orchestrator {
	t.Helper()
	guard := orders.NewSymbolGuard()
	mgr := orders.NewManager(gw, state.NewMachine(), guard)
	reconciler, err := equity.NewReconciler(&memPeakStore{})
	if err != nil {
		t.Fatalf("NewReconciler: %v", err)
	}
	csvDir := t.TempDir()
	csvLogger, err := csvlog.NewLogger(csvDir)
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}

	symbols := map[string]models.Symbol{
		"BTC-USDT": {Name: "BTC-USDT", TickSize: 0.1, StepSize: 0.001, MinQty: 0.001, MinNotional: 10},
	}
	agents := map[string]models.Agent{
		"trend-btc": {AgentID: "trend-btc", Symbol: "BTC-USDT", StyleTag: "trend_following", BaseWeight: 1.0, PerformanceMultiplier: 1.0},
	}

	return New(Deps{
		Gateway: gw, Cache: marketdata.NewCache(gw), Breakers: breaker.NewRegistry(),
		Provider: decision.NewProvider(decision.StrategyFactory("trend_following")),
		Normalizer: confidence.NewNormalizer(), RiskConfig: risk.DefaultConfig(),
		Leverage: risk.NewLeverageGovernor(), Guard: guard, Manager: mgr,
		Store: positions.NewStore(), DecisionLog: feedback.NewDecisionLog(),
		Reconciler: reconciler, CSV: csvLogger, Notifier: notifier,
		Symbols: symbols, Agents: agents,
	})
}

func TestRunCycle_CompletesWithoutError(t *testing.T) {
	gw := &stubGateway{
		klines: flatKlines(60, 100),
		ticker: exchange.Ticker{LastPrice: 100, MarkPrice: 100, BestBid: 99.95, BestAsk: 100.05},
	}
	o := newTestOrchestrator(t, gw, &recordingNotifier{})

	if err := o.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle error: %v", err)
	}
	if o.cycle != 1 {
		t.Errorf("cycle = %d, want 1", o.cycle)
	}
}

func TestRunCycle_WidePausesEntriesViaQuoteSpreadBreaker(t *testing.T) {
	gw := &stubGateway{
		klines: flatKlines(60, 100),
		ticker: exchange.Ticker{LastPrice: 100, MarkPrice: 100, BestBid: 90, BestAsk: 110},
	}
	o := newTestOrchestrator(t, gw, &recordingNotifier{})

	if err := o.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle error: %v", err)
	}
	paused, reason := o.breakers.EntriesPaused("BTC-USDT", time.Now())
	if !paused {
		t.Error("expected quote-spread breaker to pause entries")
	}
	if reason == "" {
		t.Error("expected a non-empty trip reason")
	}
}

func TestDecisionRefFor_PicksContributingAgentsDecision(t *testing.T) {
	intent := models.Intent{ContributingAgents: []string{"trend-btc"}}
	decisions := []models.Decision{
		{ID: "d1", AgentID: "other"},
		{ID: "d2", AgentID: "trend-btc"},
	}
	if got := decisionRefFor(intent, decisions); got != "d2" {
		t.Errorf("decisionRefFor = %q, want d2", got)
	}
}

func TestDecisionRefFor_NoContributingAgentsReturnsEmpty(t *testing.T) {
	if got := decisionRefFor(models.Intent{}, nil); got != "" {
		t.Errorf("decisionRefFor = %q, want empty", got)
	}
}

func TestHandleClose_UpdatesRealizedPnLAndRemovesPosition(t *testing.T) {
	gw := &stubGateway{ticker: exchange.Ticker{LastPrice: 110}}
	o := newTestOrchestrator(t, gw, &recordingNotifier{})
	pos := models.Position{
		ID: "p1", Symbol: "BTC-USDT", Side: models.SideLong, Quantity: 1,
		EntryPrice: 100, State: models.PositionMonitoring, OpenedAt: time.Now(),
	}
	o.store.Upsert(pos)

	o.handleClose(context.Background(), pos, models.ExitManual)

	if o.realizedPnL <= 0 {
		t.Errorf("realizedPnL = %v, want > 0 for a profitable long close", o.realizedPnL)
	}
	if _, ok := o.store.Get("p1"); ok {
		t.Error("expected position removed from store after handleClose")
	}
	if o.leverageGov.ConsecutiveLosses() != 0 {
		t.Errorf("ConsecutiveLosses = %d, want 0 after a winning close", o.leverageGov.ConsecutiveLosses())
	}
}

func TestTradeResult(t *testing.T) {
	cases := []struct {
		pnl  float64
		want string
	}{
		{1, "win"}, {-1, "loss"}, {0, "breakeven"},
	}
	for _, c := range cases {
		if got := tradeResult(c.pnl); got != c.want {
			t.Errorf("tradeResult(%v) = %q, want %q", c.pnl, got, c.want)
		}
	}
}

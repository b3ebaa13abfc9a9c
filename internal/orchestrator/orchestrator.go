// Package orchestrator implements the Orchestrator, spec.md §4.M: the
// single cycle driver that wires every other component (A-L) together.
// Grounded on the teacher's runner.Start ticker-driven dispatch loop
// (internal/runner/runner.go, now retired — see DESIGN.md) generalized
// from per-user-session signal routing into the single account-wide
// run_cycle this engine drives.
package orchestrator

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/opentracing/opentracing-go"

	"perpctl/internal/arbitrator"
	"perpctl/internal/breaker"
	"perpctl/internal/confidence"
	"perpctl/internal/console"
	"perpctl/internal/decision"
	"perpctl/internal/equity"
	"perpctl/internal/exchange"
	"perpctl/internal/feedback"
	"perpctl/internal/marketdata"
	"perpctl/internal/metrics"
	"perpctl/internal/models"
	"perpctl/internal/monitor"
	"perpctl/internal/notify"
	"perpctl/internal/orders"
	"perpctl/internal/positions"
	"perpctl/internal/regime"
	"perpctl/internal/risk"

	csvlog "perpctl/internal/csvlog"

	"perpctl/pkg/logger"
)

const (
	cadence              = 60 * time.Second
	cycleTimeout         = 90 * time.Second
	equityReconcileEvery = 10
	csvFlushEvery        = 7
	correlationWindow    = 50
	spreadHistoryLimit   = 20
)

// Orchestrator owns the single authoritative run_cycle loop (spec.md §5);
// the Live Monitor and Sentinel run alongside it as independent goroutines
// started by the same caller (see Module in internal/modules/orchestrator).
type Orchestrator struct {
	gw           exchange.Gateway
	cache        *marketdata.Cache
	breakers     *breaker.Registry
	provider     *decision.Provider
	normalizer   *confidence.Normalizer
	riskCfg      risk.Config
	leverageGov  *risk.LeverageGovernor
	guard        *orders.SymbolGuard
	mgr          *orders.Manager
	store        *positions.Store
	decisionLog  *feedback.DecisionLog
	reconciler   *equity.Reconciler
	csv          *csvlog.Logger
	notifier     notify.Notifier
	console      *console.Printer
	symbols      map[string]models.Symbol
	symbolAgents map[string][]models.Agent
	agents       map[string]models.Agent

	cycle            int
	realizedPnL      float64
	dayStart         time.Time
	dailyRealizedPnL float64
	lastPeak         float64
	lastDrawdown     float64
	latencies        []float64
	spreadHistory    map[string][]float64

	// Heartbeat, if set, is called at the end of every completed cycle.
	Heartbeat func(time.Time)
}

// Deps bundles every collaborator RunCycle touches; passed as one struct
// because the orchestrator sits at the top of the dependency graph and has
// no natural smaller grouping (every leaf component feeds it).
type Deps struct {
	Gateway     exchange.Gateway
	Cache       *marketdata.Cache
	Breakers    *breaker.Registry
	Provider    *decision.Provider
	Normalizer  *confidence.Normalizer
	RiskConfig  risk.Config
	Leverage    *risk.LeverageGovernor
	Guard       *orders.SymbolGuard
	Manager     *orders.Manager
	Store       *positions.Store
	DecisionLog *feedback.DecisionLog
	Reconciler  *equity.Reconciler
	CSV         *csvlog.Logger
	Notifier    notify.Notifier
	Console     *console.Printer
	Symbols     map[string]models.Symbol
	Agents      map[string]models.Agent
}

func New(d Deps) *Orchestrator {
	symbolAgents := make(map[string][]models.Agent)
	for _, a := range d.Agents {
		symbolAgents[a.Symbol] = append(symbolAgents[a.Symbol], a)
	}
	return &Orchestrator{
		gw: d.Gateway, cache: d.Cache, breakers: d.Breakers, provider: d.Provider,
		normalizer: d.Normalizer, riskCfg: d.RiskConfig, leverageGov: d.Leverage,
		guard: d.Guard, mgr: d.Manager, store: d.Store, decisionLog: d.DecisionLog,
		reconciler: d.Reconciler, csv: d.CSV, notifier: d.Notifier, console: d.Console,
		symbols: d.Symbols, symbolAgents: symbolAgents, agents: d.Agents,
		spreadHistory: make(map[string][]float64),
	}
}

// Run drives run_cycle on the default cadence until ctx is cancelled. Each
// cycle fully completes before the next is scheduled, satisfying spec.md
// §5's "no cycle may overlap itself".
func (o *Orchestrator) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		if err := o.RunCycle(ctx); err != nil {
			logger.Error("orchestrator: run_cycle error: %v", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(cadence):
		}
	}
}

// DrainClosedExternally feeds Live Monitor events into Outcome Feedback
// (spec.md §4.K/§4.O): a position that went flat outside the Order
// Manager's control still has to close the loop on its originating
// decision and get journaled like any other exit.
func (o *Orchestrator) DrainClosedExternally(ctx context.Context, closed <-chan monitor.ClosedExternally) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-closed:
			o.handleClose(ctx, ev.Position, models.ExitManual)
		}
	}
}

// RunCycle implements spec.md §4.M's eight numbered steps.
func (o *Orchestrator) RunCycle(ctx context.Context) error {
	start := time.Now()
	span, ctx := opentracing.StartSpanFromContext(ctx, "run_cycle")
	defer span.Finish()
	o.cycle++

	o.rollDailyWindow(start)

	accountBalance := o.fetchAccountBalance(ctx)
	unrealized := o.sumUnrealized(ctx)
	total := o.realizedPnL + unrealized

	o.csv.AppendEquity(models.EquitySnapshot{
		Timestamp: start, Realized: o.realizedPnL, Unrealized: unrealized,
		Total: total, Peak: o.lastPeak, DrawdownFromPeak: o.lastDrawdown,
	})
	metrics.EquityTotal.Set(total)
	metrics.DrawdownFromPeak.Set(o.lastDrawdown)

	if o.console != nil {
		o.console.PrintStatus(o.store.All(), models.EquitySnapshot{
			Timestamp: start, Realized: o.realizedPnL, Unrealized: unrealized,
			Total: total, Peak: o.lastPeak, DrawdownFromPeak: o.lastDrawdown,
		})
	}

	snapshots, assessments := o.refreshMarketData(ctx, span)

	killReason := risk.CheckKillSwitches(o.riskCfg, risk.KillSwitchInput{
		DailyRealizedPnL:          o.dailyRealizedPnL,
		StartingEquity:            total,
		DrawdownFromPeak:          o.lastDrawdown,
		ConsecutiveLosses:         o.leverageGov.ConsecutiveLosses(),
		RecentCallLatenciesSeconds: o.latencies,
	})
	if killReason != risk.NoKillSwitch {
		metrics.KillSwitchTrips.WithLabelValues(string(killReason)).Inc()
		logger.Error("orchestrator: kill-switch %s tripped, skipping all entries this cycle", killReason)
		o.notifier.Sendf("KillSwitchTripped: %s", killReason)
	}

	decideSpan, decideCtx := opentracing.StartSpanFromContext(ctx, "decision_pipeline")
	for name, sym := range o.symbols {
		snap, ok := snapshots[name]
		if !ok {
			continue
		}
		assessment := assessments[name]
		o.runSymbol(decideCtx, sym, snap, assessment, total, killReason)
	}
	decideSpan.Finish()
	o.provider.Advance()

	if o.cycle%equityReconcileEvery == 0 {
		snap := o.reconciler.Reconcile(start, o.realizedPnL, unrealized, accountBalance)
		o.lastPeak = snap.Peak
		o.lastDrawdown = snap.DrawdownFromPeak
		o.csv.AppendEquity(snap)
	}
	if o.cycle%csvFlushEvery == 0 {
		o.csv.FlushAll()
	}

	elapsed := time.Since(start)
	metrics.CycleDuration.Observe(elapsed.Seconds())
	if elapsed > cycleTimeout {
		logger.Error("orchestrator: CycleTimeout after %s", elapsed)
	}
	if o.Heartbeat != nil {
		o.Heartbeat(start)
	}
	return nil
}

func (o *Orchestrator) rollDailyWindow(now time.Time) {
	if o.dayStart.IsZero() || now.Sub(o.dayStart) >= 24*time.Hour {
		o.dayStart = now
		o.dailyRealizedPnL = 0
	}
}

func (o *Orchestrator) fetchAccountBalance(ctx context.Context) float64 {
	callStart := time.Now()
	balances, err := o.gw.GetBalance(ctx)
	o.recordLatency(time.Since(callStart))
	if err != nil {
		logger.Error("orchestrator: get_balance failed: %v", err)
		return 0
	}
	var total float64
	for _, b := range balances {
		total += b.AvailableBalance
	}
	return total
}

func (o *Orchestrator) sumUnrealized(ctx context.Context) float64 {
	var total float64
	for _, pos := range o.store.All() {
		info, err := o.gw.GetPositionInfo(ctx, pos.Symbol)
		if err != nil {
			continue
		}
		total += info.UnrealizedProfit
	}
	return total
}

func (o *Orchestrator) recordLatency(d time.Duration) {
	o.latencies = append(o.latencies, d.Seconds())
	if len(o.latencies) > 20 {
		o.latencies = o.latencies[len(o.latencies)-20:]
	}
}

// refreshMarketData implements step 2: per-symbol indicators, regime, and
// circuit breakers. FundingSpike is not evaluated here — the Exchange
// Gateway contract (spec.md §6) has no funding-rate endpoint, so that
// breaker stays a pure, unwired function in internal/breaker pending a
// venue funding feed (see DESIGN.md).
func (o *Orchestrator) refreshMarketData(ctx context.Context, parent opentracing.Span) (map[string]models.MarketSnapshot, map[string]regime.Assessment) {
	snapshots := make(map[string]models.MarketSnapshot, len(o.symbols))
	assessments := make(map[string]regime.Assessment, len(o.symbols))
	now := time.Now()

	for name := range o.symbols {
		snap, err := marketdata.Snapshot(ctx, o.cache, name, false)
		if err != nil {
			logger.Error("orchestrator: market data refresh failed for %s: %v", name, err)
			continue
		}
		assessment := regime.Classify(snap)
		snap.Regime = string(assessment.Band)
		snapshots[name] = snap
		assessments[name] = assessment

		ticker, err := o.gw.GetTicker(ctx, name)
		if err != nil {
			continue
		}
		if breaker.CheckQuoteSpread(ticker.BestBid, ticker.BestAsk) {
			o.tripBreaker(breaker.QuoteSpread, name, "bid/ask spread exceeded 0.15% of mid", now)
		}
		if ticker.BestBid > 0 && ticker.BestAsk > 0 {
			mid := (ticker.BestBid + ticker.BestAsk) / 2
			spread := (ticker.BestAsk - ticker.BestBid) / mid
			history := o.spreadHistory[name]
			if breaker.CheckVolatilitySpike(spread, history) {
				o.tripBreaker(breaker.VolatilitySpike, name, "spread spiked past 1.2x the 20-sample median", now)
			}
			history = append(history, spread)
			if len(history) > spreadHistoryLimit {
				history = history[len(history)-spreadHistoryLimit:]
			}
			o.spreadHistory[name] = history
		}
	}
	return snapshots, assessments
}

func (o *Orchestrator) tripBreaker(name, symbol, reason string, now time.Time) {
	o.breakers.Trip(name, symbol, reason, now)
	metrics.BreakerTrips.WithLabelValues(name, symbol).Inc()
	logger.Error("orchestrator: breaker %s tripped for %s: %s", name, symbol, reason)
	o.notifier.Sendf("CircuitBreakerTripped: %s on %s (%s)", name, symbol, reason)
}

// runSymbol implements steps 4-6 for one symbol: decide, arbitrate, and —
// if the result is a trade and nothing is pausing entries — size and
// submit it.
func (o *Orchestrator) runSymbol(ctx context.Context, sym models.Symbol, snap models.MarketSnapshot, assessment regime.Assessment, equityTotal float64, killReason risk.KillSwitchReason) {
	agents := o.symbolAgents[sym.Name]
	if len(agents) == 0 {
		return
	}

	decisions := make([]models.Decision, 0, len(agents))
	for _, agent := range agents {
		perf := decision.RecentPerformance{WinRate: o.normalizer.Accuracy(agent.AgentID)}
		d, err := o.provider.Decide(ctx, agent, snap, perf)
		if err != nil {
			logger.Info("orchestrator: decision provider fell back to HOLD for %s/%s: %v", agent.AgentID, sym.Name, err)
		}
		d.NormalizedConfidence = o.normalizer.Normalize(agent.AgentID, d.RawConfidence, assessment.ConfidenceDelta)
		o.decisionLog.Record(d)
		o.csv.AppendDecision(d)
		metrics.DecisionsTotal.WithLabelValues(string(d.RawSignal)).Inc()
		decisions = append(decisions, d)
	}

	arbSpan, ctx := opentracing.StartSpanFromContext(ctx, "arbitrate")
	intent := arbitrator.Arbitrate(sym.Name, decisions, o.agents)
	arbSpan.Finish()
	if !intent.IsTrade() {
		return
	}

	if paused, reason := o.breakers.EntriesPaused(sym.Name, time.Now()); paused {
		logger.Info("orchestrator: entries paused for %s: %s", sym.Name, reason)
		return
	}
	if assessment.SkipEntry() {
		return
	}
	if killReason != risk.NoKillSwitch {
		return
	}

	o.submitEntry(ctx, sym, snap, assessment, intent, decisions, equityTotal)
}

func (o *Orchestrator) submitEntry(ctx context.Context, sym models.Symbol, snap models.MarketSnapshot, assessment regime.Assessment, intent models.Intent, decisions []models.Decision, equityTotal float64) {
	sizeSpan, ctx := opentracing.StartSpanFromContext(ctx, "risk_sizing")
	defer sizeSpan.Finish()

	if snap.Price <= 0 {
		return
	}
	atrFraction := snap.ATRFast / snap.Price
	stopDistanceFraction := atrFraction * assessment.SLAtrMultiplier
	if stopDistanceFraction <= 0 {
		return
	}

	hasOpenSameDirection := false
	for _, p := range o.store.BySymbol(sym.Name) {
		if p.Side == intent.Side && p.State != models.PositionClosed {
			hasOpenSameDirection = true
		}
	}

	leverage := o.leverageGov.Leverage(o.riskCfg, assessment.Band)
	sizingIn := risk.SizingInput{
		Equity: equityTotal, Price: snap.Price, StopDistanceFraction: stopDistanceFraction,
		RegimeSizeMultiplier: assessment.SizeMultiplier, CorrelationAdjustment: o.correlationAdjustment(ctx, sym.Name, intent.Side),
		Symbol: sym, Leverage: leverage,
	}
	qty := risk.PositionSize(o.riskCfg, sizingIn)
	if qty <= 0 {
		return
	}

	decisionRef := decisionRefFor(intent, decisions)

	orderSpan, ctx := opentracing.StartSpanFromContext(ctx, "submit_entry")
	defer orderSpan.Finish()

	res := o.mgr.SubmitEntry(ctx, sym, intent.Side, qty, leverage, decisionRef, hasOpenSameDirection)
	if res.Err != nil {
		logger.Error("orchestrator: submit_entry failed for %s: %v", sym.Name, res.Err)
		return
	}
	pos := res.Position
	o.store.Upsert(pos)
	metrics.OrdersPlaced.WithLabelValues("entry", string(intent.Side)).Inc()

	tpFrac := atrFraction * assessment.TPAtrMultiplier
	tp, sl := orders.ComputeTPSL(pos.Side, pos.EntryPrice, tpFrac, stopDistanceFraction)
	tpID, slID, err := o.mgr.AttachTPSL(ctx, sym, pos, tpFrac, stopDistanceFraction)
	if err != nil {
		if errors.Is(err, orders.ErrTpslIncomplete) {
			// One or both legs still aren't confirmed even after the Order
			// Manager's own one-time retry: hand the position to the
			// Sentinel for repair instead of force-closing it (spec.md
			// §4.I step 9).
			pos.TPOrderID, pos.SLOrderID, pos.TPPrice, pos.SLPrice = tpID, slID, tp, sl
			if pos.CanTransition(models.PositionMonitoring) {
				pos.State = models.PositionMonitoring
			}
			o.store.Upsert(pos)
			logger.Error("orchestrator: TpslIncomplete for %s, handing to sentinel for repair: %v", sym.Name, err)
			o.notifier.Sendf("TpslIncomplete: %s protective orders incomplete, sentinel will repair", sym.Name)
			return
		}
		logger.Error("orchestrator: InvalidTpslGeometry for %s: %v, closing position as a safety action", sym.Name, err)
		o.notifier.Sendf("InvalidTpslGeometry: %s could not attach protective orders (%v), force-closing", sym.Name, err)
		closeRes := o.mgr.Close(ctx, sym, pos, models.ExitForced)
		if closeRes.Err == nil {
			o.handleClose(ctx, pos, models.ExitForced)
		}
		return
	}

	pos.TPOrderID, pos.SLOrderID, pos.TPPrice, pos.SLPrice = tpID, slID, tp, sl
	if pos.CanTransition(models.PositionMonitoring) {
		pos.State = models.PositionMonitoring
	}
	o.store.Upsert(pos)
	metrics.OrdersPlaced.WithLabelValues("tp", string(intent.Side)).Inc()
	metrics.OrdersPlaced.WithLabelValues("sl", string(intent.Side)).Inc()
}

// correlationAdjustment implements spec.md §4.G's correlation-adjusted
// sizing: if another symbol already holds a same-direction open position
// and its 50-bar return correlation with this symbol exceeds 0.8 in
// magnitude, size is halved.
func (o *Orchestrator) correlationAdjustment(ctx context.Context, symbol string, side models.Side) float64 {
	best := 1.0
	for other := range o.symbols {
		if other == symbol {
			continue
		}
		sameDirectionOpen := false
		for _, p := range o.store.BySymbol(other) {
			if p.Side == side && p.State != models.PositionClosed {
				sameDirectionOpen = true
				break
			}
		}
		if !sameDirectionOpen {
			continue
		}
		corr, err := marketdata.Correlation(ctx, o.cache, symbol, other, correlationWindow)
		if err != nil {
			continue
		}
		if adj := risk.CorrelationAdjustment(corr, true); adj < best {
			best = adj
		}
	}
	return best
}

func decisionRefFor(intent models.Intent, decisions []models.Decision) string {
	if len(intent.ContributingAgents) == 0 {
		return ""
	}
	winner := intent.ContributingAgents[0]
	for _, d := range decisions {
		if d.AgentID == winner {
			return d.ID
		}
	}
	return ""
}

// handleClose closes the loop on an exited position: it journals the trade,
// feeds Outcome Feedback, updates the leverage governor's loss counter and
// the per-symbol cooldown guard, and evicts the position from the live
// registry. Used both for the orchestrator's own safety-close path and for
// externally observed closes drained from the Live Monitor.
func (o *Orchestrator) handleClose(ctx context.Context, pos models.Position, reason models.ExitReason) {
	if pos.CanTransition(models.PositionClosing) {
		pos.State = models.PositionClosing
	}
	if pos.CanTransition(models.PositionClosed) {
		pos.State = models.PositionClosed
	}

	exitPrice := pos.EntryPrice
	if ticker, err := o.gw.GetTicker(ctx, pos.Symbol); err == nil && ticker.LastPrice > 0 {
		exitPrice = ticker.LastPrice
	}
	pnl := orders.ROI(pos.Side, pos.EntryPrice, exitPrice) * pos.EntryPrice * pos.Quantity

	outcome := models.TradeOutcome{
		ID: uuid.NewString(), PositionRef: pos.ID, DecisionRef: pos.DecisionRef,
		ExitReason: reason, ExitPrice: exitPrice, RealizedPnL: pnl,
		HoldDuration: time.Since(pos.OpenedAt), ClosedAt: time.Now().UTC(),
	}

	o.realizedPnL += pnl
	o.dailyRealizedPnL += pnl
	win := pnl > 0
	o.leverageGov.RecordOutcome(win)
	if win {
		o.guard.RecordWin(pos.Symbol)
	} else {
		o.guard.RecordLoss(pos.Symbol)
	}

	feedback.Record(o.decisionLog, o.normalizer, outcome)
	o.csv.AppendTrade(outcome)
	metrics.TradesTotal.WithLabelValues(tradeResult(pnl)).Inc()
	metrics.ExitReasonsTotal.WithLabelValues(string(outcome.ExitReason), string(pos.Side)).Inc()
	o.store.Remove(pos.ID)
}

func tradeResult(pnl float64) string {
	switch {
	case pnl > 0:
		return "win"
	case pnl < 0:
		return "loss"
	default:
		return "breakeven"
	}
}

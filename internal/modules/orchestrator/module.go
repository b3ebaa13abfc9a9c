// Package orchestrator is the fx wiring for the control plane's cycle
// driver: it assembles every domain component (A-L) into one
// orchestrator.Orchestrator, then starts the three long-lived loops
// (run_cycle, Live Monitor, Sentinel) plus the externally-closed-position
// drain as fx lifecycle goroutines.
package orchestrator

import (
	"context"

	"go.uber.org/fx"

	"perpctl/internal/agentcfg"
	"perpctl/internal/breaker"
	"perpctl/internal/confidence"
	"perpctl/internal/console"
	"perpctl/internal/csvlog"
	"perpctl/internal/decision"
	"perpctl/internal/equity"
	"perpctl/internal/exchange"
	"perpctl/internal/feedback"
	"perpctl/internal/marketdata"
	"perpctl/internal/models"
	"perpctl/internal/modules/config"
	"perpctl/internal/modules/health/service"
	"perpctl/internal/modules/postgres"
	"perpctl/internal/monitor"
	"perpctl/internal/notify"
	"perpctl/internal/orchestrator"
	"perpctl/internal/orders"
	"perpctl/internal/positions"
	"perpctl/internal/risk"
	"perpctl/internal/sentinel"
	"perpctl/internal/state"

	"perpctl/pkg/logger"
)

// asPeakStore lets the concrete postgres.PeakStore satisfy
// equity.PeakStore without the equity package importing postgres.
func asPeakStore(s *postgres.PeakStore) equity.PeakStore { return s }

func loadAgents(settings config.EngineSettings) (map[string]models.Agent, error) {
	return agentcfg.LoadDir(settings.AgentsDir)
}

// loadSymbols fetches venue filter metadata for every symbol an agent
// trades, so the Risk Engine and Order Manager have tick/step/minimum data
// before the first cycle runs.
func loadSymbols(gw exchange.Gateway, agents map[string]models.Agent) (map[string]models.Symbol, error) {
	symbols := make(map[string]models.Symbol)
	for _, a := range agents {
		if _, ok := symbols[a.Symbol]; ok {
			continue
		}
		f, err := gw.GetFilters(context.Background(), a.Symbol)
		if err != nil {
			return nil, err
		}
		symbols[a.Symbol] = models.Symbol{
			Name: f.Symbol, TickSize: f.TickSize, StepSize: f.StepSize,
			MinQty: f.MinQty, MinNotional: f.MinNotional,
		}
	}
	return symbols, nil
}

func newCSVLogger(settings config.EngineSettings) (*csvlog.Logger, error) {
	return csvlog.NewLogger(settings.DataDir)
}

func newConsolePrinter() *console.Printer {
	return console.NewPrinter()
}

// orderLayer bundles the three collaborators the Order Manager's
// unexported SymbolGuard field makes awkward to wire separately: the
// orchestrator needs the same *orders.SymbolGuard instance that was handed
// to orders.NewManager in order to record win/loss outcomes itself.
type orderLayer struct {
	guard *orders.SymbolGuard
	mgr   *orders.Manager
	store *positions.Store
}

func newOrderLayer(gw exchange.Gateway) orderLayer {
	guard := orders.NewSymbolGuard()
	return orderLayer{
		guard: guard,
		mgr:   orders.NewManager(gw, state.NewMachine(), guard),
		store: positions.NewStore(),
	}
}

func newOrchestrator(
	gw exchange.Gateway,
	settings config.EngineSettings,
	agents map[string]models.Agent,
	symbols map[string]models.Symbol,
	layer orderLayer,
	peakStore equity.PeakStore,
	csvLogger *csvlog.Logger,
	notifier notify.Notifier,
	consolePrinter *console.Printer,
	healthState *service.State,
) (*orchestrator.Orchestrator, error) {
	reconciler, err := equity.NewReconciler(peakStore)
	if err != nil {
		return nil, err
	}

	riskCfg := risk.Config{
		RiskFraction:    settings.RiskFraction,
		MaxDailyLossPct: settings.MaxDailyLossPct,
		MaxDrawdown:     settings.MaxDrawdown,
		MaxLeverage:     settings.MaxLeverage,
	}
	if riskCfg.RiskFraction == 0 {
		riskCfg = risk.DefaultConfig()
	}

	o := orchestrator.New(orchestrator.Deps{
		Gateway: gw, Cache: marketdata.NewCache(gw), Breakers: breaker.NewRegistry(),
		Provider:    decision.NewProvider(decision.StrategyFactory("trend_following")),
		Normalizer:  confidence.NewNormalizer(),
		RiskConfig:  riskCfg,
		Leverage:    risk.NewLeverageGovernor(),
		Guard:       layer.guard,
		Manager:     layer.mgr,
		Store:       layer.store,
		DecisionLog: feedback.NewDecisionLog(),
		Reconciler:  reconciler,
		CSV:         csvLogger,
		Notifier:    notifier,
		Console:     consolePrinter,
		Symbols:     symbols,
		Agents:      agents,
	})
	o.Heartbeat = healthState.TouchCycle
	return o, nil
}

// Module wires the orchestrator together with its two satellite loops (Live
// Monitor, Sentinel) and starts all three plus the external-close drain as
// fx lifecycle goroutines, cancelled together on shutdown.
func Module() fx.Option {
	return fx.Module("orchestrator",
		fx.Provide(
			asPeakStore,
			loadAgents,
			loadSymbols,
			newCSVLogger,
			newConsolePrinter,
			newOrderLayer,
			newOrchestrator,
		),
		fx.Invoke(run),
	)
}

func run(
	lc fx.Lifecycle,
	gw exchange.Gateway,
	o *orchestrator.Orchestrator,
	layer orderLayer,
	symbols map[string]models.Symbol,
	healthState *service.State,
	csvLogger *csvlog.Logger,
) {
	ctx, cancel := context.WithCancel(context.Background())

	mon := monitor.NewMonitor(gw, layer.store, layer.mgr, symbols)
	mon.Heartbeat = healthState.TouchMonitor
	sent := sentinel.NewSentinel(gw, layer.store, layer.mgr, symbols)
	sent.Heartbeat = healthState.TouchSentinel

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go o.Run(ctx)
			go mon.Run(ctx)
			go sent.Run(ctx)
			go o.DrainClosedExternally(ctx, mon.Closed)
			healthState.SetReady(true)
			logger.Info("orchestrator: started run_cycle, live monitor, and sentinel loops")
			return nil
		},
		OnStop: func(context.Context) error {
			healthState.SetReady(false)
			cancel()
			csvLogger.FlushAll()
			return nil
		},
	})
}

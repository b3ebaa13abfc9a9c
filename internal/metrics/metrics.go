// Package metrics is the Prometheus counter/gauge set the orchestrator and
// Equity Reconciliation update each cycle, grounded on
// chidi150c-coinbase/metrics.go's package-level CounterVec/Gauge
// registration pattern, served on the health module's /metrics mux.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	OrdersPlaced = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "perpctl_orders_placed_total",
			Help: "Entry and protective orders placed, by leg and side.",
		},
		[]string{"leg", "side"}, // leg: entry|tp|sl|partial
	)

	DecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "perpctl_decisions_total",
			Help: "Decisions produced by the Decision Provider, by raw signal.",
		},
		[]string{"signal"},
	)

	TradesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "perpctl_trades_total",
			Help: "Closed trades by result.",
		},
		[]string{"result"}, // win|loss|breakeven
	)

	ExitReasonsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "perpctl_exit_reasons_total",
			Help: "Closed trades by exit reason and side.",
		},
		[]string{"reason", "side"},
	)

	KillSwitchTrips = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "perpctl_killswitch_trips_total",
			Help: "Kill-switch trips by reason.",
		},
		[]string{"reason"},
	)

	BreakerTrips = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "perpctl_breaker_trips_total",
			Help: "Circuit breaker trips by name and symbol.",
		},
		[]string{"name", "symbol"},
	)

	EquityTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "perpctl_equity_total",
			Help: "Realized plus unrealized equity as of the last cycle.",
		},
	)

	DrawdownFromPeak = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "perpctl_drawdown_from_peak",
			Help: "Fractional drawdown from the running equity peak.",
		},
	)

	CycleDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "perpctl_cycle_duration_seconds",
			Help:    "run_cycle wall-clock duration.",
			Buckets: prometheus.DefBuckets,
		},
	)
)

func init() {
	prometheus.MustRegister(
		OrdersPlaced, DecisionsTotal, TradesTotal, ExitReasonsTotal,
		KillSwitchTrips, BreakerTrips, EquityTotal, DrawdownFromPeak, CycleDuration,
	)
}

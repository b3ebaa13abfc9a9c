// Package breaker implements the three independent circuit breakers of
// spec.md §4.H. Each one pauses new entries for 10 minutes when tripped;
// none of them ever pause exits.
package breaker

import (
	"sort"
	"time"

	"perpctl/internal/models"
)

const pauseDuration = 10 * time.Minute

const (
	VolatilitySpike = "VolatilitySpike"
	FundingSpike    = "FundingSpike"
	QuoteSpread     = "QuoteSpread"
)

// Registry owns the active/expired state for every breaker, keyed by
// (breaker name, symbol) since each breaker trips per symbol. Grounded on
// models.BreakerState, whose Active method this registry is built around.
type Registry struct {
	states map[string]models.BreakerState
}

func NewRegistry() *Registry {
	return &Registry{states: make(map[string]models.BreakerState)}
}

func key(name, symbol string) string { return name + "|" + symbol }

// Trip records a breaker firing for a symbol, pausing entries for 10
// minutes from now.
func (r *Registry) Trip(name, symbol, reason string, now time.Time) {
	r.states[key(name, symbol)] = models.BreakerState{
		Name:          name,
		ActiveUntil:   now.Add(pauseDuration),
		TriggerReason: reason,
	}
}

// EntriesPaused reports whether any breaker is currently active for symbol.
func (r *Registry) EntriesPaused(symbol string, now time.Time) (bool, string) {
	for _, name := range []string{VolatilitySpike, FundingSpike, QuoteSpread} {
		if st, ok := r.states[key(name, symbol)]; ok && st.Active(now) {
			return true, st.TriggerReason
		}
	}
	return false, ""
}

// CheckVolatilitySpike trips when the current candle's spread exceeds 1.2x
// the median spread of the last 20 candles (spec.md §4.H).
func CheckVolatilitySpike(currentSpread float64, recentSpreads []float64) bool {
	if len(recentSpreads) == 0 {
		return false
	}
	med := median(recentSpreads)
	return med > 0 && currentSpread > 1.2*med
}

// CheckFundingSpike trips when the funding rate moved more than 0.1
// percentage points in the last hour.
func CheckFundingSpike(fundingRateNow, fundingRateOneHourAgo float64) bool {
	delta := fundingRateNow - fundingRateOneHourAgo
	if delta < 0 {
		delta = -delta
	}
	return delta > 0.001 // 0.1 percentage points expressed as a fraction
}

// CheckQuoteSpread trips when best bid/ask spread exceeds 0.15% of mid.
func CheckQuoteSpread(bestBid, bestAsk float64) bool {
	if bestBid <= 0 || bestAsk <= 0 {
		return false
	}
	mid := (bestBid + bestAsk) / 2
	spreadPct := (bestAsk - bestBid) / mid
	return spreadPct > 0.0015
}

func median(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sorted := append([]float64(nil), xs...)
	sort.Float64s(sorted)
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

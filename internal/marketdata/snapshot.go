package marketdata

import (
	"context"
	"fmt"
	"math"
	"time"

	"perpctl/internal/exchange"
	"perpctl/internal/models"
)

const (
	atrFastPeriod = 7
	atrSlowPeriod = 21
	emaPeriod     = 20
	rsiPeriod     = 14
	bollPeriod    = 20
	bollStdDevs   = 2.0
	primaryInterval = "1m"
)

// Snapshot recomputes the canonical indicator set for a symbol from cached
// (or freshly fetched) klines, producing the MarketSnapshot every downstream
// component (Regime Classifier, Decision Provider, Risk Engine) consumes.
// Regime is left blank here; the orchestrator fills it in after running the
// Regime Classifier, since classification needs this snapshot's ATR values
// as input (spec.md §4.C).
func Snapshot(ctx context.Context, cache *Cache, symbol string, requireFresh bool) (models.MarketSnapshot, error) {
	klines, err := cache.Get(ctx, symbol, primaryInterval, requireFresh)
	if err != nil {
		return models.MarketSnapshot{}, fmt.Errorf("marketdata snapshot %s: %w", symbol, err)
	}
	if len(klines) == 0 {
		return models.MarketSnapshot{}, fmt.Errorf("marketdata snapshot %s: no klines available", symbol)
	}

	last := klines[len(klines)-1]
	macd, macdSig := MACD(klines)
	upper, lower := Bollinger(klines, bollPeriod, bollStdDevs)

	return models.MarketSnapshot{
		Symbol:    symbol,
		Price:     last.Close,
		ATRFast:   ATR(klines, atrFastPeriod),
		ATRSlow:   ATR(klines, atrSlowPeriod),
		EMA20:     EMAFromKlines(klines, emaPeriod),
		RSI:       RSI(klines, rsiPeriod),
		MACD:      macd,
		MACDSig:   macdSig,
		BollUpper: upper,
		BollLower: lower,
		AsOf:      time.Now().UTC(),
	}, nil
}

// Correlation computes the Pearson correlation of close-to-close returns
// over the last n bars for two symbols, reusing each symbol's own OHLCV
// cache entry rather than a separate fetch (spec.md §4.G correlation
// adjustment; supplemented per original_source's market_analysis.py, which
// keeps a rolling-return cache for exactly this reuse).
func Correlation(ctx context.Context, cache *Cache, symbolA, symbolB string, n int) (float64, error) {
	a, err := cache.Get(ctx, symbolA, primaryInterval, false)
	if err != nil {
		return 0, err
	}
	b, err := cache.Get(ctx, symbolB, primaryInterval, false)
	if err != nil {
		return 0, err
	}
	ra := returns(a, n)
	rb := returns(b, n)
	m := len(ra)
	if len(rb) < m {
		m = len(rb)
	}
	if m < 2 {
		return 0, nil
	}
	return pearson(ra[len(ra)-m:], rb[len(rb)-m:]), nil
}

func returns(klines []exchange.Kline, n int) []float64 {
	if len(klines) < 2 {
		return nil
	}
	if n > 0 && n+1 < len(klines) {
		klines = klines[len(klines)-(n+1):]
	}
	out := make([]float64, 0, len(klines)-1)
	for i := 1; i < len(klines); i++ {
		prev := klines[i-1].Close
		if prev == 0 {
			continue
		}
		out = append(out, (klines[i].Close-prev)/prev)
	}
	return out
}

func pearson(a, b []float64) float64 {
	n := len(a)
	if n == 0 {
		return 0
	}
	var sumA, sumB float64
	for i := range a {
		sumA += a[i]
		sumB += b[i]
	}
	meanA, meanB := sumA/float64(n), sumB/float64(n)
	var cov, varA, varB float64
	for i := range a {
		da, db := a[i]-meanA, b[i]-meanB
		cov += da * db
		varA += da * da
		varB += db * db
	}
	if varA == 0 || varB == 0 {
		return 0
	}
	return cov / (math.Sqrt(varA) * math.Sqrt(varB))
}

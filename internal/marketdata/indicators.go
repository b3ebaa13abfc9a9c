// Package marketdata turns raw OHLCV from the Exchange Gateway into the
// canonical indicator set every other component reads (spec.md §4.B):
// ATR-fast=7, ATR-slow=21, EMA-20, RSI, MACD, Bollinger.
package marketdata

import (
	"math"

	"perpctl/internal/exchange"
)

// EMA is the teacher's incremental EMA state machine (internal/modules/
// strategy/service/ema.go), generalized to an exported, arbitrary-period
// helper instead of a strategy-package-private type.
type EMA struct {
	period int
	alpha  float64
	value  float64
	warmup int
}

func NewEMA(period int) *EMA {
	if period <= 1 {
		period = 1
	}
	return &EMA{period: period, alpha: 2.0 / (float64(period) + 1)}
}

func (e *EMA) Update(price float64) {
	if e.warmup == 0 {
		e.value = price
		e.warmup = 1
		return
	}
	e.value = e.alpha*price + (1-e.alpha)*e.value
	if e.warmup < e.period {
		e.warmup++
	}
}

func (e *EMA) Ready() bool    { return e.warmup >= e.period }
func (e *EMA) Value() float64 { return e.value }

// EMAFromKlines feeds every close through a fresh EMA of the given period;
// used for one-shot recomputation each cycle rather than carrying state
// across cycles, since Market Data recomputes indicators every cycle
// (spec.md §4.B).
func EMAFromKlines(klines []exchange.Kline, period int) float64 {
	e := NewEMA(period)
	for _, k := range klines {
		e.Update(k.Close)
	}
	return e.Value()
}

// ATR computes Wilder's average true range over period bars using simple
// averaging of true range (close enough for the regime bands in spec.md
// §4.C, which only care about the fast/slow ratio and ATR/price).
func ATR(klines []exchange.Kline, period int) float64 {
	if len(klines) < 2 {
		return 0
	}
	trs := make([]float64, 0, len(klines)-1)
	for i := 1; i < len(klines); i++ {
		prevClose := klines[i-1].Close
		hi, lo := klines[i].High, klines[i].Low
		tr := math.Max(hi-lo, math.Max(math.Abs(hi-prevClose), math.Abs(lo-prevClose)))
		trs = append(trs, tr)
	}
	if len(trs) == 0 {
		return 0
	}
	if period > len(trs) {
		period = len(trs)
	}
	window := trs[len(trs)-period:]
	sum := 0.0
	for _, v := range window {
		sum += v
	}
	return sum / float64(len(window))
}

// RSI is Wilder's RSI over period bars, computed fresh from the window each
// call (indicators are recomputed every cycle, not carried across cycles).
func RSI(klines []exchange.Kline, period int) float64 {
	if len(klines) < period+1 {
		return 50
	}
	window := klines[len(klines)-(period+1):]
	var gains, losses float64
	for i := 1; i < len(window); i++ {
		delta := window[i].Close - window[i-1].Close
		if delta > 0 {
			gains += delta
		} else {
			losses -= delta
		}
	}
	if losses == 0 {
		return 100
	}
	avgGain := gains / float64(period)
	avgLoss := losses / float64(period)
	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - (100 / (1 + rs))
}

// MACD returns the MACD line (EMA12-EMA26) and its signal line (EMA9 of the
// MACD line), computed over the full window supplied.
func MACD(klines []exchange.Kline) (macd, signal float64) {
	if len(klines) == 0 {
		return 0, 0
	}
	fast := NewEMA(12)
	slow := NewEMA(26)
	sig := NewEMA(9)
	var line float64
	for _, k := range klines {
		fast.Update(k.Close)
		slow.Update(k.Close)
		line = fast.Value() - slow.Value()
		sig.Update(line)
	}
	return line, sig.Value()
}

// Bollinger returns the upper/lower bands at n standard deviations (default
// 2) around an SMA of the given period.
func Bollinger(klines []exchange.Kline, period int, stdDevs float64) (upper, lower float64) {
	if len(klines) < period || period <= 0 {
		return 0, 0
	}
	window := klines[len(klines)-period:]
	var sum float64
	for _, k := range window {
		sum += k.Close
	}
	mean := sum / float64(len(window))
	var variance float64
	for _, k := range window {
		d := k.Close - mean
		variance += d * d
	}
	variance /= float64(len(window))
	sd := math.Sqrt(variance)
	return mean + stdDevs*sd, mean - stdDevs*sd
}

// Package regime implements the volatility-regime bands of spec.md §4.C:
// each cycle's ATR ratio and ATR% classify a symbol into EXTREME/HIGH/LOW/
// NORMAL, which in turn scale position size and TP/SL distance.
package regime

import "perpctl/internal/models"

type Band string

const (
	Extreme Band = "EXTREME"
	High    Band = "HIGH"
	Low     Band = "LOW"
	Normal  Band = "NORMAL"
)

// Assessment is the full output named in spec.md §4.C.
type Assessment struct {
	Band             Band
	VR               float64
	ConfidenceDelta  float64
	SizeMultiplier   float64
	TPAtrMultiplier  float64
	SLAtrMultiplier  float64
}

// Classify bands a symbol's current volatility state from its market
// snapshot. The band boundaries and multipliers are spec.md §4.C verbatim.
func Classify(snap models.MarketSnapshot) Assessment {
	if snap.ATRSlow <= 0 {
		return Assessment{Band: Normal, SizeMultiplier: 1.0, TPAtrMultiplier: 2.2, SLAtrMultiplier: 1.1}
	}
	vr := snap.ATRFast / snap.ATRSlow
	atrPct := 0.0
	if snap.Price > 0 {
		atrPct = snap.ATRFast / snap.Price
	}

	switch {
	case vr >= 1.8:
		return Assessment{Band: Extreme, VR: vr, SizeMultiplier: 0, TPAtrMultiplier: 2.5, SLAtrMultiplier: 1.25}
	case vr >= 1.2:
		return Assessment{Band: High, VR: vr, ConfidenceDelta: -0.03, SizeMultiplier: 0.75, TPAtrMultiplier: 2.5, SLAtrMultiplier: 1.25}
	case vr < 0.5 && atrPct < 0.002:
		return Assessment{Band: Low, VR: vr, SizeMultiplier: 0, TPAtrMultiplier: 2.2, SLAtrMultiplier: 1.1}
	default:
		return Assessment{Band: Normal, VR: vr, SizeMultiplier: 1.0, TPAtrMultiplier: 2.2, SLAtrMultiplier: 1.1}
	}
}

// SkipEntry reports whether this band forbids new entries (spec.md §4.C:
// EXTREME and LOW both carry size_multiplier=0, meaning skip entry).
func (a Assessment) SkipEntry() bool {
	return a.SizeMultiplier == 0
}

package orders

import "perpctl/internal/models"

// ComputeTPSL implements spec.md §4.I's direction rule:
//
//	LONG:  tp = entry*(1+tp_frac), sl = entry*(1-sl_frac)
//	SHORT: tp = entry*(1-tp_frac), sl = entry*(1+sl_frac)
func ComputeTPSL(side models.Side, entry, tpFrac, slFrac float64) (tp, sl float64) {
	switch side {
	case models.SideShort:
		return entry * (1 - tpFrac), entry * (1 + slFrac)
	default: // LONG
		return entry * (1 + tpFrac), entry * (1 - slFrac)
	}
}

// ValidGeometry enforces the safety invariant of spec.md §4.I: a LONG must
// have tp > entry > sl, a SHORT must have tp < entry < sl. Any other
// arrangement is InvalidTpslGeometry and the caller must close the position
// immediately.
func ValidGeometry(side models.Side, entry, tp, sl float64) bool {
	switch side {
	case models.SideLong:
		return tp > entry && entry > sl
	case models.SideShort:
		return tp < entry && entry < sl
	default:
		return false
	}
}

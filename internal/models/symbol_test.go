package models

import "testing"

func TestRoundPrice_PushesAwayFromMarkByTwoTicks(t *testing.T) {
	sym := Symbol{Name: "BTC-USDT", TickSize: 0.1}
	mark := 100.0

	tp := sym.RoundPrice(100.05, mark, +1)
	if tp < mark+2*sym.TickSize {
		t.Errorf("RoundPrice up got %v, want >= %v", tp, mark+2*sym.TickSize)
	}

	sl := sym.RoundPrice(99.95, mark, -1)
	if sl > mark-2*sym.TickSize {
		t.Errorf("RoundPrice down got %v, want <= %v", sl, mark-2*sym.TickSize)
	}
}

func TestRoundQty_FloorsBelowMinQtyToZero(t *testing.T) {
	sym := Symbol{Name: "BTC-USDT", StepSize: 0.01, MinQty: 0.05}
	if got := sym.RoundQty(0.02); got != 0 {
		t.Errorf("RoundQty(0.02) = %v, want 0", got)
	}
	if got := sym.RoundQty(0.127); got != 0.12 {
		t.Errorf("RoundQty(0.127) = %v, want 0.12", got)
	}
}

func TestRoundQty_ZeroStepIsNoop(t *testing.T) {
	sym := Symbol{Name: "BTC-USDT"}
	if got := sym.RoundQty(1.23456); got != 1.23456 {
		t.Errorf("RoundQty with zero step = %v, want 1.23456", got)
	}
}

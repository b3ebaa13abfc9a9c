package breaker

import (
	"testing"
	"time"
)

func TestRegistry_TripPausesEntriesForTenMinutes(t *testing.T) {
	r := NewRegistry()
	now := time.Now()
	r.Trip(VolatilitySpike, "BTC-USDT", "spread 2x median", now)

	paused, reason := r.EntriesPaused("BTC-USDT", now.Add(5*time.Minute))
	if !paused {
		t.Fatal("expected entries paused within the 10 minute window")
	}
	if reason != "spread 2x median" {
		t.Errorf("reason = %q, want %q", reason, "spread 2x median")
	}

	paused, _ = r.EntriesPaused("BTC-USDT", now.Add(11*time.Minute))
	if paused {
		t.Fatal("expected breaker to have expired after 10 minutes")
	}
}

func TestRegistry_DifferentSymbolsAreIndependent(t *testing.T) {
	r := NewRegistry()
	now := time.Now()
	r.Trip(FundingSpike, "BTC-USDT", "funding jump", now)

	if paused, _ := r.EntriesPaused("ETH-USDT", now); paused {
		t.Error("breaker on BTC-USDT should not affect ETH-USDT")
	}
}

func TestCheckVolatilitySpike(t *testing.T) {
	recent := []float64{1, 1, 1, 1, 1}
	if !CheckVolatilitySpike(1.3, recent) {
		t.Error("expected spike when current spread exceeds 1.2x median")
	}
	if CheckVolatilitySpike(1.1, recent) {
		t.Error("did not expect spike below threshold")
	}
}

func TestCheckFundingSpike(t *testing.T) {
	if !CheckFundingSpike(0.005, 0.003) {
		t.Error("expected funding spike for 0.2pp delta")
	}
	if CheckFundingSpike(0.0031, 0.003) {
		t.Error("did not expect funding spike for tiny delta")
	}
}

func TestCheckQuoteSpread(t *testing.T) {
	if !CheckQuoteSpread(99.0, 100.0) {
		t.Error("expected wide spread to trip")
	}
	if CheckQuoteSpread(99.99, 100.0) {
		t.Error("did not expect tight spread to trip")
	}
}

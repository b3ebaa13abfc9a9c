package regime

import (
	"testing"

	"perpctl/internal/models"
)

func TestClassify_Bands(t *testing.T) {
	cases := []struct {
		name    string
		snap    models.MarketSnapshot
		want    Band
		skip    bool
	}{
		{"extreme", models.MarketSnapshot{ATRFast: 2.0, ATRSlow: 1.0, Price: 100}, Extreme, true},
		{"high", models.MarketSnapshot{ATRFast: 1.3, ATRSlow: 1.0, Price: 100}, High, false},
		{"low", models.MarketSnapshot{ATRFast: 0.1, ATRSlow: 1.0, Price: 1000}, Low, true},
		{"normal", models.MarketSnapshot{ATRFast: 1.0, ATRSlow: 1.0, Price: 100}, Normal, false},
	}
	for _, c := range cases {
		a := Classify(c.snap)
		if a.Band != c.want {
			t.Errorf("%s: Band = %v, want %v", c.name, a.Band, c.want)
		}
		if a.SkipEntry() != c.skip {
			t.Errorf("%s: SkipEntry = %v, want %v", c.name, a.SkipEntry(), c.skip)
		}
	}
}

func TestClassify_ZeroATRSlowDefaultsToNormal(t *testing.T) {
	a := Classify(models.MarketSnapshot{ATRFast: 1, ATRSlow: 0, Price: 100})
	if a.Band != Normal {
		t.Errorf("Band = %v, want Normal", a.Band)
	}
}

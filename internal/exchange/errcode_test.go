package exchange

import "testing"

func TestPolicyFor_MappedCodes(t *testing.T) {
	cases := []struct {
		code int
		want Policy
	}{
		{CodeMarginInsufficient, PolicySkipNoRetry},
		{CodeWouldImmediateTrig, PolicyRetryOnceDelayed},
		{CodeReduceOnlyNotNeeded, PolicyFallbackMode},
		{CodeUnknownOrder, PolicyTreatAsCancelled},
		{CodeDuplicateReduceOnly, PolicyTreatAsSuccess},
		{CodeMaxOpenOrders, PolicySkipThrottle},
		{CodeRateLimited, PolicyBackoffRetryAfter},
		{-999999, PolicyRetryTransient},
	}
	for _, c := range cases {
		if got := PolicyFor(c.code); got != c.want {
			t.Errorf("PolicyFor(%d) = %v, want %v", c.code, got, c.want)
		}
	}
}

func TestShortCircuit(t *testing.T) {
	shortCircuit := []int{CodeMarginInsufficient, CodeReduceOnlyNotNeeded, CodeUnknownOrder, CodeDuplicateReduceOnly, CodeMaxOpenOrders}
	for _, code := range shortCircuit {
		if !ShortCircuit(code) {
			t.Errorf("ShortCircuit(%d) = false, want true", code)
		}
	}
	noShortCircuit := []int{CodeWouldImmediateTrig, CodeRateLimited, -1}
	for _, code := range noShortCircuit {
		if ShortCircuit(code) {
			t.Errorf("ShortCircuit(%d) = true, want false", code)
		}
	}
}

func TestMappedError_Error(t *testing.T) {
	err := &MappedError{Code: -2019, Msg: "margin insufficient"}
	want := "exchange error -2019: margin insufficient"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

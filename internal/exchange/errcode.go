package exchange

import "fmt"

// MappedError wraps a venue error code the policy table in spec.md §6
// recognizes. Callers switch on Code, never on Msg.
type MappedError struct {
	Code int
	Msg  string
}

func (e *MappedError) Error() string {
	return fmt.Sprintf("exchange error %d: %s", e.Code, e.Msg)
}

// Policy is what the gateway, Order Manager, and Sentinel all do in response
// to a given mapped code. There is exactly one table (this one); nobody else
// is allowed to hardcode a code comparison (spec.md §7: "never blind-retry").
type Policy int

const (
	// PolicyRetryTransient is transport/5xx/429 territory, handled by the
	// generic backoff wrapper rather than this table.
	PolicyRetryTransient Policy = iota
	PolicySkipNoRetry
	PolicyRetryOnceDelayed
	PolicyFallbackMode
	PolicyTreatAsCancelled
	PolicyTreatAsSuccess
	PolicySkipThrottle
	PolicyBackoffRetryAfter
)

// codePolicy is the single source of truth named in spec.md §6's mapped
// error table. Grounded on the table itself and on
// original_source/alpha-arena-backend/core/binance_error_handler.py, the
// Python module it was distilled from.
var codePolicy = map[int]Policy{
	-2019: PolicySkipNoRetry,      // margin insufficient
	-2021: PolicyRetryOnceDelayed, // would immediately trigger / timing
	-1106: PolicyFallbackMode,     // reduceOnly sent when not required
	-2011: PolicyTreatAsCancelled, // unknown order
	-4164: PolicyTreatAsSuccess,   // duplicate reduce-only order
	-2010: PolicySkipThrottle,     // max open orders
	429:   PolicyBackoffRetryAfter,
}

// PolicyFor returns the table entry for code, or PolicyRetryTransient if the
// code is not one of the mapped ones (meaning: fall through to generic
// transport retry behaviour).
func PolicyFor(code int) Policy {
	if p, ok := codePolicy[code]; ok {
		return p
	}
	return PolicyRetryTransient
}

// ShortCircuit reports whether a mapped code should abort the retry loop
// immediately rather than let the exponential backoff wrapper keep trying.
func ShortCircuit(code int) bool {
	switch PolicyFor(code) {
	case PolicySkipNoRetry, PolicyFallbackMode, PolicyTreatAsCancelled,
		PolicyTreatAsSuccess, PolicySkipThrottle:
		return true
	default:
		return false
	}
}

// RetryOnceDelay bounds the 300-400ms window spec.md §6 names for -2021;
// doWithRetry waits the midpoint of the window (350ms) before its one retry.
const (
	RetryOnceDelayMin = 300
	RetryOnceDelayMax = 400
)

const (
	CodeMarginInsufficient   = -2019
	CodeWouldImmediateTrig   = -2021
	CodeReduceOnlyNotNeeded  = -1106
	CodeUnknownOrder         = -2011
	CodeDuplicateReduceOnly  = -4164
	CodeMaxOpenOrders        = -2010
	CodeRateLimited          = 429
)

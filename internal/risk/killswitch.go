package risk

// KillSwitchReason names which of the four ordered checks tripped, or ""
// if none did. Order matters: spec.md §4.G evaluates these in sequence and
// the first that fires halts new entries for the cycle.
type KillSwitchReason string

const (
	NoKillSwitch             KillSwitchReason = ""
	KillDailyLoss            KillSwitchReason = "DailyLossLimit"
	KillDrawdown             KillSwitchReason = "DrawdownLimit"
	KillConsecutiveLosses    KillSwitchReason = "ConsecutiveLosses"
	KillLatency              KillSwitchReason = "LatencyDegraded"
)

// KillSwitchInput is the per-cycle snapshot the orchestrator feeds the
// check; everything here is already computed elsewhere (equity tracking,
// the leverage governor's loss counter, the gateway's own call-latency
// samples).
type KillSwitchInput struct {
	DailyRealizedPnL     float64
	StartingEquity       float64
	DrawdownFromPeak     float64
	ConsecutiveLosses    int
	RecentCallLatenciesSeconds []float64 // last up to 20 exchange-call latencies
}

// CheckKillSwitches runs the four ordered pre-entry checks of spec.md §4.G
// and returns the first that trips. Exits are never gated by this check;
// callers only consult it before submit_entry.
func CheckKillSwitches(cfg Config, in KillSwitchInput) KillSwitchReason {
	if in.StartingEquity > 0 && in.DailyRealizedPnL <= -cfg.MaxDailyLossPct*in.StartingEquity {
		return KillDailyLoss
	}
	maxDD := cfg.MaxDrawdown
	if maxDD <= 0 {
		maxDD = maxDrawdownDefault
	}
	if in.DrawdownFromPeak >= maxDD {
		return KillDrawdown
	}
	if in.ConsecutiveLosses >= consecutiveLossLimit {
		return KillConsecutiveLosses
	}
	if avgLatency(in.RecentCallLatenciesSeconds) > latencyKillThresholdSeconds {
		return KillLatency
	}
	return NoKillSwitch
}

func avgLatency(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	window := samples
	if len(window) > 20 {
		window = window[len(window)-20:]
	}
	var sum float64
	for _, s := range window {
		sum += s
	}
	return sum / float64(len(window))
}

package models

// Intent is the single per-symbol, per-cycle action chosen by the
// Signal Arbitrator. Exactly one Intent exists per (symbol, cycle).
type Intent struct {
	Symbol             string
	Side               Side
	AggregateScore     float64
	ContributingAgents []string
	Conflict           bool
}

// IsTrade reports whether the intent calls for opening a position.
func (i Intent) IsTrade() bool {
	return i.Side == SideLong || i.Side == SideShort
}

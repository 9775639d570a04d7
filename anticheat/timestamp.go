package anticheat

// Timestamp sanity bounds, milliseconds. The lag budget tolerates slow
// links in both directions; the forward bound is tighter because a
// client clock running ahead of the server is a spoofing signal, not a
// network artifact.
const (
	LagBudgetMs         = 2_000
	ClockForwardBoundMs = 500
)

// ValidTimestamp reports whether a client timestamp is plausible
// against the server clock.
func ValidTimestamp(clientMs, serverMs int64) bool {
	diff := clientMs - serverMs
	if diff > ClockForwardBoundMs {
		return false
	}
	if diff < -LagBudgetMs {
		return false
	}
	return true
}

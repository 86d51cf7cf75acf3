package probe

// minInterval guards the rate computation against sub-millisecond deltas.
const minInterval = 0.001

// mbps converts a byte delta over a time delta to megabits per second.
// Callers pass interval deltas for instantaneous rates and session totals
// for cumulative averages.
func mbps(deltaBytes int64, deltaSeconds float64) float64 {
	if deltaSeconds < minInterval {
		deltaSeconds = minInterval
	}
	return float64(deltaBytes) * 8 / (deltaSeconds * 1e6)
}

package alerting

import "github.com/shopspring/decimal"

// Direction classifies the monitored quantity against its threshold.
type Direction string

const (
	DirectionNone Direction = "none"
	DirectionHigh Direction = "high"
	DirectionLow  Direction = "low"
)

// Transition is the dedup state machine: an alert is emitted only when the
// observed direction is a real signal and differs from the previous one.
// Same-direction repeats are suppressed, never re-notified.
func Transition(prev, observed Direction) (Direction, bool) {
	if observed == DirectionNone || observed == prev {
		return prev, false
	}
	return observed, true
}

// ClassifyDaily looks at the two most recent complete days' totals. Both at
// or above threshold reads high, both below reads low; days straddling the
// threshold give no signal.
func ClassifyDaily(older, newer, threshold decimal.Decimal) Direction {
	olderHigh := older.GreaterThanOrEqual(threshold)
	newerHigh := newer.GreaterThanOrEqual(threshold)
	switch {
	case olderHigh && newerHigh:
		return DirectionHigh
	case !olderHigh && !newerHigh:
		return DirectionLow
	default:
		return DirectionNone
	}
}

// ClassifySample classifies one live-demand sample in watts.
func ClassifySample(demand, threshold float64) Direction {
	if demand >= threshold {
		return DirectionHigh
	}
	return DirectionLow
}

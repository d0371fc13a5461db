package normalize

import "math"

const (
	// CumulativeRatio decides whether a monotone series is a running total.
	// A series whose plain sum exceeds CumulativeRatio times the sum of its
	// positive steps is treated as cumulative.
	CumulativeRatio = 1.8

	// MaxCounterResets is how many drops a running total may have within a
	// day and still count as monotone.
	MaxCounterResets = 1

	// ResetTolerance is the relative drop, against the previous value, below
	// which a step still counts as level.
	ResetTolerance = 0.001

	// MinCumulativeRises is the fewest rising steps a running total needs.
	// A level series is an amount per interval, not a counter.
	MinCumulativeRises = 2
)

// CumulativeSums returns the plain sum of values and the sum of positive
// steps between consecutive values, with the value before the first entry
// taken as 0.
func CumulativeSums(values []float64) (sumRaw, sumDiff float64) {
	var prev float64
	for _, v := range values {
		v = finite(v)
		sumRaw += v
		if d := v - prev; d > 0 {
			sumDiff += d
		}
		prev = v
	}
	return sumRaw, sumDiff
}

// IsMonotone reports whether values never fall, apart from at most
// MaxCounterResets drops, and rise at least MinCumulativeRises times.
func IsMonotone(values []float64) bool {
	var resets, rises int
	for i := 1; i < len(values); i++ {
		prev, v := finite(values[i-1]), finite(values[i])
		switch {
		case v > prev:
			rises++
		case prev-v > ResetTolerance*math.Abs(prev):
			resets++
			if resets > MaxCounterResets {
				return false
			}
		}
	}
	return rises >= MinCumulativeRises
}

// IsCumulative reports whether values look like a running total since the
// start of the day. Only monotone series are candidates; the sum ratio then
// decides.
func IsCumulative(values []float64) bool {
	if !IsMonotone(values) {
		return false
	}
	sumRaw, sumDiff := CumulativeSums(values)
	return sumRaw > CumulativeRatio*sumDiff
}

// Difference returns the step between each value and the one before it,
// with the value before the first entry taken as 0. Negative steps (counter
// resets) clamp to 0.
func Difference(values []float64) []float64 {
	out := make([]float64, len(values))
	var prev float64
	for i, v := range values {
		v = finite(v)
		out[i] = math.Max(0, v-prev)
		prev = v
	}
	return out
}

// Decumulate returns the differenced series if values are cumulative and a
// copy of values otherwise, along with whether differencing was applied.
func Decumulate(values []float64) ([]float64, bool) {
	if IsCumulative(values) {
		return Difference(values), true
	}
	out := make([]float64, len(values))
	copy(out, values)
	return out, false
}

func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

package normalize

import (
	"math"
	"sort"
	"time"

	"github.com/wattledger/wattledger/pkg/common"
	"github.com/wattledger/wattledger/pkg/types"
)

// Normalizer turns extracted series into canonical per-hour kWh Series.
type Normalizer struct {
	// MagnitudeThreshold is passed to FixMagnitude.
	MagnitudeThreshold float64
	// Location is the local timezone hours are bucketed in.
	Location *time.Location
}

// New returns a Normalizer. A non-positive threshold uses
// DefaultMagnitudeThreshold and a nil location uses UTC.
func New(threshold float64, loc *time.Location) Normalizer {
	if threshold <= 0 {
		threshold = DefaultMagnitudeThreshold
	}
	if loc == nil {
		loc = time.UTC
	}
	return Normalizer{MagnitudeThreshold: threshold, Location: loc}
}

// toKWH applies either the explicit unit conversion or, for values labelled
// kWh, the magnitude fix.
func (n Normalizer) toKWH(values []float64, unit string) []float64 {
	values = sanitize(values)
	if IsKWHLabel(unit) {
		fixed, _ := FixMagnitude(values, unit, n.MagnitudeThreshold)
		return fixed
	}
	return ToKilo(values, unit)
}

// Hourly normalizes a series with one value per hour slot, as returned by
// the day report. Cumulative series are differenced.
func (n Normalizer) Hourly(raw RawSeries) types.Series {
	values := n.toKWH(raw.Values, raw.Unit)
	values, _ = Decumulate(values)
	return types.Series{
		Variable: raw.Variable,
		Unit:     "kWh",
		Values:   Fit24(values),
	}
}

// DailyTotals normalizes a series with one total per day of a month. Daily
// totals are independent amounts so no cumulative detection is applied.
func (n Normalizer) DailyTotals(raw RawSeries) []float64 {
	values := n.toKWH(raw.Values, raw.Unit)
	for i, v := range values {
		values[i] = common.RoundKWH(math.Max(0, v))
	}
	return values
}

// Bucket sums timestamped samples for day into 24 local hours. Energy
// samples are summed per hour after cumulative detection. Anything else is
// treated as power and integrated over the time until the next sample, with
// each sample covering at most an hour. Samples after cutoff are ignored and
// no sample extends past it; a zero cutoff means the whole day.
func (n Normalizer) Bucket(raw RawSeries, day types.Date, cutoff time.Time) types.Series {
	dayStart := day.Time(n.Location)
	dayEnd := day.AddDays(1).Time(n.Location)

	points := make([]Point, 0, len(raw.Points))
	for _, p := range raw.Points {
		if p.Time.Before(dayStart) || !p.Time.Before(dayEnd) {
			continue
		}
		points = append(points, Point{Time: p.Time, Value: finite(p.Value)})
	}
	sort.SliceStable(points, func(i, j int) bool {
		return points[i].Time.Before(points[j].Time)
	})

	var buckets [types.HoursPerDay]float64
	out := types.Series{Variable: raw.Variable, Unit: "kWh"}
	if len(points) == 0 {
		return out
	}

	limit := dayEnd
	if !cutoff.IsZero() && cutoff.Before(limit) {
		limit = cutoff
	}

	if KindOf(raw.Unit) == UnitEnergy && raw.Unit != "" {
		values := make([]float64, len(points))
		for i, p := range points {
			values[i] = p.Value
		}
		values = n.toKWH(values, raw.Unit)
		values, _ = Decumulate(values)
		for i, p := range points {
			if p.Time.After(limit) {
				break
			}
			buckets[p.Time.In(n.Location).Hour()] += values[i]
		}
	} else {
		factor := 1.0 / WattsPerKilowatt
		if u, ok := lookupUnit(raw.Unit); ok && u.kind == UnitPower {
			factor = u.toKilo
		}
		for i, p := range points {
			if p.Time.After(limit) {
				break
			}
			end := p.Time.Add(time.Hour)
			if i+1 < len(points) && points[i+1].Time.Before(end) {
				end = points[i+1].Time
			}
			if end.After(limit) {
				end = limit
			}
			dt := end.Sub(p.Time).Hours()
			if dt <= 0 {
				continue
			}
			buckets[p.Time.In(n.Location).Hour()] += p.Value * factor * dt
		}
	}

	out.Values = Fit24(buckets[:])
	return out
}

// Fit24 fits values into 24 hourly slots, truncating or zero-padding, and
// rounds each slot to watt-hours. Negative and non-finite values become 0.
func Fit24(values []float64) [types.HoursPerDay]float64 {
	var out [types.HoursPerDay]float64
	for i := 0; i < len(out) && i < len(values); i++ {
		out[i] = common.RoundKWH(math.Max(0, finite(values[i])))
	}
	return out
}

func sanitize(values []float64) []float64 {
	out := make([]float64, len(values))
	for i, v := range values {
		out[i] = finite(v)
	}
	return out
}

package normalize

import (
	"math"
	"strings"
)

// DefaultMagnitudeThreshold is the largest plausible value for a series
// labelled kWh. Anything above it is assumed to be Wh mislabelled as kWh.
const DefaultMagnitudeThreshold = 20000

// WattsPerKilowatt converts W or Wh to kW or kWh.
const WattsPerKilowatt = 1000

// UnitKind classifies a unit label.
type UnitKind int

const (
	UnitUnknown UnitKind = iota
	UnitEnergy
	UnitPower
)

// Classification of a unit label together with the factor that converts it
// to kWh or kW.
type unitInfo struct {
	kind   UnitKind
	toKilo float64
}

var units = map[string]unitInfo{
	"kwh": {kind: UnitEnergy, toKilo: 1},
	"wh":  {kind: UnitEnergy, toKilo: 1.0 / WattsPerKilowatt},
	"mwh": {kind: UnitEnergy, toKilo: WattsPerKilowatt},
	"kw":  {kind: UnitPower, toKilo: 1},
	"w":   {kind: UnitPower, toKilo: 1.0 / WattsPerKilowatt},
}

func lookupUnit(unit string) (unitInfo, bool) {
	u, ok := units[strings.ToLower(strings.TrimSpace(unit))]
	return u, ok
}

// KindOf returns whether unit measures energy or power. An empty unit is
// treated as energy since the report endpoints omit it for kWh values.
func KindOf(unit string) UnitKind {
	if strings.TrimSpace(unit) == "" {
		return UnitEnergy
	}
	u, ok := lookupUnit(unit)
	if !ok {
		return UnitUnknown
	}
	return u.kind
}

// IsKWHLabel reports whether unit claims to be kWh, including the empty
// label.
func IsKWHLabel(unit string) bool {
	u := strings.ToLower(strings.TrimSpace(unit))
	return u == "" || u == "kwh"
}

// FixMagnitude rescales values labelled as kWh whose maximum exceeds
// threshold by dividing them by 1000. It returns a new slice and whether the
// values were rescaled. Values with any other label are returned unchanged.
func FixMagnitude(values []float64, unit string, threshold float64) ([]float64, bool) {
	out := make([]float64, len(values))
	copy(out, values)
	if !IsKWHLabel(unit) || len(values) == 0 {
		return out, false
	}
	if MaxFinite(values) <= threshold {
		return out, false
	}
	for i := range out {
		out[i] /= WattsPerKilowatt
	}
	return out, true
}

// ToKilo converts values in an explicit W, Wh, MWh, kW or kWh unit to kW or
// kWh. Unknown units are returned unchanged.
func ToKilo(values []float64, unit string) []float64 {
	out := make([]float64, len(values))
	copy(out, values)
	u, ok := lookupUnit(unit)
	if !ok || u.toKilo == 1 {
		return out
	}
	for i := range out {
		out[i] *= u.toKilo
	}
	return out
}

// MaxFinite returns the largest finite value, or 0 if there is none.
func MaxFinite(values []float64) float64 {
	best := math.Inf(-1)
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		if v > best {
			best = v
		}
	}
	if math.IsInf(best, -1) {
		return 0
	}
	return best
}

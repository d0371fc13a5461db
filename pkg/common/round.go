package common

import (
	"math"

	"github.com/shopspring/decimal"
)

// Round rounds v to places decimal places, half away from zero. Non-finite
// values round to 0.
func Round(v float64, places int32) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return decimal.NewFromFloat(v).Round(places).InexactFloat64()
}

// RoundKWH rounds an energy amount to watt-hour precision.
func RoundKWH(v float64) float64 {
	return Round(v, 3)
}

// RoundPLN rounds a money amount to grosze.
func RoundPLN(v float64) float64 {
	return Round(v, 2)
}

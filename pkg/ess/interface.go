package ess

import (
	"context"
	"time"

	"github.com/wattledger/wattledger/pkg/normalize"
	"github.com/wattledger/wattledger/pkg/types"
)

// Dimension is the aggregation level of a report query.
type Dimension string

const (
	DimensionDay   Dimension = "day"
	DimensionMonth Dimension = "month"
)

// DailyTotal is a native per-day energy total as reported by the inverter
// cloud, before magnitude normalization.
type DailyTotal struct {
	Date  types.Date
	Value float64
}

// System defines the interface for reading an inverter's telemetry.
type System interface {
	// Report returns the aggregated report for the period containing date.
	// A day report has one value per hour and a month report one per day.
	Report(ctx context.Context, date types.Date, dim Dimension, variables []string) (normalize.Shape, error)

	// History returns fine-grained samples for date. Samples after end are
	// not requested; a zero end means the whole day.
	History(ctx context.Context, date types.Date, variables []string, end time.Time) (normalize.Shape, error)

	// MonthEnergy returns the native per-day generation totals for month.
	MonthEnergy(ctx context.Context, month types.YearMonth) ([]DailyTotal, error)

	// Realtime returns the current snapshot of the given variables.
	Realtime(ctx context.Context, variables []string) (types.Realtime, error)

	// Devices lists the inverters registered to the account.
	Devices(ctx context.Context) ([]types.Device, error)

	// Location returns the timezone the inverter's days are reported in.
	Location() *time.Location
}

package energy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/samber/lo"

	"github.com/wattledger/wattledger/pkg/cache"
	"github.com/wattledger/wattledger/pkg/common"
	"github.com/wattledger/wattledger/pkg/ess"
	"github.com/wattledger/wattledger/pkg/log"
	"github.com/wattledger/wattledger/pkg/normalize"
	"github.com/wattledger/wattledger/pkg/types"
)

// NativeMonth is a month of per-day totals from the inverter cloud's own
// aggregation. Values[i] is day i+1 and is only meaningful if Present[i].
type NativeMonth struct {
	Month   types.YearMonth
	Values  []float64
	Present []bool
}

// Total returns the sum of the present days.
func (n NativeMonth) Total() float64 {
	var total float64
	for i, v := range n.Values {
		if n.Present[i] {
			total += v
		}
	}
	return common.RoundKWH(total)
}

// Day returns the total for d and whether the month had one.
func (n NativeMonth) Day(d types.Date) (float64, bool) {
	i := d.Day - 1
	if types.YearMonthOf(d) != n.Month || i < 0 || i >= len(n.Values) || !n.Present[i] {
		return 0, false
	}
	return n.Values[i], true
}

func newNativeMonth(month types.YearMonth) NativeMonth {
	days := month.LastDay().Day
	return NativeMonth{
		Month:   month,
		Values:  make([]float64, days),
		Present: make([]bool, days),
	}
}

// NativeMonth returns the native per-day totals for month. Generation comes
// from the month energy endpoint, falling back to a month report if that
// endpoint errors or has no rows. Export only has the month report.
func (r *Resolver) NativeMonth(ctx context.Context, month types.YearMonth, q types.Quantity) (NativeMonth, error) {
	key := cache.Key("native", string(q), month.String())
	return r.native.GetOrCompute(ctx, key, r.monthTTLFor(month), func(ctx context.Context) (NativeMonth, error) {
		if q == types.QuantityGeneration {
			nm, err := r.monthEnergy(ctx, month)
			if err == nil {
				return nm, nil
			}
			log.Ctx(ctx).DebugContext(ctx, "month energy unavailable, trying month report", slog.String("month", month.String()), slog.Any("error", err))
		}
		return r.monthReport(ctx, month, q)
	})
}

func (r *Resolver) monthEnergy(ctx context.Context, month types.YearMonth) (NativeMonth, error) {
	totals, err := r.system.MonthEnergy(ctx, month)
	if err != nil {
		return NativeMonth{}, err
	}
	totals = lo.Filter(totals, func(t ess.DailyTotal, _ int) bool {
		return types.YearMonthOf(t.Date) == month
	})
	if len(totals) == 0 {
		return NativeMonth{}, errors.New("month energy returned no rows")
	}

	nm := newNativeMonth(month)
	raw := make([]float64, len(nm.Values))
	for _, t := range totals {
		raw[t.Date.Day-1] = t.Value
		nm.Present[t.Date.Day-1] = true
	}
	// the magnitude fix looks at the whole month so every day scales alike
	nm.Values = r.norm.DailyTotals(normalize.RawSeries{Unit: "kWh", Values: raw})
	return nm, nil
}

func (r *Resolver) monthReport(ctx context.Context, month types.YearMonth, q types.Quantity) (NativeMonth, error) {
	shape, err := r.system.Report(ctx, month.FirstDay(), ess.DimensionMonth, Aliases(q))
	if err != nil {
		return NativeMonth{}, err
	}
	raw, err := normalize.Extract(shape, "month report")
	if err != nil {
		return NativeMonth{}, err
	}

	var chosen []float64
	for _, rs := range orderByAlias(q, raw, Aliases(q)) {
		if len(rs.Values) == 0 {
			continue
		}
		values := r.norm.DailyTotals(rs)
		if chosen == nil {
			chosen = values
		}
		if lo.Sum(values) > 0 {
			chosen = values
			break
		}
	}
	if chosen == nil {
		return NativeMonth{}, fmt.Errorf("month report for %s has no %s series", month, q)
	}

	nm := newNativeMonth(month)
	for i := range nm.Values {
		if i < len(chosen) {
			nm.Values[i] = chosen[i]
			nm.Present[i] = true
		}
	}
	return nm, nil
}

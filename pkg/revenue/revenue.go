package revenue

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/wattledger/wattledger/pkg/common"
	"github.com/wattledger/wattledger/pkg/types"
)

// KWHPerMWH converts between the energy unit (kWh) and the pricing unit
// (PLN/MWh).
const KWHPerMWH = 1000

var kwhPerMWH = decimal.NewFromInt(KWHPerMWH)

// UsedPrice returns the price used for revenue. Negative prices earn
// nothing but are still reported as the raw price.
func UsedPrice(pricePLNPerMWH float64) float64 {
	if pricePLNPerMWH < 0 {
		return 0
	}
	return pricePLNPerMWH
}

func revenue(kwh, pricePLNPerMWH float64) decimal.Decimal {
	return decimal.NewFromFloat(kwh).
		Mul(decimal.NewFromFloat(UsedPrice(pricePLNPerMWH))).
		Div(kwhPerMWH)
}

// Revenue returns kwh * max(0, price) / 1000 rounded to grosze.
func Revenue(kwh, pricePLNPerMWH float64) float64 {
	return common.RoundPLN(revenue(kwh, pricePLNPerMWH).InexactFloat64())
}

// Hourly computes a row per hour of series against prices, which must
// hold one entry for each hour. Row revenue is rounded for display but the
// total is rounded once from the unrounded sum.
func Hourly(date types.Date, series types.Series, prices []types.PriceHourly) (types.DayRevenue, error) {
	byHour := make(map[int]float64, len(prices))
	for _, p := range prices {
		byHour[p.Hour] = p.PricePLNPerMWH
	}

	out := types.DayRevenue{
		Date: date,
		Mode: types.PriceModeHourly,
		Rows: make([]types.RevenueRow, 0, types.HoursPerDay),
	}
	total := decimal.Zero
	for h, kwh := range series.Values {
		price, ok := byHour[h]
		if !ok {
			return types.DayRevenue{}, fmt.Errorf("missing hourly price for %s hour %d", date, h)
		}
		r := revenue(kwh, price)
		total = total.Add(r)
		out.Rows = append(out.Rows, types.RevenueRow{
			Hour:               h,
			KWH:                common.RoundKWH(kwh),
			PriceRawPLNPerMWH:  price,
			PriceUsedPLNPerMWH: UsedPrice(price),
			RevenuePLN:         common.RoundPLN(r.InexactFloat64()),
		})
	}
	out.TotalKWH = common.RoundKWH(series.Total())
	out.RevenuePLN = common.RoundPLN(total.InexactFloat64())
	return out, nil
}

// Monthly computes the revenue of a day's total under a monthly price. It is
// a single scalar with no hourly rows.
func Monthly(date types.Date, totalKWH float64, price types.PriceMonthly) types.DayRevenue {
	return types.DayRevenue{
		Date:         date,
		Mode:         types.PriceModeMonthly,
		TotalKWH:     common.RoundKWH(totalKWH),
		RevenuePLN:   Revenue(totalKWH, price.PricePLNPerMWH),
		MonthlyPrice: &price,
	}
}

// MonthAmount is a month's energy with the monthly price applied to it.
type MonthAmount struct {
	KWH   float64
	Price types.PriceMonthly
}

// MonthlyTotal sums kWh * price / 1000 across months and rounds the result
// once.
func MonthlyTotal(amounts []MonthAmount) float64 {
	total := decimal.Zero
	for _, a := range amounts {
		total = total.Add(revenue(a.KWH, a.Price.PricePLNPerMWH))
	}
	return common.RoundPLN(total.InexactFloat64())
}

// HourlyTotal sums already computed day revenues, rounding once.
func HourlyTotal(days []types.DayRevenue) float64 {
	total := decimal.Zero
	for _, d := range days {
		total = total.Add(decimal.NewFromFloat(d.RevenuePLN))
	}
	return common.RoundPLN(total.InexactFloat64())
}

package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/samber/lo"

	"github.com/wattledger/wattledger/pkg/cache"
	"github.com/wattledger/wattledger/pkg/common"
	"github.com/wattledger/wattledger/pkg/energy"
	"github.com/wattledger/wattledger/pkg/log"
	"github.com/wattledger/wattledger/pkg/revenue"
	"github.com/wattledger/wattledger/pkg/types"
	"github.com/wattledger/wattledger/pkg/utility"
)

// ComputeDayRevenue returns the revenue of date's generation under mode.
//
// In hourly mode a day without hourly prices, or without an hourly series,
// is computed with the monthly price and marked Fallback when the fallback
// is enabled; otherwise the error is returned.
func (s *Service) ComputeDayRevenue(ctx context.Context, date types.Date, mode types.PriceMode) (types.DayRevenue, error) {
	ctx = log.WithAttrs(ctx, slog.String("date", date.String()), slog.String("mode", string(mode)))
	key := cache.Key("revenue", date.String(), string(mode))
	return s.revenue.GetOrCompute(ctx, key, s.dayTTL, func(ctx context.Context) (types.DayRevenue, error) {
		switch mode {
		case types.PriceModeHourly:
			return s.hourlyDay(ctx, date)
		case types.PriceModeMonthly:
			return s.monthlyDay(ctx, date)
		}
		return types.DayRevenue{}, fmt.Errorf("unknown price mode: %s", mode)
	})
}

func (s *Service) hourlyDay(ctx context.Context, date types.Date) (types.DayRevenue, error) {
	res, err := s.resolver.Resolve(ctx, date, types.QuantityGeneration, energy.ModeSeries)
	if err != nil {
		return types.DayRevenue{}, err
	}

	// a native total without any hourly breakdown can't be priced per hour
	if !res.SeriesAuthoritative && res.Series.IsZero() && res.TotalKWH > 0 {
		gapErr := &utility.PricingGapError{Source: "energy", Period: date.String(), Reason: "no hourly series for native total"}
		return s.fallback(ctx, date, res.TotalKWH, gapErr)
	}

	prices, err := s.prices.HourlyPrices(ctx, date)
	if err != nil {
		return s.fallback(ctx, date, res.TotalKWH, err)
	}
	return revenue.Hourly(date, res.Series, prices)
}

func (s *Service) fallback(ctx context.Context, date types.Date, totalKWH float64, cause error) (types.DayRevenue, error) {
	if !s.fallbackMonthly {
		return types.DayRevenue{}, cause
	}
	price, err := s.prices.MonthlyPrice(ctx, types.YearMonthOf(date))
	if err != nil {
		return types.DayRevenue{}, fmt.Errorf("hourly prices unavailable (%v), monthly fallback failed: %w", cause, err)
	}
	log.Ctx(ctx).WarnContext(
		ctx,
		"hourly prices unavailable, using monthly price",
		slog.Any("error", cause),
		slog.String("priceMonth", price.YearMonth().String()),
		slog.Float64("price", price.PricePLNPerMWH),
	)
	out := revenue.Monthly(date, totalKWH, price)
	out.Fallback = true
	return out, nil
}

func (s *Service) monthlyDay(ctx context.Context, date types.Date) (types.DayRevenue, error) {
	res, err := s.resolver.Resolve(ctx, date, types.QuantityGeneration, energy.ModeTotal)
	if err != nil {
		return types.DayRevenue{}, err
	}
	price, err := s.prices.MonthlyPrice(ctx, types.YearMonthOf(date))
	if err != nil {
		return types.DayRevenue{}, err
	}
	return revenue.Monthly(date, res.TotalKWH, price), nil
}

// ComputeRangeRevenue returns the generation revenue over [from, to] under
// mode. Dates whose energy or price could not be fetched contribute zero and
// are listed in FailedDates.
//
// In monthly mode each calendar month of the range is priced with its own
// monthly price. A non-nil priceMonth applies that month's price to the whole
// range instead.
func (s *Service) ComputeRangeRevenue(ctx context.Context, from, to types.Date, mode types.PriceMode, priceMonth *types.YearMonth) (types.RangeResult, error) {
	if err := checkRange(from, to); err != nil {
		return types.RangeResult{}, err
	}
	ctx = log.WithAttrs(ctx, slog.String("from", from.String()), slog.String("to", to.String()), slog.String("mode", string(mode)))

	var (
		out types.RangeResult
		err error
	)
	switch mode {
	case types.PriceModeHourly:
		out, err = s.hourlyRange(ctx, types.DatesBetween(from, to))
	case types.PriceModeMonthly:
		out, err = s.monthlyRange(ctx, types.DatesBetween(from, to), priceMonth)
	default:
		return types.RangeResult{}, fmt.Errorf("unknown price mode: %s", mode)
	}
	if err != nil {
		return types.RangeResult{}, err
	}
	out.From = from
	out.To = to
	out.Mode = mode
	types.SortDates(out.FailedDates)
	logFailed(ctx, "range revenue has failed dates", out.FailedDates)
	return out, nil
}

func (s *Service) hourlyRange(ctx context.Context, dates []types.Date) (types.RangeResult, error) {
	days := make([]types.DayRevenue, len(dates))
	failed := make([]bool, len(dates))
	err := s.each(ctx, len(dates), func(ctx context.Context, i int) {
		day, err := s.ComputeDayRevenue(ctx, dates[i], types.PriceModeHourly)
		if err != nil {
			log.Ctx(ctx).DebugContext(ctx, "day revenue failed", slog.String("date", dates[i].String()), slog.Any("error", err))
			failed[i] = true
			return
		}
		days[i] = day
	})
	if err != nil {
		return types.RangeResult{}, err
	}

	out := types.RangeResult{FailedDates: []types.Date{}}
	var ok []types.DayRevenue
	var totalKWH float64
	for i, day := range days {
		if failed[i] {
			out.FailedDates = append(out.FailedDates, dates[i])
			continue
		}
		ok = append(ok, day)
		totalKWH += day.TotalKWH
	}
	total := revenue.HourlyTotal(ok)
	out.TotalKWH = common.RoundKWH(totalKWH)
	out.TotalRevenuePLN = &total
	return out, nil
}

func (s *Service) monthlyRange(ctx context.Context, dates []types.Date, priceMonth *types.YearMonth) (types.RangeResult, error) {
	results, err := s.dayTotals(ctx, dates, types.QuantityGeneration)
	if err != nil {
		return types.RangeResult{}, err
	}

	out := types.RangeResult{FailedDates: []types.Date{}}
	byMonth := lo.GroupBy(results, func(res energy.Result) types.YearMonth {
		return types.YearMonthOf(res.Date)
	})
	months := lo.Keys(byMonth)
	slices.SortFunc(months, types.YearMonth.Compare)

	var override *types.PriceMonthly
	if priceMonth != nil {
		price, err := s.prices.MonthlyPrice(ctx, *priceMonth)
		if err != nil {
			return types.RangeResult{}, err
		}
		override = &price
		out.Prices = []types.PriceMonthly{price}
	}

	var amounts []revenue.MonthAmount
	var totalKWH float64
	for _, month := range months {
		var kwh float64
		var failed []types.Date
		for _, res := range byMonth[month] {
			if res.Failed {
				failed = append(failed, res.Date)
				continue
			}
			kwh += res.TotalKWH
		}

		price := override
		if price == nil {
			p, err := s.prices.MonthlyPrice(ctx, month)
			if err != nil {
				log.Ctx(ctx).WarnContext(ctx, "no monthly price, month contributes zero", slog.String("month", month.String()), slog.Any("error", err))
				out.FailedDates = append(out.FailedDates, lo.Map(byMonth[month], func(res energy.Result, _ int) types.Date {
					return res.Date
				})...)
				continue
			}
			price = &p
			out.Prices = append(out.Prices, p)
		}
		out.FailedDates = append(out.FailedDates, failed...)
		amounts = append(amounts, revenue.MonthAmount{KWH: kwh, Price: *price})
		totalKWH += kwh
	}

	total := revenue.MonthlyTotal(amounts)
	out.TotalKWH = common.RoundKWH(totalKWH)
	out.TotalRevenuePLN = &total
	return out, nil
}

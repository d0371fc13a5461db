package ledger

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/wattledger/wattledger/pkg/cache"
	"github.com/wattledger/wattledger/pkg/common"
	"github.com/wattledger/wattledger/pkg/energy"
	"github.com/wattledger/wattledger/pkg/log"
	"github.com/wattledger/wattledger/pkg/types"
)

// FetchDayEnergy returns the generation and export of date. A quantity that
// could not be fetched is zero; the day is only marked failed, and an error
// returned, when neither could be.
func (s *Service) FetchDayEnergy(ctx context.Context, date types.Date) (types.DayEnergy, error) {
	var (
		gen, exp       energy.Result
		genErr, expErr error
	)
	var g errgroup.Group
	g.Go(func() error {
		gen, genErr = s.resolver.Resolve(ctx, date, types.QuantityGeneration, energy.ModeSeries)
		return nil
	})
	g.Go(func() error {
		exp, expErr = s.resolver.Resolve(ctx, date, types.QuantityExport, energy.ModeSeries)
		return nil
	})
	_ = g.Wait()

	out := types.DayEnergy{
		Date:                date,
		GenerationKWH:       gen.TotalKWH,
		ExportKWH:           exp.TotalKWH,
		Series:              gen.Series,
		ExportSeries:        exp.Series,
		SeriesAuthoritative: gen.SeriesAuthoritative,
	}
	if gen.Failed && exp.Failed {
		out.Failed = true
		return out, errors.Join(genErr, expErr)
	}
	return out, nil
}

// dayTotals resolves the total of every date. Failed dates have Failed set
// on their result.
func (s *Service) dayTotals(ctx context.Context, dates []types.Date, q types.Quantity) ([]energy.Result, error) {
	results := make([]energy.Result, len(dates))
	err := s.each(ctx, len(dates), func(ctx context.Context, i int) {
		// the error is logged by the resolver and reflected in Failed
		results[i], _ = s.resolver.Resolve(ctx, dates[i], q, energy.ModeTotal)
	})
	return results, err
}

// FetchRangeEnergy sums q over [from, to]. Dates that could not be fetched
// contribute zero and are listed in FailedDates.
func (s *Service) FetchRangeEnergy(ctx context.Context, from, to types.Date, q types.Quantity) (types.RangeResult, error) {
	if err := checkRange(from, to); err != nil {
		return types.RangeResult{}, err
	}
	results, err := s.dayTotals(ctx, types.DatesBetween(from, to), q)
	if err != nil {
		return types.RangeResult{}, err
	}

	out := types.RangeResult{
		From:        from,
		To:          to,
		FailedDates: []types.Date{},
	}
	var total float64
	for _, res := range results {
		if res.Failed {
			out.FailedDates = append(out.FailedDates, res.Date)
			continue
		}
		total += res.TotalKWH
	}
	out.TotalKWH = common.RoundKWH(total)
	logFailed(ctx, "range energy has failed dates", out.FailedDates)
	return out, nil
}

// FetchMonthEnergy returns the total of q for month. The native month total
// is used when it is positive, otherwise the days are summed. Days after
// today are not fetched.
func (s *Service) FetchMonthEnergy(ctx context.Context, month types.YearMonth, q types.Quantity) (types.MonthEnergy, error) {
	empty := types.MonthEnergy{Month: month, Quantity: q, FailedDates: []types.Date{}}
	today := s.Today()
	if month.After(types.YearMonthOf(today)) {
		return empty, nil
	}

	key := cache.Key("month", string(q), month.String())
	return s.months.GetOrCompute(ctx, key, s.ttlFor(month), func(ctx context.Context) (types.MonthEnergy, error) {
		ctx = log.WithAttrs(ctx, slog.String("month", month.String()), slog.String("quantity", string(q)))
		out := empty

		var nm energy.NativeMonth
		err := s.limited(ctx, func(ctx context.Context) error {
			var err error
			nm, err = s.resolver.NativeMonth(ctx, month, q)
			return err
		})
		if ctx.Err() != nil {
			return types.MonthEnergy{}, ctx.Err()
		}
		if err != nil {
			log.Ctx(ctx).DebugContext(ctx, "native month total unavailable", slog.Any("error", err))
		} else if total := nm.Total(); total > 0 {
			out.TotalKWH = total
			out.Native = true
			return out, nil
		}

		last := month.LastDay()
		if today.Before(last) {
			last = today
		}
		log.Ctx(ctx).WarnContext(ctx, "no native month total, summing days")
		rr, err := s.FetchRangeEnergy(ctx, month.FirstDay(), last, q)
		if err != nil {
			return types.MonthEnergy{}, err
		}
		out.TotalKWH = rr.TotalKWH
		out.FailedDates = rr.FailedDates
		return out, nil
	})
}

// FetchYearEnergy returns the total of q for year as the sum of its months.
// Months after the current one are skipped. The months run together and share
// the service-wide limit with the days they fetch.
func (s *Service) FetchYearEnergy(ctx context.Context, year int, q types.Quantity) (types.YearEnergy, error) {
	current := types.YearMonthOf(s.Today())
	var months []types.YearMonth
	for m := time.January; m <= time.December; m++ {
		ym := types.YearMonth{Year: year, Month: m}
		if ym.After(current) {
			break
		}
		months = append(months, ym)
	}

	ttl := s.monthTTL
	if year >= current.Year {
		ttl = s.dayTTL
	}
	key := cache.Key("year", string(q), strconv.Itoa(year))
	return s.years.GetOrCompute(ctx, key, ttl, func(ctx context.Context) (types.YearEnergy, error) {
		results := make([]types.MonthEnergy, len(months))
		errs := make([]error, len(months))
		var g errgroup.Group
		for i := range months {
			g.Go(func() error {
				results[i], errs[i] = s.FetchMonthEnergy(ctx, months[i], q)
				return nil
			})
		}
		_ = g.Wait()
		if err := ctx.Err(); err != nil {
			return types.YearEnergy{}, err
		}
		if err := errors.Join(errs...); err != nil {
			return types.YearEnergy{}, err
		}

		out := types.YearEnergy{
			Year:        year,
			Quantity:    q,
			Months:      results,
			FailedDates: []types.Date{},
		}
		var total float64
		for _, me := range results {
			total += me.TotalKWH
			out.FailedDates = append(out.FailedDates, me.FailedDates...)
		}
		types.SortDates(out.FailedDates)
		out.TotalKWH = common.RoundKWH(total)
		return out, nil
	})
}

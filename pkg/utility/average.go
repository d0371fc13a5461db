package utility

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/wattledger/wattledger/pkg/common"
	"github.com/wattledger/wattledger/pkg/log"
	"github.com/wattledger/wattledger/pkg/types"
)

// MonthAverage returns the mean of every available hourly price in month.
// Days after last are not requested and days without prices are listed in
// MissingDates. concurrency bounds the number of days fetched at once.
func MonthAverage(ctx context.Context, p HourlyProvider, month types.YearMonth, last types.Date, concurrency int) (types.MonthAverage, error) {
	days := month.Days()
	out := types.MonthAverage{Month: month}

	var mu sync.Mutex
	var sum float64
	eg, ctx := errgroup.WithContext(ctx)
	if concurrency > 0 {
		eg.SetLimit(concurrency)
	}
	for _, day := range days {
		if !last.IsZero() && day.After(last) {
			continue
		}
		eg.Go(func() error {
			prices, err := p.HourlyPrices(ctx, day)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				log.Ctx(ctx).WarnContext(ctx, "no rce prices for day", slog.String("date", day.String()), slog.Any("error", err))
				out.MissingDates = append(out.MissingDates, day)
				return nil
			}
			for _, price := range prices {
				// filled hours would double count their neighbour
				if price.SampleCount == 0 {
					continue
				}
				sum += price.PricePLNPerMWH
				out.Hours++
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return out, err
	}

	types.SortDates(out.MissingDates)
	if out.Hours == 0 {
		return out, &PricingGapError{Source: pseSource, Period: month.String(), Reason: "no hourly prices in month"}
	}
	out.PricePLNPerMWH = common.Round(sum/float64(out.Hours), 2)
	return out, nil
}

package ledger

import (
	"context"

	"github.com/wattledger/wattledger/pkg/types"
	"github.com/wattledger/wattledger/pkg/utility"
)

// HourlyPrices returns the hourly prices of date.
func (s *Service) HourlyPrices(ctx context.Context, date types.Date) ([]types.PriceHourly, error) {
	return s.prices.HourlyPrices(ctx, date)
}

// MonthlyPrice returns the monthly price used for month.
func (s *Service) MonthlyPrice(ctx context.Context, month types.YearMonth) (types.PriceMonthly, error) {
	return s.prices.MonthlyPrice(ctx, month)
}

// MonthPriceAverage returns the mean hourly price of month up to today.
func (s *Service) MonthPriceAverage(ctx context.Context, month types.YearMonth) (types.MonthAverage, error) {
	last := month.LastDay()
	if today := s.Today(); today.Before(last) {
		last = today
	}
	return utility.MonthAverage(ctx, s.prices, month, last, s.concurrency)
}

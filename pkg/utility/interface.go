package utility

import (
	"context"

	"github.com/wattledger/wattledger/pkg/types"
)

// HourlyProvider defines the interface for fetching hourly market prices.
type HourlyProvider interface {
	// HourlyPrices returns 24 prices for date in hour order. A
	// PricingGapError is returned if the feed has nothing for the date.
	HourlyPrices(ctx context.Context, date types.Date) ([]types.PriceHourly, error)
}

// MonthlyProvider defines the interface for fetching monthly average prices.
type MonthlyProvider interface {
	// MonthlyPrice returns the price for month, or the nearest earlier month
	// with Substituted set. A PricingGapError is returned if there is no
	// earlier month.
	MonthlyPrice(ctx context.Context, month types.YearMonth) (types.PriceMonthly, error)
}

// Provider is both an HourlyProvider and a MonthlyProvider.
type Provider interface {
	HourlyProvider
	MonthlyProvider
}

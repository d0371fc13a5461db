package utility

import (
	"context"
	"errors"
	"sync"

	"github.com/wattledger/wattledger/pkg/types"
)

// Configured sets up the price providers based on flags.
func Configured() *Map {
	m := NewMap()
	m.SetHourly(configuredPSE())
	m.SetMonthly(configuredRCEm())
	return m
}

// Map holds the hourly and monthly price providers and implements Provider
// by delegating to them.
type Map struct {
	mu      sync.Mutex
	hourly  HourlyProvider
	monthly MonthlyProvider
}

var _ Provider = (*Map)(nil)

// NewMap creates an empty Map.
func NewMap() *Map {
	return &Map{}
}

// SetHourly sets the hourly provider. This is primarily used for testing.
func (m *Map) SetHourly(p HourlyProvider) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hourly = p
}

// SetMonthly sets the monthly provider. This is primarily used for testing.
func (m *Map) SetMonthly(p MonthlyProvider) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.monthly = p
}

func (m *Map) providers() (HourlyProvider, MonthlyProvider) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.hourly, m.monthly
}

// Validate ensures every configured provider is valid.
func (m *Map) Validate() error {
	hourly, monthly := m.providers()
	var errs []error
	for _, p := range []any{hourly, monthly} {
		if v, ok := p.(interface{ Validate() error }); ok {
			errs = append(errs, v.Validate())
		}
	}
	return errors.Join(errs...)
}

// HourlyPrices implements HourlyProvider.
func (m *Map) HourlyPrices(ctx context.Context, date types.Date) ([]types.PriceHourly, error) {
	hourly, _ := m.providers()
	if hourly == nil {
		return nil, &PricingGapError{Source: pseSource, Period: date.String(), Reason: "no hourly provider configured"}
	}
	return hourly.HourlyPrices(ctx, date)
}

// MonthlyPrice implements MonthlyProvider.
func (m *Map) MonthlyPrice(ctx context.Context, month types.YearMonth) (types.PriceMonthly, error) {
	_, monthly := m.providers()
	if monthly == nil {
		return types.PriceMonthly{}, &PricingGapError{Source: rcemSource, Period: month.String(), Reason: "no monthly provider configured"}
	}
	return monthly.MonthlyPrice(ctx, month)
}

// Table returns the monthly table if the monthly provider has one.
func (m *Map) Table() []types.PriceMonthly {
	_, monthly := m.providers()
	if t, ok := monthly.(interface{ Table() []types.PriceMonthly }); ok {
		return t.Table()
	}
	return nil
}

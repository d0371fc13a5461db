package utility

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/levenlabs/go-lflag"
	"github.com/samber/lo"

	"github.com/wattledger/wattledger/pkg/log"
	"github.com/wattledger/wattledger/pkg/types"
)

const rcemSource = "rcem"

// DefaultRCEmTable is the published monthly market price (RCEm) in PLN/MWh
// keyed by YYYY-MM. Months missing here resolve to the nearest earlier
// month.
var DefaultRCEmTable = map[string]float64{
	"2023-11": 703.81,
	"2023-12": 716.80,
	"2024-01": 437.02,
	"2024-02": 324.25,
	"2024-03": 249.12,
	"2024-05": 255.59,
	"2024-06": 330.47,
	"2024-08": 241.94,
	"2024-10": 311.67,
	"2024-11": 380.35,
	"2024-12": 304.63,
	"2025-01": 480.01,
	"2025-02": 442.02,
	"2025-03": 182.96,
	"2025-04": 163.19,
	"2025-05": 216.97,
	"2025-06": 136.30,
	"2025-07": 284.83,
}

// RCEm implements MonthlyProvider with a fixed table.
type RCEm struct {
	mu     sync.RWMutex
	prices map[types.YearMonth]float64
}

// NewRCEm returns an RCEm for table, keyed by YYYY-MM.
func NewRCEm(table map[string]float64) (*RCEm, error) {
	r := &RCEm{}
	if err := r.SetTable(table); err != nil {
		return nil, err
	}
	return r, nil
}

// configuredRCEm sets up flags for the monthly table and returns the
// instance.
func configuredRCEm() *RCEm {
	r := &RCEm{}
	table := DefaultRCEmTable
	lflag.JSON(&table, "rcem-table", table, "JSON map of YYYY-MM to monthly RCEm price in PLN/MWh")
	lflag.Do(func() {
		if err := r.SetTable(table); err != nil {
			panic(err)
		}
	})
	return r
}

// SetTable replaces the table.
func (r *RCEm) SetTable(table map[string]float64) error {
	prices := make(map[types.YearMonth]float64, len(table))
	for k, v := range table {
		ym, err := types.ParseYearMonth(k)
		if err != nil {
			return fmt.Errorf("invalid rcem month %q: %w", k, err)
		}
		prices[ym] = v
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.prices = prices
	return nil
}

// Validate ensures the configuration is valid.
func (r *RCEm) Validate() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.prices) == 0 {
		return fmt.Errorf("rcem-table is empty")
	}
	return nil
}

// MonthlyPrice implements MonthlyProvider.
func (r *RCEm) MonthlyPrice(ctx context.Context, month types.YearMonth) (types.PriceMonthly, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if price, ok := r.prices[month]; ok {
		return monthly(month, month, price, false), nil
	}

	var found bool
	var best types.YearMonth
	for ym := range r.prices {
		if ym.Before(month) && (!found || best.Before(ym)) {
			best = ym
			found = true
		}
	}
	if !found {
		return types.PriceMonthly{}, &PricingGapError{Source: rcemSource, Period: month.String(), Reason: "before the first known month"}
	}

	log.Ctx(ctx).WarnContext(
		ctx,
		"rcem price missing for month, using nearest earlier month",
		slog.String("requested", month.String()),
		slog.String("used", best.String()),
	)
	return monthly(best, month, r.prices[best], true), nil
}

// Table returns every known month in chronological order.
func (r *RCEm) Table() []types.PriceMonthly {
	r.mu.RLock()
	defer r.mu.RUnlock()
	months := lo.Keys(r.prices)
	slices.SortFunc(months, func(a, b types.YearMonth) int {
		return a.Compare(b)
	})
	return lo.Map(months, func(ym types.YearMonth, _ int) types.PriceMonthly {
		return monthly(ym, ym, r.prices[ym], false)
	})
}

func monthly(used, requested types.YearMonth, price float64, substituted bool) types.PriceMonthly {
	return types.PriceMonthly{
		Year:           used.Year,
		MonthIndex:     used.MonthIndex(),
		PricePLNPerMWH: price,
		Requested:      requested,
		Substituted:    substituted,
	}
}

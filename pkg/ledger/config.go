package ledger

import (
	"github.com/levenlabs/go-lflag"

	"github.com/wattledger/wattledger/pkg/ess"
	"github.com/wattledger/wattledger/pkg/normalize"
	"github.com/wattledger/wattledger/pkg/utility"
)

// Configured sets up flags for the service and returns it. The service is
// usable once lflag.Configure has been called, which must happen after
// system's own flags were registered.
func Configured(system ess.System, prices utility.Provider) *Service {
	s := &Service{system: system, prices: prices}

	threshold := float64(normalize.DefaultMagnitudeThreshold)
	lflag.JSON(&threshold, "foxess-magnitude-threshold", threshold, "Largest plausible kWh value before a series is rescaled from Wh")
	concurrency := DefaultConcurrency
	lflag.JSON(&concurrency, "aggregate-concurrency", concurrency, "Number of remote fetches in flight at once across every range, month and year operation")
	fallback := lflag.Bool("hourly-fallback-monthly", true, "Use the monthly price for days without hourly prices")
	dayTTL := lflag.Duration("cache-day-ttl", DefaultDayTTL, "How long resolved days and revenue are cached")
	monthTTL := lflag.Duration("cache-month-ttl", DefaultMonthTTL, "How long past month and year totals are cached")

	lflag.Do(func() {
		s.init(Config{
			Concurrency:           concurrency,
			HourlyFallbackMonthly: *fallback,
			MagnitudeThreshold:    threshold,
			DayTTL:                *dayTTL,
			MonthTTL:              *monthTTL,
		})
		if err := s.Validate(); err != nil {
			panic(err)
		}
	})

	return s
}

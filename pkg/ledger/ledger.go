package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/benbjohnson/clock"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/wattledger/wattledger/pkg/cache"
	"github.com/wattledger/wattledger/pkg/energy"
	"github.com/wattledger/wattledger/pkg/ess"
	"github.com/wattledger/wattledger/pkg/log"
	"github.com/wattledger/wattledger/pkg/types"
	"github.com/wattledger/wattledger/pkg/utility"
)

const (
	DefaultConcurrency = 4
	DefaultDayTTL      = time.Minute
	DefaultMonthTTL    = 10 * time.Minute
)

// Config configures a Service.
type Config struct {
	// Concurrency bounds how many remote fetches are in flight at once across
	// every fan-out of the service, including nested ones.
	Concurrency int
	// HourlyFallbackMonthly computes a day with the monthly price when its
	// hourly prices are unavailable.
	HourlyFallbackMonthly bool
	// MagnitudeThreshold is passed to the energy resolver.
	MagnitudeThreshold float64
	DayTTL             time.Duration
	MonthTTL           time.Duration
	Clock              clock.Clock
}

// Service answers energy and revenue questions for a site by combining the
// energy resolver with the price providers.
type Service struct {
	system   ess.System
	prices   utility.Provider
	resolver *energy.Resolver
	clock    clock.Clock

	revenue *cache.Cache[types.DayRevenue]
	months  *cache.Cache[types.MonthEnergy]
	years   *cache.Cache[types.YearEnergy]

	concurrency     int
	limit           *semaphore.Weighted
	fallbackMonthly bool
	dayTTL          time.Duration
	monthTTL        time.Duration
}

// New returns a Service reading energy from system and prices from prices.
func New(system ess.System, prices utility.Provider, cfg Config) *Service {
	s := &Service{system: system, prices: prices}
	s.init(cfg)
	return s
}

func (s *Service) init(cfg Config) {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.DayTTL <= 0 {
		cfg.DayTTL = DefaultDayTTL
	}
	if cfg.MonthTTL <= 0 {
		cfg.MonthTTL = DefaultMonthTTL
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	s.clock = cfg.Clock
	s.resolver = energy.New(s.system, energy.Config{
		MagnitudeThreshold: cfg.MagnitudeThreshold,
		DayTTL:             cfg.DayTTL,
		MonthTTL:           cfg.MonthTTL,
		Clock:              cfg.Clock,
	})
	s.revenue = cache.New[types.DayRevenue](cfg.Clock)
	s.months = cache.New[types.MonthEnergy](cfg.Clock)
	s.years = cache.New[types.YearEnergy](cfg.Clock)
	s.concurrency = cfg.Concurrency
	s.limit = semaphore.NewWeighted(int64(cfg.Concurrency))
	s.fallbackMonthly = cfg.HourlyFallbackMonthly
	s.dayTTL = cfg.DayTTL
	s.monthTTL = cfg.MonthTTL
}

// Validate ensures the service is usable.
func (s *Service) Validate() error {
	if s.system == nil {
		return errors.New("no energy system configured")
	}
	if s.prices == nil {
		return errors.New("no price provider configured")
	}
	if s.concurrency <= 0 {
		return fmt.Errorf("invalid aggregate concurrency: %d", s.concurrency)
	}
	return nil
}

// Today returns the current date in the site's timezone.
func (s *Service) Today() types.Date {
	return s.resolver.Today()
}

// each calls fn for every index in [0, n). Every call holds a slot of the
// service-wide limit, so fn must not call each itself. fn must record its own
// failures.
func (s *Service) each(ctx context.Context, n int, fn func(ctx context.Context, i int)) error {
	var g errgroup.Group
	var err error
	for i := 0; i < n; i++ {
		if err = s.limit.Acquire(ctx, 1); err != nil {
			break
		}
		g.Go(func() error {
			defer s.limit.Release(1)
			fn(ctx, i)
			return nil
		})
	}
	if werr := g.Wait(); werr != nil {
		return werr
	}
	if err != nil {
		return err
	}
	return ctx.Err()
}

// limited calls fn while holding a slot of the service-wide limit.
func (s *Service) limited(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := s.limit.Acquire(ctx, 1); err != nil {
		return err
	}
	defer s.limit.Release(1)
	return fn(ctx)
}

func checkRange(from, to types.Date) error {
	if from.IsZero() || to.IsZero() {
		return errors.New("range requires both from and to")
	}
	if to.Before(from) {
		return fmt.Errorf("invalid range: %s is before %s", to, from)
	}
	return nil
}

// ttlFor returns the day TTL for months that can still change and the month
// TTL for the rest.
func (s *Service) ttlFor(month types.YearMonth) time.Duration {
	if !types.YearMonthOf(s.Today()).After(month) {
		return s.dayTTL
	}
	return s.monthTTL
}

func logFailed(ctx context.Context, msg string, failed []types.Date) {
	if len(failed) == 0 {
		return
	}
	dates := make([]string, 0, len(failed))
	for _, d := range failed {
		dates = append(dates, d.String())
	}
	log.Ctx(ctx).WarnContext(ctx, msg, slog.Any("failedDates", dates))
}

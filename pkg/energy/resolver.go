package energy

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/wattledger/wattledger/pkg/cache"
	"github.com/wattledger/wattledger/pkg/common"
	"github.com/wattledger/wattledger/pkg/ess"
	"github.com/wattledger/wattledger/pkg/log"
	"github.com/wattledger/wattledger/pkg/normalize"
	"github.com/wattledger/wattledger/pkg/types"
)

// Tier names the source that produced a result.
type Tier string

const (
	TierNative  Tier = "native"
	TierReport  Tier = "report"
	TierHistory Tier = "history"
	TierLocal   Tier = "local"
	TierNone    Tier = "none"
)

// Mode selects how far down the tiers Resolve goes.
type Mode int

const (
	// ModeSeries resolves an hourly series. A native total is still
	// authoritative but the lower tiers are consulted for the series.
	ModeSeries Mode = iota
	// ModeTotal stops at the first tier with a plausible total.
	ModeTotal
)

func (m Mode) String() string {
	if m == ModeTotal {
		return "total"
	}
	return "series"
}

// Result is the resolved energy for one date and quantity.
type Result struct {
	Date     types.Date
	Quantity types.Quantity
	TotalKWH float64
	Series   types.Series
	// Tier produced TotalKWH.
	Tier Tier
	// SeriesAuthoritative is set when TotalKWH is the sum of Series.
	SeriesAuthoritative bool
	// Failed is set when no tier produced any data.
	Failed bool
}

// Config configures a Resolver.
type Config struct {
	// MagnitudeThreshold is passed to the normalizer.
	MagnitudeThreshold float64
	// DayTTL is how long a resolved day is cached.
	DayTTL time.Duration
	// MonthTTL is how long native month totals for past months are cached.
	MonthTTL time.Duration
	Clock    clock.Clock
	// Cache holds resolved days. A nil Cache creates one.
	Cache *cache.Cache[Result]
}

// Resolver resolves a date's energy by falling through an ordered list of
// sources: the native daily totals, the day report, the history samples
// and finally whatever was already fetched.
type Resolver struct {
	system   ess.System
	norm     normalize.Normalizer
	clock    clock.Clock
	results  *cache.Cache[Result]
	native   *cache.Cache[NativeMonth]
	dayTTL   time.Duration
	monthTTL time.Duration
}

// New returns a Resolver reading from system.
func New(system ess.System, cfg Config) *Resolver {
	clk := cfg.Clock
	if clk == nil {
		clk = clock.New()
	}
	results := cfg.Cache
	if results == nil {
		results = cache.New[Result](clk)
	}
	return &Resolver{
		system:   system,
		norm:     normalize.New(cfg.MagnitudeThreshold, system.Location()),
		clock:    clk,
		results:  results,
		native:   cache.New[NativeMonth](clk),
		dayTTL:   cfg.DayTTL,
		monthTTL: cfg.MonthTTL,
	}
}

// Today returns the current date in the inverter's timezone.
func (r *Resolver) Today() types.Date {
	return types.DateOf(r.clock.Now().In(r.system.Location()))
}

func (r *Resolver) monthTTLFor(month types.YearMonth) time.Duration {
	if month == types.YearMonthOf(r.Today()) {
		return r.dayTTL
	}
	return r.monthTTL
}

func resultKey(date types.Date, q types.Quantity, mode Mode) string {
	return cache.Key("day", string(q), date.String(), mode.String())
}

// Resolve returns the energy for date. It never fails outright: if every
// tier failed the result is all zero with Failed set, and a NoDataError is
// returned alongside it.
func (r *Resolver) Resolve(ctx context.Context, date types.Date, q types.Quantity, mode Mode) (Result, error) {
	ctx = log.WithAttrs(ctx, slog.String("date", date.String()), slog.String("quantity", string(q)))
	res, err := r.results.GetOrCompute(ctx, resultKey(date, q, mode), r.dayTTL, func(ctx context.Context) (Result, error) {
		return r.resolve(ctx, date, q, mode)
	})
	if err != nil {
		log.Ctx(ctx).WarnContext(ctx, "no energy data for date", slog.Any("error", err))
		return Result{
			Date:     date,
			Quantity: q,
			Series:   types.ZeroSeries(string(q)),
			Tier:     TierNone,
			Failed:   true,
		}, err
	}
	return res, nil
}

// partial is the first non-empty series seen by the remote tiers, kept for
// the local sum.
type partial struct {
	series *types.Series
}

func (p *partial) offer(s types.Series) {
	if p.series == nil {
		p.series = &s
	}
}

func (r *Resolver) resolve(ctx context.Context, date types.Date, q types.Quantity, mode Mode) (Result, error) {
	res := Result{
		Date:     date,
		Quantity: q,
		Series:   types.ZeroSeries(string(q)),
		Tier:     TierNone,
	}

	loc := r.system.Location()
	now := r.clock.Now().In(loc)
	today := types.DateOf(now)
	if date.After(today) {
		return res, nil
	}
	var cutoff time.Time
	if date == today {
		cutoff = now
	}

	var errs []error
	var kept partial
	var haveData bool

	// native daily total
	nativeOK := false
	nm, err := r.NativeMonth(ctx, types.YearMonthOf(date), q)
	if err != nil {
		errs = append(errs, err)
		log.Ctx(ctx).DebugContext(ctx, "native tier failed", slog.Any("error", err))
	} else if total, ok := nm.Day(date); ok {
		haveData = true
		if plausible(total) {
			nativeOK = true
			res.TotalKWH = total
			res.Tier = TierNative
			if mode == ModeTotal {
				return res, nil
			}
		}
	}

	accept := func(s types.Series, tier Tier) Result {
		res.Series = s
		if !nativeOK {
			res.TotalKWH = common.RoundKWH(s.Total())
			res.Tier = tier
			res.SeriesAuthoritative = true
		}
		return res
	}

	// day report
	s, ok, err := r.reportTier(ctx, date, q, &kept)
	if err != nil {
		errs = append(errs, err)
		log.Ctx(ctx).DebugContext(ctx, "report tier failed", slog.Any("error", err))
	} else {
		haveData = true
		if ok {
			return accept(s, TierReport), nil
		}
	}

	// history samples
	s, ok, err = r.historyTier(ctx, date, q, cutoff, &kept)
	if err != nil {
		errs = append(errs, err)
		log.Ctx(ctx).DebugContext(ctx, "history tier failed", slog.Any("error", err))
	} else {
		haveData = true
		if ok {
			return accept(s, TierHistory), nil
		}
	}

	// local sum of whatever is left; a fresh native total beats anything
	// cached earlier
	if !nativeOK {
		if stale, ok := r.stale(date, q, mode); ok {
			log.Ctx(ctx).WarnContext(ctx, "remote tiers empty, using stale cached result", slog.Float64("totalKWh", stale.TotalKWH))
			return stale, nil
		}
	}
	if kept.series != nil {
		log.Ctx(ctx).WarnContext(ctx, "remote tiers empty, summing partial series")
		return accept(*kept.series, TierLocal), nil
	}
	if nativeOK || haveData {
		if !nativeOK {
			res.Tier = TierLocal
		}
		return res, nil
	}
	return res, &NoDataError{Date: date, Quantity: q, Errs: errs}
}

// stale returns an expired but previously good result for date.
func (r *Resolver) stale(date types.Date, q types.Quantity, mode Mode) (Result, bool) {
	for _, m := range []Mode{mode, ModeSeries, ModeTotal} {
		if res, ok := r.results.Peek(resultKey(date, q, m)); ok && !res.Failed && res.TotalKWH > 0 {
			return res, true
		}
	}
	return Result{}, false
}

func (r *Resolver) reportTier(ctx context.Context, date types.Date, q types.Quantity, kept *partial) (types.Series, bool, error) {
	shape, err := r.system.Report(ctx, date, ess.DimensionDay, Aliases(q))
	if err != nil {
		return types.Series{}, false, err
	}
	raw, err := normalize.Extract(shape, "day report")
	if err != nil {
		return types.Series{}, false, err
	}
	for _, rs := range orderByAlias(q, raw, Aliases(q)) {
		if rs.Len() == 0 {
			continue
		}
		s := r.norm.Hourly(rs)
		kept.offer(s)
		if plausible(s.Total()) {
			return s, true, nil
		}
	}
	return types.Series{}, false, nil
}

func (r *Resolver) historyTier(ctx context.Context, date types.Date, q types.Quantity, cutoff time.Time, kept *partial) (types.Series, bool, error) {
	vars := HistoryVariables(q)
	shape, err := r.system.History(ctx, date, vars, cutoff)
	if err != nil {
		return types.Series{}, false, err
	}
	raw, err := normalize.Extract(shape, "history")
	if err != nil {
		return types.Series{}, false, err
	}
	for _, rs := range orderByAlias(q, raw, vars) {
		if len(rs.Points) == 0 {
			continue
		}
		s := r.norm.Bucket(rs, date, cutoff)
		kept.offer(s)
		if plausible(s.Total()) {
			return s, true, nil
		}
	}
	return types.Series{}, false, nil
}

func plausible(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v > 0
}

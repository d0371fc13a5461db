package energy

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/wattledger/wattledger/pkg/ess"
	"github.com/wattledger/wattledger/pkg/ess/essmock"
	"github.com/wattledger/wattledger/pkg/log"
	"github.com/wattledger/wattledger/pkg/normalize"
	"github.com/wattledger/wattledger/pkg/types"
)

func init() {
	log.SetDefaultLogLevel(slog.LevelError)
}

var warsaw = func() *time.Location {
	loc, err := time.LoadLocation("Europe/Warsaw")
	if err != nil {
		panic(err)
	}
	return loc
}()

var (
	july     = types.YearMonth{Year: 2025, Month: time.July}
	pastDay  = types.Date{Year: 2025, Month: time.July, Day: 1}
	today    = types.Date{Year: 2025, Month: time.July, Day: 10}
	nowLocal = time.Date(2025, 7, 10, 12, 0, 0, 0, warsaw)

	errTransport = &ess.TransportError{Path: "/test", Err: errors.New("connection reset")}
)

func setup(t *testing.T) (*Resolver, *essmock.MockSystem, *clock.Mock) {
	t.Helper()
	clk := clock.NewMock()
	clk.Set(nowLocal)
	sys := &essmock.MockSystem{Loc: warsaw}
	r := New(sys, Config{
		DayTTL:   time.Minute,
		MonthTTL: 10 * time.Minute,
		Clock:    clk,
	})
	return r, sys, clk
}

func hourly(variable, unit string, values map[int]float64) normalize.FlatList {
	vals := make([]float64, types.HoursPerDay)
	for h, v := range values {
		vals[h] = v
	}
	return normalize.FlatList{Items: []normalize.RawSeries{{Variable: variable, Unit: unit, Values: vals}}}
}

func expectNativeFails(sys *essmock.MockSystem) {
	sys.On("MonthEnergy", mock.Anything, mock.Anything).Return(nil, errTransport)
	sys.On("Report", mock.Anything, mock.Anything, ess.DimensionMonth, mock.Anything).Return(nil, errTransport)
}

func expectNativeZero(sys *essmock.MockSystem) {
	sys.On("MonthEnergy", mock.Anything, july).Return([]ess.DailyTotal{{Date: pastDay, Value: 0}}, nil)
}

func TestResolveTierOrder(t *testing.T) {
	gen := types.QuantityGeneration

	t.Run("zero native total falls to report", func(t *testing.T) {
		r, sys, _ := setup(t)
		sys.On("MonthEnergy", mock.Anything, july).Return([]ess.DailyTotal{{Date: pastDay, Value: 0}}, nil)
		sys.On("Report", mock.Anything, pastDay, ess.DimensionDay, Aliases(gen)).
			Return(hourly("generation", "kWh", map[int]float64{10: 1.5, 11: 2.5}), nil)

		res, err := r.Resolve(context.Background(), pastDay, gen, ModeSeries)
		require.NoError(t, err)
		assert.Equal(t, TierReport, res.Tier)
		assert.Equal(t, 4.0, res.TotalKWH)
		assert.Equal(t, 1.5, res.Series.Values[10])
		assert.Equal(t, 2.5, res.Series.Values[11])
		assert.True(t, res.SeriesAuthoritative)
		assert.False(t, res.Failed)

		sys.AssertNumberOfCalls(t, "MonthEnergy", 1)
		sys.AssertNumberOfCalls(t, "Report", 1)
		sys.AssertNotCalled(t, "History", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("native total only", func(t *testing.T) {
		r, sys, _ := setup(t)
		sys.On("MonthEnergy", mock.Anything, july).Return([]ess.DailyTotal{
			{Date: pastDay, Value: 21.4},
			{Date: pastDay.AddDays(1), Value: 18.2},
		}, nil)

		res, err := r.Resolve(context.Background(), pastDay, gen, ModeTotal)
		require.NoError(t, err)
		assert.Equal(t, TierNative, res.Tier)
		assert.Equal(t, 21.4, res.TotalKWH)
		assert.True(t, res.Series.IsZero())
		sys.AssertNotCalled(t, "Report", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("native total with report series", func(t *testing.T) {
		r, sys, _ := setup(t)
		sys.On("MonthEnergy", mock.Anything, july).Return([]ess.DailyTotal{{Date: pastDay, Value: 21.4}}, nil)
		sys.On("Report", mock.Anything, pastDay, ess.DimensionDay, Aliases(gen)).
			Return(hourly("generation", "kWh", map[int]float64{12: 4}), nil)

		res, err := r.Resolve(context.Background(), pastDay, gen, ModeSeries)
		require.NoError(t, err)
		assert.Equal(t, TierNative, res.Tier)
		assert.Equal(t, 21.4, res.TotalKWH)
		assert.Equal(t, 4.0, res.Series.Values[12])
		assert.False(t, res.SeriesAuthoritative)
	})

	t.Run("later alias wins when earlier is zero", func(t *testing.T) {
		r, sys, _ := setup(t)
		expectNativeFails(sys)
		vals := make([]float64, 24)
		vals[9] = 3
		sys.On("Report", mock.Anything, pastDay, ess.DimensionDay, Aliases(gen)).Return(normalize.FlatList{Items: []normalize.RawSeries{
			{Variable: "feedin", Unit: "kWh", Values: vals},
			{Variable: "generation", Unit: "kWh", Values: make([]float64, 24)},
			{Variable: "yield", Unit: "kWh", Values: vals},
		}}, nil)

		res, err := r.Resolve(context.Background(), pastDay, gen, ModeSeries)
		require.NoError(t, err)
		assert.Equal(t, "yield", res.Series.Variable)
		assert.Equal(t, 3.0, res.TotalKWH)
	})

	t.Run("history when report is empty", func(t *testing.T) {
		r, sys, _ := setup(t)
		expectNativeFails(sys)
		sys.On("Report", mock.Anything, pastDay, ess.DimensionDay, Aliases(gen)).
			Return(hourly("generation", "kWh", nil), nil)
		sys.On("History", mock.Anything, pastDay, HistoryVariables(gen), time.Time{}).Return(normalize.NestedList{Groups: [][]normalize.RawSeries{{{
			Variable: "generationPower",
			Unit:     "kW",
			Points: []normalize.Point{
				{Time: time.Date(2025, 7, 1, 10, 0, 0, 0, warsaw), Value: 2},
				{Time: time.Date(2025, 7, 1, 10, 30, 0, 0, warsaw), Value: 4},
			},
		}}}}, nil)

		res, err := r.Resolve(context.Background(), pastDay, gen, ModeSeries)
		require.NoError(t, err)
		assert.Equal(t, TierHistory, res.Tier)
		assert.Equal(t, 5.0, res.Series.Values[10])
		assert.Equal(t, 5.0, res.TotalKWH)
	})

	t.Run("magnitude fix on report", func(t *testing.T) {
		r, sys, _ := setup(t)
		expectNativeFails(sys)
		sys.On("Report", mock.Anything, pastDay, ess.DimensionDay, Aliases(gen)).
			Return(hourly("generation", "kWh", map[int]float64{11: 25000, 12: 1000}), nil)

		res, err := r.Resolve(context.Background(), pastDay, gen, ModeSeries)
		require.NoError(t, err)
		assert.Equal(t, 25.0, res.Series.Values[11])
		assert.Equal(t, 1.0, res.Series.Values[12])
	})
}

func TestResolveFallbacks(t *testing.T) {
	gen := types.QuantityGeneration

	t.Run("every tier fails", func(t *testing.T) {
		r, sys, _ := setup(t)
		expectNativeFails(sys)
		sys.On("Report", mock.Anything, pastDay, ess.DimensionDay, mock.Anything).Return(nil, &ess.AuthError{Path: "/report", Tried: 3})
		sys.On("History", mock.Anything, pastDay, mock.Anything, mock.Anything).Return(normalize.Unrecognized{Reason: "empty list"}, nil)

		res, err := r.Resolve(context.Background(), pastDay, gen, ModeSeries)
		require.Error(t, err)
		assert.True(t, IsNoData(err))
		assert.True(t, ess.IsAuth(err))
		assert.True(t, res.Failed)
		assert.Equal(t, TierNone, res.Tier)
		assert.Equal(t, pastDay, res.Date)
		assert.True(t, res.Series.IsZero())
		assert.Len(t, res.Series.Values, 24)

		var shapeErr *normalize.ShapeError
		assert.ErrorAs(t, err, &shapeErr)

		// failures are not cached
		_, err = r.Resolve(context.Background(), pastDay, gen, ModeSeries)
		require.Error(t, err)
		sys.AssertNumberOfCalls(t, "History", 2)
	})

	t.Run("zero from a successful call is not a failure", func(t *testing.T) {
		r, sys, _ := setup(t)
		expectNativeFails(sys)
		sys.On("Report", mock.Anything, pastDay, ess.DimensionDay, Aliases(gen)).
			Return(hourly("generation", "kWh", nil), nil)
		sys.On("History", mock.Anything, pastDay, mock.Anything, mock.Anything).Return(nil, errTransport)

		res, err := r.Resolve(context.Background(), pastDay, gen, ModeSeries)
		require.NoError(t, err)
		assert.False(t, res.Failed)
		assert.Equal(t, TierLocal, res.Tier)
		assert.Equal(t, 0.0, res.TotalKWH)
		assert.Equal(t, "generation", res.Series.Variable)
	})

	t.Run("stale cached result", func(t *testing.T) {
		r, sys, clk := setup(t)
		expectNativeZero(sys)
		sys.On("Report", mock.Anything, pastDay, ess.DimensionDay, Aliases(gen)).
			Return(hourly("generation", "kWh", map[int]float64{13: 7}), nil).Once()
		sys.On("Report", mock.Anything, pastDay, ess.DimensionDay, Aliases(gen)).Return(nil, errTransport)
		sys.On("History", mock.Anything, pastDay, mock.Anything, mock.Anything).Return(nil, errTransport)

		first, err := r.Resolve(context.Background(), pastDay, gen, ModeSeries)
		require.NoError(t, err)
		require.Equal(t, 7.0, first.TotalKWH)

		clk.Add(2 * time.Minute)
		second, err := r.Resolve(context.Background(), pastDay, gen, ModeSeries)
		require.NoError(t, err)
		assert.Equal(t, first, second)
		sys.AssertNumberOfCalls(t, "Report", 2)
	})

	t.Run("fresh native total beats stale cached result", func(t *testing.T) {
		r, sys, clk := setup(t)
		sys.On("MonthEnergy", mock.Anything, july).Return([]ess.DailyTotal{{Date: pastDay, Value: 0}}, nil).Once()
		sys.On("MonthEnergy", mock.Anything, july).Return([]ess.DailyTotal{{Date: pastDay, Value: 21.4}}, nil)
		sys.On("Report", mock.Anything, pastDay, ess.DimensionDay, Aliases(gen)).
			Return(hourly("generation", "kWh", map[int]float64{13: 7}), nil).Once()
		sys.On("Report", mock.Anything, pastDay, ess.DimensionDay, Aliases(gen)).Return(nil, errTransport)
		sys.On("History", mock.Anything, pastDay, mock.Anything, mock.Anything).Return(nil, errTransport)

		first, err := r.Resolve(context.Background(), pastDay, gen, ModeSeries)
		require.NoError(t, err)
		require.Equal(t, 7.0, first.TotalKWH)
		require.Equal(t, TierReport, first.Tier)

		clk.Add(2 * time.Minute)
		second, err := r.Resolve(context.Background(), pastDay, gen, ModeSeries)
		require.NoError(t, err)
		assert.Equal(t, TierNative, second.Tier)
		assert.Equal(t, 21.4, second.TotalKWH)
		assert.False(t, second.SeriesAuthoritative)
	})

	t.Run("future date", func(t *testing.T) {
		r, sys, _ := setup(t)
		res, err := r.Resolve(context.Background(), today.AddDays(1), gen, ModeSeries)
		require.NoError(t, err)
		assert.False(t, res.Failed)
		assert.Equal(t, 0.0, res.TotalKWH)
		sys.AssertExpectations(t)
		assert.Empty(t, sys.Calls)
	})

	t.Run("today passes the cutoff", func(t *testing.T) {
		r, sys, _ := setup(t)
		expectNativeFails(sys)
		sys.On("Report", mock.Anything, today, ess.DimensionDay, Aliases(gen)).Return(normalize.Unrecognized{}, nil)
		sys.On("History", mock.Anything, today, HistoryVariables(gen), mock.MatchedBy(func(end time.Time) bool {
			return end.Equal(nowLocal)
		})).Return(normalize.NestedList{Groups: [][]normalize.RawSeries{{{
			Variable: "generationPower",
			Unit:     "W",
			Points: []normalize.Point{
				{Time: time.Date(2025, 7, 10, 11, 30, 0, 0, warsaw), Value: 3000},
			},
		}}}}, nil)

		res, err := r.Resolve(context.Background(), today, gen, ModeSeries)
		require.NoError(t, err)
		// the sample would cover an hour but stops at the cutoff
		assert.Equal(t, 1.5, res.Series.Values[11])
		assert.True(t, res.Series.Values[12] == 0)
	})
}

func TestResolveCaching(t *testing.T) {
	gen := types.QuantityGeneration

	t.Run("cached within ttl", func(t *testing.T) {
		r, sys, _ := setup(t)
		expectNativeZero(sys)
		sys.On("Report", mock.Anything, pastDay, ess.DimensionDay, Aliases(gen)).
			Return(hourly("generation", "kWh", map[int]float64{9: 1}), nil)

		for i := 0; i < 3; i++ {
			_, err := r.Resolve(context.Background(), pastDay, gen, ModeSeries)
			require.NoError(t, err)
		}
		sys.AssertNumberOfCalls(t, "Report", 1)
	})

	t.Run("idempotent for past dates", func(t *testing.T) {
		r, sys, clk := setup(t)
		expectNativeZero(sys)
		sys.On("Report", mock.Anything, pastDay, ess.DimensionDay, Aliases(gen)).
			Return(hourly("generation", "Wh", map[int]float64{8: 100, 9: 1234, 10: 2500.5}), nil)

		first, err := r.Resolve(context.Background(), pastDay, gen, ModeSeries)
		require.NoError(t, err)
		clk.Add(time.Hour)
		second, err := r.Resolve(context.Background(), pastDay, gen, ModeSeries)
		require.NoError(t, err)

		sys.AssertNumberOfCalls(t, "Report", 2)
		assert.Equal(t, first.Series.Values, second.Series.Values)
		assert.Equal(t, 1.234, first.Series.Values[9])
	})

	t.Run("injected cache", func(t *testing.T) {
		_, sys, clk := setup(t)
		c := New(sys, Config{DayTTL: time.Minute, Clock: clk}).results
		c.Set(resultKey(pastDay, gen, ModeTotal), Result{Date: pastDay, Quantity: gen, TotalKWH: 9, Tier: TierNative}, time.Minute)

		r := New(sys, Config{DayTTL: time.Minute, Clock: clk, Cache: c})
		res, err := r.Resolve(context.Background(), pastDay, gen, ModeTotal)
		require.NoError(t, err)
		assert.Equal(t, 9.0, res.TotalKWH)
		assert.Empty(t, sys.Calls)
	})
}

func TestNativeMonth(t *testing.T) {
	t.Run("export from month report", func(t *testing.T) {
		r, sys, _ := setup(t)
		sys.On("Report", mock.Anything, july.FirstDay(), ess.DimensionMonth, Aliases(types.QuantityExport)).
			Return(normalize.FlatList{Items: []normalize.RawSeries{
				{Variable: "feedin", Unit: "kWh", Values: []float64{1.1, 2.2, 3.3}},
			}}, nil)

		res, err := r.Resolve(context.Background(), pastDay.AddDays(1), types.QuantityExport, ModeTotal)
		require.NoError(t, err)
		assert.Equal(t, TierNative, res.Tier)
		assert.Equal(t, 2.2, res.TotalKWH)

		nm, err := r.NativeMonth(context.Background(), july, types.QuantityExport)
		require.NoError(t, err)
		assert.Equal(t, 6.6, nm.Total())
		assert.Len(t, nm.Values, 31)
		_, ok := nm.Day(types.Date{Year: 2025, Month: time.July, Day: 4})
		assert.False(t, ok)
		sys.AssertNumberOfCalls(t, "Report", 1)
	})

	t.Run("generation magnitude across month", func(t *testing.T) {
		r, sys, _ := setup(t)
		sys.On("MonthEnergy", mock.Anything, july).Return([]ess.DailyTotal{
			{Date: pastDay, Value: 21400},
			{Date: pastDay.AddDays(1), Value: 18200},
			{Date: types.Date{Year: 2025, Month: time.June, Day: 30}, Value: 99999},
		}, nil)

		nm, err := r.NativeMonth(context.Background(), july, types.QuantityGeneration)
		require.NoError(t, err)
		v, ok := nm.Day(pastDay)
		require.True(t, ok)
		assert.Equal(t, 21.4, v)
		assert.Equal(t, 39.6, nm.Total())
	})

	t.Run("generation falls back to month report", func(t *testing.T) {
		r, sys, _ := setup(t)
		sys.On("MonthEnergy", mock.Anything, july).Return([]ess.DailyTotal{}, nil)
		sys.On("Report", mock.Anything, july.FirstDay(), ess.DimensionMonth, Aliases(types.QuantityGeneration)).
			Return(normalize.KeyedObject{Items: []normalize.RawSeries{{Variable: "generation", Unit: "kWh", Values: []float64{5, 6}}}}, nil)

		nm, err := r.NativeMonth(context.Background(), july, types.QuantityGeneration)
		require.NoError(t, err)
		assert.Equal(t, 11.0, nm.Total())
	})
}

func TestOrderByAlias(t *testing.T) {
	raw := []normalize.RawSeries{
		{Variable: "Yield"},
		{Variable: "feedin"},
		{Variable: "generation"},
		{Variable: "mystery"},
	}
	out := orderByAlias(types.QuantityGeneration, raw, Aliases(types.QuantityGeneration))
	names := make([]string, 0, len(out))
	for _, rs := range out {
		names = append(names, rs.Variable)
	}
	assert.Equal(t, []string{"generation", "Yield", "mystery"}, names)

	assert.Equal(t, []string{"generationPower", "pvPower", "generation"}, HistoryVariables(types.QuantityGeneration)[:3])
}

package ess

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wattledger/wattledger/pkg/common"
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

const testToken = "test-token"

// 2025-07-01T08:00:00Z
var testNow = time.UnixMilli(1751356800000)

func newTestFoxESS(t *testing.T, ts *httptest.Server) *FoxESS {
	t.Helper()
	clk := clock.NewMock()
	clk.Set(testNow)

	f := newFoxESS()
	f.client = ts.Client()
	f.baseURL = ts.URL
	f.token = testToken
	f.sn = "SN123"
	f.location = warsaw
	f.clock = clk
	f.retry = common.RetryPolicy{Attempts: 3, Clock: clk, Retryable: IsRetryable}
	return f
}

func writeFox(t *testing.T, w http.ResponseWriter, errno int, result any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	require.NoError(t, json.NewEncoder(w).Encode(map[string]any{
		"errno":  errno,
		"msg":    "msg",
		"result": result,
	}))
}

// acceptOnly returns true if the request carries the signature for sep.
func acceptOnly(r *http.Request, sep Separator) bool {
	ts := r.Header.Get("timestamp")
	var ms int64
	_ = json.Unmarshal([]byte(ts), &ms)
	return r.Header.Get("signature") == Sign(r.URL.Path, testToken, ms, sep)
}

func TestSign(t *testing.T) {
	const path = "/op/v0/device/report/query"
	ts := testNow.UnixMilli()

	t.Run("known digests", func(t *testing.T) {
		assert.Equal(t, "64b5423aaf890d3179049540863ba703", Sign(path, testToken, ts, SeparatorCRLF))
		assert.Equal(t, "898b9cbae3ae6c39a67750317b5ed8d3", Sign(path, testToken, ts, SeparatorLiteral))
		assert.Equal(t, "57e65c4f6505ddc2ead66d3bef65e8bf", Sign(path, testToken, ts, SeparatorLF))
	})

	t.Run("literal separator is four characters", func(t *testing.T) {
		assert.Len(t, string(SeparatorLiteral), 4)
		assert.Len(t, string(SeparatorCRLF), 2)
	})

	t.Run("exactly one candidate matches a validator", func(t *testing.T) {
		for _, want := range Separators {
			expected := Sign(path, testToken, ts, want)
			matches := 0
			for _, sig := range Signatures(path, testToken, ts) {
				if sig.Value == expected {
					matches++
					assert.Equal(t, want, sig.Separator)
				}
			}
			assert.Equal(t, 1, matches, want.Name())
		}
	})

	t.Run("order", func(t *testing.T) {
		sigs := Signatures(path, testToken, ts)
		require.Len(t, sigs, 3)
		assert.Equal(t, []string{"crlf", "literal", "lf"}, []string{sigs[0].Separator.Name(), sigs[1].Separator.Name(), sigs[2].Separator.Name()})
	})
}

func TestFoxESSProbe(t *testing.T) {
	t.Run("tries encodings until accepted", func(t *testing.T) {
		var requests atomic.Int32
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requests.Add(1)
			assert.Equal(t, testToken, r.Header.Get("token"))
			assert.Equal(t, "pl", r.Header.Get("lang"))
			assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
			assert.Equal(t, "1751356800000", r.Header.Get("timestamp"))
			assert.Equal(t, r.Header.Get("signature"), r.Header.Get("sign"))
			if !acceptOnly(r, SeparatorLiteral) {
				writeFox(t, w, 40256, nil)
				return
			}
			writeFox(t, w, 0, map[string]any{"data": []any{map[string]any{"deviceSN": "SN1", "deviceType": "H3"}}})
		}))
		defer ts.Close()

		f := newTestFoxESS(t, ts)
		devices, err := f.Devices(context.Background())
		require.NoError(t, err)
		require.Len(t, devices, 1)
		assert.Equal(t, "SN1", devices[0].DeviceSN)
		assert.Equal(t, int32(2), requests.Load(), "crlf rejected then literal accepted")
	})

	t.Run("auth error after every encoding", func(t *testing.T) {
		var requests atomic.Int32
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requests.Add(1)
			writeFox(t, w, 41809, nil)
		}))
		defer ts.Close()

		f := newTestFoxESS(t, ts)
		_, err := f.Devices(context.Background())
		require.Error(t, err)
		assert.True(t, IsAuth(err))
		assert.False(t, IsRetryable(err))
		var ae *AuthError
		require.ErrorAs(t, err, &ae)
		assert.Equal(t, 41809, ae.Errno)
		assert.Equal(t, 3, ae.Tried)
		assert.Equal(t, int32(3), requests.Load(), "all three encodings tried once, no retry")
	})

	t.Run("http 200 with auth errno is not success", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"errno":40256,"msg":"sign error","result":{"data":[{"deviceSN":"X"}]}}`))
		}))
		defer ts.Close()

		_, err := newTestFoxESS(t, ts).Devices(context.Background())
		assert.True(t, IsAuth(err))
	})

	t.Run("falls through field naming", func(t *testing.T) {
		var bodies []map[string]any
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, foxReportPath, r.URL.Path)
			var body map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			bodies = append(bodies, body)
			if _, ok := body["dimension"]; ok {
				writeFox(t, w, 41200, nil)
				return
			}
			writeFox(t, w, 0, []any{map[string]any{"variable": "generation", "unit": "kWh", "values": []any{0, 1, 2}}})
		}))
		defer ts.Close()

		f := newTestFoxESS(t, ts)
		shape, err := f.Report(context.Background(), types.Date{Year: 2025, Month: time.July, Day: 1}, DimensionDay, []string{"generation"})
		require.NoError(t, err)
		require.IsType(t, normalize.FlatList{}, shape)
		assert.Equal(t, []float64{0, 1, 2}, shape.Series()[0].Values)

		require.Len(t, bodies, 2)
		assert.Equal(t, "day", bodies[0]["dimension"])
		assert.Equal(t, "day", bodies[1]["type"])
		assert.Equal(t, "SN123", bodies[1]["sn"])
		assert.Equal(t, 2025.0, bodies[1]["year"])
		assert.Equal(t, 7.0, bodies[1]["month"])
		assert.Equal(t, 1.0, bodies[1]["day"])
	})

	t.Run("every naming rejected", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			writeFox(t, w, 41200, nil)
		}))
		defer ts.Close()

		_, err := newTestFoxESS(t, ts).Report(context.Background(), types.Date{Year: 2025, Month: time.July, Day: 1}, DimensionDay, []string{"generation"})
		var apiErr *APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, 41200, apiErr.Errno)
	})

	t.Run("transport errors retried", func(t *testing.T) {
		var requests atomic.Int32
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if requests.Add(1) == 1 {
				http.Error(w, "bad gateway", http.StatusBadGateway)
				return
			}
			writeFox(t, w, 0, map[string]any{"data": []any{}})
		}))
		defer ts.Close()

		devices, err := newTestFoxESS(t, ts).Devices(context.Background())
		require.NoError(t, err)
		assert.Empty(t, devices)
		assert.Equal(t, int32(2), requests.Load())
	})

	t.Run("rate limit retried then fails", func(t *testing.T) {
		var requests atomic.Int32
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requests.Add(1)
			writeFox(t, w, errnoRateLimited, nil)
		}))
		defer ts.Close()

		_, err := newTestFoxESS(t, ts).Devices(context.Background())
		assert.True(t, IsRetryable(err))
		assert.Equal(t, int32(3), requests.Load())
	})

	t.Run("undecodable body", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`<html>maintenance</html>`))
		}))
		defer ts.Close()

		_, err := newTestFoxESS(t, ts).Devices(context.Background())
		var te *TransportError
		require.ErrorAs(t, err, &te)
		assert.Equal(t, http.StatusOK, te.StatusCode)
	})

	t.Run("ping", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if acceptOnly(r, SeparatorLF) {
				writeFox(t, w, 0, map[string]any{})
				return
			}
			writeFox(t, w, 40256, nil)
		}))
		defer ts.Close()

		sep, err := newTestFoxESS(t, ts).Ping(context.Background())
		require.NoError(t, err)
		assert.Equal(t, SeparatorLF, sep)
	})

	t.Run("ping stops on rate limit", func(t *testing.T) {
		var requests atomic.Int32
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requests.Add(1)
			writeFox(t, w, 40400, nil)
		}))
		defer ts.Close()

		_, err := newTestFoxESS(t, ts).Ping(context.Background())
		var te *TransportError
		require.ErrorAs(t, err, &te)
		assert.True(t, IsRetryable(err))
		assert.False(t, IsAuth(err))
		assert.Equal(t, int32(1), requests.Load())
	})

	t.Run("ping stops on other errno", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			writeFox(t, w, 40261, nil)
		}))
		defer ts.Close()

		_, err := newTestFoxESS(t, ts).Ping(context.Background())
		var apiErr *APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, 40261, apiErr.Errno)
	})

	t.Run("ping rejected by every encoding", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			writeFox(t, w, 40257, nil)
		}))
		defer ts.Close()

		_, err := newTestFoxESS(t, ts).Ping(context.Background())
		assert.True(t, IsAuth(err))
	})
}

func TestFoxESSQueries(t *testing.T) {
	day := types.Date{Year: 2025, Month: time.July, Day: 1}

	t.Run("history window", func(t *testing.T) {
		var body map[string]any
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, foxHistoryPath, r.URL.Path)
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			writeFox(t, w, 0, []any{map[string]any{
				"deviceSN": "SN123",
				"datas": []any{map[string]any{
					"variable": "generationPower",
					"unit":     "kW",
					"data": []any{
						map[string]any{"time": "2025-07-01 10:00:00 CEST+0200", "value": 1.5},
					},
				}},
			}})
		}))
		defer ts.Close()

		end := time.Date(2025, 7, 1, 12, 0, 0, 0, warsaw)
		shape, err := newTestFoxESS(t, ts).History(context.Background(), day, []string{"generationPower"}, end)
		require.NoError(t, err)
		require.IsType(t, normalize.NestedList{}, shape)
		require.Len(t, shape.Series()[0].Points, 1)

		assert.Equal(t, float64(day.Time(warsaw).UnixMilli()), body["begin"])
		assert.Equal(t, float64(end.UnixMilli()), body["end"])
		assert.Equal(t, []any{"generationPower"}, body["variables"])
	})

	t.Run("history whole day", func(t *testing.T) {
		var body map[string]any
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			writeFox(t, w, 0, []any{})
		}))
		defer ts.Close()

		shape, err := newTestFoxESS(t, ts).History(context.Background(), day, []string{"feedinPower"}, time.Time{})
		require.NoError(t, err)
		assert.IsType(t, normalize.Unrecognized{}, shape)
		assert.Equal(t, float64(time.Date(2025, 7, 1, 23, 59, 59, 0, warsaw).UnixMilli()), body["end"])
	})

	t.Run("month energy", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, foxMonthEnergy, r.URL.Path)
			var body map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "2025-07", body["month"])
			assert.Equal(t, "Europe/Warsaw", body["timeZone"])
			writeFox(t, w, 0, []any{
				map[string]any{"date": "2025-07-01", "value": 21.4},
				map[string]any{"date": "2025-07-02", "value": "18.2"},
				map[string]any{"date": "bogus", "value": 1},
			})
		}))
		defer ts.Close()

		totals, err := newTestFoxESS(t, ts).MonthEnergy(context.Background(), types.YearMonth{Year: 2025, Month: time.July})
		require.NoError(t, err)
		require.Len(t, totals, 2)
		assert.Equal(t, DailyTotal{Date: day, Value: 21.4}, totals[0])
		assert.Equal(t, 18.2, totals[1].Value)
	})

	t.Run("month energy wrapped", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			writeFox(t, w, 0, map[string]any{"data": []any{map[string]any{"date": "2025-07-03", "value": 5}}})
		}))
		defer ts.Close()

		totals, err := newTestFoxESS(t, ts).MonthEnergy(context.Background(), types.YearMonth{Year: 2025, Month: time.July})
		require.NoError(t, err)
		require.Len(t, totals, 1)
		assert.Equal(t, 3, totals[0].Date.Day)
	})

	t.Run("realtime", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			writeFox(t, w, 0, []any{map[string]any{
				"deviceSN": "SN123",
				"time":     "2025-07-01 10:05:00 CEST+0200",
				"datas": []any{
					map[string]any{"variable": "feedinPower", "unit": "kW", "value": 1.1},
					map[string]any{"variable": "pvPower", "unit": "kW", "value": 4.2},
				},
			}})
		}))
		defer ts.Close()

		rt, err := newTestFoxESS(t, ts).Realtime(context.Background(), nil)
		require.NoError(t, err)
		assert.Equal(t, "SN123", rt.DeviceSN)
		assert.Equal(t, 4.2, rt.PVPowerKW)
		assert.Len(t, rt.Values, 2)
		assert.True(t, rt.Time.Equal(time.Date(2025, 7, 1, 10, 5, 0, 0, warsaw)))
	})

	t.Run("auto discovers serial number", func(t *testing.T) {
		var reportSN any
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.URL.Path {
			case foxDeviceList:
				writeFox(t, w, 0, map[string]any{"data": []any{map[string]any{"deviceSN": "AUTO-SN"}}})
			case foxReportPath:
				var body map[string]any
				require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
				reportSN = body["sn"]
				writeFox(t, w, 0, []any{})
			default:
				http.Error(w, "not found", http.StatusNotFound)
			}
		}))
		defer ts.Close()

		f := newTestFoxESS(t, ts)
		f.sn = ""
		_, err := f.Report(context.Background(), day, DimensionMonth, []string{"feedin"})
		require.NoError(t, err)
		assert.Equal(t, "AUTO-SN", reportSN)
		assert.Equal(t, "AUTO-SN", f.sn)
	})
}

func TestPVPowerKW(t *testing.T) {
	assert.Equal(t, 2.5, pvPowerKW([]types.RealtimeValue{{Variable: "generationPower", Unit: "W", Value: 2500}}))
	assert.Equal(t, 2.5, pvPowerKW([]types.RealtimeValue{{Variable: "pvPower", Value: 2500}}))
	assert.Equal(t, 0.0, pvPowerKW([]types.RealtimeValue{{Variable: "loadsPower", Unit: "kW", Value: 1}}))
}

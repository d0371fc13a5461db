package utility

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/levenlabs/go-lflag"
	"github.com/samber/lo"

	"github.com/wattledger/wattledger/pkg/common"
	"github.com/wattledger/wattledger/pkg/log"
	"github.com/wattledger/wattledger/pkg/types"
)

const pseSource = "rce"

// price columns seen in the feed, most specific first
var psePriceKeys = []string{"rce_pln", "rce_pln_mwh", "rce", "price", "cena_pln_mwh", "cena"}

var pseHeaders = http.Header{"Accept": []string{"application/json"}}

// PSE implements HourlyProvider with the PSE RCE (rynkowa cena energii)
// feed. The feed publishes one row per quarter hour (one per hour before
// mid 2024) which are averaged into hourly prices.
type PSE struct {
	apiURL string
	client *http.Client
	retry  common.RetryPolicy
}

func newPSE() *PSE {
	return &PSE{
		apiURL: "https://api.raporty.pse.pl/api",
		client: common.HTTPClientWithHeaders(30*time.Second, pseHeaders),
		retry:  common.DefaultRetryPolicy(),
	}
}

// configuredPSE sets up flags for the PSE feed and returns the instance.
func configuredPSE() *PSE {
	p := newPSE()
	apiURL := lflag.String("pse-api-url", p.apiURL, "Base URL of the PSE reports API")
	lflag.Do(func() {
		p.apiURL = *apiURL
	})
	return p
}

// Validate ensures the configuration is valid.
func (p *PSE) Validate() error {
	if p.apiURL == "" {
		return fmt.Errorf("pse-api-url is required")
	}
	if _, err := url.Parse(p.apiURL); err != nil {
		return fmt.Errorf("failed to parse pse url (%s): %w", p.apiURL, err)
	}
	return nil
}

// HourlyPrices implements HourlyProvider.
func (p *PSE) HourlyPrices(ctx context.Context, date types.Date) ([]types.PriceHourly, error) {
	raw, err := common.RetryValue(ctx, p.retry, func(ctx context.Context) ([]byte, error) {
		return p.fetch(ctx, date)
	})
	if err != nil {
		return nil, err
	}

	rows, err := pseRows(raw)
	if err != nil {
		return nil, err
	}

	type bucket struct {
		samples []float64
	}
	var buckets [types.HoursPerDay]bucket
	var parsed int
	for _, row := range rows {
		if bd, ok := row["business_date"].(string); ok && bd != "" && !strings.HasPrefix(bd, date.String()) {
			continue
		}
		hour, ok := pseHour(row)
		if !ok {
			continue
		}
		price, ok := psePrice(row)
		if !ok {
			continue
		}
		buckets[hour].samples = append(buckets[hour].samples, price)
		parsed++
	}
	if parsed == 0 {
		return nil, &PricingGapError{Source: pseSource, Period: date.String(), Reason: fmt.Sprintf("%d rows, none usable", len(rows))}
	}

	prices := make([]types.PriceHourly, types.HoursPerDay)
	var missing []int
	for h := range buckets {
		prices[h] = types.PriceHourly{Date: date, Hour: h}
		n := len(buckets[h].samples)
		if n == 0 {
			missing = append(missing, h)
			continue
		}
		prices[h].PricePLNPerMWH = common.Round(lo.Sum(buckets[h].samples)/float64(n), 2)
		prices[h].SampleCount = n
	}

	if len(missing) > 0 {
		for _, h := range missing {
			prices[h].PricePLNPerMWH = prices[nearestPriced(prices, h)].PricePLNPerMWH
		}
		log.Ctx(ctx).WarnContext(
			ctx,
			"filled missing rce hours from neighbours",
			slog.String("date", date.String()),
			slog.Any("hours", missing),
		)
	}

	log.Ctx(ctx).DebugContext(ctx, "fetched rce prices", slog.String("date", date.String()), slog.Int("rows", parsed))
	return prices, nil
}

// nearestPriced returns the closest hour to h that has samples, preferring
// the earlier hour on ties.
func nearestPriced(prices []types.PriceHourly, h int) int {
	for d := 1; d < len(prices); d++ {
		if i := h - d; i >= 0 && prices[i].SampleCount > 0 {
			return i
		}
		if i := h + d; i < len(prices) && prices[i].SampleCount > 0 {
			return i
		}
	}
	return h
}

func (p *PSE) fetch(ctx context.Context, date types.Date) ([]byte, error) {
	u, err := url.Parse(strings.TrimRight(p.apiURL, "/") + "/rce-pln")
	if err != nil {
		return nil, fmt.Errorf("invalid api url: %w", err)
	}
	params := url.Values{}
	params.Set("$filter", fmt.Sprintf("business_date eq '%s'", date))
	u.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	log.Ctx(ctx).DebugContext(ctx, "fetching prices from pse", slog.String("url", u.String()))

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch prices: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("pse api returned status: %d", resp.StatusCode)
	}
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	return b, nil
}

// pseRows accepts {"value": [...]}, {"rows": [...]}, {"data": [...]} or a
// bare list.
func pseRows(raw []byte) ([]map[string]any, error) {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("failed to decode pse response: %w", err)
	}
	var list []any
	switch t := v.(type) {
	case []any:
		list = t
	case map[string]any:
		for _, k := range []string{"value", "rows", "data"} {
			if l, ok := t[k].([]any); ok {
				list = l
				break
			}
		}
	}
	return lo.FilterMap(list, func(el any, _ int) (map[string]any, bool) {
		m, ok := el.(map[string]any)
		return m, ok
	}), nil
}

func psePrice(row map[string]any) (float64, bool) {
	for _, k := range psePriceKeys {
		if v, ok := row[k]; ok {
			return pseNumber(v)
		}
	}
	return 0, false
}

func pseNumber(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case string:
		f, err := strconv.ParseFloat(strings.ReplaceAll(strings.TrimSpace(t), ",", "."), 64)
		return f, err == nil
	}
	return 0, false
}

// pseHour returns the local hour a row belongs to. An explicit hour column
// wins, then the start of period ("00:15 - 00:30"), then dtime which marks
// the end of the interval.
func pseHour(row map[string]any) (int, bool) {
	if v, ok := row["hour"]; ok {
		if f, ok := pseNumber(v); ok && f >= 0 && f < types.HoursPerDay {
			return int(f), true
		}
	}
	if period, ok := row["period"].(string); ok {
		start, _, _ := strings.Cut(period, "-")
		if t, err := time.Parse("15:04", strings.TrimSpace(start)); err == nil {
			return t.Hour(), true
		}
	}
	if dtime, ok := row["dtime"].(string); ok {
		for _, layout := range []string{"2006-01-02 15:04:05", "2006-01-02 15:04", time.RFC3339} {
			if t, err := time.ParseInLocation(layout, strings.TrimSpace(dtime), plLocation); err == nil {
				return t.In(plLocation).Add(-time.Minute).Hour(), true
			}
		}
	}
	return 0, false
}

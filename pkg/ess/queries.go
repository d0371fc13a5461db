package ess

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/wattledger/wattledger/pkg/log"
	"github.com/wattledger/wattledger/pkg/normalize"
	"github.com/wattledger/wattledger/pkg/types"
)

// RealtimePVVariables are tried in order to derive the current PV power.
var RealtimePVVariables = []string{
	"pvPower",
	"generationPower",
	"pv1Power",
	"ppv",
	"ppvTotal",
	"inverterPower",
	"outputPower",
	"acPower",
}

// ensureSN returns the configured serial number or, if there isn't one,
// selects the first device on the account.
func (f *FoxESS) ensureSN(ctx context.Context) (string, error) {
	f.mu.Lock()
	sn := f.sn
	f.mu.Unlock()
	if sn != "" {
		return sn, nil
	}

	devices, err := f.Devices(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to list devices: %w", err)
	}
	if len(devices) == 0 {
		return "", errors.New("no devices found on foxess account")
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sn == "" {
		f.sn = devices[0].DeviceSN
		log.Ctx(ctx).InfoContext(ctx, "automatically selected inverter", slog.String("sn", f.sn))
	}
	return f.sn, nil
}

// Report implements System.
func (f *FoxESS) Report(ctx context.Context, date types.Date, dim Dimension, variables []string) (normalize.Shape, error) {
	sn, err := f.ensureSN(ctx)
	if err != nil {
		return nil, err
	}

	base := map[string]any{
		"sn":        sn,
		"year":      date.Year,
		"variables": variables,
	}
	if dim == DimensionDay || dim == DimensionMonth {
		base["month"] = int(date.Month)
	}
	if dim == DimensionDay {
		base["day"] = date.Day
	}

	// the dimension has been accepted under both names
	var bodies []map[string]any
	for _, key := range []string{"dimension", "type"} {
		body := make(map[string]any, len(base)+1)
		for k, v := range base {
			body[k] = v
		}
		body[key] = string(dim)
		bodies = append(bodies, body)
	}

	res, err := f.post(ctx, foxReportPath, bodies...)
	if err != nil {
		return nil, err
	}
	return normalize.Decode(res, f.location)
}

// History implements System.
func (f *FoxESS) History(ctx context.Context, date types.Date, variables []string, end time.Time) (normalize.Shape, error) {
	sn, err := f.ensureSN(ctx)
	if err != nil {
		return nil, err
	}

	begin := date.Time(f.location)
	dayEnd := date.AddDays(1).Time(f.location).Add(-time.Second)
	if end.IsZero() || end.After(dayEnd) {
		end = dayEnd
	}

	const layout = "2006-01-02 15:04:05"
	bodies := []map[string]any{
		{"sn": sn, "variables": variables, "begin": begin.UnixMilli(), "end": end.UnixMilli()},
		{"sn": sn, "variables": variables, "beginDate": begin.Format(layout), "endDate": end.In(f.location).Format(layout)},
		{"sn": sn, "variables": variables, "startDate": begin.Format(layout), "endDate": end.In(f.location).Format(layout)},
	}

	res, err := f.post(ctx, foxHistoryPath, bodies...)
	if err != nil {
		return nil, err
	}
	return normalize.Decode(res, f.location)
}

type monthEnergyRow struct {
	Date  string `json:"date"`
	Value any    `json:"value"`
}

// MonthEnergy implements System.
func (f *FoxESS) MonthEnergy(ctx context.Context, month types.YearMonth) ([]DailyTotal, error) {
	sn, err := f.ensureSN(ctx)
	if err != nil {
		return nil, err
	}

	res, err := f.post(ctx, foxMonthEnergy, map[string]any{
		"sn":       sn,
		"month":    month.String(),
		"timeZone": f.timeZone,
	})
	if err != nil {
		return nil, err
	}

	var rows []monthEnergyRow
	if err := json.Unmarshal(res, &rows); err != nil {
		// some accounts wrap the rows
		var wrapped struct {
			Data []monthEnergyRow `json:"data"`
		}
		if err := json.Unmarshal(res, &wrapped); err != nil {
			return nil, &normalize.ShapeError{Source: foxMonthEnergy, Kind: "month", Reason: err.Error()}
		}
		rows = wrapped.Data
	}

	totals := make([]DailyTotal, 0, len(rows))
	for _, row := range rows {
		d, err := types.ParseDate(strings.TrimSpace(row.Date))
		if err != nil {
			log.Ctx(ctx).WarnContext(ctx, "skipping month energy row with bad date", slog.String("date", row.Date))
			continue
		}
		totals = append(totals, DailyTotal{Date: d, Value: normalize.ToNumber(row.Value)})
	}
	return totals, nil
}

type realtimeData struct {
	Variable string `json:"variable"`
	Name     string `json:"name"`
	Unit     string `json:"unit"`
	Value    any    `json:"value"`
}

type realtimeResult struct {
	DeviceSN string         `json:"deviceSN"`
	Time     string         `json:"time"`
	Datas    []realtimeData `json:"datas"`
}

// Realtime implements System.
func (f *FoxESS) Realtime(ctx context.Context, variables []string) (types.Realtime, error) {
	sn, err := f.ensureSN(ctx)
	if err != nil {
		return types.Realtime{}, err
	}
	if len(variables) == 0 {
		variables = RealtimePVVariables
	}

	res, err := f.post(ctx, foxRealtimePath, map[string]any{
		"sn":        sn,
		"variables": variables,
	})
	if err != nil {
		return types.Realtime{}, err
	}

	var rr realtimeResult
	var list []realtimeResult
	if err := json.Unmarshal(res, &list); err == nil && len(list) > 0 {
		rr = list[0]
	} else if err := json.Unmarshal(res, &rr); err != nil {
		return types.Realtime{}, &normalize.ShapeError{Source: foxRealtimePath, Kind: "realtime", Reason: err.Error()}
	}

	out := types.Realtime{DeviceSN: rr.DeviceSN}
	if out.DeviceSN == "" {
		out.DeviceSN = sn
	}
	if t, ok := normalize.ParseTime(rr.Time, f.location); ok {
		out.Time = t
	} else {
		out.Time = f.clock.Now().In(f.location)
	}

	for _, d := range rr.Datas {
		name := d.Variable
		if name == "" {
			name = d.Name
		}
		out.Values = append(out.Values, types.RealtimeValue{
			Variable: name,
			Unit:     d.Unit,
			Value:    normalize.ToNumber(d.Value),
		})
	}
	out.PVPowerKW = pvPowerKW(out.Values)
	return out, nil
}

func pvPowerKW(values []types.RealtimeValue) float64 {
	for _, want := range RealtimePVVariables {
		for _, v := range values {
			if !strings.EqualFold(v.Variable, want) {
				continue
			}
			kilo := normalize.ToKilo([]float64{v.Value}, v.Unit)
			if strings.TrimSpace(v.Unit) == "" && v.Value > 100 {
				// unlabelled values this large are watts
				return v.Value / normalize.WattsPerKilowatt
			}
			return kilo[0]
		}
	}
	return 0
}

type deviceListResult struct {
	Data []struct {
		DeviceSN   string `json:"deviceSN"`
		DeviceType string `json:"deviceType"`
		StationID  string `json:"stationID"`
		Status     int    `json:"status"`
	} `json:"data"`
}

// Devices implements System.
func (f *FoxESS) Devices(ctx context.Context) ([]types.Device, error) {
	res, err := f.post(ctx, foxDeviceList, map[string]any{
		"currentPage": 1,
		"pageSize":    50,
	})
	if err != nil {
		return nil, err
	}

	var dl deviceListResult
	if err := json.Unmarshal(res, &dl); err != nil {
		return nil, &normalize.ShapeError{Source: foxDeviceList, Kind: "device list", Reason: err.Error()}
	}
	devices := make([]types.Device, 0, len(dl.Data))
	for _, d := range dl.Data {
		devices = append(devices, types.Device{
			DeviceSN:   d.DeviceSN,
			DeviceType: d.DeviceType,
			StationID:  d.StationID,
			Status:     d.Status,
		})
	}
	return devices, nil
}

// Ping reports which signature separator the API accepts by listing a
// single device under each hypothesis in turn.
func (f *FoxESS) Ping(ctx context.Context) (Separator, error) {
	ts := f.clock.Now().UnixMilli()
	body := map[string]any{"currentPage": 1, "pageSize": 1}
	authErr := &AuthError{Path: foxDeviceList, Tried: len(Separators)}
	for _, sig := range Signatures(foxDeviceList, f.token, ts) {
		fr, err := f.do(ctx, foxDeviceList, body, ts, sig)
		if err != nil {
			return "", err
		}
		log.Ctx(ctx).DebugContext(ctx, "foxess ping", slog.String("separator", sig.Separator.Name()), slog.Int("errno", *fr.Errno))
		if *fr.Errno == 0 {
			return sig.Separator, nil
		}
		if err := f.errnoError(foxDeviceList, fr); err != nil {
			return "", err
		}
		authErr.Errno = *fr.Errno
		authErr.Msg = fr.Msg
	}
	return "", authErr
}

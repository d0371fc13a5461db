package normalize

import (
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/samber/lo"
)

// Point is a single timestamped sample from a history payload.
type Point struct {
	Time  time.Time
	Value float64
}

// RawSeries is a series as extracted from a payload, before any magnitude or
// cadence normalization. Report payloads fill Values; history payloads fill
// Points.
type RawSeries struct {
	Variable string
	Unit     string
	Values   []float64
	Points   []Point
}

// Len returns the number of samples in the series.
func (r RawSeries) Len() int {
	return len(r.Values) + len(r.Points)
}

// Shape is one of the known payload layouts returned by the telemetry API.
// Classify returns exactly one of FlatList, NestedList, KeyedObject or
// Unrecognized.
type Shape interface {
	// Series returns the extracted series in payload order.
	Series() []RawSeries
	// Kind names the shape for logging.
	Kind() string
}

// FlatList is a list of objects each carrying a variable name, a unit and a
// list of values.
type FlatList struct {
	Items []RawSeries
}

func (s FlatList) Series() []RawSeries { return s.Items }
func (FlatList) Kind() string          { return "flat" }

// NestedList is a list of objects each carrying a nested "datas" list of
// sub-series. Groups holds one entry per outer object.
type NestedList struct {
	Groups [][]RawSeries
}

func (s NestedList) Series() []RawSeries {
	var out []RawSeries
	for _, g := range s.Groups {
		out = append(out, g...)
	}
	return out
}
func (NestedList) Kind() string { return "nested" }

// KeyedObject is an object (or list of objects) whose keys map directly to
// arrays of numbers.
type KeyedObject struct {
	Items []RawSeries
}

func (s KeyedObject) Series() []RawSeries { return s.Items }
func (KeyedObject) Kind() string          { return "keyed" }

// Unrecognized is any payload that matches none of the known layouts. It
// extracts nothing.
type Unrecognized struct {
	Reason string
}

func (Unrecognized) Series() []RawSeries { return nil }
func (Unrecognized) Kind() string        { return "unrecognized" }

// keys that describe a keyed object rather than holding series
var keyedMetaKeys = map[string]bool{
	"unit":     true,
	"variable": true,
	"name":     true,
}

// Decode parses raw JSON and classifies it. Only invalid JSON is an error;
// an unknown layout is returned as Unrecognized.
func Decode(raw []byte, loc *time.Location) (Shape, error) {
	if len(raw) == 0 {
		return Unrecognized{Reason: "empty payload"}, nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("failed to decode payload: %w", err)
	}
	return Classify(v, loc), nil
}

// Classify matches a decoded JSON value against the known layouts in
// priority order: flat list, nested list, keyed object. Naive timestamps in
// history points are interpreted in loc.
func Classify(v any, loc *time.Location) Shape {
	if loc == nil {
		loc = time.UTC
	}
	switch t := v.(type) {
	case []any:
		return classifyList(t, loc)
	case map[string]any:
		return classifyList([]any{t}, loc)
	case nil:
		return Unrecognized{Reason: "null payload"}
	default:
		return Unrecognized{Reason: fmt.Sprintf("unexpected %T payload", v)}
	}
}

func classifyList(list []any, loc *time.Location) Shape {
	if len(list) == 0 {
		return Unrecognized{Reason: "empty list"}
	}

	var objs []map[string]any
	for _, el := range list {
		if m, ok := el.(map[string]any); ok {
			objs = append(objs, m)
		}
	}
	if len(objs) == 0 {
		return Unrecognized{Reason: "list without objects"}
	}

	var flat []RawSeries
	for _, m := range objs {
		if rs, ok := flatItem(m, loc); ok {
			flat = append(flat, rs)
		}
	}
	if len(flat) > 0 {
		return FlatList{Items: flat}
	}

	var groups [][]RawSeries
	for _, m := range objs {
		datas, ok := m["datas"].([]any)
		if !ok {
			continue
		}
		var group []RawSeries
		for _, d := range datas {
			dm, ok := d.(map[string]any)
			if !ok {
				continue
			}
			if rs, ok := subSeries(dm, loc); ok {
				group = append(group, rs)
			}
		}
		groups = append(groups, group)
	}
	if len(groups) > 0 {
		return NestedList{Groups: groups}
	}

	var keyed []RawSeries
	for _, m := range objs {
		unit, _ := m["unit"].(string)
		for _, k := range sortedKeys(m) {
			if keyedMetaKeys[k] {
				continue
			}
			arr, ok := m[k].([]any)
			if !ok || len(arr) == 0 || !numericArray(arr) {
				continue
			}
			keyed = append(keyed, RawSeries{
				Variable: k,
				Unit:     unit,
				Values:   toNumbers(arr),
			})
		}
	}
	if len(keyed) > 0 {
		return KeyedObject{Items: keyed}
	}
	return Unrecognized{Reason: "no series found"}
}

// flatItem matches {variable|name, unit, values}.
func flatItem(m map[string]any, loc *time.Location) (RawSeries, bool) {
	name, ok := seriesName(m)
	if !ok {
		return RawSeries{}, false
	}
	arr, ok := m["values"].([]any)
	if !ok {
		return RawSeries{}, false
	}
	unit, _ := m["unit"].(string)
	return fillValues(RawSeries{Variable: name, Unit: unit}, arr, loc), true
}

// subSeries matches an entry of a nested "datas" list. Values may live under
// values, data or points.
func subSeries(m map[string]any, loc *time.Location) (RawSeries, bool) {
	name, _ := seriesName(m)
	unit, _ := m["unit"].(string)
	for _, k := range []string{"values", "data", "points"} {
		if arr, ok := m[k].([]any); ok {
			return fillValues(RawSeries{Variable: name, Unit: unit}, arr, loc), true
		}
	}
	return RawSeries{}, false
}

func seriesName(m map[string]any) (string, bool) {
	if s, ok := m["variable"].(string); ok {
		return s, true
	}
	if s, ok := m["name"].(string); ok {
		return s, true
	}
	return "", false
}

// fillValues stores arr as Points if its entries are timestamped samples and
// as Values otherwise.
func fillValues(rs RawSeries, arr []any, loc *time.Location) RawSeries {
	if isPointArray(arr) {
		for _, el := range arr {
			m, ok := el.(map[string]any)
			if !ok {
				continue
			}
			ts, ok := pointTime(m, loc)
			if !ok {
				continue
			}
			rs.Points = append(rs.Points, Point{Time: ts, Value: ToNumber(m["value"])})
		}
		return rs
	}
	rs.Values = toNumbers(arr)
	return rs
}

func isPointArray(arr []any) bool {
	for _, el := range arr {
		m, ok := el.(map[string]any)
		if !ok {
			return false
		}
		_, hasTime := m["time"]
		_, hasTS := m["timestamp"]
		if hasTime || hasTS {
			return true
		}
	}
	return false
}

func sortedKeys(m map[string]any) []string {
	keys := lo.Keys(m)
	slices.Sort(keys)
	return keys
}

func numericArray(arr []any) bool {
	for _, el := range arr {
		switch el.(type) {
		case float64, string, nil:
		default:
			return false
		}
	}
	return true
}

func toNumbers(arr []any) []float64 {
	out := make([]float64, len(arr))
	for i, el := range arr {
		out[i] = ToNumber(el)
	}
	return out
}

// ToNumber coerces a decoded JSON value to a finite number. Anything that is
// not a number or a numeric string becomes 0.
func ToNumber(v any) float64 {
	var f float64
	switch t := v.(type) {
	case float64:
		f = t
	case json.Number:
		f, _ = t.Float64()
	case string:
		f, _ = strconv.ParseFloat(strings.TrimSpace(t), 64)
	case bool:
		if t {
			f = 1
		}
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

var pointTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05 MST-0700",
	"2006-01-02 15:04:05 -0700",
	"2006-01-02 15:04:05Z07:00",
}

var naiveTimeLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
}

func pointTime(m map[string]any, loc *time.Location) (time.Time, bool) {
	raw, ok := m["time"]
	if !ok {
		raw = m["timestamp"]
	}
	switch t := raw.(type) {
	case float64:
		ms := int64(t)
		// seconds rather than milliseconds
		if ms < 1e12 {
			ms *= 1000
		}
		return time.UnixMilli(ms).In(loc), true
	case string:
		return ParseTime(t, loc)
	}
	return time.Time{}, false
}

// ParseTime parses the timestamp formats seen in history payloads. Strings
// without a zone are interpreted in loc.
func ParseTime(s string, loc *time.Location) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range pointTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.In(loc), true
		}
	}
	for _, layout := range naiveTimeLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, true
		}
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		if ms < 1e12 {
			ms *= 1000
		}
		return time.UnixMilli(ms).In(loc), true
	}
	return time.Time{}, false
}

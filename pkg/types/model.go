package types

import (
	"fmt"
	"slices"
	"time"

	"github.com/jinzhu/now"
)

// Quantity is the semantic energy quantity being requested from the
// inverter.
type Quantity string

const (
	QuantityGeneration Quantity = "generation"
	QuantityExport     Quantity = "export"
)

// ParseQuantity parses a quantity name. The empty string defaults to
// generation.
func ParseQuantity(s string) (Quantity, error) {
	switch s {
	case "", "generation", "gen", "pv":
		return QuantityGeneration, nil
	case "export", "feedin", "grid_export":
		return QuantityExport, nil
	}
	return "", fmt.Errorf("unknown quantity: %s", s)
}

// PriceMode selects which pricing source revenue is computed with.
type PriceMode string

const (
	// PriceModeHourly uses the hourly market price (RCE).
	PriceModeHourly PriceMode = "rce"
	// PriceModeMonthly uses the monthly average market price (RCEm).
	PriceModeMonthly PriceMode = "rcem"
)

// ParsePriceMode parses a price mode. The empty string defaults to hourly.
func ParsePriceMode(s string) (PriceMode, error) {
	switch s {
	case "", "rce", "hourly":
		return PriceModeHourly, nil
	case "rcem", "monthly":
		return PriceModeMonthly, nil
	}
	return "", fmt.Errorf("unknown price mode: %s", s)
}

const dateLayout = "2006-01-02"

// Date is a calendar day in the site's local timezone.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return DateOf(t), nil
}

// DateOf returns the calendar day of t in t's location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

// Time returns midnight of the day in loc.
func (d Date) Time(loc *time.Location) time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, loc)
}

// AddDays returns the day n days after d (or before for negative n).
func (d Date) AddDays(n int) Date {
	return DateOf(time.Date(d.Year, d.Month, d.Day+n, 0, 0, 0, 0, time.UTC))
}

// MonthIndex returns the zero-based month index (January is 0).
func (d Date) MonthIndex() int {
	return int(d.Month) - 1
}

// Before reports whether d is strictly before o.
func (d Date) Before(o Date) bool {
	if d.Year != o.Year {
		return d.Year < o.Year
	}
	if d.Month != o.Month {
		return d.Month < o.Month
	}
	return d.Day < o.Day
}

// Compare returns -1, 0 or 1 as d is before, equal to or after o.
func (d Date) Compare(o Date) int {
	switch {
	case d.Before(o):
		return -1
	case o.Before(d):
		return 1
	}
	return 0
}

// SortDates sorts dates chronologically in place.
func SortDates(dates []Date) {
	slices.SortFunc(dates, Date.Compare)
}

// After reports whether d is strictly after o.
func (d Date) After(o Date) bool {
	return o.Before(d)
}

// IsZero reports whether d is the zero Date.
func (d Date) IsZero() bool {
	return d == Date{}
}

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, d.Month, d.Day)
}

// MarshalText implements encoding.TextMarshaler.
func (d Date) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Date) UnmarshalText(b []byte) error {
	parsed, err := ParseDate(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// DatesBetween returns every day from from through to, inclusive. It returns
// nil if to is before from.
func DatesBetween(from, to Date) []Date {
	if to.Before(from) {
		return nil
	}
	var dates []Date
	for d := from; !d.After(to); d = d.AddDays(1) {
		dates = append(dates, d)
	}
	return dates
}

// YearMonth identifies a calendar month.
type YearMonth struct {
	Year  int
	Month time.Month
}

// ParseYearMonth parses a YYYY-MM string.
func ParseYearMonth(s string) (YearMonth, error) {
	t, err := time.Parse("2006-01", s)
	if err != nil {
		return YearMonth{}, fmt.Errorf("invalid month %q: %w", s, err)
	}
	return YearMonth{Year: t.Year(), Month: t.Month()}, nil
}

// YearMonthOf returns the month containing d.
func YearMonthOf(d Date) YearMonth {
	return YearMonth{Year: d.Year, Month: d.Month}
}

// MonthIndex returns the zero-based month index (January is 0).
func (ym YearMonth) MonthIndex() int {
	return int(ym.Month) - 1
}

// Before reports whether ym is strictly before o.
func (ym YearMonth) Before(o YearMonth) bool {
	if ym.Year != o.Year {
		return ym.Year < o.Year
	}
	return ym.Month < o.Month
}

// After reports whether ym is strictly after o.
func (ym YearMonth) After(o YearMonth) bool {
	return o.Before(ym)
}

// Compare returns -1, 0 or 1 as ym is before, equal to or after o.
func (ym YearMonth) Compare(o YearMonth) int {
	switch {
	case ym.Before(o):
		return -1
	case o.Before(ym):
		return 1
	}
	return 0
}

// FirstDay returns the first day of the month.
func (ym YearMonth) FirstDay() Date {
	return DateOf(now.With(time.Date(ym.Year, ym.Month, 15, 0, 0, 0, 0, time.UTC)).BeginningOfMonth())
}

// LastDay returns the last day of the month.
func (ym YearMonth) LastDay() Date {
	return DateOf(now.With(time.Date(ym.Year, ym.Month, 15, 0, 0, 0, 0, time.UTC)).EndOfMonth())
}

// Days returns every day of the month.
func (ym YearMonth) Days() []Date {
	return DatesBetween(ym.FirstDay(), ym.LastDay())
}

func (ym YearMonth) String() string {
	return fmt.Sprintf("%04d-%02d", ym.Year, ym.Month)
}

// MarshalText implements encoding.TextMarshaler.
func (ym YearMonth) MarshalText() ([]byte, error) {
	return []byte(ym.String()), nil
}

func monthFromIndex(i int) time.Month {
	return time.Month(i + 1)
}

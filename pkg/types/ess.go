package types

import "time"

// HoursPerDay is the number of hourly slots in a Series.
const HoursPerDay = 24

// Series is a normalized per-hour energy series for one local day. Values are
// finite and non-negative once normalization has completed.
type Series struct {
	Variable string               `json:"variable"`
	Unit     string               `json:"unit"`
	Values   [HoursPerDay]float64 `json:"values"`
}

// ZeroSeries returns an all-zero kWh series for variable.
func ZeroSeries(variable string) Series {
	return Series{Variable: variable, Unit: "kWh"}
}

// Total returns the sum of all hourly values.
func (s Series) Total() float64 {
	var total float64
	for _, v := range s.Values {
		total += v
	}
	return total
}

// IsZero reports whether every hourly value is zero.
func (s Series) IsZero() bool {
	for _, v := range s.Values {
		if v != 0 {
			return false
		}
	}
	return true
}

// DayEnergy is the generation and export energy for a single day.
//
// GenerationKWH equals the sum of Series when SeriesAuthoritative is true.
// Otherwise the total came from a native daily-total endpoint and Series is
// best-effort.
type DayEnergy struct {
	Date                Date    `json:"date"`
	GenerationKWH       float64 `json:"generationKWh"`
	ExportKWH           float64 `json:"exportKWh"`
	Series              Series  `json:"series"`
	ExportSeries        Series  `json:"exportSeries"`
	SeriesAuthoritative bool    `json:"seriesAuthoritative"`

	// Failed is set when no source produced any usable data for the day.
	Failed bool `json:"failed,omitempty"`
}

// MonthEnergy is the energy total for a calendar month.
type MonthEnergy struct {
	Month       YearMonth `json:"month"`
	Quantity    Quantity  `json:"quantity"`
	TotalKWH    float64   `json:"totalKWh"`
	Native      bool      `json:"native"`
	FailedDates []Date    `json:"failedDates"`
}

// YearEnergy is the energy total for a calendar year.
type YearEnergy struct {
	Year        int           `json:"year"`
	Quantity    Quantity      `json:"quantity"`
	TotalKWH    float64       `json:"totalKWh"`
	Months      []MonthEnergy `json:"months"`
	FailedDates []Date        `json:"failedDates"`
}

// RealtimeValue is a single variable from the inverter's realtime snapshot.
type RealtimeValue struct {
	Variable string  `json:"variable"`
	Unit     string  `json:"unit"`
	Value    float64 `json:"value"`
}

// Realtime is the inverter's realtime snapshot.
type Realtime struct {
	DeviceSN string          `json:"deviceSN"`
	Time     time.Time       `json:"time"`
	Values   []RealtimeValue `json:"values"`

	// PVPowerKW is the current PV power in kW if it could be derived.
	PVPowerKW float64 `json:"pvPowerKW"`
}

// Device is an inverter registered to the account.
type Device struct {
	DeviceSN   string `json:"deviceSN"`
	DeviceType string `json:"deviceType"`
	StationID  string `json:"stationID"`
	Status     int    `json:"status"`
}

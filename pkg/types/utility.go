package types

// PriceHourly is the market price for one hour of a day in PLN/MWh. Prices
// can be negative.
type PriceHourly struct {
	Date           Date    `json:"date"`
	Hour           int     `json:"hour"`
	PricePLNPerMWH float64 `json:"pricePlnPerMWh"`

	// SampleCount is the number of feed rows averaged into this hour. Zero
	// means the hour was filled from a neighbouring hour.
	SampleCount int `json:"sampleCount"`
}

// PriceMonthly is the monthly average market price in PLN/MWh.
type PriceMonthly struct {
	Year           int     `json:"year"`
	MonthIndex     int     `json:"monthIndex"`
	PricePLNPerMWH float64 `json:"pricePlnPerMWh"`

	// Requested is the month that was asked for. It differs from Year and
	// MonthIndex when Substituted is set.
	Requested   YearMonth `json:"requested"`
	Substituted bool      `json:"substituted,omitempty"`
}

// YearMonth returns the month the price belongs to.
func (p PriceMonthly) YearMonth() YearMonth {
	return YearMonth{Year: p.Year, Month: monthFromIndex(p.MonthIndex)}
}

// MonthAverage is the average of all available hourly prices in a month.
type MonthAverage struct {
	Month          YearMonth `json:"month"`
	PricePLNPerMWH float64   `json:"pricePlnPerMWh"`
	Hours          int       `json:"hours"`
	MissingDates   []Date    `json:"missingDates"`
}

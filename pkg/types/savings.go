package types

// RevenueRow is the revenue for a single hour under hourly pricing.
// PriceUsedPLNPerMWH is PriceRawPLNPerMWH clamped to zero and RevenuePLN is
// KWH * PriceUsedPLNPerMWH / 1000.
type RevenueRow struct {
	Hour               int     `json:"hour"`
	KWH                float64 `json:"kwh"`
	PriceRawPLNPerMWH  float64 `json:"priceRawPlnPerMWh"`
	PriceUsedPLNPerMWH float64 `json:"priceUsedPlnPerMWh"`
	RevenuePLN         float64 `json:"revenuePln"`
}

// DayRevenue is the revenue for a single day.
type DayRevenue struct {
	Date       Date         `json:"date"`
	Mode       PriceMode    `json:"mode"`
	Rows       []RevenueRow `json:"rows"`
	TotalKWH   float64      `json:"totalKWh"`
	RevenuePLN float64      `json:"revenuePln"`

	// MonthlyPrice is set when the revenue was computed with a monthly price,
	// either requested or as a fallback.
	MonthlyPrice *PriceMonthly `json:"monthlyPrice,omitempty"`

	// Fallback is set when hourly prices were unavailable and the monthly
	// price was used instead.
	Fallback bool `json:"fallback,omitempty"`
}

// RangeResult is the energy and revenue total across an inclusive date
// range. FailedDates lists dates that contributed zero because no data could
// be fetched; it is diagnostic and not an error.
type RangeResult struct {
	From            Date      `json:"from"`
	To              Date      `json:"to"`
	Mode            PriceMode `json:"mode,omitempty"`
	TotalKWH        float64   `json:"totalKWh"`
	TotalRevenuePLN *float64  `json:"totalRevenuePln"`
	FailedDates     []Date    `json:"failedDates"`

	// Prices lists the monthly prices used under monthly pricing.
	Prices []PriceMonthly `json:"prices,omitempty"`
}

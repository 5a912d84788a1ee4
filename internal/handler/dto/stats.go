package dto

import "time"

// StatsResponse is the analytics roll-up for a link or the whole site.
type StatsResponse struct {
	LinkID string `json:"link_id,omitempty"`
	Period struct {
		From string `json:"from"` // ISO date
		To   string `json:"to"`   // ISO date
	} `json:"period"`

	Totals struct {
		Clicks         int64   `json:"clicks"`
		Conversions    int64   `json:"conversions"`
		Revenue        string  `json:"revenue"`
		ConversionRate float64 `json:"conversion_rate"`
		AvgOrderValue  string  `json:"avg_order_value"`
	} `json:"totals"`

	Breakdown struct {
		Daily   []DailyStats     `json:"daily,omitempty"`
		Sources []BreakdownStats `json:"sources,omitempty"`
		Devices []BreakdownStats `json:"devices,omitempty"`
	} `json:"breakdown"`

	GeneratedAt time.Time `json:"generated_at"`
}

// DailyStats is one day of the time series.
type DailyStats struct {
	Date        string `json:"date"` // ISO date
	Clicks      int64  `json:"clicks"`
	Conversions int64  `json:"conversions"`
}

// BreakdownStats is one group of a breakdown (source, device).
type BreakdownStats struct {
	Key         string `json:"key"`
	Clicks      int64  `json:"clicks"`
	Conversions int64  `json:"conversions"`
}

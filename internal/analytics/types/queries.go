package types

import "time"

// SalesReportRequest bounds a sales report by event time.
type SalesReportRequest struct {
	Start time.Time
	End   time.Time
}

// TimeSeriesPoint describes a single date/value pair.
type TimeSeriesPoint struct {
	Date  string  `json:"date"`
	Value float64 `json:"value"`
}

// LabelValue is one entry of a breakdown such as revenue per payment method.
type LabelValue struct {
	Label string  `json:"label"`
	Value float64 `json:"value"`
}

// SalesReport is the admin sales overview computed from order events.
type SalesReport struct {
	Orders          []TimeSeriesPoint `json:"orders"`
	Revenue         []TimeSeriesPoint `json:"revenue"`
	RevenueByMethod []LabelValue      `json:"revenue_by_method"`
	AOV             float64           `json:"aov"`
	ExpiredOrders   int64             `json:"expired_orders"`
	CancelledOrders int64             `json:"cancelled_orders"`
}

package models

// KPISummary holds the four scalar metrics shown at the top of the dashboard.
// AvgDriverRating is nil when the filtered view has no non-null ratings.
type KPISummary struct {
	TotalRides        int      `json:"total_rides"`
	SuccessfulRides   int      `json:"successful_rides"`
	TotalBookingValue float64  `json:"total_booking_value"`
	AvgDriverRating   *float64 `json:"avg_driver_rating"`
}

// DateCount is one point of the ride-volume time series, ascending by date.
type DateCount struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

// PaymentRevenue is one bar of the revenue chart, descending by revenue.
type PaymentRevenue struct {
	PaymentMethod string  `json:"payment_method"`
	Revenue       float64 `json:"revenue"`
}

// CustomerValue is one row of the top-customers table.
type CustomerValue struct {
	CustomerID string  `json:"customer_id"`
	TotalValue float64 `json:"total_value"`
}

// FilterOptions enumerates the selectable filter values of a dataset.
// Values appear in the table's natural row order, not sorted; the order is
// only reproducible when the input row order is fixed.
type FilterOptions struct {
	VehicleTypes        []string `json:"vehicle_types"`
	PaymentMethods      []string `json:"payment_methods"`
	DefaultVehicleTypes []string `json:"default_vehicle_types"`
	MinDate             string   `json:"min_date,omitempty"`
	MaxDate             string   `json:"max_date,omitempty"`
}

// QueryResult is the arbitrary-shape table produced by the ad-hoc SQL surface.
type QueryResult struct {
	Columns []string `json:"columns"`
	Rows    [][]any  `json:"rows"`
}

package dataset

import (
	"time"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
)

// Canonical column names after header trimming.
const (
	ColBookingID      = "Booking_ID"
	ColDate           = "Date"
	ColTime           = "Time"
	ColDatetime       = "Datetime"
	ColBookingStatus  = "Booking_Status"
	ColCustomerID     = "Customer_ID"
	ColVehicleType    = "Vehicle_Type"
	ColPaymentMethod  = "Payment_Method"
	ColBookingValue   = "Booking_Value"
	ColRideDistance   = "Ride_Distance"
	ColDriverRatings  = "Driver_Ratings"
	ColCustomerRating = "Customer_Rating"
	ColVTAT           = "V_TAT"
	ColCTAT           = "C_TAT"
)

// StatusSuccess is the post-normalization casing of a completed booking.
const StatusSuccess = "Success"

// Table is one loaded, normalized dataset. It is immutable after
// construction: filtered views are produced with Subset and every accessor
// returns freshly derived data.
type Table struct {
	df        dataframe.DataFrame
	datetimes []time.Time // aligned with rows, zero value = unparseable
}

func (t *Table) Nrow() int {
	return t.df.Nrow()
}

func (t *Table) Names() []string {
	return t.df.Names()
}

func (t *Table) Types() []series.Type {
	return t.df.Types()
}

func (t *Table) HasColumn(name string) bool {
	for _, n := range t.df.Names() {
		if n == name {
			return true
		}
	}
	return false
}

// Strings returns the column as raw records. Float columns render their
// nulls as "NaN". The column must exist.
func (t *Table) Strings(name string) []string {
	return t.df.Col(name).Records()
}

// Floats returns the column coerced to float64 with NaN marking nulls.
func (t *Table) Floats(name string) []float64 {
	return t.df.Col(name).Float()
}

// Datetimes returns the derived row timestamps. A zero time means the row's
// date could not be parsed; such rows are excluded from any datetime-keyed
// filter or aggregation but still count toward Nrow.
func (t *Table) Datetimes() []time.Time {
	return t.datetimes
}

// Subset returns a new table containing the given rows in the given order.
func (t *Table) Subset(rows []int) *Table {
	if len(rows) == 0 {
		return &Table{df: t.df.Subset([]int{}), datetimes: nil}
	}
	dts := make([]time.Time, len(rows))
	for i, r := range rows {
		dts[i] = t.datetimes[r]
	}
	return &Table{df: t.df.Subset(rows), datetimes: dts}
}

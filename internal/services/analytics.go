package services

import (
	"log/slog"
	"math"
	"slices"
	"time"

	"ride-insights/internal/dataset"
	"ride-insights/internal/models"
)

// DefaultTopCustomers caps the top-customers table.
const DefaultTopCustomers = 10

// DefaultVehicleSelections is how many distinct vehicle types are
// pre-selected at session start.
const DefaultVehicleSelections = 5

// Filter holds the analyst-selected predicates. A zero From or To leaves
// that side of the date range open; empty sets mean "no restriction", not
// "match nothing".
type Filter struct {
	From           time.Time
	To             time.Time
	VehicleTypes   []string
	PaymentMethods []string
}

// Analytics derives filtered views and aggregates from clean tables. It
// holds no mutable state; every call recomputes from its inputs.
type Analytics struct {
	logger *slog.Logger
}

func NewAnalytics(logger *slog.Logger) *Analytics {
	return &Analytics{logger: logger}
}

// Apply returns the row subset matching the filter, preserving row order and
// all columns. Rows with a null datetime never pass the date predicate.
func (a *Analytics) Apply(t *dataset.Table, f Filter) *dataset.Table {
	vehicles := toSet(f.VehicleTypes)
	payments := toSet(f.PaymentMethods)

	var vehicleCol, paymentCol []string
	if len(vehicles) > 0 && t.HasColumn(dataset.ColVehicleType) {
		vehicleCol = t.Strings(dataset.ColVehicleType)
	}
	if len(payments) > 0 && t.HasColumn(dataset.ColPaymentMethod) {
		paymentCol = t.Strings(dataset.ColPaymentMethod)
	}

	dts := t.Datetimes()
	rows := make([]int, 0, t.Nrow())
	for i := 0; i < t.Nrow(); i++ {
		dt := dts[i]
		if dt.IsZero() {
			continue
		}
		day := dateOnly(dt)
		if !f.From.IsZero() && day.Before(dateOnly(f.From)) {
			continue
		}
		if !f.To.IsZero() && day.After(dateOnly(f.To)) {
			continue
		}
		if len(vehicles) > 0 {
			if vehicleCol == nil {
				continue
			}
			if _, ok := vehicles[vehicleCol[i]]; !ok {
				continue
			}
		}
		if len(payments) > 0 {
			if paymentCol == nil {
				continue
			}
			if _, ok := payments[paymentCol[i]]; !ok {
				continue
			}
		}
		rows = append(rows, i)
	}
	return t.Subset(rows)
}

// KPIs computes the four scalar metrics over a filtered view. Null booking
// values contribute zero to the total; the average rating is nil when no
// rating parsed.
func (a *Analytics) KPIs(t *dataset.Table) models.KPISummary {
	k := models.KPISummary{TotalRides: t.Nrow()}

	if t.HasColumn(dataset.ColBookingStatus) {
		for _, s := range t.Strings(dataset.ColBookingStatus) {
			if s == dataset.StatusSuccess {
				k.SuccessfulRides++
			}
		}
	}

	if t.HasColumn(dataset.ColBookingValue) {
		for _, v := range t.Floats(dataset.ColBookingValue) {
			if !math.IsNaN(v) {
				k.TotalBookingValue += v
			}
		}
	}

	if t.HasColumn(dataset.ColDriverRatings) {
		var sum float64
		var n int
		for _, v := range t.Floats(dataset.ColDriverRatings) {
			if !math.IsNaN(v) {
				sum += v
				n++
			}
		}
		if n > 0 {
			avg := sum / float64(n)
			k.AvgDriverRating = &avg
		}
	}
	return k
}

// RidesByDate counts rides per calendar date, ascending, for the line
// chart. Rows with a null datetime are excluded.
func (a *Analytics) RidesByDate(t *dataset.Table) []models.DateCount {
	counts := make(map[string]int)
	for _, dt := range t.Datetimes() {
		if dt.IsZero() {
			continue
		}
		counts[dt.Format("2006-01-02")]++
	}

	out := make([]models.DateCount, 0, len(counts))
	for date, n := range counts {
		out = append(out, models.DateCount{Date: date, Count: n})
	}
	slices.SortFunc(out, func(a, b models.DateCount) int {
		if a.Date < b.Date {
			return -1
		}
		if a.Date > b.Date {
			return 1
		}
		return 0
	})
	return out
}

// RevenueByPayment sums booking value per payment method, descending by
// revenue. Null booking values count as zero. Equal revenues keep the order
// in which the method first appears in the table.
func (a *Analytics) RevenueByPayment(t *dataset.Table) []models.PaymentRevenue {
	groups := a.sumByKey(t, dataset.ColPaymentMethod)
	out := make([]models.PaymentRevenue, 0, len(groups))
	for _, g := range groups {
		out = append(out, models.PaymentRevenue{PaymentMethod: g.key, Revenue: g.sum})
	}
	slices.SortStableFunc(out, func(a, b models.PaymentRevenue) int {
		return compareDesc(a.Revenue, b.Revenue)
	})
	return out
}

// TopCustomers ranks customers by summed booking value, descending, capped
// at n. Ties keep first-seen input order (stable sort); no business rule
// specifies a tie-break.
func (a *Analytics) TopCustomers(t *dataset.Table, n int) []models.CustomerValue {
	if n <= 0 {
		n = DefaultTopCustomers
	}
	groups := a.sumByKey(t, dataset.ColCustomerID)
	out := make([]models.CustomerValue, 0, len(groups))
	for _, g := range groups {
		out = append(out, models.CustomerValue{CustomerID: g.key, TotalValue: g.sum})
	}
	slices.SortStableFunc(out, func(a, b models.CustomerValue) int {
		return compareDesc(a.TotalValue, b.TotalValue)
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}

// Options enumerates distinct non-null filter values in natural row order,
// plus the session-start defaults: the first DefaultVehicleSelections
// vehicle types and every payment method.
func (a *Analytics) Options(t *dataset.Table) models.FilterOptions {
	opts := models.FilterOptions{
		VehicleTypes:   distinct(t, dataset.ColVehicleType),
		PaymentMethods: distinct(t, dataset.ColPaymentMethod),
	}

	defaults := opts.VehicleTypes
	if len(defaults) > DefaultVehicleSelections {
		defaults = defaults[:DefaultVehicleSelections]
	}
	opts.DefaultVehicleTypes = defaults

	var min, max time.Time
	for _, dt := range t.Datetimes() {
		if dt.IsZero() {
			continue
		}
		if min.IsZero() || dt.Before(min) {
			min = dt
		}
		if max.IsZero() || dt.After(max) {
			max = dt
		}
	}
	if !min.IsZero() {
		opts.MinDate = min.Format("2006-01-02")
		opts.MaxDate = max.Format("2006-01-02")
	}
	return opts
}

type group struct {
	key string
	sum float64
}

// sumByKey groups booking value by a string column, keeping first-seen key
// order. A missing key column yields no groups; a missing value column sums
// everything as zero.
func (a *Analytics) sumByKey(t *dataset.Table, keyCol string) []group {
	if !t.HasColumn(keyCol) {
		return nil
	}
	keys := t.Strings(keyCol)

	var vals []float64
	if t.HasColumn(dataset.ColBookingValue) {
		vals = t.Floats(dataset.ColBookingValue)
	}

	sums := make(map[string]float64, len(keys))
	order := make([]string, 0, len(keys))
	for i, key := range keys {
		if _, seen := sums[key]; !seen {
			order = append(order, key)
		}
		v := 0.0
		if vals != nil && !math.IsNaN(vals[i]) {
			v = vals[i]
		}
		sums[key] += v
	}

	out := make([]group, 0, len(order))
	for _, key := range order {
		out = append(out, group{key: key, sum: sums[key]})
	}
	return out
}

func distinct(t *dataset.Table, col string) []string {
	if !t.HasColumn(col) {
		return nil
	}
	seen := make(map[string]struct{})
	var out []string
	for _, v := range t.Strings(col) {
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

func toSet(values []string) map[string]struct{} {
	if len(values) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func compareDesc(a, b float64) int {
	if a > b {
		return -1
	}
	if a < b {
		return 1
	}
	return 0
}

package dataset

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// ErrFileNotFound marks a dataset path that does not resolve to a readable
// file. Callers surface it to the analyst as a distinct condition.
var ErrFileNotFound = errors.New("dataset file not found")

// DatetimeLayout is the textual form of the derived Datetime column.
const DatetimeLayout = "2006-01-02 15:04:05"

// numericColumns are coerced to float series when present. Unparseable cells
// become NaN; a bad cell never fails the load.
var numericColumns = []string{
	ColBookingValue,
	ColRideDistance,
	ColDriverRatings,
	ColCustomerRating,
	ColVTAT,
	ColCTAT,
}

// Month-first layouts are tried before day-first ones, so ambiguous
// two-digit day/month values may be misparsed. Callers wanting exact
// results must supply unambiguous dates (ISO preferred).
var dateLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"01/02/2006",
	"1/2/2006",
	"01-02-2006",
	"2006-01-02 15:04:05",
}

var clockLayouts = []string{
	"15:04:05",
	"15:04",
	"3:04:05 PM",
	"3:04 PM",
}

// Load reads and normalizes the CSV at path. A missing file fails with
// ErrFileNotFound; per-cell parse failures degrade to nulls instead.
func Load(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrFileNotFound, path)
		}
		return nil, fmt.Errorf("open dataset: %w", err)
	}
	defer f.Close()

	t, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	return t, nil
}

// Read normalizes raw CSV into a clean table: trimmed column names,
// title-cased booking status, float-coerced numeric columns and a derived
// Datetime column. One output row per input row, always.
func Read(r io.Reader) (*Table, error) {
	df := dataframe.ReadCSV(r,
		dataframe.HasHeader(true),
		dataframe.DetectTypes(false),
		dataframe.DefaultType(series.String),
	)
	if df.Err != nil {
		return nil, fmt.Errorf("read csv: %w", df.Err)
	}

	df = trimColumnNames(df)
	df = normalizeStatus(df)
	df = coerceNumerics(df)

	datetimes := deriveDatetimes(df)
	df = df.Mutate(series.New(formatDatetimes(datetimes), series.String, ColDatetime))
	if df.Err != nil {
		return nil, fmt.Errorf("derive datetime column: %w", df.Err)
	}

	return &Table{df: df, datetimes: datetimes}, nil
}

func trimColumnNames(df dataframe.DataFrame) dataframe.DataFrame {
	for _, name := range df.Names() {
		trimmed := strings.TrimSpace(name)
		if trimmed != name {
			df = df.Rename(trimmed, name)
		}
	}
	return df
}

// normalizeStatus rewrites Booking_Status to trimmed, title-cased strings so
// "success", " SUCCESS " and "Success" all compare equal downstream. Absent
// column is left absent; status-dependent metrics then degrade to zero.
func normalizeStatus(df dataframe.DataFrame) dataframe.DataFrame {
	if !hasColumn(df, ColBookingStatus) {
		return df
	}
	caser := cases.Title(language.Und)
	recs := df.Col(ColBookingStatus).Records()
	out := make([]string, len(recs))
	for i, rec := range recs {
		out[i] = caser.String(strings.TrimSpace(rec))
	}
	return df.Mutate(series.New(out, series.String, ColBookingStatus))
}

func coerceNumerics(df dataframe.DataFrame) dataframe.DataFrame {
	for _, col := range numericColumns {
		if !hasColumn(df, col) {
			continue
		}
		recs := df.Col(col).Records()
		vals := make([]float64, len(recs))
		for i, rec := range recs {
			v, err := strconv.ParseFloat(strings.TrimSpace(rec), 64)
			if err != nil {
				v = math.NaN()
			}
			vals[i] = v
		}
		df = df.Mutate(series.New(vals, series.Float, col))
	}
	return df
}

// deriveDatetimes combines Date and Time per row. A row whose Time fails to
// parse falls back to its Date alone; a row whose Date fails gets a zero
// timestamp. The fallback is per row, so one malformed Time cell never
// degrades the rest of the table.
func deriveDatetimes(df dataframe.DataFrame) []time.Time {
	out := make([]time.Time, df.Nrow())
	if !hasColumn(df, ColDate) {
		return out
	}
	dates := df.Col(ColDate).Records()

	var clocks []string
	if hasColumn(df, ColTime) {
		clocks = df.Col(ColTime).Records()
	}

	for i, raw := range dates {
		d, ok := parseDate(raw)
		if !ok {
			continue
		}
		if clocks != nil {
			if c, ok := parseClock(clocks[i]); ok {
				d = time.Date(d.Year(), d.Month(), d.Day(),
					c.Hour(), c.Minute(), c.Second(), 0, time.UTC)
			}
		}
		out[i] = d
	}
	return out
}

func parseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), true
		}
	}
	return time.Time{}, false
}

func parseClock(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range clockLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func formatDatetimes(dts []time.Time) []string {
	out := make([]string, len(dts))
	for i, dt := range dts {
		if dt.IsZero() {
			continue
		}
		out[i] = dt.Format(DatetimeLayout)
	}
	return out
}

func hasColumn(df dataframe.DataFrame, name string) bool {
	for _, n := range df.Names() {
		if n == name {
			return true
		}
	}
	return false
}

package query

import (
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ride-insights/internal/dataset"
)

const tripsCSV = `Booking_ID,Date,Time,Booking_Status,Customer_ID,Vehicle_Type,Payment_Method,Booking_Value
B1,2024-01-01,10:30:00,Success,C1,Auto,UPI,100
B2,2024-01-02,11:00:00,Success,C2,Bike,Cash,50
B3,2024-01-05,,Cancelled By Driver,C1,Auto,UPI,N/A`

func newTestEngine(t *testing.T) (*Engine, *dataset.Table) {
	t.Helper()
	table, err := dataset.Read(strings.NewReader(tripsCSV))
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	e, err := NewEngine(t.Context(), table, logger)
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })
	return e, table
}

func TestEngine_CountMatchesTableRows(t *testing.T) {
	e, table := newTestEngine(t)

	result, err := e.Run(t.Context(), "SELECT COUNT(*) FROM ola_rides")
	require.NoError(t, err)
	require.Len(t, result.Rows, 1)
	assert.EqualValues(t, int64(table.Nrow()), result.Rows[0][0])
}

func TestEngine_DefaultQuery(t *testing.T) {
	e, _ := newTestEngine(t)

	result, err := e.Run(t.Context(), DefaultQuery)
	require.NoError(t, err)
	assert.Len(t, result.Rows, 2)
	assert.Equal(t, "Booking_ID", result.Columns[0])
}

func TestEngine_NullBookingValue(t *testing.T) {
	e, _ := newTestEngine(t)

	result, err := e.Run(t.Context(),
		"SELECT Booking_Value FROM ola_rides WHERE Booking_ID = 'B3'")
	require.NoError(t, err)
	require.Len(t, result.Rows, 1)
	assert.Nil(t, result.Rows[0][0])
}

func TestEngine_InvalidSQLIsIsolated(t *testing.T) {
	e, _ := newTestEngine(t)

	_, err := e.Run(t.Context(), "SELEKT * FROM nowhere")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "execute query")

	// The failure leaves the snapshot fully usable.
	result, err := e.Run(t.Context(), "SELECT COUNT(*) FROM ola_rides")
	require.NoError(t, err)
	assert.EqualValues(t, 3, result.Rows[0][0])
}

func TestEngine_WritesScopedToSnapshot(t *testing.T) {
	e, table := newTestEngine(t)

	_, err := e.Run(t.Context(), "DELETE FROM ola_rides WHERE Booking_ID = 'B1'")
	require.NoError(t, err)

	result, err := e.Run(t.Context(), "SELECT COUNT(*) FROM ola_rides")
	require.NoError(t, err)
	assert.EqualValues(t, 2, result.Rows[0][0])

	// The clean table is untouched: writes only hit the throwaway copy.
	assert.Equal(t, 3, table.Nrow())
}

func TestRegistry_ReusesEnginePerPath(t *testing.T) {
	table, err := dataset.Read(strings.NewReader(tripsCSV))
	require.NoError(t, err)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	r := NewRegistry(logger)
	t.Cleanup(func() { r.Close() })

	first, err := r.Get(t.Context(), "data/a.csv", table)
	require.NoError(t, err)
	second, err := r.Get(t.Context(), "data/a.csv", table)
	require.NoError(t, err)
	assert.Same(t, first, second)

	other, err := r.Get(t.Context(), "data/b.csv", table)
	require.NoError(t, err)
	assert.NotSame(t, first, other)

	require.NoError(t, r.Close())
}

package handlers

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"ride-insights/internal/config"
	"ride-insights/internal/dataset"
	"ride-insights/internal/models"
	"ride-insights/internal/observability"
	"ride-insights/internal/query"
	"ride-insights/internal/services"
)

func newTestSSEHandlers(t *testing.T) *SSEHandlers {
	t.Helper()

	dir := t.TempDir()
	samplePath := filepath.Join(dir, "sample.csv")
	if err := os.WriteFile(samplePath, []byte(testCSV), 0644); err != nil {
		t.Fatal(err)
	}

	cfg := &config.Config{
		Datasets: config.DatasetsConfig{
			SamplePath: samplePath,
			FullPath:   filepath.Join(dir, "missing.csv"),
			Default:    "sample",
		},
	}

	logger := testLogger()
	cache := dataset.NewCache(logger)
	queries := query.NewRegistry(logger)
	t.Cleanup(func() { queries.Close() })

	return NewSSEHandlers(cache, services.NewAnalytics(logger), queries,
		cfg, observability.NewMetrics(), logger)
}

func TestSSEHandlers_HandleDashboard(t *testing.T) {
	h := newTestSSEHandlers(t)

	// No signals on the request means zero-value signals: default dataset,
	// open date range, empty filter sets.
	req := httptest.NewRequest(http.MethodGet, "/sse/dashboard", nil)
	w := httptest.NewRecorder()
	h.HandleDashboard(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected status %d, got %d", http.StatusOK, w.Code)
	}
	if ct := w.Header().Get("Content-Type"); !strings.Contains(ct, "text/event-stream") {
		t.Errorf("expected content-type to contain 'text/event-stream', got %q", ct)
	}

	body := w.Body.String()
	if !strings.Contains(body, "kpi-content") {
		t.Error("response should patch the KPI fragment")
	}
	if !strings.Contains(body, "customers-content") {
		t.Error("response should patch the top-customers fragment")
	}
	for _, fragment := range []string{"vehicle-select", "payment-select"} {
		if !strings.Contains(body, fragment) {
			t.Errorf("response should patch the %s element", fragment)
		}
	}
	for _, signal := range []string{"ridesByDate", "revenueByPayment"} {
		if !strings.Contains(body, signal) {
			t.Errorf("response should contain %q signal", signal)
		}
	}
}

func TestSSEHandlers_HandleDashboard_SeedsDefaultsOnFirstLoad(t *testing.T) {
	h := newTestSSEHandlers(t)

	req := httptest.NewRequest(http.MethodGet, "/sse/dashboard", nil)
	w := httptest.NewRecorder()
	h.HandleDashboard(w, req)

	body := w.Body.String()
	// The signal seed mirrors a fresh session: all distinct vehicle types
	// (fewer than the pre-selection cap), every payment method, the
	// dataset's full date span.
	for _, want := range []string{
		`"vehicles":["Auto","Bike"]`,
		`"payments":["UPI","Cash"]`,
		`"from":"2024-01-01"`,
		`"to":"2024-01-05"`,
		`"loaded":true`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("first load should seed %s, got:\n%s", want, body)
		}
	}

	// The selects are populated with the defaults pre-selected.
	for _, want := range []string{
		`<option value="Auto" selected>Auto</option>`,
		`<option value="Bike" selected>Bike</option>`,
		`<option value="UPI" selected>UPI</option>`,
		`<option value="Cash" selected>Cash</option>`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("first load should render %s, got:\n%s", want, body)
		}
	}
}

func TestSSEHandlers_HandleDashboard_KeepsSelectionsAfterFirstLoad(t *testing.T) {
	h := newTestSSEHandlers(t)

	req := httptest.NewRequest(http.MethodGet,
		`/sse/dashboard?datastar={"dataset":"sample","loaded":true,"vehicles":["Auto"],"payments":["UPI","Cash"]}`, nil)
	w := httptest.NewRecorder()
	h.HandleDashboard(w, req)

	body := w.Body.String()
	// The seed only happens once; a later refresh must not clobber the
	// analyst's narrower selection.
	if strings.Contains(body, `"loaded"`) {
		t.Errorf("refresh after first load should not re-seed signals, got:\n%s", body)
	}
	if !strings.Contains(body, `<option value="Auto" selected>Auto</option>`) {
		t.Error("selected vehicle should stay marked")
	}
	if !strings.Contains(body, `<option value="Bike">Bike</option>`) {
		t.Error("unselected vehicle should render without the selected mark")
	}
}

func TestSSEHandlers_HandleDashboard_FilterSignals(t *testing.T) {
	h := newTestSSEHandlers(t)

	signals := `{"dataset":"sample","from":"2024-01-01","to":"2024-01-02","vehicles":[],"payments":[],"loaded":true}`
	req := httptest.NewRequest(http.MethodGet, "/sse/dashboard?datastar="+signals, nil)
	w := httptest.NewRecorder()
	h.HandleDashboard(w, req)

	body := w.Body.String()
	// B3 (2024-01-05) is outside the range: 2 rides, both Success.
	if !strings.Contains(body, ">2<") {
		t.Errorf("expected KPI cards for the 2-row filtered view, got:\n%s", body)
	}
}

func TestSSEHandlers_HandleDashboard_UnknownDataset(t *testing.T) {
	h := newTestSSEHandlers(t)

	req := httptest.NewRequest(http.MethodGet,
		`/sse/dashboard?datastar={"dataset":"bogus"}`, nil)
	w := httptest.NewRecorder()
	h.HandleDashboard(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("errors are patched inline, expected status %d, got %d", http.StatusOK, w.Code)
	}
	body := w.Body.String()
	if !strings.Contains(body, "error-banner") {
		t.Error("response should patch an error banner")
	}
	if !strings.Contains(body, "unknown dataset") {
		t.Errorf("banner should name the problem, got:\n%s", body)
	}
}

func TestSSEHandlers_HandleQuery(t *testing.T) {
	h := newTestSSEHandlers(t)

	body := strings.NewReader(`{"dataset":"sample","sql":"SELECT Booking_ID FROM ola_rides ORDER BY Booking_ID"}`)
	req := httptest.NewRequest(http.MethodPost, "/sse/query", body)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.HandleQuery(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected status %d, got %d", http.StatusOK, w.Code)
	}
	got := w.Body.String()
	if !strings.Contains(got, "query-content") {
		t.Error("response should patch the query result fragment")
	}
	for _, id := range []string{"B1", "B2", "B3"} {
		if !strings.Contains(got, id) {
			t.Errorf("result table should contain %s", id)
		}
	}
	if !strings.Contains(got, "3 row(s)") {
		t.Error("result meta should report the row count")
	}
}

func TestSSEHandlers_HandleQuery_BadSQLPatchesBanner(t *testing.T) {
	h := newTestSSEHandlers(t)

	body := strings.NewReader(`{"dataset":"sample","sql":"SELEKT nope"}`)
	req := httptest.NewRequest(http.MethodPost, "/sse/query", body)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.HandleQuery(w, req)

	// SQL errors are inline, never a failed stream.
	if w.Code != http.StatusOK {
		t.Errorf("expected status %d, got %d", http.StatusOK, w.Code)
	}
	got := w.Body.String()
	if !strings.Contains(got, "error-banner") || !strings.Contains(got, "SQL error") {
		t.Errorf("response should patch an SQL error banner, got:\n%s", got)
	}

	// The dashboard fragments stay functional after a failed query.
	req = httptest.NewRequest(http.MethodGet, "/sse/dashboard", nil)
	w = httptest.NewRecorder()
	h.HandleDashboard(w, req)
	if !strings.Contains(w.Body.String(), "kpi-content") {
		t.Error("dashboard should be unaffected by a failed query")
	}
}

func TestSSEHandlers_HandleQuery_EmptySQL(t *testing.T) {
	h := newTestSSEHandlers(t)

	body := strings.NewReader(`{"dataset":"sample","sql":"  "}`)
	req := httptest.NewRequest(http.MethodPost, "/sse/query", body)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.HandleQuery(w, req)

	if !strings.Contains(w.Body.String(), "query text is required") {
		t.Error("blank query should patch a validation banner")
	}
}

func TestRenderKPIs(t *testing.T) {
	rating := 4.25
	html, err := renderKPIs(models.KPISummary{
		TotalRides:        3,
		SuccessfulRides:   2,
		TotalBookingValue: 175,
		AvgDriverRating:   &rating,
	})
	if err != nil {
		t.Fatalf("renderKPIs() failed: %v", err)
	}

	for _, want := range []string{"Total Rides", "175.00", "4.25", `id="kpi-content"`} {
		if !strings.Contains(html, want) {
			t.Errorf("expected KPI HTML to contain %q", want)
		}
	}
}

func TestRenderKPIs_NilRating(t *testing.T) {
	html, err := renderKPIs(models.KPISummary{})
	if err != nil {
		t.Fatalf("renderKPIs() failed: %v", err)
	}
	if !strings.Contains(html, "NaN") {
		t.Error("nil average rating should render as NaN")
	}
}

func TestRenderQueryResult_TruncatesLongResults(t *testing.T) {
	result := &models.QueryResult{Columns: []string{"n"}}
	for i := 0; i < maxQueryRows+25; i++ {
		result.Rows = append(result.Rows, []any{int64(i)})
	}

	html, err := renderQueryResult(result)
	if err != nil {
		t.Fatalf("renderQueryResult() failed: %v", err)
	}

	rowCount := strings.Count(html, "<tr>") - 1 // minus the header row
	if rowCount != maxQueryRows {
		t.Errorf("expected %d rendered rows, got %d", maxQueryRows, rowCount)
	}
	if !strings.Contains(html, "showing first") {
		t.Error("truncated results should say so in the meta line")
	}
}

func TestRenderQueryResult_NullCells(t *testing.T) {
	result := &models.QueryResult{
		Columns: []string{"a", "b"},
		Rows:    [][]any{{nil, "x"}},
	}
	html, err := renderQueryResult(result)
	if err != nil {
		t.Fatalf("renderQueryResult() failed: %v", err)
	}
	if !strings.Contains(html, "<td></td><td>x</td>") {
		t.Errorf("NULL cells should render empty, got:\n%s", html)
	}
}

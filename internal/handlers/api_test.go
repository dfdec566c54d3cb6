package handlers

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"ride-insights/internal/config"
	"ride-insights/internal/dataset"
	"ride-insights/internal/observability"
	"ride-insights/internal/query"
	"ride-insights/internal/services"
)

const testCSV = `Booking_ID,Date,Time,Booking_Status,Customer_ID,Vehicle_Type,Payment_Method,Booking_Value,Driver_Ratings
B1,2024-01-01,10:30:00,Success,C1,Auto,UPI,100,4.5
B2,2024-01-02,11:00:00,Success,C2,Bike,Cash,50,4.0
B3,2024-01-05,,Cancelled By Driver,C1,Auto,UPI,25,N/A`

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestAPIHandlers wires handlers against a sample dataset written to a
// temp file; the "full" dataset path intentionally does not exist.
func newTestAPIHandlers(t *testing.T) *APIHandlers {
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

	return NewAPIHandlers(cache, services.NewAnalytics(logger), queries,
		cfg, observability.NewMetrics(), logger)
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var response map[string]any
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode JSON: %v", err)
	}
	return response
}

func TestAPIHandlers_HandleKPIs(t *testing.T) {
	h := newTestAPIHandlers(t)

	req := httptest.NewRequest(http.MethodGet, "/api/kpis?dataset=sample", nil)
	w := httptest.NewRecorder()
	h.HandleKPIs(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, w.Code)
	}

	response := decodeEnvelope(t, w)
	if success, ok := response["success"].(bool); !ok || !success {
		t.Error("expected success=true in response")
	}
	data, ok := response["data"].(map[string]any)
	if !ok {
		t.Fatal("expected data object in response")
	}
	if data["total_rides"] != float64(3) {
		t.Errorf("total_rides = %v, want 3", data["total_rides"])
	}
	if data["successful_rides"] != float64(2) {
		t.Errorf("successful_rides = %v, want 2", data["successful_rides"])
	}
}

func TestAPIHandlers_HandleKPIs_Filtered(t *testing.T) {
	h := newTestAPIHandlers(t)

	req := httptest.NewRequest(http.MethodGet,
		"/api/kpis?dataset=sample&from=2024-01-01&to=2024-01-02&vehicle=Auto", nil)
	w := httptest.NewRecorder()
	h.HandleKPIs(w, req)

	data := decodeEnvelope(t, w)["data"].(map[string]any)
	if data["total_rides"] != float64(1) {
		t.Errorf("total_rides = %v, want 1 (B1 only)", data["total_rides"])
	}
}

func TestAPIHandlers_UnknownDataset(t *testing.T) {
	h := newTestAPIHandlers(t)

	req := httptest.NewRequest(http.MethodGet, "/api/kpis?dataset=bogus", nil)
	w := httptest.NewRecorder()
	h.HandleKPIs(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected status %d, got %d", http.StatusBadRequest, w.Code)
	}
}

func TestAPIHandlers_MissingDatasetFile(t *testing.T) {
	h := newTestAPIHandlers(t)

	req := httptest.NewRequest(http.MethodGet, "/api/kpis?dataset=full", nil)
	w := httptest.NewRecorder()
	h.HandleKPIs(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected status %d, got %d", http.StatusNotFound, w.Code)
	}
	if !strings.Contains(w.Body.String(), "DATASET_NOT_FOUND") {
		t.Errorf("expected DATASET_NOT_FOUND code in body, got %s", w.Body.String())
	}
}

func TestAPIHandlers_InvalidDateParam(t *testing.T) {
	h := newTestAPIHandlers(t)

	req := httptest.NewRequest(http.MethodGet, "/api/kpis?from=01-01-2024", nil)
	w := httptest.NewRecorder()
	h.HandleKPIs(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected status %d, got %d", http.StatusBadRequest, w.Code)
	}
}

func TestAPIHandlers_HandleFilterOptions(t *testing.T) {
	h := newTestAPIHandlers(t)

	req := httptest.NewRequest(http.MethodGet, "/api/filters", nil)
	w := httptest.NewRecorder()
	h.HandleFilterOptions(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, w.Code)
	}
	data := decodeEnvelope(t, w)["data"].(map[string]any)
	vehicles, ok := data["vehicle_types"].([]any)
	if !ok || len(vehicles) != 2 {
		t.Errorf("vehicle_types = %v, want [Auto Bike]", data["vehicle_types"])
	}
	if vehicles[0] != "Auto" {
		t.Errorf("distinct values should keep row order, got %v first", vehicles[0])
	}
}

func TestAPIHandlers_HandleRevenueByPayment(t *testing.T) {
	h := newTestAPIHandlers(t)

	req := httptest.NewRequest(http.MethodGet, "/api/revenue-by-payment?from=2024-01-01&to=2024-01-31", nil)
	w := httptest.NewRecorder()
	h.HandleRevenueByPayment(w, req)

	data := decodeEnvelope(t, w)["data"].([]any)
	first := data[0].(map[string]any)
	if first["payment_method"] != "UPI" || first["revenue"] != float64(125) {
		t.Errorf("first group = %v, want UPI 125", first)
	}
}

func TestAPIHandlers_HandleQuery(t *testing.T) {
	h := newTestAPIHandlers(t)

	body := strings.NewReader(`{"dataset":"sample","sql":"SELECT COUNT(*) AS n FROM ola_rides"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/query", body)
	w := httptest.NewRecorder()
	h.HandleQuery(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, w.Code, w.Body.String())
	}
	data := decodeEnvelope(t, w)["data"].(map[string]any)
	rows := data["rows"].([]any)
	if len(rows) != 1 {
		t.Fatalf("expected 1 result row, got %d", len(rows))
	}
	if rows[0].([]any)[0] != float64(3) {
		t.Errorf("COUNT(*) = %v, want 3", rows[0].([]any)[0])
	}
}

func TestAPIHandlers_HandleQuery_BadSQL(t *testing.T) {
	h := newTestAPIHandlers(t)

	body := strings.NewReader(`{"dataset":"sample","sql":"SELEKT nope"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/query", body)
	w := httptest.NewRecorder()
	h.HandleQuery(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected status %d, got %d", http.StatusBadRequest, w.Code)
	}
	if !strings.Contains(w.Body.String(), "QUERY_FAILED") {
		t.Errorf("expected QUERY_FAILED code in body, got %s", w.Body.String())
	}

	// A bad query is isolated: the KPI endpoint still works.
	req = httptest.NewRequest(http.MethodGet, "/api/kpis", nil)
	w = httptest.NewRecorder()
	h.HandleKPIs(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("KPIs should be unaffected by a failed query, got status %d", w.Code)
	}
}

func TestAPIHandlers_HandleQuery_EmptySQL(t *testing.T) {
	h := newTestAPIHandlers(t)

	body := strings.NewReader(`{"dataset":"sample","sql":""}`)
	req := httptest.NewRequest(http.MethodPost, "/api/query", body)
	w := httptest.NewRecorder()
	h.HandleQuery(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected status %d, got %d", http.StatusBadRequest, w.Code)
	}
}

func TestAPIHandlers_TagsDatasetOnSpan(t *testing.T) {
	h := newTestAPIHandlers(t)

	ctx, span := observability.StartSpan(context.Background(), "GET /api/kpis")
	defer span.Finish()
	req := httptest.NewRequest(http.MethodGet, "/api/kpis?dataset=sample", nil).WithContext(ctx)
	w := httptest.NewRecorder()
	h.HandleKPIs(w, req)

	if span.Tags["dataset.path"] == "" {
		t.Error("resolving a dataset should tag the active span with its path")
	}
}

func TestAPIHandlers_HandleHealth(t *testing.T) {
	h := newTestAPIHandlers(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	h.HandleHealth(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected status %d, got %d", http.StatusOK, w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected content-type 'application/json', got %q", ct)
	}

	data := decodeEnvelope(t, w)["data"].(map[string]any)
	if data["version"] != config.Version {
		t.Errorf("version = %v, want %s", data["version"], config.Version)
	}
}

package handlers

import (
	"encoding/json"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cast"
	"github.com/starfederation/datastar-go/datastar"

	"ride-insights/internal/config"
	"ride-insights/internal/dataset"
	"ride-insights/internal/models"
	"ride-insights/internal/observability"
	"ride-insights/internal/query"
	"ride-insights/internal/services"

	stderrors "errors"
)

const maxQueryRows = 200

var kpiTemplate = template.Must(template.New("kpis").Parse(`
<div id="kpi-content" class="kpi-row">
<div class="kpi-card"><span class="kpi-label">Total Rides</span><span class="kpi-value">{{.TotalRides}}</span></div>
<div class="kpi-card"><span class="kpi-label">Successful Rides</span><span class="kpi-value">{{.SuccessfulRides}}</span></div>
<div class="kpi-card"><span class="kpi-label">Total Booking Value</span><span class="kpi-value">{{.TotalBookingValue}}</span></div>
<div class="kpi-card"><span class="kpi-label">Avg Driver Rating</span><span class="kpi-value">{{.AvgDriverRating}}</span></div>
</div>`))

var customersTemplate = template.Must(template.New("customers").Parse(`
<div id="customers-content">
<table class="modern-table">
<thead><tr><th>Customer</th><th>Total Booking Value</th></tr></thead>
<tbody>
{{range .}}<tr><td>{{.CustomerID}}</td><td><strong>{{printf "%.2f" .TotalValue}}</strong></td></tr>
{{end}}</tbody>
</table>
</div>`))

var queryResultTemplate = template.Must(template.New("queryResult").Parse(`
<div id="query-content">
<p class="query-meta">{{.RowCount}} row(s){{if .Truncated}}, showing first {{len .Rows}}{{end}}</p>
<table class="modern-table">
<thead><tr>{{range .Columns}}<th>{{.}}</th>{{end}}</tr></thead>
<tbody>
{{range .Rows}}<tr>{{range .}}<td>{{.}}</td>{{end}}</tr>
{{end}}</tbody>
</table>
</div>`))

var errorTemplate = template.Must(template.New("error").Parse(
	`<div id="{{.Target}}" class="error-banner">{{.Message}}</div>`))

var filterOptionsTemplate = template.Must(template.New("filterOptions").Parse(`
<select id="vehicle-select" multiple data-bind-vehicles data-on-change="@get('/sse/dashboard')">
{{range .Vehicles}}<option value="{{.Value}}"{{if .Selected}} selected{{end}}>{{.Value}}</option>
{{end}}</select>
<select id="payment-select" multiple data-bind-payments data-on-change="@get('/sse/dashboard')">
{{range .Payments}}<option value="{{.Value}}"{{if .Selected}} selected{{end}}>{{.Value}}</option>
{{end}}</select>`))

type SSEHandlers struct {
	cache     *dataset.Cache
	analytics *services.Analytics
	queries   *query.Registry
	cfg       *config.Config
	metrics   *observability.Metrics
	logger    *slog.Logger
}

func NewSSEHandlers(cache *dataset.Cache, analytics *services.Analytics, queries *query.Registry,
	cfg *config.Config, metrics *observability.Metrics, logger *slog.Logger) *SSEHandlers {
	return &SSEHandlers{
		cache:     cache,
		analytics: analytics,
		queries:   queries,
		cfg:       cfg,
		metrics:   metrics,
		logger:    logger,
	}
}

// dashboardSignals mirrors the datastar signal store bound in the page.
// Loaded flips to true after the first dashboard patch; until then the
// filter controls carry no selections worth preserving.
type dashboardSignals struct {
	Dataset  string   `json:"dataset"`
	From     string   `json:"from"`
	To       string   `json:"to"`
	Vehicles []string `json:"vehicles"`
	Payments []string `json:"payments"`
	SQL      string   `json:"sql"`
	Loaded   bool     `json:"loaded"`
}

func (s dashboardSignals) filter() (services.Filter, error) {
	var f services.Filter
	if s.From != "" {
		t, err := time.Parse("2006-01-02", s.From)
		if err != nil {
			return f, fmt.Errorf("invalid from date %q", s.From)
		}
		f.From = t
	}
	if s.To != "" {
		t, err := time.Parse("2006-01-02", s.To)
		if err != nil {
			return f, fmt.Errorf("invalid to date %q", s.To)
		}
		f.To = t
	}
	f.VehicleTypes = s.Vehicles
	f.PaymentMethods = s.Payments
	return f, nil
}

func (h *SSEHandlers) resolveTable(name string) (*dataset.Table, string, error) {
	path, ok := h.cfg.DatasetPath(name)
	if !ok {
		return nil, "", fmt.Errorf("unknown dataset %q", name)
	}
	t, err := h.cache.Get(path)
	if err != nil {
		if stderrors.Is(err, dataset.ErrFileNotFound) {
			return nil, "", fmt.Errorf("dataset file %q not found, add the CSV and reload", path)
		}
		return nil, "", fmt.Errorf("failed to load dataset %q", path)
	}
	return t, path, nil
}

// HandleDashboard recomputes the whole dashboard for the current filter
// signals: filter selects, KPI cards and the top-customers table as element
// patches, both chart series as signal patches. The first load also seeds
// the filter signals with the dataset's defaults.
func (h *SSEHandlers) HandleDashboard(w http.ResponseWriter, r *http.Request) {
	sse := datastar.NewSSE(w, r)

	var sig dashboardSignals
	if err := datastar.ReadSignals(r, &sig); err != nil {
		h.logger.Warn("read dashboard signals", "error", err)
	}

	t, path, err := h.resolveTable(sig.Dataset)
	if err != nil {
		h.patchError(sse, "kpi-content", err.Error())
		return
	}
	observability.TagDataset(r.Context(), path)

	opts := h.analytics.Options(t)

	// First load seeds the controls the way a fresh session starts: the
	// default vehicle types, every payment method, the dataset's full date
	// span. Later loads keep whatever the analyst picked.
	if !sig.Loaded {
		sig.Vehicles = opts.DefaultVehicleTypes
		sig.Payments = opts.PaymentMethods
		sig.From = opts.MinDate
		sig.To = opts.MaxDate
	}

	f, err := sig.filter()
	if err != nil {
		h.patchError(sse, "kpi-content", err.Error())
		return
	}
	view := h.analytics.Apply(t, f)

	signals := map[string]any{
		"ridesByDate":      h.analytics.RidesByDate(view),
		"revenueByPayment": h.analytics.RevenueByPayment(view),
	}
	if !sig.Loaded {
		signals["vehicles"] = sig.Vehicles
		signals["payments"] = sig.Payments
		signals["from"] = sig.From
		signals["to"] = sig.To
		signals["loaded"] = true
	}
	payload, err := json.Marshal(signals)
	if err != nil {
		h.logger.Error("marshal chart signals", "error", err)
		return
	}
	sse.PatchSignals(payload)

	optionsHTML, err := renderFilterOptions(opts, sig.Vehicles, sig.Payments)
	if err != nil {
		h.logger.Error("render filter options", "error", err)
		return
	}
	sse.PatchElements(optionsHTML)

	kpiHTML, err := renderKPIs(h.analytics.KPIs(view))
	if err != nil {
		h.logger.Error("render kpi cards", "error", err)
		return
	}
	sse.PatchElements(kpiHTML)

	customersHTML, err := renderTemplate(customersTemplate, h.analytics.TopCustomers(view, services.DefaultTopCustomers))
	if err != nil {
		h.logger.Error("render top customers", "error", err)
		return
	}
	sse.PatchElements(customersHTML)

	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}

// HandleQuery executes the SQL editor's text against the full clean table
// and patches the result table, or an inline error banner. A bad query
// never disturbs the KPI and chart fragments.
func (h *SSEHandlers) HandleQuery(w http.ResponseWriter, r *http.Request) {
	sse := datastar.NewSSE(w, r)

	var sig dashboardSignals
	if err := datastar.ReadSignals(r, &sig); err != nil {
		h.patchError(sse, "query-content", "could not read query signals")
		return
	}
	if strings.TrimSpace(sig.SQL) == "" {
		h.patchError(sse, "query-content", "query text is required")
		return
	}

	t, path, err := h.resolveTable(sig.Dataset)
	if err != nil {
		h.patchError(sse, "query-content", err.Error())
		return
	}
	observability.TagDataset(r.Context(), path)

	engine, err := h.queries.Get(r.Context(), path, t)
	if err != nil {
		h.logger.Error("prepare query snapshot", "error", err, "dataset", path)
		h.patchError(sse, "query-content", "failed to prepare query snapshot")
		return
	}

	result, err := engine.Run(r.Context(), sig.SQL)
	if err != nil {
		h.metrics.ObserveQuery("error")
		h.patchError(sse, "query-content", "SQL error: "+err.Error())
		return
	}
	h.metrics.ObserveQuery("ok")

	html, err := renderQueryResult(result)
	if err != nil {
		h.logger.Error("render query result", "error", err)
		return
	}
	sse.PatchElements(html)

	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}

func (h *SSEHandlers) patchError(sse *datastar.ServerSentEventGenerator, target, message string) {
	html, err := renderTemplate(errorTemplate, map[string]string{
		"Target":  target,
		"Message": message,
	})
	if err != nil {
		h.logger.Error("render error banner", "error", err)
		return
	}
	sse.PatchElements(html)
}

type kpiView struct {
	TotalRides        int
	SuccessfulRides   int
	TotalBookingValue string
	AvgDriverRating   string
}

func renderKPIs(k models.KPISummary) (string, error) {
	view := kpiView{
		TotalRides:        k.TotalRides,
		SuccessfulRides:   k.SuccessfulRides,
		TotalBookingValue: fmt.Sprintf("%.2f", k.TotalBookingValue),
		AvgDriverRating:   "NaN",
	}
	if k.AvgDriverRating != nil {
		view.AvgDriverRating = fmt.Sprintf("%.2f", *k.AvgDriverRating)
	}
	return renderTemplate(kpiTemplate, view)
}

type optionView struct {
	Value    string
	Selected bool
}

type filterOptionsView struct {
	Vehicles []optionView
	Payments []optionView
}

// renderFilterOptions rebuilds both filter selects from the dataset's
// distinct values, marking the currently selected entries.
func renderFilterOptions(opts models.FilterOptions, vehicles, payments []string) (string, error) {
	view := filterOptionsView{
		Vehicles: optionViews(opts.VehicleTypes, vehicles),
		Payments: optionViews(opts.PaymentMethods, payments),
	}
	return renderTemplate(filterOptionsTemplate, view)
}

func optionViews(values, selected []string) []optionView {
	set := make(map[string]struct{}, len(selected))
	for _, v := range selected {
		set[v] = struct{}{}
	}
	out := make([]optionView, 0, len(values))
	for _, v := range values {
		_, ok := set[v]
		out = append(out, optionView{Value: v, Selected: ok})
	}
	return out
}

type queryResultView struct {
	Columns   []string
	Rows      [][]string
	RowCount  int
	Truncated bool
}

func renderQueryResult(result *models.QueryResult) (string, error) {
	view := queryResultView{
		Columns:  result.Columns,
		RowCount: len(result.Rows),
	}
	rows := result.Rows
	if len(rows) > maxQueryRows {
		rows = rows[:maxQueryRows]
		view.Truncated = true
	}
	for _, row := range rows {
		cells := make([]string, len(row))
		for i, cell := range row {
			if cell == nil {
				continue
			}
			cells[i] = cast.ToString(cell)
		}
		view.Rows = append(view.Rows, cells)
	}
	return renderTemplate(queryResultTemplate, view)
}

func renderTemplate(tmpl *template.Template, data any) (string, error) {
	var buf strings.Builder
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// Package templates holds the dashboard page. The page is intentionally
// thin: filters, KPI cards, chart containers and the SQL editor are bound to
// the SSE endpoints through datastar attributes, and all data arrives as
// element or signal patches.
package templates

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/a-h/templ"
)

const pageHead = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8"/>
<meta name="viewport" content="width=device-width, initial-scale=1"/>
<title>Ola Ride Insights</title>
<script type="module" src="https://cdn.jsdelivr.net/gh/starfederation/datastar@v1.0.2/bundles/datastar.js"></script>
<script src="https://cdn.jsdelivr.net/npm/chart.js@4"></script>
<link rel="stylesheet" href="https://cdn.jsdelivr.net/npm/water.css@2/out/water.css"/>
<style>
.kpi-row{display:flex;gap:1rem}
.kpi-card{flex:1;padding:1rem;border:1px solid #ccc;border-radius:8px}
.kpi-label{display:block;font-size:.8rem;color:#888}
.kpi-value{font-size:1.6rem;font-weight:700}
.modern-table{width:100%;border-collapse:collapse}
.error-banner{padding:.8rem;border:1px solid #c00;color:#c00;border-radius:6px}
.layout{display:grid;grid-template-columns:260px 1fr;gap:1.5rem}
textarea{width:100%;font-family:monospace}
</style>
</head>`

// Dashboard renders the analyst dashboard with the SQL editor pre-filled.
func Dashboard(defaultQuery string) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if _, err := io.WriteString(w, pageHead); err != nil {
			return err
		}
		signals, err := json.Marshal(map[string]any{
			"dataset":          "",
			"from":             "",
			"to":               "",
			"vehicles":         []string{},
			"payments":         []string{},
			"sql":              defaultQuery,
			"loaded":           false,
			"ridesByDate":      []any{},
			"revenueByPayment": []any{},
		})
		if err != nil {
			return err
		}
		body := fmt.Sprintf(`
<body data-signals="%s"
      data-on-load="@get('/sse/dashboard')">
<h1>Ola Ride Insights Dashboard</h1>
<div class="layout">
<aside>
<h3>Dataset</h3>
<label><input type="radio" name="dataset" value="sample" data-bind-dataset data-on-change="@get('/sse/dashboard')"/> Sample (small)</label>
<label><input type="radio" name="dataset" value="full" data-bind-dataset data-on-change="@get('/sse/dashboard')"/> Full (large)</label>
<h3>Filters</h3>
<label>From <input type="date" data-bind-from data-on-change="@get('/sse/dashboard')"/></label>
<label>To <input type="date" data-bind-to data-on-change="@get('/sse/dashboard')"/></label>
<label>Vehicle types <select id="vehicle-select" multiple data-bind-vehicles data-on-change="@get('/sse/dashboard')"></select></label>
<label>Payment methods <select id="payment-select" multiple data-bind-payments data-on-change="@get('/sse/dashboard')"></select></label>
</aside>
<main>
<div id="kpi-content" class="kpi-row"></div>
<h2>Ride Volume Over Time</h2>
<canvas id="rides-chart" data-effect="drawChart('rides-chart','line',$ridesByDate.map(p=>p.date),$ridesByDate.map(p=>p.count),'Rides')"></canvas>
<h2>Revenue by Payment Method</h2>
<canvas id="revenue-chart" data-effect="drawChart('revenue-chart','bar',$revenueByPayment.map(p=>p.payment_method),$revenueByPayment.map(p=>p.revenue),'Revenue')"></canvas>
<h2>Top 10 Customers by Booking Value</h2>
<div id="customers-content"></div>
<h2>Run SQL (SQLite)</h2>
<textarea rows="6" data-bind-sql></textarea>
<button data-on-click="@post('/sse/query')">Run SQL</button>
<div id="query-content"></div>
</main>
</div>
<script>
const charts = {};
window.drawChart = function(id, type, labels, data, label) {
  const existing = charts[id];
  if (existing) {
    existing.data.labels = labels;
    existing.data.datasets[0].data = data;
    existing.update();
    return;
  }
  charts[id] = new Chart(document.getElementById(id), {
    type: type,
    data: {labels: labels, datasets: [{label: label, data: data}]},
    options: {animation: false},
  });
};
</script>
</body>
</html>`, templ.EscapeString(string(signals)))
		_, err = io.WriteString(w, body)
		return err
	})
}

package handlers

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"ride-insights/internal/config"
	"ride-insights/internal/dataset"
	"ride-insights/internal/errors"
	"ride-insights/internal/observability"
	"ride-insights/internal/query"
	"ride-insights/internal/services"

	stderrors "errors"
)

const cacheControl = "public, max-age=60"

type APIHandlers struct {
	cache     *dataset.Cache
	analytics *services.Analytics
	queries   *query.Registry
	cfg       *config.Config
	metrics   *observability.Metrics
	logger    *slog.Logger
}

func NewAPIHandlers(cache *dataset.Cache, analytics *services.Analytics, queries *query.Registry,
	cfg *config.Config, metrics *observability.Metrics, logger *slog.Logger) *APIHandlers {
	return &APIHandlers{
		cache:     cache,
		analytics: analytics,
		queries:   queries,
		cfg:       cfg,
		metrics:   metrics,
		logger:    logger,
	}
}

// table resolves the requested dataset (?dataset=sample|full, empty means
// the configured default) to its cached clean table.
func (h *APIHandlers) table(r *http.Request) (*dataset.Table, string, error) {
	name := r.URL.Query().Get("dataset")
	path, ok := h.cfg.DatasetPath(name)
	if !ok {
		return nil, "", errors.BadRequest(fmt.Sprintf("unknown dataset %q, must be one of: sample, full", name))
	}

	t, err := h.cache.Get(path)
	if err != nil {
		if stderrors.Is(err, dataset.ErrFileNotFound) {
			return nil, "", errors.DatasetNotFound(path)
		}
		return nil, "", errors.InternalWrap(err, "failed to load dataset")
	}
	observability.TagDataset(r.Context(), path)
	return t, path, nil
}

// parseFilter reads the filter predicates from query parameters: from/to as
// 2006-01-02 dates, repeated vehicle and payment parameters as sets.
func parseFilter(r *http.Request) (services.Filter, error) {
	var f services.Filter
	q := r.URL.Query()

	if raw := q.Get("from"); raw != "" {
		t, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return f, errors.BadRequestWrap(err, "invalid from date, expected YYYY-MM-DD")
		}
		f.From = t
	}
	if raw := q.Get("to"); raw != "" {
		t, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return f, errors.BadRequestWrap(err, "invalid to date, expected YYYY-MM-DD")
		}
		f.To = t
	}
	f.VehicleTypes = q["vehicle"]
	f.PaymentMethods = q["payment"]
	return f, nil
}

// filtered resolves the dataset and applies the request's filter in one
// step; every aggregate endpoint starts here.
func (h *APIHandlers) filtered(r *http.Request) (*dataset.Table, error) {
	t, _, err := h.table(r)
	if err != nil {
		return nil, err
	}
	f, err := parseFilter(r)
	if err != nil {
		return nil, err
	}
	return h.analytics.Apply(t, f), nil
}

func (h *APIHandlers) writeErr(w http.ResponseWriter, r *http.Request, err error) {
	errors.WriteError(w, h.logger, err, observability.GetRequestID(r.Context()))
}

func (h *APIHandlers) HandleFilterOptions(w http.ResponseWriter, r *http.Request) {
	t, _, err := h.table(r)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}

	errors.WriteSuccessWithHeaders(w, h.analytics.Options(t), map[string]string{
		"Cache-Control": cacheControl,
	})
}

func (h *APIHandlers) HandleKPIs(w http.ResponseWriter, r *http.Request) {
	view, err := h.filtered(r)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}

	errors.WriteSuccess(w, h.analytics.KPIs(view))
}

func (h *APIHandlers) HandleRidesByDate(w http.ResponseWriter, r *http.Request) {
	view, err := h.filtered(r)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}

	errors.WriteSuccess(w, h.analytics.RidesByDate(view))
}

func (h *APIHandlers) HandleRevenueByPayment(w http.ResponseWriter, r *http.Request) {
	view, err := h.filtered(r)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}

	errors.WriteSuccess(w, h.analytics.RevenueByPayment(view))
}

func (h *APIHandlers) HandleTopCustomers(w http.ResponseWriter, r *http.Request) {
	view, err := h.filtered(r)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}

	errors.WriteSuccess(w, h.analytics.TopCustomers(view, services.DefaultTopCustomers))
}

type queryRequest struct {
	Dataset string `json:"dataset"`
	SQL     string `json:"sql"`
}

// HandleQuery runs analyst SQL against the full clean table (never the
// filtered view). A failed query is reported inline and leaves everything
// else untouched.
func (h *APIHandlers) HandleQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeErr(w, r, errors.BadRequestWrap(err, "invalid query request body"))
		return
	}
	if req.SQL == "" {
		h.writeErr(w, r, errors.BadRequest("query text is required"))
		return
	}

	path, ok := h.cfg.DatasetPath(req.Dataset)
	if !ok {
		h.writeErr(w, r, errors.BadRequest(fmt.Sprintf("unknown dataset %q, must be one of: sample, full", req.Dataset)))
		return
	}
	t, err := h.cache.Get(path)
	if err != nil {
		if stderrors.Is(err, dataset.ErrFileNotFound) {
			h.writeErr(w, r, errors.DatasetNotFound(path))
		} else {
			h.writeErr(w, r, errors.InternalWrap(err, "failed to load dataset"))
		}
		return
	}
	observability.TagDataset(r.Context(), path)

	engine, err := h.queries.Get(r.Context(), path, t)
	if err != nil {
		h.writeErr(w, r, errors.InternalWrap(err, "failed to prepare query snapshot"))
		return
	}

	result, err := engine.Run(r.Context(), req.SQL)
	if err != nil {
		h.metrics.ObserveQuery("error")
		h.writeErr(w, r, errors.QueryWrap(err, "query failed"))
		return
	}
	h.metrics.ObserveQuery("ok")

	errors.WriteSuccess(w, result)
}

func (h *APIHandlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	errors.WriteSuccess(w, map[string]string{
		"status":    "healthy",
		"timestamp": time.Now().Format(time.RFC3339),
		"version":   config.Version,
	})
}

func (h *APIHandlers) HandleStats(w http.ResponseWriter, r *http.Request) {
	errors.WriteSuccess(w, h.cache.Stats())
}

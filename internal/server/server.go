package server

import (
	"log/slog"
	"net/http"

	"ride-insights/internal/config"
	"ride-insights/internal/dataset"
	"ride-insights/internal/handlers"
	"ride-insights/internal/observability"
	"ride-insights/internal/query"
	"ride-insights/internal/services"
)

type Server struct {
	mux         *http.ServeMux
	logger      *slog.Logger
	apiHandlers *handlers.APIHandlers
	sseHandlers *handlers.SSEHandlers
	metrics     *observability.Metrics
}

type TemplateHandlers struct {
	Dashboard http.HandlerFunc
}

func NewServer(cache *dataset.Cache, analytics *services.Analytics, queries *query.Registry,
	cfg *config.Config, metrics *observability.Metrics, logger *slog.Logger,
	templateHandlers *TemplateHandlers) *Server {
	s := &Server{
		mux:         http.NewServeMux(),
		logger:      logger,
		apiHandlers: handlers.NewAPIHandlers(cache, analytics, queries, cfg, metrics, logger),
		sseHandlers: handlers.NewSSEHandlers(cache, analytics, queries, cfg, metrics, logger),
		metrics:     metrics,
	}
	s.setupRoutes(templateHandlers)
	return s
}

func (s *Server) setupRoutes(templateHandlers *TemplateHandlers) {
	// Dashboard page and operational endpoints
	s.mux.HandleFunc("GET /{$}", templateHandlers.Dashboard)
	s.mux.HandleFunc("GET /health", s.apiHandlers.HandleHealth)
	s.mux.HandleFunc("GET /admin/stats", s.apiHandlers.HandleStats)
	s.mux.Handle("GET /metrics", s.metrics.Handler())

	// REST API endpoints
	s.mux.HandleFunc("GET /api/filters", s.apiHandlers.HandleFilterOptions)
	s.mux.HandleFunc("GET /api/kpis", s.apiHandlers.HandleKPIs)
	s.mux.HandleFunc("GET /api/rides-by-date", s.apiHandlers.HandleRidesByDate)
	s.mux.HandleFunc("GET /api/revenue-by-payment", s.apiHandlers.HandleRevenueByPayment)
	s.mux.HandleFunc("GET /api/top-customers", s.apiHandlers.HandleTopCustomers)
	s.mux.HandleFunc("POST /api/query", s.apiHandlers.HandleQuery)

	// Datastar SSE endpoints
	s.mux.HandleFunc("GET /sse/dashboard", s.sseHandlers.HandleDashboard)
	s.mux.HandleFunc("POST /sse/query", s.sseHandlers.HandleQuery)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"time"

	"ride-insights/internal/config"
	"ride-insights/internal/dataset"
	"ride-insights/internal/middleware"
	"ride-insights/internal/observability"
	"ride-insights/internal/query"
	"ride-insights/internal/server"
	"ride-insights/internal/services"
	"ride-insights/internal/ui/templates"
)

const (
	renderTimeout  = 10 * time.Second
	preloadTimeout = 30 * time.Second
	cacheMaxAge    = "public, max-age=300"
)

func handleDashboard(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), renderTimeout)
	defer cancel()

	w.Header().Set("Cache-Control", cacheMaxAge)
	if err := templates.Dashboard(query.DefaultQuery).Render(ctx, w); err != nil {
		http.Error(w, "render error", http.StatusInternalServerError)
	}
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.Logger)
	slog.SetDefault(logger)

	logger.Info("starting application",
		"version", config.Version,
		"config", cfg,
	)

	cache := dataset.NewCache(logger)

	// Best-effort warmup: a missing CSV is reported per request later, so
	// the other dataset stays usable.
	ctx, cancel := context.WithTimeout(context.Background(), preloadTimeout)
	defer cancel()
	if err := cache.Preload(ctx, cfg.Datasets.SamplePath, cfg.Datasets.FullPath); err != nil {
		logger.Error("failed to preload datasets", "error", err)
		os.Exit(1)
	}

	analytics := services.NewAnalytics(logger)
	queries := query.NewRegistry(logger)
	metrics := observability.NewMetrics()

	templateHandlers := &server.TemplateHandlers{
		Dashboard: handleDashboard,
	}

	srv := server.NewServer(cache, analytics, queries, cfg, metrics, logger, templateHandlers)

	rateLimiter := middleware.NewRateLimiter(cfg.Security)

	middlewareChain := middleware.Chain(
		middleware.Recovery(logger),
		middleware.RequestID(),
		middleware.Logger(logger),
		middleware.Tracing(),
		middleware.Metrics(metrics),
		middleware.SecurityHeaders(),
		middleware.CORS(cfg.Security),
		middleware.TrustedProxy(cfg.Security),
		middleware.RateLimit(rateLimiter, logger),
	)

	handler := middlewareChain(srv)

	httpServer := &http.Server{
		Addr:         cfg.Address(),
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	gracefulServer := server.NewGracefulServer(httpServer, logger, cfg)

	gracefulServer.RegisterShutdownHook(func(ctx context.Context) error {
		logger.Info("closing query snapshots")
		return queries.Close()
	})

	logger.Info("starting graceful server")
	if err := gracefulServer.ListenAndServe(); err != nil {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}

	logger.Info("application stopped gracefully")
}

package query

import (
	"context"
	"log/slog"
	"sync"

	"ride-insights/internal/dataset"
)

// Registry keeps one engine per dataset path for the session, mirroring the
// dataset cache: the snapshot is taken the first time a dataset's query
// surface is used and lives until shutdown.
type Registry struct {
	mu      sync.Mutex
	engines map[string]*Engine
	logger  *slog.Logger
}

func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		engines: make(map[string]*Engine),
		logger:  logger,
	}
}

// Get returns the engine for path, building the snapshot from t on first
// use.
func (r *Registry) Get(ctx context.Context, path string, t *dataset.Table) (*Engine, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.engines[path]; ok {
		return e, nil
	}
	e, err := NewEngine(ctx, t, r.logger.With("dataset", path))
	if err != nil {
		return nil, err
	}
	r.engines[path] = e
	return e, nil
}

// Close releases every snapshot database. Registered as a shutdown hook.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var firstErr error
	for path, e := range r.engines {
		if err := e.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(r.engines, path)
	}
	return firstErr
}

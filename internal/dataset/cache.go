package dataset

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Cache memoizes clean tables by dataset path for the lifetime of the
// process. Re-selecting a dataset never re-reads its file; there is no
// eviction.
type Cache struct {
	mu     sync.RWMutex
	tables map[string]*Table
	logger *slog.Logger
}

func NewCache(logger *slog.Logger) *Cache {
	return &Cache{
		tables: make(map[string]*Table),
		logger: logger,
	}
}

// Get returns the clean table for path, loading it on first use.
func (c *Cache) Get(path string) (*Table, error) {
	c.mu.RLock()
	t, ok := c.tables[path]
	c.mu.RUnlock()
	if ok {
		return t, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if t, ok := c.tables[path]; ok {
		return t, nil
	}

	start := time.Now()
	t, err := Load(path)
	if err != nil {
		return nil, err
	}
	c.tables[path] = t

	c.logger.Info("dataset loaded",
		"path", path,
		"rows", t.Nrow(),
		"columns", len(t.Names()),
		"duration", time.Since(start),
	)
	return t, nil
}

// Preload warms the cache for the given paths concurrently. A missing file
// is logged and skipped so the remaining datasets stay usable; any other
// load failure is returned.
func (c *Cache) Preload(ctx context.Context, paths ...string) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, path := range paths {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if _, err := c.Get(path); err != nil {
				if errors.Is(err, ErrFileNotFound) {
					c.logger.Warn("dataset not found, skipping preload", "path", path)
					return nil
				}
				return err
			}
			return nil
		})
	}
	return g.Wait()
}

// Stats reports row counts per cached dataset for the admin endpoint.
func (c *Cache) Stats() map[string]any {
	c.mu.RLock()
	defer c.mu.RUnlock()

	datasets := make(map[string]any, len(c.tables))
	for path, t := range c.tables {
		datasets[path] = map[string]any{
			"rows":    t.Nrow(),
			"columns": len(t.Names()),
		}
	}
	return map[string]any{
		"datasets": datasets,
		"cached":   len(c.tables),
	}
}

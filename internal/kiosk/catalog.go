package kiosk

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/boothbuddy/boothbuddy/internal/filters"
)

const defaultCatalogTTL = 10 * time.Minute

// FilterCatalog caches the remote filter list with a TTL.
type FilterCatalog struct {
	fetch  func(ctx context.Context) ([]filters.FilterSpec, error)
	ttl    time.Duration
	logger *slog.Logger

	mu        sync.RWMutex
	cached    []filters.FilterSpec
	fetchedAt time.Time
}

func NewFilterCatalog(fetch func(ctx context.Context) ([]filters.FilterSpec, error), ttl time.Duration, logger *slog.Logger) *FilterCatalog {
	if ttl <= 0 {
		ttl = defaultCatalogTTL
	}
	return &FilterCatalog{
		fetch:  fetch,
		ttl:    ttl,
		logger: logger,
	}
}

// Get returns the cached list if fresh, otherwise fetches it again.
func (c *FilterCatalog) Get(ctx context.Context) ([]filters.FilterSpec, error) {
	c.mu.RLock()
	if c.cached != nil && time.Since(c.fetchedAt) < c.ttl {
		list := c.cached
		c.mu.RUnlock()
		return list, nil
	}
	c.mu.RUnlock()

	return c.Refresh(ctx)
}

func (c *FilterCatalog) Peek() []filters.FilterSpec {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cached
}

// Refresh fetches regardless of freshness. On failure a stale list is
// returned when one exists.
func (c *FilterCatalog) Refresh(ctx context.Context) ([]filters.FilterSpec, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	list, err := c.fetch(ctx)
	if err != nil {
		c.logger.Warn("filter catalog fetch failed", "error", err)
		if c.cached != nil {
			c.logger.Info("returning stale filter catalog")
			return c.cached, nil
		}
		return nil, err
	}

	if list == nil {
		list = []filters.FilterSpec{}
	}
	c.cached = list
	c.fetchedAt = time.Now()
	return list, nil
}

func (c *FilterCatalog) Invalidate() {
	c.mu.Lock()
	c.cached = nil
	c.mu.Unlock()
}

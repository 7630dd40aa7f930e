package loader

import (
	"context"
	"fmt"
	"log/slog"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"github.com/chomoku/kyoto-hexmap/internal/core/observability"
	"github.com/chomoku/kyoto-hexmap/internal/dataset"
)

// Cache is a read-through cache of loaded collections keyed by path.
// Concurrent misses for one path share a single load. Size it to the number
// of datasets in the catalog so nothing is evicted.
type Cache struct {
	lru    *lru.Cache[string, *dataset.Collection]
	group  singleflight.Group
	load   LoadFunc
	logger *slog.Logger
}

func NewCache(size int, load LoadFunc, logger *slog.Logger) (*Cache, error) {
	if size <= 0 {
		size = 16
	}
	if load == nil {
		load = Load
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	c, err := lru.New[string, *dataset.Collection](size)
	if err != nil {
		return nil, fmt.Errorf("dataset cache: %w", err)
	}
	return &Cache{lru: c, load: load, logger: logger}, nil
}

func (c *Cache) Get(ctx context.Context, path string) (*dataset.Collection, error) {
	if coll, ok := c.lru.Get(path); ok {
		observability.IncDatasetCache("hit")
		return coll, nil
	}

	v, err, shared := c.group.Do(path, func() (any, error) {
		if coll, ok := c.lru.Get(path); ok {
			return coll, nil
		}
		coll, err := c.load(ctx, path)
		if err != nil {
			return nil, err
		}
		c.lru.Add(path, coll)
		c.logger.InfoContext(ctx, "dataset loaded",
			"path", path,
			"records", coll.Len(),
			"columns", len(coll.Columns))
		return coll, nil
	})
	observability.IncDatasetCache("miss")
	if err != nil {
		return nil, fmt.Errorf("load dataset %s: %w", path, err)
	}
	if shared {
		c.logger.DebugContext(ctx, "dataset load shared", "path", path)
	}
	return v.(*dataset.Collection), nil
}

func (c *Cache) Len() int { return c.lru.Len() }

// Evict drops path so the next Get reads the file again.
func (c *Cache) Evict(path string) bool {
	return c.lru.Remove(path)
}

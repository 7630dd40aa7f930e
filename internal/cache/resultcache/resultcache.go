// Package resultcache memoizes render results in a byte store.
package resultcache

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"time"

	"github.com/chomoku/kyoto-hexmap/internal/cache"
	"github.com/chomoku/kyoto-hexmap/internal/cache/keys"
	"github.com/chomoku/kyoto-hexmap/internal/core/model"
	"github.com/chomoku/kyoto-hexmap/internal/core/observability"
	"github.com/chomoku/kyoto-hexmap/internal/decision"
	"github.com/chomoku/kyoto-hexmap/internal/logger"
	"github.com/chomoku/kyoto-hexmap/internal/render"
)

type Options struct {
	Variant   string
	OpTimeout time.Duration
	// TTL returns the lifetime of a dataset's entries.
	TTL func(dataset string) time.Duration
	// Canonical maps a dataset label to its key so that labels and keys
	// share entries. Nil leaves the name as given.
	Canonical func(dataset string) string
	// Admission filters which renders are stored. Nil stores all of them.
	Admission decision.Interface
}

// Cache wraps a Renderer. Store failures are logged and the request is
// rendered directly; they never fail the request.
type Cache struct {
	next   render.Renderer
	store  cache.Store
	opts   Options
	logger *slog.Logger
}

var _ render.Renderer = (*Cache)(nil)

func New(next render.Renderer, store cache.Store, opts Options, log *slog.Logger) *Cache {
	if opts.OpTimeout <= 0 {
		opts.OpTimeout = 250 * time.Millisecond
	}
	if opts.TTL == nil {
		opts.TTL = func(string) time.Duration { return time.Minute }
	}
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Cache{next: next, store: store, opts: opts, logger: log}
}

func (c *Cache) Render(ctx context.Context, req model.RenderRequest) (model.RenderResult, error) {
	if err := req.Validate(); err != nil {
		return model.RenderResult{}, err
	}
	if c.opts.Canonical != nil {
		req.Dataset = c.opts.Canonical(req.Dataset)
	}
	key := keys.RenderKey(c.opts.Variant, req)
	if c.opts.Admission != nil {
		c.opts.Admission.Observe(req)
	}

	if res, ok := c.lookup(ctx, key); ok {
		observability.IncCacheHit()
		c.logger.DebugContext(logger.WithCacheOutcome(ctx, "hit"), "render cache hit", "key", key)
		return res, nil
	}

	res, err := c.next.Render(ctx, req)
	if err != nil {
		return res, err
	}
	if c.opts.Admission != nil && !c.opts.Admission.ShouldCache(req) {
		c.logger.DebugContext(ctx, "render not admitted to cache", "key", key)
		return res, nil
	}
	c.fill(ctx, key, req.Dataset, res)
	return res, nil
}

// Invalidate drops every cached render of a dataset. Stores without prefix
// deletion are left alone.
func (c *Cache) Invalidate(ctx context.Context, dataset string) (int, error) {
	type prefixDeleter interface {
		DelPrefix(ctx context.Context, prefix string) (int, error)
	}
	pd, ok := c.store.(prefixDeleter)
	if !ok {
		return 0, nil
	}
	return pd.DelPrefix(ctx, keys.DatasetPrefix(c.opts.Variant, dataset))
}

func (c *Cache) lookup(ctx context.Context, key string) (model.RenderResult, bool) {
	opCtx, cancel := context.WithTimeout(ctx, c.opts.OpTimeout)
	defer cancel()

	b, found, err := c.store.Get(opCtx, key)
	if err != nil {
		observability.IncCacheError()
		c.logger.WarnContext(logger.WithCacheOutcome(ctx, "error"), "render cache get failed", "key", key, "err", err)
		return model.RenderResult{}, false
	}
	if !found {
		observability.IncCacheMiss()
		return model.RenderResult{}, false
	}
	var res model.RenderResult
	if err := json.Unmarshal(b, &res); err != nil {
		observability.IncCacheError()
		c.logger.WarnContext(ctx, "render cache entry corrupt; dropping", "key", key, "err", err)
		_ = c.store.Del(opCtx, key)
		return model.RenderResult{}, false
	}
	return res, true
}

func (c *Cache) fill(ctx context.Context, key, dataset string, res model.RenderResult) {
	b, err := json.Marshal(res)
	if err != nil {
		c.logger.WarnContext(ctx, "render cache encode failed", "key", key, "err", err)
		return
	}
	opCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.opts.OpTimeout)
	defer cancel()
	if err := c.store.Set(opCtx, key, b, c.opts.TTL(dataset)); err != nil {
		c.logger.WarnContext(logger.WithCacheOutcome(ctx, "error"), "render cache set failed", "key", key, "err", err)
	}
}

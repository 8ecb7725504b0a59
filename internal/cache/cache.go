// Package cache is the result cache for expensive derived artifacts such as
// generated question sets and answer feedback. It is best-effort: backend
// failures degrade to recomputation and are never returned to callers.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Backend stores artifacts by key until their ttl passes.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Name() string
}

// Observer receives hit/miss events. metrics.Metrics implements it.
type Observer interface {
	CacheHit(kind string)
	CacheMiss(kind string)
}

// ComputeFunc produces the artifact on a miss.
type ComputeFunc func(ctx context.Context) ([]byte, error)

// Cache runs at most one compute per fingerprint at a time within the process.
type Cache struct {
	backend  Backend
	logger   *zap.Logger
	observer Observer
	group    singleflight.Group
}

// Option configures a Cache.
type Option func(*Cache)

// WithObserver reports hits and misses to o.
func WithObserver(o Observer) Option {
	return func(c *Cache) { c.observer = o }
}

// New wraps backend. A nil backend disables storage but keeps
// single-flight deduplication.
func New(backend Backend, logger *zap.Logger, opts ...Option) *Cache {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Cache{
		backend: backend,
		logger:  logger.With(zap.String("component", "cache")),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Backend returns the configured backend name.
func (c *Cache) Backend() string {
	if c.backend == nil {
		return "none"
	}
	return c.backend.Name()
}

// GetOrCompute returns the cached artifact for fp or computes and stores it.
// Concurrent callers for the same fingerprint share one compute. The compute
// is detached from the first caller's cancellation so that other waiters are
// not failed by it; each caller still stops waiting when its own ctx ends.
// A failed compute is not stored.
func (c *Cache) GetOrCompute(ctx context.Context, fp Fingerprint, ttl time.Duration, compute ComputeFunc) ([]byte, error) {
	key := fp.String()

	if v, ok := c.lookup(ctx, key); ok {
		c.hit(fp)
		return v, nil
	}

	ch := c.group.DoChan(key, func() (any, error) {
		flightCtx := context.WithoutCancel(ctx)

		// Another flight may have stored the value after our lookup.
		if v, ok := c.lookup(flightCtx, key); ok {
			c.hit(fp)
			return v, nil
		}
		c.miss(fp)

		v, err := compute(flightCtx)
		if err != nil {
			return nil, err
		}
		c.store(flightCtx, key, v, ttl)
		return v, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		if res.Shared {
			c.logger.Debug("joined in-flight compute", zap.String("fingerprint", key))
		}
		return res.Val.([]byte), nil
	}
}

// Fetch is GetOrCompute for JSON-encodable artifacts.
func Fetch[T any](ctx context.Context, c *Cache, fp Fingerprint, ttl time.Duration, compute func(ctx context.Context) (T, error)) (T, error) {
	var out T
	raw, err := c.GetOrCompute(ctx, fp, ttl, func(ctx context.Context) ([]byte, error) {
		v, err := compute(ctx)
		if err != nil {
			return nil, err
		}
		return json.Marshal(v)
	})
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("decode cached %s: %w", fp.Kind(), err)
	}
	return out, nil
}

func (c *Cache) lookup(ctx context.Context, key string) ([]byte, bool) {
	if c.backend == nil {
		return nil, false
	}
	v, ok, err := c.backend.Get(ctx, key)
	if err != nil {
		c.logger.Warn("cache read failed",
			zap.String("backend", c.backend.Name()),
			zap.String("fingerprint", key),
			zap.Error(err),
		)
		return nil, false
	}
	return v, ok
}

func (c *Cache) store(ctx context.Context, key string, v []byte, ttl time.Duration) {
	if c.backend == nil {
		return
	}
	if err := c.backend.Set(ctx, key, v, ttl); err != nil {
		c.logger.Warn("cache write failed",
			zap.String("backend", c.backend.Name()),
			zap.String("fingerprint", key),
			zap.Error(err),
		)
	}
}

func (c *Cache) hit(fp Fingerprint) {
	if c.observer != nil {
		c.observer.CacheHit(fp.Kind())
	}
}

func (c *Cache) miss(fp Fingerprint) {
	if c.observer != nil {
		c.observer.CacheMiss(fp.Kind())
	}
}

// Package cache keeps derived upstream results for a bounded time.
package cache

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Cache stores values of one type under string keys. Values are JSON encoded so
// callers never share memory with a stored entry. Backend failures are logged
// and behave as misses.
type Cache[V any] struct {
	name    string
	backend Backend
	logger  *slog.Logger
	lookups *prometheus.CounterVec
}

// New wraps backend for values of type V. name labels metrics and logs.
func New[V any](name string, backend Backend, logger *slog.Logger) *Cache[V] {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Cache[V]{
		name:    name,
		backend: backend,
		logger:  logger.With("cache", name),
		lookups: lookupCounter(),
	}
}

// Get returns the value stored under key.
func (c *Cache[V]) Get(ctx context.Context, key string) (V, bool) {
	return c.GetFresh(ctx, key, nil)
}

// GetFresh returns the stored value only when fresh accepts it. A nil fresh
// accepts every value.
func (c *Cache[V]) GetFresh(ctx context.Context, key string, fresh func(V) bool) (V, bool) {
	var zero V
	if c == nil || c.backend == nil {
		return zero, false
	}
	raw, ok, err := c.backend.Get(ctx, key)
	if err != nil {
		c.logger.Warn("cache read failed", "key", key, "error", err)
		c.observe(resultError)
		return zero, false
	}
	if !ok {
		c.observe(resultMiss)
		return zero, false
	}
	var value V
	if err := json.Unmarshal(raw, &value); err != nil {
		c.logger.Warn("cache entry undecodable", "key", key, "error", err)
		c.observe(resultError)
		return zero, false
	}
	if fresh != nil && !fresh(value) {
		c.observe(resultStale)
		return zero, false
	}
	c.observe(resultHit)
	return value, true
}

// Set stores value under key for ttl.
func (c *Cache[V]) Set(ctx context.Context, key string, value V, ttl time.Duration) {
	if c == nil || c.backend == nil {
		return
	}
	raw, err := json.Marshal(value)
	if err != nil {
		c.logger.Warn("cache entry unencodable", "key", key, "error", err)
		return
	}
	if err := c.backend.Set(ctx, key, raw, ttl); err != nil {
		c.logger.Warn("cache write failed", "key", key, "error", err)
	}
}

func (c *Cache[V]) observe(result string) {
	if c.lookups == nil {
		return
	}
	c.lookups.With(prometheus.Labels{"cache": c.name, "result": result}).Inc()
}

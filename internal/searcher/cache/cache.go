// Package cache keeps query results in Redis keyed by a hash of the resolved
// query, so differently spelled queries that resolve to the same term ids
// share an entry.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/Term-Index-Engine/internal/searcher"
	"github.com/Adithya-Monish-Kumar-K/Term-Index-Engine/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/Term-Index-Engine/pkg/metrics"
)

const keyPrefix = "tie:result:"

// Store is the subset of the Redis client the cache uses.
type Store interface {
	Lookup(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	FlushByPattern(ctx context.Context, pattern string) (int64, error)
}

type QueryCache struct {
	store   Store
	ttl     time.Duration
	group   singleflight.Group
	hits    atomic.Int64
	misses  atomic.Int64
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func New(store Store, ttl time.Duration, m *metrics.Metrics) *QueryCache {
	return &QueryCache{
		store:   store,
		ttl:     ttl,
		metrics: m,
		logger:  slog.Default().With("component", "query-cache"),
	}
}

// Key identifies a resolved query in a mode. Constraint predicates given as
// functions cannot be keyed; ok is false for such queries.
func Key(mode string, q executor.Query) (key string, ok bool) {
	for _, t := range q.Terms {
		for _, c := range t.Constraints {
			if c.Match != nil {
				return "", false
			}
		}
	}
	raw, err := json.Marshal(struct {
		Mode  string         `json:"mode"`
		Query executor.Query `json:"query"`
	}{mode, q})
	if err != nil {
		return "", false
	}
	sum := sha256.Sum256(raw)
	return fmt.Sprintf("%s%x", keyPrefix, sum[:16]), true
}

// Get returns a cached result. Store failures count as misses.
func (c *QueryCache) Get(ctx context.Context, key string) (*searcher.Result, bool) {
	data, ok, err := c.store.Lookup(ctx, key)
	if err != nil {
		c.logger.Error("cache get failed", "key", key, "error", err)
	}
	if err != nil || !ok {
		c.miss()
		return nil, false
	}
	var result searcher.Result
	if err := json.Unmarshal(data, &result); err != nil {
		c.logger.Error("cache unmarshal failed", "key", key, "error", err)
		c.miss()
		return nil, false
	}
	c.hits.Add(1)
	if c.metrics != nil {
		c.metrics.ResultCacheHits.Inc()
	}
	return &result, true
}

func (c *QueryCache) miss() {
	c.misses.Add(1)
	if c.metrics != nil {
		c.metrics.ResultCacheMisses.Inc()
	}
}

// Set stores result. Failures are logged, not returned.
func (c *QueryCache) Set(ctx context.Context, key string, result *searcher.Result) {
	data, err := json.Marshal(result)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	if err := c.store.Set(ctx, key, data, c.ttl); err != nil {
		c.logger.Error("cache set failed", "key", key, "error", err)
	}
}

// GetOrCompute returns the cached result for key or computes and stores it.
// Concurrent misses on one key share a single computation.
func (c *QueryCache) GetOrCompute(
	ctx context.Context,
	key string,
	compute func() (*searcher.Result, error),
) (*searcher.Result, bool, error) {
	if result, ok := c.Get(ctx, key); ok {
		return result, true, nil
	}
	val, err, _ := c.group.Do(key, func() (any, error) {
		result, err := compute()
		if err != nil {
			return nil, err
		}
		c.Set(ctx, key, result)
		return result, nil
	})
	if err != nil {
		return nil, false, err
	}
	return val.(*searcher.Result), false, nil
}

// Invalidate deletes every cached result.
func (c *QueryCache) Invalidate(ctx context.Context) (int64, error) {
	deleted, err := c.store.FlushByPattern(ctx, keyPrefix+"*")
	if err != nil {
		return deleted, fmt.Errorf("invalidating cache: %w", err)
	}
	c.logger.Info("cache invalidated", "keys_deleted", deleted)
	return deleted, nil
}

func (c *QueryCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// Package cache keeps top-K search results in Redis. Keys include the index
// generation, so any mutation makes earlier entries unreachable.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/petersspain/SearchServer/internal/indexer/index"
	"github.com/petersspain/SearchServer/internal/searcher/ranker"
	"github.com/petersspain/SearchServer/pkg/metrics"
	pkgredis "github.com/petersspain/SearchServer/pkg/redis"
)

const keyPrefix = "search:"

// Store is the key-value backend; *pkgredis.Client satisfies it. Get must
// return an error matching pkgredis.IsNilError for a missing key.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	FlushByPattern(ctx context.Context, pattern string) (int64, error)
}

// Key identifies one cacheable search.
type Key struct {
	Query      string
	Status     index.Status
	Generation uint64
}

type QueryCache struct {
	store   Store
	ttl     time.Duration
	group   singleflight.Group
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

func (c *QueryCache) Get(ctx context.Context, key Key) ([]ranker.Document, bool) {
	k := buildKey(key)
	data, err := c.store.Get(ctx, k)
	if err != nil {
		if !pkgredis.IsNilError(err) {
			c.logger.Error("cache get failed", "key", k, "error", err)
		}
		c.metrics.CacheMiss()
		return nil, false
	}
	var docs []ranker.Document
	if err := json.Unmarshal([]byte(data), &docs); err != nil {
		c.logger.Error("cache unmarshal failed", "key", k, "error", err)
		c.metrics.CacheMiss()
		return nil, false
	}
	c.metrics.CacheHit()
	c.logger.Debug("cache hit", "query", key.Query, "key", k)
	return docs, true
}

func (c *QueryCache) Set(ctx context.Context, key Key, docs []ranker.Document) {
	k := buildKey(key)
	data, err := json.Marshal(docs)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", k, "error", err)
		return
	}
	if err := c.store.Set(ctx, k, data, c.ttl); err != nil {
		c.logger.Error("cache set failed", "key", k, "error", err)
	}
}

// GetOrCompute returns the cached result for key or runs compute once per key
// across concurrent callers and caches its result. Errors are not cached.
func (c *QueryCache) GetOrCompute(
	ctx context.Context,
	key Key,
	compute func() ([]ranker.Document, error),
) ([]ranker.Document, bool, error) {
	if docs, ok := c.Get(ctx, key); ok {
		return docs, true, nil
	}
	val, err, _ := c.group.Do(buildKey(key), func() (any, error) {
		docs, err := compute()
		if err != nil {
			return nil, err
		}
		c.Set(ctx, key, docs)
		return docs, nil
	})
	if err != nil {
		return nil, false, err
	}
	return val.([]ranker.Document), false, nil
}

// Invalidate drops every cached search. Called at startup, since a fresh
// index restarts its generation count.
func (c *QueryCache) Invalidate(ctx context.Context) error {
	deleted, err := c.store.FlushByPattern(ctx, keyPrefix+"*")
	if err != nil {
		return fmt.Errorf("invalidating cache: %w", err)
	}
	c.logger.Info("cache invalidate", "keys_deleted", deleted)
	return nil
}

func buildKey(key Key) string {
	raw := fmt.Sprintf("%s|status=%s|gen=%d", normalizeQuery(key.Query), key.Status, key.Generation)
	hash := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("%s%x", keyPrefix, hash[:16])
}

// normalizeQuery sorts and dedups the space-separated words. The parsed query
// is a pair of sets, so word order and repetition never change a result.
func normalizeQuery(query string) string {
	words := strings.Split(query, " ")
	words = slices.DeleteFunc(words, func(w string) bool { return w == "" })
	slices.Sort(words)
	return strings.Join(slices.Compact(words), " ")
}

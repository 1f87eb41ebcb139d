package cache

import (
	"context"
	"errors"
	"path"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petersspain/SearchServer/internal/indexer/index"
	"github.com/petersspain/SearchServer/internal/searcher/ranker"
	"github.com/petersspain/SearchServer/pkg/metrics"
	pkgredis "github.com/petersspain/SearchServer/pkg/redis"
)

type memStore struct {
	mu   sync.Mutex
	data map[string]string
	fail error
}

func newMemStore() *memStore {
	return &memStore{data: make(map[string]string)}
}

func (s *memStore) Get(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return "", s.fail
	}
	v, ok := s.data[key]
	if !ok {
		return "", pkgredis.Nil
	}
	return v, nil
}

func (s *memStore) Set(_ context.Context, key string, value any, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = string(value.([]byte))
	return nil
}

func (s *memStore) FlushByPattern(_ context.Context, pattern string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for k := range s.data {
		if ok, _ := path.Match(pattern, k); ok {
			delete(s.data, k)
			n++
		}
	}
	return n, nil
}

var sample = []ranker.Document{{ID: 1, Relevance: 0.65, Rating: 5}, {ID: 0, Relevance: 0.1, Rating: 2}}

func TestQueryCacheGetOrCompute(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	c := New(newMemStore(), time.Minute, m)
	ctx := context.Background()
	key := Key{Query: "пушистый кот", Status: index.StatusActual, Generation: 3}

	calls := 0
	compute := func() ([]ranker.Document, error) {
		calls++
		return sample, nil
	}

	docs, hit, err := c.GetOrCompute(ctx, key, compute)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, sample, docs)

	docs, hit, err = c.GetOrCompute(ctx, Key{Query: "кот  пушистый кот", Status: index.StatusActual, Generation: 3}, compute)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, sample, docs)
	assert.Equal(t, 1, calls)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheHitsTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheMissesTotal))
}

func TestQueryCacheKeyDimensions(t *testing.T) {
	base := Key{Query: "кот", Status: index.StatusActual, Generation: 1}
	assert.NotEqual(t, buildKey(base), buildKey(Key{Query: "кот", Status: index.StatusBanned, Generation: 1}))
	assert.NotEqual(t, buildKey(base), buildKey(Key{Query: "кот", Status: index.StatusActual, Generation: 2}))
	assert.NotEqual(t, buildKey(base), buildKey(Key{Query: "-кот", Status: index.StatusActual, Generation: 1}))
	assert.Equal(t, buildKey(base), buildKey(Key{Query: " кот кот ", Status: index.StatusActual, Generation: 1}))
	// tabs are part of a word, not separators
	assert.NotEqual(t, buildKey(Key{Query: "a b"}), buildKey(Key{Query: "a\tb"}))
}

func TestNormalizeQuery(t *testing.T) {
	assert.Equal(t, "-b a c", normalizeQuery("c a  -b a"))
	assert.Equal(t, "", normalizeQuery("   "))
}

func TestQueryCacheDoesNotCacheErrors(t *testing.T) {
	c := New(newMemStore(), time.Minute, nil)
	key := Key{Query: "кот --"}
	boom := errors.New("bad query")

	_, _, err := c.GetOrCompute(context.Background(), key, func() ([]ranker.Document, error) { return nil, boom })
	assert.ErrorIs(t, err, boom)

	_, ok := c.Get(context.Background(), key)
	assert.False(t, ok)
}

func TestQueryCacheStoreFailureFallsThrough(t *testing.T) {
	store := newMemStore()
	store.fail = errors.New("connection refused")
	c := New(store, time.Minute, nil)

	docs, hit, err := c.GetOrCompute(context.Background(), Key{Query: "кот"}, func() ([]ranker.Document, error) {
		return sample, nil
	})
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, sample, docs)
}

func TestQueryCacheSingleflight(t *testing.T) {
	c := New(newMemStore(), time.Minute, nil)
	key := Key{Query: "кот"}
	var calls atomic.Int32
	release := make(chan struct{})

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			docs, _, err := c.GetOrCompute(context.Background(), key, func() ([]ranker.Document, error) {
				calls.Add(1)
				<-release
				return sample, nil
			})
			assert.NoError(t, err)
			assert.Equal(t, sample, docs)
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()
	assert.LessOrEqual(t, calls.Load(), int32(8))
	assert.GreaterOrEqual(t, calls.Load(), int32(1))
}

func TestQueryCacheInvalidate(t *testing.T) {
	store := newMemStore()
	c := New(store, time.Minute, nil)
	ctx := context.Background()
	c.Set(ctx, Key{Query: "a"}, sample)
	c.Set(ctx, Key{Query: "b"}, sample)
	store.data["other:key"] = "x"

	require.NoError(t, c.Invalidate(ctx))
	assert.Len(t, store.data, 1)
	_, ok := c.Get(ctx, Key{Query: "a"})
	assert.False(t, ok)
}

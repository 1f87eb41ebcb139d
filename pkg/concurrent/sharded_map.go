// Package concurrent provides a sharded map over integer keys. Each bucket owns
// its own mutex, so workers touching keys in different buckets never contend.
// It is meant as a short-lived accumulator for parallel aggregation passes, not
// as a general purpose concurrent container.
package concurrent

import (
	"cmp"
	"slices"
	"sync"
)

// Integer is the key constraint: buckets are picked by key modulo the bucket
// count.
type Integer interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64 |
		~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64 | ~uintptr
}

// Entry is a single key/value pair read out of a ShardedMap.
type Entry[K Integer, V any] struct {
	Key   K
	Value V
}

type bucket[K Integer, V any] struct {
	mu     sync.Mutex
	values map[K]*V
}

// ShardedMap is a fixed-bucket-count map. The zero value is not usable; create
// one with NewShardedMap.
type ShardedMap[K Integer, V any] struct {
	buckets []bucket[K, V]
}

// NewShardedMap creates a map with bucketCount buckets. It panics if
// bucketCount is not positive.
func NewShardedMap[K Integer, V any](bucketCount int) *ShardedMap[K, V] {
	if bucketCount <= 0 {
		panic("concurrent: bucket count must be positive")
	}
	m := &ShardedMap[K, V]{
		buckets: make([]bucket[K, V], bucketCount),
	}
	for i := range m.buckets {
		m.buckets[i].values = make(map[K]*V)
	}
	return m
}

// Access is an exclusive handle to one value slot. The slot's bucket stays
// locked until Release is called.
type Access[K Integer, V any] struct {
	Value  *V
	bucket *bucket[K, V]
}

// Release unlocks the bucket. The handle must not be used afterwards.
func (a *Access[K, V]) Release() {
	a.Value = nil
	a.bucket.mu.Unlock()
}

// Access locks the bucket owning key and returns a handle to its value,
// creating a zero value if the key is absent.
//
// The caller must Release the handle before touching any other key of the
// same map from the same goroutine: two keys can share a bucket, and a second
// Access on a locked bucket deadlocks.
func (m *ShardedMap[K, V]) Access(key K) *Access[K, V] {
	b := m.bucketFor(key)
	b.mu.Lock()
	v, ok := b.values[key]
	if !ok {
		v = new(V)
		b.values[key] = v
	}
	return &Access[K, V]{Value: v, bucket: b}
}

// Update runs fn on the value slot for key while holding its bucket lock.
func (m *ShardedMap[K, V]) Update(key K, fn func(v *V)) {
	a := m.Access(key)
	defer a.Release()
	fn(a.Value)
}

// Erase removes key, locking only its bucket.
func (m *ShardedMap[K, V]) Erase(key K) {
	b := m.bucketFor(key)
	b.mu.Lock()
	delete(b.values, key)
	b.mu.Unlock()
}

// SortedEntries merges every bucket into one slice ordered by key. Buckets are
// locked one at a time, so the result is not a snapshot across buckets when
// writers are still running.
func (m *ShardedMap[K, V]) SortedEntries() []Entry[K, V] {
	entries := make([]Entry[K, V], 0)
	for i := range m.buckets {
		b := &m.buckets[i]
		b.mu.Lock()
		for k, v := range b.values {
			entries = append(entries, Entry[K, V]{Key: k, Value: *v})
		}
		b.mu.Unlock()
	}
	slices.SortFunc(entries, func(a, b Entry[K, V]) int {
		return cmp.Compare(a.Key, b.Key)
	})
	return entries
}

// Len returns the number of entries, counted bucket by bucket.
func (m *ShardedMap[K, V]) Len() int {
	n := 0
	for i := range m.buckets {
		b := &m.buckets[i]
		b.mu.Lock()
		n += len(b.values)
		b.mu.Unlock()
	}
	return n
}

// BucketCount returns the number of buckets the map was created with.
func (m *ShardedMap[K, V]) BucketCount() int {
	return len(m.buckets)
}

func (m *ShardedMap[K, V]) bucketFor(key K) *bucket[K, V] {
	return &m.buckets[uint64(key)%uint64(len(m.buckets))]
}

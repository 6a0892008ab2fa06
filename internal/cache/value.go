// Package cache holds the time-bounded snapshot cache that fronts ledger reads.
package cache

import (
	"context"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// LoadFunc fetches a fresh value on a cache miss.
type LoadFunc[T any] func(ctx context.Context) (T, error)

// Value caches a single value with a TTL. Concurrent misses share one load.
type Value[T any] struct {
	mu          sync.Mutex
	ttl         time.Duration
	loadTimeout time.Duration
	now         func() time.Time
	data        T
	fetchedAt   time.Time
	valid       bool
	gen         uint64

	group singleflight.Group

	hits   uint64
	misses uint64
}

// NewValue creates a cache whose entries expire ttl after being fetched.
// A non-positive ttl disables caching.
func NewValue[T any](ttl time.Duration) *Value[T] {
	return &Value[T]{ttl: ttl, now: time.Now}
}

// WithClock replaces the wall clock, for tests.
func (c *Value[T]) WithClock(now func() time.Time) *Value[T] {
	c.mu.Lock()
	c.now = now
	c.mu.Unlock()
	return c
}

// WithLoadTimeout bounds each shared load. Zero leaves loads unbounded.
func (c *Value[T]) WithLoadTimeout(d time.Duration) *Value[T] {
	c.mu.Lock()
	c.loadTimeout = d
	c.mu.Unlock()
	return c
}

// Get returns the cached value when fresh, otherwise calls load and stores
// the result. Load errors are returned and never cached.
// Concurrent misses share a load only within one generation, so a caller
// that follows Invalidate never receives a load started before it. The
// shared load ignores the starting caller's cancellation.
func (c *Value[T]) Get(ctx context.Context, load LoadFunc[T]) (T, error) {
	c.mu.Lock()
	if c.fresh() {
		c.hits++
		data := c.data
		c.mu.Unlock()
		return data, nil
	}
	c.misses++
	gen := c.gen
	timeout := c.loadTimeout
	c.mu.Unlock()

	ch := c.group.DoChan(strconv.FormatUint(gen, 10), func() (any, error) {
		loadCtx := context.WithoutCancel(ctx)
		if timeout > 0 {
			var cancel context.CancelFunc
			loadCtx, cancel = context.WithTimeout(loadCtx, timeout)
			defer cancel()
		}
		return load(loadCtx)
	})

	var zero T
	var res singleflight.Result
	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res = <-ch:
	}
	if res.Err != nil {
		return zero, res.Err
	}
	data := res.Val.(T)

	c.mu.Lock()
	// An Invalidate during the load means the result may predate a write.
	if gen == c.gen {
		c.data = data
		c.fetchedAt = c.now()
		c.valid = true
	}
	c.mu.Unlock()
	return data, nil
}

// Invalidate drops the cached value.
func (c *Value[T]) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	var zero T
	c.data = zero
	c.valid = false
	c.gen++
}

// FetchedAt returns when the cached value was loaded and whether one is held.
func (c *Value[T]) FetchedAt() (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fetchedAt, c.valid
}

// Stats returns hit and miss counters.
func (c *Value[T]) Stats() (hits, misses uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}

// fresh must be called with mu held.
func (c *Value[T]) fresh() bool {
	if !c.valid || c.ttl <= 0 {
		return false
	}
	return c.now().Sub(c.fetchedAt) < c.ttl
}

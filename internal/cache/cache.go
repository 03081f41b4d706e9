package cache

import (
	"context"
	"crypto/sha256"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Clock supplies the current time; tests inject a fake one
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// Entry represents a cached value and the time it was stored
type Entry[V any] struct {
	Value    V
	StoredAt time.Time
}

// TTL is an in-memory cache whose entries expire ttl after being stored.
// Concurrent loads of the same key are coalesced.
type TTL[V any] struct {
	ttl     time.Duration
	clock   Clock
	mu      sync.Mutex
	entries map[string]Entry[V]
	// gens counts invalidations per key; epoch counts purges
	gens  map[string]uint64
	epoch uint64
	group singleflight.Group
}

// NewTTL creates a cache. A nil clock means the system clock.
func NewTTL[V any](ttl time.Duration, clock Clock) *TTL[V] {
	if clock == nil {
		clock = SystemClock{}
	}
	return &TTL[V]{
		ttl:     ttl,
		clock:   clock,
		entries: make(map[string]Entry[V]),
		gens:    make(map[string]uint64),
	}
}

// Get returns the value stored under key if it has not expired
func (c *TTL[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		var zero V
		return zero, false
	}
	if c.clock.Now().Sub(e.StoredAt) >= c.ttl {
		delete(c.entries, key)
		var zero V
		return zero, false
	}
	return e.Value, true
}

// Set stores value under key
func (c *TTL[V]) Set(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = Entry[V]{Value: value, StoredAt: c.clock.Now()}
}

// Invalidate drops key. A load of key already in flight is not stored.
func (c *TTL[V]) Invalidate(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.gens[key]++
	c.mu.Unlock()
	c.group.Forget(key)
}

// Purge drops every entry
func (c *TTL[V]) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]Entry[V])
	c.epoch++
}

type version struct{ gen, epoch uint64 }

func (c *TTL[V]) version(key string) version {
	c.mu.Lock()
	defer c.mu.Unlock()
	return version{gen: c.gens[key], epoch: c.epoch}
}

// setIfCurrent stores value unless key was invalidated since v was taken
func (c *TTL[V]) setIfCurrent(key string, value V, v version) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gens[key] != v.gen || c.epoch != v.epoch {
		return
	}
	c.entries[key] = Entry[V]{Value: value, StoredAt: c.clock.Now()}
}

// Len returns the number of stored entries, expired ones included
func (c *TTL[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// GetOrLoad returns the cached value for key or calls load and caches its
// result. Errors are not cached, and neither is a result whose key was
// invalidated while it loaded.
func (c *TTL[V]) GetOrLoad(ctx context.Context, key string, load func(context.Context) (V, error)) (V, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}

	res, err, _ := c.group.Do(key, func() (interface{}, error) {
		if v, ok := c.Get(key); ok {
			return v, nil
		}
		ver := c.version(key)
		v, err := load(ctx)
		if err != nil {
			return nil, err
		}
		c.setIfCurrent(key, v, ver)
		return v, nil
	})
	if err != nil {
		var zero V
		return zero, err
	}
	return res.(V), nil
}

// Key generates a cache key from its parts
func Key(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return fmt.Sprintf("%x", h.Sum(nil))
}

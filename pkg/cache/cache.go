// WargaBot - Citizen services assistant for chat channels
// License: MIT
//
// Copyright (c) 2026 WargaBot contributors

// Package cache provides a bounded, time-expiring key/value store. Each
// instance is independently configured and shares no state with others.
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/simplelru"
)

const (
	DefaultCapacity      = 1000
	DefaultTTL           = 5 * time.Minute
	DefaultSweepInterval = 60 * time.Second
)

// Options configures a named cache instance.
type Options struct {
	Name     string
	Capacity int
	TTL      time.Duration
	// Now overrides the clock; used by tests.
	Now func() time.Time
}

// Stats is a point-in-time view used for observability.
type Stats struct {
	Name      string        `json:"name"`
	Size      int           `json:"size"`
	Capacity  int           `json:"capacity"`
	TTL       time.Duration `json:"ttl"`
	Hits      uint64        `json:"hits"`
	Misses    uint64        `json:"misses"`
	Evictions uint64        `json:"evictions"`
	Expired   uint64        `json:"expired"`
}

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

// Cache is an LRU-bounded store whose entries expire after their TTL.
// Expiry is enforced lazily on read and by an optional periodic sweep.
type Cache[K comparable, V any] struct {
	mu       sync.Mutex
	name     string
	capacity int
	ttl      time.Duration
	now      func() time.Time
	lru      *simplelru.LRU[K, entry[V]]

	hits      uint64
	misses    uint64
	evictions uint64
	expired   uint64

	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a cache. Non-positive capacity or TTL fall back to defaults.
func New[K comparable, V any](opts Options) *Cache[K, V] {
	if opts.Capacity <= 0 {
		opts.Capacity = DefaultCapacity
	}
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	// Only fails on non-positive size, which is ruled out above.
	l, _ := simplelru.NewLRU[K, entry[V]](opts.Capacity, nil)
	return &Cache[K, V]{
		name:     opts.Name,
		capacity: opts.Capacity,
		ttl:      opts.TTL,
		now:      opts.Now,
		lru:      l,
	}
}

func (c *Cache[K, V]) Name() string {
	return c.name
}

// Get returns the value for key when present and not expired. An expired
// entry is removed as a side effect.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	e, ok := c.lru.Get(key)
	if !ok {
		c.misses++
		return zero, false
	}
	if !c.now().Before(e.expiresAt) {
		c.lru.Remove(key)
		c.expired++
		c.misses++
		return zero, false
	}
	c.hits++
	return e.value, true
}

// Peek is Get without touching recency or hit counters.
func (c *Cache[K, V]) Peek(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	e, ok := c.lru.Peek(key)
	if !ok || !c.now().Before(e.expiresAt) {
		return zero, false
	}
	return e.value, true
}

// Set inserts or overwrites key using the instance TTL.
func (c *Cache[K, V]) Set(key K, value V) {
	c.SetWithTTL(key, value, c.ttl)
}

// SetWithTTL inserts or overwrites key with an explicit TTL. When the cache
// is full the least recently used entry is evicted.
func (c *Cache[K, V]) SetWithTTL(key K, value V, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.ttl
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if c.lru.Add(key, entry[V]{value: value, expiresAt: now.Add(ttl)}) {
		c.evictions++
	}
}

func (c *Cache[K, V]) Delete(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Remove(key)
}

// PurgeExpired removes every expired entry and returns how many were removed.
func (c *Cache[K, V]) PurgeExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for _, key := range c.lru.Keys() {
		e, ok := c.lru.Peek(key)
		if !ok {
			continue
		}
		if !now.Before(e.expiresAt) {
			c.lru.Remove(key)
			removed++
		}
	}
	c.expired += uint64(removed)
	return removed
}

func (c *Cache[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Purge()
}

// Len counts stored entries, including expired ones not yet purged.
func (c *Cache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

func (c *Cache[K, V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Name:      c.name,
		Size:      c.lru.Len(),
		Capacity:  c.capacity,
		TTL:       c.ttl,
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
		Expired:   c.expired,
	}
}

// StartSweeper starts a background goroutine that purges expired entries on
// every tick. It is stopped by Close.
func (c *Cache[K, V]) StartSweeper(interval time.Duration) {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	c.mu.Lock()
	if c.cancel != nil {
		c.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.done = make(chan struct{})
	done := c.done
	c.mu.Unlock()

	go func() {
		defer close(done)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.PurgeExpired()
			}
		}
	}()
}

// Close stops the sweeper and waits for it to exit. Safe to call when no
// sweeper was started.
func (c *Cache[K, V]) Close() error {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.cancel, c.done = nil, nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	return nil
}

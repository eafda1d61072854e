// Package timecache is an in-process map with per-entry expiration.
//
// Eviction is purely time based: an entry written with ttl T is visible for
// elapsed < T and absent from then on. Expired entries are dropped lazily on
// lookup and, when a sweep interval is configured, by a background sweep that
// bounds memory for keys that are written but never read again.
// There is no size bound and no LRU policy.
package timecache

import (
	"sync"
	"time"
)

const (
	// DefaultTTL applies when a caller does not pass one.
	DefaultTTL = 24 * time.Hour

	// NoExpiration marks an entry that never expires.
	NoExpiration time.Duration = -1
)

type entry[V any] struct {
	value     V
	expiresAt time.Time // zero => never
}

func (e entry[V]) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// Options tune a Cache. The zero value is usable.
type Options struct {
	DefaultTTL    time.Duration    // 0 => 24h
	SweepInterval time.Duration    // 0 => no background sweep
	Clock         func() time.Time // nil => time.Now
}

// Cache is safe for concurrent use. A write to an existing key replaces value
// and expiry together (last writer wins).
type Cache[V any] struct {
	mu    sync.RWMutex
	items map[string]entry[V]

	defaultTTL time.Duration
	now        func() time.Time

	ticker    *time.Ticker
	stopCh    chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

func New[V any](opts Options) *Cache[V] {
	c := &Cache[V]{
		items:      make(map[string]entry[V]),
		defaultTTL: opts.DefaultTTL,
		now:        opts.Clock,
	}
	if c.defaultTTL == 0 {
		c.defaultTTL = DefaultTTL
	}
	if c.now == nil {
		c.now = time.Now
	}
	if opts.SweepInterval > 0 {
		c.ticker = time.NewTicker(opts.SweepInterval)
		c.stopCh = make(chan struct{})
		c.wg.Add(1)
		go c.sweepLoop()
	}
	return c
}

// Put stores v under key with the default TTL.
func (c *Cache[V]) Put(key string, v V) {
	c.PutWithTTL(key, v, 0)
}

// PutWithTTL stores v under key. ttl 0 selects the default TTL and a negative
// ttl (NoExpiration) keeps the entry until it is removed.
func (c *Cache[V]) PutWithTTL(key string, v V, ttl time.Duration) {
	now := c.now()
	c.mu.Lock()
	c.items[key] = entry[V]{value: v, expiresAt: c.expiry(now, ttl)}
	c.mu.Unlock()
}

// PutIfAbsent stores v only when key is missing or expired and reports
// whether it did. Check and write happen under one lock.
func (c *Cache[V]) PutIfAbsent(key string, v V, ttl time.Duration) bool {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.items[key]; ok && !e.expired(now) {
		return false
	}
	c.items[key] = entry[V]{value: v, expiresAt: c.expiry(now, ttl)}
	return true
}

// Get returns the live value for key.
func (c *Cache[V]) Get(key string) (V, bool) {
	var zero V
	now := c.now()

	c.mu.RLock()
	e, ok := c.items[key]
	c.mu.RUnlock()
	if !ok {
		return zero, false
	}
	if e.expired(now) {
		c.evict(key, now)
		return zero, false
	}
	return e.value, true
}

// Contains reports whether key holds a live entry.
func (c *Cache[V]) Contains(key string) bool {
	_, ok := c.Get(key)
	return ok
}

// Remove deletes key and reports whether a live entry was present.
func (c *Cache[V]) Remove(key string) bool {
	now := c.now()
	c.mu.Lock()
	e, ok := c.items[key]
	delete(c.items, key)
	c.mu.Unlock()
	return ok && !e.expired(now)
}

// RemoveIf deletes key only when it is live and pred accepts its value.
func (c *Cache[V]) RemoveIf(key string, pred func(V) bool) bool {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.items[key]
	if !ok {
		return false
	}
	if e.expired(now) {
		delete(c.items, key)
		return false
	}
	if !pred(e.value) {
		return false
	}
	delete(c.items, key)
	return true
}

// Len returns the number of stored entries, expired ones not yet swept included.
func (c *Cache[V]) Len() int {
	c.mu.RLock()
	n := len(c.items)
	c.mu.RUnlock()
	return n
}

// Sweep drops every expired entry and returns how many were removed.
func (c *Cache[V]) Sweep() int {
	now := c.now()
	c.mu.Lock()
	removed := 0
	for k, e := range c.items {
		if e.expired(now) {
			delete(c.items, k)
			removed++
		}
	}
	c.mu.Unlock()
	return removed
}

// Clear drops every entry.
func (c *Cache[V]) Clear() {
	c.mu.Lock()
	c.items = make(map[string]entry[V])
	c.mu.Unlock()
}

// Close stops the background sweep. Safe to call more than once.
func (c *Cache[V]) Close() error {
	c.closeOnce.Do(func() {
		if c.stopCh != nil {
			close(c.stopCh)
			c.ticker.Stop()
			c.wg.Wait()
		}
	})
	return nil
}

func (c *Cache[V]) expiry(now time.Time, ttl time.Duration) time.Time {
	switch {
	case ttl < 0:
		return time.Time{}
	case ttl == 0:
		ttl = c.defaultTTL
	}
	return now.Add(ttl)
}

// evict removes key if it is still expired; a concurrent writer may have
// replaced it between the read and the write lock.
func (c *Cache[V]) evict(key string, now time.Time) {
	c.mu.Lock()
	if e, ok := c.items[key]; ok && e.expired(now) {
		delete(c.items, key)
	}
	c.mu.Unlock()
}

func (c *Cache[V]) sweepLoop() {
	defer c.wg.Done()
	for {
		select {
		case <-c.ticker.C:
			c.Sweep()
		case <-c.stopCh:
			return
		}
	}
}

package fallcache

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/unkn0wn-root/fallcache/backend"
	"github.com/unkn0wn-root/fallcache/keyspace"
	"github.com/unkn0wn-root/fallcache/local"
	"github.com/unkn0wn-root/fallcache/timecache"
)

// Cache is safe for concurrent use. Build it with New.
type Cache struct {
	mode    Mode
	route   route
	backend backend.Backend

	log          Logger
	hooks        Hooks
	defaultTTL   time.Duration
	lockDefaults LockOptions
	localLocking bool
	newLocal     local.Factory

	// local mode only; swapped wholesale by Clear
	localMu sync.RWMutex
	local   local.Store

	closeOnce sync.Once
	closeErr  error
}

// Mode reports the backend chosen by New.
func (c *Cache) Mode() Mode { return c.mode }

// Get returns (value, true, nil) on hit and (nil, false, nil) on miss.
func (c *Cache) Get(ctx context.Context, ns, key string) ([]byte, bool, error) {
	return c.route.get(ctx, keyspace.Compose(ns, key))
}

// Set stores value for ttl; ttl <= 0 selects Options.DefaultTTL.
func (c *Cache) Set(ctx context.Context, ns, key string, value []byte, ttl time.Duration) error {
	return c.route.set(ctx, keyspace.Compose(ns, key), value, c.ttl(ttl))
}

// SetWithoutTimeout stores value with no expiry in either mode.
func (c *Cache) SetWithoutTimeout(ctx context.Context, ns, key string, value []byte) error {
	return c.route.set(ctx, keyspace.Compose(ns, key), value, 0)
}

// Delete removes key and reports whether it was present.
func (c *Cache) Delete(ctx context.Context, ns, key string) (bool, error) {
	return c.route.del(ctx, keyspace.Compose(ns, key))
}

func (c *Cache) Exists(ctx context.Context, ns, key string) (bool, error) {
	return c.route.exists(ctx, keyspace.Compose(ns, key))
}

// SetIfAbsent stores value only when key is absent and reports whether it did.
// It is atomic in both modes. ttl <= 0 selects Options.DefaultTTL.
func (c *Cache) SetIfAbsent(ctx context.Context, ns, key string, value []byte, ttl time.Duration) (bool, error) {
	return c.route.setNX(ctx, keyspace.Compose(ns, key), value, c.ttl(ttl))
}

// DeleteAll removes every key under ns and returns how many were deleted.
// The scan and the delete are separate steps: keys written in between survive.
// Local mode returns 0 and an *UnsupportedError.
func (c *Cache) DeleteAll(ctx context.Context, ns string) (int64, error) {
	if c.mode == ModeLocal {
		c.log.Warn("DeleteAll is not supported by the local store; nothing deleted", Fields{"ns": ns})
		return 0, c.unsupported("DeleteAll")
	}
	pattern := keyspace.Pattern(ns)
	keys, err := c.backend.Keys(ctx, pattern)
	if err != nil {
		c.hooks.RemoteError("keys", pattern, err)
		return 0, err
	}
	if len(keys) == 0 {
		return 0, nil
	}
	n, err := c.backend.DelMany(ctx, keys)
	if err != nil {
		c.hooks.RemoteError("del_many", pattern, err)
		return n, err
	}
	c.log.Debug("namespace cleared", Fields{"ns": ns, "deleted": n})
	return n, nil
}

// Refresh rewrites an existing value with a new ttl and reports whether the
// key was present. A concurrent writer between the read and the write wins
// only if it lands last.
func (c *Cache) Refresh(ctx context.Context, ns, key string, ttl time.Duration) (bool, error) {
	k := keyspace.Compose(ns, key)
	v, ok, err := c.route.get(ctx, k)
	if err != nil || !ok {
		return false, err
	}
	if err := c.route.set(ctx, k, v, c.ttl(ttl)); err != nil {
		return false, err
	}
	return true, nil
}

// Take returns the value and deletes it. The delete only succeeds while the
// value is unchanged, so of several concurrent takers exactly one gets it.
func (c *Cache) Take(ctx context.Context, ns, key string) ([]byte, bool, error) {
	k := keyspace.Compose(ns, key)
	v, ok, err := c.route.get(ctx, k)
	if err != nil || !ok {
		return nil, false, err
	}
	won, err := c.route.compareAndDelete(ctx, k, v)
	if err != nil || !won {
		return nil, false, err
	}
	return v, true, nil
}

// Clear drops every local entry by replacing the local store with a fresh
// one. The remote store is never flushed: remote mode returns an
// *UnsupportedError.
//
// The old store is closed before the new one is built so file-backed stores
// can reopen the same path. If Options.NewLocal fails, the default
// time-based store takes over and the factory error is returned; the store
// was still replaced, so Hooks.LocalCleared fires either way.
func (c *Cache) Clear(context.Context) error {
	if c.mode != ModeLocal {
		return c.unsupported("Clear")
	}

	c.localMu.Lock()
	defer c.localMu.Unlock()

	if c.local != nil {
		if err := c.local.Close(); err != nil {
			c.log.Warn("closing replaced local store failed", Fields{"err": err})
		}
	}
	fresh, err := c.newLocal()
	if err != nil {
		c.log.Error("building local store failed; using the default store", Fields{"err": err})
		c.local = local.NewTimeBased(timecache.Options{DefaultTTL: c.defaultTTL, SweepInterval: defaultSweepInterval})
		c.hooks.LocalCleared()
		return err
	}
	c.local = fresh
	c.hooks.LocalCleared()
	c.log.Info("local store cleared", nil)
	return nil
}

// Close releases the local store (if any) and then the backend.
// Safe to call more than once; later calls return the first result.
func (c *Cache) Close(ctx context.Context) error {
	c.closeOnce.Do(func() {
		var errs []error
		c.localMu.Lock()
		if c.local != nil {
			errs = append(errs, c.local.Close())
		}
		c.localMu.Unlock()
		errs = append(errs, c.backend.Close(ctx))
		c.closeErr = errors.Join(errs...)
	})
	return c.closeErr
}

// localStore returns the current local store with the read lock held.
func (c *Cache) localStore() (local.Store, func()) {
	c.localMu.RLock()
	return c.local, c.localMu.RUnlock
}

func (c *Cache) ttl(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return c.defaultTTL
	}
	return ttl
}

// unsupported fires the hook and builds the error for op in the current mode.
func (c *Cache) unsupported(op string) error {
	c.hooks.Unsupported(op, c.mode)
	return &UnsupportedError{Op: op, Mode: c.mode}
}

package fallcache

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/unkn0wn-root/fallcache/keyspace"
)

// LockOptions tune one lock acquisition. Zero fields take the Cache's
// defaults (Options.LockDefaults, else 5s wait, 4s lease, 100ms retry).
type LockOptions struct {
	WaitTimeout time.Duration // give up once this much time has passed
	LeaseTime   time.Duration // ttl of the lock record
	RetryPeriod time.Duration // sleep between attempts
}

// lockSentinel is the value of an owner-less lock record.
var lockSentinel = []byte("1")

// TryLock polls SetIfAbsent until it wins or WaitTimeout elapses. It returns
// (false, nil) on timeout and (false, ctx.Err()) when ctx ends first.
//
// The lock is advisory: no fencing token is issued and the record carries no
// owner, so a holder whose lease lapsed can still overlap the next holder, and
// Unlock releases it for anyone.
func (c *Cache) TryLock(ctx context.Context, ns, key string, opts LockOptions) (bool, error) {
	return c.acquire(ctx, "TryLock", keyspace.Compose(ns, key), lockSentinel, opts)
}

// Unlock deletes the lock record unconditionally and reports whether it was held.
// In local mode without Options.LocalLocking it touches nothing and returns
// an *UnsupportedError, like TryLock.
func (c *Cache) Unlock(ctx context.Context, ns, key string) (bool, error) {
	k := keyspace.Compose(ns, key)
	if c.mode == ModeLocal && !c.localLocking {
		c.log.Debug("lock refused in local mode", Fields{"op": "Unlock", "key": k})
		return false, c.unsupported("Unlock")
	}
	return c.route.del(ctx, k)
}

// Lease is a lock whose record holds a random token, so only its holder can
// release it. Timing matches TryLock; there is still no renewal or fencing.
type Lease struct {
	c     *Cache
	key   string
	token []byte
}

// AcquireLease works like TryLock but returns ErrLockTimeout instead of false.
func (c *Cache) AcquireLease(ctx context.Context, ns, key string, opts LockOptions) (*Lease, error) {
	k := keyspace.Compose(ns, key)
	token := []byte(uuid.NewString())
	ok, err := c.acquire(ctx, "AcquireLease", k, token, opts)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrLockTimeout
	}
	return &Lease{c: c, key: k, token: token}, nil
}

// Key returns the namespaced key of the lock record.
func (l *Lease) Key() string { return l.key }

func (l *Lease) Token() string { return string(l.token) }

// Release deletes the lock record only if it still holds this lease's token.
// It returns false when the lease already expired or another holder took over.
func (l *Lease) Release(ctx context.Context) (bool, error) {
	return l.c.route.compareAndDelete(ctx, l.key, l.token)
}

func (c *Cache) lockOptions(o LockOptions) LockOptions {
	return LockOptions{
		WaitTimeout: coalesce[time.Duration](o.WaitTimeout, c.lockDefaults.WaitTimeout),
		LeaseTime:   coalesce[time.Duration](o.LeaseTime, c.lockDefaults.LeaseTime),
		RetryPeriod: coalesce[time.Duration](o.RetryPeriod, c.lockDefaults.RetryPeriod),
	}
}

func (c *Cache) acquire(ctx context.Context, op, k string, value []byte, opts LockOptions) (bool, error) {
	if c.mode == ModeLocal && !c.localLocking {
		c.log.Debug("lock refused in local mode", Fields{"op": op, "key": k})
		return false, c.unsupported(op)
	}
	o := c.lockOptions(opts)
	start := time.Now()

	timer := time.NewTimer(o.RetryPeriod)
	timer.Stop()
	defer timer.Stop()

	for attempt := 1; ; attempt++ {
		ok, err := c.route.setNX(ctx, k, value, o.LeaseTime)
		if err != nil {
			return false, err
		}
		if ok {
			c.hooks.LockAcquired(k, attempt, time.Since(start))
			return true, nil
		}

		timer.Reset(o.RetryPeriod)
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-timer.C:
		}

		if waited := time.Since(start); waited >= o.WaitTimeout {
			c.hooks.LockTimedOut(k, attempt, waited)
			c.log.Debug("lock wait timed out", Fields{"op": op, "key": k, "attempts": attempt, "waited": waited})
			return false, nil
		}
	}
}

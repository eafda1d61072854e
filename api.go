package fallcache

import (
	"context"
	"fmt"
	"time"

	"github.com/unkn0wn-root/fallcache/backend"
	"github.com/unkn0wn-root/fallcache/local"
	"github.com/unkn0wn-root/fallcache/timecache"
)

// Options tune a Cache. Only Backend is required; others have sensible defaults.
type Options struct {
	// Required
	Backend backend.Backend

	Logger Logger // if nil, NopLogger is used
	Hooks  Hooks  // if nil, NopHooks is used

	DefaultTTL    time.Duration // Set with ttl <= 0; 0 => 24h
	ProbeTimeout  time.Duration // bound on the startup canary write; 0 => 2s
	SweepInterval time.Duration // default local store's background sweep; 0 => 1m

	// NewLocal builds the store used in local mode, once on entering it and
	// again on every Clear. nil => timecache-backed store.
	NewLocal local.Factory

	// LocalLocking lets TryLock/AcquireLease run against the local store in
	// local mode. Such locks only exclude goroutines of this process.
	LocalLocking bool

	// LockDefaults replaces the built-in lock timings for zero LockOptions fields.
	LockDefaults LockOptions
}

// New probes the backend with one canary write and fixes the Cache's mode for
// its lifetime: success => ModeRemote, any failure => ModeLocal. A failed probe
// is not an error; New only fails on invalid options or when the local store
// cannot be built.
func New(ctx context.Context, opts Options) (*Cache, error) {
	if opts.Backend == nil {
		return nil, ErrNilBackend
	}

	c := &Cache{
		backend:      opts.Backend,
		localLocking: opts.LocalLocking,
	}

	// defaults
	c.log = coalesce[Logger](opts.Logger, NopLogger{})
	c.hooks = coalesce[Hooks](opts.Hooks, NopHooks{})
	c.defaultTTL = coalesce[time.Duration](opts.DefaultTTL, defaultTTL)
	probeTimeout := coalesce[time.Duration](opts.ProbeTimeout, defaultProbeTimeout)
	sweep := coalesce[time.Duration](opts.SweepInterval, defaultSweepInterval)
	c.lockDefaults = LockOptions{
		WaitTimeout: coalesce[time.Duration](opts.LockDefaults.WaitTimeout, DefaultLockWait),
		LeaseTime:   coalesce[time.Duration](opts.LockDefaults.LeaseTime, DefaultLockLease),
		RetryPeriod: coalesce[time.Duration](opts.LockDefaults.RetryPeriod, DefaultLockRetry),
	}

	if opts.NewLocal != nil {
		c.newLocal = opts.NewLocal
	} else {
		c.newLocal = local.TimeBasedFactory(timecache.Options{
			DefaultTTL:    c.defaultTTL,
			SweepInterval: sweep,
		})
	}

	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	probeErr := c.backend.Set(probeCtx, canaryKey, canaryValue, canaryTTL)
	cancel()

	if probeErr != nil {
		store, err := c.newLocal()
		if err != nil {
			return nil, fmt.Errorf("fallcache: build local store: %w", err)
		}
		c.mode = ModeLocal
		c.local = store
		c.route = localRoute{c: c}
		c.log.Warn("remote backend unreachable; using local store for this instance's lifetime",
			Fields{"err": probeErr, "probe_timeout": probeTimeout})
	} else {
		c.mode = ModeRemote
		c.route = remoteRoute{b: c.backend, hooks: c.hooks}
		c.log.Info("remote backend selected", Fields{"probe_key": canaryKey})
	}
	c.hooks.ModeSelected(c.mode, probeErr)
	return c, nil
}

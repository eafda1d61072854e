package fallcache

import (
	"time"

	"github.com/unkn0wn-root/fallcache/keyspace"
)

const (
	defaultTTL           = 24 * time.Hour
	defaultProbeTimeout  = 2 * time.Second
	defaultSweepInterval = time.Minute

	DefaultLockWait  = 5 * time.Second
	DefaultLockLease = 4 * time.Second
	DefaultLockRetry = 100 * time.Millisecond
)

// The startup probe writes canaryValue under canaryKey. Any failure of that
// single write puts the instance in local mode.
var (
	canaryKey   = keyspace.Compose("fallcache", "canary")
	canaryValue = []byte("ttc")
)

const canaryTTL = 100 * time.Second

// coalesce returns def when v is the zero value of T - otherwise v.
func coalesce[T comparable](v, def T) T {
	var zero T
	if v == zero {
		return def
	}
	return v
}

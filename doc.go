// Package fallcache is a keyed cache in front of a remote key-value store
// (Redis) that degrades to an in-process store when the remote is down at
// startup.
//
// Components:
//   - Backend: the remote store (backend/redis), byte values, TTLs, lists.
//   - local.Store: the fallback store (timecache by default; ristretto,
//     bigcache or bbolt optional).
//   - Codec[V]: optional (de)serialization via Typed[V].
//
// Keys:
//
//	<ns>:<key>
//
// Mode:
//
// New performs one canary write. If it fails the Cache runs in ModeLocal for
// the rest of its life; if it succeeds the Cache runs in ModeRemote and later
// remote errors are returned to callers as is. There is no fail-back.
//
// In ModeLocal, remote-only features (queues, DeleteAll, and locks unless
// Options.LocalLocking is set) return an error matching ErrUnsupported instead
// of an empty result.
//
// Locking:
//
//	ok, err := cache.TryLock(ctx, "jobs", "nightly", fallcache.LockOptions{})
//	if ok {
//	    defer cache.Unlock(ctx, "jobs", "nightly")
//	}
//
// Locks are advisory. A lease that lapses while its holder still runs lets a
// second holder in; AcquireLease at least keeps a stale holder from releasing
// the next holder's lock.
package fallcache

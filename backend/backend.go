// Package backend defines the remote store capabilities fallcache routes to.
//
// Implementations MUST be byte-for-byte transparent: Get must return exactly the
// bytes previously passed to Set for a key, and list operations must return the
// exact pushed elements. Keys arrive already namespaced; implementations must not
// rewrite them.
//
// Errors are returned as is to fallcache callers. Misses are not errors: single
// value reads return (nil, false, nil) on a miss.
package backend

import (
	"context"
	"time"
)

// KV is the single-value part of the remote store.
// Must be safe for concurrent use.
type KV interface {
	// Get returns (value, true, nil) on hit; (nil, false, nil) on miss.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores value. ttl <= 0 means no expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// SetNX stores value only if key is absent and reports whether it did.
	// ttl <= 0 means no expiry.
	SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)

	// Del removes key and reports whether it existed.
	Del(ctx context.Context, key string) (bool, error)

	// DelMany removes keys and returns how many existed.
	DelMany(ctx context.Context, keys []string) (int64, error)

	Exists(ctx context.Context, key string) (bool, error)

	// Keys returns every key matching a glob pattern.
	Keys(ctx context.Context, pattern string) ([]string, error)

	// CompareAndDelete removes key only if its value equals expected.
	CompareAndDelete(ctx context.Context, key string, expected []byte) (bool, error)

	Close(ctx context.Context) error
}

// Lists is the ordered-sequence part of the remote store. Index arguments
// follow Redis semantics: negative indexes count from the tail.
type Lists interface {
	LPush(ctx context.Context, key string, values ...[]byte) (int64, error)
	RPush(ctx context.Context, key string, values ...[]byte) (int64, error)

	// LPop/RPop return (nil, false, nil) on an empty or missing list.
	LPop(ctx context.Context, key string) ([]byte, bool, error)
	RPop(ctx context.Context, key string) ([]byte, bool, error)

	LIndex(ctx context.Context, key string, index int64) ([]byte, bool, error)
	LRange(ctx context.Context, key string, start, stop int64) ([][]byte, error)
	LLen(ctx context.Context, key string) (int64, error)

	// LRem removes up to count occurrences of value: count > 0 from the head,
	// count < 0 from the tail, count == 0 all of them.
	LRem(ctx context.Context, key string, count int64, value []byte) (int64, error)

	// LMove pops the head of src and pushes it onto the tail of dst in one
	// atomic step. src and dst may be equal.
	LMove(ctx context.Context, src, dst string) ([]byte, bool, error)

	// LReplace swaps the whole list for values atomically. An empty values
	// deletes the list.
	LReplace(ctx context.Context, key string, values [][]byte) error
}

// Backend is the full capability set of a remote store.
type Backend interface {
	KV
	Lists
}

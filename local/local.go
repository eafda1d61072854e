// Package local defines the in-process store a fallcache.Cache falls back to
// when the remote backend fails its startup probe.
//
// Like backend.Backend, a Store must be byte-for-byte transparent and safe
// for concurrent use. Unlike the remote store it holds only single values:
// queues, pattern deletes and key listing have no local representation.
package local

import (
	"context"
	"errors"
	"time"

	"github.com/unkn0wn-root/fallcache/timecache"
)

// ErrRejected is returned when a store refuses a write, e.g. under memory
// pressure in an admission-controlled cache.
var ErrRejected = errors.New("local: write rejected")

// Store is a byte store with per-entry TTLs. ttl <= 0 means no expiry.
// Misses are (nil, false, nil).
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Put(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// PutIfAbsent writes only when key is missing or expired. The check and
	// the write must be one atomic step with respect to every other writer.
	PutIfAbsent(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)

	Contains(ctx context.Context, key string) (bool, error)

	// Remove deletes key and reports whether a live entry was present.
	Remove(ctx context.Context, key string) (bool, error)

	// CompareAndRemove deletes key only while it holds expected.
	CompareAndRemove(ctx context.Context, key string, expected []byte) (bool, error)

	Close() error
}

// Factory builds a fresh, empty Store. A Cache calls it once when it enters
// local mode and again on every Clear.
type Factory func() (Store, error)

// TimeBased is the default Store: a timecache.Cache of byte slices.
type TimeBased struct {
	c *timecache.Cache[[]byte]
}

var _ Store = (*TimeBased)(nil)

func NewTimeBased(opts timecache.Options) *TimeBased {
	return &TimeBased{c: timecache.New[[]byte](opts)}
}

// TimeBasedFactory returns a Factory producing TimeBased stores.
func TimeBasedFactory(opts timecache.Options) Factory {
	return func() (Store, error) { return NewTimeBased(opts), nil }
}

func (s *TimeBased) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := s.c.Get(key)
	if !ok {
		return nil, false, nil
	}
	return clone(v), true, nil
}

func (s *TimeBased) Put(_ context.Context, key string, value []byte, ttl time.Duration) error {
	s.c.PutWithTTL(key, clone(value), ttlFor(ttl))
	return nil
}

func (s *TimeBased) PutIfAbsent(_ context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	return s.c.PutIfAbsent(key, clone(value), ttlFor(ttl)), nil
}

func (s *TimeBased) Contains(_ context.Context, key string) (bool, error) {
	return s.c.Contains(key), nil
}

func (s *TimeBased) Remove(_ context.Context, key string) (bool, error) {
	return s.c.Remove(key), nil
}

func (s *TimeBased) CompareAndRemove(_ context.Context, key string, expected []byte) (bool, error) {
	return s.c.RemoveIf(key, func(v []byte) bool { return string(v) == string(expected) }), nil
}

// Len reports stored entries, expired ones not yet swept included.
func (s *TimeBased) Len() int { return s.c.Len() }

func (s *TimeBased) Close() error { return s.c.Close() }

func ttlFor(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return timecache.NoExpiration
	}
	return ttl
}

func clone(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	return append([]byte(nil), b...)
}

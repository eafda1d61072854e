// Package ristretto adapts dgraph-io/ristretto as a cost-bounded local store.
//
// Ristretto applies new keys asynchronously; every write waits for its buffer
// to drain so a Get issued right after Put observes it. Admission may still
// refuse a key when the cache is full, which surfaces as local.ErrRejected.
package ristretto

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"time"

	rc "github.com/dgraph-io/ristretto"

	"github.com/unkn0wn-root/fallcache/local"
)

type Store struct {
	c *rc.Cache

	// wmu serializes writers so conditional ops can read-then-write.
	wmu sync.Mutex
}

var _ local.Store = (*Store)(nil)

type Config struct {
	NumCounters int64
	MaxCost     int64 // total bytes held
	BufferItems int64
	Metrics     bool
}

// DefaultConfig sizes the cache for roughly maxBytes of payload.
func DefaultConfig(maxBytes int64) Config {
	return Config{
		NumCounters: 10 * (maxBytes / 64),
		MaxCost:     maxBytes,
		BufferItems: 64,
	}
}

func New(cfg Config) (*Store, error) {
	if cfg.NumCounters <= 0 || cfg.MaxCost <= 0 || cfg.BufferItems <= 0 {
		return nil, errors.New("ristretto: invalid config")
	}
	c, err := rc.NewCache(&rc.Config{
		NumCounters: cfg.NumCounters,
		MaxCost:     cfg.MaxCost,
		BufferItems: cfg.BufferItems,
		Metrics:     cfg.Metrics,
	})
	if err != nil {
		return nil, err
	}
	return &Store{c: c}, nil
}

// Factory returns a local.Factory building stores from cfg.
func Factory(cfg Config) local.Factory {
	return func() (local.Store, error) { return New(cfg) }
}

func (s *Store) Get(_ context.Context, key string) ([]byte, bool, error) {
	b, ok := s.get(key)
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), b...), true, nil
}

func (s *Store) get(key string) ([]byte, bool) {
	v, ok := s.c.Get(key)
	if !ok {
		return nil, false
	}
	b, _ := v.([]byte)
	if b == nil {
		// self-heal: drop unexpected entry shape
		s.c.Del(key)
		return nil, false
	}
	return b, true
}

func (s *Store) Put(_ context.Context, key string, value []byte, ttl time.Duration) error {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	return s.set(key, value, ttl)
}

// set stores a private copy of value. Caller holds wmu.
func (s *Store) set(key string, value []byte, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0 // ristretto rejects negative ttls; 0 means no expiry
	}
	b := append(make([]byte, 0, len(value)), value...)
	if !s.c.SetWithTTL(key, b, int64(len(b))+1, ttl) {
		return local.ErrRejected
	}
	s.c.Wait()
	if _, ok := s.get(key); !ok {
		return local.ErrRejected
	}
	return nil
}

func (s *Store) PutIfAbsent(_ context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	if _, ok := s.get(key); ok {
		return false, nil
	}
	if err := s.set(key, value, ttl); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) Contains(_ context.Context, key string) (bool, error) {
	_, ok := s.get(key)
	return ok, nil
}

func (s *Store) Remove(_ context.Context, key string) (bool, error) {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	_, ok := s.get(key)
	s.c.Del(key)
	return ok, nil
}

func (s *Store) CompareAndRemove(_ context.Context, key string, expected []byte) (bool, error) {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	b, ok := s.get(key)
	if !ok || !bytes.Equal(b, expected) {
		return false, nil
	}
	s.c.Del(key)
	return true, nil
}

func (s *Store) Close() error {
	s.c.Wait()
	s.c.Close()
	return nil
}

// Metrics exposes ristretto's counters; nil unless Config.Metrics is set.
func (s *Store) Metrics() *rc.Metrics { return s.c.Metrics }

// Package bigcache adapts allegro/bigcache as a local store.
//
// BigCache only knows one global LifeWindow, so each value is framed with its
// own absolute expiry (internal/wire) and checked on read. Set LifeWindow to
// at least the longest TTL you use; BigCache evicts anything older.
package bigcache

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"time"

	bc "github.com/allegro/bigcache/v3"

	"github.com/unkn0wn-root/fallcache/internal/wire"
	"github.com/unkn0wn-root/fallcache/local"
)

type Store struct {
	c   *bc.BigCache
	now func() time.Time

	// wmu serializes writers so conditional ops can read-then-write.
	wmu sync.Mutex
}

var _ local.Store = (*Store)(nil)

type Config struct {
	LifeWindow         time.Duration // 0 => 7 days
	CleanWindow        time.Duration
	MaxEntriesInWindow int
	MaxEntrySize       int
	HardMaxCacheSizeMB int              // ~ memory limit; 0 = unlimited
	Clock              func() time.Time // nil => time.Now
}

const defaultLifeWindow = 7 * 24 * time.Hour

func New(cfg Config) (*Store, error) {
	if cfg.LifeWindow <= 0 {
		cfg.LifeWindow = defaultLifeWindow
	}
	conf := bc.DefaultConfig(cfg.LifeWindow)
	conf.Verbose = false
	if cfg.CleanWindow > 0 {
		conf.CleanWindow = cfg.CleanWindow
	}
	if cfg.MaxEntriesInWindow > 0 {
		conf.MaxEntriesInWindow = cfg.MaxEntriesInWindow
	}
	if cfg.MaxEntrySize > 0 {
		conf.MaxEntrySize = cfg.MaxEntrySize
	}
	if cfg.HardMaxCacheSizeMB > 0 {
		conf.HardMaxCacheSize = cfg.HardMaxCacheSizeMB
	}
	c, err := bc.New(context.Background(), conf)
	if err != nil {
		return nil, err
	}
	s := &Store{c: c, now: cfg.Clock}
	if s.now == nil {
		s.now = time.Now
	}
	return s, nil
}

// Factory returns a local.Factory building stores from cfg.
func Factory(cfg Config) local.Factory {
	return func() (local.Store, error) { return New(cfg) }
}

func (s *Store) Get(_ context.Context, key string) ([]byte, bool, error) {
	payload, ok, err := s.read(key)
	if !ok || err != nil {
		return nil, false, err
	}
	return append([]byte(nil), payload...), true, nil
}

// read returns the live payload for key. Expired or corrupt frames are
// dropped and reported as a miss.
func (s *Store) read(key string) ([]byte, bool, error) {
	raw, err := s.c.Get(key)
	if errors.Is(err, bc.ErrEntryNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	exp, payload, err := wire.DecodeEntry(raw)
	if err != nil || wire.Expired(exp, s.now()) {
		_ = s.c.Delete(key)
		return nil, false, nil
	}
	return payload, true, nil
}

func (s *Store) Put(_ context.Context, key string, value []byte, ttl time.Duration) error {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	return s.write(key, value, ttl)
}

func (s *Store) write(key string, value []byte, ttl time.Duration) error {
	return s.c.Set(key, wire.EncodeEntry(wire.ExpiryFor(s.now(), ttl), value))
}

func (s *Store) PutIfAbsent(_ context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	_, ok, err := s.read(key)
	if err != nil || ok {
		return false, err
	}
	if err := s.write(key, value, ttl); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) Contains(_ context.Context, key string) (bool, error) {
	_, ok, err := s.read(key)
	return ok, err
}

func (s *Store) Remove(_ context.Context, key string) (bool, error) {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	_, ok, err := s.read(key)
	if err != nil || !ok {
		return false, err
	}
	return true, s.delete(key)
}

func (s *Store) CompareAndRemove(_ context.Context, key string, expected []byte) (bool, error) {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	payload, ok, err := s.read(key)
	if err != nil || !ok || !bytes.Equal(payload, expected) {
		return false, err
	}
	return true, s.delete(key)
}

func (s *Store) delete(key string) error {
	if err := s.c.Delete(key); err != nil && !errors.Is(err, bc.ErrEntryNotFound) {
		return err
	}
	return nil
}

// Len reports the number of frames held, expired ones included.
func (s *Store) Len() int { return s.c.Len() }

func (s *Store) Close() error {
	return s.c.Close()
}

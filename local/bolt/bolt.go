// Package bolt is a file-backed local store on go.etcd.io/bbolt.
//
// Entries are framed with their absolute expiry (internal/wire). Unlike the
// in-memory stores, contents survive a process restart; Open drops whatever
// expired while the process was down.
package bolt

import (
	"bytes"
	"context"
	"errors"
	"time"

	bbolt "go.etcd.io/bbolt"

	"github.com/unkn0wn-root/fallcache/internal/wire"
	"github.com/unkn0wn-root/fallcache/local"
)

type Store struct {
	db     *bbolt.DB
	bucket []byte
	now    func() time.Time
}

var _ local.Store = (*Store)(nil)

type Options struct {
	// Bucket is the name of the Bolt bucket to use.
	Bucket string
	// Timeout bounds waiting for the file lock held by another process.
	Timeout time.Duration
	// Truncate empties the bucket on Open. Set it when a fallcache.Cache
	// Clear should really drop what the file holds.
	Truncate bool
	Clock    func() time.Time
}

// Open initializes or opens a Store at path.
func Open(path string, opts Options) (*Store, error) {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = time.Second
	}
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: timeout})
	if err != nil {
		return nil, err
	}
	bucket := []byte("fallcache")
	if opts.Bucket != "" {
		bucket = []byte(opts.Bucket)
	}
	if err := db.Update(func(tx *bbolt.Tx) error {
		if opts.Truncate && tx.Bucket(bucket) != nil {
			if err := tx.DeleteBucket(bucket); err != nil {
				return err
			}
		}
		_, err := tx.CreateBucketIfNotExists(bucket)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, err
	}
	s := &Store{db: db, bucket: bucket, now: opts.Clock}
	if s.now == nil {
		s.now = time.Now
	}
	if _, err := s.Sweep(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Factory opens path on every call. The previous store must be closed first:
// bbolt holds an exclusive file lock. Without opts.Truncate the reopened store
// still holds the old entries.
func Factory(path string, opts Options) local.Factory {
	return func() (local.Store, error) { return Open(path, opts) }
}

// Get returns the live value for key.
func (s *Store) Get(_ context.Context, key string) ([]byte, bool, error) {
	var (
		out   []byte
		found bool
	)
	err := s.db.View(func(tx *bbolt.Tx) error {
		payload, ok, err := s.live(tx, key)
		if ok {
			out = append([]byte(nil), payload...)
			found = true
		}
		return err
	})
	if err != nil || !found {
		return nil, false, err
	}
	return out, true, nil
}

// live decodes the frame under key. A frame that is expired or corrupt reads
// as a miss; Sweep removes it later.
func (s *Store) live(tx *bbolt.Tx, key string) ([]byte, bool, error) {
	raw := tx.Bucket(s.bucket).Get([]byte(key))
	if raw == nil {
		return nil, false, nil
	}
	exp, payload, err := wire.DecodeEntry(raw)
	if err != nil {
		if errors.Is(err, wire.ErrCorrupt) {
			return nil, false, nil
		}
		return nil, false, err
	}
	if wire.Expired(exp, s.now()) {
		return nil, false, nil
	}
	return payload, true, nil
}

// Put stores value with an absolute expiration computed as now+ttl.
func (s *Store) Put(_ context.Context, key string, value []byte, ttl time.Duration) error {
	frame := wire.EncodeEntry(wire.ExpiryFor(s.now(), ttl), value)
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(s.bucket).Put([]byte(key), frame)
	})
}

// PutIfAbsent runs its check and write in one read-write transaction; bbolt
// allows a single writer at a time.
func (s *Store) PutIfAbsent(_ context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	var stored bool
	err := s.db.Update(func(tx *bbolt.Tx) error {
		_, ok, err := s.live(tx, key)
		if err != nil || ok {
			return err
		}
		frame := wire.EncodeEntry(wire.ExpiryFor(s.now(), ttl), value)
		if err := tx.Bucket(s.bucket).Put([]byte(key), frame); err != nil {
			return err
		}
		stored = true
		return nil
	})
	return stored, err
}

func (s *Store) Contains(_ context.Context, key string) (bool, error) {
	var found bool
	err := s.db.View(func(tx *bbolt.Tx) error {
		_, ok, err := s.live(tx, key)
		found = ok
		return err
	})
	return found, err
}

func (s *Store) Remove(_ context.Context, key string) (bool, error) {
	return s.removeIf(key, func([]byte) bool { return true })
}

func (s *Store) CompareAndRemove(_ context.Context, key string, expected []byte) (bool, error) {
	return s.removeIf(key, func(v []byte) bool { return bytes.Equal(v, expected) })
}

func (s *Store) removeIf(key string, pred func([]byte) bool) (bool, error) {
	var removed bool
	err := s.db.Update(func(tx *bbolt.Tx) error {
		payload, ok, err := s.live(tx, key)
		if err != nil {
			return err
		}
		if ok && !pred(payload) {
			return nil
		}
		// expired frames go too, they are dead weight
		if err := tx.Bucket(s.bucket).Delete([]byte(key)); err != nil {
			return err
		}
		removed = ok
		return nil
	})
	return removed, err
}

// Sweep deletes every expired or corrupt frame and returns how many it removed.
func (s *Store) Sweep() (int, error) {
	var removed int
	now := s.now()
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(s.bucket)
		var dead [][]byte
		if err := b.ForEach(func(k, v []byte) error {
			exp, _, err := wire.DecodeEntry(v)
			if err != nil || wire.Expired(exp, now) {
				dead = append(dead, append([]byte(nil), k...))
			}
			return nil
		}); err != nil {
			return err
		}
		for _, k := range dead {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		removed = len(dead)
		return nil
	})
	return removed, err
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

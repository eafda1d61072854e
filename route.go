package fallcache

import (
	"context"
	"time"

	"github.com/unkn0wn-root/fallcache/backend"
)

// route is the per-mode strategy behind the single-value operations.
// Keys are already namespaced. ttl <= 0 means no expiry.
type route interface {
	get(ctx context.Context, k string) ([]byte, bool, error)
	set(ctx context.Context, k string, v []byte, ttl time.Duration) error
	setNX(ctx context.Context, k string, v []byte, ttl time.Duration) (bool, error)
	del(ctx context.Context, k string) (bool, error)
	exists(ctx context.Context, k string) (bool, error)
	compareAndDelete(ctx context.Context, k string, expected []byte) (bool, error)
}

type remoteRoute struct {
	b     backend.Backend
	hooks Hooks
}

// observe reports err to hooks and returns it untouched.
func (r remoteRoute) observe(op, k string, err error) error {
	if err != nil {
		r.hooks.RemoteError(op, k, err)
	}
	return err
}

func (r remoteRoute) get(ctx context.Context, k string) ([]byte, bool, error) {
	v, ok, err := r.b.Get(ctx, k)
	return v, ok, r.observe("get", k, err)
}

func (r remoteRoute) set(ctx context.Context, k string, v []byte, ttl time.Duration) error {
	return r.observe("set", k, r.b.Set(ctx, k, v, ttl))
}

func (r remoteRoute) setNX(ctx context.Context, k string, v []byte, ttl time.Duration) (bool, error) {
	ok, err := r.b.SetNX(ctx, k, v, ttl)
	return ok, r.observe("set_nx", k, err)
}

func (r remoteRoute) del(ctx context.Context, k string) (bool, error) {
	ok, err := r.b.Del(ctx, k)
	return ok, r.observe("del", k, err)
}

func (r remoteRoute) exists(ctx context.Context, k string) (bool, error) {
	ok, err := r.b.Exists(ctx, k)
	return ok, r.observe("exists", k, err)
}

func (r remoteRoute) compareAndDelete(ctx context.Context, k string, expected []byte) (bool, error) {
	ok, err := r.b.CompareAndDelete(ctx, k, expected)
	return ok, r.observe("compare_and_delete", k, err)
}

// localRoute holds the Cache's read lock for the length of each call so Clear
// never closes a store that is still in use.
type localRoute struct {
	c *Cache
}

func (r localRoute) get(ctx context.Context, k string) ([]byte, bool, error) {
	s, release := r.c.localStore()
	defer release()
	return s.Get(ctx, k)
}

func (r localRoute) set(ctx context.Context, k string, v []byte, ttl time.Duration) error {
	s, release := r.c.localStore()
	defer release()
	return s.Put(ctx, k, v, ttl)
}

func (r localRoute) setNX(ctx context.Context, k string, v []byte, ttl time.Duration) (bool, error) {
	s, release := r.c.localStore()
	defer release()
	return s.PutIfAbsent(ctx, k, v, ttl)
}

func (r localRoute) del(ctx context.Context, k string) (bool, error) {
	s, release := r.c.localStore()
	defer release()
	return s.Remove(ctx, k)
}

func (r localRoute) exists(ctx context.Context, k string) (bool, error) {
	s, release := r.c.localStore()
	defer release()
	return s.Contains(ctx, k)
}

func (r localRoute) compareAndDelete(ctx context.Context, k string, expected []byte) (bool, error) {
	s, release := r.c.localStore()
	defer release()
	return s.CompareAndRemove(ctx, k, expected)
}

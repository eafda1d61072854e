package fallcache

import (
	"context"
	"fmt"
	"time"

	"github.com/unkn0wn-root/fallcache/codec"
)

// Typed layers a codec over a Cache so callers read and write V instead of
// bytes. Decode failures are returned, never swallowed.
type Typed[V any] struct {
	c     *Cache
	codec codec.Codec[V]
}

func NewTyped[V any](c *Cache, cd codec.Codec[V]) *Typed[V] {
	return &Typed[V]{c: c, codec: cd}
}

// Cache returns the underlying byte cache.
func (t *Typed[V]) Cache() *Cache { return t.c }

func (t *Typed[V]) Get(ctx context.Context, ns, key string) (V, bool, error) {
	b, ok, err := t.c.Get(ctx, ns, key)
	return t.decode(b, ok, err)
}

func (t *Typed[V]) Set(ctx context.Context, ns, key string, v V, ttl time.Duration) error {
	b, err := t.codec.Encode(v)
	if err != nil {
		return fmt.Errorf("fallcache: encode %s: %w", key, err)
	}
	return t.c.Set(ctx, ns, key, b, ttl)
}

func (t *Typed[V]) SetWithoutTimeout(ctx context.Context, ns, key string, v V) error {
	b, err := t.codec.Encode(v)
	if err != nil {
		return fmt.Errorf("fallcache: encode %s: %w", key, err)
	}
	return t.c.SetWithoutTimeout(ctx, ns, key, b)
}

func (t *Typed[V]) SetIfAbsent(ctx context.Context, ns, key string, v V, ttl time.Duration) (bool, error) {
	b, err := t.codec.Encode(v)
	if err != nil {
		return false, fmt.Errorf("fallcache: encode %s: %w", key, err)
	}
	return t.c.SetIfAbsent(ctx, ns, key, b, ttl)
}

func (t *Typed[V]) Take(ctx context.Context, ns, key string) (V, bool, error) {
	b, ok, err := t.c.Take(ctx, ns, key)
	return t.decode(b, ok, err)
}

// PushRight encodes every value before pushing any of them.
func (t *Typed[V]) PushRight(ctx context.Context, ns, key string, vs ...V) (int64, error) {
	raw := make([][]byte, len(vs))
	for i, v := range vs {
		b, err := t.codec.Encode(v)
		if err != nil {
			return 0, fmt.Errorf("fallcache: encode %s[%d]: %w", key, i, err)
		}
		raw[i] = b
	}
	return t.c.Queue(ns, key).PushRight(ctx, raw...)
}

func (t *Typed[V]) PopLeft(ctx context.Context, ns, key string) (V, bool, error) {
	b, ok, err := t.c.Queue(ns, key).PopLeft(ctx)
	return t.decode(b, ok, err)
}

func (t *Typed[V]) decode(b []byte, ok bool, err error) (V, bool, error) {
	var zero V
	if err != nil || !ok {
		return zero, false, err
	}
	v, err := t.codec.Decode(b)
	if err != nil {
		return zero, false, fmt.Errorf("fallcache: decode: %w", err)
	}
	return v, true, nil
}

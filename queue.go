package fallcache

import (
	"bytes"
	"context"

	"github.com/unkn0wn-root/fallcache/keyspace"
)

// Queue is a double-ended queue of opaque values stored under one namespaced
// key. Queues live on the remote backend only: in local mode every method
// returns its zero value and an *UnsupportedError, and pushed values are lost.
type Queue struct {
	c   *Cache
	ns  string
	key string // namespaced
}

// Queue returns a handle for the list stored under (ns, key). Handles are
// cheap and hold no state of their own.
func (c *Cache) Queue(ns, key string) *Queue {
	return &Queue{c: c, ns: ns, key: keyspace.Compose(ns, key)}
}

// Key returns the namespaced backend key.
func (q *Queue) Key() string { return q.key }

// PushLeft prepends values in order (the last one ends up at the head) and
// returns the new length.
func (q *Queue) PushLeft(ctx context.Context, values ...[]byte) (int64, error) {
	if err := q.remoteOnly("PushLeft", len(values)); err != nil {
		return 0, err
	}
	n, err := q.c.backend.LPush(ctx, q.key, values...)
	return n, q.observe("lpush", err)
}

// PushRight appends values in order and returns the new length.
func (q *Queue) PushRight(ctx context.Context, values ...[]byte) (int64, error) {
	if err := q.remoteOnly("PushRight", len(values)); err != nil {
		return 0, err
	}
	n, err := q.c.backend.RPush(ctx, q.key, values...)
	return n, q.observe("rpush", err)
}

// PopLeft removes and returns the head; (nil, false, nil) when empty.
func (q *Queue) PopLeft(ctx context.Context) ([]byte, bool, error) {
	if err := q.remoteOnly("PopLeft", 0); err != nil {
		return nil, false, err
	}
	v, ok, err := q.c.backend.LPop(ctx, q.key)
	return v, ok, q.observe("lpop", err)
}

// PopRight removes and returns the tail; (nil, false, nil) when empty.
func (q *Queue) PopRight(ctx context.Context) ([]byte, bool, error) {
	if err := q.remoteOnly("PopRight", 0); err != nil {
		return nil, false, err
	}
	v, ok, err := q.c.backend.RPop(ctx, q.key)
	return v, ok, q.observe("rpop", err)
}

// PeekLeft returns the head without removing it.
func (q *Queue) PeekLeft(ctx context.Context) ([]byte, bool, error) {
	if err := q.remoteOnly("PeekLeft", 0); err != nil {
		return nil, false, err
	}
	v, ok, err := q.c.backend.LIndex(ctx, q.key, 0)
	return v, ok, q.observe("lindex", err)
}

// PeekRight returns the tail without removing it.
func (q *Queue) PeekRight(ctx context.Context) ([]byte, bool, error) {
	if err := q.remoteOnly("PeekRight", 0); err != nil {
		return nil, false, err
	}
	v, ok, err := q.c.backend.LIndex(ctx, q.key, -1)
	return v, ok, q.observe("lindex", err)
}

func (q *Queue) Len(ctx context.Context) (int64, error) {
	if err := q.remoteOnly("Len", 0); err != nil {
		return 0, err
	}
	n, err := q.c.backend.LLen(ctx, q.key)
	return n, q.observe("llen", err)
}

// Items returns the whole queue, head first.
func (q *Queue) Items(ctx context.Context) ([][]byte, error) {
	if err := q.remoteOnly("Items", 0); err != nil {
		return nil, err
	}
	vs, err := q.c.backend.LRange(ctx, q.key, 0, -1)
	return vs, q.observe("lrange", err)
}

// ReplaceAll atomically swaps the queue's contents for values.
// An empty values deletes the queue.
func (q *Queue) ReplaceAll(ctx context.Context, values [][]byte) error {
	if err := q.remoteOnly("ReplaceAll", len(values)); err != nil {
		return err
	}
	return q.observe("lreplace", q.c.backend.LReplace(ctx, q.key, values))
}

// Rotate moves the head to the tail in one atomic step and returns it.
// Rotating a queue of length N, N times, restores its order.
func (q *Queue) Rotate(ctx context.Context) ([]byte, bool, error) {
	if err := q.remoteOnly("Rotate", 0); err != nil {
		return nil, false, err
	}
	v, ok, err := q.c.backend.LMove(ctx, q.key, q.key)
	return v, ok, q.observe("lmove", err)
}

// MoveTo pops the head and pushes it onto the tail of the queue dstKey in the
// same namespace, atomically.
func (q *Queue) MoveTo(ctx context.Context, dstKey string) ([]byte, bool, error) {
	if err := q.remoteOnly("MoveTo", 0); err != nil {
		return nil, false, err
	}
	v, ok, err := q.c.backend.LMove(ctx, q.key, keyspace.Compose(q.ns, dstKey))
	return v, ok, q.observe("lmove", err)
}

// Remove deletes up to count occurrences of value: count > 0 from the head,
// count < 0 from the tail, 0 for all. It returns how many were removed.
func (q *Queue) Remove(ctx context.Context, count int64, value []byte) (int64, error) {
	if err := q.remoteOnly("Remove", 0); err != nil {
		return 0, err
	}
	n, err := q.c.backend.LRem(ctx, q.key, count, value)
	return n, q.observe("lrem", err)
}

// Contains scans the full queue for value. O(n) in queue length.
func (q *Queue) Contains(ctx context.Context, value []byte) (bool, error) {
	if err := q.remoteOnly("Contains", 0); err != nil {
		return false, err
	}
	vs, err := q.c.backend.LRange(ctx, q.key, 0, -1)
	if err != nil {
		return false, q.observe("lrange", err)
	}
	for _, v := range vs {
		if bytes.Equal(v, value) {
			return true, nil
		}
	}
	return false, nil
}

// remoteOnly refuses queue calls in local mode. dropped counts values the
// caller tried to write; they are logged as lost.
func (q *Queue) remoteOnly(op string, dropped int) error {
	if q.c.mode == ModeRemote {
		return nil
	}
	f := keyFields(op, q.ns, q.key)
	f["dropped"] = dropped
	q.c.log.Warn("queue unavailable in local mode; writes are lost and reads are empty", f)
	return q.c.unsupported(op)
}

func (q *Queue) observe(op string, err error) error {
	if err != nil {
		q.c.hooks.RemoteError(op, q.key, err)
	}
	return err
}

// Package backendtest provides an in-memory backend.Backend with failure
// injection and a conformance suite every backend implementation should pass.
package backendtest

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"time"

	"github.com/unkn0wn-root/fallcache/backend"
)

// ErrInjected is what a Fake returns after FailAll without an explicit error.
var ErrInjected = errors.New("backendtest: injected failure")

type value struct {
	data      []byte
	expiresAt time.Time // zero => never
}

// Fake is a goroutine-safe in-memory Backend. It mimics Redis semantics for
// the subset fallcache uses, including expiry, and can be told to fail.
type Fake struct {
	mu      sync.Mutex
	kv      map[string]value
	lists   map[string][][]byte
	calls   map[string]int
	failOn  map[string]error
	failAll error
	closed  bool
	now     func() time.Time
}

var _ backend.Backend = (*Fake)(nil)

func NewFake() *Fake {
	return &Fake{
		kv:     make(map[string]value),
		lists:  make(map[string][][]byte),
		calls:  make(map[string]int),
		failOn: make(map[string]error),
		now:    time.Now,
	}
}

// SetClock replaces the time source used for expiry.
func (f *Fake) SetClock(now func() time.Time) {
	f.mu.Lock()
	f.now = now
	f.mu.Unlock()
}

// FastForward moves the fake's clock forward by d.
func (f *Fake) FastForward(d time.Duration) {
	f.mu.Lock()
	prev := f.now
	f.now = func() time.Time { return prev().Add(d) }
	f.mu.Unlock()
}

// FailAll makes every subsequent call return err (ErrInjected when nil).
func (f *Fake) FailAll(err error) {
	if err == nil {
		err = ErrInjected
	}
	f.mu.Lock()
	f.failAll = err
	f.mu.Unlock()
}

// FailOn makes calls to the named method (e.g. "Set") return err.
// A nil err clears the injection.
func (f *Fake) FailOn(op string, err error) {
	f.mu.Lock()
	if err == nil {
		delete(f.failOn, op)
	} else {
		f.failOn[op] = err
	}
	f.mu.Unlock()
}

// Heal clears all injected failures.
func (f *Fake) Heal() {
	f.mu.Lock()
	f.failAll = nil
	f.failOn = make(map[string]error)
	f.mu.Unlock()
}

// Calls returns how many times the named method was invoked.
func (f *Fake) Calls(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *Fake) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// enter records the call and returns any injected error. Caller holds f.mu.
func (f *Fake) enter(ctx context.Context, op string) error {
	f.calls[op]++
	if err := ctx.Err(); err != nil {
		return err
	}
	if f.failAll != nil {
		return f.failAll
	}
	return f.failOn[op]
}

// live returns the unexpired value for key, dropping it when expired.
// Caller holds f.mu.
func (f *Fake) live(key string) (value, bool) {
	v, ok := f.kv[key]
	if !ok {
		return value{}, false
	}
	if !v.expiresAt.IsZero() && !f.now().Before(v.expiresAt) {
		delete(f.kv, key)
		return value{}, false
	}
	return v, true
}

func (f *Fake) put(key string, data []byte, ttl time.Duration) {
	v := value{data: clone(data)}
	if ttl > 0 {
		v.expiresAt = f.now().Add(ttl)
	}
	delete(f.lists, key)
	f.kv[key] = v
}

func (f *Fake) Get(ctx context.Context, key string) ([]byte, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter(ctx, "Get"); err != nil {
		return nil, false, err
	}
	v, ok := f.live(key)
	if !ok {
		return nil, false, nil
	}
	return clone(v.data), true, nil
}

func (f *Fake) Set(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter(ctx, "Set"); err != nil {
		return err
	}
	f.put(key, data, ttl)
	return nil
}

func (f *Fake) SetNX(ctx context.Context, key string, data []byte, ttl time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter(ctx, "SetNX"); err != nil {
		return false, err
	}
	if _, ok := f.live(key); ok {
		return false, nil
	}
	if _, ok := f.lists[key]; ok {
		return false, nil
	}
	f.put(key, data, ttl)
	return true, nil
}

func (f *Fake) Del(ctx context.Context, key string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter(ctx, "Del"); err != nil {
		return false, err
	}
	return f.del(key), nil
}

func (f *Fake) del(key string) bool {
	_, inKV := f.live(key)
	_, inList := f.lists[key]
	delete(f.kv, key)
	delete(f.lists, key)
	return inKV || inList
}

func (f *Fake) DelMany(ctx context.Context, keys []string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter(ctx, "DelMany"); err != nil {
		return 0, err
	}
	var n int64
	for _, k := range keys {
		if f.del(k) {
			n++
		}
	}
	return n, nil
}

func (f *Fake) Exists(ctx context.Context, key string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter(ctx, "Exists"); err != nil {
		return false, err
	}
	if _, ok := f.live(key); ok {
		return true, nil
	}
	_, ok := f.lists[key]
	return ok, nil
}

func (f *Fake) Keys(ctx context.Context, pattern string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter(ctx, "Keys"); err != nil {
		return nil, err
	}
	var out []string
	for k := range f.kv {
		if _, ok := f.live(k); ok && Match(pattern, k) {
			out = append(out, k)
		}
	}
	for k := range f.lists {
		if Match(pattern, k) {
			out = append(out, k)
		}
	}
	return out, nil
}

func (f *Fake) CompareAndDelete(ctx context.Context, key string, expected []byte) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter(ctx, "CompareAndDelete"); err != nil {
		return false, err
	}
	v, ok := f.live(key)
	if !ok || !bytes.Equal(v.data, expected) {
		return false, nil
	}
	delete(f.kv, key)
	return true, nil
}

func (f *Fake) Close(context.Context) error {
	f.mu.Lock()
	f.calls["Close"]++
	f.closed = true
	f.mu.Unlock()
	return nil
}

func (f *Fake) LPush(ctx context.Context, key string, values ...[]byte) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter(ctx, "LPush"); err != nil {
		return 0, err
	}
	l := f.lists[key]
	for _, v := range values {
		l = append([][]byte{clone(v)}, l...)
	}
	f.setList(key, l)
	return int64(len(l)), nil
}

func (f *Fake) RPush(ctx context.Context, key string, values ...[]byte) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter(ctx, "RPush"); err != nil {
		return 0, err
	}
	l := f.lists[key]
	for _, v := range values {
		l = append(l, clone(v))
	}
	f.setList(key, l)
	return int64(len(l)), nil
}

func (f *Fake) LPop(ctx context.Context, key string) ([]byte, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter(ctx, "LPop"); err != nil {
		return nil, false, err
	}
	l := f.lists[key]
	if len(l) == 0 {
		return nil, false, nil
	}
	head := l[0]
	f.setList(key, l[1:])
	return head, true, nil
}

func (f *Fake) RPop(ctx context.Context, key string) ([]byte, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter(ctx, "RPop"); err != nil {
		return nil, false, err
	}
	l := f.lists[key]
	if len(l) == 0 {
		return nil, false, nil
	}
	tail := l[len(l)-1]
	f.setList(key, l[:len(l)-1])
	return tail, true, nil
}

func (f *Fake) LIndex(ctx context.Context, key string, index int64) ([]byte, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter(ctx, "LIndex"); err != nil {
		return nil, false, err
	}
	l := f.lists[key]
	n := int64(len(l))
	if index < 0 {
		index += n
	}
	if index < 0 || index >= n {
		return nil, false, nil
	}
	return clone(l[index]), true, nil
}

func (f *Fake) LRange(ctx context.Context, key string, start, stop int64) ([][]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter(ctx, "LRange"); err != nil {
		return nil, err
	}
	l := f.lists[key]
	n := int64(len(l))
	if start < 0 {
		start += n
	}
	if stop < 0 {
		stop += n
	}
	if start < 0 {
		start = 0
	}
	if stop >= n {
		stop = n - 1
	}
	out := [][]byte{}
	for i := start; i <= stop; i++ {
		out = append(out, clone(l[i]))
	}
	return out, nil
}

func (f *Fake) LLen(ctx context.Context, key string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter(ctx, "LLen"); err != nil {
		return 0, err
	}
	return int64(len(f.lists[key])), nil
}

func (f *Fake) LRem(ctx context.Context, key string, count int64, v []byte) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter(ctx, "LRem"); err != nil {
		return 0, err
	}
	l := f.lists[key]
	limit := count
	if limit < 0 {
		limit = -limit
	}
	keep := make([]bool, len(l))
	var removed int64
	visit := func(i int) {
		if (limit == 0 || removed < limit) && bytes.Equal(l[i], v) {
			removed++
			return
		}
		keep[i] = true
	}
	if count < 0 {
		for i := len(l) - 1; i >= 0; i-- {
			visit(i)
		}
	} else {
		for i := range l {
			visit(i)
		}
	}
	out := make([][]byte, 0, len(l))
	for i, e := range l {
		if keep[i] {
			out = append(out, e)
		}
	}
	f.setList(key, out)
	return removed, nil
}

func (f *Fake) LMove(ctx context.Context, src, dst string) ([]byte, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter(ctx, "LMove"); err != nil {
		return nil, false, err
	}
	l := f.lists[src]
	if len(l) == 0 {
		return nil, false, nil
	}
	head := l[0]
	f.setList(src, l[1:])
	f.setList(dst, append(f.lists[dst], head))
	return clone(head), true, nil
}

func (f *Fake) LReplace(ctx context.Context, key string, values [][]byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter(ctx, "LReplace"); err != nil {
		return err
	}
	l := make([][]byte, len(values))
	for i, v := range values {
		l[i] = clone(v)
	}
	f.setList(key, l)
	return nil
}

// setList stores l, removing the key when the list is empty as Redis does.
func (f *Fake) setList(key string, l [][]byte) {
	if len(l) == 0 {
		delete(f.lists, key)
		return
	}
	delete(f.kv, key)
	f.lists[key] = l
}

func clone(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	return append([]byte(nil), b...)
}

// Package asynchook moves hook calls off the cache's hot path.
//
//	raw := sloghooks.New(slog.Default(), sloghooks.Options{RemoteErrorEvery: 10})
//	hooks := asynchook.New(raw, 1, 1000) // 1 worker; queue 1000 events
//	defer hooks.Close()
//
//	cache, _ := fallcache.New(ctx, fallcache.Options{Backend: b, Hooks: hooks})
//
// Events are dropped, not blocked on, when the queue is full. Dropped reports
// how many.
package asynchook

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/unkn0wn-root/fallcache"
)

type Hooks struct {
	inner   fallcache.Hooks
	q       chan func()
	wg      sync.WaitGroup
	once    sync.Once
	mu      sync.RWMutex // guards sends against close
	closed  bool
	dropped atomic.Uint64
}

var _ fallcache.Hooks = (*Hooks)(nil)

func New(inner fallcache.Hooks, workers, qlen int) *Hooks {
	if workers <= 0 {
		workers = 1
	}
	if qlen <= 0 {
		qlen = 1024
	}

	h := &Hooks{inner: inner, q: make(chan func(), qlen)}
	h.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer h.wg.Done()
			for f := range h.q {
				f()
			}
		}()
	}
	return h
}

// Close drains queued events and stops the workers. Events fired after
// Close are dropped.
func (h *Hooks) Close() {
	h.once.Do(func() {
		h.mu.Lock()
		h.closed = true
		close(h.q)
		h.mu.Unlock()
		h.wg.Wait()
	})
}

// Dropped reports events lost to a full queue or a closed hook.
func (h *Hooks) Dropped() uint64 { return h.dropped.Load() }

func (h *Hooks) try(f func()) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		h.dropped.Add(1)
		return
	}
	select {
	case h.q <- f:
	default:
		h.dropped.Add(1)
	}
}

func (h *Hooks) ModeSelected(m fallcache.Mode, err error) { h.try(func() { h.inner.ModeSelected(m, err) }) }
func (h *Hooks) Unsupported(op string, m fallcache.Mode)  { h.try(func() { h.inner.Unsupported(op, m) }) }
func (h *Hooks) LocalCleared()                            { h.try(h.inner.LocalCleared) }
func (h *Hooks) RemoteError(op, k string, err error) {
	h.try(func() { h.inner.RemoteError(op, k, err) })
}
func (h *Hooks) LockAcquired(k string, n int, d time.Duration) {
	h.try(func() { h.inner.LockAcquired(k, n, d) })
}
func (h *Hooks) LockTimedOut(k string, n int, d time.Duration) {
	h.try(func() { h.inner.LockTimedOut(k, n, d) })
}

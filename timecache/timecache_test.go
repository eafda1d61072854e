package timecache

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

func newTestCache(t *testing.T, clk *fakeClock) *Cache[string] {
	t.Helper()
	c := New[string](Options{Clock: clk.Now})
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestTTLBoundary(t *testing.T) {
	clk := newFakeClock()
	c := newTestCache(t, clk)

	c.PutWithTTL("k", "v", time.Second)

	clk.Advance(999 * time.Millisecond)
	if v, ok := c.Get("k"); !ok || v != "v" {
		t.Fatalf("before ttl: got %q ok=%v", v, ok)
	}

	clk.Advance(time.Millisecond) // elapsed == ttl
	if _, ok := c.Get("k"); ok {
		t.Fatalf("entry must be absent once elapsed >= ttl")
	}
	if c.Len() != 0 {
		t.Fatalf("expired entry should be evicted lazily, len=%d", c.Len())
	}
}

func TestDefaultTTLIsOneDay(t *testing.T) {
	clk := newFakeClock()
	c := newTestCache(t, clk)

	c.Put("k", "v")
	clk.Advance(DefaultTTL - time.Nanosecond)
	if !c.Contains("k") {
		t.Fatalf("entry should live for the default ttl")
	}
	clk.Advance(time.Nanosecond)
	if c.Contains("k") {
		t.Fatalf("entry should expire at the default ttl")
	}
}

func TestNoExpiration(t *testing.T) {
	clk := newFakeClock()
	c := newTestCache(t, clk)

	c.PutWithTTL("k", "forever", NoExpiration)
	clk.Advance(365 * 24 * time.Hour)
	if v, ok := c.Get("k"); !ok || v != "forever" {
		t.Fatalf("NoExpiration entry vanished: %q ok=%v", v, ok)
	}
}

func TestOverwriteReplacesValueAndExpiry(t *testing.T) {
	clk := newFakeClock()
	c := newTestCache(t, clk)

	c.PutWithTTL("k", "old", time.Second)
	clk.Advance(500 * time.Millisecond)
	c.PutWithTTL("k", "new", time.Second)
	clk.Advance(700 * time.Millisecond)

	if v, ok := c.Get("k"); !ok || v != "new" {
		t.Fatalf("overwrite should reset expiry: got %q ok=%v", v, ok)
	}
}

func TestRemoveIsGenuine(t *testing.T) {
	clk := newFakeClock()
	c := newTestCache(t, clk)

	c.Put("k", "v")
	if !c.Remove("k") {
		t.Fatalf("Remove should report the live entry")
	}
	if c.Contains("k") || c.Len() != 0 {
		t.Fatalf("Remove must delete the entry, len=%d", c.Len())
	}
	if c.Remove("k") {
		t.Fatalf("second Remove should report absence")
	}
}

func TestPutIfAbsent(t *testing.T) {
	clk := newFakeClock()
	c := newTestCache(t, clk)

	if !c.PutIfAbsent("lock", "a", time.Second) {
		t.Fatalf("first PutIfAbsent should win")
	}
	if c.PutIfAbsent("lock", "b", time.Second) {
		t.Fatalf("second PutIfAbsent should lose while live")
	}
	if v, _ := c.Get("lock"); v != "a" {
		t.Fatalf("loser overwrote the value: %q", v)
	}

	clk.Advance(time.Second)
	if !c.PutIfAbsent("lock", "c", time.Second) {
		t.Fatalf("PutIfAbsent should win over an expired entry")
	}
}

func TestPutIfAbsentIsExclusiveUnderContention(t *testing.T) {
	c := New[int](Options{})
	t.Cleanup(func() { _ = c.Close() })

	const workers = 64
	var wins atomic.Int32
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func(i int) {
			defer wg.Done()
			if c.PutIfAbsent("k", i, time.Minute) {
				wins.Add(1)
			}
		}(i)
	}
	wg.Wait()
	if wins.Load() != 1 {
		t.Fatalf("expected exactly one winner, got %d", wins.Load())
	}
}

func TestRemoveIf(t *testing.T) {
	clk := newFakeClock()
	c := newTestCache(t, clk)

	c.Put("k", "token-a")
	if c.RemoveIf("k", func(v string) bool { return v == "token-b" }) {
		t.Fatalf("RemoveIf must refuse a mismatching value")
	}
	if !c.RemoveIf("k", func(v string) bool { return v == "token-a" }) {
		t.Fatalf("RemoveIf should remove a matching value")
	}
	if c.Contains("k") {
		t.Fatalf("entry still present after RemoveIf")
	}
}

func TestSweepDropsExpiredOnly(t *testing.T) {
	clk := newFakeClock()
	c := newTestCache(t, clk)

	for i := 0; i < 10; i++ {
		c.PutWithTTL(fmt.Sprintf("short-%d", i), "x", time.Second)
	}
	c.PutWithTTL("long", "x", time.Hour)

	clk.Advance(2 * time.Second)
	if n := c.Sweep(); n != 10 {
		t.Fatalf("Sweep removed %d, want 10", n)
	}
	if c.Len() != 1 || !c.Contains("long") {
		t.Fatalf("Sweep removed a live entry, len=%d", c.Len())
	}
}

func TestBackgroundSweep(t *testing.T) {
	c := New[string](Options{SweepInterval: 10 * time.Millisecond})
	t.Cleanup(func() { _ = c.Close() })

	c.PutWithTTL("k", "v", 5*time.Millisecond)
	deadline := time.Now().Add(time.Second)
	for c.Len() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("background sweep never removed the expired entry")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestClear(t *testing.T) {
	c := newTestCache(t, newFakeClock())
	c.Put("a", "1")
	c.Put("b", "2")
	c.Clear()
	if c.Len() != 0 {
		t.Fatalf("Clear left %d entries", c.Len())
	}
}

func TestConcurrentAccess(t *testing.T) {
	c := New[int](Options{SweepInterval: time.Millisecond})
	t.Cleanup(func() { _ = c.Close() })

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				k := fmt.Sprintf("k%d", i%17)
				c.PutWithTTL(k, w, time.Millisecond)
				c.Get(k)
				c.Contains(k)
				if i%5 == 0 {
					c.Remove(k)
				}
			}
		}(w)
	}
	wg.Wait()
}

func TestCloseIsIdempotent(t *testing.T) {
	c := New[string](Options{SweepInterval: time.Millisecond})
	if err := c.Close(); err != nil {
		t.Fatal(err)
	}
	if err := c.Close(); err != nil {
		t.Fatal(err)
	}
}

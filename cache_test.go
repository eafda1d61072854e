package fallcache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/unkn0wn-root/fallcache/backend/backendtest"
	"github.com/unkn0wn-root/fallcache/local"
)

func TestNewRequiresBackend(t *testing.T) {
	if _, err := New(context.Background(), Options{}); !errors.Is(err, ErrNilBackend) {
		t.Fatalf("want ErrNilBackend, got %v", err)
	}
}

func TestSuccessfulProbeSelectsRemote(t *testing.T) {
	hooks := &recordHooks{}
	_, fake := newRemote(t, func(o *Options) { o.Hooks = hooks })

	got, ok, _ := fake.Get(context.Background(), canaryKey)
	if !ok || string(got) != "ttc" {
		t.Fatalf("canary not written: %q ok=%v", got, ok)
	}
	if len(hooks.modes) != 1 || hooks.modes[0] != ModeRemote || hooks.probeErrs[0] != nil {
		t.Fatalf("ModeSelected hook: modes=%v errs=%v", hooks.modes, hooks.probeErrs)
	}
}

func TestFailedProbeSelectsLocalForLife(t *testing.T) {
	ctx := context.Background()
	hooks := &recordHooks{}
	logger := &recordLogger{}
	c, fake := newLocal(t, func(o *Options) {
		o.Hooks = hooks
		o.Logger = logger
	})

	if len(hooks.modes) != 1 || hooks.modes[0] != ModeLocal || !errors.Is(hooks.probeErrs[0], errDown) {
		t.Fatalf("ModeSelected hook: modes=%v errs=%v", hooks.modes, hooks.probeErrs)
	}
	if logger.warnCount() == 0 {
		t.Fatalf("entering local mode should be logged at warn")
	}

	// the backend is healthy now; the cache must not notice
	setsBefore := fake.Calls("Set")
	if err := c.Set(ctx, "users", "1", []byte("alice"), 0); err != nil {
		t.Fatal(err)
	}
	v, ok, err := c.Get(ctx, "users", "1")
	if err != nil || !ok || string(v) != "alice" {
		t.Fatalf("local Get: %q ok=%v err=%v", v, ok, err)
	}
	if fake.Calls("Set") != setsBefore || fake.Calls("Get") != 0 {
		t.Fatalf("local mode reached the backend")
	}
	if c.Mode() != ModeLocal {
		t.Fatalf("mode changed to %s", c.Mode())
	}
}

func TestRemoteNeverFallsBack(t *testing.T) {
	ctx := context.Background()
	hooks := &recordHooks{}
	c, fake := newRemote(t, func(o *Options) { o.Hooks = hooks })

	fake.FailAll(errDown)
	if _, _, err := c.Get(ctx, "users", "1"); !errors.Is(err, errDown) {
		t.Fatalf("remote error must propagate unmodified, got %v", err)
	}
	if err := c.Set(ctx, "users", "1", []byte("x"), 0); !errors.Is(err, errDown) {
		t.Fatalf("remote error must propagate unmodified, got %v", err)
	}
	if c.Mode() != ModeRemote {
		t.Fatalf("mode changed to %s", c.Mode())
	}
	if len(hooks.remoteErrs) != 2 {
		t.Fatalf("RemoteError hook fired %d times, want 2", len(hooks.remoteErrs))
	}
}

type blockingBackend struct {
	*backendtest.Fake
}

func (b blockingBackend) Set(ctx context.Context, _ string, _ []byte, _ time.Duration) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestProbeTimeoutSelectsLocal(t *testing.T) {
	start := time.Now()
	c, err := New(context.Background(), Options{
		Backend:      blockingBackend{backendtest.NewFake()},
		ProbeTimeout: 20 * time.Millisecond,
	})
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close(context.Background())
	if c.Mode() != ModeLocal {
		t.Fatalf("hung probe should select local, got %s", c.Mode())
	}
	if time.Since(start) > time.Second {
		t.Fatalf("probe not bounded by ProbeTimeout")
	}
}

func TestLocalFactoryErrorFailsNew(t *testing.T) {
	fake := backendtest.NewFake()
	fake.FailAll(errDown)
	boom := errors.New("disk full")
	_, err := New(context.Background(), Options{
		Backend:  fake,
		NewLocal: func() (local.Store, error) { return nil, boom },
	})
	if !errors.Is(err, boom) {
		t.Fatalf("want factory error, got %v", err)
	}
}

func TestNamespaceIsolation(t *testing.T) {
	for _, mode := range []string{"remote", "local"} {
		t.Run(mode, func(t *testing.T) {
			ctx := context.Background()
			var c *Cache
			if mode == "remote" {
				c, _ = newRemote(t, nil)
			} else {
				c, _ = newLocal(t, nil)
			}

			_ = c.Set(ctx, "users", "1", []byte("user"), 0)
			_ = c.Set(ctx, "orders", "1", []byte("order"), 0)

			if v, _, _ := c.Get(ctx, "users", "1"); string(v) != "user" {
				t.Fatalf("users:1 = %q", v)
			}
			if ok, _ := c.Delete(ctx, "orders", "1"); !ok {
				t.Fatalf("orders:1 should have been present")
			}
			if ok, _ := c.Exists(ctx, "users", "1"); !ok {
				t.Fatalf("deleting orders:1 touched users:1")
			}
		})
	}
}

func TestSetDefaultTTL(t *testing.T) {
	ctx := context.Background()
	c, fake := newRemote(t, func(o *Options) { o.DefaultTTL = time.Hour })

	_ = c.Set(ctx, "ns", "k", []byte("v"), 0)
	fake.FastForward(time.Hour - time.Second)
	if ok, _ := c.Exists(ctx, "ns", "k"); !ok {
		t.Fatalf("entry expired before the default ttl")
	}
	fake.FastForward(time.Second)
	if ok, _ := c.Exists(ctx, "ns", "k"); ok {
		t.Fatalf("entry outlived the default ttl")
	}
}

func TestLocalTTLBoundary(t *testing.T) {
	ctx := context.Background()
	clk := newFakeClock()
	c, _ := newLocal(t, clockedLocal(clk))

	_ = c.Set(ctx, "ns", "k", []byte("v"), time.Second)
	clk.Advance(999 * time.Millisecond)
	if _, ok, _ := c.Get(ctx, "ns", "k"); !ok {
		t.Fatalf("value missing before its ttl")
	}
	clk.Advance(time.Millisecond)
	if _, ok, _ := c.Get(ctx, "ns", "k"); ok {
		t.Fatalf("value present at elapsed == ttl")
	}
}

func TestSetWithoutTimeout(t *testing.T) {
	ctx := context.Background()

	t.Run("local", func(t *testing.T) {
		clk := newFakeClock()
		c, _ := newLocal(t, clockedLocal(clk))
		_ = c.SetWithoutTimeout(ctx, "ns", "k", []byte("v"))
		clk.Advance(10 * 365 * 24 * time.Hour)
		if _, ok, _ := c.Get(ctx, "ns", "k"); !ok {
			t.Fatalf("local value without timeout expired")
		}
	})

	t.Run("remote", func(t *testing.T) {
		c, fake := newRemote(t, nil)
		_ = c.SetWithoutTimeout(ctx, "ns", "k", []byte("v"))
		fake.FastForward(10 * 365 * 24 * time.Hour)
		if _, ok, _ := c.Get(ctx, "ns", "k"); !ok {
			t.Fatalf("remote value without timeout expired")
		}
	})
}

func TestLocalDeleteIsGenuine(t *testing.T) {
	ctx := context.Background()
	c, _ := newLocal(t, nil)

	_ = c.Set(ctx, "ns", "k", []byte("v"), 0)
	if ok, err := c.Delete(ctx, "ns", "k"); err != nil || !ok {
		t.Fatalf("Delete: ok=%v err=%v", ok, err)
	}
	if ok, _ := c.Exists(ctx, "ns", "k"); ok {
		t.Fatalf("deleted key still exists")
	}
	if ok, _ := c.Delete(ctx, "ns", "k"); ok {
		t.Fatalf("second Delete should report absence")
	}
	if ok, _ := c.SetIfAbsent(ctx, "ns", "k", []byte("again"), 0); !ok {
		t.Fatalf("SetIfAbsent should win after a genuine delete")
	}
}

func TestSetIfAbsentIsExclusive(t *testing.T) {
	for _, mode := range []string{"remote", "local"} {
		t.Run(mode, func(t *testing.T) {
			var c *Cache
			if mode == "remote" {
				c, _ = newRemote(t, nil)
			} else {
				c, _ = newLocal(t, nil)
			}

			const workers = 50
			var wins atomic.Int32
			var wg sync.WaitGroup
			wg.Add(workers)
			for i := 0; i < workers; i++ {
				go func(i int) {
					defer wg.Done()
					ok, err := c.SetIfAbsent(context.Background(), "locks", "job", []byte(fmt.Sprint(i)), time.Minute)
					if err == nil && ok {
						wins.Add(1)
					}
				}(i)
			}
			wg.Wait()
			if wins.Load() != 1 {
				t.Fatalf("expected exactly one winner, got %d", wins.Load())
			}
		})
	}
}

func TestDeleteAll(t *testing.T) {
	ctx := context.Background()

	t.Run("remote", func(t *testing.T) {
		c, _ := newRemote(t, nil)
		for i := 0; i < 5; i++ {
			_ = c.Set(ctx, "sessions", fmt.Sprint(i), []byte("s"), 0)
		}
		_ = c.Set(ctx, "sessionsx", "1", []byte("keep"), 0)
		_ = c.Set(ctx, "users", "1", []byte("keep"), 0)

		n, err := c.DeleteAll(ctx, "sessions")
		if err != nil || n != 5 {
			t.Fatalf("DeleteAll: n=%d err=%v", n, err)
		}
		if ok, _ := c.Exists(ctx, "sessionsx", "1"); !ok {
			t.Fatalf("DeleteAll crossed into a namespace sharing its prefix")
		}
		if ok, _ := c.Exists(ctx, "users", "1"); !ok {
			t.Fatalf("DeleteAll touched another namespace")
		}
		if n, _ := c.DeleteAll(ctx, "sessions"); n != 0 {
			t.Fatalf("second DeleteAll removed %d", n)
		}
	})

	t.Run("local", func(t *testing.T) {
		hooks := &recordHooks{}
		c, _ := newLocal(t, func(o *Options) { o.Hooks = hooks })
		_ = c.Set(ctx, "sessions", "1", []byte("s"), 0)

		n, err := c.DeleteAll(ctx, "sessions")
		if n != 0 || !errors.Is(err, ErrUnsupported) {
			t.Fatalf("local DeleteAll: n=%d err=%v", n, err)
		}
		var ue *UnsupportedError
		if !errors.As(err, &ue) || ue.Op != "DeleteAll" || ue.Mode != ModeLocal {
			t.Fatalf("want *UnsupportedError{DeleteAll, local}, got %#v", err)
		}
		if ok, _ := c.Exists(ctx, "sessions", "1"); !ok {
			t.Fatalf("unsupported DeleteAll must not delete")
		}
		if ops := hooks.unsupportedOps(); len(ops) != 1 || ops[0] != "DeleteAll" {
			t.Fatalf("Unsupported hook: %v", ops)
		}
	})
}

func TestDeleteAllPropagatesScanError(t *testing.T) {
	c, fake := newRemote(t, nil)
	fake.FailOn("Keys", errDown)
	if _, err := c.DeleteAll(context.Background(), "ns"); !errors.Is(err, errDown) {
		t.Fatalf("want scan error, got %v", err)
	}
}

func TestRefresh(t *testing.T) {
	ctx := context.Background()
	clk := newFakeClock()
	c, _ := newLocal(t, clockedLocal(clk))

	if ok, err := c.Refresh(ctx, "ns", "missing", time.Hour); ok || err != nil {
		t.Fatalf("Refresh of a missing key: ok=%v err=%v", ok, err)
	}

	_ = c.Set(ctx, "ns", "k", []byte("v"), time.Second)
	clk.Advance(500 * time.Millisecond)
	if ok, err := c.Refresh(ctx, "ns", "k", time.Hour); !ok || err != nil {
		t.Fatalf("Refresh: ok=%v err=%v", ok, err)
	}
	clk.Advance(time.Minute)
	if v, ok, _ := c.Get(ctx, "ns", "k"); !ok || string(v) != "v" {
		t.Fatalf("refreshed value lost: %q ok=%v", v, ok)
	}
}

func TestTake(t *testing.T) {
	for _, mode := range []string{"remote", "local"} {
		t.Run(mode, func(t *testing.T) {
			ctx := context.Background()
			var c *Cache
			if mode == "remote" {
				c, _ = newRemote(t, nil)
			} else {
				c, _ = newLocal(t, nil)
			}

			_ = c.Set(ctx, "tickets", "t1", []byte("seat-9"), 0)
			v, ok, err := c.Take(ctx, "tickets", "t1")
			if err != nil || !ok || string(v) != "seat-9" {
				t.Fatalf("Take: %q ok=%v err=%v", v, ok, err)
			}
			if _, ok, _ := c.Take(ctx, "tickets", "t1"); ok {
				t.Fatalf("value taken twice")
			}
		})
	}
}

func TestTakeHasOneWinner(t *testing.T) {
	ctx := context.Background()
	c, _ := newRemote(t, nil)
	_ = c.Set(ctx, "tickets", "t1", []byte("seat-9"), 0)

	const workers = 20
	var wins atomic.Int32
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			if _, ok, err := c.Take(ctx, "tickets", "t1"); err == nil && ok {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	if wins.Load() != 1 {
		t.Fatalf("Take handed the value to %d callers", wins.Load())
	}
}

func TestClear(t *testing.T) {
	ctx := context.Background()

	t.Run("local", func(t *testing.T) {
		hooks := &recordHooks{}
		c, _ := newLocal(t, func(o *Options) { o.Hooks = hooks })
		_ = c.Set(ctx, "a", "1", []byte("x"), 0)
		_ = c.SetWithoutTimeout(ctx, "b", "2", []byte("y"))

		if err := c.Clear(ctx); err != nil {
			t.Fatal(err)
		}
		for _, k := range [][2]string{{"a", "1"}, {"b", "2"}} {
			if ok, _ := c.Exists(ctx, k[0], k[1]); ok {
				t.Fatalf("%s:%s survived Clear", k[0], k[1])
			}
		}
		if hooks.localCleared != 1 {
			t.Fatalf("LocalCleared fired %d times", hooks.localCleared)
		}
		// the fresh store is usable
		_ = c.Set(ctx, "a", "1", []byte("z"), 0)
		if v, _, _ := c.Get(ctx, "a", "1"); string(v) != "z" {
			t.Fatalf("store unusable after Clear: %q", v)
		}
	})

	t.Run("remote", func(t *testing.T) {
		c, fake := newRemote(t, nil)
		_ = c.Set(ctx, "a", "1", []byte("x"), 0)
		if err := c.Clear(ctx); !errors.Is(err, ErrUnsupported) {
			t.Fatalf("remote Clear: %v", err)
		}
		if _, ok, _ := fake.Get(ctx, "a:1"); !ok {
			t.Fatalf("remote Clear must not touch the backend")
		}
	})
}

type closeCounter struct {
	local.Store
	closed *atomic.Int32
}

func (s closeCounter) Close() error {
	s.closed.Add(1)
	return s.Store.Close()
}

func TestClearClosesReplacedStore(t *testing.T) {
	var closed atomic.Int32
	c, _ := newLocal(t, func(o *Options) {
		o.NewLocal = func() (local.Store, error) {
			s, _ := local.TimeBasedFactory(timecacheDefaults())()
			return closeCounter{Store: s, closed: &closed}, nil
		}
	})
	if err := c.Clear(context.Background()); err != nil {
		t.Fatal(err)
	}
	if closed.Load() != 1 {
		t.Fatalf("replaced store closed %d times", closed.Load())
	}
}

func TestClearFallsBackWhenFactoryFails(t *testing.T) {
	ctx := context.Background()
	calls := 0
	boom := errors.New("disk full")
	hooks := &recordHooks{}
	c, _ := newLocal(t, func(o *Options) {
		o.Hooks = hooks
		o.NewLocal = func() (local.Store, error) {
			calls++
			if calls > 1 {
				return nil, boom
			}
			return local.TimeBasedFactory(timecacheDefaults())()
		}
	})
	if err := c.Set(ctx, "ns", "old", []byte("v"), 0); err != nil {
		t.Fatal(err)
	}
	if err := c.Clear(ctx); !errors.Is(err, boom) {
		t.Fatalf("want factory error, got %v", err)
	}
	if hooks.localCleared != 1 {
		t.Fatalf("LocalCleared fired %d times on the fallback path", hooks.localCleared)
	}
	if _, ok, _ := c.Get(ctx, "ns", "old"); ok {
		t.Fatal("entry survived Clear on the fallback path")
	}
	if err := c.Set(ctx, "ns", "k", []byte("v"), 0); err != nil {
		t.Fatalf("cache unusable after failed Clear: %v", err)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	fake := backendtest.NewFake()
	c, err := New(context.Background(), Options{Backend: fake})
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Close(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := c.Close(context.Background()); err != nil {
		t.Fatal(err)
	}
	if !fake.Closed() || fake.Calls("Close") != 1 {
		t.Fatalf("backend closed %d times", fake.Calls("Close"))
	}
}

func TestConcurrentLocalAccessWithClear(t *testing.T) {
	ctx := context.Background()
	c, _ := newLocal(t, nil)

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				k := fmt.Sprint(i % 13)
				_ = c.Set(ctx, "ns", k, []byte{byte(w)}, time.Minute)
				_, _, _ = c.Get(ctx, "ns", k)
				_, _ = c.SetIfAbsent(ctx, "ns", "lock", []byte("x"), time.Millisecond)
				if i%50 == 0 {
					_ = c.Clear(ctx)
				}
			}
		}(w)
	}
	wg.Wait()
}

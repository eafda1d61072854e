package fallcache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/unkn0wn-root/fallcache/backend/backendtest"
	"github.com/unkn0wn-root/fallcache/local"
	"github.com/unkn0wn-root/fallcache/timecache"
)

var errDown = errors.New("dial tcp 127.0.0.1:6379: connect: connection refused")

type recordHooks struct {
	mu           sync.Mutex
	modes        []Mode
	probeErrs    []error
	remoteErrs   []string
	unsupported  []string
	acquired     int
	timedOut     int
	localCleared int
}

var _ Hooks = (*recordHooks)(nil)

func (h *recordHooks) ModeSelected(m Mode, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.modes = append(h.modes, m)
	h.probeErrs = append(h.probeErrs, err)
}

func (h *recordHooks) RemoteError(op, _ string, _ error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.remoteErrs = append(h.remoteErrs, op)
}

func (h *recordHooks) Unsupported(op string, _ Mode) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.unsupported = append(h.unsupported, op)
}

func (h *recordHooks) LockAcquired(string, int, time.Duration) {
	h.mu.Lock()
	h.acquired++
	h.mu.Unlock()
}

func (h *recordHooks) LockTimedOut(string, int, time.Duration) {
	h.mu.Lock()
	h.timedOut++
	h.mu.Unlock()
}

func (h *recordHooks) LocalCleared() {
	h.mu.Lock()
	h.localCleared++
	h.mu.Unlock()
}

func (h *recordHooks) unsupportedOps() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.unsupported...)
}

type recordLogger struct {
	mu    sync.Mutex
	warns []string
}

func (l *recordLogger) Debug(string, Fields) {}
func (l *recordLogger) Info(string, Fields)  {}
func (l *recordLogger) Error(string, Fields) {}
func (l *recordLogger) Warn(msg string, _ Fields) {
	l.mu.Lock()
	l.warns = append(l.warns, msg)
	l.mu.Unlock()
}

func (l *recordLogger) warnCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.warns)
}

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

// newRemote builds a Cache whose probe succeeds against a fresh fake.
func newRemote(t *testing.T, mutate func(*Options)) (*Cache, *backendtest.Fake) {
	t.Helper()
	fake := backendtest.NewFake()
	opts := Options{Backend: fake}
	if mutate != nil {
		mutate(&opts)
	}
	c, err := New(context.Background(), opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = c.Close(context.Background()) })
	if c.Mode() != ModeRemote {
		t.Fatalf("mode=%s want remote", c.Mode())
	}
	return c, fake
}

// newLocal builds a Cache whose probe fails, then heals the fake so any
// accidental remote call would succeed and be counted.
func newLocal(t *testing.T, mutate func(*Options)) (*Cache, *backendtest.Fake) {
	t.Helper()
	fake := backendtest.NewFake()
	fake.FailOn("Set", errDown)
	opts := Options{Backend: fake}
	if mutate != nil {
		mutate(&opts)
	}
	c, err := New(context.Background(), opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	fake.Heal()
	t.Cleanup(func() { _ = c.Close(context.Background()) })
	if c.Mode() != ModeLocal {
		t.Fatalf("mode=%s want local", c.Mode())
	}
	return c, fake
}

// clockedLocal makes the default local store run on clk.
func clockedLocal(clk *fakeClock) func(*Options) {
	return func(o *Options) {
		o.NewLocal = local.TimeBasedFactory(timecache.Options{DefaultTTL: defaultTTL, Clock: clk.Now})
	}
}

func timecacheDefaults() timecache.Options {
	return timecache.Options{DefaultTTL: defaultTTL}
}

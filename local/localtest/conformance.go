// Package localtest holds the conformance suite for local.Store implementations.
package localtest

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unkn0wn-root/fallcache/local"
)

// Factory returns a fresh, empty store. Cleanup is the factory's job.
type Factory func(t *testing.T) local.Store

func RunConformance(t *testing.T, factory Factory) {
	cases := []struct {
		name string
		fn   func(t *testing.T, s local.Store)
	}{
		{"PutGet", testPutGet},
		{"Miss", testMiss},
		{"CallerCannotMutateStoredBytes", testIsolation},
		{"TTLExpires", testTTLExpires},
		{"NonPositiveTTLNeverExpires", testNoExpiry},
		{"RemoveIsGenuine", testRemove},
		{"PutIfAbsent", testPutIfAbsent},
		{"PutIfAbsentAfterExpiry", testPutIfAbsentAfterExpiry},
		{"PutIfAbsentIsExclusive", testPutIfAbsentExclusive},
		{"CompareAndRemove", testCompareAndRemove},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tc.fn(t, factory(t))
		})
	}
}

func testPutGet(t *testing.T, s local.Store) {
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, "k", []byte("v1"), time.Minute))
	got, ok, err := s.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("v1"), got)

	require.NoError(t, s.Put(ctx, "k", []byte("v2"), time.Minute))
	got, _, _ = s.Get(ctx, "k")
	assert.Equal(t, []byte("v2"), got)
}

func testMiss(t *testing.T, s local.Store) {
	ctx := context.Background()
	got, ok, err := s.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, got)

	ok, err = s.Contains(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func testIsolation(t *testing.T, s local.Store) {
	ctx := context.Background()
	in := []byte("abc")
	require.NoError(t, s.Put(ctx, "k", in, time.Minute))
	in[0] = 'X'

	got, _, _ := s.Get(ctx, "k")
	assert.Equal(t, []byte("abc"), got)
}

func testTTLExpires(t *testing.T, s local.Store) {
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, "k", []byte("v"), 30*time.Millisecond))
	time.Sleep(60 * time.Millisecond)

	_, ok, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
	ok, err = s.Contains(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func testNoExpiry(t *testing.T, s local.Store) {
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, "zero", []byte("v"), 0))
	require.NoError(t, s.Put(ctx, "neg", []byte("v"), -1))
	time.Sleep(20 * time.Millisecond)
	for _, k := range []string{"zero", "neg"} {
		ok, err := s.Contains(ctx, k)
		require.NoError(t, err)
		assert.True(t, ok, "%s should not expire", k)
	}
}

func testRemove(t *testing.T, s local.Store) {
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, "k", []byte("v"), time.Minute))

	ok, err := s.Remove(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.Contains(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok, "removed key must be gone, not tombstoned")

	ok, err = s.Remove(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func testPutIfAbsent(t *testing.T, s local.Store) {
	ctx := context.Background()
	ok, err := s.PutIfAbsent(ctx, "lock", []byte("a"), time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = s.PutIfAbsent(ctx, "lock", []byte("b"), time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	got, _, _ := s.Get(ctx, "lock")
	assert.Equal(t, []byte("a"), got)
}

func testPutIfAbsentAfterExpiry(t *testing.T, s local.Store) {
	ctx := context.Background()
	ok, err := s.PutIfAbsent(ctx, "lock", []byte("a"), 30*time.Millisecond)
	require.NoError(t, err)
	require.True(t, ok)
	time.Sleep(60 * time.Millisecond)

	ok, err = s.PutIfAbsent(ctx, "lock", []byte("b"), time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "an expired entry counts as absent")
}

func testPutIfAbsentExclusive(t *testing.T, s local.Store) {
	ctx := context.Background()
	const workers = 32
	var wins atomic.Int32
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func(i int) {
			defer wg.Done()
			ok, err := s.PutIfAbsent(ctx, "race", []byte(fmt.Sprint(i)), time.Minute)
			if err == nil && ok {
				wins.Add(1)
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins.Load())
}

func testCompareAndRemove(t *testing.T, s local.Store) {
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, "lease", []byte("token-a"), time.Minute))

	ok, err := s.CompareAndRemove(ctx, "lease", []byte("token-b"))
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = s.CompareAndRemove(ctx, "lease", []byte("token-a"))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.Contains(ctx, "lease")
	require.NoError(t, err)
	assert.False(t, ok)
}

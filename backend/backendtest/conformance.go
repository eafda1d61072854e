package backendtest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unkn0wn-root/fallcache/backend"
)

// Factory returns a fresh, empty backend for one subtest. Cleanup is the
// factory's job (t.Cleanup).
type Factory func(t *testing.T) backend.Backend

// RunConformance checks the behaviour fallcache relies on from any backend.
func RunConformance(t *testing.T, factory Factory) {
	cases := []struct {
		name string
		fn   func(t *testing.T, b backend.Backend)
	}{
		{"SetGet", testSetGet},
		{"GetMiss", testGetMiss},
		{"BytesAreTransparent", testBytesAreTransparent},
		{"TTLExpires", testTTLExpires},
		{"NonPositiveTTLNeverExpires", testNoExpiry},
		{"SetNX", testSetNX},
		{"SetNXIsExclusive", testSetNXIsExclusive},
		{"Del", testDel},
		{"DelMany", testDelMany},
		{"Exists", testExists},
		{"KeysByPattern", testKeysByPattern},
		{"CompareAndDelete", testCompareAndDelete},
		{"PushPop", testPushPop},
		{"IndexAndRange", testIndexAndRange},
		{"LRem", testLRem},
		{"LMove", testLMove},
		{"LMoveSelfRotates", testLMoveSelf},
		{"LReplace", testLReplace},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tc.fn(t, factory(t))
		})
	}
}

func testSetGet(t *testing.T, b backend.Backend) {
	ctx := context.Background()
	require.NoError(t, b.Set(ctx, "ns:k", []byte("v1"), time.Minute))
	got, ok, err := b.Get(ctx, "ns:k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("v1"), got)

	require.NoError(t, b.Set(ctx, "ns:k", []byte("v2"), time.Minute))
	got, _, _ = b.Get(ctx, "ns:k")
	assert.Equal(t, []byte("v2"), got)
}

func testGetMiss(t *testing.T, b backend.Backend) {
	got, ok, err := b.Get(context.Background(), "ns:missing")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, got)
}

func testBytesAreTransparent(t *testing.T, b backend.Backend) {
	ctx := context.Background()
	payload := []byte{0x00, 0xff, 0x10, '\n', 0x00}
	require.NoError(t, b.Set(ctx, "ns:bin", payload, 0))
	got, ok, err := b.Get(ctx, "ns:bin")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, payload, got)
}

func testTTLExpires(t *testing.T, b backend.Backend) {
	ctx := context.Background()
	require.NoError(t, b.Set(ctx, "ns:short", []byte("v"), 50*time.Millisecond))
	expire(t, b, 50*time.Millisecond)
	_, ok, err := b.Get(ctx, "ns:short")
	require.NoError(t, err)
	assert.False(t, ok, "value should be gone after its ttl")
}

func testNoExpiry(t *testing.T, b backend.Backend) {
	ctx := context.Background()
	require.NoError(t, b.Set(ctx, "ns:zero", []byte("v"), 0))
	require.NoError(t, b.Set(ctx, "ns:neg", []byte("v"), -time.Second))
	expire(t, b, time.Second)
	for _, k := range []string{"ns:zero", "ns:neg"} {
		_, ok, err := b.Get(ctx, k)
		require.NoError(t, err)
		assert.True(t, ok, "%s should not expire", k)
	}
}

func testSetNX(t *testing.T, b backend.Backend) {
	ctx := context.Background()
	ok, err := b.SetNX(ctx, "ns:lock", []byte("a"), time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = b.SetNX(ctx, "ns:lock", []byte("b"), time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	got, _, _ := b.Get(ctx, "ns:lock")
	assert.Equal(t, []byte("a"), got)
}

func testSetNXIsExclusive(t *testing.T, b backend.Backend) {
	ctx := context.Background()
	const workers = 32
	var wins atomic.Int32
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func(i int) {
			defer wg.Done()
			ok, err := b.SetNX(ctx, "ns:race", []byte(fmt.Sprint(i)), time.Minute)
			if err == nil && ok {
				wins.Add(1)
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins.Load())
}

func testDel(t *testing.T, b backend.Backend) {
	ctx := context.Background()
	require.NoError(t, b.Set(ctx, "ns:k", []byte("v"), 0))
	ok, err := b.Del(ctx, "ns:k")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = b.Del(ctx, "ns:k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func testDelMany(t *testing.T, b backend.Backend) {
	ctx := context.Background()
	require.NoError(t, b.Set(ctx, "ns:a", []byte("1"), 0))
	require.NoError(t, b.Set(ctx, "ns:b", []byte("2"), 0))
	n, err := b.DelMany(ctx, []string{"ns:a", "ns:b", "ns:c"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	n, err = b.DelMany(ctx, nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func testExists(t *testing.T, b backend.Backend) {
	ctx := context.Background()
	ok, err := b.Exists(ctx, "ns:k")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, b.Set(ctx, "ns:k", []byte{}, 0))
	ok, err = b.Exists(ctx, "ns:k")
	require.NoError(t, err)
	assert.True(t, ok, "an empty value still exists")
}

func testKeysByPattern(t *testing.T, b backend.Backend) {
	ctx := context.Background()
	for _, k := range []string{"users:1", "users:2", "usersx:3", "orders:1"} {
		require.NoError(t, b.Set(ctx, k, []byte("v"), 0))
	}
	_, err := b.RPush(ctx, "users:queue", []byte("x"))
	require.NoError(t, err)

	keys, err := b.Keys(ctx, "users:*")
	require.NoError(t, err)
	sort.Strings(keys)
	assert.Equal(t, []string{"users:1", "users:2", "users:queue"}, keys)

	keys, err = b.Keys(ctx, "nobody:*")
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func testCompareAndDelete(t *testing.T, b backend.Backend) {
	ctx := context.Background()
	require.NoError(t, b.Set(ctx, "ns:lease", []byte("token-a"), time.Minute))

	ok, err := b.CompareAndDelete(ctx, "ns:lease", []byte("token-b"))
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = b.CompareAndDelete(ctx, "ns:lease", []byte("token-a"))
	require.NoError(t, err)
	assert.True(t, ok)

	exists, err := b.Exists(ctx, "ns:lease")
	require.NoError(t, err)
	assert.False(t, exists)

	ok, err = b.CompareAndDelete(ctx, "ns:lease", []byte("token-a"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func testPushPop(t *testing.T, b backend.Backend) {
	ctx := context.Background()
	n, err := b.RPush(ctx, "ns:q", []byte("b"), []byte("c"))
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	n, err = b.LPush(ctx, "ns:q", []byte("a"))
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	v, ok, err := b.LPop(ctx, "ns:q")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("a"), v)

	v, ok, err = b.RPop(ctx, "ns:q")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("c"), v)

	_, _, _ = b.LPop(ctx, "ns:q")
	v, ok, err = b.LPop(ctx, "ns:q")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, v)

	n, err = b.LLen(ctx, "ns:q")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func testIndexAndRange(t *testing.T, b backend.Backend) {
	ctx := context.Background()
	_, err := b.RPush(ctx, "ns:l", []byte("a"), []byte("b"), []byte("c"))
	require.NoError(t, err)

	v, ok, err := b.LIndex(ctx, "ns:l", 0)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("a"), v)

	v, ok, err = b.LIndex(ctx, "ns:l", -1)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("c"), v)

	_, ok, err = b.LIndex(ctx, "ns:l", 7)
	require.NoError(t, err)
	assert.False(t, ok)

	all, err := b.LRange(ctx, "ns:l", 0, -1)
	require.NoError(t, err)
	assert.Equal(t, [][]byte{[]byte("a"), []byte("b"), []byte("c")}, all)

	none, err := b.LRange(ctx, "ns:empty", 0, -1)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func testLRem(t *testing.T, b backend.Backend) {
	ctx := context.Background()
	_, err := b.RPush(ctx, "ns:l", []byte("x"), []byte("y"), []byte("x"), []byte("x"))
	require.NoError(t, err)

	n, err := b.LRem(ctx, "ns:l", -1, []byte("x"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	all, _ := b.LRange(ctx, "ns:l", 0, -1)
	assert.Equal(t, [][]byte{[]byte("x"), []byte("y"), []byte("x")}, all)

	n, err = b.LRem(ctx, "ns:l", 0, []byte("x"))
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	all, _ = b.LRange(ctx, "ns:l", 0, -1)
	assert.Equal(t, [][]byte{[]byte("y")}, all)
}

func testLMove(t *testing.T, b backend.Backend) {
	ctx := context.Background()
	_, err := b.RPush(ctx, "ns:src", []byte("a"), []byte("b"))
	require.NoError(t, err)
	_, err = b.RPush(ctx, "ns:dst", []byte("z"))
	require.NoError(t, err)

	v, ok, err := b.LMove(ctx, "ns:src", "ns:dst")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("a"), v)

	src, _ := b.LRange(ctx, "ns:src", 0, -1)
	dst, _ := b.LRange(ctx, "ns:dst", 0, -1)
	assert.Equal(t, [][]byte{[]byte("b")}, src)
	assert.Equal(t, [][]byte{[]byte("z"), []byte("a")}, dst)

	_, ok, err = b.LMove(ctx, "ns:nothing", "ns:dst")
	require.NoError(t, err)
	assert.False(t, ok)
}

func testLMoveSelf(t *testing.T, b backend.Backend) {
	ctx := context.Background()
	_, err := b.RPush(ctx, "ns:ring", []byte("1"), []byte("2"), []byte("3"))
	require.NoError(t, err)

	v, ok, err := b.LMove(ctx, "ns:ring", "ns:ring")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("1"), v)

	all, _ := b.LRange(ctx, "ns:ring", 0, -1)
	assert.Equal(t, [][]byte{[]byte("2"), []byte("3"), []byte("1")}, all)
}

func testLReplace(t *testing.T, b backend.Backend) {
	ctx := context.Background()
	_, err := b.RPush(ctx, "ns:l", []byte("old1"), []byte("old2"))
	require.NoError(t, err)

	require.NoError(t, b.LReplace(ctx, "ns:l", [][]byte{[]byte("new")}))
	all, _ := b.LRange(ctx, "ns:l", 0, -1)
	assert.Equal(t, [][]byte{[]byte("new")}, all)

	require.NoError(t, b.LReplace(ctx, "ns:l", nil))
	n, err := b.LLen(ctx, "ns:l")
	require.NoError(t, err)
	assert.Zero(t, n)
}

// Clock-driven backends can be advanced instead of slept on.
type fastForwarder interface {
	FastForward(d time.Duration)
}

// expire moves time past d: instantly for backends that can fast-forward,
// otherwise by sleeping.
func expire(t *testing.T, b backend.Backend, d time.Duration) {
	t.Helper()
	if ff, ok := b.(fastForwarder); ok {
		ff.FastForward(d)
		return
	}
	time.Sleep(d + 20*time.Millisecond)
}

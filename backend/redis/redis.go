package redis

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/unkn0wn-root/fallcache/backend"
)

var ErrNilClient = errors.New("redis backend: nil client")

// scanCount is the COUNT hint passed to SCAN when listing keys.
const scanCount = 512

// compareAndDelete deletes KEYS[1] only while it still holds ARGV[1].
var compareAndDelete = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type Redis struct {
	rdb         goredis.UniversalClient
	closeClient bool
}

var _ backend.Backend = (*Redis)(nil)

type Config struct {
	Client      goredis.UniversalClient
	CloseClient bool // set true only if this backend exclusively owns the client
}

func New(cfg Config) (*Redis, error) {
	if cfg.Client == nil {
		return nil, ErrNilClient
	}
	return &Redis{rdb: cfg.Client, closeClient: cfg.CloseClient}, nil
}

// FromURL builds a backend that owns a client parsed from a redis:// or
// rediss:// URL. No connection is attempted here; fallcache's startup probe
// decides whether the server is usable.
func FromURL(rawURL string) (*Redis, error) {
	opt, err := goredis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("redis backend: parse url: %w", err)
	}
	return New(Config{Client: goredis.NewClient(opt), CloseClient: true})
}

func (p *Redis) Get(ctx context.Context, key string) ([]byte, bool, error) {
	b, err := p.rdb.Get(ctx, key).Bytes()
	if err == goredis.Nil {
		return nil, false, nil // miss
	}
	if err != nil {
		return nil, false, err // transport/server error
	}
	return b, true, nil
}

func (p *Redis) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return p.rdb.Set(ctx, key, value, expiration(ttl)).Err()
}

func (p *Redis) SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	return p.rdb.SetNX(ctx, key, value, expiration(ttl)).Result()
}

func (p *Redis) Del(ctx context.Context, key string) (bool, error) {
	n, err := p.rdb.Del(ctx, key).Result()
	return n > 0, err
}

// DelMany removes keys in one DEL. On a cluster client the keys may span hash
// slots, so each gets its own DEL in a pipeline the client routes per slot.
func (p *Redis) DelMany(ctx context.Context, keys []string) (int64, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	if _, ok := p.rdb.(*goredis.ClusterClient); !ok {
		return p.rdb.Del(ctx, keys...).Result()
	}
	cmds, err := p.rdb.Pipelined(ctx, func(pipe goredis.Pipeliner) error {
		for _, k := range keys {
			pipe.Del(ctx, k)
		}
		return nil
	})
	var n int64
	for _, cmd := range cmds {
		if c, ok := cmd.(*goredis.IntCmd); ok {
			n += c.Val()
		}
	}
	return n, err
}

func (p *Redis) Exists(ctx context.Context, key string) (bool, error) {
	n, err := p.rdb.Exists(ctx, key).Result()
	return n > 0, err
}

// Keys walks the keyspace with SCAN rather than KEYS so a large database is
// never blocked by one call. A cluster client is scanned master by master,
// since SCAN only sees the node it is sent to.
func (p *Redis) Keys(ctx context.Context, pattern string) ([]string, error) {
	cc, ok := p.rdb.(*goredis.ClusterClient)
	if !ok {
		return scan(ctx, p.rdb, pattern)
	}
	var (
		mu  sync.Mutex
		out []string
	)
	err := cc.ForEachMaster(ctx, func(ctx context.Context, node *goredis.Client) error {
		keys, err := scan(ctx, node, pattern)
		if err != nil {
			return err
		}
		mu.Lock()
		out = append(out, keys...)
		mu.Unlock()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func scan(ctx context.Context, c goredis.Cmdable, pattern string) ([]string, error) {
	var (
		out    []string
		cursor uint64
	)
	for {
		keys, next, err := c.Scan(ctx, cursor, pattern, scanCount).Result()
		if err != nil {
			return nil, err
		}
		out = append(out, keys...)
		if next == 0 {
			return out, nil
		}
		cursor = next
	}
}

func (p *Redis) CompareAndDelete(ctx context.Context, key string, expected []byte) (bool, error) {
	n, err := compareAndDelete.Run(ctx, p.rdb, []string{key}, expected).Int64()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (p *Redis) LPush(ctx context.Context, key string, values ...[]byte) (int64, error) {
	if len(values) == 0 {
		return p.rdb.LLen(ctx, key).Result()
	}
	return p.rdb.LPush(ctx, key, toArgs(values)...).Result()
}

func (p *Redis) RPush(ctx context.Context, key string, values ...[]byte) (int64, error) {
	if len(values) == 0 {
		return p.rdb.LLen(ctx, key).Result()
	}
	return p.rdb.RPush(ctx, key, toArgs(values)...).Result()
}

func (p *Redis) LPop(ctx context.Context, key string) ([]byte, bool, error) {
	return bytesResult(p.rdb.LPop(ctx, key).Bytes())
}

func (p *Redis) RPop(ctx context.Context, key string) ([]byte, bool, error) {
	return bytesResult(p.rdb.RPop(ctx, key).Bytes())
}

func (p *Redis) LIndex(ctx context.Context, key string, index int64) ([]byte, bool, error) {
	return bytesResult(p.rdb.LIndex(ctx, key, index).Bytes())
}

func (p *Redis) LRange(ctx context.Context, key string, start, stop int64) ([][]byte, error) {
	vals, err := p.rdb.LRange(ctx, key, start, stop).Result()
	if err != nil {
		return nil, err
	}
	out := make([][]byte, len(vals))
	for i, v := range vals {
		out[i] = []byte(v)
	}
	return out, nil
}

func (p *Redis) LLen(ctx context.Context, key string) (int64, error) {
	return p.rdb.LLen(ctx, key).Result()
}

func (p *Redis) LRem(ctx context.Context, key string, count int64, value []byte) (int64, error) {
	return p.rdb.LRem(ctx, key, count, value).Result()
}

func (p *Redis) LMove(ctx context.Context, src, dst string) ([]byte, bool, error) {
	return bytesResult(p.rdb.LMove(ctx, src, dst, "LEFT", "RIGHT").Bytes())
}

// LReplace runs DEL and RPUSH inside MULTI/EXEC so readers never observe a
// half-written list.
func (p *Redis) LReplace(ctx context.Context, key string, values [][]byte) error {
	_, err := p.rdb.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.Del(ctx, key)
		if len(values) > 0 {
			pipe.RPush(ctx, key, toArgs(values)...)
		}
		return nil
	})
	return err
}

// Close releases the underlying redis client only when this backend owns it.
// Safe to call multiple times; repeated calls become no-ops.
func (p *Redis) Close(context.Context) error {
	if p.closeClient {
		if err := p.rdb.Close(); err != nil && !errors.Is(err, goredis.ErrClosed) {
			return err
		}
	}
	return nil
}

func expiration(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return 0 // no expiry per backend contract
	}
	return ttl
}

func bytesResult(b []byte, err error) ([]byte, bool, error) {
	if err == goredis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

func toArgs(values [][]byte) []any {
	args := make([]any, len(values))
	for i, v := range values {
		args[i] = v
	}
	return args
}

package llm

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"
	"time"

	"github.com/go-redis/redis/v8"
)

// ResponseCache stores raw model answers by prompt key. A miss is ("", false, nil).
type ResponseCache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
}

// CachingInvoker serves repeated prompts from a ResponseCache. Cache failures
// are logged and the call goes through to the wrapped invoker.
type CachingInvoker struct {
	next   Invoker
	cache  ResponseCache
	logger *slog.Logger
}

func NewCachingInvoker(next Invoker, cache ResponseCache, logger *slog.Logger) *CachingInvoker {
	if logger == nil {
		logger = slog.Default()
	}
	return &CachingInvoker{next: next, cache: cache, logger: logger}
}

var _ Invoker = (*CachingInvoker)(nil)

func (c *CachingInvoker) Model() string { return c.next.Model() }

func (c *CachingInvoker) Invoke(ctx context.Context, p Prompt) (string, error) {
	key := CacheKey(c.next.Model(), p)

	if v, ok, err := c.cache.Get(ctx, key); err != nil {
		c.logger.Warn("llm.cache.get_failed", "error", err)
	} else if ok {
		c.logger.Debug("llm.cache.hit", "key", key[:12])
		return v, nil
	}

	resp, err := c.next.Invoke(ctx, p)
	if err != nil {
		return "", err
	}
	// only answers that contain JSON are worth replaying
	if _, ok := LocateJSON(resp); ok {
		if err := c.cache.Set(ctx, key, resp); err != nil {
			c.logger.Warn("llm.cache.set_failed", "error", err)
		}
	}
	return resp, nil
}

// CacheKey is sha256(model + prompt text), hex encoded.
func CacheKey(model string, p Prompt) string {
	h := sha256.New()
	h.Write([]byte(model))
	h.Write([]byte{0})
	h.Write([]byte(p.Text()))
	return hex.EncodeToString(h.Sum(nil))
}

// RedisCache keeps responses in Redis under a prefix with a TTL.
type RedisCache struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisCache(rdb *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{rdb: rdb, prefix: "receipt-analyzer:llm:", ttl: ttl}
}

func (r *RedisCache) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := r.rdb.Get(ctx, r.prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (r *RedisCache) Set(ctx context.Context, key, value string) error {
	return r.rdb.Set(ctx, r.prefix+key, value, r.ttl).Err()
}

// NewRedisClient connects and pings Redis.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, err
	}
	return rdb, nil
}

package watermark

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dl-alexandre/gdrvflow/internal/logging"
	"github.com/redis/go-redis/v9"
)

// DefaultKeyPrefix namespaces watermark keys when no prefix is configured.
const DefaultKeyPrefix = "gdrvflow:wm:"

// RedisClient is the subset of *redis.Client the store uses.
type RedisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Close() error
}

type redisKV struct {
	client RedisClient
	prefix string
}

// OpenRedis connects to redisURL and verifies it with a ping.
func OpenRedis(ctx context.Context, redisURL, prefix string, logger logging.Logger) (Store, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, storeError("parse redis url", fmt.Errorf("invalid redis url: %w", err))
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, storeError("redis ping", err)
	}
	return NewRedisStore(client, prefix, logger), nil
}

// NewRedisStore wraps an existing client. Keys are prefix+scopeKey.
func NewRedisStore(client RedisClient, prefix string, logger logging.Logger) Store {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return newGuarded("redis", &redisKV{client: client, prefix: prefix}, logger)
}

func (r *redisKV) get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return val, true, nil
}

func (r *redisKV) put(ctx context.Context, key string, value []byte) error {
	return r.client.Set(ctx, r.prefix+key, value, 0).Err()
}

func (r *redisKV) del(ctx context.Context, key string) error {
	return r.client.Del(ctx, r.prefix+key).Err()
}

func (r *redisKV) close() error {
	return r.client.Close()
}

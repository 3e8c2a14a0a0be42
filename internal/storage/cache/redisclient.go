package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const pingTimeout = 2 * time.Second

// RedisOptions locates the Redis instance.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
}

// RedisClient backs two stores: the registry's device list cache (CacheClient)
// and the device-side token KV (local.KeyValue).
type RedisClient struct {
	rdb *redis.Client
}

// NewRedisClient connects and pings once; an unreachable server is an error.
func NewRedisClient(ctx context.Context, opts RedisOptions) (*RedisClient, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis %s unreachable: %w", opts.Addr, err)
	}
	return &RedisClient{rdb: rdb}, nil
}

// LoadJSON decodes the value at key into dest. hit is false on a miss.
func (c *RedisClient) LoadJSON(ctx context.Context, key string, dest any) (bool, error) {
	raw, ok, err := c.Lookup(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal([]byte(raw), dest); err != nil {
		return false, fmt.Errorf("decode cached %s: %w", key, err)
	}
	return true, nil
}

// SaveJSON encodes value and stores it at key for ttl.
func (c *RedisClient) SaveJSON(ctx context.Context, key string, value any, ttl time.Duration) error {
	encoded, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return c.rdb.Set(ctx, key, encoded, ttl).Err()
}

func (c *RedisClient) Lookup(ctx context.Context, key string) (string, bool, error) {
	val, err := c.rdb.Get(ctx, key).Result()
	switch {
	case errors.Is(err, redis.Nil):
		return "", false, nil
	case err != nil:
		return "", false, err
	}
	return val, true, nil
}

// Store writes a raw string with no expiry.
func (c *RedisClient) Store(ctx context.Context, key, value string) error {
	return c.rdb.Set(ctx, key, value, 0).Err()
}

func (c *RedisClient) Del(ctx context.Context, key string) error {
	return c.rdb.Del(ctx, key).Err()
}

func (c *RedisClient) Close() error {
	return c.rdb.Close()
}

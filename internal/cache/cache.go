package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/fxmarket/forex-marketplace/internal/observability"
	"github.com/redis/go-redis/v9"
)

// Cache is the read-through cache contract used by the services: cached
// reads with a loader fallback plus explicit write-time invalidation.
type Cache interface {
	GetOrSet(ctx context.Context, key string, ttl time.Duration, dest any, loader func(ctx context.Context) (any, error)) error
	Delete(ctx context.Context, keys ...string) error
	InvalidatePattern(ctx context.Context, prefix string) error
}

// Key builders shared by services and tests.
func OrderKey(orderID string) string           { return "order:" + orderID }
func OrdersByUserKey(userID string) string     { return "orders:user:" + userID }
func WalletKey(userID, currency string) string { return "wallet:" + userID + ":" + currency }
func WalletsByUserKey(userID string) string    { return "wallets:user:" + userID }

// RedisCache backs the Cache contract with Redis. Values are stored as JSON.
type RedisCache struct {
	client redis.Cmdable
}

func NewRedis(client redis.Cmdable) *RedisCache {
	return &RedisCache{client: client}
}

// GetOrSet returns the cached value for key into dest, or invokes loader,
// stores its result under key with the given ttl, and decodes it into dest.
func (c *RedisCache) GetOrSet(ctx context.Context, key string, ttl time.Duration, dest any, loader func(ctx context.Context) (any, error)) error {
	val, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		if unmarshalErr := json.Unmarshal(val, dest); unmarshalErr == nil {
			observability.IncrementCacheEvent("hit")
			return nil
		}
		// A corrupt entry falls through to the loader and gets rewritten.
	} else if !errors.Is(err, redis.Nil) {
		observability.IncrementCacheEvent("error")
		return fmt.Errorf("cache get %s: %w", key, err)
	}
	observability.IncrementCacheEvent("miss")

	loaded, err := loader(ctx)
	if err != nil {
		return err
	}

	encoded, err := json.Marshal(loaded)
	if err != nil {
		return fmt.Errorf("cache encode %s: %w", key, err)
	}
	if err := c.client.Set(ctx, key, encoded, ttl).Err(); err != nil {
		return fmt.Errorf("cache set %s: %w", key, err)
	}
	return json.Unmarshal(encoded, dest)
}

// Delete removes the given keys. Missing keys are not an error.
func (c *RedisCache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("cache delete: %w", err)
	}
	return nil
}

// InvalidatePattern removes every key starting with prefix via SCAN.
func (c *RedisCache) InvalidatePattern(ctx context.Context, prefix string) error {
	var cursor uint64
	for {
		keys, next, err := c.client.Scan(ctx, cursor, prefix+"*", 100).Result()
		if err != nil {
			return fmt.Errorf("cache scan %s: %w", prefix, err)
		}
		if len(keys) > 0 {
			if err := c.client.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("cache delete %s: %w", prefix, err)
			}
		}
		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}

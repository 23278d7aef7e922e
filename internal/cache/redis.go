package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mmynk/tripledger/internal/models"
)

const keyPrefix = "tripledger:balances:"

var _ BalanceCache = (*RedisCache)(nil)

// RedisCache keeps one JSON-encoded balance sheet per trip in Redis.
type RedisCache struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewRedisCache wraps an existing client. A zero ttl keeps entries until
// they are invalidated.
func NewRedisCache(client redis.UniversalClient, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl}
}

// Dial connects to addr and verifies the connection with PING.
func Dial(ctx context.Context, addr string, ttl time.Duration) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return NewRedisCache(client, ttl), nil
}

func key(tripID string) string {
	return keyPrefix + tripID
}

// Get returns a hit only when the stored sheet matches version.
func (c *RedisCache) Get(ctx context.Context, tripID string, version int64) (*models.BalanceSheet, bool, error) {
	data, err := c.client.Get(ctx, key(tripID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read cached balances: %w", err)
	}

	var sheet models.BalanceSheet
	if err := json.Unmarshal(data, &sheet); err != nil {
		return nil, false, fmt.Errorf("failed to decode cached balances: %w", err)
	}
	if sheet.Version != version {
		return nil, false, nil
	}
	return &sheet, true, nil
}

// Set stores the sheet, replacing any older version.
func (c *RedisCache) Set(ctx context.Context, sheet *models.BalanceSheet) error {
	data, err := json.Marshal(sheet)
	if err != nil {
		return fmt.Errorf("failed to encode balances: %w", err)
	}
	if err := c.client.Set(ctx, key(sheet.TripID), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache balances: %w", err)
	}
	return nil
}

// Invalidate deletes the trip's entry.
func (c *RedisCache) Invalidate(ctx context.Context, tripID string) error {
	if err := c.client.Del(ctx, key(tripID)).Err(); err != nil {
		return fmt.Errorf("failed to invalidate balances: %w", err)
	}
	return nil
}

// Close closes the underlying client.
func (c *RedisCache) Close() error {
	return c.client.Close()
}

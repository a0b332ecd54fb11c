package redisclient

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

type Client struct {
	rdb *redis.Client
}

// NewClient creates a new Redis client
func NewClient(addr, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Client{rdb: rdb}, nil
}

// GetClient returns the underlying Redis client
func (c *Client) GetClient() *redis.Client {
	return c.rdb
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

func distanceKey(oLat, oLng, dLat, dLng float64) string {
	// 4 decimals (~11m) is enough resolution for a routing cache key
	return fmt.Sprintf("distance:%.4f,%.4f:%.4f,%.4f", oLat, oLng, dLat, dLng)
}

// GetCachedDistance returns a previously cached routing distance in km.
func (c *Client) GetCachedDistance(ctx context.Context, oLat, oLng, dLat, dLng float64) (float64, bool, error) {
	val, err := c.rdb.Get(ctx, distanceKey(oLat, oLng, dLat, dLng)).Result()
	if err == redis.Nil {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}

	km, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return 0, false, fmt.Errorf("corrupt distance cache entry: %w", err)
	}
	return km, true, nil
}

// SetCachedDistance caches a routing distance with a TTL.
func (c *Client) SetCachedDistance(ctx context.Context, oLat, oLng, dLat, dLng, km float64, ttl time.Duration) error {
	return c.rdb.Set(ctx, distanceKey(oLat, oLng, dLat, dLng),
		strconv.FormatFloat(km, 'f', 2, 64), ttl).Err()
}

// SetIdempotencyKey stores an idempotency key with TTL
func (c *Client) SetIdempotencyKey(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	return c.rdb.Set(ctx, fmt.Sprintf("idempotency:%s", key), value, ttl).Err()
}

// GetIdempotencyKey returns the stored value for an idempotency key, if any
func (c *Client) GetIdempotencyKey(ctx context.Context, key string) (string, bool, error) {
	val, err := c.rdb.Get(ctx, fmt.Sprintf("idempotency:%s", key)).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}


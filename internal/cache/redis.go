package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/tmpim/krist/pkg/config"
	"github.com/tmpim/krist/pkg/logging"
)

var (
	// ErrMiss is returned when a key does not exist
	ErrMiss = errors.New("cache miss")
)

// Cache wraps the Redis client used as the node's fast ephemeral store.
// All keys are namespaced with the configured prefix.
type Cache struct {
	client *redis.Client
	prefix string
}

// New creates a new Redis cache client
func New(cfg *config.RedisConfig) (*Cache, error) {
	opt, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logging.GetLogger().Info("Redis connection established")

	return NewFromClient(client, cfg.Prefix), nil
}

// NewFromClient wraps an existing client
func NewFromClient(client *redis.Client, prefix string) *Cache {
	return &Cache{client: client, prefix: prefix}
}

func (c *Cache) namespaceKey(key string) string {
	return c.prefix + key
}

// Get retrieves a value. Missing keys return ErrMiss.
func (c *Cache) Get(ctx context.Context, key string) (string, error) {
	val, err := c.client.Get(ctx, c.namespaceKey(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrMiss
	}
	return val, err
}

// Set sets a value with TTL; a zero TTL keeps the key forever
func (c *Cache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	return c.client.Set(ctx, c.namespaceKey(key), value, ttl).Err()
}

// SetNX sets a value only if the key does not exist yet
func (c *Cache) SetNX(ctx context.Context, key string, value interface{}, ttl time.Duration) (bool, error) {
	return c.client.SetNX(ctx, c.namespaceKey(key), value, ttl).Result()
}

// Take reads and deletes a key in one MULTI block
func (c *Cache) Take(ctx context.Context, key string) (string, error) {
	var get *redis.StringCmd
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		get = pipe.Get(ctx, c.namespaceKey(key))
		pipe.Del(ctx, c.namespaceKey(key))
		return nil
	})
	if errors.Is(err, redis.Nil) {
		return "", ErrMiss
	}
	if err != nil {
		return "", err
	}
	return get.Val(), nil
}

// Delete removes a key
func (c *Cache) Delete(ctx context.Context, key string) error {
	return c.client.Del(ctx, c.namespaceKey(key)).Err()
}

// LPush pushes values onto the head of a list
func (c *Cache) LPush(ctx context.Context, key string, values ...interface{}) error {
	return c.client.LPush(ctx, c.namespaceKey(key), values...).Err()
}

// LTrim trims a list to the inclusive range [start, stop]
func (c *Cache) LTrim(ctx context.Context, key string, start, stop int64) error {
	return c.client.LTrim(ctx, c.namespaceKey(key), start, stop).Err()
}

// LRange returns the inclusive range [start, stop] of a list
func (c *Cache) LRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	return c.client.LRange(ctx, c.namespaceKey(key), start, stop).Result()
}

// Close closes the Redis connection
func (c *Cache) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

// Health checks Redis health
func (c *Cache) Health(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

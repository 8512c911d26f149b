package redis

import (
	"context"
	"fmt"
	"time"

	redis "github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/alphalens/alphalens/internal/adapters/config"
	"github.com/alphalens/alphalens/pkg/logger"
)

// Client wraps a Redis connection used as a short-TTL read-through
// cache for provider responses
type Client struct {
	cache *redis.Client
}

// New creates new Redis client
func New(cfg *config.RedisConfig) (*Client, error) {
	cache := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := cache.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info("redis cache client initialized",
		zap.String("address", fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)),
		zap.Int("db", cfg.DB),
	)

	return &Client{cache: cache}, nil
}

// Get returns the cached value for key, or ("", false) on miss.
// Redis errors are treated as misses: the cache is an optimization,
// never a dependency.
func (c *Client) Get(ctx context.Context, key string) (string, bool) {
	val, err := c.cache.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", false
	}
	if err != nil {
		logger.Debug("redis get failed", zap.String("key", key), zap.Error(err))
		return "", false
	}
	return val, true
}

// Set stores value under key with the given TTL
func (c *Client) Set(ctx context.Context, key, value string, ttl time.Duration) {
	if err := c.cache.Set(ctx, key, value, ttl).Err(); err != nil {
		logger.Debug("redis set failed", zap.String("key", key), zap.Error(err))
	}
}

// Health checks the connection
func (c *Client) Health() error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := c.cache.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis health check failed: %w", err)
	}
	return nil
}

// Close closes the connection
func (c *Client) Close() error {
	return c.cache.Close()
}

package redis

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/burugo/tenantdb"
	"github.com/burugo/tenantdb/common"
)

const pingTimeout = 5 * time.Second

// client implements tenantdb.CacheStore using Redis.
// The counters field tracks operation statistics for monitoring (thread-safe).
type client struct {
	redisClient       *redis.Client  // Underlying Redis client
	logger            *zap.Logger
	mu                sync.Mutex     // Protects counters map
	counters          map[string]int // Operation counters for stats (e.g., "Get", "GetMiss")
	createdInternally bool           // Indicates whether redisClient was created by this struct
}

// Ensure client implements tenantdb.CacheStore and io.Closer.
var (
	_ tenantdb.CacheStore = (*client)(nil)
	_ io.Closer           = (*client)(nil)
)

// Store is a Redis-backed tenantdb.CacheStore that must be closed.
type Store interface {
	tenantdb.CacheStore
	io.Closer
}

// Options holds configuration for the Redis client.
type Options struct {
	Addr     string
	Password string
	DB       int
	// Ping verifies the server at construction and fails NewClient when unreachable.
	Ping   bool
	Logger *zap.Logger
}

// incrementCounter safely increments a named operation counter.
func (c *client) incrementCounter(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.counters == nil {
		c.counters = make(map[string]int)
	}
	c.counters[name]++
}

// NewClient creates a new Redis cache store.
// If redisCli is not nil, it is used directly and never closed by the store.
// Otherwise opts are used to create a new client.
func NewClient(redisCli *redis.Client, opts *Options) (Store, error) {
	if opts == nil {
		opts = &Options{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	rdb := redisCli
	createdInternally := false
	if rdb == nil {
		rdb = redis.NewClient(&redis.Options{
			Addr:     opts.Addr,
			Password: opts.Password,
			DB:       opts.DB,
		})
		createdInternally = true
	}

	if opts.Ping {
		ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
		defer cancel()
		if err := rdb.Ping(ctx).Err(); err != nil {
			if createdInternally {
				_ = rdb.Close()
			}
			return nil, fmt.Errorf("failed to ping redis: %w", err)
		}
	}

	logger.Info("redis cache store initialized", zap.String("addr", rdb.Options().Addr))
	return &client{
		redisClient:       rdb,
		logger:            logger,
		counters:          make(map[string]int),
		createdInternally: createdInternally,
	}, nil
}

// Close implements io.Closer. Only closes redisClient if it was created by NewClient.
func (c *client) Close() error {
	if c.createdInternally && c.redisClient != nil {
		return c.redisClient.Close()
	}
	return nil
}

// Get retrieves a raw string value from Redis.
func (c *client) Get(ctx context.Context, key string) (string, error) {
	c.incrementCounter("Get") // total calls
	val, err := c.redisClient.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		c.incrementCounter("GetMiss")
		return "", common.ErrNotFound
	} else if err != nil {
		c.incrementCounter("GetError")
		return "", fmt.Errorf("redis Get error for key '%s': %w", key, err)
	}
	c.incrementCounter("GetHit")
	return val, nil
}

// Set stores a raw string value in Redis.
func (c *client) Set(ctx context.Context, key string, value string, expiration time.Duration) error {
	c.incrementCounter("Set")
	if err := c.redisClient.Set(ctx, key, value, expiration).Err(); err != nil {
		c.incrementCounter("SetError")
		return fmt.Errorf("redis Set error for key '%s': %w", key, err)
	}
	return nil
}

// Delete removes a key from Redis. A missing key is not an error.
func (c *client) Delete(ctx context.Context, key string) error {
	c.incrementCounter("Delete")
	err := c.redisClient.Del(ctx, key).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		c.incrementCounter("DeleteError")
		return fmt.Errorf("redis Del error for key '%s': %w", key, err)
	}
	return nil
}

// IsConnected pings Redis.
func (c *client) IsConnected(ctx context.Context) bool {
	c.incrementCounter("IsConnected")
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := c.redisClient.Ping(ctx).Err(); err != nil {
		c.logger.Debug("redis not reachable", zap.Error(err))
		return false
	}
	return true
}

// GetCacheStats returns a snapshot of cache operation counters for monitoring.
// The returned map is a copy and safe for concurrent use.
func (c *client) GetCacheStats(ctx context.Context) tenantdb.CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	stats := make(map[string]int, len(c.counters))
	for k, v := range c.counters {
		stats[k] = v
	}
	return tenantdb.CacheStats{Counters: stats}
}

package database

import (
	"context"
	"fmt"
	"time"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/redis/go-redis/v9"
)

// RedisClient owns the process-wide Redis connection pool. It is created
// once at startup, handed to the stores that need it and closed on
// shutdown.
type RedisClient struct {
	Client *redis.Client
	log    *log.Helper
}

type RedisOptions struct {
	URL      string
	PoolSize int
}

func NewRedisClient(ctx context.Context, opts RedisOptions, logger log.Logger) (*RedisClient, error) {
	helper := log.NewHelper(log.With(logger, "module", "database/redis"))

	redisOpts, err := redis.ParseURL(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	if opts.PoolSize > 0 {
		redisOpts.PoolSize = opts.PoolSize
	}
	redisOpts.DialTimeout = 5 * time.Second

	client := redis.NewClient(redisOpts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}

	helper.Infow("msg", "connected to Redis", "addr", redisOpts.Addr, "db", redisOpts.DB, "pool_size", redisOpts.PoolSize)
	return &RedisClient{Client: client, log: helper}, nil
}

// Ping is used by the health endpoint.
func (c *RedisClient) Ping(ctx context.Context) error {
	return c.Client.Ping(ctx).Err()
}

func (c *RedisClient) Close() {
	if c == nil || c.Client == nil {
		return
	}
	if err := c.Client.Close(); err != nil {
		c.log.Errorw("msg", "error closing Redis client", "error", err)
		return
	}
	c.log.Info("Redis connection closed")
}

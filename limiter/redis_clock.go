package limiter

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultRedisClockTimeout = 50 * time.Millisecond

type RedisClient interface {
	Time(ctx context.Context) (time.Time, error)
	Ping(ctx context.Context) error
}

type RedisClientImpl struct {
	c *redis.Client
}

func NewRedisClient(addr string, opts ...func(*redis.Options)) *RedisClientImpl {
	ro := &redis.Options{Addr: addr}
	for _, f := range opts {
		f(ro)
	}

	r := redis.NewClient(ro)
	return &RedisClientImpl{c: r}
}

func (r *RedisClientImpl) Time(ctx context.Context) (time.Time, error) {
	res := r.c.Time(ctx)
	return res.Result()
}

func (r *RedisClientImpl) Ping(ctx context.Context) error {
	if err := r.c.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

func (r *RedisClientImpl) Close() error {
	return r.c.Close()
}

// RedisClock reads time from the Redis server so that limiters in several
// processes share one time base. When Redis cannot answer within the timeout
// the fallback clock is used.
type RedisClock struct {
	client   RedisClient
	timeout  time.Duration
	fallback Clock
	logger   *slog.Logger
}

func NewRedisClock(client RedisClient, timeout time.Duration, logger *slog.Logger) *RedisClock {
	if timeout <= 0 {
		timeout = defaultRedisClockTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisClock{
		client:   client,
		timeout:  timeout,
		fallback: SystemClock{},
		logger:   logger,
	}
}

func (c *RedisClock) NextTickInMs() int64 {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	t, err := c.client.Time(ctx)
	if err != nil {
		c.logger.Warn("redis clock unavailable, using fallback", "error", err)
		return c.fallback.NextTickInMs()
	}
	return t.UnixMilli()
}

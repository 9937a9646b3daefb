package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	fieldStart = "start"
	fieldCount = "count"
)

// RedisStore shares windows between instances. Each key is a hash holding
// the window start (unix ms) and the count, expiring after one window.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, prefix: "drivingschool:ratelimit:", ttl: ttl}
}

// DialRedis parses url, connects and pings.
func DialRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	c := redis.NewClient(opts)
	if err := c.Ping(ctx).Err(); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return c, nil
}

func (s *RedisStore) Get(ctx context.Context, key string) (Window, bool, error) {
	m, err := s.client.HGetAll(ctx, s.prefix+key).Result()
	if err != nil {
		return Window{}, false, fmt.Errorf("redis hgetall: %w", err)
	}
	rawStart, ok := m[fieldStart]
	if !ok {
		return Window{}, false, nil
	}
	ms, err := strconv.ParseInt(rawStart, 10, 64)
	if err != nil {
		return Window{}, false, nil
	}
	count, _ := strconv.Atoi(m[fieldCount])
	return Window{Start: time.UnixMilli(ms), Count: count}, true, nil
}

func (s *RedisStore) Increment(ctx context.Context, key string) (int, error) {
	n, err := s.client.HIncrBy(ctx, s.prefix+key, fieldCount, 1).Result()
	if err != nil {
		return 0, fmt.Errorf("redis hincrby: %w", err)
	}
	return int(n), nil
}

func (s *RedisStore) Reset(ctx context.Context, key string, start time.Time) error {
	k := s.prefix + key
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, k, fieldStart, start.UnixMilli(), fieldCount, 1)
		pipe.Expire(ctx, k, s.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis reset window: %w", err)
	}
	return nil
}

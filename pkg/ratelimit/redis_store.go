package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisPrefix namespaces repeat counters in Redis.
const DefaultRedisPrefix = "biofetch:downloads"

// RedisRepeatStore keeps repeat-download counts in Redis so they survive
// process restarts and are shared by every process using the same API key.
type RedisRepeatStore struct {
	redis  *redis.Client
	prefix string
}

// NewRedisRepeatStore creates a Redis-backed RepeatStore. An empty prefix uses
// DefaultRedisPrefix.
func NewRedisRepeatStore(redisClient *redis.Client, prefix string) *RedisRepeatStore {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisRepeatStore{
		redis:  redisClient,
		prefix: prefix,
	}
}

// Increment implements RepeatStore. The expiry is set on the first increment
// of a period and left untouched afterwards.
func (s *RedisRepeatStore) Increment(ctx context.Context, key string, period time.Duration) (int64, error) {
	fullKey := s.key(key)

	pipe := s.redis.TxPipeline()
	incr := pipe.Incr(ctx, fullKey)
	pttl := pipe.PTTL(ctx, fullKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("redis incr: %w", err)
	}

	count := incr.Val()

	// PTTL is -1 when the key exists without an expiry, which is the case
	// right after the first INCR of a period.
	if ttl := pttl.Val(); ttl < 0 {
		if err := s.redis.PExpire(ctx, fullKey, period).Err(); err != nil {
			return count, fmt.Errorf("redis expire: %w", err)
		}
	}

	return count, nil
}

// Reset clears the counter for key.
func (s *RedisRepeatStore) Reset(ctx context.Context, key string) error {
	if err := s.redis.Del(ctx, s.key(key)).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

func (s *RedisRepeatStore) key(key string) string {
	return s.prefix + ":" + key
}

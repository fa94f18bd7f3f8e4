package util

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RetryCounter 记录投递失败次数，并按指数退避限制重试时间
type RetryCounter struct {
	rdb  *redis.Client
	ttl  time.Duration
	base time.Duration
	max  time.Duration
}

func NewRetryCounter(rdb *redis.Client, ttl, base, max time.Duration) *RetryCounter {
	return &RetryCounter{rdb: rdb, ttl: ttl, base: base, max: max}
}

// IncrementAndGet increments the retry count for a given key and returns the new count
func (r *RetryCounter) IncrementAndGet(ctx context.Context, key string) (int64, error) {
	count, err := r.rdb.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}

	// Set expiration on first increment
	if count == 1 {
		r.rdb.Expire(ctx, key, r.ttl)
	}

	return count, nil
}

// Ready 是否已过退避时间
func (r *RetryCounter) Ready(ctx context.Context, key string, now time.Time) (bool, error) {
	raw, err := r.rdb.Get(ctx, formatNextKey(key)).Result()
	if err == redis.Nil {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	next, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return true, nil
	}
	return !now.Before(time.UnixMilli(next)), nil
}

// Failure 记录一次失败，返回下次允许重试前的等待时间
func (r *RetryCounter) Failure(ctx context.Context, key string, now time.Time) (time.Duration, error) {
	count, err := r.IncrementAndGet(ctx, FormatRetryKey(key))
	if err != nil {
		return 0, err
	}
	delay := BackoffDelay(r.base, r.max, count)
	next := now.Add(delay).UnixMilli()
	if err := r.rdb.Set(ctx, formatNextKey(key), next, r.ttl).Err(); err != nil {
		return 0, err
	}
	return delay, nil
}

// Reset resets the retry count
func (r *RetryCounter) Reset(ctx context.Context, key string) error {
	return r.rdb.Del(ctx, FormatRetryKey(key), formatNextKey(key)).Err()
}

// FormatRetryKey formats a retry key, e.g. retry:reminder:42
func FormatRetryKey(key string) string {
	return fmt.Sprintf("retry:%s", key)
}

func formatNextKey(key string) string {
	return fmt.Sprintf("retry:%s:next", key)
}

// BackoffDelay base * 2^(failures-1)，上限 max
func BackoffDelay(base, max time.Duration, failures int64) time.Duration {
	if failures <= 0 || base <= 0 {
		return 0
	}
	delay := base
	for i := int64(1); i < failures; i++ {
		delay *= 2
		if max > 0 && delay >= max {
			return max
		}
	}
	if max > 0 && delay > max {
		return max
	}
	return delay
}

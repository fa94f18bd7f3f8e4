package util

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Deduper 基于 Redis SetNX 的租约/去重锁
type Deduper struct {
	rdb    *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewDeduperWithLogger creates a deduper with logger support
func NewDeduperWithLogger(rdb *redis.Client, ttl time.Duration, logger *zap.Logger) *Deduper {
	return &Deduper{
		rdb:    rdb,
		ttl:    ttl,
		logger: logger,
	}
}

// Acquire 尝试获取 key 的租约，ttl 为 0 时使用默认 ttl。
// 返回 true 表示本次调用拿到租约。Redis 不可用时返回错误，由调用方决定是否跳过。
func (d *Deduper) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		ttl = d.ttl
	}
	ok, err := d.rdb.SetNX(ctx, "claim:"+key, 1, ttl).Result()
	if err != nil {
		if d.logger != nil {
			d.logger.Warn("Redis claim failed",
				zap.String("key", key),
				zap.Error(err),
			)
		}
		return false, fmt.Errorf("acquire %s: %w", key, err)
	}
	if !ok && d.logger != nil {
		d.logger.Debug("Claim already held", zap.String("key", key))
	}
	return ok, nil
}

// Release 释放租约（投递失败时调用，让下一轮可以重试）
func (d *Deduper) Release(ctx context.Context, key string) error {
	return d.rdb.Del(ctx, "claim:"+key).Err()
}

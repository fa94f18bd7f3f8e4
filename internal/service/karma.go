package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Malixamran-01/MissMinutes/internal/model"
	"github.com/Malixamran-01/MissMinutes/pkg/logger"
	"github.com/Malixamran-01/MissMinutes/pkg/metrics"
)

// KarmaPolicy 积分增量
type KarmaPolicy struct {
	Completed int64 // 完成一项任务，默认 +10
	Overdue   int64 // 逾期一项任务，默认 -5，可以为 0
}

func DefaultKarmaPolicy() KarmaPolicy {
	return KarmaPolicy{Completed: 10, Overdue: -5}
}

// 触发积分的事件（首次完成、逾期 CAS）只发生一次，upsert 失败时就地重试
const karmaAttempts = 3

// KarmaScorer UserStats 的唯一写入方
type KarmaScorer struct {
	stats      StatsStore
	clock      Clock
	policy     KarmaPolicy
	retryDelay time.Duration
	logger     *zap.Logger
}

func NewKarmaScorer(stats StatsStore, clock Clock, policy KarmaPolicy, logger *zap.Logger) *KarmaScorer {
	return &KarmaScorer{stats: stats, clock: clock, policy: policy, retryDelay: 100 * time.Millisecond, logger: logger}
}

// OnCompleted 完成计数 +1 并加分。每个任务只应调用一次，由 LifecycleEngine 保证。
func (k *KarmaScorer) OnCompleted(ctx context.Context, userID, orgID int64) (*model.UserStats, error) {
	return k.apply(ctx, "completed", userID, orgID, model.StatsDelta{Completed: 1, Karma: k.policy.Completed})
}

// OnOverdue 逾期计数 +1 并按策略扣分
func (k *KarmaScorer) OnOverdue(ctx context.Context, userID, orgID int64) (*model.UserStats, error) {
	return k.apply(ctx, "overdue", userID, orgID, model.StatsDelta{Overdue: 1, Karma: k.policy.Overdue})
}

// Stats 查询统计，不存在时返回全零
func (k *KarmaScorer) Stats(ctx context.Context, userID, orgID int64) (*model.UserStats, error) {
	return k.stats.GetStats(ctx, userID, orgID)
}

func (k *KarmaScorer) apply(ctx context.Context, event string, userID, orgID int64, delta model.StatsDelta) (*model.UserStats, error) {
	log := logger.WithTrace(ctx, k.logger)

	var (
		stats *model.UserStats
		err   error
	)
	for attempt := 1; ; attempt++ {
		stats, err = k.stats.UpsertStats(ctx, userID, orgID, delta, k.clock.Now())
		if err == nil || attempt == karmaAttempts || ctx.Err() != nil {
			break
		}
		log.Warn("Karma upsert failed, retrying",
			zap.String("event", event),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		select {
		case <-ctx.Done():
		case <-time.After(time.Duration(attempt) * k.retryDelay):
		}
	}
	if err != nil {
		log.Error("Failed to apply karma event",
			zap.String("event", event),
			zap.Int64("user_id", userID),
			zap.Int64("org_id", orgID),
			zap.Error(err),
		)
		return nil, fmt.Errorf("karma %s for user %d: %w", event, userID, err)
	}

	metrics.IncrementKarmaEvent(event)
	log.Info("Karma event applied",
		zap.String("event", event),
		zap.Int64("user_id", userID),
		zap.Int64("org_id", orgID),
		zap.Int64("karma", stats.Karma),
	)
	return stats, nil
}

package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/Malixamran-01/MissMinutes/internal/model"
	"github.com/Malixamran-01/MissMinutes/pkg/logger"
	"github.com/Malixamran-01/MissMinutes/pkg/metrics"
)

// DeliveryConfig 单条通知投递参数
type DeliveryConfig struct {
	Timeout  time.Duration // 单次投递超时，超时按失败处理
	ClaimTTL time.Duration // 租约有效期，覆盖"已投递但标记未落库"的窗口
}

func DefaultDeliveryConfig() DeliveryConfig {
	return DeliveryConfig{Timeout: 10 * time.Second, ClaimTTL: time.Hour}
}

type outcome int

const (
	outcomeSkipped outcome = iota
	outcomeSent
	outcomeFailed
)

// flagDelivery 投递一次并把标记 false -> true。
// 顺序：退避检查 -> 获取租约 -> 重新读取任务 -> 投递 -> CAS。
// 投递失败释放租约并记录退避，标记保持 false，下一轮重试。
type flagDelivery struct {
	job      string
	flag     model.Flag
	store    TaskStore
	notifier Notifier
	claims   Claimer
	backoff  Backoff
	clock    Clock
	cfg      DeliveryConfig
	logger   *zap.Logger

	key      func(taskID int64) string
	eligible func(t *model.Task, now time.Time) bool
	build    func(t *model.Task) model.Message
}

func flagValue(t *model.Task, flag model.Flag) bool {
	switch flag {
	case model.FlagReminderSent:
		return t.ReminderSent
	case model.FlagDeadlineNotified:
		return t.DeadlineNotified
	}
	return false
}

func (d *flagDelivery) deliver(ctx context.Context, taskID int64) outcome {
	key := d.key(taskID)
	log := logger.WithTrace(ctx, d.logger).With(zap.Int64("task_id", taskID), zap.String("key", key))
	now := d.clock.Now()

	ready, err := d.backoff.Ready(ctx, key, now)
	if err != nil {
		log.Warn("Backoff lookup failed, attempting delivery", zap.Error(err))
		ready = true
	}
	if !ready {
		log.Debug("Delivery in backoff, skipping")
		metrics.IncrementNotification(d.job, "skipped")
		return outcomeSkipped
	}

	claimed, err := d.claims.Acquire(ctx, key, d.cfg.ClaimTTL)
	if err != nil {
		log.Warn("Claim unavailable, skipping task this cycle", zap.Error(err))
		return outcomeSkipped
	}
	if !claimed {
		log.Debug("Task claimed by another cycle")
		return outcomeSkipped
	}

	task, err := d.store.GetTask(ctx, taskID)
	if err != nil {
		log.Error("Failed to reload task", zap.Error(err))
		d.release(ctx, log, key)
		return outcomeFailed
	}
	if flagValue(task, d.flag) || !d.eligible(task, now) {
		d.release(ctx, log, key)
		return outcomeSkipped
	}

	sendCtx, cancel := context.WithTimeout(ctx, d.cfg.Timeout)
	err = d.notifier.SendDirect(sendCtx, task.AssigneeID, d.build(task))
	cancel()
	if err != nil {
		delay, berr := d.backoff.Failure(ctx, key, now)
		if berr != nil {
			log.Warn("Failed to record delivery backoff", zap.Error(berr))
		}
		d.release(ctx, log, key)
		metrics.IncrementNotification(d.job, "failed")
		log.Warn("Delivery failed, will retry",
			zap.Int64("assignee_id", task.AssigneeID),
			zap.Duration("retry_after", delay),
			zap.Error(err),
		)
		return outcomeFailed
	}

	won, err := d.store.CompareAndSetFlag(ctx, task.ID, d.flag, false, true)
	if err != nil {
		// 租约不释放：在租约到期前不会重复投递
		log.Error("Delivered but failed to persist flag", zap.String("flag", string(d.flag)), zap.Error(err))
		metrics.IncrementNotification(d.job, "sent")
		return outcomeFailed
	}
	if err := d.backoff.Reset(ctx, key); err != nil {
		log.Warn("Failed to reset delivery backoff", zap.Error(err))
	}
	if !won {
		log.Warn("Flag already set by a concurrent writer", zap.String("flag", string(d.flag)))
		return outcomeSkipped
	}

	metrics.IncrementNotification(d.job, "sent")
	log.Info("Notification delivered",
		zap.String("flag", string(d.flag)),
		zap.Int64("assignee_id", task.AssigneeID),
	)
	return outcomeSent
}

func (d *flagDelivery) release(ctx context.Context, log *zap.Logger, key string) {
	if err := d.claims.Release(ctx, key); err != nil {
		log.Warn("Failed to release claim", zap.Error(err))
	}
}

// cycleStats 一轮轮询的计数
type cycleStats struct {
	candidates, sent, failed, skipped int
}

func (c *cycleStats) add(o outcome) {
	switch o {
	case outcomeSent:
		c.sent++
	case outcomeFailed:
		c.failed++
	case outcomeSkipped:
		c.skipped++
	}
}

func (c cycleStats) fields() []zap.Field {
	return []zap.Field{
		zap.Int("candidates", c.candidates),
		zap.Int("sent", c.sent),
		zap.Int("failed", c.failed),
		zap.Int("skipped", c.skipped),
	}
}

package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Malixamran-01/MissMinutes/internal/model"
	"github.com/Malixamran-01/MissMinutes/pkg/logger"
)

const DefaultEscalationInterval = 15 * time.Minute

// DeadlineEscalator 截止时间已过的任务发一次紧急通知，并记一次逾期
type DeadlineEscalator struct {
	store    TaskStore
	clock    Clock
	karma    *KarmaScorer
	delivery *flagDelivery
	logger   *zap.Logger
}

func NewDeadlineEscalator(
	store TaskStore,
	notifier Notifier,
	clock Clock,
	claims Claimer,
	backoff Backoff,
	karma *KarmaScorer,
	cfg DeliveryConfig,
	logger *zap.Logger,
) *DeadlineEscalator {
	return &DeadlineEscalator{
		store:  store,
		clock:  clock,
		karma:  karma,
		logger: logger,
		delivery: &flagDelivery{
			job:      "overdue",
			flag:     model.FlagDeadlineNotified,
			store:    store,
			notifier: notifier,
			claims:   claims,
			backoff:  backoff,
			clock:    clock,
			cfg:      cfg,
			logger:   logger,
			key:      overdueKey,
			eligible: escalatable,
			build:    OverdueMessage,
		},
	}
}

func (e *DeadlineEscalator) Name() string { return "escalation" }

func escalatable(t *model.Task, now time.Time) bool {
	return !t.DeadlineNotified && !t.Status.Terminal() && !now.Before(t.Deadline)
}

// RunOnce 一轮检查
func (e *DeadlineEscalator) RunOnce(ctx context.Context) error {
	log := logger.WithTrace(ctx, e.logger)
	now := e.clock.Now()
	log.Debug("Checking for overdue tasks...", zap.Time("now", now))

	tasks, err := e.store.ListTasks(ctx, model.TaskFilter{
		DeadlineNotified: model.Bool(false),
		ExcludeTerminal:  true,
		DueBy:            now,
	})
	if err != nil {
		log.Error("Failed to list overdue tasks", zap.Error(err))
		return fmt.Errorf("list overdue tasks: %w", err)
	}

	stats := cycleStats{candidates: len(tasks)}
	for i := range tasks {
		if ctx.Err() != nil {
			break
		}
		t := &tasks[i]
		o := e.delivery.deliver(ctx, t.ID)
		stats.add(o)
		if o != outcomeSent || e.karma == nil {
			continue
		}
		if _, err := e.karma.OnOverdue(ctx, t.AssigneeID, t.OrgID); err != nil {
			log.Error("Overdue penalty not applied", zap.Int64("task_id", t.ID), zap.Error(err))
		}
	}

	if stats.candidates > 0 {
		log.Info("Overdue check completed", stats.fields()...)
	}
	return ctx.Err()
}

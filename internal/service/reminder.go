package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Malixamran-01/MissMinutes/internal/model"
	"github.com/Malixamran-01/MissMinutes/pkg/logger"
)

const DefaultReminderWindow = 17 * time.Hour

// ReminderScheduler 创建后超过提醒窗口仍未结束的任务，提醒负责人一次
type ReminderScheduler struct {
	store    TaskStore
	clock    Clock
	window   time.Duration
	delivery *flagDelivery
	logger   *zap.Logger
}

func NewReminderScheduler(
	store TaskStore,
	notifier Notifier,
	clock Clock,
	claims Claimer,
	backoff Backoff,
	window time.Duration,
	cfg DeliveryConfig,
	logger *zap.Logger,
) *ReminderScheduler {
	if window <= 0 {
		window = DefaultReminderWindow
	}
	s := &ReminderScheduler{store: store, clock: clock, window: window, logger: logger}
	s.delivery = &flagDelivery{
		job:      "reminder",
		flag:     model.FlagReminderSent,
		store:    store,
		notifier: notifier,
		claims:   claims,
		backoff:  backoff,
		clock:    clock,
		cfg:      cfg,
		logger:   logger,
		key:      reminderKey,
		eligible: s.eligible,
		build: func(t *model.Task) model.Message {
			return ReminderMessage(t, window)
		},
	}
	return s
}

func (s *ReminderScheduler) Name() string { return "reminder" }

func (s *ReminderScheduler) eligible(t *model.Task, now time.Time) bool {
	return !t.ReminderSent && !t.Status.Terminal() && !now.Before(t.CreatedAt.Add(s.window))
}

// RunOnce 一轮检查
func (s *ReminderScheduler) RunOnce(ctx context.Context) error {
	log := logger.WithTrace(ctx, s.logger)
	now := s.clock.Now()
	log.Debug("Checking for tasks due a reminder...", zap.Time("now", now))

	tasks, err := s.store.ListTasks(ctx, model.TaskFilter{
		ReminderSent:    model.Bool(false),
		ExcludeTerminal: true,
		CreatedBefore:   now.Add(-s.window),
	})
	if err != nil {
		log.Error("Failed to list reminder candidates", zap.Error(err))
		return fmt.Errorf("list reminder candidates: %w", err)
	}

	stats := cycleStats{candidates: len(tasks)}
	for i := range tasks {
		if ctx.Err() != nil {
			break
		}
		stats.add(s.delivery.deliver(ctx, tasks[i].ID))
	}

	if stats.candidates > 0 {
		log.Info("Reminder check completed", stats.fields()...)
	}
	return ctx.Err()
}

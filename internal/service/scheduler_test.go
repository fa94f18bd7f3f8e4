package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/Malixamran-01/MissMinutes/internal/model"
)

// 17 小时窗口、每 5 分钟轮询：提醒在 T+17h 之后的第一轮发出，48 小时内只发一次
func TestReminderFiresOnceAfterWindow(t *testing.T) {
	h := newHarness(t, t0)
	ctx := context.Background()
	task := h.createTask(t, 1, 2, t0.Add(72*time.Hour))
	job := h.reminder(DefaultDeliveryConfig())

	const poll = 5 * time.Minute
	var firedAt time.Time
	for elapsed := time.Duration(0); elapsed <= 48*time.Hour; elapsed += poll {
		h.clock.Set(t0.Add(elapsed))
		if err := job.RunOnce(ctx); err != nil {
			t.Fatalf("RunOnce() error: %v", err)
		}
		if firedAt.IsZero() && len(h.notifier.ofKind(model.KindReminder)) > 0 {
			firedAt = h.clock.Now()
		}
	}

	reminders := h.notifier.ofKind(model.KindReminder)
	if len(reminders) != 1 {
		t.Fatalf("reminders = %d, want 1", len(reminders))
	}
	due := t0.Add(DefaultReminderWindow)
	if firedAt.Before(due) || !firedAt.Before(due.Add(poll)) {
		t.Errorf("reminder fired at %v, want first cycle at or after %v", firedAt, due)
	}
	if reminders[0].userID != 2 || reminders[0].msg.IdempotencyKey != "reminder:1" {
		t.Errorf("reminder = %+v", reminders[0])
	}
	if !h.task(t, task.ID).ReminderSent {
		t.Error("reminder_sent should be set")
	}
}

func TestReminderSkipsTerminalTasks(t *testing.T) {
	h := newHarness(t, t0)
	ctx := context.Background()
	done := h.createTask(t, 1, 2, t0.Add(72*time.Hour))
	stuck := h.createTask(t, 1, 3, t0.Add(72*time.Hour))
	if _, err := h.engine.ApplyUpdate(ctx, done.ID, 2, "cancelled", ""); err != nil {
		t.Fatal(err)
	}
	if _, err := h.engine.ApplyUpdate(ctx, stuck.ID, 3, "stuck", ""); err != nil {
		t.Fatal(err)
	}

	h.clock.Set(t0.Add(18 * time.Hour))
	if err := h.reminder(DefaultDeliveryConfig()).RunOnce(ctx); err != nil {
		t.Fatalf("RunOnce() error: %v", err)
	}
	reminders := h.notifier.ofKind(model.KindReminder)
	if len(reminders) != 1 || reminders[0].userID != 3 {
		t.Errorf("reminders = %+v, want only the stuck task's assignee", reminders)
	}
	if h.task(t, done.ID).ReminderSent {
		t.Error("cancelled task should not be reminded")
	}
}

// 截止 2025-07-06 16:00 UTC，每 15 分钟轮询：第一轮到点后通知，逾期计数只加 1
func TestEscalationFiresOnceAndPenalizes(t *testing.T) {
	h := newHarness(t, t0)
	ctx := context.Background()
	deadline := time.Date(2025, 7, 6, 16, 0, 0, 0, time.UTC)
	task := h.createTask(t, 1, 2, deadline)
	job := h.escalator(DefaultDeliveryConfig())

	const poll = 15 * time.Minute
	start := time.Date(2025, 7, 6, 12, 7, 0, 0, time.UTC)
	var firedAt time.Time
	for at := start; at.Before(deadline.Add(6 * time.Hour)); at = at.Add(poll) {
		h.clock.Set(at)
		if err := job.RunOnce(ctx); err != nil {
			t.Fatalf("RunOnce() error: %v", err)
		}
		if firedAt.IsZero() && len(h.notifier.ofKind(model.KindOverdue)) > 0 {
			firedAt = at
		}
	}

	overdue := h.notifier.ofKind(model.KindOverdue)
	if len(overdue) != 1 {
		t.Fatalf("overdue notifications = %d, want 1", len(overdue))
	}
	if want := time.Date(2025, 7, 6, 16, 7, 0, 0, time.UTC); !firedAt.Equal(want) {
		t.Errorf("escalation fired at %v, want %v", firedAt, want)
	}
	if !overdue[0].msg.Urgent {
		t.Error("overdue message should be urgent")
	}
	if !h.task(t, task.ID).DeadlineNotified {
		t.Error("deadline_notified should be set")
	}

	stats, err := h.karma.Stats(ctx, 2, 1)
	if err != nil {
		t.Fatalf("Stats() error: %v", err)
	}
	if stats.TasksOverdue != 1 || stats.Karma != -5 {
		t.Errorf("stats = %+v, want one overdue worth -5", stats)
	}
}

func TestDeliveryFailureRetriesAfterBackoff(t *testing.T) {
	h := newHarness(t, t0)
	ctx := context.Background()
	task := h.createTask(t, 1, 2, t0.Add(72*time.Hour))
	job := h.reminder(DefaultDeliveryConfig())

	h.notifier.setFail(1)
	h.clock.Set(t0.Add(17 * time.Hour))
	if err := job.RunOnce(ctx); err != nil {
		t.Fatalf("RunOnce() error: %v", err)
	}
	if h.task(t, task.ID).ReminderSent {
		t.Fatal("failed delivery must leave reminder_sent unset")
	}

	// 退避未到，不重试
	h.clock.Advance(30 * time.Second)
	if err := job.RunOnce(ctx); err != nil {
		t.Fatal(err)
	}
	if n := len(h.notifier.ofKind(model.KindReminder)); n != 0 {
		t.Fatalf("reminders during backoff = %d, want 0", n)
	}

	h.clock.Advance(time.Minute)
	if err := job.RunOnce(ctx); err != nil {
		t.Fatal(err)
	}
	if n := len(h.notifier.ofKind(model.KindReminder)); n != 1 {
		t.Fatalf("reminders after backoff = %d, want 1", n)
	}
	if !h.task(t, task.ID).ReminderSent {
		t.Error("reminder_sent should be set after successful retry")
	}
}

func TestDeliveryTimeoutCountsAsFailure(t *testing.T) {
	h := newHarness(t, t0)
	ctx := context.Background()
	deadline := t0.Add(time.Hour)
	task := h.createTask(t, 1, 2, deadline)
	job := h.escalator(DeliveryConfig{Timeout: 20 * time.Millisecond, ClaimTTL: time.Hour})

	h.notifier.setBlock(true)
	h.clock.Set(deadline)
	if err := job.RunOnce(ctx); err != nil {
		t.Fatalf("RunOnce() error: %v", err)
	}
	if h.task(t, task.ID).DeadlineNotified {
		t.Fatal("timed out delivery must leave deadline_notified unset")
	}
	stats, _ := h.karma.Stats(ctx, 2, 1)
	if stats.TasksOverdue != 0 {
		t.Errorf("overdue recorded without delivery: %+v", stats)
	}

	h.notifier.setBlock(false)
	h.clock.Advance(2 * time.Minute)
	if err := job.RunOnce(ctx); err != nil {
		t.Fatal(err)
	}
	if !h.task(t, task.ID).DeadlineNotified {
		t.Error("deadline_notified should be set after the endpoint recovers")
	}
}

// 并发运行的两个实例共享租约，只投递一次
func TestConcurrentRunsDeliverOnce(t *testing.T) {
	h := newHarness(t, t0)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		h.createTask(t, 1, int64(10+i), t0.Add(72*time.Hour))
	}
	h.clock.Set(t0.Add(20 * time.Hour))

	jobs := []*ReminderScheduler{h.reminder(DefaultDeliveryConfig()), h.reminder(DefaultDeliveryConfig())}
	var wg sync.WaitGroup
	for _, j := range jobs {
		for k := 0; k < 3; k++ {
			wg.Add(1)
			go func(j *ReminderScheduler) {
				defer wg.Done()
				if err := j.RunOnce(ctx); err != nil {
					t.Errorf("RunOnce() error: %v", err)
				}
			}(j)
		}
	}
	wg.Wait()

	reminders := h.notifier.ofKind(model.KindReminder)
	if len(reminders) != 5 {
		t.Fatalf("reminders = %d, want 5", len(reminders))
	}
	seen := map[int64]bool{}
	for _, r := range reminders {
		if seen[r.msg.TaskID] {
			t.Errorf("task %d reminded twice", r.msg.TaskID)
		}
		seen[r.msg.TaskID] = true
	}
}

// 截止时间带毫秒时，到点前的轮询不能提前升级
func TestEscalationHonoursSubSecondDeadline(t *testing.T) {
	h := newHarness(t, t0)
	ctx := context.Background()
	deadline := time.Date(2025, 7, 6, 16, 0, 0, 900_000_000, time.UTC)
	task := h.createTask(t, 1, 2, deadline)
	job := h.escalator(DefaultDeliveryConfig())

	h.clock.Set(deadline.Add(-800 * time.Millisecond))
	if err := job.RunOnce(ctx); err != nil {
		t.Fatalf("RunOnce() error: %v", err)
	}
	if n := len(h.notifier.ofKind(model.KindOverdue)); n != 0 {
		t.Fatalf("overdue fired %d times before the deadline", n)
	}
	if h.task(t, task.ID).DeadlineNotified {
		t.Fatal("deadline_notified set before the deadline")
	}

	h.clock.Set(deadline)
	if err := job.RunOnce(ctx); err != nil {
		t.Fatalf("RunOnce() error: %v", err)
	}
	if n := len(h.notifier.ofKind(model.KindOverdue)); n != 1 {
		t.Fatalf("overdue notifications at the deadline = %d, want 1", n)
	}
}

func TestReminderNeverFiresBeforeWindowSubSecond(t *testing.T) {
	created := t0.Add(700 * time.Millisecond)
	h := newHarness(t, created)
	ctx := context.Background()
	h.createTask(t, 1, 2, t0.Add(72*time.Hour))
	job := h.reminder(DefaultDeliveryConfig())

	h.clock.Set(created.Add(DefaultReminderWindow - 400*time.Millisecond))
	if err := job.RunOnce(ctx); err != nil {
		t.Fatalf("RunOnce() error: %v", err)
	}
	if n := len(h.notifier.ofKind(model.KindReminder)); n != 0 {
		t.Fatalf("reminder fired %d times before the window elapsed", n)
	}

	h.clock.Set(created.Add(DefaultReminderWindow))
	if err := job.RunOnce(ctx); err != nil {
		t.Fatalf("RunOnce() error: %v", err)
	}
	if n := len(h.notifier.ofKind(model.KindReminder)); n != 1 {
		t.Fatalf("reminders = %d, want 1", n)
	}
}

// 重叠的升级轮次：每个任务只通知一次，逾期计数只加一次
func TestConcurrentEscalationsPenalizeOnce(t *testing.T) {
	h := newHarness(t, t0)
	ctx := context.Background()
	const n = 5
	for i := 0; i < n; i++ {
		h.createTask(t, 1, int64(10+i), t0.Add(time.Hour))
	}
	h.clock.Set(t0.Add(2 * time.Hour))

	jobs := []*DeadlineEscalator{h.escalator(DefaultDeliveryConfig()), h.escalator(DefaultDeliveryConfig())}
	var wg sync.WaitGroup
	for _, j := range jobs {
		for k := 0; k < 3; k++ {
			wg.Add(1)
			go func(j *DeadlineEscalator) {
				defer wg.Done()
				if err := j.RunOnce(ctx); err != nil {
					t.Errorf("RunOnce() error: %v", err)
				}
			}(j)
		}
	}
	wg.Wait()

	overdue := h.notifier.ofKind(model.KindOverdue)
	if len(overdue) != n {
		t.Fatalf("overdue notifications = %d, want %d", len(overdue), n)
	}
	seen := map[int64]bool{}
	for _, o := range overdue {
		if seen[o.msg.TaskID] {
			t.Errorf("task %d escalated twice", o.msg.TaskID)
		}
		seen[o.msg.TaskID] = true
	}

	// 再跑一轮也不会重复
	if err := jobs[0].RunOnce(ctx); err != nil {
		t.Fatalf("RunOnce() error: %v", err)
	}
	total := int64(0)
	for i := 0; i < n; i++ {
		stats, err := h.karma.Stats(ctx, int64(10+i), 1)
		if err != nil {
			t.Fatalf("Stats() error: %v", err)
		}
		if stats.TasksOverdue != 1 {
			t.Errorf("user %d overdue = %d, want 1", 10+i, stats.TasksOverdue)
		}
		total += stats.TasksOverdue
	}
	if total != n {
		t.Errorf("total overdue = %d, want %d", total, n)
	}
}

// 存储不可达的一轮：返回错误，不投递、不改标记、不动积分
func TestStoreOutageMutatesNothing(t *testing.T) {
	h := newHarness(t, t0)
	ctx := context.Background()
	task := h.createTask(t, 1, 2, t0.Add(time.Hour))
	h.clock.Set(t0.Add(20 * time.Hour))

	store := newFaultyStore(h.store)
	reminder := NewReminderScheduler(store, h.notifier, h.orgClock, h.claims, h.backoff, DefaultReminderWindow, DefaultDeliveryConfig(), zap.NewNop())
	escalator := NewDeadlineEscalator(store, h.notifier, h.orgClock, h.claims, h.backoff, h.karma, DefaultDeliveryConfig(), zap.NewNop())

	tests := []struct {
		name   string
		inject func(f *faultyStore)
	}{
		{"listing fails", func(f *faultyStore) { f.listErr = errStoreDown }},
		{"re-read fails", func(f *faultyStore) { f.listErr = nil; f.getTaskErr = errStoreDown }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store.set(tt.inject)
			_ = reminder.RunOnce(ctx)
			_ = escalator.RunOnce(ctx)

			if n := len(h.notifier.ofKind(model.KindReminder)) + len(h.notifier.ofKind(model.KindOverdue)); n != 0 {
				t.Errorf("notifications during outage = %d, want 0", n)
			}
			got := h.task(t, task.ID)
			if got.ReminderSent || got.DeadlineNotified {
				t.Errorf("flags changed during outage: %+v", got)
			}
			stats, err := h.karma.Stats(ctx, 2, 1)
			if err != nil {
				t.Fatalf("Stats() error: %v", err)
			}
			if stats.TasksOverdue != 0 || stats.Karma != 0 {
				t.Errorf("stats changed during outage: %+v", stats)
			}
		})
	}

	store.set(func(f *faultyStore) { f.getTaskErr = nil })
	if err := escalator.RunOnce(ctx); err != nil {
		t.Fatalf("RunOnce() after recovery error: %v", err)
	}
	if n := len(h.notifier.ofKind(model.KindOverdue)); n != 1 {
		t.Errorf("overdue after recovery = %d, want 1", n)
	}
}

// 升级 CAS 成功后积分写入短暂失败，重试后仍然记上
func TestOverduePenaltyRetriedAfterUpsertFailure(t *testing.T) {
	h := newHarness(t, t0)
	ctx := context.Background()
	h.createTask(t, 1, 2, t0.Add(time.Hour))
	h.clock.Set(t0.Add(2 * time.Hour))

	store := newFaultyStore(h.store)
	store.set(func(f *faultyStore) { f.upsertFail = 2 })
	karma := NewKarmaScorer(store, h.orgClock, DefaultKarmaPolicy(), zap.NewNop())
	karma.retryDelay = time.Millisecond
	job := NewDeadlineEscalator(h.store, h.notifier, h.orgClock, h.claims, h.backoff, karma, DefaultDeliveryConfig(), zap.NewNop())

	if err := job.RunOnce(ctx); err != nil {
		t.Fatalf("RunOnce() error: %v", err)
	}
	stats, err := h.karma.Stats(ctx, 2, 1)
	if err != nil {
		t.Fatalf("Stats() error: %v", err)
	}
	if stats.TasksOverdue != 1 || stats.Karma != -5 {
		t.Errorf("stats = %+v, want the penalty applied once", stats)
	}
}

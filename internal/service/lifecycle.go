package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Malixamran-01/MissMinutes/internal/model"
	"github.com/Malixamran-01/MissMinutes/pkg/logger"
	"github.com/Malixamran-01/MissMinutes/pkg/metrics"
)

const announceTimeout = 10 * time.Second

// Lifecycle 任务状态机：创建、状态变更、查询。
// 五个状态之间任意可达，没有终态锁定。
type Lifecycle struct {
	store    TaskStore
	karma    *KarmaScorer
	notifier Notifier // 可选，频道公告
	clock    Clock
	logger   *zap.Logger
}

func NewLifecycle(store TaskStore, karma *KarmaScorer, notifier Notifier, clock Clock, logger *zap.Logger) *Lifecycle {
	return &Lifecycle{
		store:    store,
		karma:    karma,
		notifier: notifier,
		clock:    clock,
		logger:   logger,
	}
}

// CreateTask 校验并创建任务，同时写入初始 assigned 日志
func (e *Lifecycle) CreateTask(ctx context.Context, in model.NewTask) (*model.Task, error) {
	log := logger.WithTrace(ctx, e.logger)
	now := e.clock.Now()

	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, fmt.Errorf("%w: title is required", model.ErrInvalidTask)
	}
	if in.AssigneeID == 0 || in.OrgID == 0 {
		return nil, fmt.Errorf("%w: assignee and organization are required", model.ErrInvalidTask)
	}
	priority, err := model.ParsePriority(in.Priority)
	if err != nil {
		return nil, err
	}
	if !in.Deadline.After(now) {
		return nil, fmt.Errorf("%w: %s", model.ErrDeadlineInPast, in.Deadline.UTC().Format(timeLayout))
	}

	created := ceilMicro(now)
	t := &model.Task{
		Title:       title,
		Description: strings.TrimSpace(in.Description),
		AssigneeID:  in.AssigneeID,
		AssignerID:  in.AssignerID,
		OrgID:       in.OrgID,
		Deadline:    ceilMicro(in.Deadline.UTC()),
		Status:      model.StatusAssigned,
		Priority:    priority,
		CreatedAt:   created,
	}
	initial := model.TaskUpdate{
		ActorID:   in.AssignerID,
		Status:    model.StatusAssigned,
		Note:      "task created",
		CreatedAt: created,
	}
	if err := e.store.CreateTask(ctx, t, initial); err != nil {
		log.Error("Failed to create task", zap.Int64("org_id", in.OrgID), zap.Error(err))
		return nil, err
	}

	log.Info("Task created",
		zap.Int64("task_id", t.ID),
		zap.Int64("assignee_id", t.AssigneeID),
		zap.Int64("org_id", t.OrgID),
		zap.Time("deadline", t.Deadline),
	)
	e.announce(ctx, t.OrgID, AssignedMessage(t))
	return t, nil
}

// ApplyUpdate 变更状态并追加日志。重复相同状态也会记录。
// 第一次进入 completed 时记一次完成积分，之后再进入不重复计分。
func (e *Lifecycle) ApplyUpdate(ctx context.Context, taskID, actorID int64, rawStatus, note string) (*model.TaskUpdate, error) {
	log := logger.WithTrace(ctx, e.logger).With(zap.Int64("task_id", taskID))

	status, err := model.ParseStatus(rawStatus)
	if err != nil {
		log.Warn("Rejected status update", zap.String("status", rawStatus))
		return nil, err
	}

	res, err := e.store.UpdateStatus(ctx, model.StatusChange{
		TaskID:  taskID,
		ActorID: actorID,
		Status:  status,
		Note:    strings.TrimSpace(note),
		At:      e.clock.Now(),
	})
	if err != nil {
		return nil, err
	}
	metrics.IncrementTaskUpdate(string(status))

	log.Info("Task status updated",
		zap.String("status", string(status)),
		zap.Int64("actor_id", actorID),
		zap.Bool("first_completion", res.FirstCompletion),
	)

	task, update := &res.Task, &res.Update
	if res.FirstCompletion && e.karma != nil {
		// 积分失败不回滚状态：状态与日志已提交
		if _, err := e.karma.OnCompleted(ctx, task.AssigneeID, task.OrgID); err != nil {
			log.Error("Completion credit not applied", zap.Error(err))
		}
	}

	e.announce(ctx, task.OrgID, StatusChangedMessage(task, update))
	return update, nil
}

// ListTasksFor 用户的任务，orgID 为 0 表示不限组织
func (e *Lifecycle) ListTasksFor(ctx context.Context, userID, orgID int64, status *model.Status) ([]model.Task, error) {
	f := model.TaskFilter{AssigneeID: userID, OrgID: orgID}
	if status != nil {
		f.Status = *status
	}
	return e.store.ListTasks(ctx, f)
}

// ListOrgTasks 组织内全部任务
func (e *Lifecycle) ListOrgTasks(ctx context.Context, orgID int64, status *model.Status) ([]model.Task, error) {
	f := model.TaskFilter{OrgID: orgID}
	if status != nil {
		f.Status = *status
	}
	return e.store.ListTasks(ctx, f)
}

func (e *Lifecycle) GetTask(ctx context.Context, taskID int64) (*model.Task, error) {
	return e.store.GetTask(ctx, taskID)
}

// History 任务的完整更新日志（按写入顺序）
func (e *Lifecycle) History(ctx context.Context, taskID int64) ([]model.TaskUpdate, error) {
	if _, err := e.store.GetTask(ctx, taskID); err != nil {
		return nil, err
	}
	return e.store.ListUpdates(ctx, taskID)
}

// ceilMicro 存储精度为微秒，向上取整使截止和提醒时间不会提前
func ceilMicro(t time.Time) time.Time {
	r := t.Truncate(time.Microsecond)
	if r.Before(t) {
		r = r.Add(time.Microsecond)
	}
	return r
}

// announce 尽力而为的频道公告，失败只记录日志
func (e *Lifecycle) announce(ctx context.Context, orgID int64, msg model.Message) {
	if e.notifier == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, announceTimeout)
	defer cancel()
	if err := e.notifier.SendToChannel(ctx, orgID, msg); err != nil {
		logger.WithTrace(ctx, e.logger).Warn("Channel announcement failed",
			zap.String("kind", string(msg.Kind)),
			zap.Int64("org_id", orgID),
			zap.Error(err),
		)
		metrics.IncrementNotification(string(msg.Kind), "failed")
		return
	}
	metrics.IncrementNotification(string(msg.Kind), "sent")
}

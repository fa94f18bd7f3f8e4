package mqhandler

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"

	mqcontracts "github.com/Malixamran-01/MissMinutes/contracts/mq"
	"github.com/Malixamran-01/MissMinutes/internal/model"
	"github.com/Malixamran-01/MissMinutes/pkg/logger"
)

// TaskCommands *service.Lifecycle 满足该接口
type TaskCommands interface {
	CreateTask(ctx context.Context, in model.NewTask) (*model.Task, error)
	ApplyUpdate(ctx context.Context, taskID, actorID int64, rawStatus, note string) (*model.TaskUpdate, error)
}

// TaskCommandHandler 处理 task.assign 与 task.status_update。
// 校验失败的命令 ack 后丢弃，重投也不会变成合法命令。
type TaskCommandHandler struct {
	tasks  TaskCommands
	claims Claimer
	ttl    time.Duration
	logger *zap.Logger
}

// claims 为 nil 时不按 request_id 去重
func NewTaskCommandHandler(tasks TaskCommands, claims Claimer, ttl time.Duration, logger *zap.Logger) *TaskCommandHandler {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &TaskCommandHandler{tasks: tasks, claims: claims, ttl: ttl, logger: logger}
}

// HandleAssign task.assign
func (h *TaskCommandHandler) HandleAssign(ctx context.Context, raw json.RawMessage) error {
	log := logger.WithTrace(ctx, h.logger)

	var p mqcontracts.TaskAssignPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		log.Error("Failed to unmarshal task assign payload", zap.Error(err))
		return err
	}

	claimed, key := false, "task_assign:"+p.RequestID
	if p.RequestID != "" && h.claims != nil {
		ok, err := h.claims.Acquire(ctx, key, h.ttl)
		switch {
		case err != nil:
			log.Warn("Assign dedup check failed, processing anyway", zap.String("request_id", p.RequestID), zap.Error(err))
		case !ok:
			log.Info("Skipped duplicated assign command", zap.String("request_id", p.RequestID))
			return nil
		default:
			claimed = true
		}
	}

	task, err := h.tasks.CreateTask(ctx, model.NewTask{
		Title:       p.Title,
		Description: p.Description,
		AssigneeID:  p.AssigneeID,
		AssignerID:  p.AssignerID,
		OrgID:       p.OrgID,
		Deadline:    p.Deadline,
		Priority:    p.Priority,
	})
	if err != nil {
		err = h.settle(log, "task.assign", err)
		// 要重投的消息必须能再次拿到租约
		if err != nil && claimed {
			if rerr := h.claims.Release(ctx, key); rerr != nil {
				log.Warn("Failed to release assign claim", zap.Error(rerr))
			}
		}
		return err
	}

	log.Info("Task assigned from queue",
		zap.Int64("task_id", task.ID),
		zap.Int64("org_id", task.OrgID),
		zap.String("request_id", p.RequestID),
	)
	return nil
}

// HandleStatusUpdate task.status_update
func (h *TaskCommandHandler) HandleStatusUpdate(ctx context.Context, raw json.RawMessage) error {
	log := logger.WithTrace(ctx, h.logger)

	var p mqcontracts.TaskStatusUpdatePayload
	if err := json.Unmarshal(raw, &p); err != nil {
		log.Error("Failed to unmarshal task status update payload", zap.Error(err))
		return err
	}

	update, err := h.tasks.ApplyUpdate(ctx, p.TaskID, p.ActorID, p.Status, p.Note)
	if err != nil {
		return h.settle(log.With(zap.Int64("task_id", p.TaskID)), "task.status_update", err)
	}

	log.Info("Task status updated from queue",
		zap.Int64("task_id", p.TaskID),
		zap.Int64("update_id", update.ID),
		zap.String("status", string(update.Status)),
	)
	return nil
}

// settle 输入错误丢弃，其余错误交给消费者按可重试分类处理
func (h *TaskCommandHandler) settle(log *zap.Logger, command string, err error) error {
	if model.IsValidation(err) || errors.Is(err, model.ErrTaskNotFound) {
		log.Warn("Dropping invalid command", zap.String("command", command), zap.Error(err))
		return nil
	}
	log.Error("Command failed", zap.String("command", command), zap.Error(err))
	return err
}

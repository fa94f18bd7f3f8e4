package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Malixamran-01/MissMinutes/internal/model"
	"github.com/Malixamran-01/MissMinutes/pkg/logger"
)

// TaskService *service.Lifecycle 满足该接口
type TaskService interface {
	CreateTask(ctx context.Context, in model.NewTask) (*model.Task, error)
	ApplyUpdate(ctx context.Context, taskID, actorID int64, rawStatus, note string) (*model.TaskUpdate, error)
	ListTasksFor(ctx context.Context, userID, orgID int64, status *model.Status) ([]model.Task, error)
	ListOrgTasks(ctx context.Context, orgID int64, status *model.Status) ([]model.Task, error)
	GetTask(ctx context.Context, taskID int64) (*model.Task, error)
	History(ctx context.Context, taskID int64) ([]model.TaskUpdate, error)
}

// StatsService *service.KarmaScorer 满足该接口
type StatsService interface {
	Stats(ctx context.Context, userID, orgID int64) (*model.UserStats, error)
}

type TaskHandler struct {
	tasks  TaskService
	stats  StatsService
	logger *zap.Logger
}

func NewTaskHandler(tasks TaskService, stats StatsService, logger *zap.Logger) *TaskHandler {
	return &TaskHandler{tasks: tasks, stats: stats, logger: logger}
}

type createTaskRequest struct {
	Title       string    `json:"title" binding:"required"`
	Description string    `json:"description"`
	AssigneeID  int64     `json:"assignee_id" binding:"required"`
	AssignerID  int64     `json:"assigner_id"`
	OrgID       int64     `json:"org_id" binding:"required"`
	Deadline    time.Time `json:"deadline" binding:"required"`
	Priority    string    `json:"priority"`
}

// CreateTask POST /tasks
func (h *TaskHandler) CreateTask(c *gin.Context) {
	var req createTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	task, err := h.tasks.CreateTask(c.Request.Context(), model.NewTask{
		Title:       req.Title,
		Description: req.Description,
		AssigneeID:  req.AssigneeID,
		AssignerID:  req.AssignerID,
		OrgID:       req.OrgID,
		Deadline:    req.Deadline,
		Priority:    req.Priority,
	})
	if err != nil {
		h.fail(c, "CreateTask", err)
		return
	}
	c.JSON(http.StatusCreated, task)
}

type statusRequest struct {
	ActorID int64  `json:"actor_id" binding:"required"`
	Status  string `json:"status" binding:"required"`
	Note    string `json:"note"`
}

// UpdateStatus POST /tasks/:id/status
func (h *TaskHandler) UpdateStatus(c *gin.Context) {
	taskID, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req statusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	update, err := h.tasks.ApplyUpdate(c.Request.Context(), taskID, req.ActorID, req.Status, req.Note)
	if err != nil {
		h.fail(c, "UpdateStatus", err)
		return
	}
	c.JSON(http.StatusOK, update)
}

// ListTasks GET /tasks?user_id=&org_id=&status=
func (h *TaskHandler) ListTasks(c *gin.Context) {
	userID, err := strconv.ParseInt(c.Query("user_id"), 10, 64)
	if err != nil || userID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id required"})
		return
	}
	var orgID int64
	if raw := c.Query("org_id"); raw != "" {
		if orgID, err = strconv.ParseInt(raw, 10, 64); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid org_id"})
			return
		}
	}
	status, ok := statusQuery(c)
	if !ok {
		return
	}

	tasks, err := h.tasks.ListTasksFor(c.Request.Context(), userID, orgID, status)
	if err != nil {
		h.fail(c, "ListTasks", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tasks": tasks})
}

// ListOrgTasks GET /orgs/:org_id/tasks
func (h *TaskHandler) ListOrgTasks(c *gin.Context) {
	orgID, ok := idParam(c, "org_id")
	if !ok {
		return
	}
	status, ok := statusQuery(c)
	if !ok {
		return
	}
	tasks, err := h.tasks.ListOrgTasks(c.Request.Context(), orgID, status)
	if err != nil {
		h.fail(c, "ListOrgTasks", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tasks": tasks})
}

// GetTask GET /tasks/:id
func (h *TaskHandler) GetTask(c *gin.Context) {
	taskID, ok := idParam(c, "id")
	if !ok {
		return
	}
	task, err := h.tasks.GetTask(c.Request.Context(), taskID)
	if err != nil {
		h.fail(c, "GetTask", err)
		return
	}
	c.JSON(http.StatusOK, task)
}

// History GET /tasks/:id/history
func (h *TaskHandler) History(c *gin.Context) {
	taskID, ok := idParam(c, "id")
	if !ok {
		return
	}
	updates, err := h.tasks.History(c.Request.Context(), taskID)
	if err != nil {
		h.fail(c, "History", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"updates":  updates,
		"statuses": model.ReplayStatuses(updates),
	})
}

// Stats GET /orgs/:org_id/users/:user_id/stats
func (h *TaskHandler) Stats(c *gin.Context) {
	orgID, ok := idParam(c, "org_id")
	if !ok {
		return
	}
	userID, ok := idParam(c, "user_id")
	if !ok {
		return
	}
	stats, err := h.stats.Stats(c.Request.Context(), userID, orgID)
	if err != nil {
		h.fail(c, "Stats", err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func idParam(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return id, true
}

func statusQuery(c *gin.Context) (*model.Status, bool) {
	raw := c.Query("status")
	if raw == "" {
		return nil, true
	}
	s, err := model.ParseStatus(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return nil, false
	}
	return &s, true
}

// fail 把领域错误映射为 HTTP 状态码
func (h *TaskHandler) fail(c *gin.Context, op string, err error) {
	switch {
	case model.IsValidation(err):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, model.ErrTaskNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
	default:
		logger.WithTrace(c.Request.Context(), h.logger).Error(op+": request failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

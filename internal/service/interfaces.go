package service

import (
	"context"
	"time"

	"github.com/Malixamran-01/MissMinutes/internal/model"
)

// TaskStore 任务与更新日志的持久化，每个方法单独原子
type TaskStore interface {
	// CreateTask 插入任务并在同一事务中追加初始 TaskUpdate，回填 ID
	CreateTask(ctx context.Context, t *model.Task, initial model.TaskUpdate) error
	GetTask(ctx context.Context, id int64) (*model.Task, error)
	ListTasks(ctx context.Context, f model.TaskFilter) ([]model.Task, error)

	// UpdateStatus 在一个事务里更新状态、必要时设置 completed_at 并追加日志，
	// 返回同一事务内读到的任务行。
	UpdateStatus(ctx context.Context, ch model.StatusChange) (*model.StatusResult, error)

	ListUpdates(ctx context.Context, taskID int64) ([]model.TaskUpdate, error)
	// ListActivity 某组织在 [from, to] 内的更新，按时间倒序
	ListActivity(ctx context.Context, orgID int64, from, to time.Time, limit int) ([]model.Activity, error)

	// CompareAndSetFlag 条件更新，返回本次调用是否完成了 expected -> new 的转换
	CompareAndSetFlag(ctx context.Context, taskID int64, flag model.Flag, expected, desired bool) (bool, error)

	ListOrganizations(ctx context.Context) ([]int64, error)
}

// StatsStore UserStats 的原子 upsert
type StatsStore interface {
	UpsertStats(ctx context.Context, userID, orgID int64, delta model.StatsDelta, at time.Time) (*model.UserStats, error)
	GetStats(ctx context.Context, userID, orgID int64) (*model.UserStats, error)
}

// Store 完整存储接口
type Store interface {
	TaskStore
	StatsStore
	Ping(ctx context.Context) error
	Close() error
}

// Notifier 外部投递通道
type Notifier interface {
	SendDirect(ctx context.Context, userID int64, msg model.Message) error
	SendToChannel(ctx context.Context, orgID int64, msg model.Message) error
}

// Clock 可注入的时间源
type Clock interface {
	Now() time.Time
	// LocalDayBounds 组织所在时区的"今天" [start, end)
	LocalDayBounds(orgID int64) (start, end time.Time)
}

// Claimer 跨进程租约（Redis 或本地）
type Claimer interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

// Backoff 投递失败后的退避
type Backoff interface {
	Ready(ctx context.Context, key string, now time.Time) (bool, error)
	Failure(ctx context.Context, key string, now time.Time) (time.Duration, error)
	Reset(ctx context.Context, key string) error
}

package model

import "time"

// TaskUpdate 追加写入的状态变更日志
type TaskUpdate struct {
	ID        int64     `json:"id"`
	TaskID    int64     `json:"task_id"`
	ActorID   int64     `json:"actor_id"`
	Status    Status    `json:"status"`
	Note      string    `json:"note,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// StatusChange 一次状态变更请求
type StatusChange struct {
	TaskID  int64
	ActorID int64
	Status  Status
	Note    string
	At      time.Time
}

// StatusResult 状态变更事务提交后的结果
type StatusResult struct {
	Task            Task // 事务内读取的任务行
	Update          TaskUpdate
	FirstCompletion bool // 本次调用设置了 completed_at
}

// Activity 带任务标题的更新记录，用于日报
type Activity struct {
	TaskUpdate
	TaskTitle string `json:"task_title"`
}

// ReplayStatuses 按日志顺序还原任务经历过的状态序列
func ReplayStatuses(updates []TaskUpdate) []Status {
	out := make([]Status, 0, len(updates))
	for _, u := range updates {
		out = append(out, u.Status)
	}
	return out
}

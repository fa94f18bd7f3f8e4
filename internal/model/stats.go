package model

import "time"

// UserStats 按 (user, org) 聚合的统计，不存在时等价于全零
type UserStats struct {
	UserID         int64     `json:"user_id"`
	OrgID          int64     `json:"org_id"`
	TasksCompleted int64     `json:"tasks_completed"`
	TasksOverdue   int64     `json:"tasks_overdue"`
	Karma          int64     `json:"karma_points"`
	LastUpdated    time.Time `json:"last_updated"`
}

// StatsDelta 一次 upsert 的增量
type StatsDelta struct {
	Completed int64
	Overdue   int64
	Karma     int64
}

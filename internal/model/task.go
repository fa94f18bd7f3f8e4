package model

import "time"

// Task 一条分配给成员的工作项，时间统一以 UTC 存储
type Task struct {
	ID               int64      `json:"id"`
	Title            string     `json:"title"`
	Description      string     `json:"description"`
	AssigneeID       int64      `json:"assignee_id"`
	AssignerID       int64      `json:"assigner_id"`
	OrgID            int64      `json:"org_id"`
	Deadline         time.Time  `json:"deadline"`
	Status           Status     `json:"status"`
	Priority         Priority   `json:"priority"`
	CreatedAt        time.Time  `json:"created_at"`
	ReminderSent     bool       `json:"reminder_sent"`
	DeadlineNotified bool       `json:"deadline_notified"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
}

// Overdue 截止时间已过且未结束
func (t *Task) Overdue(now time.Time) bool {
	return !t.Status.Terminal() && !now.Before(t.Deadline)
}

// NewTask create_task 的输入
type NewTask struct {
	Title       string
	Description string
	AssigneeID  int64
	AssignerID  int64
	OrgID       int64
	Deadline    time.Time
	Priority    string
}

// Flag 两个"至多一次"标记
type Flag string

const (
	FlagReminderSent     Flag = "reminder_sent"
	FlagDeadlineNotified Flag = "deadline_notified"
)

func (f Flag) Valid() bool {
	return f == FlagReminderSent || f == FlagDeadlineNotified
}

// TaskFilter 列表查询条件，零值字段不参与过滤。
// 时间区间均为左闭右开 [From, To)。
type TaskFilter struct {
	OrgID           int64
	AssigneeID      int64
	Status          Status
	ExcludeTerminal bool

	ReminderSent     *bool
	DeadlineNotified *bool

	CreatedFrom   time.Time
	CreatedTo     time.Time
	DeadlineFrom  time.Time
	DeadlineTo    time.Time
	CreatedBefore time.Time // created_at <= CreatedBefore
	DueBy         time.Time // deadline <= DueBy
	DueBefore     time.Time // deadline < DueBefore

	Limit int
}

// Bool 返回指针，方便构造 TaskFilter
func Bool(v bool) *bool { return &v }

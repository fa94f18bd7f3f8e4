package mq

import "time"

// TaskAssignPayload task.assign 命令
type TaskAssignPayload struct {
	RequestID   string    `json:"request_id,omitempty"` // 可选，重复投递时据此去重
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	AssigneeID  int64     `json:"assignee_id"`
	AssignerID  int64     `json:"assigner_id"`
	OrgID       int64     `json:"org_id"`
	Deadline    time.Time `json:"deadline"`
	Priority    string    `json:"priority,omitempty"` // low / medium / high / urgent
}

// TaskStatusUpdatePayload task.status_update 命令
type TaskStatusUpdatePayload struct {
	TaskID  int64  `json:"task_id"`
	ActorID int64  `json:"actor_id"`
	Status  string `json:"status"`
	Note    string `json:"note,omitempty"`
}

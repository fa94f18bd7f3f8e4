package model

// MessageKind 通知类型
type MessageKind string

const (
	KindReminder      MessageKind = "reminder"
	KindOverdue       MessageKind = "overdue"
	KindDailySummary  MessageKind = "daily_summary"
	KindTaskAssigned  MessageKind = "task_assigned"
	KindStatusChanged MessageKind = "status_changed"
)

// Field 消息中的键值展示项
type Field struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

// Message 交给 Notifier 的与传输无关的消息体
type Message struct {
	Kind   MessageKind `json:"kind"`
	Title  string      `json:"title"`
	Body   string      `json:"body"`
	Fields []Field     `json:"fields,omitempty"`
	Footer string      `json:"footer,omitempty"`
	Urgent bool        `json:"urgent,omitempty"`
	TaskID int64       `json:"task_id,omitempty"`

	// IdempotencyKey 下游据此去重，例如 "reminder:42"
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

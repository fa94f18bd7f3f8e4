package mq

import "time"

const (
	TargetDirect  = "direct"
	TargetChannel = "channel"
)

type NotificationField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

// NotificationRequestedPayload notification.requested 事件，由 relay 投递到聊天平台
type NotificationRequestedPayload struct {
	Key       string              `json:"key"` // 幂等键，relay 据此去重
	Kind      string              `json:"kind"`
	Target    string              `json:"target"` // direct / channel
	UserID    int64               `json:"user_id,omitempty"`
	OrgID     int64               `json:"org_id,omitempty"`
	Title     string              `json:"title"`
	Body      string              `json:"body"`
	Fields    []NotificationField `json:"fields,omitempty"`
	Footer    string              `json:"footer,omitempty"`
	Urgent    bool                `json:"urgent,omitempty"`
	TaskID    int64               `json:"task_id,omitempty"`
	CreatedAt time.Time           `json:"created_at"`
}

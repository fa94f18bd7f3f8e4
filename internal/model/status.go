package model

import (
	"fmt"
	"strings"
)

// Status 任务状态（封闭枚举）
type Status string

const (
	StatusAssigned   Status = "assigned"
	StatusInProgress Status = "in_progress"
	StatusStuck      Status = "stuck"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

// Statuses 全部合法状态，按生命周期顺序
var Statuses = []Status{
	StatusAssigned,
	StatusInProgress,
	StatusStuck,
	StatusCompleted,
	StatusCancelled,
}

// ParseStatus 解析外部输入的状态，大小写不敏感
func ParseStatus(raw string) (Status, error) {
	s := Status(strings.ToLower(strings.TrimSpace(raw)))
	if !s.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidStatus, raw)
	}
	return s, nil
}

// Valid 是否为已知状态
func (s Status) Valid() bool {
	switch s {
	case StatusAssigned, StatusInProgress, StatusStuck, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// Terminal completed / cancelled 不再参与提醒、升级和逾期统计
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusCancelled:
		return true
	case StatusAssigned, StatusInProgress, StatusStuck:
		return false
	}
	return false
}

// Label 展示用文本，例如 "In Progress"
func (s Status) Label() string {
	switch s {
	case StatusAssigned:
		return "Assigned"
	case StatusInProgress:
		return "In Progress"
	case StatusStuck:
		return "Stuck"
	case StatusCompleted:
		return "Completed"
	case StatusCancelled:
		return "Cancelled"
	}
	return string(s)
}

// Emoji 状态图标
func (s Status) Emoji() string {
	switch s {
	case StatusAssigned:
		return "📌"
	case StatusInProgress:
		return "🔄"
	case StatusStuck:
		return "🚧"
	case StatusCompleted:
		return "✅"
	case StatusCancelled:
		return "❌"
	}
	return "•"
}

// Priority 任务优先级（封闭枚举）
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// ParsePriority 解析优先级，空字符串默认为 medium
func ParsePriority(raw string) (Priority, error) {
	trimmed := strings.ToLower(strings.TrimSpace(raw))
	if trimmed == "" {
		return PriorityMedium, nil
	}
	p := Priority(trimmed)
	if !p.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidPriority, raw)
	}
	return p, nil
}

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// Label 首字母大写
func (p Priority) Label() string {
	switch p {
	case PriorityLow:
		return "Low"
	case PriorityMedium:
		return "Medium"
	case PriorityHigh:
		return "High"
	case PriorityUrgent:
		return "Urgent"
	}
	return string(p)
}

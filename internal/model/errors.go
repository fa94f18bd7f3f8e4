package model

import "errors"

var (
	ErrTaskNotFound    = errors.New("task not found")
	ErrInvalidStatus   = errors.New("invalid status")
	ErrInvalidPriority = errors.New("invalid priority")
	ErrInvalidTask     = errors.New("invalid task")
	ErrDeadlineInPast  = errors.New("deadline must be in the future")
)

// IsValidation 是否为调用方输入错误（HTTP 400 / MQ 直接丢弃）
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidStatus) ||
		errors.Is(err, ErrInvalidPriority) ||
		errors.Is(err, ErrInvalidTask) ||
		errors.Is(err, ErrDeadlineInPast)
}

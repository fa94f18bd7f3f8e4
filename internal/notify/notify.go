// Package notify 提供 Notifier 的具体实现：MQ 发布、结构化日志、熔断包装。
package notify

import (
	"context"

	"github.com/Malixamran-01/MissMinutes/internal/model"
)

// Sender 与 service.Notifier 同形，供包装器使用
type Sender interface {
	SendDirect(ctx context.Context, userID int64, msg model.Message) error
	SendToChannel(ctx context.Context, orgID int64, msg model.Message) error
}

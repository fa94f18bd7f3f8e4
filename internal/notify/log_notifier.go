package notify

import (
	"context"

	"go.uber.org/zap"

	"github.com/Malixamran-01/MissMinutes/internal/model"
	"github.com/Malixamran-01/MissMinutes/pkg/logger"
)

// LogNotifier 把消息写入结构化日志，用于单机模式和 relay 的终端 sink
type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) SendDirect(ctx context.Context, userID int64, msg model.Message) error {
	n.write(ctx, msg, zap.String("target", "direct"), zap.Int64("user_id", userID))
	return ctx.Err()
}

func (n *LogNotifier) SendToChannel(ctx context.Context, orgID int64, msg model.Message) error {
	n.write(ctx, msg, zap.String("target", "channel"), zap.Int64("org_id", orgID))
	return ctx.Err()
}

func (n *LogNotifier) write(ctx context.Context, msg model.Message, target ...zap.Field) {
	fields := append(target,
		zap.String("kind", string(msg.Kind)),
		zap.String("title", msg.Title),
		zap.String("body", msg.Body),
		zap.Bool("urgent", msg.Urgent),
	)
	if msg.TaskID != 0 {
		fields = append(fields, zap.Int64("task_id", msg.TaskID))
	}
	if msg.IdempotencyKey != "" {
		fields = append(fields, zap.String("key", msg.IdempotencyKey))
	}
	for _, f := range msg.Fields {
		fields = append(fields, zap.String("field."+f.Name, f.Value))
	}
	logger.WithTrace(ctx, n.logger).Info("Notification", fields...)
}

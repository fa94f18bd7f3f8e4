package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	mqcontracts "github.com/Malixamran-01/MissMinutes/contracts/mq"
	"github.com/Malixamran-01/MissMinutes/internal/model"
	"github.com/Malixamran-01/MissMinutes/pkg/logger"
	"github.com/Malixamran-01/MissMinutes/pkg/mq"
)

// Publisher *mq.Publisher 满足该接口
type Publisher interface {
	Publish(ctx context.Context, routingKey, messageID string, payload any) error
}

// MQNotifier 把消息发布为 notification.requested，由 relay 进程投递
type MQNotifier struct {
	publisher Publisher
	now       func() time.Time
	logger    *zap.Logger
}

func NewMQNotifier(publisher Publisher, logger *zap.Logger) *MQNotifier {
	return &MQNotifier{publisher: publisher, now: time.Now, logger: logger}
}

func (n *MQNotifier) SendDirect(ctx context.Context, userID int64, msg model.Message) error {
	p := n.payload(msg)
	p.Target = mqcontracts.TargetDirect
	p.UserID = userID
	return n.publish(ctx, p)
}

func (n *MQNotifier) SendToChannel(ctx context.Context, orgID int64, msg model.Message) error {
	p := n.payload(msg)
	p.Target = mqcontracts.TargetChannel
	p.OrgID = orgID
	return n.publish(ctx, p)
}

func (n *MQNotifier) payload(msg model.Message) mqcontracts.NotificationRequestedPayload {
	key := msg.IdempotencyKey
	if key == "" {
		// 公告类消息没有天然的幂等键
		key = uuid.NewString()
	}
	fields := make([]mqcontracts.NotificationField, 0, len(msg.Fields))
	for _, f := range msg.Fields {
		fields = append(fields, mqcontracts.NotificationField{Name: f.Name, Value: f.Value, Inline: f.Inline})
	}
	return mqcontracts.NotificationRequestedPayload{
		Key:       key,
		Kind:      string(msg.Kind),
		Title:     msg.Title,
		Body:      msg.Body,
		Fields:    fields,
		Footer:    msg.Footer,
		Urgent:    msg.Urgent,
		TaskID:    msg.TaskID,
		CreatedAt: n.now().UTC(),
	}
}

func (n *MQNotifier) publish(ctx context.Context, p mqcontracts.NotificationRequestedPayload) error {
	if err := n.publisher.Publish(ctx, mq.RoutingNotificationRequested, p.Key, p); err != nil {
		logger.WithTrace(ctx, n.logger).Error("Failed to publish notification",
			zap.String("key", p.Key),
			zap.String("kind", p.Kind),
			zap.String("target", p.Target),
			zap.Error(err),
		)
		return fmt.Errorf("publish notification %s: %w", p.Key, err)
	}
	logger.WithTrace(ctx, n.logger).Debug("Notification published",
		zap.String("key", p.Key),
		zap.String("kind", p.Kind),
		zap.String("target", p.Target),
	)
	return nil
}

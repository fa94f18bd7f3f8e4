package mqhandler

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	mqcontracts "github.com/Malixamran-01/MissMinutes/contracts/mq"
	"github.com/Malixamran-01/MissMinutes/internal/model"
	"github.com/Malixamran-01/MissMinutes/internal/notify"
	"github.com/Malixamran-01/MissMinutes/pkg/logger"
)

// Claimer 带释放的去重租约
type Claimer interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

// NotificationRelayHandler 消费 notification.requested，按幂等键去重后交给 sink
type NotificationRelayHandler struct {
	sink   notify.Sender
	claims Claimer
	ttl    time.Duration
	logger *zap.Logger
}

func NewNotificationRelayHandler(sink notify.Sender, claims Claimer, ttl time.Duration, logger *zap.Logger) *NotificationRelayHandler {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &NotificationRelayHandler{sink: sink, claims: claims, ttl: ttl, logger: logger}
}

func (h *NotificationRelayHandler) Handle(ctx context.Context, raw json.RawMessage) error {
	log := logger.WithTrace(ctx, h.logger)

	var p mqcontracts.NotificationRequestedPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		log.Error("Failed to unmarshal notification payload", zap.Error(err))
		return err
	}
	log = log.With(zap.String("key", p.Key), zap.String("kind", p.Kind))

	key := "relay:" + p.Key
	claimed, err := h.claims.Acquire(ctx, key, h.ttl)
	if err != nil {
		// 去重存储不可用时仍然投递
		log.Warn("Relay dedup check failed, delivering anyway", zap.Error(err))
		claimed = true
	}
	if !claimed {
		log.Info("Skipped duplicated notification")
		return nil
	}

	msg := toMessage(p)
	switch p.Target {
	case mqcontracts.TargetDirect:
		err = h.sink.SendDirect(ctx, p.UserID, msg)
	case mqcontracts.TargetChannel:
		err = h.sink.SendToChannel(ctx, p.OrgID, msg)
	default:
		log.Warn("Dropping notification with unknown target", zap.String("target", p.Target))
		return nil
	}
	if err != nil {
		if rerr := h.claims.Release(ctx, key); rerr != nil {
			log.Warn("Failed to release relay claim", zap.Error(rerr))
		}
		return fmt.Errorf("relay %s: %w", p.Key, err)
	}

	log.Debug("Notification relayed", zap.String("target", p.Target))
	return nil
}

func toMessage(p mqcontracts.NotificationRequestedPayload) model.Message {
	fields := make([]model.Field, 0, len(p.Fields))
	for _, f := range p.Fields {
		fields = append(fields, model.Field{Name: f.Name, Value: f.Value, Inline: f.Inline})
	}
	return model.Message{
		Kind:           model.MessageKind(p.Kind),
		Title:          p.Title,
		Body:           p.Body,
		Fields:         fields,
		Footer:         p.Footer,
		Urgent:         p.Urgent,
		TaskID:         p.TaskID,
		IdempotencyKey: p.Key,
	}
}

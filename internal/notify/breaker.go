package notify

import (
	"context"

	"go.uber.org/zap"

	"github.com/Malixamran-01/MissMinutes/internal/model"
	"github.com/Malixamran-01/MissMinutes/pkg/circuitbreaker"
)

// BreakerNotifier 下游连续失败时快速失败，失败的投递由调度器按退避重试
type BreakerNotifier struct {
	next    Sender
	breaker *circuitbreaker.CircuitBreaker
}

func NewBreakerNotifier(next Sender, cfg circuitbreaker.Config, logger *zap.Logger) *BreakerNotifier {
	if cfg.OnStateChange == nil {
		cfg.OnStateChange = func(from, to circuitbreaker.State) {
			logger.Warn("Notifier circuit breaker state changed",
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		}
	}
	return &BreakerNotifier{next: next, breaker: circuitbreaker.NewCircuitBreaker(cfg)}
}

func (b *BreakerNotifier) SendDirect(ctx context.Context, userID int64, msg model.Message) error {
	return b.breaker.Execute(func() error {
		return b.next.SendDirect(ctx, userID, msg)
	})
}

func (b *BreakerNotifier) SendToChannel(ctx context.Context, orgID int64, msg model.Message) error {
	return b.breaker.Execute(func() error {
		return b.next.SendToChannel(ctx, orgID, msg)
	})
}

// State 当前熔断状态
func (b *BreakerNotifier) State() circuitbreaker.State {
	return b.breaker.GetState()
}

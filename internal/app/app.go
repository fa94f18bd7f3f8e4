// Package app 按配置组装存储、通知、调度器和传输层。
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Malixamran-01/MissMinutes/internal/config"
	"github.com/Malixamran-01/MissMinutes/internal/handler"
	"github.com/Malixamran-01/MissMinutes/internal/httpserver"
	"github.com/Malixamran-01/MissMinutes/internal/mqhandler"
	"github.com/Malixamran-01/MissMinutes/internal/notify"
	"github.com/Malixamran-01/MissMinutes/internal/repository"
	"github.com/Malixamran-01/MissMinutes/internal/repository/sqlite"
	"github.com/Malixamran-01/MissMinutes/internal/service"
	"github.com/Malixamran-01/MissMinutes/pkg/circuitbreaker"
	"github.com/Malixamran-01/MissMinutes/pkg/db"
	"github.com/Malixamran-01/MissMinutes/pkg/mq"
	"github.com/Malixamran-01/MissMinutes/pkg/redis"
	"github.com/Malixamran-01/MissMinutes/pkg/util"
)

// Store 运行时需要的完整存储能力
type Store interface {
	service.Store
	Migrate(ctx context.Context) error
}

// claimer 租约，调度器与消费者共用，Redis 与本地实现都满足
type claimer interface {
	service.Claimer
	mqhandler.Claimer
}

type App struct {
	Config *config.Config
	Logger *zap.Logger

	Store     Store
	Clock     *service.OrgClock
	Karma     *service.KarmaScorer
	Lifecycle *service.Lifecycle
	Reminder  *service.ReminderScheduler
	Escalator *service.DeadlineEscalator
	Summary   *service.DailySummaryGenerator

	claims    claimer
	backoff   service.Backoff
	notifier  service.Notifier
	publisher *mq.Publisher
	rdb       *goredis.Client
}

// New 建立所有依赖，失败时释放已经打开的资源
func New(cfg *config.Config, log *zap.Logger) (*App, error) {
	a := &App{Config: cfg, Logger: log}
	if err := a.init(); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) init() (err error) {
	cfg, log := a.Config, a.Logger

	if a.Store, err = openStore(cfg, log); err != nil {
		return err
	}

	if cfg.RedisEnabled() {
		if a.rdb, err = redis.NewRedisClient(cfg.Redis, log); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		a.claims = util.NewDeduperWithLogger(a.rdb, cfg.Relay.DedupTTL, log)
		a.backoff = util.NewRetryCounter(a.rdb, 24*time.Hour, cfg.Scheduler.BackoffBase, cfg.Scheduler.BackoffMax)
	} else {
		log.Warn("Redis not configured, using in-process claims; run a single replica")
		a.claims = util.NewLocalDeduper(cfg.Relay.DedupTTL, nil)
		a.backoff = util.NewLocalRetryCounter(cfg.Scheduler.BackoffBase, cfg.Scheduler.BackoffMax)
	}

	var sender notify.Sender
	switch cfg.Notifier.Driver {
	case config.NotifierMQ:
		if a.publisher, err = mq.NewPublisher(cfg.MQ.URL); err != nil {
			return fmt.Errorf("mq publisher: %w", err)
		}
		sender = notify.NewMQNotifier(a.publisher, log)
	default:
		sender = notify.NewLogNotifier(log)
	}
	a.notifier = notify.NewBreakerNotifier(sender, circuitbreaker.Config{
		FailureThreshold:    cfg.Notifier.Breaker.FailureThreshold,
		SuccessThreshold:    cfg.Notifier.Breaker.SuccessThreshold,
		Timeout:             cfg.Notifier.Breaker.Timeout,
		HalfOpenMaxRequests: 1,
	}, log)

	orgs, zones := cfg.OrgSettings()
	a.Clock = service.NewOrgClock(nil, cfg.Location(), zones)
	a.Karma = service.NewKarmaScorer(a.Store, a.Clock, cfg.KarmaPolicy(), log)
	a.Lifecycle = service.NewLifecycle(a.Store, a.Karma, a.notifier, a.Clock, log)

	delivery := cfg.DeliveryConfig()
	a.Reminder = service.NewReminderScheduler(a.Store, a.notifier, a.Clock, a.claims, a.backoff,
		cfg.Scheduler.ReminderWindow, delivery, log)
	a.Escalator = service.NewDeadlineEscalator(a.Store, a.notifier, a.Clock, a.claims, a.backoff,
		a.Karma, delivery, log)
	a.Summary = service.NewDailySummaryGenerator(a.Store, a.notifier, a.Clock, a.claims,
		orgs, cfg.SummaryConfig(), log)

	log.Info("Application initialized",
		zap.String("store", cfg.Store.Driver),
		zap.String("notifier", cfg.Notifier.Driver),
		zap.Bool("redis", cfg.RedisEnabled()),
		zap.Int("organizations", len(orgs)),
	)
	return nil
}

func openStore(cfg *config.Config, log *zap.Logger) (Store, error) {
	switch cfg.Store.Driver {
	case config.StorePostgres:
		pool, err := db.NewConnection(cfg.DB, log)
		if err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}
		return repository.NewStore(pool, log), nil
	case config.StoreSQLite:
		s, err := sqlite.Open(cfg.Store.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("sqlite: %w", err)
		}
		return s, nil
	}
	return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
}

// Runners 三个周期任务，各自持有 ticker
func (a *App) Runners() []*service.Runner {
	s := a.Config.Scheduler
	return []*service.Runner{
		service.NewRunner(a.Reminder, s.ReminderInterval, a.Logger),
		service.NewRunner(a.Escalator, s.EscalationInterval, a.Logger),
		service.NewRunner(a.Summary, s.SummaryInterval, a.Logger),
	}
}

func (a *App) Router() *httpserver.Router {
	h := handler.NewTaskHandler(a.Lifecycle, a.Karma, a.Logger)
	rt := httpserver.NewRouter(h, a.Store, a.Logger)
	if a.rdb != nil {
		rt.AddReadiness("redis", func(ctx context.Context) error {
			return a.rdb.Ping(ctx).Err()
		})
	}
	if a.publisher != nil {
		rt.AddReadiness("mq", func(context.Context) error {
			if !a.publisher.IsConnected() {
				return errors.New("publisher connection closed")
			}
			return nil
		})
	}
	return rt
}

// Serve 运行调度器、HTTP 服务以及（可选的）MQ 命令消费者，直到 ctx 取消
func (a *App) Serve(ctx context.Context) error {
	if err := a.Store.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	var consumers []*mq.Consumer
	defer func() {
		for _, c := range consumers {
			c.Close()
		}
	}()
	if a.Config.Intake.Enabled {
		h := mqhandler.NewTaskCommandHandler(a.Lifecycle, a.claims, a.Config.Relay.DedupTTL, a.Logger)
		intake := []struct {
			queue, routingKey string
			handle            mq.MessageHandler
		}{
			{"task.assign.q", mq.RoutingTaskAssign, h.HandleAssign},
			{"task.status_update.q", mq.RoutingTaskStatusUpdate, h.HandleStatusUpdate},
		}
		for _, in := range intake {
			consumer, err := mq.NewConsumer(a.Config.MQ.URL, in.queue, in.routingKey, a.Logger)
			if err != nil {
				return fmt.Errorf("consumer %s: %w", in.queue, err)
			}
			consumer.SetHandler(in.handle)
			consumers = append(consumers, consumer)
		}
	}

	g, ctx := errgroup.WithContext(ctx)

	for _, r := range a.Runners() {
		r := r
		g.Go(func() error {
			r.Start(ctx)
			return nil
		})
	}
	for _, c := range consumers {
		c := c
		g.Go(func() error {
			return c.StartConsuming(ctx)
		})
	}

	srv := &http.Server{
		Addr:              ":" + a.Config.Server.Port,
		Handler:           a.Router().Engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	g.Go(func() error {
		a.Logger.Info("HTTP server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		a.Logger.Info("Shutting down HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// Relay 消费 notification.requested 并投递到日志 sink
func (a *App) Relay(ctx context.Context) error {
	consumer, err := mq.NewConsumer(a.Config.MQ.URL, a.Config.Relay.Queue, mq.RoutingNotificationRequested, a.Logger)
	if err != nil {
		return fmt.Errorf("relay consumer: %w", err)
	}
	defer consumer.Close()

	h := mqhandler.NewNotificationRelayHandler(notify.NewLogNotifier(a.Logger), a.claims, a.Config.Relay.DedupTTL, a.Logger)
	consumer.SetHandler(h.Handle)
	return consumer.StartConsuming(ctx)
}

// Close 释放连接，可重复调用
func (a *App) Close() {
	if a.publisher != nil {
		a.publisher.Close()
		a.publisher = nil
	}
	if a.rdb != nil {
		_ = a.rdb.Close()
		a.rdb = nil
	}
	if a.Store != nil {
		if err := a.Store.Close(); err != nil {
			a.Logger.Warn("Failed to close store", zap.Error(err))
		}
		a.Store = nil
	}
}

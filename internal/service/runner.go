package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Malixamran-01/MissMinutes/pkg/metrics"
	"github.com/Malixamran-01/MissMinutes/pkg/trace"
)

// Job 一个周期性任务
type Job interface {
	Name() string
	RunOnce(ctx context.Context) error
}

// Runner 为一个 Job 持有独立的 ticker
type Runner struct {
	job      Job
	interval time.Duration
	logger   *zap.Logger
}

func NewRunner(job Job, interval time.Duration, logger *zap.Logger) *Runner {
	return &Runner{job: job, interval: interval, logger: logger.With(zap.String("job", job.Name()))}
}

// Start 启动时立即执行一次，然后按间隔执行，直到 ctx 取消
func (r *Runner) Start(ctx context.Context) {
	r.logger.Info("Scheduler started", zap.Duration("interval", r.interval))

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.Tick(ctx)
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("Scheduler stopped")
			return
		case <-ticker.C:
			r.Tick(ctx)
		}
	}
}

// Tick 执行一轮，错误和 panic 只记录，不向外传播
func (r *Runner) Tick(ctx context.Context) {
	ctx = trace.WithContext(ctx, trace.GenerateTraceID())
	start := time.Now()

	err := r.safeRun(ctx)
	metrics.RecordPollCycle(r.job.Name(), time.Since(start))
	if err != nil && ctx.Err() == nil {
		metrics.IncrementPollCycleError(r.job.Name())
		r.logger.Error("Scheduler cycle failed",
			zap.String("trace_id", trace.FromContext(ctx)),
			zap.Error(err),
		)
	}
}

func (r *Runner) safeRun(ctx context.Context) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic in %s: %v", r.job.Name(), p)
		}
	}()
	return r.job.RunOnce(ctx)
}

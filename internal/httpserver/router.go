package httpserver

import (
	"context"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/Malixamran-01/MissMinutes/internal/handler"
	"github.com/Malixamran-01/MissMinutes/pkg/metrics"
	"github.com/Malixamran-01/MissMinutes/pkg/trace"
)

// Pinger 就绪检查依赖
type Pinger interface {
	Ping(ctx context.Context) error
}

type Router struct {
	Engine *gin.Engine
	checks []readiness
}

type readiness struct {
	name  string
	check func(ctx context.Context) error
}

// AddReadiness 追加一个 /readyz 检查项，按注册顺序执行
func (rt *Router) AddReadiness(name string, check func(ctx context.Context) error) {
	rt.checks = append(rt.checks, readiness{name: name, check: check})
}

func NewRouter(taskHandler *handler.TaskHandler, store Pinger, logger *zap.Logger) *Router {
	r := gin.New()
	r.Use(gin.Recovery(), RequestLogger(logger))
	rt := &Router{Engine: r}
	rt.AddReadiness("store", store.Ping)

	// Health endpoints
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
	r.HEAD("/healthz", func(c *gin.Context) {
		c.Status(200)
	})
	r.GET("/readyz", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 1*time.Second)
		defer cancel()

		for _, rc := range rt.checks {
			if err := rc.check(ctx); err != nil {
				c.JSON(503, gin.H{"status": rc.name + "_not_ready", "error": err.Error()})
				return
			}
		}
		c.JSON(200, gin.H{"status": "ready"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	tasks := r.Group("/tasks")
	{
		tasks.POST("", taskHandler.CreateTask)
		tasks.GET("", taskHandler.ListTasks)
		tasks.GET("/:id", taskHandler.GetTask)
		tasks.POST("/:id/status", taskHandler.UpdateStatus)
		tasks.GET("/:id/history", taskHandler.History)
	}
	orgs := r.Group("/orgs/:org_id")
	{
		orgs.GET("/tasks", taskHandler.ListOrgTasks)
		orgs.GET("/users/:user_id/stats", taskHandler.Stats)
	}

	return rt
}

// RequestLogger 为每个请求分配 trace id，记录耗时指标与访问日志
func RequestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		traceID := c.GetHeader(trace.HeaderName())
		if traceID == "" {
			traceID = trace.GenerateTraceID()
		}
		c.Request = c.Request.WithContext(trace.WithContext(c.Request.Context(), traceID))
		c.Header(trace.HeaderName(), traceID)

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		status := c.Writer.Status()
		elapsed := time.Since(start)
		metrics.RecordHTTPRequestDuration(c.Request.Method, path, strconv.Itoa(status), elapsed)

		logger.Info("HTTP request",
			zap.String("trace_id", traceID),
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", status),
			zap.Duration("latency", elapsed),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}

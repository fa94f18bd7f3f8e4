package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// 通知投递结果
	NotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "missminutes_notifications_total",
			Help: "Notification delivery attempts by kind and result",
		},
		[]string{"kind", "result"}, // result: sent, failed, skipped
	)

	// 轮询周期耗时（秒）
	PollCycleDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "missminutes_poll_cycle_duration_seconds",
			Help:    "Duration of one scheduler poll cycle in seconds",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~10s
		},
		[]string{"job"},
	)

	PollCycleErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "missminutes_poll_cycle_errors_total",
			Help: "Scheduler poll cycles aborted by an error",
		},
		[]string{"job"},
	)

	KarmaEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "missminutes_karma_events_total",
			Help: "Karma events applied to user stats",
		},
		[]string{"event"}, // completed, overdue
	)

	DailySummaries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "missminutes_daily_summaries_total",
			Help: "Daily summaries by result",
		},
		[]string{"result"}, // sent, failed
	)

	TaskUpdates = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "missminutes_task_updates_total",
			Help: "Applied task status updates by new status",
		},
		[]string{"status"},
	)

	// MQ 消费延迟（毫秒）
	MQConsumeLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mq_consume_latency_ms",
			Help:    "MQ message consumption latency in milliseconds",
			Buckets: prometheus.ExponentialBuckets(10, 2, 10), // 10ms to ~10s
		},
		[]string{"routing_key", "queue"},
	)

	// 数据库查询延迟（秒）
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"operation", "table"},
	)

	DBSlowQueries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "db_slow_query_total",
			Help: "Queries slower than the configured threshold",
		},
		[]string{"operation", "table"},
	)

	// HTTP 请求延迟（秒）
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"method", "path", "status"},
	)
)

// IncrementNotification 记录一次投递结果
func IncrementNotification(kind, result string) {
	NotificationsTotal.WithLabelValues(kind, result).Inc()
}

// RecordPollCycle 记录一次轮询耗时
func RecordPollCycle(job string, duration time.Duration) {
	PollCycleDuration.WithLabelValues(job).Observe(duration.Seconds())
}

func IncrementPollCycleError(job string) {
	PollCycleErrors.WithLabelValues(job).Inc()
}

func IncrementKarmaEvent(event string) {
	KarmaEvents.WithLabelValues(event).Inc()
}

func IncrementDailySummary(result string) {
	DailySummaries.WithLabelValues(result).Inc()
}

func IncrementTaskUpdate(status string) {
	TaskUpdates.WithLabelValues(status).Inc()
}

// RecordMQConsumeLatency 记录 MQ 消费延迟
func RecordMQConsumeLatency(routingKey, queue string, duration time.Duration) {
	MQConsumeLatency.WithLabelValues(routingKey, queue).Observe(float64(duration.Milliseconds()))
}

// RecordDBQueryDuration 记录数据库查询延迟
func RecordDBQueryDuration(operation, table string, duration time.Duration) {
	DBQueryDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
}

// IncrementSlowQuery 记录慢查询
func IncrementSlowQuery(operation, table string) {
	DBSlowQueries.WithLabelValues(operation, table).Inc()
}

// RecordHTTPRequestDuration 记录 HTTP 请求延迟
func RecordHTTPRequestDuration(method, path, status string, duration time.Duration) {
	HTTPRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}

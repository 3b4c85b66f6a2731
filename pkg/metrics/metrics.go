package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// 调度器 tick 耗时（秒）
	SchedulerTickDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scheduler_tick_duration_seconds",
			Help:    "Duration of one scheduler tick in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~40s
		},
		[]string{"scheduler"}, // scheduler: recurring, reminder
	)

	// 每个 tick 扫描到的到期项
	DueItemsScanned = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scheduler_due_items_scanned_total",
			Help: "Total number of due items returned by tick scans",
		},
		[]string{"scheduler"},
	)

	// 抢占结果计数
	ClaimResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scheduler_claim_results_total",
			Help: "Total claim attempts by outcome",
		},
		[]string{"scheduler", "outcome"}, // outcome: won, lost
	)

	// 任务生成计数
	TaskSpawnCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recurring_task_spawn_total",
			Help: "Total number of task instances spawned from recurring configs",
		},
		[]string{"status"}, // status: success, failed
	)

	// 通知投递计数
	DeliveryCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notification_delivery_total",
			Help: "Total number of notification deliveries",
		},
		[]string{"channel", "status"}, // status: delivered, failed, deduped
	)

	// 单次投递的尝试次数分布
	DeliveryAttempts = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "notification_delivery_attempts",
			Help:    "Number of attempts a delivery took before a terminal state",
			Buckets: prometheus.LinearBuckets(1, 1, 8),
		},
		[]string{"channel"},
	)

	// 慢查询计数
	SlowQueryCount = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "db_slow_query_total",
			Help: "Total number of queries exceeding the slow query threshold",
		},
	)

	// 慢查询耗时分布（秒）
	SlowQueryDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "db_slow_query_duration_seconds",
			Help:    "Duration of slow queries in seconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 8), // 100ms to ~12s
		},
	)

	// MQ 消费延迟（毫秒）
	MQConsumeLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mq_consume_latency_ms",
			Help:    "MQ message consumption latency in milliseconds",
			Buckets: prometheus.ExponentialBuckets(10, 2, 10), // 10ms to ~10s
		},
		[]string{"topic", "queue"},
	)
)

// RecordTick 记录一次 tick 的耗时
func RecordTick(scheduler string, duration time.Duration) {
	SchedulerTickDuration.WithLabelValues(scheduler).Observe(duration.Seconds())
}

// RecordClaim 记录一次抢占结果
func RecordClaim(scheduler string, won bool) {
	outcome := "won"
	if !won {
		outcome = "lost"
	}
	ClaimResults.WithLabelValues(scheduler, outcome).Inc()
}

// RecordSpawn 记录一次任务生成
func RecordSpawn(success bool) {
	status := "success"
	if !success {
		status = "failed"
	}
	TaskSpawnCount.WithLabelValues(status).Inc()
}

// RecordDelivery 记录一次通知投递结果
func RecordDelivery(channel, status string) {
	DeliveryCount.WithLabelValues(channel, status).Inc()
}

// IncrementSlowQuery 记录一次慢查询
func IncrementSlowQuery(duration time.Duration) {
	SlowQueryCount.Inc()
	SlowQueryDuration.Observe(duration.Seconds())
}

// RecordMQConsumeLatency 记录 MQ 消费延迟
func RecordMQConsumeLatency(topic, queue string, duration time.Duration) {
	MQConsumeLatency.WithLabelValues(topic, queue).Observe(float64(duration.Milliseconds()))
}

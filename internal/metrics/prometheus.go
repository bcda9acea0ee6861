package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestsTotal общее количество запросов
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	// RequestDuration продолжительность запросов
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	// ComputationsTotal расчеты по исходу: ok, invalid_input, insufficient_data, error
	ComputationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wpa_computations_total",
			Help: "Total number of WPA computations by outcome",
		},
		[]string{"outcome"},
	)

	// StageLatency задержка этапов конвейера
	StageLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "wpa_stage_latency_seconds",
			Help:    "WPA pipeline stage latency in seconds",
			Buckets: []float64{.001, .005, .01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"stage"},
	)

	// SamplesClassified отсчеты по состояниям
	SamplesClassified = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wpa_samples_classified_total",
			Help: "Total number of classified samples by status",
		},
		[]string{"status"},
	)

	// FallbacksUsed сработавшие запасные методы
	FallbacksUsed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wpa_fallbacks_total",
			Help: "Total number of estimator fallbacks used",
		},
		[]string{"kind"},
	)

	// QueueSize размер очереди асинхронных расчетов
	QueueSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "processing_queue_size",
			Help: "Current size of the computation queue",
		},
	)

	// ActiveJobs выполняемые расчеты
	ActiveJobs = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "wpa_active_jobs",
			Help: "Number of computations currently running",
		},
	)

	// RedisOperations операции с Redis
	RedisOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "redis_operations_total",
			Help: "Total number of Redis operations",
		},
		[]string{"operation", "status"},
	)

	// CacheHitRate коэффициент попаданий в кэш
	CacheHitRate = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "cache_hit_rate",
			Help: "Cache hit rate",
		},
		[]string{"cache_type"},
	)

	// KafkaPublishes публикации событий
	KafkaPublishes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kafka_publishes_total",
			Help: "Total number of Kafka publish attempts",
		},
		[]string{"topic", "status"},
	)

	// DatabaseOperations операции с Postgres
	DatabaseOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "database_operations_total",
			Help: "Total number of database operations",
		},
		[]string{"operation", "status"},
	)
)

// Outcome метка исхода по признаку успеха
func Outcome(err error) string {
	if err == nil {
		return "success"
	}
	return "error"
}

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Значения метки mode для удаленных записей
const (
	ModeSoft   = "soft"
	ModeHard   = "hard"
	ModeDryRun = "dry_run"
)

// Значения метки result для попыток выполнения задач
const (
	ResultSucceeded = "succeeded"
	ResultRetried   = "retried"
	ResultFailed    = "failed"
)

// Metrics хранит метрики планирования и выполнения задач удаления
type Metrics struct {
	TasksQueued        prometheus.Counter
	EntriesSelected    prometheus.Counter
	EntriesDeleted     *prometheus.CounterVec
	EntriesMissing     prometheus.Counter
	TaskAttempts       *prometheus.CounterVec
	EnvironmentDenials prometheus.Counter
	TaskDuration       prometheus.Histogram
	HTTPRequests       *prometheus.CounterVec
}

// New создает метрики и регистрирует их в reg
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		TasksQueued: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "chopper",
			Name:      "tasks_queued_total",
			Help:      "Number of batch deletion tasks pushed to the queue.",
		}),
		EntriesSelected: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "chopper",
			Name:      "entries_selected_total",
			Help:      "Number of entries sampled for deletion.",
		}),
		EntriesDeleted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chopper",
			Name:      "entries_deleted_total",
			Help:      "Number of entries deleted, by delete mode.",
		}, []string{"mode"}),
		EntriesMissing: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "chopper",
			Name:      "entries_missing_total",
			Help:      "Number of selected entries already gone at execution time.",
		}),
		TaskAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chopper",
			Name:      "task_attempts_total",
			Help:      "Number of task attempts, by result.",
		}, []string{"result"}),
		EnvironmentDenials: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "chopper",
			Name:      "environment_denials_total",
			Help:      "Number of runs refused by the environment lock.",
		}),
		TaskDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "chopper",
			Name:      "task_duration_seconds",
			Help:      "Duration of a single task attempt.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
		}),
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chopper",
			Name:      "http_requests_total",
			Help:      "Number of API requests, by method, route template and status code.",
		}, []string{"method", "route", "code"}),
	}
}

// NewNop создает метрики, не привязанные к общему реестру
func NewNop() *Metrics {
	return New(prometheus.NewRegistry())
}

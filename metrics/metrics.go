package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome and rejection label values.
const (
	OutcomeSuccess   = "success"
	OutcomeError     = "error"
	OutcomeDiscarded = "discarded"

	ReasonLifecycle  = "lifecycle"
	ReasonValidation = "validation"
)

// PoolMetrics holds the collectors updated by the worker pool coordinator.
// A nil *PoolMetrics is valid and records nothing.
type PoolMetrics struct {
	QueueSize      prometheus.Gauge
	BusyWorkers    prometheus.Gauge
	LiveWorkers    prometheus.Gauge
	TasksSubmitted prometheus.Counter
	TasksCompleted *prometheus.CounterVec
	TasksRejected  *prometheus.CounterVec
	TaskDuration   prometheus.Histogram
}

func NewPoolMetrics(registerer prometheus.Registerer) *PoolMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registerer)

	return &PoolMetrics{
		QueueSize: factory.NewGauge(prometheus.GaugeOpts{
			Name: "offload_pool_queue_size",
			Help: "Tasks queued or executing but not yet completed",
		}),
		BusyWorkers: factory.NewGauge(prometheus.GaugeOpts{
			Name: "offload_pool_busy_workers",
			Help: "Workers currently executing a task",
		}),
		LiveWorkers: factory.NewGauge(prometheus.GaugeOpts{
			Name: "offload_pool_live_workers",
			Help: "Live worker goroutines",
		}),
		TasksSubmitted: factory.NewCounter(prometheus.CounterOpts{
			Name: "offload_pool_tasks_submitted_total",
			Help: "Tasks accepted by the pool",
		}),
		TasksCompleted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "offload_pool_tasks_completed_total",
			Help: "Tasks completed by outcome",
		}, []string{"outcome"}),
		TasksRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "offload_pool_tasks_rejected_total",
			Help: "Submissions rejected before entering the queue",
		}, []string{"reason"}),
		TaskDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "offload_pool_task_duration_seconds",
			Help:    "Task execution time inside a worker",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

func (m *PoolMetrics) Submitted() {
	if m == nil {
		return
	}
	m.TasksSubmitted.Inc()
}

func (m *PoolMetrics) Rejected(reason string) {
	if m == nil {
		return
	}
	m.TasksRejected.WithLabelValues(reason).Inc()
}

func (m *PoolMetrics) Completed(outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.TasksCompleted.WithLabelValues(outcome).Inc()
	if elapsed > 0 {
		m.TaskDuration.Observe(elapsed.Seconds())
	}
}

func (m *PoolMetrics) Observe(queueSize, busy, live int) {
	if m == nil {
		return
	}
	m.QueueSize.Set(float64(queueSize))
	m.BusyWorkers.Set(float64(busy))
	m.LiveWorkers.Set(float64(live))
}

// Handler serves the metrics gathered by gatherer.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

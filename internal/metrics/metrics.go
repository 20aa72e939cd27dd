package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/contentpress/bakerd/internal/domain"
	"github.com/contentpress/bakerd/internal/executor"
)

// Metrics groups all Prometheus instruments used across the application.
// Registered once at startup via New(); passed by pointer wherever needed.
type Metrics struct {
	NotificationsReceived *prometheus.CounterVec
	DecodeFailures        *prometheus.CounterVec
	BakesCompleted        *prometheus.CounterVec
	BakeDuration          prometheus.Histogram
	TaskDuration          *prometheus.HistogramVec
	TaskQueueDepth        prometheus.Gauge
}

// New registers all instruments with the given Prometheus registerer and
// returns the populated Metrics struct.
// Using a custom registry (instead of prometheus.DefaultRegisterer) keeps
// tests isolated and avoids global state.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		NotificationsReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notifications_received_total",
			Help: "Total notifications delivered by the database channel.",
		}, []string{"channel"}),

		DecodeFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notification_decode_failures_total",
			Help: "Notifications dropped because the payload or channel could not be decoded.",
		}, []string{"channel"}),

		BakesCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bakes_completed_total",
			Help: "Bake attempts by terminal state (current, fallback, errored).",
		}, []string{"state"}),

		BakeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "bake_duration_seconds",
			Help:    "Full bake task duration from dequeue to terminal state write.",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 12),
		}),

		TaskDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "task_duration_seconds",
			Help:    "Executor task runtime from worker pickup to completion, by outcome.",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 12),
		}, []string{"state"}),

		TaskQueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "task_queue_depth",
			Help: "Number of bake tasks waiting for an executor worker.",
		}),
	}

	reg.MustRegister(
		m.NotificationsReceived,
		m.DecodeFailures,
		m.BakesCompleted,
		m.BakeDuration,
		m.TaskDuration,
		m.TaskQueueDepth,
	)

	return m
}

// ListenerHooks returns the callbacks expected by listener.MetricHooks.
// Centralises the prometheus observation calls so the listener stays
// import-free.
func (m *Metrics) ListenerHooks() (onReceived, onDecodeFailure func(channel string)) {
	onReceived = func(ch string) {
		m.NotificationsReceived.WithLabelValues(ch).Inc()
	}
	onDecodeFailure = func(ch string) {
		m.DecodeFailures.WithLabelValues(ch).Inc()
	}
	return
}

// BakeHooks returns the callback expected by bake.MetricHooks.
func (m *Metrics) BakeHooks() (onBaked func(state domain.BakeState, d time.Duration)) {
	return func(state domain.BakeState, d time.Duration) {
		m.BakesCompleted.WithLabelValues(string(state)).Inc()
		m.BakeDuration.Observe(d.Seconds())
	}
}

// ExecutorHooks returns the callbacks expected by executor.MetricHooks.
// The task-level duration is distinct from BakeDuration: it covers the
// full worker occupancy including the rate-limiter wait.
func (m *Metrics) ExecutorHooks() executor.MetricHooks {
	return executor.MetricHooks{
		OnQueued: func(depth int) {
			m.TaskQueueDepth.Set(float64(depth))
		},
		OnFinished: func(state executor.State, d time.Duration) {
			m.TaskDuration.WithLabelValues(string(state)).Observe(d.Seconds())
		},
	}
}

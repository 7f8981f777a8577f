package server

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ramparte/deployotron/internal/store"
)

var durationBuckets = []float64{1, 5, 15, 30, 60, 120, 300, 600}

// Metrics holds the Prometheus collectors the server maintains.
type Metrics struct {
	registry    *prometheus.Registry
	deployments *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	rejections  prometheus.Counter
}

// NewMetrics creates and registers the collectors on a private registry,
// so tests can build servers without collector name collisions.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		deployments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "deployotron",
			Name:      "deployments_total",
			Help:      "Count of finished deployments by terminal status",
		}, []string{"project", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "deployotron",
			Name:      "deployment_duration_seconds",
			Help:      "Wall-clock duration of deployment runs",
			Buckets:   durationBuckets,
		}, []string{"project"}),
		rejections: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "deployotron",
			Name:      "deployments_rejected_total",
			Help:      "Deployment requests rejected because one was already in flight",
		}),
	}

	registry.MustRegister(m.deployments, m.duration, m.rejections)
	return m
}

// RegisterDroppedEvents exposes a gauge backed by the publisher's dropped
// progress-event counter.
func (m *Metrics) RegisterDroppedEvents(read func() int64) {
	m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "deployotron",
		Name:      "progress_events_dropped",
		Help:      "Progress events discarded because the publisher buffer was full",
	}, func() float64 { return float64(read()) }))
}

// Handler serves the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveDeployment records a finished run.
func (m *Metrics) ObserveDeployment(project string, status store.Status, duration time.Duration) {
	m.deployments.WithLabelValues(project, string(status)).Inc()
	m.duration.WithLabelValues(project).Observe(duration.Seconds())
}

// ObserveRejection records a run rejected by the per-project lock.
func (m *Metrics) ObserveRejection() {
	m.rejections.Inc()
}

// Package metrics carries the processor's Prometheus surface, adapted from
// the teacher's RequestsTotal/DatabaseOperations-style vectors onto the
// stream-consumer's own shape: throughput and outcome per event type,
// dead-letter volume, handler latency, pending-recovery counts, and an
// approximate consumer lag gauge sourced from XPending's reported count.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every processor-shaped Prometheus collector. Construct one
// per process with New; it satisfies internal/processor.Metrics.
type Metrics struct {
	EventsProcessedTotal  *prometheus.CounterVec
	EventsDLQTotal        *prometheus.CounterVec
	HandlerDuration       *prometheus.HistogramVec
	PendingRecoveredTotal *prometheus.CounterVec
	ConsumerLag           *prometheus.GaugeVec
	ServiceHealth         *prometheus.GaugeVec
}

// New registers every collector under namespace and returns the handle the
// processor loop records against.
func New(namespace string) *Metrics {
	return &Metrics{
		EventsProcessedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_processed_total",
				Help:      "Total number of stream entries processed, by event type and outcome",
			},
			[]string{"event_type", "outcome"},
		),
		EventsDLQTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_dlq_total",
				Help:      "Total number of entries routed to the dead-letter stream, by event type",
			},
			[]string{"event_type"},
		),
		HandlerDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "handler_duration_seconds",
				Help:      "Projection handler execution duration in seconds, by event type",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"event_type"},
		),
		PendingRecoveredTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "pending_recovered_total",
				Help:      "Total number of pending entries recovered at startup, by stream",
			},
			[]string{"stream"},
		),
		ConsumerLag: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "consumer_lag",
				Help:      "Approximate number of delivered but unacked entries per stream (from XPending)",
			},
			[]string{"stream"},
		),
		ServiceHealth: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "service_health",
				Help:      "Service health status (1=healthy, 0=unhealthy)",
			},
			[]string{"component"},
		),
	}
}

// RecordProcessed satisfies internal/processor.Metrics.
func (m *Metrics) RecordProcessed(eventType, outcome string) {
	m.EventsProcessedTotal.WithLabelValues(eventType, outcome).Inc()
}

// RecordDLQ satisfies internal/processor.Metrics.
func (m *Metrics) RecordDLQ(eventType string) {
	m.EventsDLQTotal.WithLabelValues(eventType).Inc()
}

// RecordHandlerDuration satisfies internal/processor.Metrics.
func (m *Metrics) RecordHandlerDuration(eventType string, d time.Duration) {
	m.HandlerDuration.WithLabelValues(eventType).Observe(d.Seconds())
}

// RecordPendingRecovered satisfies internal/processor.Metrics.
func (m *Metrics) RecordPendingRecovered(stream string, count int) {
	m.PendingRecoveredTotal.WithLabelValues(stream).Add(float64(count))
}

// SetConsumerLag records an approximate per-stream backlog size, polled by
// the bootstrap's periodic lag-reporting goroutine.
func (m *Metrics) SetConsumerLag(stream string, lag int64) {
	m.ConsumerLag.WithLabelValues(stream).Set(float64(lag))
}

func (m *Metrics) SetServiceHealth(component string, healthy bool) {
	var value float64
	if healthy {
		value = 1
	}
	m.ServiceHealth.WithLabelValues(component).Set(value)
}

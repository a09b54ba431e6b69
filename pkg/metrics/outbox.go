package metrics

import "github.com/prometheus/client_golang/prometheus"

// Outcomes recorded by OutboxMetrics.
const (
	OutboxPublished    = "published"
	OutboxRetried      = "retried"
	OutboxDeadLettered = "dead_lettered"
	OutboxHeldBack     = "held_back"
)

// OutboxMetrics counts publisher outcomes per event type. A nil receiver
// drops every call.
type OutboxMetrics struct {
	events  *prometheus.CounterVec
	batches prometheus.Histogram
}

// NewOutboxMetrics returns nil when reg is nil.
func NewOutboxMetrics(reg prometheus.Registerer) *OutboxMetrics {
	if reg == nil {
		return nil
	}
	m := &OutboxMetrics{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mandi_outbox_events_total",
			Help: "Outbox rows handled by the publisher, by event type and outcome.",
		}, []string{"event_type", "outcome"}),
		batches: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "mandi_outbox_batch_size",
			Help:    "Rows claimed per non-empty publisher batch.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 8),
		}),
	}
	reg.MustRegister(m.events, m.batches)
	return m
}

func (m *OutboxMetrics) Event(eventType, outcome string) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(eventType, outcome).Inc()
}

func (m *OutboxMetrics) Batch(size int) {
	if m == nil || size == 0 {
		return
	}
	m.batches.Observe(float64(size))
}

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// WebhookMetrics records reconciliation outcomes for payment webhooks.
type WebhookMetrics struct {
	duration *prometheus.HistogramVec
	success  *prometheus.CounterVec
	failure  *prometheus.CounterVec
	ignored  *prometheus.CounterVec
}

// NewWebhookMetrics registers the webhook metrics on the provided registerer.
func NewWebhookMetrics(reg prometheus.Registerer) *WebhookMetrics {
	if reg == nil {
		return &WebhookMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "webhook_duration_seconds",
		Help:    "Duration of webhook reconciliation in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"event"})
	success := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_success",
		Help: "Webhook events reconciled successfully.",
	}, []string{"event"})
	failure := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_failure",
		Help: "Webhook events that failed reconciliation.",
	}, []string{"event"})
	ignored := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_ignored",
		Help: "Webhook events acknowledged without effect (unknown order, duplicate, unhandled type).",
	}, []string{"event"})
	reg.MustRegister(duration, success, failure, ignored)
	return &WebhookMetrics{
		duration: duration,
		success:  success,
		failure:  failure,
		ignored:  ignored,
	}
}

// ObserveDuration records the reconciliation duration for the event type.
func (w *WebhookMetrics) ObserveDuration(event string, duration time.Duration) {
	if w == nil || w.duration == nil {
		return
	}
	w.duration.WithLabelValues(normalizeLabel(event)).Observe(duration.Seconds())
}

// IncSuccess increments the success counter for the event type.
func (w *WebhookMetrics) IncSuccess(event string) {
	if w == nil || w.success == nil {
		return
	}
	w.success.WithLabelValues(normalizeLabel(event)).Inc()
}

// IncFailure increments the failure counter for the event type.
func (w *WebhookMetrics) IncFailure(event string) {
	if w == nil || w.failure == nil {
		return
	}
	w.failure.WithLabelValues(normalizeLabel(event)).Inc()
}

// IncIgnored increments the no-op counter for the event type.
func (w *WebhookMetrics) IncIgnored(event string) {
	if w == nil || w.ignored == nil {
		return
	}
	w.ignored.WithLabelValues(normalizeLabel(event)).Inc()
}

func normalizeLabel(event string) string {
	if event == "" {
		return "unknown"
	}
	return event
}

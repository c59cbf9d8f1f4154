package obs

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// PaymentPreferenceTotal counts checkout preference creation outcomes.
	PaymentPreferenceTotal *prometheus.CounterVec
	// PaymentWebhookTotal counts inbound gateway notifications by outcome.
	PaymentWebhookTotal *prometheus.CounterVec
	// PaymentReconcileTotal counts reconciliation outcomes.
	PaymentReconcileTotal *prometheus.CounterVec
	// PaymentStoreUpsertTotal counts conditional upserts by backend and outcome.
	PaymentStoreUpsertTotal *prometheus.CounterVec
	// GatewayRequestDuration records gateway call latency in milliseconds.
	GatewayRequestDuration *prometheus.HistogramVec
	// EventsPublishedTotal counts status change events handed to notifiers.
	EventsPublishedTotal *prometheus.CounterVec
)

// MustRegisterDomainMetrics initialises and registers payment collectors.
// Safe to call more than once; later calls are no-ops.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		PaymentPreferenceTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_preference_total",
			Help:      "Count of checkout preference creation outcomes.",
		}, []string{"result"})
		PaymentWebhookTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_webhook_total",
			Help:      "Count of processed payment notifications by outcome.",
		}, []string{"result"})
		PaymentReconcileTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_reconcile_total",
			Help:      "Count of payment reconciliations by outcome.",
		}, []string{"result"})
		PaymentStoreUpsertTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_store_upsert_total",
			Help:      "Count of conditional payment record writes.",
		}, []string{"backend", "result"})
		GatewayRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "gateway_request_duration_ms",
			Help:      "Latency of payment gateway calls in milliseconds.",
			Buckets:   []float64{50, 100, 250, 500, 1000, 2500, 5000, 10000, 15000},
		}, []string{"operation", "result"})
		EventsPublishedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_events_published_total",
			Help:      "Count of payment status change events by notifier and outcome.",
		}, []string{"notifier", "result"})

		register(reg, &PaymentPreferenceTotal)
		register(reg, &PaymentWebhookTotal)
		register(reg, &PaymentReconcileTotal)
		register(reg, &PaymentStoreUpsertTotal)
		register(reg, &EventsPublishedTotal)
		register(reg, &GatewayRequestDuration)
	})
}

// IncCounter bumps a domain counter when metrics are registered. Components
// call it unconditionally so tests without a registry keep working.
func IncCounter(vec *prometheus.CounterVec, labels ...string) {
	if vec == nil {
		return
	}
	vec.WithLabelValues(labels...).Inc()
}

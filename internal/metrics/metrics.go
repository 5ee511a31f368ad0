package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	DeliveriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tidehook_deliveries_total",
			Help: "Total number of delivery attempts by resulting status.",
		},
		[]string{"status", "tenant_id", "subscriber_id"},
	)

	DeliveryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tidehook_delivery_duration_seconds",
			Help:    "Webhook delivery attempt duration.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"tenant_id", "subscriber_id"},
	)

	RetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tidehook_retries_total",
			Help: "Total number of delivery retries scheduled, by reason.",
		},
		[]string{"reason"}, // e.g. http_5xx, timeout, network, http_4xx
	)

	DeadLettersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tidehook_dead_letters_total",
			Help: "Total number of deliveries that exhausted their retries, by reason.",
		},
		[]string{"reason"},
	)

	SubscribersDisabledTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tidehook_subscribers_disabled_total",
			Help: "Total number of subscribers deactivated after a permanent failure.",
		},
	)

	SweepBatchSize = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tidehook_sweep_batch_size",
			Help:    "Number of due retries processed per sweep pass.",
			Buckets: []float64{0, 1, 5, 10, 25, 50, 100, 250},
		},
	)
)

func MustRegister(reg *prometheus.Registry) {
	reg.MustRegister(
		DeliveriesTotal,
		DeliveryDuration,
		RetriesTotal,
		DeadLettersTotal,
		SubscribersDisabledTotal,
		SweepBatchSize,
	)
}

// RecordDelivery records one delivery attempt outcome and its latency.
func RecordDelivery(status, tenantID, subscriberID string, duration time.Duration) {
	DeliveriesTotal.WithLabelValues(status, tenantID, subscriberID).Inc()
	if duration > 0 {
		DeliveryDuration.WithLabelValues(tenantID, subscriberID).Observe(duration.Seconds())
	}
}

// RecordRetry records a scheduled retry by failure reason.
func RecordRetry(reason string) {
	RetriesTotal.WithLabelValues(reason).Inc()
}

// RecordDeadLetter records a delivery that exhausted its retries.
func RecordDeadLetter(reason string) {
	DeadLettersTotal.WithLabelValues(reason).Inc()
}

// RecordSubscriberDisabled records a permanent-failure deactivation.
func RecordSubscriberDisabled() {
	SubscribersDisabledTotal.Inc()
}

// RecordSweep records the size of one sweep batch.
func RecordSweep(processed int) {
	SweepBatchSize.Observe(float64(processed))
}

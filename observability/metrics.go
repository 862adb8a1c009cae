// Package observability provides Prometheus metrics and OpenTelemetry
// tracing for the delivery engine.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Delivery outcome label values for DeliveriesTotal.
const (
	OutcomeSucceeded   = "succeeded"    // completed, 2xx
	OutcomeRemoteError = "remote_error" // completed, non-2xx
	OutcomeErrored     = "errored"      // no response obtained
)

// Metrics holds the Prometheus instruments for the engine.
type Metrics struct {
	EventsDispatched   prometheus.Counter
	DeliveriesTotal    *prometheus.CounterVec
	DeliveryLatency    prometheus.Histogram
	PendingDeliveries  prometheus.Gauge
	ResolutionsBlocked prometheus.Counter
	ResponsesTruncated prometheus.Counter
	EndpointsDisabled  prometheus.Counter
	DeliveriesSwept    prometheus.Counter
}

// NewMetrics creates and registers the engine's instruments with reg.
// Pass prometheus.DefaultRegisterer for standalone usage.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		EventsDispatched: factory.NewCounter(prometheus.CounterOpts{
			Name: "hookpost_events_dispatched_total",
			Help: "Events accepted for fan-out.",
		}),
		DeliveriesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "hookpost_deliveries_total",
			Help: "Delivery attempts by outcome.",
		}, []string{"outcome"}),
		DeliveryLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "hookpost_delivery_latency_seconds",
			Help:    "Latency of delivery attempts.",
			Buckets: prometheus.DefBuckets,
		}),
		PendingDeliveries: factory.NewGauge(prometheus.GaugeOpts{
			Name: "hookpost_pending_deliveries",
			Help: "Deliveries awaiting attempt.",
		}),
		ResolutionsBlocked: factory.NewCounter(prometheus.CounterOpts{
			Name: "hookpost_resolutions_blocked_total",
			Help: "Deliveries rejected because the destination resolved only to blocked addresses.",
		}),
		ResponsesTruncated: factory.NewCounter(prometheus.CounterOpts{
			Name: "hookpost_responses_truncated_total",
			Help: "Response bodies cut at the configured byte cap.",
		}),
		EndpointsDisabled: factory.NewCounter(prometheus.CounterOpts{
			Name: "hookpost_endpoints_disabled_total",
			Help: "Endpoints deactivated by the delinquency tracker.",
		}),
		DeliveriesSwept: factory.NewCounter(prometheus.CounterOpts{
			Name: "hookpost_deliveries_swept_total",
			Help: "Delivery records deleted by the retention sweeper.",
		}),
	}
}

// RecordDelivery records one delivery attempt with the given outcome and latency.
func (m *Metrics) RecordDelivery(outcome string, latencySeconds float64) {
	m.DeliveriesTotal.WithLabelValues(outcome).Inc()
	m.DeliveryLatency.Observe(latencySeconds)
}

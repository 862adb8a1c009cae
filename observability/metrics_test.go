package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestNewMetricsRegisters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	if m.EventsDispatched == nil {
		t.Fatal("EventsDispatched should not be nil")
	}
	if m.DeliveriesTotal == nil {
		t.Fatal("DeliveriesTotal should not be nil")
	}
	if m.DeliveryLatency == nil {
		t.Fatal("DeliveryLatency should not be nil")
	}
	if m.PendingDeliveries == nil {
		t.Fatal("PendingDeliveries should not be nil")
	}
	if m.ResolutionsBlocked == nil {
		t.Fatal("ResolutionsBlocked should not be nil")
	}
	if m.EndpointsDisabled == nil {
		t.Fatal("EndpointsDisabled should not be nil")
	}
}

func TestRecordDelivery(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.RecordDelivery(OutcomeSucceeded, 0.5)
	m.RecordDelivery(OutcomeSucceeded, 1.2)
	m.RecordDelivery(OutcomeErrored, 0.3)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}

	found := false
	for _, f := range families {
		if f.GetName() == "hookpost_deliveries_total" {
			found = true
			metrics := f.GetMetric()
			if len(metrics) != 2 { // succeeded + errored
				t.Fatalf("expected 2 label combinations, got %d", len(metrics))
			}
		}
	}
	if !found {
		t.Fatal("hookpost_deliveries_total metric not found")
	}
}

func TestOutcomeLabels(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	// All three outcome values must be accepted by the vec.
	for _, outcome := range []string{OutcomeSucceeded, OutcomeRemoteError, OutcomeErrored} {
		m.DeliveriesTotal.WithLabelValues(outcome).Inc()
	}
}

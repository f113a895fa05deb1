package rtpsmetrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestRegisterThenIncrementIsObservable(t *testing.T) {
	reg := prometheus.NewRegistry()
	if err := Register(reg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	HeartbeatsSent.WithLabelValues("w1").Inc()
	HeartbeatsSent.WithLabelValues("w1").Inc()

	metric := &dto.Metric{}
	if err := HeartbeatsSent.WithLabelValues("w1").Write(metric); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if metric.GetCounter().GetValue() != 2 {
		t.Fatalf("expected counter value 2, got %v", metric.GetCounter().GetValue())
	}
}

func TestRegisterTwiceOnSameRegistryFails(t *testing.T) {
	reg := prometheus.NewRegistry()
	if err := Register(reg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := Register(reg); err == nil {
		t.Fatal("expected duplicate registration to fail")
	}
}

package rangingmetrics_test

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	rangingmetrics "github.com/go-ranging/goranging/internal/metrics"
)

func TestNewCollector(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := rangingmetrics.NewCollector(reg)

	if c.Sessions == nil {
		t.Error("Sessions is nil")
	}
	if c.Measurements == nil {
		t.Error("Measurements is nil")
	}
	if c.SessionsClosed == nil {
		t.Error("SessionsClosed is nil")
	}
	if c.NegotiationFailures == nil {
		t.Error("NegotiationFailures is nil")
	}
	if c.SelectorRejections == nil {
		t.Error("SelectorRejections is nil")
	}

	if _, err := reg.Gather(); err != nil {
		t.Fatalf("Gather() error: %v", err)
	}
}

func TestRegisterUnregisterSession(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := rangingmetrics.NewCollector(reg)

	const peer = "aabbccddeeff00112233445566778899"

	c.RegisterSession(peer)
	if val := gaugeValue(t, c.Sessions, peer); val != 1 {
		t.Errorf("after RegisterSession: sessions gauge = %v, want 1", val)
	}

	c.RegisterSession(peer)
	if val := gaugeValue(t, c.Sessions, peer); val != 2 {
		t.Errorf("after second RegisterSession: sessions gauge = %v, want 2", val)
	}

	c.UnregisterSession(peer)
	if val := gaugeValue(t, c.Sessions, peer); val != 1 {
		t.Errorf("after UnregisterSession: sessions gauge = %v, want 1", val)
	}
}

func TestMeasurementCounter(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := rangingmetrics.NewCollector(reg)

	const peer = "aabbccddeeff00112233445566778899"

	c.IncMeasurements(peer, "UWB")
	c.IncMeasurements(peer, "UWB")
	c.IncMeasurements(peer, "RTT")

	if val := counterValue(t, c.Measurements, peer, "UWB"); val != 2 {
		t.Errorf("Measurements(UWB) = %v, want 2", val)
	}
	if val := counterValue(t, c.Measurements, peer, "RTT"); val != 1 {
		t.Errorf("Measurements(RTT) = %v, want 1", val)
	}
}

func TestSessionClosedCounter(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := rangingmetrics.NewCollector(reg)

	const peer = "aabbccddeeff00112233445566778899"

	c.RecordSessionClosed(peer, "SYSTEM_POLICY")
	c.RecordSessionClosed(peer, "SYSTEM_POLICY")
	c.RecordSessionClosed(peer, "LOCAL_REQUEST")

	if val := counterValue(t, c.SessionsClosed, peer, "SYSTEM_POLICY"); val != 2 {
		t.Errorf("SessionsClosed(SYSTEM_POLICY) = %v, want 2", val)
	}
	if val := counterValue(t, c.SessionsClosed, peer, "LOCAL_REQUEST"); val != 1 {
		t.Errorf("SessionsClosed(LOCAL_REQUEST) = %v, want 1", val)
	}
}

func TestNegotiationFailuresAndSelectorRejections(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := rangingmetrics.NewCollector(reg)

	const peer = "aabbccddeeff00112233445566778899"

	c.IncNegotiationFailures(peer, "OOB_TIMEOUT")
	if val := counterValue(t, c.NegotiationFailures, peer, "OOB_TIMEOUT"); val != 1 {
		t.Errorf("NegotiationFailures(OOB_TIMEOUT) = %v, want 1", val)
	}

	c.IncSelectorRejections()
	c.IncSelectorRejections()

	m := &dto.Metric{}
	if err := c.SelectorRejections.Write(m); err != nil {
		t.Fatalf("Write metric: %v", err)
	}
	if val := m.GetCounter().GetValue(); val != 2 {
		t.Errorf("SelectorRejections = %v, want 2", val)
	}
}

// -------------------------------------------------------------------------
// Helpers
// -------------------------------------------------------------------------

func gaugeValue(t *testing.T, vec *prometheus.GaugeVec, labels ...string) float64 {
	t.Helper()

	gauge, err := vec.GetMetricWithLabelValues(labels...)
	if err != nil {
		t.Fatalf("GetMetricWithLabelValues(%v): %v", labels, err)
	}

	m := &dto.Metric{}
	if err := gauge.Write(m); err != nil {
		t.Fatalf("Write metric: %v", err)
	}

	return m.GetGauge().GetValue()
}

func counterValue(t *testing.T, vec *prometheus.CounterVec, labels ...string) float64 {
	t.Helper()

	counter, err := vec.GetMetricWithLabelValues(labels...)
	if err != nil {
		t.Fatalf("GetMetricWithLabelValues(%v): %v", labels, err)
	}

	m := &dto.Metric{}
	if err := counter.Write(m); err != nil {
		t.Fatalf("Write metric: %v", err)
	}

	return m.GetCounter().GetValue()
}

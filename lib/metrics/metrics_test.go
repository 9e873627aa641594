package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestAttemptLifecycle(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.AttemptStarted()
	m.AttemptStarted()
	m.AttemptFinished("ready", 42*time.Second)

	if got := testutil.ToFloat64(m.inFlight); got != 1 {
		t.Errorf("in flight = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.finished.WithLabelValues("ready")); got != 1 {
		t.Errorf("finished{ready} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.started); got != 2 {
		t.Errorf("started = %v, want 2", got)
	}
}

func TestNewReusesRegisteredCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	first := New(reg)
	second := New(reg)

	first.LogBytes(10)
	second.LogBytes(5)
	if got := testutil.ToFloat64(second.logBytes); got != 15 {
		t.Errorf("log bytes = %v, want 15", got)
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.AttemptStarted()
	m.AttemptFinished("error", time.Second)
	m.AttemptRejected("error")
	m.LogBytes(1)
	m.EventDropped()
	m.PortAllocation("ok")
}

package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var durationBuckets = []float64{15, 30, 60, 120, 300, 600, 1200, 1800}

// Metrics groups the deployment collectors. A nil *Metrics records nothing.
type Metrics struct {
	started    prometheus.Counter
	finished   *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	inFlight   prometheus.Gauge
	logBytes   prometheus.Counter
	dropped    prometheus.Counter
	portAllocs *prometheus.CounterVec
}

// New creates the collectors and registers them with reg. Collectors that
// are already registered are reused.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		started: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "deploykit",
			Subsystem: "deployments",
			Name:      "started_total",
			Help:      "Deployment attempts that reached BUILDING",
		}),
		finished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "deploykit",
			Subsystem: "deployments",
			Name:      "finished_total",
			Help:      "Deployment attempts by terminal status",
		}, []string{"status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "deploykit",
			Subsystem: "deployments",
			Name:      "duration_seconds",
			Help:      "Wall time of deployment attempts",
			Buckets:   durationBuckets,
		}, []string{"status"}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "deploykit",
			Subsystem: "deployments",
			Name:      "in_flight",
			Help:      "Deployment attempts currently running",
		}),
		logBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "deploykit",
			Subsystem: "deployments",
			Name:      "log_bytes_total",
			Help:      "Bytes of remote build output captured",
		}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "deploykit",
			Subsystem: "broadcast",
			Name:      "dropped_events_total",
			Help:      "Live events dropped because a subscriber was too slow",
		}),
		portAllocs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "deploykit",
			Subsystem: "projects",
			Name:      "port_allocations_total",
			Help:      "Port allocation attempts by outcome",
		}, []string{"outcome"}),
	}

	m.started = register(reg, m.started).(prometheus.Counter)
	m.finished = register(reg, m.finished).(*prometheus.CounterVec)
	m.duration = register(reg, m.duration).(*prometheus.HistogramVec)
	m.inFlight = register(reg, m.inFlight).(prometheus.Gauge)
	m.logBytes = register(reg, m.logBytes).(prometheus.Counter)
	m.dropped = register(reg, m.dropped).(prometheus.Counter)
	m.portAllocs = register(reg, m.portAllocs).(*prometheus.CounterVec)
	return m
}

func register(reg prometheus.Registerer, c prometheus.Collector) prometheus.Collector {
	if reg == nil {
		return c
	}
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			return are.ExistingCollector
		}
	}
	return c
}

// AttemptStarted marks an attempt entering BUILDING.
func (m *Metrics) AttemptStarted() {
	if m == nil {
		return
	}
	m.started.Inc()
	m.inFlight.Inc()
}

// AttemptFinished records a terminal status and how long the attempt ran.
func (m *Metrics) AttemptFinished(status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.inFlight.Dec()
	m.finished.WithLabelValues(status).Inc()
	m.duration.WithLabelValues(status).Observe(elapsed.Seconds())
}

// AttemptRejected records an attempt that ended before it started building.
func (m *Metrics) AttemptRejected(status string) {
	if m == nil {
		return
	}
	m.finished.WithLabelValues(status).Inc()
}

// LogBytes counts captured output.
func (m *Metrics) LogBytes(n int) {
	if m == nil {
		return
	}
	m.logBytes.Add(float64(n))
}

// EventDropped counts a live event a subscriber missed.
func (m *Metrics) EventDropped() {
	if m == nil {
		return
	}
	m.dropped.Inc()
}

// PortAllocation records "ok", "conflict" or "exhausted".
func (m *Metrics) PortAllocation(outcome string) {
	if m == nil {
		return
	}
	m.portAllocs.WithLabelValues(outcome).Inc()
}

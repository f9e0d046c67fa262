package metric

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/reosfire/xywire-sub000/health"
)

// Metrics are the process-wide collectors every registry carries. Device,
// scheduler and engine metrics are registered by their own packages.
type Metrics struct {
	HealthState    *prometheus.GaugeVec
	HealthChecks   prometheus.Counter
	NATSConnected  prometheus.Gauge
	NATSReconnects prometheus.Counter
}

// NewMetrics creates the core collectors
func NewMetrics() *Metrics {
	return &Metrics{
		HealthState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "health",
			Name:      "state",
			Help:      "Last reported health per component (0=unhealthy, 1=degraded, 2=healthy)",
		}, []string{"component"}),
		HealthChecks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "health",
			Name:      "checks_total",
			Help:      "Health endpoint evaluations",
		}),
		NATSConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "nats",
			Name:      "connected",
			Help:      "1 while the NATS connection is up",
		}),
		NATSReconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "nats",
			Name:      "reconnects_total",
			Help:      "NATS reconnections",
		}),
	}
}

func (c *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{c.HealthState, c.HealthChecks, c.NATSConnected, c.NATSReconnects}
}

// RecordHealth stores the state of s and of each of its sub-statuses
func (c *Metrics) RecordHealth(s health.Status) {
	c.HealthChecks.Inc()
	c.recordState(s)
}

func (c *Metrics) recordState(s health.Status) {
	var v float64
	switch {
	case s.IsHealthy():
		v = 2
	case s.IsDegraded():
		v = 1
	}
	c.HealthState.WithLabelValues(s.Component).Set(v)
	for _, sub := range s.SubStatuses {
		c.recordState(sub)
	}
}

// RecordNATSStatus tracks the connection state
func (c *Metrics) RecordNATSStatus(connected bool) {
	if connected {
		c.NATSConnected.Set(1)
		return
	}
	c.NATSConnected.Set(0)
}

// RecordNATSReconnect counts a reconnection
func (c *Metrics) RecordNATSReconnect() {
	c.NATSReconnects.Inc()
}

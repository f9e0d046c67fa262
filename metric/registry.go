// Package metric wraps a Prometheus registry with per-service registration so
// xywire packages can publish their own collectors without clashing.
//
// Packages take an optional *MetricsRegistry; a nil registry disables metrics:
//
//	reg := metric.NewMetricsRegistry()
//	sched := scheduler.New(scheduler.WithMetrics(reg))
//	srv := metric.NewServer(9090, "/metrics", reg, eng.Health)
package metric

import (
	stderrors "errors"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/reosfire/xywire-sub000/errors"
)

// Namespace prefixes every xywire metric
const Namespace = "xywire"

// key identifies a collector by the package that owns it and its short name
type key struct {
	owner string
	name  string
}

func (k key) String() string { return k.owner + "." + k.name }

// MetricsRegistry is a Prometheus registry that remembers which package
// registered which collector, so a second registration under the same name
// is reported instead of panicking.
type MetricsRegistry struct {
	prom *prometheus.Registry
	core *Metrics

	mu         sync.Mutex
	collectors map[key]prometheus.Collector
}

// NewMetricsRegistry creates a registry holding the core metrics and the Go
// runtime and process collectors
func NewMetricsRegistry() *MetricsRegistry {
	r := &MetricsRegistry{
		prom:       prometheus.NewRegistry(),
		core:       NewMetrics(),
		collectors: make(map[key]prometheus.Collector),
	}
	r.prom.MustRegister(r.core.collectors()...)
	r.prom.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// PrometheusRegistry returns the underlying registry, for promhttp
func (r *MetricsRegistry) PrometheusRegistry() *prometheus.Registry {
	return r.prom
}

// CoreMetrics returns the process-wide metrics every registry carries
func (r *MetricsRegistry) CoreMetrics() *Metrics {
	return r.core
}

func (r *MetricsRegistry) register(method, owner, name string, c prometheus.Collector) error {
	k := key{owner: owner, name: name}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.collectors[k]; exists {
		return errors.WrapInvalid(fmt.Errorf("metric %s already registered", k),
			"MetricsRegistry", method, "duplicate metric registration")
	}
	if err := r.prom.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if stderrors.As(err, &already) {
			return errors.WrapInvalid(err, "MetricsRegistry", method, "prometheus conflict for metric "+k.String())
		}
		return errors.WrapFatal(err, "MetricsRegistry", method, "register collector with prometheus")
	}
	r.collectors[k] = c
	return nil
}

func (r *MetricsRegistry) RegisterCounter(owner, name string, c prometheus.Counter) error {
	return r.register("RegisterCounter", owner, name, c)
}

func (r *MetricsRegistry) RegisterGauge(owner, name string, g prometheus.Gauge) error {
	return r.register("RegisterGauge", owner, name, g)
}

func (r *MetricsRegistry) RegisterHistogram(owner, name string, h prometheus.Histogram) error {
	return r.register("RegisterHistogram", owner, name, h)
}

// RegisterCounterVec registers a labelled counter, e.g. per device
func (r *MetricsRegistry) RegisterCounterVec(owner, name string, c *prometheus.CounterVec) error {
	return r.register("RegisterCounterVec", owner, name, c)
}

// RegisterGaugeVec registers a labelled gauge
func (r *MetricsRegistry) RegisterGaugeVec(owner, name string, g *prometheus.GaugeVec) error {
	return r.register("RegisterGaugeVec", owner, name, g)
}

// RegisterHistogramVec registers a labelled histogram
func (r *MetricsRegistry) RegisterHistogramVec(owner, name string, h *prometheus.HistogramVec) error {
	return r.register("RegisterHistogramVec", owner, name, h)
}

// Unregister removes a collector; it reports false if none was registered
func (r *MetricsRegistry) Unregister(owner, name string) bool {
	k := key{owner: owner, name: name}

	r.mu.Lock()
	defer r.mu.Unlock()

	c, exists := r.collectors[k]
	if !exists || !r.prom.Unregister(c) {
		return false
	}
	delete(r.collectors, k)
	return true
}

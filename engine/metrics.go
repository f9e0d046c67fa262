package engine

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/reosfire/xywire-sub000/compiler"
	"github.com/reosfire/xywire-sub000/metric"
)

// engineMetrics holds the deploy metrics
type engineMetrics struct {
	deploys        *prometheus.CounterVec // by status: success, partial
	compileIssues  *prometheus.CounterVec // by issue kind
	deployDuration prometheus.Histogram
	nodesActive    prometheus.Gauge
}

// newEngineMetrics registers the engine metrics. A nil registry disables
// metrics.
func newEngineMetrics(registry *metric.MetricsRegistry) (*engineMetrics, error) {
	if registry == nil {
		return nil, nil
	}

	m := &engineMetrics{
		deploys: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "engine",
			Name:      "deploys_total",
			Help:      "Graph deployments by outcome",
		}, []string{"status"}),

		compileIssues: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "engine",
			Name:      "compile_issues_total",
			Help:      "Issues recorded while compiling deployed graphs",
		}, []string{"kind"}),

		deployDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metric.Namespace,
			Subsystem: "engine",
			Name:      "deploy_duration_seconds",
			Help:      "Time from teardown of the old graph to the new graph running",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}),

		nodesActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metric.Namespace,
			Subsystem: "engine",
			Name:      "nodes_active",
			Help:      "Node instances in the running graph",
		}),
	}

	if err := registry.RegisterCounterVec("engine", "deploys", m.deploys); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounterVec("engine", "compile_issues", m.compileIssues); err != nil {
		return nil, err
	}
	if err := registry.RegisterHistogram("engine", "deploy_duration", m.deployDuration); err != nil {
		return nil, err
	}
	if err := registry.RegisterGauge("engine", "nodes_active", m.nodesActive); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *engineMetrics) recordDeploy(res *compiler.Result, seconds float64) {
	if m == nil {
		return
	}
	status := "success"
	if !res.Success() {
		status = "partial"
	}
	m.deploys.WithLabelValues(status).Inc()
	for _, is := range res.Issues {
		m.compileIssues.WithLabelValues(is.Kind.String()).Inc()
	}
	m.deployDuration.Observe(seconds)
	m.nodesActive.Set(float64(len(res.Instances)))
}

func (m *engineMetrics) recordTeardown() {
	if m != nil {
		m.nodesActive.Set(0)
	}
}

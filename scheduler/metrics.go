package scheduler

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/reosfire/xywire-sub000/metric"
)

type schedulerMetrics struct {
	tasksActive  prometheus.Gauge
	ticks        prometheus.Counter
	overruns     prometheus.Counter
	tickDuration prometheus.Histogram
}

func newSchedulerMetrics(registry *metric.MetricsRegistry) (*schedulerMetrics, error) {
	if registry == nil {
		return nil, nil
	}

	m := &schedulerMetrics{
		tasksActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metric.Namespace,
			Subsystem: "scheduler",
			Name:      "tasks_active",
			Help:      "Number of running scheduled tasks",
		}),
		ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "scheduler",
			Name:      "ticks_total",
			Help:      "Total task actions executed",
		}),
		overruns: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "scheduler",
			Name:      "overruns_total",
			Help:      "Ticks that overran a full period and resynchronized",
		}),
		tickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metric.Namespace,
			Subsystem: "scheduler",
			Name:      "tick_duration_seconds",
			Help:      "Duration of a single task action",
			Buckets:   []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.02, 0.05, 0.1},
		}),
	}

	if err := registry.RegisterGauge("scheduler", "tasks_active", m.tasksActive); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter("scheduler", "ticks", m.ticks); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter("scheduler", "overruns", m.overruns); err != nil {
		return nil, err
	}
	if err := registry.RegisterHistogram("scheduler", "tick_duration", m.tickDuration); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *schedulerMetrics) taskStarted() {
	if m == nil {
		return
	}
	m.tasksActive.Inc()
}

func (m *schedulerMetrics) taskStopped() {
	if m == nil {
		return
	}
	m.tasksActive.Dec()
}

func (m *schedulerMetrics) observeTick(d time.Duration) {
	if m == nil {
		return
	}
	m.ticks.Inc()
	m.tickDuration.Observe(d.Seconds())
}

func (m *schedulerMetrics) recordOverrun() {
	if m == nil {
		return
	}
	m.overruns.Inc()
}

package ledline

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/reosfire/xywire-sub000/metric"
)

// Metrics holds the transport collectors shared by every session. Create it
// once per registry and hand it to each Dial with WithMetrics.
type Metrics struct {
	framesSent       *prometheus.CounterVec
	bytesSent        *prometheus.CounterVec
	reliableAttempts *prometheus.CounterVec
	reliableAcks     *prometheus.CounterVec
	ackLatency       *prometheus.HistogramVec
	faulted          *prometheus.GaugeVec
}

// NewMetrics registers the ledline collectors. A nil registry disables
// metrics and returns nil, nil.
func NewMetrics(registry *metric.MetricsRegistry) (*Metrics, error) {
	if registry == nil {
		return nil, nil
	}

	labels := []string{"device"}
	m := &Metrics{
		framesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "ledline",
			Name:      "frames_sent_total",
			Help:      "Data packets written to the device",
		}, labels),
		bytesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "ledline",
			Name:      "bytes_sent_total",
			Help:      "Bytes written to the device on both channels",
		}, labels),
		reliableAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "ledline",
			Name:      "reliable_attempts_total",
			Help:      "Reliable packets sent including resends",
		}, labels),
		reliableAcks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "ledline",
			Name:      "reliable_acks_total",
			Help:      "Reliable exchanges answered by the device",
		}, labels),
		ackLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metric.Namespace,
			Subsystem: "ledline",
			Name:      "ack_latency_seconds",
			Help:      "Time from the first send of a reliable packet to its reply, resends included",
			Buckets:   []float64{.001, .0025, .005, .01, .025, .05, .1, .2, .4, .8, 1.6},
		}, labels),
		faulted: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metric.Namespace,
			Subsystem: "ledline",
			Name:      "session_faulted",
			Help:      "1 when the device session captured a fatal socket error",
		}, labels),
	}

	if err := registry.RegisterCounterVec("ledline", "frames_sent", m.framesSent); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounterVec("ledline", "bytes_sent", m.bytesSent); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounterVec("ledline", "reliable_attempts", m.reliableAttempts); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounterVec("ledline", "reliable_acks", m.reliableAcks); err != nil {
		return nil, err
	}
	if err := registry.RegisterHistogramVec("ledline", "ack_latency", m.ackLatency); err != nil {
		return nil, err
	}
	if err := registry.RegisterGaugeVec("ledline", "session_faulted", m.faulted); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Metrics) frameSent(device string, n int) {
	if m == nil {
		return
	}
	m.framesSent.WithLabelValues(device).Inc()
	m.bytesSent.WithLabelValues(device).Add(float64(n))
}

func (m *Metrics) reliableSent(device string, n int) {
	if m == nil {
		return
	}
	m.reliableAttempts.WithLabelValues(device).Inc()
	m.bytesSent.WithLabelValues(device).Add(float64(n))
}

func (m *Metrics) ackReceived(device string, latency time.Duration) {
	if m == nil {
		return
	}
	m.reliableAcks.WithLabelValues(device).Inc()
	m.ackLatency.WithLabelValues(device).Observe(latency.Seconds())
}

func (m *Metrics) setFaulted(device string, faulted bool) {
	if m == nil {
		return
	}
	v := 0.0
	if faulted {
		v = 1
	}
	m.faulted.WithLabelValues(device).Set(v)
}

package health

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAggregate(t *testing.T) {
	tests := []struct {
		name     string
		subs     []Status
		expected string
	}{
		{"empty", nil, "healthy"},
		{"all healthy", []Status{NewHealthy("a", ""), NewHealthy("b", "")}, "healthy"},
		{"degraded", []Status{NewHealthy("a", ""), NewDegraded("b", "")}, "degraded"},
		{"unhealthy wins", []Status{NewDegraded("a", ""), NewUnhealthy("b", "")}, "unhealthy"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Aggregate("system", tt.subs)
			assert.Equal(t, tt.expected, s.Status)
			assert.Equal(t, tt.expected == "healthy", s.Healthy)
			assert.Len(t, s.SubStatuses, len(tt.subs))
		})
	}
}

func TestAggregate_MessageCountsWorstState(t *testing.T) {
	s := Aggregate("devices", []Status{NewHealthy("a", ""), NewDegraded("b", ""), NewDegraded("c", "")})
	assert.Equal(t, "2 of 3 degraded", s.Message)

	s = Aggregate("devices", []Status{NewDegraded("a", ""), NewUnhealthy("b", "")})
	assert.Equal(t, "1 of 2 unhealthy", s.Message)
}

func TestWithSubStatus_DoesNotShareBacking(t *testing.T) {
	base := NewHealthy("root", "").WithSubStatus(NewHealthy("a", ""))
	one := base.WithSubStatus(NewHealthy("b", ""))
	two := base.WithSubStatus(NewUnhealthy("c", ""))

	assert.Equal(t, "b", one.SubStatuses[1].Component)
	assert.Equal(t, "c", two.SubStatuses[1].Component)
	assert.Len(t, base.SubStatuses, 1)
}

func TestFromReport(t *testing.T) {
	started := time.Now().Add(-time.Minute)

	s := FromReport("panel", Report{Healthy: true, Started: started, FramesSent: 10})
	assert.True(t, s.IsHealthy())
	require.NotNil(t, s.Metrics)
	assert.Equal(t, uint64(10), s.Metrics.FramesSent)
	assert.GreaterOrEqual(t, s.Metrics.Uptime, time.Minute)

	s = FromReport("panel", Report{Healthy: true, Degraded: true})
	assert.True(t, s.IsDegraded())

	s = FromReport("panel", Report{
		Healthy:   false,
		LastError: errors.New("read udp 192.168.1.40:1234: connection refused").Error(),
	})
	assert.True(t, s.IsUnhealthy())
	assert.NotContains(t, s.Message, "192.168.1.40")
	assert.Contains(t, s.Message, "connection refused")
}

func TestSanitizeErrorMessage(t *testing.T) {
	assert.Equal(t, "", sanitizeErrorMessage(""))
	assert.Equal(t, "connect [URL] failed", sanitizeErrorMessage("connect nats://user@host:4222 failed"))
	assert.Contains(t, sanitizeErrorMessage("auth token=abc123"), "[REDACTED]")
}

func TestMonitor_Probes(t *testing.T) {
	m := NewMonitor()
	m.Register("engine", func() Status { return NewHealthy("", "running") })

	healthy := true
	m.Register("device:panel", func() Status {
		if healthy {
			return NewHealthy("", "ok")
		}
		return NewUnhealthy("", "faulted")
	})

	assert.Equal(t, []string{"device:panel", "engine"}, m.Names())

	s, ok := m.Get("device:panel")
	require.True(t, ok)
	assert.Equal(t, "device:panel", s.Component)
	assert.True(t, s.IsHealthy())

	assert.True(t, m.AggregateHealth("xywire").IsHealthy())

	healthy = false
	agg := m.AggregateHealth("xywire")
	assert.True(t, agg.IsUnhealthy())
	assert.Equal(t, "device:panel", agg.SubStatuses[0].Component)

	m.Unregister("device:panel")
	assert.Equal(t, []string{"engine"}, m.Names())
	_, ok = m.Get("device:panel")
	assert.False(t, ok)
}

func TestMonitor_EmptyAggregate(t *testing.T) {
	agg := NewMonitor().AggregateHealth("xywire")
	assert.True(t, agg.IsHealthy())
	assert.Equal(t, "nothing to check", agg.Message)
}

// Package health provides health values for devices, the engine and the
// process as a whole, plus a Monitor that aggregates them.
package health

import (
	"regexp"
	"strings"
	"time"
)

var (
	urlRegex        = regexp.MustCompile(`(?:https?|nats|wss?)://[^\s]+`)
	unixPathRegex   = regexp.MustCompile(`/[a-zA-Z0-9/_.-]+`)
	ipAddrRegex     = regexp.MustCompile(`\b\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}\b`)
	portRegex       = regexp.MustCompile(`:\d{2,5}\b`)
	credentialRegex = regexp.MustCompile(`(?i)(password|token|key|secret|credential)[^a-zA-Z]*[:=][^,\s}]+`)
)

// Status represents the health state of a component or system
type Status struct {
	Component   string    `json:"component"`
	Healthy     bool      `json:"healthy"`
	Status      string    `json:"status"` // healthy, degraded or unhealthy
	Message     string    `json:"message"`
	Timestamp   time.Time `json:"timestamp"`
	SubStatuses []Status  `json:"sub_statuses,omitempty"`
	Metrics     *Metrics  `json:"metrics,omitempty"`
}

// Metrics contains health-related counters
type Metrics struct {
	Uptime       time.Duration `json:"uptime"`
	ErrorCount   int           `json:"error_count"`
	FramesSent   uint64        `json:"frames_sent,omitempty"`
	LastActivity time.Time     `json:"last_activity,omitempty"`
}

func (s Status) IsHealthy() bool   { return s.Status == stateHealthy }
func (s Status) IsDegraded() bool  { return s.Status == stateDegraded }
func (s Status) IsUnhealthy() bool { return s.Status == stateUnhealthy }

// WithMetrics returns a copy of the status with metrics attached
func (s Status) WithMetrics(metrics *Metrics) Status {
	s.Metrics = metrics
	return s
}

// WithSubStatus adds a sub-status and returns a copy
func (s Status) WithSubStatus(subStatus Status) Status {
	subs := make([]Status, len(s.SubStatuses), len(s.SubStatuses)+1)
	copy(subs, s.SubStatuses)
	s.SubStatuses = append(subs, subStatus)
	return s
}

// Report is the raw health snapshot a device session or engine produces
type Report struct {
	Healthy      bool
	Degraded     bool
	LastError    string
	Started      time.Time
	ErrorCount   int
	FramesSent   uint64
	LastActivity time.Time
}

// FromReport converts a Report into a Status. Error text is sanitized so
// addresses and credentials never reach the /health endpoint.
func FromReport(name string, r Report) Status {
	var status Status
	switch {
	case !r.Healthy:
		status = NewUnhealthy(name, "unhealthy")
	case r.Degraded:
		status = NewDegraded(name, "degraded")
	default:
		status = NewHealthy(name, "ok")
	}
	if r.LastError != "" {
		status.Message = sanitizeErrorMessage(r.LastError)
	}

	m := &Metrics{
		ErrorCount:   r.ErrorCount,
		FramesSent:   r.FramesSent,
		LastActivity: r.LastActivity,
	}
	if !r.Started.IsZero() {
		m.Uptime = time.Since(r.Started)
	}
	return status.WithMetrics(m)
}

// sanitizeErrorMessage replaces URLs, paths, IPs, ports and credentials with
// placeholders.
func sanitizeErrorMessage(err string) string {
	if err == "" {
		return ""
	}

	s := urlRegex.ReplaceAllString(err, "[URL]")
	s = unixPathRegex.ReplaceAllString(s, "[PATH]")
	s = ipAddrRegex.ReplaceAllString(s, "[IP]")
	s = portRegex.ReplaceAllString(s, "[PORT]")

	lower := strings.ToLower(s)
	for _, word := range []string{"password", "token", "key", "secret", "credential"} {
		if strings.Contains(lower, word) {
			s = credentialRegex.ReplaceAllString(s, "[REDACTED]")
			break
		}
	}
	return s
}

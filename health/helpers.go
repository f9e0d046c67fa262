package health

import (
	"fmt"
	"time"
)

const (
	stateHealthy   = "healthy"
	stateDegraded  = "degraded"
	stateUnhealthy = "unhealthy"
)

func newStatus(component, state, message string) Status {
	return Status{
		Component: component,
		Healthy:   state == stateHealthy,
		Status:    state,
		Message:   message,
		Timestamp: time.Now(),
	}
}

// NewHealthy creates a healthy status
func NewHealthy(component, message string) Status {
	return newStatus(component, stateHealthy, message)
}

// NewUnhealthy creates an unhealthy status
func NewUnhealthy(component, message string) Status {
	return newStatus(component, stateUnhealthy, message)
}

// NewDegraded creates a degraded status
func NewDegraded(component, message string) Status {
	return newStatus(component, stateDegraded, message)
}

// Aggregate takes the worst state among subs. An empty list is healthy, so
// a controller without devices still reports on its other parts.
func Aggregate(component string, subs []Status) Status {
	var unhealthy, degraded int
	for _, sub := range subs {
		switch {
		case sub.IsUnhealthy():
			unhealthy++
		case sub.IsDegraded():
			degraded++
		}
	}

	var status Status
	switch {
	case len(subs) == 0:
		return NewHealthy(component, "nothing to check")
	case unhealthy > 0:
		status = NewUnhealthy(component, fmt.Sprintf("%d of %d unhealthy", unhealthy, len(subs)))
	case degraded > 0:
		status = NewDegraded(component, fmt.Sprintf("%d of %d degraded", degraded, len(subs)))
	default:
		status = NewHealthy(component, fmt.Sprintf("%d healthy", len(subs)))
	}
	status.SubStatuses = append([]Status(nil), subs...)
	return status
}

package health

import (
	"maps"
	"slices"
	"sync"
)

// Probe reports the current status of a component
type Probe func() Status

// Monitor holds named probes and evaluates them on demand. It is safe for
// concurrent use.
type Monitor struct {
	mu     sync.RWMutex
	probes map[string]Probe
}

// NewMonitor returns an empty Monitor
func NewMonitor() *Monitor {
	return &Monitor{probes: make(map[string]Probe)}
}

// Register adds probe under name, replacing any earlier probe of that name
func (m *Monitor) Register(name string, probe Probe) {
	m.mu.Lock()
	m.probes[name] = probe
	m.mu.Unlock()
}

// Unregister drops the probe for name
func (m *Monitor) Unregister(name string) {
	m.mu.Lock()
	delete(m.probes, name)
	m.mu.Unlock()
}

// Names returns the registered names in order
func (m *Monitor) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Sorted(maps.Keys(m.probes))
}

// Get runs the probe for name. The result carries name as its component.
func (m *Monitor) Get(name string) (Status, bool) {
	m.mu.RLock()
	probe, ok := m.probes[name]
	m.mu.RUnlock()
	if !ok {
		return Status{}, false
	}

	s := probe()
	s.Component = name
	return s, true
}

// AggregateHealth runs every probe, in name order, and folds the results
// into one status for system
func (m *Monitor) AggregateHealth(system string) Status {
	names := m.Names()
	subs := make([]Status, 0, len(names))
	for _, name := range names {
		if s, ok := m.Get(name); ok {
			subs = append(subs, s)
		}
	}
	return Aggregate(system, subs)
}

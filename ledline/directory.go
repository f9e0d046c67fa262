package ledline

import (
	stderrors "errors"
	"fmt"
	"sort"
	"sync"

	"github.com/reosfire/xywire-sub000/errors"
	"github.com/reosfire/xywire-sub000/health"
	"github.com/reosfire/xywire-sub000/node"
)

// Directory maps device names to open sessions. It satisfies
// node.DeviceDirectory so sink nodes can resolve devices by name.
type Directory struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewDirectory creates an empty directory
func NewDirectory() *Directory {
	return &Directory{sessions: make(map[string]*Session)}
}

// Add registers s under its name
func (d *Directory) Add(s *Session) error {
	if s == nil {
		return errors.WrapInvalid(stderrors.New("nil session"), "Directory", "Add", "register session")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.sessions[s.Name()]; exists {
		return errors.WrapInvalid(
			fmt.Errorf("device %q already registered", s.Name()),
			"Directory", "Add", "register session")
	}
	d.sessions[s.Name()] = s
	return nil
}

// Lookup returns the session for name
func (d *Directory) Lookup(name string) (*Session, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	s, ok := d.sessions[name]
	return s, ok
}

// Device implements node.DeviceDirectory
func (d *Directory) Device(name string) (node.FrameSink, bool) {
	s, ok := d.Lookup(name)
	if !ok {
		return nil, false
	}
	return s, true
}

// Names returns the registered device names in sorted order
func (d *Directory) Names() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	names := make([]string, 0, len(d.sessions))
	for name := range d.sessions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Health returns one status per device, sorted by name
func (d *Directory) Health() []health.Status {
	names := d.Names()
	statuses := make([]health.Status, 0, len(names))
	for _, name := range names {
		if s, ok := d.Lookup(name); ok {
			statuses = append(statuses, s.Health())
		}
	}
	return statuses
}

// CloseAll closes and removes every session
func (d *Directory) CloseAll() error {
	d.mu.Lock()
	sessions := d.sessions
	d.sessions = make(map[string]*Session)
	d.mu.Unlock()

	var errs []error
	for _, s := range sessions {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return stderrors.Join(errs...)
}

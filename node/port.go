// Package node defines the typed port model shared by every effect node:
// output slots, input handles, binding, node descriptors and the context a
// compiled graph hands to its nodes.
package node

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
)

var (
	// ErrAlreadyConnected is returned by Bind when the input already has a source
	ErrAlreadyConnected = errors.New("input already connected")
	// ErrOutputInUse is returned by Bind when the output already drives an input.
	// Fan out through a FanOutEffect instead.
	ErrOutputInUse = fmt.Errorf("output already bound: %w", ErrAlreadyConnected)
	// ErrTypeMismatch is returned when port types differ
	ErrTypeMismatch = errors.New("type mismatch")
)

// InputHandle receives values through a single deliver callback
type InputHandle struct {
	name      string
	typ       PortType
	deliver   func(any)
	connected atomic.Bool
}

// NewInputHandle creates an unconnected input. A nil deliver discards values.
func NewInputHandle(name string, typ PortType, deliver func(any)) *InputHandle {
	if deliver == nil {
		deliver = func(any) {}
	}
	return &InputHandle{name: name, typ: typ, deliver: deliver}
}

// Name returns the port name
func (h *InputHandle) Name() string { return h.name }

// Type returns the port type
func (h *InputHandle) Type() PortType { return h.typ }

// IsConnected reports whether a Bind to this input has succeeded
func (h *InputHandle) IsConnected() bool { return h.connected.Load() }

// Deliver passes v to the node's callback
func (h *InputHandle) Deliver(v any) { h.deliver(v) }

// OutputSlot pushes values to at most one bound input
type OutputSlot struct {
	name   string
	typ    PortType
	target atomic.Pointer[InputHandle]
}

// NewOutputSlot creates an unbound output
func NewOutputSlot(name string, typ PortType) *OutputSlot {
	return &OutputSlot{name: name, typ: typ}
}

// Name returns the port name
func (o *OutputSlot) Name() string { return o.name }

// Type returns the port type
func (o *OutputSlot) Type() PortType { return o.typ }

// IsBound reports whether the slot has a target
func (o *OutputSlot) IsBound() bool { return o.target.Load() != nil }

// Invoke forwards v to the bound input. An unbound slot drops v silently.
func (o *OutputSlot) Invoke(v any) {
	if in := o.target.Load(); in != nil {
		in.deliver(v)
	}
}

var bindMu sync.Mutex

// Bind attaches in's callback to out. It fails with ErrTypeMismatch when the
// port types differ and with ErrAlreadyConnected when in already has a
// source; the earlier binding is left untouched. Bind never replays a value.
func Bind(out *OutputSlot, in *InputHandle) error {
	if out == nil || in == nil {
		return errors.New("bind: nil port")
	}
	if out.typ != in.typ {
		return fmt.Errorf("%w: output %q is %s, input %q is %s", ErrTypeMismatch, out.name, out.typ, in.name, in.typ)
	}

	bindMu.Lock()
	defer bindMu.Unlock()

	if in.connected.Load() {
		return fmt.Errorf("%w: %q", ErrAlreadyConnected, in.name)
	}
	if out.target.Load() != nil {
		return fmt.Errorf("%w: %q", ErrOutputInUse, out.name)
	}
	out.target.Store(in)
	in.connected.Store(true)
	return nil
}

// Ports is embedded by node implementations to hold their handles
type Ports struct {
	inputs  map[string]*InputHandle
	outputs map[string]*OutputSlot
}

// RegisterInput adds an input handle. Registering a name twice replaces the
// earlier handle.
func (p *Ports) RegisterInput(name string, typ PortType, deliver func(any)) *InputHandle {
	if p.inputs == nil {
		p.inputs = make(map[string]*InputHandle)
	}
	h := NewInputHandle(name, typ, deliver)
	p.inputs[name] = h
	return h
}

// RegisterOutput adds an output slot
func (p *Ports) RegisterOutput(name string, typ PortType) *OutputSlot {
	if p.outputs == nil {
		p.outputs = make(map[string]*OutputSlot)
	}
	o := NewOutputSlot(name, typ)
	p.outputs[name] = o
	return o
}

// Inputs returns the input handles by name
func (p *Ports) Inputs() map[string]*InputHandle { return p.inputs }

// Outputs returns the output slots by name
func (p *Ports) Outputs() map[string]*OutputSlot { return p.outputs }

// TypedInput registers an input whose callback receives T. Values of any
// other Go type are dropped.
func TypedInput[T any](p *Ports, name string, typ PortType, set func(T)) *InputHandle {
	return p.RegisterInput(name, typ, func(v any) {
		if t, ok := v.(T); ok {
			set(t)
		}
	})
}

// IsAlreadyConnected reports whether err is a binding conflict
func IsAlreadyConnected(err error) bool {
	return errors.Is(err, ErrAlreadyConnected)
}

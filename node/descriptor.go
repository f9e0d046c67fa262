package node

import (
	"errors"
	"fmt"
)

// Instance is a live node created by a Descriptor's factory
type Instance interface {
	Inputs() map[string]*InputHandle
	Outputs() map[string]*OutputSlot
	// Initialize is called once after the compiler attempted every binding
	// of the node, whether or not they succeeded.
	Initialize(ctx *EffectContext) error
}

// PortSpec declares a port on a Descriptor
type PortSpec struct {
	Name string   `json:"name" yaml:"name"`
	Type PortType `json:"type" yaml:"type"`
}

// Descriptor describes a constructible node type. Descriptors are immutable
// once registered with a catalog.
type Descriptor struct {
	TypeID      string     `json:"typeId"`
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	Inputs      []PortSpec `json:"inputs"`
	Outputs     []PortSpec `json:"outputs"`
	// EmbeddedInputs are inputs that accept literal values from the graph
	// document. Each is also present in the instance's Inputs map.
	EmbeddedInputs []PortSpec `json:"embeddedInputs"`

	Factory func() Instance `json:"-"`
}

func find(specs []PortSpec, name string) (PortSpec, bool) {
	for _, s := range specs {
		if s.Name == name {
			return s, true
		}
	}
	return PortSpec{}, false
}

// Input looks up a declared input
func (d *Descriptor) Input(name string) (PortSpec, bool) { return find(d.Inputs, name) }

// Output looks up a declared output
func (d *Descriptor) Output(name string) (PortSpec, bool) { return find(d.Outputs, name) }

// EmbeddedInput looks up a declared embedded input
func (d *Descriptor) EmbeddedInput(name string) (PortSpec, bool) {
	return find(d.EmbeddedInputs, name)
}

// NewInstance creates a fresh, unconnected instance
func (d *Descriptor) NewInstance() Instance {
	return d.Factory()
}

// Validate checks that the descriptor can be registered
func (d *Descriptor) Validate() error {
	if d.TypeID == "" {
		return errors.New("descriptor has empty type id")
	}
	if d.Factory == nil {
		return fmt.Errorf("descriptor %s has no factory", d.TypeID)
	}
	for _, group := range [][]PortSpec{d.Inputs, d.Outputs, d.EmbeddedInputs} {
		seen := make(map[string]bool, len(group))
		for _, p := range group {
			if p.Name == "" {
				return fmt.Errorf("descriptor %s declares a port without a name", d.TypeID)
			}
			if seen[p.Name] {
				return fmt.Errorf("descriptor %s declares port %q twice", d.TypeID, p.Name)
			}
			if _, err := ParsePortType(string(p.Type)); err != nil {
				return fmt.Errorf("descriptor %s port %q: %w", d.TypeID, p.Name, err)
			}
			seen[p.Name] = true
		}
	}
	return nil
}

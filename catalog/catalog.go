// Package catalog maps node type identifiers to descriptors.
//
// Concrete descriptors are registered directly. Generic descriptors are
// templates over port types; asking for "ConstantEffect<Int32>" specializes
// the ConstantEffect template with Int32 once and memoizes the result.
package catalog

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/reosfire/xywire-sub000/errors"
	"github.com/reosfire/xywire-sub000/node"
)

// GenericDescriptor builds concrete descriptors from type arguments
type GenericDescriptor struct {
	BaseID      string
	Name        string
	Description string
	Arity       int
	// Specialize returns the descriptor for args. The TypeID it sets is
	// overwritten with the canonical "Base<A,B>" form.
	Specialize func(args []node.PortType) (*node.Descriptor, error)
}

// Catalog is safe for concurrent use
type Catalog struct {
	logger *slog.Logger

	mu          sync.RWMutex
	concrete    map[string]*node.Descriptor
	generic     map[string]*GenericDescriptor
	specialized map[string]*node.Descriptor
}

// New creates an empty catalog
func New(logger *slog.Logger) *Catalog {
	if logger == nil {
		logger = slog.Default()
	}
	return &Catalog{
		logger:      logger.With("component", "catalog"),
		concrete:    make(map[string]*node.Descriptor),
		generic:     make(map[string]*GenericDescriptor),
		specialized: make(map[string]*node.Descriptor),
	}
}

// Register adds a concrete descriptor
func (c *Catalog) Register(d *node.Descriptor) error {
	if d == nil {
		return errors.WrapInvalid(fmt.Errorf("nil descriptor"), "Catalog", "Register", "validate descriptor")
	}
	if err := d.Validate(); err != nil {
		return errors.WrapInvalid(err, "Catalog", "Register", "validate descriptor")
	}
	if strings.ContainsAny(d.TypeID, "<>,") {
		return errors.WrapInvalid(fmt.Errorf("type id %q contains generic syntax", d.TypeID),
			"Catalog", "Register", "validate descriptor")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.exists(d.TypeID) {
		return errors.WrapInvalid(fmt.Errorf("type %q already registered", d.TypeID),
			"Catalog", "Register", "register descriptor")
	}
	c.concrete[d.TypeID] = d
	return nil
}

// RegisterGeneric adds a generic descriptor
func (c *Catalog) RegisterGeneric(g *GenericDescriptor) error {
	switch {
	case g == nil:
		return errors.WrapInvalid(fmt.Errorf("nil generic descriptor"), "Catalog", "RegisterGeneric", "validate")
	case g.BaseID == "" || strings.ContainsAny(g.BaseID, "<>,"):
		return errors.WrapInvalid(fmt.Errorf("invalid base id %q", g.BaseID), "Catalog", "RegisterGeneric", "validate")
	case g.Arity < 1:
		return errors.WrapInvalid(fmt.Errorf("generic %s needs arity >= 1", g.BaseID), "Catalog", "RegisterGeneric", "validate")
	case g.Specialize == nil:
		return errors.WrapInvalid(fmt.Errorf("generic %s has no builder", g.BaseID), "Catalog", "RegisterGeneric", "validate")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.exists(g.BaseID) {
		return errors.WrapInvalid(fmt.Errorf("type %q already registered", g.BaseID),
			"Catalog", "RegisterGeneric", "register descriptor")
	}
	c.generic[g.BaseID] = g
	return nil
}

func (c *Catalog) exists(id string) bool {
	_, concrete := c.concrete[id]
	_, generic := c.generic[id]
	return concrete || generic
}

// Specialize returns the concrete descriptor for base<args...>. Results are
// memoized, so repeated calls return the same *node.Descriptor.
func (c *Catalog) Specialize(baseID string, args ...node.PortType) (*node.Descriptor, error) {
	id := FormatTypeID(baseID, args...)

	c.mu.RLock()
	if d, ok := c.specialized[id]; ok {
		c.mu.RUnlock()
		return d, nil
	}
	g, ok := c.generic[baseID]
	c.mu.RUnlock()

	if !ok {
		return nil, errors.WrapInvalid(fmt.Errorf("no generic type %q", baseID),
			"Catalog", "Specialize", "resolve generic")
	}
	if len(args) != g.Arity {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%s takes %d type argument(s), got %d", baseID, g.Arity, len(args)),
			"Catalog", "Specialize", "check arity")
	}
	for _, a := range args {
		if _, err := node.ParsePortType(string(a)); err != nil {
			return nil, errors.WrapInvalid(err, "Catalog", "Specialize", "check type arguments")
		}
	}

	built, err := g.Specialize(append([]node.PortType(nil), args...))
	if err != nil {
		return nil, errors.WrapInvalid(err, "Catalog", "Specialize", "specialize "+id)
	}
	if built == nil {
		return nil, errors.WrapInvalid(fmt.Errorf("builder returned nil"), "Catalog", "Specialize", "specialize "+id)
	}

	d := *built
	d.TypeID = id
	if d.Name == "" {
		d.Name = fmt.Sprintf("%s (%s)", g.Name, joinTypes(args))
	}
	if err := d.Validate(); err != nil {
		return nil, errors.WrapInvalid(err, "Catalog", "Specialize", "validate "+id)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.specialized[id]; ok {
		return existing, nil
	}
	c.specialized[id] = &d
	c.logger.Debug("Specialized generic node type", "type_id", id)
	return &d, nil
}

// TryGet resolves a concrete or specialized type id. It is the only lookup
// the compiler uses.
func (c *Catalog) TryGet(typeID string) (*node.Descriptor, bool) {
	c.mu.RLock()
	d, ok := c.concrete[typeID]
	if !ok {
		d, ok = c.specialized[typeID]
	}
	c.mu.RUnlock()
	if ok {
		return d, true
	}

	base, args, err := ParseTypeID(typeID)
	if err != nil || len(args) == 0 {
		return nil, false
	}
	d, err = c.Specialize(base, args...)
	if err != nil {
		c.logger.Debug("Type id did not resolve", "type_id", typeID, "error", err)
		return nil, false
	}
	return d, true
}

// Entry describes a catalog item for listing
type Entry struct {
	TypeID  string `json:"typeId"`
	Name    string `json:"name"`
	Generic bool   `json:"generic"`
	Arity   int    `json:"arity,omitempty"`
}

// List returns concrete, specialized and generic entries sorted by id
func (c *Catalog) List() []Entry {
	c.mu.RLock()
	out := make([]Entry, 0, len(c.concrete)+len(c.specialized)+len(c.generic))
	for id, d := range c.concrete {
		out = append(out, Entry{TypeID: id, Name: d.Name})
	}
	for id, d := range c.specialized {
		out = append(out, Entry{TypeID: id, Name: d.Name})
	}
	for id, g := range c.generic {
		out = append(out, Entry{TypeID: id, Name: g.Name, Generic: true, Arity: g.Arity})
	}
	c.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].TypeID < out[j].TypeID })
	return out
}

// FormatTypeID renders base<A,B>; with no args it returns base
func FormatTypeID(base string, args ...node.PortType) string {
	if len(args) == 0 {
		return base
	}
	return base + "<" + joinTypes(args) + ">"
}

func joinTypes(args []node.PortType) string {
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = string(a)
	}
	return strings.Join(parts, ",")
}

// ParseTypeID splits "Base<A, B>" into its base id and type arguments.
// Plain ids return no arguments.
func ParseTypeID(typeID string) (string, []node.PortType, error) {
	typeID = strings.TrimSpace(typeID)
	open := strings.IndexByte(typeID, '<')
	if open < 0 {
		if strings.ContainsAny(typeID, ">,") || typeID == "" {
			return "", nil, fmt.Errorf("malformed type id %q", typeID)
		}
		return typeID, nil, nil
	}
	if !strings.HasSuffix(typeID, ">") || open == 0 {
		return "", nil, fmt.Errorf("malformed type id %q", typeID)
	}

	base := typeID[:open]
	inner := typeID[open+1 : len(typeID)-1]
	if strings.ContainsAny(inner, "<>") || strings.TrimSpace(inner) == "" {
		return "", nil, fmt.Errorf("malformed type id %q", typeID)
	}

	var args []node.PortType
	for _, part := range strings.Split(inner, ",") {
		t, err := node.ParsePortType(strings.TrimSpace(part))
		if err != nil {
			return "", nil, fmt.Errorf("type id %q: %w", typeID, err)
		}
		args = append(args, t)
	}
	return base, args, nil
}

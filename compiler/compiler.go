// Package compiler turns a graph description into live, bound and
// initialized node instances.
//
// Compilation never stops at the first problem. Every structural, binding
// and type problem is recorded as an Issue and the pass continues, so a
// partially valid graph still yields the instances that could be built;
// callers decide whether to run it.
package compiler

import (
	stderrors "errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/reosfire/xywire-sub000/graph"
	"github.com/reosfire/xywire-sub000/node"
)

// Catalog is the descriptor lookup the compiler needs
type Catalog interface {
	TryGet(typeID string) (*node.Descriptor, bool)
}

// Result of a compile pass
type Result struct {
	Instances map[int]node.Instance
	Issues    []*Issue
	Context   *node.EffectContext
}

// Success reports whether the pass recorded no issues
func (r *Result) Success() bool {
	return len(r.Issues) == 0
}

// Err joins all issues, or returns nil on success
func (r *Result) Err() error {
	if r.Success() {
		return nil
	}
	errs := make([]error, len(r.Issues))
	for i, is := range r.Issues {
		errs[i] = is
	}
	return stderrors.Join(errs...)
}

// IssuesOf returns the issues of one kind
func (r *Result) IssuesOf(kind Kind) []*Issue {
	var out []*Issue
	for _, is := range r.Issues {
		if is.Kind == kind {
			out = append(out, is)
		}
	}
	return out
}

// Close tears the compiled graph down
func (r *Result) Close() {
	if r.Context != nil {
		r.Context.Close()
	}
}

// Compiler compiles graphs against a catalog
type Compiler struct {
	catalog Catalog
	logger  *slog.Logger
}

// Option configures a Compiler
type Option func(*Compiler)

// WithLogger sets the compiler logger
func WithLogger(logger *slog.Logger) Option {
	return func(c *Compiler) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New creates a compiler
func New(catalog Catalog, opts ...Option) *Compiler {
	c := &Compiler{
		catalog: catalog,
		logger:  slog.Default().With("component", "compiler"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type pending struct {
	spec     *graph.NodeSpec
	desc     *node.Descriptor
	literals map[string]any
}

type pass struct {
	c      *Compiler
	g      *graph.Graph
	ectx   *node.EffectContext
	res    *Result
	nodes  map[int]*pending
	order  []int
	logger *slog.Logger
}

func (p *pass) record(is *Issue) {
	p.res.Issues = append(p.res.Issues, is)
	p.logger.Debug("Compile issue", "kind", is.Kind.String(), "node_id", is.NodeID, "error", is)
}

// Compile builds g. ectx is handed to every Initialize and kept on the
// result; a nil ectx gets a fresh context with a private scheduler.
func (c *Compiler) Compile(g *graph.Graph, ectx *node.EffectContext) *Result {
	if ectx == nil {
		ectx = node.NewEffectContext(nil, nil, c.logger)
	}
	if g == nil {
		g = &graph.Graph{}
	}

	p := &pass{
		c:      c,
		g:      g,
		ectx:   ectx,
		res:    &Result{Instances: make(map[int]node.Instance), Context: ectx},
		nodes:  make(map[int]*pending),
		logger: c.logger,
	}

	p.resolve()
	p.checkLiterals()
	p.instantiate()
	p.bindConnections()
	p.deliverLiterals()
	p.initialize()

	c.logger.Info("Graph compiled",
		"nodes", len(g.Nodes),
		"instances", len(p.res.Instances),
		"connections", len(g.Connections),
		"issues", len(p.res.Issues))
	return p.res
}

func (p *pass) resolve() {
	for i := range p.g.Nodes {
		spec := &p.g.Nodes[i]
		if _, dup := p.nodes[spec.ID]; dup {
			p.record(&Issue{Kind: DuplicateNodeID, NodeID: spec.ID,
				Err: fmt.Errorf("node id %d declared more than once", spec.ID)})
			continue
		}
		desc, ok := p.c.catalog.TryGet(spec.TypeID)
		if !ok {
			p.record(&Issue{Kind: UnknownNodeType, NodeID: spec.ID,
				Err: fmt.Errorf("type %q is not in the catalog", spec.TypeID)})
			continue
		}
		p.nodes[spec.ID] = &pending{spec: spec, desc: desc, literals: make(map[string]any)}
		p.order = append(p.order, spec.ID)
	}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (p *pass) checkLiterals() {
	for _, id := range p.order {
		n := p.nodes[id]
		for _, name := range sortedKeys(n.spec.EmbeddedInputValues) {
			port, ok := n.desc.EmbeddedInput(name)
			if !ok {
				p.record(&Issue{Kind: UnknownEmbeddedInput, NodeID: id, Port: name,
					Err: fmt.Errorf("%s has no embedded input %q", n.desc.TypeID, name)})
				continue
			}
			v, err := port.Type.Coerce(n.spec.EmbeddedInputValues[name])
			if err != nil {
				p.record(&Issue{Kind: TypeMismatch, NodeID: id, Port: name, Err: err})
				continue
			}
			n.literals[name] = v
		}
	}
}

func (p *pass) instantiate() {
	for _, id := range p.order {
		inst, err := create(p.nodes[id].desc)
		if err != nil {
			p.record(&Issue{Kind: InitializeFailed, NodeID: id, Err: err})
			continue
		}
		p.res.Instances[id] = inst
	}
}

func create(desc *node.Descriptor) (inst node.Instance, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("factory for %s panicked: %v", desc.TypeID, r)
		}
	}()
	inst = desc.NewInstance()
	if inst == nil {
		return nil, fmt.Errorf("factory for %s returned nil", desc.TypeID)
	}
	return inst, nil
}

func (p *pass) bindConnections() {
	for i := range p.g.Connections {
		conn := &p.g.Connections[i]

		from, fromOK := p.res.Instances[conn.FromNodeID]
		to, toOK := p.res.Instances[conn.ToNodeID]
		if !fromOK {
			p.record(&Issue{Kind: MissingNode, NodeID: conn.FromNodeID, Connection: conn,
				Err: fmt.Errorf("source node %d was not instantiated", conn.FromNodeID)})
		}
		if !toOK {
			p.record(&Issue{Kind: MissingNode, NodeID: conn.ToNodeID, Connection: conn,
				Err: fmt.Errorf("target node %d was not instantiated", conn.ToNodeID)})
		}
		if !fromOK || !toOK {
			continue
		}

		out := from.Outputs()[conn.FromPort]
		in := to.Inputs()[conn.ToPort]
		if out == nil {
			p.record(&Issue{Kind: MissingPort, NodeID: conn.FromNodeID, Port: conn.FromPort, Connection: conn,
				Err: fmt.Errorf("node %d has no output %q", conn.FromNodeID, conn.FromPort)})
		}
		if in == nil {
			p.record(&Issue{Kind: MissingPort, NodeID: conn.ToNodeID, Port: conn.ToPort, Connection: conn,
				Err: fmt.Errorf("node %d has no input %q", conn.ToNodeID, conn.ToPort)})
		}
		if out == nil || in == nil {
			continue
		}

		if err := node.Bind(out, in); err != nil {
			kind := AlreadyConnected
			if node.IsTypeMismatch(err) {
				kind = TypeMismatch
			}
			p.record(&Issue{Kind: kind, NodeID: conn.ToNodeID, Port: conn.ToPort, Connection: conn, Err: err})
		}
	}
}

// deliverLiterals binds an editor-owned slot to each embedded input, exactly
// like a connection, then pushes the literal through it.
func (p *pass) deliverLiterals() {
	for _, id := range p.order {
		inst, ok := p.res.Instances[id]
		if !ok {
			continue
		}
		n := p.nodes[id]
		for _, name := range sortedKeys(n.literals) {
			in := inst.Inputs()[name]
			if in == nil {
				p.record(&Issue{Kind: MissingPort, NodeID: id, Port: name,
					Err: fmt.Errorf("%s declares embedded input %q but the instance has no such input", n.desc.TypeID, name)})
				continue
			}
			port, _ := n.desc.EmbeddedInput(name)
			editor := node.NewOutputSlot(name, port.Type)
			if err := node.Bind(editor, in); err != nil {
				kind := AlreadyConnected
				if node.IsTypeMismatch(err) {
					kind = TypeMismatch
				}
				p.record(&Issue{Kind: kind, NodeID: id, Port: name, Err: err})
				continue
			}
			editor.Invoke(n.literals[name])
		}
	}
}

func (p *pass) initialize() {
	for _, id := range p.order {
		inst, ok := p.res.Instances[id]
		if !ok {
			continue
		}
		if err := initialize(inst, p.ectx); err != nil {
			p.record(&Issue{Kind: InitializeFailed, NodeID: id, Err: err})
		}
	}
}

func initialize(inst node.Instance, ectx *node.EffectContext) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("initialize panicked: %v", r)
		}
	}()
	return inst.Initialize(ectx)
}

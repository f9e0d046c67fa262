// Package graph holds the serializable description of an effect graph: the
// nodes with their positions and literal values, and the connections between
// their ports. It is what the compiler consumes and what the stores persist.
package graph

import (
	stderrors "errors"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/reosfire/xywire-sub000/errors"
)

var validate = validator.New()

// Graph is a set of node descriptions plus the connections between them
type Graph struct {
	Nodes       []NodeSpec   `json:"nodes" yaml:"nodes" validate:"dive"`
	Connections []Connection `json:"connections" yaml:"connections" validate:"dive"`
}

// NodeSpec places one node on the canvas
type NodeSpec struct {
	ID                  int            `json:"id" yaml:"id" validate:"gte=0"`
	TypeID              string         `json:"typeId" yaml:"typeId" validate:"required"`
	X                   float64        `json:"x" yaml:"x"`
	Y                   float64        `json:"y" yaml:"y"`
	EmbeddedInputValues map[string]any `json:"embeddedInputValues,omitempty" yaml:"embeddedInputValues,omitempty"`
}

// Connection links an output port to an input port
type Connection struct {
	FromNodeID int    `json:"fromNodeId" yaml:"fromNodeId" validate:"gte=0"`
	FromPort   string `json:"fromPort" yaml:"fromPort" validate:"required"`
	ToNodeID   int    `json:"toNodeId" yaml:"toNodeId" validate:"gte=0"`
	ToPort     string `json:"toPort" yaml:"toPort" validate:"required"`
}

func (c Connection) String() string {
	return fmt.Sprintf("%d.%s -> %d.%s", c.FromNodeID, c.FromPort, c.ToNodeID, c.ToPort)
}

// Node returns the node with the given id
func (g *Graph) Node(id int) (*NodeSpec, bool) {
	for i := range g.Nodes {
		if g.Nodes[i].ID == id {
			return &g.Nodes[i], true
		}
	}
	return nil, false
}

// AddNode appends a node with the next free id and returns that id
func (g *Graph) AddNode(typeID string, embedded map[string]any) int {
	id := 0
	for _, n := range g.Nodes {
		if n.ID >= id {
			id = n.ID + 1
		}
	}
	g.Nodes = append(g.Nodes, NodeSpec{ID: id, TypeID: typeID, EmbeddedInputValues: embedded})
	return id
}

// Connect appends a connection
func (g *Graph) Connect(fromNode int, fromPort string, toNode int, toPort string) {
	g.Connections = append(g.Connections, Connection{
		FromNodeID: fromNode,
		FromPort:   fromPort,
		ToNodeID:   toNode,
		ToPort:     toPort,
	})
}

// Validate reports structural problems: missing type ids or port names,
// duplicate node ids and connections to undeclared nodes. Compilation does
// not require a valid graph; editors use this for early feedback.
func (g *Graph) Validate() error {
	var errs []error
	if err := validate.Struct(g); err != nil {
		var verrs validator.ValidationErrors
		if stderrors.As(err, &verrs) {
			for _, fe := range verrs {
				errs = append(errs, fmt.Errorf("%s: failed %q", fe.Namespace(), fe.Tag()))
			}
		} else {
			errs = append(errs, err)
		}
	}

	ids := make(map[int]bool, len(g.Nodes))
	for _, n := range g.Nodes {
		if ids[n.ID] {
			errs = append(errs, fmt.Errorf("duplicate node id %d", n.ID))
		}
		ids[n.ID] = true
		for name := range n.EmbeddedInputValues {
			if name == "" {
				errs = append(errs, fmt.Errorf("node %d has an unnamed embedded value", n.ID))
			}
		}
	}
	for _, c := range g.Connections {
		if !ids[c.FromNodeID] {
			errs = append(errs, fmt.Errorf("connection %s references undeclared node %d", c, c.FromNodeID))
		}
		if !ids[c.ToNodeID] {
			errs = append(errs, fmt.Errorf("connection %s references undeclared node %d", c, c.ToNodeID))
		}
	}

	if len(errs) == 0 {
		return nil
	}
	return errors.WrapInvalid(stderrors.Join(errs...), "Graph", "Validate", "validate graph")
}

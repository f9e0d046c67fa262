package compiler

import (
	"errors"
	"fmt"

	"github.com/reosfire/xywire-sub000/graph"
	"github.com/reosfire/xywire-sub000/node"
)

// Sentinels matched by errors.Is on an Issue
var (
	ErrUnknownNodeType      = errors.New("unknown node type")
	ErrUnknownEmbeddedInput = errors.New("unknown embedded input")
	ErrTypeMismatch         = node.ErrTypeMismatch
	ErrMissingNode          = errors.New("missing node")
	ErrMissingPort          = errors.New("missing port")
	ErrAlreadyConnected     = node.ErrAlreadyConnected
	ErrDuplicateNodeID      = errors.New("duplicate node id")
	ErrInitializeFailed     = errors.New("initialize failed")
)

// Kind classifies a compile issue
type Kind int

const (
	UnknownNodeType Kind = iota
	UnknownEmbeddedInput
	TypeMismatch
	MissingNode
	MissingPort
	AlreadyConnected
	DuplicateNodeID
	InitializeFailed
)

var kindInfo = map[Kind]struct {
	name     string
	sentinel error
}{
	UnknownNodeType:      {"unknown_node_type", ErrUnknownNodeType},
	UnknownEmbeddedInput: {"unknown_embedded_input", ErrUnknownEmbeddedInput},
	TypeMismatch:         {"type_mismatch", ErrTypeMismatch},
	MissingNode:          {"missing_node", ErrMissingNode},
	MissingPort:          {"missing_port", ErrMissingPort},
	AlreadyConnected:     {"already_connected", ErrAlreadyConnected},
	DuplicateNodeID:      {"duplicate_node_id", ErrDuplicateNodeID},
	InitializeFailed:     {"initialize_failed", ErrInitializeFailed},
}

func (k Kind) String() string {
	if info, ok := kindInfo[k]; ok {
		return info.name
	}
	return "unknown"
}

// Issue is one accumulated compile problem. NodeID is the node the issue is
// about; Connection is set for connection issues and Port for port issues.
type Issue struct {
	Kind       Kind
	NodeID     int
	Port       string
	Connection *graph.Connection
	Err        error
}

func (i *Issue) Error() string {
	var where string
	switch {
	case i.Connection != nil:
		where = fmt.Sprintf("connection %s", i.Connection)
	case i.Port != "":
		where = fmt.Sprintf("node %d port %q", i.NodeID, i.Port)
	default:
		where = fmt.Sprintf("node %d", i.NodeID)
	}
	if i.Err == nil {
		return fmt.Sprintf("%s: %s", where, i.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", where, i.Kind, i.Err)
}

// Unwrap exposes both the kind sentinel and the underlying cause
func (i *Issue) Unwrap() []error {
	out := []error{kindInfo[i.Kind].sentinel}
	if i.Err != nil {
		out = append(out, i.Err)
	}
	return out
}

package effects

import (
	"sync"

	"github.com/reosfire/xywire-sub000/catalog"
	"github.com/reosfire/xywire-sub000/node"
)

type number interface {
	~int32 | ~float32
}

// arithmetic recomputes and emits op(a, b) on every input change. Unset
// operands are zero.
type arithmetic[T number] struct {
	node.Ports
	op     func(a, b T) T
	result *node.OutputSlot

	mu   sync.Mutex
	a, b T
}

func newArithmetic[T number](t node.PortType, op func(a, b T) T) *arithmetic[T] {
	n := &arithmetic[T]{op: op}
	n.result = n.RegisterOutput("result", t)
	node.TypedInput(&n.Ports, "a", t, func(v T) { n.update(func() { n.a = v }) })
	node.TypedInput(&n.Ports, "b", t, func(v T) { n.update(func() { n.b = v }) })
	return n
}

func (n *arithmetic[T]) update(set func()) {
	n.mu.Lock()
	set()
	r := n.op(n.a, n.b)
	n.mu.Unlock()
	n.result.Invoke(r)
}

func (n *arithmetic[T]) Initialize(*node.EffectContext) error { return nil }

type binaryOp int

const (
	add binaryOp = iota
	mul
)

func apply[T number](op binaryOp) func(a, b T) T {
	if op == mul {
		return func(a, b T) T { return a * b }
	}
	return func(a, b T) T { return a + b }
}

func arithmeticGeneric(base, name, description string, op binaryOp) *catalog.GenericDescriptor {
	return &catalog.GenericDescriptor{
		BaseID:      base,
		Name:        name,
		Description: description,
		Arity:       1,
		Specialize: func(args []node.PortType) (*node.Descriptor, error) {
			t := args[0]
			var factory func() node.Instance
			switch t {
			case node.Int32:
				factory = func() node.Instance { return newArithmetic(t, apply[int32](op)) }
			case node.Float32:
				factory = func() node.Instance { return newArithmetic(t, apply[float32](op)) }
			default:
				return nil, unsupported(base, t)
			}
			return &node.Descriptor{
				Inputs:  []node.PortSpec{port("a", t), port("b", t)},
				Outputs: []node.PortSpec{port("result", t)},
				Factory: factory,
			}, nil
		},
	}
}

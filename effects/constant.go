package effects

import (
	"sync"

	"github.com/reosfire/xywire-sub000/catalog"
	"github.com/reosfire/xywire-sub000/frame"
	"github.com/reosfire/xywire-sub000/node"
)

// constant emits its value whenever it is set and once more during
// Initialize, so outputs bound after the literal arrived still receive it.
type constant[T any] struct {
	node.Ports
	out *node.OutputSlot

	mu    sync.Mutex
	value T
	set   bool
}

func newConstant[T any](t node.PortType) *constant[T] {
	c := &constant[T]{}
	c.out = c.RegisterOutput("value", t)
	node.TypedInput(&c.Ports, "value", t, c.setValue)
	return c
}

func (c *constant[T]) setValue(v T) {
	c.mu.Lock()
	c.value, c.set = v, true
	c.mu.Unlock()
	c.out.Invoke(v)
}

func (c *constant[T]) Initialize(*node.EffectContext) error {
	c.mu.Lock()
	v, ok := c.value, c.set
	c.mu.Unlock()
	if ok {
		c.out.Invoke(v)
	}
	return nil
}

func constantFactory(t node.PortType) (func() node.Instance, error) {
	switch t {
	case node.Int32:
		return func() node.Instance { return newConstant[int32](t) }, nil
	case node.Float32:
		return func() node.Instance { return newConstant[float32](t) }, nil
	case node.Bool:
		return func() node.Instance { return newConstant[bool](t) }, nil
	case node.String:
		return func() node.Instance { return newConstant[string](t) }, nil
	case node.Color:
		return func() node.Instance { return newConstant[frame.Color](t) }, nil
	default:
		return nil, unsupported(ConstantEffect, t)
	}
}

func constantGeneric() *catalog.GenericDescriptor {
	return &catalog.GenericDescriptor{
		BaseID:      ConstantEffect,
		Name:        "Constant",
		Description: "Holds a literal value and emits it downstream",
		Arity:       1,
		Specialize: func(args []node.PortType) (*node.Descriptor, error) {
			t := args[0]
			factory, err := constantFactory(t)
			if err != nil {
				return nil, err
			}
			return &node.Descriptor{
				Description:    "Emits a constant " + t.String(),
				Inputs:         []node.PortSpec{port("value", t)},
				Outputs:        []node.PortSpec{port("value", t)},
				EmbeddedInputs: []node.PortSpec{port("value", t)},
				Factory:        factory,
			}, nil
		},
	}
}

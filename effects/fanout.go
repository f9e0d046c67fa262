package effects

import (
	"github.com/reosfire/xywire-sub000/catalog"
	"github.com/reosfire/xywire-sub000/node"
)

// fanOut copies every value to both outputs. Outputs drive at most one input
// each, so this is how one source feeds two consumers.
type fanOut struct {
	node.Ports
	out1, out2 *node.OutputSlot
}

func newFanOut(t node.PortType) *fanOut {
	f := &fanOut{}
	f.out1 = f.RegisterOutput("out1", t)
	f.out2 = f.RegisterOutput("out2", t)
	f.RegisterInput("in", t, func(v any) {
		f.out1.Invoke(v)
		f.out2.Invoke(v)
	})
	return f
}

func (f *fanOut) Initialize(*node.EffectContext) error { return nil }

func fanOutGeneric() *catalog.GenericDescriptor {
	return &catalog.GenericDescriptor{
		BaseID:      FanOutEffect,
		Name:        "Fan out",
		Description: "Duplicates its input onto two outputs",
		Arity:       1,
		Specialize: func(args []node.PortType) (*node.Descriptor, error) {
			t := args[0]
			return &node.Descriptor{
				Inputs:  []node.PortSpec{port("in", t)},
				Outputs: []node.PortSpec{port("out1", t), port("out2", t)},
				Factory: func() node.Instance { return newFanOut(t) },
			}, nil
		},
	}
}

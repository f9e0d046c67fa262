// Package effects provides the built-in node types: typed constants, fan-out,
// arithmetic, two buffer sources and the device sink.
package effects

import (
	stderrors "errors"
	"fmt"
	"log/slog"

	"github.com/reosfire/xywire-sub000/catalog"
	"github.com/reosfire/xywire-sub000/errors"
	"github.com/reosfire/xywire-sub000/node"
)

// Type ids of the built-in nodes. Generic ids take type arguments, e.g.
// "ConstantEffect<Int32>".
const (
	ConstantEffect   = "ConstantEffect"
	FanOutEffect     = "FanOutEffect"
	AddEffect        = "AddEffect"
	MultiplyEffect   = "MultiplyEffect"
	SolidColorEffect = "SolidColorEffect"
	RainbowEffect    = "RainbowEffect"
	DeviceSinkEffect = "DeviceSinkEffect"
)

// Defaults used until an input receives a value
const (
	DefaultWidth  = 14
	DefaultHeight = 14
	DefaultFPS    = 30

	// MaxPixels caps width*height of a buffer source. A larger matrix
	// pauses the source.
	MaxPixels = 1 << 16
)

// Register adds every built-in node type to cat.
func Register(cat *catalog.Catalog) error {
	if cat == nil {
		return errors.WrapFatal(
			stderrors.New("catalog cannot be nil"),
			"Effects", "Register", "catalog validation")
	}

	for _, g := range []*catalog.GenericDescriptor{
		constantGeneric(),
		fanOutGeneric(),
		arithmeticGeneric(AddEffect, "Add", "Emits a + b whenever an input changes", add),
		arithmeticGeneric(MultiplyEffect, "Multiply", "Emits a * b whenever an input changes", mul),
	} {
		if err := cat.RegisterGeneric(g); err != nil {
			return errors.WrapInvalid(err, "Effects", "Register", g.BaseID+" registration")
		}
	}

	for _, d := range []*node.Descriptor{
		solidColorDescriptor(),
		rainbowDescriptor(),
		deviceSinkDescriptor(),
	} {
		if err := cat.Register(d); err != nil {
			return errors.WrapInvalid(err, "Effects", "Register", d.TypeID+" registration")
		}
	}
	return nil
}

// NewCatalog returns a catalog holding the built-in node types
func NewCatalog(logger *slog.Logger) (*catalog.Catalog, error) {
	cat := catalog.New(logger)
	if err := Register(cat); err != nil {
		return nil, err
	}
	return cat, nil
}

func port(name string, t node.PortType) node.PortSpec {
	return node.PortSpec{Name: name, Type: t}
}

func unsupported(base string, t node.PortType) error {
	return fmt.Errorf("%s does not support %s", base, t)
}

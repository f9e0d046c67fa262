package node

import (
	"errors"
	"fmt"
	"math"

	"github.com/reosfire/xywire-sub000/frame"
)

// PortType identifies the semantic type of the values a port carries.
// Bindings require exact equality.
type PortType string

// Built-in port types
const (
	Int32       PortType = "Int32"
	Float32     PortType = "Float32"
	Bool        PortType = "Bool"
	String      PortType = "String"
	Color       PortType = "Color"
	ColorBuffer PortType = "ColorBuffer"
)

// AllTypes lists every built-in port type
var AllTypes = []PortType{Int32, Float32, Bool, String, Color, ColorBuffer}

func (t PortType) String() string {
	return string(t)
}

// ParsePortType resolves a type tag such as "Int32"
func ParsePortType(name string) (PortType, error) {
	for _, t := range AllTypes {
		if string(t) == name {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown port type %q", name)
}

// Coerce converts a literal to the Go value carried by ports of type t:
// int32, float32, bool, string, frame.Color or frame.Buffer. Numeric
// literals decoded from JSON arrive as float64; an Int32 port accepts them
// only when they are integral and in range.
func (t PortType) Coerce(v any) (any, error) {
	switch t {
	case Int32:
		return toInt32(v)
	case Float32:
		return toFloat32(v)
	case Bool:
		if b, ok := v.(bool); ok {
			return b, nil
		}
	case String:
		if s, ok := v.(string); ok {
			return s, nil
		}
	case Color:
		c, err := frame.ParseColor(v)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrTypeMismatch, err)
		}
		return c, nil
	case ColorBuffer:
		if b, ok := v.(frame.Buffer); ok {
			return b, nil
		}
	default:
		return nil, fmt.Errorf("%w: unknown port type %q", ErrTypeMismatch, t)
	}
	return nil, mismatch(t, v)
}

func mismatch(t PortType, v any) error {
	return fmt.Errorf("%w: %T value %v is not assignable to %s", ErrTypeMismatch, v, v, t)
}

func toInt32(v any) (any, error) {
	var f float64
	switch n := v.(type) {
	case int32:
		return n, nil
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	case float64:
		f = n
	case float32:
		f = float64(n)
	default:
		return nil, mismatch(Int32, v)
	}
	if f != math.Trunc(f) || f < math.MinInt32 || f > math.MaxInt32 {
		return nil, mismatch(Int32, v)
	}
	return int32(f), nil
}

func toFloat32(v any) (any, error) {
	switch n := v.(type) {
	case float32:
		return n, nil
	case float64:
		if math.Abs(n) > math.MaxFloat32 {
			return nil, mismatch(Float32, v)
		}
		return float32(n), nil
	case int32:
		return float32(n), nil
	case int:
		return float32(n), nil
	case int64:
		return float32(n), nil
	default:
		return nil, mismatch(Float32, v)
	}
}

// IsTypeMismatch reports whether err was caused by a port type mismatch
func IsTypeMismatch(err error) bool {
	return errors.Is(err, ErrTypeMismatch)
}

// Package frame holds the pixel values that flow between effect nodes and
// LED devices.
package frame

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Color is a 24-bit RGB value
type Color struct {
	R uint8 `json:"r" yaml:"r"`
	G uint8 `json:"g" yaml:"g"`
	B uint8 `json:"b" yaml:"b"`
}

// Black is the zero color
var Black = Color{}

// RGB builds a Color
func RGB(r, g, b uint8) Color {
	return Color{R: r, G: g, B: b}
}

// Hex formats the color as #rrggbb
func (c Color) Hex() string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}

// Scale multiplies every channel by f clamped to [0,1]
func (c Color) Scale(f float64) Color {
	f = math.Max(0, math.Min(1, f))
	return Color{
		R: uint8(math.Round(float64(c.R) * f)),
		G: uint8(math.Round(float64(c.G) * f)),
		B: uint8(math.Round(float64(c.B) * f)),
	}
}

// HSV converts hue (degrees, any range), saturation and value (0..1) to RGB.
func HSV(h, s, v float64) Color {
	h = math.Mod(h, 360)
	if h < 0 {
		h += 360
	}
	s = math.Max(0, math.Min(1, s))
	v = math.Max(0, math.Min(1, v))

	c := v * s
	x := c * (1 - math.Abs(math.Mod(h/60, 2)-1))
	m := v - c

	var r, g, b float64
	switch {
	case h < 60:
		r, g, b = c, x, 0
	case h < 120:
		r, g, b = x, c, 0
	case h < 180:
		r, g, b = 0, c, x
	case h < 240:
		r, g, b = 0, x, c
	case h < 300:
		r, g, b = x, 0, c
	default:
		r, g, b = c, 0, x
	}

	return Color{
		R: uint8(math.Round((r + m) * 255)),
		G: uint8(math.Round((g + m) * 255)),
		B: uint8(math.Round((b + m) * 255)),
	}
}

// ParseColor converts a literal into a Color. Accepted forms are "#rrggbb",
// "rrggbb", a three element numeric list and an object with r, g and b keys.
func ParseColor(v any) (Color, error) {
	switch t := v.(type) {
	case Color:
		return t, nil
	case string:
		return parseHex(t)
	case []any:
		if len(t) != 3 {
			return Black, fmt.Errorf("color list needs 3 components, got %d", len(t))
		}
		var ch [3]uint8
		for i, c := range t {
			u, err := channel(c)
			if err != nil {
				return Black, err
			}
			ch[i] = u
		}
		return Color{R: ch[0], G: ch[1], B: ch[2]}, nil
	case map[string]any:
		var ch [3]uint8
		for i, k := range []string{"r", "g", "b"} {
			raw, ok := t[k]
			if !ok {
				return Black, fmt.Errorf("color object missing %q", k)
			}
			u, err := channel(raw)
			if err != nil {
				return Black, err
			}
			ch[i] = u
		}
		return Color{R: ch[0], G: ch[1], B: ch[2]}, nil
	default:
		return Black, fmt.Errorf("cannot use %T as color", v)
	}
}

func parseHex(s string) (Color, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(s) != 6 {
		return Black, fmt.Errorf("color %q is not rrggbb", s)
	}
	n, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return Black, fmt.Errorf("color %q: %w", s, err)
	}
	return Color{R: uint8(n >> 16), G: uint8(n >> 8), B: uint8(n)}, nil
}

func channel(v any) (uint8, error) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int32:
		f = float64(n)
	case int64:
		f = float64(n)
	case uint8:
		return n, nil
	default:
		return 0, fmt.Errorf("color component %v is %T, not a number", v, v)
	}
	if f != math.Trunc(f) || f < 0 || f > 255 {
		return 0, fmt.Errorf("color component %v out of range 0-255", v)
	}
	return uint8(f), nil
}

// Buffer is a row-major 2-D grid of colors. Width is the number of columns
// and Height the number of rows.
type Buffer struct {
	Width  int
	Height int
	Pixels []Color
}

// NewBuffer allocates a black buffer. Negative sizes are treated as zero.
func NewBuffer(width, height int) Buffer {
	width, height = max(width, 0), max(height, 0)
	return Buffer{Width: width, Height: height, Pixels: make([]Color, width*height)}
}

// Len returns the number of pixels
func (b Buffer) Len() int {
	return len(b.Pixels)
}

func (b Buffer) index(x, y int) (int, bool) {
	if x < 0 || y < 0 || x >= b.Width || y >= b.Height {
		return 0, false
	}
	i := y*b.Width + x
	return i, i < len(b.Pixels)
}

// At returns the color at column x, row y; black when out of range
func (b Buffer) At(x, y int) Color {
	if i, ok := b.index(x, y); ok {
		return b.Pixels[i]
	}
	return Black
}

// Set writes the color at column x, row y; out of range writes are ignored
func (b Buffer) Set(x, y int, c Color) {
	if i, ok := b.index(x, y); ok {
		b.Pixels[i] = c
	}
}

// Fill sets every pixel to c
func (b Buffer) Fill(c Color) {
	for i := range b.Pixels {
		b.Pixels[i] = c
	}
}

// Clone returns a deep copy
func (b Buffer) Clone() Buffer {
	out := Buffer{Width: b.Width, Height: b.Height, Pixels: make([]Color, len(b.Pixels))}
	copy(out.Pixels, b.Pixels)
	return out
}

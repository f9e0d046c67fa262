// Package ledline talks to a single LED matrix over UDP.
//
// A device accepts three packet kinds. Clear and brightness packets travel on
// the reliable channel: they are resent until the device answers with any
// datagram. Data packets carry a full frame and are fire-and-forget.
//
// LEDs are chained in a serpentine. Even columns are wired bottom-up and odd
// columns top-down, so for a 4x4 matrix wire index 0 is the bottom-left pixel
// and wire index 4 is the top pixel of the second column. Layout converts
// between wire order and logical (row, column) coordinates.
package ledline

import (
	"fmt"

	"github.com/reosfire/xywire-sub000/errors"
)

// Layout describes the physical wiring of a matrix
type Layout struct {
	Rows     int // LEDs per column
	Columns  int
	DeadLeds int // unlit LEDs at the start of the chain
}

// Validate checks that the layout describes a usable matrix
func (l Layout) Validate() error {
	if l.Rows <= 0 || l.Columns <= 0 {
		return errors.WrapInvalid(
			fmt.Errorf("matrix must be at least 1x1, got %dx%d", l.Rows, l.Columns),
			"Layout", "Validate", "check dimensions")
	}
	if l.DeadLeds < 0 {
		return errors.WrapInvalid(
			fmt.Errorf("dead LED count cannot be negative: %d", l.DeadLeds),
			"Layout", "Validate", "check dead leds")
	}
	return nil
}

// PixelCount is the number of addressable pixels
func (l Layout) PixelCount() int {
	return l.Rows * l.Columns
}

// PacketSize is the length of an encoded data packet
func (l Layout) PacketSize() int {
	return dataHeaderSize + 3*(l.DeadLeds+l.PixelCount())
}

// Logical maps a wire index to its logical row and column.
func (l Layout) Logical(i int) (row, col int) {
	n := l.Rows
	col = i / n
	if col%2 == 0 {
		row = n - 1 - (i % n)
	} else {
		row = i % n
	}
	return row, col
}

// WireIndex is the inverse of Logical.
func (l Layout) WireIndex(row, col int) int {
	n := l.Rows
	if col%2 == 0 {
		return col*n + (n - 1 - row)
	}
	return col*n + row
}

package ledline

import (
	"encoding/binary"

	"github.com/reosfire/xywire-sub000/frame"
)

// Packet opcodes understood by the device firmware
const (
	OpBrightness byte = 0x01
	OpData       byte = 0x02
	OpClear      byte = 0x03
)

// opcode + little-endian generation
const dataHeaderSize = 5

// ClearPacket turns every LED off
func ClearPacket() []byte {
	return []byte{OpClear}
}

// BrightnessPacket sets the global brightness
func BrightnessPacket(level uint8) []byte {
	return []byte{OpBrightness, level}
}

// EncodeFrame appends a data packet for buf to dst and returns the extended
// slice. Pixels are written in wire order. Buffer pixels outside the layout are
// ignored and layout pixels the buffer does not cover are sent black.
func EncodeFrame(dst []byte, generation uint32, layout Layout, buf frame.Buffer) []byte {
	dst = append(dst, OpData)
	dst = binary.LittleEndian.AppendUint32(dst, generation)
	for range layout.DeadLeds {
		dst = append(dst, 0, 0, 0)
	}
	for i := range layout.PixelCount() {
		row, col := layout.Logical(i)
		c := buf.At(col, row)
		dst = append(dst, c.R, c.G, c.B)
	}
	return dst
}

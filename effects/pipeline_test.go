package effects

import (
	"context"
	"encoding/binary"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reosfire/xywire-sub000/compiler"
	"github.com/reosfire/xywire-sub000/graph"
	"github.com/reosfire/xywire-sub000/ledline"
	"github.com/reosfire/xywire-sub000/node"
	"github.com/reosfire/xywire-sub000/scheduler"
	"github.com/reosfire/xywire-sub000/testutil"
)

// red solid color on a 2x2 matrix, fanned out to two devices
func fannedOutGraph() *graph.Graph {
	g := &graph.Graph{}
	color := g.AddNode("ConstantEffect<Color>", map[string]any{"value": "#ff0000"})
	fill := g.AddNode(SolidColorEffect, map[string]any{"width": 2, "height": 2, "fps": 50})
	split := g.AddNode("FanOutEffect<ColorBuffer>", nil)
	left := g.AddNode(DeviceSinkEffect, map[string]any{"device": "left"})
	right := g.AddNode(DeviceSinkEffect, map[string]any{"device": "right"})

	g.Connect(color, "value", fill, "color")
	g.Connect(fill, "buffer", split, "in")
	g.Connect(split, "out1", left, "buffer")
	g.Connect(split, "out2", right, "buffer")
	return g
}

func TestPipeline_CompileAndStream(t *testing.T) {
	cat, err := NewCatalog(nil)
	require.NoError(t, err)

	left := testutil.NewRecordingSink()
	right := testutil.NewRecordingSink()
	devices := node.DeviceFunc(func(name string) (node.FrameSink, bool) {
		switch name {
		case "left":
			return left, true
		case "right":
			return right, true
		}
		return nil, false
	})

	ectx := node.NewEffectContext(scheduler.New(), devices, nil)
	res := compiler.New(cat).Compile(fannedOutGraph(), ectx)
	defer res.Close()
	require.True(t, res.Success(), "issues: %v", res.Err())
	assert.Len(t, res.Instances, 5)

	for _, sink := range []*testutil.RecordingSink{left, right} {
		frames := sink.WaitForFrames(t, 2, 2*time.Second)
		assert.Equal(t, 2, frames[0].Width)
		for _, px := range frames[len(frames)-1].Pixels {
			assert.Equal(t, uint8(255), px.R)
		}
	}

	res.Close()
	assert.Zero(t, ectx.Tasks())
	settled := left.Calls()
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, settled, left.Calls(), "no frames after teardown")
}

func TestPipeline_PartialGraphKeepsRunning(t *testing.T) {
	cat, err := NewCatalog(nil)
	require.NoError(t, err)

	sink := testutil.NewRecordingSink()
	devices := node.DeviceFunc(func(string) (node.FrameSink, bool) { return sink, true })

	g := &graph.Graph{}
	fill := g.AddNode(SolidColorEffect, map[string]any{"width": 1, "height": 1, "fps": 50})
	out := g.AddNode(DeviceSinkEffect, map[string]any{"device": "matrix"})
	ghost := g.AddNode("SparkleEffect", nil)
	g.Connect(fill, "buffer", out, "buffer")
	g.Connect(ghost, "buffer", out, "buffer")
	g.Connect(fill, "buffer", out, "device")

	res := compiler.New(cat).Compile(g, node.NewEffectContext(scheduler.New(), devices, nil))
	defer res.Close()

	assert.False(t, res.Success())
	assert.Len(t, res.IssuesOf(compiler.UnknownNodeType), 1)
	assert.Len(t, res.IssuesOf(compiler.MissingNode), 1)
	assert.Len(t, res.IssuesOf(compiler.TypeMismatch), 1)
	sink.WaitForFrames(t, 1, 2*time.Second)
}

func TestPipeline_StreamsToUDPDevice(t *testing.T) {
	dev := testutil.NewFakeDevice(t)
	sess, err := ledline.Dial(context.Background(), ledline.Config{
		Name:    "matrix",
		Address: dev.Addr(),
		Layout:  ledline.Layout{Rows: 2, Columns: 2, DeadLeds: 1},
	})
	require.NoError(t, err)
	directory := ledline.NewDirectory()
	require.NoError(t, directory.Add(sess))
	defer directory.CloseAll()

	cat, err := NewCatalog(nil)
	require.NoError(t, err)

	g := &graph.Graph{}
	color := g.AddNode("ConstantEffect<Color>", map[string]any{"value": []any{0.0, 0.0, 255.0}})
	fill := g.AddNode(SolidColorEffect, map[string]any{"width": 2, "height": 2, "fps": 50})
	out := g.AddNode(DeviceSinkEffect, map[string]any{"device": "matrix", "max_fps": 100})
	g.Connect(color, "value", fill, "color")
	g.Connect(fill, "buffer", out, "buffer")

	res := compiler.New(cat).Compile(g, node.NewEffectContext(scheduler.New(), directory, nil))
	defer res.Close()
	require.True(t, res.Success(), "issues: %v", res.Err())

	packets := dev.WaitForPackets(t, 3, 2*time.Second)
	res.Close()

	var last uint32
	for _, p := range packets {
		require.Len(t, p, sess.Layout().PacketSize())
		assert.Equal(t, ledline.OpData, p[0])
		gen := binary.LittleEndian.Uint32(p[1:5])
		assert.Equal(t, last+1, gen)
		last = gen
		assert.Equal(t, []byte{0, 0, 0}, p[5:8], "dead led stays dark")
		assert.Equal(t, []byte{0, 0, 255}, p[8:11])
	}
}

package compiler

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reosfire/xywire-sub000/graph"
	"github.com/reosfire/xywire-sub000/node"
)

// recorder is a test node: input "in" and embedded input "gain", output "out".
// Values arriving on "in" are multiplied by gain and forwarded.
type recorder struct {
	node.Ports
	mu          sync.Mutex
	gain        int32
	received    []int32
	initialized int
	initErr     error
	out         *node.OutputSlot
}

func newRecorder() node.Instance {
	r := &recorder{gain: 1}
	node.TypedInput(&r.Ports, "in", node.Int32, func(v int32) {
		r.mu.Lock()
		r.received = append(r.received, v)
		g := r.gain
		r.mu.Unlock()
		r.out.Invoke(v * g)
	})
	node.TypedInput(&r.Ports, "gain", node.Int32, func(v int32) { r.gain = v })
	r.out = r.RegisterOutput("out", node.Int32)
	return r
}

func (r *recorder) Initialize(*node.EffectContext) error {
	r.initialized++
	return r.initErr
}

// source emits its embedded value during Initialize
type source struct {
	node.Ports
	value int32
	out   *node.OutputSlot
}

func newSource() node.Instance {
	s := &source{}
	node.TypedInput(&s.Ports, "value", node.Int32, func(v int32) { s.value = v })
	s.out = s.RegisterOutput("value", node.Int32)
	return s
}

func (s *source) Initialize(*node.EffectContext) error {
	s.out.Invoke(s.value)
	return nil
}

type textNode struct{ node.Ports }

func (textNode) Initialize(*node.EffectContext) error { return nil }

type panicky struct{ node.Ports }

func (panicky) Initialize(*node.EffectContext) error { panic("boom") }

type mapCatalog map[string]*node.Descriptor

func (m mapCatalog) TryGet(id string) (*node.Descriptor, bool) {
	d, ok := m[id]
	return d, ok
}

func testCatalog() mapCatalog {
	return mapCatalog{
		"Source": {
			TypeID:         "Source",
			Outputs:        []node.PortSpec{{Name: "value", Type: node.Int32}},
			EmbeddedInputs: []node.PortSpec{{Name: "value", Type: node.Int32}},
			Factory:        newSource,
		},
		"Recorder": {
			TypeID:         "Recorder",
			Inputs:         []node.PortSpec{{Name: "in", Type: node.Int32}},
			Outputs:        []node.PortSpec{{Name: "out", Type: node.Int32}},
			EmbeddedInputs: []node.PortSpec{{Name: "gain", Type: node.Int32}},
			Factory:        newRecorder,
		},
		"Text": {
			TypeID:  "Text",
			Outputs: []node.PortSpec{{Name: "text", Type: node.String}},
			Factory: func() node.Instance {
				n := &textNode{}
				n.RegisterOutput("text", node.String)
				return n
			},
		},
		"Panicky": {
			TypeID:  "Panicky",
			Factory: func() node.Instance { return &panicky{} },
		},
		"Nil": {
			TypeID:  "Nil",
			Factory: func() node.Instance { return nil },
		},
	}
}

func compile(t *testing.T, g *graph.Graph) *Result {
	t.Helper()
	res := New(testCatalog()).Compile(g, nil)
	t.Cleanup(res.Close)
	return res
}

func TestCompile_ValidGraph(t *testing.T) {
	var g graph.Graph
	src := g.AddNode("Source", map[string]any{"value": 7.0})
	mid := g.AddNode("Recorder", map[string]any{"gain": 3.0})
	end := g.AddNode("Recorder", nil)
	g.Connect(src, "value", mid, "in")
	g.Connect(mid, "out", end, "in")

	res := compile(t, &g)
	require.True(t, res.Success(), "issues: %v", res.Err())
	require.NoError(t, res.Err())
	require.Len(t, res.Instances, 3)

	m := res.Instances[mid].(*recorder)
	e := res.Instances[end].(*recorder)
	assert.Equal(t, []int32{7}, m.received)
	assert.Equal(t, []int32{21}, e.received)
	assert.Equal(t, 1, m.initialized)
	assert.Equal(t, 1, e.initialized)
}

func TestCompile_OneUnknownNode(t *testing.T) {
	var g graph.Graph
	a := g.AddNode("Source", map[string]any{"value": 1.0})
	b := g.AddNode("Recorder", nil)
	unknown := g.AddNode("Sparkle", nil)
	g.Connect(a, "value", b, "in")

	res := compile(t, &g)
	require.Len(t, res.Issues, 1)
	assert.Equal(t, UnknownNodeType, res.Issues[0].Kind)
	assert.Equal(t, unknown, res.Issues[0].NodeID)
	assert.ErrorIs(t, res.Issues[0], ErrUnknownNodeType)
	assert.False(t, res.Success())

	assert.Len(t, res.Instances, 2)
	assert.NotContains(t, res.Instances, unknown)
	assert.Equal(t, []int32{1}, res.Instances[b].(*recorder).received)
}

func TestCompile_DanglingConnectionToUnknownNode(t *testing.T) {
	var g graph.Graph
	a := g.AddNode("Source", nil)
	ghost := g.AddNode("Ghost", nil)
	g.Connect(a, "value", ghost, "in")

	res := compile(t, &g)
	require.Len(t, res.Issues, 2)
	assert.Len(t, res.IssuesOf(UnknownNodeType), 1)
	missing := res.IssuesOf(MissingNode)
	require.Len(t, missing, 1)
	assert.Equal(t, ghost, missing[0].NodeID)
	assert.NotNil(t, missing[0].Connection)
	assert.ErrorIs(t, res.Err(), ErrMissingNode)
}

func TestCompile_AccumulatesIssues(t *testing.T) {
	var g graph.Graph
	src := g.AddNode("Source", map[string]any{"value": 14.5, "colour": "red"})
	rec := g.AddNode("Recorder", map[string]any{"gain": 2.0})
	txt := g.AddNode("Text", nil)
	other := g.AddNode("Source", map[string]any{"value": 4.0})

	g.Connect(src, "value", rec, "in")
	g.Connect(txt, "text", rec, "gain")
	g.Connect(other, "value", rec, "in")
	g.Connect(src, "nope", rec, "in")
	g.Connect(99, "value", rec, "in")
	g.Nodes = append(g.Nodes, graph.NodeSpec{ID: rec, TypeID: "Text"})

	res := compile(t, &g)

	kinds := map[Kind]int{}
	for _, is := range res.Issues {
		kinds[is.Kind]++
	}
	assert.Equal(t, map[Kind]int{
		DuplicateNodeID:      1,
		UnknownEmbeddedInput: 1,
		TypeMismatch:         2,
		AlreadyConnected:     1,
		MissingPort:          1,
		MissingNode:          1,
	}, kinds)

	r := res.Instances[rec].(*recorder)
	assert.Equal(t, []int32{0}, r.received, "first binding survives, mismatched literal left at default")
	assert.Equal(t, int32(2), r.gain, "literal delivered despite other issues")
	assert.Equal(t, 1, r.initialized)
	assert.Len(t, res.Instances, 4)
}

func TestCompile_LiteralOnConnectedInput(t *testing.T) {
	var g graph.Graph
	src := g.AddNode("Source", map[string]any{"value": 5.0})
	rec := g.AddNode("Recorder", map[string]any{"gain": 2.0})
	g.Connect(src, "value", rec, "gain")

	res := compile(t, &g)
	issues := res.IssuesOf(AlreadyConnected)
	require.Len(t, issues, 1)
	assert.Equal(t, "gain", issues[0].Port)
	assert.Nil(t, issues[0].Connection)
	assert.ErrorIs(t, issues[0], node.ErrAlreadyConnected)
	assert.Equal(t, int32(5), res.Instances[rec].(*recorder).gain)
}

func TestCompile_InitializeFailures(t *testing.T) {
	var g graph.Graph
	p := g.AddNode("Panicky", nil)
	n := g.AddNode("Nil", nil)
	rec := g.AddNode("Recorder", nil)

	cat := testCatalog()
	cat["Recorder"] = &node.Descriptor{
		TypeID: "Recorder",
		Factory: func() node.Instance {
			r := newRecorder().(*recorder)
			r.initErr = errors.New("device missing")
			return r
		},
	}
	res := New(cat).Compile(&g, nil)
	defer res.Close()

	failed := res.IssuesOf(InitializeFailed)
	require.Len(t, failed, 3)
	ids := []int{failed[0].NodeID, failed[1].NodeID, failed[2].NodeID}
	assert.ElementsMatch(t, []int{p, n, rec}, ids)
	assert.Contains(t, res.Instances, p)
	assert.NotContains(t, res.Instances, n)
	assert.Equal(t, 1, res.Instances[rec].(*recorder).initialized)
}

func TestCompile_NilGraph(t *testing.T) {
	res := New(testCatalog()).Compile(nil, nil)
	assert.True(t, res.Success())
	assert.Empty(t, res.Instances)
	assert.NotNil(t, res.Context)
}

func TestIssue_Error(t *testing.T) {
	conn := &graph.Connection{FromNodeID: 1, FromPort: "a", ToNodeID: 2, ToPort: "b"}
	assert.Equal(t, "connection 1.a -> 2.b: missing_port",
		(&Issue{Kind: MissingPort, Connection: conn}).Error())
	assert.Equal(t, `node 3 port "w": unknown_embedded_input: nope`,
		(&Issue{Kind: UnknownEmbeddedInput, NodeID: 3, Port: "w", Err: errors.New("nope")}).Error())
	assert.Equal(t, "node 4: unknown_node_type", (&Issue{Kind: UnknownNodeType, NodeID: 4}).Error())
	assert.Equal(t, "unknown", Kind(99).String())
}

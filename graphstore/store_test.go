package graphstore

import (
	"bytes"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reosfire/xywire-sub000/errors"
	"github.com/reosfire/xywire-sub000/graph"
)

// literals are float64 so they compare equal after a decode
func sampleGraph() *graph.Graph {
	g := &graph.Graph{}
	fill := g.AddNode("SolidColorEffect", map[string]any{"width": 14.0, "height": 14.0, "fps": 30.0})
	out := g.AddNode("DeviceSinkEffect", map[string]any{"device": "panel"})
	g.Connect(fill, "buffer", out, "buffer")
	return g
}

func TestValidateName(t *testing.T) {
	for _, name := range []string{"main", "living-room_2", "A"} {
		assert.NoError(t, ValidateName(name), name)
	}
	for _, name := range []string{"", "../etc", "has space", "dot.json", "slash/name"} {
		err := ValidateName(name)
		assert.Error(t, err, name)
		assert.True(t, errors.IsInvalid(err), name)
	}
}

func TestNext_KeepsIDAndBumpsVersion(t *testing.T) {
	first := next(nil, "main", sampleGraph())
	assert.Equal(t, 1, first.Version)
	assert.NotEqual(t, uuid.Nil, first.ID)

	second := next(first, "main", sampleGraph())
	assert.Equal(t, 2, second.Version)
	assert.Equal(t, first.ID, second.ID)

	// documents loaded from hand-written files have no id yet
	third := next(&Document{Name: "main", Version: 0}, "main", sampleGraph())
	assert.Equal(t, 1, third.Version)
	assert.NotEqual(t, uuid.Nil, third.ID)
}

func TestDocumentCodec_RoundTrip(t *testing.T) {
	doc := next(nil, "main", sampleGraph())

	for _, format := range []graph.Format{graph.FormatJSON, graph.FormatYAML} {
		t.Run(string(format), func(t *testing.T) {
			data, err := encodeDocument(doc, format)
			require.NoError(t, err)

			back, err := decodeDocument(data, format)
			require.NoError(t, err)
			if diff := cmp.Diff(doc, back, cmpopts.EquateEmpty()); diff != "" {
				t.Errorf("document changed (-want +got):\n%s", diff)
			}
		})
	}
}

func TestDecodeDocument_BareGraph(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, graph.Save(&buf, sampleGraph(), graph.FormatYAML))

	doc, err := decodeDocument(buf.Bytes(), graph.FormatYAML)
	require.NoError(t, err)
	assert.Equal(t, uuid.Nil, doc.ID)
	assert.Zero(t, doc.Version)
	if diff := cmp.Diff(sampleGraph(), doc.Graph, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("graph changed (-want +got):\n%s", diff)
	}
}

func TestPayload_Compression(t *testing.T) {
	g := sampleGraph()
	for range 50 {
		g.AddNode("ConstantEffect<String>", map[string]any{"value": "repeated repeated repeated"})
	}
	doc := next(nil, "big", g)

	plain, err := encodePayload(doc, false)
	require.NoError(t, err)
	assert.Equal(t, byte('{'), plain[0])

	packed, err := encodePayload(doc, true)
	require.NoError(t, err)
	assert.Equal(t, snappyMarker, packed[0])
	assert.Less(t, len(packed), len(plain))

	for _, data := range [][]byte{plain, packed} {
		back, err := decodePayload(data)
		require.NoError(t, err)
		assert.Equal(t, doc.ID, back.ID)
		assert.Len(t, back.Graph.Nodes, len(g.Nodes))
	}

	_, err = decodePayload([]byte{snappyMarker, 0x01, 0x02})
	assert.True(t, errors.IsInvalid(err))
}

func TestCheckDocument(t *testing.T) {
	assert.Error(t, checkDocument("Update", nil))
	assert.Error(t, checkDocument("Update", &Document{Name: "bad name", Version: 1, Graph: sampleGraph()}))
	assert.Error(t, checkDocument("Update", &Document{Name: "ok", Version: 0, Graph: sampleGraph()}))
	assert.Error(t, checkDocument("Update", &Document{Name: "ok", Version: 1}))
	assert.NoError(t, checkDocument("Update", &Document{Name: "ok", Version: 1, Graph: sampleGraph()}))
}

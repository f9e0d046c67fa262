package graphstore

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/golang/snappy"
	"gopkg.in/yaml.v3"

	"github.com/reosfire/xywire-sub000/errors"
	"github.com/reosfire/xywire-sub000/graph"
)

// snappyMarker prefixes compressed KV payloads. JSON documents always start
// with '{' or whitespace, so the two never collide.
const snappyMarker byte = 0xff

// fileDocument also accepts a bare graph with nodes and connections at the
// top level, which is what hand-written graph files usually look like.
type fileDocument struct {
	Document    `yaml:",inline"`
	Nodes       []graph.NodeSpec   `json:"nodes,omitempty" yaml:"nodes,omitempty"`
	Connections []graph.Connection `json:"connections,omitempty" yaml:"connections,omitempty"`
}

func encodeDocument(doc *Document, format graph.Format) ([]byte, error) {
	switch format {
	case graph.FormatJSON, "":
		data, err := json.MarshalIndent(doc, "", "  ")
		if err != nil {
			return nil, errors.WrapInvalid(err, "graphstore", "encodeDocument", "encode json")
		}
		return data, nil
	case graph.FormatYAML:
		var buf bytes.Buffer
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return nil, errors.WrapInvalid(err, "graphstore", "encodeDocument", "encode yaml")
		}
		if err := enc.Close(); err != nil {
			return nil, errors.WrapInvalid(err, "graphstore", "encodeDocument", "encode yaml")
		}
		return buf.Bytes(), nil
	default:
		return nil, errors.WrapInvalid(fmt.Errorf("unknown format %q", format), "graphstore", "encodeDocument", "select codec")
	}
}

func decodeDocument(data []byte, format graph.Format) (*Document, error) {
	var fd fileDocument
	switch format {
	case graph.FormatJSON, "":
		if err := json.Unmarshal(data, &fd); err != nil {
			return nil, errors.WrapInvalid(err, "graphstore", "decodeDocument", "decode json")
		}
	case graph.FormatYAML:
		if err := yaml.Unmarshal(data, &fd); err != nil {
			return nil, errors.WrapInvalid(err, "graphstore", "decodeDocument", "decode yaml")
		}
	default:
		return nil, errors.WrapInvalid(fmt.Errorf("unknown format %q", format), "graphstore", "decodeDocument", "select codec")
	}

	doc := fd.Document
	if doc.Graph == nil {
		doc.Graph = &graph.Graph{Nodes: fd.Nodes, Connections: fd.Connections}
	}
	doc.Graph.Normalize()
	return &doc, nil
}

// encodePayload produces the KV value for doc
func encodePayload(doc *Document, compress bool) ([]byte, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, errors.WrapInvalid(err, "graphstore", "encodePayload", "encode json")
	}
	if !compress {
		return data, nil
	}
	out := make([]byte, 1, 1+snappy.MaxEncodedLen(len(data)))
	out[0] = snappyMarker
	return append(out, snappy.Encode(nil, data)...), nil
}

// decodePayload reads both compressed and plain values, so the compression
// setting can change without rewriting the bucket
func decodePayload(data []byte) (*Document, error) {
	if len(data) > 0 && data[0] == snappyMarker {
		plain, err := snappy.Decode(nil, data[1:])
		if err != nil {
			return nil, errors.WrapInvalid(err, "graphstore", "decodePayload", "decompress document")
		}
		data = plain
	}
	return decodeDocument(data, graph.FormatJSON)
}

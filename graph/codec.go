package graph

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/reosfire/xywire-sub000/errors"
	"github.com/reosfire/xywire-sub000/frame"
)

// Format selects the document encoding
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// FormatFromPath picks the format from a file extension, defaulting to JSON
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

// Ext returns the file extension for the format
func (f Format) Ext() string {
	if f == FormatYAML {
		return ".yaml"
	}
	return ".json"
}

// Marshal encodes g
func Marshal(g *Graph, format Format) ([]byte, error) {
	switch format {
	case FormatJSON, "":
		data, err := json.MarshalIndent(g, "", "  ")
		if err != nil {
			return nil, errors.WrapInvalid(err, "Graph", "Marshal", "encode json")
		}
		return data, nil
	case FormatYAML:
		var buf bytes.Buffer
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(g); err != nil {
			return nil, errors.WrapInvalid(err, "Graph", "Marshal", "encode yaml")
		}
		if err := enc.Close(); err != nil {
			return nil, errors.WrapInvalid(err, "Graph", "Marshal", "encode yaml")
		}
		return buf.Bytes(), nil
	default:
		return nil, errors.WrapInvalid(fmt.Errorf("unknown format %q", format), "Graph", "Marshal", "select codec")
	}
}

// Unmarshal decodes a graph. Literal values are normalized so both formats
// yield identical Go values: numbers become float64 and nested objects,
// colors included, become map[string]any.
func Unmarshal(data []byte, format Format) (*Graph, error) {
	var g Graph
	switch format {
	case FormatJSON, "":
		if err := json.Unmarshal(data, &g); err != nil {
			return nil, errors.WrapInvalid(err, "Graph", "Unmarshal", "decode json")
		}
	case FormatYAML:
		if err := yaml.Unmarshal(data, &g); err != nil {
			return nil, errors.WrapInvalid(err, "Graph", "Unmarshal", "decode yaml")
		}
	default:
		return nil, errors.WrapInvalid(fmt.Errorf("unknown format %q", format), "Graph", "Unmarshal", "select codec")
	}

	g.Normalize()
	return &g, nil
}

// Normalize rewrites literal values in place to the canonical decoded form.
// Callers that decode a graph embedded in a larger document use it to get
// the same values Unmarshal produces.
func (g *Graph) Normalize() {
	for i := range g.Nodes {
		for k, v := range g.Nodes[i].EmbeddedInputValues {
			g.Nodes[i].EmbeddedInputValues[k] = normalize(v)
		}
	}
}

// Save writes g to w
func Save(w io.Writer, g *Graph, format Format) error {
	data, err := Marshal(g, format)
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return errors.WrapTransient(err, "Graph", "Save", "write document")
	}
	return nil
}

// Load reads a graph from r
func Load(r io.Reader, format Format) (*Graph, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.WrapTransient(err, "Graph", "Load", "read document")
	}
	return Unmarshal(data, format)
}

func normalize(v any) any {
	switch t := v.(type) {
	case int:
		return float64(t)
	case int8:
		return float64(t)
	case int16:
		return float64(t)
	case int32:
		return float64(t)
	case int64:
		return float64(t)
	case uint:
		return float64(t)
	case uint8:
		return float64(t)
	case uint16:
		return float64(t)
	case uint32:
		return float64(t)
	case uint64:
		return float64(t)
	case float32:
		return float64(t)
	case frame.Color:
		return map[string]any{"r": float64(t.R), "g": float64(t.G), "b": float64(t.B)}
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = normalize(e)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = normalize(e)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[fmt.Sprint(k)] = normalize(e)
		}
		return out
	default:
		return v
	}
}

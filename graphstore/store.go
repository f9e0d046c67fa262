// Package graphstore persists named effect graphs. FileStore keeps one
// document per file for local setups; KVStore keeps them in a NATS KV bucket
// and can stream updates for hot reload.
//
// Every stored graph is wrapped in a Document carrying a stable id and a
// version that increases on each save. Update rejects a document whose
// version is stale, so two editors cannot silently overwrite each other.
package graphstore

import (
	"context"
	stderrors "errors"
	"fmt"
	"regexp"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/reosfire/xywire-sub000/errors"
	"github.com/reosfire/xywire-sub000/graph"
)

var (
	// ErrNotFound is returned when no graph is stored under a name
	ErrNotFound = stderrors.New("graph not found")
	// ErrVersionConflict is returned by Update when the stored version moved on
	ErrVersionConflict = stderrors.New("graph version conflict")
)

var namePattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

var validate = func() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("graphname", func(fl validator.FieldLevel) bool {
		return namePattern.MatchString(fl.Field().String())
	})
	return v
}()

// Document is a stored graph with its metadata
type Document struct {
	ID        uuid.UUID    `json:"id" yaml:"id"`
	Name      string       `json:"name" yaml:"name" validate:"required,graphname"`
	Version   int          `json:"version" yaml:"version" validate:"gte=1"`
	UpdatedAt time.Time    `json:"updatedAt" yaml:"updatedAt"`
	Graph     *graph.Graph `json:"graph" yaml:"graph" validate:"required"`
}

// Store is implemented by every graph backend
type Store interface {
	// Save stores g under name, creating the document or bumping its version
	Save(ctx context.Context, name string, g *graph.Graph) (*Document, error)
	// Update stores doc only if doc.Version is still the stored version
	Update(ctx context.Context, doc *Document) (*Document, error)
	Load(ctx context.Context, name string) (*Document, error)
	List(ctx context.Context) ([]string, error)
	Delete(ctx context.Context, name string) error
}

// Watcher is implemented by stores that can push changes. The channel
// yields the new graph after every save and is closed when ctx ends.
type Watcher interface {
	Watch(ctx context.Context, name string) (<-chan *graph.Graph, error)
}

// ValidateName checks that name is usable as a file name and KV key
func ValidateName(name string) error {
	if !namePattern.MatchString(name) {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "graphstore", "ValidateName",
			fmt.Sprintf("check graph name %q", name))
	}
	return nil
}

// next builds the document that follows prev; prev is nil for a new name
func next(prev *Document, name string, g *graph.Graph) *Document {
	doc := &Document{
		ID:        uuid.New(),
		Name:      name,
		Version:   1,
		UpdatedAt: time.Now().UTC(),
		Graph:     g,
	}
	if prev != nil {
		if prev.ID != uuid.Nil {
			doc.ID = prev.ID
		}
		doc.Version = prev.Version + 1
	}
	return doc
}

func checkDocument(method string, doc *Document) error {
	if doc == nil {
		return errors.WrapInvalid(errors.ErrInvalidData, "graphstore", method, "document cannot be nil")
	}
	if err := validate.Struct(doc); err != nil {
		return errors.WrapInvalid(err, "graphstore", method, "validate document")
	}
	return nil
}

func checkGraph(method, name string, g *graph.Graph) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	if g == nil {
		return errors.WrapInvalid(errors.ErrInvalidData, "graphstore", method, "graph cannot be nil")
	}
	return nil
}

func conflict(method string, stored, given int) error {
	return errors.WrapInvalid(fmt.Errorf("%w: have version %d, stored %d", ErrVersionConflict, given, stored),
		"graphstore", method, "check version")
}

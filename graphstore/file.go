package graphstore

import (
	"context"
	stderrors "errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/reosfire/xywire-sub000/errors"
	"github.com/reosfire/xywire-sub000/graph"
)

// FileStore keeps each graph in <dir>/<name>.<ext>. Writes go to a
// temporary file first and are renamed into place.
type FileStore struct {
	dir    string
	format graph.Format
	logger *slog.Logger

	mu sync.Mutex
}

// NewFileStore creates dir if needed. format selects the encoding of new
// files; Load finds a graph in either format.
func NewFileStore(dir string, format graph.Format, logger *slog.Logger) (*FileStore, error) {
	if dir == "" {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "FileStore", "NewFileStore", "check directory")
	}
	if format == "" {
		format = graph.FormatJSON
	}
	if format != graph.FormatJSON && format != graph.FormatYAML {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "FileStore", "NewFileStore", "check format "+string(format))
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.WrapFatal(err, "FileStore", "NewFileStore", "create directory")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FileStore{
		dir:    dir,
		format: format,
		logger: logger.With("component", "graphstore", "store", "file"),
	}, nil
}

// Dir returns the store directory
func (s *FileStore) Dir() string {
	return s.dir
}

func (s *FileStore) path(name string, format graph.Format) string {
	return filepath.Join(s.dir, name+format.Ext())
}

// find returns the existing file for name, preferring the store format
func (s *FileStore) find(name string) (string, graph.Format, bool) {
	candidates := []string{s.path(name, s.format)}
	for _, ext := range []string{".json", ".yaml", ".yml"} {
		candidates = append(candidates, filepath.Join(s.dir, name+ext))
	}
	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			return p, graph.FormatFromPath(p), true
		}
	}
	return "", "", false
}

func (s *FileStore) load(name string) (*Document, error) {
	p, format, ok := s.find(name)
	if !ok {
		return nil, errors.WrapInvalid(ErrNotFound, "FileStore", "Load", "find "+name)
	}
	data, err := os.ReadFile(p)
	if err != nil {
		if stderrors.Is(err, fs.ErrNotExist) {
			return nil, errors.WrapInvalid(ErrNotFound, "FileStore", "Load", "find "+name)
		}
		return nil, errors.WrapTransient(err, "FileStore", "Load", "read "+p)
	}
	doc, err := decodeDocument(data, format)
	if err != nil {
		return nil, err
	}
	// hand-written files carry no metadata
	if doc.Name == "" {
		doc.Name = name
	}
	return doc, nil
}

// Load reads the graph stored under name
func (s *FileStore) Load(_ context.Context, name string) (*Document, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(name)
}

// Save writes g under name
func (s *FileStore) Save(_ context.Context, name string, g *graph.Graph) (*Document, error) {
	if err := checkGraph("Save", name, g); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, err := s.load(name)
	if err != nil && !stderrors.Is(err, ErrNotFound) {
		return nil, err
	}
	doc := next(prev, name, g)
	if err := s.write(doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// Update writes doc if its version matches the stored one
func (s *FileStore) Update(_ context.Context, doc *Document) (*Document, error) {
	if err := checkDocument("Update", doc); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, err := s.load(doc.Name)
	if err != nil {
		return nil, err
	}
	if prev.Version != doc.Version {
		return nil, conflict("Update", prev.Version, doc.Version)
	}
	updated := next(prev, doc.Name, doc.Graph)
	if err := s.write(updated); err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *FileStore) write(doc *Document) error {
	data, err := encodeDocument(doc, s.format)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(s.dir, "."+doc.Name+".*.tmp")
	if err != nil {
		return errors.WrapTransient(err, "FileStore", "write", "create temp file")
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errors.WrapTransient(err, "FileStore", "write", "write temp file")
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return errors.WrapTransient(err, "FileStore", "write", "sync temp file")
	}
	if err := tmp.Close(); err != nil {
		return errors.WrapTransient(err, "FileStore", "write", "close temp file")
	}

	target := s.path(doc.Name, s.format)
	if err := os.Rename(tmp.Name(), target); err != nil {
		return errors.WrapTransient(err, "FileStore", "write", "rename into place")
	}
	// only one file per name
	for _, ext := range []string{".json", ".yaml", ".yml"} {
		if p := filepath.Join(s.dir, doc.Name+ext); p != target {
			_ = os.Remove(p)
		}
	}

	s.logger.Debug("Graph saved", "name", doc.Name, "version", doc.Version, "path", target)
	return nil
}

// List returns the stored graph names, sorted
func (s *FileStore) List(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, errors.WrapTransient(err, "FileStore", "List", "read directory")
	}

	seen := make(map[string]bool)
	names := []string{}
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		ext := filepath.Ext(e.Name())
		switch strings.ToLower(ext) {
		case ".json", ".yaml", ".yml":
		default:
			continue
		}
		name := strings.TrimSuffix(e.Name(), ext)
		if ValidateName(name) != nil || seen[name] {
			continue
		}
		seen[name] = true
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Delete removes every file stored for name
func (s *FileStore) Delete(_ context.Context, name string) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := false
	for {
		p, _, ok := s.find(name)
		if !ok {
			break
		}
		if err := os.Remove(p); err != nil {
			return errors.WrapTransient(err, "FileStore", "Delete", "remove "+p)
		}
		removed = true
	}
	if !removed {
		return errors.WrapInvalid(ErrNotFound, "FileStore", "Delete", "find "+name)
	}
	return nil
}

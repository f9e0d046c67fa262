package graphstore

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reosfire/xywire-sub000/graph"
)

func newFileStore(t *testing.T, format graph.Format) *FileStore {
	t.Helper()
	s, err := NewFileStore(t.TempDir(), format, nil)
	require.NoError(t, err)
	return s
}

func TestFileStore_SaveLoad(t *testing.T) {
	for _, format := range []graph.Format{graph.FormatJSON, graph.FormatYAML} {
		t.Run(string(format), func(t *testing.T) {
			s := newFileStore(t, format)
			ctx := context.Background()

			saved, err := s.Save(ctx, "main", sampleGraph())
			require.NoError(t, err)
			assert.Equal(t, 1, saved.Version)
			assert.FileExists(t, filepath.Join(s.Dir(), "main"+format.Ext()))

			loaded, err := s.Load(ctx, "main")
			require.NoError(t, err)
			assert.Equal(t, saved.ID, loaded.ID)
			assert.Equal(t, sampleGraph(), loaded.Graph)

			again, err := s.Save(ctx, "main", sampleGraph())
			require.NoError(t, err)
			assert.Equal(t, 2, again.Version)
			assert.Equal(t, saved.ID, again.ID)
		})
	}
}

func TestFileStore_NotFound(t *testing.T) {
	s := newFileStore(t, graph.FormatJSON)
	ctx := context.Background()

	_, err := s.Load(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.Delete(ctx, "missing"), ErrNotFound)
}

func TestFileStore_RejectsBadInput(t *testing.T) {
	s := newFileStore(t, graph.FormatJSON)
	ctx := context.Background()

	_, err := s.Save(ctx, "../escape", sampleGraph())
	assert.Error(t, err)
	_, err = s.Save(ctx, "main", nil)
	assert.Error(t, err)

	_, err = NewFileStore("", graph.FormatJSON, nil)
	assert.Error(t, err)
	_, err = NewFileStore(t.TempDir(), graph.Format("toml"), nil)
	assert.Error(t, err)
}

func TestFileStore_UpdateDetectsConflicts(t *testing.T) {
	s := newFileStore(t, graph.FormatJSON)
	ctx := context.Background()

	doc, err := s.Save(ctx, "main", sampleGraph())
	require.NoError(t, err)

	editorA := *doc
	editorB := *doc

	updated, err := s.Update(ctx, &editorA)
	require.NoError(t, err)
	assert.Equal(t, 2, updated.Version)

	_, err = s.Update(ctx, &editorB)
	assert.ErrorIs(t, err, ErrVersionConflict)
}

func TestFileStore_ListAndDelete(t *testing.T) {
	s := newFileStore(t, graph.FormatJSON)
	ctx := context.Background()

	names, err := s.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, names)

	for _, name := range []string{"zeta", "alpha", "mid"} {
		_, err := s.Save(ctx, name, sampleGraph())
		require.NoError(t, err)
	}
	require.NoError(t, os.WriteFile(filepath.Join(s.Dir(), "notes.txt"), []byte("ignored"), 0o644))

	names, err = s.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "mid", "zeta"}, names)

	require.NoError(t, s.Delete(ctx, "mid"))
	names, err = s.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "zeta"}, names)
}

func TestFileStore_LoadsHandWrittenGraph(t *testing.T) {
	s := newFileStore(t, graph.FormatJSON)
	f, err := os.Create(filepath.Join(s.Dir(), "manual.yaml"))
	require.NoError(t, err)
	require.NoError(t, graph.Save(f, sampleGraph(), graph.FormatYAML))
	require.NoError(t, f.Close())

	doc, err := s.Load(context.Background(), "manual")
	require.NoError(t, err)
	assert.Equal(t, "manual", doc.Name)
	assert.Equal(t, sampleGraph(), doc.Graph)

	// saving converts it to the store format
	saved, err := s.Save(context.Background(), "manual", doc.Graph)
	require.NoError(t, err)
	assert.Equal(t, 1, saved.Version)
	assert.NoFileExists(t, filepath.Join(s.Dir(), "manual.yaml"))
	assert.FileExists(t, filepath.Join(s.Dir(), "manual.json"))
}

func TestFileStore_ConcurrentSaves(t *testing.T) {
	s := newFileStore(t, graph.FormatJSON)
	ctx := context.Background()

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Save(ctx, "main", sampleGraph())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	doc, err := s.Load(ctx, "main")
	require.NoError(t, err)
	assert.Equal(t, 8, doc.Version)
}

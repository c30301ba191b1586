package collection

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"doccatalog/internal/adapter/index"
	"doccatalog/internal/domain"
	"doccatalog/internal/port"
)

func newTestStore(t *testing.T) (*LocalStore, port.IndexBackend) {
	t.Helper()
	backend := index.NewFlatBackend(index.CompressionZstd)
	s, err := NewLocalStore(t.TempDir(), backend)
	require.NoError(t, err)
	return s, backend
}

func buildIndex(t *testing.T, b port.IndexBackend, n int) port.IndexHandle {
	t.Helper()
	chunks := make([]domain.EmbeddedChunk, n)
	for i := range chunks {
		chunks[i] = domain.EmbeddedChunk{Text: "chunk", Vector: []float32{float32(i + 1), 1}}
	}
	h, err := b.Build(chunks)
	require.NoError(t, err)
	return h
}

func TestLocalStore_Lifecycle(t *testing.T) {
	s, b := newTestStore(t)

	path, err := s.Persist("abc_doc.pdf", buildIndex(t, b, 3))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(s.Root(), "abc_doc.pdf"), path)
	assert.FileExists(t, filepath.Join(path, index.FileName))

	h, err := s.Load("abc_doc.pdf")
	require.NoError(t, err)
	assert.Equal(t, 3, h.Len())

	present, err := s.ListPresent()
	require.NoError(t, err)
	assert.Equal(t, map[string]struct{}{"abc_doc.pdf": {}}, present)

	require.NoError(t, s.Remove("abc_doc.pdf"))
	assert.NoDirExists(t, path)

	// Idempotent.
	require.NoError(t, s.Remove("abc_doc.pdf"))

	_, err = s.Load("abc_doc.pdf")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestLocalStore_LoadEmptyDirIsNotFound(t *testing.T) {
	s, _ := newTestStore(t)
	require.NoError(t, os.Mkdir(s.Path("half"), 0o755))

	_, err := s.Load("half")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestLocalStore_LoadCorruptIsBackendError(t *testing.T) {
	s, _ := newTestStore(t)
	require.NoError(t, os.Mkdir(s.Path("bad"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(s.Path("bad"), index.FileName), []byte("xx"), 0o644))

	_, err := s.Load("bad")
	assert.ErrorIs(t, err, domain.ErrBackend)
}

func TestLocalStore_PersistReplacesStaleDirectory(t *testing.T) {
	s, b := newTestStore(t)
	require.NoError(t, os.MkdirAll(s.Path("dup"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(s.Path("dup"), "junk"), []byte("x"), 0o644))

	_, err := s.Persist("dup", buildIndex(t, b, 2))
	require.NoError(t, err)
	assert.NoFileExists(t, filepath.Join(s.Path("dup"), "junk"))

	h, err := s.Load("dup")
	require.NoError(t, err)
	assert.Equal(t, 2, h.Len())
}

func TestLocalStore_ListPresentSkipsStagingAndFiles(t *testing.T) {
	s, b := newTestStore(t)
	_, err := s.Persist("keep", buildIndex(t, b, 1))
	require.NoError(t, err)
	require.NoError(t, os.Mkdir(filepath.Join(s.Root(), stagingPrefix+"inflight"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(s.Root(), "catalog.db"), []byte("x"), 0o600))

	present, err := s.ListPresent()
	require.NoError(t, err)
	assert.Equal(t, map[string]struct{}{"keep": {}}, present)
}

func TestLocalStore_NoStagingLeftAfterPersist(t *testing.T) {
	s, b := newTestStore(t)
	_, err := s.Persist("one", buildIndex(t, b, 1))
	require.NoError(t, err)

	entries, err := os.ReadDir(s.Root())
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, e.Name(), stagingPrefix)
	}
}

func TestLocalStore_InvalidIDs(t *testing.T) {
	s, b := newTestStore(t)
	h := buildIndex(t, b, 1)

	for _, id := range []string{"", ".", "..", "../escape", "a/b", ".hidden"} {
		_, err := s.Persist(id, h)
		assert.ErrorIs(t, err, domain.ErrStorage, id)
		assert.ErrorIs(t, s.Remove(id), domain.ErrStorage, id)
	}
}

func TestLocalStore_SweepStaging(t *testing.T) {
	s, _ := newTestStore(t)
	old := filepath.Join(s.Root(), stagingPrefix+"old")
	fresh := filepath.Join(s.Root(), stagingPrefix+"fresh")
	require.NoError(t, os.Mkdir(old, 0o755))
	require.NoError(t, os.Mkdir(fresh, 0o755))
	past := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(old, past, past))

	n, err := s.SweepStaging(time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.NoDirExists(t, old)
	assert.DirExists(t, fresh)
}

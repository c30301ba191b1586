package fs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func rel(t *testing.T, root string, files []string) []string {
	t.Helper()
	out := make([]string, len(files))
	for i, f := range files {
		r, err := filepath.Rel(root, f)
		require.NoError(t, err)
		out[i] = filepath.ToSlash(r)
	}
	return out
}

func TestWalker_IncludeExclude(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "b.txt", "b")
	writeFile(t, root, "a.md", "a")
	writeFile(t, root, "notes/c.txt", "c")
	writeFile(t, root, "image.png", "x")
	writeFile(t, root, "node_modules/dep/readme.md", "skip")
	writeFile(t, root, "big.txt", "0123456789")

	w := NewWalker([]string{"**/*.txt", "**/*.md"}, []string{"**/node_modules/**"}, 5)
	files, err := w.Walk(root)
	require.NoError(t, err)

	paths := make([]string, len(files))
	for i, f := range files {
		paths[i] = f.Path
		assert.Positive(t, f.Size)
	}
	assert.Equal(t, []string{"a.md", "b.txt", "notes/c.txt"}, rel(t, root, paths))
}

func TestWalker_SingleFile(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "only.bin", "data")

	files, err := NewWalker([]string{"**/*.txt"}, nil, 0).Walk(filepath.Join(root, "only.bin"))
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, int64(4), files[0].Size)
}

func TestWalker_MissingRoot(t *testing.T) {
	_, err := NewWalker(nil, nil, 0).Walk(filepath.Join(t.TempDir(), "absent"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

package index

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"doccatalog/internal/domain"
)

func testChunks() []domain.EmbeddedChunk {
	return []domain.EmbeddedChunk{
		{ID: "a", Text: "alpha", Vector: []float32{1, 0, 0}, Metadata: domain.Metadata{"page": domain.Int(1)}},
		{ID: "b", Text: "beta", Vector: []float32{0, 1, 0}, Metadata: domain.Metadata{"page": domain.Int(2)}},
		{ID: "c", Text: "gamma", Vector: []float32{0.9, 0.1, 0}},
	}
}

func TestBuild(t *testing.T) {
	b := NewFlatBackend(CompressionNone)

	h, err := b.Build(testChunks())
	require.NoError(t, err)
	assert.Equal(t, 3, h.Len())
	assert.Equal(t, 3, h.Dimension())
}

func TestBuild_Errors(t *testing.T) {
	b := NewFlatBackend(CompressionNone)

	_, err := b.Build(nil)
	assert.ErrorIs(t, err, ErrEmptyBuild)

	_, err = b.Build([]domain.EmbeddedChunk{{Vector: []float32{1, 2}}, {Vector: []float32{1}}})
	var dm *ErrDimensionMismatch
	require.ErrorAs(t, err, &dm)
	assert.Equal(t, 2, dm.Expected)
	assert.Equal(t, 1, dm.Actual)

	_, err = b.Build([]domain.EmbeddedChunk{{Vector: nil}})
	assert.Error(t, err)
}

func TestBuild_CopiesInput(t *testing.T) {
	b := NewFlatBackend(CompressionNone)
	chunks := testChunks()

	h, err := b.Build(chunks)
	require.NoError(t, err)
	chunks[0].Vector[0] = -1

	results, err := b.Search(h, []float32{1, 0, 0}, 1)
	require.NoError(t, err)
	assert.Equal(t, "a", results[0].ChunkID)
}

func TestSearch(t *testing.T) {
	b := NewFlatBackend(CompressionNone)
	h, err := b.Build(testChunks())
	require.NoError(t, err)

	results, err := b.Search(h, []float32{1, 0, 0}, 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "a", results[0].ChunkID)
	assert.Equal(t, "c", results[1].ChunkID)
	assert.InDelta(t, 1.0, results[0].Score, 1e-9)
	v, ok := results[0].Metadata["page"].Int()
	assert.True(t, ok)
	assert.Equal(t, int64(1), v)

	all, err := b.Search(h, []float32{1, 0, 0}, 10)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	none, err := b.Search(h, []float32{1, 0, 0}, 0)
	require.NoError(t, err)
	assert.Empty(t, none)

	_, err = b.Search(h, []float32{1, 0}, 1)
	var dm *ErrDimensionMismatch
	assert.ErrorAs(t, err, &dm)
}

type otherHandle struct{}

func (otherHandle) Len() int       { return 0 }
func (otherHandle) Dimension() int { return 0 }

func TestSearch_ForeignHandle(t *testing.T) {
	b := NewFlatBackend(CompressionNone)
	_, err := b.Search(otherHandle{}, []float32{1}, 1)
	assert.ErrorIs(t, err, ErrForeignHandle)
}

func TestMerge(t *testing.T) {
	b := NewFlatBackend(CompressionNone)
	left, err := b.Build(testChunks()[:2])
	require.NoError(t, err)
	right, err := b.Build(testChunks()[2:])
	require.NoError(t, err)

	merged, err := b.Merge(left, right)
	require.NoError(t, err)
	assert.Equal(t, 3, merged.Len())
	assert.Equal(t, 2, left.Len(), "merge must not modify its inputs")
	assert.Equal(t, 1, right.Len())

	results, err := b.Search(merged, []float32{0.9, 0.1, 0}, 1)
	require.NoError(t, err)
	assert.Equal(t, "c", results[0].ChunkID)
}

func TestMerge_DimensionMismatch(t *testing.T) {
	b := NewFlatBackend(CompressionNone)
	left, err := b.Build([]domain.EmbeddedChunk{{Vector: []float32{1, 2}}})
	require.NoError(t, err)
	right, err := b.Build([]domain.EmbeddedChunk{{Vector: []float32{1, 2, 3}}})
	require.NoError(t, err)

	_, err = b.Merge(left, right)
	var dm *ErrDimensionMismatch
	assert.ErrorAs(t, err, &dm)
}

func TestPersistLoad(t *testing.T) {
	for _, c := range []Compression{CompressionNone, CompressionZstd, CompressionLZ4} {
		t.Run(c.String(), func(t *testing.T) {
			b := NewFlatBackend(c)
			dir := filepath.Join(t.TempDir(), "coll")

			h, err := b.Build(testChunks())
			require.NoError(t, err)
			require.NoError(t, b.Persist(h, dir))

			loaded, err := b.Load(dir)
			require.NoError(t, err)
			assert.Equal(t, h.Len(), loaded.Len())
			assert.Equal(t, h.Dimension(), loaded.Dimension())

			want, err := b.Search(h, []float32{0, 1, 0}, 3)
			require.NoError(t, err)
			got, err := b.Search(loaded, []float32{0, 1, 0}, 3)
			require.NoError(t, err)
			assert.Equal(t, want, got)
		})
	}
}

func TestLoad_Missing(t *testing.T) {
	b := NewFlatBackend(CompressionZstd)
	_, err := b.Load(filepath.Join(t.TempDir(), "nope"))
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestLoad_Corrupt(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte("garbage!"), 0o644))

	_, err := NewFlatBackend(CompressionNone).Load(dir)
	assert.ErrorIs(t, err, errBadHeader)
}

func TestParseCompression(t *testing.T) {
	c, err := ParseCompression("")
	require.NoError(t, err)
	assert.Equal(t, CompressionZstd, c)

	c, err = ParseCompression("LZ4")
	require.NoError(t, err)
	assert.Equal(t, CompressionLZ4, c)

	_, err = ParseCompression("gzip")
	assert.Error(t, err)
}

package usecase

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"doccatalog/internal/adapter/chunker"
	"doccatalog/internal/adapter/embedding"
	"doccatalog/internal/adapter/extract"
	"doccatalog/internal/adapter/fs"
	"doccatalog/internal/adapter/hasher"
	"doccatalog/internal/domain"
)

type failingEmbedder struct{ *embedding.HashEmbedder }

func (failingEmbedder) Embed(context.Context, []string) ([][]float32, error) {
	return nil, errors.New("rate limited")
}

func writeDoc(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func newIngest(h *harness) *IngestUseCase {
	return NewIngestUseCase(
		h.mgr,
		fs.NewWalker([]string{"**/*.txt", "**/*.md", "**/*.pdf"}, nil, 0),
		extract.New(),
		chunker.NewWordChunker(5, 1),
		embedding.NewHashEmbedder(16),
		nil,
	)
}

func TestIngest_AddsNewAndSkipsKnownContent(t *testing.T) {
	h := newHarness(t)
	dir := t.TempDir()
	writeDoc(t, dir, "alpha.txt", strings.Repeat("alpha beta gamma ", 5))
	writeDoc(t, dir, "copy.md", strings.Repeat("alpha beta gamma ", 5))
	writeDoc(t, dir, "empty.txt", "   ")
	writeDoc(t, dir, "other.txt", "delta epsilon")

	var seen []string
	res, err := newIngest(h).Ingest(context.Background(), dir, func(done, total int, path string) {
		assert.Equal(t, 4, total)
		seen = append(seen, filepath.Base(path))
	})
	require.NoError(t, err)

	assert.Len(t, seen, 4)
	assert.Equal(t, 2, res.FilesAdded)
	assert.Equal(t, 2, res.FilesSkipped)
	assert.Empty(t, res.Errors)
	assert.Len(t, res.Collections, 2)

	// 15 words in windows of 5 with overlap 1, plus one chunk for other.txt
	assert.Equal(t, 5, res.ChunksCreated)

	stats, err := h.mgr.Stats()
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalDocuments)
	assert.Equal(t, 5, stats.TotalVectors)

	again, err := newIngest(h).Ingest(context.Background(), dir, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, again.FilesAdded)
	assert.Equal(t, 4, again.FilesSkipped)
}

func TestIngestFile_Metadata(t *testing.T) {
	h := newHarness(t)
	path := writeDoc(t, t.TempDir(), "notes.md", "one two three four five six")

	f, err := newIngest(h).IngestFile(context.Background(), path, domain.Metadata{"owner": domain.String("ops")})
	require.NoError(t, err)
	require.True(t, f.Added)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, hasher.IdentityOf(data), f.Identity)

	rec, ok, err := h.mgr.DocumentInfo(f.Identity)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "notes.md", rec.Filename)
	assert.Equal(t, path, rec.SourcePath)

	owner, _ := rec.Metadata["owner"].Str()
	assert.Equal(t, "ops", owner)
	ft, _ := rec.Metadata["file_type"].Str()
	assert.Equal(t, "markdown", ft)
	size, _ := rec.Metadata["file_size"].Int()
	assert.Equal(t, int64(len(data)), size)

	results, err := h.mgr.SearchDocument(f.Identity, mustEmbed(t, "one two"), 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	src, _ := results[0].Metadata["source_file"].Str()
	assert.Equal(t, "notes.md", src)
}

func TestIngestFile_PDFPages(t *testing.T) {
	h := newHarness(t)
	data, err := os.ReadFile(filepath.Join("testdata", "two_pages.pdf"))
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "handbook.pdf")
	require.NoError(t, os.WriteFile(path, data, 0o644))

	f, err := newIngest(h).IngestFile(context.Background(), path, nil)
	require.NoError(t, err)
	require.True(t, f.Added)
	assert.Equal(t, 2, f.Chunks)

	rec, _, err := h.mgr.DocumentInfo(f.Identity)
	require.NoError(t, err)
	ft, _ := rec.Metadata["file_type"].Str()
	assert.Equal(t, "pdf", ft)
	pages, _ := rec.Metadata["pages"].Int()
	assert.Equal(t, int64(2), pages)

	results, err := h.mgr.SearchDocument(f.Identity, mustEmbed(t, "shipping takes three business days"), 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Contains(t, results[0].Text, "shipping")
	page, ok := results[0].Metadata["page"].Int()
	require.True(t, ok)
	assert.Equal(t, int64(1), page)
	idx, _ := results[0].Metadata["chunk_index"].Int()
	assert.Equal(t, int64(1), idx)
}

func TestIngestFile_TextHasNoPage(t *testing.T) {
	h := newHarness(t)
	path := writeDoc(t, t.TempDir(), "plain.txt", "one two three")

	f, err := newIngest(h).IngestFile(context.Background(), path, nil)
	require.NoError(t, err)
	results, err := h.mgr.SearchDocument(f.Identity, mustEmbed(t, "one"), 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	_, hasPage := results[0].Metadata["page"]
	assert.False(t, hasPage)
}

func TestIngest_CollectsPerFileErrors(t *testing.T) {
	h := newHarness(t)
	dir := t.TempDir()
	writeDoc(t, dir, "a.txt", "some words")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bin.txt"), []byte{0xff, 0xfe, 0x00}, 0o644))

	uc := NewIngestUseCase(h.mgr, fs.NewWalker([]string{"**/*.txt"}, nil, 0),
		extract.New(), chunker.NewWordChunker(5, 0), failingEmbedder{embedding.NewHashEmbedder(4)}, nil)
	res, err := uc.Ingest(context.Background(), dir, nil)
	require.NoError(t, err)
	assert.Len(t, res.Errors, 2)
	assert.Equal(t, 0, res.FilesAdded)
	assert.Empty(t, h.present(t))
}

func TestIngest_Cancelled(t *testing.T) {
	h := newHarness(t)
	dir := t.TempDir()
	writeDoc(t, dir, "a.txt", "some words")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newIngest(h).Ingest(ctx, dir, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func mustEmbed(t *testing.T, text string) []float32 {
	t.Helper()
	v, err := embedding.NewHashEmbedder(16).Embed(context.Background(), []string{text})
	require.NoError(t, err)
	return v[0]
}

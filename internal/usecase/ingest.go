package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"doccatalog/internal/adapter/hasher"
	"doccatalog/internal/domain"
	"doccatalog/internal/logger"
	"doccatalog/internal/port"
)

// IngestUseCase finds documents on disk, embeds the ones the catalog does
// not know yet and adds them through the manager.
type IngestUseCase struct {
	manager  *CatalogManager
	walker    port.FileWalker
	extractor port.Extractor
	chunker   port.Chunker
	embedder port.Embedder
	log      *slog.Logger
}

// NewIngestUseCase creates a new ingest use case. A nil logger discards output.
func NewIngestUseCase(
	manager *CatalogManager,
	walker port.FileWalker,
	extractor port.Extractor,
	chunker port.Chunker,
	embedder port.Embedder,
	log *slog.Logger,
) *IngestUseCase {
	if log == nil {
		log = logger.Nop()
	}
	return &IngestUseCase{
		manager:   manager,
		walker:    walker,
		extractor: extractor,
		chunker:   chunker,
		embedder:  embedder,
		log:       log,
	}
}

// IngestResult contains the results of an ingest run.
type IngestResult struct {
	FilesAdded    int
	FilesSkipped  int
	ChunksCreated int
	Collections   []string
	Errors        []string
}

// ProgressFunc is called after each file with the number of files done.
type ProgressFunc func(done, total int, path string)

// Ingest adds every new document under root. Files whose content is
// already catalogued are skipped. Per-file failures are collected in the
// result; only walk failures and cancellation abort the run.
func (u *IngestUseCase) Ingest(ctx context.Context, root string, progress ProgressFunc) (*IngestResult, error) {
	result := &IngestResult{}

	files, err := u.walker.Walk(root)
	if err != nil {
		return nil, fmt.Errorf("failed to walk directory: %w", err)
	}

	for i, file := range files {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		f, err := u.IngestFile(ctx, file.Path, nil)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return result, ctx.Err()
			}
			result.Errors = append(result.Errors, fmt.Sprintf("failed to ingest %s: %v", file.Path, err))
		case f.Added:
			result.FilesAdded++
			result.ChunksCreated += f.Chunks
			result.Collections = append(result.Collections, f.CollectionID)
		default:
			result.FilesSkipped++
		}

		if progress != nil {
			progress(i+1, len(files), file.Path)
		}
	}

	return result, nil
}

// IngestedFile describes the outcome of ingesting one file.
type IngestedFile struct {
	Identity     domain.Identity
	CollectionID string
	Chunks       int
	Added        bool
}

// IngestFile adds one file. Added is false, with no error, when the content
// is already catalogued or holds no text.
func (u *IngestUseCase) IngestFile(ctx context.Context, path string, metadata domain.Metadata) (IngestedFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return IngestedFile{}, fmt.Errorf("failed to read file: %w", err)
	}

	id := hasher.IdentityOf(data)
	out := IngestedFile{Identity: id}
	exists, err := u.manager.HasDocument(id)
	if err != nil {
		return out, err
	}
	if exists {
		u.log.Debug("document already catalogued", "path", path, "identity", id)
		return out, nil
	}

	pages, err := u.extractor.Extract(path, data)
	if err != nil {
		return out, err
	}

	// chunk page by page so every chunk carries its page number
	var chunks []domain.Chunk
	var chunkPages []int
	for _, p := range pages {
		seed := string(id)
		if p.Number >= 0 {
			seed = fmt.Sprintf("%s:p%d", id, p.Number)
		}
		for _, c := range u.chunker.Chunk(seed, p.Text) {
			c.Index = len(chunks)
			chunks = append(chunks, c)
			chunkPages = append(chunkPages, p.Number)
		}
	}
	if len(chunks) == 0 {
		u.log.Debug("document has no text", "path", path)
		return out, nil
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vectors, err := u.embedder.Embed(ctx, texts)
	if err != nil {
		return out, fmt.Errorf("failed to embed chunks: %w", err)
	}
	if len(vectors) != len(chunks) {
		return out, fmt.Errorf("embedder returned %d vectors for %d chunks", len(vectors), len(chunks))
	}

	filename := filepath.Base(path)
	embedded := make([]domain.EmbeddedChunk, len(chunks))
	for i, c := range chunks {
		md := domain.Metadata{
			"source_file": domain.String(filename),
			"file_hash":   domain.String(string(id)),
			"file_path":   domain.String(path),
			"chunk_index": domain.Int(int64(c.Index)),
		}
		if chunkPages[i] >= 0 {
			md["page"] = domain.Int(int64(chunkPages[i]))
		}
		embedded[i] = domain.EmbeddedChunk{ID: c.ID, Text: c.Text, Vector: vectors[i], Metadata: md}
	}

	docMeta := metadata.Clone()
	if docMeta == nil {
		docMeta = domain.Metadata{}
	}
	docMeta["file_size"] = domain.Int(int64(len(data)))
	docMeta["file_type"] = domain.String(detectFileType(path))
	if n := countPaged(pages); n > 0 {
		docMeta["pages"] = domain.Int(int64(n))
	}
	docMeta["embedding_model"] = domain.String(u.embedder.ModelName())
	if info, err := os.Stat(path); err == nil {
		docMeta["modified_at"] = domain.String(info.ModTime().UTC().Format(time.RFC3339))
	}

	cid, err := u.manager.AddDocument(id, embedded, filename, path, docMeta)
	if err != nil {
		// lost a race with a concurrent ingest of the same content
		if errors.Is(err, domain.ErrDuplicateIdentity) {
			return out, nil
		}
		return out, err
	}
	out.CollectionID = cid
	out.Chunks = len(chunks)
	out.Added = true
	return out, nil
}

// detectFileType names the document format based on file extension.
func detectFileType(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		return "pdf"
	case ".txt":
		return "text"
	case ".md", ".markdown":
		return "markdown"
	case ".rst":
		return "restructuredtext"
	case ".csv":
		return "csv"
	case ".json":
		return "json"
	case ".html", ".htm":
		return "html"
	default:
		return "unknown"
	}
}

func countPaged(pages []domain.Page) int {
	n := 0
	for _, p := range pages {
		if p.Number >= 0 {
			n++
		}
	}
	return n
}

package chunker

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"doccatalog/internal/domain"
	"doccatalog/internal/port"
)

// WordChunker splits text into windows of at most maxWords words, each
// window repeating the last overlap words of the previous one.
type WordChunker struct {
	maxWords int
	overlap  int
}

var _ port.Chunker = (*WordChunker)(nil)

func NewWordChunker(maxWords, overlap int) *WordChunker {
	if maxWords <= 0 {
		maxWords = 200
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= maxWords {
		overlap = maxWords - 1
	}
	return &WordChunker{
		maxWords: maxWords,
		overlap:  overlap,
	}
}

func (c *WordChunker) Chunk(docID, content string) []domain.Chunk {
	words := strings.Fields(content)
	if len(words) == 0 {
		return nil
	}

	var chunks []domain.Chunk
	start := 0
	for {
		end := min(start+c.maxWords, len(words))
		chunks = append(chunks, domain.Chunk{
			ID:        generateChunkID(docID, start, end),
			Index:     len(chunks),
			StartWord: start,
			EndWord:   end,
			Text:      strings.Join(words[start:end], " "),
		})
		if end == len(words) {
			return chunks
		}
		start = end - c.overlap
	}
}

func generateChunkID(docID string, start, end int) string {
	data := fmt.Sprintf("%s:%d-%d", docID, start, end)
	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:8])
}

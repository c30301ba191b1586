package chunker

import (
	"fmt"
	"strings"
	"testing"
)

func words(n int) string {
	w := make([]string, n)
	for i := range w {
		w[i] = fmt.Sprintf("w%d", i)
	}
	return strings.Join(w, " ")
}

func TestWordChunkerBasic(t *testing.T) {
	chunker := NewWordChunker(4, 1)

	chunks := chunker.Chunk("doc1", words(10))
	// windows: 0-4, 3-7, 6-10
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}

	for i, chunk := range chunks {
		if chunk.ID == "" {
			t.Error("chunk has empty ID")
		}
		if chunk.Index != i {
			t.Errorf("expected Index %d, got %d", i, chunk.Index)
		}
		if chunk.EndWord-chunk.StartWord > 4 {
			t.Errorf("chunk %d is too long: %d words", i, chunk.EndWord-chunk.StartWord)
		}
	}

	if chunks[1].StartWord != 3 || chunks[2].EndWord != 10 {
		t.Errorf("unexpected windows: %+v", chunks)
	}
	if chunks[0].Text != "w0 w1 w2 w3" {
		t.Errorf("unexpected text %q", chunks[0].Text)
	}
	if !strings.HasPrefix(chunks[1].Text, "w3 ") {
		t.Errorf("expected overlap with previous chunk, got %q", chunks[1].Text)
	}
}

func TestWordChunkerEmpty(t *testing.T) {
	chunker := NewWordChunker(10, 2)
	if chunks := chunker.Chunk("doc", "  \n\t "); len(chunks) != 0 {
		t.Errorf("expected no chunks, got %d", len(chunks))
	}
}

func TestWordChunkerShortDocument(t *testing.T) {
	chunker := NewWordChunker(50, 10)
	chunks := chunker.Chunk("doc", "just a few\nwords here")
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	if chunks[0].Text != "just a few words here" {
		t.Errorf("unexpected text %q", chunks[0].Text)
	}
}

func TestWordChunkerOverlapClamped(t *testing.T) {
	// overlap >= window would never advance
	chunker := NewWordChunker(3, 5)
	chunks := chunker.Chunk("doc", words(6))
	if len(chunks) != 4 {
		t.Fatalf("expected 4 chunks, got %d", len(chunks))
	}
}

func TestChunkIDsStable(t *testing.T) {
	chunker := NewWordChunker(4, 0)
	a := chunker.Chunk("doc1", words(8))
	b := chunker.Chunk("doc1", words(8))
	c := chunker.Chunk("doc2", words(8))

	for i := range a {
		if a[i].ID != b[i].ID {
			t.Errorf("chunk %d id changed between runs", i)
		}
		if a[i].ID == c[i].ID {
			t.Errorf("chunk %d id does not depend on the document", i)
		}
	}
}

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"doccatalog/internal/adapter/collection"
	"doccatalog/internal/adapter/embedding"
	"doccatalog/internal/adapter/hasher"
	"doccatalog/internal/adapter/index"
	"doccatalog/internal/adapter/store"
	"doccatalog/internal/domain"
	"doccatalog/internal/usecase"
)

var vocabulary = strings.Fields(`refund invoice shipping warranty contract payment
delivery customer account password report quarterly revenue policy return
damaged order support ticket escalation billing address license renewal`)

func main() {
	dir := flag.String("dir", "", "catalog directory (default: temporary)")
	docs := flag.Int("docs", 200, "number of synthetic documents")
	chunks := flag.Int("chunks", 50, "chunks per document")
	dim := flag.Int("dim", 256, "embedding dimension")
	topK := flag.Int("k", 10, "number of results")
	comp := flag.String("compression", "zstd", "index compression (none, zstd, lz4)")
	flag.Parse()

	if *dir == "" {
		tmp, err := os.MkdirTemp("", "doccatalog-bench-")
		if err != nil {
			fail("creating temp dir", err)
		}
		defer os.RemoveAll(tmp)
		*dir = tmp
	}

	compression, err := index.ParseCompression(*comp)
	if err != nil {
		fail("parsing compression", err)
	}
	backend := index.NewFlatBackend(compression)
	cat, err := store.NewBoltCatalog(filepath.Join(*dir, "catalog.db"))
	if err != nil {
		fail("opening catalog", err)
	}
	defer cat.Close()
	st, err := collection.NewLocalStore(*dir, backend)
	if err != nil {
		fail("opening store", err)
	}
	emb := embedding.NewHashEmbedder(*dim)
	ctx := context.Background()

	fmt.Println("CATALOG BENCHMARK")
	fmt.Println(strings.Repeat("=", 70))
	fmt.Printf("Documents: %d x %d chunks, dimension %d, compression %s\n\n", *docs, *chunks, *dim, compression)

	mgr := usecase.NewCatalogManager(cat, st, backend, usecase.DefaultManagerOptions())

	start := time.Now()
	var ids []domain.Identity
	for d := 0; d < *docs; d++ {
		texts := make([]string, *chunks)
		for c := range texts {
			texts[c] = sentence(d, c)
		}
		vecs, err := emb.Embed(ctx, texts)
		if err != nil {
			fail("embedding", err)
		}
		embedded := make([]domain.EmbeddedChunk, len(texts))
		for c, t := range texts {
			embedded[c] = domain.EmbeddedChunk{ID: fmt.Sprintf("%d-%d", d, c), Text: t, Vector: vecs[c]}
		}
		id := hasher.IdentityOf([]byte(strings.Join(texts, "\n")))
		name := fmt.Sprintf("doc-%04d.txt", d)
		if _, err := mgr.AddDocument(id, embedded, name, name, nil); err != nil {
			fail("adding document", err)
		}
		ids = append(ids, id)
	}
	report("add", start, *docs)

	query, err := emb.Embed(ctx, []string{"refund for damaged order"})
	if err != nil {
		fail("embedding query", err)
	}

	// fresh manager so every index comes from disk
	cold := usecase.NewCatalogManager(cat, st, backend, usecase.DefaultManagerOptions())
	start = time.Now()
	if _, err := cold.SearchAll(query[0], *topK); err != nil {
		fail("cold search", err)
	}
	report("search_all (cold)", start, 1)

	start = time.Now()
	const rounds = 20
	for i := 0; i < rounds; i++ {
		if _, err := cold.SearchAll(query[0], *topK); err != nil {
			fail("warm search", err)
		}
	}
	report("search_all (warm)", start, rounds)

	start = time.Now()
	h, err := cold.CreateCombinedIndex(ids...)
	if err != nil {
		fail("combining", err)
	}
	report("combine", start, 1)

	start = time.Now()
	hits, err := backend.Search(h, query[0], *topK)
	if err != nil {
		fail("combined search", err)
	}
	report("combined search", start, 1)

	stats, err := cold.Stats()
	if err != nil {
		fail("stats", err)
	}
	size := dirSize(*dir)

	fmt.Println(strings.Repeat("=", 70))
	fmt.Printf("Catalogued: %d documents, %s vectors\n", stats.TotalDocuments, humanize.Comma(int64(stats.TotalVectors)))
	fmt.Printf("On disk:    %s\n", humanize.Bytes(size))
	if len(hits) > 0 {
		fmt.Printf("Top hit:    %.3f %q\n", hits[0].Score, hits[0].Text)
	}
}

func sentence(doc, chunk int) string {
	words := make([]string, 12)
	seed := doc*7919 + chunk*104729
	for i := range words {
		seed = seed*1103515245 + 12345
		words[i] = vocabulary[((seed>>8)&0x7fffffff)%len(vocabulary)]
	}
	return strings.Join(words, " ")
}

func report(name string, start time.Time, n int) {
	elapsed := time.Since(start)
	fmt.Printf("%-20s %10s total  %10s/op\n", name, elapsed.Round(time.Microsecond), (elapsed / time.Duration(n)).Round(time.Microsecond))
}

func dirSize(dir string) uint64 {
	var total uint64
	entries, _ := os.ReadDir(dir)
	for _, e := range entries {
		if e.IsDir() {
			total += dirSize(filepath.Join(dir, e.Name()))
			continue
		}
		if info, err := e.Info(); err == nil {
			total += uint64(info.Size())
		}
	}
	return total
}

func fail(what string, err error) {
	fmt.Fprintf(os.Stderr, "Error %s: %v\n", what, err)
	os.Exit(1)
}

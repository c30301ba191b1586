package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"doccatalog/internal/domain"
)

var (
	searchText     string
	searchTopK     int
	searchDoc      string
	searchCombined bool
	searchJSON     bool
)

var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "Search catalogued documents",
	Long: `Embed the query and search the catalogued documents.

By default every document is searched and the hits are concatenated in
catalog order, each document contributing half of --top-k. This is an
approximate top-k: scores from different documents are not re-ranked.
--combined merges the selected indices and ranks across them instead.

Examples:
  doccatalog search -q "refund policy"
  doccatalog search -q "refund policy" --doc 3f2a
  doccatalog search -q "refund policy" --combined --doc 3f2a,91bc`,
	Args: cobra.NoArgs,
	RunE: runSearch,
}

func init() {
	rootCmd.AddCommand(searchCmd)
	searchCmd.Flags().StringVarP(&searchText, "query", "q", "", "search query (required)")
	searchCmd.Flags().IntVarP(&searchTopK, "top-k", "k", 0, "number of results (default from config)")
	searchCmd.Flags().StringVar(&searchDoc, "doc", "", "comma-separated identities (or prefixes) to search")
	searchCmd.Flags().BoolVar(&searchCombined, "combined", false, "search a merged index of the selected documents")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "output as JSON")
	searchCmd.MarkFlagRequired("query")
}

func runSearch(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	emb, err := a.embedder()
	if err != nil {
		return err
	}
	vecs, err := emb.Embed(cmd.Context(), []string{searchText})
	if err != nil {
		return fmt.Errorf("failed to embed query: %w", err)
	}
	query := vecs[0]

	topK := a.cfg.Search.TopK
	if searchTopK > 0 {
		topK = searchTopK
	}

	var ids []domain.Identity
	for _, p := range strings.Split(searchDoc, ",") {
		if p = strings.TrimSpace(p); p == "" {
			continue
		}
		id, err := resolveIdentity(a.manager, p)
		if err != nil {
			return err
		}
		ids = append(ids, id)
	}

	var results []domain.SourcedResult
	switch {
	case searchCombined:
		results, err = searchCombinedIndex(a, ids, query, topK)
	case len(ids) > 0:
		for _, id := range ids {
			rec, _, err := a.manager.DocumentInfo(id)
			if err != nil {
				return err
			}
			hits, err := a.manager.SearchDocument(id, query, topK)
			if err != nil {
				return err
			}
			for _, h := range hits {
				results = append(results, domain.SourcedResult{Result: h, Filename: rec.Filename, Identity: id})
			}
		}
		if len(results) > topK {
			results = results[:topK]
		}
	default:
		results, err = a.manager.SearchAll(query, topK)
	}
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if searchJSON {
		return writeJSON(out, results)
	}
	if len(results) == 0 {
		fmt.Fprintln(out, "No results found.")
		return nil
	}

	fmt.Fprintf(out, "Found %d results for: %s\n\n", len(results), searchText)
	for i, r := range results {
		fmt.Fprintf(out, "%d. %s (score: %.4f)\n", i+1, r.Filename, r.Result.Score)
		text := r.Result.Text
		if len(text) > 300 {
			text = text[:300] + "..."
		}
		fmt.Fprintf(out, "   %s\n\n", strings.ReplaceAll(text, "\n", "\n   "))
	}
	return nil
}

// searchCombinedIndex ranks across the merged indices of ids (every
// document when ids is empty) and attributes hits through chunk metadata.
func searchCombinedIndex(a *app, ids []domain.Identity, query []float32, k int) ([]domain.SourcedResult, error) {
	h, err := a.manager.CreateCombinedIndex(ids...)
	if err != nil || h == nil {
		return nil, err
	}
	hits, err := a.backend.Search(h, query, k)
	if err != nil {
		return nil, domain.NewError(domain.ErrBackend, "search_combined", "", "", err)
	}

	results := make([]domain.SourcedResult, len(hits))
	for i, hit := range hits {
		r := domain.SourcedResult{Result: hit}
		if v, ok := hit.Metadata["source_file"]; ok {
			r.Filename, _ = v.Str()
		}
		if v, ok := hit.Metadata["file_hash"]; ok {
			s, _ := v.Str()
			r.Identity = domain.Identity(s)
		}
		results[i] = r
	}
	return results, nil
}

package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"doccatalog/internal/domain"
	"doccatalog/internal/usecase"
)

var listJSON bool

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List catalogued documents",
	Args:  cobra.NoArgs,
	RunE:  runList,
}

var infoCmd = &cobra.Command{
	Use:   "info <identity>",
	Short: "Show the catalog record of a document",
	Long: `Show the catalog record of a document. The identity may be abbreviated to
any unique prefix.`,
	Args: cobra.ExactArgs(1),
	RunE: runInfo,
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show catalog statistics",
	Args:  cobra.NoArgs,
	RunE:  runStats,
}

func init() {
	rootCmd.AddCommand(listCmd, infoCmd, statsCmd)
	for _, c := range []*cobra.Command{listCmd, infoCmd, statsCmd} {
		c.Flags().BoolVar(&listJSON, "json", false, "output as JSON")
	}
}

func runList(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	docs, err := a.manager.Documents()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if listJSON {
		return writeJSON(out, docs)
	}
	if len(docs) == 0 {
		fmt.Fprintln(out, "No documents catalogued.")
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "IDENTITY\tFILENAME\tCHUNKS\tVECTORS\tADDED\tACCESSES")
	for _, d := range docs {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\t%d\n",
			d.Identity, d.Filename, d.ChunkCount,
			humanize.Comma(int64(d.VectorCount)), humanize.Time(d.CreatedAt), d.AccessCount)
	}
	return tw.Flush()
}

func runInfo(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	id, err := resolveIdentity(a.manager, args[0])
	if err != nil {
		return err
	}
	rec, _, err := a.manager.DocumentInfo(id)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if listJSON {
		return writeJSON(out, rec)
	}
	fmt.Fprintf(out, "Identity:     %s\n", rec.Identity)
	fmt.Fprintf(out, "Filename:     %s\n", rec.Filename)
	fmt.Fprintf(out, "Source:       %s\n", rec.SourcePath)
	fmt.Fprintf(out, "Collection:   %s\n", rec.CollectionID)
	fmt.Fprintf(out, "Path:         %s\n", rec.Path)
	fmt.Fprintf(out, "Added:        %s (%s)\n", rec.CreatedAt.Format("2006-01-02 15:04:05"), humanize.Time(rec.CreatedAt))
	fmt.Fprintf(out, "Chunks:       %d\n", rec.ChunkCount)
	fmt.Fprintf(out, "Vectors:      %d x %d\n", rec.VectorCount, rec.Dimension)
	fmt.Fprintf(out, "Accesses:     %d\n", rec.AccessCount)
	if rec.LastAccessed != nil {
		fmt.Fprintf(out, "Last access:  %s\n", humanize.Time(*rec.LastAccessed))
	}
	if len(rec.Metadata) > 0 {
		fmt.Fprintln(out, "Metadata:")
		keys := make([]string, 0, len(rec.Metadata))
		for k := range rec.Metadata {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(out, "  %s: %v\n", k, rec.Metadata[k].Interface())
		}
	}
	return nil
}

func runStats(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	stats, err := a.manager.Stats()
	if err != nil {
		return err
	}
	size, err := dirSize(a.dir)
	if err != nil {
		return fmt.Errorf("failed to measure catalog size: %w", err)
	}

	out := cmd.OutOrStdout()
	if listJSON {
		return writeJSON(out, struct {
			domain.CatalogStats
			DiskBytes uint64 `json:"disk_bytes"`
		}{stats, size})
	}
	fmt.Fprintf(out, "Documents:    %s\n", humanize.Comma(int64(stats.TotalDocuments)))
	fmt.Fprintf(out, "Vectors:      %s\n", humanize.Comma(int64(stats.TotalVectors)))
	if stats.LastUpdated != nil {
		fmt.Fprintf(out, "Last updated: %s\n", humanize.Time(*stats.LastUpdated))
	}
	fmt.Fprintf(out, "Disk usage:   %s\n", humanize.Bytes(size))
	fmt.Fprintf(out, "Location:     %s\n", a.dir)
	return nil
}

// resolveIdentity accepts a full identity or a unique prefix of one.
func resolveIdentity(m *usecase.CatalogManager, arg string) (domain.Identity, error) {
	id := domain.Identity(strings.ToLower(arg))
	ok, err := m.HasDocument(id)
	if err != nil {
		return "", err
	}
	if ok {
		return id, nil
	}

	docs, err := m.Documents()
	if err != nil {
		return "", err
	}
	var matches []domain.Identity
	for _, d := range docs {
		if strings.HasPrefix(string(d.Identity), string(id)) {
			matches = append(matches, d.Identity)
		}
	}
	switch len(matches) {
	case 0:
		return "", domain.NewError(domain.ErrNotFound, "resolve", id, "", nil)
	case 1:
		return matches[0], nil
	default:
		return "", fmt.Errorf("identity prefix %q is ambiguous (%d matches)", arg, len(matches))
	}
}

func dirSize(dir string) (uint64, error) {
	var total uint64
	err := filepath.WalkDir(dir, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if d.Type().IsRegular() {
			info, err := d.Info()
			if err != nil {
				return err
			}
			total += uint64(info.Size())
		}
		return nil
	})
	return total, err
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

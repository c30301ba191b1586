package cli

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"doccatalog/internal/adapter/chunker"
	"doccatalog/internal/adapter/extract"
	"doccatalog/internal/adapter/fs"
	"doccatalog/internal/usecase"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [path...]",
	Short: "Embed and catalog new documents",
	Long: `Walk the given files or directories, embed every document whose content is
not catalogued yet and store one vector index per document.

Examples:
  doccatalog ingest .                 # Ingest the current directory
  doccatalog ingest notes/ report.md  # Ingest specific paths`,
	RunE: runIngest,
}

func init() {
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	paths := args
	if len(paths) == 0 {
		paths = []string{GetRootDir()}
	}

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	emb, err := a.embedder()
	if err != nil {
		return err
	}

	cfg := a.cfg
	walker := fs.NewWalker(cfg.Ingest.Includes, cfg.Ingest.Excludes, cfg.Ingest.MaxFileBytes)
	chk := chunker.NewWordChunker(cfg.Ingest.ChunkWords, cfg.Ingest.ChunkOverlap)
	ingestUC := usecase.NewIngestUseCase(a.manager, walker, extract.New(), chk, emb, log)

	total := &usecase.IngestResult{}
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return fmt.Errorf("invalid path: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Scanning %s...\n", abs)

		result, err := ingestUC.Ingest(cmd.Context(), abs, newProgress("Embedding"))
		if err != nil {
			return fmt.Errorf("ingest failed: %w", err)
		}
		total.FilesAdded += result.FilesAdded
		total.FilesSkipped += result.FilesSkipped
		total.ChunksCreated += result.ChunksCreated
		total.Errors = append(total.Errors, result.Errors...)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "\nIngest complete:\n")
	fmt.Fprintf(out, "  Documents added:   %d\n", total.FilesAdded)
	fmt.Fprintf(out, "  Documents skipped: %d (already catalogued or empty)\n", total.FilesSkipped)
	fmt.Fprintf(out, "  Chunks embedded:   %d\n", total.ChunksCreated)

	if len(total.Errors) > 0 {
		fmt.Fprintf(out, "\nWarnings:\n")
		for _, e := range total.Errors {
			fmt.Fprintf(out, "  - %s\n", e)
		}
	}

	fmt.Fprintf(out, "\nCatalog stored at: %s\n", a.dir)
	return nil
}

// newProgress returns a progress callback that draws a bar with an ETA once
// the total is known.
func newProgress(label string) usecase.ProgressFunc {
	var bar *progressbar.ProgressBar
	var barMu sync.Mutex
	var startTime time.Time

	return func(processed, total int, currentFile string) {
		barMu.Lock()
		defer barMu.Unlock()

		if bar == nil {
			startTime = time.Now()
			bar = progressbar.NewOptions(total,
				progressbar.OptionEnableColorCodes(true),
				progressbar.OptionShowBytes(false),
				progressbar.OptionSetWidth(40),
				progressbar.OptionShowCount(),
				progressbar.OptionSetDescription("[cyan]"+label+"[reset]"),
				progressbar.OptionSetTheme(progressbar.Theme{
					Saucer:        "[green]=[reset]",
					SaucerHead:    "[green]>[reset]",
					SaucerPadding: " ",
					BarStart:      "[",
					BarEnd:        "]",
				}),
				progressbar.OptionOnCompletion(func() {
					fmt.Println()
				}),
			)
		}

		bar.Set(processed)

		if processed > 0 {
			elapsed := time.Since(startTime)
			rate := float64(processed) / elapsed.Seconds()
			remaining := total - processed
			if rate > 0 {
				eta := time.Duration(float64(remaining)/rate) * time.Second
				bar.Describe(fmt.Sprintf("[cyan]%s[reset] ETA: %s", label, formatDuration(eta)))
			}
		}
	}
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return "<1s"
	}
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		m := int(d.Minutes())
		s := int(d.Seconds()) % 60
		return fmt.Sprintf("%dm%ds", m, s)
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	return fmt.Sprintf("%dh%dm", h, m)
}

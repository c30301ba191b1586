package cli

import (
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"doccatalog/internal/domain"
)

var deleteCmd = &cobra.Command{
	Use:   "delete <identity>...",
	Short: "Delete documents and their collections",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runDelete,
}

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Remove collection directories that have no catalog record",
	Long: `Remove collection directories that have no catalog record, such as those
left behind by a crash, plus stale staging directories. Catalogued
collections are never touched.`,
	Args: cobra.NoArgs,
	RunE: runCleanup,
}

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Report drift between the catalog and the collections on disk",
	Args:  cobra.NoArgs,
	RunE:  runVerify,
}

var similarTopK int

var similarCmd = &cobra.Command{
	Use:   "similar <identity>",
	Short: "Rank documents by a coarse usage and size heuristic",
	Long: `Rank other documents by a coarse heuristic: both documents have been
accessed, their vector counts are close and they were added around the same
time. This does not compare content.`,
	Args: cobra.ExactArgs(1),
	RunE: runSimilar,
}

func init() {
	rootCmd.AddCommand(deleteCmd, cleanupCmd, verifyCmd, similarCmd)
	similarCmd.Flags().IntVarP(&similarTopK, "top-k", "k", 0, "number of results (default from config)")
}

func runDelete(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	out := cmd.OutOrStdout()
	var errs []error
	for _, arg := range args {
		id, err := resolveIdentity(a.manager, arg)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		rec, _, _ := a.manager.DocumentInfo(id)
		deleted, err := a.manager.DeleteDocument(id)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if deleted {
			fmt.Fprintf(out, "Deleted %s (%s, %d vectors)\n", id, rec.Filename, rec.VectorCount)
		}
	}
	return errors.Join(errs...)
}

func runCleanup(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	bar := progressbar.NewOptions(-1,
		progressbar.OptionSetWriter(cmd.ErrOrStderr()),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionSetDescription("Scanning collections"),
	)
	removed, err := a.manager.CleanupOrphans()
	bar.Finish()
	fmt.Fprintln(cmd.ErrOrStderr())

	out := cmd.OutOrStdout()
	for _, cid := range removed {
		fmt.Fprintf(out, "Removed orphaned collection: %s\n", cid)
	}
	if len(removed) == 0 {
		fmt.Fprintln(out, "No orphaned collections found.")
	}
	return err
}

func runVerify(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	issues, err := a.manager.Verify()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(issues) == 0 {
		fmt.Fprintln(out, "Catalog and collections are consistent.")
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "COLLECTION\tIDENTITY\tPROBLEM")
	for _, i := range issues {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", i.CollectionID, i.Identity, i.Reason)
	}
	tw.Flush()
	fmt.Fprintln(out, "\nRun 'doccatalog cleanup' to remove uncatalogued collections; delete and re-ingest documents whose collection is missing.")
	return domain.NewError(domain.ErrCatalogInconsistency, "verify", "", "", fmt.Errorf("%d problems found", len(issues)))
}

func runSimilar(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	id, err := resolveIdentity(a.manager, args[0])
	if err != nil {
		return err
	}
	topK := a.cfg.Similarity.TopK
	if similarTopK > 0 {
		topK = similarTopK
	}
	sims, err := a.manager.DocumentSimilarity(id, topK)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(sims) == 0 {
		fmt.Fprintln(out, "No similar documents.")
		return nil
	}
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SCORE\tIDENTITY\tFILENAME")
	for _, s := range sims {
		fmt.Fprintf(tw, "%.1f\t%s\t%s\n", s.Score, s.Identity, s.Filename)
	}
	return tw.Flush()
}

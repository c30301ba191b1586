package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"doccatalog/internal/domain"
)

var exportOutput string

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the catalog as JSON",
	Args:  cobra.NoArgs,
	RunE:  runExport,
}

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Replace the catalog with a previous export",
	Long: `Replace the catalog with a previous export. Collections on disk are not
checked; run 'doccatalog verify' afterwards.`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

func init() {
	rootCmd.AddCommand(exportCmd, importCmd)
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "write to file instead of stdout")
}

func runExport(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	exp, err := a.manager.Export()
	if err != nil {
		return err
	}
	if exportOutput == "" {
		return writeJSON(cmd.OutOrStdout(), exp)
	}

	f, err := os.Create(exportOutput)
	if err != nil {
		return fmt.Errorf("failed to create export file: %w", err)
	}
	if err := writeJSON(f, exp); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Exported %d documents to %s\n", len(exp.Metadata.Documents), exportOutput)
	return nil
}

func runImport(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read export: %w", err)
	}
	var exp domain.CatalogExport
	if err := json.Unmarshal(data, &exp); err != nil {
		return fmt.Errorf("failed to parse export: %w", err)
	}

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.manager.Import(exp.Metadata); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Imported %d documents\n", len(exp.Metadata.Documents))
	return nil
}

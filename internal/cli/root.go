package cli

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"doccatalog/config"
	"doccatalog/internal/logger"
)

var (
	cfgFile    string
	cfg        *config.Config
	rootDir    string
	catalogDir string
	verbose    bool
	log        *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "doccatalog",
	Short: "Content-addressed catalog of per-document vector indices",
	Long: `doccatalog embeds documents into one vector index per document, keyed by
the hash of the document's content, and keeps a durable catalog of them.
Documents that were already ingested are detected by content and skipped.

Example usage:
  doccatalog ingest ./docs             # Embed and catalog new documents
  doccatalog search -q "refund policy" # Search across every document
  doccatalog list                      # Show catalogued documents
  doccatalog cleanup                   # Remove uncatalogued collections`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error

		if rootDir == "" {
			rootDir, err = os.Getwd()
			if err != nil {
				return fmt.Errorf("failed to get working directory: %w", err)
			}
		}

		// API keys may live in a .env next to the config
		if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load .env: %w", err)
		}

		if cfgFile != "" {
			cfg, err = config.Load(cfgFile)
		} else {
			cfg, err = config.LoadFromDir(rootDir)
		}
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if catalogDir != "" {
			cfg.Catalog.Dir = catalogDir
		}

		level := cfg.Logging.Level
		if verbose {
			level = "debug"
		}
		log, err = logger.New(level, cfg.Logging.Format, cmd.ErrOrStderr())
		if err != nil {
			return fmt.Errorf("invalid logging config: %w", err)
		}
		return nil
	},
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./doccatalog.yaml)")
	rootCmd.PersistentFlags().StringVarP(&rootDir, "dir", "d", "", "project directory holding the config (default is current directory)")
	rootCmd.PersistentFlags().StringVar(&catalogDir, "catalog", "", "catalog directory (overrides catalog.dir)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

func GetConfig() *config.Config {
	return cfg
}

func GetRootDir() string {
	return rootDir
}

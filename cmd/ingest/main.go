// Package main provides the ingest CLI for loading PDF filings into the
// text and image vector stores.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/Ganesh-K-Indium/Ingestion-Pipeline/internal/app"
	"github.com/Ganesh-K-Indium/Ingestion-Pipeline/internal/config"
)

var (
	configPath string
	writeLog   bool
)

var rootCmd = &cobra.Command{
	Use:   "ingest",
	Short: "PDF ingestion and deduplication pipeline",
	Long: `CLI tool for ingesting PDF documents into Qdrant text and image collections.

Documents already present are detected by content fingerprint, image
fingerprints or source name and are never written twice.

Environment variables:
  QDRANT_HOST       Qdrant hostname (default: localhost)
  QDRANT_PORT       Qdrant gRPC port (default: 6334)
  OPENAI_API_KEY    OpenAI API key for embeddings and captions (required)
  TEXT_COLLECTION   Text collection (default: 10K_vector_db)
  IMAGE_COLLECTION  Image collection (default: multimodel_vector_db)
  PDF_DIR           Directory used by "local" (default: 10k_PDFs)
  REDIS_ADDR        Redis for locks shared across processes (optional)
  LOG_LEVEL         debug, info, warn or error (default: info)`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "YAML configuration file")
	rootCmd.PersistentFlags().BoolVar(&writeLog, "log", false, "write a markdown run log to LOG_DIR")

	rootCmd.AddCommand(fileCmd, localCmd, dirCmd, watchCmd, flushCmd, sourcesCmd)
}

func main() {
	// Load .env file if present (local development), ignore if missing (production)
	_ = godotenv.Load()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// connect loads configuration and opens Qdrant; withIngest also builds the
// orchestrator.
func connect(cmd *cobra.Command, withIngest bool) (*app.App, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(withIngest); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	logger := app.NewLogger(cfg.Logging.Level, os.Stderr)

	fmt.Printf("Connecting to Qdrant at %s:%d...\n", cfg.Qdrant.Host, cfg.Qdrant.Port)
	a, err := app.Connect(cmd.Context(), cfg, logger)
	if err != nil {
		return nil, err
	}
	if withIngest {
		if err := a.EnableIngest(); err != nil {
			a.Close()
			return nil, err
		}
	}
	return a, nil
}

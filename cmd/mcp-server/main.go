// Package main provides the MCP server entry point for PDF ingestion.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/Ganesh-K-Indium/Ingestion-Pipeline/internal/app"
	"github.com/Ganesh-K-Indium/Ingestion-Pipeline/internal/config"
	mcpserver "github.com/Ganesh-K-Indium/Ingestion-Pipeline/internal/mcp"
	"github.com/Ganesh-K-Indium/Ingestion-Pipeline/internal/metrics"
)

func main() {
	configPath := flag.String("config", "", "YAML configuration file")
	flag.Parse()

	// Load .env file if present (local development), ignore if missing (production)
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	// Create context that cancels on SIGTERM/SIGINT
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger := app.NewLogger(cfg.Logging.Level, os.Stderr)

	a, err := app.Connect(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("%v", err)
	}
	defer a.Close()

	if err := a.EnableIngest(); err != nil {
		log.Fatalf("failed to set up ingestion: %v", err)
	}
	metrics.Register()

	server := mcpserver.NewServer(mcpserver.Config{
		Ingester:        a.Orchestrator,
		Sources:         a.Storage,
		PDFDir:          cfg.Ingest.PDFDir,
		LogDir:          cfg.Ingest.LogDir,
		TextCollection:  cfg.Qdrant.TextCollection,
		ImageCollection: cfg.Qdrant.ImageCollection,
		Logger:          logger,
	})

	httpServer := &http.Server{
		Addr:              "0.0.0.0:" + cfg.Server.Port,
		Handler:           mcpserver.NewMux(server, a.Storage, nil),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		httpServer.Shutdown(shutdownCtx)
	}()

	if cfg.Server.Mode {
		// HTTP mode: serve MCP over HTTP for remote clients
		log.Printf("Starting HTTP server on %s (MCP at /mcp, health at /health, metrics at /metrics)", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("HTTP server error: %v", err)
		}
		return
	}

	// Stdio mode: run MCP server over stdin/stdout for local clients
	// Also start HTTP health endpoint in background for local testing
	go func() {
		log.Printf("Starting health server on %s", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("Health server error: %v", err)
		}
	}()

	log.Println("Starting PDF Ingestion MCP Server (stdio mode)...")
	if err := server.Run(ctx); err != nil {
		log.Printf("server error: %v", err)
		os.Exit(1)
	}
}

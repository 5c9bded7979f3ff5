package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/Ganesh-K-Indium/Ingestion-Pipeline/internal/app"
	"github.com/Ganesh-K-Indium/Ingestion-Pipeline/internal/batch"
	"github.com/Ganesh-K-Indium/Ingestion-Pipeline/internal/ingest"
	"github.com/Ganesh-K-Indium/Ingestion-Pipeline/internal/storage"
)

var fileCmd = &cobra.Command{
	Use:   "file <path>",
	Short: "Ingest one PDF",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runOne(cmd, args[0], false)
	},
}

var localCmd = &cobra.Command{
	Use:   "local <name>",
	Short: "Ingest a PDF from PDF_DIR by name (.pdf is optional)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runOne(cmd, args[0], true)
	},
}

var dirCmd = &cobra.Command{
	Use:   "dir <directory>",
	Short: "Ingest every PDF in a directory using the worker pool",
	Args:  cobra.ExactArgs(1),
	RunE:  runDir,
}

var watchCmd = &cobra.Command{
	Use:   "watch <directory>",
	Short: "Ingest PDFs as they are added to a directory",
	Args:  cobra.ExactArgs(1),
	RunE:  runWatch,
}

var flushCmd = &cobra.Command{
	Use:   "flush",
	Short: "Drop and recreate the text and image collections",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := connect(cmd, false)
		if err != nil {
			return err
		}
		defer a.Close()

		fmt.Println("Clearing text and image collections...")
		if err := a.Flush(cmd.Context()); err != nil {
			return fmt.Errorf("Failed to flush collections: %w", err)
		}
		fmt.Println("Collections cleared")
		return nil
	},
}

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "List source files and owner tags already stored",
	RunE:  runSources,
}

// runOne ingests a single document, resolving arg under PDF_DIR when local
// is set.
func runOne(cmd *cobra.Command, arg string, local bool) error {
	a, err := connect(cmd, true)
	if err != nil {
		return err
	}
	defer a.Close()

	path := arg
	if local {
		if path, err = batch.ResolveLocal(a.Config.Ingest.PDFDir, arg); err != nil {
			return err
		}
	}

	ctx := cmd.Context()
	start := time.Now()
	events := a.Orchestrator.Ingest(ctx, path)
	if writeLog {
		f, err := ingest.CreateLog(a.Config.Ingest.LogDir, start)
		if err != nil {
			return err
		}
		defer f.Close()
		events = ingest.TeeMarkdown(ctx, events, f, arg, start)
		defer fmt.Printf("Log written to %s\n", f.Name())
	}

	fmt.Println()
	result, _ := ingest.Collect(filepath.Base(path), events, func(ev ingest.Event) {
		fmt.Println(ev.Message)
	})
	fmt.Println()
	fmt.Printf("Total time: %s\n", time.Since(start).Round(time.Millisecond))

	if !result.Success {
		return errors.New("ingestion did not complete")
	}
	return nil
}

func newRunner(a *app.App) (*batch.Runner, error) {
	var mu sync.Mutex
	return batch.NewRunner(a.Orchestrator, a.Config.Ingest.Workers,
		batch.WithLogger(a.Logger),
		batch.WithSink(func(path string, ev ingest.Event) {
			mu.Lock()
			defer mu.Unlock()
			fmt.Printf("[%s] %s\n", filepath.Base(path), ev.Message)
		}),
	)
}

func runDir(cmd *cobra.Command, args []string) error {
	a, err := connect(cmd, true)
	if err != nil {
		return err
	}
	defer a.Close()

	runner, err := newRunner(a)
	if err != nil {
		return err
	}
	defer runner.Release()

	start := time.Now()
	results, err := runner.RunDir(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	fmt.Println()
	fmt.Println("Batch complete!")
	failed := 0
	for _, r := range results {
		status := "ok"
		switch {
		case !r.Success:
			status = "FAILED"
			failed++
		case r.TextAlreadyExisted && r.ImagesAlreadyExisted:
			status = "already ingested"
		}
		fmt.Printf("  %-40s %-16s text=%d images=%d\n", r.FileName, status, r.TextChunks, r.ImageCount)
	}
	fmt.Printf("  Documents: %d/%d\n", len(results)-failed, len(results))
	fmt.Printf("  Duration: %s\n", time.Since(start).Round(time.Second))

	if failed > 0 {
		return fmt.Errorf("%d documents failed", failed)
	}
	return nil
}

func runWatch(cmd *cobra.Command, args []string) error {
	a, err := connect(cmd, true)
	if err != nil {
		return err
	}
	defer a.Close()

	runner, err := newRunner(a)
	if err != nil {
		return err
	}
	defer runner.Release()

	w := batch.NewWatcher(runner, args[0], a.Logger)
	fmt.Printf("Watching %s for new PDFs (Ctrl+C to stop)...\n", args[0])
	return w.Run(cmd.Context())
}

func runSources(cmd *cobra.Command, args []string) error {
	a, err := connect(cmd, false)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
	defer cancel()

	return printSources(ctx, a)
}

func printSources(ctx context.Context, a *app.App) error {
	text, err := a.Storage.ListSources(ctx, a.Config.Qdrant.TextCollection, storage.FieldSourceFile)
	if err != nil {
		return err
	}
	images, err := a.Storage.ListSources(ctx, a.Config.Qdrant.ImageCollection, storage.FieldOwnerTag)
	if err != nil {
		return err
	}

	fmt.Printf("Text sources (%s): %d\n", a.Config.Qdrant.TextCollection, len(text))
	for _, s := range text {
		fmt.Printf("  - %s\n", s)
	}
	fmt.Printf("Image owners (%s): %d\n", a.Config.Qdrant.ImageCollection, len(images))
	for _, s := range images {
		fmt.Printf("  - %s\n", s)
	}
	return nil
}

// Package batch ingests many documents through a bounded worker pool.
package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/panjf2000/ants/v2"

	"github.com/Ganesh-K-Indium/Ingestion-Pipeline/internal/ingest"
)

// DefaultWorkers is the pool size when none is configured.
const DefaultWorkers = 2

// ErrInvalidName is returned by ResolveLocal for names that are empty or
// point outside the directory.
var ErrInvalidName = errors.New("invalid document name")

// Ingester runs one document. *ingest.Orchestrator satisfies it.
type Ingester interface {
	Ingest(ctx context.Context, path string) <-chan ingest.Event
}

// Sink receives every event of every document. Events of one document arrive
// in order; events of different documents may interleave, and Sink may be
// called from several goroutines at once.
type Sink func(path string, ev ingest.Event)

// Runner fans documents out to a fixed number of workers.
type Runner struct {
	ingester Ingester
	pool     *ants.Pool
	sink     Sink
	logger   *slog.Logger
}

// Option configures a Runner.
type Option func(*Runner)

// WithSink sets the event sink.
func WithSink(s Sink) Option {
	return func(r *Runner) { r.sink = s }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) { r.logger = l }
}

// NewRunner creates a Runner with the given pool size.
func NewRunner(ing Ingester, workers int, opts ...Option) (*Runner, error) {
	if ing == nil {
		return nil, fmt.Errorf("ingester is required")
	}
	if workers <= 0 {
		workers = DefaultWorkers
	}
	pool, err := ants.NewPool(workers)
	if err != nil {
		return nil, fmt.Errorf("create worker pool: %w", err)
	}

	r := &Runner{ingester: ing, pool: pool, logger: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Release stops the worker pool. The Runner must not be used afterwards.
func (r *Runner) Release() {
	r.pool.Release()
}

// RunFiles ingests paths concurrently and returns one Result per path, in
// input order. It returns early, with the results gathered so far, only when
// a document cannot be submitted to the pool.
func (r *Runner) RunFiles(ctx context.Context, paths []string) ([]ingest.Result, error) {
	results := make([]ingest.Result, len(paths))
	var wg sync.WaitGroup

	for i, path := range paths {
		var sink func(ingest.Event)
		if r.sink != nil {
			sink = func(ev ingest.Event) { r.sink(path, ev) }
		}

		wg.Add(1)
		err := r.pool.Submit(func() {
			defer wg.Done()
			results[i], _ = ingest.Collect(filepath.Base(path), r.ingester.Ingest(ctx, path), sink)
			r.logger.Debug("document finished", "path", path, "success", results[i].Success)
		})
		if err != nil {
			wg.Done()
			wg.Wait()
			return results, fmt.Errorf("submit %s: %w", path, err)
		}
	}

	wg.Wait()
	return results, nil
}

// RunDir ingests every .pdf file directly inside dir, in name order.
func (r *Runner) RunDir(ctx context.Context, dir string) ([]ingest.Result, error) {
	paths, err := ListPDFs(dir)
	if err != nil {
		return nil, err
	}
	r.logger.Info("ingesting directory", "dir", dir, "documents", len(paths))
	return r.RunFiles(ctx, paths)
}

// ListPDFs returns the .pdf files directly inside dir, sorted by name.
func ListPDFs(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read directory %s: %w", dir, err)
	}

	var paths []string
	for _, e := range entries {
		if e.IsDir() || !IsPDF(e.Name()) {
			continue
		}
		paths = append(paths, filepath.Join(dir, e.Name()))
	}
	sort.Strings(paths)
	return paths, nil
}

// IsPDF reports whether name has a .pdf extension and is not hidden.
func IsPDF(name string) bool {
	base := filepath.Base(name)
	return !strings.HasPrefix(base, ".") && strings.EqualFold(filepath.Ext(base), ".pdf")
}

// ResolveLocal maps a bare document name to its path under dir, adding the
// .pdf extension when missing. The file is not required to exist.
func ResolveLocal(dir, name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" || name == "." || name == ".." || filepath.Base(name) != name {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	if !strings.EqualFold(filepath.Ext(name), ".pdf") {
		name += ".pdf"
	}
	return filepath.Join(dir, name), nil
}

package batch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/Ganesh-K-Indium/Ingestion-Pipeline/internal/ingest"
)

// DefaultSettle is how long a file must stay quiet before it is ingested.
const DefaultSettle = 2 * time.Second

// Watcher ingests PDFs as they appear in a directory.
type Watcher struct {
	runner *Runner
	dir    string
	logger *slog.Logger

	// Settle delays ingestion until writes to a file stop.
	Settle time.Duration
	// OnResult, when set, receives the result of every watched ingestion.
	OnResult func(ingest.Result)

	mu      sync.Mutex
	pending map[string]*time.Timer
	wg      sync.WaitGroup
}

// NewWatcher creates a Watcher over dir.
func NewWatcher(runner *Runner, dir string, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		runner:  runner,
		dir:     dir,
		logger:  logger,
		Settle:  DefaultSettle,
		pending: make(map[string]*time.Timer),
	}
}

// Run watches until ctx is done, then waits for in-flight ingestions.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fw.Close()

	if err := fw.Add(w.dir); err != nil {
		return fmt.Errorf("watch %s: %w", w.dir, err)
	}
	w.logger.Info("watching for documents", "dir", w.dir)

	defer w.wait()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if path, ok := pdfPath(ev); ok {
				w.schedule(ctx, path)
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch error", "dir", w.dir, "error", err)
		}
	}
}

// pdfPath returns the document an event refers to when it created or wrote
// a PDF file.
func pdfPath(ev fsnotify.Event) (string, bool) {
	if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
		return "", false
	}
	if !IsPDF(ev.Name) {
		return "", false
	}
	return ev.Name, true
}

func (w *Watcher) schedule(ctx context.Context, path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if t, ok := w.pending[path]; ok && t.Stop() {
		t.Reset(w.Settle)
		return
	}
	w.wg.Add(1)
	var t *time.Timer
	t = time.AfterFunc(w.Settle, func() {
		defer w.wg.Done()
		w.mu.Lock()
		if w.pending[path] == t {
			delete(w.pending, path)
		}
		w.mu.Unlock()

		if ctx.Err() != nil {
			return
		}
		w.ingest(ctx, path)
	})
	w.pending[path] = t
}

func (w *Watcher) ingest(ctx context.Context, path string) {
	results, err := w.runner.RunFiles(ctx, []string{path})
	if err != nil {
		w.logger.Error("watched ingestion failed", "path", path, "error", err)
		return
	}
	res := results[0]
	w.logger.Info("watched document ingested", "path", path, "success", res.Success,
		"text_chunks", res.TextChunks, "images", res.ImageCount)
	if w.OnResult != nil {
		w.OnResult(res)
	}
}

// wait stops pending timers and waits for running ingestions.
func (w *Watcher) wait() {
	w.mu.Lock()
	for path, t := range w.pending {
		if t.Stop() {
			w.wg.Done()
		}
		delete(w.pending, path)
	}
	w.mu.Unlock()
	w.wg.Wait()
}

package ingest

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const logRule = "=================================================="

// CreateLog creates a markdown log file named after now inside dir.
func CreateLog(dir string, now time.Time) (*os.File, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	f, err := os.Create(filepath.Join(dir, now.Format("2006-01-02_15-04-05")+".md"))
	if err != nil {
		return nil, fmt.Errorf("create log: %w", err)
	}
	return f, nil
}

// TeeMarkdown copies events to w as a markdown ingestion log while passing
// them through unchanged. The returned channel closes when events closes or
// ctx is done.
func TeeMarkdown(ctx context.Context, events <-chan Event, w io.Writer, query string, now time.Time) <-chan Event {
	out := make(chan Event)
	go func() {
		defer close(out)
		fmt.Fprintf(w, "# Ingestion Log\n%s\nGenerated: %s\nQuery: %s\n%s\n\n",
			logRule, now.Format("2006-01-02 15:04:05"), query, logRule)

		for ev := range events {
			fmt.Fprintf(w, "- %s\n", strings.ReplaceAll(ev.Message, "\n", " "))
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

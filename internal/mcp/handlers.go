package mcp

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Ganesh-K-Indium/Ingestion-Pipeline/internal/batch"
	"github.com/Ganesh-K-Indium/Ingestion-Pipeline/internal/ingest"
	"github.com/Ganesh-K-Indium/Ingestion-Pipeline/internal/storage"
)

// handleIngestLocal runs one document and returns its summarised result.
// Ingestion failures are reported inside the result, not as tool errors;
// only an unusable file name is a tool error.
func (s *Server) handleIngestLocal(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input IngestLocalInput,
) (*mcp.CallToolResult, IngestLocalOutput, error) {
	path, err := batch.ResolveLocal(s.cfg.PDFDir, input.FileName)
	if err != nil {
		return nil, IngestLocalOutput{}, err
	}

	events := s.cfg.Ingester.Ingest(ctx, path)
	var out IngestLocalOutput

	if s.cfg.LogDir != "" {
		now := s.cfg.Now()
		f, err := ingest.CreateLog(s.cfg.LogDir, now)
		if err != nil {
			s.cfg.Logger.Warn("run log unavailable", "dir", s.cfg.LogDir, "error", err)
		} else {
			defer f.Close()
			out.LogFile = f.Name()
			events = ingest.TeeMarkdown(ctx, events, f, input.FileName, now)
		}
	}

	result, report := ingest.Collect(input.FileName, events, nil)
	out.Result, out.Stats = result, newRunStats(report)
	s.cfg.Logger.Info("ingest_local finished", "file", input.FileName, "success", out.Result.Success)
	return nil, out, nil
}

// handleListSources reports the distinct sources in both stores.
func (s *Server) handleListSources(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	_ ListSourcesInput,
) (*mcp.CallToolResult, ListSourcesOutput, error) {
	text, err := s.cfg.Sources.ListSources(ctx, s.cfg.TextCollection, storage.FieldSourceFile)
	if err != nil {
		return nil, ListSourcesOutput{}, fmt.Errorf("qdrant_error: failed to list text sources: %w", err)
	}
	images, err := s.cfg.Sources.ListSources(ctx, s.cfg.ImageCollection, storage.FieldOwnerTag)
	if err != nil {
		return nil, ListSourcesOutput{}, fmt.Errorf("qdrant_error: failed to list image owners: %w", err)
	}

	// Non-nil for JSON marshaling
	if text == nil {
		text = []string{}
	}
	if images == nil {
		images = []string{}
	}
	return nil, ListSourcesOutput{TextSources: text, ImageOwners: images}, nil
}

// Package mcp exposes document ingestion as MCP tools.
package mcp

import "github.com/Ganesh-K-Indium/Ingestion-Pipeline/internal/ingest"

// IngestLocalInput defines the input parameters for the ingest_local tool.
type IngestLocalInput struct {
	// FileName names a PDF inside the configured document directory.
	FileName string `json:"file_name" jsonschema:"name of a PDF in the document directory, e.g. META or META.pdf"`
}

// IngestLocalOutput contains the outcome of one ingestion run.
type IngestLocalOutput struct {
	// Result is the run summarised from its progress messages.
	Result ingest.Result `json:"result"`
	// LogFile is the markdown log written for the run, if any.
	LogFile string `json:"log_file,omitempty"`
	// Stats is set when the run reached DONE.
	Stats *RunStats `json:"stats,omitempty"`
}

// RunStats counts what one completed run wrote or found.
type RunStats struct {
	TextUnits      int   `json:"text_units" jsonschema:"text chunks written, or already stored when text was skipped"`
	ImageUnits     int   `json:"image_units" jsonschema:"image captions written, or already stored when images were skipped"`
	RejectedImages int   `json:"rejected_images" jsonschema:"images dropped as non-informative"`
	DurationMS     int64 `json:"duration_ms" jsonschema:"run duration in milliseconds"`
}

func newRunStats(r *ingest.Report) *RunStats {
	if r == nil {
		return nil
	}
	return &RunStats{
		TextUnits:      r.Text.Units,
		ImageUnits:     r.Images.Units,
		RejectedImages: r.Rejected,
		DurationMS:     r.Duration.Milliseconds(),
	}
}

// ListSourcesInput defines the input parameters for the list_sources tool.
// This tool takes no parameters.
type ListSourcesInput struct{}

// ListSourcesOutput lists what the stores already hold.
type ListSourcesOutput struct {
	// TextSources is every source file with text chunks.
	TextSources []string `json:"text_sources"`
	// ImageOwners is every owner tag with image captions.
	ImageOwners []string `json:"image_owners"`
}

package mcp

import (
	"context"
	"log/slog"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Ganesh-K-Indium/Ingestion-Pipeline/internal/batch"
)

// SourceLister lists distinct payload values of a collection.
// *storage.QdrantStorage implements it.
type SourceLister interface {
	ListSources(ctx context.Context, collection, field string) ([]string, error)
}

// Server wraps the MCP server with dependencies.
type Server struct {
	server *mcp.Server
	cfg    Config
}

// Config holds server dependencies.
type Config struct {
	Ingester        batch.Ingester
	Sources         SourceLister
	PDFDir          string
	LogDir          string // Markdown run logs are skipped when empty
	TextCollection  string
	ImageCollection string
	Logger          *slog.Logger
	Now             func() time.Time
}

// NewServer creates a configured MCP server with tools registered.
func NewServer(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	impl := &mcp.Implementation{
		Name:    "pdf-ingestion-server",
		Version: "v0.1.0",
	}
	s := &Server{server: mcp.NewServer(impl, nil), cfg: cfg}

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "ingest_local",
		Description: "Ingest a PDF from the document directory into the text and image vector stores. Documents already ingested are detected and skipped. Returns every progress message and a summary.",
	}, s.handleIngestLocal)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "list_sources",
		Description: "List the source files held in the text store and the owner tags held in the image store.",
	}, s.handleListSources)

	return s
}

// Run starts the server with stdio transport (blocks until client disconnects).
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

// MCPServer returns the underlying MCP server instance.
// Used by transport handlers that need to wrap the server.
func (s *Server) MCPServer() *mcp.Server {
	return s.server
}

package mcp

import (
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Ganesh-K-Indium/Ingestion-Pipeline/internal/metrics"
)

// HTTPHandlerOptions configures the HTTP transport behavior.
type HTTPHandlerOptions struct {
	// Stateless disables session management. Use for simple tool servers
	// that don't need server-to-client requests. Default: false (stateful).
	Stateless bool
}

// NewHTTPHandler creates an HTTP handler for the MCP server using Streamable HTTP transport.
// The handler can be mounted on any http.ServeMux path (e.g., "/mcp").
func NewHTTPHandler(server *Server, opts *HTTPHandlerOptions) http.Handler {
	if opts == nil {
		opts = &HTTPHandlerOptions{}
	}

	sdkOpts := &mcp.StreamableHTTPOptions{
		Stateless: opts.Stateless,
	}

	return mcp.NewStreamableHTTPHandler(func(r *http.Request) *mcp.Server {
		return server.MCPServer()
	}, sdkOpts)
}

// NewMux serves the landing page at /, health at /health, MCP at /mcp and
// Prometheus metrics at /metrics. Every route is instrumented.
func NewMux(server *Server, store HealthChecker, opts *HTTPHandlerOptions) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", NewLandingHandler())
	mux.HandleFunc("/health", NewHealthHandler(store))
	mux.Handle("/mcp", NewHTTPHandler(server, opts))
	mux.Handle("/metrics", promhttp.Handler())

	return metrics.Middleware("/", "/health", "/mcp", "/metrics")(mux)
}

package mcp

import "net/http"

const landingHTML = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>PDF Ingestion MCP Server</title>
<style>
  body { font-family: -apple-system, "Segoe UI", Roboto, sans-serif; max-width: 640px; margin: 3rem auto; color: #1f2937; }
  code, .endpoint { font-family: Menlo, monospace; }
  li { margin-bottom: 0.4rem; }
</style>
</head>
<body>
<h1>PDF Ingestion MCP Server</h1>
<p>Ingests PDF filings into text and image vector stores, skipping documents that are already present.</p>
<h2>Tools</h2>
<ul>
  <li><code>ingest_local</code> ingests a PDF from the document directory</li>
  <li><code>list_sources</code> lists what the stores hold</li>
</ul>
<h2>Endpoints</h2>
<ul>
  <li><a href="/mcp" class="endpoint">/mcp</a> MCP Streamable HTTP</li>
  <li><a href="/health" class="endpoint">/health</a> Qdrant connectivity</li>
  <li><a href="/metrics" class="endpoint">/metrics</a> Prometheus metrics</li>
</ul>
</body>
</html>`

// NewLandingHandler returns an HTTP handler that serves the landing page at /.
func NewLandingHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(landingHTML))
	}
}

package mcp

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// healthTimeout bounds one Qdrant connectivity check.
const healthTimeout = 3 * time.Second

// HealthResponse represents the JSON response from the health check endpoint.
type HealthResponse struct {
	Status    string `json:"status"`
	Qdrant    string `json:"qdrant"`
	Error     string `json:"error,omitempty"`
	Timestamp string `json:"timestamp"`
}

// HealthChecker reports whether the vector store is reachable.
// *storage.QdrantStorage implements it.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// NewHealthHandler creates an HTTP handler for the /health endpoint.
// It answers 200 when Qdrant is reachable and 503 otherwise.
func NewHealthHandler(store HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		defer cancel()

		response := HealthResponse{
			Status:    "healthy",
			Qdrant:    "connected",
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		}
		code := http.StatusOK
		if err := store.Health(ctx); err != nil {
			response.Status = "unhealthy"
			response.Qdrant = "disconnected"
			response.Error = err.Error()
			code = http.StatusServiceUnavailable
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		json.NewEncoder(w).Encode(response)
	}
}

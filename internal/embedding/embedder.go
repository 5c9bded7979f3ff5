package embedding

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/openai/openai-go"
)

const (
	// DefaultModel is the OpenAI model used when none is configured.
	DefaultModel = "text-embedding-3-small"

	// DefaultDimension is the vector dimension for text-embedding-3-small.
	// This matches storage.DefaultVectorDimension.
	DefaultDimension = 1536

	// DefaultBatchSize balances requests-per-minute vs tokens-per-minute rate limits.
	// OpenAI supports up to 2048 texts per batch, but smaller batches reduce TPM pressure.
	DefaultBatchSize = 500
)

// Embedder generates embeddings for unit content with an OpenAI embedding model.
// It batches requests for efficiency and implements exponential backoff on rate limit errors.
type Embedder struct {
	client    *Client
	model     string
	dimension int
	batchSize int
}

// Option configures an Embedder.
type Option func(*Embedder)

// WithModel sets the embedding model name.
func WithModel(model string) Option {
	return func(e *Embedder) {
		if model != "" {
			e.model = model
		}
	}
}

// WithDimension requests vectors of the given size from models that support it.
func WithDimension(dim int) Option {
	return func(e *Embedder) {
		if dim > 0 {
			e.dimension = dim
		}
	}
}

// WithBatchSize sets the number of texts per request.
func WithBatchSize(n int) Option {
	return func(e *Embedder) {
		if n > 0 {
			e.batchSize = n
		}
	}
}

// NewEmbedder creates a new Embedder with the given client.
// Defaults are DefaultModel, DefaultDimension and DefaultBatchSize.
func NewEmbedder(client *Client, opts ...Option) *Embedder {
	e := &Embedder{
		client:    client,
		model:     DefaultModel,
		dimension: DefaultDimension,
		batchSize: DefaultBatchSize,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Dimension returns the vector size this embedder produces.
func (e *Embedder) Dimension() int { return e.dimension }

// GenerateEmbeddings generates embeddings for the given texts.
// Returns [][]float32 to match storage.Unit.Embedding type.
// Batches requests and retries with exponential backoff on rate limit errors.
func (e *Embedder) GenerateEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	var allEmbeddings [][]float32

	// Process in batches
	for i := 0; i < len(texts); i += e.batchSize {
		end := min(i+e.batchSize, len(texts))
		batch := texts[i:end]

		embeddings, err := e.embedBatchWithRetry(ctx, batch)
		if err != nil {
			return nil, fmt.Errorf("batch %d-%d: %w", i, end, err)
		}
		allEmbeddings = append(allEmbeddings, embeddings...)
	}

	return allEmbeddings, nil
}

// embedBatchWithRetry generates embeddings for a single batch with retry logic.
// Retries with exponential backoff on rate limit errors (HTTP 429).
// Other errors are treated as permanent and fail immediately.
func (e *Embedder) embedBatchWithRetry(ctx context.Context, texts []string) ([][]float32, error) {
	var embeddings [][]float32

	operation := func() error {
		params := openai.EmbeddingNewParams{
			Input: openai.EmbeddingNewParamsInputUnion{
				OfArrayOfStrings: texts,
			},
			Model: openai.EmbeddingModel(e.model),
		}
		// Only the text-embedding-3 family accepts a dimensions parameter.
		if strings.HasPrefix(e.model, "text-embedding-3") {
			params.Dimensions = openai.Int(int64(e.dimension))
		}
		resp, err := e.client.client.Embeddings.New(ctx, params)
		if err != nil {
			// Check if retryable (rate limit error)
			if isRateLimitError(err) {
				return err // Will retry with backoff
			}
			return backoff.Permanent(err) // Don't retry
		}

		if len(resp.Data) != len(texts) {
			return backoff.Permanent(fmt.Errorf("got %d embeddings for %d texts", len(resp.Data), len(texts)))
		}

		// Convert float64 to float32 for storage compatibility.
		// Each vector is placed by its Index.
		embeddings = make([][]float32, len(resp.Data))
		for _, data := range resp.Data {
			if data.Index < 0 || int(data.Index) >= len(texts) {
				return backoff.Permanent(fmt.Errorf("embedding index %d out of range", data.Index))
			}
			embeddings[data.Index] = toFloat32(data.Embedding)
		}
		return nil
	}

	// Configure exponential backoff
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 30 * time.Second

	err := backoff.Retry(operation, backoff.WithContext(b, ctx))
	return embeddings, err
}

// isRateLimitError checks if the error is a rate limit error (HTTP 429).
func isRateLimitError(err error) bool {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429
	}
	return false
}

// toFloat32 converts []float64 to []float32.
// OpenAI API returns float64, but storage uses float32 for memory efficiency.
func toFloat32(f64 []float64) []float32 {
	f32 := make([]float32, len(f64))
	for i, v := range f64 {
		f32[i] = float32(v)
	}
	return f32
}

package embedding

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/openai/openai-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeEmbeddings serves /embeddings, returning vector [i, len(input)] for
// each input in reverse order to exercise index placement.
func fakeEmbeddings(t *testing.T, calls *int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(calls, 1)
		var req struct {
			Input []string `json:"input"`
			Model string   `json:"model"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		data := make([]map[string]any, 0, len(req.Input))
		for i := len(req.Input) - 1; i >= 0; i-- {
			data = append(data, map[string]any{
				"object":    "embedding",
				"index":     i,
				"embedding": []float64{float64(i), float64(len(req.Input[i]))},
			})
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"data":   data,
			"model":  req.Model,
			"usage":  map[string]any{"prompt_tokens": 1, "total_tokens": 1},
		})
	}))
}

func newTestClient(t *testing.T, url string) *Client {
	t.Helper()
	c, err := NewClient("test-key", option.WithBaseURL(url+"/"), option.WithMaxRetries(0))
	require.NoError(t, err)
	return c
}

func TestEmbedder_BatchesAndOrders(t *testing.T) {
	var calls int32
	srv := fakeEmbeddings(t, &calls)
	defer srv.Close()

	e := NewEmbedder(newTestClient(t, srv.URL), WithBatchSize(2))

	texts := []string{"a", "bb", "ccc", "dddd", "eeeee"}
	got, err := e.GenerateEmbeddings(context.Background(), texts)
	require.NoError(t, err)

	require.Len(t, got, len(texts))
	for i, v := range got {
		assert.Equal(t, float32(len(texts[i])), v[1], "vector %d out of order", i)
	}
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestEmbedder_EmptyInput(t *testing.T) {
	e := NewEmbedder(&Client{})

	got, err := e.GenerateEmbeddings(context.Background(), nil)

	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestEmbedder_PermanentErrorNotRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":{"message":"bad input","type":"invalid_request_error"}}`)
	}))
	defer srv.Close()

	e := NewEmbedder(newTestClient(t, srv.URL))
	_, err := e.GenerateEmbeddings(context.Background(), []string{"x"})

	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestNewEmbedder_Options(t *testing.T) {
	e := NewEmbedder(&Client{}, WithModel("text-embedding-3-large"), WithDimension(3072), WithBatchSize(0))

	assert.Equal(t, "text-embedding-3-large", e.model)
	assert.Equal(t, 3072, e.Dimension())
	assert.Equal(t, DefaultBatchSize, e.batchSize)
}

func TestNewClient_MissingKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")

	_, err := NewClient("")

	assert.Error(t, err)
}

func TestToFloat32(t *testing.T) {
	got := toFloat32([]float64{0.5, -1, 2})
	if len(got) != 3 || got[0] != 0.5 || got[1] != -1 || got[2] != 2 {
		t.Errorf("toFloat32 = %v", got)
	}
}

package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	goopenai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAPI(url string) *goopenai.Client {
	cfg := goopenai.DefaultConfig("sk-test")
	cfg.BaseURL = url + "/v1"
	return goopenai.NewClientWithConfig(cfg)
}

type embeddingRequest struct {
	Input []string `json:"input"`
	Model string   `json:"model"`
}

// writeEmbeddings answers with one vector per input, listed in reverse order
// so the client has to sort by index.
func writeEmbeddings(t *testing.T, w http.ResponseWriter, r *http.Request) {
	var req embeddingRequest
	require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
	data := make([]map[string]any, 0, len(req.Input))
	for i := len(req.Input) - 1; i >= 0; i-- {
		data = append(data, map[string]any{
			"object":    "embedding",
			"index":     i,
			"embedding": []float32{float32(len(req.Input[i])), 1},
		})
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"object": "list", "data": data, "model": req.Model})
}

func TestEmbedBatchSplitsAndOrders(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		calls.Add(1)
		writeEmbeddings(t, w, r)
	}))
	defer server.Close()

	c := NewClient(newAPI(server.URL), Config{Model: "text-embedding-3-small", BatchSize: 2})
	vecs, err := c.EmbedBatch(context.Background(), []string{"a", "bb", "ccc"})
	require.NoError(t, err)

	assert.Equal(t, int32(2), calls.Load())
	require.Len(t, vecs, 3)
	assert.Equal(t, []float64{1, 1}, vecs[0])
	assert.Equal(t, []float64{2, 1}, vecs[1])
	assert.Equal(t, []float64{3, 1}, vecs[2])
	assert.Equal(t, 2, c.Dimension())
}

func TestEmbedBatchRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"error":{"message":"overloaded","type":"server_error"}}`))
			return
		}
		writeEmbeddings(t, w, r)
	}))
	defer server.Close()

	c := NewClient(newAPI(server.URL), Config{MaxRetries: 2})
	c.initialBackoff = time.Millisecond

	vecs, err := c.EmbedBatch(context.Background(), []string{"tofu"})
	require.NoError(t, err)
	assert.Len(t, vecs, 1)
	assert.Equal(t, int32(2), calls.Load())
}

func TestEmbedBatchDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"bad key","type":"invalid_request_error"}}`))
	}))
	defer server.Close()

	c := NewClient(newAPI(server.URL), Config{MaxRetries: 3})
	c.initialBackoff = time.Millisecond

	_, err := c.EmbedBatch(context.Background(), []string{"tofu"})
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())

	var apiErr *goopenai.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.HTTPStatusCode)
}

func TestEmbedSingle(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeEmbeddings(t, w, r)
	}))
	defer server.Close()

	c := NewClient(newAPI(server.URL), Config{})
	v, err := c.Embed(context.Background(), "wok")
	require.NoError(t, err)
	assert.Equal(t, []float64{3, 1}, v)
	assert.Equal(t, "openai", c.Name())
}

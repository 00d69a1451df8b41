package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// embedServer answers embedding requests with one-dimensional vectors whose
// single component is the first byte of the input text, so tests can verify
// which vector belongs to which text.
func embedServer(t *testing.T, failFirst int) (*httptest.Server, *int) {
	t.Helper()
	requests := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.Header().Set("Content-Type", "application/json")
		if requests <= failFirst {
			w.WriteHeader(http.StatusInternalServerError)
			fmt.Fprint(w, `{"error": {"message": "overloaded"}}`)
			return
		}

		var req struct {
			Input []string `json:"input"`
			Model string   `json:"model"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		type datum struct {
			Embedding []float64 `json:"embedding"`
			Index     int       `json:"index"`
		}
		data := make([]datum, len(req.Input))
		for i, text := range req.Input {
			data[i] = datum{Embedding: []float64{float64(text[0])}, Index: i}
		}
		json.NewEncoder(w).Encode(map[string]any{"data": data})
	}))
	t.Cleanup(srv.Close)
	return srv, &requests
}

func newTestEmbedder(baseURL string, batchSize int) *BatchEmbedder {
	return NewBatchEmbedder(EmbedConfig{
		BaseURL:   baseURL,
		APIKey:    "test-key",
		Model:     "text-embedding-3-small",
		BatchSize: batchSize,
		RetryBase: time.Millisecond,
	})
}

func TestEmbedMany_MissingAPIKeyFailsFast(t *testing.T) {
	e := NewBatchEmbedder(EmbedConfig{BaseURL: "http://example.invalid", Model: "m"})
	_, err := e.EmbedMany(context.Background(), []string{"a"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "EMBEDDING_API_KEY")
}

func TestEmbedMany_EmptyInputNoCall(t *testing.T) {
	srv, requests := embedServer(t, 0)
	e := newTestEmbedder(srv.URL, 2)

	vecs, err := e.EmbedMany(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, vecs)
	assert.Equal(t, 0, *requests)
}

func TestEmbedMany_OrderPreservedAcrossChunks(t *testing.T) {
	srv, requests := embedServer(t, 0)
	e := newTestEmbedder(srv.URL, 2)

	vecs, err := e.EmbedMany(context.Background(), []string{"a", "b", "c"})
	require.NoError(t, err)
	require.Len(t, vecs, 3)
	// Two chunks: ["a","b"] and ["c"].
	assert.Equal(t, 2, *requests)
	assert.Equal(t, []float32{'a'}, vecs[0])
	assert.Equal(t, []float32{'b'}, vecs[1])
	assert.Equal(t, []float32{'c'}, vecs[2])
}

func TestEmbedMany_ChunkRetriesThenSucceeds(t *testing.T) {
	srv, requests := embedServer(t, 2)
	e := newTestEmbedder(srv.URL, 4)

	vecs, err := e.EmbedMany(context.Background(), []string{"x"})
	require.NoError(t, err)
	require.Len(t, vecs, 1)
	assert.Equal(t, []float32{'x'}, vecs[0])
	assert.Equal(t, 3, *requests)
}

func TestEmbedMany_ChunkExhaustsRetries(t *testing.T) {
	srv, requests := embedServer(t, 99)
	e := newTestEmbedder(srv.URL, 4)

	_, err := e.EmbedMany(context.Background(), []string{"x"})
	require.Error(t, err)
	assert.Equal(t, 3, *requests)
	assert.Contains(t, err.Error(), "after 3 attempts")
}

func TestEmbedOne(t *testing.T) {
	srv, _ := embedServer(t, 0)
	e := newTestEmbedder(srv.URL, 4)

	vec, err := e.EmbedOne(context.Background(), "q")
	require.NoError(t, err)
	assert.Equal(t, []float32{'q'}, vec)
}

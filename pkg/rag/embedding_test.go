package rag

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOllamaEmbedder(t *testing.T) {
	var body map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/embed", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"model":"nomic-embed-text","embeddings":[[0.1,0.2,0.3],[0.4,0.5,0.6]]}`))
	}))
	defer server.Close()

	t.Run("should embed a batch", func(t *testing.T) {
		e, err := NewOllamaEmbedder(OllamaEmbedderConfig{BaseURL: server.URL, Model: "nomic-embed-text", Dimension: 3})
		require.NoError(t, err)

		out, err := e.GenerateEmbeddings(context.Background(), []string{"a", "b"})
		require.NoError(t, err)

		assert.Equal(t, "nomic-embed-text", body["model"])
		assert.Equal(t, []any{"a", "b"}, body["input"])
		require.Len(t, out, 2)
		assert.InDeltaSlice(t, []float32{0.4, 0.5, 0.6}, out[1], 1e-6)
	})

	t.Run("should reject a dimension mismatch", func(t *testing.T) {
		e, err := NewOllamaEmbedder(OllamaEmbedderConfig{BaseURL: server.URL, Model: "nomic-embed-text", Dimension: 768})
		require.NoError(t, err)

		_, err = e.GenerateEmbeddings(context.Background(), []string{"a", "b"})
		assert.ErrorContains(t, err, "OLLAMA_EMBEDDING_MODEL_DIM")
	})

	t.Run("should reject a count mismatch", func(t *testing.T) {
		e, err := NewOllamaEmbedder(OllamaEmbedderConfig{BaseURL: server.URL, Model: "nomic-embed-text", Dimension: 3})
		require.NoError(t, err)

		_, err = e.GenerateEmbedding(context.Background(), "only one")
		assert.Error(t, err)
	})
}

func TestNewOllamaEmbedder_InvalidConfig(t *testing.T) {
	_, err := NewOllamaEmbedder(OllamaEmbedderConfig{BaseURL: "http://localhost:11434", Dimension: 3})
	assert.Error(t, err)

	_, err = NewOllamaEmbedder(OllamaEmbedderConfig{BaseURL: "http://localhost:11434", Model: "m"})
	assert.Error(t, err)
}

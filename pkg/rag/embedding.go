package rag

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	ollama "github.com/ollama/ollama/api"
)

// EmbeddingProvider generates vector embeddings from text
type EmbeddingProvider interface {
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)
	GenerateEmbeddings(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
}

// OllamaEmbedderConfig holds Ollama embedding settings
type OllamaEmbedderConfig struct {
	BaseURL   string
	Model     string
	Dimension int
	Timeout   time.Duration
}

// OllamaEmbedder implements EmbeddingProvider with the Ollama /api/embed
// endpoint.
type OllamaEmbedder struct {
	client    *ollama.Client
	model     string
	dimension int
}

// NewOllamaEmbedder creates a new Ollama embedding provider
func NewOllamaEmbedder(cfg OllamaEmbedderConfig) (*OllamaEmbedder, error) {
	if cfg.Model == "" {
		return nil, errors.New("embedding model is required")
	}
	if cfg.Dimension <= 0 {
		return nil, errors.New("embedding dimension must be positive")
	}
	u, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid ollama base url %q: %w", cfg.BaseURL, err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	return &OllamaEmbedder{
		client:    ollama.NewClient(u, &http.Client{Timeout: timeout}),
		model:     cfg.Model,
		dimension: cfg.Dimension,
	}, nil
}

func (e *OllamaEmbedder) Dimension() int {
	return e.dimension
}

func (e *OllamaEmbedder) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	embeddings, err := e.GenerateEmbeddings(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return embeddings[0], nil
}

func (e *OllamaEmbedder) GenerateEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	resp, err := e.client.Embed(ctx, &ollama.EmbedRequest{
		Model: e.model,
		Input: texts,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to call Ollama embed API: %w", err)
	}

	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("ollama returned %d embeddings for %d inputs", len(resp.Embeddings), len(texts))
	}
	for i, emb := range resp.Embeddings {
		if len(emb) != e.dimension {
			return nil, fmt.Errorf("embedding %d has %d dimensions, expected %d (check OLLAMA_EMBEDDING_MODEL_DIM)",
				i, len(emb), e.dimension)
		}
	}
	return resp.Embeddings, nil
}

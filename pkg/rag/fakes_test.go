package rag

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// vocabulary gives each test embedding one axis per word.
var vocabulary = []string{"sales", "weather", "budget", "rainfall"}

// keywordEmbedder embeds text as word counts over vocabulary, so similar
// topics land close together.
type keywordEmbedder struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (e *keywordEmbedder) Dimension() int { return len(vocabulary) }

func (e *keywordEmbedder) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	out, err := e.GenerateEmbeddings(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

func (e *keywordEmbedder) GenerateEmbeddings(_ context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	e.calls++
	e.mu.Unlock()

	if e.err != nil {
		return nil, e.err
	}

	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec := make([]float32, len(vocabulary))
		lower := strings.ToLower(text)
		for j, word := range vocabulary {
			vec[j] = float32(strings.Count(lower, word)) + 0.01
		}
		out[i] = vec
	}
	return out, nil
}

func (e *keywordEmbedder) callCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

func writeDoc(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

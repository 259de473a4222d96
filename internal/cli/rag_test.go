package cli

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var ragVocabulary = []string{"sales", "weather", "budget", "rainfall"}

func keywordVector(text string) []float32 {
	lower := strings.ToLower(text)
	vec := make([]float32, len(ragVocabulary))
	for i, word := range ragVocabulary {
		vec[i] = float32(strings.Count(lower, word)) + 0.01
	}
	return vec
}

// fakeOllamaRAG embeds by keyword counts and answers every chat with answer.
// The last chat prompt is kept for inspection.
type fakeOllamaRAG struct {
	answer string

	mu     sync.Mutex
	prompt string
}

func (f *fakeOllamaRAG) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	switch r.URL.Path {
	case "/api/embed":
		var req struct {
			Model string   `json:"model"`
			Input []string `json:"input"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		embeddings := make([][]float32, len(req.Input))
		for i, in := range req.Input {
			embeddings[i] = keywordVector(in)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"model": req.Model, "embeddings": embeddings})

	case "/api/chat":
		var req struct {
			Messages []struct {
				Content string `json:"content"`
			} `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.mu.Lock()
		if n := len(req.Messages); n > 0 {
			f.prompt = req.Messages[n-1].Content
		}
		f.mu.Unlock()
		_, _ = w.Write([]byte(ollamaAnswer(f.answer)))

	default:
		http.NotFound(w, r)
	}
}

func (f *fakeOllamaRAG) lastPrompt() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.prompt
}

func TestRAGCommands(t *testing.T) {
	docs := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(docs, "sales.md"),
		[]byte("# Sales\n\nQuarterly sales grew in the north region. Sales targets were met.\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(docs, "weather.md"),
		[]byte("# Weather\n\nRainfall was above average. The weather stayed mild.\n"), 0o644))

	fake := &fakeOllamaRAG{answer: strings.Repeat("Sales grew in the north region. ", 6)}
	ollama := httptest.NewServer(fake)
	defer ollama.Close()

	t.Setenv("OLLAMA_BASE_URL", ollama.URL)
	t.Setenv("OLLAMA_EMBEDDING_MODEL_DIM", "4")
	t.Setenv("METAGEN_RAG_DOCUMENTS_DIR", docs)
	t.Setenv("METAGEN_RAG_SQLITE_PATH", filepath.Join(t.TempDir(), "index.db"))
	t.Setenv("PG_URI", "")

	t.Run("index-documents indexes then skips unchanged files", func(t *testing.T) {
		output, err := execute(t, "rag", "index-documents")
		require.NoError(t, err)
		assert.Contains(t, output, "Indexed 2 documents")

		output, err = execute(t, "rag", "index-documents")
		require.NoError(t, err)
		assert.Contains(t, output, "Indexed 0 documents")
		assert.Contains(t, output, "skipped 2 unchanged")
	})

	t.Run("index-document re-indexes one file", func(t *testing.T) {
		output, err := execute(t, "rag", "index-document", "sales.md")
		require.NoError(t, err)
		assert.Contains(t, output, "Indexed sales.md into 1 chunks")
	})

	t.Run("index-document rejects unsupported files", func(t *testing.T) {
		_, err := execute(t, "rag", "index-document", "image.png")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unsupported file type")
	})

	t.Run("query-index answers from the closest chunks", func(t *testing.T) {
		output, err := execute(t, "rag", "query-index", "How did sales do?", "--limit", "1", "--sources")
		require.NoError(t, err)

		assert.Contains(t, output, "Completed request in")
		assert.Contains(t, output, "Sales grew in the north region.")
		assert.Contains(t, output, "sales.md")
		assert.NotContains(t, output, "weather.md")
		for _, line := range strings.Split(output, "\n") {
			assert.LessOrEqual(t, len(line), answerWidth)
		}

		prompt := fake.lastPrompt()
		assert.Contains(t, prompt, "Context information is below.")
		assert.Contains(t, prompt, "Quarterly sales grew")
		assert.Contains(t, prompt, "Query: How did sales do?")
	})

	t.Run("query-index requires a query", func(t *testing.T) {
		_, err := execute(t, "rag", "query-index")
		assert.Error(t, err)
	})

	t.Run("index-documents rejects a bad schedule", func(t *testing.T) {
		_, err := execute(t, "rag", "index-documents", "--schedule", "not a cron")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid cron expression")
	})
}

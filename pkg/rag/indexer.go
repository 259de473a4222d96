package rag

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/harun/metagen/internal/observability"
	"github.com/harun/metagen/internal/tracing"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
)

const embedBatchSize = 16

// IndexStats summarizes one IndexAll pass.
type IndexStats struct {
	Indexed  int
	Skipped  int
	Failed   int
	Pruned   int
	Chunks   int
	Duration time.Duration
}

// IndexerConfig holds indexer configuration
type IndexerConfig struct {
	Root     string
	Store    Store
	Embedder EmbeddingProvider
	Logger   zerolog.Logger
}

// Indexer keeps a Store in sync with the documents under Root.
type Indexer struct {
	root     string
	store    Store
	embedder EmbeddingProvider
	matcher  *Matcher
	logger   zerolog.Logger
	mu       sync.Mutex
}

// NewIndexer creates an indexer. Root must be an existing directory.
func NewIndexer(cfg IndexerConfig) (*Indexer, error) {
	observability.EnsureRegistered()

	if cfg.Root == "" {
		return nil, errors.New("documents root is required")
	}
	if cfg.Store == nil {
		return nil, errors.New("store is required")
	}
	if cfg.Embedder == nil {
		return nil, errors.New("embedding provider is required")
	}

	info, err := os.Stat(cfg.Root)
	if err != nil {
		return nil, fmt.Errorf("documents root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("documents root is not a directory: %s", cfg.Root)
	}

	matcher, err := NewMatcher(cfg.Root)
	if err != nil {
		return nil, err
	}

	return &Indexer{
		root:     cfg.Root,
		store:    cfg.Store,
		embedder: cfg.Embedder,
		matcher:  matcher,
		logger:   cfg.Logger,
	}, nil
}

// Root returns the documents directory
func (ix *Indexer) Root() string {
	return ix.root
}

// Matcher returns the ignore rules used for discovery
func (ix *Indexer) Matcher() *Matcher {
	return ix.matcher
}

// IndexAll indexes every discovered document, skipping unchanged ones, and
// removes documents that no longer exist. A failing file is logged and
// counted; it does not stop the pass.
func (ix *Indexer) IndexAll(ctx context.Context) (IndexStats, error) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	ctx, span := tracing.StartSpan(ctx, tracing.TracerRAG, "rag.index_all",
		attribute.String("rag.root", ix.root))
	defer span.End()
	logger := tracing.LoggerFromContext(ctx, ix.logger)

	start := time.Now()
	var stats IndexStats

	files, err := ix.matcher.Discover()
	if err != nil {
		tracing.FailSpan(span, err)
		return stats, err
	}

	for _, rel := range files {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		indexed, chunks, err := ix.indexFile(ctx, rel, false)
		switch {
		case err != nil:
			stats.Failed++
			span.RecordError(err)
			logger.Warn().Err(err).Str("file", rel).Msg("Failed to index document")
		case indexed:
			stats.Indexed++
			stats.Chunks += chunks
		default:
			stats.Skipped++
		}
	}

	pruned, err := ix.prune(ctx, files)
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to prune deleted documents")
		span.RecordError(err)
	}
	stats.Pruned = pruned
	stats.Duration = time.Since(start)

	ix.recordIndex(ctx, stats.Duration)
	span.SetAttributes(
		attribute.Int("rag.indexed", stats.Indexed),
		attribute.Int("rag.skipped", stats.Skipped),
		attribute.Int("rag.failed", stats.Failed),
	)

	logger.Info().
		Int("files_indexed", stats.Indexed).
		Int("files_skipped", stats.Skipped).
		Int("files_failed", stats.Failed).
		Int("files_pruned", stats.Pruned).
		Int("chunks_created", stats.Chunks).
		Dur("duration", stats.Duration).
		Msg("Index pass completed")

	return stats, nil
}

// IndexDocument removes the existing chunks of one file and indexes it again.
// name is relative to the root.
func (ix *Indexer) IndexDocument(ctx context.Context, name string) (int, error) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	rel, err := ix.relative(name)
	if err != nil {
		return 0, err
	}
	if !Supported(rel) {
		return 0, fmt.Errorf("unsupported file type %q (supported: %v)", filepath.Ext(rel), SupportedExtensions)
	}

	start := time.Now()
	_, chunks, err := ix.indexFile(ctx, rel, true)
	if err != nil {
		return 0, err
	}
	ix.recordIndex(ctx, time.Since(start))
	return chunks, nil
}

// Refresh re-indexes rel when it changed, or drops it from the store when the
// file is gone. It is the watcher callback.
func (ix *Indexer) Refresh(ctx context.Context, rel string) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	logger := tracing.LoggerFromContext(ctx, ix.logger)

	if _, err := os.Stat(filepath.Join(ix.root, filepath.FromSlash(rel))); os.IsNotExist(err) {
		if err := ix.store.DeleteDocument(ctx, rel); err != nil {
			return fmt.Errorf("failed to remove %s: %w", rel, err)
		}
		logger.Info().Str("file", rel).Msg("Removed document from index")
		return nil
	}

	start := time.Now()
	indexed, chunks, err := ix.indexFile(ctx, rel, false)
	if err != nil {
		return err
	}
	if indexed {
		ix.recordIndex(ctx, time.Since(start))
		logger.Info().Str("file", rel).Int("chunks", chunks).Msg("Re-indexed document")
	}
	return nil
}

// Query embeds text and returns the limit closest chunks.
func (ix *Indexer) Query(ctx context.Context, text string, limit int) ([]Match, error) {
	ctx, span := tracing.StartSpan(ctx, tracing.TracerRAG, "rag.query",
		attribute.Int("rag.limit", limit))
	defer span.End()

	start := time.Now()
	defer func() { observability.RecordRAGQuery(time.Since(start)) }()

	if limit <= 0 {
		limit = 5
	}

	embedding, err := ix.embedder.GenerateEmbedding(ctx, text)
	if err != nil {
		tracing.FailSpan(span, err)
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	matches, err := ix.store.Search(ctx, embedding, limit)
	if err != nil {
		tracing.FailSpan(span, err)
		return nil, fmt.Errorf("failed to search index: %w", err)
	}

	span.SetAttributes(attribute.Int("rag.matches", len(matches)))
	return matches, nil
}

func (ix *Indexer) indexFile(ctx context.Context, rel string, force bool) (bool, int, error) {
	ctx = tracing.WithResource(ctx, rel)
	ctx, span := tracing.StartSpan(ctx, tracing.TracerRAG, "rag.index_document",
		attribute.String("rag.file", rel))
	defer span.End()

	indexed, chunks, err := ix.index(ctx, rel, force)
	tracing.FailSpan(span, err)
	return indexed, chunks, err
}

func (ix *Indexer) index(ctx context.Context, rel string, force bool) (bool, int, error) {
	data, err := os.ReadFile(filepath.Join(ix.root, filepath.FromSlash(rel)))
	if err != nil {
		return false, 0, err
	}

	sum := sha256.Sum256(data)
	hash := hex.EncodeToString(sum[:])

	if !force {
		existing, ok, err := ix.store.DocumentHash(ctx, rel)
		if err != nil {
			return false, 0, err
		}
		if ok && existing == hash {
			return false, 0, nil
		}
	}

	pieces, err := SplitDocument(rel, data)
	if err != nil {
		return false, 0, err
	}

	chunks := make([]Chunk, len(pieces))
	for start := 0; start < len(pieces); start += embedBatchSize {
		end := min(start+embedBatchSize, len(pieces))

		texts := make([]string, 0, end-start)
		for _, p := range pieces[start:end] {
			texts = append(texts, p.Content)
		}

		embeddings, err := ix.embedder.GenerateEmbeddings(ctx, texts)
		if err != nil {
			return false, 0, fmt.Errorf("failed to embed %s: %w", rel, err)
		}

		for i, emb := range embeddings {
			pos := start + i
			chunks[pos] = Chunk{
				ID:        chunkID(rel, pos),
				Path:      rel,
				Header:    pieces[pos].Header,
				Position:  pos,
				Content:   pieces[pos].Content,
				Embedding: emb,
			}
		}
	}

	if err := ix.store.ReplaceDocument(ctx, Document{Path: rel, ContentHash: hash, Chunks: chunks}); err != nil {
		return false, 0, err
	}
	return true, len(chunks), nil
}

func (ix *Indexer) prune(ctx context.Context, existing []string) (int, error) {
	indexed, err := ix.store.Documents(ctx)
	if err != nil {
		return 0, err
	}

	keep := make(map[string]bool, len(existing))
	for _, f := range existing {
		keep[f] = true
	}

	pruned := 0
	for _, path := range indexed {
		if keep[path] {
			continue
		}
		if err := ix.store.DeleteDocument(ctx, path); err != nil {
			return pruned, err
		}
		pruned++
	}
	return pruned, nil
}

// relative converts a user-supplied name into a slash-separated path inside
// the root.
func (ix *Indexer) relative(name string) (string, error) {
	if name == "" {
		return "", errors.New("file name cannot be empty")
	}

	path := name
	if !filepath.IsAbs(path) {
		path = filepath.Join(ix.root, name)
	}

	absRoot, err := filepath.Abs(ix.root)
	if err != nil {
		return "", err
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}

	rel, err := filepath.Rel(absRoot, absPath)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%s is outside the documents directory %s", name, ix.root)
	}
	return filepath.ToSlash(rel), nil
}

func (ix *Indexer) recordIndex(ctx context.Context, d time.Duration) {
	count, err := ix.store.Count(ctx)
	if err != nil {
		ix.logger.Debug().Err(err).Msg("Failed to count indexed chunks")
		return
	}
	observability.RecordRAGIndex(d, count)
}

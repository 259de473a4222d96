package rag

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/harun/metagen/internal/config"
	"github.com/rs/zerolog"
)

// Chunk is one embedded piece of an indexed document.
type Chunk struct {
	ID        string    `json:"id"`
	Path      string    `json:"path"`
	Header    string    `json:"header,omitempty"`
	Position  int       `json:"position"`
	Content   string    `json:"content"`
	Embedding []float32 `json:"-"`
}

// Document is the unit the store replaces atomically.
type Document struct {
	Path        string
	ContentHash string
	Chunks      []Chunk
}

// Match is a chunk returned by a similarity search. Score is the cosine
// similarity to the query, higher is closer.
type Match struct {
	Chunk
	Score float64 `json:"score"`
}

// Store persists document chunks and their embeddings.
type Store interface {
	// DocumentHash returns the content hash recorded for path.
	DocumentHash(ctx context.Context, path string) (string, bool, error)
	// ReplaceDocument deletes every chunk of doc.Path and writes doc.Chunks.
	ReplaceDocument(ctx context.Context, doc Document) error
	DeleteDocument(ctx context.Context, path string) error
	// Documents lists the indexed paths.
	Documents(ctx context.Context) ([]string, error)
	Search(ctx context.Context, embedding []float32, limit int) ([]Match, error)
	Count(ctx context.Context) (int, error)
	Close() error
}

// NewStore opens the store selected by cfg: Postgres when a URI is set,
// sqlite-vec otherwise.
func NewStore(ctx context.Context, cfg config.RAGConfig, logger zerolog.Logger) (Store, error) {
	if cfg.UsePostgres() {
		return NewPostgresStore(ctx, PostgresConfig{
			URI:       cfg.PGURI,
			Database:  cfg.PGDBName,
			Table:     cfg.PGTableName,
			Dimension: cfg.EmbeddingDim,
			Logger:    logger,
		})
	}
	return NewSQLiteStore(SQLiteConfig{
		Path:      cfg.SQLitePath,
		Dimension: cfg.EmbeddingDim,
		Logger:    logger,
	})
}

func chunkID(path string, position int) string {
	return path + "#" + strconv.Itoa(position)
}

func checkDimension(embedding []float32, dim int) error {
	if len(embedding) != dim {
		return fmt.Errorf("embedding has %d dimensions, store expects %d", len(embedding), dim)
	}
	return nil
}

// vectorLiteral formats an embedding in the text form pgvector and
// sqlite-vec both accept.
func vectorLiteral(embedding []float32) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, v := range embedding {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(v), 'f', -1, 32))
	}
	b.WriteByte(']')
	return b.String()
}

package rag

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

func init() {
	sqlite_vec.Auto()
}

// SQLiteConfig holds sqlite-vec store configuration
type SQLiteConfig struct {
	Path      string
	Dimension int
	Logger    zerolog.Logger
}

// SQLiteStore keeps chunks in a SQLite database and their embeddings in a
// sqlite-vec vec0 table using cosine distance.
type SQLiteStore struct {
	db        *sql.DB
	dimension int
	logger    zerolog.Logger
}

// NewSQLiteStore opens (creating if needed) the database at cfg.Path.
func NewSQLiteStore(cfg SQLiteConfig) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, errors.New("database path is required")
	}
	if cfg.Dimension <= 0 {
		return nil, errors.New("embedding dimension must be positive")
	}

	db, err := sql.Open("sqlite3", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// vec0 tables are not safe to write from several connections at once.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	s := &SQLiteStore{db: db, dimension: cfg.Dimension, logger: cfg.Logger}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	var version string
	if err := db.QueryRow("SELECT vec_version()").Scan(&version); err == nil {
		s.logger.Debug().Str("sqlite_vec", version).Str("path", cfg.Path).Msg("Vector store opened")
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS documents (
			path TEXT PRIMARY KEY,
			content_hash TEXT NOT NULL,
			indexed_at INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS chunks (
			id TEXT PRIMARY KEY,
			path TEXT NOT NULL,
			header TEXT NOT NULL DEFAULT '',
			position INTEGER NOT NULL,
			content TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_chunks_path ON chunks(path);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return err
	}

	vectorSchema := fmt.Sprintf(`
		CREATE VIRTUAL TABLE IF NOT EXISTS chunk_embeddings USING vec0(
			chunk_id TEXT PRIMARY KEY,
			embedding float[%d] distance_metric=cosine
		);
	`, s.dimension)
	if _, err := s.db.Exec(vectorSchema); err != nil {
		return fmt.Errorf("failed to create vector table: %w", err)
	}
	return nil
}

func (s *SQLiteStore) DocumentHash(ctx context.Context, path string) (string, bool, error) {
	var hash string
	err := s.db.QueryRowContext(ctx, "SELECT content_hash FROM documents WHERE path = ?", path).Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return hash, true, nil
}

func (s *SQLiteStore) ReplaceDocument(ctx context.Context, doc Document) error {
	for _, c := range doc.Chunks {
		if err := checkDimension(c.Embedding, s.dimension); err != nil {
			return fmt.Errorf("chunk %s: %w", c.ID, err)
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := deleteDocumentTx(ctx, tx, doc.Path); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx,
		"INSERT INTO documents (path, content_hash, indexed_at) VALUES (?, ?, ?)",
		doc.Path, doc.ContentHash, time.Now().Unix(),
	); err != nil {
		return fmt.Errorf("failed to insert document: %w", err)
	}

	for _, c := range doc.Chunks {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO chunks (id, path, header, position, content) VALUES (?, ?, ?, ?, ?)",
			c.ID, doc.Path, c.Header, c.Position, c.Content,
		); err != nil {
			return fmt.Errorf("failed to insert chunk %s: %w", c.ID, err)
		}

		blob, err := sqlite_vec.SerializeFloat32(c.Embedding)
		if err != nil {
			return fmt.Errorf("failed to serialize embedding: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO chunk_embeddings (chunk_id, embedding) VALUES (?, ?)",
			c.ID, blob,
		); err != nil {
			return fmt.Errorf("failed to store embedding for %s: %w", c.ID, err)
		}
	}

	return tx.Commit()
}

func (s *SQLiteStore) DeleteDocument(ctx context.Context, path string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := deleteDocumentTx(ctx, tx, path); err != nil {
		return err
	}
	return tx.Commit()
}

func deleteDocumentTx(ctx context.Context, tx *sql.Tx, path string) error {
	if _, err := tx.ExecContext(ctx,
		"DELETE FROM chunk_embeddings WHERE chunk_id IN (SELECT id FROM chunks WHERE path = ?)", path,
	); err != nil {
		return fmt.Errorf("failed to delete embeddings: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM chunks WHERE path = ?", path); err != nil {
		return fmt.Errorf("failed to delete chunks: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM documents WHERE path = ?", path); err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Documents(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT path FROM documents ORDER BY path")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var paths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		paths = append(paths, p)
	}
	return paths, rows.Err()
}

func (s *SQLiteStore) Search(ctx context.Context, embedding []float32, limit int) ([]Match, error) {
	if err := checkDimension(embedding, s.dimension); err != nil {
		return nil, err
	}
	blob, err := sqlite_vec.SerializeFloat32(embedding)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize embedding: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.path, c.header, c.position, c.content,
			vec_distance_cosine(e.embedding, ?) AS distance
		FROM chunk_embeddings e
		JOIN chunks c ON c.id = e.chunk_id
		ORDER BY distance ASC
		LIMIT ?
	`, blob, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var matches []Match
	for rows.Next() {
		var m Match
		var distance float64
		if err := rows.Scan(&m.ID, &m.Path, &m.Header, &m.Position, &m.Content, &distance); err != nil {
			return nil, err
		}
		m.Score = 1 - distance
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM chunks").Scan(&n)
	return n, err
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

package rag

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// HNSW parameters for the pgvector index.
const (
	hnswM              = 16
	hnswEfConstruction = 64
	hnswEfSearch       = 40
)

var tableNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,62}$`)

// PostgresConfig holds pgvector store configuration
type PostgresConfig struct {
	URI       string
	Database  string // overrides the database named in URI when set
	Table     string
	Dimension int
	Logger    zerolog.Logger
}

// PostgresStore implements Store using Postgres + pgvector.
type PostgresStore struct {
	db        *pgxpool.Pool
	table     string
	dimension int
	logger    zerolog.Logger
}

// NewPostgresStore connects to Postgres and creates the chunk table and its
// HNSW cosine index when missing.
func NewPostgresStore(ctx context.Context, cfg PostgresConfig) (*PostgresStore, error) {
	if cfg.URI == "" {
		return nil, errors.New("postgres uri is required")
	}
	if !tableNamePattern.MatchString(cfg.Table) {
		return nil, fmt.Errorf("invalid table name: %q", cfg.Table)
	}
	if cfg.Dimension <= 0 {
		return nil, errors.New("embedding dimension must be positive")
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.URI)
	if err != nil {
		return nil, fmt.Errorf("invalid postgres uri: %w", err)
	}
	if cfg.Database != "" {
		poolCfg.ConnConfig.Database = cfg.Database
	}

	db, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Postgres: %w", err)
	}

	s := &PostgresStore{db: db, table: cfg.Table, dimension: cfg.Dimension, logger: cfg.Logger}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

func (s *PostgresStore) initSchema(ctx context.Context) error {
	_, err := s.db.Exec(ctx, postgresSchema(s.table, s.dimension))
	return err
}

func postgresSchema(table string, dimension int) string {
	return fmt.Sprintf(`
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS %[1]s_documents (
    path TEXT PRIMARY KEY,
    content_hash TEXT NOT NULL,
    indexed_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS %[1]s (
    id TEXT PRIMARY KEY,
    path TEXT NOT NULL,
    header TEXT NOT NULL DEFAULT '',
    position INTEGER NOT NULL,
    content TEXT NOT NULL,
    embedding vector(%[2]d) NOT NULL
);

CREATE INDEX IF NOT EXISTS %[1]s_path_idx ON %[1]s (path);
CREATE INDEX IF NOT EXISTS %[1]s_embedding_idx ON %[1]s
    USING hnsw (embedding vector_cosine_ops) WITH (m = %[3]d, ef_construction = %[4]d);
`, table, dimension, hnswM, hnswEfConstruction)
}

func (s *PostgresStore) DocumentHash(ctx context.Context, path string) (string, bool, error) {
	var hash string
	err := s.db.QueryRow(ctx,
		fmt.Sprintf(`SELECT content_hash FROM %s_documents WHERE path = $1`, s.table), path,
	).Scan(&hash)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return hash, true, nil
}

func (s *PostgresStore) ReplaceDocument(ctx context.Context, doc Document) (err error) {
	for _, c := range doc.Chunks {
		if err := checkDimension(c.Embedding, s.dimension); err != nil {
			return fmt.Errorf("chunk %s: %w", c.ID, err)
		}
	}

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	if err = s.deleteTx(ctx, tx, doc.Path); err != nil {
		return err
	}
	if _, err = tx.Exec(ctx,
		fmt.Sprintf(`INSERT INTO %s_documents (path, content_hash) VALUES ($1, $2)`, s.table),
		doc.Path, doc.ContentHash,
	); err != nil {
		return fmt.Errorf("failed to insert document: %w", err)
	}

	batch := &pgx.Batch{}
	insert := fmt.Sprintf(
		`INSERT INTO %s (id, path, header, position, content, embedding) VALUES ($1, $2, $3, $4, $5, $6::vector)`,
		s.table)
	for _, c := range doc.Chunks {
		batch.Queue(insert, c.ID, doc.Path, c.Header, c.Position, c.Content, vectorLiteral(c.Embedding))
	}
	if err = tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to insert chunks: %w", err)
	}

	return tx.Commit(ctx)
}

func (s *PostgresStore) DeleteDocument(ctx context.Context, path string) (err error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	if err = s.deleteTx(ctx, tx, path); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *PostgresStore) deleteTx(ctx context.Context, tx pgx.Tx, path string) error {
	if _, err := tx.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE path = $1`, s.table), path); err != nil {
		return fmt.Errorf("failed to delete chunks: %w", err)
	}
	if _, err := tx.Exec(ctx, fmt.Sprintf(`DELETE FROM %s_documents WHERE path = $1`, s.table), path); err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	return nil
}

func (s *PostgresStore) Documents(ctx context.Context) ([]string, error) {
	rows, err := s.db.Query(ctx, fmt.Sprintf(`SELECT path FROM %s_documents ORDER BY path`, s.table))
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

// Search runs an HNSW cosine search. ef_search is set per transaction so
// pooled connections keep their defaults.
func (s *PostgresStore) Search(ctx context.Context, embedding []float32, limit int) ([]Match, error) {
	if err := checkDimension(embedding, s.dimension); err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, fmt.Sprintf(`SET LOCAL hnsw.ef_search = %d`, hnswEfSearch)); err != nil {
		return nil, fmt.Errorf("failed to set ef_search: %w", err)
	}

	rows, err := tx.Query(ctx, fmt.Sprintf(`
        SELECT id, path, header, position, content, 1 - (embedding <=> $1::vector) AS score
        FROM %s
        ORDER BY embedding <=> $1::vector
        LIMIT $2
    `, s.table), vectorLiteral(embedding), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var matches []Match
	for rows.Next() {
		var m Match
		if err := rows.Scan(&m.ID, &m.Path, &m.Header, &m.Position, &m.Content, &m.Score); err != nil {
			return nil, err
		}
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

func (s *PostgresStore) Count(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRow(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %s`, s.table)).Scan(&count)
	return count, err
}

func (s *PostgresStore) Close() error {
	s.db.Close()
	return nil
}

// Package rag indexes dataset documents into a vector store and answers
// questions from the indexed content.
//
// Documents are discovered under a root directory, filtered by .gitignore and
// .ragignore rules, split into chunks, embedded and written to a Store. Two
// stores exist: a local SQLite database using the sqlite-vec extension and a
// Postgres table using pgvector with an HNSW cosine index.
//
// Invariants:
//   - A document's chunks are replaced atomically; a query never sees a mix
//     of old and new chunks for the same file.
//   - Unchanged files (same content hash) are skipped unless forced.
//   - Index and query operations emit tracing spans and metrics.
//
// Usage:
//
//	store, _ := rag.NewSQLiteStore(rag.SQLiteConfig{Path: "metagen-rag.db", Dimension: 768})
//	ix, _ := rag.NewIndexer(rag.IndexerConfig{Root: "data", Store: store, Embedder: embedder})
//	_, _ = ix.IndexAll(ctx)
//	matches, _ := ix.Query(ctx, "which regions sold most?", 5)
package rag

// Package resource reads dataset files for the tool server and the RAG
// indexer.
//
// CSV files are summarized as their column names plus a small table of the
// leading rows. Markdown files are split into sub-documents at headings.
// Missing files report ErrNotFound and malformed content reports ErrParse so
// callers can turn them into structured tool results.
package resource

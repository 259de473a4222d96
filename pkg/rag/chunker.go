package rag

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/harun/metagen/pkg/resource"
)

// SupportedExtensions lists the file types the indexer reads.
var SupportedExtensions = []string{".csv", ".md", ".markdown", ".txt"}

const (
	maxChunkSize = 1000
	chunkOverlap = 50
	csvChunkRows = 20
)

// Piece is an un-embedded chunk of a document.
type Piece struct {
	Header  string
	Content string
}

// Supported reports whether path has an indexable extension.
func Supported(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range SupportedExtensions {
		if ext == e {
			return true
		}
	}
	return false
}

// SplitDocument cuts a file into pieces according to its type: Markdown by
// heading, CSV by groups of rows that each repeat the header, anything else
// by size.
func SplitDocument(path string, data []byte) ([]Piece, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".md", ".markdown":
		var pieces []Piece
		for _, sec := range resource.SplitMarkdown(data) {
			for _, text := range splitText(sec.Text) {
				pieces = append(pieces, Piece{Header: sec.Header, Content: text})
			}
		}
		return pieces, nil

	case ".csv":
		return splitCSV(data)

	case ".txt":
		var pieces []Piece
		for _, text := range splitText(string(data)) {
			pieces = append(pieces, Piece{Content: text})
		}
		return pieces, nil

	default:
		return nil, fmt.Errorf("unsupported file type: %s", filepath.Ext(path))
	}
}

// splitCSV reads rows the way resource.ParseCSV does: short rows are padded
// and rows wider than the header fail.
func splitCSV(data []byte) ([]Piece, error) {
	r := csv.NewReader(bytes.NewReader(bytes.TrimPrefix(data, []byte("\ufeff"))))
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty file", resource.ErrParse)
		}
		return nil, fmt.Errorf("%w: %v", resource.ErrParse, err)
	}
	headerLine := strings.Join(header, ",")

	var pieces []Piece
	var rows []string
	flush := func() {
		if len(rows) == 0 {
			return
		}
		pieces = append(pieces, Piece{
			Header:  headerLine,
			Content: headerLine + "\n" + strings.Join(rows, "\n"),
		})
		rows = rows[:0]
	}

	for {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", resource.ErrParse, err)
		}
		if len(record) > len(header) {
			line, _ := r.FieldPos(0)
			return nil, fmt.Errorf("%w: record on line %d: expected %d fields, saw %d",
				resource.ErrParse, line, len(header), len(record))
		}
		for len(record) < len(header) {
			record = append(record, "")
		}
		rows = append(rows, strings.Join(record, ","))
		if len(rows) == csvChunkRows {
			flush()
		}
	}
	flush()

	if len(pieces) == 0 {
		pieces = append(pieces, Piece{Header: headerLine, Content: headerLine})
	}
	return pieces, nil
}

// splitText cuts content on line boundaries into pieces of at most
// maxChunkSize bytes, each starting with the last chunkOverlap bytes of the
// previous one. A single line longer than the limit stays whole.
func splitText(content string) []string {
	var chunks []string
	var current strings.Builder

	for _, line := range strings.Split(content, "\n") {
		lineLen := len(line) + 1

		if current.Len() > 0 && current.Len()+lineLen > maxChunkSize {
			text := current.String()
			if trimmed := strings.TrimSpace(text); trimmed != "" {
				chunks = append(chunks, trimmed)
			}

			current.Reset()
			if len(text) > chunkOverlap {
				tail := text[len(text)-chunkOverlap:]
				for len(tail) > 0 && !utf8.RuneStart(tail[0]) {
					tail = tail[1:]
				}
				current.WriteString(tail)
			}
		}

		current.WriteString(line)
		current.WriteString("\n")
	}

	if trimmed := strings.TrimSpace(current.String()); trimmed != "" {
		chunks = append(chunks, trimmed)
	}
	return chunks
}

package resource

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
)

var utf8BOM = []byte("\ufeff")

// PreviewRows is the number of data rows included in a CSV preview.
const PreviewRows = 3

// TablePreview summarizes a CSV file.
type TablePreview struct {
	Columns []string `json:"columns"`
	Sample  string   `json:"sample"`
}

// ReadCSV parses the CSV file at path and returns its header and a preview of
// the first PreviewRows data rows.
func ReadCSV(path string) (*TablePreview, error) {
	data, err := readFile(path)
	if err != nil {
		return nil, err
	}
	return ParseCSV(data)
}

// ParseCSV builds a preview from raw CSV content. Short rows are padded with
// empty cells; a row with more fields than the header is a parse error.
func ParseCSV(data []byte) (*TablePreview, error) {
	r := csv.NewReader(bytes.NewReader(bytes.TrimPrefix(data, utf8BOM)))
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty file", ErrParse)
		}
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}

	columns := make([]string, len(header))
	for i, name := range header {
		columns[i] = strings.TrimSpace(name)
	}

	rows := make([][]string, 0, PreviewRows)
	for {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrParse, err)
		}
		if len(record) > len(columns) {
			line, _ := r.FieldPos(0)
			return nil, fmt.Errorf("%w: record on line %d: expected %d fields, saw %d",
				ErrParse, line, len(columns), len(record))
		}
		for len(record) < len(columns) {
			record = append(record, "")
		}
		// Keep reading past the preview so malformed rows further down are
		// still reported.
		if len(rows) < PreviewRows {
			rows = append(rows, record)
		}
	}

	return &TablePreview{
		Columns: columns,
		Sample:  renderTable(columns, rows),
	}, nil
}

func renderTable(columns []string, rows [][]string) string {
	var buf bytes.Buffer
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)

	fmt.Fprintln(w, "\t"+strings.Join(columns, "\t"))
	for i, row := range rows {
		fmt.Fprintf(w, "%d\t%s\n", i, strings.Join(row, "\t"))
	}
	_ = w.Flush()

	return strings.TrimRight(buf.String(), "\n")
}

package resource

import (
	"bytes"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// MaxDocuments bounds how many sub-documents ReadMarkdown returns.
const MaxDocuments = 3

// Section is one heading-delimited part of a Markdown source.
type Section struct {
	Header string
	Level  int
	Text   string
}

// DocumentMetadata describes where a document was extracted from.
type DocumentMetadata struct {
	FilePath string `json:"file_path"`
	Header   string `json:"header"`
}

// Document is a sub-document extracted from a Markdown file.
type Document struct {
	ID       string           `json:"id"`
	Text     string           `json:"text"`
	Metadata DocumentMetadata `json:"metadata"`
}

// MarkdownResult is the tool payload for Markdown files.
type MarkdownResult struct {
	Format    string     `json:"format"`
	Documents []Document `json:"documents"`
}

// ReadMarkdown splits the Markdown file at path into at most limit documents.
// A limit <= 0 returns every section.
func ReadMarkdown(path string, limit int) (*MarkdownResult, error) {
	data, err := readFile(path)
	if err != nil {
		return nil, err
	}

	sections := SplitMarkdown(data)
	if limit > 0 && len(sections) > limit {
		sections = sections[:limit]
	}

	docs := make([]Document, 0, len(sections))
	for i, sec := range sections {
		docs = append(docs, Document{
			ID:   DocumentID(path, i),
			Text: sec.Text,
			Metadata: DocumentMetadata{
				FilePath: path,
				Header:   sec.Header,
			},
		})
	}

	return &MarkdownResult{Format: "markdown", Documents: docs}, nil
}

// DocumentID derives a stable identifier for the index-th section of path.
func DocumentID(path string, index int) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("file://"+path+"#"+strconv.Itoa(index))).String()
}

// SplitMarkdown cuts source at every heading. Each section runs from its
// heading line up to the next heading. Text before the first heading becomes
// a section with an empty header. Blank sections are dropped.
func SplitMarkdown(source []byte) []Section {
	doc := goldmark.New().Parser().Parse(text.NewReader(source))

	type cut struct {
		offset int
		header string
		level  int
	}
	var cuts []cut

	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		h, ok := n.(*ast.Heading)
		if !ok {
			return ast.WalkContinue, nil
		}
		if h.Lines().Len() > 0 {
			cuts = append(cuts, cut{
				offset: lineStart(source, h.Lines().At(0).Start),
				header: strings.TrimSpace(headingText(h, source)),
				level:  h.Level,
			})
		}
		return ast.WalkSkipChildren, nil
	})

	var sections []Section
	appendSection := func(header string, level int, body []byte) {
		body = bytes.TrimSpace(body)
		if len(body) == 0 {
			return
		}
		sections = append(sections, Section{Header: header, Level: level, Text: string(body)})
	}

	if len(cuts) == 0 {
		appendSection("", 0, source)
		return sections
	}

	appendSection("", 0, source[:cuts[0].offset])
	for i, c := range cuts {
		end := len(source)
		if i+1 < len(cuts) {
			end = cuts[i+1].offset
		}
		appendSection(c.header, c.level, source[c.offset:end])
	}

	return sections
}

func lineStart(source []byte, pos int) int {
	if pos > len(source) {
		pos = len(source)
	}
	if i := bytes.LastIndexByte(source[:pos], '\n'); i >= 0 {
		return i + 1
	}
	return 0
}

func headingText(n ast.Node, source []byte) string {
	var buf bytes.Buffer
	_ = ast.Walk(n, func(child ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch t := child.(type) {
		case *ast.Text:
			buf.Write(t.Segment.Value(source))
			if t.SoftLineBreak() {
				buf.WriteByte(' ')
			}
		case *ast.String:
			buf.Write(t.Value)
		}
		return ast.WalkContinue, nil
	})
	return buf.String()
}

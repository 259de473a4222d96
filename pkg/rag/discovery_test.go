package rag

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatcher_Discover(t *testing.T) {
	root := t.TempDir()
	writeDoc(t, root, "sales.csv", "a,b\n1,2\n")
	writeDoc(t, root, "guides/intro.md", "# Intro\n")
	writeDoc(t, root, "guides/draft.md", "# Draft\n")
	writeDoc(t, root, "notes.txt", "plain")
	writeDoc(t, root, "image.png", "png")
	writeDoc(t, root, "scratch/tmp.md", "# Tmp\n")
	writeDoc(t, root, ".cache/hidden.md", "# Hidden\n")
	writeDoc(t, root, ".gitignore", "scratch/\n")
	writeDoc(t, root, ".ragignore", "# drafts stay out\n*draft*\n")

	m, err := NewMatcher(root)
	require.NoError(t, err)

	files, err := m.Discover()
	require.NoError(t, err)

	assert.Equal(t, []string{"guides/intro.md", "notes.txt", "sales.csv"}, files)
}

func TestMatcher_Include(t *testing.T) {
	root := t.TempDir()
	writeDoc(t, root, ".ragignore", "private/\n")

	m, err := NewMatcher(root)
	require.NoError(t, err)

	assert.True(t, m.Include("report.md"))
	assert.False(t, m.Include("report.json"))
	assert.False(t, m.Include("private/report.md"))
	assert.False(t, m.Include("metagen-rag.db"))
}

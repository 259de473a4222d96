package rag

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileWatcher(t *testing.T) {
	root := t.TempDir()
	writeDoc(t, root, "sub/.keep.md", "")

	m, err := NewMatcher(root)
	require.NoError(t, err)

	changed := make(chan string, 10)
	fw, err := NewFileWatcher(root, m, zerolog.Nop(), func(rel string) { changed <- rel })
	require.NoError(t, err)
	fw.SetDebounce(20 * time.Millisecond)
	defer fw.Stop()

	writeDoc(t, root, "image.png", "ignored")
	writeDoc(t, root, "sub/report.md", "# Report\n")

	select {
	case rel := <-changed:
		assert.Equal(t, "sub/report.md", rel)
	case <-time.After(5 * time.Second):
		t.Fatal("no change reported")
	}
}

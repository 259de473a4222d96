package rag

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	ignore "github.com/sabhiram/go-gitignore"
)

// IgnoreFiles are read from the documents root, in order, for exclusion
// patterns.
var IgnoreFiles = []string{".gitignore", ".ragignore"}

var defaultIgnores = []string{
	".git/",
	".*",
	"*.db",
	"*.db-wal",
	"*.db-shm",
}

// Matcher decides which files under a root are indexed.
type Matcher struct {
	root    string
	ignores *ignore.GitIgnore
}

// NewMatcher loads the ignore files found in root.
func NewMatcher(root string) (*Matcher, error) {
	patterns := append([]string(nil), defaultIgnores...)
	for _, name := range IgnoreFiles {
		data, err := os.ReadFile(filepath.Join(root, name))
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("failed to read %s: %w", name, err)
		}
		patterns = append(patterns, strings.Split(string(data), "\n")...)
	}

	return &Matcher{
		root:    root,
		ignores: ignore.CompileIgnoreLines(patterns...),
	}, nil
}

// Ignored reports whether rel (relative to the root) is excluded. Directory
// paths should end with a separator so patterns ending in '/' match.
func (m *Matcher) Ignored(rel string) bool {
	return m.ignores.MatchesPath(rel)
}

// Include reports whether the file at rel should be indexed.
func (m *Matcher) Include(rel string) bool {
	return Supported(rel) && !m.Ignored(rel)
}

// Discover walks root and returns the slash-separated relative paths of every
// indexable file, sorted.
func (m *Matcher) Discover() ([]string, error) {
	var files []string
	err := filepath.WalkDir(m.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		rel, err := filepath.Rel(m.root, path)
		if err != nil || rel == "." {
			return nil
		}

		if d.IsDir() {
			if m.Ignored(rel + string(filepath.Separator)) {
				return filepath.SkipDir
			}
			return nil
		}

		if m.Include(rel) {
			files = append(files, filepath.ToSlash(rel))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", m.root, err)
	}

	sort.Strings(files)
	return files, nil
}

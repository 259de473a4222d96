package resource

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
)

var (
	// ErrNotFound is returned when the requested file does not exist.
	ErrNotFound = errors.New("resource not found")

	// ErrParse is returned when the file content cannot be parsed.
	ErrParse = errors.New("resource parse error")
)

// Kind returns the short classification used in tool error payloads.
func Kind(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrParse):
		return "parse_error"
	default:
		return "read_error"
	}
}

func readFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return data, nil
}

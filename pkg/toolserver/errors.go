package toolserver

import "fmt"

// ToolError is a tool-level failure. It is returned to the caller as an
// isError result carrying Kind, never as a JSON-RPC error.
type ToolError struct {
	Kind string
	Err  error
}

func (e *ToolError) Error() string {
	return e.Err.Error()
}

func (e *ToolError) Unwrap() error {
	return e.Err
}

func toolErrorf(kind, format string, args ...any) *ToolError {
	return &ToolError{Kind: kind, Err: fmt.Errorf(format, args...)}
}

package agent

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"syscall"
)

// BackendUnreachableError reports that the LLM backend could not be reached:
// connection refused, DNS failure or a request timeout.
type BackendUnreachableError struct {
	URL string
	Err error
}

func (e *BackendUnreachableError) Error() string {
	return fmt.Sprintf("cannot reach LLM backend at %s: %v", e.URL, e.Err)
}

func (e *BackendUnreachableError) Unwrap() error {
	return e.Err
}

// BackendResponseError reports that the backend answered but the answer was
// unusable: an HTTP error status, a malformed body or no choices.
type BackendResponseError struct {
	StatusCode int
	Err        error
}

func (e *BackendResponseError) Error() string {
	return e.Err.Error()
}

func (e *BackendResponseError) Unwrap() error {
	return e.Err
}

// IterationCeilingError is returned when the model keeps requesting tools
// after the configured number of rounds.
type IterationCeilingError struct {
	Ceiling int
}

func (e *IterationCeilingError) Error() string {
	return fmt.Sprintf("reached the maximum of %d tool-calling rounds without a final answer", e.Ceiling)
}

// UnknownToolError is returned when the model requests a tool that was not
// discovered on the tool server.
type UnknownToolError struct {
	Name string
}

func (e *UnknownToolError) Error() string {
	return fmt.Sprintf("model requested unknown tool %q", e.Name)
}

// classifyBackendError converts a provider transport error into a
// BackendUnreachableError or BackendResponseError. Cancellation by the caller
// is returned unchanged.
func classifyBackendError(baseURL string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}

	var unreachable *BackendUnreachableError
	var response *BackendResponseError
	if errors.As(err, &unreachable) || errors.As(err, &response) {
		return err
	}

	if isUnreachable(err) {
		return &BackendUnreachableError{URL: baseURL, Err: err}
	}
	return &BackendResponseError{Err: err}
}

func isUnreachable(err error) bool {
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

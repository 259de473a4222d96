package toolclient

import (
	"errors"
	"fmt"
)

// ErrClosed is returned for calls on a closed or broken connection.
var ErrClosed = errors.New("tool client connection closed")

// TransportUnavailableError reports that the tool server could not be reached
// or did not complete the handshake.
type TransportUnavailableError struct {
	URL string
	Err error
}

func (e *TransportUnavailableError) Error() string {
	return fmt.Sprintf("tool server unavailable at %s: %v", e.URL, e.Err)
}

func (e *TransportUnavailableError) Unwrap() error {
	return e.Err
}

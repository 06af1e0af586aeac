package extractor

import (
	"errors"
	"fmt"
)

// BackendError is a non-2xx answer from the extraction backend. Message is whatever
// the backend put in its `message` field and may be empty.
type BackendError struct {
	StatusCode int
	Message    string
}

func (e *BackendError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("extraction backend returned HTTP %d", e.StatusCode)
	}

	return fmt.Sprintf("extraction backend returned HTTP %d: %s", e.StatusCode, e.Message)
}

// TransportError covers everything between building the request and decoding the body:
// unreachable backend, cancelled context, malformed JSON. Its text is the cause's text.
type TransportError struct {
	Operation string // "send_request", "decode_response", ...
	Err       error
}

func (e *TransportError) Error() string {
	if e.Err == nil {
		return ""
	}

	return e.Err.Error()
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// AsBackendError extracts a backend-reported failure from err's chain.
func AsBackendError(err error) (*BackendError, bool) {
	var be *BackendError
	if errors.As(err, &be) {
		return be, true
	}

	return nil, false
}

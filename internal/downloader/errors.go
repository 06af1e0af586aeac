package downloader

import "fmt"

// RetrievalError is a failed file retrieval. StatusCode is set when the server answered
// with a non-2xx status and is 0 otherwise.
type RetrievalError struct {
	Name       string
	StatusCode int
	Reason     string
	Err        error
}

func (e *RetrievalError) Error() string {
	msg := fmt.Sprintf("retrieval of %s failed: %s", e.Name, e.Reason)

	if e.StatusCode > 0 {
		msg = fmt.Sprintf("%s (HTTP %d)", msg, e.StatusCode)
	}

	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}

	return msg
}

func (e *RetrievalError) Unwrap() error {
	return e.Err
}

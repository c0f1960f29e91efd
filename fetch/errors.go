package fetch

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for fetch operations.
var (
	ErrInvalidResource = errors.New("fetch: invalid resource")
	ErrNilProducer     = errors.New("fetch: producer is nil")
	ErrNilResponse     = errors.New("fetch: response is nil")
	ErrInvalidJSON     = errors.New("fetch: response is not valid JSON")
)

// StatusError is a non-2xx HTTP response.
type StatusError struct {
	Method string
	URL    string
	Status int

	// Body holds the start of the response body.
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("fetch: %s %s: HTTP %d %s", e.Method, e.URL, e.Status, http.StatusText(e.Status))
}

// Retryable reports whether repeating the request could succeed. Client
// errors are final except request timeout and rate limiting.
func (e *StatusError) Retryable() bool {
	if e.Status >= 400 && e.Status < 500 {
		return e.Status == http.StatusRequestTimeout || e.Status == http.StatusTooManyRequests
	}
	return true
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Status
	}
	return 0
}

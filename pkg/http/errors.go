package http

import (
	"errors"
	"fmt"
)

// ErrReauthRequired is returned when the remote keeps rejecting the session
// and refreshing it did not help. The stored token set has been removed by
// the time callers see it.
var ErrReauthRequired = errors.New("re-authorization required")

// NetworkError means no HTTP response was received.
type NetworkError struct {
	Method string
	URL    string
	Err    error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error: %s %s: %v", e.Method, e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// HTTPError is a response with a status other than 200. Body holds the raw
// response so callers can inspect validation details.
type HTTPError struct {
	StatusCode int
	Method     string
	URL        string
	Body       []byte
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP error (%d): %s %s", e.StatusCode, e.Method, e.URL)
}

// InvalidResponseError is a 200 response whose body is not a JSON object.
type InvalidResponseError struct {
	URL  string
	Body []byte
}

func (e *InvalidResponseError) Error() string {
	return fmt.Sprintf("invalid JSON response from %s", e.URL)
}

// StatusCode extracts the HTTP status from err, or 0 if err is not an
// *HTTPError.
func StatusCode(err error) int {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode
	}
	return 0
}

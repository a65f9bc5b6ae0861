// Package internal provides internal structures.
package internal

import (
	"errors"
	"fmt"
	"net/http"

	"golang.org/x/net/http2"
)

// HTTPError is an error from performing an HTTP request.
type HTTPError struct {
	Body       string
	StatusCode int
}

func (h HTTPError) Error() string {
	return fmt.Sprintf("received HTTP status code: %d: %s", h.StatusCode, h.Body)
}

// IsPermanentError returns true if the error is non-retriable. Client
// errors are permanent except for 429, which the API returns when the
// request rate is exceeded.
func IsPermanentError(err error) bool {
	var httpErr HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode >= 400 &&
			httpErr.StatusCode < 500 &&
			httpErr.StatusCode != http.StatusTooManyRequests
	}

	return false
}

// IsTemporaryError returns true if the error is worth retrying.
func IsTemporaryError(err error) bool {
	var httpErr HTTPError
	if errors.As(err, &httpErr) {
		return !IsPermanentError(httpErr)
	}

	var streamErr http2.StreamError
	if errors.As(err, &streamErr) && streamErr.Code == http2.ErrCodeInternal {
		return true
	}

	return false
}

// IsNotFound returns true if the error is a 404 from the API.
func IsNotFound(err error) bool {
	var httpErr HTTPError
	return errors.As(err, &httpErr) && httpErr.StatusCode == http.StatusNotFound
}

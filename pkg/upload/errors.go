package upload

import (
	"errors"
	"fmt"
)

var (
	// ErrNoURL is returned when the client has no endpoint.
	ErrNoURL = errors.New("upload: endpoint url required")

	// ErrNoName is returned when the upload has no file name.
	ErrNoName = errors.New("upload: file name required")
)

// APIError is a non-2xx answer from the pose service.
type APIError struct {
	StatusCode int
	Message    string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("upload: API error %d", e.StatusCode)
	}
	return fmt.Sprintf("upload: API error %d: %s", e.StatusCode, e.Message)
}

// IsRetryable returns true for server-side failures.
func (e *APIError) IsRetryable() bool {
	return e.StatusCode >= 500
}

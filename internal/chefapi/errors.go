package chefapi

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrMalformedPayload is returned when a backend body is not JSON, carries an
// unknown discriminant, or misses a required field.
var ErrMalformedPayload = errors.New("malformed backend payload")

// HTTPError reports a non-2xx backend response.
type HTTPError struct {
	Endpoint   string
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: backend returned %d: %s", e.Endpoint, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: backend returned %d", e.Endpoint, e.StatusCode)
}

// UserMessage is the text shown to the user for a failed call.
func UserMessage(err error, fallback string) string {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) && httpErr.Message != "" {
		return httpErr.Message
	}
	return fallback
}

// Package errors provides domain-specific error types and sentinel errors
// shared by the bot, its platform clients and its context stores.
package errors

import (
	"errors"
	"fmt"
	"net/url"
)

// Sentinel errors for common scenarios.
// Use errors.Is() to check these errors in your code.
var (
	// ErrNotFound indicates a requested resource was not found.
	ErrNotFound = errors.New("resource not found")

	// ErrRateLimitExceeded indicates rate limit has been exceeded.
	ErrRateLimitExceeded = errors.New("rate limit exceeded")

	// ErrInvalidInput indicates user provided invalid input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrTimeout indicates an operation timed out.
	ErrTimeout = errors.New("operation timed out")

	// ErrMissingCredentials indicates a client was constructed without the
	// credentials its service requires.
	ErrMissingCredentials = errors.New("missing credentials")

	// ErrUnsupportedReply indicates a route produced a value the bot cannot
	// turn into outbound text.
	ErrUnsupportedReply = errors.New("unsupported reply type")

	// ErrConflict indicates a concurrent writer changed a record first.
	ErrConflict = errors.New("write conflict")
)

// IsNotFound reports whether err wraps ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsRateLimitExceeded reports whether err wraps ErrRateLimitExceeded.
func IsRateLimitExceeded(err error) bool {
	return errors.Is(err, ErrRateLimitExceeded)
}

// IsInvalidInput reports whether err wraps ErrInvalidInput or is a ValidationError.
func IsInvalidInput(err error) bool {
	var ve *ValidationError
	return errors.Is(err, ErrInvalidInput) || errors.As(err, &ve)
}

// ValidationError represents input validation failures.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Message)
}

// NewValidationError creates a new validation error.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}

// APIError represents a non-2xx response from an outbound platform or NLU API.
type APIError struct {
	Service    string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s api error (status=%d)", e.Service, e.StatusCode)
	}
	return fmt.Sprintf("%s api error (status=%d): %s", e.Service, e.StatusCode, e.Body)
}

// NewAPIError creates a new API error. Long bodies are truncated.
func NewAPIError(service string, statusCode int, body []byte) *APIError {
	const maxBody = 512
	if len(body) > maxBody {
		body = body[:maxBody]
	}
	return &APIError{
		Service:    service,
		StatusCode: statusCode,
		Body:       string(body),
	}
}

// RedactURL drops the query string from the URL of a *url.Error in err.
// Outbound clients that authenticate through query parameters call it before
// wrapping transport errors, so tokens never reach logs or Sentry.
func RedactURL(err error) error {
	var ue *url.Error
	if !errors.As(err, &ue) {
		return err
	}
	if u, perr := url.Parse(ue.URL); perr == nil {
		u.RawQuery = ""
		u.Fragment = ""
		ue.URL = u.String()
	} else {
		ue.URL = "<redacted>"
	}
	return err
}

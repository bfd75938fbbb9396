// Package errors provides structured error types for the puzzle backbone.
package errors

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Sentinel errors for common failure modes.
var (
	ErrTimeout       = errors.New("operation timed out")
	ErrRateLimit     = errors.New("rate limit exceeded")
	ErrNotFound      = errors.New("resource not found")
	ErrInvalidInput  = errors.New("invalid input")
	ErrUnavailable   = errors.New("service unavailable")
	ErrEmptyResponse = errors.New("empty model response")
	ErrNoCredentials = errors.New("no llm credentials configured")
)

// APIError represents an error from an external API call (LLM backend, storage).
type APIError struct {
	Service    string
	StatusCode int
	Message    string
	Err        error
}

func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s API error (status %d): %s: %v", e.Service, e.StatusCode, e.Message, e.Err)
	}
	return fmt.Sprintf("%s API error (status %d): %s", e.Service, e.StatusCode, e.Message)
}

func (e *APIError) Unwrap() error { return e.Err }

// NewAPIError creates a new API error.
func NewAPIError(service string, statusCode int, message string) *APIError {
	return &APIError{Service: service, StatusCode: statusCode, Message: message}
}

var statusRe = regexp.MustCompile(`\b(4\d\d|5\d\d)\b`)

// Classify turns an opaque backend error into an *APIError when its text
// carries enough information (an HTTP status or a well-known status word).
// Errors that are already classified, or carry no signal, are returned as is.
func Classify(service string, err error) error {
	if err == nil {
		return nil
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return err
	}
	msg := err.Error()
	upper := strings.ToUpper(msg)
	switch {
	case strings.Contains(upper, "RESOURCE_EXHAUSTED"), strings.Contains(upper, "QUOTA"),
		strings.Contains(upper, "RATE LIMIT"), strings.Contains(upper, "TOO MANY REQUESTS"):
		return &APIError{Service: service, StatusCode: 429, Message: "rate limited", Err: err}
	case strings.Contains(upper, "UNAVAILABLE"):
		return &APIError{Service: service, StatusCode: 503, Message: "unavailable", Err: err}
	}
	if m := statusRe.FindString(msg); m != "" {
		code, _ := strconv.Atoi(m)
		return &APIError{Service: service, StatusCode: code, Message: "backend error", Err: err}
	}
	return err
}

// IsRetryable returns true if the error is likely transient and worth retrying.
// Rate limits (429) and server faults (500, 503) qualify; everything else
// propagates immediately.
func IsRetryable(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case 429, 500, 503:
			return true
		}
	}
	return errors.Is(err, ErrTimeout) || errors.Is(err, ErrRateLimit) || errors.Is(err, ErrUnavailable)
}

// IsRateLimit reports whether err represents a quota or rate-limit rejection.
func IsRateLimit(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == 429 {
		return true
	}
	return errors.Is(err, ErrRateLimit)
}

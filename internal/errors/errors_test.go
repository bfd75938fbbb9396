package errors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAPIError_Error(t *testing.T) {
	err := NewAPIError("gemini", 403, "forbidden")
	assert.Contains(t, err.Error(), "gemini")
	assert.Contains(t, err.Error(), "403")
	assert.Contains(t, err.Error(), "forbidden")
}

func TestAPIError_WithWrapped(t *testing.T) {
	inner := errors.New("connection refused")
	err := &APIError{Service: "redis", StatusCode: 500, Message: "fail", Err: inner}
	assert.ErrorIs(t, err, inner)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(NewAPIError("llm", 429, "rate limit")))
	assert.True(t, IsRetryable(NewAPIError("llm", 500, "internal")))
	assert.True(t, IsRetryable(NewAPIError("llm", 503, "unavailable")))
	assert.True(t, IsRetryable(ErrTimeout))
	assert.True(t, IsRetryable(ErrRateLimit))
	assert.True(t, IsRetryable(ErrUnavailable))

	assert.False(t, IsRetryable(NewAPIError("llm", 400, "bad request")))
	assert.False(t, IsRetryable(NewAPIError("llm", 401, "unauth")))
	assert.False(t, IsRetryable(NewAPIError("llm", 404, "not found")))
	assert.False(t, IsRetryable(ErrInvalidInput))
	assert.False(t, IsRetryable(errors.New("boom")))
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		in   error
		code int
	}{
		{"resource exhausted", errors.New("Error 8: RESOURCE_EXHAUSTED: try later"), 429},
		{"quota", errors.New("you exceeded your current quota"), 429},
		{"http status", errors.New("upstream returned 503 Service Unavailable"), 503},
		{"server fault", errors.New("got 500 from backend"), 500},
		{"client fault", errors.New("status 400 invalid argument"), 400},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Classify("gemini", tt.in)
			var apiErr *APIError
			require.True(t, errors.As(err, &apiErr))
			assert.Equal(t, tt.code, apiErr.StatusCode)
			assert.ErrorIs(t, err, tt.in)
		})
	}
}

func TestClassify_Passthrough(t *testing.T) {
	assert.Nil(t, Classify("x", nil))

	plain := errors.New("json: cannot unmarshal")
	assert.Equal(t, plain, Classify("x", plain))

	already := NewAPIError("x", 418, "teapot")
	assert.Equal(t, error(already), Classify("y", already))
}

func TestIsRateLimit(t *testing.T) {
	assert.True(t, IsRateLimit(Classify("llm", errors.New("RESOURCE_EXHAUSTED"))))
	assert.True(t, IsRateLimit(ErrRateLimit))
	assert.False(t, IsRateLimit(NewAPIError("llm", 503, "down")))
}

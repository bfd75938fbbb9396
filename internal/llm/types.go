// Package llm defines the language model client used by every agent.
// Backends (Gemini, Anthropic, the deterministic mock) are interchangeable
// behind Client; cross-cutting behavior (retry, rate limiting, caching,
// instrumentation) is layered on as Middleware.
package llm

import (
	"context"
	"encoding/json"
)

// Tiers describe the cost/quality class of the configured model.
const (
	TierFast     = "fast"
	TierStandard = "standard"
	TierMock     = "mock"
)

// Image is an inline image attached to a prompt.
type Image struct {
	MIMEType string
	Data     []byte
}

// Request is a single generation call as seen by a Backend.
type Request struct {
	Prompt string
	Images []Image
	// Schema is a JSON Schema the response must follow. Nil requests free text.
	Schema      json.RawMessage
	Temperature *float32
	MaxTokens   int
	// Task names the agent step making the call, for logs and metrics.
	Task string
}

// Structured reports whether the request expects a JSON response.
func (r Request) Structured() bool { return len(r.Schema) > 0 }

// Option adjusts a Request.
type Option func(*Request)

// WithTemperature sets the sampling temperature.
func WithTemperature(t float32) Option {
	return func(r *Request) { r.Temperature = &t }
}

// WithMaxTokens caps the response length.
func WithMaxTokens(n int) Option {
	return func(r *Request) { r.MaxTokens = n }
}

// WithTask labels the call with the agent step that made it.
func WithTask(task string) Option {
	return func(r *Request) { r.Task = task }
}

// Backend performs the actual model call.
type Backend interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// BackendFunc adapts a function to Backend.
type BackendFunc func(ctx context.Context, req Request) (string, error)

func (f BackendFunc) Complete(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}

// Middleware wraps a Backend with extra behavior.
type Middleware func(Backend) Backend

// Client is the contract agents program against.
type Client interface {
	// Generate returns free text.
	Generate(ctx context.Context, prompt string, opts ...Option) (string, error)
	// GenerateStructured returns a JSON document shaped by schema.
	GenerateStructured(ctx context.Context, prompt string, schema json.RawMessage, opts ...Option) (string, error)
	GenerateWithImages(ctx context.Context, prompt string, images []Image, opts ...Option) (string, error)
	GenerateStructuredWithImages(ctx context.Context, prompt string, images []Image, schema json.RawMessage, opts ...Option) (string, error)

	IsMock() bool
	Model() string
	Tier() string
}

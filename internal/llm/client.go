package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	perrors "github.com/p-blackswan/puzzlecanvas/internal/errors"
	"github.com/p-blackswan/puzzlecanvas/lru"
)

type client struct {
	backend Backend
	model   string
	tier    string
	mock    bool
	cache   *lru.Cache[string, string]
}

// Forgetter drops a cached reply so the next identical request reaches the
// backend. Structured uses it when a reply fails to decode or validate.
type Forgetter interface {
	Forget(prompt string, schema json.RawMessage, opts ...Option)
}

// ClientOption configures a Client built by NewClient.
type ClientOption func(*client)

// WithTier overrides the reported tier.
func WithTier(tier string) ClientOption {
	return func(c *client) { c.tier = tier }
}

// WithMiddleware wraps the backend. The first middleware is outermost.
func WithMiddleware(mw ...Middleware) ClientOption {
	return func(c *client) {
		for i := len(mw) - 1; i >= 0; i-- {
			c.backend = mw[i](c.backend)
		}
	}
}

// WithCache names the cache installed through Cached so that Forget can
// evict rejected replies from it.
func WithCache(cache *lru.Cache[string, string]) ClientOption {
	return func(c *client) { c.cache = cache }
}

// NewClient exposes backend as a Client reporting model.
func NewClient(backend Backend, model string, opts ...ClientOption) Client {
	c := &client{backend: backend, model: model, tier: TierStandard}
	if _, ok := backend.(*Mock); ok {
		c.mock = true
		c.tier = TierMock
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *client) Generate(ctx context.Context, prompt string, opts ...Option) (string, error) {
	return c.do(ctx, Request{Prompt: prompt}, opts)
}

func (c *client) GenerateStructured(ctx context.Context, prompt string, schema json.RawMessage, opts ...Option) (string, error) {
	return c.do(ctx, Request{Prompt: prompt, Schema: schema}, opts)
}

func (c *client) GenerateWithImages(ctx context.Context, prompt string, images []Image, opts ...Option) (string, error) {
	return c.do(ctx, Request{Prompt: prompt, Images: images}, opts)
}

func (c *client) GenerateStructuredWithImages(ctx context.Context, prompt string, images []Image, schema json.RawMessage, opts ...Option) (string, error) {
	return c.do(ctx, Request{Prompt: prompt, Images: images, Schema: schema}, opts)
}

func (c *client) do(ctx context.Context, req Request, opts []Option) (string, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return "", fmt.Errorf("empty prompt: %w", perrors.ErrInvalidInput)
	}
	for _, o := range opts {
		o(&req)
	}
	out, err := c.backend.Complete(ctx, req)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(out) == "" {
		return "", perrors.ErrEmptyResponse
	}
	return out, nil
}

// Forget evicts the reply cached for the request the arguments describe.
func (c *client) Forget(prompt string, schema json.RawMessage, opts ...Option) {
	if c.cache == nil {
		return
	}
	req := Request{Prompt: prompt, Schema: schema}
	for _, o := range opts {
		o(&req)
	}
	c.cache.Delete(cacheKey(req))
}

func (c *client) IsMock() bool  { return c.mock }
func (c *client) Model() string { return c.model }
func (c *client) Tier() string  { return c.tier }

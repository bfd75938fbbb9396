package llm

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	perrors "github.com/p-blackswan/puzzlecanvas/internal/errors"
)

const (
	anthropicAPIBase      = "https://api.anthropic.com/v1"
	anthropicAPIVersion   = "2023-06-01"
	defaultMaxTokens      = 4096
	defaultAnthropicModel = "claude-sonnet-4-5"
)

// Anthropic is a Backend on the Anthropic Messages API.
type Anthropic struct {
	apiKey    string
	baseURL   string
	model     string
	maxTokens int
	client    *http.Client
	logger    zerolog.Logger
}

// AnthropicOption configures the backend.
type AnthropicOption func(*Anthropic)

func WithAnthropicModel(model string) AnthropicOption {
	return func(p *Anthropic) {
		if model != "" {
			p.model = model
		}
	}
}

func WithAnthropicMaxTokens(n int) AnthropicOption {
	return func(p *Anthropic) { p.maxTokens = n }
}

func WithHTTPClient(c *http.Client) AnthropicOption {
	return func(p *Anthropic) { p.client = c }
}

// WithBaseURL points the backend at a different API root (tests, proxies).
func WithBaseURL(u string) AnthropicOption {
	return func(p *Anthropic) { p.baseURL = u }
}

func WithAnthropicLogger(l zerolog.Logger) AnthropicOption {
	return func(p *Anthropic) { p.logger = l.With().Str("component", "llm.anthropic").Logger() }
}

// NewAnthropic constructs a new Anthropic backend.
func NewAnthropic(apiKey string, opts ...AnthropicOption) *Anthropic {
	p := &Anthropic{
		apiKey:    apiKey,
		baseURL:   anthropicAPIBase,
		model:     defaultAnthropicModel,
		maxTokens: defaultMaxTokens,
		client:    &http.Client{Timeout: 120 * time.Second},
		logger:    zerolog.Nop(),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Model returns the model identifier.
func (p *Anthropic) Model() string { return p.model }

// ---- Anthropic wire types ----

type anthropicImageSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

type anthropicContentBlock struct {
	Type   string                `json:"type"`
	Text   string                `json:"text,omitempty"`
	Source *anthropicImageSource `json:"source,omitempty"`
}

type anthropicMessage struct {
	Role    string                  `json:"role"`
	Content []anthropicContentBlock `json:"content"`
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	System      string             `json:"system,omitempty"`
	Messages    []anthropicMessage `json:"messages"`
	Temperature *float32           `json:"temperature,omitempty"`
}

type anthropicResponse struct {
	Content    []anthropicContentBlock `json:"content"`
	StopReason string                  `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

const jsonSystemPrompt = "Respond with a single JSON document and nothing else. It must match this JSON Schema:\n"

func (p *Anthropic) buildRequest(req Request) anthropicRequest {
	maxTok := p.maxTokens
	if req.MaxTokens > 0 {
		maxTok = req.MaxTokens
	}
	blocks := make([]anthropicContentBlock, 0, len(req.Images)+1)
	for _, img := range req.Images {
		blocks = append(blocks, anthropicContentBlock{
			Type: "image",
			Source: &anthropicImageSource{
				Type:      "base64",
				MediaType: img.MIMEType,
				Data:      base64.StdEncoding.EncodeToString(img.Data),
			},
		})
	}
	blocks = append(blocks, anthropicContentBlock{Type: "text", Text: req.Prompt})

	ar := anthropicRequest{
		Model:       p.model,
		MaxTokens:   maxTok,
		Messages:    []anthropicMessage{{Role: "user", Content: blocks}},
		Temperature: req.Temperature,
	}
	if req.Structured() {
		ar.System = jsonSystemPrompt + string(req.Schema)
	}
	return ar
}

// Complete sends a blocking Messages API request.
func (p *Anthropic) Complete(ctx context.Context, req Request) (string, error) {
	ar := p.buildRequest(req)
	body, err := json.Marshal(ar)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/messages", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", p.apiKey)
	httpReq.Header.Set("anthropic-version", anthropicAPIVersion)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("anthropic http: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}

	var out anthropicResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		if resp.StatusCode >= 400 {
			return "", perrors.NewAPIError("anthropic", resp.StatusCode, http.StatusText(resp.StatusCode))
		}
		return "", fmt.Errorf("unmarshal response: %w", err)
	}
	if out.Error != nil || resp.StatusCode >= 400 {
		msg := http.StatusText(resp.StatusCode)
		if out.Error != nil {
			msg = out.Error.Type + ": " + out.Error.Message
		}
		return "", perrors.NewAPIError("anthropic", resp.StatusCode, msg)
	}

	var text string
	for _, block := range out.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}

	p.logger.Debug().
		Str("model", ar.Model).
		Str("task", req.Task).
		Str("stop_reason", out.StopReason).
		Int("in_tokens", out.Usage.InputTokens).
		Int("out_tokens", out.Usage.OutputTokens).
		Msg("anthropic complete")
	return text, nil
}

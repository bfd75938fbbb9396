package llm

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"google.golang.org/genai"

	perrors "github.com/p-blackswan/puzzlecanvas/internal/errors"
)

const defaultGeminiModel = "gemini-2.5-flash"

// Gemini is a Backend on the Google GenAI SDK.
type Gemini struct {
	client *genai.Client
	model  string
	logger zerolog.Logger
}

// NewGemini creates a Gemini backend. An empty model selects the default.
func NewGemini(ctx context.Context, apiKey, model string, logger zerolog.Logger) (*Gemini, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini: %w", perrors.ErrNoCredentials)
	}
	if model == "" {
		model = defaultGeminiModel
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return &Gemini{
		client: client,
		model:  model,
		logger: logger.With().Str("component", "llm.gemini").Logger(),
	}, nil
}

// Model returns the model identifier.
func (g *Gemini) Model() string { return g.model }

// Complete implements Backend.
func (g *Gemini) Complete(ctx context.Context, req Request) (string, error) {
	parts := make([]*genai.Part, 0, len(req.Images)+1)
	for _, img := range req.Images {
		parts = append(parts, genai.NewPartFromBytes(img.Data, img.MIMEType))
	}
	parts = append(parts, genai.NewPartFromText(req.Prompt))
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}

	cfg := &genai.GenerateContentConfig{}
	if req.Temperature != nil {
		cfg.Temperature = genai.Ptr(*req.Temperature)
	}
	if req.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(req.MaxTokens)
	}
	if req.Structured() {
		cfg.ResponseMIMEType = "application/json"
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, cfg)
	if err != nil {
		return "", perrors.Classify("gemini", fmt.Errorf("generate content: %w", err))
	}
	text := resp.Text()
	if text == "" {
		return "", perrors.ErrEmptyResponse
	}
	ev := g.logger.Debug().Str("model", g.model).Str("task", req.Task)
	if resp.UsageMetadata != nil {
		ev = ev.Int32("in_tokens", resp.UsageMetadata.PromptTokenCount).
			Int32("out_tokens", resp.UsageMetadata.CandidatesTokenCount)
	}
	ev.Msg("gemini complete")
	return text, nil
}

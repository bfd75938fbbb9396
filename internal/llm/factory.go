package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/p-blackswan/puzzlecanvas/internal/retry"
	"github.com/p-blackswan/puzzlecanvas/lru"
)

// Providers accepted by Settings.Provider.
const (
	ProviderAuto      = "auto"
	ProviderGemini    = "gemini"
	ProviderAnthropic = "anthropic"
	ProviderMock      = "mock"
)

// Settings selects and tunes a backend.
type Settings struct {
	Provider        string
	GeminiAPIKey    string
	AnthropicAPIKey string
	Model           string
	Tier            string
	RateLimitRPS    float64
	CacheSize       int
	CacheTTL        time.Duration
	Retry           retry.Config
	Observer        Observer
}

// ResolveProvider applies the auto rule: Gemini when its key is set, then
// Anthropic, otherwise the mock.
func (s Settings) ResolveProvider() string {
	switch s.Provider {
	case ProviderGemini, ProviderAnthropic, ProviderMock:
		return s.Provider
	}
	switch {
	case s.GeminiAPIKey != "":
		return ProviderGemini
	case s.AnthropicAPIKey != "":
		return ProviderAnthropic
	}
	return ProviderMock
}

// New builds a Client from settings. The mock is chosen whenever no
// credential is configured for the resolved provider.
func New(ctx context.Context, s Settings, logger zerolog.Logger) (Client, error) {
	provider := s.ResolveProvider()

	var (
		backend Backend
		model   string
	)
	switch provider {
	case ProviderGemini:
		if s.GeminiAPIKey == "" {
			provider = ProviderMock
			break
		}
		g, err := NewGemini(ctx, s.GeminiAPIKey, s.Model, logger)
		if err != nil {
			return nil, fmt.Errorf("gemini backend: %w", err)
		}
		backend, model = g, g.Model()
	case ProviderAnthropic:
		if s.AnthropicAPIKey == "" {
			provider = ProviderMock
			break
		}
		a := NewAnthropic(s.AnthropicAPIKey, WithAnthropicModel(s.Model), WithAnthropicLogger(logger))
		backend, model = a, a.Model()
	}

	if provider == ProviderMock {
		logger.Warn().Msg("No LLM credentials configured, using mock client")
		backend, model = NewMock(), "mock"
	}

	var (
		mw   []Middleware
		opts []ClientOption
	)
	if s.Observer != nil {
		mw = append(mw, Observed(s.Observer))
	}
	if s.CacheSize > 0 {
		cache := lru.New[string, string](s.CacheSize, s.CacheTTL)
		mw = append(mw, Cached(cache))
		opts = append(opts, WithCache(cache))
	}
	if provider != ProviderMock {
		cfg := s.Retry
		if cfg.MaxRetries == 0 && cfg.BaseDelay == 0 {
			cfg = retry.DefaultConfig()
		}
		mw = append(mw, Retrying(cfg, provider, logger))
		if s.RateLimitRPS > 0 {
			mw = append(mw, RateLimited(NewLimiter(s.RateLimitRPS)))
		}
	}

	opts = append(opts, WithMiddleware(mw...))
	if s.Tier != "" && provider != ProviderMock {
		opts = append(opts, WithTier(s.Tier))
	}

	logger.Info().Str("provider", provider).Str("model", model).Msg("LLM client ready")
	return NewClient(backend, model, opts...), nil
}

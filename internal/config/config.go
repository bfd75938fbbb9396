package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/p-blackswan/puzzlecanvas/internal/llm"
	"github.com/p-blackswan/puzzlecanvas/internal/model"
	"github.com/p-blackswan/puzzlecanvas/internal/storage"
)

// Prefix is the environment variable prefix, e.g. PUZZLE_HTTP_ADDR.
const Prefix = "PUZZLE"

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// General
	Environment string `envconfig:"ENVIRONMENT" default:"development"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=trace debug info warn error"`
	HTTPAddr    string `envconfig:"HTTP_ADDR" default:":8080"`
	ProjectID   string `envconfig:"PROJECT_ID" default:"default"`

	// HTTP API
	CORSOrigins        string `envconfig:"CORS_ORIGINS"`
	HTTPRateLimitRPS   int    `envconfig:"HTTP_RATE_LIMIT_RPS" default:"50" validate:"gte=0"`
	HTTPRateLimitBurst int    `envconfig:"HTTP_RATE_LIMIT_BURST" default:"100" validate:"gte=0"`

	// LLM (all optional; without a key the mock backend answers)
	LLMProvider     string        `envconfig:"LLM_PROVIDER" default:"auto" validate:"oneof=auto gemini anthropic mock"`
	GeminiAPIKey    string        `envconfig:"GEMINI_API_KEY"`
	AnthropicAPIKey string        `envconfig:"ANTHROPIC_API_KEY"`
	Model           string        `envconfig:"MODEL"`
	Tier            string        `envconfig:"TIER"`
	LLMRateLimitRPS float64       `envconfig:"LLM_RATE_LIMIT_RPS" default:"2" validate:"gte=0"`
	LLMCacheSize    int           `envconfig:"LLM_CACHE_SIZE" default:"256" validate:"gte=0"`
	LLMCacheTTL     time.Duration `envconfig:"LLM_CACHE_TTL" default:"10m"`

	// Orchestration
	DebounceWindow       time.Duration `envconfig:"DEBOUNCE_WINDOW" default:"500ms" validate:"gt=0"`
	QuadrantTimeout      time.Duration `envconfig:"QUADRANT_TIMEOUT" default:"15s" validate:"gt=0"`
	MaxPiecesPerQuadrant int           `envconfig:"MAX_PIECES_PER_QUADRANT" default:"5" validate:"gte=1,lte=20"`

	// Context store
	HistoryLimit      int           `envconfig:"HISTORY_LIMIT" default:"100" validate:"gte=0"` // 0 keeps every snapshot
	StorageBackend    string        `envconfig:"STORAGE_BACKEND" default:"none" validate:"oneof=none memory sqlite redis"`
	SQLitePath        string        `envconfig:"SQLITE_PATH" default:"puzzlecanvas.db" validate:"required_if=StorageBackend sqlite"`
	RedisURL          string        `envconfig:"REDIS_URL" validate:"required_if=StorageBackend redis"`
	RedisTTL          time.Duration `envconfig:"REDIS_TTL" default:"0s"`
	AutoPersistWindow time.Duration `envconfig:"AUTO_PERSIST_WINDOW" default:"2s"`
	SeedFile          string        `envconfig:"SEED_FILE"`
}

// IsDevelopment reports whether the service runs in development mode.
func (c *Config) IsDevelopment() bool {
	return strings.EqualFold(c.Environment, "development")
}

// LLMSettings maps the LLM section onto llm.Settings.
func (c *Config) LLMSettings(observer llm.Observer) llm.Settings {
	return llm.Settings{
		Provider:        c.LLMProvider,
		GeminiAPIKey:    c.GeminiAPIKey,
		AnthropicAPIKey: c.AnthropicAPIKey,
		Model:           c.Model,
		Tier:            c.Tier,
		RateLimitRPS:    c.LLMRateLimitRPS,
		CacheSize:       c.LLMCacheSize,
		CacheTTL:        c.LLMCacheTTL,
		Observer:        observer,
	}
}

// StorageOptions maps the storage section onto storage.Options.
func (c *Config) StorageOptions() storage.Options {
	return storage.Options{
		Backend:    c.StorageBackend,
		ProjectID:  c.ProjectID,
		SQLitePath: c.SQLitePath,
		RedisURL:   c.RedisURL,
		RedisTTL:   c.RedisTTL,
	}
}

// Validate checks value ranges and cross-field requirements.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Load reads configuration from PUZZLE_* environment variables.
func Load() (*Config, error) {
	return LoadWithPrefix(Prefix)
}

// LoadWithPrefix reads configuration with a prefix.
func LoadWithPrefix(prefix string) (*Config, error) {
	var cfg Config
	if err := envconfig.Process(prefix, &cfg); err != nil {
		return nil, fmt.Errorf("loading config with prefix %s: %w", prefix, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Seed is the optional YAML document a fresh project starts from.
type Seed struct {
	Project   model.Project    `yaml:"project"`
	Fragments []model.Fragment `yaml:"fragments"`
}

// LoadSeed reads a seed file. Fragments without a type are TEXT.
func LoadSeed(path string) (*Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading seed %s: %w", path, err)
	}
	var seed Seed
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("parsing seed %s: %w", path, err)
	}
	for i := range seed.Fragments {
		f := &seed.Fragments[i]
		if f.Type == "" {
			f.Type = model.FragmentTypeText
		}
		if strings.TrimSpace(f.Content) == "" && strings.TrimSpace(f.Title) == "" {
			return nil, fmt.Errorf("seed %s: fragment %d has neither title nor content", path, i)
		}
	}
	return &seed, nil
}

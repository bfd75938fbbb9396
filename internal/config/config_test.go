// Package config tests.
package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/p-blackswan/puzzlecanvas/internal/model"
	"github.com/p-blackswan/puzzlecanvas/internal/storage"
)

func TestLoad_Defaults(t *testing.T) {
	os.Clearenv()
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "development", cfg.Environment)
	assert.True(t, cfg.IsDevelopment())
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "auto", cfg.LLMProvider)
	assert.Equal(t, 500*time.Millisecond, cfg.DebounceWindow)
	assert.Equal(t, 15*time.Second, cfg.QuadrantTimeout)
	assert.Equal(t, 5, cfg.MaxPiecesPerQuadrant)
	assert.Equal(t, 100, cfg.HistoryLimit)
	assert.Equal(t, storage.BackendNone, cfg.StorageBackend)
	assert.Equal(t, 2*time.Second, cfg.AutoPersistWindow)
}

func TestLoad_FromEnv(t *testing.T) {
	os.Clearenv()
	t.Setenv("PUZZLE_HTTP_ADDR", ":9090")
	t.Setenv("PUZZLE_GEMINI_API_KEY", "g-key")
	t.Setenv("PUZZLE_DEBOUNCE_WINDOW", "250ms")
	t.Setenv("PUZZLE_STORAGE_BACKEND", "sqlite")
	t.Setenv("PUZZLE_SQLITE_PATH", "/tmp/canvas.db")
	t.Setenv("PUZZLE_PROJECT_ID", "lamp")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.HTTPAddr)
	assert.Equal(t, 250*time.Millisecond, cfg.DebounceWindow)

	s := cfg.LLMSettings(nil)
	assert.Equal(t, "g-key", s.GeminiAPIKey)
	assert.Equal(t, "gemini", s.ResolveProvider())

	opts := cfg.StorageOptions()
	assert.Equal(t, storage.BackendSQLite, opts.Backend)
	assert.Equal(t, "/tmp/canvas.db", opts.SQLitePath)
	assert.Equal(t, "lamp", opts.ProjectID)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"unknown provider", map[string]string{"PUZZLE_LLM_PROVIDER": "openai"}, "LLMProvider"},
		{"unknown backend", map[string]string{"PUZZLE_STORAGE_BACKEND": "s3"}, "StorageBackend"},
		{"redis without url", map[string]string{"PUZZLE_STORAGE_BACKEND": "redis"}, "RedisURL"},
		{"zero pieces", map[string]string{"PUZZLE_MAX_PIECES_PER_QUADRANT": "0"}, "MaxPiecesPerQuadrant"},
		{"bad duration", map[string]string{"PUZZLE_QUADRANT_TIMEOUT": "soon"}, "QUADRANT_TIMEOUT"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os.Clearenv()
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadSeed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seed.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
project:
  id: lamp
  title: Bedside lamp
  processAim: Design a lamp that feels like home
fragments:
  - id: f1
    title: Brass lamp
    content: A brass lamp with a warm glow
  - id: f2
    type: LINK
    content: https://example.com/moodboard
    position: {x: 120, y: 40}
`), 0o600))

	seed, err := LoadSeed(path)
	require.NoError(t, err)
	assert.Equal(t, model.Project{ID: "lamp", Title: "Bedside lamp", ProcessAim: "Design a lamp that feels like home"}, seed.Project)
	require.Len(t, seed.Fragments, 2)
	assert.Equal(t, model.FragmentTypeText, seed.Fragments[0].Type)
	assert.Equal(t, model.FragmentTypeLink, seed.Fragments[1].Type)
	assert.Equal(t, model.Position{X: 120, Y: 40}, seed.Fragments[1].Position)
}

func TestLoadSeed_Errors(t *testing.T) {
	_, err := LoadSeed(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "empty-fragment.yaml")
	require.NoError(t, os.WriteFile(path, []byte("fragments:\n  - id: f1\n"), 0o600))
	_, err = LoadSeed(path)
	assert.ErrorContains(t, err, "neither title nor content")
}

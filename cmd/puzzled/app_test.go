package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/p-blackswan/puzzlecanvas/internal/config"
)

func writeSeed(t *testing.T, title string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "seed.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
project:
  id: ignored
  title: `+title+`
  processAim: Design a lamp that feels like home
fragments:
  - id: f1
    content: A brass lamp with a warm glow
  - content: Frosted glass shade
`), 0o600))
	return path
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.LoadWithPrefix("PUZZLED_APP_TEST")
	require.NoError(t, err)
	cfg.LLMProvider = "mock"
	cfg.ProjectID = "lamp"
	return cfg
}

func TestNewApp_SeedIsBaseline(t *testing.T) {
	cfg := testConfig(t)
	cfg.SeedFile = writeSeed(t, "Bedside lamp")

	a, err := newApp(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { a.close(context.Background(), zerolog.Nop()) })

	snap := a.store.State()
	assert.Equal(t, "lamp", snap.Project.ID)
	assert.Equal(t, "Bedside lamp", snap.Project.Title)
	assert.Equal(t, "Design a lamp that feels like home", snap.Project.ProcessAim)
	require.Len(t, snap.Fragments, 2)
	assert.Equal(t, "Frosted glass shade", snap.Fragments[1].Title)

	assert.False(t, a.store.CanUndo())
	assert.Nil(t, a.store.Undo())
	assert.Len(t, a.store.State().Fragments, 2)
	assert.True(t, a.client.IsMock())
}

func TestNewApp_HydrateWinsOverSeed(t *testing.T) {
	cfg := testConfig(t)
	cfg.StorageBackend = "sqlite"
	cfg.SQLitePath = filepath.Join(t.TempDir(), "canvas.db")
	cfg.SeedFile = writeSeed(t, "Bedside lamp")

	first, err := newApp(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	first.store.UpdateProcessAim("edited aim")
	first.close(context.Background(), zerolog.Nop())

	cfg.SeedFile = writeSeed(t, "Other lamp")
	second, err := newApp(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { second.close(context.Background(), zerolog.Nop()) })

	snap := second.store.State()
	assert.Equal(t, "Bedside lamp", snap.Project.Title)
	assert.Equal(t, "edited aim", snap.Project.ProcessAim)
	assert.False(t, second.store.CanUndo())
}

func TestNewApp_BadSeed(t *testing.T) {
	cfg := testConfig(t)
	cfg.SeedFile = filepath.Join(t.TempDir(), "missing.yaml")

	_, err := newApp(context.Background(), cfg, zerolog.Nop())
	assert.ErrorContains(t, err, "reading seed")
}

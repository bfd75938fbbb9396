package api

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/p-blackswan/puzzlecanvas/internal/contextstore"
	"github.com/p-blackswan/puzzlecanvas/internal/eventbus"
	"github.com/p-blackswan/puzzlecanvas/internal/health"
	"github.com/p-blackswan/puzzlecanvas/internal/metrics"
	"github.com/p-blackswan/puzzlecanvas/internal/model"
	"github.com/p-blackswan/puzzlecanvas/internal/requestid"
	"github.com/p-blackswan/puzzlecanvas/internal/storage"
	"github.com/p-blackswan/puzzlecanvas/internal/syncadapter"
	"github.com/p-blackswan/puzzlecanvas/internal/visual"
)

type testEnv struct {
	app     *fiber.App
	store   *contextstore.Store
	bus     *eventbus.Bus
	pieces  *visual.Collection
	backend *storage.Memory

	mu     sync.Mutex
	events []eventbus.Event
}

func (e *testEnv) types() []eventbus.Type {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]eventbus.Type, 0, len(e.events))
	for _, ev := range e.events {
		out = append(out, ev.Type)
	}
	return out
}

// testApp creates a Fiber app with all routes for testing.
func testApp(t *testing.T, cfg ServerConfig) *testEnv {
	t.Helper()
	logger := zerolog.Nop()
	env := &testEnv{backend: storage.NewMemory()}
	m := metrics.New()

	env.store = contextstore.New(model.Project{ID: "p1"},
		contextstore.WithLogger(logger),
		contextstore.WithStorage(env.backend),
		contextstore.WithCommitObserver(m.RecordCommit))
	env.bus = eventbus.New(logger)
	env.bus.Observe(func(ev eventbus.Event) { m.RecordEvent(string(ev.Type)) })
	env.bus.Subscribe(func(ev eventbus.Event) {
		env.mu.Lock()
		env.events = append(env.events, ev)
		env.mu.Unlock()
	})
	env.pieces = visual.NewCollection(logger)

	adapter := syncadapter.New(env.store, env.bus, logger)
	adapter.Attach(env.pieces)
	t.Cleanup(adapter.Detach)

	checker := health.NewChecker(logger)
	checker.Register("storage", health.PingCheck(env.backend))

	env.app = NewServer(cfg, Deps{
		Store:   env.store,
		Bus:     env.bus,
		Pieces:  env.pieces,
		Sync:    adapter,
		Checker: checker,
		Metrics: m,
	}, logger).App()
	return env
}

func do(t *testing.T, app *fiber.App, method, path, body string) (*http.Response, []byte) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req, _ := http.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

func TestServer_Probes(t *testing.T) {
	env := testApp(t, ServerConfig{})

	resp, body := do(t, env.app, fiber.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"ok"}`, string(body))
	assert.NotEmpty(t, resp.Header.Get(requestid.Header))

	resp, body = do(t, env.app, fiber.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `"storage":"ok"`)
}

func TestServer_EmitEvent(t *testing.T) {
	env := testApp(t, ServerConfig{})

	resp, body := do(t, env.app, fiber.MethodPost, "/api/v1/events",
		`{"type":"fragment_updated","payload":{"fragmentId":"f1"}}`)
	require.Equal(t, http.StatusAccepted, resp.StatusCode, string(body))

	var ack EventResponse
	require.NoError(t, json.Unmarshal(body, &ack))
	assert.NotEmpty(t, ack.ID)
	assert.Equal(t, "FRAGMENT_UPDATED", ack.Type)
	assert.Equal(t, []eventbus.Type{eventbus.FragmentUpdated}, env.types())

	_, metricsBody := do(t, env.app, fiber.MethodGet, "/metrics", "")
	assert.Contains(t, string(metricsBody), `puzzle_events_total{type="FRAGMENT_UPDATED"} 1`)
}

func TestServer_EmitEvent_BadRequests(t *testing.T) {
	env := testApp(t, ServerConfig{})

	tests := []struct {
		name    string
		body    string
		errType string
	}{
		{"malformed body", `{"type":`, "invalid_body"},
		{"missing type", `{"payload":{}}`, "missing_type"},
		{"payload of wrong shape", `{"type":"PIECE_CREATED","payload":{"mode":7}}`, "invalid_payload"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := do(t, env.app, fiber.MethodPost, "/api/v1/events", tt.body)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			var p ProblemDetail
			require.NoError(t, json.Unmarshal(body, &p))
			assert.Equal(t, tt.errType, p.Type)
			assert.Equal(t, "/api/v1/events", p.Instance)
		})
	}
	assert.Empty(t, env.types())
}

func TestServer_StateUndoRedo(t *testing.T) {
	env := testApp(t, ServerConfig{})

	resp, _ := do(t, env.app, fiber.MethodPost, "/api/v1/undo", "")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	env.store.UpsertFragment(model.Fragment{ID: "f1", Content: "Brass lamp"})

	resp, body := do(t, env.app, fiber.MethodGet, "/api/v1/state", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var state StateResponse
	require.NoError(t, json.Unmarshal(body, &state))
	assert.True(t, state.CanUndo)
	require.Len(t, state.State.Fragments, 1)
	assert.Equal(t, "f1", state.State.Fragments[0].ID)

	resp, body = do(t, env.app, fiber.MethodPost, "/api/v1/undo", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var hist HistoryResponse
	require.NoError(t, json.Unmarshal(body, &hist))
	assert.False(t, hist.CanUndo)
	assert.True(t, hist.CanRedo)
	assert.Empty(t, env.store.State().Fragments)

	resp, _ = do(t, env.app, fiber.MethodPost, "/api/v1/redo", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, env.store.State().Fragments, 1)

	resp, _ = do(t, env.app, fiber.MethodPost, "/api/v1/redo", "")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestServer_VisualPiecesDriveSync(t *testing.T) {
	env := testApp(t, ServerConfig{})

	resp, body := do(t, env.app, fiber.MethodPut, "/api/v1/visual-pieces", `[
		{"id":"v1","puzzleId":"pz1","mode":"FORM","category":"shape","text":"Round shade"},
		{"id":"v2","puzzleId":"pz1","mode":"MOTION","text":"Slow dimming"}
	]`)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	snap := env.store.State()
	require.Len(t, snap.PuzzlePieces, 2)
	for _, p := range snap.PuzzlePieces {
		assert.Equal(t, model.StatusPlaced, p.Status)
	}
	assert.Equal(t, []eventbus.Type{eventbus.PiecePlaced, eventbus.PiecePlaced}, env.types())

	resp, _ = do(t, env.app, fiber.MethodPut, "/api/v1/visual-pieces",
		`[{"id":"v1","puzzleId":"pz1","mode":"FORM","category":"shape","text":"Round shade"}]`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	removed, ok := env.store.State().Piece("v2")
	require.True(t, ok)
	assert.Equal(t, model.StatusDiscarded, removed.Status)

	resp, body = do(t, env.app, fiber.MethodGet, "/api/v1/visual-pieces", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `"id":"v1"`)
	assert.NotContains(t, string(body), `"id":"v2"`)

	resp, body = do(t, env.app, fiber.MethodPost, "/api/v1/sync", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var synced SyncResponse
	require.NoError(t, json.Unmarshal(body, &synced))
	assert.Zero(t, synced.Synced)

	resp, body = do(t, env.app, fiber.MethodGet, "/api/v1/preferences", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var prefs PreferencesResponse
	require.NoError(t, json.Unmarshal(body, &prefs))
	assert.NotNil(t, prefs.Hints)
}

func TestServer_VisualPieces_Invalid(t *testing.T) {
	env := testApp(t, ServerConfig{})

	resp, _ := do(t, env.app, fiber.MethodPut, "/api/v1/visual-pieces", `[{"text":"no id"}]`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = do(t, env.app, fiber.MethodPut, "/api/v1/visual-pieces", `[{"id":"v1","mode":"SOUND"}]`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Empty(t, env.pieces.Pieces())
}

func TestServer_Persist(t *testing.T) {
	env := testApp(t, ServerConfig{})
	env.store.UpsertFragment(model.Fragment{ID: "f1", Content: "Brass lamp"})

	resp, _ := do(t, env.app, fiber.MethodPost, "/api/v1/persist", "")
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, 1, env.backend.Saves())
}

func TestServer_RateLimit(t *testing.T) {
	env := testApp(t, ServerConfig{RateLimit: RateLimitConfig{RPS: 1, Burst: 2}})

	for range 2 {
		resp, _ := do(t, env.app, fiber.MethodGet, "/api/v1/state", "")
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}
	resp, body := do(t, env.app, fiber.MethodGet, "/api/v1/state", "")
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Contains(t, string(body), "rate_limit_exceeded")

	// Probes are never limited.
	resp, _ = do(t, env.app, fiber.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestServer_NotFound(t *testing.T) {
	env := testApp(t, ServerConfig{})
	resp, body := do(t, env.app, fiber.MethodGet, "/api/v1/nope", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	var p ProblemDetail
	require.NoError(t, json.Unmarshal(body, &p))
	assert.Equal(t, "request_error", p.Type)
}

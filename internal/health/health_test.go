package health

import (
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/p-blackswan/puzzlecanvas/internal/llm"
	"github.com/p-blackswan/puzzlecanvas/internal/storage"
)

type failingPinger struct{}

func (failingPinger) Ping(context.Context) error { return errors.New("connection refused") }

func TestLivenessHandler(t *testing.T) {
	app := fiber.New()
	app.Get("/healthz", LivenessHandler())

	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/healthz", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), "ok")
}

func TestChecker_AllHealthy(t *testing.T) {
	c := NewChecker(zerolog.Nop())
	c.Register("storage", PingCheck(storage.NewMemory()))
	c.Register("cache", func(ctx context.Context) Status { return StatusOK })

	assert.True(t, c.IsReady(context.Background()))
	assert.Equal(t, []string{"cache", "storage"}, c.Names())
}

func TestChecker_OneDown(t *testing.T) {
	c := NewChecker(zerolog.Nop())
	c.Register("storage", PingCheck(failingPinger{}))
	c.Register("cache", func(ctx context.Context) Status { return StatusOK })

	assert.False(t, c.IsReady(context.Background()))
	assert.Equal(t, StatusDown, c.Last()["storage"])
}

func TestChecker_MockLLMDegradedStillReady(t *testing.T) {
	c := NewChecker(zerolog.Nop())
	c.Register("llm", LLMCheck(llm.NewClient(llm.NewMock(), "mock")))

	assert.True(t, c.IsReady(context.Background()))
	assert.Equal(t, StatusDegraded, c.Last()["llm"])
}

func TestChecker_TimeoutIsDown(t *testing.T) {
	c := NewChecker(zerolog.Nop())
	c.SetTimeout(20 * time.Millisecond)
	c.Register("slow", func(ctx context.Context) Status {
		<-ctx.Done()
		time.Sleep(50 * time.Millisecond)
		return StatusOK
	})

	start := time.Now()
	results := c.RunAll(context.Background())
	assert.Equal(t, StatusDown, results["slow"])
	assert.Less(t, time.Since(start), 50*time.Millisecond)
}

func TestChecker_PanicIsDown(t *testing.T) {
	c := NewChecker(zerolog.Nop())
	c.Register("broken", func(context.Context) Status { panic("boom") })
	assert.False(t, c.IsReady(context.Background()))
}

func TestChecker_NoChecks(t *testing.T) {
	c := NewChecker(zerolog.Nop())
	assert.True(t, c.IsReady(context.Background()))
	assert.Empty(t, c.Last())
}

func TestReadinessHandler(t *testing.T) {
	tests := []struct {
		name   string
		check  CheckFunc
		code   int
		status string
	}{
		{"healthy", func(context.Context) Status { return StatusOK }, fiber.StatusOK, `"status":"ready"`},
		{"not ready", PingCheck(failingPinger{}), fiber.StatusServiceUnavailable, `"status":"not_ready"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewChecker(zerolog.Nop())
			c.Register("svc", tt.check)
			app := fiber.New()
			app.Get("/readyz", c.ReadinessHandler())

			resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/readyz", nil))
			require.NoError(t, err)
			assert.Equal(t, tt.code, resp.StatusCode)
			body, _ := io.ReadAll(resp.Body)
			assert.Contains(t, string(body), tt.status)
		})
	}
}

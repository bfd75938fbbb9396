// Package api is the HTTP surface of the puzzle service: it accepts canvas
// events, exposes the context store and drives the visual piece collection.
package api

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/rs/zerolog"

	"github.com/p-blackswan/puzzlecanvas/internal/contextstore"
	perrors "github.com/p-blackswan/puzzlecanvas/internal/errors"
	"github.com/p-blackswan/puzzlecanvas/internal/eventbus"
	"github.com/p-blackswan/puzzlecanvas/internal/health"
	"github.com/p-blackswan/puzzlecanvas/internal/metrics"
	"github.com/p-blackswan/puzzlecanvas/internal/requestid"
	"github.com/p-blackswan/puzzlecanvas/internal/visual"
)

// ServerConfig holds configuration for the API server.
type ServerConfig struct {
	ListenAddr  string
	CORSOrigins string
	RateLimit   RateLimitConfig
}

// Syncer flushes the visual collection into the store.
type Syncer interface {
	SyncAllToDomain() int
}

// Deps are the components the handlers operate on. Checker, Metrics and
// Sync are optional.
type Deps struct {
	Store   *contextstore.Store
	Bus     *eventbus.Bus
	Pieces  *visual.Collection
	Sync    Syncer
	Checker *health.Checker
	Metrics *metrics.Metrics
}

// Server is the API Fiber application.
type Server struct {
	app    *fiber.App
	logger zerolog.Logger
	config ServerConfig
}

// NewServer creates and configures the API server.
func NewServer(cfg ServerConfig, deps Deps, logger zerolog.Logger) *Server {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler:          customErrorHandler(logger),
		JSONEncoder:           json.Marshal,
		JSONDecoder:           json.Unmarshal,
		BodyLimit:             4 * 1024 * 1024,
	})

	s := &Server{
		app:    app,
		logger: logger.With().Str("component", "api_server").Logger(),
		config: cfg,
	}

	s.setupMiddleware(cfg)
	s.setupRoutes(NewHandlers(deps, logger), deps)

	return s
}

func isProbe(path string) bool {
	return path == "/healthz" || path == "/readyz" || path == "/metrics"
}

func (s *Server) setupMiddleware(cfg ServerConfig) {
	s.app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
	}))

	s.app.Use(requestid.Middleware())

	if cfg.CORSOrigins != "" {
		s.app.Use(cors.New(cors.Config{
			AllowOrigins: cfg.CORSOrigins,
			AllowHeaders: "Origin, Content-Type, Accept, " + requestid.Header,
			AllowMethods: "GET, POST, PUT, OPTIONS",
		}))
	}

	if cfg.RateLimit.RPS > 0 {
		s.app.Use(NewRateLimitMiddleware(cfg.RateLimit))
	}

	// Request log, probes excluded.
	s.app.Use(func(c *fiber.Ctx) error {
		if isProbe(c.Path()) {
			return c.Next()
		}
		err := c.Next()
		s.logger.Debug().
			Str("method", c.Method()).
			Str("path", c.Path()).
			Int("status", c.Response().StatusCode()).
			Str("request_id", fmt.Sprintf("%v", c.Locals(requestid.LocalsKey))).
			Msg("api request")
		return err
	})
}

func (s *Server) setupRoutes(h *Handlers, deps Deps) {
	s.app.Get("/healthz", health.LivenessHandler())
	if deps.Checker != nil {
		s.app.Get("/readyz", deps.Checker.ReadinessHandler())
	} else {
		s.app.Get("/readyz", func(c *fiber.Ctx) error {
			return c.JSON(fiber.Map{"status": "ready", "checks": fiber.Map{}})
		})
	}

	if deps.Metrics != nil {
		s.app.Get("/metrics", adaptor.HTTPHandler(deps.Metrics.Handler()))
	} else {
		s.app.Get("/metrics", func(c *fiber.Ctx) error {
			return c.SendString("# No metrics collector configured\n")
		})
	}

	v1 := s.app.Group("/api/v1")

	v1.Post("/events", h.EmitEvent)

	v1.Get("/state", h.GetState)
	v1.Post("/undo", h.Undo)
	v1.Post("/redo", h.Redo)
	v1.Post("/persist", h.Persist)

	v1.Get("/visual-pieces", h.ListVisualPieces)
	v1.Put("/visual-pieces", h.ReplaceVisualPieces)
	v1.Post("/sync", h.Sync)

	v1.Get("/preferences", h.GetPreferences)
}

// Start starts the server. Blocks until stopped.
func (s *Server) Start() error {
	addr := s.config.ListenAddr
	if addr == "" {
		addr = ":8080"
	}
	s.logger.Info().Str("addr", addr).Msg("API server starting")
	return s.app.Listen(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown() error {
	s.logger.Info().Msg("API server shutting down")
	return s.app.Shutdown()
}

// App returns the underlying Fiber app (useful for testing).
func (s *Server) App() *fiber.App {
	return s.app
}

func customErrorHandler(logger zerolog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		errType, title := "internal_error", "Internal Server Error"

		var fe *fiber.Error
		switch {
		case errors.As(err, &fe):
			code, errType, title = fe.Code, "request_error", fe.Message
		case errors.Is(err, perrors.ErrInvalidInput):
			code, errType, title = fiber.StatusBadRequest, "invalid_input", "Bad Request"
		case errors.Is(err, perrors.ErrNotFound):
			code, errType, title = fiber.StatusNotFound, "not_found", "Not Found"
		}

		if code >= fiber.StatusInternalServerError {
			logger.Error().
				Err(err).
				Int("status", code).
				Str("path", c.Path()).
				Str("method", c.Method()).
				Msg("unhandled error")
		}

		detail := err.Error()
		if code == fiber.StatusInternalServerError {
			detail = "An internal error occurred"
		}
		return problemResponse(c, code, errType, title, detail)
	}
}

// problemResponse returns an RFC 7807 Problem Detail error response.
func problemResponse(c *fiber.Ctx, status int, errType, title, detail string) error {
	return c.Status(status).JSON(ProblemDetail{
		Type:     errType,
		Title:    title,
		Status:   status,
		Detail:   detail,
		Instance: c.Path(),
	})
}

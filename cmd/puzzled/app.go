package main

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/p-blackswan/puzzlecanvas/internal/agents"
	"github.com/p-blackswan/puzzlecanvas/internal/config"
	"github.com/p-blackswan/puzzlecanvas/internal/contextstore"
	"github.com/p-blackswan/puzzlecanvas/internal/eventbus"
	"github.com/p-blackswan/puzzlecanvas/internal/health"
	"github.com/p-blackswan/puzzlecanvas/internal/llm"
	"github.com/p-blackswan/puzzlecanvas/internal/metrics"
	"github.com/p-blackswan/puzzlecanvas/internal/model"
	"github.com/p-blackswan/puzzlecanvas/internal/orchestrator"
	"github.com/p-blackswan/puzzlecanvas/internal/puzzlesession"
	"github.com/p-blackswan/puzzlecanvas/internal/storage"
	"github.com/p-blackswan/puzzlecanvas/internal/syncadapter"
	"github.com/p-blackswan/puzzlecanvas/internal/visual"
)

// app is the wired set of components both commands share.
type app struct {
	storage  storage.Adapter
	store    *contextstore.Store
	bus      *eventbus.Bus
	client   llm.Client
	agents   *agents.Agents
	sessions *puzzlesession.Coordinator
	pieces   *visual.Collection
	sync     *syncadapter.Adapter
	orch     *orchestrator.Orchestrator
	checker  *health.Checker
	metrics  *metrics.Metrics
}

func newApp(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*app, error) {
	a := &app{metrics: metrics.New()}

	backend, err := storage.Open(cfg.StorageOptions(), logger)
	if err != nil {
		return nil, fmt.Errorf("opening %s storage: %w", cfg.StorageBackend, err)
	}
	a.storage = backend

	storeOpts := []contextstore.Option{
		contextstore.WithHistoryLimit(cfg.HistoryLimit),
		contextstore.WithLogger(logger),
		contextstore.WithCommitObserver(a.metrics.RecordCommit),
	}
	if backend != nil {
		storeOpts = append(storeOpts, contextstore.WithStorage(backend))
	}
	a.store = contextstore.New(model.Project{ID: cfg.ProjectID}, storeOpts...)
	a.store.Subscribe(func() {
		a.metrics.SetRevision(a.store.Revision())
	})

	if a.store.Hydrate(ctx) {
		logger.Info().Str("project_id", cfg.ProjectID).Msg("context store hydrated")
	} else if cfg.SeedFile != "" {
		if err := seedStore(a.store, cfg.SeedFile); err != nil {
			if backend != nil {
				backend.Close()
			}
			return nil, err
		}
		logger.Info().Str("seed", cfg.SeedFile).Msg("context store seeded")
	}

	a.bus = eventbus.New(logger)
	a.bus.Observe(func(ev eventbus.Event) { a.metrics.RecordEvent(string(ev.Type)) })

	a.client, err = llm.New(ctx, cfg.LLMSettings(a.metrics.RecordAICall), logger)
	if err != nil {
		return nil, fmt.Errorf("creating LLM client: %w", err)
	}

	a.agents = agents.New(a.client, logger, agents.WithMaxPieces(cfg.MaxPiecesPerQuadrant))
	a.sessions = puzzlesession.New(a.agents, logger,
		puzzlesession.WithQuadrantTimeout(cfg.QuadrantTimeout),
		puzzlesession.WithMaxPieces(cfg.MaxPiecesPerQuadrant),
		puzzlesession.WithQuadrantObserver(func(mode model.DesignMode, d time.Duration, err error) {
			a.metrics.RecordQuadrant(string(mode), d, err)
		}),
	)

	a.pieces = visual.NewCollection(logger)
	a.sync = syncadapter.New(a.store, a.bus, logger)

	a.orch = orchestrator.New(a.store, a.bus, a.agents, a.sessions, logger,
		orchestrator.WithDebounceWindow(cfg.DebounceWindow),
		orchestrator.WithMetrics(a.metrics),
		orchestrator.WithFlusher(a.sync),
	)

	a.checker = health.NewChecker(logger)
	if backend != nil {
		a.checker.Register("storage", health.PingCheck(backend))
	}
	a.checker.Register("llm", health.LLMCheck(a.client))

	return a, nil
}

// attach connects the reactive pieces: canvas to store, bus to orchestrator.
func (a *app) attach() {
	a.sync.Attach(a.pieces)
	a.orch.Attach()
}

// close detaches everything, waits for in-flight AI work, saves a last
// snapshot and closes storage.
func (a *app) close(ctx context.Context, logger zerolog.Logger) {
	a.orch.Detach()
	a.sync.Detach()
	a.orch.Wait()
	a.bus.Clear()

	a.store.Persist(ctx)
	if a.storage != nil {
		if err := a.storage.Close(); err != nil {
			logger.Error().Err(err).Msg("storage close error")
		}
	}
}

// seedStore loads the seed file as the store's baseline. The project id
// stays the configured one and the seed is not an undo step.
func seedStore(store *contextstore.Store, path string) error {
	seed, err := config.LoadSeed(path)
	if err != nil {
		return err
	}
	store.Seed(seed.Project, seed.Fragments)
	return nil
}

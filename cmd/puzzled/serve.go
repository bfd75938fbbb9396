package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/p-blackswan/puzzlecanvas/internal/api"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the reactive orchestration loop",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	logger.Info().
		Str("environment", cfg.Environment).
		Str("http_addr", cfg.HTTPAddr).
		Str("project_id", cfg.ProjectID).
		Str("storage", cfg.StorageBackend).
		Dur("debounce", cfg.DebounceWindow).
		Msg("starting puzzled")

	// Context with graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	a.attach()

	var stopPersist func()
	if a.storage != nil && cfg.AutoPersistWindow > 0 {
		stopPersist = a.store.AutoPersist(cfg.AutoPersistWindow)
	}

	server := api.NewServer(api.ServerConfig{
		ListenAddr:  cfg.HTTPAddr,
		CORSOrigins: cfg.CORSOrigins,
		RateLimit: api.RateLimitConfig{
			RPS:   cfg.HTTPRateLimitRPS,
			Burst: cfg.HTTPRateLimitBurst,
		},
	}, api.Deps{
		Store:   a.store,
		Bus:     a.bus,
		Pieces:  a.pieces,
		Sync:    a.sync,
		Checker: a.checker,
		Metrics: a.metrics,
	}, logger)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := server.Start(); err != nil {
			logger.Error().Err(err).Msg("API server error")
		}
	}()

	// Wait for shutdown signal
	sig := <-sigCh
	logger.Info().Str("signal", sig.String()).Msg("shutting down gracefully")
	cancel()

	if err := server.Shutdown(); err != nil {
		logger.Error().Err(err).Msg("API server shutdown error")
	}
	if stopPersist != nil {
		stopPersist()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	done := make(chan struct{})
	go func() {
		a.close(shutdownCtx, logger)
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info().Msg("all goroutines stopped")
	case <-time.After(15 * time.Second):
		logger.Warn().Msg("forced shutdown after timeout")
	}

	logger.Info().Msg("puzzled stopped")
	return nil
}

// Command puzzled runs the puzzle canvas backbone: the context store, the
// event bus, the orchestrator and the HTTP API in front of them.
//
// Usage:
//
//	PUZZLE_GEMINI_API_KEY=... puzzled serve
//	puzzled session --type EXPAND --question "What should the lamp feel like?"
package main

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/p-blackswan/puzzlecanvas/internal/config"
)

var (
	cfg    *config.Config
	logger zerolog.Logger

	rootCmd = &cobra.Command{
		Use:           "puzzled",
		Short:         "Reactive backbone for the puzzle canvas",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := config.Load()
			if err != nil {
				return err
			}
			cfg = loaded
			setupLogging(cfg)
			return nil
		},
	}
)

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(sessionCmd)

	sessionCmd.Flags().StringVar(&sessionQuestion, "question", "", "central question (synthesized when empty)")
	sessionCmd.Flags().StringVar(&sessionType, "type", "CLARIFY", "puzzle type: CLARIFY, EXPAND or REFINE")
	sessionCmd.Flags().BoolVar(&sessionCommit, "commit", false, "write the generated puzzle to the store and persist it")
}

func setupLogging(cfg *config.Config) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	logger = zerolog.New(os.Stdout).With().Timestamp().Caller().Logger()

	if cfg.IsDevelopment() {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err == nil {
		zerolog.SetGlobalLevel(level)
	}

	log.Logger = logger
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal().Err(err).Msg("puzzled failed")
	}
}
